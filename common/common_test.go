package common

import (
	"net/netip"
	"testing"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
		ok   bool
	}{
		{"0", 0, true},
		{"1", 1, true},
		{"4294967295", 0xffffffff, true},
		{"0.0.0.1", 1, true},
		{"192.168.200.1", 0xc0a8c801, true},
		{"4294967296", 0, false},
		{"::1", 0, false},
		{"eth0", 0, false},
	}

	for _, test := range tests {
		got, err := ParseID(test.in)
		if test.ok && err != nil {
			t.Fatalf("ParseID(%q): unexpected error: %v", test.in, err)
		}

		if !test.ok && err == nil {
			t.Fatalf("ParseID(%q): expected error, got %d", test.in, got)
		}

		if got != test.want {
			t.Fatalf("ParseID(%q) = %d, want %d", test.in, got, test.want)
		}
	}
}

func TestRouterIDString(t *testing.T) {
	id := RouterID(0x01020304)
	if id.String() != "1.2.3.4" {
		t.Fatalf("Unexpected output: %s", id.String())
	}

	if AreaID(0).String() != "0.0.0.0" {
		t.Fatalf("Unexpected output: %s", AreaID(0).String())
	}
}

func TestAddrConversion(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.1")

	if got := AddrFromUint32(Uint32FromAddr(addr)); got != addr {
		t.Fatalf("expected %s, got %s", addr, got)
	}

	mapped := netip.MustParseAddr("::ffff:10.0.0.1")
	if Uint32FromAddr(mapped) != 0x0a000001 {
		t.Fatalf("expected v4-mapped address to convert, got %x", Uint32FromAddr(mapped))
	}

	if Uint32FromAddr(netip.MustParseAddr("2001:db8::1")) != 0 {
		t.Fatalf("expected 0 for an IPv6 address")
	}
}
