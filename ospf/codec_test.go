package ospf

import (
	"encoding/binary"
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/davidbalbert/ospfd/common"
	"github.com/google/go-cmp/cmp"
)

var addrComparer = cmp.Comparer(func(a, b netip.Addr) bool { return a == b })

func testHeader() Header {
	return Header{
		RouterID:           mustRouterID("2.2.2.2"),
		AreaID:             common.AreaID(1),
		AuthenticationType: AuthSimple,
		Authentication:     [8]byte{'s', 'e', 'c', 'r', 'e', 't'},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		packet Packet
	}{
		{
			name: "hello",
			packet: &Hello{
				Header:                 testHeader(),
				NetworkMask:            net.CIDRMask(24, 32),
				HelloInterval:          10,
				Options:                OptionE,
				RouterPriority:         1,
				RouterDeadInterval:     40,
				DesignatedRouter:       netip.MustParseAddr("10.0.0.2"),
				BackupDesignatedRouter: netip.MustParseAddr("10.0.0.1"),
				Neighbors:              []common.RouterID{mustRouterID("1.1.1.1"), mustRouterID("3.3.3.3")},
			},
		},
		{
			name: "update",
			packet: &LinkStateUpdate{
				Header: testHeader(),
				LSAs: []*LSA{
					testLSA(LSTypeRouter, "2.2.2.2", "2.2.2.2", InitialSequenceNumber),
					testLSA(LSTypeASExternal, "192.168.0.0", "2.2.2.2", InitialSequenceNumber+7),
				},
			},
		},
		{
			name: "ack",
			packet: &LinkStateAcknowledgement{
				Header: testHeader(),
				LSAHeaders: []LSAHeader{
					testLSA(LSTypeRouter, "2.2.2.2", "2.2.2.2", InitialSequenceNumber).LSAHeader,
					testLSA(LSTypeNetwork, "10.0.0.2", "2.2.2.2", InitialSequenceNumber).LSAHeader,
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.packet)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			if got := int(binary.BigEndian.Uint16(data[2:4])); got != len(data) {
				t.Fatalf("length field %d, want %d", got, len(data))
			}

			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			if diff := cmp.Diff(tt.packet, got, addrComparer); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodedLSAsKeepTheirChecksums(t *testing.T) {
	u := &LinkStateUpdate{
		Header: testHeader(),
		LSAs:   []*LSA{testLSA(LSTypeSummary, "10.1.0.0", "2.2.2.2", InitialSequenceNumber)},
	}

	data, err := Encode(u)
	if err != nil {
		t.Fatal(err)
	}

	p, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}

	if !p.(*LinkStateUpdate).LSAs[0].IsChecksumValid() {
		t.Fatal("expected a valid LSA checksum after decoding")
	}
}

func TestDecodeErrors(t *testing.T) {
	hello, err := Encode(&Hello{Header: testHeader(), NetworkMask: net.CIDRMask(24, 32)})
	if err != nil {
		t.Fatal(err)
	}

	corrupt := func(f func(b []byte) []byte) []byte {
		b := append([]byte(nil), hello...)
		return f(b)
	}

	dd := corrupt(func(b []byte) []byte {
		b[1] = uint8(PacketDatabaseDescription)
		binary.BigEndian.PutUint16(b[12:14], 0)
		binary.BigEndian.PutUint16(b[12:14], checksum(b[0:16], b[headerLen:]))
		return b
	})

	update := corrupt(func(b []byte) []byte {
		b = b[:headerLen+8]
		b[1] = uint8(PacketLinkStateUpdate)
		binary.BigEndian.PutUint16(b[2:4], uint16(len(b)))
		binary.BigEndian.PutUint32(b[headerLen:], 1)
		binary.BigEndian.PutUint16(b[12:14], 0)
		binary.BigEndian.PutUint16(b[12:14], checksum(b[0:16], b[headerLen:]))
		return b
	})

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrShortPacket},
		{"truncated header", hello[:10], ErrShortPacket},
		{"truncated body", hello[:len(hello)-4], ErrShortPacket},
		{"version 3", corrupt(func(b []byte) []byte { b[0] = 3; return b }), ErrBadVersion},
		{"bad checksum", corrupt(func(b []byte) []byte { b[30] ^= 0xff; return b }), ErrBadChecksum},
		{"database description", dd, ErrUnsupportedPacket},
		{"update with truncated LSA", update, ErrShortPacket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEncodeAuthenticationIsNotChecksummed(t *testing.T) {
	a := &LinkStateAcknowledgement{Header: testHeader()}
	b := &LinkStateAcknowledgement{Header: testHeader()}
	b.Authentication = [8]byte{'o', 't', 'h', 'e', 'r'}

	da, err := Encode(a)
	if err != nil {
		t.Fatal(err)
	}
	db, err := Encode(b)
	if err != nil {
		t.Fatal(err)
	}

	if binary.BigEndian.Uint16(da[12:14]) != binary.BigEndian.Uint16(db[12:14]) {
		t.Fatal("checksum should not depend on the authentication field")
	}
}
