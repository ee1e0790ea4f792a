package ospf

import (
	"fmt"
	"net/netip"
	"time"

	"golang.org/x/exp/constraints"
)

func abs[T constraints.Signed](a T) T {
	if a < 0 {
		return -a
	} else {
		return a
	}
}

func seconds[T constraints.Integer](n T) time.Duration {
	return time.Duration(n) * time.Second
}

func to4(addr netip.Addr) []byte {
	if !addr.IsValid() {
		return []byte{0, 0, 0, 0}
	}

	b := addr.Unmap().As4()
	return b[:]
}

func mustAddrFromSlice(b []byte) netip.Addr {
	addr, ok := netip.AddrFromSlice(b)
	if !ok {
		panic("mustAddrFromSlice: slice should be either 4 or 16 bytes, but got " + fmt.Sprint(len(b)))
	}
	return addr
}

// checksum is the Internet checksum (RFC 1071) over the concatenation of data.
func checksum(data ...[]byte) uint16 {
	var sum uint32
	var odd bool
	var last byte

	for _, d := range data {
		for _, b := range d {
			if odd {
				sum += uint32(last)<<8 | uint32(b)
			} else {
				last = b
			}
			odd = !odd
		}
	}

	if odd {
		sum += uint32(last) << 8
	}

	for sum>>16 != 0 {
		sum = (sum >> 16) + (sum & 0xffff)
	}

	return ^uint16(sum)
}
