package common

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
)

type RouterID uint32
type AreaID uint32

const BackboneAreaID AreaID = 0

func (r RouterID) String() string {
	return AddrFromUint32(uint32(r)).String()
}

func (r RouterID) Addr() netip.Addr {
	return AddrFromUint32(uint32(r))
}

func (a AreaID) String() string {
	return AddrFromUint32(uint32(a)).String()
}

func (a AreaID) IsBackbone() bool {
	return a == BackboneAreaID
}

// ParseID accepts either dotted-quad notation or a plain unsigned 32 bit
// integer, which is how router IDs and area IDs are written in configs.
func ParseID(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err == nil {
		return uint32(n), nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return 0, fmt.Errorf("must be an IPv4 address or an unsigned 32 bit integer")
	}

	return Uint32FromAddr(addr), nil
}

func AddrFromUint32(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

// Uint32FromAddr returns 0 for anything that isn't an IPv4 address.
func Uint32FromAddr(addr netip.Addr) uint32 {
	addr = addr.Unmap()
	if !addr.Is4() {
		return 0
	}

	b := addr.As4()
	return binary.BigEndian.Uint32(b[:])
}
