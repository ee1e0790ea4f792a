package ospf

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/davidbalbert/ospfd/common"
)

type routerLinkType uint8

const (
	linkPointToPoint routerLinkType = 1
	linkTransit      routerLinkType = 2
	linkStub         routerLinkType = 3
	linkVirtual      routerLinkType = 4
)

func (t routerLinkType) String() string {
	switch t {
	case linkPointToPoint:
		return "point-to-point"
	case linkTransit:
		return "transit"
	case linkStub:
		return "stub"
	case linkVirtual:
		return "virtual"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

const (
	routerFlagB = 0x01
	routerFlagE = 0x02
	routerFlagV = 0x04
)

type routerLink struct {
	id     netip.Addr
	data   netip.Addr
	typ    routerLinkType
	metric uint16
}

var hostMask = netip.MustParseAddr("255.255.255.255")

func prefixMask(p netip.Prefix) netip.Addr {
	if p.Bits() <= 0 {
		return netip.IPv4Unspecified()
	}
	return common.AddrFromUint32(^uint32(0) << (32 - p.Bits()))
}

// routerLinks describes the interface's contribution to the router-LSA
// (RFC 2328 12.4.1).
func (i *Interface) routerLinks() []routerLink {
	if i.Mode == ModeNoOSPF {
		return nil
	}

	switch i.state {
	case StateDown:
		return nil
	case StateLoopback:
		return []routerLink{{id: i.Address(), data: hostMask, typ: linkStub}}
	}

	stub := routerLink{
		id:     i.AddressRange.Masked().Addr(),
		data:   prefixMask(i.AddressRange),
		typ:    linkStub,
		metric: i.OutputCost,
	}

	var links []routerLink

	switch i.Type {
	case InterfacePointToPoint:
		for _, n := range i.neighbors {
			if n.state == NeighborFull {
				links = append(links, routerLink{id: n.id.Addr(), data: i.Address(), typ: linkPointToPoint, metric: i.OutputCost})
			}
		}
		if i.AddressRange.IsValid() && !i.Address().IsUnspecified() {
			links = append(links, stub)
		}
	case InterfaceBroadcast, InterfaceNBMA:
		if i.state != StateWaiting && !i.designatedRouter.IsNull() && i.isFullyAdjacentToDR() {
			links = append(links, routerLink{id: i.designatedRouter.Address, data: i.Address(), typ: linkTransit, metric: i.OutputCost})
		} else {
			links = append(links, stub)
		}
	case InterfacePointToMultipoint:
		links = append(links, routerLink{id: i.Address(), data: hostMask, typ: linkStub})
		for _, n := range i.neighbors {
			if n.state == NeighborFull {
				links = append(links, routerLink{id: n.id.Addr(), data: i.Address(), typ: linkPointToPoint, metric: i.OutputCost})
			}
		}
	case InterfaceVirtualLink:
		for _, n := range i.neighbors {
			if n.state == NeighborFull {
				links = append(links, routerLink{id: n.id.Addr(), data: i.Address(), typ: linkVirtual, metric: i.OutputCost})
			}
		}
	}

	return links
}

func (i *Interface) isFullyAdjacentToDR() bool {
	if i.state == StateDesignatedRouter {
		return i.HasAnyNeighborInStates(NeighborFull)
	}

	dr := i.NeighborByID(i.designatedRouter.RouterID)
	return dr != nil && dr.state == NeighborFull
}

func encodeRouterLSABody(flags uint8, links []routerLink) []byte {
	b := make([]byte, 4+12*len(links))
	b[0] = flags
	binary.BigEndian.PutUint16(b[2:4], uint16(len(links)))

	for n, l := range links {
		off := 4 + 12*n
		copy(b[off:off+4], to4(l.id))
		copy(b[off+4:off+8], to4(l.data))
		b[off+8] = uint8(l.typ)
		b[off+9] = 0
		binary.BigEndian.PutUint16(b[off+10:off+12], l.metric)
	}

	return b
}

func decodeRouterLSABody(b []byte) (flags uint8, links []routerLink, err error) {
	if len(b) < 4 {
		return 0, nil, fmt.Errorf("%w: router-LSA", ErrShortPacket)
	}

	flags = b[0]
	count := int(binary.BigEndian.Uint16(b[2:4]))
	off := 4

	for n := 0; n < count; n++ {
		if len(b) < off+12 {
			return 0, nil, fmt.Errorf("%w: router-LSA link %d", ErrShortPacket, n)
		}

		l := routerLink{
			id:     mustAddrFromSlice(b[off : off+4]),
			data:   mustAddrFromSlice(b[off+4 : off+8]),
			typ:    routerLinkType(b[off+8]),
			metric: binary.BigEndian.Uint16(b[off+10 : off+12]),
		}
		tos := int(b[off+9])
		off += 12 + 4*tos

		links = append(links, l)
	}

	return flags, links, nil
}
