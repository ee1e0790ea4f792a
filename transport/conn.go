// Package transport sends and receives raw OSPF packets over IPv4.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/net/ipv4"
)

const (
	protocolOSPF = 89

	// Internetwork control, as recommended for routing protocol traffic.
	tosInternetControl = 0xc0

	maxDatagram = 65535
)

// Packet is an OSPF payload along with the IP metadata the protocol cares
// about.
type Packet struct {
	Src     netip.Addr
	Dst     netip.Addr
	IfIndex int
	Payload []byte
}

// Conn is a raw IPv4 socket bound to protocol 89 on all interfaces. Go makes
// us listen on 0.0.0.0 if we want to receive multicast, so every packet is
// tagged with the index of the interface it arrived on.
type Conn struct {
	raw *ipv4.RawConn
	buf []byte
}

func Listen(ctx context.Context) (*Conn, error) {
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, fmt.Sprintf("ip4:%d", protocolOSPF), "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("transport: listen: %w", err)
	}

	raw, err := ipv4.NewRawConn(pc)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("transport: raw conn: %w", err)
	}

	setup := []func() error{
		func() error { return raw.SetControlMessage(ipv4.FlagInterface|ipv4.FlagDst, true) },
		func() error { return raw.SetMulticastLoopback(false) },
		func() error { return raw.SetMulticastTTL(1) },
		func() error { return raw.SetTOS(tosInternetControl) },
	}

	for idx, fn := range setup {
		if err := fn(); err != nil {
			raw.Close()
			return nil, fmt.Errorf("transport: socket option %d: %w", idx, err)
		}
	}

	return &Conn{
		raw: raw,
		buf: make([]byte, maxDatagram),
	}, nil
}

func toNetAddr(addr netip.Addr) net.Addr {
	return &net.IPAddr{IP: addr.AsSlice()}
}

func (c *Conn) JoinGroup(ifIndex int, group netip.Addr) error {
	netif, err := net.InterfaceByIndex(ifIndex)
	if err != nil {
		return err
	}

	return c.raw.JoinGroup(netif, toNetAddr(group))
}

func (c *Conn) LeaveGroup(ifIndex int, group netip.Addr) error {
	netif, err := net.InterfaceByIndex(ifIndex)
	if err != nil {
		return err
	}

	return c.raw.LeaveGroup(netif, toNetAddr(group))
}

// ReadPacket blocks until a packet arrives. The returned payload is a copy
// and is safe to retain.
func (c *Conn) ReadPacket() (Packet, error) {
	for {
		h, payload, cm, err := c.raw.ReadFrom(c.buf)
		if err != nil {
			return Packet{}, err
		}

		if cm == nil {
			continue
		}

		src, ok := netip.AddrFromSlice(h.Src)
		if !ok {
			continue
		}

		dst, ok := netip.AddrFromSlice(h.Dst)
		if !ok {
			continue
		}

		return Packet{
			Src:     src.Unmap(),
			Dst:     dst.Unmap(),
			IfIndex: cm.IfIndex,
			Payload: append([]byte(nil), payload...),
		}, nil
	}
}

// WriteTo sends payload to dst out of the interface with the given index.
// Virtual links pass an ifIndex of 0 and let the kernel route the packet.
func (c *Conn) WriteTo(payload []byte, dst netip.Addr, ifIndex int, ttl int) error {
	if !dst.Is4() {
		return fmt.Errorf("transport: not an IPv4 destination: %s", dst)
	}

	h := &ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4.HeaderLen,
		TOS:      tosInternetControl,
		TotalLen: ipv4.HeaderLen + len(payload),
		TTL:      ttl,
		Protocol: protocolOSPF,
		Dst:      dst.AsSlice(),
	}

	var cm *ipv4.ControlMessage
	if ifIndex != 0 {
		cm = &ipv4.ControlMessage{IfIndex: ifIndex}
	}

	return c.raw.WriteTo(h, payload, cm)
}

func (c *Conn) Close() error {
	return c.raw.Close()
}

// IsClosed reports whether err was caused by reading from a closed Conn.
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
