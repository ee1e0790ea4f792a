package ospf

import (
	"net"
	"net/netip"
)

func (i *Interface) newHello() *Hello {
	hello := &Hello{
		Header:                 i.packetHeader(),
		NetworkMask:            net.IPv4Mask(0, 0, 0, 0),
		HelloInterval:          i.HelloInterval,
		RouterPriority:         i.RouterPriority,
		RouterDeadInterval:     i.RouterDeadInterval,
		DesignatedRouter:       i.designatedRouter.Address,
		BackupDesignatedRouter: i.backupDesignatedRouter.Address,
	}

	if i.area.ExternalRoutingCapability() {
		hello.Options |= OptionE
	}

	unnumbered := !i.AddressRange.IsValid() || i.Address().IsUnspecified()
	if i.Type != InterfaceVirtualLink && !(i.Type == InterfacePointToPoint && unnumbered) {
		hello.NetworkMask = net.CIDRMask(i.AddressRange.Bits(), 32)
	}

	for _, n := range i.neighbors {
		if n.state >= NeighborInit {
			hello.Neighbors = append(hello.Neighbors, n.id)
		}
	}

	return hello
}

// SendHelloPacket sends a Hello describing the interface's current view of
// the network to dst.
func (i *Interface) SendHelloPacket(dst netip.Addr, ttl uint8) {
	i.handler().SendPacket(i.newHello(), dst, i, ttl)
}

// sendHellos sends the Hellos due when the hello timer fires (RFC 2328 9.5).
func (i *Interface) sendHellos() {
	if i.Mode != ModeActive {
		return
	}

	if i.Type == InterfaceNBMA {
		i.sendNBMAHellos(false)
		return
	}

	switch i.state {
	case StatePointToPoint:
		if i.Type == InterfaceVirtualLink {
			if len(i.neighbors) > 0 {
				i.SendHelloPacket(i.neighbors[0].addr, VirtualLinkTTL)
			}
		} else {
			i.SendHelloPacket(AllSPFRouters, 1)
		}
	case StateWaiting, StateNotDesignatedRouter, StateBackup, StateDesignatedRouter:
		if i.Type == InterfaceBroadcast {
			i.SendHelloPacket(AllSPFRouters, 1)
		}
	}
}

// poll sends Hellos to Down NBMA neighbors and reschedules itself every
// PollInterval (RFC 2328 9.5.1).
func (i *Interface) poll() {
	if i.Mode == ModeActive {
		i.sendNBMAHellos(true)
	}

	i.handler().StartTimer(i.pollTimer, seconds(i.PollInterval))
}

// sendNBMAHellos sends Hellos to the NBMA neighbors we're required to talk
// to. Neighbors in state Down are polled instead, so down selects between
// the two sets.
func (i *Interface) sendNBMAHellos(down bool) {
	if i.state == StateNotDesignatedRouter && i.RouterPriority == 0 {
		if down {
			return
		}

		if !i.designatedRouter.IsNull() {
			i.SendHelloPacket(i.designatedRouter.Address, 1)
		}
		if !i.backupDesignatedRouter.IsNull() {
			i.SendHelloPacket(i.backupDesignatedRouter.Address, 1)
		}
		return
	}

	for _, n := range i.neighbors {
		if (n.state == NeighborDown) != down {
			continue
		}

		switch i.state {
		case StateWaiting, StateNotDesignatedRouter:
			if n.priority > 0 {
				i.SendHelloPacket(n.addr, 1)
			}
		case StateBackup, StateDesignatedRouter:
			i.SendHelloPacket(n.addr, 1)
		}
	}
}

// HandleHello processes a received Hello (RFC 2328 10.5). src is the IP
// source address of the packet.
func (i *Interface) HandleHello(h *Hello, src netip.Addr) {
	log := i.log.WithField("src", src)

	if i.Mode != ModeActive {
		return
	}

	if i.Type != InterfacePointToPoint && i.Type != InterfaceVirtualLink {
		ones, bits := h.NetworkMask.Size()
		if bits != 32 || ones != i.AddressRange.Bits() {
			log.Debugf("hello: network mask mismatch /%d", ones)
			return
		}
	}

	if h.HelloInterval != i.HelloInterval || h.RouterDeadInterval != i.RouterDeadInterval {
		log.Debugf("hello: interval mismatch hello=%d dead=%d", h.HelloInterval, h.RouterDeadInterval)
		return
	}

	if (h.Options&OptionE != 0) != i.area.ExternalRoutingCapability() {
		log.Debugf("hello: E-bit mismatch")
		return
	}

	var n *Neighbor
	switch i.Type {
	case InterfaceBroadcast, InterfaceNBMA, InterfacePointToMultipoint:
		n = i.NeighborByAddress(src)
	default:
		n = i.NeighborByID(h.RouterID)
	}

	if n == nil {
		n = NewNeighbor(h.RouterID, src, h.RouterPriority)
		i.AddNeighbor(n)
		n.log.Infof("new neighbor at %s", src)
	} else if n.id != h.RouterID || n.addr != src {
		i.reindexNeighbor(n, h.RouterID, src)
	}

	oldPriority := n.priority
	wasDR := n.declaresDesignatedRouter()
	wasBackup := n.declaresBackup()

	n.priority = h.RouterPriority
	n.options = h.Options
	n.designatedRouter = h.DesignatedRouter
	n.backupDesignatedRouter = h.BackupDesignatedRouter

	n.ProcessEvent(NbrHelloReceived)

	if !h.hasNeighbor(i.routerID()) {
		n.ProcessEvent(NbrOneWayReceived)
		return
	}

	n.ProcessEvent(NbrTwoWayReceived)

	if i.Type != InterfaceBroadcast && i.Type != InterfaceNBMA {
		return
	}

	var events []InterfaceEvent
	schedule := func(e InterfaceEvent) {
		for _, existing := range events {
			if existing == e {
				return
			}
		}
		events = append(events, e)
	}

	if oldPriority != n.priority {
		schedule(NeighborChange)
	}

	isDR := n.declaresDesignatedRouter()
	noBackup := !h.BackupDesignatedRouter.IsValid() || h.BackupDesignatedRouter.IsUnspecified()
	if isDR && noBackup && i.state == StateWaiting {
		schedule(BackupSeen)
	} else if isDR != wasDR {
		schedule(NeighborChange)
	}

	isBackup := n.declaresBackup()
	if isBackup && i.state == StateWaiting {
		schedule(BackupSeen)
	} else if isBackup != wasBackup {
		schedule(NeighborChange)
	}

	for _, e := range events {
		i.ProcessEvent(e)
	}
}
