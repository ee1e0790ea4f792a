package ospf

import (
	"net/netip"

	"github.com/davidbalbert/ospfd/common"
)

func (i *Interface) broadcastFloodAddr() netip.Addr {
	if i.state == StateDesignatedRouter || i.state == StateBackup || i.designatedRouter.IsNull() {
		return AllSPFRouters
	}
	return AllDRouters
}

// AddDelayedAcknowledgement queues h to be acknowledged the next time the
// acknowledgement timer fires.
func (i *Interface) AddDelayedAcknowledgement(h LSAHeader) {
	if i.Type == InterfaceBroadcast {
		i.queueAck(i.broadcastFloodAddr(), h)
		return
	}

	for _, n := range i.neighbors {
		if n.state >= NeighborExchange {
			i.queueAck(n.addr, h)
		}
	}
}

func (i *Interface) queueAck(dst netip.Addr, h LSAHeader) {
	if _, ok := i.delayedAcks[dst]; !ok {
		i.delayedAckOrder = append(i.delayedAckOrder, dst)
	}
	i.delayedAcks[dst] = append(i.delayedAcks[dst], h)
}

// DelayedAcknowledgements returns the headers queued for dst.
func (i *Interface) DelayedAcknowledgements(dst netip.Addr) []LSAHeader {
	return i.delayedAcks[dst]
}

// SendDelayedAcknowledgements drains every queue into as few
// acknowledgement packets as fit in the MTU and restarts the
// acknowledgement timer.
func (i *Interface) SendDelayedAcknowledgements() {
	h := i.handler()
	maxSize := i.maxPacketSize()
	ttl := i.ttl()

	for _, key := range i.delayedAckOrder {
		pending := i.delayedAcks[key]

		for len(pending) > 0 {
			ack := &LinkStateAcknowledgement{Header: i.packetHeader()}
			size := ipv4MaxHeaderLen + headerLen

			for len(pending) > 0 && size <= maxSize-lsaHeaderLen {
				ack.LSAHeaders = append(ack.LSAHeaders, pending[0])
				pending = pending[1:]
				size += lsaHeaderLen
			}

			var dst netip.Addr
			switch i.Type {
			case InterfaceBroadcast:
				dst = i.broadcastFloodAddr()
			case InterfacePointToPoint:
				dst = AllSPFRouters
			default:
				dst = key
			}

			h.SendPacket(ack, dst, i, ttl)
		}

		delete(i.delayedAcks, key)
	}
	i.delayedAckOrder = i.delayedAckOrder[:0]

	h.StartTimer(i.ackTimer, seconds(i.AcknowledgementDelay))
}

// SendLSAcknowledgement immediately acknowledges a single LSA.
func (i *Interface) SendLSAcknowledgement(lsaHeader LSAHeader, dst netip.Addr) {
	ack := &LinkStateAcknowledgement{
		Header:     i.packetHeader(),
		LSAHeaders: []LSAHeader{lsaHeader},
	}

	i.handler().SendPacket(ack, dst, i, i.ttl())
}

// findNeighbor looks up the sender of a packet. Neighbors on multi-access
// networks are identified by address, others by Router ID.
func (i *Interface) findNeighbor(id common.RouterID, src netip.Addr) *Neighbor {
	switch i.Type {
	case InterfaceBroadcast, InterfaceNBMA, InterfacePointToMultipoint:
		return i.NeighborByAddress(src)
	default:
		return i.NeighborByID(id)
	}
}

// HandleLSAcknowledgement removes acknowledged LSA instances from the
// sender's retransmission list (RFC 2328 13.7).
func (i *Interface) HandleLSAcknowledgement(ack *LinkStateAcknowledgement, src netip.Addr) {
	n := i.findNeighbor(ack.RouterID, src)
	if n == nil {
		i.log.Debugf("ack from unknown neighbor %s", src)
		return
	}

	if n.state < NeighborExchange {
		return
	}

	for idx := range ack.LSAHeaders {
		h := &ack.LSAHeaders[idx]
		l := n.findOnRetransmissionList(h.Key())
		if l == nil {
			continue
		}

		if l.Compare(h) == 0 {
			n.RemoveFromRetransmissionList(h.Key())
		} else {
			n.log.Debugf("questionable ack for %s", h)
		}
	}
}
