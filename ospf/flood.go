package ospf

// canFlood reports whether an LSA of type t may be flooded out i at all.
// Virtual links only carry non-external LSAs, and only within the backbone.
func (i *Interface) canFlood(t LSType) bool {
	if t == LSTypeASExternal {
		return i.Type != InterfaceVirtualLink && i.area.ExternalRoutingCapability()
	}

	return i.area.AreaID().IsBackbone() || i.Type != InterfaceVirtualLink
}

// FloodLSA floods lsa out the interface (RFC 2328 13.3). intf is the
// interface the LSA arrived on and from is the neighbor that sent it; both
// are nil for self-originated LSAs. It returns true if the LSA was sent back
// out the interface it arrived on.
func (i *Interface) FloodLSA(lsa *LSA, intf *Interface, from *Neighbor) bool {
	if !i.canFlood(lsa.Type) {
		return false
	}

	key := lsa.Key()
	added := false

	for _, n := range i.neighbors {
		if n.state < NeighborExchange {
			continue
		}

		if n.state < NeighborFull {
			if req := n.FindOnRequestList(key); req != nil {
				cmp := lsa.Compare(req)
				if cmp < 0 {
					continue
				}

				n.RemoveFromRequestList(key)
				if cmp == 0 {
					continue
				}
			}
		}

		if n == from {
			continue
		}

		n.AddToRetransmissionList(lsa)
		added = true
	}

	if !added {
		return false
	}

	if intf == i {
		if from == nil || from.id == i.designatedRouter.RouterID || from.id == i.backupDesignatedRouter.RouterID {
			return false
		}

		if i.state == StateBackup {
			return false
		}
	}

	update := i.newUpdatePacket(lsa)
	if update == nil {
		i.log.Debugf("not flooding LSA of unsupported type %s", lsa.Type)
		return false
	}

	ttl := i.ttl()
	h := i.handler()

	switch i.Type {
	case InterfaceBroadcast:
		if i.state == StateDesignatedRouter || i.state == StateBackup || i.designatedRouter.IsNull() {
			h.SendPacket(update, AllSPFRouters, i, ttl)
			for _, n := range i.neighbors {
				n.noteTransmitted(key)
			}
		} else {
			h.SendPacket(update, AllDRouters, i, ttl)
			if dr := i.NeighborByID(i.designatedRouter.RouterID); dr != nil {
				dr.noteTransmitted(key)
			}
			if bdr := i.NeighborByID(i.backupDesignatedRouter.RouterID); bdr != nil {
				bdr.noteTransmitted(key)
			}
		}
	case InterfacePointToPoint:
		h.SendPacket(update, AllSPFRouters, i, ttl)
		if len(i.neighbors) > 0 {
			i.neighbors[0].noteTransmitted(key)
		}
	default:
		for _, n := range i.neighbors {
			if n.state >= NeighborExchange {
				h.SendPacket(update, n.addr, i, ttl)
				n.noteTransmitted(key)
			}
		}
	}

	return intf == i
}

// noteTransmitted records that key was just sent to the neighbor and makes
// sure it will be retransmitted if it isn't acknowledged.
func (n *Neighbor) noteTransmitted(key LSAKey) {
	n.AddToTransmittedLSAList(key)
	if !n.IsUpdateRetransmissionTimerActive() {
		n.StartUpdateRetransmissionTimer()
	}
}

// newUpdatePacket returns an update containing only lsa, aged by the
// interface's transmission delay. It returns nil for LSA types we can't
// send.
func (i *Interface) newUpdatePacket(lsa *LSA) *LinkStateUpdate {
	if !lsa.Type.isKnown() {
		return nil
	}

	return &LinkStateUpdate{
		Header: i.packetHeader(),
		LSAs:   []*LSA{i.agedForTransmission(lsa)},
	}
}

func (i *Interface) agedForTransmission(lsa *LSA) *LSA {
	l := lsa.Clone()

	delay := int(i.TransmissionDelay)
	if int(l.Age) < MaxAge-delay {
		l.Age += uint16(delay)
	} else {
		l.Age = MaxAge
	}

	return l
}
