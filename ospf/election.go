package ospf

import (
	"net/netip"

	"github.com/davidbalbert/ospfd/common"
)

type candidate struct {
	id             common.RouterID
	addr           netip.Addr
	priority       uint8
	declaresDR     bool
	declaresBackup bool
}

func (c *candidate) drID() DesignatedRouterID {
	return DesignatedRouterID{RouterID: c.id, Address: c.addr}
}

// better reports whether c ranks above other: higher priority first, then
// higher Router ID.
func (c *candidate) better(other *candidate) bool {
	if other == nil {
		return true
	}
	if c.priority != other.priority {
		return c.priority > other.priority
	}
	return c.id > other.id
}

// calculateDesignatedRouter elects the DR and BDR (RFC 2328 9.4) and returns
// the interface's resulting state.
func (i *Interface) calculateDesignatedRouter() InterfaceState {
	self := i.routerID()
	oldDR := i.designatedRouter
	oldBDR := i.backupDesignatedRouter

	var candidates []*candidate
	var me *candidate

	if i.RouterPriority > 0 {
		me = &candidate{
			id:             self,
			addr:           i.Address(),
			priority:       i.RouterPriority,
			declaresDR:     oldDR.RouterID == self,
			declaresBackup: oldBDR.RouterID == self,
		}
		candidates = append(candidates, me)
	}

	for _, n := range i.neighbors {
		if n.state < NeighborTwoWay || n.priority == 0 {
			continue
		}

		candidates = append(candidates, &candidate{
			id:             n.id,
			addr:           n.addr,
			priority:       n.priority,
			declaresDR:     n.declaresDesignatedRouter(),
			declaresBackup: n.declaresBackup(),
		})
	}

	dr, bdr := elect(candidates)

	if me != nil {
		isDR := dr.RouterID == self
		isBDR := bdr.RouterID == self
		if isDR != me.declaresDR || isBDR != me.declaresBackup {
			me.declaresDR = isDR
			me.declaresBackup = isBDR
			dr, bdr = elect(candidates)
		}
	}

	i.designatedRouter = dr
	i.backupDesignatedRouter = bdr

	if dr != oldDR || bdr != oldBDR {
		i.log.Infof("elected dr=%s bdr=%s", dr, bdr)
	}

	wasElected := oldDR.RouterID == self || oldBDR.RouterID == self
	isElected := dr.RouterID == self || bdr.RouterID == self

	if i.Type == InterfaceNBMA && isElected && !wasElected {
		for _, n := range i.neighbors {
			if n.priority == 0 {
				n.ProcessEvent(NbrStart)
			}
		}
	}

	if dr != oldDR || bdr != oldBDR {
		for _, n := range i.neighbors {
			if n.state >= NeighborTwoWay {
				n.ProcessEvent(NbrAdjOK)
			}
		}
	}

	switch self {
	case dr.RouterID:
		return StateDesignatedRouter
	case bdr.RouterID:
		return StateBackup
	default:
		return StateNotDesignatedRouter
	}
}

// elect runs a single pass of steps 2 and 3 of the election.
func elect(candidates []*candidate) (dr, bdr DesignatedRouterID) {
	var bestBDR, bestDeclaringBDR, bestDR *candidate

	for _, c := range candidates {
		if c.declaresDR {
			if c.better(bestDR) {
				bestDR = c
			}
			continue
		}

		if c.declaresBackup {
			if c.better(bestDeclaringBDR) {
				bestDeclaringBDR = c
			}
		} else if c.better(bestBDR) {
			bestBDR = c
		}
	}

	if bestDeclaringBDR != nil {
		bestBDR = bestDeclaringBDR
	}

	bdr = NullDesignatedRouterID
	if bestBDR != nil {
		bdr = bestBDR.drID()
	}

	if bestDR != nil {
		dr = bestDR.drID()
	} else {
		dr = bdr
	}

	return dr, bdr
}
