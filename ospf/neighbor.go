package ospf

import (
	"net/netip"

	"github.com/davidbalbert/ospfd/common"
	"github.com/sirupsen/logrus"
)

type NeighborState int

const (
	NeighborDown NeighborState = iota
	NeighborAttempt
	NeighborInit
	NeighborTwoWay
	NeighborExStart
	NeighborExchange
	NeighborLoading
	NeighborFull
)

func (s NeighborState) String() string {
	switch s {
	case NeighborDown:
		return "Down"
	case NeighborAttempt:
		return "Attempt"
	case NeighborInit:
		return "Init"
	case NeighborTwoWay:
		return "2-Way"
	case NeighborExStart:
		return "ExStart"
	case NeighborExchange:
		return "Exchange"
	case NeighborLoading:
		return "Loading"
	case NeighborFull:
		return "Full"
	default:
		return "Unknown"
	}
}

type NeighborEvent int

const (
	NbrHelloReceived NeighborEvent = iota
	NbrStart
	NbrTwoWayReceived
	NbrNegotiationDone
	NbrExchangeDone
	NbrBadLSReq
	NbrLoadingDone
	NbrAdjOK
	NbrSeqNumberMismatch
	NbrOneWayReceived
	NbrKill
	NbrInactivityTimer
	NbrLLDown
)

func (e NeighborEvent) String() string {
	switch e {
	case NbrHelloReceived:
		return "HelloReceived"
	case NbrStart:
		return "Start"
	case NbrTwoWayReceived:
		return "2-WayReceived"
	case NbrNegotiationDone:
		return "NegotiationDone"
	case NbrExchangeDone:
		return "ExchangeDone"
	case NbrBadLSReq:
		return "BadLSReq"
	case NbrLoadingDone:
		return "LoadingDone"
	case NbrAdjOK:
		return "AdjOK?"
	case NbrSeqNumberMismatch:
		return "SeqNumberMismatch"
	case NbrOneWayReceived:
		return "1-WayReceived"
	case NbrKill:
		return "KillNbr"
	case NbrInactivityTimer:
		return "InactivityTimer"
	case NbrLLDown:
		return "LLDown"
	default:
		return "Unknown"
	}
}

type transmittedLSA struct {
	key LSAKey
	age uint16
}

type Neighbor struct {
	iface *Interface
	state NeighborState

	id                     common.RouterID
	addr                   netip.Addr
	priority               uint8
	options                Options
	designatedRouter       netip.Addr
	backupDesignatedRouter netip.Addr

	retransmissionList []*LSA
	requestList        []LSAHeader
	transmittedLSAs    []transmittedLSA

	inactivityTimer            *Timer
	updateRetransmissionTimer  *Timer
	updateRetransmissionActive bool

	log *logrus.Entry
}

// NewNeighbor returns a neighbor in state Down. It must be added to an
// interface with AddNeighbor before it can process events.
func NewNeighbor(id common.RouterID, addr netip.Addr, priority uint8) *Neighbor {
	n := &Neighbor{
		state:                  NeighborDown,
		id:                     id,
		addr:                   addr,
		priority:               priority,
		designatedRouter:       netip.IPv4Unspecified(),
		backupDesignatedRouter: netip.IPv4Unspecified(),
	}

	n.inactivityTimer = newTimer(TimerInactivity, func() {
		n.ProcessEvent(NbrInactivityTimer)
	})
	n.updateRetransmissionTimer = newTimer(TimerUpdateRetransmission, n.updateRetransmissionTimerFired)

	return n
}

func (n *Neighbor) State() NeighborState {
	return n.state
}

func (n *Neighbor) Address() netip.Addr {
	return n.addr
}

func (n *Neighbor) ID() common.RouterID {
	return n.id
}

func (n *Neighbor) Priority() uint8 {
	return n.priority
}

func (n *Neighbor) Options() Options {
	return n.options
}

func (n *Neighbor) Interface() *Interface {
	return n.iface
}

// DesignatedRouter is the DR address the neighbor advertised in its last Hello.
func (n *Neighbor) DesignatedRouter() netip.Addr {
	return n.designatedRouter
}

func (n *Neighbor) BackupDesignatedRouter() netip.Addr {
	return n.backupDesignatedRouter
}

func (n *Neighbor) declaresDesignatedRouter() bool {
	return n.designatedRouter == n.addr
}

func (n *Neighbor) declaresBackup() bool {
	return n.backupDesignatedRouter == n.addr
}

func (n *Neighbor) handler() MessageHandler {
	return n.iface.area.MessageHandler()
}

func (n *Neighbor) ProcessEvent(event NeighborEvent) {
	n.log.Debugf("event %s in state %s", event, n.state)

	switch event {
	case NbrKill, NbrLLDown:
		n.reset()
		n.setState(NeighborDown, false)
		return
	case NbrInactivityTimer:
		n.reset()
		n.setState(NeighborDown, true)
		return
	}

	switch n.state {
	case NeighborDown:
		switch event {
		case NbrStart:
			n.iface.SendHelloPacket(n.addr, n.iface.ttl())
			n.restartInactivityTimer()
			n.setState(NeighborAttempt, true)
		case NbrHelloReceived:
			n.restartInactivityTimer()
			n.setState(NeighborInit, true)
		}
	case NeighborAttempt:
		if event == NbrHelloReceived {
			n.restartInactivityTimer()
			n.setState(NeighborInit, true)
		}
	case NeighborInit:
		switch event {
		case NbrHelloReceived:
			n.restartInactivityTimer()
		case NbrTwoWayReceived:
			if n.shouldBecomeAdjacent() {
				n.setState(NeighborExStart, true)
			} else {
				n.setState(NeighborTwoWay, true)
			}
		}
	default:
		n.handleBidirectionalEvent(event)
	}
}

// handleBidirectionalEvent handles events in states TwoWay and above.
func (n *Neighbor) handleBidirectionalEvent(event NeighborEvent) {
	switch event {
	case NbrHelloReceived:
		n.restartInactivityTimer()
	case NbrOneWayReceived:
		n.clearLists()
		n.setState(NeighborInit, true)
	case NbrAdjOK:
		adjacent := n.shouldBecomeAdjacent()
		if n.state == NeighborTwoWay && adjacent {
			n.setState(NeighborExStart, true)
		} else if n.state >= NeighborExStart && !adjacent {
			n.clearLists()
			n.setState(NeighborTwoWay, true)
		}
	case NbrSeqNumberMismatch, NbrBadLSReq:
		if n.state >= NeighborExchange {
			n.clearLists()
			n.setState(NeighborExStart, true)
		}
	case NbrNegotiationDone:
		if n.state == NeighborExStart {
			n.setState(NeighborExchange, true)
		}
	case NbrExchangeDone:
		if n.state == NeighborExchange {
			if len(n.requestList) == 0 {
				n.setState(NeighborFull, true)
			} else {
				n.setState(NeighborLoading, true)
			}
		}
	case NbrLoadingDone:
		if n.state == NeighborLoading {
			n.setState(NeighborFull, true)
		}
	}
}

func (n *Neighbor) shouldBecomeAdjacent() bool {
	i := n.iface
	switch i.Type {
	case InterfacePointToPoint, InterfacePointToMultipoint, InterfaceVirtualLink:
		return true
	}

	self := i.routerID()
	if i.designatedRouter.RouterID == self || i.backupDesignatedRouter.RouterID == self {
		return true
	}

	return i.designatedRouter.RouterID == n.id || i.backupDesignatedRouter.RouterID == n.id
}

// setState installs next. If raiseChange is true and the neighbor moved
// across the 2-Way boundary, the interface gets a NeighborChange event.
func (n *Neighbor) setState(next NeighborState, raiseChange bool) {
	old := n.state
	if old == next {
		return
	}

	n.log.Infof("state %s -> %s", old, next)
	n.state = next

	n.iface.area.NeighborStateChanged(n, old)

	if raiseChange && (old >= NeighborTwoWay) != (next >= NeighborTwoWay) {
		n.iface.ProcessEvent(NeighborChange)
	}
}

func (n *Neighbor) restartInactivityTimer() {
	n.handler().ClearTimer(n.inactivityTimer)
	n.handler().StartTimer(n.inactivityTimer, seconds(n.iface.RouterDeadInterval))
}

func (n *Neighbor) reset() {
	n.clearLists()
	n.handler().ClearTimer(n.inactivityTimer)
}

func (n *Neighbor) clearLists() {
	n.retransmissionList = nil
	n.requestList = nil
	n.transmittedLSAs = nil
	n.ClearUpdateRetransmissionTimer()
}

// AddToRetransmissionList replaces any instance of the same LSA already on
// the list.
func (n *Neighbor) AddToRetransmissionList(l *LSA) {
	key := l.Key()
	for i, r := range n.retransmissionList {
		if r.Key() == key {
			n.retransmissionList[i] = l
			return
		}
	}

	n.retransmissionList = append(n.retransmissionList, l)
}

func (n *Neighbor) RemoveFromRetransmissionList(key LSAKey) {
	for i, r := range n.retransmissionList {
		if r.Key() == key {
			n.retransmissionList = append(n.retransmissionList[:i], n.retransmissionList[i+1:]...)
			return
		}
	}
}

func (n *Neighbor) IsOnRetransmissionList(key LSAKey) bool {
	return n.findOnRetransmissionList(key) != nil
}

func (n *Neighbor) findOnRetransmissionList(key LSAKey) *LSA {
	for _, r := range n.retransmissionList {
		if r.Key() == key {
			return r
		}
	}

	return nil
}

func (n *Neighbor) RetransmissionListLen() int {
	return len(n.retransmissionList)
}

func (n *Neighbor) AddToRequestList(h LSAHeader) {
	key := h.Key()
	for i := range n.requestList {
		if n.requestList[i].Key() == key {
			n.requestList[i] = h
			return
		}
	}

	n.requestList = append(n.requestList, h)
}

func (n *Neighbor) FindOnRequestList(key LSAKey) *LSAHeader {
	for i := range n.requestList {
		if n.requestList[i].Key() == key {
			return &n.requestList[i]
		}
	}

	return nil
}

// RemoveFromRequestList removes key from the request list. Emptying the list
// while Loading generates LoadingDone.
func (n *Neighbor) RemoveFromRequestList(key LSAKey) {
	for i := range n.requestList {
		if n.requestList[i].Key() == key {
			n.requestList = append(n.requestList[:i], n.requestList[i+1:]...)
			break
		}
	}

	if n.state == NeighborLoading && len(n.requestList) == 0 {
		n.ProcessEvent(NbrLoadingDone)
	}
}

func (n *Neighbor) RequestListLen() int {
	return len(n.requestList)
}

func (n *Neighbor) AddToTransmittedLSAList(key LSAKey) {
	n.transmittedLSAs = append(n.transmittedLSAs, transmittedLSA{key: key})
}

func (n *Neighbor) IsOnTransmittedLSAList(key LSAKey) bool {
	for _, t := range n.transmittedLSAs {
		if t.key == key {
			return true
		}
	}

	return false
}

// AgeTransmittedLSAList is called once a second. Entries are dropped once
// they have been on the list for MinLSArrival seconds.
func (n *Neighbor) AgeTransmittedLSAList() {
	for len(n.transmittedLSAs) > 0 && n.transmittedLSAs[0].age == MinLSArrival {
		n.transmittedLSAs = n.transmittedLSAs[1:]
	}

	for i := range n.transmittedLSAs {
		n.transmittedLSAs[i].age++
	}
}

func (n *Neighbor) StartUpdateRetransmissionTimer() {
	n.handler().StartTimer(n.updateRetransmissionTimer, seconds(n.iface.RetransmissionInterval))
	n.updateRetransmissionActive = true
}

func (n *Neighbor) IsUpdateRetransmissionTimerActive() bool {
	return n.updateRetransmissionActive
}

func (n *Neighbor) ClearUpdateRetransmissionTimer() {
	if n.iface != nil {
		n.handler().ClearTimer(n.updateRetransmissionTimer)
	}
	n.updateRetransmissionActive = false
}

func (n *Neighbor) updateRetransmissionTimerFired() {
	if len(n.retransmissionList) == 0 {
		n.updateRetransmissionActive = false
		return
	}

	n.RetransmitUpdatePacket()
	n.StartUpdateRetransmissionTimer()
}

// RetransmitUpdatePacket sends as many LSAs from the retransmission list as
// fit in a single packet directly to the neighbor.
func (n *Neighbor) RetransmitUpdatePacket() {
	i := n.iface
	update := &LinkStateUpdate{Header: i.packetHeader()}

	limit := i.maxPacketSize() - ipv4MaxHeaderLen
	size := headerLen + 4
	for _, l := range n.retransmissionList {
		lsaSize := lsaHeaderLen + len(l.Body)
		if len(update.LSAs) > 0 && size+lsaSize > limit {
			break
		}

		update.LSAs = append(update.LSAs, i.agedForTransmission(l))
		size += lsaSize
	}

	if len(update.LSAs) == 0 {
		return
	}

	n.log.Debugf("retransmitting %d LSAs", len(update.LSAs))
	n.handler().SendPacket(update, n.addr, i, i.ttl())
}
