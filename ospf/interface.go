package ospf

import (
	"fmt"
	"net/netip"

	"github.com/davidbalbert/ospfd/common"
	"github.com/davidbalbert/ospfd/logger"
	"github.com/sirupsen/logrus"
)

// DesignatedRouterID identifies a DR or BDR by both its Router ID and the
// address of its interface on the network.
type DesignatedRouterID struct {
	RouterID common.RouterID
	Address  netip.Addr
}

var NullDesignatedRouterID = DesignatedRouterID{RouterID: 0, Address: netip.IPv4Unspecified()}

func (d DesignatedRouterID) IsNull() bool {
	return d.RouterID == 0 && (!d.Address.IsValid() || d.Address.IsUnspecified())
}

func (d DesignatedRouterID) String() string {
	if d.IsNull() {
		return "none"
	}
	return fmt.Sprintf("%s (%s)", d.RouterID, d.Address)
}

type Interface struct {
	Name          string
	IfIndex       int
	Type          InterfaceType
	Mode          InterfaceMode
	AddressRange  netip.Prefix // interface address and mask
	TransitAreaID common.AreaID

	HelloInterval          uint16
	PollInterval           uint16
	RouterDeadInterval     uint32
	TransmissionDelay      uint16
	RetransmissionInterval uint16
	AcknowledgementDelay   uint16

	RouterPriority uint8
	OutputCost     uint16
	MTU            int

	AuthenticationType AuthenticationType
	AuthenticationKey  [8]byte

	state                  InterfaceState
	designatedRouter       DesignatedRouterID
	backupDesignatedRouter DesignatedRouterID

	neighbors       []*Neighbor
	neighborsByID   map[common.RouterID]*Neighbor
	neighborsByAddr map[netip.Addr]*Neighbor

	delayedAcks     map[netip.Addr][]LSAHeader
	delayedAckOrder []netip.Addr

	area AreaContext

	helloTimer *Timer
	pollTimer  *Timer
	waitTimer  *Timer
	ackTimer   *Timer

	log *logrus.Entry
}

func NewInterface(area AreaContext, name string, ifIndex int, typ InterfaceType, addr netip.Prefix) *Interface {
	i := &Interface{
		Name:         name,
		IfIndex:      ifIndex,
		Type:         typ,
		Mode:         ModeActive,
		AddressRange: addr,

		HelloInterval:          10,
		PollInterval:           120,
		RouterDeadInterval:     40,
		TransmissionDelay:      1,
		RetransmissionInterval: 5,
		AcknowledgementDelay:   1,

		RouterPriority: 0,
		OutputCost:     1,
		MTU:            1500,

		state:                  StateDown,
		designatedRouter:       NullDesignatedRouterID,
		backupDesignatedRouter: NullDesignatedRouterID,

		neighborsByID:   make(map[common.RouterID]*Neighbor),
		neighborsByAddr: make(map[netip.Addr]*Neighbor),
		delayedAcks:     make(map[netip.Addr][]LSAHeader),

		area: area,
	}

	i.helloTimer = newTimer(TimerHello, func() { i.ProcessEvent(HelloTimer) })
	i.pollTimer = newTimer(TimerPoll, i.poll)
	i.waitTimer = newTimer(TimerWait, func() { i.ProcessEvent(WaitTimer) })
	i.ackTimer = newTimer(TimerAcknowledgement, func() { i.ProcessEvent(AcknowledgementTimer) })

	i.log = logger.WithFields(logrus.Fields{
		"iface": name,
		"area":  area.AreaID(),
		"type":  typ,
	})

	return i
}

func (i *Interface) State() InterfaceState {
	return i.state
}

func (i *Interface) AreaID() common.AreaID {
	return i.area.AreaID()
}

func (i *Interface) Address() netip.Addr {
	return i.AddressRange.Addr()
}

func (i *Interface) DesignatedRouter() DesignatedRouterID {
	return i.designatedRouter
}

func (i *Interface) BackupDesignatedRouter() DesignatedRouterID {
	return i.backupDesignatedRouter
}

func (i *Interface) routerID() common.RouterID {
	return i.area.RouterID()
}

func (i *Interface) handler() MessageHandler {
	return i.area.MessageHandler()
}

func (i *Interface) ttl() uint8 {
	if i.Type == InterfaceVirtualLink {
		return VirtualLinkTTL
	}
	return 1
}

// maxPacketSize is the largest IP datagram we'll send on this interface.
func (i *Interface) maxPacketSize() int {
	if ipv4MaxHeaderLen+headerLen+lsaHeaderLen > i.MTU {
		return ipv4DatagramLen
	}
	return i.MTU
}

func (i *Interface) packetHeader() Header {
	return Header{
		RouterID:           i.routerID(),
		AreaID:             i.area.AreaID(),
		AuthenticationType: i.AuthenticationType,
		Authentication:     i.AuthenticationKey,
	}
}

// ProcessEvent runs event through the state machine and applies the
// resulting actions and state change.
func (i *Interface) ProcessEvent(event InterfaceEvent) {
	r := transition(i.state, event, fsmInput{Type: i.Type, Priority: i.RouterPriority})
	i.log.Debugf("event %s in state %s", event, i.state)

	next := r.Next
	for _, a := range r.Actions {
		switch a {
		case actionReset:
			i.Reset()
		case actionStartHelloTimer:
			i.handler().StartTimer(i.helloTimer, helloInitialDelay)
			if i.Type == InterfaceNBMA {
				i.handler().StartTimer(i.pollTimer, helloInitialDelay)
			}
		case actionStartWaitTimer:
			i.handler().StartTimer(i.waitTimer, seconds(i.RouterDeadInterval))
		case actionStartAckTimer:
			i.handler().StartTimer(i.ackTimer, seconds(i.AcknowledgementDelay))
		case actionStartNeighbors:
			for _, n := range i.neighbors {
				if n.Priority() > 0 {
					n.ProcessEvent(NbrStart)
				}
			}
		case actionSendHello:
			i.sendHellos()
			i.handler().StartTimer(i.helloTimer, seconds(i.HelloInterval))
		case actionElect:
			next = i.calculateDesignatedRouter()
		case actionSendDelayedAcks:
			i.SendDelayedAcknowledgements()
		default:
			panic(fmt.Sprintf("ospf: unknown interface action %s", a))
		}
	}

	i.changeState(next)
}

func (i *Interface) changeState(next InterfaceState) {
	old := i.state
	if old == next {
		return
	}

	i.state = next
	i.log.Infof("state %s -> %s", old, next)
	i.area.InterfaceStateChanged(i, old)
}

// Reset stops all interface timers, forgets the DR and BDR, and kills every
// neighbor. Neighbors stay on the interface in state Down.
func (i *Interface) Reset() {
	i.handler().ClearTimer(i.helloTimer)
	i.handler().ClearTimer(i.pollTimer)
	i.handler().ClearTimer(i.waitTimer)
	i.handler().ClearTimer(i.ackTimer)

	i.designatedRouter = NullDesignatedRouterID
	i.backupDesignatedRouter = NullDesignatedRouterID

	for _, n := range i.neighbors {
		n.ProcessEvent(NbrKill)
	}
}

// Close cancels every timer owned by the interface and its neighbors.
func (i *Interface) Close() {
	i.handler().ClearTimer(i.helloTimer)
	i.handler().ClearTimer(i.pollTimer)
	i.handler().ClearTimer(i.waitTimer)
	i.handler().ClearTimer(i.ackTimer)

	for _, n := range i.neighbors {
		i.handler().ClearTimer(n.inactivityTimer)
		n.ClearUpdateRetransmissionTimer()
	}
}

func (i *Interface) AddNeighbor(n *Neighbor) {
	n.iface = i
	n.log = i.log.WithField("neighbor", n.id)

	i.neighbors = append(i.neighbors, n)
	if n.id != 0 {
		i.neighborsByID[n.id] = n
	}
	i.neighborsByAddr[n.addr] = n
}

// reindexNeighbor updates the indices after a neighbor's Router ID or
// address changed.
func (i *Interface) reindexNeighbor(n *Neighbor, id common.RouterID, addr netip.Addr) {
	if n.id != 0 && i.neighborsByID[n.id] == n {
		delete(i.neighborsByID, n.id)
	}
	if i.neighborsByAddr[n.addr] == n {
		delete(i.neighborsByAddr, n.addr)
	}

	n.id = id
	n.addr = addr
	n.log = i.log.WithField("neighbor", id)

	// Configured neighbors have no Router ID until their first Hello.
	if id != 0 {
		i.neighborsByID[id] = n
	}
	i.neighborsByAddr[addr] = n
}

func (i *Interface) NeighborByID(id common.RouterID) *Neighbor {
	return i.neighborsByID[id]
}

func (i *Interface) NeighborByAddress(addr netip.Addr) *Neighbor {
	return i.neighborsByAddr[addr]
}

func (i *Interface) NeighborCount() int {
	return len(i.neighbors)
}

func (i *Interface) Neighbor(idx int) *Neighbor {
	return i.neighbors[idx]
}

func (i *Interface) Neighbors() []*Neighbor {
	return i.neighbors
}

func (i *Interface) HasAnyNeighborInStates(states ...NeighborState) bool {
	for _, n := range i.neighbors {
		for _, s := range states {
			if n.state == s {
				return true
			}
		}
	}

	return false
}

func (i *Interface) RemoveFromAllRetransmissionLists(key LSAKey) {
	for _, n := range i.neighbors {
		n.RemoveFromRetransmissionList(key)
	}
}

func (i *Interface) IsOnAnyRetransmissionList(key LSAKey) bool {
	for _, n := range i.neighbors {
		if n.IsOnRetransmissionList(key) {
			return true
		}
	}

	return false
}

func (i *Interface) AgeTransmittedLSALists() {
	for _, n := range i.neighbors {
		n.AgeTransmittedLSAList()
	}
}
