package ospf

import (
	"net/netip"
	"time"

	"github.com/davidbalbert/ospfd/common"
)

type TimerKind int

const (
	TimerHello TimerKind = iota
	TimerPoll
	TimerWait
	TimerAcknowledgement
	TimerInactivity
	TimerUpdateRetransmission
	TimerDatabaseAge
)

func (k TimerKind) String() string {
	switch k {
	case TimerHello:
		return "Hello"
	case TimerPoll:
		return "Poll"
	case TimerWait:
		return "Wait"
	case TimerAcknowledgement:
		return "Acknowledgement"
	case TimerInactivity:
		return "Inactivity"
	case TimerUpdateRetransmission:
		return "UpdateRetransmission"
	case TimerDatabaseAge:
		return "DatabaseAge"
	default:
		return "Unknown"
	}
}

// A Timer is a one-shot timer owned by an interface, a neighbor or the
// router. Scheduling is done by a MessageHandler; when the timer expires the
// handler calls Fire from the router's event loop.
type Timer struct {
	Kind TimerKind
	fire func()
}

func newTimer(kind TimerKind, fire func()) *Timer {
	return &Timer{Kind: kind, fire: fire}
}

func (t *Timer) Fire() {
	t.fire()
}

// MessageHandler schedules timers and transmits packets on behalf of the
// protocol. All calls are made from the router's event loop. Clearing a timer
// that isn't running is a no-op, and starting a running timer reschedules it.
type MessageHandler interface {
	StartTimer(t *Timer, d time.Duration)
	ClearTimer(t *Timer)
	SendPacket(p Packet, dst netip.Addr, iface *Interface, ttl uint8)
}

// AreaContext is what an Interface needs to know about the area and router
// it belongs to.
type AreaContext interface {
	ExternalRoutingCapability() bool
	RouterID() common.RouterID
	AreaID() common.AreaID
	MessageHandler() MessageHandler
	InterfaceStateChanged(iface *Interface, old InterfaceState)
	NeighborStateChanged(n *Neighbor, old NeighborState)
}
