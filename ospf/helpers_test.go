package ospf

import (
	"net/netip"
	"testing"
	"time"

	"github.com/davidbalbert/ospfd/common"
)

var (
	selfID   = mustRouterID("1.1.1.1")
	selfAddr = netip.MustParsePrefix("10.0.0.1/24")
)

func mustRouterID(s string) common.RouterID {
	id, err := common.ParseID(s)
	if err != nil {
		panic(err)
	}
	return common.RouterID(id)
}

type sentPacket struct {
	packet Packet
	dst    netip.Addr
	iface  *Interface
	ttl    uint8
}

type fakeHandler struct {
	timers map[*Timer]time.Duration
	sent   []sentPacket
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{timers: make(map[*Timer]time.Duration)}
}

func (h *fakeHandler) StartTimer(t *Timer, d time.Duration) {
	h.timers[t] = d
}

func (h *fakeHandler) ClearTimer(t *Timer) {
	delete(h.timers, t)
}

func (h *fakeHandler) SendPacket(p Packet, dst netip.Addr, iface *Interface, ttl uint8) {
	h.sent = append(h.sent, sentPacket{packet: p, dst: dst, iface: iface, ttl: ttl})
}

func (h *fakeHandler) running(t *Timer) (time.Duration, bool) {
	d, ok := h.timers[t]
	return d, ok
}

func (h *fakeHandler) sentTo(dst netip.Addr) []sentPacket {
	var out []sentPacket
	for _, s := range h.sent {
		if s.dst == dst {
			out = append(out, s)
		}
	}
	return out
}

type neighborChange struct {
	n   *Neighbor
	old NeighborState
}

type fakeArea struct {
	id       common.AreaID
	routerID common.RouterID
	external bool
	handler  *fakeHandler

	ifaceChanges    []InterfaceState
	neighborChanges []neighborChange
}

func (a *fakeArea) ExternalRoutingCapability() bool { return a.external }
func (a *fakeArea) RouterID() common.RouterID       { return a.routerID }
func (a *fakeArea) AreaID() common.AreaID           { return a.id }
func (a *fakeArea) MessageHandler() MessageHandler  { return a.handler }

func (a *fakeArea) InterfaceStateChanged(iface *Interface, old InterfaceState) {
	a.ifaceChanges = append(a.ifaceChanges, iface.State())
}

func (a *fakeArea) NeighborStateChanged(n *Neighbor, old NeighborState) {
	a.neighborChanges = append(a.neighborChanges, neighborChange{n: n, old: old})
}

func newTestInterface(t *testing.T, typ InterfaceType, priority uint8) (*Interface, *fakeArea) {
	t.Helper()

	area := &fakeArea{
		id:       common.BackboneAreaID,
		routerID: selfID,
		external: true,
		handler:  newFakeHandler(),
	}

	i := NewInterface(area, "eth0", 2, typ, selfAddr)
	i.RouterPriority = priority

	return i, area
}

// addNeighbor attaches a neighbor already in state.
func addNeighbor(i *Interface, id string, addr string, priority uint8, state NeighborState) *Neighbor {
	n := NewNeighbor(mustRouterID(id), netip.MustParseAddr(addr), priority)
	i.AddNeighbor(n)
	n.state = state
	return n
}

func testLSA(typ LSType, id string, adv string, seq int32) *LSA {
	l := &LSA{
		LSAHeader: LSAHeader{
			Options:           OptionE,
			Type:              typ,
			LinkStateID:       netip.MustParseAddr(id),
			AdvertisingRouter: mustRouterID(adv),
			SequenceNumber:    seq,
		},
		Body: []byte{0, 0, 0, 1, 10, 0, 0, 0, 255, 255, 255, 0, 3, 0, 0, 10},
	}
	l.UpdateChecksum()
	return l
}
