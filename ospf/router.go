package ospf

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/davidbalbert/ospfd/common"
	"github.com/davidbalbert/ospfd/events"
	"github.com/davidbalbert/ospfd/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// A Router owns the areas, their link state databases and the AS-external
// database. It is not safe for concurrent use: every method, and every timer
// it schedules, must run on the same event loop.
type Router struct {
	id      common.RouterID
	handler MessageHandler

	areas      map[common.AreaID]*Area
	ifaceAreas map[*Interface]*Area
	asExternal lsdb

	clock    func() time.Time
	ageTimer *Timer
	events   func(events.Event)

	log *logrus.Entry
}

func NewRouter(id common.RouterID, handler MessageHandler) *Router {
	r := &Router{
		id:         id,
		handler:    handler,
		areas:      make(map[common.AreaID]*Area),
		ifaceAreas: make(map[*Interface]*Area),
		asExternal: newLSDB(),
		clock:      time.Now,
		log:        logger.WithFields(logrus.Fields{"router": id}),
	}

	r.ageTimer = newTimer(TimerDatabaseAge, r.ageDatabase)

	return r
}

func (r *Router) ID() common.RouterID {
	return r.id
}

// OnEvent registers fn to be called, on the event loop, for every state change
// and LSA installation.
func (r *Router) OnEvent(fn func(events.Event)) {
	r.events = fn
}

func (r *Router) publish(e events.Event) {
	if r.events != nil {
		r.events(e)
	}
}

func (r *Router) AddArea(id common.AreaID, stub bool) (*Area, error) {
	if _, ok := r.areas[id]; ok {
		return nil, fmt.Errorf("ospf: duplicate area %s", id)
	}

	if stub && id.IsBackbone() {
		return nil, fmt.Errorf("ospf: the backbone can't be a stub area")
	}

	a := &Area{
		id:     id,
		stub:   stub,
		router: r,
		lsdb:   newLSDB(),
	}
	r.areas[id] = a

	return a, nil
}

func (r *Router) Area(id common.AreaID) *Area {
	return r.areas[id]
}

// Areas returns the areas sorted by ID.
func (r *Router) Areas() []*Area {
	ids := maps.Keys(r.areas)
	slices.Sort(ids)

	areas := make([]*Area, 0, len(ids))
	for _, id := range ids {
		areas = append(areas, r.areas[id])
	}

	return areas
}

// InterfaceArea returns the area i belongs to, or nil if i isn't one of ours.
func (r *Router) InterfaceArea(i *Interface) *Area {
	return r.ifaceAreas[i]
}

func (r *Router) interfaces() []*Interface {
	var out []*Interface
	for _, a := range r.Areas() {
		out = append(out, a.interfaces...)
	}

	return out
}

// Start begins ageing the databases.
func (r *Router) Start() {
	r.handler.StartTimer(r.ageTimer, time.Second)
}

// Stop brings every interface down and cancels all timers.
func (r *Router) Stop() {
	r.handler.ClearTimer(r.ageTimer)

	for _, i := range r.interfaces() {
		i.ProcessEvent(InterfaceDown)
		i.Close()
	}
}

// ReceivePacket dispatches a decoded packet that arrived on iface from src.
func (r *Router) ReceivePacket(p Packet, src netip.Addr, iface *Interface) {
	h := p.PacketHeader()
	if h.RouterID == r.id {
		return
	}

	if h.AreaID != iface.AreaID() {
		iface.log.Debugf("dropping %s from %s: wrong area %s", p.Type(), src, h.AreaID)
		return
	}

	if iface.Mode == ModeNoOSPF || iface.state == StateDown {
		return
	}

	switch p := p.(type) {
	case *Hello:
		iface.HandleHello(p, src)
	case *LinkStateUpdate:
		r.handleUpdate(p, src, iface)
	case *LinkStateAcknowledgement:
		iface.HandleLSAcknowledgement(p, src)
	default:
		iface.log.Debugf("ignoring %s from %s", p.Type(), src)
	}
}

func (r *Router) dbFor(a *Area, t LSType) lsdb {
	if t == LSTypeASExternal {
		return r.asExternal
	}

	return a.lsdb
}

// floodScope returns the interfaces an LSA of type t in area a is flooded
// over. AS-external LSAs go everywhere.
func (r *Router) floodScope(a *Area, t LSType) []*Interface {
	if t == LSTypeASExternal || a == nil {
		return r.interfaces()
	}

	return a.interfaces
}

// flood sends lsa out every interface in its flooding scope. It reports
// whether the LSA went back out intf.
func (r *Router) flood(a *Area, lsa *LSA, intf *Interface, from *Neighbor) bool {
	floodedBack := false
	for _, i := range r.floodScope(a, lsa.Type) {
		if i.FloodLSA(lsa, intf, from) {
			floodedBack = true
		}
	}

	return floodedBack
}

func (r *Router) install(a *Area, lsa *LSA, now time.Time) {
	r.dbFor(a, lsa.Type).install(lsa, now)

	area := ""
	if lsa.Type != LSTypeASExternal {
		area = a.id.String()
	}

	r.publish(events.Event{
		Type: events.LSAInstalled,
		Data: events.LSAInstall{Area: area, LSA: lsa.LSAHeader.String()},
	})
}

func (r *Router) anyNeighborExchanging() bool {
	for _, i := range r.interfaces() {
		if i.HasAnyNeighborInStates(NeighborExchange, NeighborLoading) {
			return true
		}
	}

	return false
}

func (r *Router) removeFromRetransmissionLists(a *Area, key LSAKey) {
	for _, i := range r.floodScope(a, key.Type) {
		i.RemoveFromAllRetransmissionLists(key)
	}
}

func (r *Router) onAnyRetransmissionList(a *Area, key LSAKey) bool {
	for _, i := range r.floodScope(a, key.Type) {
		if i.IsOnAnyRetransmissionList(key) {
			return true
		}
	}

	return false
}

// handleUpdate processes a Link State Update (RFC 2328 13).
func (r *Router) handleUpdate(u *LinkStateUpdate, src netip.Addr, iface *Interface) {
	n := iface.findNeighbor(u.RouterID, src)
	if n == nil || n.state < NeighborExchange {
		iface.log.Debugf("dropping update from %s: no adjacency", src)
		return
	}

	a := r.ifaceAreas[iface]
	if a == nil {
		return
	}

	for _, lsa := range u.LSAs {
		if !r.receiveLSA(a, iface, n, lsa) {
			return
		}
	}
}

// receiveLSA handles a single LSA from an update. It returns false if the
// rest of the update should be discarded.
func (r *Router) receiveLSA(a *Area, iface *Interface, n *Neighbor, lsa *LSA) bool {
	now := r.clock()
	key := lsa.Key()
	log := n.log.WithField("lsa", key)

	if !lsa.IsChecksumValid() {
		log.Debug("bad LSA checksum")
		return true
	}

	if !lsa.Type.isKnown() {
		log.Debug("unknown LSA type")
		return true
	}

	if lsa.Type == LSTypeASExternal && a.stub {
		log.Debug("AS-external LSA in stub area")
		return true
	}

	db := r.dbFor(a, lsa.Type)
	current := db.get(key, now)

	if lsa.Age == MaxAge && current == nil && !r.anyNeighborExchanging() {
		iface.SendLSAcknowledgement(lsa.LSAHeader, n.addr)
		return true
	}

	if current == nil || lsa.Compare(&current.LSAHeader) > 0 {
		if current != nil {
			if at, ok := db.installedAt(key); ok && now.Sub(at) < seconds(MinLSArrival) {
				log.Debug("arrived within MinLSArrival")
				return true
			}
		}

		r.removeFromRetransmissionLists(a, key)
		floodedBack := r.flood(a, lsa, iface, n)
		r.install(a, lsa, now)

		if !floodedBack {
			if iface.state != StateBackup || n.id == iface.designatedRouter.RouterID {
				iface.AddDelayedAcknowledgement(lsa.LSAHeader)
			}
		}

		if lsa.AdvertisingRouter == r.id {
			r.selfOriginatedReceived(a, lsa)
		}

		return true
	}

	if n.FindOnRequestList(key) != nil {
		n.ProcessEvent(NbrBadLSReq)
		return false
	}

	if lsa.Compare(&current.LSAHeader) == 0 {
		if n.IsOnRetransmissionList(key) {
			// implied acknowledgement
			n.RemoveFromRetransmissionList(key)
			if iface.state == StateBackup && n.id == iface.designatedRouter.RouterID {
				iface.AddDelayedAcknowledgement(lsa.LSAHeader)
			}
		} else {
			iface.SendLSAcknowledgement(lsa.LSAHeader, n.addr)
		}

		return true
	}

	// Our copy is newer.
	if current.Age == MaxAge && current.SequenceNumber == MaxSequenceNumber {
		return true
	}

	if !n.IsOnTransmittedLSAList(key) {
		update := &LinkStateUpdate{
			Header: iface.packetHeader(),
			LSAs:   []*LSA{iface.agedForTransmission(current)},
		}
		r.handler.SendPacket(update, n.addr, iface, iface.ttl())
		n.AddToTransmittedLSAList(key)
	}

	return true
}

// selfOriginatedReceived handles a newer instance of one of our own LSAs
// (RFC 2328 13.4). Router-LSAs are re-originated with a higher sequence
// number, anything else is flushed.
func (r *Router) selfOriginatedReceived(a *Area, lsa *LSA) {
	if lsa.Type == LSTypeRouter && lsa.Age != MaxAge {
		a.lastOriginated = time.Time{}
		r.originateRouterLSA(a)
		return
	}

	if lsa.Age != MaxAge {
		r.flush(a, lsa)
	}
}

// flush prematurely ages lsa and floods it.
func (r *Router) flush(a *Area, lsa *LSA) {
	l := lsa.Clone()
	l.Age = MaxAge

	r.removeFromRetransmissionLists(a, l.Key())
	r.install(a, l, r.clock())
	r.flood(a, l, nil, nil)
	r.dbFor(a, l.Type)[l.Key()].flushed = true
}

func (r *Router) activeAreaCount() int {
	count := 0
	for _, a := range r.areas {
		if a.isActive() {
			count++
		}
	}

	return count
}

// originateRouterLSA builds, installs and floods a new instance of our
// router-LSA for a (RFC 2328 12.4). Instances are at least MinLSInterval
// apart; a deferred origination is retried by the age timer.
func (r *Router) originateRouterLSA(a *Area) {
	now := r.clock()

	if !a.lastOriginated.IsZero() && now.Sub(a.lastOriginated) < seconds(MinLSInterval) {
		a.originationPending = true
		return
	}
	a.originationPending = false

	var links []routerLink
	for _, i := range a.interfaces {
		links = append(links, i.routerLinks()...)
	}

	var flags uint8
	if r.activeAreaCount() > 1 {
		flags |= routerFlagB
	}

	key := LSAKey{Type: LSTypeRouter, LinkStateID: r.id.Addr(), AdvertisingRouter: r.id}

	seq := int32(InitialSequenceNumber)
	if current := a.lsdb.get(key, now); current != nil {
		if current.SequenceNumber == MaxSequenceNumber {
			r.flush(a, current)
		} else {
			seq = current.SequenceNumber + 1
		}
	}

	var options Options
	if !a.stub {
		options |= OptionE
	}

	lsa := &LSA{
		LSAHeader: LSAHeader{
			Options:           options,
			Type:              LSTypeRouter,
			LinkStateID:       r.id.Addr(),
			AdvertisingRouter: r.id,
			SequenceNumber:    seq,
		},
		Body: encodeRouterLSABody(flags, links),
	}
	lsa.UpdateChecksum()

	r.log.WithField("area", a.id).Debugf("originating router-LSA seq 0x%08x with %d links", uint32(seq), len(links))

	a.lastOriginated = now
	r.removeFromRetransmissionLists(a, key)
	r.install(a, lsa, now)
	r.flood(a, lsa, nil, nil)
}

// ageDatabase runs once a second. It ages the transmitted-LSA lists, flushes
// and removes MaxAge LSAs, refreshes our own LSAs and retries deferred
// originations.
func (r *Router) ageDatabase() {
	now := r.clock()

	for _, i := range r.interfaces() {
		i.AgeTransmittedLSALists()
	}

	for _, a := range r.Areas() {
		r.ageLSDB(a, a.lsdb, now)
	}
	r.ageLSDB(nil, r.asExternal, now)

	for _, a := range r.Areas() {
		if a.originationPending {
			r.originateRouterLSA(a)
		}
	}

	r.handler.StartTimer(r.ageTimer, time.Second)
}

func (r *Router) ageLSDB(a *Area, db lsdb, now time.Time) {
	for _, key := range db.keys() {
		e := db[key]
		age := e.age(now)

		if age < MaxAge {
			if a != nil && key.Type == LSTypeRouter && key.AdvertisingRouter == r.id && age >= LSRefreshTime {
				r.originateRouterLSA(a)
			}
			continue
		}

		if !e.flushed {
			e.flushed = true
			r.flood(a, e.current(now), nil, nil)
			continue
		}

		if !r.onAnyRetransmissionList(a, key) && !r.anyNeighborExchanging() {
			r.log.Debugf("removing MaxAge LSA %s", key)
			db.delete(key)
		}
	}
}
