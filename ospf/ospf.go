package ospf

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/davidbalbert/ospfd/config"
	"github.com/davidbalbert/ospfd/events"
	"github.com/davidbalbert/ospfd/logger"
	"github.com/davidbalbert/ospfd/services"
	"github.com/davidbalbert/ospfd/sync"
	"github.com/davidbalbert/ospfd/system"
	"github.com/davidbalbert/ospfd/transport"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type packetConn interface {
	ReadPacket() (transport.Packet, error)
	WriteTo(payload []byte, dst netip.Addr, ifIndex int, ttl int) error
	JoinGroup(ifIndex int, group netip.Addr) error
	LeaveGroup(ifIndex int, group netip.Addr) error
	Close() error
}

type interfaceMonitor interface {
	LastChange() ([]system.Interface, int64)
	AwaitChange(ctx context.Context, seq int64) ([]system.Interface, int64)
}

type interfaceID struct {
	name   string
	prefix netip.Prefix
}

type membership struct {
	ifIndex int
	group   netip.Addr
}

type scheduledTimer struct {
	t *time.Timer
}

// An Instance runs a Router against the real world: it reads the system's
// interfaces, moves packets between the Router and a raw socket, and drives
// the Router's timers. Everything that touches the Router happens on a
// single goroutine, the loop.
type Instance struct {
	config *config.OSPFConfig

	getMonitor func() (interfaceMonitor, error)
	listen     func(ctx context.Context) (packetConn, error)

	router     *Router
	conn       packetConn
	demux      *transport.Demux[*Interface]
	interfaces map[interfaceID]*Interface
	groups     map[membership]bool
	timers     map[*Timer]*scheduledTimer

	loop   chan func()
	done   chan struct{}
	events *sync.QueuedNotifier[events.Event]

	log *logrus.Entry
}

func NewInstance(serviceManager *services.ServiceManager, conf any) (services.Runner, error) {
	if conf == nil {
		return nil, fmt.Errorf("no ospf config provided")
	}

	ospfConf, ok := conf.(*config.OSPFConfig)
	if !ok {
		return nil, fmt.Errorf("expected *config.OSPFConfig, but got %T", conf)
	}

	// The service manager holds its state while building services, so the
	// monitor has to be looked up once we're running.
	getMonitor := func() (interfaceMonitor, error) {
		s, err := serviceManager.Get(config.ServiceInterfaceMonitor)
		if err != nil {
			return nil, fmt.Errorf("failed to get interface monitor service: %w", err)
		}

		m, ok := s.(*system.InterfaceMonitor)
		if !ok {
			return nil, fmt.Errorf("expected *system.InterfaceMonitor but got %T", s)
		}

		return m, nil
	}

	listen := func(ctx context.Context) (packetConn, error) {
		return transport.Listen(ctx)
	}

	return newInstance(ospfConf, getMonitor, listen), nil
}

func newInstance(conf *config.OSPFConfig, getMonitor func() (interfaceMonitor, error), listen func(context.Context) (packetConn, error)) *Instance {
	return &Instance{
		config:     conf,
		getMonitor: getMonitor,
		listen:     listen,
		demux:      transport.NewDemux[*Interface](),
		interfaces: make(map[interfaceID]*Interface),
		groups:     make(map[membership]bool),
		timers:     make(map[*Timer]*scheduledTimer),
		loop:       make(chan func()),
		done:       make(chan struct{}),
		events:     sync.NewQueuedNotifier[events.Event](),
		log:        logger.WithFields(logrus.Fields{"router": conf.RouterID}),
	}
}

// Events delivers every state change and LSA installation. Register before
// Run to see the first events.
func (i *Instance) Events() *sync.QueuedNotifier[events.Event] {
	return i.events
}

func (i *Instance) Run(ctx context.Context) error {
	if err := logger.Configure(i.config.LogLevel, i.config.LogFormat); err != nil {
		return err
	}

	monitor, err := i.getMonitor()
	if err != nil {
		return err
	}

	conn, err := i.listen(ctx)
	if err != nil {
		return err
	}
	i.conn = conn

	i.router = NewRouter(i.config.RouterID, i)
	i.router.OnEvent(i.publish)

	for id, areaConf := range i.config.Areas {
		if _, err := i.router.AddArea(id, areaConf.Stub); err != nil {
			conn.Close()
			return err
		}
	}

	for name, conf := range i.config.InterfaceConfigs() {
		if conf.NetworkType == config.NetworkVirtual {
			i.log.Warnf("virtual link %s: not started, virtual links need a routing table", name)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(i.done)
		return i.runLoop(ctx)
	})

	g.Go(func() error {
		for {
			p, err := conn.ReadPacket()
			if err != nil {
				if ctx.Err() != nil || transport.IsClosed(err) {
					return nil
				}
				return fmt.Errorf("ospf: read: %w", err)
			}

			i.post(func() { i.receive(p) })
		}
	})

	g.Go(func() error {
		interfaces, seq := monitor.LastChange()
		for {
			snapshot := interfaces
			i.post(func() { i.updateInterfaces(snapshot) })

			interfaces, seq = monitor.AwaitChange(ctx, seq)
			if ctx.Err() != nil {
				return nil
			}
		}
	})

	return g.Wait()
}

func (i *Instance) runLoop(ctx context.Context) error {
	i.router.Start()
	i.log.Infof("ospf started")

	for {
		select {
		case <-ctx.Done():
			i.router.Stop()
			i.syncGroups()
			i.log.Infof("ospf stopped")
			return i.conn.Close()
		case fn := <-i.loop:
			fn()
			i.syncGroups()
		}
	}
}

// post runs fn on the loop. It is dropped if the loop has exited.
func (i *Instance) post(fn func()) {
	select {
	case i.loop <- fn:
	case <-i.done:
	}
}

func (i *Instance) publish(e events.Event) {
	i.events.NotifyChange(e)
}

func (i *Instance) StartTimer(t *Timer, d time.Duration) {
	i.ClearTimer(t)

	st := &scheduledTimer{}
	st.t = time.AfterFunc(d, func() {
		i.post(func() {
			// Stale if the timer was cleared or restarted after we fired.
			if i.timers[t] != st {
				return
			}
			delete(i.timers, t)
			t.Fire()
		})
	})

	i.timers[t] = st
}

func (i *Instance) ClearTimer(t *Timer) {
	st, ok := i.timers[t]
	if !ok {
		return
	}

	st.t.Stop()
	delete(i.timers, t)
}

func (i *Instance) SendPacket(p Packet, dst netip.Addr, iface *Interface, ttl uint8) {
	b, err := Encode(p)
	if err != nil {
		iface.log.Warnf("failed to encode %s: %v", p.Type(), err)
		return
	}

	ifIndex := iface.IfIndex
	if iface.Type == InterfaceVirtualLink {
		ifIndex = 0
	}

	if err := i.conn.WriteTo(b, dst, ifIndex, int(ttl)); err != nil {
		iface.log.Warnf("failed to send %s to %s: %v", p.Type(), dst, err)
		return
	}

	iface.log.Debugf("sent %s to %s", p.Type(), dst)
}

func (i *Instance) receive(pkt transport.Packet) {
	iface, ok := i.demux.Lookup(pkt.IfIndex, pkt.Src)
	if !ok {
		return
	}

	// Only the DR and BDR listen to AllDRouters.
	if pkt.Dst == AllDRouters && iface.State() != StateDesignatedRouter && iface.State() != StateBackup {
		return
	}

	p, err := Decode(pkt.Payload)
	if err != nil {
		iface.log.Debugf("dropping packet from %s: %v", pkt.Src, err)
		return
	}

	iface.log.Debugf("received %s from %s", p.Type(), pkt.Src)

	i.router.ReceivePacket(p, pkt.Src, iface)
}

// updateInterfaces reconciles our interfaces with the system's: interfaces
// whose address or link went away are removed, new configured addresses
// get an interface, and link and loopback changes become interface events.
func (i *Instance) updateInterfaces(netifs []system.Interface) {
	byName := make(map[string]system.Interface)
	for _, netif := range netifs {
		byName[netif.Name] = netif
	}

	for id, iface := range i.interfaces {
		netif, ok := byName[id.name]
		if !ok || netif.Index != iface.IfIndex || !hasPrefix(netif, id.prefix) {
			i.removeInterface(id, iface)
			continue
		}

		syncInterfaceState(iface, netif)
	}

	for name, conf := range i.config.InterfaceConfigs() {
		netif, ok := byName[name]
		if !ok || conf.NetworkType == config.NetworkVirtual {
			continue
		}

		for _, prefix := range netif.Prefixes {
			id := interfaceID{name: name, prefix: prefix}
			if _, ok := i.interfaces[id]; ok {
				continue
			}

			i.addInterface(id, conf, netif)
		}
	}
}

func (i *Instance) addInterface(id interfaceID, conf config.OSPFInterfaceConfig, netif system.Interface) {
	a := i.router.Area(conf.AreaID)
	if a == nil {
		i.log.Warnf("interface %s: unknown area %s", id.name, conf.AreaID)
		return
	}

	typ := interfaceType(conf.NetworkType, netif)
	iface := a.AddInterface(id.name, netif.Index, typ, id.prefix)
	applyInterfaceConfig(iface, conf, netif)

	if typ == InterfaceNBMA || typ == InterfacePointToMultipoint {
		for _, addr := range conf.Neighbors {
			if !id.prefix.Contains(addr) {
				continue
			}

			// Router IDs are learned from the neighbor's first Hello.
			// Configured neighbors are assumed eligible until then.
			iface.AddNeighbor(NewNeighbor(0, addr, 1))
		}
	}

	if typ == InterfacePointToPoint {
		i.demux.Insert(netif.Index, netip.Prefix{}, iface)
	} else {
		i.demux.Insert(netif.Index, id.prefix, iface)
	}

	i.interfaces[id] = iface
	iface.log.Infof("added interface %s", id.prefix)

	syncInterfaceState(iface, netif)
}

func (i *Instance) removeInterface(id interfaceID, iface *Interface) {
	if iface.Type == InterfacePointToPoint {
		i.demux.Delete(iface.IfIndex, netip.Prefix{})
	} else {
		i.demux.Delete(iface.IfIndex, id.prefix)
	}

	i.router.InterfaceArea(iface).RemoveInterface(iface)
	delete(i.interfaces, id)

	iface.log.Infof("removed interface %s", id.prefix)
}

func hasPrefix(netif system.Interface, prefix netip.Prefix) bool {
	for _, p := range netif.Prefixes {
		if p == prefix {
			return true
		}
	}

	return false
}

func syncInterfaceState(iface *Interface, netif system.Interface) {
	if netif.IsLoopback() && iface.State() != StateLoopback {
		iface.ProcessEvent(LoopIndication)
	} else if !netif.IsLoopback() && iface.State() == StateLoopback {
		iface.ProcessEvent(UnloopIndication)
	}

	if iface.State() == StateLoopback {
		return
	}

	if netif.IsUp() && iface.State() == StateDown {
		iface.ProcessEvent(InterfaceUp)
	} else if !netif.IsUp() && iface.State() != StateDown {
		iface.ProcessEvent(InterfaceDown)
	}
}

func interfaceType(t config.NetworkType, netif system.Interface) InterfaceType {
	switch t {
	case config.NetworkBroadcast:
		return InterfaceBroadcast
	case config.NetworkPointToPoint:
		return InterfacePointToPoint
	case config.NetworkNBMA:
		return InterfaceNBMA
	case config.NetworkPointToMultipoint:
		return InterfacePointToMultipoint
	case config.NetworkVirtual:
		return InterfaceVirtualLink
	}

	if netif.IsPointToPoint() {
		return InterfacePointToPoint
	}

	return InterfaceBroadcast
}

func applyInterfaceConfig(iface *Interface, conf config.OSPFInterfaceConfig, netif system.Interface) {
	iface.OutputCost = conf.Cost
	iface.HelloInterval = conf.HelloInterval
	iface.RouterDeadInterval = conf.RouterDeadInterval
	iface.RetransmissionInterval = conf.RetransmitInterval
	iface.TransmissionDelay = conf.TransmitDelay
	iface.AcknowledgementDelay = conf.AckDelay
	iface.PollInterval = conf.PollInterval
	iface.RouterPriority = conf.Priority

	iface.MTU = netif.MTU
	if conf.MTU != 0 {
		iface.MTU = conf.MTU
	}

	switch conf.Mode {
	case config.ModePassive:
		iface.Mode = ModePassive
	case config.ModeNoOSPF:
		iface.Mode = ModeNoOSPF
	default:
		iface.Mode = ModeActive
	}

	if conf.AuthType == "simple" {
		iface.AuthenticationType = AuthSimple
		copy(iface.AuthenticationKey[:], conf.AuthKey)
	}
}

// syncGroups joins and leaves multicast groups to match interface states.
func (i *Instance) syncGroups() {
	want := make(map[membership]bool)

	for _, iface := range i.interfaces {
		if iface.Mode != ModeActive {
			continue
		}

		switch iface.Type {
		case InterfaceBroadcast, InterfacePointToPoint, InterfacePointToMultipoint:
		default:
			continue
		}

		switch iface.State() {
		case StateDown, StateLoopback:
			continue
		case StateDesignatedRouter, StateBackup:
			want[membership{iface.IfIndex, AllDRouters}] = true
		}

		want[membership{iface.IfIndex, AllSPFRouters}] = true
	}

	for m := range want {
		if i.groups[m] {
			continue
		}

		if err := i.conn.JoinGroup(m.ifIndex, m.group); err != nil {
			i.log.Warnf("failed to join %s on interface %d: %v", m.group, m.ifIndex, err)
			continue
		}
		i.groups[m] = true
	}

	for m := range i.groups {
		if want[m] {
			continue
		}

		if err := i.conn.LeaveGroup(m.ifIndex, m.group); err != nil {
			i.log.Warnf("failed to leave %s on interface %d: %v", m.group, m.ifIndex, err)
		}
		delete(i.groups, m)
	}
}
