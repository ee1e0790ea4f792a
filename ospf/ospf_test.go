package ospf

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/davidbalbert/ospfd/config"
	"github.com/davidbalbert/ospfd/events"
	"github.com/davidbalbert/ospfd/system"
	"github.com/davidbalbert/ospfd/transport"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	osync "github.com/davidbalbert/ospfd/sync"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type written struct {
	payload []byte
	dst     netip.Addr
	ifIndex int
	ttl     int
}

type fakeConn struct {
	mu      sync.Mutex
	written []written
	groups  map[membership]bool
	joined  []membership

	incoming  chan transport.Packet
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		groups:   make(map[membership]bool),
		incoming: make(chan transport.Packet),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadPacket() (transport.Packet, error) {
	select {
	case p := <-c.incoming:
		return p, nil
	case <-c.closed:
		return transport.Packet{}, net.ErrClosed
	}
}

func (c *fakeConn) WriteTo(payload []byte, dst netip.Addr, ifIndex int, ttl int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.written = append(c.written, written{payload, dst, ifIndex, ttl})
	return nil
}

func (c *fakeConn) JoinGroup(ifIndex int, group netip.Addr) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := membership{ifIndex, group}
	c.groups[m] = true
	c.joined = append(c.joined, m)
	return nil
}

func (c *fakeConn) LeaveGroup(ifIndex int, group netip.Addr) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.groups, membership{ifIndex, group})
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) member(ifIndex int, group netip.Addr) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.groups[membership{ifIndex, group}]
}

func (c *fakeConn) sentTo(dst netip.Addr) []written {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []written
	for _, w := range c.written {
		if w.dst == dst {
			out = append(out, w)
		}
	}
	return out
}

const instanceConfig = `
ospf:
  router-id: 1.1.1.1
  area 0:
    interface eth0:
      network-type: point-to-point
`

func eth0Up() system.Interface {
	return system.Interface{
		Name:     "eth0",
		Index:    2,
		MTU:      1500,
		Flags:    net.FlagUp | net.FlagMulticast,
		Prefixes: []netip.Prefix{netip.MustParsePrefix("10.0.0.1/30")},
	}
}

type runningInstance struct {
	inst    *Instance
	conn    *fakeConn
	monitor *osync.Notifier[[]system.Interface]
	events  osync.Token
	cancel  context.CancelFunc
	errc    chan error
}

func startInstance(t *testing.T, netifs ...system.Interface) *runningInstance {
	t.Helper()
	return startInstanceWithConfig(t, instanceConfig, netifs...)
}

func startInstanceWithConfig(t *testing.T, conf string, netifs ...system.Interface) *runningInstance {
	t.Helper()

	c, err := config.Parse(conf)
	require.NoError(t, err)

	conn := newFakeConn()
	monitor := osync.NewNotifier(netifs)

	inst := newInstance(c.OSPF(),
		func() (interfaceMonitor, error) { return monitor, nil },
		func(context.Context) (packetConn, error) { return conn, nil },
	)

	ri := &runningInstance{
		inst:    inst,
		conn:    conn,
		monitor: monitor,
		events:  inst.Events().Register(),
		errc:    make(chan error, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	ri.cancel = cancel

	go func() {
		ri.errc <- inst.Run(ctx)
	}()

	t.Cleanup(ri.stop)

	return ri
}

func (ri *runningInstance) stop() {
	ri.cancel()
	<-ri.errc
	ri.errc <- nil
}

// awaitEvent returns the first event of type typ.
func (ri *runningInstance) awaitEvent(t *testing.T, typ events.EventType) events.Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		e, ok := ri.inst.Events().AwaitChange(ctx, ri.events)
		if !ok {
			t.Fatalf("timed out waiting for %s", typ)
		}
		if e.Type == typ {
			return e
		}
	}
}

func TestInstanceSendsHellos(t *testing.T) {
	ri := startInstance(t, eth0Up())

	e := ri.awaitEvent(t, events.InterfaceStateChanged)
	require.Equal(t, "PointToPoint", e.Data.(events.InterfaceStateChange).New)

	require.Eventually(t, func() bool {
		return len(ri.conn.sentTo(AllSPFRouters)) > 0
	}, 5*time.Second, 10*time.Millisecond)

	require.True(t, ri.conn.member(2, AllSPFRouters))
	require.False(t, ri.conn.member(2, AllDRouters))

	w := ri.conn.sentTo(AllSPFRouters)[0]
	require.Equal(t, 2, w.ifIndex)
	require.Equal(t, 1, w.ttl)

	p, err := Decode(w.payload)
	require.NoError(t, err)

	hello, ok := p.(*Hello)
	require.True(t, ok)
	require.Equal(t, mustRouterID("1.1.1.1"), hello.RouterID)
	require.Equal(t, uint16(10), hello.HelloInterval)

	ri.stop()
	require.False(t, ri.conn.member(2, AllSPFRouters))
}

func TestInstanceJoinsAllSPFRoutersOnPointToMultipoint(t *testing.T) {
	ri := startInstanceWithConfig(t, `
ospf:
  router-id: 1.1.1.1
  area 0:
    interface eth0:
      network-type: point-to-multipoint
      neighbors: [10.0.0.2]
`, eth0Up())

	e := ri.awaitEvent(t, events.InterfaceStateChanged)
	require.Equal(t, "PointToPoint", e.Data.(events.InterfaceStateChange).New)

	require.Eventually(t, func() bool {
		return ri.conn.member(2, AllSPFRouters)
	}, 5*time.Second, 10*time.Millisecond)
	require.False(t, ri.conn.member(2, AllDRouters))
}

func TestInstanceNoOSPFInterfaceStaysQuiet(t *testing.T) {
	ri := startInstanceWithConfig(t, `
ospf:
  router-id: 1.1.1.1
  area 0:
    interface eth0:
      network-type: broadcast
      mode: no-ospf
`, eth0Up())

	ri.awaitEvent(t, events.InterfaceStateChanged)
	ri.stop()

	require.Empty(t, ri.conn.sentTo(AllSPFRouters))
	require.False(t, ri.conn.member(2, AllSPFRouters))
	require.Empty(t, ri.conn.joined)
}

func TestInstanceReceivesHello(t *testing.T) {
	ri := startInstance(t, eth0Up())
	ri.awaitEvent(t, events.InterfaceStateChanged)

	hello := &Hello{
		Header: Header{
			RouterID: mustRouterID("2.2.2.2"),
			AreaID:   BackboneAreaID,
		},
		NetworkMask:            net.CIDRMask(30, 32),
		HelloInterval:          10,
		Options:                OptionE,
		RouterPriority:         1,
		RouterDeadInterval:     40,
		DesignatedRouter:       netip.IPv4Unspecified(),
		BackupDesignatedRouter: netip.IPv4Unspecified(),
	}

	b, err := Encode(hello)
	require.NoError(t, err)

	// From another subnet on another interface: nobody to deliver it to.
	ri.conn.incoming <- transport.Packet{
		Src:     netip.MustParseAddr("192.168.0.2"),
		Dst:     AllSPFRouters,
		IfIndex: 7,
		Payload: b,
	}

	ri.conn.incoming <- transport.Packet{
		Src:     netip.MustParseAddr("10.0.0.2"),
		Dst:     AllSPFRouters,
		IfIndex: 2,
		Payload: b,
	}

	e := ri.awaitEvent(t, events.NeighborStateChanged)
	change := e.Data.(events.NeighborStateChange)
	require.Equal(t, "2.2.2.2", change.Neighbor)
	require.Equal(t, netip.MustParseAddr("10.0.0.2"), change.Address)
	require.Equal(t, "Init", change.New)
}

func TestInstanceFollowsInterfaceChanges(t *testing.T) {
	ri := startInstance(t, eth0Up())

	e := ri.awaitEvent(t, events.InterfaceStateChanged)
	require.Equal(t, "PointToPoint", e.Data.(events.InterfaceStateChange).New)

	down := eth0Up()
	down.Flags &^= net.FlagUp
	ri.monitor.NotifyChange([]system.Interface{down})

	e = ri.awaitEvent(t, events.InterfaceStateChanged)
	require.Equal(t, "Down", e.Data.(events.InterfaceStateChange).New)

	require.Eventually(t, func() bool {
		return !ri.conn.member(2, AllSPFRouters)
	}, 5*time.Second, 10*time.Millisecond)

	ri.monitor.NotifyChange([]system.Interface{eth0Up()})

	e = ri.awaitEvent(t, events.InterfaceStateChanged)
	require.Equal(t, "PointToPoint", e.Data.(events.InterfaceStateChange).New)
}

func TestInstanceIgnoresUnconfiguredInterfaces(t *testing.T) {
	eth1 := eth0Up()
	eth1.Name = "eth1"
	eth1.Index = 3

	ri := startInstance(t, eth1)
	ri.stop()

	require.Empty(t, ri.conn.sentTo(AllSPFRouters))
	require.Zero(t, ri.inst.Events().Pending(ri.events))
}

func TestInterfaceType(t *testing.T) {
	p2p := system.Interface{Flags: net.FlagUp | net.FlagPointToPoint}
	eth := system.Interface{Flags: net.FlagUp | net.FlagBroadcast}

	require.Equal(t, InterfacePointToPoint, interfaceType(config.NetworkAuto, p2p))
	require.Equal(t, InterfaceBroadcast, interfaceType(config.NetworkAuto, eth))
	require.Equal(t, InterfaceNBMA, interfaceType(config.NetworkNBMA, eth))
	require.Equal(t, InterfacePointToMultipoint, interfaceType(config.NetworkPointToMultipoint, p2p))
}

func TestInstanceInterfaceStatus(t *testing.T) {
	ri := startInstance(t, eth0Up())
	ri.awaitEvent(t, events.InterfaceStateChanged)

	hello := &Hello{
		Header: Header{
			RouterID: mustRouterID("2.2.2.2"),
			AreaID:   BackboneAreaID,
		},
		NetworkMask:            net.CIDRMask(30, 32),
		HelloInterval:          10,
		Options:                OptionE,
		RouterPriority:         1,
		RouterDeadInterval:     40,
		DesignatedRouter:       netip.IPv4Unspecified(),
		BackupDesignatedRouter: netip.IPv4Unspecified(),
	}

	b, err := Encode(hello)
	require.NoError(t, err)

	ri.conn.incoming <- transport.Packet{
		Src:     netip.MustParseAddr("10.0.0.2"),
		Dst:     AllSPFRouters,
		IfIndex: 2,
		Payload: b,
	}
	ri.awaitEvent(t, events.NeighborStateChanged)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := ri.inst.InterfaceStatus(ctx)
	require.NoError(t, err)
	require.Len(t, status, 1)

	s := status[0]
	require.Equal(t, "eth0", s.Name)
	require.Equal(t, BackboneAreaID, s.Area)
	require.Equal(t, InterfacePointToPoint, s.Type)
	require.Equal(t, StatePointToPoint, s.State)
	require.Equal(t, netip.MustParsePrefix("10.0.0.1/30"), s.Address)
	require.Len(t, s.Neighbors, 1)
	require.Equal(t, mustRouterID("2.2.2.2"), s.Neighbors[0].ID)
	require.Equal(t, NeighborInit, s.Neighbors[0].State)

	ri.stop()

	_, err = ri.inst.InterfaceStatus(ctx)
	require.ErrorIs(t, err, ErrNotRunning)
}
