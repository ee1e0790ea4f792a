package ospf

import (
	"net/netip"
	"time"

	"github.com/davidbalbert/ospfd/common"
	"github.com/davidbalbert/ospfd/events"
)

type Area struct {
	id         common.AreaID
	stub       bool
	router     *Router
	interfaces []*Interface
	lsdb       lsdb

	// set when a router-LSA couldn't be originated because of MinLSInterval
	originationPending bool
	lastOriginated     time.Time
}

func (a *Area) ID() common.AreaID {
	return a.id
}

func (a *Area) IsStub() bool {
	return a.stub
}

func (a *Area) Interfaces() []*Interface {
	return a.interfaces
}

// AddInterface creates an interface in state Down attached to the area.
func (a *Area) AddInterface(name string, ifIndex int, typ InterfaceType, addr netip.Prefix) *Interface {
	i := NewInterface(a, name, ifIndex, typ, addr)
	a.interfaces = append(a.interfaces, i)
	a.router.ifaceAreas[i] = a

	return i
}

// Interface returns the interface with the given name and address.
func (a *Area) Interface(name string, addr netip.Prefix) *Interface {
	for _, i := range a.interfaces {
		if i.Name == name && i.AddressRange == addr {
			return i
		}
	}

	return nil
}

// RemoveInterface brings the interface down and detaches it from the area.
func (a *Area) RemoveInterface(i *Interface) {
	i.ProcessEvent(InterfaceDown)
	i.Close()

	for idx, other := range a.interfaces {
		if other == i {
			a.interfaces = append(a.interfaces[:idx], a.interfaces[idx+1:]...)
			break
		}
	}
	delete(a.router.ifaceAreas, i)

	a.router.originateRouterLSA(a)
}

// LSA returns the current instance of the LSA with the given key, or nil.
func (a *Area) LSA(key LSAKey) *LSA {
	return a.router.dbFor(a, key.Type).get(key, a.router.clock())
}

// LSAs returns every LSA in the area's database, in a stable order.
func (a *Area) LSAs() []*LSA {
	now := a.router.clock()
	var out []*LSA
	for _, key := range a.lsdb.keys() {
		out = append(out, a.lsdb.get(key, now))
	}

	return out
}

func (a *Area) ExternalRoutingCapability() bool {
	return !a.stub
}

func (a *Area) RouterID() common.RouterID {
	return a.router.id
}

func (a *Area) AreaID() common.AreaID {
	return a.id
}

func (a *Area) MessageHandler() MessageHandler {
	return a.router.handler
}

func (a *Area) InterfaceStateChanged(i *Interface, old InterfaceState) {
	a.router.publish(events.Event{
		Type: events.InterfaceStateChanged,
		Data: events.InterfaceStateChange{
			Interface: i.Name,
			Area:      a.id.String(),
			Old:       old.String(),
			New:       i.State().String(),
		},
	})

	a.router.originateRouterLSA(a)
}

func (a *Area) NeighborStateChanged(n *Neighbor, old NeighborState) {
	a.router.publish(events.Event{
		Type: events.NeighborStateChanged,
		Data: events.NeighborStateChange{
			Interface: n.iface.Name,
			Neighbor:  n.id.String(),
			Address:   n.addr,
			Old:       old.String(),
			New:       n.state.String(),
		},
	})

	// Adjacencies coming up or going down change our links.
	if (old == NeighborFull) != (n.state == NeighborFull) {
		a.router.originateRouterLSA(a)
	}
}

func (a *Area) isActive() bool {
	for _, i := range a.interfaces {
		if i.state != StateDown {
			return true
		}
	}

	return false
}
