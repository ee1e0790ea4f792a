package system

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/davidbalbert/ospfd/logger"
	"github.com/davidbalbert/ospfd/services"
	"github.com/davidbalbert/ospfd/sync"
	"go4.org/netipx"
	"golang.org/x/exp/slices"
)

// Interface is a snapshot of a network interface and its IPv4 prefixes.
type Interface struct {
	Name     string
	Index    int
	MTU      int
	Flags    net.Flags
	Prefixes []netip.Prefix
}

func (i Interface) IsUp() bool {
	return i.Flags&net.FlagUp != 0
}

func (i Interface) IsLoopback() bool {
	return i.Flags&net.FlagLoopback != 0
}

func (i Interface) IsPointToPoint() bool {
	return i.Flags&net.FlagPointToPoint != 0
}

func (i Interface) equal(other Interface) bool {
	return i.Name == other.Name &&
		i.Index == other.Index &&
		i.MTU == other.MTU &&
		i.Flags == other.Flags &&
		slices.Equal(i.Prefixes, other.Prefixes)
}

// List returns the system's interfaces and their IPv4 prefixes.
func List() ([]Interface, error) {
	netifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	interfaces := make([]Interface, 0, len(netifs))
	for _, netif := range netifs {
		prefixes, err := netifPrefixesV4(netif)
		if err != nil {
			return nil, err
		}

		interfaces = append(interfaces, Interface{
			Name:     netif.Name,
			Index:    netif.Index,
			MTU:      netif.MTU,
			Flags:    netif.Flags,
			Prefixes: prefixes,
		})
	}

	return interfaces, nil
}

func netifPrefixesV4(netif net.Interface) ([]netip.Prefix, error) {
	addrs, err := netif.Addrs()
	if err != nil {
		return nil, fmt.Errorf("failed to get addresses for interface %s: %w", netif.Name, err)
	}

	var prefixes []netip.Prefix
	for _, addr := range addrs {
		prefix, ok := prefixFromSTDNetAddr(addr)
		if ok && prefix.Addr().Is4() {
			prefixes = append(prefixes, prefix)
		}
	}

	slices.SortFunc(prefixes, func(a, b netip.Prefix) bool {
		return a.Addr().Less(b.Addr())
	})

	return prefixes, nil
}

// net.Interface.Addrs() returns []net.Addr which is really
// []*net.IPNet.
func prefixFromSTDNetAddr(addr net.Addr) (netip.Prefix, bool) {
	ipnet, ok := addr.(*net.IPNet)
	if !ok {
		return netip.Prefix{}, false
	}

	prefix, ok := netipx.FromStdIPNet(ipnet)
	if !ok {
		return netip.Prefix{}, false
	}

	return prefix, true
}

// Bursts of changes are coalesced into one refresh.
const settleTime = 200 * time.Millisecond

// coalesce calls refresh once nothing has arrived on changed for settle.
// Each value names the interface that changed, if known.
func coalesce(ctx context.Context, changed <-chan string, settle time.Duration, refresh func()) error {
	t := time.NewTimer(settle)
	t.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case name := <-changed:
			logger.Debugf("interface monitor: change on %q", name)
			t.Reset(settle)
		case <-t.C:
			refresh()
		}
	}
}

// InterfaceMonitor publishes the system's interfaces every time they change.
type InterfaceMonitor struct {
	*sync.Notifier[[]Interface]
	list func() ([]Interface, error)
}

func NewInterfaceMonitor(serviceManager *services.ServiceManager, conf any) (services.Runner, error) {
	return newInterfaceMonitor(List)
}

func newInterfaceMonitor(list func() ([]Interface, error)) (*InterfaceMonitor, error) {
	interfaces, err := list()
	if err != nil {
		return nil, err
	}

	return &InterfaceMonitor{
		Notifier: sync.NewNotifier(interfaces),
		list:     list,
	}, nil
}

func (m *InterfaceMonitor) Run(ctx context.Context) error {
	return m.watch(ctx, func() {
		if err := m.refresh(); err != nil {
			logger.Warnf("interface monitor: %v", err)
		}
	})
}

// Interfaces returns the most recent snapshot.
func (m *InterfaceMonitor) Interfaces() []Interface {
	interfaces, _ := m.LastChange()
	return slices.Clone(interfaces)
}

// refresh re-reads the interfaces and notifies listeners if anything
// changed.
func (m *InterfaceMonitor) refresh() error {
	interfaces, err := m.list()
	if err != nil {
		return err
	}

	current, _ := m.LastChange()
	if slices.EqualFunc(current, interfaces, Interface.equal) {
		return nil
	}

	m.NotifyChange(interfaces)

	return nil
}
