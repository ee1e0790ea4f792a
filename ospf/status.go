package ospf

import (
	"context"
	"errors"
	"net/netip"
	"sort"

	"github.com/davidbalbert/ospfd/common"
)

var ErrNotRunning = errors.New("ospf: instance is not running")

type NeighborStatus struct {
	ID       common.RouterID
	Address  netip.Addr
	State    NeighborState
	Priority uint8
}

// InterfaceStatus is a snapshot of an interface and its neighbors.
type InterfaceStatus struct {
	Name    string
	Area    common.AreaID
	Type    InterfaceType
	Mode    InterfaceMode
	State   InterfaceState
	Address netip.Prefix
	Cost    uint16

	DesignatedRouter       DesignatedRouterID
	BackupDesignatedRouter DesignatedRouterID

	Neighbors []NeighborStatus
}

func (i *Interface) status() InterfaceStatus {
	s := InterfaceStatus{
		Name:                   i.Name,
		Area:                   i.AreaID(),
		Type:                   i.Type,
		Mode:                   i.Mode,
		State:                  i.state,
		Address:                i.AddressRange,
		Cost:                   i.OutputCost,
		DesignatedRouter:       i.designatedRouter,
		BackupDesignatedRouter: i.backupDesignatedRouter,
	}

	for _, n := range i.neighbors {
		s.Neighbors = append(s.Neighbors, NeighborStatus{
			ID:       n.id,
			Address:  n.addr,
			State:    n.state,
			Priority: n.priority,
		})
	}

	return s
}

// InterfaceStatus returns every interface the instance is running, sorted by
// name and address.
func (i *Instance) InterfaceStatus(ctx context.Context) ([]InterfaceStatus, error) {
	var out []InterfaceStatus

	err := i.query(ctx, func() {
		for _, iface := range i.interfaces {
			out = append(out, iface.status())
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(a, b int) bool {
		if out[a].Name != out[b].Name {
			return out[a].Name < out[b].Name
		}
		return out[a].Address.Addr().Less(out[b].Address.Addr())
	})

	return out, nil
}

// query runs fn on the loop and waits for it to finish.
func (i *Instance) query(ctx context.Context, fn func()) error {
	finished := make(chan struct{})

	select {
	case i.loop <- func() { fn(); close(finished) }:
	case <-i.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
