package transport

import (
	"net/netip"

	"github.com/gaissmai/bart"
)

// Demux maps an incoming packet to the receiver that owns it. A receiver is
// registered with the interface index it's attached to and either the prefix
// its neighbors live on, or no prefix, in which case it accepts packets from
// any source on that interface. Point-to-point links and unnumbered
// interfaces are registered this way.
type Demux[T any] struct {
	tables   map[int]*bart.Table[T]
	fallback map[int]T
}

func NewDemux[T any]() *Demux[T] {
	return &Demux[T]{
		tables:   make(map[int]*bart.Table[T]),
		fallback: make(map[int]T),
	}
}

func (d *Demux[T]) Insert(ifIndex int, prefix netip.Prefix, v T) {
	if !prefix.IsValid() {
		d.fallback[ifIndex] = v
		return
	}

	t, ok := d.tables[ifIndex]
	if !ok {
		t = new(bart.Table[T])
		d.tables[ifIndex] = t
	}

	t.Insert(prefix.Masked(), v)
}

func (d *Demux[T]) Delete(ifIndex int, prefix netip.Prefix) {
	if !prefix.IsValid() {
		delete(d.fallback, ifIndex)
		return
	}

	t, ok := d.tables[ifIndex]
	if !ok {
		return
	}

	t.Delete(prefix.Masked())
	if t.Size() == 0 {
		delete(d.tables, ifIndex)
	}
}

// Lookup returns the receiver whose prefix on ifIndex most specifically
// contains src, falling back to the interface's catch-all receiver.
func (d *Demux[T]) Lookup(ifIndex int, src netip.Addr) (T, bool) {
	if t, ok := d.tables[ifIndex]; ok {
		if v, ok := t.Lookup(src); ok {
			return v, true
		}
	}

	v, ok := d.fallback[ifIndex]
	return v, ok
}
