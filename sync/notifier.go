package sync

import "context"

// Taken from the slides for "Rethinking Classical Concurrency Patterns" by Bryan C. Mills.

type state[T any] struct {
	seq     int64
	value   T
	changed chan struct{} // closed upon notify
}

// A Notifier broadcasts the latest value of T to any number of listeners.
// Listeners that fall behind skip straight to the newest value: calling
// AwaitChange with an out of date sequence number returns immediately.
type Notifier[T any] struct {
	st chan state[T]
}

func NewNotifier[T any](initial T) *Notifier[T] {
	st := make(chan state[T], 1)
	st <- state[T]{
		seq:     0,
		value:   initial,
		changed: make(chan struct{}),
	}
	return &Notifier[T]{st: st}
}

func (n *Notifier[T]) NotifyChange(v T) {
	st := <-n.st
	close(st.changed)
	n.st <- state[T]{
		seq:     st.seq + 1,
		value:   v,
		changed: make(chan struct{}),
	}
}

// LastChange returns the current value and its sequence number.
func (n *Notifier[T]) LastChange() (T, int64) {
	st := <-n.st
	n.st <- st

	return st.value, st.seq
}

// AwaitChange blocks until the value changes after seq or ctx is done. If seq
// is stale it returns the current value immediately. On cancellation it
// returns the value it had and seq unchanged.
func (n *Notifier[T]) AwaitChange(ctx context.Context, seq int64) (T, int64) {
	st := <-n.st
	n.st <- st

	if st.seq != seq {
		return st.value, st.seq
	}

	select {
	case <-ctx.Done():
		return st.value, seq
	case <-st.changed:
		return n.LastChange()
	}
}
