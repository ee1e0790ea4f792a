package sync

import "context"

// A Token identifies a listener registered with a QueuedNotifier.
type Token struct {
	t chan struct{}
}

// A QueuedNotifier delivers every value to every registered listener, in
// order. Each listener has its own unbounded queue, so a slow listener costs
// memory but never blocks NotifyChange or other listeners.
//
// St is a buffered channel that acts as a mutex for the set of queues. The
// channel inside a Token is never sent on; it is only a unique map key.
type QueuedNotifier[T any] struct {
	st chan map[chan struct{}]*queue[T]
}

func NewQueuedNotifier[T any]() *QueuedNotifier[T] {
	state := make(chan map[chan struct{}]*queue[T], 1)
	state <- make(map[chan struct{}]*queue[T])

	return &QueuedNotifier[T]{
		st: state,
	}
}

func (n *QueuedNotifier[T]) Register() Token {
	q := newQueue[T]()
	t := make(chan struct{})

	st := <-n.st
	st[t] = q
	n.st <- st

	return Token{t}
}

func (n *QueuedNotifier[T]) Unregister(t Token) {
	st := <-n.st
	delete(st, t.t)
	n.st <- st
}

func (n *QueuedNotifier[T]) NotifyChange(v T) {
	st := <-n.st
	for _, q := range st {
		q.Put(v)
	}
	n.st <- st
}

// AwaitChange returns the next value queued for t. It returns false if t
// isn't registered or ctx is done first.
func (n *QueuedNotifier[T]) AwaitChange(ctx context.Context, t Token) (T, bool) {
	st := <-n.st
	q := st[t.t]
	n.st <- st

	if q == nil {
		var zero T
		return zero, false
	}

	return q.Get(ctx)
}

// Pending returns the number of values queued for t.
func (n *QueuedNotifier[T]) Pending(t Token) int {
	st := <-n.st
	q := st[t.t]
	n.st <- st

	if q == nil {
		return 0
	}

	return q.Len()
}
