package sync

import (
	"context"
	"testing"
	"time"
)

func TestQueuedNotifierDeliversEverything(t *testing.T) {
	n := NewQueuedNotifier[int]()
	a := n.Register()
	b := n.Register()

	for i := 1; i <= 3; i++ {
		n.NotifyChange(i)
	}

	if n.Pending(a) != 3 {
		t.Fatalf("expected 3 pending, got %d", n.Pending(a))
	}

	ctx := context.Background()
	for _, tok := range []Token{a, b} {
		for want := 1; want <= 3; want++ {
			got, ok := n.AwaitChange(ctx, tok)
			if !ok || got != want {
				t.Fatalf("expected (%d, true), got (%d, %v)", want, got, ok)
			}
		}
	}

	if n.Pending(a) != 0 {
		t.Fatalf("expected empty queue, got %d", n.Pending(a))
	}
}

func TestQueuedNotifierUnregister(t *testing.T) {
	n := NewQueuedNotifier[string]()
	tok := n.Register()
	n.Unregister(tok)

	n.NotifyChange("ignored")

	if _, ok := n.AwaitChange(context.Background(), tok); ok {
		t.Fatal("expected AwaitChange to fail after Unregister")
	}
}

func TestQueuedNotifierAwaitCanceled(t *testing.T) {
	n := NewQueuedNotifier[int]()
	tok := n.Register()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, ok := n.AwaitChange(ctx, tok); ok {
		t.Fatal("expected AwaitChange to time out")
	}
}
