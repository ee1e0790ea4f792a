//go:build !darwin && !linux

package system

import (
	"context"
	"time"
)

const pollInterval = 2 * time.Second

// watch polls for changes. Two seconds is well under any dead interval.
func (m *InterfaceMonitor) watch(ctx context.Context, refresh func()) error {
	t := time.NewTicker(pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			refresh()
		}
	}
}
