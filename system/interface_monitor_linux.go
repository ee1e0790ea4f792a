package system

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vishvananda/netlink"
	"golang.org/x/sync/errgroup"
)

// watch calls refresh whenever the kernel reports a link or address change.
func (m *InterfaceMonitor) watch(ctx context.Context, refresh func()) error {
	done := make(chan struct{})

	links := make(chan netlink.LinkUpdate, 16)
	if err := netlink.LinkSubscribe(links, done); err != nil {
		close(done)
		return fmt.Errorf("interface monitor: subscribe to links: %w", err)
	}

	addrs := make(chan netlink.AddrUpdate, 16)
	if err := netlink.AddrSubscribe(addrs, done); err != nil {
		close(done)
		return fmt.Errorf("interface monitor: subscribe to addresses: %w", err)
	}

	// netlink closes both channels once done is closed. Drain them so its
	// receive goroutines never block on a send.
	defer func() {
		close(done)
		go func() {
			for range links {
			}
		}()
		go func() {
			for range addrs {
			}
		}()
	}()

	changed := make(chan string, 1)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			var name string

			select {
			case <-ctx.Done():
				return nil
			case u, ok := <-links:
				if !ok {
					return fmt.Errorf("interface monitor: link subscription closed")
				}
				name = u.Attrs().Name
			case u, ok := <-addrs:
				if !ok {
					return fmt.Errorf("interface monitor: address subscription closed")
				}
				if u.LinkAddress.IP.To4() == nil {
					continue
				}
				name = "ifindex " + strconv.Itoa(u.LinkIndex)
			}

			select {
			case changed <- name:
			default:
			}
		}
	})

	g.Go(func() error {
		return coalesce(ctx, changed, settleTime, refresh)
	})

	return g.Wait()
}
