package system

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"

	"golang.org/x/sync/errgroup"
)

var scutilKeys = []string{
	"State:/Network/Interface",
	`State:/Network/Interface/[^/]+/Link`,
	`State:/Network/Interface/[^/]+/IPv4`,
}

// Matches lines like "  changedKey [0] = State:/Network/Interface/en0/IPv4".
var changedKey = regexp.MustCompile(`State:/Network/Interface(?:/([^/\s]+))?`)

// watch calls refresh whenever configd reports a change to an interface's
// link state or IPv4 addresses.
func (m *InterfaceMonitor) watch(ctx context.Context, refresh func()) error {
	g, ctx := errgroup.WithContext(ctx)

	// Closing stdin makes scutil exit cleanly. exec.CommandContext would
	// kill it and report an error.
	cmd := exec.Command("scutil")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("interface monitor: scutil stdin: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("interface monitor: scutil stdout: %w", err)
	}

	changed := make(chan string, 1)

	g.Go(func() error {
		defer stdin.Close()

		for idx, key := range scutilKeys {
			line := "n.add " + key
			if idx > 0 {
				line += ` "pattern"`
			}

			if _, err := io.WriteString(stdin, line+"\n"); err != nil {
				return fmt.Errorf("interface monitor: write to scutil: %w", err)
			}
		}

		if _, err := io.WriteString(stdin, "n.watch\n"); err != nil {
			return fmt.Errorf("interface monitor: write to scutil: %w", err)
		}

		<-ctx.Done()

		return nil
	})

	g.Go(func() error {
		s := bufio.NewScanner(stdout)
		for s.Scan() {
			match := changedKey.FindStringSubmatch(s.Text())
			if match == nil {
				continue
			}

			select {
			case changed <- match[1]:
			default:
			}
		}

		if err := s.Err(); err != nil {
			return fmt.Errorf("interface monitor: read from scutil: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		return coalesce(ctx, changed, settleTime, refresh)
	})

	g.Go(func() error {
		return cmd.Run()
	})

	return g.Wait()
}
