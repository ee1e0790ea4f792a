package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/davidbalbert/ospfd/api"
	"github.com/spf13/cobra"
)

const requestTimeout = 5 * time.Second

// withClient connects to the running daemon and calls fn with a context
// that expires after requestTimeout.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *api.Client) error) error {
	c, err := api.NewClient(socketPath)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	return fn(ctx, c)
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			return c.Shutdown(ctx)
		})
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print interface, neighbor and LSA events as they happen",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := api.NewClient(socketPath)
		if err != nil {
			return err
		}
		defer c.Close()

		return c.Events(cmd.Context(), func(e api.EventInfo) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), formatEvent(time.Now(), e))
			return err
		})
	},
}

func formatEvent(now time.Time, e api.EventInfo) string {
	var b strings.Builder
	b.WriteString(now.Format(time.TimeOnly))
	b.WriteString(" ")
	b.WriteString(e.Type)

	data, ok := e.Data.(map[string]any)
	if !ok {
		return b.String()
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", strings.ToLower(k), data[k])
	}

	return b.String()
}
