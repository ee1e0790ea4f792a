package main

import (
	"bytes"
	"io"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/davidbalbert/ospfd/api"
	"github.com/davidbalbert/ospfd/config"
	"github.com/davidbalbert/ospfd/system"
	"github.com/stretchr/testify/require"
)

func TestTabulate(t *testing.T) {
	type item struct{ a, b string }

	table, err := tabulate([]item{{"eth0", "up"}, {"bridge100", "down"}}, []string{"Name", "State"}, func(i item) []string {
		return []string{i.a, i.b}
	})
	require.NoError(t, err)

	want := []string{
		"Name        State",
		"---------   -----",
		"eth0        up",
		"bridge100   down",
	}
	require.Equal(t, want, table)

	_, err = tabulate([]item{{"eth0", "up"}}, []string{"Name"}, func(i item) []string {
		return []string{i.a, i.b}
	})
	require.Error(t, err)
}

const showConfig = `
ospf:
  router-id: 1.1.1.1
  area 0:
    interface eth0: {}
    interface ppp0:
      cost: 20
  area 1:
    interface eth1:
      network-type: nbma
      passive: true
`

func TestConfigTable(t *testing.T) {
	c, err := config.Parse(showConfig)
	require.NoError(t, err)

	netifs := []system.Interface{
		{Name: "eth0", Index: 2, Flags: net.FlagUp, Prefixes: []netip.Prefix{netip.MustParsePrefix("10.0.0.1/24")}},
		{Name: "ppp0", Index: 3, Flags: net.FlagPointToPoint},
	}

	table, err := configTable(c.OSPF(), netifs)
	require.NoError(t, err)
	require.Len(t, table, 5)

	require.True(t, strings.HasPrefix(table[2], "eth0"))
	require.Contains(t, table[2], "broadcast (auto)")
	require.Contains(t, table[2], "10/40")
	require.Contains(t, table[2], "10.0.0.1/24")

	require.True(t, strings.HasPrefix(table[3], "eth1"))
	require.Contains(t, table[3], "0.0.0.1")
	require.Contains(t, table[3], "nbma")
	require.Contains(t, table[3], "missing, passive")

	require.True(t, strings.HasPrefix(table[4], "ppp0"))
	require.Contains(t, table[4], "point-to-point (auto)")
	require.Contains(t, table[4], "down")
	require.Contains(t, table[4], "20")
}

var liveInterfaces = []api.InterfaceInfo{
	{
		Name:    "eth0",
		Area:    "0.0.0.0",
		Type:    "Broadcast",
		Mode:    "active",
		State:   "Backup",
		Address: "10.0.0.1/24",
		Cost:    10,
		DR:      "2.2.2.2 (10.0.0.2)",
		BDR:     "1.1.1.1 (10.0.0.1)",
		Neighbors: []api.NeighborInfo{
			{ID: "2.2.2.2", Address: "10.0.0.2", State: "ExStart", Priority: 1},
			{ID: "3.3.3.3", Address: "10.0.0.3", State: "TwoWay", Priority: 0},
		},
	},
	{
		Name:    "eth1",
		Area:    "0.0.0.1",
		Type:    "PointToPoint",
		Mode:    "passive",
		State:   "PointToPoint",
		Address: "192.168.1.1/30",
		Cost:    1,
		DR:      "none",
		BDR:     "none",
	},
}

func TestStatusTable(t *testing.T) {
	table, err := statusTable(liveInterfaces)
	require.NoError(t, err)
	require.Len(t, table, 4)

	require.True(t, strings.HasPrefix(table[2], "eth0"))
	require.Contains(t, table[2], "Backup")
	require.Contains(t, table[2], "2.2.2.2 (10.0.0.2)")
	require.True(t, strings.HasSuffix(table[2], "2"))

	require.Contains(t, table[3], "PointToPoint, passive")
	require.True(t, strings.HasSuffix(table[3], "0"))
}

func TestNeighborTable(t *testing.T) {
	table, err := neighborTable(liveInterfaces)
	require.NoError(t, err)
	require.Len(t, table, 4)

	require.True(t, strings.HasPrefix(table[2], "2.2.2.2"))
	require.Contains(t, table[2], "ExStart")
	require.True(t, strings.HasSuffix(table[2], "eth0"))
	require.True(t, strings.HasPrefix(table[3], "3.3.3.3"))
}

func TestFormatEvent(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC)
	e := api.EventInfo{
		Type: "NeighborStateChanged",
		Data: map[string]any{"Neighbor": "2.2.2.2", "New": "Init", "Old": "Down"},
	}

	require.Equal(t, "12:30:00 NeighborStateChanged neighbor=2.2.2.2 new=Init old=Down", formatEvent(now, e))
	require.Equal(t, "12:30:00 ConfigUpdated", formatEvent(now, api.EventInfo{Type: "ConfigUpdated"}))
}

func TestPagerPassesThroughWithoutATerminal(t *testing.T) {
	var out bytes.Buffer
	p := newPager(strings.NewReader(""), &out)

	for i := 0; i < 500; i++ {
		_, err := io.WriteString(p, "line\n")
		require.NoError(t, err)
	}

	require.Equal(t, strings.Repeat("line\n", 500), out.String())
}
