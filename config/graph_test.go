package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTopologicalSort(t *testing.T) {
	g := newGraph[string]()
	g.addNode("ospf", "monitor")
	g.addNode("api", "ospf", "monitor")
	g.addNode("monitor")

	sorted, err := g.topologicalSort()
	require.NoError(t, err)
	require.Equal(t, []string{"monitor", "ospf", "api"}, sorted)
}

func TestTopologicalSortIncludesImplicitDependencies(t *testing.T) {
	g := newGraph[string]()
	g.addNode("ospf", "monitor")

	sorted, err := g.topologicalSort()
	require.NoError(t, err)
	require.Equal(t, []string{"monitor", "ospf"}, sorted)
}

func TestTopologicalSortCycle(t *testing.T) {
	g := newGraph[string]()
	g.addNode("a", "b")
	g.addNode("b", "c")
	g.addNode("c", "a")

	_, err := g.topologicalSort()
	require.ErrorContains(t, err, "dependency cycle")
}
