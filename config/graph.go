package config

import "fmt"

// graph is a dependency graph. Nodes are visited in the order they were
// added, so sorting is deterministic for a given sequence of addNode calls.
type graph[T comparable] struct {
	deps  map[T][]T
	order []T
}

func newGraph[T comparable]() *graph[T] {
	return &graph[T]{deps: make(map[T][]T)}
}

func (g *graph[T]) addNode(id T, deps ...T) {
	if _, ok := g.deps[id]; !ok {
		g.order = append(g.order, id)
	}
	g.deps[id] = deps
}

// topologicalSort returns every node after all of its dependencies.
// Dependencies that were never added as nodes are included too.
func (g *graph[T]) topologicalSort() ([]T, error) {
	const (
		unvisited = iota
		visiting
		done
	)

	state := make(map[T]int)
	var sorted []T

	var visit func(T) error
	visit = func(id T) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle at %v", id)
		}

		state[id] = visiting
		for _, dep := range g.deps[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done

		sorted = append(sorted, id)
		return nil
	}

	for _, id := range g.order {
		if err := visit(id); err != nil {
			return nil, err
		}
	}

	return sorted, nil
}
