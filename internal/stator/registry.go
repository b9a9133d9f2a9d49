package stator

import (
	"fmt"

	"roost/internal/store"
)

// Registry maps entity kinds to their graphs. The runner schedules every
// registered kind.
type Registry struct {
	graphs map[store.Kind]*Graph
	order  []store.Kind
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{graphs: make(map[store.Kind]*Graph)}
}

// Register binds a graph to a kind. Registering a kind twice is an error.
func (r *Registry) Register(kind store.Kind, graph *Graph) error {
	if graph == nil {
		return fmt.Errorf("register %s: graph is nil", kind)
	}
	if _, exists := r.graphs[kind]; exists {
		return fmt.Errorf("register %s: already registered", kind)
	}
	r.graphs[kind] = graph
	r.order = append(r.order, kind)
	return nil
}

// Graph returns the graph for a kind, if registered.
func (r *Registry) Graph(kind store.Kind) (*Graph, bool) {
	graph, ok := r.graphs[kind]
	return graph, ok
}

// Kinds returns registered kinds in registration order.
func (r *Registry) Kinds() []store.Kind {
	return r.order
}
