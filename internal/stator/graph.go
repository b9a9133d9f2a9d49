package stator

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Handler executes one step of work for a claimed entity and names the state
// it should move to. Returning Again leaves the entity in its current state
// to be attempted once more after the state's try interval. Returning an
// error records the failure and leaves the lock in place, so the entity is
// retried only once the lock expires.
type Handler func(ctx context.Context, id int64) (string, error)

// Again tells the runner to keep the entity in its current state.
const Again = ""

// State is one node of a Graph. States without a handler are terminal: the
// scheduler never picks up entities resting in them.
type State struct {
	Name        string
	TryInterval time.Duration
	Handler     Handler
}

// Terminal reports whether entities in this state are done.
func (s State) Terminal() bool {
	return s.Handler == nil
}

// Graph is an immutable state machine definition for one entity kind.
type Graph struct {
	name        string
	initial     string
	states      map[string]State
	transitions map[string]map[string]bool
	terminal    []string
}

// Name returns the graph's label, used in logs.
func (g *Graph) Name() string { return g.name }

// Initial returns the state newly created entities enter.
func (g *Graph) Initial() string { return g.initial }

// State looks up a state by name.
func (g *Graph) State(name string) (State, bool) {
	state, ok := g.states[name]
	return state, ok
}

// TerminalStates returns the names of all terminal states, sorted.
func (g *Graph) TerminalStates() []string {
	return g.terminal
}

// ValidTransition reports whether a handler in from may move the entity
// to target.
func (g *Graph) ValidTransition(from, target string) bool {
	return g.transitions[from][target]
}

// Builder assembles a Graph. Use MustBuild at package init so malformed
// graphs fail at startup rather than mid-schedule.
type Builder struct {
	graph *Graph
	errs  []error
}

// NewBuilder starts a graph definition with the given label.
func NewBuilder(name string) *Builder {
	return &Builder{graph: &Graph{
		name:        name,
		states:      make(map[string]State),
		transitions: make(map[string]map[string]bool),
	}}
}

// AddState registers a state. A nil handler marks the state terminal.
func (b *Builder) AddState(name string, tryInterval time.Duration, handler Handler) *Builder {
	if name == "" {
		b.errs = append(b.errs, fmt.Errorf("graph %s: state name is empty", b.graph.name))
		return b
	}
	if _, exists := b.graph.states[name]; exists {
		b.errs = append(b.errs, fmt.Errorf("graph %s: duplicate state %q", b.graph.name, name))
		return b
	}
	b.graph.states[name] = State{Name: name, TryInterval: tryInterval, Handler: handler}
	return b
}

// AddTransition allows handlers in from to move entities to target.
func (b *Builder) AddTransition(from, target string) *Builder {
	if b.graph.transitions[from] == nil {
		b.graph.transitions[from] = make(map[string]bool)
	}
	b.graph.transitions[from][target] = true
	return b
}

// SetInitial names the state newly created entities enter.
func (b *Builder) SetInitial(name string) *Builder {
	b.graph.initial = name
	return b
}

// Build validates and returns the graph.
func (b *Builder) Build() (*Graph, error) {
	g := b.graph
	errs := b.errs

	if g.initial == "" {
		errs = append(errs, fmt.Errorf("graph %s: no initial state", g.name))
	} else if _, ok := g.states[g.initial]; !ok {
		errs = append(errs, fmt.Errorf("graph %s: initial state %q not defined", g.name, g.initial))
	}

	for from, targets := range g.transitions {
		fromState, ok := g.states[from]
		if !ok {
			errs = append(errs, fmt.Errorf("graph %s: transition from unknown state %q", g.name, from))
			continue
		}
		if fromState.Terminal() {
			errs = append(errs, fmt.Errorf("graph %s: terminal state %q has outgoing transitions", g.name, from))
		}
		for target := range targets {
			if _, ok := g.states[target]; !ok {
				errs = append(errs, fmt.Errorf("graph %s: transition %q -> unknown state %q", g.name, from, target))
			}
		}
	}

	hasTerminal := false
	for name, state := range g.states {
		if state.Terminal() {
			hasTerminal = true
			g.terminal = append(g.terminal, name)
			continue
		}
		if len(g.transitions[name]) == 0 {
			errs = append(errs, fmt.Errorf("graph %s: state %q has a handler but no outgoing transitions", g.name, name))
		}
	}
	if !hasTerminal {
		errs = append(errs, fmt.Errorf("graph %s: no terminal state", g.name))
	}
	sort.Strings(g.terminal)

	if len(errs) > 0 {
		return nil, errs[0]
	}
	return g, nil
}

// MustBuild is Build that panics on an invalid graph.
func (b *Builder) MustBuild() *Graph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}
