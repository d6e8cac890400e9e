package flow

import (
	"fmt"

	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/crew"
)

// Method is one named node in a flow's dependency graph.
type Method struct {
	// Name is unique within the flow.
	Name string
	// Type is start (entry point) or listen (triggered by predecessors).
	Type config.MethodType
	// ListenTo names the predecessors that must all be done before this
	// method becomes ready. Empty for start methods.
	ListenTo []string
	// Action selects what the method does when dispatched.
	Action config.ActionKind
	// Crew is the target crew for run_crew actions, wired by reference.
	Crew *crew.Crew
	// Output, when set, is recorded as the method result instead of the
	// raw crew output.
	Output string
}

// Graph is the immutable dependency graph of one flow. Per-run state lives
// in a runState keyed off the graph, so a Graph may serve concurrent runs.
type Graph struct {
	Name      string
	ClassName string

	methods []*Method
	byName  map[string]*Method
}

// NewGraph creates an empty flow graph.
func NewGraph(name, className string) *Graph {
	return &Graph{
		Name:      name,
		ClassName: className,
		byName:    make(map[string]*Method),
	}
}

// AddMethod appends a method. Methods keep their declaration order, which
// fixes dispatch and result-concatenation order.
func (g *Graph) AddMethod(m *Method) error {
	if _, exists := g.byName[m.Name]; exists {
		return fmt.Errorf("duplicate flow method: %s", m.Name)
	}
	g.methods = append(g.methods, m)
	g.byName[m.Name] = m
	return nil
}

// Method looks up a method by name.
func (g *Graph) Method(name string) (*Method, bool) {
	m, ok := g.byName[name]
	return m, ok
}

// Methods returns all methods in declaration order.
func (g *Graph) Methods() []*Method {
	return g.methods
}

// Starts returns the entry-point methods in declaration order.
func (g *Graph) Starts() []*Method {
	var starts []*Method
	for _, m := range g.methods {
		if m.Type == config.MethodStart {
			starts = append(starts, m)
		}
	}
	return starts
}

// Sinks returns the methods no other method listens to, in declaration
// order. The flow's own result is assembled from these.
func (g *Graph) Sinks() []*Method {
	listened := make(map[string]bool)
	for _, m := range g.methods {
		for _, pred := range m.ListenTo {
			listened[pred] = true
		}
	}
	var sinks []*Method
	for _, m := range g.methods {
		if !listened[m.Name] {
			sinks = append(sinks, m)
		}
	}
	return sinks
}
