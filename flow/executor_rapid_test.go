package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"

	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/crew"
)

// randomGraph draws an acyclic flow graph: method i may only listen to
// methods declared before it, so every draw is a valid DAG.
func randomGraph(t *rapid.T, mkCrew func(name string) *crew.Crew) *Graph {
	n := rapid.IntRange(1, 8).Draw(t, "methods")
	g := NewGraph("random", "")

	for i := 0; i < n; i++ {
		name := fmt.Sprintf("m%d", i)
		m := &Method{Name: name, Action: config.ActionRunCrew, Crew: mkCrew(name)}

		if i == 0 || rapid.Bool().Draw(t, name+"_start") {
			m.Type = config.MethodStart
		} else {
			m.Type = config.MethodListen
			count := rapid.IntRange(1, i).Draw(t, name+"_preds")
			picked := rapid.SliceOfNDistinct(rapid.IntRange(0, i-1), count, count, rapid.ID).
				Draw(t, name+"_pred_set")
			for _, p := range picked {
				m.ListenTo = append(m.ListenTo, fmt.Sprintf("m%d", p))
			}
		}
		if err := g.AddMethod(m); err != nil {
			t.Fatalf("add method: %v", err)
		}
	}
	return g
}

func TestExecutor_CompletionRespectsDependencies(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var counter atomic.Int64
		var mu sync.Mutex
		seq := make(map[string]int64)

		mkCrew := func(name string) *crew.Crew {
			return singleTaskCrew(name, func(_ context.Context, _ crew.Request) (string, error) {
				s := counter.Add(1)
				mu.Lock()
				seq[name] = s
				mu.Unlock()
				return "out-" + name, nil
			})
		}

		g := randomGraph(rt, mkCrew)
		result, err := NewExecutor(WithMaxParallel(3)).Execute(context.Background(), g, "in")
		if err != nil {
			rt.Fatalf("execute: %v", err)
		}

		for _, mr := range result.Methods {
			if mr.State != StateDone {
				rt.Fatalf("method %s finished %s, want DONE", mr.Name, mr.State)
			}
		}
		for _, m := range g.Methods() {
			for _, pred := range m.ListenTo {
				if seq[m.Name] <= seq[pred] {
					rt.Fatalf("method %s (seq %d) completed before predecessor %s (seq %d)",
						m.Name, seq[m.Name], pred, seq[pred])
				}
			}
		}
	})
}

func TestExecutor_FailureBlocksExactlyDescendants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		names := make([]string, 0, 8)

		mkCrew := func(name string) *crew.Crew {
			names = append(names, name)
			return nil // wired after the failing method is chosen
		}

		g := randomGraph(rt, mkCrew)
		failing := names[rapid.IntRange(0, len(names)-1).Draw(rt, "failing")]

		for _, m := range g.Methods() {
			name := m.Name
			if name == failing {
				m.Crew = singleTaskCrew(name, func(_ context.Context, _ crew.Request) (string, error) {
					return "", errors.New(name + " failed")
				})
			} else {
				m.Crew = singleTaskCrew(name, func(_ context.Context, _ crew.Request) (string, error) {
					return "out-" + name, nil
				})
			}
		}

		result, err := NewExecutor(WithMaxParallel(3)).Execute(context.Background(), g, "in")
		if err == nil {
			rt.Fatalf("expected flow error when %s fails", failing)
		}

		blocked := descendantsOf(g, failing)
		for _, mr := range result.Methods {
			switch {
			case mr.Name == failing:
				if mr.State != StateFailed {
					rt.Fatalf("failing method %s finished %s", mr.Name, mr.State)
				}
			case blocked[mr.Name]:
				if mr.State != StatePending || !mr.Skipped {
					rt.Fatalf("descendant %s of failed %s finished %s (skipped=%v), want blocked",
						mr.Name, failing, mr.State, mr.Skipped)
				}
			default:
				if mr.State != StateDone {
					rt.Fatalf("independent method %s finished %s, want DONE", mr.Name, mr.State)
				}
			}
		}
	})
}

// descendantsOf returns every method reachable from root through listen_to
// edges. Those are exactly the methods a failure at root must block.
func descendantsOf(g *Graph, root string) map[string]bool {
	reach := map[string]bool{}
	changed := true
	for changed {
		changed = false
		for _, m := range g.Methods() {
			if reach[m.Name] {
				continue
			}
			for _, pred := range m.ListenTo {
				if pred == root || reach[pred] {
					reach[m.Name] = true
					changed = true
					break
				}
			}
		}
	}
	return reach
}
