package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gammazero/toposort"

	"github.com/mbiome/ampliconflow/internal/pipeline"
)

// StageStatus represents the current state of a stage within one run.
type StageStatus int

const (
	StagePending   StageStatus = iota // waiting for dependencies
	StageRunning                      // currently executing
	StageCompleted                    // ran and produced its outputs
	StageSkipped                      // outputs already existed, run not invoked
	StageFailed                       // ran and failed
)

// Counts is a snapshot of per-status stage totals.
type Counts struct {
	Total     int
	Completed int
	Skipped   int
	Running   int
	Failed    int
	Pending   int
}

// Graph is the flattened dependency graph of one run: every node
// reachable from the requested roots, indexed by ID, with per-stage
// status tracking for concurrent execution.
type Graph struct {
	mu         sync.RWMutex
	nodes      map[string]pipeline.Node
	deps       map[string][]string // stage ID -> dependency IDs (sorted)
	dependents map[string][]string // stage ID -> stages that depend on it
	status     map[string]StageStatus
}

// BuildGraph walks Dependencies from the requested roots and collects
// the transitive closure. Cycles are detected during the walk and
// reported as CyclicDependencyError before any stage runs.
func BuildGraph(roots ...pipeline.Node) (*Graph, error) {
	g := &Graph{
		nodes:      make(map[string]pipeline.Node),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
		status:     make(map[string]StageStatus),
	}

	visiting := make(map[string]bool)
	var path []string

	var walk func(n pipeline.Node) error
	walk = func(n pipeline.Node) error {
		id := n.ID()
		if _, done := g.nodes[id]; done {
			return nil
		}
		if visiting[id] {
			return &CyclicDependencyError{Path: append(append([]string(nil), path...), id)}
		}

		visiting[id] = true
		path = append(path, id)

		depIDs := make([]string, 0, len(n.Dependencies()))
		for _, dep := range sortedDeps(n) {
			if err := walk(dep.node); err != nil {
				return err
			}
			depIDs = append(depIDs, dep.node.ID())
		}

		path = path[:len(path)-1]
		delete(visiting, id)

		g.nodes[id] = n
		g.deps[id] = depIDs
		g.status[id] = StagePending
		for _, depID := range depIDs {
			g.dependents[depID] = append(g.dependents[depID], id)
		}
		return nil
	}

	for _, root := range roots {
		if err := walk(root); err != nil {
			return nil, err
		}
	}

	return g, nil
}

type keyedDep struct {
	key  string
	node pipeline.Node
}

// sortedDeps returns a node's dependencies in deterministic key order.
func sortedDeps(n pipeline.Node) []keyedDep {
	deps := n.Dependencies()
	keys := make([]string, 0, len(deps))
	for k := range deps {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]keyedDep, 0, len(keys))
	for _, k := range keys {
		out = append(out, keyedDep{key: k, node: deps[k]})
	}
	return out
}

// Validate runs a topological sort over the graph and returns stage
// IDs in execution order. A cycle that survived construction (a node
// whose Dependencies changed between calls) surfaces here as
// CyclicDependencyError.
func (g *Graph) Validate() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var edges []toposort.Edge
	for id := range g.nodes {
		depIDs := g.deps[id]
		if len(depIDs) == 0 {
			// Edge from nil ensures dependency-free stages are included.
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, depID := range depIDs {
			edges = append(edges, toposort.Edge{depID, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, &CyclicDependencyError{}
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	if len(order) != len(g.nodes) {
		missing := []string{}
		found := make(map[string]bool)
		for _, id := range order {
			found[id] = true
		}
		for id := range g.nodes {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("topological sort lost %d stages: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}

// Eligible returns all pending stages whose dependencies have all
// completed or been skipped. A failed dependency permanently blocks
// its dependents: the run is fail-fast with no partial rollback.
func (g *Graph) Eligible() []pipeline.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var eligible []pipeline.Node
	for id, n := range g.nodes {
		if g.status[id] != StagePending {
			continue
		}

		ready := true
		for _, depID := range g.deps[id] {
			switch g.status[depID] {
			case StageCompleted, StageSkipped:
			default:
				ready = false
			}
		}
		if ready {
			eligible = append(eligible, n)
		}
	}

	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID() < eligible[j].ID() })
	return eligible
}

// Node returns the stage with the given ID.
func (g *Graph) Node(id string) (pipeline.Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of stages in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// SetStatus records a stage's state transition.
func (g *Graph) SetStatus(id string, s StageStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status[id] = s
}

// Status returns a stage's current state.
func (g *Graph) Status(id string) StageStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status[id]
}

// Counts returns a snapshot of per-status totals.
func (g *Graph) Counts() Counts {
	g.mu.RLock()
	defer g.mu.RUnlock()

	c := Counts{Total: len(g.nodes)}
	for _, s := range g.status {
		switch s {
		case StageCompleted:
			c.Completed++
		case StageSkipped:
			c.Skipped++
		case StageRunning:
			c.Running++
		case StageFailed:
			c.Failed++
		default:
			c.Pending++
		}
	}
	return c
}
