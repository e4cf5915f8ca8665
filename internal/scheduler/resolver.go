// Package scheduler resolves pipeline dependency graphs and executes
// stages in dependency order with incremental-build semantics: a stage
// whose declared outputs already exist is skipped, so re-running after
// a partial failure resumes at the first incomplete stage.
package scheduler

import (
	"context"
	"time"

	"github.com/mbiome/ampliconflow/internal/events"
	"github.com/mbiome/ampliconflow/internal/pipeline"
)

// Resolver executes a dependency graph with a depth-first, memoized
// walk. Each node identity is resolved at most once per run; a node's
// Run is invoked only after every transitive dependency has fully
// completed, and only if its declared outputs are incomplete.
//
// A Resolver is single-use: create a fresh one per run.
type Resolver struct {
	bus     *events.EventBus
	journal Journal

	graph    *Graph
	rp       *reporter
	visiting map[string]bool
	path     []string
	resolved map[string]pipeline.Outputs
	ran      []string
}

// NewResolver creates a resolver. The event bus and journal are both
// optional; nil disables the respective reporting.
func NewResolver(bus *events.EventBus, journal Journal) *Resolver {
	return &Resolver{
		bus:      bus,
		journal:  journal,
		visiting: make(map[string]bool),
		resolved: make(map[string]pipeline.Outputs),
	}
}

// Ran returns the IDs of stages whose Run was actually invoked, in
// invocation order.
func (r *Resolver) Ran() []string {
	return append([]string(nil), r.ran...)
}

// Resolve computes the transitive dependency closure of root and
// executes it. The returned outputs are the root's declared artifacts.
// The first failure aborts resolution; no dependent of a failed stage
// is visited.
func (r *Resolver) Resolve(ctx context.Context, root pipeline.Node) (pipeline.Outputs, error) {
	// Flatten and cycle-check the whole graph before running anything,
	// so a cycle buried behind completed stages still rejects the run.
	graph, err := BuildGraph(root)
	if err != nil {
		return nil, err
	}
	if _, err := graph.Validate(); err != nil {
		return nil, err
	}

	r.graph = graph
	r.rp = &reporter{graph: graph, bus: r.bus, journal: r.journal}
	r.rp.progress()

	return r.resolve(ctx, root)
}

func (r *Resolver) resolve(ctx context.Context, n pipeline.Node) (pipeline.Outputs, error) {
	id := n.ID()

	if outs, done := r.resolved[id]; done {
		return outs, nil
	}
	if r.visiting[id] {
		return nil, &CyclicDependencyError{Path: append(append([]string(nil), r.path...), id)}
	}

	r.visiting[id] = true
	r.path = append(r.path, id)
	defer func() {
		delete(r.visiting, id)
		r.path = r.path[:len(r.path)-1]
	}()

	// Dependencies complete fully, in deterministic key order, before
	// this node is considered at all.
	inputs := make(pipeline.Inputs, len(n.Dependencies()))
	for _, dep := range sortedDeps(n) {
		outs, err := r.resolve(ctx, dep.node)
		if err != nil {
			return nil, err
		}
		inputs[dep.key] = outs
	}

	if pipeline.Complete(n) {
		if len(n.Outputs()) == 0 {
			r.rp.aggregated(id)
		} else {
			r.rp.skipped(ctx, id)
		}
		r.resolved[id] = n.Outputs()
		return r.resolved[id], nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.rp.started(id)
	start := time.Now()

	// Tag the context so invoker decorators can attribute subprocess
	// activity to this stage.
	ctx = pipeline.WithStage(ctx, id)

	if err := n.Run(ctx, inputs); err != nil {
		wrapped := &StageError{Stage: id, Err: err}
		r.rp.failed(ctx, id, time.Since(start), wrapped)
		return nil, wrapped
	}

	// The node claimed success; verify it kept its output promise.
	if missing := pipeline.MissingOutputs(n); len(missing) > 0 {
		err := &IncompleteOutputError{Stage: id, Missing: missing}
		r.rp.failed(ctx, id, time.Since(start), err)
		return nil, err
	}

	r.ran = append(r.ran, id)
	r.rp.completed(ctx, id, time.Since(start))
	r.resolved[id] = n.Outputs()
	return r.resolved[id], nil
}
