package scheduler

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbiome/ampliconflow/internal/events"
	"github.com/mbiome/ampliconflow/internal/pipeline"
)

// ParallelRunner executes independent branches of the dependency
// graph concurrently with bounded concurrency. DAG ordering already
// enforces correctness; the runner adds per-stage at-most-once
// execution and per-artifact-path locking so no two writers race on
// the same path. Failure semantics match the sequential resolver:
// fail-fast, no retries, dependents of a failed stage never run.
type ParallelRunner struct {
	limit   int
	bus     *events.EventBus
	journal Journal
	locks   *ArtifactLockManager
}

// NewParallelRunner creates a runner with the given concurrency limit.
// A limit below 1 defaults to 4. Bus and journal are optional.
func NewParallelRunner(limit int, bus *events.EventBus, journal Journal) *ParallelRunner {
	if limit < 1 {
		limit = 4
	}
	return &ParallelRunner{
		limit:   limit,
		bus:     bus,
		journal: journal,
		locks:   NewArtifactLockManager(),
	}
}

// Run resolves and executes everything the root transitively depends
// on, then the root itself. Sibling subtrees with no dependency
// relation may execute concurrently; each wave completes before the
// next eligibility check.
func (p *ParallelRunner) Run(ctx context.Context, root pipeline.Node) error {
	graph, err := BuildGraph(root)
	if err != nil {
		return err
	}
	if _, err := graph.Validate(); err != nil {
		return err
	}

	rp := &reporter{graph: graph, bus: p.bus, journal: p.journal}
	rp.progress()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		eligible := graph.Eligible()
		if len(eligible) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.limit)

		for _, n := range eligible {
			n := n
			g.Go(func() error {
				return p.executeStage(gctx, graph, rp, n)
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}
	}

	// Pending stages left behind mean something blocked their
	// dependency chain; Eligible going empty is then not success.
	c := graph.Counts()
	if c.Failed > 0 || c.Pending > 0 {
		return fmt.Errorf("run stopped with %d failed and %d blocked stages", c.Failed, c.Pending)
	}
	return nil
}

// executeStage runs one eligible stage: lock its output paths, check
// completeness, run if needed, verify the declared outputs appeared.
func (p *ParallelRunner) executeStage(ctx context.Context, graph *Graph, rp *reporter, n pipeline.Node) error {
	id := n.ID()

	paths := outputPaths(n)
	p.locks.LockAll(paths)
	defer p.locks.UnlockAll(paths)

	if pipeline.Complete(n) {
		if len(n.Outputs()) == 0 {
			rp.aggregated(id)
		} else {
			rp.skipped(ctx, id)
		}
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// Dependency outputs are pure functions of configuration and all
	// dependencies are complete by eligibility, so they can be
	// collected directly.
	inputs := make(pipeline.Inputs, len(n.Dependencies()))
	for _, dep := range sortedDeps(n) {
		inputs[dep.key] = dep.node.Outputs()
	}

	rp.started(id)
	start := time.Now()

	if err := n.Run(pipeline.WithStage(ctx, id), inputs); err != nil {
		wrapped := &StageError{Stage: id, Err: err}
		rp.failed(ctx, id, time.Since(start), wrapped)
		return wrapped
	}

	if missing := pipeline.MissingOutputs(n); len(missing) > 0 {
		err := &IncompleteOutputError{Stage: id, Missing: missing}
		rp.failed(ctx, id, time.Since(start), err)
		return err
	}

	rp.completed(ctx, id, time.Since(start))
	return nil
}

func outputPaths(n pipeline.Node) []string {
	outs := n.Outputs()
	paths := make([]string, 0, len(outs))
	for _, t := range outs {
		paths = append(paths, t.Path)
	}
	return paths
}
