package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mbiome/ampliconflow/internal/pipeline"
)

func TestResolveRunsDependenciesFirst(t *testing.T) {
	b := newNodeBuilder(t)
	a := b.node("a")
	bn := b.node("b", a)
	c := b.node("c", bn)

	outs, err := NewResolver(nil, nil).Resolve(context.Background(), c)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if got := b.log.list(); len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("expected run order [a b c], got %v", got)
	}
	if outs["out"] == nil || !outs["out"].Exists() {
		t.Error("expected root output artifact to exist after resolution")
	}
}

func TestResolveMemoizesSharedDependency(t *testing.T) {
	// Diamond: d depends on b and c, both of which depend on a.
	b := newNodeBuilder(t)
	a := b.node("a")
	bn := b.node("b", a)
	c := b.node("c", a)
	d := b.node("d", bn, c)

	if _, err := NewResolver(nil, nil).Resolve(context.Background(), d); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	runs := 0
	for _, id := range b.log.list() {
		if id == "a" {
			runs++
		}
	}
	if runs != 1 {
		t.Errorf("expected shared dependency to run exactly once, ran %d times", runs)
	}
}

func TestResolveSkipsCompleteStages(t *testing.T) {
	b := newNodeBuilder(t)
	a := b.node("a")
	bn := b.node("b", a)

	// First run produces everything.
	r1 := NewResolver(nil, nil)
	if _, err := r1.Resolve(context.Background(), bn); err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	if ran := r1.Ran(); len(ran) != 2 {
		t.Fatalf("expected both stages to run first time, got %v", ran)
	}

	// Second run finds every output present and runs nothing.
	r2 := NewResolver(nil, nil)
	if _, err := r2.Resolve(context.Background(), bn); err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if ran := r2.Ran(); len(ran) != 0 {
		t.Errorf("expected no stages to run second time, got %v", ran)
	}
}

func TestResolveResumesAfterPartialFailure(t *testing.T) {
	b := newNodeBuilder(t)
	a := b.node("a")
	bn := b.node("b", a)
	c := b.node("c", bn)

	// First run: b fails after a completed.
	boom := errors.New("tool exploded")
	realRun := bn.runFn
	bn.runFn = func(ctx context.Context, deps pipeline.Inputs) error { return boom }

	_, err := NewResolver(nil, nil).Resolve(context.Background(), c)
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected StageError, got: %v", err)
	}
	if stageErr.Stage != "b" {
		t.Errorf("expected failure attributed to b, got %q", stageErr.Stage)
	}
	if !errors.Is(err, boom) {
		t.Error("expected underlying error to be preserved through the wrap")
	}
	if b.log.contains("c") {
		t.Error("dependent of failed stage must not run")
	}

	// Second run: a is skipped, b and c execute.
	bn.runFn = realRun
	r := NewResolver(nil, nil)
	if _, err := r.Resolve(context.Background(), c); err != nil {
		t.Fatalf("resumed Resolve failed: %v", err)
	}
	if ran := r.Ran(); len(ran) != 2 || ran[0] != "b" || ran[1] != "c" {
		t.Errorf("expected resume to run [b c], got %v", ran)
	}
}

func TestResolveRejectsIncompleteOutputs(t *testing.T) {
	b := newNodeBuilder(t)
	a := b.node("a")
	// Claims success without creating its declared output.
	a.runFn = func(ctx context.Context, deps pipeline.Inputs) error { return nil }

	_, err := NewResolver(nil, nil).Resolve(context.Background(), a)
	var incErr *IncompleteOutputError
	if !errors.As(err, &incErr) {
		t.Fatalf("expected IncompleteOutputError, got: %v", err)
	}
	if incErr.Stage != "a" {
		t.Errorf("expected stage a, got %q", incErr.Stage)
	}
	if len(incErr.Missing) != 1 || incErr.Missing[0] != "out" {
		t.Errorf("expected missing [out], got %v", incErr.Missing)
	}
}

func TestResolveDetectsCycle(t *testing.T) {
	b := newNodeBuilder(t)
	a := b.node("a")
	bn := b.node("b", a)
	a.deps = map[string]pipeline.Node{"b": bn}

	_, err := NewResolver(nil, nil).Resolve(context.Background(), bn)
	var cycErr *CyclicDependencyError
	if !errors.As(err, &cycErr) {
		t.Fatalf("expected CyclicDependencyError, got: %v", err)
	}
	if b.log.contains("a") || b.log.contains("b") {
		t.Error("no stage may run when the graph is cyclic")
	}
}

func TestResolveHonorsCancellation(t *testing.T) {
	b := newNodeBuilder(t)
	a := b.node("a")
	bn := b.node("b", a)

	ctx, cancel := context.WithCancel(context.Background())
	realRun := a.runFn
	a.runFn = func(ctx context.Context, deps pipeline.Inputs) error {
		cancel() // cancel mid-run; b must not start
		return realRun(ctx, deps)
	}

	_, err := NewResolver(nil, nil).Resolve(ctx, bn)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
	if b.log.contains("b") {
		t.Error("stage b must not run after cancellation")
	}
}

func TestResolveDeterministicDependencyOrder(t *testing.T) {
	// Many siblings; the memoized walk must visit them in sorted key
	// order regardless of map iteration order.
	b := newNodeBuilder(t)
	var siblings []*fakeNode
	for i := 0; i < 8; i++ {
		siblings = append(siblings, b.node(fmt.Sprintf("s%d", i)))
	}
	root := b.node("root", siblings...)

	if _, err := NewResolver(nil, nil).Resolve(context.Background(), root); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	got := b.log.list()
	want := []string{"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7", "root"}
	if len(got) != len(want) {
		t.Fatalf("expected %d runs, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected deterministic order %v, got %v", want, got)
		}
	}
}
