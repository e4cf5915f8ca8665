package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mbiome/ampliconflow/internal/events"
	"github.com/mbiome/ampliconflow/internal/pipeline"
)

// memJournal records dispositions in memory.
type memJournal struct {
	mu      sync.Mutex
	records []string
}

func (j *memJournal) RecordStage(ctx context.Context, stage, disposition string, duration time.Duration, runErr error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, fmt.Sprintf("%s:%s", stage, disposition))
	return nil
}

func (j *memJournal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.records...)
}

func aggregateOver(id string, deps ...*fakeNode) *fakeNode {
	depMap := make(map[string]pipeline.Node, len(deps))
	for _, d := range deps {
		depMap[d.id] = d
	}
	return &fakeNode{id: id, deps: depMap, outs: pipeline.Outputs{}}
}

// A zero-output aggregate is never a real disposition: it must not be
// journaled or announced as skipped, so a fresh run reports every real
// stage completed and nothing skipped.
func TestAggregateNodeNotReportedAsSkipped(t *testing.T) {
	b := newNodeBuilder(t)
	x := b.node("x")
	y := b.node("y")
	root := aggregateOver("everything", x, y)

	jrn := &memJournal{}
	if _, err := NewResolver(nil, jrn).Resolve(context.Background(), root); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	for _, rec := range jrn.list() {
		if rec == "everything:skipped" || rec == "everything:completed" {
			t.Errorf("aggregate must not be journaled, got %q", rec)
		}
	}
	if got := jrn.list(); len(got) != 2 {
		t.Errorf("expected exactly the two real stages journaled, got %v", got)
	}
}

func TestAggregateNodePublishesNoStageEvents(t *testing.T) {
	b := newNodeBuilder(t)
	x := b.node("x")
	root := aggregateOver("everything", x)

	bus := events.NewEventBus()
	ch := bus.SubscribeAll(64)

	if _, err := NewResolver(bus, nil).Resolve(context.Background(), root); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	bus.Close()

	var lastProgress events.PipelineProgressEvent
	for ev := range ch {
		switch e := ev.(type) {
		case events.PipelineProgressEvent:
			lastProgress = e
		default:
			if ev.StageID() == "everything" {
				t.Errorf("unexpected stage event %s for the aggregate", ev.EventType())
			}
		}
	}

	// The aggregate still counts toward the totals, as completed.
	if lastProgress.Total != 2 || lastProgress.Completed != 2 || lastProgress.Skipped != 0 || lastProgress.Pending != 0 {
		t.Errorf("unexpected final progress: %+v", lastProgress)
	}
}

func TestParallelAggregateNotReportedAsSkipped(t *testing.T) {
	b := newNodeBuilder(t)
	x := b.node("x")
	y := b.node("y")
	root := aggregateOver("everything", x, y)

	jrn := &memJournal{}
	if err := NewParallelRunner(2, nil, jrn).Run(context.Background(), root); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, rec := range jrn.list() {
		if rec == "everything:skipped" {
			t.Errorf("aggregate must not be journaled as skipped, got %q", rec)
		}
	}
	if got := jrn.list(); len(got) != 2 {
		t.Errorf("expected exactly the two real stages journaled, got %v", got)
	}
}
