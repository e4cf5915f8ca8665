package scheduler

import (
	"context"
	"time"

	"github.com/mbiome/ampliconflow/internal/events"
)

// Stage dispositions recorded in the run journal.
const (
	DispositionSkipped   = "skipped"
	DispositionCompleted = "completed"
	DispositionFailed    = "failed"
)

// Journal records stage dispositions for a run. Implemented by the
// journal package; nil disables recording.
type Journal interface {
	RecordStage(ctx context.Context, stage, disposition string, duration time.Duration, runErr error) error
}

// reporter fans out stage state transitions to the graph's status map,
// the event bus, and the run journal. Shared by the sequential
// resolver and the parallel runner so both surfaces behave alike.
type reporter struct {
	graph   *Graph
	bus     *events.EventBus
	journal Journal
}

func (rp *reporter) started(id string) {
	rp.graph.SetStatus(id, StageRunning)
	if rp.bus != nil {
		rp.bus.Publish(events.TopicStage, events.StageStartedEvent{ID: id, Timestamp: time.Now()})
	}
	rp.progress()
}

func (rp *reporter) skipped(ctx context.Context, id string) {
	rp.graph.SetStatus(id, StageSkipped)
	if rp.bus != nil {
		rp.bus.Publish(events.TopicStage, events.StageSkippedEvent{ID: id, Timestamp: time.Now()})
	}
	if rp.journal != nil {
		rp.journal.RecordStage(ctx, id, DispositionSkipped, 0, nil)
	}
	rp.progress()
}

// aggregated marks a zero-output aggregate node done. Resolving its
// dependencies was the whole job, so no disposition is journaled and
// no stage event is published; only the progress counters move.
func (rp *reporter) aggregated(id string) {
	rp.graph.SetStatus(id, StageCompleted)
	rp.progress()
}

func (rp *reporter) completed(ctx context.Context, id string, d time.Duration) {
	rp.graph.SetStatus(id, StageCompleted)
	if rp.bus != nil {
		rp.bus.Publish(events.TopicStage, events.StageCompletedEvent{ID: id, Duration: d, Timestamp: time.Now()})
	}
	if rp.journal != nil {
		rp.journal.RecordStage(ctx, id, DispositionCompleted, d, nil)
	}
	rp.progress()
}

func (rp *reporter) failed(ctx context.Context, id string, d time.Duration, err error) {
	rp.graph.SetStatus(id, StageFailed)
	if rp.bus != nil {
		rp.bus.Publish(events.TopicStage, events.StageFailedEvent{ID: id, Err: err, Duration: d, Timestamp: time.Now()})
	}
	if rp.journal != nil {
		rp.journal.RecordStage(ctx, id, DispositionFailed, d, err)
	}
	rp.progress()
}

func (rp *reporter) progress() {
	if rp.bus == nil {
		return
	}
	c := rp.graph.Counts()
	rp.bus.Publish(events.TopicPipeline, events.PipelineProgressEvent{
		Total:     c.Total,
		Completed: c.Completed,
		Skipped:   c.Skipped,
		Running:   c.Running,
		Failed:    c.Failed,
		Pending:   c.Pending,
		Timestamp: time.Now(),
	})
}
