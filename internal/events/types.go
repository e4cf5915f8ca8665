package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	StageID() string
}

// Topic constants
const (
	TopicStage    = "stage"
	TopicPipeline = "pipeline"
)

// Event type constants
const (
	EventTypeStageStarted     = "stage.started"
	EventTypeStageSkipped     = "stage.skipped"
	EventTypeStageCompleted   = "stage.completed"
	EventTypeStageFailed      = "stage.failed"
	EventTypeStageOutput      = "stage.output"
	EventTypePipelineProgress = "pipeline.progress"
)

// StageStartedEvent is published when a stage begins execution. The
// command lines it goes on to run arrive as StageOutputEvents.
type StageStartedEvent struct {
	ID        string
	Timestamp time.Time
}

func (e StageStartedEvent) EventType() string { return EventTypeStageStarted }
func (e StageStartedEvent) StageID() string   { return e.ID }

// StageSkippedEvent is published when a stage's declared outputs
// already exist and execution is skipped.
type StageSkippedEvent struct {
	ID        string
	Timestamp time.Time
}

func (e StageSkippedEvent) EventType() string { return EventTypeStageSkipped }
func (e StageSkippedEvent) StageID() string   { return e.ID }

// StageCompletedEvent is published when a stage completes successfully.
type StageCompletedEvent struct {
	ID        string
	Duration  time.Duration
	Timestamp time.Time
}

func (e StageCompletedEvent) EventType() string { return EventTypeStageCompleted }
func (e StageCompletedEvent) StageID() string   { return e.ID }

// StageFailedEvent is published when a stage fails.
type StageFailedEvent struct {
	ID        string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e StageFailedEvent) EventType() string { return EventTypeStageFailed }
func (e StageFailedEvent) StageID() string   { return e.ID }

// StageOutputEvent carries a line of captured tool output.
type StageOutputEvent struct {
	ID        string
	Line      string
	Timestamp time.Time
}

func (e StageOutputEvent) EventType() string { return EventTypeStageOutput }
func (e StageOutputEvent) StageID() string   { return e.ID }

// PipelineProgressEvent is published whenever a stage changes state.
type PipelineProgressEvent struct {
	Total     int
	Completed int
	Skipped   int
	Running   int
	Failed    int
	Pending   int
	Timestamp time.Time
}

func (e PipelineProgressEvent) EventType() string { return EventTypePipelineProgress }
func (e PipelineProgressEvent) StageID() string   { return "" }
