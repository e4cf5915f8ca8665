package events

import (
	"bufio"
	"bytes"
	"context"
	"time"

	"github.com/mbiome/ampliconflow/internal/pipeline"
	"github.com/mbiome/ampliconflow/internal/runner"
)

// outputLineLimit caps how many captured lines are published per
// invocation so a chatty tool cannot flood subscribers.
const outputLineLimit = 500

// PublishingInvoker wraps an Invoker and publishes the captured output
// of every invocation to the bus as StageOutputEvent lines, attributed
// to the stage recorded in the context.
type PublishingInvoker struct {
	inv runner.Invoker
	bus *EventBus
}

// NewPublishingInvoker wraps inv with event publishing.
func NewPublishingInvoker(inv runner.Invoker, bus *EventBus) *PublishingInvoker {
	return &PublishingInvoker{inv: inv, bus: bus}
}

// Run executes the command through the wrapped invoker, then publishes
// its combined output line by line. The result and error propagate
// unchanged.
func (pi *PublishingInvoker) Run(ctx context.Context, cmd runner.Command) (runner.Result, error) {
	stage := pipeline.StageFromContext(ctx)

	pi.bus.Publish(TopicStage, StageOutputEvent{
		ID:        stage,
		Line:      "$ " + cmd.String(),
		Timestamp: time.Now(),
	})

	res, err := pi.inv.Run(ctx, cmd)

	pi.publishLines(stage, res.Stdout)
	pi.publishLines(stage, res.Stderr)

	return res, err
}

func (pi *PublishingInvoker) publishLines(stage string, out []byte) {
	if len(out) == 0 {
		return
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	n := 0
	for sc.Scan() && n < outputLineLimit {
		pi.bus.Publish(TopicStage, StageOutputEvent{
			ID:        stage,
			Line:      sc.Text(),
			Timestamp: time.Now(),
		})
		n++
	}
}
