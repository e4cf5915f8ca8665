package journal

import (
	"context"
	"errors"
	"time"

	"github.com/mbiome/ampliconflow/internal/runner"
)

// stderrTailLimit bounds how much captured stderr is persisted per
// invocation.
const stderrTailLimit = 4096

// RecordingInvoker wraps an Invoker and records every external
// invocation (command line, exit code, duration, stderr tail) in the
// journal. Recording failures are swallowed: the journal never decides
// the fate of a run.
type RecordingInvoker struct {
	inv   runner.Invoker
	store Store
}

// NewRecordingInvoker wraps inv with journal recording.
func NewRecordingInvoker(inv runner.Invoker, store Store) *RecordingInvoker {
	return &RecordingInvoker{inv: inv, store: store}
}

// Run executes the command through the wrapped invoker and records the
// outcome before propagating it unchanged.
func (ri *RecordingInvoker) Run(ctx context.Context, cmd runner.Command) (runner.Result, error) {
	start := time.Now()
	res, err := ri.inv.Run(ctx, cmd)
	duration := time.Since(start)

	exitCode := 0
	if err != nil {
		var cmdErr *runner.CommandError
		if errors.As(err, &cmdErr) {
			exitCode = cmdErr.ExitCode
		} else {
			// Launch failures have no exit code.
			exitCode = -1
		}
	}

	ri.store.RecordInvocation(ctx, cmd.String(), exitCode, duration, tail(res.Stderr))

	return res, err
}

func tail(b []byte) string {
	if len(b) <= stderrTailLimit {
		return string(b)
	}
	return string(b[len(b)-stderrTailLimit:])
}
