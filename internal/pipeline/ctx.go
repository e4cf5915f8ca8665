package pipeline

import (
	"context"
)

// stageKey is an unexported context key type to avoid collisions.
type stageKey struct{}

// WithStage returns a context carrying the ID of the stage currently
// executing. The scheduler sets it around Run so invoker decorators
// (journal recording, event publishing) can attribute commands to a
// stage without widening the Invoker interface.
func WithStage(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, stageKey{}, id)
}

// StageFromContext returns the executing stage's ID, or "" when the
// context carries none.
func StageFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(stageKey{}).(string); ok {
		return id
	}
	return ""
}
