package pipeline

import (
	"fmt"
)

// MissingInputError reports a required external input file (manifest,
// classifier) that was absent or unreadable before a stage invoked its
// tool. It is fatal to the whole run.
type MissingInputError struct {
	Stage string
	Path  string
	Err   error
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("stage %q: required input %s is missing: %v", e.Stage, e.Path, e.Err)
}

func (e *MissingInputError) Unwrap() error { return e.Err }
