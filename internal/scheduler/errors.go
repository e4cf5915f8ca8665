package scheduler

import (
	"fmt"
	"sort"
	"strings"
)

// CyclicDependencyError reports a dependency cycle discovered during
// resolution. Path lists the node IDs along the cycle, ending at the
// node that closed it.
type CyclicDependencyError struct {
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	if len(e.Path) == 0 {
		return "cyclic dependency detected"
	}
	return fmt.Sprintf("cyclic dependency: %s", strings.Join(e.Path, " -> "))
}

// IncompleteOutputError reports a node whose Run returned without
// error but left one or more declared outputs missing.
type IncompleteOutputError struct {
	Stage   string
	Missing []string
}

func (e *IncompleteOutputError) Error() string {
	missing := append([]string(nil), e.Missing...)
	sort.Strings(missing)
	return fmt.Sprintf("stage %q ran but did not produce declared outputs: %s",
		e.Stage, strings.Join(missing, ", "))
}

// StageError wraps any failure with the identity of the stage it
// originated from, so the first error surfaced to the user always
// names the failing node.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
