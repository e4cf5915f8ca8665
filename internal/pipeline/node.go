// Package pipeline defines the task-node contract and the 16S
// amplicon stages that implement it. Each node declares its upstream
// dependencies and output artifacts; the scheduler decides whether a
// node needs to run by checking that every declared output exists.
package pipeline

import (
	"context"

	"github.com/mbiome/ampliconflow/internal/target"
)

// Outputs is a node's declared artifact set, keyed by logical name.
type Outputs map[string]*target.File

// Inputs carries the resolved outputs of a node's dependencies into
// Run, keyed first by dependency key, then by artifact name.
type Inputs map[string]Outputs

// File returns the named artifact of the given dependency, or nil if
// either key is absent. The resolver guarantees declared dependencies
// are present by the time Run is invoked.
func (in Inputs) File(dep, name string) *target.File {
	outs, ok := in[dep]
	if !ok {
		return nil
	}
	return outs[name]
}

// Node is one pipeline stage: dependencies, declared outputs, and a
// run procedure that produces those outputs.
//
// Dependencies and Outputs must be pure functions of the node's
// configuration: deterministic, free of side effects, and callable
// before Run. Dependencies always returns a keyed mapping, even for
// zero or one entries. Run must populate every target declared in
// Outputs; the scheduler verifies this and fails the run otherwise.
type Node interface {
	ID() string
	Dependencies() map[string]Node
	Outputs() Outputs
	Run(ctx context.Context, deps Inputs) error
}

// Complete reports whether every declared output of the node exists.
// This is a conservative presence check: it does not validate content,
// so a prior truncated-but-nonempty output is indistinguishable from a
// valid one.
func Complete(n Node) bool {
	for _, t := range n.Outputs() {
		if !t.Exists() {
			return false
		}
	}
	return true
}

// MissingOutputs returns the logical names of declared outputs that do
// not exist, for diagnostics.
func MissingOutputs(n Node) []string {
	var missing []string
	for name, t := range n.Outputs() {
		if !t.Exists() {
			missing = append(missing, name)
		}
	}
	return missing
}
