package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mbiome/ampliconflow/internal/pipeline"
	"github.com/mbiome/ampliconflow/internal/target"
)

// fakeNode is a minimal pipeline.Node for scheduler tests. Its outputs
// live in a temp dir; runFn defaults to creating every declared output.
type fakeNode struct {
	id    string
	deps  map[string]pipeline.Node
	outs  pipeline.Outputs
	runFn func(ctx context.Context, deps pipeline.Inputs) error
}

func (n *fakeNode) ID() string { return n.id }

func (n *fakeNode) Dependencies() map[string]pipeline.Node {
	if n.deps == nil {
		return map[string]pipeline.Node{}
	}
	return n.deps
}

func (n *fakeNode) Outputs() pipeline.Outputs { return n.outs }

func (n *fakeNode) Run(ctx context.Context, deps pipeline.Inputs) error {
	if n.runFn != nil {
		return n.runFn(ctx, deps)
	}
	for _, t := range n.outs {
		if err := t.WriteBytes([]byte("x")); err != nil {
			return err
		}
	}
	return nil
}

// runLog records execution order across goroutines.
type runLog struct {
	mu  sync.Mutex
	ids []string
}

func (l *runLog) add(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = append(l.ids, id)
}

func (l *runLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ids...)
}

func (l *runLog) index(id string) int {
	for i, got := range l.list() {
		if got == id {
			return i
		}
	}
	return -1
}

func (l *runLog) contains(id string) bool { return l.index(id) >= 0 }

// nodeBuilder wires fakeNodes whose outputs land in one temp dir and
// whose runs append to a shared log.
type nodeBuilder struct {
	t   *testing.T
	dir string
	log *runLog
}

func newNodeBuilder(t *testing.T) *nodeBuilder {
	t.Helper()
	return &nodeBuilder{t: t, dir: t.TempDir(), log: &runLog{}}
}

func (b *nodeBuilder) node(id string, deps ...*fakeNode) *fakeNode {
	depMap := make(map[string]pipeline.Node, len(deps))
	for _, d := range deps {
		depMap[d.id] = d
	}
	n := &fakeNode{
		id:   id,
		deps: depMap,
		outs: pipeline.Outputs{
			"out": target.NewFile("out", filepath.Join(b.dir, id+".out")),
		},
	}
	n.runFn = func(ctx context.Context, _ pipeline.Inputs) error {
		b.log.add(id)
		return n.outs["out"].WriteBytes([]byte(id))
	}
	return n
}
