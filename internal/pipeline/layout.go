package pipeline

import (
	"os"
	"path/filepath"
)

// Layout resolves stage output paths under a single configured root.
// It is injected into every node at construction; the scheduler knows
// nothing about the directory structure.
type Layout struct {
	Root string
}

// DenoiseDir is where DADA2 outputs land.
func (l Layout) DenoiseDir() string { return filepath.Join(l.Root, "dada2") }

// TaxonomyDir is where classification outputs land.
func (l Layout) TaxonomyDir() string { return filepath.Join(l.Root, "taxonomy") }

// ExportDir is where exported/converted tables land.
func (l Layout) ExportDir() string { return filepath.Join(l.Root, "exported") }

// ensureDir creates a directory (and parents) before a tool writes
// into it. Tools like qiime fail rather than create their destination.
func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
