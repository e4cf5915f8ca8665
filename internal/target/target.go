// Package target provides filesystem-backed artifact handles.
// A target names one output file of a pipeline stage; the scheduler
// uses target existence to decide whether a stage needs to run.
package target

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when a target is opened for read but the
// underlying file does not exist.
var ErrNotFound = errors.New("target not found")

// Format hints at how a target's contents should be handled.
type Format int

const (
	FormatText  Format = iota // line-oriented text output
	FormatBytes               // opaque bytes (archives, logs captured verbatim)
)

// File is a handle to a named, filesystem-resident artifact.
// It is a value type: two File handles with the same path refer to the
// same artifact. The scheduler never deletes the underlying file.
type File struct {
	Name   string // logical name within the owning stage
	Path   string // absolute or out-dir-relative filesystem path
	Format Format
}

// NewFile creates a file target with the default text format.
func NewFile(name, path string) *File {
	return &File{Name: name, Path: path, Format: FormatText}
}

// NewBytesFile creates a file target whose contents are opaque bytes.
func NewBytesFile(name, path string) *File {
	return &File{Name: name, Path: path, Format: FormatBytes}
}

// Exists reports whether the artifact is present.
// A file-backed target only counts as existing when it is a regular,
// non-empty file; a zero-byte file is indistinguishable from an
// interrupted write and is treated as absent.
func (f *File) Exists() bool {
	info, err := os.Stat(f.Path)
	if err != nil {
		return false
	}
	if !info.Mode().IsRegular() {
		return false
	}
	return info.Size() > 0
}

// OpenRead opens the artifact for reading.
// Returns ErrNotFound (wrapped) when the file does not exist.
func (f *File) OpenRead() (io.ReadCloser, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("opening %s: %w", f.Path, ErrNotFound)
		}
		return nil, fmt.Errorf("opening %s: %w", f.Path, err)
	}
	return fh, nil
}

// Create opens the artifact for writing, truncating any previous
// contents and creating parent directories as needed. The caller owns
// the returned handle and must close it on all exit paths.
func (f *File) Create() (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return nil, fmt.Errorf("creating directory for %s: %w", f.Path, err)
	}
	fh, err := os.Create(f.Path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", f.Path, err)
	}
	return fh, nil
}

// WriteBytes writes data to the artifact in one shot, closing the
// handle on all paths. Convenience for stages that persist captured
// command output into a log target.
func (f *File) WriteBytes(data []byte) error {
	w, err := f.Create()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("writing %s: %w", f.Path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", f.Path, err)
	}
	return nil
}
