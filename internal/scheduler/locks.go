package scheduler

import (
	"sort"
	"sync"
)

// ArtifactLockManager provides per-path mutual exclusion for
// concurrent stage execution. Each artifact path gets its own mutex,
// so stages writing different paths proceed concurrently while two
// writers of the same path serialize. With at-most-once execution per
// stage the second writer never occurs, but the locks also keep the
// completeness check and the write that follows it atomic per path.
type ArtifactLockManager struct {
	mu    sync.Mutex             // guards the locks map itself
	locks map[string]*sync.Mutex // per-path mutexes
}

// NewArtifactLockManager creates a new ArtifactLockManager.
func NewArtifactLockManager() *ArtifactLockManager {
	return &ArtifactLockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for the given artifact path, creating it on
// first use.
func (m *ArtifactLockManager) Lock(path string) {
	m.mu.Lock()
	pathLock, exists := m.locks[path]
	if !exists {
		pathLock = &sync.Mutex{}
		m.locks[path] = pathLock
	}
	m.mu.Unlock()

	// Acquire outside the manager lock to avoid contention.
	pathLock.Lock()
}

// Unlock releases the mutex for the given artifact path.
func (m *ArtifactLockManager) Unlock(path string) {
	m.mu.Lock()
	pathLock, exists := m.locks[path]
	m.mu.Unlock()

	if exists {
		pathLock.Unlock()
	}
}

// LockAll acquires locks for all given paths in lexicographic order.
// Sorted acquisition prevents deadlock between stages whose output
// sets overlap.
func (m *ArtifactLockManager) LockAll(paths []string) {
	if len(paths) == 0 {
		return
	}

	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	for _, path := range sorted {
		m.Lock(path)
	}
}

// UnlockAll releases locks for all given paths in reverse sorted
// order, symmetric with LockAll.
func (m *ArtifactLockManager) UnlockAll(paths []string) {
	if len(paths) == 0 {
		return
	}

	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	for i := len(sorted) - 1; i >= 0; i-- {
		m.Unlock(sorted[i])
	}
}
