package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockSerializesSamePath(t *testing.T) {
	m := NewArtifactLockManager()

	var inCritical int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("/data/table.qza")
			defer m.Unlock("/data/table.qza")

			if atomic.AddInt32(&inCritical, 1) > 1 {
				t.Error("two goroutines held the same path lock")
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inCritical, -1)
		}()
	}
	wg.Wait()
}

func TestLockDifferentPathsIndependent(t *testing.T) {
	m := NewArtifactLockManager()

	m.Lock("/data/a")
	done := make(chan struct{})
	go func() {
		m.Lock("/data/b")
		m.Unlock("/data/b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different path must not block")
	}
	m.Unlock("/data/a")
}

func TestLockAllAvoidsDeadlockOnOverlap(t *testing.T) {
	m := NewArtifactLockManager()

	// Two goroutines acquire overlapping path sets given in opposite
	// orders; sorted acquisition must prevent deadlock.
	paths1 := []string{"/data/a", "/data/b", "/data/c"}
	paths2 := []string{"/data/c", "/data/b", "/data/a"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		for _, paths := range [][]string{paths1, paths2} {
			wg.Add(1)
			go func(paths []string) {
				defer wg.Done()
				m.LockAll(paths)
				time.Sleep(time.Millisecond)
				m.UnlockAll(paths)
			}(paths)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("LockAll deadlocked on overlapping path sets")
	}
}

func TestLockAllEmptyIsNoop(t *testing.T) {
	m := NewArtifactLockManager()
	m.LockAll(nil)
	m.UnlockAll(nil)
}
