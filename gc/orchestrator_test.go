package gc

import (
	"context"
	"sync"
	"testing"

	"github.com/boxlite/boxlite/lock"
)

type memLocker struct {
	mu sync.Mutex
}

func (m *memLocker) Lock(context.Context) error { m.mu.Lock(); return nil }
func (m *memLocker) Unlock(context.Context) error { m.mu.Unlock(); return nil }
func (m *memLocker) TryLock(context.Context) (bool, error) {
	return m.mu.TryLock(), nil
}

var _ lock.Locker = (*memLocker)(nil)

type imageSnapshot struct {
	digests []string
}

type boxSnapshot struct {
	referencedDigests map[string]struct{}
}

func TestOrchestratorCrossModuleResolve(t *testing.T) {
	o := New()
	var collected []string

	Register(o, Module[imageSnapshot]{
		Name:   "images",
		Locker: &memLocker{},
		ReadDB: func(context.Context) (imageSnapshot, error) {
			return imageSnapshot{digests: []string{"a", "b", "c"}}, nil
		},
		ResolveTargets: func(snap imageSnapshot, others map[string]any) []string {
			boxes, ok := others["boxes"].(boxSnapshot)
			if !ok {
				return nil
			}
			var targets []string
			for _, d := range snap.digests {
				if _, referenced := boxes.referencedDigests[d]; !referenced {
					targets = append(targets, d)
				}
			}
			return targets
		},
		Collect: func(_ context.Context, ids []string) error {
			collected = append(collected, ids...)
			return nil
		},
	})

	Register(o, Module[boxSnapshot]{
		Name:   "boxes",
		Locker: &memLocker{},
		ReadDB: func(context.Context) (boxSnapshot, error) {
			return boxSnapshot{referencedDigests: map[string]struct{}{"b": {}}}, nil
		},
		ResolveTargets: func(boxSnapshot, map[string]any) []string { return nil },
		Collect:        func(context.Context, []string) error { return nil },
	})

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(collected) != 2 {
		t.Fatalf("expected 2 unreferenced digests collected, got %v", collected)
	}
}

func TestOrchestratorSkipsBusyModule(t *testing.T) {
	o := New()
	busy := &memLocker{}
	busy.mu.Lock() // simulate an in-flight operation holding the lock

	readCalled := false
	Register(o, Module[int]{
		Name:   "busy",
		Locker: busy,
		ReadDB: func(context.Context) (int, error) {
			readCalled = true
			return 0, nil
		},
		ResolveTargets: func(int, map[string]any) []string { return nil },
		Collect:        func(context.Context, []string) error { return nil },
	})

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if readCalled {
		t.Fatalf("expected ReadDB not to be called while module is locked")
	}
}
