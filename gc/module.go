package gc

import (
	"context"

	"github.com/boxlite/boxlite/lock"
)

// Module describes a typed storage module that participates in garbage
// collection. S is the concrete snapshot type returned by ReadDB; other
// modules see it only as `any` during cross-module resolution.
type Module[S any] struct {
	Name string

	// Locker coordinates with in-flight operations (e.g. an image pull).
	// TryLock returning false means GC skips the module this cycle and
	// retries on the next run.
	Locker lock.Locker

	// ReadDB reads the module's current index state. Called while the
	// lock is held — must not re-acquire it.
	ReadDB func(ctx context.Context) (S, error)

	// ResolveTargets analyses this module's own typed snapshot plus every
	// other registered module's snapshot (as `any`) and returns the
	// resource IDs to delete. Called with no lock held.
	ResolveTargets func(snap S, others map[string]any) []string

	// Collect removes the given resource IDs. Called while the lock is
	// held — must not re-acquire it. Invoked even with an empty id list
	// so a module can perform housekeeping (e.g. stale temp cleanup).
	Collect func(ctx context.Context, ids []string) error
}

func (m Module[S]) getName() string      { return m.Name }
func (m Module[S]) getLocker() lock.Locker { return m.Locker }

func (m Module[S]) readSnapshot(ctx context.Context) (any, error) {
	return m.ReadDB(ctx)
}

func (m Module[S]) resolveTargets(snap any, others map[string]any) []string {
	typed, ok := snap.(S)
	if !ok {
		return nil
	}
	return m.ResolveTargets(typed, others)
}

func (m Module[S]) collect(ctx context.Context, ids []string) error {
	return m.Collect(ctx, ids)
}
