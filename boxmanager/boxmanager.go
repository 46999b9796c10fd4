// Package boxmanager implements the persisted, multi-process-safe box
// registry and the status state machine that every lifecycle operation
// transitions through.
package boxmanager

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/boxlite/boxlite/gc"
	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/internal/logging"
	"github.com/boxlite/boxlite/layout"
	"github.com/boxlite/boxlite/lock"
	"github.com/boxlite/boxlite/lock/flock"
	"github.com/boxlite/boxlite/storage"
	storejson "github.com/boxlite/boxlite/storage/json"
	"github.com/boxlite/boxlite/types"
	"github.com/boxlite/boxlite/utils"
)

// shimBinaryName is matched against /proc/{pid}/exe by the liveness probe
// (utils.VerifyProcess) so an unrelated process that happens to reuse a
// stale PID is not mistaken for a live box.
const shimBinaryName = "boxlite-shim"

// registry is the on-disk structure persisted as one JSON document, keyed by
// BoxId, mirroring the teacher's VMIndex shape.
type registry struct {
	Boxes map[string]*types.BoxRecord `json:"boxes"`
	Names map[string]string           `json:"names"`
}

// Init implements storage.Initer.
func (r *registry) Init() {
	if r.Boxes == nil {
		r.Boxes = make(map[string]*types.BoxRecord)
	}
	if r.Names == nil {
		r.Names = make(map[string]string)
	}
}

// Manager is the persisted box registry with state-machine enforcement
// (spec §4.2).
type Manager struct {
	layout *layout.Layout
	store  storage.Store[registry]
	locker lock.Locker

	// mu serializes in-process access; the file lock handles cross-process
	// exclusion. Mirrors the teacher's process-wide RWMutex + file-lock
	// combination in hypervisor/db.go's callers.
	mu sync.RWMutex
}

// New opens (creating if absent) the box registry rooted at l.
func New(l *layout.Layout) *Manager {
	return &Manager{
		layout: l,
		store:  storejson.New[registry](l.BoxRegistryLock(), l.BoxRegistryFile()),
		locker: flock.New(l.BoxRegistryLock()),
	}
}

// Locker exposes the registry's file lock so gc.Module can snapshot the
// registry without racing a concurrent writer.
func (m *Manager) Locker() lock.Locker { return m.locker }

// RegisterGC wires the box registry into o: any directory under
// BoxesDir() with no matching registry entry is an orphan — a box
// directory left behind by a crash between PrepareBoxDirs and the first
// successful Create commit, or one CleanupBoxDir only partially removed
// — and is swept, mirroring imagestore.Store.RegisterGC's own
// unreferenced-directory scan.
func (m *Manager) RegisterGC(o *gc.Orchestrator) {
	gc.Register(o, gc.Module[registry]{
		Name:   "boxes",
		Locker: m.locker,
		ReadDB: func(context.Context) (registry, error) {
			// The orchestrator already holds m.locker; m.store.With would take
			// a second flock on the same file, so read the file directly.
			var snap registry
			raw, err := os.ReadFile(m.layout.BoxRegistryFile())
			if err == nil {
				err = json.Unmarshal(raw, &snap)
			} else if os.IsNotExist(err) {
				err = nil
			}
			snap.Init()
			return snap, err
		},
		ResolveTargets: func(snap registry, _ map[string]any) []string {
			entries, err := os.ReadDir(m.layout.BoxesDir())
			if err != nil {
				return nil
			}
			var stale []string
			for _, e := range entries {
				if !e.IsDir() {
					continue
				}
				if _, ok := snap.Boxes[e.Name()]; !ok {
					stale = append(stale, e.Name())
				}
			}
			return stale
		},
		Collect: func(_ context.Context, ids []string) error {
			var errs []error
			for _, id := range ids {
				if err := m.layout.CleanupBoxDir(id); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	})
}

// Create persists a new box record with status Configured. Returns
// boxerr.Config if a box with the same id already exists.
func (m *Manager) Create(ctx context.Context, meta types.BoxMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.store.Update(ctx, func(r *registry) error {
		if _, exists := r.Boxes[meta.ID]; exists {
			return boxerr.Newf(boxerr.Config, "box %s already exists", meta.ID)
		}
		r.Boxes[meta.ID] = &types.BoxRecord{
			Metadata: meta,
			State: types.BoxState{
				Status:      types.BoxConfigured,
				LastUpdated: now(),
			},
		}
		return nil
	})
}

// Get returns the record for id, or boxerr.NotFound.
func (m *Manager) Get(ctx context.Context, id string) (types.BoxRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out types.BoxRecord
	err := m.store.With(ctx, func(r *registry) error {
		rec, ok := r.Boxes[id]
		if !ok {
			return boxerr.Newf(boxerr.NotFound, "box %s", id)
		}
		out = *rec
		return nil
	})
	return out, err
}

// List returns every box record, sorted by id, after running the liveness
// probe (spec §4.2: "for every Running state with PID P, probe existence via
// null signal; if absent, transition to Stopped and clear PID"). A live PID
// that is not running the shim binary is marked Unknown, PID cleared.
func (m *Manager) List(ctx context.Context) ([]types.BoxRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger := logging.WithFunc("boxmanager.List")
	var out []types.BoxRecord
	err := m.store.Update(ctx, func(r *registry) error {
		for id, rec := range r.Boxes {
			if rec.State.Status == types.BoxRunning {
				if !utils.VerifyProcess(rec.State.PID, shimBinaryName) {
					if utils.IsProcessAlive(rec.State.PID) {
						logger.Warnf(ctx, "box %s: pid %d is not %s, marking unknown", id, rec.State.PID, shimBinaryName)
						rec.State.Status = types.BoxUnknown
					} else {
						logger.Warnf(ctx, "box %s: pid %d gone, marking stopped", id, rec.State.PID)
						rec.State.Status = types.BoxStopped
					}
					rec.State.PID = 0
					rec.State.LastUpdated = now()
				}
			}
		}
		out = make([]types.BoxRecord, 0, len(r.Boxes))
		for _, rec := range r.Boxes {
			out = append(out, *rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metadata.ID < out[j].Metadata.ID })
	return out, nil
}

// Update applies fn to the box's mutable state under lock, persisting the
// result iff fn succeeds and the requested transition is legal. fn reports
// the next desired status via the returned types.BoxState's Status field;
// any other mutation (pid, container id) is applied alongside it.
func (m *Manager) Update(ctx context.Context, id string, fn func(types.BoxState) (types.BoxState, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.store.Update(ctx, func(r *registry) error {
		rec, ok := r.Boxes[id]
		if !ok {
			return boxerr.Newf(boxerr.NotFound, "box %s", id)
		}
		next, err := fn(rec.State)
		if err != nil {
			return err
		}
		if next.Status != rec.State.Status && !types.CanTransitionTo(rec.State.Status, next.Status) {
			return boxerr.Newf(boxerr.InvalidState, "box %s: %s -> %s not permitted", id, rec.State.Status, next.Status)
		}
		next.LastUpdated = now()
		rec.State = next
		return nil
	})
}

// Remove deletes the box record. Requires status ∈ {Configured, Stopped,
// Unknown} (spec §4.11 "Removal requires...").
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.store.Update(ctx, func(r *registry) error {
		rec, ok := r.Boxes[id]
		if !ok {
			return boxerr.Newf(boxerr.NotFound, "box %s", id)
		}
		if !rec.State.Status.CanRemove() {
			return boxerr.Newf(boxerr.InvalidState, "box %s: cannot remove from status %s", id, rec.State.Status)
		}
		delete(r.Boxes, id)
		return nil
	})
}

// Resolve resolves a user-supplied reference (exact id or id prefix ≥3
// chars) to a full BoxId, mirroring the teacher's ResolveVMRef.
func (m *Manager) Resolve(ctx context.Context, ref string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var resolved string
	err := m.store.With(ctx, func(r *registry) error {
		if _, ok := r.Boxes[ref]; ok {
			resolved = ref
			return nil
		}
		if len(ref) >= 3 {
			var match string
			for id := range r.Boxes {
				if strings.HasPrefix(id, ref) {
					if match != "" {
						return boxerr.Newf(boxerr.Config, "ambiguous ref %q: multiple matches", ref)
					}
					match = id
				}
			}
			if match != "" {
				resolved = match
				return nil
			}
		}
		return boxerr.Newf(boxerr.NotFound, "box ref %q", ref)
	})
	return resolved, err
}

// now is a seam so tests can avoid depending on wall-clock ordering; the
// zero-arg time.Now() is deliberately the only caller so production
// behavior is unaffected.
func now() time.Time { return time.Now() }
