// Package boxlite is the embeddable entry point for creating, executing
// inside, and tearing down micro-VM "boxes": one pulled OCI image running
// under a single-tenant libkrun/firecracker guest (spec §2, §6).
package boxlite

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/panjf2000/ants/v2"

	"github.com/boxlite/boxlite/boxmanager"
	"github.com/boxlite/boxlite/controlplane"
	"github.com/boxlite/boxlite/controlplane/rpc"
	"github.com/boxlite/boxlite/gc"
	"github.com/boxlite/boxlite/imagestore"
	"github.com/boxlite/boxlite/initpipeline"
	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/internal/logging"
	"github.com/boxlite/boxlite/layout"
	"github.com/boxlite/boxlite/progress"
	"github.com/boxlite/boxlite/rootfsassembler"
	"github.com/boxlite/boxlite/types"
	"github.com/boxlite/boxlite/utils"
)

const (
	defaultDiskSizeGB  = 10
	defaultStopGrace   = 10 * time.Second
	defaultWorkerCount = 32
)

// BoxliteOptions configures one Boxlite instance (spec §6 "BoxliteOptions").
type BoxliteOptions struct {
	RootDir           string
	ImageRegistries   []string
	PoolSize          int
	ShimBinaryPath    string
	EngineKind        string
	GuestInitDiskPath string
}

// BoxOptions configures a single box (spec §6 "BoxOptions").
type BoxOptions struct {
	ImageRef   string
	CPUs       int
	MemoryMiB  int64
	DiskSizeGB int64
	WorkingDir string
	Env        map[string]string
	Volumes    []types.VolumeSpec
	Ports      []types.PortMapping
	Labels     map[string]string
	Detach     bool
}

// Boxlite owns the on-disk layout, image cache, and box registry for one
// root directory. Safe for concurrent use by multiple goroutines.
type Boxlite struct {
	opts      BoxliteOptions
	layout    *layout.Layout
	images    *imagestore.Store
	assembler *rootfsassembler.Assembler
	manager   *boxmanager.Manager
	pool      *ants.Pool
	gc        *gc.Orchestrator
}

// New prepares the on-disk layout and opens the image cache and box
// registry rooted at opts.RootDir.
func New(opts BoxliteOptions) (*Boxlite, error) {
	if opts.RootDir == "" {
		return nil, boxerr.New(boxerr.Config, "RootDir is required")
	}
	if opts.ShimBinaryPath == "" {
		return nil, boxerr.New(boxerr.Config, "ShimBinaryPath is required")
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaultWorkerCount
	}
	if opts.EngineKind == "" {
		opts.EngineKind = "libkrun"
	}

	l := layout.New(opts.RootDir)
	if err := l.Prepare(); err != nil {
		return nil, boxerr.Wrap(boxerr.Storage, "prepare root directory", err)
	}

	pool, err := ants.NewPool(opts.PoolSize)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.Internal, "create worker pool", err)
	}

	images := imagestore.New(l, opts.ImageRegistries, pool)
	manager := boxmanager.New(l)

	orch := gc.New()
	images.RegisterGC(orch)
	manager.RegisterGC(orch)

	return &Boxlite{
		opts:      opts,
		layout:    l,
		images:    images,
		assembler: rootfsassembler.New(l),
		manager:   manager,
		pool:      pool,
		gc:        orch,
	}, nil
}

// RunGC sweeps unreferenced image cache directories and orphaned box
// directories in one cycle (spec §3 "Base disks and extracted layers ...
// reclaimed only by explicit GC"). It is never run automatically; callers
// decide the schedule.
func (b *Boxlite) RunGC(ctx context.Context) error {
	return b.gc.Run(ctx)
}

// Close releases the worker pool. It does not stop any running boxes.
func (b *Boxlite) Close() {
	b.pool.Release()
}

// Pull resolves and caches ref without creating a box (spec §4.3).
func (b *Boxlite) Pull(ctx context.Context, ref string) (types.ImageObject, error) {
	return b.images.Pull(ctx, ref)
}

// PullWithProgress is Pull with Event notifications for an interactive
// caller (e.g. the demo CLI) to render.
func (b *Boxlite) PullWithProgress(ctx context.Context, ref string, tracker progress.Tracker) (types.ImageObject, error) {
	return b.images.PullWithProgress(ctx, ref, tracker)
}

// ListImages returns every cached image.
func (b *Boxlite) ListImages(ctx context.Context) ([]types.ImageObject, error) {
	return b.images.List(ctx)
}

// Create pulls opts.ImageRef if needed, runs the box through the full
// init pipeline, and persists it as Running (spec §4.2, §4.11). On any
// failure the box is left absent from the registry — initpipeline.Run's
// own cleanup guard has already unwound every resource it acquired.
func (b *Boxlite) Create(ctx context.Context, opts BoxOptions) (types.BoxMetadata, error) {
	logger := logging.WithFunc("boxlite.Create")

	if opts.ImageRef == "" {
		return types.BoxMetadata{}, boxerr.New(boxerr.Config, "ImageRef is required")
	}
	if opts.CPUs <= 0 {
		opts.CPUs = 1
	}
	if opts.MemoryMiB <= 0 {
		opts.MemoryMiB = 512 //nolint:mnd
	}
	if opts.DiskSizeGB <= 0 {
		opts.DiskSizeGB = defaultDiskSizeGB
	}

	// BoxId is a 26-char ULID, not a random UUID, so that sorting boxes by
	// id also sorts them by creation time (spec §3 "BoxId").
	boxID := ulid.Make().String()
	meta := types.BoxMetadata{
		ID:        boxID,
		CreatedAt: time.Now(),
		ImageRef:  opts.ImageRef,
		CPUs:      opts.CPUs,
		MemoryMiB: opts.MemoryMiB,
		Labels:    opts.Labels,
	}
	if err := b.manager.Create(ctx, meta); err != nil {
		return types.BoxMetadata{}, err
	}

	result, err := initpipeline.Run(ctx, b.layout, b.images, b.assembler, initpipeline.Options{
		BoxID:             boxID,
		ImageRef:          opts.ImageRef,
		CPUs:              uint8(opts.CPUs),     //nolint:gosec
		MemoryMiB:         uint32(opts.MemoryMiB), //nolint:gosec
		DiskSizeGB:        opts.DiskSizeGB,
		Workdir:           opts.WorkingDir,
		Env:               opts.Env,
		Volumes:           opts.Volumes,
		Network:           &types.NetworkBackendConfig{PortMappings: opts.Ports},
		GuestInitDiskPath: b.opts.GuestInitDiskPath,
		ShimBinaryPath:    b.opts.ShimBinaryPath,
		EngineKind:        b.opts.EngineKind,
		HomeDir:           b.layout.HomeDir(),
		Detach:            opts.Detach,
	})
	if err != nil {
		if remErr := b.manager.Remove(ctx, boxID); remErr != nil {
			logger.Warnf(ctx, "box %s: remove failed record after create error: %v", boxID, remErr)
		}
		return types.BoxMetadata{}, err
	}

	if err := b.manager.Update(ctx, boxID, func(s types.BoxState) (types.BoxState, error) {
		s.Status = types.BoxRunning
		s.PID = result.Session.PID()
		s.ContainerID = result.ContainerID
		return s, nil
	}); err != nil {
		_ = result.Session.Stop(ctx, defaultStopGrace)
		if remErr := b.manager.Remove(ctx, boxID); remErr != nil {
			logger.Warnf(ctx, "box %s: remove failed record after create error: %v", boxID, remErr)
		}
		return types.BoxMetadata{}, err
	}

	logger.Infof(ctx, "box %s created from %s", boxID, opts.ImageRef)
	return meta, nil
}

// List returns every box's current record, reconciling stale Running
// records whose shim process has died (spec §4.11).
func (b *Boxlite) List(ctx context.Context) ([]types.BoxRecord, error) {
	return b.manager.List(ctx)
}

// Get returns one box's record, resolving ref as an exact id or an
// unambiguous prefix (spec §4.2 "Resolve").
func (b *Boxlite) Get(ctx context.Context, ref string) (types.BoxRecord, error) {
	id, err := b.manager.Resolve(ctx, ref)
	if err != nil {
		return types.BoxRecord{}, err
	}
	return b.manager.Get(ctx, id)
}

// Stop gracefully shuts the guest down, then kills the shim if it does not
// exit within gracePeriod (spec §4.8, §4.11).
func (b *Boxlite) Stop(ctx context.Context, ref string, gracePeriod time.Duration) error {
	id, err := b.manager.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	rec, err := b.manager.Get(ctx, id)
	if err != nil {
		return err
	}
	if !rec.State.Status.CanStop() {
		return boxerr.Newf(boxerr.InvalidState, "box %s: cannot stop from status %s", id, rec.State.Status)
	}

	if err := b.manager.Update(ctx, id, func(s types.BoxState) (types.BoxState, error) {
		s.Status = types.BoxStopping
		return s, nil
	}); err != nil {
		return err
	}

	session, connErr := b.connect(ctx, id)
	if connErr == nil {
		_ = session.Shutdown(ctx)
		_ = session.Close()
	}
	if gracePeriod <= 0 {
		gracePeriod = defaultStopGrace
	}
	if err := stopShim(ctx, rec.State.PID, gracePeriod); err != nil {
		return err
	}

	return b.manager.Update(ctx, id, func(s types.BoxState) (types.BoxState, error) {
		s.Status = types.BoxStopped
		s.PID = 0
		return s, nil
	})
}

// Remove deletes a box's registry record and on-disk directory. The box
// must be Configured, Stopped, or Unknown (spec §4.11).
func (b *Boxlite) Remove(ctx context.Context, ref string) error {
	id, err := b.manager.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	if err := b.manager.Remove(ctx, id); err != nil {
		return err
	}
	return b.layout.CleanupBoxDir(id)
}

// Exec starts a process inside a running box or one of its containers
// (spec §4.10).
func (b *Boxlite) Exec(ctx context.Context, ref string, req rpc.ExecRequest) (*rpc.ExecResponse, error) {
	id, err := b.manager.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	session, err := b.connect(ctx, id)
	if err != nil {
		return nil, err
	}
	defer session.Close() //nolint:errcheck
	return session.Exec(ctx, req)
}

// Attach streams a running execution's combined output to stdout/stderr
// until it closes (spec §4.10 "single allowed output stream").
func (b *Boxlite) Attach(ctx context.Context, ref, executionID string, stdout, stderr io.Writer) error {
	id, err := b.manager.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	session, err := b.connect(ctx, id)
	if err != nil {
		return err
	}
	defer session.Close() //nolint:errcheck
	return session.Attach(ctx, executionID, stdout, stderr)
}

// SendInput streams r to a running execution's stdin (spec §4.10).
func (b *Boxlite) SendInput(ctx context.Context, ref, executionID string, r io.Reader) error {
	id, err := b.manager.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	session, err := b.connect(ctx, id)
	if err != nil {
		return err
	}
	defer session.Close() //nolint:errcheck
	return session.SendInput(ctx, executionID, r)
}

// ResizeTty adjusts an execution's pseudo-terminal dimensions (spec §4.10).
func (b *Boxlite) ResizeTty(ctx context.Context, ref, executionID string, rows, cols, xPixel, yPixel uint16) error {
	id, err := b.manager.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	session, err := b.connect(ctx, id)
	if err != nil {
		return err
	}
	defer session.Close() //nolint:errcheck
	return session.ResizeTty(ctx, executionID, rows, cols, xPixel, yPixel)
}

// connect dials the box's control-plane socket, requiring it to be Running.
func (b *Boxlite) connect(ctx context.Context, id string) (*controlplane.GuestSession, error) {
	rec, err := b.manager.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.State.Status.CanExec() {
		return nil, boxerr.Newf(boxerr.InvalidState, "box %s is not running", id)
	}
	return controlplane.Connect(ctx, types.Transport{Kind: types.TransportUnix, SocketPath: b.layout.BoxSocketPath(id)})
}

func stopShim(ctx context.Context, pid int, gracePeriod time.Duration) error {
	if pid <= 0 {
		return nil
	}
	if err := utils.TerminateProcess(ctx, pid, gracePeriod); err != nil {
		return boxerr.Wrapf(boxerr.Engine, err, "terminate shim pid %d", pid)
	}
	return nil
}
