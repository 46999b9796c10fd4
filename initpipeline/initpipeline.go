package initpipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/boxlite/boxlite/imagestore"
	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/internal/logging"
	"github.com/boxlite/boxlite/layout"
	"github.com/boxlite/boxlite/rootfsassembler"
)

// Run executes the full staged pipeline for one box: filesystem prep,
// container-rootfs prep, and guest-rootfs prep run in parallel behind a
// join barrier, then config assembly, shim spawn, and guest init run
// serially (spec §5). Any failure unwinds every resource already acquired
// via a cleanup guard before returning.
func Run(ctx context.Context, l *layout.Layout, images *imagestore.Store, assembler *rootfsassembler.Assembler, opts Options) (Result, error) {
	logger := logging.WithFunc("initpipeline.Run")

	guard := newCleanupGuard(l, opts.BoxID)
	defer guard.run(ctx)

	var (
		fsResult      filesystemResult
		crResult      containerRootfsResult
		guestDiskPath string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := prepareFilesystem(l, opts.BoxID, opts.Volumes)
		if err != nil {
			return err
		}
		fsResult = r
		return nil
	})
	g.Go(func() error {
		r, err := prepareContainerRootfs(gctx, images, assembler, l, opts.BoxID, opts.ImageRef, opts.DiskSizeGB, opts.Env, opts.Workdir)
		if err != nil {
			return err
		}
		crResult = r
		return nil
	})
	g.Go(func() error {
		if opts.GuestInitDiskPath == "" {
			return boxerr.New(boxerr.Config, "guest init disk path not configured")
		}
		path, err := prepareGuestRootfs(l, opts.BoxID, opts.GuestInitDiskPath)
		if err != nil {
			return err
		}
		guestDiskPath = path
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	spec := buildInstanceSpec(l, opts, fsResult, crResult, guestDiskPath)

	spawned, err := spawnAndInit(ctx, l, opts, spec, crResult, fsResult)
	if err != nil {
		return Result{}, err
	}
	guard.setSession(spawned.session)

	logger.Infof(ctx, "box %s ready (pid %d)", opts.BoxID, spawned.session.PID())
	guard.disarm()
	return Result{
		Session:      spawned.session,
		InstanceSpec: spec,
		RootfsPrep:   crResult.Prep,
		ContainerID:  crResult.ContainerID,
	}, nil
}
