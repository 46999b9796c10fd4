package initpipeline

import (
	"context"

	"github.com/boxlite/boxlite/controlplane"
	"github.com/boxlite/boxlite/controlplane/rpc"
	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/layout"
	"github.com/boxlite/boxlite/shimcontroller"
	"github.com/boxlite/boxlite/types"
)

// spawnResult carries the live shim session handed back to the caller
// once the guest has been initialized.
type spawnResult struct {
	session *shimcontroller.Session
}

// spawnAndInit starts the shim subprocess, waits for its ready handshake,
// then drives the guest through its one-time Init call — the serial
// "spawn" and "guest init" stages of spec §5.
func spawnAndInit(ctx context.Context, l *layout.Layout, opts Options, spec types.InstanceSpec, cr containerRootfsResult, fs filesystemResult) (spawnResult, error) {
	session, err := shimcontroller.Start(ctx, spec, shimcontroller.StartOptions{
		BinaryPath:      opts.ShimBinaryPath,
		EngineKind:      opts.EngineKind,
		ReadySocketPath: l.BoxReadySocketPath(opts.BoxID),
		BoxSocketPath:   l.BoxSocketPath(opts.BoxID),
		BoxID:           opts.BoxID,
	})
	if err != nil {
		return spawnResult{}, err
	}

	guest, err := controlplane.Connect(ctx, session.Transport())
	if err != nil {
		_ = session.Stop(ctx, shimStopGracePeriod)
		return spawnResult{}, err
	}
	defer guest.Close() //nolint:errcheck

	req := guestInitRequest(spec, cr, fs)
	if _, err := guest.Init(ctx, req); err != nil {
		_ = session.Stop(ctx, shimStopGracePeriod)
		return spawnResult{}, boxerr.Wrap(boxerr.Engine, "guest init", err)
	}

	containerReq := rpc.ContainerInitRequest{
		ContainerID: cr.ContainerID,
		Entrypoint:  cr.Entrypoint,
		Env:         cr.Env,
		Workdir:     cr.Workdir,
	}
	if err := guest.ContainerInit(ctx, containerReq); err != nil {
		_ = session.Stop(ctx, shimStopGracePeriod)
		return spawnResult{}, err
	}

	return spawnResult{session: session}, nil
}
