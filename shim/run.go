package shim

import (
	"context"

	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/internal/logging"
	"github.com/boxlite/boxlite/networkbackend"
	"github.com/boxlite/boxlite/types"
	"github.com/boxlite/boxlite/vmmdriver"
)

// RunOptions supplies the pieces of spec §4.7's pre-exec hardening and
// network backend launch that only the host-side caller (ShimController,
// in practice) knows how to locate — the binary path of the external
// network process, and the pre-created cgroup this box's shim should join.
type RunOptions struct {
	NetworkBinaryPath string
	CgroupProcsPath   string
	Rlimits           []string
	PIDFilePath       string
}

// Run carries out every step of spec §4.7 in order: parent-death watcher,
// network backend creation, pre-exec hardening, and finally handing the
// assembled configuration to driver. On success StartEnter never returns —
// Run's own return only happens on a failure partway through setup, or on
// whatever error a driver's StartEnter reports back for a boot that did not
// take over the process (e.g. the recorder used in tests).
func Run(ctx context.Context, spec types.InstanceSpec, driver vmmdriver.VmmDriver, opts RunOptions) error {
	logger := logging.WithFunc("shim.Run")
	logger.Infof(ctx, "box %s starting", spec.BoxID)

	if !spec.Detach {
		if err := watchParent(); err != nil {
			logger.Warnf(ctx, "install parent-death watcher: %v", err)
		}
	}

	if spec.NetworkConfig != nil {
		backend, err := networkbackend.Start(ctx, NetworkBackendOptions(spec, opts.NetworkBinaryPath))
		if err != nil {
			return boxerr.Wrap(boxerr.Network, "start network backend", err)
		}
		spec.NetworkBackendEndpoint = backend.Endpoint()
	}

	if err := Harden(HardenOptions{
		PIDFilePath:     opts.PIDFilePath,
		CgroupProcsPath: opts.CgroupProcsPath,
		Rlimits:         opts.Rlimits,
	}); err != nil {
		return err
	}

	cfg := BuildVmmConfig(spec)
	if err := vmmdriver.Apply(driver, cfg); err != nil {
		return boxerr.Wrap(boxerr.Engine, "apply vmm configuration", err)
	}

	logger.Infof(ctx, "box %s entering vmm", spec.BoxID)
	if err := driver.StartEnter(); err != nil {
		return boxerr.Wrap(boxerr.Engine, "start_enter", err)
	}
	return nil
}
