package initpipeline

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/boxlite/boxlite/imagestore"
	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/layout"
	"github.com/boxlite/boxlite/qcow2writer"
	"github.com/boxlite/boxlite/rootfsassembler"
	"github.com/boxlite/boxlite/types"
)

// containerRootfsResult is what the container-rootfs-prep stage
// contributes to config assembly and to the Container.Init call that
// follows Guest.Init (spec §4.10 "creates an OCI container from the
// prepared rootfs and declared entrypoint/env").
type containerRootfsResult struct {
	Prep     types.RootfsPrep
	DiskPath string // vda overlay; empty unless Prep.Kind == RootfsDiskImage

	ContainerID string
	Entrypoint  []string
	Env         map[string]string
	Workdir     string
}

// prepareContainerRootfs pulls the requested image, resolves it to a
// RootfsPrep, reads the image's declared entrypoint/cmd/env/workdir back out
// of the cache, and — for the DiskImage strategy — builds the box's own
// qcow2 COW child of the shared base disk (spec §4.5, §5 "container rootfs
// prep" arm of the parallel join).
func prepareContainerRootfs(
	ctx context.Context,
	images *imagestore.Store,
	assembler *rootfsassembler.Assembler,
	l *layout.Layout,
	boxID string,
	imageRef string,
	diskSizeGB int64,
	env map[string]string,
	workdir string,
) (containerRootfsResult, error) {
	img, err := images.Pull(ctx, imageRef)
	if err != nil {
		return containerRootfsResult{}, err
	}

	entrypoint, imgEnv, imgWorkdir, err := imageEntrypoint(images, img)
	if err != nil {
		return containerRootfsResult{}, err
	}
	if workdir == "" {
		workdir = imgWorkdir
	}
	if workdir == "" {
		workdir = "/"
	}
	mergedEnv := make(map[string]string, len(imgEnv)+len(env))
	for k, v := range imgEnv {
		mergedEnv[k] = v
	}
	for k, v := range env {
		mergedEnv[k] = v
	}

	prep, err := assembler.Prepare(ctx, img, types.RootfsDiskImage)
	if err != nil {
		return containerRootfsResult{}, err
	}

	result := containerRootfsResult{
		Prep:        prep,
		ContainerID: uuid.NewString(),
		Entrypoint:  entrypoint,
		Env:         mergedEnv,
		Workdir:     workdir,
	}
	if prep.Kind != types.RootfsDiskImage {
		return result, nil
	}

	overlayPath := l.BoxDiskPath(boxID)
	if err := rootfsassembler.CreateOverlay(prep.BaseDiskPath, overlayPath, qcow2writer.BackingRaw, diskSizeGB); err != nil {
		return containerRootfsResult{}, boxerr.Wrap(boxerr.Storage, "create container rootfs overlay", err)
	}
	result.DiskPath = overlayPath
	return result, nil
}

// imageEntrypoint decodes img's cached OCI config into the effective argv,
// environment, and working directory a container created from it should
// start with, following the OCI convention that Cmd is appended to
// Entrypoint (or stands alone when Entrypoint is unset).
func imageEntrypoint(images *imagestore.Store, img types.ImageObject) (entrypoint []string, env map[string]string, workdir string, err error) {
	cfg, err := images.ImageConfig(img)
	if err != nil {
		return nil, nil, "", err
	}

	entrypoint = append(entrypoint, cfg.Config.Entrypoint...)
	entrypoint = append(entrypoint, cfg.Config.Cmd...)

	env = make(map[string]string, len(cfg.Config.Env))
	for _, kv := range cfg.Config.Env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[k] = v
	}

	return entrypoint, env, cfg.Config.WorkingDir, nil
}
