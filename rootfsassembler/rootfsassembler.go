// Package rootfsassembler resolves a pulled ImageObject into a RootfsPrep
// under a configured strategy, and builds per-box qcow2 copy-on-write
// overlays on top of the resulting base (spec §4.5).
package rootfsassembler

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/boxlite/boxlite/ext4builder"
	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/internal/logging"
	"github.com/boxlite/boxlite/layerapply"
	"github.com/boxlite/boxlite/layout"
	"github.com/boxlite/boxlite/qcow2writer"
	"github.com/boxlite/boxlite/types"
)

const giB = 1 << 30

// Assembler resolves ImageObjects to RootfsPreps and creates per-box COW
// overlays on top of them.
type Assembler struct {
	layout *layout.Layout
}

// New creates an Assembler rooted at l.
func New(l *layout.Layout) *Assembler {
	return &Assembler{layout: l}
}

// Prepare resolves img under the given strategy (spec §4.5). RootfsMerged
// is deprecated and rejected — the pipeline never selects it.
func (a *Assembler) Prepare(ctx context.Context, img types.ImageObject, kind types.RootfsKind) (types.RootfsPrep, error) {
	switch kind {
	case types.RootfsDiskImage:
		return a.prepareDiskImage(ctx, img)
	case types.RootfsLayers:
		return a.prepareLayers(img), nil
	case types.RootfsMerged:
		return types.RootfsPrep{}, boxerr.New(boxerr.Unsupported, "RootfsMerged is deprecated and not used by the pipeline")
	default:
		return types.RootfsPrep{}, boxerr.Newf(boxerr.Config, "unknown rootfs kind %d", kind)
	}
}

// prepareDiskImage is the preferred strategy: reuse the cached base ext4
// disk keyed by the image's top-level config digest, building it once by
// merging every cached per-layer directory in application order (spec
// §4.3's "Cache keys" and §4.5's "DiskImage (preferred)").
func (a *Assembler) prepareDiskImage(ctx context.Context, img types.ImageObject) (types.RootfsPrep, error) {
	logger := logging.WithFunc("rootfsassembler.prepareDiskImage")

	configHex := img.ConfigDigest.Hex()
	diskPath := a.layout.ImageDiskFile(configHex)

	if info, err := os.Stat(diskPath); err == nil {
		return types.RootfsPrep{Kind: types.RootfsDiskImage, BaseDiskPath: diskPath, DiskSize: info.Size()}, nil
	} else if !os.IsNotExist(err) {
		return types.RootfsPrep{}, boxerr.Wrapf(boxerr.Storage, err, "stat base disk %s", diskPath)
	}

	mergedDir := filepath.Join(a.layout.TempDir(), "rootfs-merge-"+uuid.NewString())
	defer os.RemoveAll(mergedDir) //nolint:errcheck

	privileged := os.Geteuid() == 0
	manifestHex := img.ManifestDigest.Hex()
	for _, layerDigest := range img.LayerDigests {
		layerDir := a.layout.ImageLayerDir(manifestHex, layerDigest.Hex())
		if err := layerapply.ApplyDir(ctx, layerDir, mergedDir, layerapply.Options{Privileged: privileged}); err != nil {
			return types.RootfsPrep{}, boxerr.Wrapf(boxerr.Storage, err, "merge layer %s", layerDigest.Hex())
		}
	}

	if err := os.MkdirAll(filepath.Dir(diskPath), 0o750); err != nil {
		return types.RootfsPrep{}, boxerr.Wrapf(boxerr.Storage, err, "create image dir for %s", configHex)
	}

	// Build into a temp sibling then rename, so a crash mid-build leaves no
	// partial disk.ext4 visible at its final name (same write-temp-then-
	// rename discipline imagestore applies per layer).
	tempDisk := diskPath + ".tmp-" + uuid.NewString()
	size, err := ext4builder.Build(ctx, mergedDir, tempDisk, privileged)
	if err != nil {
		_ = os.Remove(tempDisk)
		return types.RootfsPrep{}, err
	}
	if err := os.Rename(tempDisk, diskPath); err != nil {
		_ = os.Remove(tempDisk)
		return types.RootfsPrep{}, boxerr.Wrapf(boxerr.Storage, err, "install base disk %s", diskPath)
	}

	logger.Infof(ctx, "built base disk for config %s (%d bytes)", configHex, size)
	return types.RootfsPrep{Kind: types.RootfsDiskImage, BaseDiskPath: diskPath, DiskSize: size}, nil
}

// prepareLayers is the overlayfs strategy: the guest mounts the ordered
// per-layer directories itself, so no merge happens host-side (spec §4.5
// "Layers").
func (a *Assembler) prepareLayers(img types.ImageObject) types.RootfsPrep {
	names := make([]string, len(img.LayerDigests))
	for i, d := range img.LayerDigests {
		names[i] = d.Hex()
	}
	return types.RootfsPrep{
		Kind:       types.RootfsLayers,
		LayersDir:  a.layout.ImageLayersDir(img.ManifestDigest.Hex()),
		LayerNames: names,
	}
}

// CreateOverlay writes a qcow2 COW child at childPath backed by backingPath,
// sized to max(diskSizeGB, backing file size) (spec §4.5 "Per-box rootfs
// disk is a qcow2 COW child of the base"). backingFormat must match how
// backingPath was produced: raw for an ext4 base disk, qcow2 for a qcow2
// backing file (e.g. layering a box's own prior overlay).
func CreateOverlay(backingPath, childPath string, backingFormat qcow2writer.BackingFormat, diskSizeGB int64) error {
	info, err := os.Stat(backingPath)
	if err != nil {
		return boxerr.Wrapf(boxerr.Storage, err, "stat backing disk %s", backingPath)
	}

	virtualSize := diskSizeGB * giB
	if info.Size() > virtualSize {
		virtualSize = info.Size()
	}

	if err := os.MkdirAll(filepath.Dir(childPath), 0o750); err != nil {
		return boxerr.Wrapf(boxerr.Storage, err, "create dir for %s", childPath)
	}
	return qcow2writer.WriteCOWChild(childPath, backingPath, backingFormat, uint64(virtualSize)) //nolint:gosec
}
