package rootfsassembler

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/layout"
	"github.com/boxlite/boxlite/qcow2writer"
	"github.com/boxlite/boxlite/types"
)

func newTestLayout(t *testing.T) *layout.Layout {
	t.Helper()
	home := t.TempDir()
	l := layout.New(home)
	if err := l.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return l
}

func TestPrepareLayersReturnsOrderedNames(t *testing.T) {
	l := newTestLayout(t)
	a := New(l)

	img := types.ImageObject{
		ManifestDigest: "sha256:manifestabc",
		LayerDigests:   []types.Digest{"sha256:layer1", "sha256:layer2"},
	}

	prep, err := a.Prepare(context.Background(), img, types.RootfsLayers)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if prep.Kind != types.RootfsLayers {
		t.Fatalf("kind = %v, want RootfsLayers", prep.Kind)
	}
	if prep.LayersDir != l.ImageLayersDir("manifestabc") {
		t.Fatalf("LayersDir = %q", prep.LayersDir)
	}
	if len(prep.LayerNames) != 2 || prep.LayerNames[0] != "layer1" || prep.LayerNames[1] != "layer2" {
		t.Fatalf("LayerNames = %v", prep.LayerNames)
	}
}

func TestPrepareRejectsMergedStrategy(t *testing.T) {
	l := newTestLayout(t)
	a := New(l)

	_, err := a.Prepare(context.Background(), types.ImageObject{}, types.RootfsMerged)
	if err == nil {
		t.Fatalf("expected error for RootfsMerged")
	}
	if !boxerr.Is(err, boxerr.Unsupported) {
		t.Fatalf("expected Unsupported error, got %v", err)
	}
}

func TestPrepareDiskImageReusesCachedDisk(t *testing.T) {
	l := newTestLayout(t)
	a := New(l)

	img := types.ImageObject{
		ManifestDigest: "sha256:manifestabc",
		ConfigDigest:   "sha256:configxyz",
		LayerDigests:   []types.Digest{"sha256:layer1"},
	}

	diskPath := l.ImageDiskFile("configxyz")
	if err := os.MkdirAll(filepath.Dir(diskPath), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(diskPath, make([]byte, 1024), 0o644); err != nil {
		t.Fatal(err)
	}

	prep, err := a.Prepare(context.Background(), img, types.RootfsDiskImage)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if prep.BaseDiskPath != diskPath {
		t.Fatalf("BaseDiskPath = %q, want %q", prep.BaseDiskPath, diskPath)
	}
	if prep.DiskSize != 1024 {
		t.Fatalf("DiskSize = %d, want 1024", prep.DiskSize)
	}
}

func TestCreateOverlaySizesToLargerOfDiskOrBacking(t *testing.T) {
	dir := t.TempDir()
	backing := filepath.Join(dir, "base.ext4")
	f, err := os.Create(backing)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(2 * giB); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	child := filepath.Join(dir, "box", "disk.qcow2")
	if err := CreateOverlay(backing, child, qcow2writer.BackingRaw, 1); err != nil {
		t.Fatalf("CreateOverlay: %v", err)
	}
	if _, err := os.Stat(child); err != nil {
		t.Fatalf("expected overlay file to exist: %v", err)
	}
	data, err := os.ReadFile(child)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := binary.BigEndian.Uint64(data[24:32]); got != 2*giB {
		t.Fatalf("virtual size = %d, want %d (backing file is larger than 1 GiB)", got, uint64(2*giB))
	}
}
