package initpipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/layout"
	"github.com/boxlite/boxlite/types"
)

func newTestLayout(t *testing.T) *layout.Layout {
	t.Helper()
	l := layout.New(t.TempDir())
	if err := l.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return l
}

func TestPrepareFilesystemResolvesVolumesAndTags(t *testing.T) {
	l := newTestLayout(t)
	hostDir := t.TempDir()

	result, err := prepareFilesystem(l, "box-1", []types.VolumeSpec{
		{HostPath: hostDir, GuestPath: "/data", ReadOnly: true},
	})
	if err != nil {
		t.Fatalf("prepareFilesystem: %v", err)
	}
	if len(result.volumes) != 1 {
		t.Fatalf("expected 1 resolved volume, got %d", len(result.volumes))
	}
	if result.volumes[0].Tag != types.UserVolumeTag(0) {
		t.Fatalf("tag = %q, want %q", result.volumes[0].Tag, types.UserVolumeTag(0))
	}
	if !result.volumes[0].ReadOnly {
		t.Fatalf("expected ReadOnly to carry through")
	}

	if _, err := os.Stat(l.BoxDir("box-1")); err != nil {
		t.Fatalf("box directory not created: %v", err)
	}
}

func TestPrepareFilesystemRejectsMissingHostPath(t *testing.T) {
	l := newTestLayout(t)
	_, err := prepareFilesystem(l, "box-2", []types.VolumeSpec{
		{HostPath: filepath.Join(t.TempDir(), "nope"), GuestPath: "/data"},
	})
	if !boxerr.Is(err, boxerr.Config) {
		t.Fatalf("expected Config error, got %v", err)
	}
}

func TestPrepareFilesystemRejectsFileHostPath(t *testing.T) {
	l := newTestLayout(t)
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	_, err := prepareFilesystem(l, "box-3", []types.VolumeSpec{{HostPath: file, GuestPath: "/data"}})
	if !boxerr.Is(err, boxerr.Config) {
		t.Fatalf("expected Config error, got %v", err)
	}
}
