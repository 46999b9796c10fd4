package initpipeline

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPrepareGuestRootfsCreatesOverlay(t *testing.T) {
	l := newTestLayout(t)
	base := filepath.Join(t.TempDir(), "guest-base.img")
	if err := os.WriteFile(base, make([]byte, 4096), 0o644); err != nil { //nolint:mnd
		t.Fatalf("setup: %v", err)
	}

	overlayPath, err := prepareGuestRootfs(l, "box-1", base)
	if err != nil {
		t.Fatalf("prepareGuestRootfs: %v", err)
	}
	if overlayPath != l.BoxGuestRootfsPath("box-1") {
		t.Fatalf("overlayPath = %q, want %q", overlayPath, l.BoxGuestRootfsPath("box-1"))
	}
	info, err := os.Stat(overlayPath)
	if err != nil {
		t.Fatalf("stat overlay: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected non-empty qcow2 header")
	}
}
