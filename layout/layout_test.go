package layout

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPrepareCreatesStaticDirs(t *testing.T) {
	home := t.TempDir()
	l := New(home)

	if err := l.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	for _, dir := range []string{l.BoxesDir(), l.ImagesDir(), l.TempDir(), l.LogsDir()} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist", dir)
		}
	}
}

func TestBoxPathsAreRootedUnderBoxID(t *testing.T) {
	l := New("/home/.boxlite")
	const id = "01J8Z3K9N2QW8X9V7Y6T5R4S3P"

	want := filepath.Join("/home/.boxlite", "boxes", id)
	if got := l.BoxDir(id); got != want {
		t.Fatalf("BoxDir = %s, want %s", got, want)
	}
	if got := l.BoxDiskPath(id); got != filepath.Join(want, "disk.qcow2") {
		t.Fatalf("BoxDiskPath = %s", got)
	}
	if got := l.BoxSocketPath(id); got != filepath.Join(want, "sockets", "box.sock") {
		t.Fatalf("BoxSocketPath = %s", got)
	}
}

func TestPrepareBoxDirs(t *testing.T) {
	home := t.TempDir()
	l := New(home)
	const id = "box1"

	if err := l.PrepareBoxDirs(id); err != nil {
		t.Fatalf("PrepareBoxDirs: %v", err)
	}
	if _, err := os.Stat(l.BoxSharedDir(id)); err != nil {
		t.Fatalf("shared dir missing: %v", err)
	}
	if _, err := os.Stat(l.BoxSocketsDir(id)); err != nil {
		t.Fatalf("sockets dir missing: %v", err)
	}
}

func TestCleanupBoxDirRemovesTree(t *testing.T) {
	home := t.TempDir()
	l := New(home)
	const id = "box1"

	if err := l.PrepareBoxDirs(id); err != nil {
		t.Fatalf("PrepareBoxDirs: %v", err)
	}
	if err := l.CleanupBoxDir(id); err != nil {
		t.Fatalf("CleanupBoxDir: %v", err)
	}
	if _, err := os.Stat(l.BoxDir(id)); !os.IsNotExist(err) {
		t.Fatalf("expected box dir removed, stat err = %v", err)
	}
}
