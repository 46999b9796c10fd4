package layerapply

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestApplyDirMergesOrderedLayers(t *testing.T) {
	dest := t.TempDir()

	layer0 := t.TempDir()
	writeFile(t, layer0, "etc/hostname", "base")
	writeFile(t, layer0, "etc/keep.txt", "keep-me")

	layer1 := t.TempDir()
	// layer1 deletes etc/hostname (materialized as a literal marker file
	// by Apply's isolated-caching mode) and adds a new file.
	writeFile(t, layer1, "etc/.wh.hostname", "")
	writeFile(t, layer1, "etc/new.txt", "from-layer1")

	if err := ApplyDir(context.Background(), layer0, dest, Options{}); err != nil {
		t.Fatalf("ApplyDir layer0: %v", err)
	}
	if err := ApplyDir(context.Background(), layer1, dest, Options{}); err != nil {
		t.Fatalf("ApplyDir layer1: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "etc", "hostname")); !os.IsNotExist(err) {
		t.Fatalf("expected etc/hostname removed by whiteout, stat err = %v", err)
	}
	if data, err := os.ReadFile(filepath.Join(dest, "etc", "keep.txt")); err != nil || string(data) != "keep-me" {
		t.Fatalf("expected etc/keep.txt preserved, got %q err=%v", data, err)
	}
	if data, err := os.ReadFile(filepath.Join(dest, "etc", "new.txt")); err != nil || string(data) != "from-layer1" {
		t.Fatalf("expected etc/new.txt from layer1, got %q err=%v", data, err)
	}
	if _, err := os.Stat(filepath.Join(dest, "etc", ".wh.hostname")); !os.IsNotExist(err) {
		t.Fatalf("whiteout marker itself must not appear in the merged dest")
	}
}

func TestApplyDirOpaqueWhiteout(t *testing.T) {
	dest := t.TempDir()

	layer0 := t.TempDir()
	writeFile(t, layer0, "d/lower.txt", "x")

	layer1 := t.TempDir()
	writeFile(t, layer1, "d/.wh..wh..opq", "")
	writeFile(t, layer1, "d/upper.txt", "y")

	if err := ApplyDir(context.Background(), layer0, dest, Options{}); err != nil {
		t.Fatalf("ApplyDir layer0: %v", err)
	}
	if err := ApplyDir(context.Background(), layer1, dest, Options{}); err != nil {
		t.Fatalf("ApplyDir layer1: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "d", "lower.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected lower.txt hidden by opaque whiteout")
	}
	if _, err := os.Stat(filepath.Join(dest, "d", "upper.txt")); err != nil {
		t.Fatalf("expected upper.txt to survive: %v", err)
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
