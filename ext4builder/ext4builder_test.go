package ext4builder

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestCalculateDiskSizeMinimum(t *testing.T) {
	dir := t.TempDir()
	size, err := calculateDiskSize(dir)
	if err != nil {
		t.Fatalf("calculateDiskSize: %v", err)
	}
	if size != minDiskSize {
		t.Fatalf("empty dir should floor to minimum, got %d", size)
	}
}

func TestCalculateDiskSizeScalesWithContent(t *testing.T) {
	dir := t.TempDir()
	big := make([]byte, 400*1024*1024)
	if err := os.WriteFile(filepath.Join(dir, "big.bin"), big, 0o644); err != nil {
		t.Fatal(err)
	}
	size, err := calculateDiskSize(dir)
	if err != nil {
		t.Fatalf("calculateDiskSize: %v", err)
	}
	if size <= minDiskSize {
		t.Fatalf("expected size above minimum for large content, got %d", size)
	}
	// sanity: size should be roughly content*1.1 + journal, not wildly off
	expected := int64(len(big))*sizeMultiplierNum/sizeMultiplierDen + journalOverhead
	if size < expected || size > expected+blockSize*1024 {
		t.Fatalf("size %d outside expected range around %d", size, expected)
	}
}

func TestTarDirectoryZeroesOwnership(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	pr, pw := io.Pipe()
	errCh := make(chan error, 1)
	go func() { errCh <- tarDirectory(context.Background(), dir, pw, false) }()

	tr := tar.NewReader(pr)
	seen := map[string]bool{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar read: %v", err)
		}
		if hdr.Uid != 0 || hdr.Gid != 0 {
			t.Fatalf("entry %s has non-zero ownership %d:%d", hdr.Name, hdr.Uid, hdr.Gid)
		}
		seen[hdr.Name] = true
	}
	if err := <-errCh; err != nil {
		t.Fatalf("tarDirectory: %v", err)
	}
	if !seen["f.txt"] || !seen["sub/"] {
		t.Fatalf("expected f.txt and sub/ in tar, got %v", seen)
	}
}

func TestTarDirectoryPreservesOwnershipWhenPrivileged(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	pr, pw := io.Pipe()
	errCh := make(chan error, 1)
	go func() { errCh <- tarDirectory(context.Background(), dir, pw, true) }()

	tr := tar.NewReader(pr)
	var sawFile bool
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar read: %v", err)
		}
		if hdr.Name == "f.txt" {
			sawFile = true
			// Owned by the test process's own uid:gid (os.WriteFile above),
			// which privileged=true must leave untouched rather than
			// rewriting to 0:0.
			if hdr.Uid != os.Getuid() || hdr.Gid != os.Getgid() {
				t.Fatalf("privileged build rewrote ownership: got %d:%d, want %d:%d",
					hdr.Uid, hdr.Gid, os.Getuid(), os.Getgid())
			}
		}
	}
	if err := <-errCh; err != nil {
		t.Fatalf("tarDirectory: %v", err)
	}
	if !sawFile {
		t.Fatalf("expected f.txt in tar")
	}
}
