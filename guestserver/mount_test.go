package guestserver

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCopyTreePreservesFilesAndSymlinks(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "copied")

	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "file.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.Symlink("file.txt", filepath.Join(src, "sub", "link.txt")); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := copyTree(src, dst); err != nil {
		t.Fatalf("copyTree: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dst, "sub", "file.txt"))
	if err != nil {
		t.Fatalf("read copied file: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("content = %q, want hello", data)
	}

	target, err := os.Readlink(filepath.Join(dst, "sub", "link.txt"))
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}
	if target != "file.txt" {
		t.Fatalf("link target = %q, want file.txt", target)
	}
}

func TestJoinColon(t *testing.T) {
	got := joinColon([]string{"/a", "/b", "/c"})
	if got != "/a:/b:/c" {
		t.Fatalf("joinColon = %q", got)
	}
	if joinColon(nil) != "" {
		t.Fatalf("joinColon(nil) should be empty")
	}
}

func TestItoa(t *testing.T) {
	cases := map[int]string{0: "0", 7: "7", 42: "42", 123: "123"}
	for n, want := range cases {
		if got := itoa(n); got != want {
			t.Fatalf("itoa(%d) = %q, want %q", n, got, want)
		}
	}
}
