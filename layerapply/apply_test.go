package layerapply

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTar(t *testing.T, entries []tarEntry) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Typeflag: e.typ,
			Mode:     e.mode,
			Size:     int64(len(e.data)),
			Linkname: e.link,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		if len(e.data) > 0 {
			if _, err := tw.Write(e.data); err != nil {
				t.Fatalf("Write: %v", err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return &buf
}

type tarEntry struct {
	name string
	typ  byte
	mode int64
	data []byte
	link string
}

func TestApplyRegularFilesAndDirs(t *testing.T) {
	dest := t.TempDir()
	buf := writeTar(t, []tarEntry{
		{name: "a/", typ: tar.TypeDir, mode: 0o755},
		{name: "a/b.txt", typ: tar.TypeReg, mode: 0o644, data: []byte("hello")},
	})

	n, err := Apply(context.Background(), buf, dest, Options{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 bytes applied, got %d", n)
	}
	data, err := os.ReadFile(filepath.Join(dest, "a", "b.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("content mismatch: %q", data)
	}
}

func TestApplyWhiteoutRemovesFile(t *testing.T) {
	dest := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dest, "d"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dest, "d", "old.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	buf := writeTar(t, []tarEntry{
		{name: "d/.wh.old.txt", typ: tar.TypeReg, mode: 0o644},
	})
	if _, err := Apply(context.Background(), buf, dest, Options{}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "d", "old.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected old.txt removed, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "d", ".wh.old.txt")); !os.IsNotExist(err) {
		t.Fatalf("whiteout marker itself should not be materialized")
	}
}

func TestApplyOpaqueWhiteoutHidesLowerEntries(t *testing.T) {
	dest := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dest, "d"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dest, "d", "lower.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	buf := writeTar(t, []tarEntry{
		{name: "d/.wh..wh..opq", typ: tar.TypeReg, mode: 0o644},
		{name: "d/new.txt", typ: tar.TypeReg, mode: 0o644, data: []byte("new")},
	})
	if _, err := Apply(context.Background(), buf, dest, Options{}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "d", "lower.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected lower.txt hidden by opaque whiteout")
	}
	if _, err := os.Stat(filepath.Join(dest, "d", "new.txt")); err != nil {
		t.Fatalf("expected new.txt to survive: %v", err)
	}
}

func TestApplyRejectsPathEscape(t *testing.T) {
	dest := t.TempDir()
	buf := writeTar(t, []tarEntry{
		{name: "../../etc/passwd", typ: tar.TypeReg, mode: 0o644, data: []byte("x")},
	})
	if _, err := Apply(context.Background(), buf, dest, Options{}); err != nil {
		t.Fatalf("Apply should skip escaping entries without failing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(filepath.Dir(dest)), "etc", "passwd")); !os.IsNotExist(err) {
		t.Fatalf("escape entry must never be written outside dest")
	}
}

func TestApplySymlink(t *testing.T) {
	dest := t.TempDir()
	buf := writeTar(t, []tarEntry{
		{name: "link", typ: tar.TypeSymlink, mode: 0o777, link: "/bin/sh"},
	})
	if _, err := Apply(context.Background(), buf, dest, Options{}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	target, err := os.Readlink(filepath.Join(dest, "link"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != "/bin/sh" {
		t.Fatalf("symlink target = %q, want /bin/sh", target)
	}
}

func TestApplyUnprivilegedRecordsOverrideStat(t *testing.T) {
	dest := t.TempDir()
	buf := writeTar(t, []tarEntry{
		{name: "f.txt", typ: tar.TypeReg, mode: 0o644, data: []byte("x")},
	})
	if _, err := Apply(context.Background(), buf, dest, Options{Privileged: false}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// Unprivileged: no assertion on xattr contents here since xattr support
	// is filesystem-dependent in CI; this asserts Apply does not fail when
	// lchown is unavailable.
	if _, err := os.Stat(filepath.Join(dest, "f.txt")); err != nil {
		t.Fatalf("file should exist regardless of xattr support: %v", err)
	}
}

func TestApplyMaterializeWhiteoutsWritesLiteralMarker(t *testing.T) {
	dest := t.TempDir()
	buf := writeTar(t, []tarEntry{
		{name: "d/.wh.old.txt", typ: tar.TypeReg, mode: 0o644},
	})
	if _, err := Apply(context.Background(), buf, dest, Options{MaterializeWhiteouts: true}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "d", ".wh.old.txt")); err != nil {
		t.Fatalf("expected whiteout marker to be materialized literally: %v", err)
	}
}

func TestOverrideStatFormatRoundtrip(t *testing.T) {
	s := overrideStat{uid: 1000, gid: 1000, mode: 0o755, fileType: overrideFileType{kind: "dir"}}
	formatted := s.format()
	if formatted != "1000:1000:0755:dir" {
		t.Fatalf("format = %q", formatted)
	}
	parsed, ok := parseOverrideStat(formatted)
	if !ok {
		t.Fatalf("parse failed for %q", formatted)
	}
	if parsed != s {
		t.Fatalf("roundtrip mismatch: %+v vs %+v", parsed, s)
	}
}

func TestOverrideStatBlockDeviceFormat(t *testing.T) {
	s := overrideStat{uid: 0, gid: 0, mode: 0o660, fileType: overrideFileType{kind: "block", major: 8, minor: 0}}
	if got := s.format(); got != "0:0:0660:block-8-0" {
		t.Fatalf("format = %q", got)
	}
}
