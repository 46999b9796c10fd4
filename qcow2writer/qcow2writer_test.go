package qcow2writer

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestFormatCOWChildHeaderLayout(t *testing.T) {
	backing := "/var/lib/boxlite/images/abc123/disk.ext4"
	const virtualSize = 20 * 1024 * 1024 * 1024 // 20 GiB

	buf, err := formatCOWChildHeader(backing, BackingRaw, virtualSize)
	if err != nil {
		t.Fatalf("formatCOWChildHeader: %v", err)
	}
	if len(buf) != clusterSize*4 {
		t.Fatalf("expected buffer of %d bytes, got %d", clusterSize*4, len(buf))
	}

	if got := binary.BigEndian.Uint32(buf[0:4]); got != magic {
		t.Fatalf("magic = 0x%x, want 0x%x", got, magic)
	}
	if got := binary.BigEndian.Uint32(buf[4:8]); got != version3 {
		t.Fatalf("version = %d, want 3", got)
	}
	if got := binary.BigEndian.Uint64(buf[8:16]); got != backingOffset {
		t.Fatalf("backing_file_offset = %d, want %d", got, backingOffset)
	}
	if got := binary.BigEndian.Uint32(buf[16:20]); got != uint32(len(backing)) {
		t.Fatalf("backing_file_size = %d, want %d", got, len(backing))
	}
	if got := binary.BigEndian.Uint32(buf[20:24]); got != clusterBits {
		t.Fatalf("cluster_bits = %d, want %d", got, clusterBits)
	}
	if got := binary.BigEndian.Uint64(buf[24:32]); got != virtualSize {
		t.Fatalf("size = %d, want %d", got, virtualSize)
	}
	if got := binary.BigEndian.Uint32(buf[96:100]); got != refcountOrder {
		t.Fatalf("refcount_order = %d, want %d", got, refcountOrder)
	}
	if got := binary.BigEndian.Uint32(buf[100:104]); got != headerLength {
		t.Fatalf("header_length = %d, want %d", got, headerLength)
	}

	// Backing format extension at offset 104.
	if got := binary.BigEndian.Uint32(buf[104:108]); got != backingFormatExt {
		t.Fatalf("extension type = 0x%x, want 0x%x", got, backingFormatExt)
	}
	extLen := binary.BigEndian.Uint32(buf[108:112])
	if extLen != uint32(len(BackingRaw)) {
		t.Fatalf("extension length = %d, want %d", extLen, len(BackingRaw))
	}
	gotFormat := string(buf[112 : 112+extLen])
	if gotFormat != string(BackingRaw) {
		t.Fatalf("extension data = %q, want %q", gotFormat, BackingRaw)
	}

	// Backing file path stored at offset 512.
	gotBacking := string(buf[backingOffset : backingOffset+len(backing)])
	if gotBacking != backing {
		t.Fatalf("backing path = %q, want %q", gotBacking, backing)
	}

	// L1 table (cluster 1, bytes [clusterSize, clusterSize*2)) must be
	// all-zero: every read falls through to the backing file.
	l1 := buf[clusterSize : clusterSize*2]
	for i, b := range l1 {
		if b != 0 {
			t.Fatalf("L1 table byte %d = 0x%x, want 0", i, b)
		}
	}

	// Refcount table (cluster 2) points at the refcount block (cluster 3).
	rtOffset := clusterSize * 2
	if got := binary.BigEndian.Uint64(buf[rtOffset : rtOffset+8]); got != clusterSize*3 {
		t.Fatalf("refcount table entry = %d, want %d", got, clusterSize*3)
	}

	// Refcount block (cluster 3): first four 16-bit counters are 1.
	rbOffset := clusterSize * 3
	for i := 0; i < 4; i++ {
		if got := binary.BigEndian.Uint16(buf[rbOffset+i*2 : rbOffset+i*2+2]); got != 1 {
			t.Fatalf("refcount[%d] = %d, want 1", i, got)
		}
	}
}

func TestWriteCOWChildCreatesFile(t *testing.T) {
	dir := t.TempDir()
	backing := filepath.Join(dir, "base.ext4")
	if err := os.WriteFile(backing, []byte("fake-base"), 0o644); err != nil {
		t.Fatal(err)
	}
	child := filepath.Join(dir, "nested", "child.qcow2")

	if err := WriteCOWChild(child, backing, BackingRaw, 10*1024*1024*1024); err != nil {
		t.Fatalf("WriteCOWChild: %v", err)
	}

	data, err := os.ReadFile(child)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if binary.BigEndian.Uint32(data[0:4]) != magic {
		t.Fatalf("written file missing qcow2 magic")
	}
}

func TestFormatCOWChildHeaderRejectsOverlongBackingPath(t *testing.T) {
	long := make([]byte, clusterSize)
	for i := range long {
		long[i] = 'a'
	}
	_, err := formatCOWChildHeader(string(long), BackingRaw, 1<<30)
	if err == nil {
		t.Fatalf("expected error for overlong backing path")
	}
}
