// Package qcow2writer emits bit-exact qcow2 v3 headers without shelling
// out to qemu-img (spec §4.4). Every box's rootfs disk is a
// copy-on-write child of a shared ext4 base image: reads fall through to
// the backing file until the corresponding cluster is written in the
// child.
package qcow2writer

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/boxlite/boxlite/internal/boxerr"
)

const (
	magic            = 0x514649fb // "QFI\xfb"
	version3         = 3
	clusterBits      = 16
	clusterSize      = 1 << clusterBits
	refcountOrder    = 4 // 2^4 = 16-bit refcounts
	headerLength     = 104
	backingOffset    = 512
	backingFormatExt = 0xE2792ACA
)

// BackingFormat names the format of a COW child's backing file.
type BackingFormat string

const (
	BackingRaw   BackingFormat = "raw"
	BackingQcow2 BackingFormat = "qcow2"
)

// WriteCOWChild writes a qcow2 v3 header at childPath whose reads fall
// through to backingPath until overwritten (spec §4.4 Testable Property
// #7). backingPath is stored absolute so the child remains valid
// regardless of the process's working directory at open time.
func WriteCOWChild(childPath, backingPath string, format BackingFormat, virtualSize uint64) error {
	absBacking, err := filepath.Abs(backingPath)
	if err != nil {
		return boxerr.Wrap(boxerr.Storage, "resolve backing file path", err)
	}

	buf, err := formatCOWChildHeader(absBacking, format, virtualSize)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(childPath), 0o755); err != nil {
		return boxerr.Wrap(boxerr.Storage, "create parent directory", err)
	}
	f, err := os.OpenFile(childPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return boxerr.Wrap(boxerr.Storage, "create child disk", err)
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.Write(buf); err != nil {
		return boxerr.Wrap(boxerr.Storage, "write COW child header", err)
	}
	return nil
}

// formatCOWChildHeader builds the header+L1+refcount-table+refcount-block
// buffer for a COW child, ported byte-for-byte from the original
// implementation's write_cow_child_header.
func formatCOWChildHeader(backingPath string, format BackingFormat, virtualSize uint64) ([]byte, error) {
	backingBytes := []byte(backingPath)
	backingLen := uint32(len(backingBytes))
	formatBytes := []byte(format)
	formatLen := uint32(len(formatBytes))

	if backingOffset+len(backingBytes) > clusterSize {
		return nil, boxerr.Newf(boxerr.Storage, "backing file path too long: %d bytes", len(backingBytes))
	}

	l1Entries := uint32((virtualSize + clusterSize - 1) / clusterSize)
	l1Offset := uint64(clusterSize)
	refcountOffset := uint64(clusterSize * 2)
	refcountClusters := uint32(1)
	refcountBlockOffset := uint64(clusterSize * 3)

	buf := make([]byte, clusterSize*4)

	binary.BigEndian.PutUint32(buf[0:4], magic)
	binary.BigEndian.PutUint32(buf[4:8], version3)
	binary.BigEndian.PutUint64(buf[8:16], backingOffset)
	binary.BigEndian.PutUint32(buf[16:20], backingLen)
	binary.BigEndian.PutUint32(buf[20:24], clusterBits)
	binary.BigEndian.PutUint64(buf[24:32], virtualSize)
	binary.BigEndian.PutUint32(buf[32:36], 0) // crypt_method
	binary.BigEndian.PutUint32(buf[36:40], l1Entries)
	binary.BigEndian.PutUint64(buf[40:48], l1Offset)
	binary.BigEndian.PutUint64(buf[48:56], refcountOffset)
	binary.BigEndian.PutUint32(buf[56:60], refcountClusters)
	binary.BigEndian.PutUint32(buf[60:64], 0) // nb_snapshots
	binary.BigEndian.PutUint64(buf[64:72], 0) // snapshots_offset
	binary.BigEndian.PutUint64(buf[72:80], 0) // incompatible_features
	binary.BigEndian.PutUint64(buf[80:88], 0) // compatible_features
	binary.BigEndian.PutUint64(buf[88:96], 0) // autoclear_features
	binary.BigEndian.PutUint32(buf[96:100], refcountOrder)
	binary.BigEndian.PutUint32(buf[100:104], headerLength)

	extOffset := headerLength
	binary.BigEndian.PutUint32(buf[extOffset:extOffset+4], backingFormatExt)
	binary.BigEndian.PutUint32(buf[extOffset+4:extOffset+8], formatLen)
	copy(buf[extOffset+8:extOffset+8+len(formatBytes)], formatBytes)

	endExtOffset := extOffset + 8 + int((formatLen+7)&^7)
	binary.BigEndian.PutUint32(buf[endExtOffset:endExtOffset+4], 0)
	binary.BigEndian.PutUint32(buf[endExtOffset+4:endExtOffset+8], 0)

	copy(buf[backingOffset:backingOffset+len(backingBytes)], backingBytes)

	// L1 table at cluster 1 stays zero: every entry unmapped means every
	// read falls through to the backing file.

	rtOffset := refcountOffset
	binary.BigEndian.PutUint64(buf[rtOffset:rtOffset+8], refcountBlockOffset)

	// Refcount block: clusters 0-3 (header, L1, refcount table, refcount
	// block itself) are in use.
	rbOffset := int(refcountBlockOffset)
	for i := 0; i < 4; i++ {
		binary.BigEndian.PutUint16(buf[rbOffset+i*2:rbOffset+i*2+2], 1)
	}

	return buf, nil
}
