package types

import (
	"time"

	"github.com/opencontainers/go-digest"
)

// Digest is a content-addressed digest in "algo:hex" form (e.g.
// "sha256:abcd..."), backed by the same representation as
// github.com/opencontainers/go-digest's Digest.
type Digest string

// Hex strips the "algo:" prefix, giving the form used for on-disk cache
// directory names.
func (d Digest) Hex() string {
	return digest.Digest(d).Encoded()
}

// Validate reports whether d is well-formed per the OCI digest grammar
// (algorithm, ':', lowercase hex).
func (d Digest) Validate() error {
	return digest.Digest(d).Validate()
}

// NewDigest builds a Digest from a SHA-256 hex string, the form every
// content hash in the image cache and layer store is kept in.
func NewDigest(hex string) Digest {
	return Digest(digest.NewDigestFromEncoded(digest.SHA256, hex).String())
}

// ImageObject is the resolved, cached representation of a pulled OCI image
// (spec §3). It is never mutated after Pull commits it; all accessors are
// lazy and keyed by content digest.
type ImageObject struct {
	Reference      string    `json:"reference"`
	ManifestDigest Digest    `json:"manifest_digest"`
	ConfigDigest   Digest    `json:"config_digest"`
	LayerDigests   []Digest  `json:"layer_digests"`
	PulledAt       time.Time `json:"pulled_at"`
}

// EntryType enumerates the tar entry kinds a Layer stream may contain
// (spec §3).
type EntryType int

const (
	EntryRegular EntryType = iota
	EntryDirectory
	EntrySymlink
	EntryHardlink
	EntryFIFO
	EntryBlockDevice
	EntryCharDevice
	EntryPAXGlobalHeader
)

// RootfsKind tags which concrete strategy a RootfsPrep carries (spec §3,
// glossary "Rootfs strategy").
type RootfsKind int

const (
	RootfsDiskImage RootfsKind = iota
	RootfsLayers
	RootfsMerged
)

// RootfsPrep is the tagged union produced by RootfsAssembler (spec §3).
// Exactly one of the kind-specific fields is populated, selected by Kind.
type RootfsPrep struct {
	Kind RootfsKind

	// DiskImage: a single ext4 (or qcow2 COW child of one) base disk path.
	BaseDiskPath string
	DiskSize     int64

	// Layers: directory of extracted per-layer trees, in application order.
	LayersDir  string
	LayerNames []string
}

// DiskFormat is the on-disk encoding of a Disk.
type DiskFormat string

const (
	DiskFormatRaw   DiskFormat = "raw"
	DiskFormatQcow2 DiskFormat = "qcow2"
)

// Disk describes a single block-device-backed file. Non-persistent disks
// are removed by their owner's cleanup path unless explicitly retained
// (spec §3 "RAII").
type Disk struct {
	Path       string     `json:"path"`
	Format     DiskFormat `json:"format"`
	Persistent bool       `json:"persistent"`
}
