package types

import "strconv"

// Reserved block-device IDs per spec §6: "vda" is the container rootfs COW
// overlay, "vdb" is the guest rootfs COW overlay.
const (
	BlockIDContainerRootfs = "vda"
	BlockIDGuestRootfs     = "vdb"
)

// Reserved virtiofs tags per spec §6.
const (
	FsShareTagShared = "shared"
	FsShareTagRootfs = "rootfs"
	FsShareTagLayers = "layers"
)

// UserVolumeTag returns the virtiofs tag for the n-th user-declared volume,
// indexed in declaration order (spec §6: "uservol<N>").
func UserVolumeTag(n int) string {
	return "uservol" + strconv.Itoa(n)
}

// VolumeSpec is a user-declared bind mount, as accepted by BoxOptions (spec
// §6 "volumes[{host_path, guest_path, read_only}]").
type VolumeSpec struct {
	HostPath  string `json:"host_path"`
	GuestPath string `json:"guest_path"`
	ReadOnly  bool   `json:"read_only"`
}
