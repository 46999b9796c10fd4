package types

// FsShare is one virtiofs mount the shim hands to the VmmDriver (spec §4.2,
// §4.6, "Virtio tags").
type FsShare struct {
	Tag      string `json:"tag"`
	HostPath string `json:"host_path"`
	ReadOnly bool   `json:"read_only"`
}

// BlockDevice is one virtio-blk device the shim hands to the VmmDriver
// (spec §6 "Block devices": vda is the container rootfs overlay, vdb the
// guest rootfs overlay).
type BlockDevice struct {
	BlockID  string     `json:"block_id"`
	DiskPath string     `json:"disk_path"`
	ReadOnly bool       `json:"read_only"`
	Format   DiskFormat `json:"format"`
}

// Entrypoint is the guest-side process the microVM boots into.
type Entrypoint struct {
	Executable string            `json:"executable"`
	Args       []string          `json:"args"`
	Env        map[string]string `json:"env"`
}

// SecurityOptions is reserved for future per-box sandbox tuning. BoxLite
// currently grants the guest kernel's full capability set (spec §4.10,
// documented trade-off) — there is nothing yet to configure here, but the
// field exists so InstanceSpec's JSON shape is stable if that changes.
type SecurityOptions struct{}

// GuestRootfsSpec is the shim's view of RootfsPrep: enough information to
// either mount a disk directly or overlay-mount a set of cached layers
// inside the guest (spec §4.5, §4.9 Guest.Init "realize the rootfs
// strategy").
type GuestRootfsSpec struct {
	Kind       RootfsKind `json:"kind"`
	LayerNames []string   `json:"layer_names,omitempty"`
}

// InstanceSpec is the full JSON configuration passed to the shim subprocess
// via its --config flag (spec §4.7, §6 "Shim CLI"). Every field the
// VmmDriver or the shim's own pre-exec hardening needs is carried here so
// the subprocess is a pure function of (engine kind, InstanceSpec).
type InstanceSpec struct {
	BoxID     string          `json:"box_id"`
	Security  SecurityOptions `json:"security"`
	CPUs      uint8           `json:"cpus"`
	MemoryMiB uint32          `json:"memory_mib"`

	FsShares     []FsShare     `json:"fs_shares"`
	BlockDevices []BlockDevice `json:"block_devices"`

	GuestEntrypoint Entrypoint `json:"guest_entrypoint"`

	Transport      Transport `json:"transport"`
	ReadyTransport Transport `json:"ready_transport"`

	GuestRootfs GuestRootfsSpec `json:"guest_rootfs"`

	NetworkConfig *NetworkBackendConfig `json:"network_config,omitempty"`
	// NetworkBackendEndpoint is set in-process by the shim after it starts
	// the network backend itself; it is never read from the incoming JSON
	// (mirrors the original's `#[serde(skip)]` on this field).
	NetworkBackendEndpoint NetworkBackendEndpoint `json:"-"`

	HomeDir       string `json:"home_dir"`
	ConsoleOutput string `json:"console_output,omitempty"`
	Detach        bool   `json:"detach"`
	ParentPID     uint32 `json:"parent_pid"`
}
