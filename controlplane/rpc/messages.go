package rpc

// Empty is the request/response shape for calls that carry no payload.
type Empty struct{}

// VolumeMount is one declared mount the guest realizes during Guest.Init
// (spec §4.2 Volume, §4.9 "mount all declared volumes").
type VolumeMount struct {
	Tag        string `json:"tag"`
	GuestPath  string `json:"guest_path"`
	ReadOnly   bool   `json:"read_only"`
	IsBlockDev bool   `json:"is_block_dev"`
	BlockID    string `json:"block_id,omitempty"`
}

// RootfsStrategy selects how Guest.Init realizes the rootfs (spec §4.9).
type RootfsStrategy string

const (
	RootfsStrategyMergedRef RootfsStrategy = "merged_reference_only"
	RootfsStrategyOverlay   RootfsStrategy = "overlay"
	RootfsStrategyDisk      RootfsStrategy = "disk"
)

// NetworkInterfaceConfig is the guest-side IP/gateway configuration applied
// during Guest.Init (spec §4.9 "configure network interface with
// IP/gateway").
type NetworkInterfaceConfig struct {
	Interface string `json:"interface"`
	IPCIDR    string `json:"ip_cidr"`
	Gateway   string `json:"gateway"`
}

// GuestInitRequest is the single setup call the guest server accepts
// exactly once per boot (spec §4.9 "idempotent-refused").
type GuestInitRequest struct {
	Volumes         []VolumeMount            `json:"volumes"`
	RootfsStrategy  RootfsStrategy           `json:"rootfs_strategy"`
	OverlayLowers   []string                 `json:"overlay_lowers,omitempty"`
	OverlayUpper    string                   `json:"overlay_upper,omitempty"`
	OverlayWork     string                   `json:"overlay_work,omitempty"`
	OverlayMerged   string                   `json:"overlay_merged,omitempty"`
	CopyLowersFirst bool                     `json:"copy_lowers_first,omitempty"`
	Network         *NetworkInterfaceConfig  `json:"network,omitempty"`
}

type GuestInitResponse struct {
	RootfsPath string `json:"rootfs_path"`
}

// ContainerInitRequest creates an OCI container from the rootfs Guest.Init
// prepared (spec §4.9, §4.10).
type ContainerInitRequest struct {
	ContainerID string            `json:"container_id"`
	Entrypoint  []string          `json:"entrypoint"`
	Env         map[string]string `json:"env"`
	Workdir     string            `json:"workdir"`
}

type ContainerStatusRequest struct {
	ContainerID string `json:"container_id"`
}

type ContainerStatusResponse struct {
	ContainerID string `json:"container_id"`
	State       string `json:"state"`
	Pid         int    `json:"pid"`
}

// ExecRequest starts a new process, either directly in the guest or inside
// a named container, selected by the reserved BOXLITE_EXECUTOR env var
// (spec §4.10).
type ExecRequest struct {
	Executable string            `json:"executable"`
	Args       []string          `json:"args"`
	Env        map[string]string `json:"env"`
	Workdir    string            `json:"workdir"`
	TTY        *TTYSize          `json:"tty,omitempty"`
	TimeoutMs  int64             `json:"timeout_ms,omitempty"`
}

type TTYSize struct {
	Rows   uint16 `json:"rows"`
	Cols   uint16 `json:"cols"`
	XPixel uint16 `json:"x_pixels"`
	YPixel uint16 `json:"y_pixels"`
}

type ExecResponse struct {
	ExecutionID string `json:"execution_id"`
	Pid         int    `json:"pid"`
	StartedAtMs int64  `json:"started_at_ms"`
}

// AttachRequest opens the single allowed output stream for an execution.
type AttachRequest struct {
	ExecutionID string `json:"execution_id"`
}

// ExecOutput is one chunk of stdout or stderr.
type ExecOutput struct {
	Stream ExecStream `json:"stream"`
	Data   []byte     `json:"data"`
}

type ExecStream int

const (
	StreamStdout ExecStream = iota
	StreamStderr
)

// ExecStdin is one chunk sent to a process's stdin; the first message on a
// stream carries ExecutionID, subsequent ones may omit it (spec §4.9
// "first message carries execution_id").
type ExecStdin struct {
	ExecutionID string `json:"execution_id,omitempty"`
	Data        []byte `json:"data,omitempty"`
	CloseStdin  bool   `json:"close_stdin,omitempty"`
}

type WaitRequest struct {
	ExecutionID string `json:"execution_id"`
}

type WaitResponse struct {
	ExitCode  int32  `json:"exit_code"`
	Signal    string `json:"signal,omitempty"`
	TimedOut  bool   `json:"timed_out"`
}

type KillRequest struct {
	ExecutionID string `json:"execution_id"`
	Signal      string `json:"signal"`
}

type KillResponse struct {
	Success bool `json:"success"`
}

type ResizeTtyRequest struct {
	ExecutionID string `json:"execution_id"`
	Rows        uint16 `json:"rows"`
	Cols        uint16 `json:"cols"`
	XPixel      uint16 `json:"x_pixels"`
	YPixel      uint16 `json:"y_pixels"`
}
