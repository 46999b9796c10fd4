// Package initpipeline assembles every host-side resource a box needs and
// spawns its shim, as one staged DAG with RAII cleanup on failure (spec §2,
// §5): filesystem prep, container-rootfs prep, and guest-rootfs prep run in
// parallel (join barrier), then config, shim spawn, and Guest.Init run
// serially.
package initpipeline

import (
	"github.com/boxlite/boxlite/shimcontroller"
	"github.com/boxlite/boxlite/types"
)

// Options gathers everything Run needs to bring a box up, mirroring the
// host option bag of spec §6 (BoxOptions) plus the local paths the
// pipeline itself must know about.
type Options struct {
	BoxID     string
	ImageRef  string
	CPUs      uint8
	MemoryMiB uint32
	DiskSizeGB int64
	Workdir   string
	Env       map[string]string
	Volumes   []types.VolumeSpec
	Network   *types.NetworkBackendConfig

	// GuestInitDiskPath is the pre-built base disk the guest VM itself
	// boots from (the minimal OS plus the boxlite-guest agent). BoxLite
	// does not build this image; it is a fixed, operator-supplied asset,
	// the same role original_source's InitRootfs base disk plays.
	GuestInitDiskPath string

	ShimBinaryPath string
	EngineKind     string // "libkrun" or "firecracker" (spec §6 "Shim CLI")
	HomeDir        string
	Detach         bool
	ConsoleOutput  string
}

// Result is everything a successful Run hands back to the caller: the live
// shim handle and the InstanceSpec it was given, enough to later drive
// Guest/Container/Execution RPCs and to stop the box.
type Result struct {
	Session      *shimcontroller.Session
	InstanceSpec types.InstanceSpec
	RootfsPrep   types.RootfsPrep
	ContainerID  string
}
