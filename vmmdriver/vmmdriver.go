// Package vmmdriver models the libkrun call surface the shim drives to boot
// a box's microVM (spec §4.6). libkrun itself is a C library reached via
// cgo; no libkrun headers are available to bind against in this
// transformation, so VmmDriver is a pure Go interface shaping that call
// surface one-to-one. A real build would satisfy it with a cgo file calling
// krun_create_ctx/krun_set_vm_config/... directly; tests here exercise the
// interface against an in-memory recorder instead.
package vmmdriver

import (
	"fmt"

	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/types"
)

// FsShare is a virtiofs mount handed to the guest (spec §4.2, §4.6).
type FsShare struct {
	Tag      string
	HostPath string
	ReadOnly bool
}

// BlockDevice is one virtio-blk device attached to the microVM.
type BlockDevice struct {
	BlockID  string
	DiskPath string
	ReadOnly bool
	Format   types.DiskFormat
}

// NetConfig is what add_net needs from a running NetworkBackend.
type NetConfig struct {
	SocketPath string
	Connection types.ConnectionType
	MAC        [6]byte
	Features   uint32
}

// VsockPort bridges one guest vsock port to a host Unix socket (spec §4.9's
// Vsock transport variant).
type VsockPort struct {
	Port       uint32
	SocketPath string
	Listen     bool
}

// Entrypoint is the guest-side process the microVM boots into — normally
// BoxLite's own guest agent binary (spec §4.6, §4.10).
type Entrypoint struct {
	Executable string
	Args       []string
	Env        map[string]string
}

// Config is the full set of VmmDriver calls one box boot issues, gathered so
// callers can build it once and hand it to Apply in a single pass.
type Config struct {
	CPUs          uint8
	MemoryMiB     uint32
	RootfsPath    string   // set iff directory rootfs (krun_set_root); empty for disk-backed rootfs
	OverlayLayers []string // set iff layered rootfs (krun_set_overlayfs_rootfs-equivalent)
	Disks         []BlockDevice
	FsShares      []FsShare
	Net           *NetConfig
	VsockPorts    []VsockPort
	Entry         Entrypoint
	Workdir       string
	ConsolePath   string
	UID           *uint32
	GID           *uint32
	Rlimits       []string
	NestedVirt    bool
}

// VmmDriver is the ordered call surface a concrete libkrun binding exposes.
// Every method after Create must be called before StartEnter; StartEnter
// itself replaces the calling process's image on success and never returns
// (spec §4.6 "process takeover") — callers must therefore invoke it from a
// dedicated subprocess, never from the host process driving Create.
type VmmDriver interface {
	Create() error
	SetVMConfig(cpus uint8, memoryMiB uint32) error
	SetRoot(path string) error
	SetOverlayfsRootfs(layers []string) error
	AddDisk(dev BlockDevice) error
	AddVirtiofs(share FsShare) error
	AddNet(cfg NetConfig) error
	AddVsockPort(p VsockPort) error
	SetExec(entry Entrypoint) error
	SetWorkdir(path string) error
	SetConsoleOutput(path string) error
	SetRlimits(rlimits []string) error
	SetNestedVirt(enabled bool) error
	Setuid(uid uint32) error
	Setgid(gid uint32) error
	// StartEnter hands control to the VM. Implementations that truly wrap
	// libkrun never return from a successful call.
	StartEnter() error
}

// Apply issues every VmmDriver call a Config implies, in the order libkrun
// requires: vm config and rootfs first, devices and shares next, process
// image and environment last, StartEnter always last of all. Callers invoke
// Apply and then StartEnter separately so a dry-run driver (used by tests
// and by host-side validation before forking the shim) can stop short of
// the point of no return.
func Apply(d VmmDriver, cfg Config) error {
	if err := d.Create(); err != nil {
		return boxerr.Wrapf(boxerr.Engine, err, "create vmm context")
	}
	if err := d.SetVMConfig(cfg.CPUs, cfg.MemoryMiB); err != nil {
		return boxerr.Wrapf(boxerr.Engine, err, "set vm config")
	}

	// Exactly one of RootfsPath/OverlayLayers applies for a directory- or
	// layer-passthrough rootfs; a disk-backed rootfs (RootfsDiskImage)
	// leaves both empty and boots entirely off an AddDisk block device
	// instead (spec §4.6 "set_root | set_overlayfs | (none, when using
	// disk rootfs)").
	switch {
	case cfg.RootfsPath != "":
		if err := d.SetRoot(cfg.RootfsPath); err != nil {
			return boxerr.Wrapf(boxerr.Engine, err, "set root %s", cfg.RootfsPath)
		}
	case len(cfg.OverlayLayers) > 0:
		if err := d.SetOverlayfsRootfs(cfg.OverlayLayers); err != nil {
			return boxerr.Wrapf(boxerr.Engine, err, "set overlayfs rootfs")
		}
	}

	for _, dev := range cfg.Disks {
		if err := d.AddDisk(dev); err != nil {
			return boxerr.Wrapf(boxerr.Engine, err, "add disk %s", dev.BlockID)
		}
	}
	for _, share := range cfg.FsShares {
		if err := d.AddVirtiofs(share); err != nil {
			return boxerr.Wrapf(boxerr.Engine, err, "add virtiofs %s", share.Tag)
		}
	}
	if cfg.Net != nil {
		if err := d.AddNet(*cfg.Net); err != nil {
			return boxerr.Wrapf(boxerr.Engine, err, "add net %s", cfg.Net.SocketPath)
		}
	}
	for _, p := range cfg.VsockPorts {
		if err := d.AddVsockPort(p); err != nil {
			return boxerr.Wrapf(boxerr.Engine, err, "add vsock port %d", p.Port)
		}
	}

	if cfg.Workdir != "" {
		if err := d.SetWorkdir(cfg.Workdir); err != nil {
			return boxerr.Wrapf(boxerr.Engine, err, "set workdir %s", cfg.Workdir)
		}
	}
	if cfg.ConsolePath != "" {
		if err := d.SetConsoleOutput(cfg.ConsolePath); err != nil {
			return boxerr.Wrapf(boxerr.Engine, err, "set console output %s", cfg.ConsolePath)
		}
	}
	if len(cfg.Rlimits) > 0 {
		if err := d.SetRlimits(cfg.Rlimits); err != nil {
			return boxerr.Wrapf(boxerr.Engine, err, "set rlimits")
		}
	}
	if cfg.NestedVirt {
		if err := d.SetNestedVirt(true); err != nil {
			return boxerr.Wrapf(boxerr.Engine, err, "set nested virt")
		}
	}
	if cfg.GID != nil {
		if err := d.Setgid(*cfg.GID); err != nil {
			return boxerr.Wrapf(boxerr.Engine, err, "setgid %d", *cfg.GID)
		}
	}
	if cfg.UID != nil {
		if err := d.Setuid(*cfg.UID); err != nil {
			return boxerr.Wrapf(boxerr.Engine, err, "setuid %d", *cfg.UID)
		}
	}

	if cfg.Entry.Executable == "" {
		return boxerr.New(boxerr.Config, "vmmdriver config has no entrypoint executable")
	}
	if err := d.SetExec(cfg.Entry); err != nil {
		return boxerr.Wrapf(boxerr.Engine, err, "set exec %s", cfg.Entry.Executable)
	}

	return nil
}

// recorder is a test/validation-only VmmDriver that records every call
// instead of touching libkrun. Apply's ordering can be exercised against it
// without a real binding. Not exported: real callers get a real cgo
// implementation, constructed elsewhere.
type recorder struct {
	calls   []string
	created bool
}

func (r *recorder) record(format string, args ...any) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) Create() error {
	r.created = true
	r.record("create")
	return nil
}

func (r *recorder) SetVMConfig(cpus uint8, memoryMiB uint32) error {
	r.record("set_vm_config cpus=%d mem=%d", cpus, memoryMiB)
	return nil
}

func (r *recorder) SetRoot(path string) error {
	r.record("set_root %s", path)
	return nil
}

func (r *recorder) SetOverlayfsRootfs(layers []string) error {
	r.record("set_overlayfs_rootfs %v", layers)
	return nil
}

func (r *recorder) AddDisk(dev BlockDevice) error {
	r.record("add_disk %s %s ro=%v fmt=%s", dev.BlockID, dev.DiskPath, dev.ReadOnly, dev.Format)
	return nil
}

func (r *recorder) AddVirtiofs(share FsShare) error {
	r.record("add_virtiofs %s %s", share.Tag, share.HostPath)
	return nil
}

func (r *recorder) AddNet(cfg NetConfig) error {
	r.record("add_net %s", cfg.SocketPath)
	return nil
}

func (r *recorder) AddVsockPort(p VsockPort) error {
	r.record("add_vsock_port %d %s listen=%v", p.Port, p.SocketPath, p.Listen)
	return nil
}

func (r *recorder) SetExec(entry Entrypoint) error {
	r.record("set_exec %s %v", entry.Executable, entry.Args)
	return nil
}

func (r *recorder) SetWorkdir(path string) error {
	r.record("set_workdir %s", path)
	return nil
}

func (r *recorder) SetConsoleOutput(path string) error {
	r.record("set_console_output %s", path)
	return nil
}

func (r *recorder) SetRlimits(rlimits []string) error {
	r.record("set_rlimits %v", rlimits)
	return nil
}

func (r *recorder) SetNestedVirt(enabled bool) error {
	r.record("set_nested_virt %v", enabled)
	return nil
}

func (r *recorder) Setuid(uid uint32) error {
	r.record("setuid %d", uid)
	return nil
}

func (r *recorder) Setgid(gid uint32) error {
	r.record("setgid %d", gid)
	return nil
}

func (r *recorder) StartEnter() error {
	r.record("start_enter")
	return nil
}
