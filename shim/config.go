// Package shim implements the per-box subprocess: it parses an InstanceSpec,
// starts the box's network backend, hardens itself, and drives a VmmDriver
// into the microVM (spec §4.7). It is invoked as
// `shim --engine <kind> --config <json(InstanceSpec)>`; cmd/boxlite-shim is
// the thin binary wrapper around Run.
package shim

import (
	"path/filepath"

	"github.com/boxlite/boxlite/networkbackend"
	"github.com/boxlite/boxlite/types"
	"github.com/boxlite/boxlite/vmmdriver"
)

// BuildVmmConfig translates a parsed InstanceSpec, plus the endpoint of a
// network backend already started for it (if any), into the ordered
// VmmDriver configuration vmmdriver.Apply expects.
func BuildVmmConfig(spec types.InstanceSpec) vmmdriver.Config {
	cfg := vmmdriver.Config{
		CPUs:      spec.CPUs,
		MemoryMiB: spec.MemoryMiB,
		Entry: vmmdriver.Entrypoint{
			Executable: spec.GuestEntrypoint.Executable,
			Args:       spec.GuestEntrypoint.Args,
			Env:        spec.GuestEntrypoint.Env,
		},
		ConsolePath: spec.ConsoleOutput,
	}

	switch spec.GuestRootfs.Kind {
	case types.RootfsLayers:
		cfg.OverlayLayers = spec.GuestRootfs.LayerNames
	case types.RootfsDiskImage:
		// Disk-backed rootfs boots entirely off the vdb block device
		// already present in spec.BlockDevices; SetRoot/SetOverlayfsRootfs
		// are deliberately left unset (spec §4.6 "none, when using disk
		// rootfs").
	}

	for _, dev := range spec.BlockDevices {
		cfg.Disks = append(cfg.Disks, vmmdriver.BlockDevice{
			BlockID:  dev.BlockID,
			DiskPath: dev.DiskPath,
			ReadOnly: dev.ReadOnly,
			Format:   dev.Format,
		})
	}
	for _, share := range spec.FsShares {
		cfg.FsShares = append(cfg.FsShares, vmmdriver.FsShare{
			Tag:      share.Tag,
			HostPath: share.HostPath,
			ReadOnly: share.ReadOnly,
		})
	}

	if spec.NetworkConfig != nil {
		cfg.Net = &vmmdriver.NetConfig{
			SocketPath: spec.NetworkBackendEndpoint.SocketPath,
			Connection: spec.NetworkBackendEndpoint.Connection,
			MAC:        spec.NetworkBackendEndpoint.MAC,
		}
	}

	return cfg
}

// NetworkBackendOptions derives the options Start needs from an
// InstanceSpec's embedded NetworkBackendConfig. binaryPath is supplied by
// the caller (an operator-configured path, not part of the spec itself —
// see networkbackend's package doc for why BoxLite never bundles one).
func NetworkBackendOptions(spec types.InstanceSpec, binaryPath string) networkbackend.Options {
	return networkbackend.Options{
		BinaryPath: binaryPath,
		SocketPath: filepath.Join(filepath.Dir(spec.ReadyTransport.SocketPath), "net.sock"),
		Connection: types.ConnUnixDgram,
		MAC:        networkbackend.DefaultGatewayMAC,
		Config:     *spec.NetworkConfig,
		LogPath:    filepath.Join(spec.HomeDir, "logs", spec.BoxID+"-net.log"),
	}
}
