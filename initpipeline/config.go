package initpipeline

import (
	"os"

	"github.com/boxlite/boxlite/controlplane/rpc"
	"github.com/boxlite/boxlite/layout"
	"github.com/boxlite/boxlite/types"
)

// Fixed guest-side network configuration for the single NIC every box
// gets. BoxLite does not run a DHCP client in the guest; the address
// matches the static lease networkbackend's external process serves
// (mirrors networkbackend.DefaultGatewayMAC's own fixed-address
// assumption).
const (
	guestInterfaceName = "eth0"
	guestIPCIDR        = "192.168.127.2/24" //nolint:gosec // not a credential
	guestGatewayIP     = "192.168.127.1"
)

// buildInstanceSpec assembles the full shim configuration from the three
// parallel stages' results, the serial "config" stage of spec §5.
func buildInstanceSpec(l *layout.Layout, opts Options, fs filesystemResult, cr containerRootfsResult, guestDiskPath string) types.InstanceSpec {
	spec := types.InstanceSpec{
		BoxID:     opts.BoxID,
		CPUs:      opts.CPUs,
		MemoryMiB: opts.MemoryMiB,

		Transport:      types.Transport{Kind: types.TransportUnix, SocketPath: l.BoxSocketPath(opts.BoxID)},
		ReadyTransport: types.Transport{Kind: types.TransportUnix, SocketPath: l.BoxReadySocketPath(opts.BoxID)},

		GuestRootfs: types.GuestRootfsSpec{Kind: cr.Prep.Kind, LayerNames: cr.Prep.LayerNames},

		NetworkConfig: opts.Network,

		HomeDir:       opts.HomeDir,
		ConsoleOutput: opts.ConsoleOutput,
		Detach:        opts.Detach,
		ParentPID:     uint32(os.Getpid()), //nolint:gosec
	}

	spec.BlockDevices = append(spec.BlockDevices, types.BlockDevice{
		BlockID:  types.BlockIDGuestRootfs,
		DiskPath: guestDiskPath,
		Format:   types.DiskFormatQcow2,
	})

	switch cr.Prep.Kind {
	case types.RootfsDiskImage:
		spec.BlockDevices = append(spec.BlockDevices, types.BlockDevice{
			BlockID:  types.BlockIDContainerRootfs,
			DiskPath: cr.DiskPath,
			Format:   types.DiskFormatQcow2,
		})
	case types.RootfsLayers:
		spec.FsShares = append(spec.FsShares, types.FsShare{
			Tag:      types.FsShareTagLayers,
			HostPath: cr.Prep.LayersDir,
			ReadOnly: true,
		})
	}

	spec.FsShares = append(spec.FsShares, types.FsShare{
		Tag:      types.FsShareTagShared,
		HostPath: l.BoxSharedDir(opts.BoxID),
	})
	for _, v := range fs.volumes {
		spec.FsShares = append(spec.FsShares, types.FsShare{
			Tag:      v.Tag,
			HostPath: v.HostPath,
			ReadOnly: v.ReadOnly,
		})
	}

	env := make(map[string]string, len(opts.Env)+1)
	for k, v := range opts.Env {
		env[k] = v
	}
	if lvl := os.Getenv("BOXLITE_LOG"); lvl != "" {
		if _, ok := env["BOXLITE_LOG"]; !ok {
			env["BOXLITE_LOG"] = lvl
		}
	}
	spec.GuestEntrypoint = types.Entrypoint{
		Executable: "/usr/local/bin/boxlite-guest",
		Args:       []string{"--listen", spec.Transport.URI(), "--notify", spec.ReadyTransport.URI()},
		Env:        env,
	}

	return spec
}

// guestInitRequest translates the assembled InstanceSpec and prep result
// into the wire request Guest.Init expects (spec §4.9).
func guestInitRequest(spec types.InstanceSpec, cr containerRootfsResult, fs filesystemResult) rpc.GuestInitRequest {
	req := rpc.GuestInitRequest{
		RootfsStrategy: rootfsStrategyFor(cr.Prep.Kind),
		Network: &rpc.NetworkInterfaceConfig{
			Interface: guestInterfaceName,
			IPCIDR:    guestIPCIDR,
			Gateway:   guestGatewayIP,
		},
	}
	// RootfsDiskImage sends no VolumeMount: the container rootfs disk is
	// attached as vda by buildInstanceSpec, and guestserver.realizeRootfs
	// returns early for this strategy without mounting anything.
	if cr.Prep.Kind == types.RootfsLayers {
		req.OverlayMerged = "/"
		req.OverlayUpper = "/run/boxlite/upper"
		req.OverlayWork = "/run/boxlite/work"
		for _, name := range cr.Prep.LayerNames {
			req.OverlayLowers = append(req.OverlayLowers, "/run/boxlite/layers/"+name)
		}
	}
	for _, v := range fs.volumes {
		req.Volumes = append(req.Volumes, rpc.VolumeMount{
			Tag:       v.Tag,
			GuestPath: v.GuestPath,
			ReadOnly:  v.ReadOnly,
		})
	}
	return req
}

// rootfsStrategyFor maps the host-side RootfsKind to the wire strategy
// name Guest.Init dispatches on.
func rootfsStrategyFor(kind types.RootfsKind) rpc.RootfsStrategy {
	switch kind {
	case types.RootfsDiskImage:
		return rpc.RootfsStrategyDisk
	case types.RootfsLayers:
		return rpc.RootfsStrategyOverlay
	default:
		return rpc.RootfsStrategyMergedRef
	}
}
