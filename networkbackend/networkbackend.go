// Package networkbackend starts and holds a handle to an externally
// provided userspace network process (e.g. a gvisor-tap-vsock gateway
// binary) and exposes its connection endpoint to the VmmDriver (spec
// glossary "NetworkBackend"). BoxLite never links the network stack in;
// it launches a pre-built binary the way the teacher launches its
// hypervisor binary and waits for the handoff socket to appear.
package networkbackend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/internal/logging"
	"github.com/boxlite/boxlite/types"
	"github.com/boxlite/boxlite/utils"
)

const socketWaitTimeout = 5 * time.Second

// DefaultGatewayMAC is the MAC address handed to the guest NIC. It must
// match the backend's own static DHCP lease (spec §3
// "NetworkBackendEndpoint... MAC must match the static DHCP lease served
// by the backend").
var DefaultGatewayMAC = [6]byte{0x5a, 0x94, 0xef, 0xe4, 0x0c, 0xee}

// Spawned is a handle to a running external network backend process.
// Zero-value is not usable; construct via Start.
type Spawned struct {
	cmd        *exec.Cmd
	endpoint   types.NetworkBackendEndpoint
	pid        int
	binaryName string
}

// Options configure how the external network process is launched.
type Options struct {
	// BinaryPath is the external network backend executable (e.g. a
	// "gvproxy" build of containers/gvisor-tap-vsock). Required.
	BinaryPath string
	// SocketPath is where the backend listens; the VmmDriver connects
	// here via add_net (spec §4.6).
	SocketPath string
	Connection types.ConnectionType
	MAC        [6]byte
	Config     types.NetworkBackendConfig
	// LogPath, if set, captures the backend's stdout/stderr.
	LogPath string
}

// Start launches the external network backend and blocks until its socket
// is connectable (or it exits early, or the context/timeout expires),
// mirroring the teacher's launchProcess/waitForSocket pattern for the
// hypervisor binary itself (hypervisor/cloudhypervisor/start.go).
func Start(ctx context.Context, opts Options) (*Spawned, error) {
	logger := logging.WithFunc("networkbackend.Start")

	if opts.BinaryPath == "" {
		return nil, boxerr.New(boxerr.Config, "network backend binary path not set")
	}
	if opts.SocketPath == "" {
		return nil, boxerr.New(boxerr.Config, "network backend socket path not set")
	}

	_ = os.Remove(opts.SocketPath)

	args := buildArgs(opts)
	cmd := exec.Command(opts.BinaryPath, args...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if opts.LogPath != "" {
		logFile, err := os.Create(opts.LogPath) //nolint:gosec
		if err != nil {
			logger.Warnf(ctx, "create network backend log %s: %v", opts.LogPath, err)
		} else {
			defer logFile.Close() //nolint:errcheck
			cmd.Stdout = logFile
			cmd.Stderr = logFile
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, boxerr.Wrapf(boxerr.Network, err, "exec network backend %s", opts.BinaryPath)
	}
	pid := cmd.Process.Pid

	if err := utils.WaitFor(ctx, socketWaitTimeout, 50*time.Millisecond, func() (bool, error) { //nolint:mnd
		if fi, statErr := os.Stat(opts.SocketPath); statErr == nil && fi.Mode()&os.ModeSocket != 0 {
			return true, nil
		}
		if !utils.IsProcessAlive(pid) {
			return false, boxerr.Newf(boxerr.Network, "network backend %s exited before its socket was ready", opts.BinaryPath)
		}
		return false, nil
	}); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}

	logger.Infof(ctx, "network backend ready at %s (pid %d)", opts.SocketPath, pid)
	return &Spawned{
		cmd: cmd,
		pid: pid,
		endpoint: types.NetworkBackendEndpoint{
			SocketPath: opts.SocketPath,
			Connection: opts.Connection,
			MAC:        opts.MAC,
		},
		binaryName: opts.BinaryPath,
	}, nil
}

// Endpoint returns the connection handle the VmmDriver passes to add_net.
func (s *Spawned) Endpoint() types.NetworkBackendEndpoint { return s.endpoint }

// PID returns the backend process's PID.
func (s *Spawned) PID() int { return s.pid }

// Stop terminates the backend, waiting up to gracePeriod before escalating
// to SIGKILL (same discipline utils.TerminateProcess applies to the shim
// and the teacher's hypervisor process).
func (s *Spawned) Stop(ctx context.Context, gracePeriod time.Duration) error {
	if err := utils.TerminateProcess(ctx, s.pid, gracePeriod); err != nil {
		return boxerr.Wrapf(boxerr.Network, err, "terminate network backend %s", s.binaryName)
	}
	_ = s.cmd.Wait()
	return nil
}

// buildArgs renders the backend's CLI flags: one -listen flag naming the
// socket and transport, plus one -port-forward "host:guest" flag per
// mapping (spec §4.7's NetworkBackendConfig carries exactly this —
// port_mappings only, nothing else the backend needs from BoxLite).
func buildArgs(opts Options) []string {
	listenScheme := "unix"
	if opts.Connection == types.ConnUnixDgram {
		listenScheme = "unixgram"
	}
	args := []string{
		"-listen", fmt.Sprintf("%s://%s", listenScheme, opts.SocketPath),
	}
	for _, pm := range opts.Config.PortMappings {
		args = append(args, "-port-forward", fmt.Sprintf("%d:%d", pm.HostPort, pm.GuestPort))
	}
	return args
}
