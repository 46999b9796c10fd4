// Package shimcontroller is the host-side handle over a box's shim
// subprocess: it spawns the binary, forwards its logs, waits for the guest
// to dial back on a ready socket, and later stops/queries it (spec §4.8).
package shimcontroller

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"os/exec"
	"regexp"
	"time"

	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/internal/logging"
	"github.com/boxlite/boxlite/types"
	"github.com/boxlite/boxlite/utils"
)

const readyTimeout = 30 * time.Second

// ansiEscape matches CSI-style ANSI escape sequences. No ANSI-strip library
// appears anywhere in the retrieved pack; this is five lines of regexp, not
// worth a dependency for.
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// Session is a live handle over a running shim subprocess, addressing its
// box.sock control-plane socket (spec §4.8 "Returns a GuestSession
// addressing box.sock").
type Session struct {
	cmd       *exec.Cmd
	pid       int
	boxID     string
	transport types.Transport
	logDone   chan struct{}
	sampler   *cpuMemSampler
}

// Controller spawns and supervises shim subprocesses.
type Controller struct{}

// New returns a Controller. Stateless: every method is self-contained given
// the arguments passed to it.
func New() *Controller { return &Controller{} }

// StartOptions gathers everything Start needs beyond the InstanceSpec
// itself: where the shim binary lives, where it should listen for the
// guest's ready handshake, and where its own stdio should be logged.
type StartOptions struct {
	BinaryPath      string
	EngineKind      string // "libkrun" or "firecracker" (spec §6 "Shim CLI")
	ReadySocketPath string
	BoxSocketPath   string
	BoxID           string
}

// Start spawns the shim, waits for its ready handshake, and returns a
// Session addressing the box's control-plane socket (spec §4.8).
func Start(ctx context.Context, spec types.InstanceSpec, opts StartOptions) (*Session, error) {
	logger := logging.WithFunc("shimcontroller.Start")

	if _, err := os.Stat(opts.BinaryPath); err != nil {
		return nil, boxerr.Wrapf(boxerr.Config, err, "shim binary %s", opts.BinaryPath)
	}

	_ = os.Remove(opts.ReadySocketPath)
	ln, err := net.Listen("unix", opts.ReadySocketPath)
	if err != nil {
		return nil, boxerr.Wrapf(boxerr.Engine, err, "bind ready socket %s", opts.ReadySocketPath)
	}
	defer ln.Close() //nolint:errcheck

	configJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.Internal, "marshal instance spec", err)
	}

	cmd := exec.Command(opts.BinaryPath, "--engine", opts.EngineKind, "--config", string(configJSON)) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, boxerr.Wrap(boxerr.Internal, "attach shim stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, boxerr.Wrap(boxerr.Internal, "attach shim stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, boxerr.Wrapf(boxerr.Engine, err, "exec shim %s", opts.BinaryPath)
	}
	pid := cmd.Process.Pid

	logDone := make(chan struct{})
	go func() {
		defer close(logDone)
		forwardLogs(ctx, opts.BoxID, stdout, stderr)
	}()

	conn, acceptErr := acceptWithDeadline(ctx, ln, readyTimeout, pid)
	if acceptErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		<-logDone
		return nil, acceptErr
	}
	_ = conn.Close() //nolint:errcheck // the connection itself was the handshake; no payload (spec §6)

	logger.Infof(ctx, "box %s shim ready (pid %d)", opts.BoxID, pid)
	return &Session{
		cmd:       cmd,
		pid:       pid,
		boxID:     opts.BoxID,
		transport: types.Transport{Kind: types.TransportUnix, SocketPath: opts.BoxSocketPath},
		logDone:   logDone,
		sampler:   newCPUMemSampler(pid),
	}, nil
}

// acceptWithDeadline waits for the guest's ready handshake, the shim's
// premature exit, or a timeout — whichever comes first.
func acceptWithDeadline(ctx context.Context, ln net.Listener, timeout time.Duration, pid int) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		accepted <- result{conn, err}
	}()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(100 * time.Millisecond) //nolint:mnd
	defer poll.Stop()

	for {
		select {
		case r := <-accepted:
			if r.err != nil {
				return nil, boxerr.Wrap(boxerr.Engine, "accept ready socket", r.err)
			}
			return r.conn, nil
		case <-poll.C:
			if !utils.IsProcessAlive(pid) {
				return nil, boxerr.New(boxerr.Engine, "shim exited prematurely before signaling ready")
			}
		case <-deadline.C:
			return nil, boxerr.New(boxerr.Engine, "timed out waiting for shim ready handshake")
		case <-ctx.Done():
			return nil, boxerr.Wrap(boxerr.Engine, "wait for shim ready handshake", ctx.Err())
		}
	}
}

// forwardLogs streams the shim's stdout to debug and stderr to warn, ANSI
// codes stripped, until both pipes close.
func forwardLogs(ctx context.Context, boxID string, stdout, stderr io.Reader) {
	logger := logging.WithFunc("shimcontroller.shim")
	done := make(chan struct{}, 2)

	go func() {
		scanLines(stdout, func(line string) { logger.Debugf(ctx, "[%s] %s", boxID, line) })
		done <- struct{}{}
	}()
	go func() {
		scanLines(stderr, func(line string) { logger.Warnf(ctx, "[%s] %s", boxID, line) })
		done <- struct{}{}
	}()
	<-done
	<-done
}

func scanLines(r io.Reader, emit func(string)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		emit(ansiEscape.ReplaceAllString(scanner.Text(), ""))
	}
}

// PID returns the shim's process ID.
func (s *Session) PID() int { return s.pid }

// Transport addresses the box's control-plane socket.
func (s *Session) Transport() types.Transport { return s.transport }

// IsRunning reports whether the shim process is still alive.
func (s *Session) IsRunning() bool { return utils.IsProcessAlive(s.pid) }

// Metrics samples CPU/memory from a stateful handle that persists across
// calls, required for delta-based CPU percentage (spec §4.8 "sample
// CPU/memory from a stateful system handle").
func (s *Session) Metrics() (Metrics, error) {
	return s.sampler.sample()
}

// Stop kills the shim (SIGKILL after gracePeriod), reaps it, and joins the
// log-forwarding goroutines (spec §4.8).
func (s *Session) Stop(ctx context.Context, gracePeriod time.Duration) error {
	if err := utils.TerminateProcess(ctx, s.pid, gracePeriod); err != nil {
		return boxerr.Wrapf(boxerr.Engine, err, "terminate shim pid %d", s.pid)
	}
	_ = s.cmd.Wait()
	<-s.logDone
	return nil
}
