package guestexecutor

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"time"

	runc "github.com/containerd/go-runc"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/boxlite/boxlite/internal/boxerr"
)

// execInContainer runs params as a tenant process inside an already
// created container (BOXLITE_EXECUTOR=container=<id>, spec §4.10), granted
// the full capability set (spec §4.10 "the full set of 41 Linux
// capabilities is granted").
func (e *Executor) execInContainer(ctx context.Context, params ExecParams) (*Execution, error) {
	if params.TTY != nil {
		// runc's console-socket handshake for a tenant process needs its
		// own listener and FD-passing dance distinct from the plain pipe
		// IO below; only guest-direct execs allocate a pty for now.
		return nil, boxerr.New(boxerr.Unsupported, "tty is not yet supported for container execs")
	}

	procSpec := specs.Process{
		Terminal:     false,
		Args:         append([]string{params.Executable}, params.Args...),
		Env:          envSlice(params.Env),
		Cwd:          params.Workdir,
		Capabilities: containerCapabilities(),
	}

	ex := &Execution{
		ID:          newExecutionID(),
		ContainerID: params.ContainerID,
		output:      make(chan ExecChunk, 64), //nolint:mnd
		waitDone:    make(chan struct{}),
		StartedAt:   time.Now(),
	}

	runcIO, err := runc.NewPipeIO(0, 0) //nolint:mnd
	if err != nil {
		return nil, boxerr.Wrap(boxerr.Internal, "allocate runc pipe io", err)
	}
	ex.stdin = runcIO.Stdin()
	ex.pumps.Add(2) //nolint:mnd
	go pumpOutput(ex, StreamStdout, runcIO.Stdout())
	go pumpOutput(ex, StreamStderr, runcIO.Stderr())

	pidFile := filepath.Join(os.TempDir(), "runc-exec-"+ex.ID+".pid")

	execDone := make(chan error, 1)
	go func() {
		execDone <- e.runc.Exec(ctx, params.ContainerID, procSpec, &runc.ExecOpts{
			IO:      runcIO,
			PidFile: pidFile,
		})
	}()

	// runc writes the exec'd process's pid to PidFile as soon as it starts,
	// well before Exec itself returns (Exec blocks until the process exits).
	if pid, err := waitForPidFile(ctx, pidFile); err == nil {
		ex.Pid = pid
	}

	go e.reapContainerExec(ex, execDone, params.TimeoutMs)
	e.register(ex)
	return ex, nil
}

func waitForPidFile(ctx context.Context, path string) (int, error) {
	deadline := time.Now().Add(5 * time.Second) //nolint:mnd
	for time.Now().Before(deadline) {
		if pid, err := runc.ReadPidFile(path); err == nil {
			return pid, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(20 * time.Millisecond): //nolint:mnd
		}
	}
	return 0, boxerr.New(boxerr.Engine, "timed out reading runc exec pid file")
}

func (e *Executor) reapContainerExec(ex *Execution, execDone <-chan error, timeoutMs int64) {
	var timedOut bool
	if timeoutMs <= 0 {
		finishExecution(ex, <-execDone, false)
		return
	}

	select {
	case err := <-execDone:
		finishExecution(ex, err, false)
	case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
		timedOut = true
		if ex.Pid > 0 {
			_ = syscall.Kill(ex.Pid, syscall.SIGKILL)
		}
		finishExecution(ex, <-execDone, timedOut)
	}
}
