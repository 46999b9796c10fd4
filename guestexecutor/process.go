package guestexecutor

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/kr/pty"

	"github.com/boxlite/boxlite/internal/boxerr"
)

// TTYSize is a terminal geometry, applied via TIOCSWINSZ at spawn and on
// later ResizeTty calls (spec §4.10).
type TTYSize struct {
	Rows, Cols, XPixel, YPixel uint16
}

// ExecParams describes one process to spawn, guest-direct or inside a
// named container (spec §4.10 "BOXLITE_EXECUTOR").
type ExecParams struct {
	Executable  string
	Args        []string
	Env         map[string]string
	Workdir     string
	TTY         *TTYSize
	TimeoutMs   int64
	ContainerID string // "" selects guest-direct; otherwise the named container
}

// Stream tags which pipe an ExecChunk came from.
type Stream int

const (
	StreamStdout Stream = iota
	StreamStderr
)

// ExecChunk is one piece of process output, as delivered to Attach.
type ExecChunk struct {
	Stream Stream
	Data   []byte
}

// WaitResult is the terminal state of an execution (spec §4.10 "Exit").
type WaitResult struct {
	ExitCode int32
	Signal   string
	TimedOut bool
}

// Execution is one spawned process, trackable by id across Exec, Attach,
// SendInput, Wait, Kill, and ResizeTty (spec §4.9 ordering rules).
type Execution struct {
	ID          string
	Pid         int
	StartedAt   time.Time
	ContainerID string

	cmd  *exec.Cmd
	pty  *os.File // set only when TTY requested
	stdin io.WriteCloser

	output chan ExecChunk
	pumps  sync.WaitGroup // tracks in-flight pumpOutput goroutines

	attachTaken    atomic32
	sendInputTaken atomic32

	waitDone   chan struct{}
	waitResult WaitResult
	waitOnce   sync.Once
}

// atomic32 is a tiny mutex-guarded bool, avoiding a sync/atomic.Bool import
// dependency for a single-use guard (spec §4.9 "Attach and SendInput are
// each allowed exactly once per execution").
type atomic32 struct {
	mu    sync.Mutex
	taken bool
}

func (a *atomic32) takeOnce() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.taken {
		return false
	}
	a.taken = true
	return true
}

// TakeAttach claims the single Attach call allowed for this execution.
func (ex *Execution) TakeAttach() bool { return ex.attachTaken.takeOnce() }

// TakeSendInput claims the single SendInput call allowed for this execution.
func (ex *Execution) TakeSendInput() bool { return ex.sendInputTaken.takeOnce() }

// Output returns the channel Attach drains; closed once the process exits
// and both its stdout/stderr readers have been fully drained.
func (ex *Execution) Output() <-chan ExecChunk { return ex.output }

// Stdin returns the writer SendInput streams into, nil if the process has
// no stdin (should not happen for pipe or pty spawns).
func (ex *Execution) Stdin() io.WriteCloser { return ex.stdin }

// Wait blocks until the process has exited or ctx is canceled.
func (ex *Execution) Wait(ctx context.Context) (WaitResult, error) {
	select {
	case <-ex.waitDone:
		return ex.waitResult, nil
	case <-ctx.Done():
		return WaitResult{}, ctx.Err()
	}
}

// Kill forwards a POSIX signal to the process, returning false if it has
// already exited (spec §4.9 "Kill is idempotent").
func (ex *Execution) Kill(sig syscall.Signal) (bool, error) {
	select {
	case <-ex.waitDone:
		return false, nil
	default:
	}
	if err := syscall.Kill(ex.Pid, sig); err != nil {
		if err == syscall.ESRCH {
			return false, nil
		}
		return false, boxerr.Wrapf(boxerr.Engine, err, "kill pid %d", ex.Pid)
	}
	return true, nil
}

// ResizeTty applies a new geometry to a PTY-backed execution.
func (ex *Execution) ResizeTty(size TTYSize) error {
	if ex.pty == nil {
		return boxerr.New(boxerr.InvalidState, "execution has no tty")
	}
	return pty.Setsize(ex.pty, &pty.Winsize{
		Rows: size.Rows,
		Cols: size.Cols,
		X:    size.XPixel,
		Y:    size.YPixel,
	})
}

// Exec spawns params as a new process, either directly in the guest
// (params.ContainerID == "") or as a tenant process inside a named
// container (spec §4.10).
func (e *Executor) Exec(ctx context.Context, params ExecParams) (*Execution, error) {
	if params.ContainerID != "" {
		return e.execInContainer(ctx, params)
	}
	return e.execGuestDirect(ctx, params)
}

func (e *Executor) execGuestDirect(ctx context.Context, params ExecParams) (*Execution, error) {
	cmd := exec.CommandContext(ctx, params.Executable, params.Args...) //nolint:gosec
	cmd.Dir = params.Workdir
	cmd.Env = envSlice(params.Env)

	ex := &Execution{
		ID:        newExecutionID(),
		output:    make(chan ExecChunk, 64), //nolint:mnd
		waitDone:  make(chan struct{}),
		StartedAt: time.Now(),
		cmd:       cmd,
	}

	if params.TTY != nil {
		if err := attachPTY(cmd, ex, *params.TTY); err != nil {
			return nil, err
		}
	} else {
		if err := attachPipes(cmd, ex); err != nil {
			return nil, err
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, boxerr.Wrapf(boxerr.Engine, err, "spawn %s", params.Executable)
	}
	ex.Pid = cmd.Process.Pid

	go e.reap(ex, params.TimeoutMs)
	e.register(ex)
	return ex, nil
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// attachPipes wires three pipes as stdin/stdout/stderr, the default I/O
// mode (spec §4.10 "three pipes; parent keeps write-end of stdin and
// read-ends of the others").
func attachPipes(cmd *exec.Cmd, ex *Execution) error {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return boxerr.Wrap(boxerr.Internal, "attach stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return boxerr.Wrap(boxerr.Internal, "attach stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return boxerr.Wrap(boxerr.Internal, "attach stderr pipe", err)
	}
	ex.stdin = stdin
	ex.pumps.Add(2) //nolint:mnd
	go pumpOutput(ex, StreamStdout, stdout)
	go pumpOutput(ex, StreamStderr, stderr)
	return nil
}

// attachPTY allocates a pty, makes the replica the controlling terminal of
// a new session in pre-exec, and duplicates the master as stdin/stdout/
// stderr (spec §4.10 "PTY").
func attachPTY(cmd *exec.Cmd, ex *Execution, size TTYSize) error {
	master, replica, err := pty.Open()
	if err != nil {
		return boxerr.Wrap(boxerr.Internal, "open pty", err)
	}
	if err := pty.Setsize(master, &pty.Winsize{Rows: size.Rows, Cols: size.Cols, X: size.XPixel, Y: size.YPixel}); err != nil {
		replica.Close() //nolint:errcheck
		master.Close()  //nolint:errcheck
		return boxerr.Wrap(boxerr.Internal, "set pty size", err)
	}

	cmd.Stdin = replica
	cmd.Stdout = replica
	cmd.Stderr = replica
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	}

	ex.pty = master
	ex.stdin = master
	ex.pumps.Add(1)
	go func() {
		replica.Close() //nolint:errcheck
		pumpOutput(ex, StreamStdout, master)
	}()
	return nil
}

// pumpOutput copies r's bytes onto ex.output as they arrive until r returns
// an error (EOF on normal exit). ex.pumps must be incremented by the caller
// before the goroutine is started; finishExecution waits on it before
// closing ex.output, so a pump mid-send never races a closed channel.
func pumpOutput(ex *Execution, stream Stream, r io.Reader) {
	defer ex.pumps.Done()
	buf := make([]byte, 32*1024) //nolint:mnd
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			ex.output <- ExecChunk{Stream: stream, Data: chunk}
		}
		if err != nil {
			return
		}
	}
}

func (e *Executor) reap(ex *Execution, timeoutMs int64) {
	var timedOut bool
	done := make(chan error, 1)
	go func() { done <- ex.cmd.Wait() }()

	if timeoutMs > 0 {
		select {
		case err := <-done:
			finishExecution(ex, err, false)
			return
		case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
			timedOut = true
			_ = syscall.Kill(ex.Pid, syscall.SIGKILL)
			err := <-done
			finishExecution(ex, err, timedOut)
			return
		}
	}
	finishExecution(ex, <-done, false)
}

func finishExecution(ex *Execution, waitErr error, timedOut bool) {
	ex.waitOnce.Do(func() {
		result := WaitResult{TimedOut: timedOut}
		switch {
		case waitErr == nil:
			result.ExitCode = 0
		case isExitError(waitErr):
			exitErr := waitErr.(*exec.ExitError) //nolint:errorlint
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				if status.Signaled() {
					result.Signal = status.Signal().String()
				} else {
					result.ExitCode = int32(status.ExitStatus())
				}
			}
		default:
			// A container-exec failure surfaces as a plain runc error, not
			// an *exec.ExitError — runc does not hand back the tenant
			// process's raw wait status, only success/failure. 1 is the
			// conventional "ran but failed" code in that case.
			result.ExitCode = 1
		}
		ex.waitResult = result
		// Wait can return as soon as the process exits; the pumps still have
		// buffered bytes to drain off the now-EOF'd pipes, so the channel
		// must not close underneath a pump mid-send.
		ex.pumps.Wait()
		close(ex.output)
		close(ex.waitDone)
	})
}

func isExitError(err error) bool {
	_, ok := err.(*exec.ExitError) //nolint:errorlint
	return ok
}
