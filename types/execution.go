package types

import "io"

// Signal is a process signal number delivered via Kill.
type Signal int

// TtySize is a terminal window size, settable via ResizeTty and read back
// via TIOCGWINSZ inside the guest (spec §6 "PTY resize").
type TtySize struct {
	Rows    uint16
	Cols    uint16
	XPixels uint16
	YPixels uint16
}

// ExecSpec describes a process to spawn in the guest, either inside the
// container namespace or directly in the guest (spec §3 "Exec").
type ExecSpec struct {
	Args   []string
	Env    []string
	Cwd    string
	Tty    *TtySize // non-nil requests a PTY back-end
	InHost bool     // spawn directly in the guest rather than inside the container
}

// Execution is the guest-side handle for a single spawned process (spec §3:
// "{id, handle, stdout_stream, stderr_stream, stdin_writer, pty?}"). Streams
// are single-consumer: StdoutStream/StderrStream are taken exactly once by
// Attach, StdinWriter exactly once by SendInput.
type Execution struct {
	ID     string
	PID    int
	Handle ProcessHandle

	StdoutStream io.ReadCloser
	StderrStream io.ReadCloser
	StdinWriter  io.WriteCloser

	PTY *PTYHandle // non-nil when ExecSpec.Tty was set
}

// ProcessHandle is the minimal process-lifecycle surface Execution needs;
// it is satisfied by *os.Process and by test doubles.
type ProcessHandle interface {
	Signal(sig Signal) error
	Wait() (exitCode int, signal int, err error)
}

// PTYHandle wraps a PTY master fd along with the resize operation.
type PTYHandle struct {
	Master io.ReadWriteCloser
	Resize func(TtySize) error
}

// ExitStatus is the terminal state reported by Wait.
type ExitStatus struct {
	ExitCode int
	Signal   int
}
