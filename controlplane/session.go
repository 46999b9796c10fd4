// Package controlplane is the host side of the box control plane: it
// dials the guest's gRPC endpoint over whichever Transport the box was
// configured with and exposes Guest/Container/Execution as plain Go
// methods (spec §4.9).
package controlplane

import (
	"context"
	"io"

	"google.golang.org/grpc"

	"github.com/boxlite/boxlite/controlplane/rpc"
	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/types"
)

// GuestSession is a live connection to one box's guest server.
type GuestSession struct {
	conn      *grpc.ClientConn
	guest     rpc.GuestClient
	container rpc.ContainerClient
	exec      rpc.ExecutionClient
}

// Connect dials t and wraps it as a GuestSession. It does not wait for the
// guest server to be listening; callers that need that should retry Ping.
func Connect(ctx context.Context, t types.Transport) (*GuestSession, error) {
	conn, err := rpc.Dial(ctx, t)
	if err != nil {
		return nil, err
	}
	return &GuestSession{
		conn:      conn,
		guest:     rpc.NewGuestClient(conn),
		container: rpc.NewContainerClient(conn),
		exec:      rpc.NewExecutionClient(conn),
	}, nil
}

// Close tears down the underlying connection.
func (s *GuestSession) Close() error {
	return s.conn.Close()
}

// Init runs the guest's one-time setup: mount volumes, realize the rootfs
// strategy, configure networking (spec §4.9). Calling it twice returns the
// guest's idempotent-refused error.
func (s *GuestSession) Init(ctx context.Context, req rpc.GuestInitRequest) (*rpc.GuestInitResponse, error) {
	resp, err := s.guest.Init(ctx, &req)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.Engine, "guest init", err)
	}
	return resp, nil
}

// Ping checks guest liveness over the control plane itself.
func (s *GuestSession) Ping(ctx context.Context) error {
	if _, err := s.guest.Ping(ctx, &rpc.Empty{}); err != nil {
		return boxerr.Wrap(boxerr.Engine, "guest ping", err)
	}
	return nil
}

// Shutdown asks the guest to shut itself down cleanly.
func (s *GuestSession) Shutdown(ctx context.Context) error {
	if _, err := s.guest.Shutdown(ctx, &rpc.Empty{}); err != nil {
		return boxerr.Wrap(boxerr.Engine, "guest shutdown", err)
	}
	return nil
}

// ContainerInit creates an OCI container inside the guest from the
// rootfs Init prepared.
func (s *GuestSession) ContainerInit(ctx context.Context, req rpc.ContainerInitRequest) error {
	if _, err := s.container.Init(ctx, &req); err != nil {
		return boxerr.Wrap(boxerr.Engine, "container init", err)
	}
	return nil
}

// ContainerDestroy tears a container down.
func (s *GuestSession) ContainerDestroy(ctx context.Context, containerID string) error {
	if _, err := s.container.Destroy(ctx, &rpc.ContainerStatusRequest{ContainerID: containerID}); err != nil {
		return boxerr.Wrap(boxerr.Engine, "container destroy", err)
	}
	return nil
}

// ContainerStatus reports a container's lifecycle state.
func (s *GuestSession) ContainerStatus(ctx context.Context, containerID string) (*rpc.ContainerStatusResponse, error) {
	resp, err := s.container.Status(ctx, &rpc.ContainerStatusRequest{ContainerID: containerID})
	if err != nil {
		return nil, boxerr.Wrap(boxerr.Engine, "container status", err)
	}
	return resp, nil
}

// Exec starts a process in the guest or a named container, selected by the
// reserved BOXLITE_EXECUTOR env var the caller sets on req.Env (spec §4.10).
func (s *GuestSession) Exec(ctx context.Context, req rpc.ExecRequest) (*rpc.ExecResponse, error) {
	resp, err := s.exec.Exec(ctx, &req)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.Engine, "exec", err)
	}
	return resp, nil
}

// Attach opens the single allowed output stream for an execution, copying
// stdout/stderr chunks to the matching writer until the stream closes.
func (s *GuestSession) Attach(ctx context.Context, executionID string, stdout, stderr io.Writer) error {
	stream, err := s.exec.Attach(ctx, &rpc.AttachRequest{ExecutionID: executionID})
	if err != nil {
		return boxerr.Wrap(boxerr.Engine, "attach", err)
	}
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return boxerr.Wrap(boxerr.Engine, "attach recv", err)
		}
		var w io.Writer
		if chunk.Stream == rpc.StreamStderr {
			w = stderr
		} else {
			w = stdout
		}
		if w == nil {
			continue
		}
		if _, err := w.Write(chunk.Data); err != nil {
			return boxerr.Wrap(boxerr.Internal, "write attach chunk", err)
		}
	}
}

// SendInput opens the single allowed stdin stream for an execution and
// streams r's contents until EOF or ctx is done.
func (s *GuestSession) SendInput(ctx context.Context, executionID string, r io.Reader) error {
	stream, err := s.exec.SendInput(ctx)
	if err != nil {
		return boxerr.Wrap(boxerr.Engine, "send_input", err)
	}

	buf := make([]byte, 32*1024) //nolint:mnd
	first := true
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			msg := &rpc.ExecStdin{Data: append([]byte(nil), buf[:n]...)}
			if first {
				msg.ExecutionID = executionID
				first = false
			}
			if err := stream.Send(msg); err != nil {
				return boxerr.Wrap(boxerr.Engine, "send_input chunk", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return boxerr.Wrap(boxerr.Internal, "read stdin source", readErr)
		}
	}

	closeMsg := &rpc.ExecStdin{CloseStdin: true}
	if first {
		closeMsg.ExecutionID = executionID
	}
	if err := stream.Send(closeMsg); err != nil {
		return boxerr.Wrap(boxerr.Engine, "send_input close", err)
	}
	if _, err := stream.CloseAndRecv(); err != nil {
		return boxerr.Wrap(boxerr.Engine, "send_input close_and_recv", err)
	}
	return nil
}

// Wait blocks until the named execution exits.
func (s *GuestSession) Wait(ctx context.Context, executionID string) (*rpc.WaitResponse, error) {
	resp, err := s.exec.Wait(ctx, &rpc.WaitRequest{ExecutionID: executionID})
	if err != nil {
		return nil, boxerr.Wrap(boxerr.Engine, "wait", err)
	}
	return resp, nil
}

// Kill forwards a POSIX signal to the named execution. Idempotent: killing
// an already-exited execution returns Success=false, not an error.
func (s *GuestSession) Kill(ctx context.Context, executionID, signal string) (bool, error) {
	resp, err := s.exec.Kill(ctx, &rpc.KillRequest{ExecutionID: executionID, Signal: signal})
	if err != nil {
		return false, boxerr.Wrap(boxerr.Engine, "kill", err)
	}
	return resp.Success, nil
}

// ResizeTty applies a new terminal size to a PTY-backed execution.
func (s *GuestSession) ResizeTty(ctx context.Context, executionID string, rows, cols, xPixel, yPixel uint16) error {
	req := &rpc.ResizeTtyRequest{ExecutionID: executionID, Rows: rows, Cols: cols, XPixel: xPixel, YPixel: yPixel}
	if _, err := s.exec.ResizeTty(ctx, req); err != nil {
		return boxerr.Wrap(boxerr.Engine, "resize_tty", err)
	}
	return nil
}
