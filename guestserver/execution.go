package guestserver

import (
	"context"
	"io"
	"syscall"

	"github.com/boxlite/boxlite/controlplane/rpc"
	"github.com/boxlite/boxlite/guestexecutor"
	"github.com/boxlite/boxlite/internal/boxerr"
)

// ExecutionServer implements rpc.ExecutionServer, translating wire
// requests into guestexecutor.Executor calls and enforcing the
// exactly-once Attach/SendInput contract of spec §4.9.
type ExecutionServer struct {
	exec *guestexecutor.Executor
}

func NewExecutionServer(exec *guestexecutor.Executor) *ExecutionServer {
	return &ExecutionServer{exec: exec}
}

func (s *ExecutionServer) Exec(ctx context.Context, req *rpc.ExecRequest) (*rpc.ExecResponse, error) {
	params := guestexecutor.ExecParams{
		Executable: req.Executable,
		Args:       req.Args,
		Env:        req.Env,
		Workdir:    req.Workdir,
		TimeoutMs:  req.TimeoutMs,
	}
	if req.TTY != nil {
		params.TTY = &guestexecutor.TTYSize{
			Rows: req.TTY.Rows, Cols: req.TTY.Cols,
			XPixel: req.TTY.XPixel, YPixel: req.TTY.YPixel,
		}
	}

	ex, err := s.exec.Exec(ctx, params)
	if err != nil {
		return nil, err
	}
	return &rpc.ExecResponse{
		ExecutionID: ex.ID,
		Pid:         ex.Pid,
		StartedAtMs: ex.StartedAt.UnixMilli(),
	}, nil
}

func (s *ExecutionServer) Attach(req *rpc.AttachRequest, stream rpc.Execution_AttachServer) error {
	ex, ok := s.exec.Get(req.ExecutionID)
	if !ok {
		return boxerr.Newf(boxerr.NotFound, "no such execution %s", req.ExecutionID)
	}
	if !ex.TakeAttach() {
		return boxerr.Newf(boxerr.InvalidState, "execution %s already attached", req.ExecutionID)
	}

	for chunk := range ex.Output() {
		out := &rpc.ExecOutput{Data: chunk.Data}
		if chunk.Stream == guestexecutor.StreamStderr {
			out.Stream = rpc.StreamStderr
		} else {
			out.Stream = rpc.StreamStdout
		}
		if err := stream.Send(out); err != nil {
			return err
		}
	}
	return nil
}

func (s *ExecutionServer) SendInput(stream rpc.Execution_SendInputServer) error {
	msg, err := stream.Recv()
	if err != nil {
		if err == io.EOF {
			return stream.SendAndClose(&rpc.Empty{})
		}
		return err
	}
	if msg.ExecutionID == "" {
		return boxerr.New(boxerr.Config, "first SendInput message must carry execution_id")
	}

	ex, ok := s.exec.Get(msg.ExecutionID)
	if !ok {
		return boxerr.Newf(boxerr.NotFound, "no such execution %s", msg.ExecutionID)
	}
	if !ex.TakeSendInput() {
		return boxerr.Newf(boxerr.InvalidState, "execution %s already has a sender", msg.ExecutionID)
	}

	stdin := ex.Stdin()
	if err := writeChunk(stdin, msg); err != nil {
		return err
	}

	for {
		msg, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		if err := writeChunk(stdin, msg); err != nil {
			return err
		}
	}

	return stream.SendAndClose(&rpc.Empty{})
}

func writeChunk(stdin io.WriteCloser, msg *rpc.ExecStdin) error {
	if len(msg.Data) > 0 {
		if _, err := stdin.Write(msg.Data); err != nil {
			return boxerr.Wrap(boxerr.Engine, "write stdin", err)
		}
	}
	if msg.CloseStdin {
		return stdin.Close()
	}
	return nil
}

func (s *ExecutionServer) Wait(ctx context.Context, req *rpc.WaitRequest) (*rpc.WaitResponse, error) {
	ex, ok := s.exec.Get(req.ExecutionID)
	if !ok {
		return nil, boxerr.Newf(boxerr.NotFound, "no such execution %s", req.ExecutionID)
	}
	result, err := ex.Wait(ctx)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.Engine, "wait execution", err)
	}
	return &rpc.WaitResponse{
		ExitCode: result.ExitCode,
		Signal:   result.Signal,
		TimedOut: result.TimedOut,
	}, nil
}

func (s *ExecutionServer) Kill(_ context.Context, req *rpc.KillRequest) (*rpc.KillResponse, error) {
	ex, ok := s.exec.Get(req.ExecutionID)
	if !ok {
		return nil, boxerr.Newf(boxerr.NotFound, "no such execution %s", req.ExecutionID)
	}
	sig, err := parseSignal(req.Signal)
	if err != nil {
		return nil, err
	}
	killed, err := ex.Kill(sig)
	if err != nil {
		return nil, err
	}
	return &rpc.KillResponse{Success: killed}, nil
}

func (s *ExecutionServer) ResizeTty(_ context.Context, req *rpc.ResizeTtyRequest) (*rpc.Empty, error) {
	ex, ok := s.exec.Get(req.ExecutionID)
	if !ok {
		return nil, boxerr.Newf(boxerr.NotFound, "no such execution %s", req.ExecutionID)
	}
	if err := ex.ResizeTty(guestexecutor.TTYSize{
		Rows: req.Rows, Cols: req.Cols, XPixel: req.XPixel, YPixel: req.YPixel,
	}); err != nil {
		return nil, err
	}
	return &rpc.Empty{}, nil
}

func parseSignal(name string) (syscall.Signal, error) {
	switch name {
	case "", "SIGTERM":
		return syscall.SIGTERM, nil
	case "SIGKILL":
		return syscall.SIGKILL, nil
	case "SIGINT":
		return syscall.SIGINT, nil
	case "SIGHUP":
		return syscall.SIGHUP, nil
	case "SIGQUIT":
		return syscall.SIGQUIT, nil
	case "SIGUSR1":
		return syscall.SIGUSR1, nil
	case "SIGUSR2":
		return syscall.SIGUSR2, nil
	default:
		return 0, boxerr.Newf(boxerr.Config, "unsupported signal %q", name)
	}
}
