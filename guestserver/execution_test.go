package guestserver

import (
	"context"
	"io"
	"runtime"
	"testing"

	"github.com/boxlite/boxlite/controlplane/rpc"
	"github.com/boxlite/boxlite/guestexecutor"
)

func TestExecutionExecAndWaitRoundTrip(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("spawns a real process; assumes a Linux test runner")
	}

	s := NewExecutionServer(guestexecutor.New(t.TempDir()))
	resp, err := s.Exec(context.Background(), &rpc.ExecRequest{
		Executable: "/bin/echo",
		Args:       []string{"hi"},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if resp.ExecutionID == "" || resp.Pid <= 0 {
		t.Fatalf("unexpected response %+v", resp)
	}

	waitResp, err := s.Wait(context.Background(), &rpc.WaitRequest{ExecutionID: resp.ExecutionID})
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if waitResp.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", waitResp.ExitCode)
	}
}

func TestExecutionWaitUnknownIDReturnsNotFound(t *testing.T) {
	s := NewExecutionServer(guestexecutor.New(t.TempDir()))
	_, err := s.Wait(context.Background(), &rpc.WaitRequest{ExecutionID: "does-not-exist"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseSignalKnownAndUnknown(t *testing.T) {
	if _, err := parseSignal("SIGKILL"); err != nil {
		t.Fatalf("SIGKILL should be supported: %v", err)
	}
	if _, err := parseSignal(""); err != nil {
		t.Fatalf("default signal should be supported: %v", err)
	}
	if _, err := parseSignal("SIGBOGUS"); err == nil {
		t.Fatalf("expected error for unsupported signal")
	}
}

func TestWriteChunkWritesAndClosesOnRequest(t *testing.T) {
	r, w := io.Pipe()
	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 5) //nolint:mnd
		n, _ := r.Read(buf)
		done <- buf[:n]
	}()

	if err := writeChunk(w, &rpc.ExecStdin{Data: []byte("hello")}); err != nil {
		t.Fatalf("writeChunk: %v", err)
	}
	if got := <-done; string(got) != "hello" {
		t.Fatalf("got %q, want hello", got)
	}

	if err := writeChunk(w, &rpc.ExecStdin{CloseStdin: true}); err != nil {
		t.Fatalf("writeChunk close: %v", err)
	}
	if _, err := w.Write([]byte("x")); err == nil {
		t.Fatalf("expected write after close to fail")
	}
}
