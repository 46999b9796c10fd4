package guestexecutor

import (
	"bytes"
	"context"
	"runtime"
	"testing"
	"time"
)

func TestExecGuestDirectPipesCollectsOutput(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("spawns a real process; assumes a Linux test runner")
	}

	e := New(t.TempDir())
	ex, err := e.Exec(context.Background(), ExecParams{
		Executable: "/bin/echo",
		Args:       []string{"hello"},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if ex.Pid <= 0 {
		t.Fatalf("expected positive pid, got %d", ex.Pid)
	}

	var stdout bytes.Buffer
	for chunk := range ex.Output() {
		if chunk.Stream == StreamStdout {
			stdout.Write(chunk.Data)
		}
	}

	if stdout.String() != "hello\n" {
		t.Fatalf("stdout = %q, want %q", stdout.String(), "hello\n")
	}

	result, err := ex.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", result.ExitCode)
	}
}

func TestExecGuestDirectReportsNonZeroExit(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("spawns a real process; assumes a Linux test runner")
	}

	e := New(t.TempDir())
	ex, err := e.Exec(context.Background(), ExecParams{
		Executable: "/bin/sh",
		Args:       []string{"-c", "exit 7"},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	for range ex.Output() {
	}
	result, err := ex.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if result.ExitCode != 7 {
		t.Fatalf("ExitCode = %d, want 7", result.ExitCode)
	}
}

func TestExecGuestDirectTimeoutKillsProcess(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("spawns a real process; assumes a Linux test runner")
	}

	e := New(t.TempDir())
	ex, err := e.Exec(context.Background(), ExecParams{
		Executable: "/bin/sleep",
		Args:       []string{"30"},
		TimeoutMs:  100, //nolint:mnd
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	for range ex.Output() {
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := ex.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !result.TimedOut {
		t.Fatalf("expected TimedOut = true")
	}
}

func TestKillIsIdempotentAfterExit(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("spawns a real process; assumes a Linux test runner")
	}

	e := New(t.TempDir())
	ex, err := e.Exec(context.Background(), ExecParams{Executable: "/bin/true"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	for range ex.Output() {
	}
	if _, err := ex.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	killed, err := ex.Kill(9) //nolint:mnd
	if err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if killed {
		t.Fatalf("expected Kill on an exited process to report false")
	}
}

func TestTakeAttachOnlyOnce(t *testing.T) {
	ex := &Execution{}
	if !ex.TakeAttach() {
		t.Fatalf("first TakeAttach should succeed")
	}
	if ex.TakeAttach() {
		t.Fatalf("second TakeAttach should fail")
	}
}

func TestTakeSendInputOnlyOnce(t *testing.T) {
	ex := &Execution{}
	if !ex.TakeSendInput() {
		t.Fatalf("first TakeSendInput should succeed")
	}
	if ex.TakeSendInput() {
		t.Fatalf("second TakeSendInput should fail")
	}
}
