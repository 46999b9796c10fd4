package utils

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestPIDFileRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pid")
	if err := WritePIDFile(path, 4242); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}
	got, err := ReadPIDFile(path)
	if err != nil {
		t.Fatalf("ReadPIDFile: %v", err)
	}
	if got != 4242 {
		t.Fatalf("got %d, want 4242", got)
	}
}

func TestIsProcessAliveForSelf(t *testing.T) {
	if !IsProcessAlive(os.Getpid()) {
		t.Fatalf("expected current process to be reported alive")
	}
	if IsProcessAlive(0) {
		t.Fatalf("expected pid 0 to be reported dead")
	}
}

func TestTerminateProcessKillsChild(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	pid := cmd.Process.Pid

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := TerminateProcess(ctx, pid, 200*time.Millisecond); err != nil {
		t.Fatalf("TerminateProcess: %v", err)
	}
	if IsProcessAlive(pid) {
		t.Fatalf("expected process %d to be terminated", pid)
	}
	_ = cmd.Wait()
}

func TestTerminateProcessIdempotentOnDeadPID(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("cannot run true: %v", err)
	}
	if err := TerminateProcess(context.Background(), cmd.Process.Pid, time.Second); err != nil {
		t.Fatalf("TerminateProcess on already-exited pid: %v", err)
	}
}
