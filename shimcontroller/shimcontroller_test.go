package shimcontroller

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/types"
)

func TestScanLinesStripsANSIEscapes(t *testing.T) {
	r, w := os.Pipe()
	var lines []string
	done := make(chan struct{})
	go func() {
		scanLines(r, func(line string) { lines = append(lines, line) })
		close(done)
	}()

	_, _ = w.WriteString("\x1b[32mready\x1b[0m\nplain line\n")
	_ = w.Close()
	<-done

	if len(lines) != 2 || lines[0] != "ready" || lines[1] != "plain line" {
		t.Fatalf("got %v", lines)
	}
}

func TestStartRejectsMissingBinary(t *testing.T) {
	dir := t.TempDir()
	_, err := Start(context.Background(), types.InstanceSpec{BoxID: "box1"}, StartOptions{
		BinaryPath:      filepath.Join(dir, "no-such-shim"),
		ReadySocketPath: filepath.Join(dir, "ready.sock"),
		BoxSocketPath:   filepath.Join(dir, "box.sock"),
		BoxID:           "box1",
	})
	if err == nil {
		t.Fatalf("expected error for missing shim binary")
	}
	if !boxerr.Is(err, boxerr.Config) {
		t.Fatalf("expected Config error, got %v", err)
	}
}

// TestStartWaitsForReadyHandshakeThenStops launches a tiny Python helper that
// dials the ready socket handed to it on the command line and then sleeps,
// verifying Start blocks until the handshake lands and Stop tears the
// process down cleanly.
func TestStartWaitsForReadyHandshakeThenStops(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("AF_UNIX socket helper assumes a Linux test runner")
	}

	dir := t.TempDir()
	readySock := filepath.Join(dir, "ready.sock")
	boxSock := filepath.Join(dir, "box.sock")
	script := filepath.Join(dir, "fake_shim.py")
	const src = `#!/usr/bin/env python3
import socket, sys, time, json

config = None
for i, a in enumerate(sys.argv):
    if a == "--config":
        config = json.loads(sys.argv[i + 1])

ready_path = config["ready_transport"]["SocketPath"]
s = socket.socket(socket.AF_UNIX, socket.SOCK_STREAM)
s.connect(ready_path)
s.close()
time.sleep(30)
`
	if err := os.WriteFile(script, []byte(src), 0o755); err != nil { //nolint:gosec
		t.Fatal(err)
	}

	spec := types.InstanceSpec{
		BoxID: "box1",
		ReadyTransport: types.Transport{
			Kind:       types.TransportUnix,
			SocketPath: readySock,
		},
	}

	session, err := Start(context.Background(), spec, StartOptions{
		BinaryPath:      script,
		EngineKind:      "libkrun",
		ReadySocketPath: readySock,
		BoxSocketPath:   boxSock,
		BoxID:           "box1",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if session.Transport().SocketPath != boxSock {
		t.Fatalf("Transport().SocketPath = %q, want %q", session.Transport().SocketPath, boxSock)
	}
	if session.PID() <= 0 {
		t.Fatalf("expected positive PID, got %d", session.PID())
	}
	if !session.IsRunning() {
		t.Fatalf("expected shim process to still be running")
	}

	if err := session.Stop(context.Background(), time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if session.IsRunning() {
		t.Fatalf("expected shim process to be stopped")
	}
}

func TestStartSurfacesPrematureShimExit(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires a Linux test runner")
	}

	dir := t.TempDir()
	readySock := filepath.Join(dir, "ready.sock")
	script := filepath.Join(dir, "exit_immediately.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil { //nolint:gosec
		t.Fatal(err)
	}

	_, err := Start(context.Background(), types.InstanceSpec{BoxID: "box1"}, StartOptions{
		BinaryPath:      script,
		ReadySocketPath: readySock,
		BoxSocketPath:   filepath.Join(dir, "box.sock"),
		BoxID:           "box1",
	})
	if err == nil {
		t.Fatalf("expected error when shim exits before signaling ready")
	}
	if !boxerr.Is(err, boxerr.Engine) {
		t.Fatalf("expected Engine error, got %v", err)
	}
}
