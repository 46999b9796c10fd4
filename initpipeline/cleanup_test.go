package initpipeline

import (
	"context"
	"os"
	"testing"
)

func TestCleanupGuardRemovesBoxDirWhenArmed(t *testing.T) {
	l := newTestLayout(t)
	if err := l.PrepareBoxDirs("box-1"); err != nil {
		t.Fatalf("PrepareBoxDirs: %v", err)
	}

	guard := newCleanupGuard(l, "box-1")
	guard.run(context.Background())

	if _, err := os.Stat(l.BoxDir("box-1")); !os.IsNotExist(err) {
		t.Fatalf("expected box directory removed, stat err = %v", err)
	}
}

func TestCleanupGuardSkipsWhenDisarmed(t *testing.T) {
	l := newTestLayout(t)
	if err := l.PrepareBoxDirs("box-2"); err != nil {
		t.Fatalf("PrepareBoxDirs: %v", err)
	}

	guard := newCleanupGuard(l, "box-2")
	guard.disarm()
	guard.run(context.Background())

	if _, err := os.Stat(l.BoxDir("box-2")); err != nil {
		t.Fatalf("expected box directory to remain, stat err = %v", err)
	}
}
