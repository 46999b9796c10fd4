package flock

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestLockExclusivity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	a := New(path)
	b := New(path)

	if err := a.Lock(context.Background()); err != nil {
		t.Fatalf("a.Lock: %v", err)
	}
	defer a.Unlock(context.Background())

	ok, err := b.TryLock(context.Background())
	if err != nil {
		t.Fatalf("b.TryLock: %v", err)
	}
	if ok {
		t.Fatalf("expected b.TryLock to fail while a holds the lock")
	}
}

func TestLockReleasedOnUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	a := New(path)
	b := New(path)

	if err := a.Lock(context.Background()); err != nil {
		t.Fatalf("a.Lock: %v", err)
	}
	if err := a.Unlock(context.Background()); err != nil {
		t.Fatalf("a.Unlock: %v", err)
	}

	ok, err := b.TryLock(context.Background())
	if err != nil {
		t.Fatalf("b.TryLock: %v", err)
	}
	if !ok {
		t.Fatalf("expected b.TryLock to succeed after a released the lock")
	}
	b.Unlock(context.Background())
}

func TestLockContextCancellation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	a := New(path)
	b := New(path)

	if err := a.Lock(context.Background()); err != nil {
		t.Fatalf("a.Lock: %v", err)
	}
	defer a.Unlock(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := b.Lock(ctx); err == nil {
		t.Fatalf("expected b.Lock to fail while a holds the lock")
	}
}
