package guestserver

import (
	"context"
	"testing"

	"github.com/boxlite/boxlite/controlplane/rpc"
	"github.com/boxlite/boxlite/internal/boxerr"
)

func TestGuestInitMergedReferenceIsNoopMount(t *testing.T) {
	g := NewGuestServer()
	resp, err := g.Init(context.Background(), &rpc.GuestInitRequest{
		RootfsStrategy: rpc.RootfsStrategyMergedRef,
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if resp.RootfsPath != "/" {
		t.Fatalf("RootfsPath = %q, want /", resp.RootfsPath)
	}
}

func TestGuestInitRefusesSecondCall(t *testing.T) {
	g := NewGuestServer()
	req := &rpc.GuestInitRequest{RootfsStrategy: rpc.RootfsStrategyDisk}
	if _, err := g.Init(context.Background(), req); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	_, err := g.Init(context.Background(), req)
	if err == nil {
		t.Fatalf("expected second Init to be refused")
	}
	if !boxerr.Is(err, boxerr.InvalidState) {
		t.Fatalf("expected InvalidState error, got %v", err)
	}
}

func TestGuestInitRejectsUnknownRootfsStrategy(t *testing.T) {
	g := NewGuestServer()
	_, err := g.Init(context.Background(), &rpc.GuestInitRequest{
		RootfsStrategy: rpc.RootfsStrategy("bogus"),
	})
	if err == nil {
		t.Fatalf("expected error for unknown rootfs strategy")
	}
	if !boxerr.Is(err, boxerr.Config) {
		t.Fatalf("expected Config error, got %v", err)
	}
}

func TestGuestPingAndShutdownAreNoops(t *testing.T) {
	g := NewGuestServer()
	if _, err := g.Ping(context.Background(), &rpc.Empty{}); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if _, err := g.Shutdown(context.Background(), &rpc.Empty{}); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
