// Package guestserver implements the three control-plane services the
// shim's embedded guest process exposes over the vsock/virtio transport
// (spec §4.9): Guest (one-shot init), Container (OCI lifecycle), and
// Execution (process spawn/attach/wait/kill).
package guestserver

import (
	"context"
	"sync"

	"github.com/boxlite/boxlite/controlplane/rpc"
	"github.com/boxlite/boxlite/internal/boxerr"
)

// GuestServer implements rpc.GuestServer. Init may run exactly once per
// guest boot (spec §4.9 "idempotent-refused"); later calls fail without
// re-running any mount or network step.
type GuestServer struct {
	mu          sync.Mutex
	initialized bool
	rootfsPath  string
}

func NewGuestServer() *GuestServer {
	return &GuestServer{}
}

func (g *GuestServer) Init(_ context.Context, req *rpc.GuestInitRequest) (*rpc.GuestInitResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.initialized {
		return nil, boxerr.New(boxerr.InvalidState, "guest already initialized")
	}

	if err := mountVolumes(req.Volumes); err != nil {
		return nil, err
	}

	rootfsPath, err := realizeRootfs(req)
	if err != nil {
		return nil, err
	}

	if err := configureNetwork(req.Network); err != nil {
		return nil, err
	}

	g.initialized = true
	g.rootfsPath = rootfsPath
	return &rpc.GuestInitResponse{RootfsPath: rootfsPath}, nil
}

func (g *GuestServer) Ping(_ context.Context, _ *rpc.Empty) (*rpc.Empty, error) {
	return &rpc.Empty{}, nil
}

// Shutdown is a request to exit cleanly; the shim's run loop is
// responsible for actually terminating the guest process once this call
// returns (spec §4.9).
func (g *GuestServer) Shutdown(_ context.Context, _ *rpc.Empty) (*rpc.Empty, error) {
	return &rpc.Empty{}, nil
}
