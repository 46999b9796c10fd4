package shim

import (
	"context"
	"testing"

	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/types"
	"github.com/boxlite/boxlite/vmmdriver"
)

// fakeDriver is a minimal VmmDriver standing in for a real libkrun binding
// in tests; StartEnter returns nil instead of taking over the process.
type fakeDriver struct {
	startEntered bool
}

func (f *fakeDriver) Create() error                         { return nil }
func (f *fakeDriver) SetVMConfig(uint8, uint32) error        { return nil }
func (f *fakeDriver) SetRoot(string) error                  { return nil }
func (f *fakeDriver) SetOverlayfsRootfs([]string) error     { return nil }
func (f *fakeDriver) AddDisk(vmmdriver.BlockDevice) error    { return nil }
func (f *fakeDriver) AddVirtiofs(vmmdriver.FsShare) error    { return nil }
func (f *fakeDriver) AddNet(vmmdriver.NetConfig) error       { return nil }
func (f *fakeDriver) AddVsockPort(vmmdriver.VsockPort) error { return nil }
func (f *fakeDriver) SetExec(vmmdriver.Entrypoint) error     { return nil }
func (f *fakeDriver) SetWorkdir(string) error                { return nil }
func (f *fakeDriver) SetConsoleOutput(string) error          { return nil }
func (f *fakeDriver) SetRlimits([]string) error              { return nil }
func (f *fakeDriver) SetNestedVirt(bool) error                { return nil }
func (f *fakeDriver) Setuid(uint32) error                    { return nil }
func (f *fakeDriver) Setgid(uint32) error                    { return nil }
func (f *fakeDriver) StartEnter() error {
	f.startEntered = true
	return nil
}

// TestRunSurfacesNetworkBackendStartFailure exercises Run's early network
// backend stage without reaching the pre-exec hardening stage (which
// mutates the calling process's own fd table and rlimits — unsafe to
// invoke from inside a test binary). An empty binary path makes
// networkbackend.Start fail deterministically before Harden ever runs.
func TestRunSurfacesNetworkBackendStartFailure(t *testing.T) {
	spec := types.InstanceSpec{
		BoxID:           "box1",
		Detach:          true,
		GuestRootfs:     types.GuestRootfsSpec{Kind: types.RootfsDiskImage},
		GuestEntrypoint: types.Entrypoint{Executable: "/sbin/boxlite-guest"},
		NetworkConfig:   &types.NetworkBackendConfig{},
	}

	driver := &fakeDriver{}
	err := Run(context.Background(), spec, driver, RunOptions{})
	if err == nil {
		t.Fatalf("expected error when network backend binary path is unset")
	}
	if !boxerr.Is(err, boxerr.Network) {
		t.Fatalf("expected Network error, got %v", err)
	}
	if driver.startEntered {
		t.Fatalf("StartEnter must not be reached when network backend fails to start")
	}
}
