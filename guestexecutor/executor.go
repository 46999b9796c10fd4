// Package guestexecutor implements the guest-side half of spec §4.10: OCI
// container lifecycle (via runc) plus direct and in-container process
// spawn, dispatched by the reserved BOXLITE_EXECUTOR env var.
package guestexecutor

import (
	"context"
	"fmt"
	"sync"

	runc "github.com/containerd/go-runc"
	"github.com/google/uuid"

	"github.com/boxlite/boxlite/internal/boxerr"
)

// Executor owns every OCI container and running execution inside one
// guest. One Executor exists per guest VM boot.
type Executor struct {
	runc *runc.Runc

	mu         sync.Mutex
	executions map[string]*Execution
}

// New returns an Executor whose containers' runc state lives under
// stateRoot (spec §4.10 "creates an OCI bundle ... then uses the standard
// OCI create→start sequence").
func New(stateRoot string) *Executor {
	return &Executor{
		runc: &runc.Runc{
			Root: stateRoot,
		},
		executions: make(map[string]*Execution),
	}
}

// CreateContainer runs runc create+start against a prepared OCI bundle
// (config.json + rootfs, already assembled by the caller from the rootfs
// Guest.Init realized).
func (e *Executor) CreateContainer(ctx context.Context, id, bundlePath string) error {
	if err := e.runc.Create(ctx, id, bundlePath, nil); err != nil {
		return boxerr.Wrapf(boxerr.Engine, err, "runc create %s", id)
	}
	if err := e.runc.Start(ctx, id); err != nil {
		return boxerr.Wrapf(boxerr.Engine, err, "runc start %s", id)
	}
	return nil
}

// DestroyContainer force-deletes a container and any running process in it.
func (e *Executor) DestroyContainer(ctx context.Context, id string) error {
	if err := e.runc.Delete(ctx, id, &runc.DeleteOpts{Force: true}); err != nil {
		return boxerr.Wrapf(boxerr.Engine, err, "runc delete %s", id)
	}
	return nil
}

// ContainerStatus reports a container's runc-observed state and init pid.
func (e *Executor) ContainerStatus(ctx context.Context, id string) (state string, pid int, err error) {
	c, err := e.runc.State(ctx, id)
	if err != nil {
		return "", 0, boxerr.Wrapf(boxerr.Engine, err, "runc state %s", id)
	}
	return c.Status, c.Pid, nil
}

// Get looks up a running or completed execution by id.
func (e *Executor) Get(executionID string) (*Execution, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ex, ok := e.executions[executionID]
	return ex, ok
}

func (e *Executor) register(ex *Execution) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executions[ex.ID] = ex
}

func newExecutionID() string {
	return fmt.Sprintf("exec-%s", uuid.NewString())
}
