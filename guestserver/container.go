package guestserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/boxlite/boxlite/controlplane/rpc"
	"github.com/boxlite/boxlite/guestexecutor"
	"github.com/boxlite/boxlite/internal/boxerr"
)

// ContainerServer implements rpc.ContainerServer: it turns the rootfs
// Guest.Init realized into an OCI bundle and delegates the create→start→
// delete lifecycle to a guestexecutor.Executor (spec §4.9, §4.10).
type ContainerServer struct {
	bundleRoot string
	exec       *guestexecutor.Executor
}

func NewContainerServer(bundleRoot string, exec *guestexecutor.Executor) *ContainerServer {
	return &ContainerServer{bundleRoot: bundleRoot, exec: exec}
}

func (c *ContainerServer) Init(ctx context.Context, req *rpc.ContainerInitRequest) (*rpc.Empty, error) {
	bundlePath := filepath.Join(c.bundleRoot, req.ContainerID)
	rootfsPath := filepath.Join(bundlePath, "rootfs")
	if err := os.MkdirAll(rootfsPath, 0o755); err != nil { //nolint:gosec
		return nil, boxerr.Wrapf(boxerr.Storage, err, "create bundle dir for %s", req.ContainerID)
	}

	spec := containerSpec(req)
	configPath := filepath.Join(bundlePath, "config.json")
	f, err := os.Create(configPath) //nolint:gosec
	if err != nil {
		return nil, boxerr.Wrapf(boxerr.Storage, err, "create config.json for %s", req.ContainerID)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	encErr := enc.Encode(spec)
	_ = f.Close()
	if encErr != nil {
		return nil, boxerr.Wrapf(boxerr.Internal, encErr, "encode config.json for %s", req.ContainerID)
	}

	if err := c.exec.CreateContainer(ctx, req.ContainerID, bundlePath); err != nil {
		return nil, err
	}
	return &rpc.Empty{}, nil
}

func (c *ContainerServer) Destroy(ctx context.Context, req *rpc.ContainerStatusRequest) (*rpc.Empty, error) {
	if err := c.exec.DestroyContainer(ctx, req.ContainerID); err != nil {
		return nil, err
	}
	return &rpc.Empty{}, nil
}

func (c *ContainerServer) Status(ctx context.Context, req *rpc.ContainerStatusRequest) (*rpc.ContainerStatusResponse, error) {
	state, pid, err := c.exec.ContainerStatus(ctx, req.ContainerID)
	if err != nil {
		return nil, err
	}
	return &rpc.ContainerStatusResponse{
		ContainerID: req.ContainerID,
		State:       state,
		Pid:         pid,
	}, nil
}

// containerSpec builds the minimal OCI runtime config a runc container
// needs: namespaces the VM boundary already isolates at the guest level
// are omitted, since this process is already the sole tenant of its VM
// (spec §4.10 "the full set of 41 Linux capabilities is granted").
func containerSpec(req *rpc.ContainerInitRequest) *specs.Spec {
	return &specs.Spec{
		Version: specs.Version,
		Root: &specs.Root{
			Path:     "rootfs",
			Readonly: false,
		},
		Process: &specs.Process{
			Terminal:     false,
			Args:         req.Entrypoint,
			Env:          envSlice(req.Env),
			Cwd:          req.Workdir,
			Capabilities: guestexecutor.ContainerCapabilities(),
		},
		Mounts: defaultMounts(),
		Linux: &specs.Linux{
			Namespaces: []specs.LinuxNamespace{
				{Type: specs.PIDNamespace},
				{Type: specs.MountNamespace},
				{Type: specs.IPCNamespace},
				{Type: specs.UTSNamespace},
			},
		},
	}
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func defaultMounts() []specs.Mount {
	return []specs.Mount{
		{Destination: "/proc", Type: "proc", Source: "proc"},
		{Destination: "/dev", Type: "tmpfs", Source: "tmpfs", Options: []string{"nosuid", "strictatime", "mode=755", "size=65536k"}},
		{Destination: "/sys", Type: "sysfs", Source: "sysfs", Options: []string{"nosuid", "noexec", "nodev", "ro"}},
	}
}
