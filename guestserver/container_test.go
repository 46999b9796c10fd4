package guestserver

import (
	"testing"

	"github.com/boxlite/boxlite/controlplane/rpc"
)

func TestContainerSpecAppliesEntrypointEnvAndWorkdir(t *testing.T) {
	req := &rpc.ContainerInitRequest{
		ContainerID: "c1",
		Entrypoint:  []string{"/bin/sh", "-c", "true"},
		Env:         map[string]string{"FOO": "bar"},
		Workdir:     "/app",
	}
	spec := containerSpec(req)

	if spec.Root.Path != "rootfs" {
		t.Fatalf("Root.Path = %q, want rootfs", spec.Root.Path)
	}
	if len(spec.Process.Args) != 3 || spec.Process.Args[0] != "/bin/sh" {
		t.Fatalf("Args = %v", spec.Process.Args)
	}
	if spec.Process.Cwd != "/app" {
		t.Fatalf("Cwd = %q, want /app", spec.Process.Cwd)
	}
	found := false
	for _, e := range spec.Process.Env {
		if e == "FOO=bar" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Env missing FOO=bar: %v", spec.Process.Env)
	}
	if spec.Process.Capabilities == nil || len(spec.Process.Capabilities.Bounding) == 0 {
		t.Fatalf("expected non-empty capability set")
	}
}

func TestDefaultMountsIncludesProcDevSys(t *testing.T) {
	mounts := defaultMounts()
	dests := map[string]bool{}
	for _, m := range mounts {
		dests[m.Destination] = true
	}
	for _, want := range []string{"/proc", "/dev", "/sys"} {
		if !dests[want] {
			t.Fatalf("missing mount for %s", want)
		}
	}
}
