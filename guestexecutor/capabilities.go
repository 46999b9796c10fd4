package guestexecutor

import specs "github.com/opencontainers/runtime-spec/specs-go"

// allCapabilities is the full Linux capability set granted to every
// container process (spec §4.10: "the full set of 41 Linux capabilities is
// granted — documented trade-off, not least-privilege; tenants run with the
// host kernel's full surface, mitigated by the VM boundary"). Guest-direct
// execs (BOXLITE_EXECUTOR unset/"guest") skip this entirely — they already
// run as whatever the guest init process is, there is no container
// boundary to grant capabilities across.
var allCapabilities = []string{
	"CAP_CHOWN", "CAP_DAC_OVERRIDE", "CAP_DAC_READ_SEARCH", "CAP_FOWNER",
	"CAP_FSETID", "CAP_KILL", "CAP_SETGID", "CAP_SETUID", "CAP_SETPCAP",
	"CAP_LINUX_IMMUTABLE", "CAP_NET_BIND_SERVICE", "CAP_NET_BROADCAST",
	"CAP_NET_ADMIN", "CAP_NET_RAW", "CAP_IPC_LOCK", "CAP_IPC_OWNER",
	"CAP_SYS_MODULE", "CAP_SYS_RAWIO", "CAP_SYS_CHROOT", "CAP_SYS_PTRACE",
	"CAP_SYS_PACCT", "CAP_SYS_ADMIN", "CAP_SYS_BOOT", "CAP_SYS_NICE",
	"CAP_SYS_RESOURCE", "CAP_SYS_TIME", "CAP_SYS_TTY_CONFIG", "CAP_MKNOD",
	"CAP_LEASE", "CAP_AUDIT_WRITE", "CAP_AUDIT_CONTROL", "CAP_SETFCAP",
	"CAP_MAC_OVERRIDE", "CAP_MAC_ADMIN", "CAP_SYSLOG", "CAP_WAKE_ALARM",
	"CAP_BLOCK_SUSPEND", "CAP_AUDIT_READ", "CAP_PERFMON", "CAP_BPF",
	"CAP_CHECKPOINT_RESTORE",
}

func containerCapabilities() *specs.LinuxCapabilities {
	return ContainerCapabilities()
}

// ContainerCapabilities returns the full capability set granted to a
// container's init process, for use by callers assembling the OCI bundle
// ahead of CreateContainer.
func ContainerCapabilities() *specs.LinuxCapabilities {
	return &specs.LinuxCapabilities{
		Bounding:    allCapabilities,
		Effective:   allCapabilities,
		Inheritable: allCapabilities,
		Permitted:   allCapabilities,
		Ambient:     allCapabilities,
	}
}
