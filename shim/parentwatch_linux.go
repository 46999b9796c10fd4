package shim

import "golang.org/x/sys/unix"

// watchParent requests SIGTERM from the kernel when the calling process's
// parent dies (spec §4.7 step 3). The kernel handles delivery; no polling
// goroutine is needed on Linux.
func watchParent() error {
	return unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGTERM), 0, 0, 0)
}
