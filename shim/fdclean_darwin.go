package shim

import (
	"os"

	"golang.org/x/sys/unix"
)

// closeInheritedFDs closes every open file descriptor above stderr. macOS
// has no /proc to enumerate live fds from, so this walks the process's
// configured descriptor table limit instead, ignoring fds that were never
// opened (EBADF).
func closeInheritedFDs() error {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return nil //nolint:nilerr
	}
	maxFD := int(rlim.Cur)
	for fd := int(os.Stderr.Fd()) + 1; fd < maxFD; fd++ {
		_ = unix.Close(fd)
	}
	return nil
}
