package shim

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// closeInheritedFDs closes every open file descriptor above stderr (spec
// §4.7 step 5 "FD cleanup"), so the VmmDriver's own fd numbering starts
// from a clean slate and no accidental fd leaks from the host process
// cross into the box.
func closeInheritedFDs() error {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		// /proc unavailable (e.g. inside a minimal chroot) — nothing
		// reliable to enumerate; proceed without closing anything rather
		// than fail the whole boot.
		return nil //nolint:nilerr
	}
	for _, entry := range entries {
		fd, err := strconv.Atoi(entry.Name())
		if err != nil || fd <= int(os.Stderr.Fd()) {
			continue
		}
		_ = unix.Close(fd)
	}
	return nil
}
