package shim

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var rlimitResources = map[string]int{
	"RLIMIT_NOFILE":  unix.RLIMIT_NOFILE,
	"RLIMIT_NPROC":   unix.RLIMIT_NPROC,
	"RLIMIT_CORE":    unix.RLIMIT_CORE,
	"RLIMIT_AS":      unix.RLIMIT_AS,
	"RLIMIT_MEMLOCK": unix.RLIMIT_MEMLOCK,
}

// applyRlimits sets each "RLIMIT_NAME=soft:hard" entry via setrlimit(2).
func applyRlimits(rlimits []string) error {
	for _, entry := range rlimits {
		name, soft, hard, err := parseRlimitEntry(entry)
		if err != nil {
			return err
		}
		resource, ok := rlimitResources[name]
		if !ok {
			return fmt.Errorf("unknown rlimit resource %q", name)
		}
		lim := unix.Rlimit{Cur: soft, Max: hard}
		if err := unix.Setrlimit(resource, &lim); err != nil {
			return fmt.Errorf("setrlimit %s: %w", name, err)
		}
	}
	return nil
}
