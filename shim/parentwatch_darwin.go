package shim

import (
	"os"
	"time"
)

// watchParent polls getppid() once a second and exits when the parent
// changes (reparented to launchd/init), since macOS has no PR_SET_PDEATHSIG
// equivalent (spec §4.7 step 3).
func watchParent() error {
	parentPID := os.Getppid()
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if os.Getppid() != parentPID {
				os.Exit(1)
			}
		}
	}()
	return nil
}
