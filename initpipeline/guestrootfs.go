package initpipeline

import (
	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/layout"
	"github.com/boxlite/boxlite/qcow2writer"
	"github.com/boxlite/boxlite/rootfsassembler"
)

const guestRootfsDiskSizeGB = 2

// prepareGuestRootfs builds the box's own qcow2 COW child of the
// operator-supplied guest-agent base disk (spec §5 "guest rootfs prep" arm
// of the parallel join; this is the "vdb" device distinct from the
// container's own "vda" rootfs). BoxLite does not build the base disk
// itself — it is a fixed asset carrying the minimal OS plus the guest
// agent, the role original_source's InitRootfs base disk plays.
func prepareGuestRootfs(l *layout.Layout, boxID, baseDiskPath string) (string, error) {
	overlayPath := l.BoxGuestRootfsPath(boxID)
	if err := rootfsassembler.CreateOverlay(baseDiskPath, overlayPath, qcow2writer.BackingRaw, guestRootfsDiskSizeGB); err != nil {
		return "", boxerr.Wrap(boxerr.Storage, "create guest rootfs overlay", err)
	}
	return overlayPath, nil
}
