package initpipeline

import (
	"context"
	"time"

	"github.com/boxlite/boxlite/internal/logging"
	"github.com/boxlite/boxlite/layout"
	"github.com/boxlite/boxlite/shimcontroller"
)

const shimStopGracePeriod = 5 * time.Second

// cleanupGuard unwinds everything Run has done so far if it fails partway
// through, mirroring original_source's CleanupGuard and the teacher's
// rollbackCreate (hypervisor/cloudhypervisor/create.go): run() stops the
// registered shim session, if any, and then removes the box directory,
// unless disarm() was called on a successful return.
type cleanupGuard struct {
	layout  *layout.Layout
	boxID   string
	session *shimcontroller.Session
	armed   bool
}

func newCleanupGuard(l *layout.Layout, boxID string) *cleanupGuard {
	return &cleanupGuard{layout: l, boxID: boxID, armed: true}
}

func (g *cleanupGuard) setSession(s *shimcontroller.Session) {
	g.session = s
}

func (g *cleanupGuard) disarm() {
	g.armed = false
}

func (g *cleanupGuard) run(ctx context.Context) {
	if !g.armed {
		return
	}
	logger := logging.WithFunc("initpipeline.cleanupGuard")
	if g.session != nil {
		if err := g.session.Stop(ctx, shimStopGracePeriod); err != nil {
			logger.Warnf(ctx, "box %s: stop shim during rollback: %v", g.boxID, err)
		}
	}
	if err := g.layout.CleanupBoxDir(g.boxID); err != nil {
		logger.Warnf(ctx, "box %s: remove directory during rollback: %v", g.boxID, err)
	}
}
