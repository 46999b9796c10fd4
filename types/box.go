package types

import "time"

// BoxStatus is the lifecycle status of a box (spec §4.11 state machine).
type BoxStatus string

const (
	BoxConfigured BoxStatus = "configured"
	BoxRunning    BoxStatus = "running"
	BoxStopping   BoxStatus = "stopping"
	BoxStopped    BoxStatus = "stopped"
	BoxUnknown    BoxStatus = "unknown"
)

// IsActive reports whether the box currently owns live resources (a shim
// process, sockets, or an in-progress transition).
func (s BoxStatus) IsActive() bool {
	return s == BoxRunning || s == BoxStopping
}

// IsRunning reports whether the box has a live shim/guest.
func (s BoxStatus) IsRunning() bool { return s == BoxRunning }

// IsConfigured reports whether the box has been created but never started.
func (s BoxStatus) IsConfigured() bool { return s == BoxConfigured }

// IsStopped reports whether the box has a clean, inactive state.
func (s BoxStatus) IsStopped() bool { return s == BoxStopped }

// IsTransient reports whether the box is mid-transition.
func (s BoxStatus) IsTransient() bool { return s == BoxStopping }

// CanStart reports whether start() is permitted from this status.
func (s BoxStatus) CanStart() bool {
	return s == BoxConfigured || s == BoxStopped
}

// CanStop reports whether stop() is permitted from this status.
func (s BoxStatus) CanStop() bool { return s == BoxRunning }

// CanRemove reports whether remove() is permitted from this status
// (spec §4.11: "Removal requires status ∈ {Configured, Stopped, Unknown}").
func (s BoxStatus) CanRemove() bool {
	return s == BoxConfigured || s == BoxStopped || s == BoxUnknown
}

// CanExec reports whether process execution may be attempted against the
// box in this status. Only the caller that already has a live GuestSession
// needs this; it does not itself open one.
func (s BoxStatus) CanExec() bool { return s == BoxRunning }

// BoxMetadata is immutable once a box is created (spec §3).
type BoxMetadata struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	ImageRef  string            `json:"image_ref"`
	CPUs      int               `json:"cpus"`
	MemoryMiB int64             `json:"memory_mib"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// BoxState is the mutable half of a box's persisted record (spec §3).
// Exactly one of Status applies; PID is present iff Status == BoxRunning.
type BoxState struct {
	Status      BoxStatus `json:"status"`
	PID         int       `json:"pid,omitempty"`
	ContainerID string    `json:"container_id,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// BoxRecord is the self-describing, atomically-persisted registry entry for
// a single box (spec §6 "Persisted on-disk layouts").
type BoxRecord struct {
	Metadata BoxMetadata `json:"metadata"`
	State    BoxState    `json:"state"`
}

// CanTransitionTo reports whether the state machine in spec §4.11 permits
// moving from cur to next.
func CanTransitionTo(cur, next BoxStatus) bool {
	switch cur {
	case BoxConfigured:
		return next == BoxRunning || next == BoxStopped
	case BoxRunning:
		return next == BoxStopping || next == BoxStopped
	case BoxStopping:
		return next == BoxStopped
	case BoxStopped:
		return next == BoxRunning
	case BoxUnknown:
		// Recovery: an Unknown record may transition to any status once
		// its real state has been established (spec §9 Open Questions).
		return next == BoxConfigured || next == BoxRunning || next == BoxStopping || next == BoxStopped
	default:
		return false
	}
}
