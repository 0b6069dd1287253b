package orchestrator

import (
	"errors"
	"time"

	"github.com/redbco/redb-apphost/pkg/health"
)

// ErrDependencyFailed is returned to resources whose dependency failed to
// start or did not become ready in time.
var ErrDependencyFailed = errors.New("dependency failed")

// State is the lifecycle state of a resource.
type State string

const (
	StateNotStarted    State = "NotStarted"
	StateWaiting       State = "Waiting"
	StateStarting      State = "Starting"
	StateRunning       State = "Running"
	StateFailedToStart State = "FailedToStart"
	StateExited        State = "Exited"
	StateFinished      State = "Finished"
)

// IsTerminal reports whether the resource will not become Running again
// during this run.
func (s State) IsTerminal() bool {
	switch s {
	case StateFailedToStart, StateExited, StateFinished:
		return true
	}
	return false
}

// HealthState is the health of a resource as last observed.
type HealthState string

const (
	HealthUnknown   HealthState = "Unknown"
	HealthHealthy   HealthState = "Healthy"
	HealthDegraded  HealthState = "Degraded"
	HealthUnhealthy HealthState = "Unhealthy"
)

func healthStateOf(s health.Status) HealthState {
	switch s {
	case health.StatusHealthy:
		return HealthHealthy
	case health.StatusDegraded:
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}

// ResourceSnapshot is a point-in-time view of one resource.
type ResourceSnapshot struct {
	Name          string
	State         State
	Health        HealthState
	HealthMessage string
	ContainerID   string
	ContainerName string
	// Endpoints maps endpoint names to host-side URLs.
	Endpoints map[string]string
	ExitCode  int
	StartedAt time.Time
	Error     string
}

func (s ResourceSnapshot) sameAs(o ResourceSnapshot) bool {
	return s.State == o.State &&
		s.Health == o.Health &&
		s.HealthMessage == o.HealthMessage &&
		s.ContainerID == o.ContainerID &&
		s.ExitCode == o.ExitCode &&
		s.Error == o.Error &&
		len(s.Endpoints) == len(o.Endpoints)
}

// ResourceEvent is published whenever a snapshot changes.
type ResourceEvent struct {
	Time     time.Time
	Snapshot ResourceSnapshot
}
