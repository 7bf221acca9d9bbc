// Package state records flow runs and component executions in SQLite.
package state

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// RunStatus is the lifecycle state of a flow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// ComponentStatus is the lifecycle state of one component instance within
// a run.
type ComponentStatus string

const (
	ComponentStatusPending   ComponentStatus = "pending"
	ComponentStatusRunning   ComponentStatus = "running"
	ComponentStatusSuccess   ComponentStatus = "success"
	ComponentStatusFailed    ComponentStatus = "failed"
	ComponentStatusSkipped   ComponentStatus = "skipped"
	ComponentStatusCancelled ComponentStatus = "cancelled"
)

// Run is one execution of a flow.
type Run struct {
	ID          string
	FlowName    string
	FlowPath    string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// ComponentExecution is the record of one component instance in a run.
type ComponentExecution struct {
	ID            string
	RunID         string
	InstanceID    string
	ComponentType string
	Status        ComponentStatus
	Firings       int
	StartedAt     *time.Time
	CompletedAt   *time.Time
	Error         string
}

// Duration returns how long the component ran, or zero when unknown.
func (c *ComponentExecution) Duration() time.Duration {
	if c.StartedAt == nil || c.CompletedAt == nil {
		return 0
	}
	return c.CompletedAt.Sub(*c.StartedAt)
}

// Store is the persistence surface used by the flow executor and the CLI.
type Store interface {
	CreateRun(flowName, flowPath string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)
	RecordComponent(exec *ComponentExecution) error
	GetComponentExecutions(runID string) ([]*ComponentExecution, error)
	Close() error
}
