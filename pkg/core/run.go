package core

import "time"

// RunStatus represents the status of a pipeline run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run represents a pipeline execution session.
type Run struct {
	ID          string
	Environment string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// StageRunStatus represents the status of an individual stage execution.
type StageRunStatus string

// Stage run status constants.
const (
	StageRunStatusPending StageRunStatus = "pending"
	StageRunStatusRunning StageRunStatus = "running"
	StageRunStatusSuccess StageRunStatus = "success"
	StageRunStatusFailed  StageRunStatus = "failed"
	StageRunStatusSkipped StageRunStatus = "skipped"
)

// StageRun represents a single execution of a stage within a run.
type StageRun struct {
	ID          string
	RunID       string
	Stage       string
	Status      StageRunStatus
	Rows        int64
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
	DurationMS  int64
}

// Artifact represents a dataset produced by a stage and registered
// with the state store.
type Artifact struct {
	ID          string
	RunID       string
	Stage       string
	Name        string
	Format      string
	Path        string
	Rows        int64
	ContentHash string
	CreatedAt   time.Time
}
