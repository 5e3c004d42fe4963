package core

// Store defines the interface for state management operations.
type Store interface {
	Open(path string) error
	Close() error
	Migrate() error

	// Run operations
	CreateRun(env string) (*Run, error)
	GetRun(id string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	GetLatestRun(env string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)

	// Stage run operations
	RecordStageRun(stageRun *StageRun) error
	UpdateStageRun(id string, status StageRunStatus, rows int64, errMsg string, durationMS int64) error
	GetStageRunsForRun(runID string) ([]*StageRun, error)
	GetLatestStageRun(stage string) (*StageRun, error)

	// Artifact operations
	SaveArtifact(artifact *Artifact) error
	GetArtifact(runID, name string) (*Artifact, error)
	ListArtifactsForRun(runID string) ([]*Artifact, error)

	// Retention
	PruneRuns(keep int) error
}
