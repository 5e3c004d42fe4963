// Package state provides pipeline state management using SQLite.
// It tracks runs, per-stage execution history, and produced artifacts.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/cytops/cytops/pkg/core"
)

// SQLiteStore implements core.Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite state store. A nil logger
// discards output.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens a connection to the SQLite database. Use ":memory:" for an
// in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	} else {
		dsn = ":memory:?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func generateID() string {
	return uuid.New().String()
}

// --- Run operations ---

// CreateRun creates a new pipeline run in the running state.
func (s *SQLiteStore) CreateRun(env string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &core.Run{
		ID:          generateID(),
		Environment: env,
		Status:      core.RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	}

	s.logger.Debug("creating run", slog.String("id", run.ID), slog.String("environment", env))

	_, err := s.db.Exec(
		`INSERT INTO runs (id, environment, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Environment, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &core.Run{}
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := s.db.QueryRow(
		`SELECT id, environment, status, started_at, completed_at, error FROM runs WHERE id = ?`,
		id,
	).Scan(&run.ID, &run.Environment, &run.Status, &run.StartedAt, &completedAt, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	run.Error = errMsg.String
	return run, nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(id string, status core.RunStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	var errVal any
	if errMsg != "" {
		errVal = errMsg
	}

	_, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, now, errVal, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// GetLatestRun retrieves the most recent run for an environment.
// Returns nil without error if no run exists.
func (s *SQLiteStore) GetLatestRun(env string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &core.Run{}
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := s.db.QueryRow(
		`SELECT id, environment, status, started_at, completed_at, error
		 FROM runs WHERE environment = ? ORDER BY started_at DESC LIMIT 1`,
		env,
	).Scan(&run.ID, &run.Environment, &run.Status, &run.StartedAt, &completedAt, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	run.Error = errMsg.String
	return run, nil
}

// ListRuns retrieves the most recent runs up to the given limit.
func (s *SQLiteStore) ListRuns(limit int) ([]*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, environment, status, started_at, completed_at, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*core.Run
	for rows.Next() {
		run := &core.Run{}
		var completedAt sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(&run.ID, &run.Environment, &run.Status, &run.StartedAt, &completedAt, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		run.Error = errMsg.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- Stage run operations ---

// RecordStageRun inserts a stage run. A zero ID and StartedAt are
// filled in.
func (s *SQLiteStore) RecordStageRun(stageRun *core.StageRun) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if stageRun.ID == "" {
		stageRun.ID = generateID()
	}
	if stageRun.StartedAt.IsZero() {
		stageRun.StartedAt = time.Now().UTC()
	}

	var errVal any
	if stageRun.Error != "" {
		errVal = stageRun.Error
	}

	_, err := s.db.Exec(
		`INSERT INTO stage_runs (id, run_id, stage, status, rows, started_at, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stageRun.ID, stageRun.RunID, stageRun.Stage, stageRun.Status,
		stageRun.Rows, stageRun.StartedAt, errVal, stageRun.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to record stage run: %w", err)
	}
	return nil
}

// UpdateStageRun transitions a stage run to a new status. Terminal
// statuses also set the completion time.
func (s *SQLiteStore) UpdateStageRun(id string, status core.StageRunStatus, rows int64, errMsg string, durationMS int64) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var completedVal any
	switch status {
	case core.StageRunStatusSuccess, core.StageRunStatusFailed, core.StageRunStatusSkipped:
		completedVal = time.Now().UTC()
	}
	var errVal any
	if errMsg != "" {
		errVal = errMsg
	}

	_, err := s.db.Exec(
		`UPDATE stage_runs SET status = ?, rows = ?, error = ?, duration_ms = ?, completed_at = ? WHERE id = ?`,
		status, rows, errVal, durationMS, completedVal, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update stage run: %w", err)
	}
	return nil
}

// GetStageRunsForRun retrieves all stage runs for a run, in start
// order.
func (s *SQLiteStore) GetStageRunsForRun(runID string) ([]*core.StageRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, stage, status, rows, started_at, completed_at, error, duration_ms
		 FROM stage_runs WHERE run_id = ? ORDER BY started_at, stage`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stage runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanStageRuns(rows)
}

// GetLatestStageRun retrieves the most recent run of a stage. Returns
// nil without error if the stage never ran.
func (s *SQLiteStore) GetLatestStageRun(stage string) (*core.StageRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, stage, status, rows, started_at, completed_at, error, duration_ms
		 FROM stage_runs WHERE stage = ? ORDER BY started_at DESC LIMIT 1`,
		stage,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest stage run: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stageRuns, err := scanStageRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(stageRuns) == 0 {
		return nil, nil
	}
	return stageRuns[0], nil
}

func scanStageRuns(rows *sql.Rows) ([]*core.StageRun, error) {
	var out []*core.StageRun
	for rows.Next() {
		sr := &core.StageRun{}
		var completedAt sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(&sr.ID, &sr.RunID, &sr.Stage, &sr.Status, &sr.Rows,
			&sr.StartedAt, &completedAt, &errMsg, &sr.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan stage run: %w", err)
		}
		if completedAt.Valid {
			sr.CompletedAt = &completedAt.Time
		}
		sr.Error = errMsg.String
		out = append(out, sr)
	}
	return out, rows.Err()
}

// --- Artifact operations ---

// SaveArtifact registers an artifact produced by a stage, replacing any
// artifact of the same name within the run.
func (s *SQLiteStore) SaveArtifact(artifact *core.Artifact) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if artifact.ID == "" {
		artifact.ID = generateID()
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO artifacts (id, run_id, stage, name, format, path, rows, content_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, name) DO UPDATE SET
		   stage = excluded.stage, format = excluded.format, path = excluded.path,
		   rows = excluded.rows, content_hash = excluded.content_hash, created_at = excluded.created_at`,
		artifact.ID, artifact.RunID, artifact.Stage, artifact.Name, artifact.Format,
		artifact.Path, artifact.Rows, artifact.ContentHash, artifact.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// GetArtifact retrieves an artifact by run and name. Returns nil
// without error if not found.
func (s *SQLiteStore) GetArtifact(runID, name string) (*core.Artifact, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	a := &core.Artifact{}
	err := s.db.QueryRow(
		`SELECT id, run_id, stage, name, format, path, rows, content_hash, created_at
		 FROM artifacts WHERE run_id = ? AND name = ?`,
		runID, name,
	).Scan(&a.ID, &a.RunID, &a.Stage, &a.Name, &a.Format, &a.Path, &a.Rows, &a.ContentHash, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return a, nil
}

// ListArtifactsForRun retrieves all artifacts registered by a run.
func (s *SQLiteStore) ListArtifactsForRun(runID string) ([]*core.Artifact, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, stage, name, format, path, rows, content_hash, created_at
		 FROM artifacts WHERE run_id = ? ORDER BY created_at, name`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.Artifact
	for rows.Next() {
		a := &core.Artifact{}
		if err := rows.Scan(&a.ID, &a.RunID, &a.Stage, &a.Name, &a.Format, &a.Path,
			&a.Rows, &a.ContentHash, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PruneRuns deletes all but the most recent keep runs. Stage runs and
// artifacts cascade.
func (s *SQLiteStore) PruneRuns(keep int) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.Exec(
		`DELETE FROM runs WHERE id NOT IN (
		   SELECT id FROM runs ORDER BY started_at DESC LIMIT ?
		 )`,
		keep,
	)
	if err != nil {
		return fmt.Errorf("failed to prune runs: %w", err)
	}
	return nil
}

var _ core.Store = (*SQLiteStore)(nil)
