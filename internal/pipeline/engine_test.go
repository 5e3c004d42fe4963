package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cytops/cytops/internal/config"
	"github.com/cytops/cytops/internal/table"
	"github.com/cytops/cytops/internal/warehouse"
	"github.com/cytops/cytops/pkg/core"
)

// fakeAdapter is an in-memory warehouse used by engine tests.
type fakeAdapter struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	saved      map[string]*table.Table
}

func (f *fakeAdapter) Connect(ctx context.Context, cfg warehouse.Config) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeAdapter) Close() error { return nil }

func (f *fakeAdapter) Exec(ctx context.Context, sql string) error { return nil }

func (f *fakeAdapter) Query(ctx context.Context, sql string) (*warehouse.Rows, error) {
	return nil, fmt.Errorf("queries are not supported")
}

func (f *fakeAdapter) TableMetadata(ctx context.Context, tableRef string) (*warehouse.Metadata, error) {
	return nil, fmt.Errorf("metadata is not supported")
}

func (f *fakeAdapter) LoadCSV(ctx context.Context, tableName, filePath string) error {
	return fmt.Errorf("csv loading is not supported")
}

func (f *fakeAdapter) SaveTable(ctx context.Context, tableName string, t *table.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[tableName] = t.Clone()
	return nil
}

func (f *fakeAdapter) DialectName() string { return "fake" }

func (f *fakeAdapter) savedTables() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.saved))
	for name := range f.saved {
		names = append(names, name)
	}
	return names
}

var (
	registerFakeOnce sync.Once
	activeFake       *fakeAdapter
)

// useFakeWarehouse installs a fresh fake adapter under the "fake"
// warehouse type and returns it.
func useFakeWarehouse(t *testing.T) *fakeAdapter {
	t.Helper()
	registerFakeOnce.Do(func() {
		warehouse.Register("fake", func(*slog.Logger) warehouse.Adapter { return activeFake })
	})
	activeFake = &fakeAdapter{saved: make(map[string]*table.Table)}
	return activeFake
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		RawFormat:       "tsv",
		ArtifactsDir:    t.TempDir(),
		StatePath:       ":memory:",
		Environment:     "dev",
		TimeAdjustHours: 1,
		ValidationDays:  2,
		TestDays:        2,
		ExportFormat:    "csv",
		KeepRuns:        20,
		Warehouse:       &config.WarehouseConfig{Type: "fake"},
	}
}

// testStage is a scriptable stage for orchestration tests.
type testStage struct {
	name        string
	deps        []string
	validateErr error
	execute     func(ctx context.Context, env *Env) (int64, error)
}

func (s *testStage) Name() string   { return s.name }
func (s *testStage) Deps() []string { return s.deps }

func (s *testStage) Validate(ctx context.Context, env *Env) error {
	return s.validateErr
}

func (s *testStage) Execute(ctx context.Context, env *Env) (int64, error) {
	if s.execute == nil {
		return 1, nil
	}
	return s.execute(ctx, env)
}

func newTestEngine(t *testing.T, stages ...Stage) *Engine {
	t.Helper()
	useFakeWarehouse(t)

	e, err := New(Options{Config: testConfig(t), Stages: stages})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func stageStatuses(t *testing.T, e *Engine, runID string) map[string]core.StageRunStatus {
	t.Helper()
	stageRuns, err := e.Store().GetStageRunsForRun(runID)
	require.NoError(t, err)

	statuses := make(map[string]core.StageRunStatus, len(stageRuns))
	for _, sr := range stageRuns {
		statuses[sr.Stage] = sr.Status
	}
	return statuses
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorContains(t, err, "config is required")
}

func TestNew_DuplicateStage(t *testing.T) {
	useFakeWarehouse(t)

	_, err := New(Options{
		Config: testConfig(t),
		Stages: []Stage{
			&testStage{name: "a"},
			&testStage{name: "a"},
		},
	})
	assert.ErrorContains(t, err, "already registered")
}

func TestNew_UnknownDependency(t *testing.T) {
	useFakeWarehouse(t)

	_, err := New(Options{
		Config: testConfig(t),
		Stages: []Stage{
			&testStage{name: "b", deps: []string{"missing"}},
		},
	})
	assert.ErrorContains(t, err, "unknown stage")
}

func TestRun_Success(t *testing.T) {
	e := newTestEngine(t,
		&testStage{
			name: "a",
			execute: func(ctx context.Context, env *Env) (int64, error) {
				tbl := table.New("id")
				if err := tbl.AppendRow("1"); err != nil {
					return 0, err
				}
				env.Bag.PutTable("a_output", tbl)
				return 1, nil
			},
		},
		&testStage{
			name: "b",
			deps: []string{"a"},
			execute: func(ctx context.Context, env *Env) (int64, error) {
				tbl, err := env.Bag.Table("a_output")
				if err != nil {
					return 0, err
				}
				return int64(tbl.Len()) * 10, nil
			},
		},
	)

	run, err := e.Run(context.Background(), "dev")
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, core.RunStatusCompleted, run.Status)
	assert.NotNil(t, run.CompletedAt)
	assert.True(t, activeFake.connected, "the warehouse connects lazily on run")

	stageRuns, err := e.Store().GetStageRunsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, stageRuns, 2)
	for _, sr := range stageRuns {
		assert.Equal(t, core.StageRunStatusSuccess, sr.Status, sr.Stage)
	}
}

func TestRun_ValidationFailure(t *testing.T) {
	e := newTestEngine(t,
		&testStage{name: "a"},
		&testStage{name: "b", deps: []string{"a"}, validateErr: fmt.Errorf("raw events file missing")},
	)

	run, err := e.Run(context.Background(), "dev")
	require.Error(t, err)
	assert.ErrorContains(t, err, "b: raw events file missing")

	require.NotNil(t, run)
	assert.Equal(t, core.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "failed validation")

	statuses := stageStatuses(t, e, run.ID)
	assert.Equal(t, core.StageRunStatusFailed, statuses["b"])
	assert.Equal(t, core.StageRunStatusSkipped, statuses["a"], "validated stages are skipped when any validation fails")
}

func TestRun_ExecutionFailure(t *testing.T) {
	e := newTestEngine(t,
		&testStage{
			name: "a",
			execute: func(ctx context.Context, env *Env) (int64, error) {
				return 0, fmt.Errorf("boom")
			},
		},
		&testStage{name: "b", deps: []string{"a"}},
	)

	run, err := e.Run(context.Background(), "dev")
	require.Error(t, err)
	assert.ErrorContains(t, err, "a: boom")

	require.NotNil(t, run)
	assert.Equal(t, core.RunStatusFailed, run.Status)

	statuses := stageStatuses(t, e, run.ID)
	assert.Equal(t, core.StageRunStatusFailed, statuses["a"])
	assert.Equal(t, core.StageRunStatusSkipped, statuses["b"], "downstream stages are skipped after a failure")
}

func TestRun_Cancelled(t *testing.T) {
	var executed int
	count := func(ctx context.Context, env *Env) (int64, error) {
		executed++
		return 1, nil
	}

	e := newTestEngine(t,
		&testStage{name: "a", execute: count},
		&testStage{name: "b", deps: []string{"a"}, execute: count},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := e.Run(ctx, "dev")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	require.NotNil(t, run)
	assert.Equal(t, core.RunStatusCancelled, run.Status)
	assert.Zero(t, executed, "no stage executes after cancellation")

	statuses := stageStatuses(t, e, run.ID)
	assert.Equal(t, core.StageRunStatusSkipped, statuses["a"])
	assert.Equal(t, core.StageRunStatusSkipped, statuses["b"])
}

func TestRun_ConcurrentLevel(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context, *Env) (int64, error) {
		return func(ctx context.Context, env *Env) (int64, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return 1, nil
		}
	}

	e := newTestEngine(t,
		&testStage{name: "root", execute: record("root")},
		&testStage{name: "left", deps: []string{"root"}, execute: record("left")},
		&testStage{name: "right", deps: []string{"root"}, execute: record("right")},
		&testStage{name: "sink", deps: []string{"left", "right"}, execute: record("sink")},
	)

	run, err := e.Run(context.Background(), "dev")
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, run.Status)

	require.Len(t, order, 4)
	assert.Equal(t, "root", order[0])
	assert.Equal(t, "sink", order[3])
	assert.ElementsMatch(t, []string{"left", "right"}, order[1:3])
}

func TestRunSelected_UnknownStage(t *testing.T) {
	e := newTestEngine(t, &testStage{name: "a"})

	_, err := e.RunSelected(context.Background(), "dev", []string{"nope"}, false)
	assert.ErrorContains(t, err, `unknown stage "nope"`)
}

func TestRunSelected(t *testing.T) {
	e := newTestEngine(t,
		&testStage{name: "a"},
		&testStage{name: "b", deps: []string{"a"}},
	)

	run, err := e.RunSelected(context.Background(), "dev", []string{"b"}, false)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, run.Status)

	stageRuns, err := e.Store().GetStageRunsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, stageRuns, 1)
	assert.Equal(t, "b", stageRuns[0].Stage)
}

func TestRunSelected_Downstream(t *testing.T) {
	e := newTestEngine(t,
		&testStage{name: "a"},
		&testStage{name: "b", deps: []string{"a"}},
		&testStage{name: "c", deps: []string{"b"}},
	)

	run, err := e.RunSelected(context.Background(), "dev", []string{"b"}, true)
	require.NoError(t, err)

	statuses := stageStatuses(t, e, run.ID)
	assert.Len(t, statuses, 2)
	assert.Contains(t, statuses, "b")
	assert.Contains(t, statuses, "c")
}
