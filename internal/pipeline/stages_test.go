package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cytops/cytops/internal/ops"
	"github.com/cytops/cytops/pkg/core"
)

func TestDefaultStages(t *testing.T) {
	stages := DefaultStages()
	require.Len(t, stages, 6)

	deps := make(map[string][]string, len(stages))
	for _, s := range stages {
		deps[s.Name()] = s.Deps()
	}

	assert.Empty(t, deps[StageIngest])
	assert.Equal(t, []string{StageIngest}, deps[StageFeatures])
	assert.Equal(t, []string{StageFeatures}, deps[StageSplit])
	assert.Equal(t, []string{StageSplit}, deps[StageTrain])
	assert.Equal(t, []string{StageTrain}, deps[StagePredict])
	assert.Equal(t, []string{StagePredict}, deps[StageExport])
}

func TestIngestValidate(t *testing.T) {
	cfg := testConfig(t)
	cfg.RawFormat = "xml"
	env := &Env{Config: cfg}

	err := (&ingestStage{}).Validate(context.Background(), env)
	var formatErr *ops.UnsupportedFormatError
	assert.ErrorAs(t, err, &formatErr)

	cfg.RawFormat = "tsv"
	cfg.RawPath = filepath.Join(t.TempDir(), "missing.tsv")
	assert.ErrorContains(t, (&ingestStage{}).Validate(context.Background(), env), "raw events file")
}

func TestFeaturesValidate(t *testing.T) {
	cfg := testConfig(t)
	cfg.TimeAdjustHours = -2
	env := &Env{Config: cfg}

	err := (&featuresStage{}).Validate(context.Background(), env)
	assert.ErrorContains(t, err, "must not be negative")
}

func TestSplitValidate(t *testing.T) {
	cfg := testConfig(t)
	cfg.ValidationDays = 0
	env := &Env{Config: cfg}

	assert.ErrorContains(t, (&splitStage{}).Validate(context.Background(), env), "validation_days")

	cfg.ValidationDays = 7
	cfg.TestDays = -1
	assert.ErrorContains(t, (&splitStage{}).Validate(context.Background(), env), "test_days")
}

func TestExportValidate(t *testing.T) {
	adapter := &fakeAdapter{}
	cfg := testConfig(t)
	env := &Env{Config: cfg, DB: adapter}

	cfg.ExportFormat = "parquet"
	assert.ErrorContains(t, (&exportStage{}).Validate(context.Background(), env), "requires the duckdb warehouse")

	cfg.ExportFormat = "csv"
	assert.NoError(t, (&exportStage{}).Validate(context.Background(), env))

	cfg.ExportFormat = "avro"
	var formatErr *ops.UnsupportedFormatError
	assert.ErrorAs(t, (&exportStage{}).Validate(context.Background(), env), &formatErr)
}

// writeEventsTSV writes a headerless raw event log where each row map
// overrides the zero-valued defaults of the fixed event schema.
func writeEventsTSV(t *testing.T, path string, rows []map[string]string) {
	t.Helper()

	var sb strings.Builder
	for _, overrides := range rows {
		cells := make([]string, len(core.EventColumns))
		for i, col := range core.EventColumns {
			cells[i] = "0"
			if v, ok := overrides[col]; ok {
				cells[i] = v
			}
		}
		sb.WriteString(strings.Join(cells, "\t"))
		sb.WriteString("\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
}

func TestPipelineEndToEnd(t *testing.T) {
	adapter := useFakeWarehouse(t)
	cfg := testConfig(t)
	cfg.RawPath = filepath.Join(t.TempDir(), "events.tsv")

	// Two products clicked daily over ten days.
	var rows []map[string]string
	for day := 0; day < 10; day++ {
		date := time.Date(2020, 8, 1+day, 10, 0, 0, 0, time.UTC)
		for p, product := range []string{"p1", "p2"} {
			rows = append(rows, map[string]string{
				core.ColSale:              "1",
				core.ColSalesAmountInEuro: strconv.Itoa(5 + day + p),
				core.ColClickTimestamp:    strconv.FormatInt(date.Unix(), 10),
				core.ColProductPrice:      "10",
				core.ColProductID:         product,
				core.ColProductTitle:      fmt.Sprintf("Product %s Deluxe", product),
			})
		}
	}
	writeEventsTSV(t, cfg.RawPath, rows)

	e, err := New(Options{Config: cfg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	run, err := e.Run(context.Background(), "dev")
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, run.Status)

	stageRuns, err := e.Store().GetStageRunsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, stageRuns, 6)
	for _, sr := range stageRuns {
		assert.Equal(t, core.StageRunStatusSuccess, sr.Status, sr.Stage)
		assert.GreaterOrEqual(t, sr.Rows, int64(0), sr.Stage)
	}

	// Every pipeline dataset landed in the warehouse.
	assert.ElementsMatch(t, []string{
		TableRawEvents, TableProductCatalog, TableProductDaySales,
		TableTrain, TableValidation, TableTest, TablePredictions,
	}, adapter.savedTables())

	// Predictions carry the prediction column.
	predictions := adapter.saved[TablePredictions]
	require.NotNil(t, predictions)
	assert.True(t, predictions.HasColumn(core.ColPredictedSalesAmount))

	// Metrics plus the four exported datasets were registered.
	artifacts, err := e.Store().ListArtifactsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, artifacts, 5)

	names := make(map[string]string, len(artifacts))
	for _, a := range artifacts {
		names[a.Name] = a.Path
		assert.NotEmpty(t, a.ContentHash, a.Name)
		_, statErr := os.Stat(a.Path)
		assert.NoError(t, statErr, a.Name)
	}
	assert.Contains(t, names, "metrics")
	assert.Contains(t, names, DatasetTrain)
	assert.Contains(t, names, DatasetValidation)
	assert.Contains(t, names, DatasetTest)
	assert.Contains(t, names, DatasetPredictions)
}
