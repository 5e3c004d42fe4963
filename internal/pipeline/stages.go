package pipeline

// stages.go - Built-in stages of the sales prediction pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cytops/cytops/internal/features"
	"github.com/cytops/cytops/internal/ops"
	"github.com/cytops/cytops/internal/predict"
	"github.com/cytops/cytops/internal/table"
	"github.com/cytops/cytops/pkg/core"
)

// Bag value keys.
const (
	ValueModel          = "model"
	ValueValidationRMSE = "validation_rmse"
)

// Warehouse table names written by the built-in stages.
const (
	TableRawEvents       = "raw_events"
	TableProductCatalog  = "product_catalog"
	TableProductDaySales = "product_day_sales"
	TableTrain           = "train"
	TableValidation      = "validation"
	TableTest            = "test"
	TablePredictions     = "predictions"
)

// parquetExporter is implemented by adapters that can copy warehouse
// tables to parquet files.
type parquetExporter interface {
	CopyToParquet(ctx context.Context, tableName, filePath string) error
}

// DefaultStages returns the built-in pipeline stages in declaration
// order.
func DefaultStages() []Stage {
	return []Stage{
		&ingestStage{},
		&featuresStage{},
		&splitStage{},
		&trainStage{},
		&predictStage{},
		&exportStage{},
	}
}

// ingestStage reads the raw click log and loads it into the warehouse.
type ingestStage struct{}

func (s *ingestStage) Name() string   { return StageIngest }
func (s *ingestStage) Deps() []string { return nil }

func (s *ingestStage) Validate(ctx context.Context, env *Env) error {
	switch env.Config.RawFormat {
	case ops.FormatTSV, ops.FormatCSV, ops.FormatParquet:
	default:
		return &ops.UnsupportedFormatError{Format: env.Config.RawFormat}
	}
	if _, err := os.Stat(env.Config.RawPath); err != nil {
		return fmt.Errorf("raw events file %s: %w", env.Config.RawPath, err)
	}
	return nil
}

func (s *ingestStage) Execute(ctx context.Context, env *Env) (int64, error) {
	var events *table.Table
	var err error

	if env.Config.RawFormat == ops.FormatParquet {
		reader, ok := env.DB.(interface {
			ReadParquet(ctx context.Context, filePath string) (*table.Table, error)
		})
		if !ok {
			return 0, fmt.Errorf("parquet input requires the duckdb warehouse, got %s", env.DB.DialectName())
		}
		events, err = reader.ReadParquet(ctx, env.Config.RawPath)
	} else {
		events, err = ops.ReadEvents(env.Config.RawPath, env.Config.RawFormat, core.EventColumns)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read raw events: %w", err)
	}

	if err := env.DB.SaveTable(ctx, TableRawEvents, events); err != nil {
		return 0, fmt.Errorf("failed to load raw events into warehouse: %w", err)
	}

	env.Bag.PutTable(DatasetEvents, events)
	return int64(events.Len()), nil
}

// featuresStage derives the product catalog and the daily product sales
// dataset from the raw events.
type featuresStage struct{}

func (s *featuresStage) Name() string   { return StageFeatures }
func (s *featuresStage) Deps() []string { return []string{StageIngest} }

func (s *featuresStage) Validate(ctx context.Context, env *Env) error {
	if env.Config.TimeAdjust() < 0 {
		return fmt.Errorf("time adjustment must not be negative")
	}
	return nil
}

func (s *featuresStage) Execute(ctx context.Context, env *Env) (int64, error) {
	events, err := env.Bag.Table(DatasetEvents)
	if err != nil {
		return 0, err
	}

	extractor := features.NewExtractor()
	extractor.TimeAdjust = env.Config.TimeAdjust()

	catalog, productDaySales, err := extractor.Execute(events)
	if err != nil {
		return 0, err
	}

	if err := env.DB.SaveTable(ctx, TableProductCatalog, catalog); err != nil {
		return 0, fmt.Errorf("failed to save product catalog: %w", err)
	}
	if err := env.DB.SaveTable(ctx, TableProductDaySales, productDaySales); err != nil {
		return 0, fmt.Errorf("failed to save product day sales: %w", err)
	}

	env.Bag.PutTable(DatasetProductCatalog, catalog)
	env.Bag.PutTable(DatasetProductDaySales, productDaySales)
	return int64(productDaySales.Len()), nil
}

// splitStage partitions the product day sales into train, validation,
// and test windows by date.
type splitStage struct{}

func (s *splitStage) Name() string   { return StageSplit }
func (s *splitStage) Deps() []string { return []string{StageFeatures} }

func (s *splitStage) Validate(ctx context.Context, env *Env) error {
	if env.Config.ValidationDays <= 0 {
		return fmt.Errorf("validation_days must be positive, got %d", env.Config.ValidationDays)
	}
	if env.Config.TestDays <= 0 {
		return fmt.Errorf("test_days must be positive, got %d", env.Config.TestDays)
	}
	return nil
}

func (s *splitStage) Execute(ctx context.Context, env *Env) (int64, error) {
	productDaySales, err := env.Bag.Table(DatasetProductDaySales)
	if err != nil {
		return 0, err
	}

	split, err := features.SplitByDate(productDaySales, env.Config.ValidationDays, env.Config.TestDays)
	if err != nil {
		return 0, err
	}

	for name, t := range map[string]*table.Table{
		TableTrain:      split.Train,
		TableValidation: split.Validation,
		TableTest:       split.Test,
	} {
		if err := env.DB.SaveTable(ctx, name, t); err != nil {
			return 0, fmt.Errorf("failed to save %s split: %w", name, err)
		}
	}

	env.Bag.PutTable(DatasetTrain, split.Train)
	env.Bag.PutTable(DatasetValidation, split.Validation)
	env.Bag.PutTable(DatasetTest, split.Test)
	return int64(split.Train.Len()), nil
}

// trainStage fits the sales model on the train window and scores it on
// the validation window.
type trainStage struct{}

func (s *trainStage) Name() string   { return StageTrain }
func (s *trainStage) Deps() []string { return []string{StageSplit} }

func (s *trainStage) Validate(ctx context.Context, env *Env) error {
	return nil
}

func (s *trainStage) Execute(ctx context.Context, env *Env) (int64, error) {
	train, err := env.Bag.Table(DatasetTrain)
	if err != nil {
		return 0, err
	}
	validation, err := env.Bag.Table(DatasetValidation)
	if err != nil {
		return 0, err
	}

	predictor := predict.New(env.Logger)
	validationRMSE, err := predictor.Train(train, validation)
	if err != nil {
		return 0, fmt.Errorf("model training failed: %w", err)
	}

	env.Logger.Info("model trained",
		"train_rows", train.Len(),
		"validation_rows", validation.Len(),
		"validation_rmse", validationRMSE)

	env.Bag.SetValue(ValueModel, predictor)
	env.Bag.SetValue(ValueValidationRMSE, validationRMSE)

	// Persist training metrics alongside the exported datasets.
	if err := os.MkdirAll(env.Config.ArtifactsDir, 0o755); err != nil {
		return 0, err
	}
	metricsPath := filepath.Join(env.Config.ArtifactsDir, "metrics.yaml")
	metrics := map[string]any{
		"validation_rmse": validationRMSE,
		"train_rows":      train.Len(),
		"validation_rows": validation.Len(),
	}
	if err := ops.WriteValue(metricsPath, ops.FormatYAML, metrics); err != nil {
		return 0, fmt.Errorf("failed to write metrics: %w", err)
	}
	if err := recordArtifact(env, StageTrain, "metrics", ops.FormatYAML, metricsPath, 0); err != nil {
		return 0, err
	}

	return int64(train.Len()), nil
}

// predictStage scores the test window with the trained model.
type predictStage struct{}

func (s *predictStage) Name() string   { return StagePredict }
func (s *predictStage) Deps() []string { return []string{StageTrain} }

func (s *predictStage) Validate(ctx context.Context, env *Env) error {
	return nil
}

func (s *predictStage) Execute(ctx context.Context, env *Env) (int64, error) {
	test, err := env.Bag.Table(DatasetTest)
	if err != nil {
		return 0, err
	}
	v, ok := env.Bag.Value(ValueModel)
	if !ok {
		return 0, fmt.Errorf("no trained model available")
	}
	predictor, ok := v.(*predict.Predictor)
	if !ok {
		return 0, fmt.Errorf("unexpected model type %T", v)
	}

	predictions, err := predictor.AttachPredictions(test)
	if err != nil {
		return 0, fmt.Errorf("prediction failed: %w", err)
	}

	if err := env.DB.SaveTable(ctx, TablePredictions, predictions); err != nil {
		return 0, fmt.Errorf("failed to save predictions: %w", err)
	}

	env.Bag.PutTable(DatasetPredictions, predictions)
	return int64(predictions.Len()), nil
}

// exportStage writes the split datasets and predictions to the
// artifacts directory.
type exportStage struct{}

func (s *exportStage) Name() string   { return StageExport }
func (s *exportStage) Deps() []string { return []string{StagePredict} }

func (s *exportStage) Validate(ctx context.Context, env *Env) error {
	switch env.Config.ExportFormat {
	case ops.FormatParquet:
		if env.DB.DialectName() != "duckdb" {
			return fmt.Errorf("parquet export requires the duckdb warehouse, got %s", env.DB.DialectName())
		}
	case ops.FormatCSV, ops.FormatTSV, ops.FormatJSON:
	default:
		return &ops.UnsupportedFormatError{Format: env.Config.ExportFormat}
	}
	return nil
}

func (s *exportStage) Execute(ctx context.Context, env *Env) (int64, error) {
	if err := os.MkdirAll(env.Config.ArtifactsDir, 0o755); err != nil {
		return 0, err
	}

	datasets := []string{DatasetTrain, DatasetValidation, DatasetTest, DatasetPredictions}
	var total int64
	for _, name := range datasets {
		t, err := env.Bag.Table(name)
		if err != nil {
			return 0, err
		}
		path := filepath.Join(env.Config.ArtifactsDir, name+"."+env.Config.ExportFormat)

		if env.Config.ExportFormat == ops.FormatParquet {
			exporter := env.DB.(parquetExporter)
			if err := exporter.CopyToParquet(ctx, name, path); err != nil {
				return 0, fmt.Errorf("failed to export %s to parquet: %w", name, err)
			}
		} else if err := ops.WriteTable(path, env.Config.ExportFormat, t); err != nil {
			return 0, fmt.Errorf("failed to export %s: %w", name, err)
		}

		if err := recordArtifact(env, StageExport, name, env.Config.ExportFormat, path, int64(t.Len())); err != nil {
			return 0, err
		}
		total += int64(t.Len())

		env.Logger.Debug("dataset exported", "dataset", name, "path", path, "rows", t.Len())
	}
	return total, nil
}

// recordArtifact stores an artifact record for the current run with the
// file's content hash.
func recordArtifact(env *Env, stage, name, format, path string, rows int64) error {
	hash, err := fileSHA256(path)
	if err != nil {
		return fmt.Errorf("failed to hash artifact %s: %w", path, err)
	}
	artifact := &core.Artifact{
		RunID:       env.RunID,
		Stage:       stage,
		Name:        name,
		Format:      format,
		Path:        path,
		Rows:        rows,
		ContentHash: hash,
	}
	if err := env.Store.SaveArtifact(artifact); err != nil {
		return fmt.Errorf("failed to record artifact %s: %w", name, err)
	}
	return nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
