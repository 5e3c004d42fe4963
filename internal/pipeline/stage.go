// Package pipeline provides the stage execution engine.
// It handles dependency resolution, two-phase validation and execution,
// and run state recording.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cytops/cytops/internal/config"
	"github.com/cytops/cytops/internal/table"
	"github.com/cytops/cytops/internal/warehouse"
	"github.com/cytops/cytops/pkg/core"
)

// Dataset names passed between stages through the Bag.
const (
	DatasetEvents          = "events"
	DatasetProductCatalog  = "product_catalog"
	DatasetProductDaySales = "product_day_sales"
	DatasetTrain           = "train"
	DatasetValidation      = "validation"
	DatasetTest            = "test"
	DatasetPredictions     = "predictions"
)

// Built-in stage names.
const (
	StageIngest   = "ingest"
	StageFeatures = "features"
	StageSplit    = "split"
	StageTrain    = "train"
	StagePredict  = "predict"
	StageExport   = "export"
)

// Stage is a unit of pipeline work. Validate runs before any stage
// executes so configuration problems fail the run up front; Execute
// does the work and reports how many rows it produced.
type Stage interface {
	Name() string
	Deps() []string
	Validate(ctx context.Context, env *Env) error
	Execute(ctx context.Context, env *Env) (rows int64, err error)
}

// Env is the shared execution environment passed to stages.
type Env struct {
	Config *config.Config
	Bag    *Bag
	DB     warehouse.Adapter
	Store  core.Store
	RunID  string
	Logger *slog.Logger
}

// MissingDatasetError indicates a stage asked the Bag for a dataset no
// upstream stage produced.
type MissingDatasetError struct {
	Dataset string
}

func (e *MissingDatasetError) Error() string {
	return fmt.Sprintf("dataset %q has not been produced by any upstream stage", e.Dataset)
}

// Bag holds the named datasets and values stages exchange during a run.
// It is safe for concurrent use; stages in the same execution level may
// run in parallel.
type Bag struct {
	mu     sync.RWMutex
	tables map[string]*table.Table
	values map[string]any
}

// NewBag creates an empty bag.
func NewBag() *Bag {
	return &Bag{
		tables: make(map[string]*table.Table),
		values: make(map[string]any),
	}
}

// PutTable stores a dataset under the given name.
func (b *Bag) PutTable(name string, t *table.Table) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tables[name] = t
}

// Table returns the named dataset, or an error if no stage produced it.
func (b *Bag) Table(name string) (*table.Table, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tables[name]
	if !ok {
		return nil, &MissingDatasetError{Dataset: name}
	}
	return t, nil
}

// Tables returns the names of all datasets currently in the bag.
func (b *Bag) Tables() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.tables))
	for name := range b.tables {
		names = append(names, name)
	}
	return names
}

// SetValue stores an arbitrary value under the given key.
func (b *Bag) SetValue(key string, v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = v
}

// Value returns the value stored under key, if any.
func (b *Bag) Value(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	return v, ok
}
