// Package config provides project configuration for Cytops. It is
// decoupled from CLI concerns so other tooling can load cytops.yaml.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cytops/cytops/internal/warehouse"
)

// WarehouseConfig holds the warehouse target configuration.
type WarehouseConfig struct {
	Type string `koanf:"type"` // duckdb, postgres

	// File-based databases (DuckDB)
	Path string `koanf:"path"`

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Common
	Schema string `koanf:"schema"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`
}

// Validate checks that the warehouse configuration names a registered
// adapter.
func (w *WarehouseConfig) Validate() error {
	if w.Type == "" {
		return fmt.Errorf("warehouse type is required")
	}
	if !warehouse.IsRegistered(strings.ToLower(w.Type)) {
		return &warehouse.UnknownAdapterError{
			Type:      w.Type,
			Available: warehouse.List(),
		}
	}
	return nil
}

// ToAdapterConfig converts to the warehouse adapter configuration.
func (w *WarehouseConfig) ToAdapterConfig() warehouse.Config {
	return warehouse.Config{
		Type:     w.Type,
		Path:     w.Path,
		Host:     w.Host,
		Port:     w.Port,
		Database: w.Database,
		Username: w.User,
		Password: w.Password,
		Schema:   w.Schema,
		Options:  w.Options,
	}
}

// Config holds the full project configuration.
type Config struct {
	// RawPath is the raw event log file.
	RawPath string `koanf:"raw_path"`
	// RawFormat is the raw file format (tsv, csv, parquet).
	RawFormat string `koanf:"raw_format"`
	// ArtifactsDir receives exported datasets.
	ArtifactsDir string `koanf:"artifacts_dir"`
	// StatePath is the SQLite state database.
	StatePath string `koanf:"state_path"`
	// Environment tags runs (dev, staging, prod).
	Environment string `koanf:"environment"`

	// TimeAdjustHours and TimeAdjustDays shift click timestamps before
	// date features are derived.
	TimeAdjustHours int `koanf:"time_adjust_hours"`
	TimeAdjustDays  int `koanf:"time_adjust_days"`

	// ValidationDays and TestDays size the date-based split windows.
	ValidationDays int `koanf:"validation_days"`
	TestDays       int `koanf:"test_days"`

	// ExportFormat is the format of exported artifacts (parquet, csv).
	ExportFormat string `koanf:"export_format"`

	// KeepRuns bounds run history retention.
	KeepRuns int `koanf:"keep_runs"`

	Warehouse *WarehouseConfig `koanf:"warehouse"`

	Verbose bool   `koanf:"verbose"`
	Output  string `koanf:"output"`
}

// TimeAdjust returns the combined timestamp adjustment.
func (c *Config) TimeAdjust() time.Duration {
	return time.Duration(c.TimeAdjustHours)*time.Hour +
		time.Duration(c.TimeAdjustDays)*24*time.Hour
}
