package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"github.com/cytops/cytops/internal/table"
)

func init() {
	Register("duckdb", func(logger *slog.Logger) Adapter { return NewDuckDB(logger) })
}

// DuckDB implements the Adapter interface for DuckDB. It additionally
// supports parquet import and export through DuckDB's native readers.
type DuckDB struct {
	baseAdapter
}

// NewDuckDB creates a DuckDB adapter. A nil logger discards output.
func NewDuckDB(logger *slog.Logger) *DuckDB {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DuckDB{baseAdapter: baseAdapter{logger: logger}}
}

// DialectName returns the SQL dialect of this adapter.
func (a *DuckDB) DialectName() string {
	return "duckdb"
}

// Connect opens the DuckDB database. An empty path or ":memory:" opens
// an in-memory database.
func (a *DuckDB) Connect(ctx context.Context, cfg Config) error {
	path := cfg.Path
	if path == ":memory:" {
		path = ""
	}

	a.logger.Debug("connecting to duckdb", "path", path)

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.db = db
	a.cfg = cfg
	return nil
}

// TableMetadata retrieves metadata for a table.
func (a *DuckDB) TableMetadata(ctx context.Context, tableRef string) (*Metadata, error) {
	schema := a.cfg.Schema
	if schema == "" {
		schema = "main"
	}
	return a.tableMetadata(ctx, tableRef, schema, a.placeholder)
}

// LoadCSV loads a CSV file into a table with automatic schema
// detection.
func (a *DuckDB) LoadCSV(ctx context.Context, tableName, filePath string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	query := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto('%s', header=true)",
		tableName, escapePath(absPath),
	)
	if err := a.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to load CSV: %w", err)
	}
	return nil
}

// ReadParquet loads a parquet file into an in-memory table.
func (a *DuckDB) ReadParquet(ctx context.Context, filePath string) (*table.Table, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	rows, err := a.Query(ctx, fmt.Sprintf("SELECT * FROM read_parquet('%s')", escapePath(absPath)))
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet: %w", err)
	}
	return ReadRows(rows)
}

// CopyToParquet exports a warehouse table to a parquet file.
func (a *DuckDB) CopyToParquet(ctx context.Context, tableName, filePath string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	query := fmt.Sprintf("COPY %s TO '%s' (FORMAT PARQUET)", tableName, escapePath(absPath))
	if err := a.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to copy %s to parquet: %w", tableName, err)
	}
	return nil
}

// CopyToCSV exports a warehouse table to a CSV file with a header row.
func (a *DuckDB) CopyToCSV(ctx context.Context, tableName, filePath string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	query := fmt.Sprintf("COPY %s TO '%s' (FORMAT CSV, HEADER)", tableName, escapePath(absPath))
	if err := a.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to copy %s to csv: %w", tableName, err)
	}
	return nil
}

// SaveTable materializes an in-memory table into the warehouse.
func (a *DuckDB) SaveTable(ctx context.Context, tableName string, t *table.Table) error {
	return a.saveTable(ctx, tableName, t, a.placeholder, "VARCHAR")
}

func (a *DuckDB) placeholder(int) string {
	return "?"
}

// escapePath escapes single quotes for use inside a SQL string literal.
func escapePath(p string) string {
	return strings.ReplaceAll(p, "'", "''")
}

var _ Adapter = (*DuckDB)(nil)
