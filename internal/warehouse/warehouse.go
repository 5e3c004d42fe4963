// Package warehouse provides database adapters for materializing
// feature tables. DuckDB is the default target; Postgres is available
// for shared warehouses.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cytops/cytops/internal/table"
)

// Config holds the configuration for connecting to a warehouse.
type Config struct {
	// Type is the adapter type ("duckdb" or "postgres").
	Type string

	// Path is the database file path for DuckDB. ":memory:" or empty
	// means an in-memory database.
	Path string

	// Network settings for Postgres.
	Host     string
	Port     int
	Database string
	Username string
	Password string

	// Schema is the default schema.
	Schema string

	// Options holds driver-specific options (e.g. sslmode).
	Options map[string]string
}

// Column describes a column of a warehouse table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Position int
}

// Metadata describes a warehouse table.
type Metadata struct {
	Schema   string
	Name     string
	Columns  []Column
	RowCount int64
}

// Rows wraps sql.Rows for a consistent interface across adapters.
type Rows struct {
	*sql.Rows
}

// Adapter is the interface all warehouse adapters implement.
type Adapter interface {
	Connect(ctx context.Context, cfg Config) error
	Close() error
	Exec(ctx context.Context, sql string) error
	Query(ctx context.Context, sql string) (*Rows, error)
	TableMetadata(ctx context.Context, table string) (*Metadata, error)
	LoadCSV(ctx context.Context, tableName, filePath string) error
	SaveTable(ctx context.Context, tableName string, t *table.Table) error
	DialectName() string
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func(*slog.Logger) Adapter)
)

// Register adds an adapter factory to the registry. Called by adapter
// implementations in their init functions.
func Register(name string, factory func(*slog.Logger) Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New creates an adapter for the configured type.
func New(cfg Config, logger *slog.Logger) (Adapter, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("warehouse type not specified")
	}
	registryMu.RLock()
	factory, ok := registry[strings.ToLower(cfg.Type)]
	registryMu.RUnlock()
	if !ok {
		return nil, &UnknownAdapterError{Type: cfg.Type, Available: List()}
	}
	return factory(logger), nil
}

// List returns all registered adapter names, sorted.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether an adapter type is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// UnknownAdapterError is returned when an unknown adapter type is
// requested.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown warehouse type %q (available: %v); check warehouse.type in cytops.yaml", e.Type, e.Available)
}

// baseAdapter provides shared database/sql behavior for adapters.
type baseAdapter struct {
	db     *sql.DB
	cfg    Config
	logger *slog.Logger
}

func (b *baseAdapter) Close() error {
	if b.db != nil {
		b.logger.Debug("closing warehouse connection")
		return b.db.Close()
	}
	return nil
}

func (b *baseAdapter) Exec(ctx context.Context, sqlStr string) error {
	if b.db == nil {
		return fmt.Errorf("warehouse connection not established")
	}
	if _, err := b.db.ExecContext(ctx, sqlStr); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

func (b *baseAdapter) Query(ctx context.Context, sqlStr string) (*Rows, error) {
	if b.db == nil {
		return nil, fmt.Errorf("warehouse connection not established")
	}
	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration
	rows, err := b.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return &Rows{Rows: rows}, nil
}

// splitQualified splits schema.table, defaulting to the given schema.
func splitQualified(table, defaultSchema string) (schema, name string) {
	if parts := strings.Split(table, "."); len(parts) == 2 {
		return parts[0], parts[1]
	}
	return defaultSchema, table
}

// tableMetadata queries information_schema with the adapter's
// placeholder style.
func (b *baseAdapter) tableMetadata(ctx context.Context, tableRef, defaultSchema string, placeholder func(int) string) (*Metadata, error) {
	if b.db == nil {
		return nil, fmt.Errorf("warehouse connection not established")
	}

	schema, tableName := splitQualified(tableRef, defaultSchema)

	//nolint:gosec // placeholders come from the adapter, not user input
	query := fmt.Sprintf(`
		SELECT column_name, data_type, is_nullable, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = %s AND table_name = %s
		ORDER BY ordinal_position
	`, placeholder(1), placeholder(2))

	rows, err := b.db.QueryContext(ctx, query, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []Column
	for rows.Next() {
		var col Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Position); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = nullable == "YES"
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found", tableRef)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", schema, tableName) //nolint:gosec // table names come from the pipeline
	var rowCount int64
	if err := b.db.QueryRowContext(ctx, countQuery).Scan(&rowCount); err != nil {
		rowCount = 0
	}

	return &Metadata{
		Schema:   schema,
		Name:     tableName,
		Columns:  columns,
		RowCount: rowCount,
	}, nil
}

// saveTable materializes an in-memory table, inferring column types
// from the data and inserting rows in a single transaction.
func (b *baseAdapter) saveTable(ctx context.Context, tableName string, t *table.Table, placeholder func(int) string, textType string) error {
	if b.db == nil {
		return fmt.Errorf("warehouse connection not established")
	}

	columns := t.Columns()
	types := inferColumnTypes(t, textType)

	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = fmt.Sprintf("%q %s", c, types[i])
	}
	if err := b.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", tableName)); err != nil {
		return err
	}
	if err := b.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", tableName, strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("failed to create table %s: %w", tableName, err)
	}

	placeholders := make([]string, len(columns))
	quoted := make([]string, len(columns))
	for i, c := range columns {
		placeholders[i] = placeholder(i + 1)
		quoted[i] = strconv.Quote(c)
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableName, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}

	for i := 0; i < t.Len(); i++ {
		row := t.Row(i)
		args := make([]any, len(row))
		for j, v := range row {
			args[j] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert row %d into %s: %w", i, tableName, err)
		}
	}
	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", tableName, err)
	}

	b.logger.Debug("table materialized", "table", tableName, "rows", t.Len())
	return nil
}

// inferColumnTypes picks BIGINT, DOUBLE PRECISION, or the text type per
// column, from the cell values.
func inferColumnTypes(t *table.Table, textType string) []string {
	columns := t.Columns()
	types := make([]string, len(columns))
	for j, c := range columns {
		values, _ := t.Column(c)
		allInt := len(values) > 0
		allFloat := len(values) > 0
		for _, v := range values {
			if v == "" {
				allInt, allFloat = false, false
				break
			}
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allFloat = false
			}
			if !allInt && !allFloat {
				break
			}
		}
		switch {
		case allInt:
			types[j] = "BIGINT"
		case allFloat:
			types[j] = "DOUBLE PRECISION"
		default:
			types[j] = textType
		}
	}
	return types
}

// ReadRows drains a result set into an in-memory table, stringifying
// all values.
func ReadRows(rows *Rows) (*table.Table, error) {
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	t := table.New(columns...)

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		cells := make([]string, len(columns))
		for i, v := range values {
			cells[i] = formatValue(v)
		}
		if err := t.AppendRow(cells...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
