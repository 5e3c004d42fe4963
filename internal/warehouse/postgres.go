package warehouse

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver

	"github.com/cytops/cytops/internal/table"
)

func init() {
	Register("postgres", func(logger *slog.Logger) Adapter { return NewPostgres(logger) })
}

// Postgres implements the Adapter interface for PostgreSQL.
type Postgres struct {
	baseAdapter
}

// NewPostgres creates a Postgres adapter. A nil logger discards output.
func NewPostgres(logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Postgres{baseAdapter: baseAdapter{logger: logger}}
}

// DialectName returns the SQL dialect of this adapter.
func (a *Postgres) DialectName() string {
	return "postgres"
}

// Connect establishes a connection to PostgreSQL.
func (a *Postgres) Connect(ctx context.Context, cfg Config) error {
	dsn := buildDSN(cfg)

	a.logger.Debug("connecting to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.db = db
	a.cfg = cfg
	return nil
}

func buildDSN(cfg Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslmode := "disable"
	if cfg.Options != nil {
		if mode, ok := cfg.Options["sslmode"]; ok {
			sslmode = mode
		}
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s", host, port, cfg.Database, sslmode)
	if cfg.Username != "" {
		dsn += " user=" + cfg.Username
	}
	if cfg.Password != "" {
		dsn += " password=" + cfg.Password
	}
	return dsn
}

// TableMetadata retrieves metadata for a table.
func (a *Postgres) TableMetadata(ctx context.Context, tableRef string) (*Metadata, error) {
	schema := a.cfg.Schema
	if schema == "" {
		schema = "public"
	}
	return a.tableMetadata(ctx, tableRef, schema, a.placeholder)
}

// LoadCSV loads a CSV file into a TEXT-typed table row by row. Unlike
// DuckDB there is no local-file reader on the server side.
func (a *Postgres) LoadCSV(ctx context.Context, tableName, filePath string) error {
	if a.db == nil {
		return fmt.Errorf("warehouse connection not established")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	t := table.New(header...)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV record: %w", err)
		}
		if err := t.AppendRow(record...); err != nil {
			return err
		}
	}
	return a.SaveTable(ctx, tableName, t)
}

// SaveTable materializes an in-memory table into the warehouse.
func (a *Postgres) SaveTable(ctx context.Context, tableName string, t *table.Table) error {
	return a.saveTable(ctx, tableName, t, a.placeholder, "TEXT")
}

func (a *Postgres) placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

var _ Adapter = (*Postgres)(nil)
