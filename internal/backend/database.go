package backend

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/regdbot/regdbot/internal/observability"
	"github.com/regdbot/regdbot/internal/storage"
)

// Result is the normalized execution result: ordered columns, ordered rows.
type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

// Database owns one lazily opened connection handle bound to a single
// descriptor. The handle is created on first use and cached for the lifetime
// of the Database; statements are serialized, one in flight at a time.
type Database struct {
	Descriptor Descriptor
	Pool       PoolConfig
	Store      storage.ObjectStore
	Logger     *slog.Logger

	mu        sync.Mutex
	db        *sql.DB
	flatTable string
}

func NewDatabase(desc Descriptor) *Database {
	return &Database{Descriptor: desc}
}

// NewDatabaseWithDB binds an already opened handle. Used by tests and by
// callers that manage the pool themselves.
func NewDatabaseWithDB(desc Descriptor, db *sql.DB) *Database {
	return &Database{Descriptor: desc, db: db, flatTable: desc.TableName()}
}

// Resolve opens the connection handle if it is not open yet. For flat files
// ingestion happens here, eagerly, not on first query.
func (d *Database) Resolve(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolveLocked(ctx)
}

func (d *Database) resolveLocked(ctx context.Context) error {
	if d.db != nil {
		return nil
	}

	switch d.Descriptor.Dialect {
	case DialectDuckDB:
		db, err := openDuckDB(d.Descriptor.Location)
		if err != nil {
			return err
		}
		d.db = db
	case DialectPostgres:
		db, err := openPostgres(ctx, d.Descriptor.Location, d.Pool)
		if err != nil {
			return err
		}
		d.db = db
	case DialectFlatFile:
		db, err := openDuckDB(MemoryLocation)
		if err != nil {
			return err
		}
		table, err := ingestFlatFile(ctx, db, d.Descriptor, d.Store)
		if err != nil {
			_ = db.Close()
			return err
		}
		d.db = db
		d.flatTable = table
		if d.Logger != nil {
			d.Logger.Info("ingested flat file",
				slog.String("location", d.Descriptor.Location),
				slog.String("table", table),
			)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDialect, d.Descriptor.Raw)
	}
	return nil
}

// Execute runs one SQL statement and materializes its result. Any driver
// error is returned as-is so the repair loop can feed it back into a prompt.
func (d *Database) Execute(ctx context.Context, sqlText string) (Result, error) {
	if strings.TrimSpace(sqlText) == "" {
		return Result{}, fmt.Errorf("sql is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.resolveLocked(ctx); err != nil {
		return Result{}, err
	}

	start := time.Now()
	rows, err := d.db.QueryContext(ctx, sqlText)
	if err != nil {
		observability.ObserveExecution(string(d.Descriptor.Dialect), "error", time.Since(start))
		return Result{}, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		observability.ObserveExecution(string(d.Descriptor.Dialect), "error", time.Since(start))
		return Result{}, err
	}

	duration := time.Since(start)
	observability.ObserveExecution(string(d.Descriptor.Dialect), "ok", duration)
	return Result{Columns: columns, Rows: resultRows, Duration: duration}, nil
}

// FlatTable is the name of the table ingested from a flat-file descriptor,
// empty for other dialects.
func (d *Database) FlatTable() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.flatTable == "" {
		return d.Descriptor.TableName()
	}
	return d.flatTable
}

func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func QuoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
