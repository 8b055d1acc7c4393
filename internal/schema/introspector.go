package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/regdbot/regdbot/internal/backend"
)

// Introspector lists tables and views and builds textual table profiles used
// as prompt grounding. Listings and profiles are memoized for the lifetime
// of the instance; Refresh drops the memos for multi-session use.
type Introspector struct {
	db         *backend.Database
	sampleRows int

	mu       sync.Mutex
	tables   []string
	views    []string
	profiles map[string]string
}

const DefaultSampleRows = 5

func NewIntrospector(db *backend.Database, sampleRows int) *Introspector {
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}
	return &Introspector{
		db:         db,
		sampleRows: sampleRows,
		profiles:   make(map[string]string),
	}
}

func (i *Introspector) ListTables(ctx context.Context) ([]string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.tables != nil {
		return i.tables, nil
	}

	// Flat files carry exactly one table; synthesize the listing instead of
	// querying the engine catalog.
	if i.db.Descriptor.Dialect == backend.DialectFlatFile {
		if err := i.db.Resolve(ctx); err != nil {
			return nil, err
		}
		i.tables = []string{i.db.FlatTable()}
		return i.tables, nil
	}

	names, err := i.queryNames(ctx, tableListSQL(i.db.Descriptor.Dialect))
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	i.tables = names
	return i.tables, nil
}

func (i *Introspector) ListViews(ctx context.Context) ([]string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.views != nil {
		return i.views, nil
	}

	names, err := i.queryNames(ctx, viewListSQL(i.db.Descriptor.Dialect))
	if err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	i.views = names
	return i.views, nil
}

// DescribeTable returns the table's profile text, one line per column:
//
//	column name:<name>,  type:<type>, sample values: <values>
//
// The first call runs a describe query plus one bounded sample query and
// caches the merged text; later calls hit the cache without touching the
// database.
func (i *Introspector) DescribeTable(ctx context.Context, tableName string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if profile, ok := i.profiles[tableName]; ok {
		return profile, nil
	}

	described, err := i.db.Execute(ctx, describeSQL(i.db.Descriptor.Dialect, tableName))
	if err != nil {
		return "", fmt.Errorf("describe table %q: %w", tableName, err)
	}

	// The row limit is applied by the database, never by truncating a full
	// fetch in memory.
	sampleQuery := fmt.Sprintf("SELECT * FROM %s LIMIT %d", backend.QuoteIdent(tableName), i.sampleRows)
	sample, err := i.db.Execute(ctx, sampleQuery)
	if err != nil {
		return "", fmt.Errorf("sample table %q: %w", tableName, err)
	}

	profile := formatProfile(described.Rows, sample.Rows)
	i.profiles[tableName] = profile
	return profile, nil
}

// Refresh drops all memoized listings and profiles.
func (i *Introspector) Refresh() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.tables = nil
	i.views = nil
	i.profiles = make(map[string]string)
}

func (i *Introspector) queryNames(ctx context.Context, sqlText string) ([]string, error) {
	result, err := i.db.Execute(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) == 0 {
			continue
		}
		names = append(names, fmt.Sprint(row[0]))
	}
	return names, nil
}

func tableListSQL(dialect backend.Dialect) string {
	switch dialect {
	case backend.DialectPostgres:
		return "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_type = 'BASE TABLE' ORDER BY table_name"
	default:
		return "SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' AND table_type = 'BASE TABLE' ORDER BY table_name"
	}
}

func viewListSQL(dialect backend.Dialect) string {
	switch dialect {
	case backend.DialectPostgres:
		return "SELECT table_name FROM information_schema.views WHERE table_schema = 'public' ORDER BY table_name"
	default:
		return "SELECT view_name FROM duckdb_views() WHERE NOT internal ORDER BY view_name"
	}
}

func describeSQL(dialect backend.Dialect, tableName string) string {
	switch dialect {
	case backend.DialectPostgres:
		return fmt.Sprintf(
			"SELECT column_name, data_type FROM information_schema.columns WHERE table_name = %s ORDER BY ordinal_position",
			backend.QuoteString(tableName),
		)
	default:
		return fmt.Sprintf("DESCRIBE SELECT * FROM %s", backend.QuoteIdent(tableName))
	}
}

// formatProfile merges column metadata with one sample value per column into
// the profile line format. Column order follows the database's natural
// order; a table with fewer rows than the sample limit yields exactly that
// many values, no padding.
func formatProfile(described [][]any, sample [][]any) string {
	var b strings.Builder
	for n, column := range described {
		if len(column) < 2 {
			continue
		}
		values := make([]string, 0, len(sample))
		for _, row := range sample {
			if n < len(row) {
				values = append(values, formatValue(row[n]))
			}
		}
		fmt.Fprintf(&b, "column name:%v,  type:%v, sample values: [%s]\n",
			column[0], column[1], strings.Join(values, ", "))
	}
	return b.String()
}

func formatValue(value any) string {
	if value == nil {
		return "NULL"
	}
	return fmt.Sprint(value)
}
