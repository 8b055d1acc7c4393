package backend

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/regdbot/regdbot/internal/storage"
)

func openDuckDB(location string) (*sql.DB, error) {
	dsn := location
	if location == MemoryLocation {
		dsn = ""
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return db, nil
}

// ingestFlatFile materializes the descriptor's file into a table inside the
// given in-memory engine and returns the table name. Remote s3:// locations
// are fetched through the object store first.
func ingestFlatFile(ctx context.Context, db *sql.DB, desc Descriptor, store storage.ObjectStore) (string, error) {
	localPath := desc.Location
	if strings.HasPrefix(desc.Location, "s3://") {
		fetched, cleanup, err := fetchObject(ctx, store, desc.Location)
		if err != nil {
			return "", err
		}
		defer cleanup()
		localPath = fetched
	}

	table := desc.TableName()
	if table == "" {
		return "", fmt.Errorf("cannot derive table name from %q", desc.Location)
	}

	reader := "read_csv_auto"
	if strings.EqualFold(filepath.Ext(localPath), ".parquet") {
		reader = "read_parquet"
	}

	ingestSQL := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s(%s)",
		QuoteIdent(table), reader, QuoteString(localPath))
	if _, err := db.ExecContext(ctx, ingestSQL); err != nil {
		return "", fmt.Errorf("ingest flat file %q: %w", desc.Location, err)
	}
	return table, nil
}

func fetchObject(ctx context.Context, store storage.ObjectStore, location string) (string, func(), error) {
	if store == nil {
		return "", nil, fmt.Errorf("remote flat file %q requires an object store", location)
	}
	key := strings.TrimPrefix(location, "s3://")
	if slash := strings.Index(key, "/"); slash >= 0 {
		// Bucket is configured on the store; the key is the object path.
		key = key[slash+1:]
	}

	reader, err := store.Get(ctx, key)
	if err != nil {
		return "", nil, fmt.Errorf("fetch object %q: %w", location, err)
	}
	defer func() { _ = reader.Close() }()

	file, err := os.CreateTemp("", "regdbot-ingest-*"+filepath.Ext(location))
	if err != nil {
		return "", nil, fmt.Errorf("create ingest temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(file.Name()) }

	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		cleanup()
		return "", nil, fmt.Errorf("write ingest temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close ingest temp file: %w", err)
	}
	return file.Name(), cleanup, nil
}
