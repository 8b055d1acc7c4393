package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/regdbot/regdbot/internal/backend"
	"github.com/regdbot/regdbot/internal/storage"
)

// Exporter persists query results as parquet, either to a local path or to
// the configured object store under the export key layout.
type Exporter struct {
	Store  storage.ObjectStore
	Logger *slog.Logger

	// now is a test seam; nil means time.Now.
	now func() time.Time
}

func NewExporter(store storage.ObjectStore, logger *slog.Logger) *Exporter {
	return &Exporter{Store: store, Logger: logger}
}

// WriteFile encodes the result and writes it to path, returning the record
// count.
func (e *Exporter) WriteFile(path string, result backend.Result) (int64, error) {
	encoded, err := EncodeResultToParquet(result)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, encoded.Data, 0o644); err != nil {
		return 0, fmt.Errorf("write export file: %w", err)
	}
	if e.Logger != nil {
		e.Logger.Info("wrote export file",
			slog.String("path", path),
			slog.Int64("records", encoded.RecordCount),
		)
	}
	return encoded.RecordCount, nil
}

// Upload encodes the result and puts it into the object store keyed by table
// name and export date.
func (e *Exporter) Upload(ctx context.Context, tableName string, result backend.Result) (storage.ObjectInfo, error) {
	if e.Store == nil {
		return storage.ObjectInfo{}, fmt.Errorf("object store is not configured")
	}

	encoded, err := EncodeResultToParquet(result)
	if err != nil {
		return storage.ObjectInfo{}, err
	}

	key, err := storage.BuildExportPath(tableName, e.timeNow())
	if err != nil {
		return storage.ObjectInfo{}, err
	}

	info, err := e.Store.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("upload export %q: %w", key, err)
	}
	if e.Logger != nil {
		e.Logger.Info("uploaded export",
			slog.String("key", info.Key),
			slog.Int64("records", encoded.RecordCount),
		)
	}
	return info, nil
}

func (e *Exporter) timeNow() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}
