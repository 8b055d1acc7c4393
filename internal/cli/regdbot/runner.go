package regdbot

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/regdbot/regdbot/internal/assistant"
	"github.com/regdbot/regdbot/internal/backend"
	"github.com/regdbot/regdbot/internal/config"
	"github.com/regdbot/regdbot/internal/export"
	"github.com/regdbot/regdbot/internal/nl2sql"
	"github.com/regdbot/regdbot/internal/observability"
	"github.com/regdbot/regdbot/internal/schema"
	"github.com/regdbot/regdbot/internal/storage"
	s3store "github.com/regdbot/regdbot/internal/storage/s3"
)

type Options struct {
	Lookup config.LookupFunc
	Stdout io.Writer
	Stderr io.Writer

	// Translator overrides the configured provider. Tests inject stubs here.
	Translator nl2sql.Translator
}

func Run(ctx context.Context, args []string, opts Options) int {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("regdbot", flag.ContinueOnError)
	fs.SetOutput(stderr)

	backendURL := fs.String("backend", "", "backend descriptor (overrides REGDBOT_BACKEND_URL)")
	table := fs.String("table", "", "table to ground the question on")
	viewName := fs.String("name", "", "semantic view name (default <table>_semanticview)")
	outPath := fs.String("out", "", "local parquet output path for export")
	upload := fs.Bool("upload", false, "upload the export to the object store")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}
	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]

	// Validate the command and its arguments before opening any backend.
	switch command {
	case "tables", "views":
	case "describe":
		if len(rest) != 1 {
			_, _ = fmt.Fprintln(stderr, "usage: regdbot describe <table>")
			return 2
		}
	case "ask":
		if len(rest) == 0 {
			_, _ = fmt.Fprintln(stderr, "usage: regdbot ask [flags] <question>")
			return 2
		}
	case "semantic-view":
		if len(rest) != 1 {
			_, _ = fmt.Fprintln(stderr, "usage: regdbot semantic-view [flags] <table>")
			return 2
		}
	case "export":
		if len(rest) == 0 {
			_, _ = fmt.Fprintln(stderr, "usage: regdbot export [flags] <question>")
			return 2
		}
		if *outPath == "" && !*upload {
			_, _ = fmt.Fprintln(stderr, "export needs -out and/or -upload")
			return 2
		}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	cfg, err := config.Load("regdbot", lookup)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "configuration: %v\n", err)
		return 1
	}
	if *backendURL != "" {
		cfg.Backend.URL = *backendURL
	}

	logger := observability.NewLogger(cfg, stderr)

	app, err := buildApp(ctx, cfg, logger, opts.Translator)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer func() { _ = app.db.Close() }()

	switch command {
	case "tables":
		return app.runTables(ctx, stdout, stderr)
	case "views":
		return app.runViews(ctx, stdout, stderr)
	case "describe":
		return app.runDescribe(ctx, rest[0], stdout, stderr)
	case "ask":
		return app.runAsk(ctx, strings.Join(rest, " "), *table, stdout, stderr)
	case "semantic-view":
		return app.runSemanticView(ctx, rest[0], *viewName, stdout, stderr)
	default:
		return app.runExport(ctx, strings.Join(rest, " "), *table, *outPath, *upload, stdout, stderr)
	}
}

type app struct {
	db        *backend.Database
	schema    *schema.Introspector
	assistant *assistant.Assistant
	exporter  *export.Exporter
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger, translator nl2sql.Translator) (*app, error) {
	desc, err := backend.ParseDescriptor(cfg.Backend.URL)
	if err != nil {
		return nil, err
	}

	var store storage.ObjectStore
	if cfg.ObjectStore.Endpoint != "" {
		s3, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("object store: %w", err)
		}
		store = s3
	}

	db := backend.NewDatabase(desc)
	db.Store = store
	db.Logger = logger
	db.Pool = backend.PoolConfig{
		MaxOpenConns:    cfg.Backend.MaxOpenConns,
		MaxIdleConns:    cfg.Backend.MaxIdleConns,
		ConnMaxIdleTime: cfg.Backend.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Backend.ConnMaxLifetime,
	}

	if translator == nil {
		translator, err = newTranslator(cfg)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	introspector := schema.NewIntrospector(db, cfg.Schema.SampleRows)
	return &app{
		db:     db,
		schema: introspector,
		assistant: &assistant.Assistant{
			DB:         db,
			Schema:     introspector,
			Translator: translator,
			Models: nl2sql.Models{
				Generate: cfg.AI.GenerateModel,
				Repair:   cfg.AI.RepairModel,
			},
			Budget: cfg.Assistant.RetryBudget,
			Logger: logger,
		},
		exporter: export.NewExporter(store, logger),
	}, nil
}

func newTranslator(cfg config.Config) (nl2sql.Translator, error) {
	switch cfg.AI.Provider {
	case "openai":
		return nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
	case "ollama":
		return nl2sql.NewOllamaTranslator(nl2sql.OllamaConfig{
			BaseURL: cfg.AI.BaseURL,
			Timeout: cfg.AI.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.AI.Provider)
	}
}

func (a *app) runTables(ctx context.Context, stdout, stderr io.Writer) int {
	tables, err := a.schema.ListTables(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "list tables: %v\n", err)
		return 1
	}
	return writeJSON(stdout, stderr, map[string]any{"tables": tables})
}

func (a *app) runViews(ctx context.Context, stdout, stderr io.Writer) int {
	views, err := a.schema.ListViews(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "list views: %v\n", err)
		return 1
	}
	return writeJSON(stdout, stderr, map[string]any{"views": views})
}

func (a *app) runDescribe(ctx context.Context, tableName string, stdout, stderr io.Writer) int {
	profile, err := a.schema.DescribeTable(ctx, tableName)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "describe: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprint(stdout, profile)
	return 0
}

func (a *app) runAsk(ctx context.Context, question, tableName string, stdout, stderr io.Writer) int {
	outcome, err := a.assistant.Ask(ctx, question, tableName)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "ask: %v\n", err)
		return 1
	}
	payload := map[string]any{
		"sql":       outcome.SQL,
		"attempts":  outcome.Attempts,
		"exhausted": outcome.Exhausted,
	}
	if !outcome.Exhausted {
		payload["columns"] = outcome.Result.Columns
		payload["rows"] = outcome.Result.Rows
	}
	code := writeJSON(stdout, stderr, payload)
	if outcome.Exhausted {
		_, _ = fmt.Fprintln(stderr, "retry budget exhausted; the returned SQL never executed successfully")
		return 1
	}
	return code
}

func (a *app) runSemanticView(ctx context.Context, tableName, viewName string, stdout, stderr io.Writer) int {
	report, err := a.assistant.SynthesizeView(ctx, tableName, viewName)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "semantic view: %v\n", err)
		return 1
	}
	payload := map[string]any{
		"view":      report.ViewName,
		"sql":       report.SQL,
		"attempts":  report.Attempts,
		"exhausted": report.Exhausted,
	}
	if len(report.Columns) > 0 {
		payload["columns"] = report.Columns
	}
	code := writeJSON(stdout, stderr, payload)
	if report.Exhausted {
		_, _ = fmt.Fprintln(stderr, "retry budget exhausted; no view was created")
		return 1
	}
	return code
}

func (a *app) runExport(ctx context.Context, question, tableName, outPath string, upload bool, stdout, stderr io.Writer) int {
	outcome, err := a.assistant.Ask(ctx, question, tableName)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "ask: %v\n", err)
		return 1
	}
	if outcome.Exhausted {
		_, _ = fmt.Fprintln(stderr, "retry budget exhausted; nothing to export")
		return 1
	}

	payload := map[string]any{
		"sql":     outcome.SQL,
		"records": len(outcome.Result.Rows),
	}
	if outPath != "" {
		if _, err := a.exporter.WriteFile(outPath, outcome.Result); err != nil {
			_, _ = fmt.Fprintf(stderr, "export: %v\n", err)
			return 1
		}
		payload["path"] = outPath
	}
	if upload {
		exportTable := tableName
		if exportTable == "" {
			exportTable = "query"
		}
		info, err := a.exporter.Upload(ctx, exportTable, outcome.Result)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "upload: %v\n", err)
			return 1
		}
		payload["key"] = info.Key
	}
	return writeJSON(stdout, stderr, payload)
}

func writeJSON(stdout, stderr io.Writer, payload any) int {
	formatted, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "encode output: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, string(formatted))
	return 0
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: regdbot [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  tables                       list tables in the backend")
	_, _ = fmt.Fprintln(w, "  views                        list views in the backend")
	_, _ = fmt.Fprintln(w, "  describe <table>             print the table profile")
	_, _ = fmt.Fprintln(w, "  ask <question>               answer a natural-language question")
	_, _ = fmt.Fprintln(w, "  semantic-view <table>        create a view with semantic column names")
	_, _ = fmt.Fprintln(w, "  export <question>            run a question and export rows as parquet")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "flags:")
	_, _ = fmt.Fprintln(w, "  -backend <descriptor>        duckdb:///path, postgresql://..., csv:/path")
	_, _ = fmt.Fprintln(w, "  -table <name>                ground ask/export on one table")
	_, _ = fmt.Fprintln(w, "  -name <view>                 semantic view name")
	_, _ = fmt.Fprintln(w, "  -out <path>  -upload         export destinations")
}
