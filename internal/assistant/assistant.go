package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/regdbot/regdbot/internal/backend"
	"github.com/regdbot/regdbot/internal/nl2sql"
	"github.com/regdbot/regdbot/internal/schema"
)

// Assistant answers natural-language questions against one database by
// grounding prompts in table profiles and pushing every statement through
// the generation/repair loop.
type Assistant struct {
	DB         *backend.Database
	Schema     *schema.Introspector
	Translator nl2sql.Translator
	Models     nl2sql.Models
	Budget     int
	Logger     *slog.Logger
}

// Ask translates the question into SQL grounded on the named table, or on
// every table when tableName is empty, and executes it. On exhaustion the
// outcome carries the last unverified statement and no rows.
func (a *Assistant) Ask(ctx context.Context, question, tableName string) (Outcome, error) {
	if strings.TrimSpace(question) == "" {
		return Outcome{}, ErrEmptyQuestion
	}

	tables := []string{tableName}
	if tableName == "" {
		listed, err := a.Schema.ListTables(ctx)
		if err != nil {
			return Outcome{}, err
		}
		if len(listed) == 0 {
			return Outcome{}, fmt.Errorf("database has no tables to ground on")
		}
		tables = listed
	}

	var grounding strings.Builder
	for _, table := range tables {
		profile, err := a.Schema.DescribeTable(ctx, table)
		if err != nil {
			return Outcome{}, err
		}
		fmt.Fprintf(&grounding, "Table %s:\n%s\n", table, profile)
	}

	// The repair prompt grounds on one table; use the first.
	repairTable := tables[0]
	repairProfile, err := a.Schema.DescribeTable(ctx, repairTable)
	if err != nil {
		return Outcome{}, err
	}

	runner := a.runner()
	return runner.Run(ctx, Request{
		Question: question,
		Table:    repairTable,
		Context:  buildQueryContext(a.DB.Descriptor.Dialect, grounding.String()),
		Profile:  repairProfile,
	})
}

func (a *Assistant) runner() *Runner {
	return &Runner{
		Executor:   a.DB,
		Translator: a.Translator,
		Models:     a.Models,
		Budget:     a.Budget,
		Logger:     a.Logger,
	}
}
