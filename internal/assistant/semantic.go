package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// ViewReport is the outcome of a semantic-view synthesis: the executed (or,
// on exhaustion, last attempted) CREATE VIEW statement plus whatever
// column-description commentary could be parsed from the model's reply.
type ViewReport struct {
	ViewName  string
	SQL       string
	Attempts  int
	Exhausted bool
	Columns   map[string]string
}

// SynthesizeView asks the model for a view over tableName that renames raw
// columns to semantic names, then runs the statement through the repair
// loop constrained to view-creation statements. An empty Columns map means
// the model offered no parsable commentary; that is not a failure.
func (a *Assistant) SynthesizeView(ctx context.Context, tableName, viewName string) (ViewReport, error) {
	if strings.TrimSpace(tableName) == "" {
		return ViewReport{}, fmt.Errorf("table name is required")
	}
	if viewName == "" {
		viewName = tableName + "_semanticview"
	}

	profile, err := a.Schema.DescribeTable(ctx, tableName)
	if err != nil {
		return ViewReport{}, err
	}

	runner := a.runner()
	outcome, err := runner.Run(ctx, Request{
		Question: buildSemanticViewPrompt(tableName, viewName, profile),
		Table:    tableName,
		Context:  buildSemanticViewContext(a.DB.Descriptor.Dialect),
		Profile:  profile,
		Require:  requireCreateView,
	})
	if err != nil {
		return ViewReport{}, err
	}

	if a.Logger != nil && !outcome.Exhausted {
		a.Logger.Info("created semantic view",
			slog.String("view", viewName),
			slog.String("table", tableName),
			slog.String("sql", outcome.SQL),
		)
	}

	return ViewReport{
		ViewName:  viewName,
		SQL:       outcome.SQL,
		Attempts:  outcome.Attempts,
		Exhausted: outcome.Exhausted,
		Columns:   parseColumnCommentary(outcome.RawText),
	}, nil
}

func requireCreateView(sqlText string) error {
	upper := strings.ToUpper(strings.TrimSpace(sqlText))
	if strings.HasPrefix(upper, "CREATE VIEW") || strings.HasPrefix(upper, "CREATE OR REPLACE VIEW") {
		return nil
	}
	return fmt.Errorf("statement is not a CREATE VIEW: %s", truncate(sqlText, 100))
}

// parseColumnCommentary scans the raw model reply for Column:/Description:
// line pairs. Models often skip this commentary entirely; absence yields an
// empty map.
func parseColumnCommentary(raw string) map[string]string {
	columns := make(map[string]string)
	var current string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Column"):
			if _, value, ok := strings.Cut(trimmed, ":"); ok {
				current = strings.TrimSpace(value)
			}
		case strings.HasPrefix(trimmed, "Description"):
			if _, value, ok := strings.Cut(trimmed, ":"); ok && current != "" {
				columns[current] = strings.TrimSpace(value)
			}
		}
	}
	return columns
}
