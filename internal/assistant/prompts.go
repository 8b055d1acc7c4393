package assistant

import (
	"fmt"

	"github.com/regdbot/regdbot/internal/backend"
)

func buildQueryContext(dialect backend.Dialect, profile string) string {
	return fmt.Sprintf(
		"You convert natural language questions into a single SQL query in the %s dialect. "+
			"Use only the tables and columns described below. "+
			"Return pure and complete SQL which can be executed, without any accessory text.\n\n"+
			"Schema context:\n%s",
		dialect, profile,
	)
}

func buildSemanticViewContext(dialect backend.Dialect) string {
	return fmt.Sprintf(
		"You will be asked to create SQL code in the %s dialect, to create a view with "+
			"semantic names for all the columns of a table. Be mindful of including only "+
			"existing columns, as listed in the context. Do not use uppercase letters or "+
			"spaces in the semantic column names; use underscores instead. Return pure and "+
			"complete SQL clauses, which can be executed, without any accessory text. "+
			"When you cannot propose a semantic name, maintain the original name.",
		dialect,
	)
}

func buildSemanticViewPrompt(tableName, viewName, profile string) string {
	return fmt.Sprintf(
		"Generate a view of table %s, named %s, renaming column names with semantic names, "+
			"including the columns described below:\n%s",
		tableName, viewName, profile,
	)
}

func buildRepairPrompt(tableName, failedSQL string, lastErr error) string {
	prompt := fmt.Sprintf(
		"Given the following defective SQL query of table %s, please fix its bugs and "+
			"return a working version. Return pure, complete SQL code without explanatory "+
			"text:\n\n%s",
		tableName, failedSQL,
	)
	if lastErr != nil {
		prompt += fmt.Sprintf("\n\nThe query failed with this error:\n%s", lastErr)
	}
	return prompt
}
