package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/regdbot/regdbot/internal/backend"
	"github.com/regdbot/regdbot/internal/nl2sql"
	"github.com/regdbot/regdbot/internal/observability"
)

// DefaultRetryBudget bounds how many generation attempts one loop may spend.
const DefaultRetryBudget = 5

// ErrEmptyQuestion is a caller defect, not a repairable failure; it aborts
// before the first generation.
var ErrEmptyQuestion = errors.New("question is required")

var errEmptyStatement = errors.New("normalization produced an empty statement")

// state is the loop's position in the generate/normalize/execute/repair
// cycle. Terminal states are succeeded and exhausted.
type state int

const (
	stateGenerating state = iota
	stateNormalizing
	stateExecuting
	stateRepairing
	stateSucceeded
	stateExhausted
)

// Executor runs one SQL statement. *backend.Database satisfies it; tests
// substitute fakes.
type Executor interface {
	Execute(ctx context.Context, sqlText string) (backend.Result, error)
}

// Runner drives one generation/repair loop per Run call. Independent
// questions get independent Runner invocations; a single run is strictly
// sequential because each repair must see the prior failure.
type Runner struct {
	Executor   Executor
	Translator nl2sql.Translator
	Models     nl2sql.Models
	Budget     int
	Logger     *slog.Logger
}

type Request struct {
	Question string
	Table    string
	Context  string
	Profile  string
	// Require rejects statements of the wrong command shape before
	// execution; a rejection consumes a retry like any execution error.
	Require func(sqlText string) error
}

// Outcome carries the final statement even on exhaustion: the caller always
// has something to say, and detects exhaustion from the flag rather than an
// error.
type Outcome struct {
	SQL       string
	RawText   string
	Result    backend.Result
	Attempts  int
	Exhausted bool
}

func (r *Runner) Run(ctx context.Context, req Request) (Outcome, error) {
	if strings.TrimSpace(req.Question) == "" {
		return Outcome{}, ErrEmptyQuestion
	}

	budget := r.Budget
	if budget <= 0 {
		budget = DefaultRetryBudget
	}

	var (
		raw       string
		sqlText   string
		result    backend.Result
		lastErr   error
		attempts  int
		repairing bool
	)

	current := stateGenerating
	for {
		switch current {
		case stateGenerating:
			attempts++
			model, question, grounding := r.promptFor(req, repairing, sqlText, lastErr)
			purpose := "generate"
			if repairing {
				purpose = "repair"
			}
			observability.ObserveGeneration(purpose)

			var err error
			raw, err = r.Translator.Complete(ctx, nl2sql.Request{
				Model:    model,
				Question: question,
				Context:  grounding,
			})
			if err != nil {
				// Model transport failure is not repairable by re-prompting.
				return Outcome{SQL: sqlText, Attempts: attempts}, fmt.Errorf("language model: %w", err)
			}
			current = stateNormalizing

		case stateNormalizing:
			sqlText = nl2sql.Normalize(raw)
			current = stateExecuting

		case stateExecuting:
			execErr := r.execute(ctx, req, sqlText, &result)
			if execErr == nil {
				current = stateSucceeded
				break
			}
			lastErr = execErr
			if r.Logger != nil {
				r.Logger.Warn("statement failed",
					slog.Int("attempt", attempts),
					slog.String("sql", truncate(sqlText, 100)),
					slog.Any("error", execErr),
				)
			}
			if attempts >= budget {
				current = stateExhausted
			} else {
				current = stateRepairing
			}

		case stateRepairing:
			repairing = true
			current = stateGenerating

		case stateSucceeded:
			return Outcome{
				SQL:      sqlText,
				RawText:  raw,
				Result:   result,
				Attempts: attempts,
			}, nil

		case stateExhausted:
			observability.ObserveExhaustion()
			if r.Logger != nil {
				r.Logger.Warn("retry budget exhausted, returning unverified statement",
					slog.Int("attempts", attempts),
					slog.String("sql", truncate(sqlText, 100)),
				)
			}
			return Outcome{
				SQL:       sqlText,
				RawText:   raw,
				Attempts:  attempts,
				Exhausted: true,
			}, nil
		}
	}
}

func (r *Runner) execute(ctx context.Context, req Request, sqlText string, result *backend.Result) error {
	if sqlText == "" {
		return errEmptyStatement
	}
	if req.Require != nil {
		if err := req.Require(sqlText); err != nil {
			return err
		}
	}
	res, err := r.Executor.Execute(ctx, sqlText)
	if err != nil {
		return err
	}
	*result = res
	return nil
}

func (r *Runner) promptFor(req Request, repairing bool, failedSQL string, lastErr error) (model, question, grounding string) {
	if !repairing {
		return r.Models.Generate, req.Question, req.Context
	}
	return r.Models.Repair, buildRepairPrompt(req.Table, failedSQL, lastErr), req.Profile
}

// truncate cuts s to at most n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
