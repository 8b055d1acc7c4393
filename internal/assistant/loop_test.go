package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/regdbot/regdbot/internal/backend"
	"github.com/regdbot/regdbot/internal/nl2sql"
)

type stubTranslator struct {
	responses []string
	requests  []nl2sql.Request
	err       error
}

func (s *stubTranslator) Complete(_ context.Context, req nl2sql.Request) (string, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return "", s.err
	}
	index := len(s.requests) - 1
	if index >= len(s.responses) {
		index = len(s.responses) - 1
	}
	return s.responses[index], nil
}

type fakeExecutor struct {
	executed []string
	run      func(sqlText string) (backend.Result, error)
}

func (f *fakeExecutor) Execute(_ context.Context, sqlText string) (backend.Result, error) {
	f.executed = append(f.executed, sqlText)
	return f.run(sqlText)
}

func TestRunExhaustsBudgetAfterExactlyNAttempts(t *testing.T) {
	translator := &stubTranslator{responses: []string{
		"SELECT broken 1", "SELECT broken 2", "SELECT broken 3",
	}}
	executor := &fakeExecutor{run: func(string) (backend.Result, error) {
		return backend.Result{}, errors.New("syntax error")
	}}

	runner := &Runner{Executor: executor, Translator: translator, Budget: 3}
	outcome, err := runner.Run(context.Background(), Request{Question: "how many rows", Table: "t"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !outcome.Exhausted {
		t.Fatal("outcome should be exhausted")
	}
	if outcome.Attempts != 3 {
		t.Fatalf("Attempts = %d, want 3", outcome.Attempts)
	}
	if len(translator.requests) != 3 {
		t.Fatalf("generation attempts = %d, want 3", len(translator.requests))
	}
	if outcome.SQL != "SELECT broken 3" {
		t.Fatalf("SQL = %q, want the last normalized statement", outcome.SQL)
	}
}

func TestRunSucceedsOnSecondAttempt(t *testing.T) {
	translator := &stubTranslator{responses: []string{
		"```sql\nSELEC oops\n```",
		"```sql\nSELECT 1;\n```",
	}}
	executor := &fakeExecutor{run: func(sqlText string) (backend.Result, error) {
		if strings.HasPrefix(sqlText, "SELEC ") {
			return backend.Result{}, errors.New("parse error near SELEC")
		}
		return backend.Result{Columns: []string{"n"}, Rows: [][]any{{int64(1)}}}, nil
	}}

	runner := &Runner{Executor: executor, Translator: translator, Budget: 5}
	outcome, err := runner.Run(context.Background(), Request{Question: "one", Table: "t"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.Exhausted {
		t.Fatal("outcome should not be exhausted")
	}
	if outcome.Attempts != 2 {
		t.Fatalf("Attempts = %d, want 2", outcome.Attempts)
	}
	if outcome.SQL != "SELECT 1;" {
		t.Fatalf("SQL = %q", outcome.SQL)
	}
	if len(outcome.Result.Rows) != 1 {
		t.Fatalf("Rows = %d", len(outcome.Result.Rows))
	}
}

func TestRunTreatsEmptyNormalizationAsFailedAttempt(t *testing.T) {
	translator := &stubTranslator{responses: []string{
		"``````",
		"SELECT 1",
	}}
	executor := &fakeExecutor{run: func(string) (backend.Result, error) {
		return backend.Result{}, nil
	}}

	runner := &Runner{Executor: executor, Translator: translator, Budget: 5}
	outcome, err := runner.Run(context.Background(), Request{Question: "q", Table: "t"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.Attempts != 2 {
		t.Fatalf("Attempts = %d, want 2", outcome.Attempts)
	}
	for _, sqlText := range executor.executed {
		if sqlText == "" {
			t.Fatal("empty statement must not reach the executor")
		}
	}
}

func TestRunRepairPromptCarriesFailureContext(t *testing.T) {
	translator := &stubTranslator{responses: []string{
		"SELECT bogus FROM sales",
		"SELECT 1",
	}}
	executor := &fakeExecutor{run: func(sqlText string) (backend.Result, error) {
		if strings.Contains(sqlText, "bogus") {
			return backend.Result{}, errors.New(`column "bogus" does not exist`)
		}
		return backend.Result{}, nil
	}}

	runner := &Runner{
		Executor:   executor,
		Translator: translator,
		Models:     nl2sql.Models{Generate: "gpt", Repair: "codegemma"},
		Budget:     5,
	}
	profile := "column name:revenue,  type:DOUBLE, sample values: [1.5]\n"
	_, err := runner.Run(context.Background(), Request{
		Question: "total revenue",
		Table:    "sales",
		Context:  "generation context",
		Profile:  profile,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(translator.requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(translator.requests))
	}

	first := translator.requests[0]
	if first.Model != "gpt" {
		t.Fatalf("first model = %q", first.Model)
	}
	if first.Question != "total revenue" || first.Context != "generation context" {
		t.Fatalf("first request = %+v", first)
	}

	repair := translator.requests[1]
	if repair.Model != "codegemma" {
		t.Fatalf("repair model = %q", repair.Model)
	}
	if !strings.Contains(repair.Question, "SELECT bogus FROM sales") {
		t.Fatalf("repair prompt missing failing SQL: %q", repair.Question)
	}
	if !strings.Contains(repair.Question, `column "bogus" does not exist`) {
		t.Fatalf("repair prompt missing error text: %q", repair.Question)
	}
	if !strings.Contains(repair.Question, "sales") {
		t.Fatalf("repair prompt missing table name: %q", repair.Question)
	}
	if repair.Context != profile {
		t.Fatalf("repair context = %q, want cached profile", repair.Context)
	}
}

func TestRunRejectsEmptyQuestion(t *testing.T) {
	runner := &Runner{
		Executor:   &fakeExecutor{run: func(string) (backend.Result, error) { return backend.Result{}, nil }},
		Translator: &stubTranslator{responses: []string{"SELECT 1"}},
	}
	if _, err := runner.Run(context.Background(), Request{Question: "   "}); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("error = %v, want ErrEmptyQuestion", err)
	}
}

func TestRunPropagatesTranslatorFailure(t *testing.T) {
	translator := &stubTranslator{err: fmt.Errorf("connection refused")}
	runner := &Runner{
		Executor:   &fakeExecutor{run: func(string) (backend.Result, error) { return backend.Result{}, nil }},
		Translator: translator,
	}
	if _, err := runner.Run(context.Background(), Request{Question: "q"}); err == nil {
		t.Fatal("expected translator failure to propagate")
	}
}

func TestTruncateNeverSplitsRunes(t *testing.T) {
	cases := []struct {
		s    string
		n    int
		want string
	}{
		{"SELECT 'é'", 9, "SELECT '"},
		{"日本語", 4, "日"},
		{"日本語", 3, "日"},
		{"short", 100, "short"},
		{"ascii only", 5, "ascii"},
	}
	for _, tc := range cases {
		got := truncate(tc.s, tc.n)
		if got != tc.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tc.s, tc.n, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Fatalf("truncate(%q, %d) = %q is not valid UTF-8", tc.s, tc.n, got)
		}
	}
}

func TestRunShapeRejectionConsumesRetry(t *testing.T) {
	translator := &stubTranslator{responses: []string{
		"SELECT * FROM t",
		"CREATE VIEW v AS SELECT * FROM t",
	}}
	executor := &fakeExecutor{run: func(string) (backend.Result, error) {
		return backend.Result{}, nil
	}}

	runner := &Runner{Executor: executor, Translator: translator, Budget: 5}
	outcome, err := runner.Run(context.Background(), Request{
		Question: "make a view",
		Table:    "t",
		Require:  requireCreateView,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.Attempts != 2 {
		t.Fatalf("Attempts = %d, want 2", outcome.Attempts)
	}
	if len(executor.executed) != 1 {
		t.Fatalf("executed = %v, rejected statement must not run", executor.executed)
	}
}
