package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("regdbot", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.Backend.URL != "duckdb:///:memory:" {
		t.Fatalf("Backend.URL = %q", cfg.Backend.URL)
	}
	if cfg.Schema.SampleRows != 5 {
		t.Fatalf("Schema.SampleRows = %d", cfg.Schema.SampleRows)
	}
	if cfg.Assistant.RetryBudget != 5 {
		t.Fatalf("Assistant.RetryBudget = %d", cfg.Assistant.RetryBudget)
	}
	if cfg.AI.Provider != "openai" {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.AI.GenerateModel != "gpt-5" || cfg.AI.RepairModel != "gpt-5" {
		t.Fatalf("AI models = %q / %q", cfg.AI.GenerateModel, cfg.AI.RepairModel)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to false in dev")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"REGDBOT_PROFILE": "prod"})
	cfg, err := Load("regdbot", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"REGDBOT_PROFILE":                    "test",
		"REGDBOT_SERVICE_NAME":               "regdbot-custom",
		"REGDBOT_BACKEND_URL":                "postgresql://user:pw@db:5432/reg",
		"REGDBOT_BACKEND_MAX_OPEN_CONNS":     "12",
		"REGDBOT_BACKEND_CONN_MAX_IDLE_TIME": "90s",
		"REGDBOT_SCHEMA_SAMPLE_ROWS":         "11",
		"REGDBOT_RETRY_BUDGET":               "3",
		"REGDBOT_AI_PROVIDER":                "ollama",
		"REGDBOT_AI_BASE_URL":                "http://localhost:11434",
		"REGDBOT_AI_API_KEY":                 "secret-key",
		"REGDBOT_AI_GENERATE_MODEL":          "gpt-5.2",
		"REGDBOT_AI_REPAIR_MODEL":            "codegemma",
		"REGDBOT_AI_TEMPERATURE":             "0.3",
		"REGDBOT_AI_TIMEOUT":                 "21s",
		"REGDBOT_OBJECTSTORE_ENDPOINT":       "s3.example.com",
		"REGDBOT_OBJECTSTORE_BUCKET":         "regdbot-exports",
		"REGDBOT_OBJECTSTORE_USE_SSL":        "true",
		"REGDBOT_LOG_LEVEL":                  "error",
		"REGDBOT_LOG_JSON":                   "false",
	})
	cfg, err := Load("regdbot", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "regdbot-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.Backend.URL != "postgresql://user:pw@db:5432/reg" {
		t.Fatalf("Backend.URL = %q", cfg.Backend.URL)
	}
	if cfg.Backend.MaxOpenConns != 12 {
		t.Fatalf("Backend.MaxOpenConns = %d", cfg.Backend.MaxOpenConns)
	}
	if cfg.Backend.ConnMaxIdleTime != 90*time.Second {
		t.Fatalf("Backend.ConnMaxIdleTime = %s", cfg.Backend.ConnMaxIdleTime)
	}
	if cfg.Schema.SampleRows != 11 {
		t.Fatalf("Schema.SampleRows = %d", cfg.Schema.SampleRows)
	}
	if cfg.Assistant.RetryBudget != 3 {
		t.Fatalf("Assistant.RetryBudget = %d", cfg.Assistant.RetryBudget)
	}
	if cfg.AI.Provider != "ollama" {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.AI.BaseURL != "http://localhost:11434" {
		t.Fatalf("AI.BaseURL = %q", cfg.AI.BaseURL)
	}
	if cfg.AI.APIKey != "secret-key" {
		t.Fatalf("AI.APIKey = %q", cfg.AI.APIKey)
	}
	if cfg.AI.GenerateModel != "gpt-5.2" {
		t.Fatalf("AI.GenerateModel = %q", cfg.AI.GenerateModel)
	}
	if cfg.AI.RepairModel != "codegemma" {
		t.Fatalf("AI.RepairModel = %q", cfg.AI.RepairModel)
	}
	if cfg.AI.Temperature != 0.3 {
		t.Fatalf("AI.Temperature = %f", cfg.AI.Temperature)
	}
	if cfg.AI.Timeout != 21*time.Second {
		t.Fatalf("AI.Timeout = %s", cfg.AI.Timeout)
	}
	if cfg.ObjectStore.Endpoint != "s3.example.com" {
		t.Fatalf("ObjectStore.Endpoint = %q", cfg.ObjectStore.Endpoint)
	}
	if cfg.ObjectStore.Bucket != "regdbot-exports" {
		t.Fatalf("ObjectStore.Bucket = %q", cfg.ObjectStore.Bucket)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL = false, want true")
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Observability.LogJSON {
		t.Fatal("LogJSON = true, want false")
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"REGDBOT_PROFILE": "oops"},
		{"REGDBOT_BACKEND_MAX_OPEN_CONNS": "oops"},
		{"REGDBOT_BACKEND_CONN_MAX_IDLE_TIME": "NaN"},
		{"REGDBOT_SCHEMA_SAMPLE_ROWS": "0"},
		{"REGDBOT_RETRY_BUDGET": "-1"},
		{"REGDBOT_AI_TEMPERATURE": "bad"},
		{"REGDBOT_OBJECTSTORE_USE_SSL": "not-bool"},
		{"REGDBOT_LOG_LEVEL": "verbose"},
		{"REGDBOT_BACKEND_URL": " "},
	}
	for _, env := range tests {
		_, err := Load("regdbot", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
