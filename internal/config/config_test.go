package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		configPathEnv, databaseDSNEnv, databaseDrvEnv, providerEnv,
		anthropicKeyEnv, openAIKeyEnv, googleKeyEnv, pubmedEmailEnv,
		logLevelEnv, metricsAddrEnv,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load("")

	if cfg.LLM.Provider != "anthropic" {
		t.Fatalf("expected anthropic provider, got %q", cfg.LLM.Provider)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN == "" {
		t.Fatalf("unexpected database defaults: %+v", cfg.Database)
	}
	if cfg.PubMed.BatchSize != 100 || cfg.PubMed.SearchMax != 1000 {
		t.Fatalf("unexpected pubmed defaults: %+v", cfg.PubMed)
	}
	if got := len(cfg.PubMed.JournalNames()); got != len(defaultJournals()) {
		t.Fatalf("expected %d journals, got %d", len(defaultJournals()), got)
	}
	if cfg.Pipeline.ArticleDelay != time.Second {
		t.Fatalf("expected 1s article delay, got %s", cfg.Pipeline.ArticleDelay)
	}
	if cfg.Classification.Version == "" || cfg.Classification.Audience == "" {
		t.Fatalf("classification defaults missing: %+v", cfg.Classification)
	}
	if cfg.Scheduler.Location().String() != "UTC" {
		t.Fatalf("expected UTC, got %s", cfg.Scheduler.Location())
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
logging:
  level: warn
  format: json
pubmed:
  batchSize: 50
  batchDelay: 250ms
  journals:
    - label: NEJM
      name: N Engl J Med
    - label: Lancet
      name: Lancet
llm:
  provider: OpenAI
  openai:
    model: gpt-4.1-mini
pipeline:
  articleDelay: 2s
  maxConsecutiveBatchFailures: 3
scheduler:
  interval: 12h
  timezone: Mars/Olympus_Mons
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(configPathEnv, path)
	t.Setenv(providerEnv, "Gemini")
	t.Setenv(googleKeyEnv, "g-key")
	t.Setenv(databaseDSNEnv, "postgres://localhost/med")
	t.Setenv(databaseDrvEnv, "POSTGRES")

	cfg := Load("")

	if cfg.Logging.Level != "warn" || cfg.Logging.Format != "json" {
		t.Fatalf("logging not merged: %+v", cfg.Logging)
	}
	if cfg.PubMed.BatchSize != 50 || cfg.PubMed.BatchDelay != 250*time.Millisecond {
		t.Fatalf("pubmed not merged: %+v", cfg.PubMed)
	}
	if cfg.PubMed.SearchMax != 1000 {
		t.Fatalf("unset fields must keep defaults, got searchMax %d", cfg.PubMed.SearchMax)
	}
	if names := cfg.PubMed.JournalNames(); len(names) != 2 || names[0] != "N Engl J Med" {
		t.Fatalf("unexpected journals: %v", names)
	}
	if cfg.LLM.Provider != "gemini" {
		t.Fatalf("env must override file provider, got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.OpenAI.Model != "gpt-4.1-mini" || cfg.LLM.OpenAI.BaseURL == "" {
		t.Fatalf("openai settings not merged: %+v", cfg.LLM.OpenAI)
	}
	if cfg.LLM.Gemini.APIKey != "g-key" {
		t.Fatalf("gemini key not applied")
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://localhost/med" {
		t.Fatalf("database env not applied: %+v", cfg.Database)
	}
	if cfg.Pipeline.ArticleDelay != 2*time.Second || cfg.Pipeline.MaxConsecutiveBatchFailures != 3 {
		t.Fatalf("pipeline not merged: %+v", cfg.Pipeline)
	}
	if cfg.Scheduler.Interval != 12*time.Hour {
		t.Fatalf("expected 12h interval, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.Location().String() != "UTC" {
		t.Fatalf("unknown timezone must revert to UTC, got %s", cfg.Scheduler.Location())
	}
}

func TestLoadBrokenFileFallsBack(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("pubmed: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Load(path)
	if cfg.PubMed.BatchSize != 100 {
		t.Fatalf("expected defaults after parse failure, got %+v", cfg.PubMed)
	}

	cfg = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if cfg.LLM.Provider != "anthropic" {
		t.Fatalf("expected defaults for missing file, got %q", cfg.LLM.Provider)
	}
}
