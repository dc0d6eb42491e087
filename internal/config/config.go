package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "MEDARTICLES_CONFIG"
	databaseDSNEnv  = "DATABASE_DSN"
	databaseDrvEnv  = "DATABASE_DRIVER"
	providerEnv     = "MODEL_PROVIDER"
	anthropicKeyEnv = "ANTHROPIC_API_KEY"
	openAIKeyEnv    = "OPENAI_API_KEY"
	googleKeyEnv    = "GOOGLE_API_KEY"
	pubmedEmailEnv  = "PUBMED_EMAIL"
	logLevelEnv     = "LOG_LEVEL"
	metricsAddrEnv  = "METRICS_ADDR"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging        LoggingConfig        `yaml:"logging"`
	Database       DatabaseConfig       `yaml:"database"`
	PubMed         PubMedConfig         `yaml:"pubmed"`
	LLM            LLMConfig            `yaml:"llm"`
	Classification ClassificationConfig `yaml:"classification"`
	Pipeline       PipelineConfig       `yaml:"pipeline"`
	Scheduler      SchedulerConfig      `yaml:"scheduler"`
	Metrics        MetricsConfig        `yaml:"metrics"`
}

// LoggingConfig selects slog level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes the relational store. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// PubMedConfig configures the E-utilities client.
type PubMedConfig struct {
	BaseURL    string          `yaml:"baseUrl"`
	Tool       string          `yaml:"tool"`
	Email      string          `yaml:"email"`
	BatchSize  int             `yaml:"batchSize"`
	SearchMax  int             `yaml:"searchMax"`
	BatchDelay time.Duration   `yaml:"batchDelay"`
	Timeout    time.Duration   `yaml:"timeout"`
	Journals   []JournalConfig `yaml:"journals"`
}

// JournalConfig maps a display label onto the index's journal abbreviation.
type JournalConfig struct {
	Label string `yaml:"label"`
	Name  string `yaml:"name"`
}

// JournalNames returns the abbreviations used in search queries.
func (p PubMedConfig) JournalNames() []string {
	names := make([]string, 0, len(p.Journals))
	for _, j := range p.Journals {
		if j.Name != "" {
			names = append(names, j.Name)
		}
	}
	return names
}

// LLMConfig selects the text-generation provider and its credentials.
type LLMConfig struct {
	Provider    string         `yaml:"provider"`
	Temperature float32        `yaml:"temperature"`
	Timeout     time.Duration  `yaml:"timeout"`
	Anthropic   ProviderConfig `yaml:"anthropic"`
	OpenAI      ProviderConfig `yaml:"openai"`
	Gemini      ProviderConfig `yaml:"gemini"`
}

// ProviderConfig holds the per-provider endpoint settings.
type ProviderConfig struct {
	APIKey    string `yaml:"apiKey"`
	BaseURL   string `yaml:"baseUrl"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"maxTokens"`
}

// ClassificationConfig tunes the relevance and scoring prompts.
type ClassificationConfig struct {
	Audience string `yaml:"audience"`
	Version  string `yaml:"version"`
}

// PipelineConfig carries orchestration knobs.
type PipelineConfig struct {
	ArticleDelay                time.Duration `yaml:"articleDelay"`
	LookbackDays                int           `yaml:"lookbackDays"`
	WeeklyDays                  int           `yaml:"weeklyDays"`
	MaxConsecutiveBatchFailures int           `yaml:"maxConsecutiveBatchFailures"`
}

// SchedulerConfig defines how often the since-last-update run fires.
type SchedulerConfig struct {
	Interval time.Duration  `yaml:"interval"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// MetricsConfig enables the Prometheus endpoint when ListenAddr is set.
type MetricsConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// Load reads .env and YAML configuration (if present) and applies environment overrides.
// An empty path falls back to MEDARTICLES_CONFIG.
func Load(path string) Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: cannot load .env: %v", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.PubMed.Journals) == 0 {
		cfg.PubMed.Journals = defaultJournals()
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(databaseDrvEnv); v != "" {
		c.Database.Driver = strings.ToLower(v)
	}

	if v := os.Getenv(providerEnv); v != "" {
		c.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv(anthropicKeyEnv); v != "" {
		c.LLM.Anthropic.APIKey = v
	}
	if v := os.Getenv(openAIKeyEnv); v != "" {
		c.LLM.OpenAI.APIKey = v
	}
	if v := os.Getenv(googleKeyEnv); v != "" {
		c.LLM.Gemini.APIKey = v
	}

	if v := os.Getenv(pubmedEmailEnv); v != "" {
		c.PubMed.Email = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(metricsAddrEnv); v != "" {
		c.Metrics.ListenAddr = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Database.Driver != "" {
		base.Database.Driver = override.Database.Driver
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}

	base.PubMed = mergePubMed(base.PubMed, override.PubMed)
	base.LLM = mergeLLM(base.LLM, override.LLM)

	if override.Classification.Audience != "" {
		base.Classification.Audience = override.Classification.Audience
	}
	if override.Classification.Version != "" {
		base.Classification.Version = override.Classification.Version
	}

	if override.Pipeline.ArticleDelay != 0 {
		base.Pipeline.ArticleDelay = override.Pipeline.ArticleDelay
	}
	if override.Pipeline.LookbackDays > 0 {
		base.Pipeline.LookbackDays = override.Pipeline.LookbackDays
	}
	if override.Pipeline.WeeklyDays > 0 {
		base.Pipeline.WeeklyDays = override.Pipeline.WeeklyDays
	}
	if override.Pipeline.MaxConsecutiveBatchFailures > 0 {
		base.Pipeline.MaxConsecutiveBatchFailures = override.Pipeline.MaxConsecutiveBatchFailures
	}

	if override.Scheduler.Interval > 0 {
		base.Scheduler.Interval = override.Scheduler.Interval
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Metrics.ListenAddr != "" {
		base.Metrics.ListenAddr = override.Metrics.ListenAddr
	}

	return base
}

func mergePubMed(base, override PubMedConfig) PubMedConfig {
	if override.BaseURL != "" {
		base.BaseURL = override.BaseURL
	}
	if override.Tool != "" {
		base.Tool = override.Tool
	}
	if override.Email != "" {
		base.Email = override.Email
	}
	if override.BatchSize > 0 {
		base.BatchSize = override.BatchSize
	}
	if override.SearchMax > 0 {
		base.SearchMax = override.SearchMax
	}
	if override.BatchDelay != 0 {
		base.BatchDelay = override.BatchDelay
	}
	if override.Timeout > 0 {
		base.Timeout = override.Timeout
	}
	if len(override.Journals) > 0 {
		base.Journals = override.Journals
	}
	return base
}

func mergeLLM(base, override LLMConfig) LLMConfig {
	if override.Provider != "" {
		base.Provider = strings.ToLower(override.Provider)
	}
	if override.Temperature > 0 {
		base.Temperature = override.Temperature
	}
	if override.Timeout > 0 {
		base.Timeout = override.Timeout
	}
	base.Anthropic = mergeProvider(base.Anthropic, override.Anthropic)
	base.OpenAI = mergeProvider(base.OpenAI, override.OpenAI)
	base.Gemini = mergeProvider(base.Gemini, override.Gemini)
	return base
}

func mergeProvider(base, override ProviderConfig) ProviderConfig {
	if override.APIKey != "" {
		base.APIKey = override.APIKey
	}
	if override.BaseURL != "" {
		base.BaseURL = override.BaseURL
	}
	if override.Model != "" {
		base.Model = override.Model
	}
	if override.MaxTokens > 0 {
		base.MaxTokens = override.MaxTokens
	}
	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "medical_articles.db"},
		PubMed: PubMedConfig{
			BaseURL:    "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
			Tool:       "medical_articles_system",
			BatchSize:  100,
			SearchMax:  1000,
			BatchDelay: 500 * time.Millisecond,
			Timeout:    30 * time.Second,
			Journals:   defaultJournals(),
		},
		LLM: LLMConfig{
			Provider:    "anthropic",
			Temperature: 0.01,
			Timeout:     90 * time.Second,
			Anthropic: ProviderConfig{
				BaseURL:   "https://api.anthropic.com",
				Model:     "claude-sonnet-4-5",
				MaxTokens: 2000,
			},
			OpenAI: ProviderConfig{
				BaseURL:   "https://api.openai.com/v1",
				Model:     "gpt-4o-mini",
				MaxTokens: 2000,
			},
			Gemini: ProviderConfig{
				BaseURL:   "https://generativelanguage.googleapis.com/v1beta/openai",
				Model:     "gemini-2.5-pro",
				MaxTokens: 2500,
			},
		},
		Classification: ClassificationConfig{
			Audience: "internal medicine doctors in Israel",
			Version:  "v3.0",
		},
		Pipeline: PipelineConfig{
			ArticleDelay: time.Second,
			LookbackDays: 7,
			WeeklyDays:   7,
		},
		Scheduler: SchedulerConfig{Interval: 24 * time.Hour, Timezone: defaultTimezone, location: tz},
	}
}

func defaultJournals() []JournalConfig {
	return []JournalConfig{
		{Label: "NEJM", Name: "N Engl J Med"},
		{Label: "JAMA", Name: "JAMA"},
		{Label: "Annals", Name: "Ann Intern Med"},
		{Label: "BMJ", Name: "BMJ"},
		{Label: "Lancet", Name: "Lancet"},
		{Label: "JGIM", Name: "J Gen Intern Med"},
		{Label: "Circulation", Name: "Circulation"},
		{Label: "EHJ", Name: "Eur Heart J"},
		{Label: "JACC", Name: "J Am Coll Cardiol"},
		{Label: "Hypertension", Name: "Hypertension"},
		{Label: "AJRCCM", Name: "Am J Respir Crit Care Med"},
		{Label: "Chest", Name: "Chest"},
		{Label: "Kidney International", Name: "Kidney Int"},
		{Label: "JASN", Name: "J Am Soc Nephrol"},
		{Label: "Gastroenterology", Name: "Gastroenterology"},
		{Label: "Gut", Name: "Gut"},
		{Label: "Hepatology", Name: "Hepatology"},
		{Label: "CID", Name: "Clin Infect Dis"},
		{Label: "JID", Name: "J Infect Dis"},
		{Label: "JCEM", Name: "J Clin Endocrinol Metab"},
		{Label: "Neurology", Name: "Neurology"},
		{Label: "Ann Neurol", Name: "Ann Neurol"},
		{Label: "ARD", Name: "Ann Rheum Dis"},
		{Label: "Arthritis Rheumatol", Name: "Arthritis Rheumatol"},
		{Label: "Blood", Name: "Blood"},
	}
}
