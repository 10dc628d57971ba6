// Package config loads qaharvest settings from the environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/qaharvest/internal/dedup"
	"github.com/raphaelgruber/qaharvest/internal/parser"
)

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendSurreal  = "surrealdb"
)

// LLM providers.
const (
	ProviderGroq        = "groq"
	ProviderOpenAI      = "openai"
	ProviderAnthropic   = "anthropic"
	ProviderGemini      = "gemini"
	ProviderHuggingFace = "huggingface"
	ProviderOllama      = "ollama"
	ProviderBedrock     = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// HTTP server
	ListenAddr string
	ServerURL  string // used by the CLI

	// Storage
	Backend     string
	SQLitePath  string
	PostgresDSN string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// LLM providers, tried in order
	LLMProviders []string
	LLMTimeout   time.Duration

	GroqAPIKey  string
	GroqModel   string
	GroqBaseURL string

	OpenAIAPIKey string
	OpenAIModel  string

	AnthropicAPIKey string
	AnthropicModel  string

	GeminiAPIKey string
	GeminiModel  string

	HuggingFaceToken string
	HuggingFaceModel string

	OllamaHost  string
	OllamaModel string

	BedrockModel string

	// Extraction
	Topic           string
	MaxContentChars int
	MinContentChars int
	ParsePolicy     parser.Policy

	// Dedup
	Dedup         dedup.Config
	OracleEnabled bool

	// Scraping
	ScrapeTimeout  time.Duration
	UserAgent      string
	ScrapeRPS      float64
	ScrapeRetries  int
	DiscoverySeeds []string
	TagPages       []string

	// Jobs
	QueueSize          int
	Workers            int
	CleanupSchedule    string
	CleanupAge         time.Duration
	CascadeQAOnCleanup bool

	// Logging
	LogFile   string
	LogLevel  slog.Level
	LogFormat string
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		ListenAddr: ":8080",
		ServerURL:  "http://localhost:8080",

		Backend:    BackendSQLite,
		SQLitePath: "qaharvest.db",

		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "qaharvest",
		SurrealDBDatabase:  "qa",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",

		LLMProviders: []string{ProviderGroq, ProviderGemini, ProviderHuggingFace},
		LLMTimeout:   90 * time.Second,

		GroqModel:        "llama-3.3-70b-versatile",
		GroqBaseURL:      "https://api.groq.com/openai/v1",
		OpenAIModel:      "gpt-4o-mini",
		AnthropicModel:   "claude-3-5-haiku-latest",
		GeminiModel:      "gemini-1.5-flash-latest",
		HuggingFaceModel: "mistralai/Mistral-7B-Instruct-v0.2",
		OllamaHost:       "http://localhost:11434",
		OllamaModel:      "llama3.2",
		BedrockModel:     "anthropic.claude-3-haiku-20240307-v1:0",

		Topic:           "iOS/Swift",
		MaxContentChars: parser.DefaultMaxArticleChars,
		MinContentChars: 200,
		ParsePolicy:     parser.AcceptOpenQuestions,

		Dedup: dedup.DefaultConfig(),

		ScrapeTimeout: 60 * time.Second,
		UserAgent:     "qaharvest/1.0 (+https://github.com/raphaelgruber/qaharvest)",
		ScrapeRPS:     1,
		ScrapeRetries: 3,
		TagPages: []string{
			"https://medium.com/tag/ios-app-development",
			"https://medium.com/tag/swift",
			"https://medium.com/tag/swiftui",
			"https://medium.com/tag/ios-development",
		},

		QueueSize:       100,
		Workers:         1,
		CleanupSchedule: "@daily",
		CleanupAge:      30 * 24 * time.Hour,

		LogFile:   "",
		LogLevel:  slog.LevelInfo,
		LogFormat: "text",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// QAH_CONFIG (if any), then environment variables. Later sources win.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("QAH_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fileConfig is the YAML shape. Absent fields leave the current value.
type fileConfig struct {
	Topic     *string  `yaml:"topic"`
	Providers []string `yaml:"providers"`

	Dedup struct {
		Threshold      *float64 `yaml:"threshold"`
		Oracle         *bool    `yaml:"oracle"`
		OracleMaxBatch *int     `yaml:"oracle_max_batch"`
		OracleMinBatch *int     `yaml:"oracle_min_batch"`
		OracleWindow   *int     `yaml:"oracle_window"`
	} `yaml:"dedup"`

	Parser struct {
		RequireAnswer   *bool   `yaml:"require_answer"`
		NoResultsMarker *string `yaml:"no_results_marker"`
	} `yaml:"parser"`

	Discovery struct {
		Seeds    []string `yaml:"seeds"`
		TagPages []string `yaml:"tag_pages"`
	} `yaml:"discovery"`

	Cleanup struct {
		Schedule *string `yaml:"schedule"`
		Age      *string `yaml:"age"`
		Cascade  *bool   `yaml:"cascade"`
	} `yaml:"cleanup"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return c.applyYAML(data)
}

func (c *Config) applyYAML(data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if fc.Topic != nil {
		c.Topic = *fc.Topic
	}
	if len(fc.Providers) > 0 {
		c.LLMProviders = fc.Providers
	}
	if fc.Dedup.Threshold != nil {
		c.Dedup.Threshold = *fc.Dedup.Threshold
	}
	if fc.Dedup.Oracle != nil {
		c.OracleEnabled = *fc.Dedup.Oracle
	}
	if fc.Dedup.OracleMaxBatch != nil {
		c.Dedup.OracleMaxBatch = *fc.Dedup.OracleMaxBatch
	}
	if fc.Dedup.OracleMinBatch != nil {
		c.Dedup.OracleMinBatch = *fc.Dedup.OracleMinBatch
	}
	if fc.Dedup.OracleWindow != nil {
		c.Dedup.OracleWindow = *fc.Dedup.OracleWindow
	}
	if fc.Parser.RequireAnswer != nil {
		c.ParsePolicy.RequireAnswer = *fc.Parser.RequireAnswer
	}
	if fc.Parser.NoResultsMarker != nil {
		c.ParsePolicy.NoResultsMarker = *fc.Parser.NoResultsMarker
	}
	if len(fc.Discovery.Seeds) > 0 {
		c.DiscoverySeeds = fc.Discovery.Seeds
	}
	if len(fc.Discovery.TagPages) > 0 {
		c.TagPages = fc.Discovery.TagPages
	}
	if fc.Cleanup.Schedule != nil {
		c.CleanupSchedule = *fc.Cleanup.Schedule
	}
	if fc.Cleanup.Age != nil {
		age, err := time.ParseDuration(*fc.Cleanup.Age)
		if err != nil {
			return fmt.Errorf("parse cleanup.age: %w", err)
		}
		c.CleanupAge = age
	}
	if fc.Cleanup.Cascade != nil {
		c.CascadeQAOnCleanup = *fc.Cleanup.Cascade
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.ListenAddr = getEnv("QAH_LISTEN_ADDR", c.ListenAddr)
	c.ServerURL = getEnv("QAH_SERVER_URL", c.ServerURL)

	c.Backend = getEnv("QAH_BACKEND", c.Backend)
	c.SQLitePath = getEnv("QAH_SQLITE_PATH", c.SQLitePath)
	c.PostgresDSN = getEnv("QAH_POSTGRES_DSN", c.PostgresDSN)

	c.SurrealDBURL = getEnv("SURREALDB_URL", c.SurrealDBURL)
	c.SurrealDBNamespace = getEnv("SURREALDB_NAMESPACE", c.SurrealDBNamespace)
	c.SurrealDBDatabase = getEnv("SURREALDB_DATABASE", c.SurrealDBDatabase)
	c.SurrealDBUser = getEnv("SURREALDB_USER", c.SurrealDBUser)
	c.SurrealDBPass = getEnv("SURREALDB_PASS", c.SurrealDBPass)
	c.SurrealDBAuthLevel = getEnv("SURREALDB_AUTH_LEVEL", c.SurrealDBAuthLevel)

	if v := os.Getenv("QAH_LLM_PROVIDERS"); v != "" {
		c.LLMProviders = splitList(v)
	}
	c.GroqAPIKey = getEnv("GROQ_API_KEY", c.GroqAPIKey)
	c.GroqModel = getEnv("QAH_GROQ_MODEL", c.GroqModel)
	c.GroqBaseURL = getEnv("QAH_GROQ_BASE_URL", c.GroqBaseURL)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIModel = getEnv("QAH_OPENAI_MODEL", c.OpenAIModel)
	c.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.AnthropicModel = getEnv("QAH_ANTHROPIC_MODEL", c.AnthropicModel)
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.GeminiModel = getEnv("QAH_GEMINI_MODEL", c.GeminiModel)
	c.HuggingFaceToken = getEnv("HUGGINGFACE_API_KEY", getEnv("HF_TOKEN", c.HuggingFaceToken))
	c.HuggingFaceModel = getEnv("QAH_HUGGINGFACE_MODEL", c.HuggingFaceModel)
	c.OllamaHost = getEnv("OLLAMA_HOST", c.OllamaHost)
	c.OllamaModel = getEnv("QAH_OLLAMA_MODEL", c.OllamaModel)
	c.BedrockModel = getEnv("QAH_BEDROCK_MODEL", c.BedrockModel)

	c.Topic = getEnv("QAH_TOPIC", c.Topic)
	c.UserAgent = getEnv("QAH_USER_AGENT", c.UserAgent)
	c.CleanupSchedule = getEnv("QAH_CLEANUP_SCHEDULE", c.CleanupSchedule)
	c.LogFile = getEnv("QAH_LOG_FILE", c.LogFile)
	c.LogFormat = getEnv("QAH_LOG_FORMAT", c.LogFormat)
	if v := os.Getenv("QAH_LOG_LEVEL"); v != "" {
		c.LogLevel = parseLogLevel(v)
	}

	if v := os.Getenv("QAH_PARSE_POLICY"); v != "" {
		switch strings.ToLower(v) {
		case "accept_open", "accept-open":
			c.ParsePolicy.RequireAnswer = parser.AcceptOpenQuestions.RequireAnswer
		case "skip_unanswered", "skip-unanswered":
			c.ParsePolicy.RequireAnswer = parser.SkipUnanswered.RequireAnswer
		default:
			return fmt.Errorf("QAH_PARSE_POLICY: unknown policy %q", v)
		}
	}

	var errs []error
	durationEnv(&errs, "QAH_LLM_TIMEOUT", &c.LLMTimeout)
	durationEnv(&errs, "QAH_SCRAPE_TIMEOUT", &c.ScrapeTimeout)
	durationEnv(&errs, "QAH_CLEANUP_AGE", &c.CleanupAge)
	intEnv(&errs, "QAH_MAX_CONTENT_CHARS", &c.MaxContentChars)
	intEnv(&errs, "QAH_MIN_CONTENT_CHARS", &c.MinContentChars)
	intEnv(&errs, "QAH_SCRAPE_RETRIES", &c.ScrapeRetries)
	intEnv(&errs, "QAH_QUEUE_SIZE", &c.QueueSize)
	intEnv(&errs, "QAH_WORKERS", &c.Workers)
	floatEnv(&errs, "QAH_SCRAPE_RPS", &c.ScrapeRPS)
	floatEnv(&errs, "QAH_DEDUP_THRESHOLD", &c.Dedup.Threshold)
	boolEnv(&errs, "QAH_DEDUP_ORACLE", &c.OracleEnabled)
	boolEnv(&errs, "QAH_CLEANUP_CASCADE", &c.CascadeQAOnCleanup)

	return errors.Join(errs...)
}

// Validate checks value ranges and the backend choice.
func (c Config) Validate() error {
	var errs []error

	if err := c.Dedup.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.Backend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("QAH_SQLITE_PATH is required for the sqlite backend"))
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("QAH_POSTGRES_DSN is required for the postgres backend"))
		}
	case BackendSurreal:
		if c.SurrealDBURL == "" {
			errs = append(errs, errors.New("SURREALDB_URL is required for the surrealdb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported backend %q", c.Backend))
	}

	if len(c.LLMProviders) == 0 {
		errs = append(errs, errors.New("at least one LLM provider is required"))
	}
	for _, p := range c.LLMProviders {
		switch p {
		case ProviderGroq, ProviderOpenAI, ProviderAnthropic, ProviderGemini,
			ProviderHuggingFace, ProviderOllama, ProviderBedrock:
		default:
			errs = append(errs, fmt.Errorf("unsupported LLM provider %q", p))
		}
	}

	if c.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("queue size must be positive, got %d", c.QueueSize))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.LLMTimeout <= 0 || c.ScrapeTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if !(c.ScrapeRPS > 0) {
		errs = append(errs, fmt.Errorf("scrape rate must be positive, got %v", c.ScrapeRPS))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(strings.ToLower(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationEnv(errs *[]error, key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}

func intEnv(errs *[]error, key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func floatEnv(errs *[]error, key string, dst *float64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = f
}

func boolEnv(errs *[]error, key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
