package tmrisk

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/tmrisk/llm"
)

// Failure policies for issues whose analysis fails.
const (
	PolicyDegrade = "degrade" // mark the issue unavailable and continue
	PolicyAbort   = "abort"   // fail the whole assessment
)

// Config holds all configuration for the assessment engine.
type Config struct {
	// DBPath is the full path to the embedding cache database.
	// If empty, defaults to ~/.tmrisk/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.tmrisk/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// DisableCache skips the embedding cache; every start re-embeds the
	// knowledge sections.
	DisableCache bool `json:"disable_cache" yaml:"disable_cache"`

	// LLM providers
	Chat      LLMConfig `json:"chat" yaml:"chat"`
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`

	// Embedding dimensions (must match model)
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`

	// KnowledgePath points to a JSON sections file. Empty uses the
	// built-in TMEP sections.
	KnowledgePath string `json:"knowledge_path" yaml:"knowledge_path"`

	// Analysis
	RetrievalK           int     `json:"retrieval_k" yaml:"retrieval_k"`
	Temperature          float64 `json:"temperature" yaml:"temperature"`
	GenerationTimeoutSec int     `json:"generation_timeout_sec" yaml:"generation_timeout_sec"`

	// Orchestration
	IssueConcurrency int    `json:"issue_concurrency" yaml:"issue_concurrency"` // 1 = sequential
	IssueRetries     int    `json:"issue_retries" yaml:"issue_retries"`         // extra attempts after a generation failure
	RetryBackoffMs   int    `json:"retry_backoff_ms" yaml:"retry_backoff_ms"`
	FailurePolicy    string `json:"failure_policy" yaml:"failure_policy"` // degrade, abort

	LogLevel string `json:"log_level" yaml:"log_level"` // debug, info, warn, error
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig = llm.Config

// DefaultConfig returns a Config with sensible defaults for local inference.
// Database is stored in ~/.tmrisk/tmrisk.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:     "tmrisk",
		StorageDir: "home",
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		EmbeddingDim:         768,
		RetrievalK:           3,
		Temperature:          0.1,
		GenerationTimeoutSec: 60,
		IssueConcurrency:     1,
		IssueRetries:         2,
		RetryBackoffMs:       500,
		FailurePolicy:        PolicyDegrade,
		LogLevel:             "info",
	}
}

// LoadConfig reads a YAML or JSON config file (by extension) over the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("%w: config format %q", ErrInvalidConfig, filepath.Ext(path))
	}
	if err != nil {
		return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from TMRISK_* environment variables and fills
// missing API keys from the providers' well-known variables.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"TMRISK_DB_PATH":        &c.DBPath,
		"TMRISK_KNOWLEDGE_PATH": &c.KnowledgePath,
		"TMRISK_CHAT_PROVIDER":  &c.Chat.Provider,
		"TMRISK_CHAT_MODEL":     &c.Chat.Model,
		"TMRISK_CHAT_BASE_URL":  &c.Chat.BaseURL,
		"TMRISK_CHAT_API_KEY":   &c.Chat.APIKey,
		"TMRISK_EMBED_PROVIDER": &c.Embedding.Provider,
		"TMRISK_EMBED_MODEL":    &c.Embedding.Model,
		"TMRISK_EMBED_BASE_URL": &c.Embedding.BaseURL,
		"TMRISK_EMBED_API_KEY":  &c.Embedding.APIKey,
		"TMRISK_FAILURE_POLICY": &c.FailurePolicy,
		"TMRISK_LOG_LEVEL":      &c.LogLevel,
	}
	for k, p := range strs {
		if v := os.Getenv(k); v != "" {
			*p = v
		}
	}

	ints := map[string]*int{
		"TMRISK_EMBEDDING_DIM":      &c.EmbeddingDim,
		"TMRISK_RETRIEVAL_K":        &c.RetrievalK,
		"TMRISK_ISSUE_CONCURRENCY":  &c.IssueConcurrency,
		"TMRISK_ISSUE_RETRIES":      &c.IssueRetries,
		"TMRISK_GENERATION_TIMEOUT": &c.GenerationTimeoutSec,
	}
	for k, p := range ints {
		v := os.Getenv(k)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, k, v)
		}
		*p = n
	}

	if v := os.Getenv("TMRISK_DISABLE_CACHE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: TMRISK_DISABLE_CACHE=%q", ErrInvalidConfig, v)
		}
		c.DisableCache = b
	}

	// Fallback: check well-known provider env vars for API keys.
	for _, lc := range []*LLMConfig{&c.Chat, &c.Embedding} {
		if lc.APIKey != "" {
			continue
		}
		switch lc.Provider {
		case "openai":
			lc.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			lc.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	return nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	var problems []string
	if c.EmbeddingDim <= 0 {
		problems = append(problems, "embedding_dim must be positive")
	}
	if c.RetrievalK < 0 {
		problems = append(problems, "retrieval_k must not be negative")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		problems = append(problems, "temperature must be within [0, 2]")
	}
	if c.GenerationTimeoutSec < 0 {
		problems = append(problems, "generation_timeout_sec must not be negative")
	}
	if c.IssueConcurrency < 0 || c.IssueRetries < 0 || c.RetryBackoffMs < 0 {
		problems = append(problems, "issue_concurrency, issue_retries and retry_backoff_ms must not be negative")
	}
	switch c.FailurePolicy {
	case "", PolicyDegrade, PolicyAbort:
	default:
		problems = append(problems, fmt.Sprintf("unknown failure_policy %q", c.FailurePolicy))
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// SlogLevel returns the configured log level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	l, err := parseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log_level %q", s)
}

func (c Config) generationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSec) * time.Second
}

func (c Config) retryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

func (c Config) failurePolicy() string {
	if c.FailurePolicy == "" {
		return PolicyDegrade
	}
	return c.FailurePolicy
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "tmrisk"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".tmrisk", name+".db")
	}
}
