// Package config loads graphqa.yaml configuration files and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/creditrisk/graphqa/graphstore"
	"github.com/creditrisk/graphqa/llm"
	"github.com/creditrisk/graphqa/prompt"
	"github.com/creditrisk/graphqa/qaerr"
	"github.com/creditrisk/graphqa/translate"
)

// FileNames are the names Load looks for inside a directory.
var FileNames = []string{"graphqa.yaml", "graphqa.yml"}

// Config represents a graphqa.yaml configuration file.
type Config struct {
	Neo4j    Neo4jConfig    `yaml:"neo4j"`
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Redis    RedisConfig    `yaml:"redis"`
	Serve    ServeConfig    `yaml:"serve"`
	Log      LogConfig      `yaml:"log"`
}

// Neo4jConfig defines the graph store connection.
type Neo4jConfig struct {
	URI      string `yaml:"uri,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`

	// PoolSize bounds open connections.
	// Default: pipeline concurrency
	PoolSize int `yaml:"pool_size,omitempty"`

	// AcquisitionTimeout is how long a query waits for a pooled connection.
	// Format: Go duration string (e.g., "30s")
	AcquisitionTimeout string `yaml:"acquisition_timeout,omitempty"`

	// QueryTimeout bounds each query.
	// Format: Go duration string (e.g., "30s")
	QueryTimeout string `yaml:"query_timeout,omitempty"`
}

// LLMConfig defines the generation endpoint.
type LLMConfig struct {
	// Provider is openai, ollama, lmstudio or custom.
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`

	// Timeout bounds one generation call.
	// Format: Go duration string (e.g., "30s")
	Timeout string `yaml:"timeout,omitempty"`

	// MaxTokens caps the completion length. Zero leaves it to the endpoint.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// MaxRetries bounds HTTP retries of rate-limited responses.
	MaxRetries int `yaml:"max_retries,omitempty"`
}

// PipelineConfig tunes question answering.
type PipelineConfig struct {
	// MaxAttempts bounds generator calls per question.
	// Default: 3
	MaxAttempts int `yaml:"max_attempts,omitempty"`

	// Parameterize lifts literals in generated queries into parameters.
	// Default: true
	Parameterize *bool `yaml:"parameterize,omitempty"`

	// Sentinel is the reply meaning "not answerable in this schema".
	// Default: "Not possible"
	Sentinel string `yaml:"sentinel,omitempty"`

	// Concurrency bounds AskBatch and the queue worker.
	// Default: 4
	Concurrency int `yaml:"concurrency,omitempty"`

	// RequestTimeout bounds one question end to end. Empty means no bound
	// beyond the caller's context.
	// Format: Go duration string (e.g., "2m")
	RequestTimeout string `yaml:"request_timeout,omitempty"`
}

// RedisConfig defines the question queue connection.
type RedisConfig struct {
	URL string `yaml:"url,omitempty"`
}

// ServeConfig defines the gRPC listener.
type ServeConfig struct {
	// Address is the listen address.
	// Default: ":50051"
	Address string `yaml:"address,omitempty"`
}

// LogConfig defines logging output.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level,omitempty"`
	// Format is text or json.
	Format string `yaml:"format,omitempty"`
}

// Defaults.
const (
	DefaultSentinel        = prompt.DefaultSentinel
	DefaultConcurrency     = 4
	DefaultServeAddress    = ":50051"
	DefaultRedisURL        = "redis://localhost:6379"
	DefaultLLMProvider     = "openai"
	DefaultLLMModel        = "gpt-4o-mini"
	DefaultGenerateTimeout = translate.DefaultGenerateTimeout
)

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{Provider: DefaultLLMProvider, Model: DefaultLLMModel},
	}
}

// Load reads and parses a configuration file. If path is a directory it
// looks for graphqa.yaml or graphqa.yml in it. Environment overrides are
// applied after parsing.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	configPath := path
	if info.IsDir() {
		configPath = ""
		for _, name := range FileNames {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
		if configPath == "" {
			return nil, fmt.Errorf("no %s found in %s", strings.Join(FileNames, " or "), path)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// LoadOrDefault loads path, or returns the defaults with environment
// overrides when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		cfg.ApplyEnv(os.LookupEnv)
		return cfg, nil
	}
	return Load(path)
}

// ApplyEnv overrides fields from environment variables:
//
//	NEO4J_HOST, NEO4J_USER, NEO4J_PASSWORD, NEO4J_DB
//	OPENAI_API_KEY, GRAPHQA_LLM_BASE_URL, GRAPHQA_LLM_MODEL
//	REDIS_URL
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Neo4j.URI, "NEO4J_HOST")
	set(&c.Neo4j.Username, "NEO4J_USER")
	set(&c.Neo4j.Password, "NEO4J_PASSWORD")
	set(&c.Neo4j.Database, "NEO4J_DB")
	set(&c.LLM.APIKey, "OPENAI_API_KEY")
	set(&c.LLM.BaseURL, "GRAPHQA_LLM_BASE_URL")
	set(&c.LLM.Model, "GRAPHQA_LLM_MODEL")
	set(&c.Redis.URL, "REDIS_URL")
}

// Validate reports every invalid field. The error matches
// qaerr.ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error

	if c.Neo4j.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("neo4j.pool_size must be non-negative, got %d", c.Neo4j.PoolSize))
	}
	errs = append(errs,
		checkDuration("neo4j.acquisition_timeout", c.Neo4j.AcquisitionTimeout),
		checkDuration("neo4j.query_timeout", c.Neo4j.QueryTimeout),
		checkDuration("llm.timeout", c.LLM.Timeout),
		checkDuration("pipeline.request_timeout", c.Pipeline.RequestTimeout),
	)
	if c.LLM.Provider == "" {
		errs = append(errs, errors.New("llm.provider is required"))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if c.LLM.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("llm.max_tokens must be non-negative, got %d", c.LLM.MaxTokens))
	}
	if c.Pipeline.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_attempts must be non-negative, got %d", c.Pipeline.MaxAttempts))
	}
	if c.Pipeline.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("pipeline.concurrency must be non-negative, got %d", c.Pipeline.Concurrency))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	if err := errors.Join(errs...); err != nil {
		return qaerr.NewConfigurationError("config.Validate", err)
	}
	return nil
}

func checkDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must be non-negative, got %s", field, value)
	}
	return nil
}

// parseDuration returns value as a duration, or def when empty or invalid.
func parseDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// GetConcurrency returns the configured concurrency or the default value.
func (p PipelineConfig) GetConcurrency() int {
	if p.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return p.Concurrency
}

// GetMaxAttempts returns the configured attempt budget or the default value.
func (p PipelineConfig) GetMaxAttempts() int {
	if p.MaxAttempts <= 0 {
		return translate.DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// GetSentinel returns the configured sentinel or the default value.
func (p PipelineConfig) GetSentinel() string {
	if p.Sentinel == "" {
		return DefaultSentinel
	}
	return p.Sentinel
}

// GetParameterize reports whether literals are lifted into parameters.
func (p PipelineConfig) GetParameterize() bool {
	return p.Parameterize == nil || *p.Parameterize
}

// GetRequestTimeout returns the per-question bound, zero for none.
func (p PipelineConfig) GetRequestTimeout() time.Duration {
	return parseDuration(p.RequestTimeout, 0)
}

// GetTimeout returns the generation timeout or the default value.
func (l LLMConfig) GetTimeout() time.Duration {
	return parseDuration(l.Timeout, DefaultGenerateTimeout)
}

// GetAddress returns the listen address or the default value.
func (s ServeConfig) GetAddress() string {
	if s.Address == "" {
		return DefaultServeAddress
	}
	return s.Address
}

// GetURL returns the Redis URL or the default value.
func (r RedisConfig) GetURL() string {
	if r.URL == "" {
		return DefaultRedisURL
	}
	return r.URL
}

// Store returns the graph store configuration. The pool defaults to the
// pipeline concurrency.
func (c *Config) Store() graphstore.Config {
	pool := c.Neo4j.PoolSize
	if pool <= 0 {
		pool = c.Pipeline.GetConcurrency()
	}
	return graphstore.Config{
		URI:                c.Neo4j.URI,
		Username:           c.Neo4j.Username,
		Password:           c.Neo4j.Password,
		Database:           c.Neo4j.Database,
		PoolSize:           pool,
		AcquisitionTimeout: parseDuration(c.Neo4j.AcquisitionTimeout, graphstore.DefaultAcquisitionTimeout),
		QueryTimeout:       parseDuration(c.Neo4j.QueryTimeout, graphstore.DefaultQueryTimeout),
	}
}

// Provider returns the language model provider configuration.
func (c *Config) Provider() llm.Config {
	return llm.Config{
		Provider:   c.LLM.Provider,
		Model:      c.LLM.Model,
		BaseURL:    c.LLM.BaseURL,
		APIKey:     c.LLM.APIKey,
		MaxRetries: c.LLM.MaxRetries,
	}
}

// Logger builds a logger writing to w at the configured level and format.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
	}
}
