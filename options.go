package graphqa

import (
	"log/slog"
	"time"

	"github.com/creditrisk/graphqa/llm"
	"github.com/creditrisk/graphqa/prompt"
	"github.com/creditrisk/graphqa/telemetry"
	"github.com/creditrisk/graphqa/translate"
)

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	logger          *slog.Logger
	telemetry       *telemetry.Telemetry
	tracker         llm.TokenTracker
	template        string
	sentinel        string
	parameterize    bool
	maxAttempts     int
	concurrency     int
	requestTimeout  time.Duration
	generateTimeout time.Duration
	queryTimeout    time.Duration
	model           string
	maxTokens       int
}

func defaultSessionConfig() *sessionConfig {
	return &sessionConfig{
		logger:          slog.Default(),
		tracker:         llm.NewTokenTracker(),
		sentinel:        prompt.DefaultSentinel,
		parameterize:    true,
		maxAttempts:     translate.DefaultMaxAttempts,
		concurrency:     4,
		generateTimeout: translate.DefaultGenerateTimeout,
	}
}

// WithLogger sets the logger. Each question logs with a question_id
// attribute.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(c *sessionConfig) {
		c.logger = logger
	}
}

// WithTelemetry enables tracing and metrics.
func WithTelemetry(t *telemetry.Telemetry) SessionOption {
	return func(c *sessionConfig) {
		c.telemetry = t
	}
}

// WithTokenTracker sets the tracker receiving language model token usage.
func WithTokenTracker(t llm.TokenTracker) SessionOption {
	return func(c *sessionConfig) {
		c.tracker = t
	}
}

// WithPromptTemplate replaces the instruction template.
func WithPromptTemplate(text string) SessionOption {
	return func(c *sessionConfig) {
		c.template = text
	}
}

// WithSentinel sets the reply meaning "not answerable in this schema". The
// prompt and the validator share it.
func WithSentinel(s string) SessionOption {
	return func(c *sessionConfig) {
		if s != "" {
			c.sentinel = s
		}
	}
}

// WithParameterize controls lifting of literals in generated queries into
// bound parameters. Enabled by default.
func WithParameterize(enabled bool) SessionOption {
	return func(c *sessionConfig) {
		c.parameterize = enabled
	}
}

// WithMaxAttempts sets the generator call budget per question. Values below
// one are ignored.
func WithMaxAttempts(n int) SessionOption {
	return func(c *sessionConfig) {
		if n >= 1 {
			c.maxAttempts = n
		}
	}
}

// WithConcurrency bounds the questions AskBatch answers in parallel.
func WithConcurrency(n int) SessionOption {
	return func(c *sessionConfig) {
		if n >= 1 {
			c.concurrency = n
		}
	}
}

// WithRequestTimeout bounds each question end to end.
func WithRequestTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.requestTimeout = d
	}
}

// WithGenerateTimeout bounds each language model call.
func WithGenerateTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		if d > 0 {
			c.generateTimeout = d
		}
	}
}

// WithQueryTimeout bounds each query execution.
func WithQueryTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.queryTimeout = d
	}
}

// WithModel overrides the provider's default model.
func WithModel(model string) SessionOption {
	return func(c *sessionConfig) {
		c.model = model
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) SessionOption {
	return func(c *sessionConfig) {
		c.maxTokens = n
	}
}
