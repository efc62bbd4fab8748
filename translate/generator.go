// Package translate turns a natural-language question into a validated query:
// the Generator asks the language model for one candidate, and the
// Coordinator drives generate-then-validate attempts with feedback until a
// candidate is accepted or the attempt budget runs out.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/creditrisk/graphqa/llm"
	"github.com/creditrisk/graphqa/prompt"
	"github.com/creditrisk/graphqa/qaerr"
)

// DefaultGenerateTimeout bounds one generator call.
const DefaultGenerateTimeout = 30 * time.Second

const systemPrompt = "You translate questions about a credit-risk graph into Cypher. Reply with a single read-only query or the exact refusal you were given."

// ErrEmptyResponse is wrapped by generation errors for blank model output.
var ErrEmptyResponse = errors.New("empty response")

// Candidate is one generated query.
type Candidate struct {
	// Text is the normalised query text passed to validation.
	Text string
	// Raw is the model output before normalisation.
	Raw     string
	Attempt int
	Model   string
	Usage   llm.TokenUsage
}

// Generator obtains candidates from an llm.Provider.
type Generator struct {
	provider  llm.Provider
	timeout   time.Duration
	model     string
	maxTokens int
	tracker   llm.TokenTracker
	logger    *slog.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithGenerateTimeout sets the per-call timeout.
func WithGenerateTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithModel overrides the provider's model.
func WithModel(model string) GeneratorOption {
	return func(g *Generator) {
		g.model = model
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) GeneratorOption {
	return func(g *Generator) {
		g.maxTokens = n
	}
}

// WithTokenTracker records usage of every completion.
func WithTokenTracker(t llm.TokenTracker) GeneratorOption {
	return func(g *Generator) {
		g.tracker = t
	}
}

// WithGeneratorLogger sets the logger.
func WithGeneratorLogger(l *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = l
	}
}

// NewGenerator creates a Generator for provider.
func NewGenerator(provider llm.Provider, opts ...GeneratorOption) *Generator {
	g := &Generator{
		provider: provider,
		timeout:  DefaultGenerateTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate sends the rendered request at temperature 0 and returns the
// normalised candidate.
//
// Failures of the call, its own timeout included, are generation errors. When
// the caller's context is done the error is a timeout error instead, so the
// caller can tell its deadline from a slow model.
func (g *Generator) Generate(ctx context.Context, req prompt.Request) (Candidate, error) {
	const op = "Generator.Generate"

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	opts := []llm.CompletionOption{llm.WithTemperature(0)}
	if g.model != "" {
		opts = append(opts, llm.WithModel(g.model))
	}
	if g.maxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(g.maxTokens))
	}
	creq := llm.NewCompletionRequest([]llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: req.Text},
	}, opts...)

	start := time.Now()
	resp, err := g.provider.Complete(callCtx, creq)
	if err != nil {
		if terr := qaerr.FromContext(ctx, op); terr != nil {
			return Candidate{}, terr
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("no response within %s: %w", g.timeout, err)
		}
		g.logger.WarnContext(ctx, "query generation failed", "attempt", req.Attempt, "error", err)
		return Candidate{}, qaerr.NewGenerationError(op, err).WithContext(map[string]any{"attempt": req.Attempt})
	}

	if g.tracker != nil {
		g.tracker.Add(resp.Model, resp.Usage)
	}
	if resp.Truncated() {
		g.logger.WarnContext(ctx, "generation hit the token limit", "attempt", req.Attempt, "max_tokens", g.maxTokens)
	}

	c := Candidate{
		Raw:     resp.Content,
		Text:    Normalize(resp.Content),
		Attempt: req.Attempt,
		Model:   resp.Model,
		Usage:   resp.Usage,
	}
	g.logger.DebugContext(ctx, "query generated",
		"attempt", req.Attempt,
		"duration", time.Since(start),
		"tokens", resp.Usage.TotalTokens,
	)
	if c.Text == "" {
		return c, qaerr.NewGenerationError(op, ErrEmptyResponse).WithContext(map[string]any{"attempt": req.Attempt})
	}
	return c, nil
}

// Normalize strips a Markdown code fence and a leading language tag from
// model output.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && isLanguageTag(s[:nl]) {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	return stripLanguageTag(s)
}

// stripLanguageTag drops a leading "cypher" word, on its own line or followed
// by the query on the same line. A CYPHER prefix carrying a version or
// options ("CYPHER 5 MATCH ...") is part of the query and stays.
func stripLanguageTag(s string) string {
	if len(s) < len("cypher") || !strings.EqualFold(s[:len("cypher")], "cypher") {
		return s
	}
	rest := s[len("cypher"):]
	if rest == "" {
		return ""
	}
	r, _ := utf8.DecodeRuneInString(rest)
	if !unicode.IsSpace(r) {
		return s
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ""
	}
	if next := fields[0]; strings.Contains(next, "=") || (next[0] >= '0' && next[0] <= '9') {
		return s
	}
	return strings.TrimSpace(rest)
}

func isLanguageTag(line string) bool {
	line = strings.TrimSpace(line)
	if len(line) > 16 {
		return false
	}
	for _, r := range line {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}
