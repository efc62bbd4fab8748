// Package prompt renders the generation request sent to the language model:
// a fixed instruction template filled with the graph schema, the user's
// question and, on retries, the reasons the previous query was rejected.
package prompt

import (
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/creditrisk/graphqa/schema"
)

// DefaultSentinel is the exact reply the model is instructed to give when the
// question cannot be answered from the schema.
const DefaultSentinel = "Not possible"

// DefaultTemplate is the instruction template. It receives the fields of
// Request (Schema, Question, Feedback, Sentinel).
const DefaultTemplate = `You generate Cypher queries for the Neo4j graph database.
Use only the labels, properties and relationship types defined in the schema.
Do not invent anything.
Only read from the graph: never create, merge, set, remove or delete data and never call procedures.
Reply with the Cypher query only, without explanation.
If the question cannot be answered with the given schema, respond with '{{.Sentinel}}'.

Schema:
{{.Schema}}
Question:
{{.Question}}
{{- if .Feedback}}

Your previous query was rejected:
{{- range .Feedback}}
- {{.}}
{{- end}}
Fix these problems, or respond with '{{.Sentinel}}' if the schema cannot answer the question.
{{- end}}

Cypher Query:
`

// Request is one rendered generation request. It is a value: building a new
// request never changes an earlier one.
type Request struct {
	Template string
	Schema   string
	Question string
	Feedback []string
	Sentinel string

	// Text is the full prompt sent to the model.
	Text string

	// Attempt is the 1-based attempt number, set by the caller driving retries.
	Attempt int
}

// Builder renders requests from a parsed template.
type Builder struct {
	raw      string
	tmpl     *template.Template
	fallback *template.Template
	sentinel string
	logger   *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithTemplate replaces the instruction template.
func WithTemplate(text string) Option {
	return func(b *Builder) {
		b.raw = text
	}
}

// WithSentinel replaces the "Not possible" reply.
func WithSentinel(s string) Option {
	return func(b *Builder) {
		if strings.TrimSpace(s) != "" {
			b.sentinel = s
		}
	}
}

// WithLogger sets the logger used to report template failures.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

var defaultTemplate = template.Must(template.New("prompt").Option("missingkey=error").Parse(DefaultTemplate))

// New parses the template and checks it renders with and without feedback.
func New(opts ...Option) (*Builder, error) {
	b := &Builder{
		raw:      DefaultTemplate,
		sentinel: DefaultSentinel,
		fallback: defaultTemplate,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(b.raw)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	for _, feedback := range [][]string{nil, {"sample"}} {
		var sb strings.Builder
		if err := tmpl.Execute(&sb, Request{Schema: "s", Question: "q", Feedback: feedback, Sentinel: b.sentinel}); err != nil {
			return nil, fmt.Errorf("render prompt template: %w", err)
		}
	}
	b.tmpl = tmpl
	return b, nil
}

// Default returns a Builder with the default template and sentinel.
func Default() *Builder {
	b, err := New()
	if err != nil {
		panic("prompt: default template: " + err.Error())
	}
	return b
}

// Sentinel returns the configured unanswerable reply.
func (b *Builder) Sentinel() string {
	return b.sentinel
}

// Build renders the request for question against s. The question is inserted
// verbatim. Feedback lists the reasons the previous attempt was rejected; with
// none the feedback block is omitted. Identical inputs yield identical text.
func (b *Builder) Build(s *schema.GraphSchema, question string, feedback []string) Request {
	req := Request{
		Template: b.raw,
		Schema:   s.Render(),
		Question: question,
		Sentinel: b.sentinel,
	}
	if len(feedback) > 0 {
		req.Feedback = append([]string(nil), feedback...)
	}

	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, req); err != nil {
		// The default template renders for any request.
		b.logger.Warn("prompt template failed, using the default", "error", err)
		sb.Reset()
		if err := b.fallback.Execute(&sb, req); err != nil {
			b.logger.Error("default prompt template failed", "error", err)
		}
	}
	req.Text = sb.String()
	return req
}
