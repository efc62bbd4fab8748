package queue

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/creditrisk/graphqa/domain"
)

// Job is one question submitted for asynchronous answering.
type Job struct {
	// ID correlates the job with its reply channel.
	ID string `json:"id"`

	// Question is the natural-language question.
	Question string `json:"question"`

	// TraceID is the distributed tracing trace ID for observability
	TraceID string `json:"trace_id,omitempty"`

	// SpanID is the distributed tracing span ID for observability
	SpanID string `json:"span_id,omitempty"`

	// SubmittedAt is the Unix timestamp in milliseconds when the job was submitted
	SubmittedAt int64 `json:"submitted_at"`
}

// Reply is the outcome of a Job, published on the job's reply channel.
type Reply struct {
	// ID correlates this reply with its job.
	ID string `json:"id"`

	// Status is the answer status: answered, unanswerable, exhausted or failed.
	Status string `json:"status"`

	// Query is the executed Cypher text, empty unless answered.
	Query string `json:"query,omitempty"`

	// Params are the query parameters.
	Params map[string]any `json:"params,omitempty"`

	// Entities are the mapped results.
	Entities []domain.Encoded `json:"entities,omitempty"`

	// MappingErrors describe records that could not be mapped.
	MappingErrors []string `json:"mapping_errors,omitempty"`

	// Attempts is the number of generator calls made.
	Attempts int `json:"attempts"`

	// Error is the failure message. Empty if the question was answered.
	Error string `json:"error,omitempty"`

	// ErrorKind is the error kind, such as "timeout" or "execution".
	ErrorKind string `json:"error_kind,omitempty"`

	// WorkerID identifies the worker that processed the job.
	WorkerID string `json:"worker_id"`

	// StartedAt is the Unix timestamp in milliseconds when processing started
	StartedAt int64 `json:"started_at"`

	// CompletedAt is the Unix timestamp in milliseconds when processing completed
	CompletedAt int64 `json:"completed_at"`
}

// IsValid checks that the Job has its required fields.
func (j *Job) IsValid() error {
	if j.ID == "" {
		return fmt.Errorf("id is required")
	}
	if j.Question == "" {
		return fmt.Errorf("question is required")
	}
	if j.SubmittedAt <= 0 {
		return fmt.Errorf("submitted_at must be positive, got %d", j.SubmittedAt)
	}
	return nil
}

// Age returns the duration since this job was submitted.
func (j *Job) Age() time.Duration {
	if j.SubmittedAt <= 0 {
		return 0
	}
	return time.Duration(time.Now().UnixMilli()-j.SubmittedAt) * time.Millisecond
}

// ParentContext returns ctx carrying the submitter's span as a remote
// parent, or ctx unchanged when the job has no valid trace IDs.
func (j *Job) ParentContext(ctx context.Context) context.Context {
	tid, err := trace.TraceIDFromHex(j.TraceID)
	if err != nil {
		return ctx
	}
	sid, err := trace.SpanIDFromHex(j.SpanID)
	if err != nil {
		return ctx
	}
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithRemoteSpanContext(ctx, parent)
}

// HasError returns true if the reply carries a failure.
func (r *Reply) HasError() bool {
	return r.Error != ""
}

// Duration returns the wall-clock time the worker spent on the job.
func (r *Reply) Duration() time.Duration {
	if r.StartedAt <= 0 || r.CompletedAt <= 0 {
		return 0
	}
	return time.Duration(r.CompletedAt-r.StartedAt) * time.Millisecond
}

// Decode returns the typed entities of the reply.
func (r *Reply) Decode() ([]domain.Entity, error) {
	return domain.Decode(r.Entities)
}
