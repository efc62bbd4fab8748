// Package telemetry records OpenTelemetry spans and metrics for the
// question-answering pipeline: one span per question, one event and
// measurement per translation attempt, and a span per query execution.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/creditrisk/graphqa/cypher"
	"github.com/creditrisk/graphqa/graphstore"
	"github.com/creditrisk/graphqa/qaerr"
	"github.com/creditrisk/graphqa/translate"
)

// InstrumentationName names the tracer and meter.
const InstrumentationName = "github.com/creditrisk/graphqa"

// instruments are created once per Telemetry.
type instruments struct {
	questions         metric.Int64Counter
	questionDuration  metric.Float64Histogram
	attempts          metric.Int64Counter
	attemptDuration   metric.Float64Histogram
	violations        metric.Int64Counter
	tokens            metric.Int64Counter
	executionDuration metric.Float64Histogram
}

// Telemetry holds the tracer and metric instruments. A nil *Telemetry is
// valid and records nothing.
type Telemetry struct {
	tracer trace.Tracer
	m      *instruments
}

// New creates Telemetry from the given providers.
func New(tp trace.TracerProvider, mp metric.MeterProvider) (*Telemetry, error) {
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}

	meter := mp.Meter(InstrumentationName)
	m := &instruments{}
	var err error

	if m.questions, err = meter.Int64Counter(
		"graphqa.questions",
		metric.WithDescription("Questions answered, by final status"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("create questions counter: %w", err)
	}
	if m.questionDuration, err = meter.Float64Histogram(
		"graphqa.question.duration",
		metric.WithDescription("End-to-end question latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("create question duration histogram: %w", err)
	}
	if m.attempts, err = meter.Int64Counter(
		"graphqa.attempts",
		metric.WithDescription("Translation attempts, by outcome"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("create attempts counter: %w", err)
	}
	if m.attemptDuration, err = meter.Float64Histogram(
		"graphqa.attempt.duration",
		metric.WithDescription("Generate-and-validate latency per attempt in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("create attempt duration histogram: %w", err)
	}
	if m.violations, err = meter.Int64Counter(
		"graphqa.violations",
		metric.WithDescription("Validator rejections, by violation kind"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("create violations counter: %w", err)
	}
	if m.tokens, err = meter.Int64Counter(
		"graphqa.tokens",
		metric.WithDescription("Language model tokens consumed"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("create tokens counter: %w", err)
	}
	if m.executionDuration, err = meter.Float64Histogram(
		"graphqa.execution.duration",
		metric.WithDescription("Query execution latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("create execution duration histogram: %w", err)
	}

	return &Telemetry{tracer: tp.Tracer(InstrumentationName), m: m}, nil
}

// NewTracerProvider returns an SDK tracer provider exporting to exporter
// synchronously, tagged with serviceName.
func NewTracerProvider(serviceName string, exporter sdktrace.SpanExporter, logger *slog.Logger) *sdktrace.TracerProvider {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		logger.Warn("failed to create resource, using default", "error", err)
		res = resource.Default()
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
}

// StartQuestion starts the span covering one question.
func (t *Telemetry) StartQuestion(ctx context.Context, id, question string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "graphqa.ask", trace.WithAttributes(
		attribute.String("question.id", id),
		attribute.Int("question.length", len(question)),
	))
}

// EndQuestion records the outcome of a question and ends its span.
func (t *Telemetry) EndQuestion(ctx context.Context, span trace.Span, status string, attempts int, d time.Duration, err error) {
	if t == nil {
		return
	}
	span.SetAttributes(
		attribute.String("question.status", status),
		attribute.Int("question.attempts", attempts),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, status)
	}
	span.End()

	opts := metric.WithAttributes(attribute.String("status", status))
	t.m.questions.Add(ctx, 1, opts)
	t.m.questionDuration.Record(ctx, float64(d.Milliseconds()), opts)
}

// Observer returns a translate.Observer that adds an event to the current
// span and records attempt metrics.
func (t *Telemetry) Observer() translate.Observer {
	return func(ctx context.Context, a translate.Attempt) {
		if t == nil {
			return
		}
		outcome := "error"
		if a.Verdict != nil {
			outcome = a.Verdict.Kind.String()
		}

		attrs := []attribute.KeyValue{
			attribute.Int("attempt", a.Number),
			attribute.String("outcome", outcome),
		}
		if a.Err != nil {
			attrs = append(attrs, attribute.String("error", a.Err.Error()))
		}
		if a.Verdict != nil && len(a.Verdict.Violations) > 0 {
			attrs = append(attrs, attribute.StringSlice("violations", a.Verdict.Feedback()))
		}
		trace.SpanFromContext(ctx).AddEvent("graphqa.attempt", trace.WithAttributes(attrs...))

		opts := metric.WithAttributes(attribute.String("outcome", outcome))
		t.m.attempts.Add(ctx, 1, opts)
		t.m.attemptDuration.Record(ctx, float64(a.Duration.Milliseconds()), opts)
		if a.Candidate.Usage.TotalTokens > 0 {
			t.m.tokens.Add(ctx, int64(a.Candidate.Usage.TotalTokens),
				metric.WithAttributes(attribute.String("model", a.Candidate.Model)))
		}
		if a.Verdict != nil {
			for _, v := range a.Verdict.Violations {
				t.m.violations.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(v.Kind))))
			}
		}
	}
}

// Runner wraps r so every run gets a span and a latency measurement.
func (t *Telemetry) Runner(r graphstore.Runner) graphstore.Runner {
	if t == nil {
		return r
	}
	return graphstore.RunnerFunc(func(ctx context.Context, q cypher.Query) (*graphstore.Result, error) {
		ctx, span := t.tracer.Start(ctx, "graphqa.execute", trace.WithAttributes(
			attribute.String("db.system", "neo4j"),
			attribute.String("db.statement", q.Text),
			attribute.Int("db.params", len(q.Params)),
		))
		defer span.End()

		start := time.Now()
		res, err := r.Run(ctx, q)
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("db.records", res.Len()))
		}
		t.m.executionDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("outcome", outcome)))
		return res, err
	})
}

// StatusOf names the class of err for span and metric attributes.
func StatusOf(err error) string {
	if err == nil {
		return "ok"
	}
	return string(qaerr.ClassOf(err))
}
