package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/creditrisk/graphqa/cypher"
	"github.com/creditrisk/graphqa/graphstore"
	"github.com/creditrisk/graphqa/llm"
	"github.com/creditrisk/graphqa/qaerr"
	"github.com/creditrisk/graphqa/translate"
	"github.com/creditrisk/graphqa/validator"
)

func newTestTelemetry(t *testing.T) (*Telemetry, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	tel, err := New(tp, mp)
	require.NoError(t, err)
	return tel, rec, reader
}

// sumOf returns the total of an Int64 sum metric for points carrying attr.
func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string, attr attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attr.Key); ok && v.Emit() == attr.Value.Emit() {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestQuestionSpan(t *testing.T) {
	tel, rec, reader := newTestTelemetry(t)

	ctx, span := tel.StartQuestion(context.Background(), "q-1", "Which loans are Stage 3?")
	tel.Observer()(ctx, translate.Attempt{
		Number:    1,
		Candidate: translate.Candidate{Model: "gpt-4o-mini", Usage: llm.TokenUsage{TotalTokens: 42}},
		Verdict: &validator.Verdict{Kind: validator.Invalid, Violations: []validator.Violation{
			{Kind: validator.ViolationLabel, Message: "unknown label Borrower"},
		}},
		Duration: 5 * time.Millisecond,
	})
	tel.Observer()(ctx, translate.Attempt{
		Number:   2,
		Verdict:  &validator.Verdict{Kind: validator.Valid},
		Duration: 3 * time.Millisecond,
	})
	tel.EndQuestion(ctx, span, "answered", 2, 10*time.Millisecond, nil)

	ended := rec.Ended()
	require.Len(t, ended, 1)
	s := ended[0]
	assert.Equal(t, "graphqa.ask", s.Name())
	assert.Equal(t, codes.Ok, s.Status().Code)
	require.Len(t, s.Events(), 2)
	assert.Equal(t, "graphqa.attempt", s.Events()[0].Name)
	assert.Contains(t, s.Attributes(), attribute.String("question.status", "answered"))
	assert.Contains(t, s.Attributes(), attribute.Int("question.attempts", 2))

	assert.Equal(t, int64(1), sumOf(t, reader, "graphqa.attempts", attribute.String("outcome", "invalid")))
	assert.Equal(t, int64(1), sumOf(t, reader, "graphqa.attempts", attribute.String("outcome", "valid")))
	assert.Equal(t, int64(1), sumOf(t, reader, "graphqa.violations", attribute.String("kind", "label")))
	assert.Equal(t, int64(42), sumOf(t, reader, "graphqa.tokens", attribute.String("model", "gpt-4o-mini")))
	assert.Equal(t, int64(1), sumOf(t, reader, "graphqa.questions", attribute.String("status", "answered")))
}

func TestQuestionSpan_Error(t *testing.T) {
	tel, rec, _ := newTestTelemetry(t)

	ctx, span := tel.StartQuestion(context.Background(), "q-2", "?")
	tel.Observer()(ctx, translate.Attempt{Number: 1, Err: errors.New("provider down")})
	tel.EndQuestion(ctx, span, "failed", 1, time.Millisecond, errors.New("provider down"))

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Contains(t, ended[0].Events()[0].Attributes, attribute.String("outcome", "error"))
}

func TestRunner(t *testing.T) {
	tel, rec, _ := newTestTelemetry(t)

	inner := graphstore.RunnerFunc(func(ctx context.Context, q cypher.Query) (*graphstore.Result, error) {
		return &graphstore.Result{Keys: []string{"c"}, Records: []graphstore.Record{{"c": 1}, {"c": 2}}}, nil
	})
	res, err := tel.Runner(inner).Run(context.Background(), cypher.Query{Text: "MATCH (c:Customer) RETURN c"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Len())

	failing := graphstore.RunnerFunc(func(ctx context.Context, q cypher.Query) (*graphstore.Result, error) {
		return nil, errors.New("connection refused")
	})
	_, err = tel.Runner(failing).Run(context.Background(), cypher.Query{Text: "MATCH (l:Loan) RETURN l"})
	require.Error(t, err)

	ended := rec.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "graphqa.execute", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.Int("db.records", 2))
	assert.Equal(t, codes.Error, ended[1].Status().Code)
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry

	ctx, span := tel.StartQuestion(context.Background(), "q", "?")
	tel.Observer()(ctx, translate.Attempt{Number: 1})
	tel.EndQuestion(ctx, span, "answered", 1, 0, nil)

	inner := graphstore.RunnerFunc(func(ctx context.Context, q cypher.Query) (*graphstore.Result, error) {
		return &graphstore.Result{}, nil
	})
	_, err := tel.Runner(inner).Run(ctx, cypher.Query{})
	assert.NoError(t, err)
}

func TestNewTracerProvider(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	exporter := tracetest.NewInMemoryExporter()

	tp := NewTracerProvider("graphqa-test", exporter, logger)
	_, span := tp.Tracer("test").Start(context.Background(), "probe")
	span.End()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "probe", spans[0].Name)
	assert.Contains(t, spans[0].Resource.Attributes(), attribute.String("service.name", "graphqa-test"))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, "ok", StatusOf(nil))
	assert.Equal(t, string(qaerr.ClassOf(qaerr.ErrTimeout)), StatusOf(qaerr.ErrTimeout))
}
