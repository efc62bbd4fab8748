package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestJob_IsValid(t *testing.T) {
	now := time.Now().UnixMilli()
	tests := []struct {
		name   string
		job    Job
		errMsg string
	}{
		{name: "valid job", job: Job{ID: "job-1", Question: "q", SubmittedAt: now}},
		{name: "missing id", job: Job{Question: "q", SubmittedAt: now}, errMsg: "id is required"},
		{name: "missing question", job: Job{ID: "job-1", SubmittedAt: now}, errMsg: "question is required"},
		{name: "zero submitted_at", job: Job{ID: "job-1", Question: "q"}, errMsg: "submitted_at must be positive, got 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.IsValid()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.errMsg)
		})
	}
}

func TestJob_Age(t *testing.T) {
	assert.Equal(t, time.Duration(0), (&Job{}).Age())

	job := Job{SubmittedAt: time.Now().Add(-2 * time.Second).UnixMilli()}
	assert.GreaterOrEqual(t, job.Age(), 2*time.Second)
}

func TestReply_Duration(t *testing.T) {
	assert.Equal(t, time.Duration(0), (&Reply{}).Duration())
	assert.Equal(t, 250*time.Millisecond, (&Reply{StartedAt: 1000, CompletedAt: 1250}).Duration())
	assert.False(t, (&Reply{}).HasError())
	assert.True(t, (&Reply{Error: "boom"}).HasError())
}

func TestJob_ParentContext(t *testing.T) {
	job := Job{TraceID: "4bf92f3577b34da6a3ce929d0e0e4736", SpanID: "00f067aa0ba902b7"}

	sc := trace.SpanContextFromContext(job.ParentContext(context.Background()))
	assert.True(t, sc.IsValid())
	assert.True(t, sc.IsRemote())
	assert.Equal(t, job.TraceID, sc.TraceID().String())
	assert.Equal(t, job.SpanID, sc.SpanID().String())

	for _, bad := range []Job{{}, {TraceID: "trace-123", SpanID: "span-123"}, {TraceID: job.TraceID}} {
		sc := trace.SpanContextFromContext(bad.ParentContext(context.Background()))
		assert.False(t, sc.IsValid())
	}
}
