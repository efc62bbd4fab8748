package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditrisk/graphqa/domain"
)

// startWorker runs w until the test ends and returns a channel receiving
// Run's result.
func startWorker(t *testing.T, w *Worker) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	})
	return cancel, done
}

func TestWorker_AnswersJobs(t *testing.T) {
	client, _ := setupTestClient(t)

	var handled atomic.Int32
	handler := HandlerFunc(func(ctx context.Context, job Job) Reply {
		handled.Add(1)
		entities, err := domain.Encode([]domain.Entity{&domain.Value{Key: "question", Value: job.Question}})
		require.NoError(t, err)
		return Reply{Status: "answered", Entities: entities, Attempts: 1}
	})
	w := NewWorker(client, handler, WithConcurrency(2), WithPollTimeout(time.Second))
	startWorker(t, w)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reply, err := Ask(ctx, client, "How many loans are there?")
	require.NoError(t, err)
	assert.Equal(t, "answered", reply.Status)
	assert.Equal(t, w.ID(), reply.WorkerID)
	assert.GreaterOrEqual(t, reply.CompletedAt, reply.StartedAt)

	got, err := reply.Decode()
	require.NoError(t, err)
	assert.Equal(t, []domain.Entity{&domain.Value{Key: "question", Value: "How many loans are there?"}}, got)
	assert.Equal(t, int32(1), handled.Load())

	alive, err := client.Alive(ctx, w.ID())
	require.NoError(t, err)
	assert.True(t, alive)
}

func TestWorker_RejectsInvalidJob(t *testing.T) {
	client, _ := setupTestClient(t)

	handler := HandlerFunc(func(ctx context.Context, job Job) Reply {
		t.Error("handler called for invalid job")
		return Reply{}
	})
	startWorker(t, NewWorker(client, handler, WithConcurrency(1)))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	replies, err := client.Subscribe(ctx, "job-x")
	require.NoError(t, err)
	require.NoError(t, client.Push(ctx, Job{ID: "job-x", SubmittedAt: time.Now().UnixMilli()}))

	select {
	case reply := <-replies:
		assert.Equal(t, "failed", reply.Status)
		assert.Contains(t, reply.Error, "question is required")
	case <-ctx.Done():
		t.Fatal("no reply received")
	}
}

func TestWorker_StopsOnCancel(t *testing.T) {
	client, _ := setupTestClient(t)

	w := NewWorker(client, HandlerFunc(func(ctx context.Context, job Job) Reply { return Reply{} }),
		WithConcurrency(3))
	cancel, done := startWorker(t, w)

	require.Eventually(t, func() bool {
		n, err := client.WorkerCount(context.Background())
		return err == nil && n == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	n, err := client.WorkerCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAsk_ContextDone(t *testing.T) {
	client, _ := setupTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := Ask(ctx, client, "Which portfolios exist?")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
