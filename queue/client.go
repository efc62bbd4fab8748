package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keys.
const (
	// QuestionsKey is the list of pending jobs (LPUSH/BRPOP).
	QuestionsKey = "graphqa:questions"
	// WorkersKey counts running workers.
	WorkersKey = "graphqa:workers"

	answersPrefix = "graphqa:answers:"
	healthPrefix  = "graphqa:worker:"

	heartbeatTTL = 30 * time.Second
)

// AnswerChannel is the pub/sub channel carrying the reply for job id.
func AnswerChannel(id string) string {
	return answersPrefix + id
}

// Client defines the interface for the Redis question queue.
type Client interface {
	// Push adds a job to the end of the queue (LPUSH).
	Push(ctx context.Context, job Job) error

	// Pop removes and returns a job from the front of the queue (BRPOP).
	// It waits at most timeout, or until ctx is done when timeout is zero,
	// and returns nil without error when no job arrived.
	Pop(ctx context.Context, timeout time.Duration) (*Job, error)

	// Publish sends a reply on its job's answer channel.
	Publish(ctx context.Context, reply Reply) error

	// Subscribe listens on the answer channel of job id.
	Subscribe(ctx context.Context, id string) (<-chan Reply, error)

	// Heartbeat refreshes the health key of a worker with a 30s TTL.
	Heartbeat(ctx context.Context, workerID string) error

	// Alive reports whether a worker heartbeat is current.
	Alive(ctx context.Context, workerID string) (bool, error)

	// WorkerCount returns the number of running workers.
	WorkerCount(ctx context.Context) (int, error)

	// IncrementWorkerCount increments the worker count.
	IncrementWorkerCount(ctx context.Context) error

	// DecrementWorkerCount decrements the worker count.
	DecrementWorkerCount(ctx context.Context) error

	// Ping verifies the Redis connection.
	Ping(ctx context.Context) error

	// Close closes the Redis connection.
	Close() error
}

// RedisOptions configures NewRedisClient. Zero fields take defaults.
type RedisOptions struct {
	// URL is a redis:// or rediss:// URL. Default: redis://localhost:6379
	URL string

	// TLS overrides the TLS settings derived from a rediss:// URL.
	TLS *tls.Config

	// ConnectTimeout bounds dialing and the initial PING. Default: 5s
	ConnectTimeout time.Duration

	// ReadTimeout bounds each reply read. Blocking pops extend it by their
	// own timeout. Default: 30s
	ReadTimeout time.Duration

	// WriteTimeout bounds each command write. Default: 5s
	WriteTimeout time.Duration

	// Logger receives undecodable payload warnings.
	Logger *slog.Logger
}

// RedisClient is the Redis-backed Client.
type RedisClient struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisClient connects to Redis and verifies the connection with PING.
func NewRedisClient(opts RedisOptions) (*RedisClient, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if opts.TLS != nil {
		redisOpts.TLSConfig = opts.TLS
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client, logger: opts.Logger}, nil
}

// Push adds a job to the end of the queue.
func (c *RedisClient) Push(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := c.client.LPush(ctx, QuestionsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to push to queue %s: %w", QuestionsKey, err)
	}
	return nil
}

// Pop removes and returns a job from the front of the queue.
func (c *RedisClient) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	// BRPOP returns [queue_name, value], or redis.Nil on timeout
	result, err := c.client.BRPop(ctx, timeout, QuestionsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop from queue %s: %w", QuestionsKey, err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP result length: %d", len(result))
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Publish sends a reply on its job's answer channel.
func (c *RedisClient) Publish(ctx context.Context, reply Reply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}
	channel := AnswerChannel(reply.ID)
	if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe listens on the answer channel of job id. The returned channel is
// closed when ctx is done.
func (c *RedisClient) Subscribe(ctx context.Context, id string) (<-chan Reply, error) {
	channel := AnswerChannel(id)
	pubsub := c.client.Subscribe(ctx, channel)

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}

	replies := make(chan Reply)
	go func() {
		defer close(replies)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var reply Reply
				if err := json.Unmarshal([]byte(msg.Payload), &reply); err != nil {
					c.logger.Warn("dropping undecodable reply", "channel", channel, "error", err)
					continue
				}
				select {
				case replies <- reply:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return replies, nil
}

// Heartbeat refreshes the health key of a worker.
func (c *RedisClient) Heartbeat(ctx context.Context, workerID string) error {
	if err := c.client.Set(ctx, healthPrefix+workerID+":health", "ok", heartbeatTTL).Err(); err != nil {
		return fmt.Errorf("failed to set heartbeat for worker %s: %w", workerID, err)
	}
	return nil
}

// Alive reports whether a worker heartbeat is current.
func (c *RedisClient) Alive(ctx context.Context, workerID string) (bool, error) {
	n, err := c.client.Exists(ctx, healthPrefix+workerID+":health").Result()
	if err != nil {
		return false, fmt.Errorf("failed to read heartbeat for worker %s: %w", workerID, err)
	}
	return n == 1, nil
}

// WorkerCount returns the number of running workers.
func (c *RedisClient) WorkerCount(ctx context.Context) (int, error) {
	countStr, err := c.client.Get(ctx, WorkersKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get worker count: %w", err)
	}
	count, err := strconv.Atoi(countStr)
	if err != nil {
		return 0, fmt.Errorf("invalid worker count value: %w", err)
	}
	return count, nil
}

// IncrementWorkerCount increments the worker count.
func (c *RedisClient) IncrementWorkerCount(ctx context.Context) error {
	if err := c.client.Incr(ctx, WorkersKey).Err(); err != nil {
		return fmt.Errorf("failed to increment worker count: %w", err)
	}
	return nil
}

// DecrementWorkerCount decrements the worker count.
func (c *RedisClient) DecrementWorkerCount(ctx context.Context) error {
	if err := c.client.Decr(ctx, WorkersKey).Err(); err != nil {
		return fmt.Errorf("failed to decrement worker count: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection.
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}
