// Package queue provides a Redis-backed question queue so questions can be
// answered by a pool of workers separate from the process that asks them.
//
// # Core Components
//
// Client: Interface for interacting with the Redis queue. Provides methods for:
//   - Push/Pop operations on the question list
//   - Publish/Subscribe for reply delivery
//   - Worker heartbeats and worker counting
//
// Job: A question with its correlation ID and trace context.
//
// Reply: The outcome of a Job, including the executed query and the mapped
// entities in their wire form.
//
// Worker: Pops jobs with a fixed number of goroutines, answers them through
// a Handler, and publishes each reply.
//
// # Redis Key Schema
//
//   - graphqa:questions - List of pending jobs (LPUSH/BRPOP)
//   - graphqa:answers:<id> - Pub/Sub channel for the reply to job <id>
//   - graphqa:worker:<id>:health - String with 30s TTL for heartbeat
//   - graphqa:workers - Integer counter for running workers
//
// # Usage
//
// Running a worker:
//
//	client, err := queue.NewRedisClient(queue.RedisOptions{URL: "redis://localhost:6379"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	worker := queue.NewWorker(client, handler, queue.WithConcurrency(8))
//	if err := worker.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// Asking through the queue:
//
//	reply, err := queue.Ask(ctx, client, "Which customers hold home loans?")
//	if err != nil {
//		log.Fatal(err)
//	}
//	entities, err := reply.Decode()
//
// # Thread Safety
//
// RedisClient is safe for concurrent use by multiple goroutines.
package queue
