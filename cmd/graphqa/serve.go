package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/creditrisk/graphqa/health"
	"github.com/creditrisk/graphqa/queue"
	"github.com/creditrisk/graphqa/serve"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve graphqa.v1.QuestionService over gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			addr, _ := cmd.Flags().GetString("address")
			if addr == "" {
				addr = a.cfg.Serve.GetAddress()
			}
			grace, _ := cmd.Flags().GetDuration("graceful-timeout")
			interval, _ := cmd.Flags().GetDuration("health-interval")

			session, err := a.openSession(ctx)
			if err != nil {
				return err
			}
			defer session.Close(context.WithoutCancel(ctx))

			srv, err := serve.NewServer(session,
				serve.WithAddress(addr),
				serve.WithGracefulShutdown(grace),
				serve.WithHealthChecker(health.NewChecker(a.healthChecks(session.HealthChecks())...), interval),
				serve.WithLogger(a.logger),
			)
			if err != nil {
				return err
			}
			return srv.Serve(ctx)
		},
	}
	cmd.Flags().String("address", "", "Listen address (default from config, then :50051)")
	cmd.Flags().Duration("graceful-timeout", 30*time.Second, "Time allowed for in-flight questions on shutdown")
	cmd.Flags().Duration("health-interval", 15*time.Second, "Period between dependency health checks")
	return cmd
}

func newWorkerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Answer questions from the Redis queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			concurrency, _ := cmd.Flags().GetInt("concurrency")
			if concurrency <= 0 {
				concurrency = a.cfg.Pipeline.GetConcurrency()
			}

			session, err := a.openSession(ctx)
			if err != nil {
				return err
			}
			defer session.Close(context.WithoutCancel(ctx))

			client, err := queue.NewRedisClient(queue.RedisOptions{URL: a.cfg.Redis.GetURL(), Logger: a.logger})
			if err != nil {
				return err
			}
			defer client.Close()

			w := queue.NewWorker(client, session.Handler(),
				queue.WithConcurrency(concurrency),
				queue.WithWorkerLogger(a.logger),
			)
			a.logger.Info("worker started", "worker_id", w.ID(), "concurrency", concurrency)
			return w.Run(ctx)
		},
	}
	cmd.Flags().Int("concurrency", 0, "Questions answered in parallel (default from config)")
	return cmd
}
