package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/creditrisk/graphqa/graphstore"
	"github.com/creditrisk/graphqa/health"
	"github.com/creditrisk/graphqa/queue"
)

func newHealthCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to Neo4j, Redis and the language model endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			asJSON, _ := cmd.Flags().GetBool("json")

			var checks []health.NamedCheck
			store, err := graphstore.Open(ctx, a.cfg.Store(), graphstore.WithStoreLogger(a.logger))
			if err != nil {
				checks = append(checks, health.Named("neo4j", func(context.Context) health.Status {
					return health.Unhealthy("connect failed", map[string]any{"error": err.Error()})
				}))
			} else {
				defer store.Close(context.WithoutCancel(ctx))
				checks = append(checks, health.Named("neo4j", health.PingCheck(store)))
			}

			withRedis, _ := cmd.Flags().GetBool("redis")
			if withRedis {
				client, err := queue.NewRedisClient(queue.RedisOptions{URL: a.cfg.Redis.GetURL(), Logger: a.logger})
				if err != nil {
					checks = append(checks, health.Named("redis", func(context.Context) health.Status {
						return health.Unhealthy("connect failed", map[string]any{"error": err.Error()})
					}))
				} else {
					defer client.Close()
					checks = append(checks, health.Named("redis", health.PingCheck(client)))
				}
			}

			report := health.NewChecker(a.healthChecks(checks)...).Run(ctx)
			if err := printReport(cmd.OutOrStdout(), report, asJSON); err != nil {
				return err
			}
			if report.Overall.IsUnhealthy() {
				return errors.New(report.Overall.Message)
			}
			return nil
		},
	}
	cmd.Flags().Bool("redis", false, "Also check the Redis queue")
	cmd.Flags().Bool("json", false, "Print the machine-readable report")
	return cmd
}

// healthChecks appends the language model endpoint check when a base URL is
// configured.
func (a *app) healthChecks(checks []health.NamedCheck) []health.NamedCheck {
	if a.cfg.LLM.BaseURL != "" {
		checks = append(checks, health.Named("llm", health.EndpointCheck(a.cfg.LLM.BaseURL)))
	}
	return checks
}

func printReport(w io.Writer, report health.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(w, "%s: %s\n", strings.ToUpper(report.Overall.Status), report.Overall.Message)
	names := make([]string, 0, len(report.Components))
	for name := range report.Components {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		st := report.Components[name]
		fmt.Fprintf(w, "  %-8s %-9s %s\n", name, st.Status, st.Message)
	}
	return nil
}
