// Command graphqa answers natural-language questions about a credit-risk
// graph stored in Neo4j.
//
// Usage:
//
//	graphqa ask "Which customers hold a loan with PD above 0.5?"
//	graphqa schema
//	graphqa serve --config graphqa.yaml
//	graphqa worker --config graphqa.yaml
//	graphqa ask --remote "List portfolios by segment"
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	graphqa "github.com/creditrisk/graphqa"
	"github.com/creditrisk/graphqa/config"
	"github.com/creditrisk/graphqa/telemetry"
)

var version = "0.1.0-dev"

// app carries what every subcommand needs after flag parsing.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "graphqa",
		Short: "Answer questions about a credit-risk graph",
		Long: `graphqa translates natural-language questions into Cypher queries that
use only the labels, relationship types and properties of the graph's schema,
validates them, runs them on Neo4j and prints the mapped results.

Questions the schema cannot express are reported as unanswerable.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to graphqa.yaml or a directory containing it")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level (debug|info|warn|error)")

	rootCmd.AddCommand(
		newAskCmd(a),
		newSchemaCmd(a),
		newServeCmd(a),
		newWorkerCmd(a),
		newHealthCmd(a),
	)
	return rootCmd
}

func (a *app) load(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	a.cfg = cfg
	a.logger = cfg.Logger(cmd.ErrOrStderr())
	return nil
}

// openSession opens a session instrumented with the global OpenTelemetry
// providers.
func (a *app) openSession(ctx context.Context) (*graphqa.Session, error) {
	tel, err := telemetry.New(otel.GetTracerProvider(), otel.GetMeterProvider())
	if err != nil {
		return nil, err
	}
	return graphqa.Open(ctx, a.cfg,
		graphqa.WithLogger(a.logger),
		graphqa.WithTelemetry(tel),
	)
}
