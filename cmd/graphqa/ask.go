package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/creditrisk/graphqa/queue"
	"github.com/creditrisk/graphqa/serve"
)

var errNotAnswered = errors.New("question was not answered")

func newAskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question",
		Long: `Answer one question. By default the question is answered in-process,
connecting to Neo4j and the language model directly. With --remote it is
submitted to the worker queue; with --grpc it is sent to a running server.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAsk(cmd, strings.Join(args, " "))
		},
	}
	cmd.Flags().Bool("remote", false, "Submit the question to the Redis worker queue")
	cmd.Flags().String("grpc", "", "Send the question to the gRPC server at this address")
	cmd.Flags().Duration("timeout", 0, "Deadline for the whole question (0 uses the configured request timeout)")
	cmd.Flags().Bool("json", false, "Print the machine-readable reply")
	return cmd
}

func (a *app) runAsk(cmd *cobra.Command, question string) error {
	remote, _ := cmd.Flags().GetBool("remote")
	grpcAddr, _ := cmd.Flags().GetString("grpc")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	asJSON, _ := cmd.Flags().GetBool("json")

	if remote && grpcAddr != "" {
		return errors.New("--remote and --grpc are mutually exclusive")
	}

	ctx := cmd.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var (
		reply *queue.Reply
		err   error
	)
	switch {
	case remote:
		reply, err = a.askQueue(ctx, question)
	case grpcAddr != "":
		reply, err = askGRPC(ctx, grpcAddr, question, timeout)
	default:
		reply, err = a.askLocal(ctx, question)
	}
	if err != nil {
		return err
	}

	if err := printReply(cmd.OutOrStdout(), reply, asJSON); err != nil {
		return err
	}
	if reply.HasError() {
		return fmt.Errorf("%w: %s", errNotAnswered, reply.Error)
	}
	return nil
}

func (a *app) askLocal(ctx context.Context, question string) (*queue.Reply, error) {
	session, err := a.openSession(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close(context.WithoutCancel(ctx))

	reply := session.AskQuestion(ctx, question).Reply()
	return &reply, nil
}

func (a *app) askQueue(ctx context.Context, question string) (*queue.Reply, error) {
	client, err := queue.NewRedisClient(queue.RedisOptions{URL: a.cfg.Redis.GetURL(), Logger: a.logger})
	if err != nil {
		return nil, err
	}
	defer client.Close()

	workers, err := client.WorkerCount(ctx)
	if err == nil && workers == 0 {
		a.logger.Warn("no workers registered, the question waits until one starts")
	}
	return queue.Ask(ctx, client, question)
}

func askGRPC(ctx context.Context, addr, question string, timeout time.Duration) (*queue.Reply, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()
	return serve.NewClient(conn).Ask(ctx, question, timeout)
}

// printReply writes reply as indented JSON or as a short text report.
func printReply(w io.Writer, reply *queue.Reply, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reply)
	}

	switch reply.Status {
	case "unanswerable":
		fmt.Fprintln(w, "The question cannot be answered from this graph's schema.")
		return nil
	case "exhausted":
		fmt.Fprintf(w, "No schema-valid query after %d attempt(s): %s\n", reply.Attempts, reply.Error)
		return nil
	case "failed":
		fmt.Fprintf(w, "Failed (%s): %s\n", reply.ErrorKind, reply.Error)
		return nil
	}

	fmt.Fprintf(w, "Query: %s\n", reply.Query)
	if len(reply.Params) > 0 {
		params, err := json.Marshal(reply.Params)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Params: %s\n", params)
	}
	fmt.Fprintf(w, "Results: %d\n", len(reply.Entities))
	for _, e := range reply.Entities {
		fmt.Fprintf(w, "  %s %s\n", e.Kind, e.Data)
	}
	for _, m := range reply.MappingErrors {
		fmt.Fprintf(w, "  skipped: %s\n", m)
	}
	return nil
}
