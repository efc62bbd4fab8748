package graphstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/creditrisk/graphqa/cypher"
	"github.com/creditrisk/graphqa/qaerr"
)

// CodeTimeout is the ExecutionError code for queries cut off by the
// executor's own timeout.
const CodeTimeout = "graphqa.QueryTimeout"

// ExecutionError reports a validated query the store failed to run.
type ExecutionError struct {
	// Query is exactly what was sent.
	Query cypher.Query
	// Code is the store's status code, such as
	// Neo.ClientError.Statement.SyntaxError, when it reported one.
	Code string
	// Diagnostic is the store's message.
	Diagnostic string
	Err        error
}

func (e *ExecutionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("executing %q: %s: %s", e.Query.Text, e.Code, e.Diagnostic)
	}
	return fmt.Sprintf("executing %q: %s", e.Query.Text, e.Diagnostic)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is matches qaerr.ErrExecution and qaerr errors of the execution kind.
func (e *ExecutionError) Is(target error) bool {
	if target == qaerr.ErrExecution {
		return true
	}
	t, ok := target.(*qaerr.Error)
	return ok && t.Kind == qaerr.KindExecution
}

// Executor runs validated queries. Failures are never retried.
type Executor struct {
	runner  Runner
	timeout time.Duration
	logger  *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTimeout bounds each execution. Zero leaves only the caller's deadline.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// NewExecutor creates an Executor over r.
func NewExecutor(r Runner, opts ...ExecutorOption) *Executor {
	e := &Executor{runner: r, timeout: DefaultQueryTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs exactly q.Text with q.Params. A done caller context yields a
// timeout error; every other failure is an *ExecutionError.
func (e *Executor) Execute(ctx context.Context, q cypher.Query) (*Result, error) {
	const op = "Executor.Execute"

	if err := qaerr.FromContext(ctx, op); err != nil {
		return nil, err
	}

	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := e.runner.Run(runCtx, q)
	if err != nil {
		if terr := qaerr.FromContext(ctx, op); terr != nil {
			return nil, terr
		}
		xerr := newExecutionError(q, err)
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			xerr.Code = CodeTimeout
			xerr.Diagnostic = fmt.Sprintf("query did not finish within %s", e.timeout)
		}
		e.logger.WarnContext(ctx, "query execution failed", "code", xerr.Code, "error", xerr.Diagnostic)
		return nil, xerr
	}
	if res == nil {
		res = &Result{}
	}

	e.logger.DebugContext(ctx, "query executed", "records", len(res.Records), "duration", time.Since(start))
	return res, nil
}

func newExecutionError(q cypher.Query, err error) *ExecutionError {
	xerr := &ExecutionError{Query: q, Diagnostic: err.Error(), Err: err}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		xerr.Code = neoErr.Code
		xerr.Diagnostic = neoErr.Msg
	}
	return xerr
}
