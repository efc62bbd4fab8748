package graphqa

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/creditrisk/graphqa/config"
	"github.com/creditrisk/graphqa/cypher"
	"github.com/creditrisk/graphqa/domain"
	"github.com/creditrisk/graphqa/graphstore"
	"github.com/creditrisk/graphqa/health"
	"github.com/creditrisk/graphqa/llm"
	"github.com/creditrisk/graphqa/prompt"
	"github.com/creditrisk/graphqa/qaerr"
	"github.com/creditrisk/graphqa/repos"
	"github.com/creditrisk/graphqa/schema"
	"github.com/creditrisk/graphqa/translate"
	"github.com/creditrisk/graphqa/validator"
)

// Store is the graph store a Session reads from. *graphstore.Neo4jStore is
// the production implementation.
type Store interface {
	graphstore.Runner
	schema.Introspector
	Close(ctx context.Context) error
}

// Session holds one loaded schema snapshot, the store handle and the
// pipeline components. It is safe for concurrent use.
type Session struct {
	store       Store
	cache       *schema.Cache
	coordinator *translate.Coordinator
	executor    *graphstore.Executor
	mapper      *domain.Mapper
	cfg         *sessionConfig
	logger      *slog.Logger
}

// NewSession wires the pipeline around store and provider and loads the
// schema. A schema load failure is returned as an error matching
// ErrSchemaLoad; the session is not usable without a schema.
func NewSession(ctx context.Context, store Store, provider llm.Provider, opts ...SessionOption) (*Session, error) {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	logger := cfg.logger

	var promptOpts []prompt.Option
	if cfg.template != "" {
		promptOpts = append(promptOpts, prompt.WithTemplate(cfg.template))
	}
	promptOpts = append(promptOpts, prompt.WithSentinel(cfg.sentinel), prompt.WithLogger(cfg.logger))
	builder, err := prompt.New(promptOpts...)
	if err != nil {
		return nil, qaerr.NewConfigurationError("graphqa.NewSession", err)
	}

	generator := translate.NewGenerator(provider,
		translate.WithGenerateTimeout(cfg.generateTimeout),
		translate.WithModel(cfg.model),
		translate.WithMaxTokens(cfg.maxTokens),
		translate.WithTokenTracker(cfg.tracker),
		translate.WithGeneratorLogger(logger),
	)
	v := validator.New(
		validator.WithSentinel(builder.Sentinel()),
		validator.WithParameterize(cfg.parameterize),
		validator.WithLogger(logger),
	)
	coordOpts := []translate.Option{
		translate.WithMaxAttempts(cfg.maxAttempts),
		translate.WithLogger(logger),
	}
	if cfg.telemetry != nil {
		coordOpts = append(coordOpts, translate.WithObserver(cfg.telemetry.Observer()))
	}

	execOpts := []graphstore.ExecutorOption{graphstore.WithLogger(logger)}
	if cfg.queryTimeout > 0 {
		execOpts = append(execOpts, graphstore.WithTimeout(cfg.queryTimeout))
	}

	s := &Session{
		store:       store,
		cache:       schema.NewCache(store, schema.WithLogger(logger)),
		coordinator: translate.NewCoordinator(builder, generator, v, coordOpts...),
		executor:    graphstore.NewExecutor(cfg.telemetry.Runner(store), execOpts...),
		mapper:      domain.NewMapper(domain.WithLogger(logger)),
		cfg:         cfg,
		logger:      logger,
	}

	if _, err := s.cache.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Open connects to Neo4j and the language model endpoint described by cfg
// and returns a Session with the schema loaded.
func Open(ctx context.Context, cfg *config.Config, opts ...SessionOption) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := []SessionOption{
		WithMaxAttempts(cfg.Pipeline.GetMaxAttempts()),
		WithSentinel(cfg.Pipeline.GetSentinel()),
		WithParameterize(cfg.Pipeline.GetParameterize()),
		WithConcurrency(cfg.Pipeline.GetConcurrency()),
		WithRequestTimeout(cfg.Pipeline.GetRequestTimeout()),
		WithGenerateTimeout(cfg.LLM.GetTimeout()),
		WithMaxTokens(cfg.LLM.MaxTokens),
	}
	opts = append(base, opts...)

	probe := defaultSessionConfig()
	for _, opt := range opts {
		opt(probe)
	}

	provider, err := llm.NewProvider(cfg.Provider())
	if err != nil {
		return nil, qaerr.NewConfigurationError("graphqa.Open", err)
	}

	store, err := graphstore.Open(ctx, cfg.Store(), graphstore.WithStoreLogger(probe.logger))
	if err != nil {
		return nil, qaerr.NewSchemaLoadError("graphqa.Open", err)
	}

	s, err := NewSession(ctx, store, provider, opts...)
	if err != nil {
		_ = store.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return s, nil
}

// Schema returns the loaded schema snapshot.
func (s *Session) Schema() *schema.GraphSchema {
	sch, _ := s.cache.Snapshot()
	return sch
}

// TokenUsage returns the language model tokens consumed so far.
func (s *Session) TokenUsage() llm.TokenUsage {
	return s.cfg.tracker.Total()
}

// Close releases the store.
func (s *Session) Close(ctx context.Context) error {
	return s.store.Close(ctx)
}

// HealthChecks returns checks for the schema snapshot and, when the store
// can ping, the store connection.
func (s *Session) HealthChecks() []health.NamedCheck {
	checks := []health.NamedCheck{health.Named("schema", health.SchemaCheck(s.cache))}
	if p, ok := s.store.(health.Pinger); ok {
		checks = append(checks, health.Named("neo4j", health.PingCheck(p)))
	}
	return checks
}

// Customers returns a repository reading customers through the session's
// executor.
func (s *Session) Customers() *repos.CustomerRepository {
	return repos.NewCustomerRepository(s.executor, repos.WithLogger(s.logger), repos.WithMapper(s.mapper))
}

// Loans returns a repository reading loans and their risk parameters.
func (s *Session) Loans() *repos.LoanRepository {
	return repos.NewLoanRepository(s.executor, repos.WithLogger(s.logger), repos.WithMapper(s.mapper))
}

// Portfolios returns a repository reading portfolios.
func (s *Session) Portfolios() *repos.PortfolioRepository {
	return repos.NewPortfolioRepository(s.executor, repos.WithLogger(s.logger), repos.WithMapper(s.mapper))
}

// AskQuestion translates question into a schema-valid query, runs it and maps
// the records. It never returns an error: the outcome is in Answer.Status.
func (s *Session) AskQuestion(ctx context.Context, question string) (ans Answer) {
	start := time.Now()
	ans = Answer{ID: uuid.New(), Question: question}
	logger := s.logger.With("question_id", ans.ID.String())

	if s.cfg.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.requestTimeout)
		defer cancel()
	}
	ctx, span := s.cfg.telemetry.StartQuestion(ctx, ans.ID.String(), question)

	defer func() {
		ans.Duration = time.Since(start)
		s.cfg.telemetry.EndQuestion(ctx, span, ans.Status.String(), ans.Attempts, ans.Duration, ans.Err)

		attrs := []any{"status", ans.Status.String(), "attempts", ans.Attempts, "duration", ans.Duration}
		switch ans.Status {
		case Failed:
			logger.ErrorContext(ctx, "question failed", append(attrs, "error", ans.Err)...)
		case Exhausted:
			logger.WarnContext(ctx, "question not answerable after retries", append(attrs, "error", ans.Err)...)
		default:
			logger.InfoContext(ctx, "question answered", append(attrs, "entities", len(ans.Entities))...)
		}
	}()

	sch, err := s.cache.Snapshot()
	if err != nil {
		ans.Status, ans.Err = Failed, err
		return ans
	}

	out, err := s.coordinator.Translate(ctx, sch, question)
	ans.Attempts = out.Attempts
	if err != nil {
		ans.Err = err
		var exhausted *translate.ExhaustedError
		if errors.As(err, &exhausted) {
			ans.Status = Exhausted
			ans.Violations = exhausted.Violations
		} else {
			ans.Status = Failed
		}
		return ans
	}
	if out.Verdict.Kind == validator.Unanswerable {
		ans.Status = Unanswerable
		return ans
	}

	q := out.Verdict.Query
	ans.Query = q
	res, err := s.executor.Execute(ctx, q)
	if err != nil {
		ans.Status, ans.Err = Failed, err
		return ans
	}

	shape := s.shapeFor(ctx, logger, q, sch)
	ans.Entities, ans.MappingErrors = s.mapper.Map(res, shape).Collect()
	ans.Status = Answered
	return ans
}

// shapeFor derives the result shape from the RETURN clause, falling back to
// mapping every column by its value.
func (s *Session) shapeFor(ctx context.Context, logger *slog.Logger, q cypher.Query, sch *schema.GraphSchema) domain.Shape {
	shape, err := domain.ShapeFor(q.Text, sch)
	if err != nil {
		logger.WarnContext(ctx, "deriving result shape failed, mapping columns dynamically", "error", err)
		return domain.Shape{Dynamic: true}
	}
	return shape
}

// AskBatch answers questions concurrently, bounded by the configured
// concurrency. Answers are returned in question order.
func (s *Session) AskBatch(ctx context.Context, questions []string) []Answer {
	answers := make([]Answer, len(questions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.concurrency)
	for i, q := range questions {
		g.Go(func() error {
			answers[i] = s.AskQuestion(gctx, q)
			return nil
		})
	}
	_ = g.Wait()

	return answers
}
