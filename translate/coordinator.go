package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/creditrisk/graphqa/prompt"
	"github.com/creditrisk/graphqa/qaerr"
	"github.com/creditrisk/graphqa/schema"
	"github.com/creditrisk/graphqa/validator"
)

// DefaultMaxAttempts is the generation budget per question.
const DefaultMaxAttempts = 3

// Outcome is the accepted result of Translate.
type Outcome struct {
	// Verdict is Valid or Unanswerable on success; on exhaustion it is the
	// last Invalid verdict.
	Verdict validator.Verdict
	// Attempts is the number of generator calls made.
	Attempts int
	// Candidates holds every candidate obtained, in attempt order.
	Candidates []Candidate
}

// ExhaustedError reports that every attempt produced an invalid query.
type ExhaustedError struct {
	Attempts   int
	Violations []validator.Violation
}

func (e *ExhaustedError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return fmt.Sprintf("no valid query after %d attempts: %s", e.Attempts, strings.Join(msgs, "; "))
}

// Is matches qaerr.ErrUnanswerableAfterRetries and qaerr errors of that kind.
func (e *ExhaustedError) Is(target error) bool {
	if target == qaerr.ErrUnanswerableAfterRetries {
		return true
	}
	t, ok := target.(*qaerr.Error)
	return ok && t.Kind == qaerr.KindUnanswerableAfterRetries
}

// Attempt describes one generate-and-validate step, reported to an Observer.
type Attempt struct {
	Number    int
	Candidate Candidate
	// Verdict is nil when generation failed.
	Verdict  *validator.Verdict
	Err      error
	Duration time.Duration
}

// Observer is notified after every attempt.
type Observer func(ctx context.Context, a Attempt)

// Coordinator runs the bounded generate-validate loop. It keeps no state
// between calls and may serve concurrent requests.
type Coordinator struct {
	builder     *prompt.Builder
	generator   *Generator
	validator   *validator.Validator
	maxAttempts int
	observers   []Observer
	logger      *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMaxAttempts sets the attempt budget. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(c *Coordinator) {
		if n >= 1 {
			c.maxAttempts = n
		}
	}
}

// WithObserver adds an attempt observer.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// NewCoordinator wires the prompt builder, generator and validator.
func NewCoordinator(b *prompt.Builder, g *Generator, v *validator.Validator, opts ...Option) *Coordinator {
	c := &Coordinator{
		builder:     b,
		generator:   g,
		validator:   v,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxAttempts returns the attempt budget.
func (c *Coordinator) MaxAttempts() int {
	return c.maxAttempts
}

// Translate generates and validates candidates for question until one is Valid
// or Unanswerable, making at most MaxAttempts generator calls.
//
// An Invalid verdict feeds its violations into the next prompt. A generation
// error uses up an attempt and the next attempt reuses the previous feedback.
// When the budget runs out Translate returns *ExhaustedError if any candidate
// was rejected, and otherwise the last generation error. A done context ends
// the loop with a timeout error.
func (c *Coordinator) Translate(ctx context.Context, s *schema.GraphSchema, question string) (Outcome, error) {
	const op = "Coordinator.Translate"

	var (
		out      Outcome
		feedback []string
		lastGen  error
		rejected *validator.Verdict
	)

	for n := 1; n <= c.maxAttempts; n++ {
		if err := qaerr.FromContext(ctx, op); err != nil {
			return out, err
		}

		req := c.builder.Build(s, question, feedback)
		req.Attempt = n

		start := time.Now()
		cand, err := c.generator.Generate(ctx, req)
		out.Attempts = n
		if err != nil {
			c.notify(ctx, Attempt{Number: n, Candidate: cand, Err: err, Duration: time.Since(start)})
			if qaerr.KindOf(err) == qaerr.KindTimeout {
				return out, err
			}
			lastGen = err
			continue
		}
		out.Candidates = append(out.Candidates, cand)

		verdict := c.validator.Validate(cand.Text, s)
		c.notify(ctx, Attempt{Number: n, Candidate: cand, Verdict: &verdict, Duration: time.Since(start)})

		switch verdict.Kind {
		case validator.Valid, validator.Unanswerable:
			out.Verdict = verdict
			c.logger.DebugContext(ctx, "question translated", "attempts", n, "verdict", verdict.Kind.String())
			return out, nil
		}

		c.logger.InfoContext(ctx, "candidate rejected",
			"attempt", n,
			"violations", len(verdict.Violations),
			"reason", verdict.Violations[0].Message,
		)
		rejected = &verdict
		feedback = verdict.Feedback()
	}

	if rejected != nil {
		out.Verdict = *rejected
		return out, &ExhaustedError{Attempts: out.Attempts, Violations: rejected.Violations}
	}
	return out, lastGen
}

func (c *Coordinator) notify(ctx context.Context, a Attempt) {
	for _, o := range c.observers {
		o(ctx, a)
	}
}
