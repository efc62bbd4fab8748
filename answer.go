package graphqa

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/creditrisk/graphqa/cypher"
	"github.com/creditrisk/graphqa/domain"
	"github.com/creditrisk/graphqa/qaerr"
	"github.com/creditrisk/graphqa/queue"
	"github.com/creditrisk/graphqa/validator"
)

// Status is the outcome of one question.
type Status int

const (
	// Failed means the system could not complete the question: generation,
	// execution, timeout or no schema. Answer.Err holds the cause.
	Failed Status = iota
	// Answered means a valid query ran. Entities may be empty.
	Answered
	// Unanswerable means the model reported that the schema cannot express
	// the question.
	Unanswerable
	// Exhausted means every attempt produced a query the schema rejects.
	Exhausted
)

func (s Status) String() string {
	switch s {
	case Answered:
		return "answered"
	case Unanswerable:
		return "unanswerable"
	case Exhausted:
		return "exhausted"
	default:
		return "failed"
	}
}

// Answer is the result of AskQuestion.
type Answer struct {
	ID       uuid.UUID
	Question string
	Status   Status

	// Entities are the mapped records, in record order, when Answered.
	Entities []domain.Entity
	// MappingErrors describe records that could not be mapped. The other
	// records are still in Entities.
	MappingErrors []*domain.MappingError

	// Query is the executed query with its bound parameters.
	Query cypher.Query
	// Attempts is the number of generator calls made.
	Attempts int
	// Violations are the last rejection reasons when Exhausted.
	Violations []validator.Violation

	// Err is set when Failed or Exhausted.
	Err      error
	Duration time.Duration
}

// Reply converts the answer to its queue wire form.
func (a Answer) Reply() queue.Reply {
	r := queue.Reply{
		ID:       a.ID.String(),
		Status:   a.Status.String(),
		Query:    a.Query.Text,
		Params:   a.Query.Params,
		Attempts: a.Attempts,
	}
	if a.Err != nil {
		r.Error = a.Err.Error()
		r.ErrorKind = string(errorKind(a.Err))
	}
	for _, me := range a.MappingErrors {
		r.MappingErrors = append(r.MappingErrors, me.Error())
	}
	if len(a.Entities) == 0 {
		return r
	}
	entities, err := domain.Encode(a.Entities)
	if err != nil {
		r.Status = Failed.String()
		r.Error = err.Error()
		r.ErrorKind = string(qaerr.KindMapping)
		return r
	}
	r.Entities = entities
	return r
}

// errorKind classifies err, including the store and mapper errors that match
// a sentinel without being a *qaerr.Error.
func errorKind(err error) qaerr.Kind {
	if kind := qaerr.KindOf(err); kind != "" {
		return kind
	}
	switch {
	case errors.Is(err, qaerr.ErrExecution):
		return qaerr.KindExecution
	case errors.Is(err, qaerr.ErrMapping):
		return qaerr.KindMapping
	case errors.Is(err, qaerr.ErrUnanswerableAfterRetries):
		return qaerr.KindUnanswerableAfterRetries
	}
	return qaerr.KindInternal
}

// Handler answers queue jobs with the session.
func (s *Session) Handler() queue.Handler {
	return queue.HandlerFunc(func(ctx context.Context, job queue.Job) queue.Reply {
		return s.AskQuestion(ctx, job.Question).Reply()
	})
}
