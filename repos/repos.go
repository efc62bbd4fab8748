// Package repos provides typed read access to the credit-risk graph for
// callers that know what they want and need no translation.
package repos

import (
	"context"
	"errors"
	"log/slog"

	"github.com/creditrisk/graphqa/cypher"
	"github.com/creditrisk/graphqa/domain"
	"github.com/creditrisk/graphqa/graphstore"
	"github.com/creditrisk/graphqa/qaerr"
)

// Executor runs a query. *graphstore.Executor satisfies it.
type Executor interface {
	Execute(ctx context.Context, q cypher.Query) (*graphstore.Result, error)
}

// Option configures a repository.
type Option func(*base)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *base) {
		b.logger = l
	}
}

// WithMapper replaces the result mapper.
func WithMapper(m *domain.Mapper) Option {
	return func(b *base) {
		b.mapper = m
	}
}

type base struct {
	exec   Executor
	mapper *domain.Mapper
	logger *slog.Logger
}

func newBase(exec Executor, opts []Option) base {
	b := base{exec: exec, mapper: domain.NewMapper(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// rows runs q and maps every record. Records that fail to map are left out
// and reported together in a mapping error, next to the rows that mapped.
func (b base) rows(ctx context.Context, op string, q cypher.Query, shape domain.Shape) ([][]domain.Entity, error) {
	res, err := b.exec.Execute(ctx, q)
	if err != nil {
		return nil, err
	}

	var (
		rows [][]domain.Entity
		errs []error
	)
	for row, err := range b.mapper.Map(res, shape).Rows() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rows = append(rows, row)
	}

	b.logger.DebugContext(ctx, "repository query", "op", op, "records", res.Len(), "unmapped", len(errs))
	if len(errs) > 0 {
		return rows, qaerr.New(op, qaerr.KindMapping, errors.Join(errs...)).
			WithContext(map[string]any{"unmapped": len(errs)})
	}
	return rows, nil
}

// list runs q and returns the T of every mapped row.
func list[T any](ctx context.Context, b base, op string, q cypher.Query, shape domain.Shape) ([]T, error) {
	rows, err := b.rows(ctx, op, q, shape)
	if rows == nil && err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		for _, e := range row {
			if t, ok := any(e).(*T); ok {
				out = append(out, *t)
			}
		}
	}
	return out, err
}

// first returns the first entity of type *T in row.
func first[T any](row []domain.Entity) *T {
	for _, e := range row {
		if t, ok := any(e).(*T); ok {
			return t
		}
	}
	return nil
}

func value(row []domain.Entity, key string) *domain.Value {
	for _, e := range row {
		if v, ok := e.(*domain.Value); ok && v.Key == key {
			return v
		}
	}
	return nil
}
