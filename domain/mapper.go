package domain

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/creditrisk/graphqa/cypher"
	"github.com/creditrisk/graphqa/graphstore"
	"github.com/creditrisk/graphqa/qaerr"
	"github.com/creditrisk/graphqa/schema"
)

// ErrConsumed is yielded when Results are iterated a second time.
var ErrConsumed = errors.New("results already consumed")

// MappingError reports one record that could not be mapped. Other records
// are unaffected.
type MappingError struct {
	// Record is the index of the record in the result.
	Record int
	Key    string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("record %d, column %q: %s", e.Record, e.Key, e.Reason)
}

// Is matches qaerr.ErrMapping and qaerr errors of the mapping kind.
func (e *MappingError) Is(target error) bool {
	if target == qaerr.ErrMapping {
		return true
	}
	t, ok := target.(*qaerr.Error)
	return ok && t.Kind == qaerr.KindMapping
}

// Column declares how one record key maps.
type Column struct {
	// Key is the record key.
	Key string
	// Alias groups columns filling the same entity within a record.
	Alias string
	// Label selects the entity type. A whole-node column without a label
	// takes it from the node.
	Label string
	// Property is the entity property the column fills. Empty means the
	// column holds the whole node.
	Property string
	// Scalar columns become Value entities.
	Scalar bool
}

// NodeColumn maps a whole node. label may be empty.
func NodeColumn(key, alias, label string) Column {
	return Column{Key: key, Alias: alias, Label: label}
}

// PropertyColumn maps one property of the entity bound to alias.
func PropertyColumn(key, alias, label, property string) Column {
	return Column{Key: key, Alias: alias, Label: label, Property: property}
}

// ValueColumn maps key to a Value entity.
func ValueColumn(key string) Column {
	return Column{Key: key, Scalar: true}
}

// Shape is the expected layout of a result.
type Shape struct {
	Columns []Column
	// Dynamic shapes take their columns from the result keys, each as an
	// unlabelled whole-node column.
	Dynamic bool
}

// ShapeFor derives the shape of a validated query from its RETURN clause.
// Items that are a variable or a property of a variable bound to a mapped
// label become entity columns; everything else is a Value column.
func ShapeFor(text string, s *schema.GraphSchema) (Shape, error) {
	a, err := cypher.Analyze(text)
	if err != nil {
		return Shape{}, err
	}
	if a.ReturnAll {
		return Shape{Dynamic: true}, nil
	}

	var sh Shape
	for _, item := range a.Returns {
		if item.Alias == "" {
			sh.Columns = append(sh.Columns, ValueColumn(item.Key))
			continue
		}
		label, ok := a.NodeLabel(item.Alias)
		if ok && (s == nil || s.HasLabel(label)) {
			if k, mapped := kinds[label]; mapped {
				switch {
				case item.Property == "":
					sh.Columns = append(sh.Columns, NodeColumn(item.Key, item.Alias, label))
				case k.has(item.Property):
					sh.Columns = append(sh.Columns, PropertyColumn(item.Key, item.Alias, label, item.Property))
				default:
					sh.Columns = append(sh.Columns, ValueColumn(item.Key))
				}
				continue
			}
		}
		if item.Property == "" && a.Bound(item.Alias) {
			if _, isRel := a.RelationshipType(item.Alias); !isRel {
				sh.Columns = append(sh.Columns, NodeColumn(item.Key, item.Alias, ""))
				continue
			}
		}
		sh.Columns = append(sh.Columns, ValueColumn(item.Key))
	}
	return sh, nil
}

// Mapper converts records into entities. It is stateless.
type Mapper struct {
	logger *slog.Logger
}

// MapperOption configures a Mapper.
type MapperOption func(*Mapper)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) MapperOption {
	return func(m *Mapper) {
		m.logger = l
	}
}

// NewMapper creates a Mapper.
func NewMapper(opts ...MapperOption) *Mapper {
	m := &Mapper{logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Map returns the lazily mapped entities of res. Nothing is converted until
// the Results are iterated.
func (m *Mapper) Map(res *graphstore.Result, shape Shape) *Results {
	if res == nil {
		res = &graphstore.Result{}
	}
	if shape.Dynamic {
		cols := make([]Column, 0, len(res.Keys))
		for _, k := range res.Keys {
			cols = append(cols, NodeColumn(k, k, ""))
		}
		shape = Shape{Columns: cols}
	}
	return &Results{res: res, shape: shape, logger: m.logger}
}

// Results are mapped entities, consumable once.
type Results struct {
	res    *graphstore.Result
	shape  Shape
	logger *slog.Logger

	mu       sync.Mutex
	consumed bool
}

// Len returns the number of records.
func (r *Results) Len() int {
	return r.res.Len()
}

// Rows yields the entities of each record together, in record order. A
// record that cannot be mapped yields a *MappingError instead. A second
// iteration, of Rows or All, yields only ErrConsumed.
func (r *Results) Rows() iter.Seq2[[]Entity, error] {
	return func(yield func([]Entity, error) bool) {
		r.mu.Lock()
		done := r.consumed
		r.consumed = true
		r.mu.Unlock()
		if done {
			yield(nil, ErrConsumed)
			return
		}

		for i, rec := range r.res.Records {
			entities, err := mapRecord(i, rec, r.shape.Columns)
			if err != nil {
				r.logger.Debug("record not mapped", "record", i, "key", err.Key, "reason", err.Reason)
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !yield(entities, nil) {
				return
			}
		}
	}
}

// All yields entities one at a time, flattening Rows.
func (r *Results) All() iter.Seq2[Entity, error] {
	return func(yield func(Entity, error) bool) {
		for row, err := range r.Rows() {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			for _, e := range row {
				if !yield(e, nil) {
					return
				}
			}
		}
	}
}

// Collect drains the Results. Already consumed Results collect nothing.
func (r *Results) Collect() ([]Entity, []*MappingError) {
	var (
		entities []Entity
		errs     []*MappingError
	)
	for e, err := range r.All() {
		var merr *MappingError
		switch {
		case errors.As(err, &merr):
			errs = append(errs, merr)
		case err != nil:
			return nil, nil
		default:
			entities = append(entities, e)
		}
	}
	return entities, errs
}

func mapRecord(index int, rec graphstore.Record, cols []Column) ([]Entity, *MappingError) {
	var (
		out     []Entity
		byAlias = make(map[string]Entity)
	)
	fail := func(key, format string, args ...any) *MappingError {
		return &MappingError{Record: index, Key: key, Reason: fmt.Sprintf(format, args...)}
	}

	for _, col := range cols {
		v, ok := rec[col.Key]
		if !ok {
			return nil, fail(col.Key, "missing key")
		}
		if col.Scalar {
			out = append(out, &Value{Key: col.Key, Value: v})
			continue
		}

		if col.Property == "" {
			node, isNode := v.(graphstore.Node)
			if !isNode {
				if col.Label == "" {
					out = append(out, &Value{Key: col.Key, Value: v})
					continue
				}
				if v == nil {
					continue
				}
				return nil, fail(col.Key, "expected a %s node, got %T", col.Label, v)
			}
			label := col.Label
			if label == "" || !node.HasLabel(label) {
				label = mappedLabel(node)
			}
			k, ok := kinds[label]
			if !ok {
				out = append(out, &Value{Key: col.Key, Value: v})
				continue
			}
			e, exists := byAlias[col.Alias]
			if !exists || e.Kind() != label {
				e = k.new()
				byAlias[col.Alias] = e
				out = append(out, e)
			}
			for prop, pv := range node.Props {
				if err := k.set(e, prop, pv); err != nil && !errors.Is(err, errNoField) {
					return nil, fail(col.Key, "property %s: %v", prop, err)
				}
			}
			continue
		}

		k, ok := kinds[col.Label]
		if !ok {
			return nil, fail(col.Key, "no entity for label %q", col.Label)
		}
		e, exists := byAlias[col.Alias]
		if !exists {
			e = k.new()
		}
		if e.Kind() != col.Label {
			return nil, fail(col.Key, "alias %s already maps a %s", col.Alias, e.Kind())
		}
		err := k.set(e, col.Property, v)
		switch {
		case errors.Is(err, errNoField):
			// Schema properties without a typed field surface as values.
			out = append(out, &Value{Key: col.Key, Value: v})
			continue
		case err != nil:
			return nil, fail(col.Key, "property %s: %v", col.Property, err)
		}
		if !exists {
			byAlias[col.Alias] = e
			out = append(out, e)
		}
	}
	return out, nil
}

func mappedLabel(n graphstore.Node) string {
	for _, l := range n.Labels {
		if _, ok := kinds[l]; ok {
			return l
		}
	}
	return ""
}
