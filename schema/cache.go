package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/creditrisk/graphqa/qaerr"
)

// ErrNotLoaded is returned by Snapshot before a successful Load.
var ErrNotLoaded = qaerr.New("Cache.Snapshot", qaerr.KindNotLoaded, qaerr.ErrNotLoaded)

// Introspector reads the structural metadata of the graph store.
// Implementations perform exactly one introspection call per invocation.
type Introspector interface {
	Introspect(ctx context.Context) (Definition, error)
}

// IntrospectorFunc adapts a function to the Introspector interface.
type IntrospectorFunc func(ctx context.Context) (Definition, error)

// Introspect calls f.
func (f IntrospectorFunc) Introspect(ctx context.Context) (Definition, error) {
	return f(ctx)
}

// Static returns an Introspector that always yields def. It is useful for
// tests and for sessions that pin a schema from configuration.
func Static(def Definition) Introspector {
	return IntrospectorFunc(func(context.Context) (Definition, error) {
		return def, nil
	})
}

// Cache loads the graph schema once and serves the immutable snapshot.
type Cache struct {
	introspector Introspector
	logger       *slog.Logger

	loadMu  sync.Mutex
	current atomic.Pointer[GraphSchema]
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithLogger sets the logger used for load diagnostics.
func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// NewCache creates an empty cache backed by introspector.
func NewCache(introspector Introspector, opts ...CacheOption) *Cache {
	c := &Cache{
		introspector: introspector,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load introspects the store and caches the resulting schema. A cache that
// already holds a schema returns it without another introspection call.
//
// Any connectivity or parse failure is returned as a schema-load error
// (errors.Is(err, qaerr.ErrSchemaLoad)) and leaves the cache empty. Load does
// not retry.
func (c *Cache) Load(ctx context.Context) (*GraphSchema, error) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if s := c.current.Load(); s != nil {
		return s, nil
	}
	if c.introspector == nil {
		return nil, qaerr.NewSchemaLoadError("Cache.Load", fmt.Errorf("no introspector configured"))
	}

	c.logger.InfoContext(ctx, "loading graph schema")

	def, err := c.introspector.Introspect(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "schema introspection failed", "error", err)
		return nil, qaerr.NewSchemaLoadError("Cache.Load", fmt.Errorf("introspect: %w", err))
	}

	s, err := New(def)
	if err != nil {
		c.logger.ErrorContext(ctx, "schema metadata could not be parsed", "error", err)
		return nil, qaerr.NewSchemaLoadError("Cache.Load", fmt.Errorf("parse: %w", err))
	}

	c.current.Store(s)
	c.logger.InfoContext(ctx, "graph schema loaded",
		"labels", len(s.labels),
		"relationship_types", len(s.relTypes),
	)
	return s, nil
}

// Snapshot returns the cached schema or ErrNotLoaded.
func (c *Cache) Snapshot() (*GraphSchema, error) {
	if s := c.current.Load(); s != nil {
		return s, nil
	}
	return nil, ErrNotLoaded
}
