// Package graphstore connects the pipeline to Neo4j: it introspects the
// graph's schema and runs validated read queries on a pooled driver,
// returning records as plain Go values.
package graphstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"

	"github.com/creditrisk/graphqa/cypher"
	"github.com/creditrisk/graphqa/schema"
)

// Default connection settings.
const (
	DefaultURI                = "neo4j://localhost:7687"
	DefaultDatabase           = "neo4j"
	DefaultPoolSize           = 10
	DefaultAcquisitionTimeout = 30 * time.Second
	DefaultQueryTimeout       = 30 * time.Second
)

// Config configures the Neo4j connection.
type Config struct {
	URI      string `json:"uri" yaml:"uri"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`

	// PoolSize bounds concurrent connections. Callers beyond it wait up to
	// AcquisitionTimeout or their own deadline.
	PoolSize           int           `json:"pool_size" yaml:"pool_size"`
	AcquisitionTimeout time.Duration `json:"acquisition_timeout" yaml:"acquisition_timeout"`
	// QueryTimeout is the server-side transaction timeout.
	QueryTimeout time.Duration `json:"query_timeout" yaml:"query_timeout"`
}

func (c Config) withDefaults() Config {
	if c.URI == "" {
		c.URI = DefaultURI
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.AcquisitionTimeout <= 0 {
		c.AcquisitionTimeout = DefaultAcquisitionTimeout
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	return c
}

// Runner runs one read query. Neo4jStore is the production implementation.
type Runner interface {
	Run(ctx context.Context, q cypher.Query) (*Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, q cypher.Query) (*Result, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, q cypher.Query) (*Result, error) {
	return f(ctx, q)
}

// Neo4jStore is a pooled Neo4j connection. It is safe for concurrent use.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	cfg    Config
	logger *slog.Logger
}

// StoreOption configures a Neo4jStore.
type StoreOption func(*Neo4jStore)

// WithStoreLogger sets the logger.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Neo4jStore) {
		s.logger = l
	}
}

// Open creates the driver and verifies connectivity.
func Open(ctx context.Context, cfg Config, opts ...StoreOption) (*Neo4jStore, error) {
	cfg = cfg.withDefaults()
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *config.Config) {
			c.MaxConnectionPoolSize = cfg.PoolSize
			c.ConnectionAcquisitionTimeout = cfg.AcquisitionTimeout
		},
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	s := &Neo4jStore{driver: driver, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j at %s: %w", cfg.URI, err)
	}
	s.logger.InfoContext(ctx, "connected to neo4j", "uri", cfg.URI, "database", cfg.Database, "pool_size", cfg.PoolSize)
	return s, nil
}

// Ping verifies the store is reachable.
func (s *Neo4jStore) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close releases every pooled connection.
func (s *Neo4jStore) Close(ctx context.Context) error {
	s.logger.InfoContext(ctx, "closing neo4j connection")
	return s.driver.Close(ctx)
}

func (s *Neo4jStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.cfg.Database,
		AccessMode:   neo4j.AccessModeRead,
	})
}

// Run executes q in a read transaction and collects every record.
func (s *Neo4jStore) Run(ctx context.Context, q cypher.Query) (*Result, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, q.Text, q.Params)
		if err != nil {
			return nil, err
		}
		keys, err := res.Keys()
		if err != nil {
			return nil, err
		}
		recs, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		r := &Result{Keys: keys, Records: make([]Record, 0, len(recs))}
		for _, rec := range recs {
			r.Records = append(r.Records, NewRecord(rec))
		}
		return r, nil
	}, neo4j.WithTxTimeout(s.cfg.QueryTimeout))
	if err != nil {
		return nil, err
	}
	return out.(*Result), nil
}

// Introspection queries, run together in one read transaction.
const (
	labelsQuery    = "CALL db.labels() YIELD label RETURN label"
	relTypesQuery  = "CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType"
	nodePropsQuery = "CALL db.schema.nodeTypeProperties() YIELD nodeLabels, propertyName RETURN nodeLabels, propertyName"
	relPropsQuery  = "CALL db.schema.relTypeProperties() YIELD relType, propertyName RETURN relType, propertyName"
	patternsQuery  = "MATCH (a)-[r]->(b) RETURN DISTINCT labels(a) AS from, type(r) AS type, labels(b) AS to"
)

// Introspect reads labels, relationship types, their properties and the
// relationship patterns in use. It implements schema.Introspector.
func (s *Neo4jStore) Introspect(ctx context.Context) (schema.Definition, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows := make(map[string][]Record, 5)
		for _, q := range []string{labelsQuery, relTypesQuery, nodePropsQuery, relPropsQuery, patternsQuery} {
			res, err := tx.Run(ctx, q, nil)
			if err != nil {
				return nil, err
			}
			recs, err := res.Collect(ctx)
			if err != nil {
				return nil, err
			}
			for _, rec := range recs {
				rows[q] = append(rows[q], NewRecord(rec))
			}
		}
		return rows, nil
	}, neo4j.WithTxTimeout(s.cfg.QueryTimeout))
	if err != nil {
		return schema.Definition{}, fmt.Errorf("introspecting schema: %w", err)
	}

	rows := out.(map[string][]Record)
	def, err := buildDefinition(rows[labelsQuery], rows[relTypesQuery], rows[nodePropsQuery], rows[relPropsQuery], rows[patternsQuery])
	if err != nil {
		return schema.Definition{}, err
	}
	s.logger.DebugContext(ctx, "schema introspected", "labels", len(def.Labels), "relationship_types", len(def.RelationshipTypes))
	return def, nil
}

// buildDefinition assembles a schema definition from introspection rows.
func buildDefinition(labels, relTypes, nodeProps, relProps, patterns []Record) (schema.Definition, error) {
	def := schema.Definition{
		NodeProperties:         make(map[string][]string),
		RelationshipProperties: make(map[string][]string),
	}

	for _, r := range labels {
		l, ok := r["label"].(string)
		if !ok {
			return def, errors.New("db.labels returned a non-string label")
		}
		def.Labels = append(def.Labels, l)
	}
	for _, r := range relTypes {
		t, ok := r["relationshipType"].(string)
		if !ok {
			return def, errors.New("db.relationshipTypes returned a non-string type")
		}
		def.RelationshipTypes = append(def.RelationshipTypes, t)
	}

	for _, r := range nodeProps {
		prop, _ := r["propertyName"].(string)
		if prop == "" {
			// Labels without properties report a null property name.
			continue
		}
		for _, l := range stringList(r["nodeLabels"]) {
			def.NodeProperties[l] = append(def.NodeProperties[l], prop)
		}
	}
	for _, r := range relProps {
		prop, _ := r["propertyName"].(string)
		rel, _ := r["relType"].(string)
		rel = unquoteType(rel)
		if prop == "" || rel == "" {
			continue
		}
		def.RelationshipProperties[rel] = append(def.RelationshipProperties[rel], prop)
	}

	for _, r := range patterns {
		from, to := stringList(r["from"]), stringList(r["to"])
		typ, _ := r["type"].(string)
		if len(from) != 1 || len(to) != 1 || typ == "" {
			continue
		}
		def.Patterns = append(def.Patterns, schema.Pattern{From: from[0], Type: typ, To: to[0]})
	}

	if len(def.Labels) == 0 {
		return def, errors.New("database reports no node labels")
	}
	return def, nil
}

// unquoteType turns db.schema.relTypeProperties' ":`TYPE`" into "TYPE".
func unquoteType(s string) string {
	s = strings.TrimPrefix(s, ":")
	s = strings.TrimPrefix(s, "`")
	return strings.TrimSuffix(s, "`")
}

func stringList(v any) []string {
	xs, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if s, ok := x.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
