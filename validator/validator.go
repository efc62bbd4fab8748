// Package validator classifies a generated query against the graph schema
// before it is allowed anywhere near the database: the unanswerable sentinel,
// a valid read-only query over known labels, relationship types and
// properties, or an invalid query with the reasons it was rejected.
package validator

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/creditrisk/graphqa/cypher"
	"github.com/creditrisk/graphqa/prompt"
	"github.com/creditrisk/graphqa/qaerr"
	"github.com/creditrisk/graphqa/schema"
)

// Kind is the outcome of validation.
type Kind int

const (
	// Invalid means the query references something the schema lacks or is
	// not an acceptable read query.
	Invalid Kind = iota
	// Valid means the query may be executed.
	Valid
	// Unanswerable means the generator replied with the sentinel.
	Unanswerable
)

func (k Kind) String() string {
	switch k {
	case Valid:
		return "valid"
	case Unanswerable:
		return "unanswerable"
	case Invalid:
		return "invalid"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ViolationKind classifies a rejection reason.
type ViolationKind string

const (
	ViolationLabel        ViolationKind = "label"
	ViolationRelationship ViolationKind = "relationship"
	ViolationProperty     ViolationKind = "property"
	ViolationClause       ViolationKind = "clause"
	ViolationSyntax       ViolationKind = "syntax"
)

// Violation is one reason a query was rejected.
type Violation struct {
	Kind ViolationKind
	// Token is the offending name as written in the query.
	Token string
	// Against names the schema element the token was checked against, for
	// example "labels" or "properties of Customer".
	Against string
	// Message is the human-readable reason, fed back to the generator.
	Message string

	pos int
}

func (v Violation) String() string {
	return v.Message
}

// Query is an executable query with its bound parameters.
type Query = cypher.Query

// Verdict is the result of validating one candidate.
type Verdict struct {
	Kind Kind
	// Query is set for Valid verdicts and is exactly what must be executed.
	Query Query
	// Violations is set for Invalid verdicts, in source order.
	Violations []Violation
	// Analysis is the structural analysis of Query, set for Valid verdicts.
	Analysis *cypher.Analysis
}

// Feedback returns the violation messages.
func (v Verdict) Feedback() []string {
	out := make([]string, 0, len(v.Violations))
	for _, vi := range v.Violations {
		out = append(out, vi.Message)
	}
	return out
}

// Err returns a validation error for Invalid verdicts and nil otherwise.
func (v Verdict) Err() error {
	if v.Kind != Invalid {
		return nil
	}
	return qaerr.New("Validator.Validate", qaerr.KindValidation, errors.New(strings.Join(v.Feedback(), "; "))).
		WithContext(map[string]any{"violations": len(v.Violations)})
}

// Validator checks candidate queries. It holds no per-request state and is
// safe for concurrent use.
type Validator struct {
	sentinel     string
	parameterize bool
	logger       *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithSentinel sets the unanswerable reply. It must match the prompt's.
func WithSentinel(s string) Option {
	return func(v *Validator) {
		if strings.TrimSpace(s) != "" {
			v.sentinel = s
		}
	}
}

// WithParameterize enables or disables lifting literals into parameters.
func WithParameterize(enabled bool) Option {
	return func(v *Validator) {
		v.parameterize = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = l
	}
}

// New creates a Validator. Literal parameterisation is on by default.
func New(opts ...Option) *Validator {
	v := &Validator{
		sentinel:     prompt.DefaultSentinel,
		parameterize: true,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Sentinel returns the configured unanswerable reply.
func (v *Validator) Sentinel() string {
	return v.sentinel
}

// IsSentinel reports whether text is the unanswerable reply: equal to the
// sentinel after trimming whitespace, enclosing quotes and a final period,
// ignoring case.
func (v *Validator) IsSentinel(text string) bool {
	t := strings.TrimSpace(text)
	t = strings.Trim(t, "'\"`")
	t = strings.TrimSuffix(strings.TrimSpace(t), ".")
	return strings.EqualFold(strings.TrimSpace(t), strings.TrimSpace(v.sentinel))
}

// Validate classifies text against s. The sentinel check takes precedence over
// every other rule.
func (v *Validator) Validate(text string, s *schema.GraphSchema) Verdict {
	if v.IsSentinel(text) {
		return Verdict{Kind: Unanswerable}
	}

	body := strings.TrimSpace(text)
	body = strings.TrimSpace(strings.TrimSuffix(body, ";"))
	if body == "" {
		return invalid(Violation{Kind: ViolationSyntax, Message: "empty query"})
	}

	toks, err := cypher.Tokenize(body)
	if err != nil {
		return invalid(syntaxViolation(err))
	}
	for _, t := range toks {
		if t.IsPunct(";") {
			return invalid(Violation{Kind: ViolationSyntax, Token: ";", pos: t.Start, Message: "multiple statements are not allowed"})
		}
	}

	q := Query{Text: body, Params: map[string]any{}}
	if v.parameterize {
		q.Text, q.Params, err = cypher.Parameterize(body)
		if err != nil {
			return invalid(syntaxViolation(err))
		}
	}

	a, err := cypher.Analyze(q.Text)
	if err != nil {
		return invalid(syntaxViolation(err))
	}

	c := checker{s: s, a: a, seen: make(map[string]bool)}
	c.labels()
	c.relationshipTypes()
	c.properties()
	c.clauses()

	if len(c.violations) > 0 {
		sort.SliceStable(c.violations, func(i, j int) bool { return c.violations[i].pos < c.violations[j].pos })
		v.logger.Debug("query rejected", "violations", len(c.violations), "first", c.violations[0].Message)
		return Verdict{Kind: Invalid, Violations: c.violations}
	}
	return Verdict{Kind: Valid, Query: q, Analysis: a}
}

func invalid(vs ...Violation) Verdict {
	return Verdict{Kind: Invalid, Violations: vs}
}

func syntaxViolation(err error) Violation {
	vi := Violation{Kind: ViolationSyntax, Message: "query is not valid Cypher: " + err.Error()}
	var syn *cypher.SyntaxError
	if errors.As(err, &syn) {
		vi.pos = syn.Pos
		vi.Message = "query is not valid Cypher: " + syn.Msg
	}
	return vi
}

type checker struct {
	s          *schema.GraphSchema
	a          *cypher.Analysis
	seen       map[string]bool
	violations []Violation
}

func (c *checker) add(key string, vi Violation) {
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	c.violations = append(c.violations, vi)
}

func (c *checker) labels() {
	for _, ref := range c.a.Labels {
		if c.s.HasLabel(ref.Name) {
			continue
		}
		c.add("label:"+ref.Name, Violation{
			Kind:    ViolationLabel,
			Token:   ref.Name,
			Against: "labels",
			Message: fmt.Sprintf("unknown label %q (schema labels: %s)", ref.Name, strings.Join(c.s.Labels(), ", ")),
			pos:     ref.Pos,
		})
	}
}

func (c *checker) relationshipTypes() {
	for _, ref := range c.a.RelationshipTypes {
		if c.s.HasRelationshipType(ref.Name) {
			continue
		}
		c.add("rel:"+ref.Name, Violation{
			Kind:    ViolationRelationship,
			Token:   ref.Name,
			Against: "relationship types",
			Message: fmt.Sprintf("unknown relationship type %q (schema relationship types: %s)",
				ref.Name, strings.Join(c.s.RelationshipTypes(), ", ")),
			pos: ref.Pos,
		})
	}
}

// properties checks each property reference whose owner can be determined.
// Owners that are themselves unknown were already reported.
func (c *checker) properties() {
	for _, p := range c.a.Properties {
		label, rel, ok := c.owner(p)
		if !ok {
			continue
		}
		if rel {
			if !c.s.HasRelationshipType(label) || c.s.HasRelationshipProperty(label, p.Property) {
				continue
			}
			c.add("relprop:"+label+"."+p.Property, Violation{
				Kind:    ViolationProperty,
				Token:   p.Property,
				Against: "properties of " + label,
				Message: fmt.Sprintf("unknown property %q on relationship type %s (properties: %s)",
					p.Property, label, listOrNone(c.s.RelationshipProperties(label))),
				pos: p.Pos,
			})
			continue
		}
		if !c.s.HasLabel(label) || c.s.HasProperty(label, p.Property) {
			continue
		}
		c.add("prop:"+label+"."+p.Property, Violation{
			Kind:    ViolationProperty,
			Token:   p.Property,
			Against: "properties of " + label,
			Message: fmt.Sprintf("unknown property %q on label %s (properties: %s)",
				p.Property, label, listOrNone(c.s.Properties(label))),
			pos: p.Pos,
		})
	}
}

func (c *checker) owner(p cypher.PropertyRef) (name string, rel bool, ok bool) {
	if p.Inline() && len(p.Labels) == 1 {
		return p.Labels[0], p.Relationship, true
	}
	if p.Inline() && len(p.Labels) > 1 {
		return "", false, false
	}
	if p.Alias == "" {
		return "", false, false
	}
	if label, ok := c.a.NodeLabel(p.Alias); ok {
		return label, false, true
	}
	if typ, ok := c.a.RelationshipType(p.Alias); ok {
		return typ, true, true
	}
	return "", false, false
}

func (c *checker) clauses() {
	for _, ref := range c.a.WriteClauses {
		c.add("clause:"+ref.Name, Violation{
			Kind:    ViolationClause,
			Token:   ref.Name,
			Against: "read-only queries",
			Message: fmt.Sprintf("%s is not allowed: queries must only read from the graph", ref.Name),
			pos:     ref.Pos,
		})
	}
	for _, ref := range c.a.Procedures {
		c.add("call:"+ref.Name, Violation{
			Kind:    ViolationClause,
			Token:   ref.Name,
			Against: "read-only queries",
			Message: fmt.Sprintf("procedure call %s is not allowed", ref.Name),
			pos:     ref.Pos,
		})
	}
	if len(c.a.Returns) == 0 && !c.a.ReturnAll {
		c.add("noreturn", Violation{
			Kind:    ViolationClause,
			Token:   "RETURN",
			Against: "read-only queries",
			Message: "query has no RETURN clause",
			pos:     int(^uint(0) >> 1),
		})
	}
}

func listOrNone(xs []string) string {
	if len(xs) == 0 {
		return "none"
	}
	return strings.Join(xs, ", ")
}
