package cypher

import (
	"fmt"
	"regexp"
	"strings"
)

var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// QuoteIdent returns name unchanged when it is a plain identifier and
// backtick-quoted otherwise.
func QuoteIdent(name string) string {
	if plainIdent.MatchString(name) {
		return name
	}
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// BuildMatch generates a MATCH clause for a node with the given label and alias.
//
// Example:
//
//	BuildMatch("Customer", "c") // Returns: "MATCH (c:Customer)"
func BuildMatch(label string, alias string) string {
	return fmt.Sprintf("MATCH (%s:%s)", QuoteIdent(alias), QuoteIdent(label))
}

// BuildWhere generates a WHERE clause from predicates with parameterized values.
// Parameters are named $p0, $p1, etc.; values never appear in the text.
//
// Returns empty string and nil params if predicates is empty.
//
// Example:
//
//	where, params := BuildWhere([]Predicate{{Field: "riskRating", Op: Eq, Value: "High"}}, "c")
//	// Returns: "WHERE c.riskRating = $p0"
//	// params: {"p0": "High"}
func BuildWhere(predicates []Predicate, alias string) (string, map[string]any) {
	return buildWhere(predicates, alias, 0)
}

func buildWhere(predicates []Predicate, alias string, offset int) (string, map[string]any) {
	if len(predicates) == 0 {
		return "", nil
	}

	params := make(map[string]any)
	conditions := make([]string, 0, len(predicates))
	for i, pred := range predicates {
		name := fmt.Sprintf("p%d", offset+i)
		conditions = append(conditions, buildCondition(pred, alias, name))
		if pred.Op.valued() {
			params[name] = pred.Value
		}
	}
	return "WHERE " + strings.Join(conditions, " AND "), params
}

func buildCondition(pred Predicate, alias string, param string) string {
	field := QuoteIdent(alias) + "." + QuoteIdent(pred.Field)
	switch pred.Op {
	case IsNull, IsNotNull:
		return fmt.Sprintf("%s %s", field, pred.Op)
	case Neq, Lt, Lte, Gt, Gte, Contains, StartsWith, In:
		return fmt.Sprintf("%s %s $%s", field, pred.Op, param)
	default:
		return fmt.Sprintf("%s = $%s", field, param)
	}
}

// BuildReturn generates a RETURN clause for alias. With no fields the whole
// node is returned, otherwise each field as alias.field.
func BuildReturn(alias string, fields []string) string {
	if len(fields) == 0 {
		return "RETURN " + QuoteIdent(alias)
	}
	refs := make([]string, 0, len(fields))
	for _, f := range fields {
		refs = append(refs, QuoteIdent(alias)+"."+QuoteIdent(f))
	}
	return "RETURN " + strings.Join(refs, ", ")
}

// BuildTraversal generates the pattern for one hop from fromAlias:
//   - Outgoing:   (from)-[:REL]->(to:Target)
//   - Incoming:   (from)<-[:REL]-(to:Target)
//   - Undirected: (from)-[:REL]-(to:Target)
//
// A Variable binds the relationship: (from)-[r:REL]->(to:Target).
func BuildTraversal(t Traversal, fromAlias string, toAlias string) string {
	rel := "[:" + QuoteIdent(t.Relationship) + "]"
	if t.Variable != "" {
		rel = "[" + QuoteIdent(t.Variable) + ":" + QuoteIdent(t.Relationship) + "]"
	}
	target := QuoteIdent(toAlias) + ":" + QuoteIdent(t.Target)
	from := QuoteIdent(fromAlias)

	switch t.Direction {
	case Incoming:
		return fmt.Sprintf("(%s)<-%s-(%s)", from, rel, target)
	case Undirected:
		return fmt.Sprintf("(%s)-%s-(%s)", from, rel, target)
	default:
		return fmt.Sprintf("(%s)-%s->(%s)", from, rel, target)
	}
}

// Builder assembles a read query clause by clause. Parameter names are
// numbered across all WHERE clauses of the query.
//
//	q := cypher.Match("Customer", "c").
//		Where("c", cypher.Predicate{Field: "riskRating", Op: cypher.Eq, Value: "High"}).
//		Return("c").
//		OrderBy("c.name").
//		Limit(10).
//		Build()
type Builder struct {
	clauses []string
	params  map[string]any
	next    int
}

// Match starts a query matching nodes with label bound to alias.
func Match(label, alias string) *Builder {
	return &Builder{
		clauses: []string{BuildMatch(label, alias)},
		params:  make(map[string]any),
	}
}

// Traverse adds a MATCH for one hop from an already bound alias.
func (b *Builder) Traverse(fromAlias string, t Traversal, toAlias string) *Builder {
	b.clauses = append(b.clauses, "MATCH "+BuildTraversal(t, fromAlias, toAlias))
	return b
}

// OptionalTraverse is Traverse with OPTIONAL MATCH.
func (b *Builder) OptionalTraverse(fromAlias string, t Traversal, toAlias string) *Builder {
	b.clauses = append(b.clauses, "OPTIONAL MATCH "+BuildTraversal(t, fromAlias, toAlias))
	return b
}

// Where filters alias by all predicates.
func (b *Builder) Where(alias string, predicates ...Predicate) *Builder {
	where, params := buildWhere(predicates, alias, b.next)
	if where == "" {
		return b
	}
	b.next += len(predicates)
	b.clauses = append(b.clauses, where)
	for k, v := range params {
		b.params[k] = v
	}
	return b
}

// Return projects alias, or the listed fields of it.
func (b *Builder) Return(alias string, fields ...string) *Builder {
	b.clauses = append(b.clauses, BuildReturn(alias, fields))
	return b
}

// ReturnItems projects explicit expressions, each as "expr AS key".
func (b *Builder) ReturnItems(items ...Projection) *Builder {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		if it.As == "" {
			parts = append(parts, it.Expr)
			continue
		}
		parts = append(parts, it.Expr+" AS "+QuoteIdent(it.As))
	}
	b.clauses = append(b.clauses, "RETURN "+strings.Join(parts, ", "))
	return b
}

// OrderBy sorts by the given expressions.
func (b *Builder) OrderBy(exprs ...string) *Builder {
	if len(exprs) > 0 {
		b.clauses = append(b.clauses, "ORDER BY "+strings.Join(exprs, ", "))
	}
	return b
}

// Limit caps the number of rows. Non-positive limits are ignored.
func (b *Builder) Limit(n int) *Builder {
	if n <= 0 {
		return b
	}
	name := fmt.Sprintf("p%d", b.next)
	b.next++
	b.params[name] = int64(n)
	b.clauses = append(b.clauses, "LIMIT $"+name)
	return b
}

// Build returns the assembled query. The builder can keep being used.
func (b *Builder) Build() Query {
	params := make(map[string]any, len(b.params))
	for k, v := range b.params {
		params[k] = v
	}
	return Query{Text: strings.Join(b.clauses, " "), Params: params}
}

// Projection is one RETURN item.
type Projection struct {
	Expr string
	As   string
}

// Field returns the projection alias.field AS as.
func Field(alias, field, as string) Projection {
	return Projection{Expr: QuoteIdent(alias) + "." + QuoteIdent(field), As: as}
}
