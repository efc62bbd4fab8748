package cypher

import (
	"strings"
)

// Ref is a named token found in the query, with its byte offset.
type Ref struct {
	Name string
	Pos  int
}

// PropertyRef is a property referenced through a variable (alias.prop, a map
// projection item) or declared in an inline pattern map ({prop: value}).
type PropertyRef struct {
	// Alias is the variable the property is read from. It is empty for
	// inline maps on anonymous pattern elements.
	Alias string

	// Property is the property key.
	Property string

	// Labels holds the labels (or relationship types) written in the same
	// pattern element. It is only set for inline pattern maps.
	Labels []string

	// Relationship is true when the property belongs to a relationship
	// pattern's inline map.
	Relationship bool

	Pos int
}

// Inline reports whether the reference comes from an inline pattern map.
func (p PropertyRef) Inline() bool {
	return p.Labels != nil
}

// ReturnItem is one projection of the final RETURN clause.
type ReturnItem struct {
	// Key is the column name records carry for this item: the AS alias, or
	// the expression text exactly as written.
	Key string

	// Expr is the expression source text.
	Expr string

	// Alias is the variable when the expression is a bare variable or a
	// single property access.
	Alias string

	// Property is the property key when the expression is alias.prop.
	Property string
}

// Analysis is the structural summary of one query.
type Analysis struct {
	// Labels lists label tokens in node-pattern or label-predicate position.
	Labels []Ref

	// RelationshipTypes lists relationship type tokens in edge-pattern position.
	RelationshipTypes []Ref

	// Properties lists property references in source order.
	Properties []PropertyRef

	// WriteClauses lists keywords of clauses that modify the graph or its
	// administration (CREATE, MERGE, SET, DELETE, ...), upper-cased.
	WriteClauses []Ref

	// Procedures lists procedures invoked with CALL.
	Procedures []Ref

	// Parameters lists the $parameters referenced, in first-use order.
	Parameters []string

	// Returns lists the items of the final top-level RETURN clause.
	Returns []ReturnItem

	// ReturnAll is true for RETURN *.
	ReturnAll bool

	bindings map[string]*binding
}

// binding accumulates what is known about one variable.
type binding struct {
	node, rel bool
	// names collects every label (or type) written for the variable.
	names map[string]struct{}
	// multi is set when one occurrence declares several labels or types.
	multi bool
	// rebound is set when the variable is reassigned with AS.
	rebound bool
}

func (a *Analysis) bind(alias string) *binding {
	b, ok := a.bindings[alias]
	if !ok {
		b = &binding{names: make(map[string]struct{})}
		a.bindings[alias] = b
	}
	return b
}

// Bound reports whether alias is introduced by a node or relationship pattern.
func (a *Analysis) Bound(alias string) bool {
	b, ok := a.bindings[alias]
	return ok && (b.node || b.rel)
}

// NodeLabel returns the label of a node variable when it can be determined
// unambiguously: the variable is only used for nodes, is never reassigned,
// and every occurrence that names a label names the same single label.
func (a *Analysis) NodeLabel(alias string) (string, bool) {
	b, ok := a.bindings[alias]
	if !ok || !b.node || b.rel {
		return "", false
	}
	return b.unique()
}

// RelationshipType returns the type of a relationship variable under the same
// rules as NodeLabel.
func (a *Analysis) RelationshipType(alias string) (string, bool) {
	b, ok := a.bindings[alias]
	if !ok || !b.rel || b.node {
		return "", false
	}
	return b.unique()
}

func (b *binding) unique() (string, bool) {
	if b.multi || b.rebound || len(b.names) != 1 {
		return "", false
	}
	for n := range b.names {
		return n, true
	}
	return "", false
}

// keywords that cannot be variables. An identifier from this set before '('
// does not make the parenthesis a function call.
var keywords = map[string]struct{}{
	"MATCH": {}, "OPTIONAL": {}, "WHERE": {}, "RETURN": {}, "WITH": {}, "AND": {}, "OR": {},
	"XOR": {}, "NOT": {}, "MERGE": {}, "CREATE": {}, "DELETE": {}, "DETACH": {}, "SET": {},
	"REMOVE": {}, "UNWIND": {}, "AS": {}, "IN": {}, "IS": {}, "NULL": {}, "TRUE": {},
	"FALSE": {}, "DISTINCT": {}, "ORDER": {}, "BY": {}, "SKIP": {}, "LIMIT": {}, "UNION": {},
	"ALL": {}, "CASE": {}, "WHEN": {}, "THEN": {}, "ELSE": {}, "END": {}, "CALL": {},
	"YIELD": {}, "ON": {}, "FOREACH": {}, "ASC": {}, "DESC": {}, "ASCENDING": {},
	"DESCENDING": {}, "STARTS": {}, "ENDS": {}, "CONTAINS": {}, "EXISTS": {}, "LOAD": {},
	"DROP": {}, "USE": {},
}

// writeKeywords are clause keywords that change data or administration.
var writeKeywords = map[string]struct{}{
	"CREATE": {}, "MERGE": {}, "DELETE": {}, "DETACH": {}, "SET": {}, "REMOVE": {},
	"DROP": {}, "FOREACH": {}, "LOAD": {}, "ALTER": {}, "GRANT": {}, "REVOKE": {},
	"DENY": {},
}

func isKeyword(t Token) bool {
	if t.Kind != Ident || t.Quoted {
		return false
	}
	_, ok := keywords[strings.ToUpper(t.Text)]
	return ok
}

// variable reports whether t can name a variable.
func variable(t Token) bool {
	return t.Kind == Ident && !isKeyword(t)
}

type analyzer struct {
	src      string
	toks     []Token
	consumed []bool
	a        *Analysis
	params   map[string]struct{}
}

// Analyze tokenizes src and extracts the structural references used for
// schema validation. It fails with a *SyntaxError when the text cannot be
// tokenized or its brackets are unbalanced.
func Analyze(src string) (*Analysis, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	if err := checkBalance(toks); err != nil {
		return nil, err
	}

	z := &analyzer{
		src:      src,
		toks:     toks,
		consumed: make([]bool, len(toks)),
		a:        &Analysis{bindings: make(map[string]*binding)},
		params:   make(map[string]struct{}),
	}
	z.scan()
	z.returns()
	return z.a, nil
}

func checkBalance(toks []Token) error {
	pairs := map[string]string{")": "(", "]": "[", "}": "{"}
	var stack []Token
	for _, t := range toks {
		if t.Kind != Punct {
			continue
		}
		switch t.Text {
		case "(", "[", "{":
			stack = append(stack, t)
		case ")", "]", "}":
			if len(stack) == 0 || stack[len(stack)-1].Text != pairs[t.Text] {
				return &SyntaxError{Pos: t.Start, Msg: "unbalanced " + t.Text}
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		open := stack[len(stack)-1]
		return &SyntaxError{Pos: open.Start, Msg: "unclosed " + open.Text}
	}
	return nil
}

func (z *analyzer) tok(i int) Token {
	if i < 0 || i >= len(z.toks) {
		return Token{Kind: Punct, Start: len(z.src), End: len(z.src)}
	}
	return z.toks[i]
}

func (z *analyzer) scan() {
	braceDepth := 0
	for i := 0; i < len(z.toks); i++ {
		t := z.toks[i]

		switch {
		case t.IsPunct("{"):
			braceDepth++
			continue
		case t.IsPunct("}"):
			braceDepth--
			continue
		}
		if z.consumed[i] {
			continue
		}

		switch t.Kind {
		case Param:
			if _, seen := z.params[t.Text]; !seen {
				z.params[t.Text] = struct{}{}
				z.a.Parameters = append(z.a.Parameters, t.Text)
			}

		case Punct:
			switch {
			case t.IsPunct("(") && z.patternStart(i):
				z.nodePattern(i)
			case t.IsPunct("[") && (z.tok(i-1).IsPunct("-") || z.tok(i-1).IsPunct("<-")):
				z.relPattern(i)
			}

		case Ident:
			if z.tok(i - 1).IsPunct(".") {
				continue
			}
			z.identifier(i, braceDepth)
		}
	}
}

// patternStart reports whether the '(' at i can open a node pattern, as
// opposed to a function call's argument list.
func (z *analyzer) patternStart(i int) bool {
	prev := z.tok(i - 1)
	if i == 0 {
		return true
	}
	if prev.Kind == Ident {
		return isKeyword(prev)
	}
	return prev.Kind == Punct && !prev.IsPunct(")") && !prev.IsPunct("]") && !prev.IsPunct("}")
}

func (z *analyzer) identifier(i, braceDepth int) {
	t := z.toks[i]
	next := z.tok(i + 1)
	upper := strings.ToUpper(t.Text)

	if !t.Quoted {
		if _, ok := writeKeywords[upper]; ok && !next.IsPunct(":") {
			z.a.WriteClauses = append(z.a.WriteClauses, Ref{Name: upper, Pos: t.Start})
			return
		}
		if upper == "CALL" {
			if next.Kind == Ident {
				name, _ := z.dotted(i + 1)
				z.a.Procedures = append(z.a.Procedures, Ref{Name: name, Pos: next.Start})
			}
			return
		}
		if upper == "AS" && variable(next) {
			// WITH c AS c keeps the binding; any other expression rebinds.
			if !(z.tok(i-1).Kind == Ident && z.tok(i-1).Text == next.Text && !z.tok(i-2).IsPunct(".")) {
				z.bind(next.Text).rebound = true
			}
			z.consumed[i+1] = true
			return
		}
	}

	if !variable(t) {
		return
	}

	switch {
	case next.IsPunct("."):
		_, end := z.dotted(i)
		if z.tok(end).IsPunct("(") {
			// Namespaced function such as date.truncate(...).
			for k := i; k < end; k++ {
				z.consumed[k] = true
			}
			return
		}
		prop := z.tok(i + 2)
		if prop.Kind == Ident {
			z.a.Properties = append(z.a.Properties, PropertyRef{Alias: t.Text, Property: prop.Text, Pos: t.Start})
			z.consumed[i+2] = true
		}

	case next.IsPunct("{") && z.tok(i+2).IsPunct("."):
		z.projection(i)

	case next.IsPunct(":") && braceDepth == 0:
		labels, end := z.labelList(i + 1)
		if len(labels) == 0 {
			return
		}
		b := z.bind(t.Text)
		b.node = true
		z.addNames(b, labels)
		for _, l := range labels {
			z.a.Labels = append(z.a.Labels, l)
		}
		for k := i + 1; k < end; k++ {
			z.consumed[k] = true
		}
	}
}

// dotted reads Ident(.Ident)* starting at i and returns the joined name and
// the index after the chain.
func (z *analyzer) dotted(i int) (string, int) {
	parts := []string{z.tok(i).Text}
	j := i + 1
	for z.tok(j).IsPunct(".") && z.tok(j+1).Kind == Ident {
		parts = append(parts, z.tok(j+1).Text)
		j += 2
	}
	return strings.Join(parts, "."), j
}

// labelList reads ':' A ((':' | '|' | '&') B)* starting at the colon and
// returns the names and the index after the list.
func (z *analyzer) labelList(colon int) ([]Ref, int) {
	if !z.tok(colon).IsPunct(":") {
		return nil, colon
	}
	var refs []Ref
	j := colon
	for {
		sep := z.tok(j)
		if !(sep.IsPunct(":") || (len(refs) > 0 && (sep.IsPunct("|") || sep.IsPunct("&")))) {
			break
		}
		// [:A|:B] repeats the colon after the bar.
		if sep.IsPunct("|") && z.tok(j+1).IsPunct(":") {
			j++
		}
		name := z.tok(j + 1)
		if name.Kind != Ident {
			break
		}
		refs = append(refs, Ref{Name: name.Text, Pos: name.Start})
		j += 2
	}
	return refs, j
}

func (z *analyzer) addNames(b *binding, refs []Ref) {
	if len(refs) > 1 {
		b.multi = true
	}
	for _, r := range refs {
		b.names[r.Name] = struct{}{}
	}
}

// nodePattern parses '(' alias? labels? map? (WHERE ...)? ')' at i. On
// failure nothing is recorded and scanning continues inside the parentheses.
func (z *analyzer) nodePattern(i int) {
	j := i + 1
	var alias Token
	if variable(z.tok(j)) {
		alias = z.tok(j)
		j++
	}
	labels, j := z.labelList(j)
	labelEnd := j

	mapStart, mapEnd := -1, -1
	if z.tok(j).IsPunct("{") {
		mapStart = j
		mapEnd = z.matching(j)
		if mapEnd < 0 {
			return
		}
		j = mapEnd + 1
	} else if z.tok(j).Kind == Param {
		j++
	}
	if z.tok(j).Is("WHERE") {
		j = z.matching(i)
		if j < 0 {
			return
		}
	}
	if !z.tok(j).IsPunct(")") {
		return
	}

	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.Name)
		z.a.Labels = append(z.a.Labels, l)
	}
	if alias.Text != "" {
		b := z.bind(alias.Text)
		b.node = true
		z.addNames(b, labels)
	}
	for k := i + 1; k < labelEnd; k++ {
		z.consumed[k] = true
	}
	if mapStart >= 0 {
		z.mapKeys(mapStart, mapEnd, alias.Text, names, false)
	}
}

// relPattern parses '[' alias? types? range? map? (WHERE ...)? ']' at i, which
// must be followed by '-' or '->'.
func (z *analyzer) relPattern(i int) {
	end := z.matching(i)
	if end < 0 || !(z.tok(end+1).IsPunct("-") || z.tok(end+1).IsPunct("->")) {
		return
	}

	j := i + 1
	var alias Token
	if variable(z.tok(j)) {
		alias = z.tok(j)
		j++
	}
	types, j := z.labelList(j)

	if z.tok(j).IsPunct("*") {
		j++
		for z.tok(j).Kind == Number || z.tok(j).IsPunct("..") {
			j++
		}
	}

	mapStart, mapEnd := -1, -1
	if z.tok(j).IsPunct("{") {
		mapStart = j
		mapEnd = z.matching(j)
		j = mapEnd + 1
	} else if z.tok(j).Kind == Param {
		j++
	}
	if z.tok(j).Is("WHERE") {
		j = end
	}
	if j != end {
		return
	}

	names := make([]string, 0, len(types))
	for _, r := range types {
		names = append(names, r.Name)
		z.a.RelationshipTypes = append(z.a.RelationshipTypes, r)
	}
	if alias.Text != "" {
		b := z.bind(alias.Text)
		b.rel = true
		z.addNames(b, types)
	}
	// Everything up to the map or WHERE is structural.
	stop := end
	if mapStart >= 0 {
		stop = mapStart
	}
	for k := i + 1; k < stop; k++ {
		if z.toks[k].Is("WHERE") {
			break
		}
		z.consumed[k] = true
	}
	if mapStart >= 0 {
		z.mapKeys(mapStart, mapEnd, alias.Text, names, true)
	}
}

// mapKeys records the keys of the map literal between open and close as
// properties of the pattern element.
func (z *analyzer) mapKeys(open, end int, alias string, labels []string, rel bool) {
	depth := 0
	for k := open; k <= end; k++ {
		t := z.toks[k]
		switch {
		case t.IsPunct("{") || t.IsPunct("[") || t.IsPunct("("):
			depth++
		case t.IsPunct("}") || t.IsPunct("]") || t.IsPunct(")"):
			depth--
		case depth == 1 && t.Kind == Ident && z.tok(k+1).IsPunct(":") &&
			(z.tok(k-1).IsPunct("{") || z.tok(k-1).IsPunct(",")):
			z.a.Properties = append(z.a.Properties, PropertyRef{
				Alias:        alias,
				Property:     t.Text,
				Labels:       labels,
				Relationship: rel,
				Pos:          t.Start,
			})
			z.consumed[k] = true
			z.consumed[k+1] = true
		}
	}
}

// projection records alias{.a, .b, key: expr} items.
func (z *analyzer) projection(i int) {
	alias := z.toks[i].Text
	open := i + 1
	end := z.matching(open)
	if end < 0 {
		return
	}
	depth := 0
	for k := open; k <= end; k++ {
		t := z.toks[k]
		switch {
		case t.IsPunct("{") || t.IsPunct("[") || t.IsPunct("("):
			depth++
		case t.IsPunct("}") || t.IsPunct("]") || t.IsPunct(")"):
			depth--
		case depth == 1 && t.IsPunct(".") && z.tok(k+1).Kind == Ident &&
			(z.tok(k-1).IsPunct("{") || z.tok(k-1).IsPunct(",")):
			z.a.Properties = append(z.a.Properties, PropertyRef{Alias: alias, Property: z.tok(k + 1).Text, Pos: t.Start})
			z.consumed[k+1] = true
		case depth == 1 && t.Kind == Ident && z.tok(k+1).IsPunct(":") &&
			(z.tok(k-1).IsPunct("{") || z.tok(k-1).IsPunct(",")):
			// Computed entries name output keys, not properties.
			z.consumed[k] = true
			z.consumed[k+1] = true
		}
	}
}

// matching returns the index of the bracket closing the one at open, or -1.
func (z *analyzer) matching(open int) int {
	depth := 0
	for k := open; k < len(z.toks); k++ {
		t := z.toks[k]
		if t.Kind != Punct {
			continue
		}
		switch t.Text {
		case "(", "[", "{":
			depth++
		case ")", "]", "}":
			depth--
			if depth == 0 {
				return k
			}
		}
	}
	return -1
}

func (z *analyzer) bind(alias string) *binding {
	return z.a.bind(alias)
}

// returns parses the items of the last top-level RETURN clause.
func (z *analyzer) returns() {
	depth := 0
	start := -1
	for k, t := range z.toks {
		switch {
		case t.IsPunct("(") || t.IsPunct("[") || t.IsPunct("{"):
			depth++
		case t.IsPunct(")") || t.IsPunct("]") || t.IsPunct("}"):
			depth--
		case depth == 0 && t.Is("RETURN"):
			start = k + 1
		}
	}
	if start < 0 {
		return
	}
	if z.tok(start).Is("DISTINCT") {
		start++
	}
	if z.tok(start).IsPunct("*") {
		z.a.ReturnAll = true
		start++
		if z.tok(start).IsPunct(",") {
			start++
		} else {
			return
		}
	}

	var items [][]Token
	var cur []Token
	depth = 0
	for k := start; k < len(z.toks); k++ {
		t := z.toks[k]
		if depth == 0 && (t.Is("ORDER") || t.Is("SKIP") || t.Is("LIMIT") || t.Is("UNION") || t.IsPunct(";")) {
			break
		}
		switch {
		case t.IsPunct("(") || t.IsPunct("[") || t.IsPunct("{"):
			depth++
		case t.IsPunct(")") || t.IsPunct("]") || t.IsPunct("}"):
			depth--
		}
		if depth == 0 && t.IsPunct(",") {
			items = append(items, cur)
			cur = nil
			continue
		}
		cur = append(cur, t)
	}
	if len(cur) > 0 {
		items = append(items, cur)
	}

	for _, item := range items {
		if len(item) == 0 {
			continue
		}
		expr := item
		key := ""
		if n := len(item); n >= 3 && item[n-2].Is("AS") && item[n-1].Kind == Ident {
			key = item[n-1].Text
			expr = item[:n-2]
		}
		ri := ReturnItem{
			Expr: z.src[expr[0].Start:expr[len(expr)-1].End],
		}
		if key == "" {
			key = ri.Expr
		}
		ri.Key = key

		switch {
		case len(expr) == 1 && variable(expr[0]):
			ri.Alias = expr[0].Text
		case len(expr) == 3 && variable(expr[0]) && expr[1].IsPunct(".") && expr[2].Kind == Ident:
			ri.Alias = expr[0].Text
			ri.Property = expr[2].Text
		}
		z.a.Returns = append(z.a.Returns, ri)
	}
}
