// Package schema holds the structural schema of the credit-risk graph: node
// labels, relationship types and the property names declared for each.
//
// A GraphSchema is immutable once constructed. It is loaded once per session
// by a Cache and shared read-only by every concurrent request.
package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Definition is the plain, mutable description of a schema as returned by an
// introspection call. It is the input to New and the output of
// GraphSchema.Definition.
type Definition struct {
	// Labels lists the node labels.
	Labels []string `json:"labels" yaml:"labels"`

	// RelationshipTypes lists the relationship type names.
	RelationshipTypes []string `json:"relationship_types" yaml:"relationship_types"`

	// NodeProperties maps a label to the property names declared on it.
	NodeProperties map[string][]string `json:"node_properties,omitempty" yaml:"node_properties,omitempty"`

	// RelationshipProperties maps a relationship type to its property names.
	RelationshipProperties map[string][]string `json:"relationship_properties,omitempty" yaml:"relationship_properties,omitempty"`

	// Patterns lists the (from)-[type]->(to) combinations present in the graph.
	Patterns []Pattern `json:"patterns,omitempty" yaml:"patterns,omitempty"`
}

// Pattern describes one relationship type between two labels.
type Pattern struct {
	From string `json:"from" yaml:"from"`
	Type string `json:"type" yaml:"type"`
	To   string `json:"to" yaml:"to"`
}

// String renders the pattern in Cypher arrow form.
func (p Pattern) String() string {
	return fmt.Sprintf("(:%s)-[:%s]->(:%s)", p.From, p.Type, p.To)
}

type set map[string]struct{}

func (s set) has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// GraphSchema is an immutable snapshot of the graph's structure.
// All accessors are safe for concurrent use.
type GraphSchema struct {
	labels   set
	relTypes set
	props    map[string]set
	relProps map[string]set
	patterns []Pattern
}

// New validates def and builds an immutable GraphSchema from it. Labels that
// only appear as keys of NodeProperties, and relationship types that only
// appear in RelationshipProperties or Patterns, are added to the respective
// sets. A definition without any label is rejected.
func New(def Definition) (*GraphSchema, error) {
	s := &GraphSchema{
		labels:   make(set),
		relTypes: make(set),
		props:    make(map[string]set),
		relProps: make(map[string]set),
	}

	for _, l := range def.Labels {
		if err := checkName("label", l); err != nil {
			return nil, err
		}
		s.labels[l] = struct{}{}
	}
	for _, r := range def.RelationshipTypes {
		if err := checkName("relationship type", r); err != nil {
			return nil, err
		}
		s.relTypes[r] = struct{}{}
	}

	for label, names := range def.NodeProperties {
		if err := checkName("label", label); err != nil {
			return nil, err
		}
		s.labels[label] = struct{}{}
		if err := addProps(s.props, label, names); err != nil {
			return nil, err
		}
	}
	for rel, names := range def.RelationshipProperties {
		if err := checkName("relationship type", rel); err != nil {
			return nil, err
		}
		s.relTypes[rel] = struct{}{}
		if err := addProps(s.relProps, rel, names); err != nil {
			return nil, err
		}
	}

	seen := make(map[Pattern]struct{}, len(def.Patterns))
	for _, p := range def.Patterns {
		if p.From == "" || p.Type == "" || p.To == "" {
			return nil, fmt.Errorf("incomplete relationship pattern %+v", p)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		s.labels[p.From] = struct{}{}
		s.labels[p.To] = struct{}{}
		s.relTypes[p.Type] = struct{}{}
		s.patterns = append(s.patterns, p)
	}
	slices.SortFunc(s.patterns, func(a, b Pattern) int {
		return strings.Compare(a.String(), b.String())
	})

	if len(s.labels) == 0 {
		return nil, errors.New("schema declares no node labels")
	}

	return s, nil
}

func checkName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("empty %s name", kind)
	}
	return nil
}

func addProps(dst map[string]set, owner string, names []string) error {
	props, ok := dst[owner]
	if !ok {
		props = make(set, len(names))
		dst[owner] = props
	}
	for _, n := range names {
		if err := checkName("property", n); err != nil {
			return fmt.Errorf("%s: %w", owner, err)
		}
		props[n] = struct{}{}
	}
	return nil
}

// HasLabel reports whether label is declared.
func (s *GraphSchema) HasLabel(label string) bool {
	return s.labels.has(label)
}

// HasRelationshipType reports whether rel is declared.
func (s *GraphSchema) HasRelationshipType(rel string) bool {
	return s.relTypes.has(rel)
}

// HasProperty reports whether prop is declared on label.
func (s *GraphSchema) HasProperty(label, prop string) bool {
	return s.props[label].has(prop)
}

// HasRelationshipProperty reports whether prop is declared on relationship type rel.
func (s *GraphSchema) HasRelationshipProperty(rel, prop string) bool {
	return s.relProps[rel].has(prop)
}

// Labels returns the declared labels in sorted order.
func (s *GraphSchema) Labels() []string {
	return s.labels.sorted()
}

// RelationshipTypes returns the declared relationship types in sorted order.
func (s *GraphSchema) RelationshipTypes() []string {
	return s.relTypes.sorted()
}

// Properties returns the property names declared on label in sorted order.
func (s *GraphSchema) Properties(label string) []string {
	return s.props[label].sorted()
}

// RelationshipProperties returns the property names declared on rel in sorted order.
func (s *GraphSchema) RelationshipProperties(rel string) []string {
	return s.relProps[rel].sorted()
}

// Patterns returns the known relationship patterns in sorted order.
func (s *GraphSchema) Patterns() []Pattern {
	return slices.Clone(s.patterns)
}

// Definition returns a fresh, sorted copy of the schema in plain form.
func (s *GraphSchema) Definition() Definition {
	def := Definition{
		Labels:            s.Labels(),
		RelationshipTypes: s.RelationshipTypes(),
		Patterns:          s.Patterns(),
	}
	if len(s.props) > 0 {
		def.NodeProperties = make(map[string][]string, len(s.props))
		for l := range s.props {
			def.NodeProperties[l] = s.Properties(l)
		}
	}
	if len(s.relProps) > 0 {
		def.RelationshipProperties = make(map[string][]string, len(s.relProps))
		for r := range s.relProps {
			def.RelationshipProperties[r] = s.RelationshipProperties(r)
		}
	}
	return def
}

// Render serializes the schema as structured text. The output only depends on
// the schema content, so equal schemas always render byte-identically.
func (s *GraphSchema) Render() string {
	var b strings.Builder

	b.WriteString("Node labels and properties:\n")
	for _, l := range s.Labels() {
		b.WriteString("  ")
		b.WriteString(l)
		if props := s.Properties(l); len(props) > 0 {
			fmt.Fprintf(&b, " {%s}", strings.Join(props, ", "))
		}
		b.WriteByte('\n')
	}

	b.WriteString("Relationship types and properties:\n")
	for _, r := range s.RelationshipTypes() {
		b.WriteString("  ")
		b.WriteString(r)
		if props := s.RelationshipProperties(r); len(props) > 0 {
			fmt.Fprintf(&b, " {%s}", strings.Join(props, ", "))
		}
		b.WriteByte('\n')
	}

	if len(s.patterns) > 0 {
		b.WriteString("Relationships:\n")
		for _, p := range s.patterns {
			b.WriteString("  ")
			b.WriteString(p.String())
			b.WriteByte('\n')
		}
	}

	return b.String()
}
