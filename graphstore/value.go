package graphstore

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Record is one result row: result alias to plain Go value.
type Record map[string]any

// Result is the ordered output of one query.
type Result struct {
	// Keys are the result aliases in declared order.
	Keys    []string
	Records []Record
}

// Len returns the number of records.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Records)
}

// Node is a graph node detached from the driver.
type Node struct {
	ElementID string
	Labels    []string
	Props     map[string]any
}

// HasLabel reports whether the node carries label.
func (n Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Relationship is a graph relationship detached from the driver.
type Relationship struct {
	ElementID string
	Type      string
	StartID   string
	EndID     string
	Props     map[string]any
}

// Path is an alternating walk of nodes and relationships.
type Path struct {
	Nodes         []Node
	Relationships []Relationship
}

// Value converts a driver value into plain Go types: nodes, relationships
// and paths become the types above, temporal values become time.Time, and
// lists and maps are converted element by element. Numbers, strings, bools
// and nil pass through unchanged.
func Value(v any) any {
	switch x := v.(type) {
	case neo4j.Node:
		return convertNode(x)
	case neo4j.Relationship:
		return convertRelationship(x)
	case neo4j.Path:
		p := Path{
			Nodes:         make([]Node, 0, len(x.Nodes)),
			Relationships: make([]Relationship, 0, len(x.Relationships)),
		}
		for _, n := range x.Nodes {
			p.Nodes = append(p.Nodes, convertNode(n))
		}
		for _, r := range x.Relationships {
			p.Relationships = append(p.Relationships, convertRelationship(r))
		}
		return p
	case neo4j.Date:
		return time.Time(x)
	case neo4j.LocalDateTime:
		return time.Time(x)
	case neo4j.LocalTime:
		return time.Time(x)
	case neo4j.Time:
		return time.Time(x)
	case neo4j.Duration:
		return x.String()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Value(e)
		}
		return out
	case map[string]any:
		return convertProps(x)
	default:
		return v
	}
}

func convertNode(n neo4j.Node) Node {
	labels := make([]string, len(n.Labels))
	copy(labels, n.Labels)
	return Node{ElementID: n.ElementId, Labels: labels, Props: convertProps(n.Props)}
}

func convertRelationship(r neo4j.Relationship) Relationship {
	return Relationship{
		ElementID: r.ElementId,
		Type:      r.Type,
		StartID:   r.StartElementId,
		EndID:     r.EndElementId,
		Props:     convertProps(r.Props),
	}
}

func convertProps(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Value(v)
	}
	return out
}

// NewRecord converts a driver record into a Record.
func NewRecord(rec *neo4j.Record) Record {
	out := make(Record, len(rec.Keys))
	for i, k := range rec.Keys {
		out[k] = Value(rec.Values[i])
	}
	return out
}
