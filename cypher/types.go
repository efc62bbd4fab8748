package cypher

import (
	"fmt"
)

// Query is Cypher text together with the values of its $parameters.
type Query struct {
	Text   string
	Params map[string]any
}

// Op represents a comparison or filter operation in a query predicate.
type Op int

const (
	// Eq represents equality comparison (=)
	Eq Op = iota
	// Neq represents inequality comparison (<>)
	Neq
	// Lt represents less than comparison (<)
	Lt
	// Lte represents less than or equal comparison (<=)
	Lte
	// Gt represents greater than comparison (>)
	Gt
	// Gte represents greater than or equal comparison (>=)
	Gte
	// Contains represents string containment check (CONTAINS)
	Contains
	// StartsWith represents string prefix check (STARTS WITH)
	StartsWith
	// In represents membership check (IN)
	In
	// IsNull represents null check (IS NULL)
	IsNull
	// IsNotNull represents non-null check (IS NOT NULL)
	IsNotNull
)

// String returns the Cypher operator.
func (o Op) String() string {
	switch o {
	case Eq:
		return "="
	case Neq:
		return "<>"
	case Lt:
		return "<"
	case Lte:
		return "<="
	case Gt:
		return ">"
	case Gte:
		return ">="
	case Contains:
		return "CONTAINS"
	case StartsWith:
		return "STARTS WITH"
	case In:
		return "IN"
	case IsNull:
		return "IS NULL"
	case IsNotNull:
		return "IS NOT NULL"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// valued reports whether the operation binds a parameter value.
func (o Op) valued() bool {
	return o != IsNull && o != IsNotNull
}

// Predicate is a filter on one property of an aliased node.
type Predicate struct {
	// Field is the property name to filter on
	Field string
	// Op is the comparison operation to perform
	Op Op
	// Value is the comparison value (ignored for IsNull/IsNotNull)
	Value any
}

// Direction is the arrow direction of a traversal.
type Direction string

const (
	Outgoing   Direction = "out"
	Incoming   Direction = "in"
	Undirected Direction = "both"
)

// Traversal is one relationship hop to a labelled target node.
type Traversal struct {
	// Relationship is the relationship type to traverse
	Relationship string
	// Target is the target node label
	Target string
	// Direction defaults to Outgoing when empty
	Direction Direction
	// Variable optionally binds the relationship
	Variable string
}
