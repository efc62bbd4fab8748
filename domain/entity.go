// Package domain holds the credit-risk entities and maps query records onto
// them.
package domain

import "time"

// Entity is a typed value produced from a result record.
type Entity interface {
	// Kind names the entity type: the node label it maps, or "Value".
	Kind() string
}

// Customer is a borrower.
type Customer struct {
	ID         string `json:"customerId"`
	Name       string `json:"name"`
	RiskRating string `json:"riskRating"`
}

func (*Customer) Kind() string { return "Customer" }

// Loan is one credit facility.
type Loan struct {
	ID       string  `json:"loanId"`
	Type     string  `json:"type"`
	Exposure float64 `json:"exposure"`
}

func (*Loan) Kind() string { return "Loan" }

// PD is a probability of default attached to a loan.
type PD struct {
	Value        float64 `json:"value"`
	ModelVersion string  `json:"modelVersion,omitempty"`
}

func (*PD) Kind() string { return "PD" }

// LGD is a loss given default attached to a loan.
type LGD struct {
	Value        float64 `json:"value"`
	ModelVersion string  `json:"modelVersion,omitempty"`
}

func (*LGD) Kind() string { return "LGD" }

// ECL is an expected credit loss computed for a loan. Scenario and
// ModelVersion live on the LOAN_HAS_ECL relationship in the graph.
type ECL struct {
	Value           float64   `json:"value"`
	Stage           string    `json:"stage,omitempty"`
	CalculationDate time.Time `json:"calculationDate,omitzero"`
	Scenario        string    `json:"scenario,omitempty"`
	ModelVersion    string    `json:"modelVersion,omitempty"`
}

func (*ECL) Kind() string { return "ECL" }

// Portfolio groups loans by business line.
type Portfolio struct {
	Name    string `json:"name"`
	Segment string `json:"segment"`
}

func (*Portfolio) Kind() string { return "Portfolio" }

// Scenario is a macroeconomic stress scenario. Parameters holds its numeric
// drivers, such as unemployment.
type Scenario struct {
	Name       string             `json:"name"`
	Parameters map[string]float64 `json:"parameters,omitempty"`
}

func (*Scenario) Kind() string { return "Scenario" }

// RiskModel is the model an ECL calculation used.
type RiskModel struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (*RiskModel) Kind() string { return "RiskModel" }

// Value is a result column that is not an entity property, such as an
// aggregate.
type Value struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (*Value) Kind() string { return "Value" }

// Float returns the value as a float64.
func (v *Value) Float() (float64, error) {
	return toFloat64(v.Value)
}

// Int returns the value as an int64.
func (v *Value) Int() (int64, error) {
	return toInt64(v.Value)
}

// Text returns the value as a string.
func (v *Value) Text() (string, error) {
	return toString(v.Value)
}

// Relationship types of the credit-risk graph.
const (
	CustomerHasLoan = "CUSTOMER_HAS_LOAN"
	LoanBelongs     = "LOAN_BELONGS"
	LoanHasPD       = "LOAN_HAS_PD"
	LoanHasLGD      = "LOAN_HAS_LGD"
	LoanHasECL      = "LOAN_HAS_ECL"
	UnderScenario   = "UNDER_SCENARIO"
	UsesModel       = "USES_MODEL"
)

// OfType returns the entities of type T, in order.
func OfType[T Entity](entities []Entity) []T {
	var out []T
	for _, e := range entities {
		if t, ok := e.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
