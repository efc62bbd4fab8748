package repos

import (
	"context"

	"github.com/creditrisk/graphqa/cypher"
	"github.com/creditrisk/graphqa/domain"
)

// LoanRepository reads loans and their risk parameters.
type LoanRepository struct {
	base
}

// NewLoanRepository creates a LoanRepository.
func NewLoanRepository(exec Executor, opts ...Option) *LoanRepository {
	return &LoanRepository{base: newBase(exec, opts)}
}

var loanShape = domain.Shape{Columns: []domain.Column{domain.NodeColumn("l", "l", "Loan")}}

// ListAll returns every loan ordered by id.
func (r *LoanRepository) ListAll(ctx context.Context) ([]domain.Loan, error) {
	q := cypher.Match("Loan", "l").Return("l").OrderBy("l.loanId").Build()
	return list[domain.Loan](ctx, r.base, "LoanRepository.ListAll", q, loanShape)
}

// ListByType returns the loans of one product type, such as "Home Loan".
func (r *LoanRepository) ListByType(ctx context.Context, loanType string) ([]domain.Loan, error) {
	q := cypher.Match("Loan", "l").
		Where("l", cypher.Predicate{Field: "type", Op: cypher.Eq, Value: loanType}).
		Return("l").
		OrderBy("l.loanId").
		Build()
	return list[domain.Loan](ctx, r.base, "LoanRepository.ListByType", q, loanShape)
}

// LoanRisk is a loan with its risk parameters. Parameters the graph lacks
// are nil.
type LoanRisk struct {
	Loan domain.Loan
	PD   *domain.PD
	LGD  *domain.LGD
	ECL  *domain.ECL
}

// DerivedECL recomputes the expected credit loss from exposure, PD and LGD.
func (r LoanRisk) DerivedECL() (float64, bool) {
	if r.PD == nil || r.LGD == nil {
		return 0, false
	}
	return domain.DeriveECL(r.Loan.Exposure, r.PD.Value, r.LGD.Value), true
}

// Stage returns the recorded ECL stage, or the stage implied by PD.
func (r LoanRisk) Stage() string {
	if r.ECL != nil && r.ECL.Stage != "" {
		return r.ECL.Stage
	}
	if r.PD != nil {
		return domain.StageFor(r.PD.Value)
	}
	return ""
}

// RiskProfiles returns every loan with its PD, LGD and ECL. Loans with a PD
// of at least minPD are included; a minPD of zero includes loans without PD.
func (r *LoanRepository) RiskProfiles(ctx context.Context, minPD float64) ([]LoanRisk, error) {
	b := cypher.Match("Loan", "l")
	if minPD > 0 {
		b = b.Traverse("l", cypher.Traversal{Relationship: domain.LoanHasPD, Target: "PD"}, "pd").
			Where("pd", cypher.Predicate{Field: "value", Op: cypher.Gte, Value: minPD})
	} else {
		b = b.OptionalTraverse("l", cypher.Traversal{Relationship: domain.LoanHasPD, Target: "PD"}, "pd")
	}
	q := b.OptionalTraverse("l", cypher.Traversal{Relationship: domain.LoanHasLGD, Target: "LGD"}, "lgd").
		OptionalTraverse("l", cypher.Traversal{Relationship: domain.LoanHasECL, Target: "ECL", Variable: "r"}, "e").
		ReturnItems(
			cypher.Projection{Expr: "l"},
			cypher.Projection{Expr: "pd"},
			cypher.Projection{Expr: "lgd"},
			cypher.Projection{Expr: "e"},
			cypher.Field("r", "scenario", "scenario"),
			cypher.Field("r", "modelVersion", "eclModel"),
		).
		OrderBy("l.loanId").
		Build()

	shape := domain.Shape{Columns: []domain.Column{
		domain.NodeColumn("l", "l", "Loan"),
		domain.NodeColumn("pd", "pd", "PD"),
		domain.NodeColumn("lgd", "lgd", "LGD"),
		domain.NodeColumn("e", "e", "ECL"),
		domain.PropertyColumn("scenario", "e", "ECL", "scenario"),
		domain.PropertyColumn("eclModel", "e", "ECL", "modelVersion"),
	}}

	rows, err := r.rows(ctx, "LoanRepository.RiskProfiles", q, shape)
	out := make([]LoanRisk, 0, len(rows))
	for _, row := range rows {
		loan := first[domain.Loan](row)
		if loan == nil {
			continue
		}
		lr := LoanRisk{Loan: *loan, PD: first[domain.PD](row), LGD: first[domain.LGD](row)}
		if e := first[domain.ECL](row); e != nil && (e.Stage != "" || e.Value != 0) {
			lr.ECL = e
		}
		out = append(out, lr)
	}
	return out, err
}
