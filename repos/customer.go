package repos

import (
	"context"

	"github.com/creditrisk/graphqa/cypher"
	"github.com/creditrisk/graphqa/domain"
)

// CustomerRepository reads customers.
type CustomerRepository struct {
	base
}

// NewCustomerRepository creates a CustomerRepository.
func NewCustomerRepository(exec Executor, opts ...Option) *CustomerRepository {
	return &CustomerRepository{base: newBase(exec, opts)}
}

var customerShape = domain.Shape{Columns: []domain.Column{domain.NodeColumn("c", "c", "Customer")}}

// ListAll returns every customer ordered by id.
func (r *CustomerRepository) ListAll(ctx context.Context) ([]domain.Customer, error) {
	q := cypher.Match("Customer", "c").Return("c").OrderBy("c.customerId").Build()
	return list[domain.Customer](ctx, r.base, "CustomerRepository.ListAll", q, customerShape)
}

// ListByRiskRating returns the customers with the given rating.
func (r *CustomerRepository) ListByRiskRating(ctx context.Context, rating string) ([]domain.Customer, error) {
	q := cypher.Match("Customer", "c").
		Where("c", cypher.Predicate{Field: "riskRating", Op: cypher.Eq, Value: rating}).
		Return("c").
		OrderBy("c.customerId").
		Build()
	return list[domain.Customer](ctx, r.base, "CustomerRepository.ListByRiskRating", q, customerShape)
}

// Loans returns the loans held by a customer.
func (r *CustomerRepository) Loans(ctx context.Context, customerID string) ([]domain.Loan, error) {
	q := cypher.Match("Customer", "c").
		Where("c", cypher.Predicate{Field: "customerId", Op: cypher.Eq, Value: customerID}).
		Traverse("c", cypher.Traversal{Relationship: domain.CustomerHasLoan, Target: "Loan"}, "l").
		Return("l").
		OrderBy("l.loanId").
		Build()
	shape := domain.Shape{Columns: []domain.Column{domain.NodeColumn("l", "l", "Loan")}}
	return list[domain.Loan](ctx, r.base, "CustomerRepository.Loans", q, shape)
}
