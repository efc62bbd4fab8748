package repos

import (
	"context"

	"github.com/creditrisk/graphqa/cypher"
	"github.com/creditrisk/graphqa/domain"
)

// PortfolioRepository reads portfolios.
type PortfolioRepository struct {
	base
}

// NewPortfolioRepository creates a PortfolioRepository.
func NewPortfolioRepository(exec Executor, opts ...Option) *PortfolioRepository {
	return &PortfolioRepository{base: newBase(exec, opts)}
}

// ListAll returns every portfolio ordered by name.
func (r *PortfolioRepository) ListAll(ctx context.Context) ([]domain.Portfolio, error) {
	q := cypher.Match("Portfolio", "p").Return("p").OrderBy("p.name").Build()
	shape := domain.Shape{Columns: []domain.Column{domain.NodeColumn("p", "p", "Portfolio")}}
	return list[domain.Portfolio](ctx, r.base, "PortfolioRepository.ListAll", q, shape)
}

// PortfolioSummary aggregates the loans of one portfolio.
type PortfolioSummary struct {
	Portfolio domain.Portfolio
	Loans     int64
	Exposure  float64
	ECL       float64
}

// summaryQuery sums ECL per loan first so loans with several ECL nodes are
// counted once.
const summaryQuery = "MATCH (p:Portfolio) " +
	"OPTIONAL MATCH (p)<-[:LOAN_BELONGS]-(l:Loan) " +
	"OPTIONAL MATCH (l)-[:LOAN_HAS_ECL]->(e:ECL) " +
	"WITH p, l, sum(e.value) AS loanEcl " +
	"RETURN p, count(l) AS loans, sum(l.exposure) AS exposure, sum(loanEcl) AS ecl " +
	"ORDER BY p.name"

// Summaries returns loan count, total exposure and total ECL per portfolio.
func (r *PortfolioRepository) Summaries(ctx context.Context) ([]PortfolioSummary, error) {
	shape := domain.Shape{Columns: []domain.Column{
		domain.NodeColumn("p", "p", "Portfolio"),
		domain.ValueColumn("loans"),
		domain.ValueColumn("exposure"),
		domain.ValueColumn("ecl"),
	}}

	rows, err := r.rows(ctx, "PortfolioRepository.Summaries", cypher.Query{Text: summaryQuery}, shape)
	out := make([]PortfolioSummary, 0, len(rows))
	for _, row := range rows {
		p := first[domain.Portfolio](row)
		if p == nil {
			continue
		}
		s := PortfolioSummary{Portfolio: *p}
		if v := value(row, "loans"); v != nil {
			s.Loans, _ = v.Int()
		}
		if v := value(row, "exposure"); v != nil {
			s.Exposure, _ = v.Float()
		}
		if v := value(row, "ecl"); v != nil {
			s.ECL, _ = v.Float()
		}
		out = append(out, s)
	}
	return out, err
}
