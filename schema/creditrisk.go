package schema

// CreditRiskDefinition returns the schema of the reference credit-risk graph:
// customers holding loans, loans grouped in portfolios, and the PD, LGD and
// ECL risk parameters computed per loan under a stress scenario.
func CreditRiskDefinition() Definition {
	return Definition{
		Labels: []string{"Customer", "Loan", "Portfolio", "PD", "LGD", "ECL", "Scenario", "RiskModel"},
		RelationshipTypes: []string{
			"CUSTOMER_HAS_LOAN",
			"LOAN_BELONGS",
			"LOAN_HAS_PD",
			"LOAN_HAS_LGD",
			"LOAN_HAS_ECL",
			"UNDER_SCENARIO",
			"USES_MODEL",
		},
		NodeProperties: map[string][]string{
			"Customer":  {"customerId", "name", "riskRating"},
			"Loan":      {"loanId", "type", "exposure"},
			"Portfolio": {"name", "segment"},
			"PD":        {"value", "modelVersion"},
			"LGD":       {"value", "modelVersion"},
			"ECL":       {"value", "stage", "calculationDate"},
			"Scenario":  {"name", "unemployment", "gdpstock"},
			"RiskModel": {"name", "version"},
		},
		RelationshipProperties: map[string][]string{
			"LOAN_HAS_ECL": {"scenario", "modelVersion"},
		},
		Patterns: []Pattern{
			{From: "Customer", Type: "CUSTOMER_HAS_LOAN", To: "Loan"},
			{From: "Loan", Type: "LOAN_BELONGS", To: "Portfolio"},
			{From: "Loan", Type: "LOAN_HAS_PD", To: "PD"},
			{From: "Loan", Type: "LOAN_HAS_LGD", To: "LGD"},
			{From: "Loan", Type: "LOAN_HAS_ECL", To: "ECL"},
			{From: "ECL", Type: "UNDER_SCENARIO", To: "Scenario"},
			{From: "Scenario", Type: "USES_MODEL", To: "RiskModel"},
		},
	}
}

// CreditRisk returns the reference credit-risk schema as a GraphSchema.
func CreditRisk() *GraphSchema {
	s, err := New(CreditRiskDefinition())
	if err != nil {
		panic("schema: invalid built-in credit-risk definition: " + err.Error())
	}
	return s
}
