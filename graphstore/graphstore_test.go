package graphstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditrisk/graphqa/cypher"
	"github.com/creditrisk/graphqa/qaerr"
	"github.com/creditrisk/graphqa/schema"
)

func TestValue(t *testing.T) {
	day := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	node := neo4j.Node{
		ElementId: "4:abc:1",
		Labels:    []string{"ECL"},
		Props: map[string]any{
			"value":           12500.5,
			"calculationDate": neo4j.Date(day),
			"stage":           "Stage 2",
		},
	}
	got, ok := Value(node).(Node)
	require.True(t, ok)
	assert.Equal(t, "4:abc:1", got.ElementID)
	assert.True(t, got.HasLabel("ECL"))
	assert.False(t, got.HasLabel("Loan"))
	assert.Equal(t, day, got.Props["calculationDate"])
	assert.Equal(t, 12500.5, got.Props["value"])

	rel := neo4j.Relationship{
		ElementId:      "5:abc:9",
		Type:           "LOAN_HAS_ECL",
		StartElementId: "4:abc:2",
		EndElementId:   "4:abc:1",
		Props:          map[string]any{"scenario": "Baseline"},
	}
	r, ok := Value(rel).(Relationship)
	require.True(t, ok)
	assert.Equal(t, "LOAN_HAS_ECL", r.Type)
	assert.Equal(t, "4:abc:2", r.StartID)
	assert.Equal(t, "Baseline", r.Props["scenario"])

	list := Value([]any{node, int64(3), "x"}).([]any)
	assert.IsType(t, Node{}, list[0])
	assert.Equal(t, int64(3), list[1])

	nested := Value(map[string]any{"when": neo4j.LocalDateTime(day)}).(map[string]any)
	assert.Equal(t, day, nested["when"])

	assert.Nil(t, Value(nil))
	assert.Equal(t, true, Value(true))
}

func TestValue_Path(t *testing.T) {
	p := neo4j.Path{
		Nodes: []neo4j.Node{
			{ElementId: "1", Labels: []string{"Customer"}},
			{ElementId: "2", Labels: []string{"Loan"}},
		},
		Relationships: []neo4j.Relationship{{ElementId: "3", Type: "CUSTOMER_HAS_LOAN"}},
	}
	got, ok := Value(p).(Path)
	require.True(t, ok)
	require.Len(t, got.Nodes, 2)
	require.Len(t, got.Relationships, 1)
	assert.Equal(t, "CUSTOMER_HAS_LOAN", got.Relationships[0].Type)
}

func TestNewRecord(t *testing.T) {
	rec := &neo4j.Record{
		Keys:   []string{"c.name", "n"},
		Values: []any{"Customer_1", neo4j.Node{Labels: []string{"Customer"}, Props: map[string]any{"name": "Customer_1"}}},
	}
	got := NewRecord(rec)
	assert.Equal(t, "Customer_1", got["c.name"])
	assert.IsType(t, Node{}, got["n"])
}

func TestBuildDefinition(t *testing.T) {
	def, err := buildDefinition(
		[]Record{{"label": "Customer"}, {"label": "Loan"}, {"label": "ECL"}},
		[]Record{{"relationshipType": "CUSTOMER_HAS_LOAN"}, {"relationshipType": "LOAN_HAS_ECL"}},
		[]Record{
			{"nodeLabels": []any{"Customer"}, "propertyName": "name"},
			{"nodeLabels": []any{"Customer"}, "propertyName": "riskRating"},
			{"nodeLabels": []any{"Loan"}, "propertyName": "exposure"},
			{"nodeLabels": []any{"ECL"}, "propertyName": nil},
		},
		[]Record{
			{"relType": ":`LOAN_HAS_ECL`", "propertyName": "scenario"},
			{"relType": ":`CUSTOMER_HAS_LOAN`", "propertyName": nil},
		},
		[]Record{
			{"from": []any{"Customer"}, "type": "CUSTOMER_HAS_LOAN", "to": []any{"Loan"}},
			{"from": []any{"Loan"}, "type": "LOAN_HAS_ECL", "to": []any{"ECL"}},
			{"from": []any{"A", "B"}, "type": "X", "to": []any{"Loan"}},
		},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"Customer", "Loan", "ECL"}, def.Labels)
	assert.Equal(t, []string{"name", "riskRating"}, def.NodeProperties["Customer"])
	assert.NotContains(t, def.NodeProperties, "ECL")
	assert.Equal(t, []string{"scenario"}, def.RelationshipProperties["LOAN_HAS_ECL"])
	assert.Len(t, def.Patterns, 2)

	s, err := schema.New(def)
	require.NoError(t, err)
	assert.True(t, s.HasRelationshipProperty("LOAN_HAS_ECL", "scenario"))
	assert.True(t, s.HasProperty("Loan", "exposure"))
}

func TestBuildDefinition_NoLabels(t *testing.T) {
	_, err := buildDefinition(nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestUnquoteType(t *testing.T) {
	assert.Equal(t, "LOAN_HAS_PD", unquoteType(":`LOAN_HAS_PD`"))
	assert.Equal(t, "LOAN_HAS_PD", unquoteType("LOAN_HAS_PD"))
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, DefaultURI, c.URI)
	assert.Equal(t, DefaultDatabase, c.Database)
	assert.Equal(t, DefaultPoolSize, c.PoolSize)
	assert.Equal(t, DefaultQueryTimeout, c.QueryTimeout)

	c = Config{PoolSize: 4, Database: "risk"}.withDefaults()
	assert.Equal(t, 4, c.PoolSize)
	assert.Equal(t, "risk", c.Database)
}

func TestExecutor_Execute(t *testing.T) {
	q := cypher.Query{Text: "MATCH (c:Customer) WHERE c.riskRating = $lit0 RETURN c.name", Params: map[string]any{"lit0": "High"}}

	var got cypher.Query
	runner := RunnerFunc(func(ctx context.Context, q cypher.Query) (*Result, error) {
		got = q
		return &Result{Keys: []string{"c.name"}, Records: []Record{{"c.name": "Customer_8"}}}, nil
	})

	res, err := NewExecutor(runner).Execute(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, q, got, "the validated query is run unchanged")
	assert.Equal(t, 1, res.Len())
	assert.Equal(t, []string{"c.name"}, res.Keys)
}

func TestExecutor_NilResult(t *testing.T) {
	runner := RunnerFunc(func(ctx context.Context, q cypher.Query) (*Result, error) { return nil, nil })
	res, err := NewExecutor(runner).Execute(context.Background(), cypher.Query{Text: "RETURN 1"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Len())
}

func TestExecutor_StoreError(t *testing.T) {
	q := cypher.Query{Text: "MATCH (c:Customer) RETURN c.name ORDER BY"}
	runner := RunnerFunc(func(ctx context.Context, q cypher.Query) (*Result, error) {
		return nil, &neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError", Msg: "Invalid input ''"}
	})

	_, err := NewExecutor(runner).Execute(context.Background(), q)
	require.Error(t, err)

	var xerr *ExecutionError
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, q, xerr.Query)
	assert.Equal(t, "Neo.ClientError.Statement.SyntaxError", xerr.Code)
	assert.Equal(t, "Invalid input ''", xerr.Diagnostic)
	assert.True(t, errors.Is(err, qaerr.ErrExecution))
	assert.True(t, errors.Is(err, &qaerr.Error{Kind: qaerr.KindExecution}))
	assert.Contains(t, err.Error(), q.Text)
}

func TestExecutor_PlainError(t *testing.T) {
	runner := RunnerFunc(func(ctx context.Context, q cypher.Query) (*Result, error) {
		return nil, errors.New("connection reset")
	})

	_, err := NewExecutor(runner).Execute(context.Background(), cypher.Query{Text: "RETURN 1"})
	var xerr *ExecutionError
	require.True(t, errors.As(err, &xerr))
	assert.Empty(t, xerr.Code)
	assert.Equal(t, "connection reset", xerr.Diagnostic)
}

func TestExecutor_OwnTimeout(t *testing.T) {
	runner := RunnerFunc(func(ctx context.Context, q cypher.Query) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := NewExecutor(runner, WithTimeout(10*time.Millisecond)).Execute(context.Background(), cypher.Query{Text: "RETURN 1"})
	var xerr *ExecutionError
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, CodeTimeout, xerr.Code)
	assert.False(t, errors.Is(err, qaerr.ErrTimeout))
}

func TestExecutor_CallerDeadline(t *testing.T) {
	runner := RunnerFunc(func(ctx context.Context, q cypher.Query) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := NewExecutor(runner).Execute(ctx, cypher.Query{Text: "RETURN 1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, qaerr.ErrTimeout))
	assert.False(t, errors.Is(err, qaerr.ErrExecution))
}

func TestExecutor_CancelledBeforeRun(t *testing.T) {
	called := false
	runner := RunnerFunc(func(ctx context.Context, q cypher.Query) (*Result, error) {
		called = true
		return &Result{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExecutor(runner).Execute(ctx, cypher.Query{Text: "RETURN 1"})
	assert.True(t, errors.Is(err, qaerr.ErrTimeout))
	assert.False(t, called)
}
