package graphqa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditrisk/graphqa/cypher"
	"github.com/creditrisk/graphqa/domain"
	"github.com/creditrisk/graphqa/graphstore"
	"github.com/creditrisk/graphqa/health"
	"github.com/creditrisk/graphqa/llm"
	"github.com/creditrisk/graphqa/qaerr"
	"github.com/creditrisk/graphqa/queue"
	"github.com/creditrisk/graphqa/schema"
	"github.com/creditrisk/graphqa/validator"
)

const highPDQuery = "MATCH (c:Customer)-[:CUSTOMER_HAS_LOAN]->(l:Loan)-[:LOAN_HAS_PD]->(pd:PD) WHERE pd.value > 0.5 RETURN c.name"

// fakeStore serves the credit-risk schema and answers queries with run.
type fakeStore struct {
	mu         sync.Mutex
	run        func(q cypher.Query) (*graphstore.Result, error)
	introspect error
	queries    []cypher.Query
	closed     bool
}

func (f *fakeStore) Run(ctx context.Context, q cypher.Query) (*graphstore.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.run == nil {
		return &graphstore.Result{}, nil
	}
	return f.run(q)
}

func (f *fakeStore) Introspect(ctx context.Context) (schema.Definition, error) {
	if f.introspect != nil {
		return schema.Definition{}, f.introspect
	}
	return schema.CreditRiskDefinition(), nil
}

func (f *fakeStore) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

func (f *fakeStore) executed() []cypher.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cypher.Query(nil), f.queries...)
}

// replying always answers with text.
func replying(text string) llm.ProviderFunc {
	return func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{
			Content: text,
			Model:   "test",
			Usage:   llm.TokenUsage{InputTokens: 100, OutputTokens: 20, TotalTokens: 120},
		}, nil
	}
}

func newTestSession(t *testing.T, store Store, provider llm.Provider, opts ...SessionOption) *Session {
	t.Helper()
	s, err := NewSession(context.Background(), store, provider, opts...)
	require.NoError(t, err)
	return s
}

func TestAskQuestion_Answered(t *testing.T) {
	store := &fakeStore{run: func(q cypher.Query) (*graphstore.Result, error) {
		return &graphstore.Result{
			Keys: []string{"c.name"},
			Records: []graphstore.Record{
				{"c.name": "Customer_3"},
				{"c.name": "Customer_7"},
			},
		}, nil
	}}
	s := newTestSession(t, store, replying("```cypher\n"+highPDQuery+"\n```"))

	ans := s.AskQuestion(context.Background(), "Which customers have a PD above 0.5?")

	require.Equal(t, Answered, ans.Status, "err: %v", ans.Err)
	assert.NoError(t, ans.Err)
	assert.Equal(t, 1, ans.Attempts)
	assert.Empty(t, ans.MappingErrors)
	assert.Equal(t, []domain.Entity{
		&domain.Customer{Name: "Customer_3"},
		&domain.Customer{Name: "Customer_7"},
	}, ans.Entities)

	executed := store.executed()
	require.Len(t, executed, 1)
	assert.Equal(t, ans.Query, executed[0])
	assert.Equal(t, map[string]any{"lit0": 0.5}, executed[0].Params)
	assert.NotContains(t, executed[0].Text, "0.5")

	assert.Equal(t, 120, s.TokenUsage().TotalTokens)
}

func TestAskQuestion_EmptyResult(t *testing.T) {
	s := newTestSession(t, &fakeStore{}, replying(highPDQuery))

	ans := s.AskQuestion(context.Background(), "Which customers have a PD above 0.5?")
	assert.Equal(t, Answered, ans.Status)
	assert.Empty(t, ans.Entities)
}

func TestAskQuestion_Unanswerable(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(t, store, replying("Not possible"))

	ans := s.AskQuestion(context.Background(), "What is the weather in Paris?")

	assert.Equal(t, Unanswerable, ans.Status)
	assert.NoError(t, ans.Err)
	assert.Equal(t, 1, ans.Attempts)
	assert.Empty(t, store.executed())
}

func TestAskQuestion_Exhausted(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(t, store, replying("MATCH (c:Customer)-[:OWNS]->(l:Loan) RETURN c.name"))

	ans := s.AskQuestion(context.Background(), "List customers and their loans")

	assert.Equal(t, Exhausted, ans.Status)
	assert.Equal(t, 3, ans.Attempts)
	assert.True(t, errors.Is(ans.Err, ErrUnanswerableAfterRetries))
	require.Len(t, ans.Violations, 1)
	assert.Equal(t, validator.ViolationRelationship, ans.Violations[0].Kind)
	assert.Equal(t, "OWNS", ans.Violations[0].Token)
	assert.Empty(t, store.executed(), "invalid queries must never reach the store")
}

func TestAskQuestion_MaxAttempts(t *testing.T) {
	var calls int
	var mu sync.Mutex
	provider := llm.ProviderFunc(func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return &llm.CompletionResponse{Content: "MATCH (x:Borrower) RETURN x"}, nil
	})
	s := newTestSession(t, &fakeStore{}, provider, WithMaxAttempts(5))

	ans := s.AskQuestion(context.Background(), "q")
	assert.Equal(t, Exhausted, ans.Status)
	assert.Equal(t, 5, ans.Attempts)
	assert.Equal(t, 5, calls)
}

func TestAskQuestion_ExecutionFailure(t *testing.T) {
	store := &fakeStore{run: func(q cypher.Query) (*graphstore.Result, error) {
		return nil, errors.New("connection reset by peer")
	}}
	s := newTestSession(t, store, replying(highPDQuery))

	ans := s.AskQuestion(context.Background(), "Which customers have a PD above 0.5?")

	assert.Equal(t, Failed, ans.Status)
	assert.True(t, errors.Is(ans.Err, ErrExecution))
	assert.Equal(t, 1, ans.Attempts)
	assert.Len(t, store.executed(), 1, "execution failures are not retried")
}

func TestAskQuestion_GenerationFailure(t *testing.T) {
	provider := llm.ProviderFunc(func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, errors.New("503 service unavailable")
	})
	s := newTestSession(t, &fakeStore{}, provider)

	ans := s.AskQuestion(context.Background(), "q")
	assert.Equal(t, Failed, ans.Status)
	assert.True(t, errors.Is(ans.Err, ErrGeneration))
}

func TestAskQuestion_Cancelled(t *testing.T) {
	s := newTestSession(t, &fakeStore{}, replying(highPDQuery))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ans := s.AskQuestion(ctx, "q")
	assert.Equal(t, Failed, ans.Status)
	assert.True(t, errors.Is(ans.Err, ErrTimeout))
}

func TestAskQuestion_PartialMapping(t *testing.T) {
	store := &fakeStore{run: func(q cypher.Query) (*graphstore.Result, error) {
		return &graphstore.Result{
			Keys: []string{"l.loanId", "l.exposure"},
			Records: []graphstore.Record{
				{"l.loanId": "LOAN_1", "l.exposure": 1000.0},
				{"l.loanId": "LOAN_2", "l.exposure": "lots"},
				{"l.loanId": "LOAN_3", "l.exposure": int64(3000)},
			},
		}, nil
	}}
	s := newTestSession(t, store, replying("MATCH (l:Loan) RETURN l.loanId, l.exposure"))

	ans := s.AskQuestion(context.Background(), "List loan exposures")

	require.Equal(t, Answered, ans.Status)
	assert.Equal(t, []domain.Entity{
		&domain.Loan{ID: "LOAN_1", Exposure: 1000},
		&domain.Loan{ID: "LOAN_3", Exposure: 3000},
	}, ans.Entities)
	require.Len(t, ans.MappingErrors, 1)
	assert.Equal(t, 1, ans.MappingErrors[0].Record)
	assert.True(t, errors.Is(ans.MappingErrors[0], ErrMapping))
}

func TestAskQuestion_DistinctIDs(t *testing.T) {
	s := newTestSession(t, &fakeStore{}, replying("Not possible"))

	a := s.AskQuestion(context.Background(), "q")
	b := s.AskQuestion(context.Background(), "q")
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "q", a.Question)
}

func TestNewSession_SchemaLoadFailure(t *testing.T) {
	store := &fakeStore{introspect: errors.New("ServiceUnavailable")}

	_, err := NewSession(context.Background(), store, replying(highPDQuery))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaLoad))
}

func TestNewSession_BadTemplate(t *testing.T) {
	_, err := NewSession(context.Background(), &fakeStore{}, replying(highPDQuery), WithPromptTemplate("{{.Nope"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestSession_SchemaAndClose(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(t, store, replying(highPDQuery))

	require.NotNil(t, s.Schema())
	assert.True(t, s.Schema().HasLabel("Customer"))
	assert.False(t, s.Schema().HasRelationshipType("OWNS"))

	require.NoError(t, s.Close(context.Background()))
	assert.True(t, store.closed)
}

func TestSession_HealthChecks(t *testing.T) {
	s := newTestSession(t, &fakeStore{}, replying(highPDQuery))

	checks := s.HealthChecks()
	require.Len(t, checks, 1)
	assert.Equal(t, "schema", checks[0].Name)

	report := health.NewChecker(checks...).Run(context.Background())
	assert.True(t, report.Overall.IsHealthy())
	assert.Equal(t, 8, report.Components["schema"].Details["labels"])
}

func TestAskBatch_PreservesOrder(t *testing.T) {
	// The question text selects the reply so concurrent calls stay distinguishable.
	provider := llm.ProviderFunc(func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		last := req.Messages[len(req.Messages)-1].Content
		if strings.Contains(last, "weather") {
			return &llm.CompletionResponse{Content: "Not possible"}, nil
		}
		return &llm.CompletionResponse{Content: highPDQuery}, nil
	})
	s := newTestSession(t, &fakeStore{}, provider, WithConcurrency(2))

	questions := make([]string, 0, 10)
	for i := range 10 {
		if i%2 == 0 {
			questions = append(questions, fmt.Sprintf("What is the weather on day %d?", i))
		} else {
			questions = append(questions, fmt.Sprintf("Which customers have a PD above 0.5? (%d)", i))
		}
	}

	answers := s.AskBatch(context.Background(), questions)
	require.Len(t, answers, len(questions))
	for i, ans := range answers {
		assert.Equal(t, questions[i], ans.Question)
		if i%2 == 0 {
			assert.Equal(t, Unanswerable, ans.Status, "question %d", i)
		} else {
			assert.Equal(t, Answered, ans.Status, "question %d", i)
		}
	}
}

func TestAnswer_Reply(t *testing.T) {
	store := &fakeStore{run: func(q cypher.Query) (*graphstore.Result, error) {
		return &graphstore.Result{
			Keys:    []string{"c.name"},
			Records: []graphstore.Record{{"c.name": "Customer_3"}},
		}, nil
	}}
	s := newTestSession(t, store, replying(highPDQuery))

	reply := s.AskQuestion(context.Background(), "Which customers have a PD above 0.5?").Reply()
	assert.Equal(t, "answered", reply.Status)
	assert.False(t, reply.HasError())
	assert.Contains(t, reply.Query, "$lit0")
	assert.Equal(t, map[string]any{"lit0": 0.5}, reply.Params)

	entities, err := reply.Decode()
	require.NoError(t, err)
	assert.Equal(t, []domain.Entity{&domain.Customer{Name: "Customer_3"}}, entities)
}

func TestAnswer_ReplyErrorKind(t *testing.T) {
	tests := []struct {
		name string
		ans  Answer
		want qaerr.Kind
	}{
		{"exhausted", Answer{Status: Exhausted, Err: qaerr.New("op", qaerr.KindUnanswerableAfterRetries, errors.New("x"))}, qaerr.KindUnanswerableAfterRetries},
		{"execution", Answer{Status: Failed, Err: &graphstore.ExecutionError{Diagnostic: "boom"}}, qaerr.KindExecution},
		{"timeout", Answer{Status: Failed, Err: qaerr.NewTimeoutError("op", context.DeadlineExceeded)}, qaerr.KindTimeout},
		{"unknown", Answer{Status: Failed, Err: errors.New("boom")}, qaerr.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := tt.ans.Reply()
			assert.Equal(t, tt.ans.Status.String(), reply.Status)
			assert.Equal(t, string(tt.want), reply.ErrorKind)
			assert.NotEmpty(t, reply.Error)
		})
	}
}

func TestSession_Handler(t *testing.T) {
	s := newTestSession(t, &fakeStore{}, replying("Not possible"))

	reply := s.Handler().Handle(context.Background(), queue.Job{ID: "job-1", Question: "What is the weather?"})
	assert.Equal(t, "unanswerable", reply.Status)
	assert.Empty(t, reply.Error)
	assert.Equal(t, 1, reply.Attempts)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "answered", Answered.String())
	assert.Equal(t, "unanswerable", Unanswerable.String())
	assert.Equal(t, "exhausted", Exhausted.String())
	assert.Equal(t, "failed", Failed.String())
}
