package serve

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	graphqa "github.com/creditrisk/graphqa"
	"github.com/creditrisk/graphqa/cypher"
	"github.com/creditrisk/graphqa/domain"
	"github.com/creditrisk/graphqa/health"
	"github.com/creditrisk/graphqa/qaerr"
)

const bufSize = 1024 * 1024

type askerFunc func(ctx context.Context, question string) graphqa.Answer

func (f askerFunc) AskQuestion(ctx context.Context, question string) graphqa.Answer {
	return f(ctx, question)
}

// startTestServer serves asker over an in-memory listener and returns a
// connected client.
func startTestServer(t *testing.T, asker Asker, opts ...Option) (*Server, *grpc.ClientConn) {
	t.Helper()

	lis := bufconn.Listen(bufSize)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := NewServer(asker, append([]Option{WithListener(lis), WithLogger(logger)}, opts...)...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv, conn
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":50051", cfg.Address)
	assert.Equal(t, 30*time.Second, cfg.GracefulTimeout)
	assert.Equal(t, 15*time.Second, cfg.HealthInterval)
	assert.Nil(t, cfg.Checker)
}

func TestNewServer_Listen(t *testing.T) {
	srv, err := NewServer(askerFunc(nil), WithAddress("127.0.0.1:0"))
	require.NoError(t, err)
	require.NotNil(t, srv.GRPCServer())
	require.NotNil(t, srv.HealthServer())

	addr, ok := srv.Addr().(*net.TCPAddr)
	require.True(t, ok)
	assert.Greater(t, addr.Port, 0)
	srv.Stop()
}

func TestNewServer_BadTLS(t *testing.T) {
	_, err := NewServer(askerFunc(nil), WithAddress("127.0.0.1:0"), WithTLS("/nonexistent/cert.pem", "/nonexistent/key.pem"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TLS")
}

func TestAsk_Answered(t *testing.T) {
	id := uuid.New()
	asker := askerFunc(func(ctx context.Context, question string) graphqa.Answer {
		return graphqa.Answer{
			ID:       id,
			Question: question,
			Status:   graphqa.Answered,
			Entities: []domain.Entity{
				&domain.Customer{Name: "Customer_3"},
				&domain.Value{Key: "total", Value: 2.5e6},
			},
			Query: cypher.Query{
				Text:   "MATCH (c:Customer)-[:CUSTOMER_HAS_LOAN]->(l:Loan)-[:LOAN_HAS_PD]->(pd:PD) WHERE pd.value > $lit0 RETURN c.name",
				Params: map[string]any{"lit0": 0.5},
			},
			Attempts: 2,
		}
	})
	_, conn := startTestServer(t, asker)

	reply, err := NewClient(conn).Ask(context.Background(), "Which customers have a PD above 0.5?", 0)
	require.NoError(t, err)

	assert.Equal(t, id.String(), reply.ID)
	assert.Equal(t, "answered", reply.Status)
	assert.Equal(t, 2, reply.Attempts)
	assert.Contains(t, reply.Query, "$lit0")
	assert.Equal(t, map[string]any{"lit0": 0.5}, reply.Params)
	assert.False(t, reply.HasError())
	assert.Positive(t, reply.CompletedAt)

	entities, err := reply.Decode()
	require.NoError(t, err)
	assert.Equal(t, []domain.Entity{
		&domain.Customer{Name: "Customer_3"},
		&domain.Value{Key: "total", Value: 2.5e6},
	}, entities)
}

func TestAsk_FailedAnswerIsNotAnRPCError(t *testing.T) {
	asker := askerFunc(func(ctx context.Context, question string) graphqa.Answer {
		return graphqa.Answer{
			Status: graphqa.Failed,
			Err:    qaerr.NewGenerationError("Generator.Generate", errors.New("503 service unavailable")),
		}
	})
	_, conn := startTestServer(t, asker)

	reply, err := NewClient(conn).Ask(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Equal(t, "failed", reply.Status)
	assert.True(t, reply.HasError())
	assert.Equal(t, string(qaerr.KindGeneration), reply.ErrorKind)
	assert.Contains(t, reply.Error, "503")
}

func TestAsk_TimeoutForwarded(t *testing.T) {
	var remaining time.Duration
	asker := askerFunc(func(ctx context.Context, question string) graphqa.Answer {
		if dl, ok := ctx.Deadline(); ok {
			remaining = time.Until(dl)
		}
		return graphqa.Answer{Status: graphqa.Unanswerable}
	})
	_, conn := startTestServer(t, asker)

	reply, err := NewClient(conn).Ask(context.Background(), "q", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "unanswerable", reply.Status)
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, 2*time.Second)
}

func TestAsk_MissingQuestion(t *testing.T) {
	called := false
	asker := askerFunc(func(ctx context.Context, question string) graphqa.Answer {
		called = true
		return graphqa.Answer{}
	})
	_, conn := startTestServer(t, asker)

	req, err := structpb.NewStruct(map[string]any{"question": "   "})
	require.NoError(t, err)
	err = conn.Invoke(context.Background(), AskMethod, req, new(structpb.Struct))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.False(t, called)
}

func TestHealth_DefaultServing(t *testing.T) {
	_, conn := startTestServer(t, askerFunc(nil))

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestHealth_FollowsChecker(t *testing.T) {
	checker := health.NewChecker(
		health.Named("neo4j", func(ctx context.Context) health.Status {
			return health.Unhealthy("connection refused", nil)
		}),
	)
	_, conn := startTestServer(t, askerFunc(nil), WithHealthChecker(checker, time.Hour))

	client := healthpb.NewHealthClient(conn)
	require.Eventually(t, func() bool {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_NOT_SERVING
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestReplyStructRoundTrip(t *testing.T) {
	reply := graphqa.Answer{Status: graphqa.Exhausted, Attempts: 3, Err: errors.New("rejected")}.Reply()

	s, err := replyToStruct(reply)
	require.NoError(t, err)
	assert.Equal(t, "exhausted", s.GetFields()["status"].GetStringValue())

	back, err := structToReply(s)
	require.NoError(t, err)
	assert.Equal(t, reply, *back)
}
