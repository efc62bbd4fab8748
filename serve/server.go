package serve

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/creditrisk/graphqa/config"
	"github.com/creditrisk/graphqa/health"
)

// Config holds serve configuration.
type Config struct {
	// Address is the TCP address the server listens on.
	// Default: :50051
	Address string

	// GracefulTimeout is the maximum duration to wait for in-flight
	// questions during graceful shutdown.
	// Default: 30 seconds
	GracefulTimeout time.Duration

	// TLSCertFile and TLSKeyFile enable TLS when both are set.
	TLSCertFile string
	TLSKeyFile  string

	// Checker drives the gRPC health service. Without one the server
	// reports SERVING for as long as it runs.
	Checker *health.Checker

	// HealthInterval is the period between health checks.
	// Default: 15 seconds
	HealthInterval time.Duration

	// Listener overrides Address.
	Listener net.Listener

	Logger *slog.Logger
}

// DefaultConfig returns default serve configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:         config.DefaultServeAddress,
		GracefulTimeout: 30 * time.Second,
		HealthInterval:  15 * time.Second,
		Logger:          slog.Default(),
	}
}

// Server is the gRPC front door: the question service plus the standard
// health service.
type Server struct {
	grpcServer   *grpc.Server
	listener     net.Listener
	config       *Config
	healthServer *grpchealth.Server
	logger       *slog.Logger
}

// NewServer creates a server answering with asker.
func NewServer(asker Asker, opts ...Option) (*Server, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var serverOpts []grpc.ServerOption
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS credentials: %w", err)
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	}
	serverOpts = append(serverOpts, grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))

	listener := cfg.Listener
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Address, err)
		}
	}

	grpcServer := grpc.NewServer(serverOpts...)
	RegisterQuestionServer(grpcServer, NewQuestionServer(asker))

	healthServer := grpchealth.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{
		grpcServer:   grpcServer,
		listener:     listener,
		config:       cfg,
		healthServer: healthServer,
		logger:       logger,
	}, nil
}

// GRPCServer returns the underlying gRPC server.
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpcServer
}

// HealthServer returns the health service.
func (s *Server) HealthServer() *grpchealth.Server {
	return s.healthServer
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.grpcServer.Serve(s.listener); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	if s.config.Checker != nil {
		go s.watchHealth(ctx)
	}
	s.logger.Info("question service listening", "address", s.listener.Addr().String())

	select {
	case <-ctx.Done():
		s.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Stop immediately stops the server. In-flight questions are cancelled.
func (s *Server) Stop() {
	s.grpcServer.Stop()
}

// GracefulStop stops accepting questions and waits for in-flight ones up to
// the configured timeout, then forces the stop.
func (s *Server) GracefulStop() {
	s.healthServer.Shutdown()

	timeout := s.config.GracefulTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("server stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("graceful shutdown timeout, forcing stop")
		s.grpcServer.Stop()
	}
}

// watchHealth mirrors the checker's verdict into the health service.
func (s *Server) watchHealth(ctx context.Context) {
	interval := s.config.HealthInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.updateHealth(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) updateHealth(ctx context.Context) {
	report := s.config.Checker.Run(ctx)
	st := healthpb.HealthCheckResponse_SERVING
	if report.Overall.IsUnhealthy() {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("health check failed", "message", report.Overall.Message)
	}
	s.healthServer.SetServingStatus("", st)
	s.healthServer.SetServingStatus(ServiceName, st)
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.WarnContext(ctx, "rpc failed", "method", info.FullMethod, "duration", time.Since(start), "error", err)
			return resp, err
		}
		logger.DebugContext(ctx, "rpc completed", "method", info.FullMethod, "duration", time.Since(start))
		return resp, nil
	}
}
