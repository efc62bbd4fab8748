package serve

import (
	"log/slog"
	"net"
	"time"

	"github.com/creditrisk/graphqa/health"
)

// Option is a functional option for configuring a Server.
type Option func(*Config)

// WithAddress sets the TCP listen address, such as ":50051".
//
// Example:
//
//	serve.NewServer(session, serve.WithAddress("127.0.0.1:9090"))
func WithAddress(addr string) Option {
	return func(c *Config) {
		c.Address = addr
	}
}

// WithListener serves on l instead of listening on Address.
func WithListener(l net.Listener) Option {
	return func(c *Config) {
		c.Listener = l
	}
}

// WithGracefulShutdown sets the maximum duration to wait for in-flight
// questions during graceful shutdown.
func WithGracefulShutdown(timeout time.Duration) Option {
	return func(c *Config) {
		c.GracefulTimeout = timeout
	}
}

// WithTLS enables TLS. Both paths must point to PEM-encoded files.
func WithTLS(certFile, keyFile string) Option {
	return func(c *Config) {
		c.TLSCertFile = certFile
		c.TLSKeyFile = keyFile
	}
}

// WithHealthChecker reports checker's verdict through the gRPC health
// service, re-evaluated every interval.
//
// Example:
//
//	checker := health.NewChecker(
//		health.Named("neo4j", health.PingCheck(store)),
//		health.Named("schema", health.SchemaCheck(cache)),
//	)
//	serve.NewServer(session, serve.WithHealthChecker(checker, 10*time.Second))
func WithHealthChecker(checker *health.Checker, interval time.Duration) Option {
	return func(c *Config) {
		c.Checker = checker
		if interval > 0 {
			c.HealthInterval = interval
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}
