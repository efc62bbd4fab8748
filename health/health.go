package health

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/creditrisk/graphqa/schema"
)

// DefaultTimeout bounds a check whose context has no deadline.
const DefaultTimeout = 5 * time.Second

// Check produces the status of one dependency.
type Check func(ctx context.Context) Status

// Pinger is a dependency that can verify its own connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports p healthy when Ping succeeds.
//
// Example:
//
//	status := health.PingCheck(store)(ctx)
//	if status.IsUnhealthy() {
//	    log.Fatal("graph store is unreachable")
//	}
func PingCheck(p Pinger) Check {
	return func(ctx context.Context) Status {
		ctx, cancel := withDefaultTimeout(ctx)
		defer cancel()

		start := time.Now()
		if err := p.Ping(ctx); err != nil {
			return Unhealthy("ping failed", map[string]any{"error": err.Error()})
		}
		return Status{
			Status:  StatusHealthy,
			Message: "ping succeeded",
			Details: map[string]any{"latency_ms": time.Since(start).Milliseconds()},
		}
	}
}

// SchemaCheck reports degraded until the cache holds a schema. Questions
// cannot be answered without one, but the service can still load it later.
func SchemaCheck(c *schema.Cache) Check {
	return func(ctx context.Context) Status {
		s, err := c.Snapshot()
		if err != nil {
			return Degraded("schema not loaded", map[string]any{"error": err.Error()})
		}
		return Status{
			Status:  StatusHealthy,
			Message: "schema loaded",
			Details: map[string]any{
				"labels":             len(s.Labels()),
				"relationship_types": len(s.RelationshipTypes()),
			},
		}
	}
}

// NetworkCheck verifies TCP connectivity to a host and port.
func NetworkCheck(ctx context.Context, host string, port int) Status {
	if host == "" {
		return Unhealthy("host cannot be empty", nil)
	}
	if port <= 0 || port > 65535 {
		return Unhealthy(fmt.Sprintf("invalid port number: %d", port), map[string]any{"port": port})
	}

	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	address := net.JoinHostPort(host, strconv.Itoa(port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return Unhealthy(
			fmt.Sprintf("failed to connect to %s", address),
			map[string]any{
				"host":  host,
				"port":  port,
				"error": err.Error(),
			},
		)
	}
	conn.Close()

	return Healthy(fmt.Sprintf("successfully connected to %s", address))
}

// EndpointCheck verifies TCP connectivity to the host of rawURL, such as the
// language model base URL. The port defaults from the scheme.
func EndpointCheck(rawURL string) Check {
	return func(ctx context.Context) Status {
		u, err := url.Parse(rawURL)
		if err != nil || u.Hostname() == "" {
			return Unhealthy(fmt.Sprintf("invalid endpoint %q", rawURL), nil)
		}
		port := 80
		if u.Scheme == "https" {
			port = 443
		}
		if p := u.Port(); p != "" {
			port, err = strconv.Atoi(p)
			if err != nil {
				return Unhealthy(fmt.Sprintf("invalid endpoint port %q", p), nil)
			}
		}
		return NetworkCheck(ctx, u.Hostname(), port)
	}
}

// Combine aggregates multiple statuses into one.
func Combine(checks ...Status) Status {
	if len(checks) == 0 {
		return Healthy("no checks provided")
	}

	var unhealthy, degraded []string
	var healthyCount int
	for _, check := range checks {
		msg := check.Message
		if msg == "" {
			msg = "unnamed check"
		}
		switch check.Status {
		case StatusUnhealthy:
			unhealthy = append(unhealthy, msg)
		case StatusDegraded:
			degraded = append(degraded, msg)
		case StatusHealthy:
			healthyCount++
		}
	}

	if len(unhealthy) > 0 {
		return Unhealthy(
			fmt.Sprintf("%d check(s) failed", len(unhealthy)),
			map[string]any{
				"total":         len(checks),
				"unhealthy":     len(unhealthy),
				"degraded":      len(degraded),
				"healthy":       healthyCount,
				"failed_checks": unhealthy,
			},
		)
	}
	if len(degraded) > 0 {
		return Degraded(
			fmt.Sprintf("%d check(s) degraded", len(degraded)),
			map[string]any{
				"total":           len(checks),
				"degraded":        len(degraded),
				"healthy":         healthyCount,
				"degraded_checks": degraded,
			},
		)
	}
	return Healthy(fmt.Sprintf("all %d check(s) passed", len(checks)))
}

// NamedCheck pairs a check with the component it covers.
type NamedCheck struct {
	Name  string
	Check Check
}

// Named creates a NamedCheck.
func Named(name string, check Check) NamedCheck {
	return NamedCheck{Name: name, Check: check}
}

// Report is the result of running every check.
type Report struct {
	Overall    Status            `json:"overall"`
	Components map[string]Status `json:"components"`
}

// Checker runs a fixed set of named checks.
type Checker struct {
	checks []NamedCheck
}

// NewChecker creates a Checker.
func NewChecker(checks ...NamedCheck) *Checker {
	return &Checker{checks: checks}
}

// Run executes all checks concurrently. Component messages in the overall
// status are prefixed with the component name.
func (c *Checker) Run(ctx context.Context) Report {
	results := make([]Status, len(c.checks))
	var mu sync.Mutex
	components := make(map[string]Status, len(c.checks))

	g, gctx := errgroup.WithContext(ctx)
	for i, nc := range c.checks {
		g.Go(func() error {
			st := nc.Check(gctx)
			mu.Lock()
			components[nc.Name] = st
			mu.Unlock()
			prefixed := st
			prefixed.Message = nc.Name + ": " + st.Message
			results[i] = prefixed
			return nil
		})
	}
	_ = g.Wait()

	return Report{Overall: Combine(results...), Components: components}
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultTimeout)
}
