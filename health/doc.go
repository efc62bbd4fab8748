// Package health provides health checks for the dependencies of the
// question-answering service.
//
// Each check returns a Status. Combine folds several statuses into one:
//
//   - Unhealthy: If any check is unhealthy, the combined result is unhealthy
//   - Degraded: If any check is degraded (and none unhealthy), the result is degraded
//   - Healthy: If all checks are healthy, the result is healthy
//
// # Usage Example
//
//	checker := health.NewChecker(
//	    health.Named("neo4j", health.PingCheck(store)),
//	    health.Named("schema", health.SchemaCheck(cache)),
//	    health.Named("llm", health.EndpointCheck(cfg.LLM.BaseURL)),
//	)
//	report := checker.Run(ctx)
//	if report.Overall.IsUnhealthy() {
//	    log.Printf("health check failed: %s", report.Overall.Message)
//	}
//
// # Context and Timeouts
//
// NetworkCheck and EndpointCheck dial with the caller's context. If it has
// no deadline, DefaultTimeout applies.
package health
