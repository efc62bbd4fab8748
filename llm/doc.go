// Package llm provides the types and the provider used to ask a language model
// for a completion.
//
// # Messages and requests
//
// A CompletionRequest carries the conversation and generation settings, built
// with functional options:
//
//	req := llm.NewCompletionRequest([]llm.Message{
//	    {Role: llm.RoleSystem, Content: "You translate questions into Cypher."},
//	    {Role: llm.RoleUser, Content: prompt},
//	}, llm.WithTemperature(0), llm.WithMaxTokens(512))
//
// # Providers
//
// Provider is the single call the pipeline needs. NewProvider builds the
// OpenAI-compatible HTTP provider for the configured endpoint:
//
//	p, err := llm.NewProvider(llm.Config{Provider: "openai", Model: "gpt-4", APIKey: key})
//	resp, err := p.Complete(ctx, req)
//
// # Token Tracking
//
// TokenTracker accumulates usage per model across concurrent requests:
//
//	tracker := llm.NewTokenTracker()
//	tracker.Add(resp.Model, resp.Usage)
//	total := tracker.Total()
package llm
