// Package graphqa answers natural-language questions about a credit-risk
// knowledge graph.
//
// A question is translated by a language model into a Cypher query that may
// only use the labels, relationship types and properties of the graph's
// schema. The query is validated against the schema before it runs; invalid
// queries are regenerated with the rejection reasons as feedback, a bounded
// number of times. Questions the schema cannot express are reported as such
// instead of being guessed at.
//
// # Getting Started
//
// Open a Session from configuration. Opening connects to Neo4j and loads the
// graph schema once:
//
//	cfg, err := config.Load("graphqa.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	session, err := graphqa.Open(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer session.Close(context.Background())
//
//	answer := session.AskQuestion(ctx, "Which customers hold a loan with PD above 0.5?")
//	switch answer.Status {
//	case graphqa.Answered:
//		for _, c := range domain.OfType[*domain.Customer](answer.Entities) {
//			fmt.Println(c.Name)
//		}
//	case graphqa.Unanswerable, graphqa.Exhausted:
//		fmt.Println("not answerable in this schema")
//	case graphqa.Failed:
//		log.Println(answer.Err)
//	}
//
// # Pipeline
//
// Each question passes through the prompt builder, the generator, the
// validator, the executor and the result mapper, in that order. Only the
// generator and the executor block; each has its own timeout and both honour
// the caller's context.
//
// # Errors
//
// AskQuestion never returns a Go error: failures are reported through the
// Answer's Status and Err. Err matches the sentinels re-exported by this
// package under errors.Is.
package graphqa
