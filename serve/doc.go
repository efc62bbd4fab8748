// Package serve exposes a question-answering session over gRPC.
//
// The server registers graphqa.v1.QuestionService, whose single unary method
// Ask takes and returns google.protobuf.Struct values, and the standard
// grpc.health.v1 service. Answers use the same JSON layout as queue replies,
// so remote callers decode them with the same code whichever way they asked.
//
// # Usage
//
//	session, err := graphqa.Open(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	srv, err := serve.NewServer(session,
//		serve.WithAddress(":50051"),
//		serve.WithGracefulShutdown(30*time.Second),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	if err := srv.Serve(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// On the client side:
//
//	conn, err := grpc.NewClient("localhost:50051", grpc.WithTransportCredentials(insecure.NewCredentials()))
//	reply, err := serve.NewClient(conn).Ask(ctx, "Which loans are in Stage 3?", 0)
//
// # Health Checks
//
// Without a checker the service reports SERVING while the server runs. With
// WithHealthChecker the status follows the checker: an unhealthy overall
// verdict switches both the overall and the QuestionService status to
// NOT_SERVING. Graceful shutdown sets NOT_SERVING before draining.
package serve
