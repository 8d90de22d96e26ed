/*
Package tracing follows requests across the HTTP API and the remote terminal
transport.

A trace id arrives in the X-Request-ID header (or x-request-id gRPC
metadata), or is generated as a req_* id when absent. Each hop opens a span;
finished spans are handed to a buffered collector and logged with zap.

# Usage

	tracer := tracing.New("termd", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(tracing.GRPCUnaryInterceptor(tracer)),
		grpc.ChainStreamInterceptor(tracing.GRPCStreamInterceptor(tracer)),
	)

	conn, err := grpc.NewClient(addr,
		grpc.WithChainUnaryInterceptor(tracing.GRPCClientInterceptor(tracer)),
		grpc.WithChainStreamInterceptor(tracing.GRPCStreamClientInterceptor(tracer)),
	)

A guest forwarding keystrokes to its host therefore logs the same trace id on
both sides.
*/
package tracing
