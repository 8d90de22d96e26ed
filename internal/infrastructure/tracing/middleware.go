package tracing

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// HTTPMiddleware opens a span per request and echoes the trace id back.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := withTrace(c.Request.Context(),
			TraceID(c.GetHeader(HeaderRequestID)),
			SpanID(c.GetHeader(HeaderParentID)),
		)

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+name)
		span.SetTag("http.method", c.Request.Method)
		span.SetTag("http.path", c.Request.URL.Path)

		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderRequestID, string(span.TraceID))

		c.Next()

		span.Status = c.Writer.Status()
		span.SetTag("http.status", strconv.Itoa(span.Status))
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}
		tracer.Submit(span)
	}
}

func fromIncoming(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}
	var traceID TraceID
	var parent SpanID
	if vals := md.Get(MetadataTraceID); len(vals) > 0 {
		traceID = TraceID(vals[0])
	}
	if vals := md.Get(MetadataParent); len(vals) > 0 {
		parent = SpanID(vals[0])
	}
	return withTrace(ctx, traceID, parent)
}

func toOutgoing(ctx context.Context, span *Span) context.Context {
	return metadata.AppendToOutgoingContext(ctx,
		MetadataTraceID, string(span.TraceID),
		MetadataParent, string(span.SpanID),
	)
}

func finishRPC(tracer *Tracer, span *Span, err error) {
	if err != nil {
		span.SetTag("rpc.code", status.Code(err).String())
		span.SetError(err)
	}
	tracer.Submit(span)
}

// GRPCUnaryInterceptor traces unary calls served by the host.
func GRPCUnaryInterceptor(tracer *Tracer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		span, ctx := tracer.StartSpan(fromIncoming(ctx), info.FullMethod)
		span.SetTag("rpc.system", "grpc")

		resp, err := handler(ctx, req)
		finishRPC(tracer, span, err)
		return resp, err
	}
}

// GRPCStreamInterceptor traces streams served by the host.
func GRPCStreamInterceptor(tracer *Tracer) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		span, ctx := tracer.StartSpan(fromIncoming(ss.Context()), info.FullMethod)
		span.SetTag("rpc.system", "grpc")
		span.SetTag("rpc.streaming", "true")

		err := handler(srv, &tracedServerStream{ServerStream: ss, ctx: ctx})
		finishRPC(tracer, span, err)
		return err
	}
}

type tracedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedServerStream) Context() context.Context {
	return s.ctx
}

// GRPCClientInterceptor propagates the trace of unary calls to the host.
func GRPCClientInterceptor(tracer *Tracer) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		span, ctx := tracer.StartSpan(ctx, method)
		span.SetTag("rpc.system", "grpc")
		span.SetTag("span.kind", "client")

		err := invoker(toOutgoing(ctx, span), method, req, reply, cc, opts...)
		finishRPC(tracer, span, err)
		return err
	}
}

// GRPCStreamClientInterceptor propagates the trace of streams opened to the
// host. The span covers stream setup only.
func GRPCStreamClientInterceptor(tracer *Tracer) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		span, ctx := tracer.StartSpan(ctx, method)
		span.SetTag("rpc.system", "grpc")
		span.SetTag("span.kind", "client")

		stream, err := streamer(toOutgoing(ctx, span), desc, cc, method, opts...)
		finishRPC(tracer, span, err)
		return stream, err
	}
}
