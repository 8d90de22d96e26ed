package tracing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/shared/id"
)

// Propagation keys.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderParentID  = "X-Parent-Span"
	MetadataTraceID = "x-request-id"
	MetadataParent  = "x-parent-span"
)

const spanBuffer = 1024

// TraceID identifies a whole request flow.
type TraceID string

// SpanID identifies one hop of a trace.
type SpanID string

// Span is a single traced operation.
type Span struct {
	TraceID   TraceID
	SpanID    SpanID
	ParentID  SpanID
	Name      string
	Service   string
	StartTime time.Time
	Duration  time.Duration
	Tags      map[string]string
	Status    int
	Err       error
}

// SetTag annotates the span.
func (s *Span) SetTag(key, value string) {
	s.Tags[key] = value
}

// SetError marks the span as failed.
func (s *Span) SetError(err error) {
	s.Err = err
	if s.Status < 500 {
		s.Status = 500
	}
}

// finish stamps the duration.
func (s *Span) finish() {
	s.Duration = time.Since(s.StartTime)
}

// Tracer collects spans for one service.
type Tracer struct {
	service string
	log     *zap.Logger
	spans   chan *Span

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// New starts a tracer and its collector.
func New(service string, log *zap.Logger) *Tracer {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Tracer{
		service: service,
		log:     log.Named("trace"),
		spans:   make(chan *Span, spanBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go t.collect()
	return t
}

// StartSpan opens a span that continues the trace in ctx, or a new trace.
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID := TraceIDFrom(ctx)
	if traceID == "" {
		traceID = TraceID(id.NewRequestID())
	}

	span := &Span{
		TraceID:   traceID,
		SpanID:    SpanID(id.NewRequestID()),
		ParentID:  SpanIDFrom(ctx),
		Name:      name,
		Service:   t.service,
		StartTime: time.Now(),
		Tags:      make(map[string]string),
	}
	return span, withTrace(ctx, traceID, span.SpanID)
}

// Submit finishes the span and queues it. Spans are dropped when the
// collector is behind or the tracer is closed.
func (t *Tracer) Submit(span *Span) {
	span.finish()
	select {
	case <-t.done:
		return
	default:
	}
	select {
	case t.spans <- span:
	default:
		t.log.Warn("Span buffer full, dropping span",
			zap.String("trace_id", string(span.TraceID)),
			zap.String("operation", span.Name),
		)
	}
}

// Close stops the collector after logging what is queued.
func (t *Tracer) Close() {
	t.closeOnce.Do(func() {
		close(t.done)
		<-t.stopped
		for {
			select {
			case span := <-t.spans:
				t.record(span)
			default:
				return
			}
		}
	})
}

func (t *Tracer) collect() {
	defer close(t.stopped)
	for {
		select {
		case span := <-t.spans:
			t.record(span)
		case <-t.done:
			return
		}
	}
}

func (t *Tracer) record(span *Span) {
	fields := []zap.Field{
		zap.String("trace_id", string(span.TraceID)),
		zap.String("span_id", string(span.SpanID)),
		zap.String("operation", span.Name),
		zap.Duration("duration", span.Duration),
		zap.String("service", span.Service),
	}
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", string(span.ParentID)))
	}
	if span.Status != 0 {
		fields = append(fields, zap.Int("status", span.Status))
	}
	for k, v := range span.Tags {
		fields = append(fields, zap.String(k, v))
	}

	if span.Err != nil {
		t.log.Warn("Span failed", append(fields, zap.Error(span.Err))...)
		return
	}
	t.log.Debug("Span completed", fields...)
}

type contextKey int

const (
	traceIDKey contextKey = iota
	spanIDKey
)

func withTrace(ctx context.Context, traceID TraceID, spanID SpanID) context.Context {
	if traceID != "" {
		ctx = context.WithValue(ctx, traceIDKey, traceID)
	}
	if spanID != "" {
		ctx = context.WithValue(ctx, spanIDKey, spanID)
	}
	return ctx
}

// TraceIDFrom returns the trace id carried by ctx.
func TraceIDFrom(ctx context.Context) TraceID {
	traceID, _ := ctx.Value(traceIDKey).(TraceID)
	return traceID
}

// SpanIDFrom returns the current span id carried by ctx.
func SpanIDFrom(ctx context.Context) SpanID {
	spanID, _ := ctx.Value(spanIDKey).(SpanID)
	return spanID
}

// Field returns the trace id as a log field, or a no-op field.
func Field(ctx context.Context) zap.Field {
	if traceID := TraceIDFrom(ctx); traceID != "" {
		return zap.String("trace_id", string(traceID))
	}
	return zap.Skip()
}
