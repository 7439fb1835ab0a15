package instrument

import (
	"context"
	"time"

	"github.com/fyerfyer/fyer-session/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultInstrumentationName = "github.com/fyerfyer/fyer-session/session"

// TracingBuilder 构建为每个存储操作创建 span 的装饰器
type TracingBuilder struct {
	Tracer  trace.Tracer
	Backend string
}

func (b TracingBuilder) Build() session.StoreMiddleware {
	tracer := b.Tracer
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer(defaultInstrumentationName)
	}
	return func(next session.Store) session.Store {
		return &tracingStore{next: next, tracer: tracer, backend: b.Backend}
	}
}

type tracingStore struct {
	next    session.Store
	tracer  trace.Tracer
	backend string
}

func (s *tracingStore) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "session.store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("session.backend", s.backend),
			attribute.String("session.op", op),
		))
}

// end 结束 span。ErrNotFound 是正常结果，不标记为错误
func end(span trace.Span, err error) {
	outcome := Outcome(err)
	span.SetAttributes(attribute.String("session.outcome", outcome))
	if err != nil && outcome != "not_found" {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.End()
}

func (s *tracingStore) Get(ctx context.Context, id string) (*session.Record, error) {
	ctx, span := s.start(ctx, "get")
	rec, err := s.next.Get(ctx, id)
	end(span, err)
	return rec, err
}

func (s *tracingStore) Set(ctx context.Context, rec *session.Record) error {
	ctx, span := s.start(ctx, "set")
	span.SetAttributes(attribute.Int("session.values", len(rec.Values)))
	err := s.next.Set(ctx, rec)
	end(span, err)
	return err
}

func (s *tracingStore) Destroy(ctx context.Context, id string) error {
	ctx, span := s.start(ctx, "destroy")
	err := s.next.Destroy(ctx, id)
	end(span, err)
	return err
}

func (s *tracingStore) Touch(ctx context.Context, id string, expiresAt time.Time) error {
	ctx, span := s.start(ctx, "touch")
	err := s.next.Touch(ctx, id, expiresAt)
	end(span, err)
	return err
}

func (s *tracingStore) SweepExpired(ctx context.Context) (int, error) {
	ctx, span := s.start(ctx, "sweep")
	n, err := s.next.SweepExpired(ctx)
	span.SetAttributes(attribute.Int("session.swept", n))
	end(span, err)
	return n, err
}

func (s *tracingStore) Close() error {
	return s.next.Close()
}
