package opentracing

import (
	"net/http"

	"github.com/fyerfyer/fyer-session/internal/httpx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type MiddlewareBuilder struct {
	Tracer trace.Tracer
}

var defaultInstrumentationName = "github.com/fyerfyer/fyer-session"

func (m *MiddlewareBuilder) Build() func(http.Handler) http.Handler {
	tracer := m.Tracer
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer(defaultInstrumentationName)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			reqCtx, span := tracer.Start(reqCtx, r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			span.SetAttributes(attribute.String("http.method", r.Method))
			span.SetAttributes(attribute.String("http.host", r.Host))
			span.SetAttributes(attribute.String("http.url", r.URL.String()))
			span.SetAttributes(attribute.String("http.scheme", r.URL.Scheme))
			span.SetAttributes(attribute.String("component", "web"))
			span.SetAttributes(attribute.String("http.proto", r.Proto))

			rec := httpx.NewStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(reqCtx))

			span.SetAttributes(attribute.Int("http.status", rec.Status))
			if rec.Status >= 500 {
				span.SetStatus(codes.Error, http.StatusText(rec.Status))
			}
		})
	}
}
