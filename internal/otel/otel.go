package otel

import (
	"context"
	"sync"

	eventbus "github.com/hanpama/graphcache/internal/eventbus"
	events "github.com/hanpama/graphcache/internal/events"
	reqid "github.com/hanpama/graphcache/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := &subscriber{tracer: otel.Tracer("graphcache")}
	sub.register()

	return tp.Shutdown, nil
}

type subscriber struct {
	tracer    trace.Tracer
	httpSpans sync.Map // rid -> trace.Span
	opSpans   sync.Map // rid -> trace.Span
}

// parentCtx nests cache operation spans under the HTTP span of the same
// request when one exists.
func (s *subscriber) parentCtx(ctx context.Context) context.Context {
	rid, _ := reqid.FromContext(ctx)
	if v, ok := s.httpSpans.Load(rid); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	return ctx
}

func (s *subscriber) startOp(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	rid, _ := reqid.FromContext(ctx)
	_, span := s.tracer.Start(s.parentCtx(ctx), name)
	span.SetAttributes(attrs...)
	s.opSpans.Store(rid, span)
}

func (s *subscriber) finishOp(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	rid, _ := reqid.FromContext(ctx)
	v, ok := s.opSpans.LoadAndDelete(rid)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

func (s *subscriber) register() {
	eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "http.request")
		span.SetAttributes(
			semconv.HTTPMethodKey.String(e.Request.Method),
			attribute.String("http.target", e.Request.URL.Path),
		)
		s.httpSpans.Store(rid, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.httpSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
		span.End()
	})

	eventbus.Subscribe(func(ctx context.Context, e events.WriteStart) {
		s.startOp(ctx, "cache.write",
			attribute.String("cache.entity_id", e.ID),
			attribute.Bool("cache.optimistic", e.Optimistic),
		)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.WriteFinish) {
		s.finishOp(ctx, e.Err, attribute.Int("cache.records", e.Records))
	})

	eventbus.Subscribe(func(ctx context.Context, e events.ReadStart) {
		s.startOp(ctx, "cache.read", attribute.String("cache.entity_id", e.ID))
	})

	eventbus.Subscribe(func(ctx context.Context, e events.ReadFinish) {
		s.finishOp(ctx, e.Err, attribute.Bool("cache.stale", e.Stale))
	})

	eventbus.Subscribe(func(ctx context.Context, e events.DiffStart) {
		s.startOp(ctx, "cache.diff", attribute.String("cache.entity_id", e.ID))
	})

	eventbus.Subscribe(func(ctx context.Context, e events.DiffFinish) {
		s.finishOp(ctx, e.Err,
			attribute.Bool("cache.is_missing", e.IsMissing),
			attribute.Int("cache.missing_sets", e.MissingSets),
		)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.ShapeMismatch) {
		rid, _ := reqid.FromContext(ctx)
		if v, ok := s.opSpans.Load(rid); ok {
			v.(trace.Span).AddEvent("cache.shape_mismatch",
				trace.WithAttributes(attribute.String("cache.path", e.Path)))
		}
	})
}
