package driver

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/soundprediction/kgpath/pkg/metrics"
	"github.com/soundprediction/kgpath/pkg/types"
)

const tracerName = "github.com/soundprediction/kgpath/pkg/driver"

// InstrumentedDriver records latency metrics and spans for every backend call.
type InstrumentedDriver struct {
	next     GraphDriver
	recorder metrics.Recorder
	tracer   trace.Tracer
}

var _ GraphDriver = (*InstrumentedDriver)(nil)

// NewInstrumentedDriver wraps next. With tracing disabled spans go to a
// no-op tracer; otherwise the global otel provider is used.
func NewInstrumentedDriver(next GraphDriver, recorder metrics.Recorder, tracing bool) *InstrumentedDriver {
	tracer := noop.NewTracerProvider().Tracer(tracerName)
	if tracing {
		tracer = otel.Tracer(tracerName)
	}
	return &InstrumentedDriver{next: next, recorder: metrics.OrNoop(recorder), tracer: tracer}
}

func instrument[T any](ctx context.Context, d *InstrumentedDriver, op string, attrs []attribute.KeyValue, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := d.tracer.Start(ctx, "graph."+op, trace.WithAttributes(
		append(attrs, attribute.String("graph.provider", string(d.next.Provider())))...))
	defer span.End()

	done := metrics.TimeBackend(d.recorder, op)
	v, err := fn(ctx)
	done(err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return v, err
}

func (d *InstrumentedDriver) SearchOneHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	attrs := []attribute.KeyValue{attribute.String("graph.src", string(src)), attribute.String("graph.dst", string(dst))}
	return instrument(ctx, d, OpOneHop, attrs, func(ctx context.Context) ([]types.Path, error) {
		return d.next.SearchOneHop(ctx, src, dst)
	})
}

func (d *InstrumentedDriver) SearchTwoHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	attrs := []attribute.KeyValue{attribute.String("graph.src", string(src)), attribute.String("graph.dst", string(dst))}
	return instrument(ctx, d, OpTwoHop, attrs, func(ctx context.Context) ([]types.Path, error) {
		return d.next.SearchTwoHop(ctx, src, dst)
	})
}

func (d *InstrumentedDriver) Relations(ctx context.Context, entity types.Entity, limit int) ([]types.Relation, error) {
	attrs := []attribute.KeyValue{attribute.String("graph.src", string(entity)), attribute.Int("graph.limit", limit)}
	return instrument(ctx, d, OpRelations, attrs, func(ctx context.Context) ([]types.Relation, error) {
		return d.next.Relations(ctx, entity, limit)
	})
}

func (d *InstrumentedDriver) Objects(ctx context.Context, entity types.Entity, rel types.Relation, limit int) ([]types.Entity, error) {
	attrs := []attribute.KeyValue{
		attribute.String("graph.src", string(entity)),
		attribute.String("graph.relation", string(rel)),
		attribute.Int("graph.limit", limit),
	}
	return instrument(ctx, d, OpObjects, attrs, func(ctx context.Context) ([]types.Entity, error) {
		return d.next.Objects(ctx, entity, rel, limit)
	})
}

func (d *InstrumentedDriver) Label(ctx context.Context, id string) (string, error) {
	attrs := []attribute.KeyValue{attribute.String("graph.id", id)}
	return instrument(ctx, d, OpLabel, attrs, func(ctx context.Context) (string, error) {
		return d.next.Label(ctx, id)
	})
}

func (d *InstrumentedDriver) Provider() GraphProvider { return d.next.Provider() }

func (d *InstrumentedDriver) Close() error { return d.next.Close() }

// Unwrap returns the wrapped driver.
func (d *InstrumentedDriver) Unwrap() GraphDriver { return d.next }
