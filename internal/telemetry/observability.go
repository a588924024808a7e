package telemetry

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// OperationType identifies the kind of background operation being recorded,
// shared by the registry's prober/reaper, the babysitter's process
// supervisor and registry client, and the router's sync/health/proxy
// loops.
type OperationType string

const (
	OpRegister   OperationType = "register"
	OpUpdate     OperationType = "update"
	OpUnregister OperationType = "unregister"
	OpHeartbeat  OperationType = "heartbeat"
	OpProbe      OperationType = "probe"
	OpEvict      OperationType = "evict"
	OpSync       OperationType = "sync"
	OpSpawn      OperationType = "spawn"
	OpRestart    OperationType = "restart"
	OpSelect     OperationType = "select"
	OpForward    OperationType = "forward"
)

// OperationOutcome is the result of an operation.
type OperationOutcome string

const (
	OutcomeSuccess OperationOutcome = "success"
	OutcomeError   OperationOutcome = "error"
	OutcomeRetry   OperationOutcome = "retry"
)

// OperationEvent is a structured log/metric event for one operation.
type OperationEvent struct {
	Operation OperationType
	Target    string // service/instance name the operation concerned
	Duration  time.Duration
	Outcome   OperationOutcome
	Error     string
}

// Observability bundles a Logger, Metrics recorder, and Tracer behind one
// type so background-task loops have a single dependency to thread
// through instead of three.
type Observability struct {
	logger  Logger
	metrics Metrics
	tracer  Tracer
}

// NewObservability creates an Observability, defaulting any nil component
// to its no-op implementation.
func NewObservability(logger Logger, metrics Metrics, tracer Tracer) *Observability {
	o := &Observability{logger: logger, metrics: metrics, tracer: tracer}
	if o.logger == nil {
		o.logger = NewNoopLogger()
	}
	if o.metrics == nil {
		o.metrics = NewNoopMetrics()
	}
	if o.tracer == nil {
		o.tracer = NewNoopTracer()
	}
	return o
}

// Logger returns the underlying logger.
func (o *Observability) Logger() Logger { return o.logger }

// LogOperation emits a structured log line for a completed operation.
func (o *Observability) LogOperation(ctx context.Context, event OperationEvent) {
	keyvals := []any{
		"operation", string(event.Operation),
		"outcome", string(event.Outcome),
		"duration_ms", event.Duration.Milliseconds(),
	}
	if event.Target != "" {
		keyvals = append(keyvals, "target", event.Target)
	}
	if event.Error != "" {
		keyvals = append(keyvals, "error", event.Error)
	}
	if event.Outcome == OutcomeError {
		o.logger.Error(ctx, "operation completed", keyvals...)
		return
	}
	o.logger.Info(ctx, "operation completed", keyvals...)
}

// RecordOperationMetrics records duration and outcome counters for an
// operation. Names are bare ("operation.duration", not
// "svcfabric.operation.duration") because OTELMetrics namespaces every
// metric it emits under metricNamespace itself.
func (o *Observability) RecordOperationMetrics(event OperationEvent) {
	tags := []string{"operation", string(event.Operation), "outcome", string(event.Outcome)}
	o.metrics.RecordTimer("operation.duration", event.Duration, tags...)
	switch event.Outcome {
	case OutcomeSuccess:
		o.metrics.IncCounter("operation.success", 1, tags...)
	case OutcomeError:
		o.metrics.IncCounter("operation.error", 1, tags...)
	case OutcomeRetry:
		o.metrics.IncCounter("operation.retry", 1, tags...)
	}
}

// StartSpan starts a span named "svcfabric.<operation>".
func (o *Observability) StartSpan(ctx context.Context, op OperationType, attrs ...attribute.KeyValue) (context.Context, Span) {
	opts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	}
	return o.tracer.Start(ctx, "svcfabric."+string(op), opts...)
}

// EndSpan finalizes a span with the operation's outcome.
func (o *Observability) EndSpan(span Span, outcome OperationOutcome, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, string(outcome))
	}
	span.End()
}

// InjectTraceContext injects the current trace context into outbound HTTP
// headers so downstream calls stay in the same trace. No caller in this
// module invokes it; the router's proxy and the babysitter's registry
// client send their requests without trace headers.
func InjectTraceContext(ctx context.Context, header http.Header) {
	if ctx == nil || header == nil {
		return
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}
