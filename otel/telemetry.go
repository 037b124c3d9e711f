package otel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/hugolhafner/go-kcore"

// Telemetry holds the OpenTelemetry instruments shared by producers, consumers
// and the topic registry. Without providers every instrument is a noop.
type Telemetry struct {
	Tracer     trace.Tracer
	Propagator propagation.TextMapPropagator

	// Consumer metrics
	MessagesConsumed metric.Int64Counter
	PollDuration     metric.Float64Histogram
	HandleDuration   metric.Float64Histogram
	PollErrors       metric.Int64Counter
	DecodeErrors     metric.Int64Counter

	// Producer metrics
	MessagesProduced metric.Int64Counter
	DeliveryFailures metric.Int64Counter
	InFlight         metric.Int64UpDownCounter

	// Handler error policy
	ErrorHandlerActions metric.Int64Counter

	// Topic registry
	Provisions metric.Int64Counter
}

// NewTelemetry creates a Telemetry instance from the given providers.
// all providers are optional and defaulted to noops if nil
func NewTelemetry(tp trace.TracerProvider, mp metric.MeterProvider, prop propagation.TextMapPropagator) (
	*Telemetry, error,
) {
	if tp == nil {
		tp = traceNoop.NewTracerProvider()
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	if prop == nil {
		prop = propagation.TraceContext{}
	}

	meter := mp.Meter(scopeName)
	t := &Telemetry{
		Tracer:     tp.Tracer(scopeName),
		Propagator: prop,
	}

	var err error
	if t.MessagesConsumed, err = meter.Int64Counter(
		"messaging.consumer.messages",
		metric.WithDescription("Records handed to a handler"),
	); err != nil {
		return nil, err
	}

	if t.PollDuration, err = meter.Float64Histogram(
		"kcore.poll.duration",
		metric.WithDescription("Time per Poll() call"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if t.HandleDuration, err = meter.Float64Histogram(
		"kcore.handle.duration",
		metric.WithDescription("Time spent in the record handler"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if t.PollErrors, err = meter.Int64Counter(
		"kcore.poll.errors",
		metric.WithDescription("Poll failures, by transient or fatal class"),
	); err != nil {
		return nil, err
	}

	if t.DecodeErrors, err = meter.Int64Counter(
		"kcore.deserialization.errors",
		metric.WithDescription("Records dropped because they could not be decoded"),
	); err != nil {
		return nil, err
	}

	if t.MessagesProduced, err = meter.Int64Counter(
		"messaging.producer.messages",
		metric.WithDescription("Records acknowledged by the broker"),
	); err != nil {
		return nil, err
	}

	if t.DeliveryFailures, err = meter.Int64Counter(
		"kcore.produce.failures",
		metric.WithDescription("Records the broker did not acknowledge"),
	); err != nil {
		return nil, err
	}

	if t.InFlight, err = meter.Int64UpDownCounter(
		"kcore.produce.in_flight",
		metric.WithDescription("Records submitted but not yet acknowledged"),
	); err != nil {
		return nil, err
	}

	if t.ErrorHandlerActions, err = meter.Int64Counter(
		"kcore.error_handler.actions",
		metric.WithDescription("Error handler decisions"),
	); err != nil {
		return nil, err
	}

	if t.Provisions, err = meter.Int64Counter(
		"kcore.topic.provisions",
		metric.WithDescription("Topic create calls issued by the registry"),
	); err != nil {
		return nil, err
	}

	return t, nil
}

// Noop returns a Telemetry instance with all noop instruments
func Noop() *Telemetry {
	t, _ := NewTelemetry(nil, nil, nil)
	return t
}
