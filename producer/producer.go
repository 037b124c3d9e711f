package producer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugolhafner/go-kcore/kafka"
	"github.com/hugolhafner/go-kcore/logger"
	"github.com/hugolhafner/go-kcore/serde"
	"github.com/hugolhafner/go-kcore/topic"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// Provisioner makes sure a topic exists before the first record is produced
// to it. *topic.Registry implements it.
type Provisioner interface {
	EnsureProvisioned(ctx context.Context, spec topic.Spec) error
}

var _ Provisioner = (*topic.Registry)(nil)

// Spec binds a topic to the serialisers of its keys and values. A nil Key
// serialiser produces records without a key.
type Spec[K, V any] struct {
	Topic topic.Spec
	Key   serde.Serialiser[K]
	Value serde.Serialiser[V]
}

// Producer publishes typed records to a single topic. Produce is
// asynchronous; Close must be called before exit to wait for every record to
// be acknowledged.
type Producer[K, V any] struct {
	client kafka.Producer
	spec   Spec[K, V]
	config Config
	logger logger.Logger

	// mu orders Produce against Close so no record is registered in wg once
	// Close has started waiting.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	inFlight    atomic.Int64
	undelivered atomic.Int64

	errMu       sync.Mutex
	deliveryErr error

	closeOnce sync.Once
	closeErr  error
}

// New provisions spec.Topic through provisioner and returns a producer for it.
// Provisioning failures are returned as *topic.ProvisionError.
func New[K, V any](
	ctx context.Context, provisioner Provisioner, client kafka.Producer, spec Spec[K, V], opts ...Option,
) (*Producer[K, V], error) {
	if spec.Value == nil {
		return nil, ErrNoSerialiser
	}

	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	if err := provisioner.EnsureProvisioned(ctx, spec.Topic); err != nil {
		return nil, err
	}

	return &Producer[K, V]{
		client: client,
		spec:   spec,
		config: config,
		logger: config.Logger.With("component", "producer", "topic", spec.Topic.Name),
	}, nil
}

func (p *Producer[K, V]) Topic() string {
	return p.spec.Topic.Name
}

// InFlight returns the number of records handed to the transport and not yet
// acknowledged or failed.
func (p *Producer[K, V]) InFlight() int64 {
	return p.inFlight.Load()
}

// Produce serialises key and value and hands the record to the transport
// without waiting for the acknowledgement. ctx carries the trace context into
// the record headers; its cancellation does not abort the delivery. Close
// bounds how long buffered records may take.
func (p *Producer[K, V]) Produce(ctx context.Context, key K, value V) error {
	name := p.spec.Topic.Name

	var keyBytes []byte
	if p.spec.Key != nil {
		b, err := p.spec.Key.Serialise(name, key)
		if err != nil {
			return &ProduceError{Topic: name, Field: "key", Cause: err}
		}
		keyBytes = b
	}

	valueBytes, err := p.spec.Value.Serialise(name, value)
	if err != nil {
		return &ProduceError{Topic: name, Field: "value", Cause: err}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrProducerClosed
	}

	tel := p.config.Telemetry
	ctx, span := tel.Tracer.Start(
		ctx, name+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(name),
		),
	)

	headers := make([]kafka.Header, len(p.config.Headers), len(p.config.Headers)+2)
	copy(headers, p.config.Headers)
	tel.Inject(ctx, &headers)

	p.wg.Add(1)
	p.inFlight.Add(1)
	tel.InFlight.Add(ctx, 1, metric.WithAttributes(semconv.MessagingDestinationName(name)))

	// buffered records outlive the caller's ctx so Close can still flush them
	p.client.Produce(
		context.WithoutCancel(ctx), kafka.ProducerRecord{Topic: name, Key: keyBytes, Value: valueBytes, Headers: headers},
		func(rec kafka.ProducerRecord, err error) {
			defer p.wg.Done()
			defer span.End()

			p.inFlight.Add(-1)
			tel.InFlight.Add(ctx, -1, metric.WithAttributes(semconv.MessagingDestinationName(name)))

			if err != nil {
				p.recordFailure(err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				tel.DeliveryFailures.Add(ctx, 1, metric.WithAttributes(semconv.MessagingDestinationName(name)))
				p.logger.Error("Failed to deliver record", "key", rec.Key, "error", err)
				return
			}

			tel.MessagesProduced.Add(ctx, 1, metric.WithAttributes(semconv.MessagingDestinationName(name)))
		},
	)

	return nil
}

func (p *Producer[K, V]) recordFailure(err error) {
	p.undelivered.Add(1)

	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.deliveryErr == nil {
		p.deliveryErr = err
	}
}

// Close stops accepting records, flushes the transport and waits until every
// record produced so far is acknowledged or failed, or until ctx is done. The
// transport is released afterwards when the producer owns it. A *FlushError
// reports records that may be lost. Close is idempotent.
func (p *Producer[K, V]) Close(ctx context.Context) error {
	p.closeOnce.Do(
		func() {
			p.closeErr = p.close(ctx)
		},
	)
	return p.closeErr
}

func (p *Producer[K, V]) close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.logger.Debug("Closing producer", "in_flight", p.inFlight.Load())

	flushErr := p.client.Flush(ctx)
	waitErr := p.wait(ctx)

	if p.config.OwnedClient {
		p.client.Close()
	}

	p.errMu.Lock()
	deliveryErr := p.deliveryErr
	p.errMu.Unlock()

	undelivered := p.undelivered.Load() + p.inFlight.Load()
	if undelivered == 0 && flushErr == nil && waitErr == nil {
		p.logger.Info("Producer closed")
		return nil
	}

	cause := errors.Join(deliveryErr, flushErr, waitErr)
	p.logger.Error("Producer closed with undelivered records", "undelivered", undelivered, "error", cause)
	return &FlushError{Topic: p.spec.Topic.Name, Undelivered: undelivered, Cause: cause}
}

func (p *Producer[K, V]) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TimeMillis returns the current wall clock time in Unix milliseconds, the
// timestamp unit used by record schemas of this runtime.
func TimeMillis() int64 {
	return time.Now().UnixMilli()
}

