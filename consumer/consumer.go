package consumer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hugolhafner/go-kcore/kafka"
	"github.com/hugolhafner/go-kcore/logger"
	"github.com/hugolhafner/go-kcore/otel"
	"github.com/hugolhafner/go-kcore/record"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// DrainResult reports whether a DrainStep handed a record to the handler.
type DrainResult int

const (
	Idle DrainResult = iota
	MessageHandled
)

func (r DrainResult) String() string {
	if r == MessageHandled {
		return "message_handled"
	}
	return "idle"
}

var _ kafka.RebalanceCallback = (*Consumer[any, any])(nil)

// Consumer dispatches records of one subscription to its handler, one record
// per DrainStep. It is driven by a single goroutine; Close may be called from
// any goroutine.
type Consumer[K, V any] struct {
	client kafka.Consumer
	sub    Subscription[K, V]
	config Config
	logger logger.Logger

	// drainMu is held for the duration of a DrainStep or Redeliver. Close
	// takes it after signalling stop, so shutdown never interleaves with a
	// running handler.
	drainMu sync.Mutex

	bufMu  sync.Mutex
	buffer []kafka.ConsumerRecord

	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

// New validates sub and subscribes client to it, with the consumer as the
// rebalance callback.
func New[K, V any](client kafka.Consumer, sub Subscription[K, V], opts ...Option) (*Consumer[K, V], error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	c := &Consumer[K, V]{
		client: client,
		sub:    sub.withDefaults(),
		config: config,
		logger: config.Logger.With("component", "consumer", "subscription", sub.TopicPattern),
		stop:   make(chan struct{}),
	}

	if err := client.Subscribe([]string{sub.TopicPattern}, c); err != nil {
		return nil, fmt.Errorf("subscribe to %q: %w", sub.TopicPattern, err)
	}

	c.logger.Info(
		"Consumer subscribed",
		"group", client.GroupID(),
		"offset_policy", c.sub.OffsetPolicy.String(),
		"poll_timeout", c.sub.PollTimeout,
		"idle_sleep", c.sub.IdleSleep,
	)

	return c, nil
}

func (c *Consumer[K, V]) Subscription() string {
	return c.sub.TopicPattern
}

func (c *Consumer[K, V]) IdleSleep() time.Duration {
	return c.sub.IdleSleep
}

// Done is closed once Close has been called.
func (c *Consumer[K, V]) Done() <-chan struct{} {
	return c.stop
}

func (c *Consumer[K, V]) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// OnAssigned applies the offset policy to a new assignment. The transport
// starts fetching from the returned offsets, so there is no window in which a
// partition is consumed from its original offset.
func (c *Consumer[K, V]) OnAssigned(assignment []kafka.PartitionOffset) []kafka.PartitionOffset {
	applied := ApplyOffsetPolicy(assignment, c.sub.OffsetPolicy)

	for _, po := range applied {
		c.logger.Info(
			"Partition assigned",
			"topic", po.Topic,
			"partition", po.Partition,
			"offset", po.Offset.Offset,
			"offset_policy", c.sub.OffsetPolicy.String(),
		)
	}

	return applied
}

// OnRevoked drops buffered records of revoked partitions; they are
// redelivered to the partition's next owner from its committed offset.
func (c *Consumer[K, V]) OnRevoked(partitions []kafka.TopicPartition) {
	revoked := make(map[kafka.TopicPartition]struct{}, len(partitions))
	for _, tp := range partitions {
		revoked[tp] = struct{}{}
	}

	c.bufMu.Lock()
	kept := c.buffer[:0]
	for _, rec := range c.buffer {
		if _, ok := revoked[rec.TopicPartition()]; !ok {
			kept = append(kept, rec)
		}
	}
	dropped := len(c.buffer) - len(kept)
	c.buffer = kept
	c.bufMu.Unlock()

	c.logger.Info("Partitions revoked", "partitions", len(partitions), "dropped_buffered", dropped)
}

// DrainStep hands at most one record to the handler.
//
// It returns MessageHandled after the handler ran, together with a
// *HandlerError if the handler failed. It returns Idle when nothing was
// available, when polling failed, or when the next record could not be
// decoded; such failures are logged and never returned. ErrConsumerClosed is
// returned once Close was called.
func (c *Consumer[K, V]) DrainStep(ctx context.Context) (DrainResult, error) {
	if c.stopped() {
		return Idle, ErrConsumerClosed
	}

	c.drainMu.Lock()
	defer c.drainMu.Unlock()

	if c.stopped() {
		return Idle, ErrConsumerClosed
	}

	rec, ok := c.next(ctx)
	if !ok {
		return Idle, nil
	}

	r, err := c.decode(rec)
	if err != nil {
		c.drop(ctx, err)
		return Idle, nil
	}

	if err := c.invoke(ctx, rec, r); err != nil {
		return MessageHandled, &HandlerError{Record: rec, Cause: err}
	}

	c.client.MarkRecords(rec)
	return MessageHandled, nil
}

func (c *Consumer[K, V]) next(ctx context.Context) (kafka.ConsumerRecord, bool) {
	if rec, ok := c.pop(); ok {
		return rec, true
	}

	c.poll(ctx)
	return c.pop()
}

func (c *Consumer[K, V]) pop() (kafka.ConsumerRecord, bool) {
	c.bufMu.Lock()
	defer c.bufMu.Unlock()

	if len(c.buffer) == 0 {
		return kafka.ConsumerRecord{}, false
	}

	rec := c.buffer[0]
	c.buffer[0] = kafka.ConsumerRecord{}
	c.buffer = c.buffer[1:]
	return rec, true
}

// poll fills the buffer. Records returned alongside an error are kept.
func (c *Consumer[K, V]) poll(ctx context.Context) {
	tel := c.config.Telemetry

	start := time.Now()
	records, err := c.client.Poll(ctx, c.sub.PollTimeout)
	tel.PollDuration.Record(
		ctx, time.Since(start).Seconds(), metric.WithAttributes(otel.AttrSubscription.String(c.sub.TopicPattern)),
	)

	if len(records) > 0 {
		c.bufMu.Lock()
		c.buffer = append(c.buffer, records...)
		c.bufMu.Unlock()
	}

	// cancellation is shutdown, not a poll failure
	if err == nil || ctx.Err() != nil {
		return
	}

	class := otel.ErrorClassFatal
	if kafka.IsTransient(err) {
		class = otel.ErrorClassTransient
		c.logger.Warn("Transient poll error, will retry", "error", err)
	} else {
		c.logger.Error("Poll failed, will retry", "error", err)
	}

	tel.PollErrors.Add(
		ctx, 1, metric.WithAttributes(
			otel.AttrSubscription.String(c.sub.TopicPattern),
			otel.AttrPollErrorClass.String(class),
		),
	)
}

func (c *Consumer[K, V]) decode(rec kafka.ConsumerRecord) (record.Record[K, V], error) {
	r := record.Record[K, V]{Metadata: record.MetadataOf(rec)}

	if c.sub.Key != nil && rec.Key != nil {
		key, err := c.sub.Key.Deserialise(rec.Topic, rec.Key)
		if err != nil {
			return r, &DeserializationError{Record: rec, Field: "key", Cause: err}
		}
		r.Key = key
	}

	value, err := c.sub.Value.Deserialise(rec.Topic, rec.Value)
	if err != nil {
		return r, &DeserializationError{Record: rec, Field: "value", Cause: err}
	}
	r.Value = value

	return r, nil
}

// drop marks an undecodable record consumed so it is never delivered again.
func (c *Consumer[K, V]) drop(ctx context.Context, err error) {
	de, _ := AsDeserializationError(err)
	rec := de.Record

	c.logger.Error(
		"Dropping record that could not be deserialised",
		"topic", rec.Topic,
		"partition", rec.Partition,
		"offset", rec.Offset,
		"field", de.Field,
		"error", de.Cause,
	)

	c.config.Telemetry.DecodeErrors.Add(
		ctx, 1, metric.WithAttributes(
			semconv.MessagingDestinationName(rec.Topic),
			otel.AttrSubscription.String(c.sub.TopicPattern),
		),
	)

	c.client.MarkRecords(rec)
}

func (c *Consumer[K, V]) invoke(ctx context.Context, raw kafka.ConsumerRecord, r record.Record[K, V]) error {
	tel := c.config.Telemetry
	partition := strconv.FormatInt(int64(raw.Partition), 10)

	ctx = tel.Extract(ctx, raw.Headers)
	ctx, span := tel.Tracer.Start(
		ctx, raw.Topic+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationTypeProcess,
			semconv.MessagingDestinationName(raw.Topic),
			semconv.MessagingDestinationPartitionID(partition),
			semconv.MessagingKafkaOffsetKey.Int64(raw.Offset),
			semconv.MessagingConsumerGroupName(c.client.GroupID()),
		),
	)
	defer span.End()

	start := time.Now()
	err := c.sub.Handler(ctx, r)

	status := otel.StatusSuccess
	if err != nil {
		status = otel.StatusError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	tel.HandleDuration.Record(
		ctx, time.Since(start).Seconds(), metric.WithAttributes(
			semconv.MessagingDestinationName(raw.Topic),
			semconv.MessagingDestinationPartitionID(partition),
			otel.AttrHandleStatus.String(status),
		),
	)

	if err == nil {
		tel.MessagesConsumed.Add(ctx, 1, metric.WithAttributes(semconv.MessagingDestinationName(raw.Topic)))
	}

	return err
}

// Skip marks a record the handler failed on as consumed.
func (c *Consumer[K, V]) Skip(rec kafka.ConsumerRecord) {
	c.logger.Debug("Skipping record", "topic", rec.Topic, "partition", rec.Partition, "offset", rec.Offset)
	c.client.MarkRecords(rec)
}

// Redeliver decodes rec again and hands it to the handler. The record is
// marked consumed when the handler succeeds.
func (c *Consumer[K, V]) Redeliver(ctx context.Context, rec kafka.ConsumerRecord) error {
	c.drainMu.Lock()
	defer c.drainMu.Unlock()

	if c.stopped() {
		return ErrConsumerClosed
	}

	r, err := c.decode(rec)
	if err != nil {
		return err
	}

	if err := c.invoke(ctx, rec, r); err != nil {
		return err
	}

	c.client.MarkRecords(rec)
	return nil
}

// Close stops the consumer after the DrainStep in progress, if any, commits
// the offsets of handled records, unsubscribes and releases the transport
// when owned. Records still buffered are not marked and will be delivered
// again. Close is idempotent and safe to call without any prior DrainStep.
func (c *Consumer[K, V]) Close(ctx context.Context) error {
	c.closeOnce.Do(
		func() {
			c.closeErr = c.close(ctx)
		},
	)
	return c.closeErr
}

func (c *Consumer[K, V]) close(ctx context.Context) error {
	c.stopOnce.Do(
		func() {
			close(c.stop)
		},
	)

	c.drainMu.Lock()
	defer c.drainMu.Unlock()

	c.bufMu.Lock()
	pending := len(c.buffer)
	c.buffer = nil
	c.bufMu.Unlock()

	var err error
	if cErr := c.client.Commit(ctx); cErr != nil {
		c.logger.Error("Failed to commit offsets on close", "error", cErr)
		err = fmt.Errorf("commit on close: %w", cErr)
	}

	if uErr := c.client.Unsubscribe(ctx); uErr != nil {
		c.logger.Warn("Failed to leave group on close", "error", uErr)
		err = errors.Join(err, uErr)
	}

	if c.config.OwnedClient {
		c.client.Close()
	}

	c.logger.Info("Consumer closed", "unhandled_buffered", pending)
	return err
}
