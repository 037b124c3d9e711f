package mockkafka

import (
	"context"
	"hash/fnv"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hugolhafner/go-kcore/kafka"
	"github.com/twmb/franz-go/pkg/kerr"
)

var _ kafka.Client = (*Client)(nil)

// ProducedRecord represents a record that was delivered via the mock producer.
type ProducedRecord struct {
	Topic     string
	Partition int32
	Key       []byte
	Value     []byte
	Headers   []kafka.Header
}

// Client is an in-memory kafka.Client. Produced records are appended to the
// partition queues of their topic, so a consumer of the same mock reads them back.
type Client struct {
	mu sync.RWMutex

	groupID string

	recordQueues   map[kafka.TopicPartition][]kafka.ConsumerRecord
	queuePositions map[kafka.TopicPartition]int

	topics      map[string]kafka.TopicConfig
	createCalls map[string]int
	createDelay time.Duration
	createErr   func(topic kafka.TopicConfig) error

	producedRecords  []ProducedRecord
	inFlight         sync.WaitGroup
	deliveryDelay    time.Duration
	committedOffsets map[kafka.TopicPartition]kafka.Offset

	markedRecords []kafka.ConsumerRecord
	markedOffsets map[kafka.TopicPartition]kafka.Offset

	subscriptions      []string
	rebalanceCb        kafka.RebalanceCallback
	assignedPartitions []kafka.TopicPartition
	lastAssignment     []kafka.PartitionOffset
	resetOffset        int64

	maxPollRecords int
	pollDelay      time.Duration
	pollCount      int

	sendErr   func(topic string, key, value []byte) error
	pollErr   func() error
	commitErr func() error
	flushErr  error
	pingErr   error

	calls []string

	closed     bool
	subscribed bool
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		groupID:          "mock-group",
		recordQueues:     make(map[kafka.TopicPartition][]kafka.ConsumerRecord),
		queuePositions:   make(map[kafka.TopicPartition]int),
		topics:           make(map[string]kafka.TopicConfig),
		createCalls:      make(map[string]int),
		producedRecords:  make([]ProducedRecord, 0),
		committedOffsets: make(map[kafka.TopicPartition]kafka.Offset),
		markedRecords:    make([]kafka.ConsumerRecord, 0),
		markedOffsets:    make(map[kafka.TopicPartition]kafka.Offset),
		resetOffset:      kafka.OffsetBeginning,
		maxPollRecords:   10,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) GroupID() string {
	return c.groupID
}

func (c *Client) record(call string) {
	c.calls = append(c.calls, call)
}

// Subscribe registers the client to consume from the specified topics or
// patterns (prefixed with ^). Partitions that already hold records are assigned
// immediately through the rebalance callback.
func (c *Client) Subscribe(topics []string, rebalanceCb kafka.RebalanceCallback) error {
	c.mu.Lock()

	if c.subscribed {
		c.mu.Unlock()
		return nil // Already subscribed, idempotent
	}

	c.record("subscribe")
	c.subscriptions = topics
	c.rebalanceCb = rebalanceCb
	c.subscribed = true

	var partitions []kafka.TopicPartition
	for tp := range c.recordQueues {
		if c.matchesLocked(tp.Topic) {
			partitions = append(partitions, tp)
		}
	}
	sortPartitions(partitions)
	c.mu.Unlock()

	if len(partitions) > 0 {
		c.assign(partitions)
	}

	return nil
}

func (c *Client) matchesLocked(topic string) bool {
	for _, sub := range c.subscriptions {
		if strings.HasPrefix(sub, "^") {
			if re, err := regexp.Compile(sub); err == nil && re.MatchString(topic) {
				return true
			}
			continue
		}

		if sub == topic {
			return true
		}
	}
	return false
}

// assign builds the broker side assignment (committed offset, else the reset
// offset), lets the callback rewrite it and positions the queues accordingly.
func (c *Client) assign(partitions []kafka.TopicPartition) {
	c.mu.Lock()
	cb := c.rebalanceCb
	assignment := make([]kafka.PartitionOffset, len(partitions))
	for i, tp := range partitions {
		offset, ok := c.committedOffsets[tp]
		if !ok {
			offset = kafka.Offset{LeaderEpoch: -1, Offset: c.resetOffset}
		}
		assignment[i] = kafka.PartitionOffset{TopicPartition: tp, Offset: offset}
	}
	c.mu.Unlock()

	applied := assignment
	if cb != nil {
		applied = cb.OnAssigned(assignment)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastAssignment = append([]kafka.PartitionOffset(nil), applied...)
	for _, po := range applied {
		c.assignedPartitions = appendUnique(c.assignedPartitions, po.TopicPartition)
		c.queuePositions[po.TopicPartition] = c.positionLocked(po.TopicPartition, po.Offset.Offset)
	}
}

func (c *Client) positionLocked(tp kafka.TopicPartition, offset int64) int {
	queue := c.recordQueues[tp]
	switch offset {
	case kafka.OffsetBeginning:
		return 0
	case kafka.OffsetEnd:
		return len(queue)
	}

	for i, r := range queue {
		if r.Offset >= offset {
			return i
		}
	}
	return len(queue)
}

func (c *Client) Unsubscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("unsubscribe")
	c.subscribed = false
	c.subscriptions = nil
	c.rebalanceCb = nil
	c.assignedPartitions = nil
	return ctx.Err()
}

// Poll retrieves records from the assigned partitions.
// Records are returned in round-robin fashion across partitions.
// Returns up to maxPollRecords (default 10) records per call.
func (c *Client) Poll(ctx context.Context, timeout time.Duration) ([]kafka.ConsumerRecord, error) {
	c.mu.Lock()
	c.pollCount++
	delay := c.pollDelay
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return nil, kafka.ErrClientClosed
	}

	if delay > 0 {
		if delay > timeout {
			delay = timeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pollErr != nil {
		if err := c.pollErr(); err != nil {
			return nil, err
		}
	}

	var records []kafka.ConsumerRecord
	recordCount := 0

	// round robin across assigned partitions
	for recordCount < c.maxPollRecords {
		progressMade := false

		for _, tp := range c.assignedPartitions {
			queue, exists := c.recordQueues[tp]
			if !exists {
				continue
			}

			pos := c.queuePositions[tp]
			if pos >= len(queue) {
				continue
			}

			records = append(records, queue[pos])
			c.queuePositions[tp]++
			recordCount++
			progressMade = true

			if recordCount >= c.maxPollRecords {
				break
			}
		}

		if !progressMade {
			break
		}
	}

	return records, nil
}

// MarkRecords marks records as processed. The offsets will be committed
// when Commit is called.
func (c *Client) MarkRecords(records ...kafka.ConsumerRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, record := range records {
		c.markedRecords = append(c.markedRecords, record)

		// next offset to fetch = current + 1
		tp := record.TopicPartition()
		nextOffset := kafka.Offset{
			Offset:      record.Offset + 1,
			LeaderEpoch: record.LeaderEpoch,
		}

		if current, exists := c.markedOffsets[tp]; !exists || nextOffset.Offset > current.Offset {
			c.markedOffsets[tp] = nextOffset
		}
	}
}

// Commit commits the offsets of all marked records.
func (c *Client) Commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("commit")

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if c.commitErr != nil {
		if err := c.commitErr(); err != nil {
			return err
		}
	}

	for tp, offset := range c.markedOffsets {
		c.committedOffsets[tp] = offset
	}

	c.markedRecords = make([]kafka.ConsumerRecord, 0)
	c.markedOffsets = make(map[kafka.TopicPartition]kafka.Offset)

	return nil
}

// Send produces a record synchronously.
func (c *Client) Send(ctx context.Context, topic string, key, value []byte, headers []kafka.Header) error {
	rec := kafka.ProducerRecord{Topic: topic, Key: key, Value: value, Headers: headers}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.deliverLocked(rec)
}

// Produce delivers the record after the configured delivery delay and then
// calls promise. Flush waits for every outstanding delivery.
func (c *Client) Produce(ctx context.Context, record kafka.ProducerRecord, promise kafka.PromiseFunc) {
	rec := record.Copy()

	c.mu.Lock()
	delay := c.deliveryDelay
	c.mu.Unlock()

	if delay <= 0 {
		c.mu.Lock()
		err := c.deliverLocked(rec)
		c.mu.Unlock()

		if promise != nil {
			promise(record, err)
		}
		return
	}

	c.inFlight.Add(1)
	go func() {
		defer c.inFlight.Done()

		time.Sleep(delay)

		// like franz-go, a record whose ctx ended while buffered is failed
		if err := ctx.Err(); err != nil {
			if promise != nil {
				promise(record, err)
			}
			return
		}

		c.mu.Lock()
		err := c.deliverLocked(rec)
		c.mu.Unlock()

		if promise != nil {
			promise(record, err)
		}
	}()
}

func (c *Client) deliverLocked(rec kafka.ProducerRecord) error {
	if c.closed {
		return kafka.ErrClientClosed
	}

	if c.sendErr != nil {
		if err := c.sendErr(rec.Topic, rec.Key, rec.Value); err != nil {
			return err
		}
	}

	rec = rec.Copy()
	partition := c.partitionForLocked(rec.Topic, rec.Key)
	tp := kafka.TopicPartition{Topic: rec.Topic, Partition: partition}

	c.producedRecords = append(
		c.producedRecords, ProducedRecord{
			Topic:     rec.Topic,
			Partition: partition,
			Key:       rec.Key,
			Value:     rec.Value,
			Headers:   rec.Headers,
		},
	)

	c.recordQueues[tp] = append(
		c.recordQueues[tp], kafka.ConsumerRecord{
			Key:       rec.Key,
			Value:     rec.Value,
			Headers:   rec.Headers,
			Topic:     rec.Topic,
			Partition: partition,
			Offset:    int64(len(c.recordQueues[tp])),
			Timestamp: time.Now(),
		},
	)

	return nil
}

func (c *Client) partitionForLocked(topic string, key []byte) int32 {
	n := int32(1)
	if cfg, ok := c.topics[topic]; ok && cfg.NumPartitions > 0 {
		n = cfg.NumPartitions
	}

	if len(key) == 0 || n == 1 {
		return 0
	}

	h := fnv.New32a()
	_, _ = h.Write(key)
	return int32(h.Sum32() % uint32(n))
}

// Flush waits for all outstanding Produce deliveries.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	c.record("flush")
	flushErr := c.flushErr
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inFlight.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return flushErr
	}
}

// CreateTopic records the call and creates the topic, answering
// TOPIC_ALREADY_EXISTS for known names.
func (c *Client) CreateTopic(ctx context.Context, topic kafka.TopicConfig) error {
	c.mu.Lock()
	c.createCalls[topic.Name]++
	delay := c.createDelay
	createErr := c.createErr
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	if createErr != nil {
		if err := createErr(topic); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.topics[topic.Name]; exists {
		return kerr.TopicAlreadyExists
	}

	c.topics[topic.Name] = topic
	return nil
}

// Ping checks if the mock client is operational.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.pingErr
}

// Close marks the client as closed.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("close")
	c.closed = true
}

// AddRecords adds records to be returned by Poll for a specific topic-partition.
// Records are appended to any existing records for that partition.
func (c *Client) AddRecords(topic string, partition int32, records ...kafka.ConsumerRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}

	existingLen := len(c.recordQueues[tp])
	for i := range records {
		records[i].Topic = topic
		records[i].Partition = partition
		if records[i].Offset == 0 {
			records[i].Offset = int64(existingLen + i)
		}
	}

	c.recordQueues[tp] = append(c.recordQueues[tp], records...)
}

// CreateTopicLocally registers a topic without counting an admin call.
func (c *Client) CreateTopicLocally(topic kafka.TopicConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.topics[topic.Name] = topic
}

// SetSendError configures an error to be returned on all deliveries.
// Pass nil to clear the error.
func (c *Client) SetSendError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.sendErr = nil
	} else {
		c.sendErr = func(string, []byte, []byte) error { return err }
	}
}

// SetSendErrorFunc configures a function to determine delivery errors.
func (c *Client) SetSendErrorFunc(fn func(topic string, key, value []byte) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sendErr = fn
}

// SetPollError configures an error to be returned on all Poll calls.
func (c *Client) SetPollError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.pollErr = nil
	} else {
		c.pollErr = func() error { return err }
	}
}

// SetPollErrorFunc configures a function to determine Poll errors.
func (c *Client) SetPollErrorFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pollErr = fn
}

// SetCommitError configures an error to be returned on all Commit calls.
func (c *Client) SetCommitError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.commitErr = nil
	} else {
		c.commitErr = func() error { return err }
	}
}

// SetCreateTopicErrorFunc configures a function to determine CreateTopic errors.
func (c *Client) SetCreateTopicErrorFunc(fn func(topic kafka.TopicConfig) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.createErr = fn
}

// SetPingError configures an error to be returned by Ping.
func (c *Client) SetPingError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pingErr = err
}

// TriggerAssign simulates a partition assignment event for partitions.
func (c *Client) TriggerAssign(partitions ...kafka.TopicPartition) {
	c.assign(partitions)
}

// TriggerRevoke simulates a partition revocation event.
func (c *Client) TriggerRevoke(partitions ...kafka.TopicPartition) {
	c.mu.Lock()
	cb := c.rebalanceCb

	remaining := make([]kafka.TopicPartition, 0, len(c.assignedPartitions))
	for _, assigned := range c.assignedPartitions {
		revoked := false
		for _, p := range partitions {
			if assigned == p {
				revoked = true
				break
			}
		}
		if !revoked {
			remaining = append(remaining, assigned)
		}
	}
	c.assignedPartitions = remaining
	c.mu.Unlock()

	if cb != nil {
		cb.OnRevoked(partitions)
	}
}

// ProducedRecords returns a copy of all records that have been delivered.
func (c *Client) ProducedRecords() []ProducedRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]ProducedRecord, len(c.producedRecords))
	copy(result, c.producedRecords)
	return result
}

// ProducedRecordsForTopic returns all records delivered to a specific topic.
func (c *Client) ProducedRecordsForTopic(topic string) []ProducedRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []ProducedRecord
	for _, r := range c.producedRecords {
		if r.Topic == topic {
			result = append(result, r)
		}
	}
	return result
}

// PartitionRecords returns the full log of a topic-partition from its start.
func (c *Client) PartitionRecords(topic string, partition int32) []kafka.ConsumerRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}
	result := make([]kafka.ConsumerRecord, len(c.recordQueues[tp]))
	copy(result, c.recordQueues[tp])
	return result
}

// CreateTopicCalls returns how many times CreateTopic was called for name.
func (c *Client) CreateTopicCalls(name string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.createCalls[name]
}

// Topic returns the configuration a topic was created with.
func (c *Client) Topic(name string) (kafka.TopicConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.topics[name]
	return t, ok
}

// CommittedOffset returns the committed offset for a specific topic-partition.
func (c *Client) CommittedOffset(tp kafka.TopicPartition) (kafka.Offset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	offset, ok := c.committedOffsets[tp]
	return offset, ok
}

// MarkedRecords returns a copy of all records marked since the last commit.
func (c *Client) MarkedRecords() []kafka.ConsumerRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]kafka.ConsumerRecord, len(c.markedRecords))
	copy(result, c.markedRecords)
	return result
}

// LastAssignment returns the assignment as rewritten by the rebalance callback.
func (c *Client) LastAssignment() []kafka.PartitionOffset {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]kafka.PartitionOffset(nil), c.lastAssignment...)
}

// Subscriptions returns the topics the client is subscribed to.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]string, len(c.subscriptions))
	copy(result, c.subscriptions)
	return result
}

// AssignedPartitions returns the currently assigned partitions.
func (c *Client) AssignedPartitions() []kafka.TopicPartition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]kafka.TopicPartition, len(c.assignedPartitions))
	copy(result, c.assignedPartitions)
	return result
}

// PollCount returns how many times Poll was called.
func (c *Client) PollCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.pollCount
}

// Calls returns the lifecycle calls (subscribe, commit, flush, unsubscribe,
// close) in the order they happened.
func (c *Client) Calls() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]string(nil), c.calls...)
}

// IsClosed returns whether Close has been called.
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.closed
}

func appendUnique(tps []kafka.TopicPartition, tp kafka.TopicPartition) []kafka.TopicPartition {
	for _, existing := range tps {
		if existing == tp {
			return tps
		}
	}
	return append(tps, tp)
}

func sortPartitions(tps []kafka.TopicPartition) {
	sort.Slice(
		tps, func(i, j int) bool {
			if tps[i].Topic != tps[j].Topic {
				return tps[i].Topic < tps[j].Topic
			}
			return tps[i].Partition < tps[j].Partition
		},
	)
}
