package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hugolhafner/go-kcore/logger"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

var _ Client = (*KgoClient)(nil)

type KgoClientConfig struct {
	BootstrapServers   []string
	ClientID           string
	GroupID            string
	SessionTimeout     time.Duration
	HeartbeatInterval  time.Duration
	AutoCommitInterval time.Duration
	MaxPollRecords     int
	// ResetOffset is used for partitions without a committed offset, either
	// OffsetBeginning or OffsetEnd.
	ResetOffset int64
	// ConsumeRegex makes Subscribe treat topics as regular expressions.
	ConsumeRegex bool

	Logger logger.Logger
}

func defaultConfig() KgoClientConfig {
	return KgoClientConfig{
		BootstrapServers:   []string{"localhost:9092"},
		ClientID:           "kcore-" + uuid.NewString(),
		SessionTimeout:     45 * time.Second,
		HeartbeatInterval:  3 * time.Second,
		AutoCommitInterval: 5 * time.Second,
		MaxPollRecords:     100,
		ResetOffset:        OffsetEnd,
		Logger:             logger.NewNoopLogger(),
	}
}

type KgoOption func(*KgoClientConfig)

func WithBootstrapServers(servers []string) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.BootstrapServers = servers
	}
}

func WithClientID(id string) KgoOption {
	return func(cfg *KgoClientConfig) {
		if id != "" {
			cfg.ClientID = id
		}
	}
}

// WithGroupID enables consumer group membership. Producer-only clients leave it unset.
func WithGroupID(id string) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.GroupID = id
	}
}

func WithMaxPollRecords(n int) KgoOption {
	return func(cfg *KgoClientConfig) {
		if n > 0 {
			cfg.MaxPollRecords = n
		}
	}
}

func WithResetOffset(offset int64) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.ResetOffset = offset
	}
}

func WithConsumeRegex() KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.ConsumeRegex = true
	}
}

func WithSessionTimeout(d time.Duration) KgoOption {
	return func(cfg *KgoClientConfig) {
		if d > 0 {
			cfg.SessionTimeout = d
		}
	}
}

func WithAutoCommitInterval(d time.Duration) KgoOption {
	return func(cfg *KgoClientConfig) {
		if d > 0 {
			cfg.AutoCommitInterval = d
		}
	}
}

func WithLogger(l logger.Logger) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.Logger = l.
			With("client", "kgo")
	}
}

type KgoClient struct {
	client *kgo.Client
	admin  *kadm.Client
	config KgoClientConfig

	mu          sync.RWMutex
	subscribed  bool
	rebalanceCb RebalanceCallback
	topics      []string

	logger logger.Logger
}

func NewKgoClient(opts ...KgoOption) (*KgoClient, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	kc := &KgoClient{config: cfg, logger: cfg.Logger}

	kgoOpts := []kgo.Opt{
		kgo.SeedBrokers(cfg.BootstrapServers...),
		kgo.ClientID(cfg.ClientID),
		kgo.WithLogger(newKgoLogger(kc.logger)),
		kgo.ConsumeResetOffset(toKgoOffset(cfg.ResetOffset, -1)),
	}

	if cfg.GroupID != "" {
		kgoOpts = append(
			kgoOpts,
			kgo.ConsumerGroup(cfg.GroupID),
			kgo.AdjustFetchOffsetsFn(kc.adjustOffsets),
			kgo.OnPartitionsRevoked(kc.onRevoked),
			kgo.OnPartitionsLost(kc.onRevoked),
			kgo.SessionTimeout(cfg.SessionTimeout),
			kgo.HeartbeatInterval(cfg.HeartbeatInterval),
			kgo.AutoCommitMarks(),
			kgo.AutoCommitInterval(cfg.AutoCommitInterval),
			kgo.AutoCommitCallback(kc.onAutoCommit),
		)
	}

	if cfg.ConsumeRegex {
		kgoOpts = append(kgoOpts, kgo.ConsumeRegex())
	}

	client, err := kgo.NewClient(kgoOpts...)
	if err != nil {
		return nil, fmt.Errorf("create kgo client: %w", err)
	}

	kc.client = client
	kc.admin = kadm.NewClient(client)

	return kc, nil
}

// adjustOffsets runs after the group fetched committed offsets for a new
// assignment and before the first fetch, so the offsets returned by the
// rebalance callback are in place before any record of those partitions is
// consumed.
func (k *KgoClient) adjustOffsets(ctx context.Context, offsets map[string]map[int32]kgo.Offset) (
	map[string]map[int32]kgo.Offset, error,
) {
	k.mu.RLock()
	cb := k.rebalanceCb
	k.mu.RUnlock()

	if cb == nil {
		return offsets, nil
	}

	assignment := offsetsToAssignment(offsets)
	adjusted := cb.OnAssigned(assignment)

	out := make(map[string]map[int32]kgo.Offset, len(offsets))
	for topic, partitions := range offsets {
		out[topic] = make(map[int32]kgo.Offset, len(partitions))
		for p, o := range partitions {
			out[topic][p] = o
		}
	}

	for _, po := range adjusted {
		original, ok := offsets[po.Topic][po.Partition]
		if ok && original.EpochOffset().Offset == po.Offset.Offset {
			continue
		}

		if _, ok := out[po.Topic]; !ok {
			out[po.Topic] = make(map[int32]kgo.Offset)
		}
		out[po.Topic][po.Partition] = toKgoOffset(po.Offset.Offset, po.Offset.LeaderEpoch)
	}

	return out, nil
}

func (k *KgoClient) onRevoked(ctx context.Context, c *kgo.Client, revoked map[string][]int32) {
	k.mu.RLock()
	cb := k.rebalanceCb
	k.mu.RUnlock()

	if cb == nil {
		return
	}

	partitions := mapToTopicPartitions(revoked)
	cb.OnRevoked(partitions)
}

// onAutoCommit logs background commits that failed as a whole or for single
// partitions. Failed offsets are retried on the next interval.
func (k *KgoClient) onAutoCommit(
	_ *kgo.Client, _ *kmsg.OffsetCommitRequest, resp *kmsg.OffsetCommitResponse, err error,
) {
	if err != nil {
		k.logger.Warn("Auto commit failed", "group", k.config.GroupID, "error", err)
		return
	}
	if resp == nil {
		return
	}

	for _, t := range resp.Topics {
		for _, p := range t.Partitions {
			if perr := kerr.ErrorForCode(p.ErrorCode); perr != nil {
				k.logger.Warn(
					"Auto commit failed for partition",
					"group", k.config.GroupID, "topic", t.Topic, "partition", p.Partition, "error", perr,
				)
			}
		}
	}
}

func (k *KgoClient) GroupID() string {
	return k.config.GroupID
}

func (k *KgoClient) Subscribe(topics []string, rebalanceCb RebalanceCallback) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.subscribed {
		return fmt.Errorf("already subscribed")
	}

	if k.config.GroupID == "" {
		return fmt.Errorf("subscribe requires a group id")
	}

	if !k.config.ConsumeRegex {
		for _, t := range topics {
			if strings.HasPrefix(t, "^") {
				return fmt.Errorf("topic pattern %q requires a client created WithConsumeRegex", t)
			}
		}
	}

	k.rebalanceCb = rebalanceCb
	k.topics = topics
	k.client.AddConsumeTopics(topics...)
	k.subscribed = true

	return nil
}

// Unsubscribe leaves the group. The revoke callbacks run on the group
// goroutine while leaving and take k.mu, so the lock is released first.
func (k *KgoClient) Unsubscribe(ctx context.Context) error {
	k.mu.Lock()
	if !k.subscribed {
		k.mu.Unlock()
		return nil
	}
	k.rebalanceCb = nil
	k.subscribed = false
	k.mu.Unlock()

	if err := k.client.LeaveGroupContext(ctx); err != nil {
		return fmt.Errorf("leave group %s: %w", k.config.GroupID, err)
	}
	return nil
}

// Poll returns the records fetched within timeout. Records and an error can
// both be returned when some partitions failed and others did not.
func (k *KgoClient) Poll(ctx context.Context, timeout time.Duration) ([]ConsumerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fetches := k.client.PollRecords(ctx, k.config.MaxPollRecords)
	if fetches.IsClientClosed() {
		return nil, ErrClientClosed
	}

	var pollErr error
	for _, fe := range fetches.Errors() {
		if errors.Is(fe.Err, context.DeadlineExceeded) || errors.Is(fe.Err, context.Canceled) {
			continue
		}

		pollErr = errors.Join(pollErr, fmt.Errorf("poll %s[%d]: %w", fe.Topic, fe.Partition, fe.Err))
	}

	return convertRecords(fetches.Records()), pollErr
}

func (k *KgoClient) MarkRecords(records ...ConsumerRecord) {
	k.client.MarkCommitRecords(convertRecordsToKgo(records)...)
}

func (k *KgoClient) Commit(ctx context.Context) error {
	return k.client.CommitMarkedOffsets(ctx)
}

func (k *KgoClient) Send(ctx context.Context, topic string, key, value []byte, headers []Header) error {
	record := &kgo.Record{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: convertToKgoHeaders(headers),
	}

	results := k.client.ProduceSync(ctx, record)
	return results.FirstErr()
}

func (k *KgoClient) Produce(ctx context.Context, record ProducerRecord, promise PromiseFunc) {
	kr := &kgo.Record{
		Topic:   record.Topic,
		Key:     record.Key,
		Value:   record.Value,
		Headers: convertToKgoHeaders(record.Headers),
	}

	k.client.Produce(
		ctx, kr, func(_ *kgo.Record, err error) {
			if promise != nil {
				promise(record, err)
			}
		},
	)
}

func (k *KgoClient) Flush(ctx context.Context) error {
	return k.client.Flush(ctx)
}

func (k *KgoClient) CreateTopic(ctx context.Context, topic TopicConfig) error {
	resp, err := k.admin.CreateTopic(ctx, topic.NumPartitions, topic.ReplicationFactor, topic.ConfigEntries, topic.Name)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic.Name, err)
	}

	return resp.Err
}

func (k *KgoClient) Ping(ctx context.Context) error {
	return k.client.Ping(ctx)
}

func (k *KgoClient) Close() {
	k.client.CloseAllowingRebalance()
}

func toKgoOffset(offset int64, epoch int32) kgo.Offset {
	switch offset {
	case OffsetBeginning:
		return kgo.NewOffset().AtStart()
	case OffsetEnd:
		return kgo.NewOffset().AtEnd()
	default:
		return kgo.NewOffset().At(offset).WithEpoch(epoch)
	}
}

func offsetsToAssignment(offsets map[string]map[int32]kgo.Offset) []PartitionOffset {
	var assignment []PartitionOffset
	for topic, partitions := range offsets {
		for partition, o := range partitions {
			eo := o.EpochOffset()
			assignment = append(
				assignment, PartitionOffset{
					TopicPartition: TopicPartition{Topic: topic, Partition: partition},
					Offset:         Offset{LeaderEpoch: eo.Epoch, Offset: eo.Offset},
				},
			)
		}
	}

	sort.Slice(
		assignment, func(i, j int) bool {
			if assignment[i].Topic != assignment[j].Topic {
				return assignment[i].Topic < assignment[j].Topic
			}
			return assignment[i].Partition < assignment[j].Partition
		},
	)

	return assignment
}

func convertRecordsToKgo(records []ConsumerRecord) []*kgo.Record {
	kgoRecords := make([]*kgo.Record, len(records))
	for i, r := range records {
		kgoRecords[i] = &kgo.Record{
			Topic:       r.Topic,
			Partition:   r.Partition,
			Offset:      r.Offset,
			Key:         r.Key,
			Value:       r.Value,
			Headers:     convertToKgoHeaders(r.Headers),
			Timestamp:   r.Timestamp,
			LeaderEpoch: r.LeaderEpoch,
		}
	}

	return kgoRecords
}

func convertRecords(records []*kgo.Record) []ConsumerRecord {
	converted := make([]ConsumerRecord, len(records))
	for i, r := range records {
		converted[i] = ConsumerRecord{
			Topic:       r.Topic,
			Partition:   r.Partition,
			Offset:      r.Offset,
			Key:         r.Key,
			Value:       r.Value,
			Headers:     convertFromKgoHeaders(r.Headers),
			Timestamp:   r.Timestamp,
			LeaderEpoch: r.LeaderEpoch,
		}
	}

	return converted
}

func convertFromKgoHeaders(headers []kgo.RecordHeader) []Header {
	converted := make([]Header, len(headers))
	for i, h := range headers {
		converted[i] = Header{Key: h.Key, Value: h.Value}
	}
	return converted
}

func convertToKgoHeaders(headers []Header) []kgo.RecordHeader {
	kgoHeaders := make([]kgo.RecordHeader, len(headers))
	for i, h := range headers {
		kgoHeaders[i] = kgo.RecordHeader{Key: h.Key, Value: h.Value}
	}
	return kgoHeaders
}

func mapToTopicPartitions(m map[string][]int32) []TopicPartition {
	var tps []TopicPartition
	for topic, partitions := range m {
		for _, partition := range partitions {
			tps = append(
				tps, TopicPartition{
					Topic:     topic,
					Partition: partition,
				},
			)
		}
	}

	return tps
}
