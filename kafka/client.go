package kafka

import (
	"context"
	"time"
)

type Client interface {
	Producer
	Consumer
	Admin

	Ping(ctx context.Context) error
}

// PromiseFunc is called once per produced record after the broker acknowledged
// it or delivery failed.
type PromiseFunc func(record ProducerRecord, err error)

type Producer interface {
	// Send produces a record and waits for the acknowledgement.
	Send(ctx context.Context, topic string, key, value []byte, headers []Header) error
	// Produce buffers a record for asynchronous delivery. promise may be nil.
	Produce(ctx context.Context, record ProducerRecord, promise PromiseFunc)
	Flush(ctx context.Context) error
	Close()
}

type Consumer interface {
	GroupID() string
	Subscribe(topics []string, rebalanceCb RebalanceCallback) error
	// Unsubscribe leaves the group. It returns once the group's revoke
	// callbacks ran or ctx is done.
	Unsubscribe(ctx context.Context) error
	Poll(ctx context.Context, timeout time.Duration) ([]ConsumerRecord, error)
	Commit(ctx context.Context) error
	MarkRecords(records ...ConsumerRecord)
	Close()
}

// Admin is the administrative surface used to provision topics.
type Admin interface {
	// CreateTopic returns an error matching IsTopicAlreadyExists when the topic exists.
	CreateTopic(ctx context.Context, topic TopicConfig) error
}

// RebalanceCallback is notified of group membership changes.
// OnAssigned receives the newly assigned partitions with the offsets the
// consumer would start from and returns the offsets it should start from
// instead. The returned assignment is applied before any fetch for those
// partitions is issued.
type RebalanceCallback interface {
	OnAssigned(assignment []PartitionOffset) []PartitionOffset
	OnRevoked(partitions []TopicPartition)
}
