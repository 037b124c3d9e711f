package kafka

import (
	"strconv"
	"time"
)

// Offset sentinels understood by every Consumer implementation.
const (
	OffsetEnd       int64 = -1
	OffsetBeginning int64 = -2
)

// Header represents a single Kafka record header
// kafka needs to support multiple headers with duplicate keys
type Header struct {
	Key   string
	Value []byte
}

// HeaderValue returns the value of the first header matching the given key
// Returns (nil, false) if no header with that key exists
func HeaderValue(headers []Header, key string) ([]byte, bool) {
	for _, h := range headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return nil, false
}

func copyHeaders(headers []Header) []Header {
	if headers == nil {
		return nil
	}

	out := make([]Header, len(headers))
	for i, h := range headers {
		out[i] = Header{Key: h.Key, Value: copyBytes(h.Value)}
	}
	return out
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}

	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ConsumerRecord is a record as returned by Poll, key and value still encoded.
type ConsumerRecord struct {
	Key         []byte
	Value       []byte
	Headers     []Header
	Topic       string
	Partition   int32
	Offset      int64
	LeaderEpoch int32
	Timestamp   time.Time
}

func (r ConsumerRecord) TopicPartition() TopicPartition {
	return TopicPartition{
		Topic:     r.Topic,
		Partition: r.Partition,
	}
}

func (r ConsumerRecord) Copy() ConsumerRecord {
	return ConsumerRecord{
		Key:         copyBytes(r.Key),
		Value:       copyBytes(r.Value),
		Headers:     copyHeaders(r.Headers),
		Topic:       r.Topic,
		Partition:   r.Partition,
		Offset:      r.Offset,
		LeaderEpoch: r.LeaderEpoch,
		Timestamp:   r.Timestamp,
	}
}

// ProducerRecord is the produced form of a record. Partition is chosen by the
// client's partitioner from the key.
type ProducerRecord struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers []Header
}

func (r ProducerRecord) Copy() ProducerRecord {
	return ProducerRecord{
		Topic:   r.Topic,
		Key:     copyBytes(r.Key),
		Value:   copyBytes(r.Value),
		Headers: copyHeaders(r.Headers),
	}
}

type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return tp.Topic + "-" + strconv.FormatInt(int64(tp.Partition), 10)
}

type Offset struct {
	LeaderEpoch int32
	Offset      int64
}

// PartitionOffset is one entry of a partition assignment: the partition and
// the offset consumption starts from.
type PartitionOffset struct {
	TopicPartition
	Offset Offset
}

// TopicConfig describes a topic to create through the Admin interface.
type TopicConfig struct {
	Name              string
	NumPartitions     int32
	ReplicationFactor int16
	ConfigEntries     map[string]*string
}
