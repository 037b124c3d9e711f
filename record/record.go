package record

import (
	"time"

	"github.com/hugolhafner/go-kcore/kafka"
)

type Metadata struct {
	Timestamp time.Time
	Headers   []kafka.Header

	Topic     string
	Partition int32
	Offset    int64
}

// Record is a consumed record with its key and value decoded.
type Record[K, V any] struct {
	Key   K
	Value V
	Metadata
}

// MetadataOf copies the position and headers of a consumed record.
func MetadataOf(r kafka.ConsumerRecord) Metadata {
	return Metadata{
		Timestamp: r.Timestamp,
		Headers:   r.Headers,
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
	}
}
