package mockkafka

import (
	"time"

	"github.com/hugolhafner/go-kcore/kafka"
)

// RecordBuilder provides a fluent interface for building ConsumerRecords.
type RecordBuilder struct {
	record kafka.ConsumerRecord
}

// Record creates a new RecordBuilder with the given key and value.
func Record(key, value string) *RecordBuilder {
	return RecordBytes([]byte(key), []byte(value))
}

// RecordBytes creates a new RecordBuilder with byte slices for key and value.
func RecordBytes(key, value []byte) *RecordBuilder {
	return &RecordBuilder{
		record: kafka.ConsumerRecord{
			Key:       key,
			Value:     value,
			Timestamp: time.Now(),
		},
	}
}

// WithOffset sets the record's offset.
func (b *RecordBuilder) WithOffset(offset int64) *RecordBuilder {
	b.record.Offset = offset
	return b
}

// WithHeader adds a header to the record.
func (b *RecordBuilder) WithHeader(key string, value []byte) *RecordBuilder {
	b.record.Headers = append(b.record.Headers, kafka.Header{Key: key, Value: value})
	return b
}

// Build returns the constructed ConsumerRecord.
func (b *RecordBuilder) Build() kafka.ConsumerRecord {
	return b.record
}

// SimpleRecord creates a ConsumerRecord with just key and value as strings.
func SimpleRecord(key, value string) kafka.ConsumerRecord {
	return Record(key, value).Build()
}

// SimpleRecords creates multiple ConsumerRecords from key-value pairs.
func SimpleRecords(keyValuePairs ...string) []kafka.ConsumerRecord {
	if len(keyValuePairs)%2 != 0 {
		panic("SimpleRecords requires an even number of arguments (key-value pairs)")
	}

	records := make([]kafka.ConsumerRecord, 0, len(keyValuePairs)/2)
	for i := 0; i < len(keyValuePairs); i += 2 {
		records = append(records, SimpleRecord(keyValuePairs[i], keyValuePairs[i+1]))
	}
	return records
}
