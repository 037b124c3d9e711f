package mockkafka

import (
	"bytes"
	"testing"

	"github.com/hugolhafner/go-kcore/kafka"
	"github.com/stretchr/testify/require"
)

// AssertProducedCount verifies that exactly n records were delivered.
func (c *Client) AssertProducedCount(tb testing.TB, expected int) {
	tb.Helper()

	actual := len(c.ProducedRecords())
	require.Equal(tb, expected, actual, "expected %d records, got %d", expected, actual)
}

// AssertProduced verifies that a record with the given key and value was delivered to the topic.
func (c *Client) AssertProduced(tb testing.TB, topic string, key, value []byte) {
	tb.Helper()

	for _, r := range c.ProducedRecordsForTopic(topic) {
		if bytes.Equal(r.Key, key) && bytes.Equal(r.Value, value) {
			return
		}
	}

	tb.Errorf(
		"expected record with key=%q value=%q to be produced to topic %q, but it was not found",
		string(key), string(value), topic,
	)
}

// AssertProducedString is a convenience method for string keys and values.
func (c *Client) AssertProducedString(tb testing.TB, topic, key, value string) {
	tb.Helper()
	c.AssertProduced(tb, topic, []byte(key), []byte(value))
}

// AssertCreateTopicCalls verifies how many CreateTopic calls were made for name.
func (c *Client) AssertCreateTopicCalls(tb testing.TB, name string, expected int) {
	tb.Helper()

	actual := c.CreateTopicCalls(name)
	require.Equal(tb, expected, actual, "expected %d create calls for topic %q, got %d", expected, name, actual)
}

// AssertCommittedOffset verifies that a specific offset was committed.
func (c *Client) AssertCommittedOffset(tb testing.TB, tp kafka.TopicPartition, expectedOffset int64) {
	tb.Helper()

	actual, ok := c.CommittedOffset(tp)
	require.True(tb, ok, "expected offset %d to be committed for %s, but none found", expectedOffset, tp)
	require.Equal(
		tb, expectedOffset, actual.Offset, "expected offset %d to be committed for %s, got %d",
		expectedOffset, tp, actual.Offset,
	)
}

// AssertSubscribed verifies that the client is subscribed to the given topics.
func (c *Client) AssertSubscribed(tb testing.TB, topics ...string) {
	tb.Helper()

	subMap := make(map[string]bool)
	for _, s := range c.Subscriptions() {
		subMap[s] = true
	}

	for _, topic := range topics {
		if !subMap[topic] {
			tb.Errorf("expected client to be subscribed to topic %q, but it is not", topic)
		}
	}
}

// AssertCallOrder verifies that the given lifecycle calls happened in order,
// ignoring unrelated calls in between.
func (c *Client) AssertCallOrder(tb testing.TB, expected ...string) {
	tb.Helper()

	calls := c.Calls()
	i := 0
	for _, call := range calls {
		if i < len(expected) && call == expected[i] {
			i++
		}
	}

	require.Equal(tb, len(expected), i, "expected calls in order %v, got %v", expected, calls)
}

// AssertClosed verifies that Close() was called.
func (c *Client) AssertClosed(tb testing.TB) {
	tb.Helper()

	require.True(tb, c.IsClosed(), "expected client to be closed")
}

// AssertNotClosed verifies that Close() was not called.
func (c *Client) AssertNotClosed(tb testing.TB) {
	tb.Helper()

	require.False(tb, c.IsClosed(), "expected client to not be closed, but it is")
}
