//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/hugolhafner/go-kcore/kafka"
	"github.com/hugolhafner/go-kcore/producer"
	"github.com/hugolhafner/go-kcore/serde"
	"github.com/hugolhafner/go-kcore/topic"
	"github.com/stretchr/testify/require"
)

// TestE2E_ProduceClose_Durability produces without waiting for acks and
// closes the producer. Every record must be readable afterwards, in order
// per key.
func TestE2E_ProduceClose_Durability(t *testing.T) {
	broker := ensureContainer(t)
	name := testTopicName(t, "durability")

	client := newProducerClient(t, broker, name)
	registry := topic.NewRegistry(client)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p, err := producer.New(
		ctx, registry, client, producer.Spec[string, string]{
			Topic: topic.Spec{Name: name, Partitions: 6, Replicas: 1},
			Key:   serde.String(),
			Value: serde.String(),
		},
	)
	require.NoError(t, err)

	const keys, perKey = 10, 50
	for i := 0; i < perKey; i++ {
		for k := 0; k < keys; k++ {
			require.NoError(t, p.Produce(ctx, fmt.Sprintf("station-%d", k), strconv.Itoa(i)))
		}
	}

	require.NoError(t, p.Close(ctx))
	require.Zero(t, p.InFlight())
	require.ErrorIs(t, p.Produce(ctx, "late", "record"), producer.ErrProducerClosed)

	records := consumeRecords(t, broker, name, testGroupID(t, "verifier"), keys*perKey, consumeWait)
	require.Len(t, records, keys*perKey)

	next := make(map[string]int)
	partitions := make(map[string]int32)
	for _, r := range records {
		require.Equal(t, strconv.Itoa(next[r.Key]), r.Value, "out of order for %s", r.Key)
		next[r.Key]++

		if prev, ok := partitions[r.Key]; ok {
			require.Equal(t, prev, r.Partition, "key %s moved partitions", r.Key)
		}
		partitions[r.Key] = r.Partition
	}
}

func TestE2E_ProduceHeaders(t *testing.T) {
	broker := ensureContainer(t)
	name := testTopicName(t, "headers")

	client := newProducerClient(t, broker, name)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p, err := producer.New(
		ctx, topic.NewRegistry(client), client, producer.Spec[string, string]{
			Topic: topic.Spec{Name: name, Partitions: 1, Replicas: 1},
			Value: serde.String(),
		},
		producer.WithHeaders(kafka.Header{Key: "source", Value: []byte("e2e")}),
	)
	require.NoError(t, err)

	require.NoError(t, p.Produce(ctx, "", "value"))
	require.NoError(t, p.Close(ctx))

	records := consumeRecords(t, broker, name, testGroupID(t, "headers"), 1, consumeWait)
	require.Equal(t, "", records[0].Key)
	require.Equal(t, "value", records[0].Value)
	require.Equal(t, "e2e", records[0].Headers["source"])
}

// TestE2E_ProducerClose_SharedClientSurvives closes one of two producers
// sharing a client.
func TestE2E_ProducerClose_SharedClientSurvives(t *testing.T) {
	broker := ensureContainer(t)
	first := testTopicName(t, "shared-a")
	second := testTopicName(t, "shared-b")

	client := newProducerClient(t, broker, first, second)
	registry := topic.NewRegistry(client)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	spec := func(name string) producer.Spec[string, string] {
		return producer.Spec[string, string]{
			Topic: topic.Spec{Name: name, Partitions: 1, Replicas: 1},
			Value: serde.String(),
		}
	}

	a, err := producer.New(ctx, registry, client, spec(first))
	require.NoError(t, err)
	b, err := producer.New(ctx, registry, client, spec(second))
	require.NoError(t, err)

	require.NoError(t, a.Produce(ctx, "", "a"))
	require.NoError(t, a.Close(ctx))

	// a did not own the client, so b keeps producing through it
	require.NoError(t, b.Produce(ctx, "", "b"))
	require.NoError(t, b.Close(ctx))

	require.Len(t, consumeRecords(t, broker, second, testGroupID(t, "shared"), 1, consumeWait), 1)
}
