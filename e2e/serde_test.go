//go:build e2e

package e2e

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hugolhafner/go-kcore/consumer"
	"github.com/hugolhafner/go-kcore/producer"
	"github.com/hugolhafner/go-kcore/record"
	"github.com/hugolhafner/go-kcore/serde"
	"github.com/hugolhafner/go-kcore/topic"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const arrivalSchemaV1 = `{
	"type": "record",
	"name": "arrival",
	"namespace": "com.example",
	"fields": [
		{"name": "station_id", "type": "int"},
		{"name": "train_id", "type": "string"}
	]
}`

const arrivalSchemaV2 = `{
	"type": "record",
	"name": "arrival",
	"namespace": "com.example",
	"fields": [
		{"name": "station_id", "type": "int"},
		{"name": "train_id", "type": "string"},
		{"name": "direction", "type": "string", "default": "n"}
	]
}`

// TestE2E_RegisteredAvro_SchemaEvolution produces with a newer compatible
// schema version and consumes with a serde registered for the older one.
func TestE2E_RegisteredAvro_SchemaEvolution(t *testing.T) {
	broker := ensureContainer(t)
	registryURL := ensureSchemaRegistry(t)
	name := testTopicName(t, "arrivals")
	groupID := testGroupID(t, "arrivals")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	registry, err := serde.NewSchemaRegistry(registryURL)
	require.NoError(t, err)

	v1, err := serde.RegisteredAvro(ctx, registry, name, false, arrivalSchemaV1)
	require.NoError(t, err)
	v2, err := serde.RegisteredAvro(ctx, registry, name, false, arrivalSchemaV2)
	require.NoError(t, err)

	client := newProducerClient(t, broker, name)
	p, err := producer.New(
		ctx, topic.NewRegistry(client), client, producer.Spec[any, any]{
			Topic: topic.Spec{Name: name, Partitions: 1, Replicas: 1},
			Value: v2,
		},
	)
	require.NoError(t, err)

	require.NoError(
		t, p.Produce(ctx, nil, map[string]any{"station_id": int32(40380), "train_id": "BL12", "direction": "s"}),
	)
	require.NoError(t, p.Close(ctx))

	var mu sync.Mutex
	var got []map[string]any
	cons, err := consumer.New(
		newConsumerClient(t, broker, groupID, consumer.Earliest, false),
		consumer.Subscription[[]byte, any]{
			TopicPattern: name,
			OffsetPolicy: consumer.Earliest,
			IdleSleep:    200 * time.Millisecond,
			Key:          serde.Bytes(),
			Value:        v1,
			Handler: func(_ context.Context, r record.Record[[]byte, any]) error {
				mu.Lock()
				defer mu.Unlock()
				got = append(got, r.Value.(map[string]any))
				return nil
			},
		},
		consumer.WithOwnedClient(),
	)
	require.NoError(t, err)

	app, errCh := startApplication(t, cons)

	eventually(
		t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(got) == 1
		}, consumeWait, "expected the evolved record",
	)

	app.Close()
	waitForShutdown(t, errCh, shutdownWait)

	require.Equal(t, "BL12", got[0]["train_id"])
	require.Equal(t, "s", got[0]["direction"])
}

// TestE2E_Protobuf_KeysAndValues carries protobuf keys and values through a
// real broker.
func TestE2E_Protobuf_KeysAndValues(t *testing.T) {
	broker := ensureContainer(t)
	name := testTopicName(t, "departures")
	groupID := testGroupID(t, "departures")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := newProducerClient(t, broker, name)
	p, err := producer.New(
		ctx, topic.NewRegistry(client), client, producer.Spec[*wrapperspb.StringValue, *timestamppb.Timestamp]{
			Topic: topic.Spec{Name: name, Partitions: 1, Replicas: 1},
			Key:   serde.Protobuf[*wrapperspb.StringValue](),
			Value: serde.Protobuf[*timestamppb.Timestamp](),
		},
	)
	require.NoError(t, err)

	departed := time.Date(2024, 3, 1, 17, 42, 0, 0, time.UTC)
	require.NoError(t, p.Produce(ctx, wrapperspb.String("harlem"), timestamppb.New(departed)))
	require.NoError(t, p.Close(ctx))

	var mu sync.Mutex
	var stations []string
	var times []time.Time
	cons, err := consumer.New(
		newConsumerClient(t, broker, groupID, consumer.Earliest, false),
		consumer.Subscription[*wrapperspb.StringValue, *timestamppb.Timestamp]{
			TopicPattern: name,
			OffsetPolicy: consumer.Earliest,
			IdleSleep:    200 * time.Millisecond,
			Key:          serde.Protobuf[*wrapperspb.StringValue](),
			Value:        serde.Protobuf[*timestamppb.Timestamp](),
			Handler: func(_ context.Context, r record.Record[*wrapperspb.StringValue, *timestamppb.Timestamp]) error {
				mu.Lock()
				defer mu.Unlock()
				stations = append(stations, r.Key.GetValue())
				times = append(times, r.Value.AsTime())
				return nil
			},
		},
		consumer.WithOwnedClient(),
	)
	require.NoError(t, err)

	app, errCh := startApplication(t, cons)

	eventually(
		t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(stations) == 1
		}, consumeWait, "expected the departure record",
	)

	app.Close()
	waitForShutdown(t, errCh, shutdownWait)

	require.Equal(t, []string{"harlem"}, stations)
	require.Equal(t, []time.Time{departed}, times)
}
