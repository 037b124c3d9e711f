//go:build unit

package kafka_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/hugolhafner/go-kcore/kafka"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kfake"
	"github.com/twmb/franz-go/pkg/kgo"
)

const arrivalsTopic = "arrivals"

type recordingCallback struct {
	mu      sync.Mutex
	seen    []kafka.PartitionOffset
	rewrite func(kafka.PartitionOffset) kafka.PartitionOffset
	revoked []kafka.TopicPartition
}

func (r *recordingCallback) OnAssigned(a []kafka.PartitionOffset) []kafka.PartitionOffset {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seen = append(r.seen, a...)
	if r.rewrite == nil {
		return a
	}

	out := make([]kafka.PartitionOffset, len(a))
	for i, po := range a {
		out[i] = r.rewrite(po)
	}
	return out
}

func (r *recordingCallback) OnRevoked(p []kafka.TopicPartition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.revoked = append(r.revoked, p...)
}

func (r *recordingCallback) assigned() []kafka.PartitionOffset {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]kafka.PartitionOffset(nil), r.seen...)
}

func newCluster(t *testing.T) []string {
	t.Helper()

	cluster, err := kfake.NewCluster(kfake.NumBrokers(1), kfake.SeedTopics(1, arrivalsTopic))
	require.NoError(t, err)
	t.Cleanup(cluster.Close)

	return cluster.ListenAddrs()
}

func newClient(t *testing.T, addrs []string, opts ...kafka.KgoOption) *kafka.KgoClient {
	t.Helper()

	client, err := kafka.NewKgoClient(append([]kafka.KgoOption{kafka.WithBootstrapServers(addrs)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}

func produceArrivals(t *testing.T, addrs []string, n int) {
	t.Helper()

	producer := newClient(t, addrs)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := 0; i < n; i++ {
		v := []byte(strconv.Itoa(i))
		require.NoError(t, producer.Send(ctx, arrivalsTopic, v, v, nil))
	}
}

func commitOffset(t *testing.T, addrs []string, group string, offset int64) {
	t.Helper()

	cl, err := kgo.NewClient(kgo.SeedBrokers(addrs...))
	require.NoError(t, err)
	defer cl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var offsets kadm.Offsets
	offsets.AddOffset(arrivalsTopic, 0, offset, -1)

	resp, err := kadm.NewClient(cl).CommitOffsets(ctx, group, offsets)
	require.NoError(t, err)
	require.NoError(t, resp.Error())
}

// pollFirst polls until at least one record arrives.
func pollFirst(t *testing.T, client *kafka.KgoClient) kafka.ConsumerRecord {
	t.Helper()

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		records, err := client.Poll(context.Background(), 500*time.Millisecond)
		require.NoError(t, err)
		if len(records) > 0 {
			return records[0]
		}
	}

	t.Fatal("no records polled before deadline")
	return kafka.ConsumerRecord{}
}

func TestKgoClient_CreateTopicTwiceIsAlreadyExists(t *testing.T) {
	addrs := newCluster(t)
	client := newClient(t, addrs)
	ctx := context.Background()

	topic := kafka.TopicConfig{Name: "org.chicago.cta.stations", NumPartitions: 3, ReplicationFactor: 1}
	require.NoError(t, client.CreateTopic(ctx, topic))

	err := client.CreateTopic(ctx, topic)
	require.Error(t, err)
	require.True(t, kafka.IsTopicAlreadyExists(err))
	require.False(t, kafka.IsTransient(err))
}

func TestKgoClient_AssignedRewriteToBeginningOverridesCommittedOffset(t *testing.T) {
	addrs := newCluster(t)
	produceArrivals(t, addrs, 5)
	commitOffset(t, addrs, "rewind", 3)

	cb := &recordingCallback{rewrite: func(po kafka.PartitionOffset) kafka.PartitionOffset {
		po.Offset.Offset = kafka.OffsetBeginning
		return po
	}}

	consumer := newClient(t, addrs, kafka.WithGroupID("rewind"))
	require.NoError(t, consumer.Subscribe([]string{arrivalsTopic}, cb))

	first := pollFirst(t, consumer)
	require.Equal(t, int64(0), first.Offset)

	seen := cb.assigned()
	require.NotEmpty(t, seen)
	require.Equal(t, arrivalsTopic, seen[0].Topic)
	require.Equal(t, int64(3), seen[0].Offset.Offset)
}

func TestKgoClient_UnchangedAssignmentResumesFromCommittedOffset(t *testing.T) {
	addrs := newCluster(t)
	produceArrivals(t, addrs, 5)
	commitOffset(t, addrs, "resume", 2)

	cb := &recordingCallback{}
	consumer := newClient(t, addrs, kafka.WithGroupID("resume"), kafka.WithResetOffset(kafka.OffsetEnd))
	require.NoError(t, consumer.Subscribe([]string{arrivalsTopic}, cb))

	first := pollFirst(t, consumer)
	require.Equal(t, int64(2), first.Offset)
	require.Equal(t, []byte("2"), first.Value)
}

func TestKgoClient_UnsubscribeReturnsAfterConsuming(t *testing.T) {
	addrs := newCluster(t)
	produceArrivals(t, addrs, 3)

	cb := &recordingCallback{}
	consumer := newClient(t, addrs, kafka.WithGroupID("leaver"), kafka.WithResetOffset(kafka.OffsetBeginning))
	require.NoError(t, consumer.Subscribe([]string{arrivalsTopic}, cb))
	pollFirst(t, consumer)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- consumer.Unsubscribe(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Unsubscribe did not return")
	}

	require.NoError(t, consumer.Unsubscribe(ctx), "second Unsubscribe is a no-op")
}

func TestKgoClient_EmptyPollIsNotAnError(t *testing.T) {
	addrs := newCluster(t)

	consumer := newClient(t, addrs, kafka.WithGroupID("idle"))
	require.NoError(t, consumer.Subscribe([]string{arrivalsTopic}, &recordingCallback{}))

	records, err := consumer.Poll(context.Background(), 200*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestKgoClient_PollAfterCloseReturnsClientClosed(t *testing.T) {
	addrs := newCluster(t)

	consumer, err := kafka.NewKgoClient(kafka.WithBootstrapServers(addrs), kafka.WithGroupID("closed"))
	require.NoError(t, err)
	require.NoError(t, consumer.Subscribe([]string{arrivalsTopic}, &recordingCallback{}))
	consumer.Close()

	_, err = consumer.Poll(context.Background(), 200*time.Millisecond)
	require.ErrorIs(t, err, kafka.ErrClientClosed)
}

func TestKgoClient_SubscribeRejections(t *testing.T) {
	addrs := newCluster(t)

	t.Run("no group", func(t *testing.T) {
		client := newClient(t, addrs)
		require.Error(t, client.Subscribe([]string{arrivalsTopic}, &recordingCallback{}))
	})

	t.Run("pattern without regex consumption", func(t *testing.T) {
		client := newClient(t, addrs, kafka.WithGroupID("pattern"))
		require.Error(t, client.Subscribe([]string{`^org\.chicago\..*`}, &recordingCallback{}))
	})

	t.Run("twice", func(t *testing.T) {
		client := newClient(t, addrs, kafka.WithGroupID("twice"))
		require.NoError(t, client.Subscribe([]string{arrivalsTopic}, &recordingCallback{}))
		require.Error(t, client.Subscribe([]string{arrivalsTopic}, &recordingCallback{}))
	})
}
