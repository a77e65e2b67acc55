package redisQueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aws-sqs-csv-utility/internal/pkg/queue"
	"aws-sqs-csv-utility/internal/pkg/record"
)

func newTestQueue(t *testing.T) (*RedisActions, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.UnixMilli(1_600_000_000_000).UTC()
	q := New(client, &Config{KeyPrefix: "queue-", SenderID: "tester"})
	q.clock = func() time.Time { return now }
	return q, mr, &now
}

func receive(t *testing.T, q *RedisActions, max, visibility int32) []record.Record {
	t.Helper()
	records, err := q.Receive(context.Background(), "orders", queue.ReceiveOptions{
		MaxMessages: max, VisibilityTimeout: visibility,
	})
	require.NoError(t, err)
	return records
}

func TestSendReceiveDelete(t *testing.T) {
	q, mr, _ := newTestQueue(t)
	ctx := context.Background()
	red := "red"

	sent, err := q.Send(ctx, "orders", []record.Record{
		{MessageID: "a", Body: "one", Attributes: map[string]record.Attribute{"colour": {DataType: "String", StringValue: &red}}},
		{MessageID: "b", Body: "two", MessageGroupID: "g", MessageDeduplicationID: "d"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	records := receive(t, q, 10, 30)
	require.Len(t, records, 2)
	assert.Equal(t, "one", records[0].Body)
	assert.Equal(t, "red", *records[0].Attributes["colour"].StringValue)
	assert.Equal(t, "tester", records[0].SenderID)
	assert.Equal(t, "1", records[0].ReceiveCount)
	assert.Equal(t, "2020-09-13T12:26:40.000Z", records[0].Sent)
	assert.NotEmpty(t, records[0].ReceiptHandle)
	assert.Equal(t, "g", records[1].MessageGroupID)
	assert.Equal(t, "d", records[1].MessageDeduplicationID)

	// hidden while in flight
	assert.Empty(t, receive(t, q, 10, 30))

	deleted, err := q.Delete(ctx, "orders", records)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	deleted, err = q.Delete(ctx, "orders", records[:1])
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	assert.False(t, mr.Exists("queue-orders:inflight"))
}

func TestResetVisibilityReturnsMessages(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Send(ctx, "orders", []record.Record{{MessageID: "a", Body: "one"}, {MessageID: "b", Body: "two"}})
	require.NoError(t, err)

	records := receive(t, q, 10, 30)
	require.Len(t, records, 2)

	changed, err := q.ResetVisibility(ctx, "orders", []string{records[1].ReceiptHandle, "unknown"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	again := receive(t, q, 10, 30)
	require.Len(t, again, 1)
	assert.Equal(t, "two", again[0].Body)
	assert.Equal(t, "2", again[0].ReceiveCount)
	assert.Equal(t, records[1].FirstReceived, again[0].FirstReceived)
}

func TestExpiredMessagesBecomeVisible(t *testing.T) {
	q, _, now := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Send(ctx, "orders", []record.Record{{MessageID: "a", Body: "one"}})
	require.NoError(t, err)

	require.Len(t, receive(t, q, 1, 5), 1)
	assert.Empty(t, receive(t, q, 1, 5))

	*now = now.Add(6 * time.Second)
	records := receive(t, q, 1, 5)
	require.Len(t, records, 1)
	assert.Equal(t, "2", records[0].ReceiveCount)
}

// failCommand fails every command with the given name before it reaches the server.
type failCommand string

func (f failCommand) DialHook(next redis.DialHook) redis.DialHook { return next }

func (f failCommand) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == string(f) {
			err := errors.New("connection reset")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (f failCommand) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestReceiveFailureKeepsMessage(t *testing.T) {
	q, mr, now := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Send(ctx, "orders", []record.Record{{MessageID: "a", Body: "one"}})
	require.NoError(t, err)

	q.Client.AddHook(failCommand("hset"))
	_, err = q.Receive(ctx, "orders", queue.ReceiveOptions{MaxMessages: 1, VisibilityTimeout: 5})
	require.Error(t, err)

	depth, err := q.Describe(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, "0", depth.Messages)
	assert.Equal(t, "1", depth.MessagesNotVisible)

	healthy := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = healthy.Close() })
	again := New(healthy, q.Config)
	again.clock = func() time.Time { return now.Add(6 * time.Second) }

	records := receive(t, again, 1, 5)
	require.Len(t, records, 1)
	assert.Equal(t, "one", records[0].Body)
}

func TestReceiveWaitsForMessage(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	go func() {
		time.Sleep(100 * time.Millisecond)
		_, _ = q.Send(ctx, "orders", []record.Record{{MessageID: "a", Body: "late"}})
	}()

	records, err := q.Receive(ctx, "orders", queue.ReceiveOptions{MaxMessages: 1, VisibilityTimeout: 5, WaitTime: 2})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "late", records[0].Body)

	depth, err := q.Describe(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, "0", depth.Messages)
	assert.Equal(t, "1", depth.MessagesNotVisible)
}

func TestReceiveRejectsLowVisibility(t *testing.T) {
	q, _, _ := newTestQueue(t)
	_, err := q.Receive(context.Background(), "orders", queue.ReceiveOptions{MaxMessages: 1})
	assert.ErrorIs(t, err, queue.ErrVisibilityTooLow)
}

func TestListAndDescribe(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Send(ctx, "orders", []record.Record{{MessageID: "a"}, {MessageID: "b"}, {MessageID: "c"}})
	require.NoError(t, err)
	_, err = q.Send(ctx, "refunds", []record.Record{{MessageID: "a"}})
	require.NoError(t, err)
	require.Len(t, receive(t, q, 1, 30), 1)

	names, err := q.ListQueues(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "refunds"}, names)

	depth, err := q.Describe(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, queue.Depth{Messages: "2", MessagesDelayed: "0", MessagesNotVisible: "1"}, depth)

	name, err := q.Resolve(ctx, "queue-orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", name)
}
