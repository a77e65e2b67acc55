package redisQueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"aws-sqs-csv-utility/internal/pkg/logger"
	"aws-sqs-csv-utility/internal/pkg/queue"
	"aws-sqs-csv-utility/internal/pkg/record"
)

const (
	inflightSuffix  = ":inflight"  // hash: receipt handle -> envelope
	deadlinesSuffix = ":deadlines" // sorted set: receipt handle -> visibility deadline (unix ms)
)

// receiveScript moves the head of the pending list into the in-flight hash under
// ARGV[1] and records its deadline ARGV[2] in one step.
var receiveScript = redis.NewScript(`
local data = redis.call('LPOP', KEYS[1])
if not data then
	return false
end
redis.call('HSET', KEYS[2], ARGV[1], data)
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
return data
`)

// RedisActions implements a visibility-timeout queue on top of Redis.
//
// Pending messages live in a list. A receive atomically moves each message into an
// in-flight hash keyed by a fresh receipt handle and records its visibility deadline in a
// sorted set.
// Expired in-flight messages return to the head of the list on the next receive.
type RedisActions struct {
	Client *redis.Client // Redis client
	Config *Config       // Configuration for Redis queue

	clock func() time.Time
}

type Config struct {
	KeyPrefix string // Prefix for queue keys in Redis
	SenderID  string // Reported as SenderId on received messages
}

var _ queue.Client = (*RedisActions)(nil)

// envelope is the stored form of a message.
type envelope struct {
	MessageID              string                      `json:"messageId"`
	Body                   string                      `json:"body"`
	Attributes             map[string]record.Attribute `json:"attributes,omitempty"`
	SenderID               string                      `json:"senderId,omitempty"`
	SentTimestamp          int64                       `json:"sentTimestamp"`
	FirstReceiveTimestamp  int64                       `json:"firstReceiveTimestamp,omitempty"`
	ReceiveCount           int                         `json:"receiveCount"`
	MessageGroupID         string                      `json:"messageGroupId,omitempty"`
	MessageDeduplicationID string                      `json:"messageDeduplicationId,omitempty"`
}

// NewClient creates a new redis client.
func NewClient(addr string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
}

// New creates a RedisActions over client.
func New(client *redis.Client, cfg *Config) *RedisActions {
	return &RedisActions{Client: client, Config: cfg, clock: time.Now}
}

func (q *RedisActions) now() time.Time {
	if q.clock == nil {
		return time.Now()
	}
	return q.clock()
}

func (q *RedisActions) keys(name string) (list, inflight, deadlines string) {
	list = q.Config.KeyPrefix + name
	return list, list + inflightSuffix, list + deadlinesSuffix
}

// Receive pops up to opts.MaxMessages messages and hides them for opts.VisibilityTimeout seconds.
func (q *RedisActions) Receive(ctx context.Context, name string, opts queue.ReceiveOptions) ([]record.Record, error) {
	opts, err := opts.Clamp()
	if err != nil {
		return nil, err
	}
	if err := q.requeueExpired(ctx, name); err != nil {
		return nil, err
	}

	list, inflight, deadlines := q.keys(name)
	keys := []string{list, inflight, deadlines}
	var records []record.Record

	for i := 0; i < int(opts.MaxMessages); i++ {
		now := q.now()
		handle := uuid.NewString()
		deadline := now.Add(time.Duration(opts.VisibilityTimeout) * time.Second).UnixMilli()

		data, err := receiveScript.Run(ctx, q.Client, keys, handle, deadline).Text()
		if errors.Is(err, redis.Nil) && i == 0 && opts.WaitTime > 0 {
			// wait for a message without taking it, then claim it atomically
			err = q.Client.BLMove(ctx, list, list, "LEFT", "LEFT", time.Duration(opts.WaitTime)*time.Second).Err()
			if err == nil {
				data, err = receiveScript.Run(ctx, q.Client, keys, handle, deadline).Text()
			}
		}
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return records, err
		}

		var env envelope
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			// put it back so another consumer can inspect it
			_, _ = q.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.LPush(ctx, list, data)
				pipe.HDel(ctx, inflight, handle)
				pipe.ZRem(ctx, deadlines, handle)
				return nil
			})
			return records, fmt.Errorf("corrupt message in %s: %w", list, err)
		}

		env.ReceiveCount++
		if env.FirstReceiveTimestamp == 0 {
			env.FirstReceiveTimestamp = now.UnixMilli()
		}
		stored, _ := json.Marshal(env)

		// the message is already in flight; a failure here only loses the receive count
		if err := q.Client.HSet(ctx, inflight, handle, stored).Err(); err != nil {
			return records, err
		}

		records = append(records, env.toRecord(handle))
	}
	return records, nil
}

// Send appends a batch of records to the queue, each under a new message id.
func (q *RedisActions) Send(ctx context.Context, name string, batch []record.Record) (int, error) {
	list, _, _ := q.keys(name)
	now := q.now().UnixMilli()

	values := make([]any, 0, len(batch))
	for _, r := range batch {
		data, err := json.Marshal(envelope{
			MessageID:              uuid.NewString(),
			Body:                   r.Body,
			Attributes:             r.Attributes,
			SenderID:               q.Config.SenderID,
			SentTimestamp:          now,
			MessageGroupID:         r.MessageGroupID,
			MessageDeduplicationID: r.MessageDeduplicationID,
		})
		if err != nil {
			logger.ErrorCtx(ctx, "Failed to send %s", r.MessageID)
			continue
		}
		values = append(values, data)
	}
	if len(values) == 0 {
		return 0, nil
	}

	if err := q.Client.RPush(ctx, list, values...).Err(); err != nil {
		return 0, err
	}
	return len(values), nil
}

// Delete removes received records by receipt handle.
func (q *RedisActions) Delete(ctx context.Context, name string, batch []record.Record) (int, error) {
	_, inflight, deadlines := q.keys(name)
	deleted := 0

	for _, r := range batch {
		n, err := q.Client.HDel(ctx, inflight, r.ReceiptHandle).Result()
		if err != nil {
			return deleted, err
		}
		if n == 0 {
			logger.ErrorCtx(ctx, "Failed to delete %s", r.MessageID)
			continue
		}
		if err := q.Client.ZRem(ctx, deadlines, r.ReceiptHandle).Err(); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// ResetVisibility moves the deadline of in-flight deliveries. A zero timeout returns
// them to the head of the queue immediately.
func (q *RedisActions) ResetVisibility(ctx context.Context, name string, handles []string, timeout int32) (int, error) {
	list, inflight, deadlines := q.keys(name)
	changed := 0

	for _, handle := range handles {
		data, err := q.Client.HGet(ctx, inflight, handle).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return changed, err
		}

		if timeout == 0 {
			_, err = q.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.LPush(ctx, list, data)
				pipe.HDel(ctx, inflight, handle)
				pipe.ZRem(ctx, deadlines, handle)
				return nil
			})
		} else {
			deadline := q.now().Add(time.Duration(timeout) * time.Second).UnixMilli()
			err = q.Client.ZAdd(ctx, deadlines, redis.Z{Score: float64(deadline), Member: handle}).Err()
		}
		if err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// requeueExpired returns in-flight messages whose visibility deadline has passed.
func (q *RedisActions) requeueExpired(ctx context.Context, name string) error {
	_, _, deadlines := q.keys(name)
	expired, err := q.Client.ZRangeByScore(ctx, deadlines, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}
	_, err = q.ResetVisibility(ctx, name, expired, 0)
	return err
}

// ListQueues returns the names of all queues under the key prefix.
func (q *RedisActions) ListQueues(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	iter := q.Client.Scan(ctx, 0, q.Config.KeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		name := strings.TrimPrefix(iter.Val(), q.Config.KeyPrefix)
		name = strings.TrimSuffix(name, inflightSuffix)
		name = strings.TrimSuffix(name, deadlinesSuffix)
		seen[name] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Describe reports pending and in-flight counts. Redis queues have no delayed messages.
func (q *RedisActions) Describe(ctx context.Context, name string) (queue.Depth, error) {
	list, _, deadlines := q.keys(name)
	pending, err := q.Client.LLen(ctx, list).Result()
	if err != nil {
		return queue.Depth{}, err
	}
	inflight, err := q.Client.ZCard(ctx, deadlines).Result()
	if err != nil {
		return queue.Depth{}, err
	}
	return queue.Depth{
		Messages:           strconv.FormatInt(pending, 10),
		MessagesDelayed:    "0",
		MessagesNotVisible: strconv.FormatInt(inflight, 10),
	}, nil
}

// Resolve strips the key prefix if the caller passed a full key.
func (q *RedisActions) Resolve(_ context.Context, name string) (string, error) {
	return strings.TrimPrefix(name, q.Config.KeyPrefix), nil
}

func (e envelope) toRecord(handle string) record.Record {
	return record.Record{
		MessageID:              e.MessageID,
		SenderID:               e.SenderID,
		Sent:                   record.FormatTimestamp(strconv.FormatInt(e.SentTimestamp, 10)),
		FirstReceived:          record.FormatTimestamp(strconv.FormatInt(e.FirstReceiveTimestamp, 10)),
		ReceiveCount:           strconv.Itoa(e.ReceiveCount),
		Body:                   e.Body,
		Attributes:             e.Attributes,
		ReceiptHandle:          handle,
		MessageGroupID:         e.MessageGroupID,
		MessageDeduplicationID: e.MessageDeduplicationID,
	}
}
