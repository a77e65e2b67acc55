package queue

import (
	"context"
	"errors"

	"aws-sqs-csv-utility/internal/pkg/record"
)

const (
	MaxBatchSize         = 10 // Hard per-call limit of every batch operation
	MinVisibilityTimeout = 1  // Smallest visibility timeout a receive accepts (seconds)
	DefaultWaitTime      = 5  // Default long-poll wait (seconds)
)

// ErrVisibilityTooLow is returned by Receive when the requested visibility timeout
// is below MinVisibilityTimeout.
var ErrVisibilityTooLow = errors.New("visibility timeout too low")

// ReceiveOptions controls a single receive call.
type ReceiveOptions struct {
	MaxMessages       int32 // Capped at MaxBatchSize
	VisibilityTimeout int32 // Seconds; must be >= MinVisibilityTimeout
	WaitTime          int32 // Seconds; capped at VisibilityTimeout-MinVisibilityTimeout
}

// Transport issues the four primitive batch operations against a queue.
// Per-item failures are logged by the transport and reported as a success count;
// only a failure of the call itself is returned as an error.
type Transport interface {
	Receive(ctx context.Context, queue string, opts ReceiveOptions) ([]record.Record, error)
	Send(ctx context.Context, queue string, batch []record.Record) (int, error)
	Delete(ctx context.Context, queue string, batch []record.Record) (int, error)
	ResetVisibility(ctx context.Context, queue string, handles []string, timeout int32) (int, error)
}

// Depth is the approximate message count breakdown of a queue.
type Depth struct {
	Messages           string
	MessagesDelayed    string
	MessagesNotVisible string
}

// Inspector answers queue introspection calls.
type Inspector interface {
	ListQueues(ctx context.Context) ([]string, error)
	Describe(ctx context.Context, queue string) (Depth, error)
	// Resolve turns a queue name or URL into the identifier the transport expects.
	Resolve(ctx context.Context, queue string) (string, error)
}

// Client is a full queue backend.
type Client interface {
	Transport
	Inspector
}

// Clamp normalizes receive options and validates the visibility timeout.
func (o ReceiveOptions) Clamp() (ReceiveOptions, error) {
	if o.VisibilityTimeout < MinVisibilityTimeout {
		return o, ErrVisibilityTooLow
	}
	if o.MaxMessages > MaxBatchSize || o.MaxMessages <= 0 {
		o.MaxMessages = MaxBatchSize
	}
	o.WaitTime = min(o.VisibilityTimeout-MinVisibilityTimeout, o.WaitTime)
	if o.WaitTime < 0 {
		o.WaitTime = 0
	}
	return o, nil
}
