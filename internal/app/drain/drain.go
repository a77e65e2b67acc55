// Package drain receives records from a queue in bounded batches under a wall-clock
// deadline, hands them to a sink and optionally deletes them afterwards.
package drain

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"aws-sqs-csv-utility/internal/pkg/logger"
	"aws-sqs-csv-utility/internal/pkg/observability/metrics"
	"aws-sqs-csv-utility/internal/pkg/queue"
	"aws-sqs-csv-utility/internal/pkg/record"
)

const (
	DefaultLimit   = 1000
	DefaultTimeout = 30 * time.Second
)

var validate = validator.New()

// Sink receives each non-empty batch of surviving records, in receive order.
type Sink interface {
	Write(ctx context.Context, records []record.Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, records []record.Record) error

func (f SinkFunc) Write(ctx context.Context, records []record.Record) error {
	return f(ctx, records)
}

// Options configures a Drainer. Zero Limit and Timeout select the defaults.
type Options struct {
	Limit     int              `validate:"gt=0"`
	Timeout   time.Duration    `validate:"gte=1s"`
	WaitTime  int32            `validate:"gte=0,lte=20"`
	Processor record.Processor `validate:"-"`
}

// Result holds the counters of one run. It is valid whether or not the run failed.
type Result struct {
	Received int // records returned by receive calls
	Filtered int // records that survived the processor
	Written  int // records handed to the sink
	Deleted  int // records deleted after being written
}

// Drainer runs drains against one transport.
type Drainer struct {
	transport queue.Transport
	opts      Options
	now       func() time.Time
}

// New validates opts and returns a Drainer.
func New(transport queue.Transport, opts Options) (*Drainer, error) {
	if opts.Limit == 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid drain options: %w", err)
	}
	return &Drainer{transport: transport, opts: opts, now: time.Now}, nil
}

// Drain receives up to Limit records from queueURL before the Timeout elapses and writes
// the survivors to sink. With deleteAfterWrite the written records are deleted from the
// queue. Deliveries that were not deleted are made visible again before Drain returns.
func (d *Drainer) Drain(ctx context.Context, queueURL string, sink Sink, deleteAfterWrite bool) (Result, error) {
	var res Result
	var undeleted [][]string
	deadline := d.now().Add(d.opts.Timeout)

	for {
		visibility := int32(deadline.Sub(d.now()) / time.Second)
		if visibility < queue.MinVisibilityTimeout {
			logger.WarnCtx(ctx, "Timeout reached (%d seconds)", int(d.opts.Timeout/time.Second))
			break
		}

		raw, err := d.transport.Receive(ctx, queueURL, queue.ReceiveOptions{
			MaxMessages:       int32(min(d.opts.Limit-res.Received, queue.MaxBatchSize)),
			VisibilityTimeout: visibility,
			WaitTime:          d.opts.WaitTime,
		})
		if err != nil {
			return res, err
		}
		res.Received += len(raw)
		metrics.RecordsReceived.Add(float64(len(raw)))

		survivors := make([]record.Record, 0, len(raw))
		for _, r := range raw {
			if r, ok := record.Process(d.opts.Processor, r); ok {
				survivors = append(survivors, r)
			}
		}
		res.Filtered += len(survivors)
		metrics.RecordsDropped.WithLabelValues(metrics.ReasonFiltered).Add(float64(len(raw) - len(survivors)))

		deleted := 0
		if len(survivors) > 0 {
			if err := sink.Write(ctx, survivors); err != nil {
				return res, err
			}
			res.Written += len(survivors)
			metrics.RecordsWritten.Add(float64(len(survivors)))

			if deleteAfterWrite {
				deleted, err = d.transport.Delete(ctx, queueURL, survivors)
				if err != nil {
					return res, err
				}
				metrics.RecordsDeleted.Add(float64(deleted))
			}
		}
		res.Deleted += deleted

		// filtered-out and undeleted deliveries are still hidden
		if deleted < len(raw) {
			undeleted = append(undeleted, record.ReceiptHandles(raw))
		}

		if len(raw) == 0 || res.Received >= d.opts.Limit {
			break
		}
	}

	var g errgroup.Group
	for _, handles := range undeleted {
		g.Go(func() error {
			_, err := d.transport.ResetVisibility(ctx, queueURL, handles, 0)
			return err
		})
	}
	return res, g.Wait()
}
