// Package load streams records from a source into a queue as batched sends or deletes.
package load

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"aws-sqs-csv-utility/internal/pkg/logger"
	"aws-sqs-csv-utility/internal/pkg/observability/metrics"
	"aws-sqs-csv-utility/internal/pkg/queue"
	"aws-sqs-csv-utility/internal/pkg/record"
)

const DefaultMaxInFlight = 10

var validate = validator.New()

// Source yields records one at a time and returns io.EOF when exhausted.
// Cancelling ctx asks the source to stop; it may then return ctx.Err().
type Source interface {
	Read(ctx context.Context) (record.Record, error)
}

// Options configures a Loader.
type Options struct {
	Processor   record.Processor `validate:"-"`
	MaxInFlight int              `validate:"gt=0"` // batches submitted but not yet settled
}

// Result holds the counters of one run. It is valid whether or not the run failed.
type Result struct {
	Read      int // records read from the source
	Filtered  int // records that survived the processor
	Processed int // records the queue accepted
}

// BatchError is a failed batch submission and the source rows it covered.
type BatchError struct {
	Start int
	End   int
	Err   error
}

func (e *BatchError) Error() string { return e.Err.Error() }
func (e *BatchError) Unwrap() error { return e.Err }

// AbortError is returned when a run stopped before consuming its whole source.
type AbortError struct {
	Cause error
}

func (e *AbortError) Error() string { return "Aborted: " + e.Cause.Error() }
func (e *AbortError) Unwrap() error { return e.Cause }

// Loader runs loads against one transport.
type Loader struct {
	transport queue.Transport
	opts      Options
}

// New validates opts and returns a Loader.
func New(transport queue.Transport, opts Options) (*Loader, error) {
	if opts.MaxInFlight == 0 {
		opts.MaxInFlight = DefaultMaxInFlight
	}
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid load options: %w", err)
	}
	return &Loader{transport: transport, opts: opts}, nil
}

// pendingBatch is a submitted batch whose outcome is read after the group settles.
type pendingBatch struct {
	start, end int
	err        error
}

// run is the state of a single Load call.
type run struct {
	queueURL string
	submit   func(context.Context, string, []record.Record) (int, error)
	counter  prometheus.Counter

	stop      context.CancelCauseFunc
	group     errgroup.Group
	pending   []*pendingBatch
	processed atomic.Int64
	read      int
	exhausted bool // the source returned io.EOF

	settleOnce sync.Once
	err        error
}

// Load reads source to exhaustion, submitting accepted records to queueURL in batches of
// queue.MaxBatchSize. With deleteMode the batches are deleted instead of sent.
//
// A failed batch stops the source, but batches already submitted are allowed to finish.
// Every failure is logged with the rows it covered. Load returns an *AbortError when the
// source failed or was stopped; once the source has been read to the end, failed batches
// are only logged and reflected in Result.Processed.
func (l *Loader) Load(ctx context.Context, queueURL string, source Source, deleteMode bool) (Result, error) {
	r := &run{queueURL: queueURL, submit: l.transport.Send, counter: metrics.RecordsSent}
	if deleteMode {
		r.submit = l.transport.Delete
		r.counter = metrics.RecordsDeleted
	}
	r.group.SetLimit(l.opts.MaxInFlight)

	readCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)
	r.stop = stop

	var res Result
	var batch []record.Record
	var batchStart int
	var sourceErr error

	for {
		if readCtx.Err() != nil {
			sourceErr = ctx.Err()
			break
		}

		raw, err := source.Read(readCtx)
		if errors.Is(err, io.EOF) {
			if len(batch) > 0 {
				r.dispatch(ctx, batch, batchStart, res.Read)
			}
			r.exhausted = true
			break
		}
		if err != nil {
			if readCtx.Err() != nil && ctx.Err() == nil {
				// stopped by a failed batch
				break
			}
			sourceErr = err
			break
		}
		res.Read++
		r.read = res.Read
		metrics.RecordsRead.Inc()

		rec, ok := record.Process(l.opts.Processor, raw)
		if !ok {
			metrics.RecordsDropped.WithLabelValues(metrics.ReasonFiltered).Inc()
			continue
		}
		res.Filtered++

		if !accept(ctx, rec, res.Read) {
			continue
		}

		if len(batch) == 0 {
			batchStart = res.Read
		}
		batch = append(batch, rec)

		if len(batch) == queue.MaxBatchSize {
			r.dispatch(ctx, batch, batchStart, res.Read)
			batch = nil
		}
	}

	err := r.settle(ctx, readCtx, sourceErr)
	res.Processed = int(r.processed.Load())
	return res, err
}

// accept runs the per-record checks. The first failing check logs and drops the record.
func accept(ctx context.Context, rec record.Record, row int) bool {
	switch {
	case rec.Blank():
		logger.WarnCtx(ctx, "Ignoring empty message (row %d)", row)
		metrics.RecordsDropped.WithLabelValues(metrics.ReasonEmpty).Inc()
		return false
	case !record.ValidID(rec.MessageID):
		logger.WarnCtx(ctx, "Ignoring invalid message (row %d)", row)
		metrics.RecordsDropped.WithLabelValues(metrics.ReasonInvalidID).Inc()
		return false
	case rec.InvalidAttributes:
		logger.WarnCtx(ctx, "Ignoring message due to invalid message attributes (row %d)", row)
		metrics.RecordsDropped.WithLabelValues(metrics.ReasonInvalidAttributes).Inc()
		return false
	}
	return true
}

// dispatch submits batch without waiting for it. The batch covers source rows [start, end].
// Submissions use the caller's ctx so that a stop does not cancel batches already in flight.
func (r *run) dispatch(ctx context.Context, batch []record.Record, start, end int) {
	p := &pendingBatch{start: start, end: end}
	r.pending = append(r.pending, p)

	r.group.Go(func() error {
		began := time.Now()
		n, err := r.submit(ctx, r.queueURL, batch)
		metrics.BatchDuration.Observe(time.Since(began).Seconds())
		if err != nil {
			metrics.BatchFailures.Inc()
			p.err = &BatchError{Start: p.start, End: p.end, Err: err}
			r.stop(p.err)
			return nil
		}

		r.processed.Add(int64(n))
		r.counter.Add(float64(n))
		return nil
	})
}

// settle waits for every pending batch, logs each failure and decides the outcome.
// It runs at most once per run.
func (r *run) settle(ctx, readCtx context.Context, sourceErr error) error {
	r.settleOnce.Do(func() {
		_ = r.group.Wait()

		failed := 0
		for _, p := range r.pending {
			if p.err == nil {
				continue
			}
			failed++
			logger.ErrorCtx(ctx, "Error (row batch %d-%d): %s", p.start, p.end, p.err)
		}

		if sourceErr != nil && failed == 0 {
			logger.ErrorCtx(ctx, "Error (row %d): %s", r.read+1, sourceErr)
		}

		// a batch failure only aborts a run whose source it stopped
		cause := sourceErr
		if cause == nil && !r.exhausted {
			var batchErr *BatchError
			if errors.As(context.Cause(readCtx), &batchErr) {
				cause = batchErr
			}
		}
		if cause != nil {
			r.err = &AbortError{Cause: cause}
		}
	})
	return r.err
}
