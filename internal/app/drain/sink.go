package drain

import (
	"context"
	"fmt"

	"aws-sqs-csv-utility/internal/pkg/queue"
	"aws-sqs-csv-utility/internal/pkg/record"
)

// QueueSink copies drained records into another queue.
// Any record the target does not accept fails the write, so a drain that deletes
// after writing never removes a record that was not copied.
type QueueSink struct {
	Transport queue.Transport
	QueueURL  string
}

func (s *QueueSink) Write(ctx context.Context, records []record.Record) error {
	sent, err := s.Transport.Send(ctx, s.QueueURL, records)
	if err != nil {
		return fmt.Errorf("copying to %s: %w", s.QueueURL, err)
	}
	if sent < len(records) {
		return fmt.Errorf("copying to %s: %d of %d records failed", s.QueueURL, len(records)-sent, len(records))
	}
	return nil
}
