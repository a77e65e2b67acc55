// Package csvfile reads and writes records as CSV files with a header row.
// Message attributes travel as a single JSON-encoded column.
package csvfile

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"aws-sqs-csv-utility/internal/pkg/logger"
	"aws-sqs-csv-utility/internal/pkg/record"
)

// Writer writes records to a CSV file.
type Writer struct {
	file *os.File
	csv  *csv.Writer
	err  error // header write error
}

// Create opens path for writing. It fails if the file already exists.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%s already exists", path)
		}
		return nil, err
	}

	w := NewWriter(f)
	w.file = f
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("writing header to %s: %w", path, err)
	}
	return w, nil
}

// NewWriter writes to an arbitrary io.Writer. The header row is buffered immediately;
// a failure to write it is returned by the next Write or Close.
func NewWriter(out io.Writer) *Writer {
	w := &Writer{csv: csv.NewWriter(out)}
	w.err = w.csv.Write(record.Fields)
	return w
}

// Write appends records and flushes them.
func (w *Writer) Write(_ context.Context, records []record.Record) error {
	if w.err != nil {
		return w.err
	}
	for _, r := range records {
		row, err := toRow(r)
		if err != nil {
			return err
		}
		if err := w.csv.Write(row); err != nil {
			return err
		}
	}
	w.csv.Flush()
	return w.csv.Error()
}

// Close flushes pending output and closes the underlying file, if any.
func (w *Writer) Close() error {
	w.csv.Flush()
	err := w.err
	if err == nil {
		err = w.csv.Error()
	}
	if w.file != nil {
		if cerr := w.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func toRow(r record.Record) ([]string, error) {
	var attrs string
	if r.Attributes != nil {
		data, err := json.Marshal(r.Attributes)
		if err != nil {
			return nil, fmt.Errorf("encoding attributes of %s: %w", r.MessageID, err)
		}
		attrs = string(data)
	}

	return []string{
		r.MessageID,
		r.SenderID,
		r.Sent,
		r.FirstReceived,
		r.ReceiveCount,
		r.Body,
		attrs,
		r.ReceiptHandle,
		r.MessageGroupID,
		r.MessageDeduplicationID,
	}, nil
}

// Reader reads records from a CSV file whose first row names the columns.
// Unknown columns are ignored and missing ones read as empty.
type Reader struct {
	file    *os.File
	csv     *csv.Reader
	columns map[string]int
	row     int
}

// Open opens path and reads its header row.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv %s: %w", path, err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// NewReader reads from an arbitrary io.Reader.
func NewReader(in io.Reader) (*Reader, error) {
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1

	headers, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv headers: %w", err)
	}

	columns := make(map[string]int, len(headers))
	for i, h := range headers {
		columns[h] = i
	}
	return &Reader{csv: cr, columns: columns}, nil
}

// Read returns the next record, or io.EOF once the file is exhausted.
func (r *Reader) Read(ctx context.Context) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return record.Record{}, err
	}

	row, err := r.csv.Read()
	if err != nil {
		return record.Record{}, err
	}
	r.row++

	field := func(name string) string {
		if i, ok := r.columns[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	rec := record.Record{
		MessageID:              field(record.FieldMessageID),
		SenderID:               field(record.FieldSenderID),
		Sent:                   field(record.FieldSent),
		FirstReceived:          field(record.FieldFirstReceived),
		ReceiveCount:           field(record.FieldReceiveCount),
		Body:                   field(record.FieldBody),
		ReceiptHandle:          field(record.FieldReceiptHandle),
		MessageGroupID:         field(record.FieldMessageGroupID),
		MessageDeduplicationID: field(record.FieldMessageDeduplicationID),
	}
	rec.Attributes, rec.InvalidAttributes = r.decodeAttributes(ctx, field(record.FieldMessageAttributes))
	return rec, nil
}

// decodeAttributes parses the JSON attribute column. Malformed JSON is logged, and
// anything that is not an object marks the attributes invalid.
func (r *Reader) decodeAttributes(ctx context.Context, raw string) (map[string]record.Attribute, bool) {
	if raw == "" {
		return nil, false
	}

	var generic any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		logger.ErrorCtx(ctx, "Invalid JSON MessageAttributes (row %d): %s", r.row, err)
		return nil, true
	}
	if _, ok := generic.(map[string]any); !ok {
		return nil, true
	}

	var attrs map[string]record.Attribute
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		logger.ErrorCtx(ctx, "Invalid JSON MessageAttributes (row %d): %s", r.row, err)
		return nil, true
	}
	return attrs, false
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
