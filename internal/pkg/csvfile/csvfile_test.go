package csvfile

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"aws-sqs-csv-utility/internal/pkg/logger"
	"aws-sqs-csv-utility/internal/pkg/record"
)

func readAll(t *testing.T, r *Reader) []record.Record {
	t.Helper()
	var out []record.Record
	for {
		rec, err := r.Read(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestRoundTrip(t *testing.T) {
	red := "red"
	records := []record.Record{
		{
			MessageID:     "m1",
			SenderID:      "AIDA",
			Sent:          "2020-09-13T12:26:40.123Z",
			FirstReceived: "2020-09-13T12:26:41.000Z",
			ReceiveCount:  "1",
			Body:          "hello, \"world\"\nsecond line",
			Attributes: map[string]record.Attribute{
				"colour": {DataType: "String", StringValue: &red},
				"blob":   {DataType: "Binary", BinaryValue: []byte{0, 1, 2}},
			},
			ReceiptHandle: "rh1",
		},
		{
			MessageID:              "m2",
			Body:                   "fifo",
			MessageGroupID:         "g",
			MessageDeduplicationID: "d",
		},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Write(context.Background(), records))
	require.NoError(t, w.Close())

	r, err := NewReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, records, readAll(t, r))
}

func TestReaderMatchesColumnsByName(t *testing.T) {
	in := "Body,MessageId,Extra\nfirst,m1,x\nsecond,m2\n"
	r, err := NewReader(strings.NewReader(in))
	require.NoError(t, err)

	got := readAll(t, r)
	require.Len(t, got, 2)
	assert.Equal(t, record.Record{MessageID: "m1", Body: "first"}, got[0])
	assert.Equal(t, record.Record{MessageID: "m2", Body: "second"}, got[1])
}

func TestReaderMarksInvalidAttributes(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(logger.Replace(zap.New(core)))

	in := "MessageId,MessageAttributes\n" +
		"m1,{bad\n" +
		"m2,null\n" +
		"m3,\"[1,2]\"\n" +
		"m4,\n" +
		"m5,{}\n"
	r, err := NewReader(strings.NewReader(in))
	require.NoError(t, err)

	got := readAll(t, r)
	require.Len(t, got, 5)
	assert.True(t, got[0].InvalidAttributes)
	assert.True(t, got[1].InvalidAttributes)
	assert.True(t, got[2].InvalidAttributes)
	assert.False(t, got[3].InvalidAttributes)
	assert.Nil(t, got[3].Attributes)
	assert.False(t, got[4].InvalidAttributes)
	assert.NotNil(t, got[4].Attributes)

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Message, "Invalid JSON MessageAttributes (row 1): "))
}

func TestCreateRefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := Create(path)
	assert.EqualError(t, err, path+" already exists")
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriterReportsOutputErrors(t *testing.T) {
	w := NewWriter(brokenWriter{})
	assert.EqualError(t, w.Write(context.Background(), []record.Record{{MessageID: "m1"}}), "disk full")
	assert.EqualError(t, w.Close(), "disk full")
}

func TestCreateAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), []record.Record{{MessageID: "m1", Body: "b"}}))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, []record.Record{{MessageID: "m1", Body: "b"}}, readAll(t, r))
}

func TestReadStopsOnCancelledContext(t *testing.T) {
	r, err := NewReader(strings.NewReader("MessageId\nm1\n"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
