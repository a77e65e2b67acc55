// Package record holds the message representation shared by the queue transports,
// the CSV file layer and the drain/load pipelines.
package record

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Field names as they appear in CSV headers and in filter/transform expressions.
const (
	FieldMessageID              = "MessageId"
	FieldSenderID               = "SenderId"
	FieldSent                   = "Sent"
	FieldFirstReceived          = "FirstReceived"
	FieldReceiveCount           = "ReceiveCount"
	FieldBody                   = "Body"
	FieldMessageAttributes      = "MessageAttributes"
	FieldReceiptHandle          = "ReceiptHandle"
	FieldMessageGroupID         = "MessageGroupId"
	FieldMessageDeduplicationID = "MessageDeduplicationId"
)

// Fields lists every record field in file column order.
var Fields = []string{
	FieldMessageID,
	FieldSenderID,
	FieldSent,
	FieldFirstReceived,
	FieldReceiveCount,
	FieldBody,
	FieldMessageAttributes,
	FieldReceiptHandle,
	FieldMessageGroupID,
	FieldMessageDeduplicationID,
}

var idPattern = regexp.MustCompile(`(?i)^[a-z0-9_-]{1,80}$`)

// Attribute is a typed message attribute. Exactly one of StringValue and BinaryValue is set.
type Attribute struct {
	DataType    string  `json:"DataType"`
	StringValue *string `json:"StringValue,omitempty"`
	BinaryValue []byte  `json:"BinaryValue,omitempty"`
}

// Record is one message as exchanged with a queue or a file.
type Record struct {
	MessageID     string
	SenderID      string
	Sent          string
	FirstReceived string
	ReceiveCount  string
	Body          string

	// Attributes is nil when the record carries none.
	Attributes map[string]Attribute
	// InvalidAttributes marks attributes that were present but not a key/value mapping.
	InvalidAttributes bool

	// ReceiptHandle is only set on records obtained from a receive.
	ReceiptHandle string

	MessageGroupID         string
	MessageDeduplicationID string
}

// IsFIFO reports whether the record carries ordering fields.
func (r Record) IsFIFO() bool {
	return r.MessageGroupID != ""
}

// Blank reports whether the record has no usable identifier.
func (r Record) Blank() bool {
	return strings.TrimSpace(r.MessageID) == ""
}

// ValidID reports whether id is acceptable as a batch entry identifier.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// FormatTimestamp renders an epoch-milliseconds string as ISO-8601 UTC with milliseconds.
// Unparseable input is returned unchanged.
func FormatTimestamp(ms string) string {
	if ms == "" {
		return ""
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return ms
	}
	return time.UnixMilli(n).UTC().Format("2006-01-02T15:04:05.000Z")
}

// ReceiptHandles returns the receipt handles of records, in order.
func ReceiptHandles(records []Record) []string {
	handles := make([]string, 0, len(records))
	for _, r := range records {
		handles = append(handles, r.ReceiptHandle)
	}
	return handles
}
