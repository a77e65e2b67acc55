// Package expr builds record processors from CEL filter and transform expressions.
//
// Both expressions see the record as the map variable `message`, keyed by the CSV
// column names (MessageId, Body, MessageAttributes, ...). A filter must evaluate to a
// bool. A transform must evaluate to a map of string fields that replace the record's
// values, for example:
//
//	--filter 'message.Body.contains("order")'
//	--transform '{"Body": message.Body + " (replayed)"}'
package expr

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/cel-go/cel"

	"aws-sqs-csv-utility/internal/pkg/logger"
	"aws-sqs-csv-utility/internal/pkg/record"
)

var stringMapType = reflect.TypeOf(map[string]string{})

// Processor is a record.Processor driven by compiled CEL programs.
type Processor struct {
	filter    cel.Program
	transform cel.Program
}

var _ record.Processor = (*Processor)(nil)

// New compiles the given expressions. Empty expressions accept everything and
// leave records unchanged. It returns nil when both are empty.
func New(filter, transform string) (*Processor, error) {
	filter = strings.TrimSpace(filter)
	transform = strings.TrimSpace(transform)
	if filter == "" && transform == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("message", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, err
	}

	p := &Processor{}
	if filter != "" {
		if p.filter, err = compile(env, filter); err != nil {
			return nil, fmt.Errorf("invalid filter: %w", err)
		}
	}
	if transform != "" {
		if p.transform, err = compile(env, transform); err != nil {
			return nil, fmt.Errorf("invalid transform: %w", err)
		}
	}
	return p, nil
}

func compile(env *cel.Env, expr string) (cel.Program, error) {
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return nil, iss2.Err()
	}
	return env.Program(checked)
}

// Accept evaluates the filter. Evaluation errors (logged) and non-bool results reject the record.
func (p *Processor) Accept(r record.Record) bool {
	if p == nil || p.filter == nil {
		return true
	}
	out, _, err := p.filter.Eval(map[string]any{"message": activation(r)})
	if err != nil {
		logger.Warn("Filter failed for %s: %s", r.MessageID, err)
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// Transform evaluates the transform and applies the returned fields. On failure the
// record is kept unchanged and a warning is logged.
func (p *Processor) Transform(r record.Record) record.Record {
	if p == nil || p.transform == nil {
		return r
	}
	out, _, err := p.transform.Eval(map[string]any{"message": activation(r)})
	if err != nil {
		logger.Warn("Transform failed for %s: %s", r.MessageID, err)
		return r
	}
	native, err := out.ConvertToNative(stringMapType)
	if err != nil {
		logger.Warn("Transform for %s did not return a map of strings: %s", r.MessageID, err)
		return r
	}

	for field, value := range native.(map[string]string) {
		switch field {
		case record.FieldMessageID:
			r.MessageID = value
		case record.FieldBody:
			r.Body = value
		case record.FieldMessageGroupID:
			r.MessageGroupID = value
		case record.FieldMessageDeduplicationID:
			r.MessageDeduplicationID = value
		case record.FieldReceiptHandle:
			r.ReceiptHandle = value
		default:
			logger.Warn("Transform set unsupported field %s", field)
		}
	}
	return r
}

func activation(r record.Record) map[string]any {
	var attrs any
	if r.Attributes != nil {
		m := make(map[string]any, len(r.Attributes))
		for key, a := range r.Attributes {
			v := map[string]any{"DataType": a.DataType}
			if a.StringValue != nil {
				v["StringValue"] = *a.StringValue
			}
			if a.BinaryValue != nil {
				v["BinaryValue"] = a.BinaryValue
			}
			m[key] = v
		}
		attrs = m
	}

	return map[string]any{
		record.FieldMessageID:              r.MessageID,
		record.FieldSenderID:               r.SenderID,
		record.FieldSent:                   r.Sent,
		record.FieldFirstReceived:          r.FirstReceived,
		record.FieldReceiveCount:           r.ReceiveCount,
		record.FieldBody:                   r.Body,
		record.FieldMessageAttributes:      attrs,
		record.FieldReceiptHandle:          r.ReceiptHandle,
		record.FieldMessageGroupID:         r.MessageGroupID,
		record.FieldMessageDeduplicationID: r.MessageDeduplicationID,
	}
}
