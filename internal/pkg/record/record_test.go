package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidID(t *testing.T) {
	cases := map[string]bool{
		"message1":                             true,
		"MESSAGE-1_a":                          true,
		"6f9619ff-8b86-d011-b42d-00cf4fc964ff": true,
		"":                                     false,
		"has space":                            false,
		"dot.id":                               false,
		strings.Repeat("a", 80):                true,
		strings.Repeat("a", 81):                false,
	}
	for id, want := range cases {
		assert.Equal(t, want, ValidID(id), id)
	}
}

func TestBlankAndFIFO(t *testing.T) {
	assert.True(t, Record{}.Blank())
	assert.True(t, Record{MessageID: "   "}.Blank())
	assert.False(t, Record{MessageID: "m1"}.Blank())

	assert.False(t, Record{MessageID: "m1"}.IsFIFO())
	assert.True(t, Record{MessageID: "m1", MessageGroupID: "g"}.IsFIFO())
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "2020-09-13T12:26:40.123Z", FormatTimestamp("1600000000123"))
	assert.Equal(t, "", FormatTimestamp(""))
	assert.Equal(t, "soon", FormatTimestamp("soon"))
}

func TestReceiptHandles(t *testing.T) {
	got := ReceiptHandles([]Record{{ReceiptHandle: "a"}, {ReceiptHandle: "b"}})
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestProcess(t *testing.T) {
	in := Record{MessageID: "m1", Body: "b"}

	out, ok := Process(nil, in)
	assert.True(t, ok)
	assert.Equal(t, in, out)

	upper := ProcessorFuncs{
		AcceptFunc:    func(r Record) bool { return r.Body != "skip" },
		TransformFunc: func(r Record) Record { r.Body = strings.ToUpper(r.Body); return r },
	}
	out, ok = Process(upper, in)
	assert.True(t, ok)
	assert.Equal(t, "B", out.Body)

	_, ok = Process(upper, Record{MessageID: "m2", Body: "skip"})
	assert.False(t, ok)

	out, ok = Process(ProcessorFuncs{}, in)
	assert.True(t, ok)
	assert.Equal(t, in, out)
}
