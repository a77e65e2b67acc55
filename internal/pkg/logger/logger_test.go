package logger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetupRejectsUnknownLevel(t *testing.T) {
	restore := Replace(zap.NewNop())
	defer restore()

	require.Error(t, Setup("loud", "json"))
	require.NoError(t, Setup("warn", "console"))
}

func TestCtxHelpersAttachTraceFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := Replace(zap.New(core))
	defer restore()

	ctx := WithSpanID(WithTraceID(context.Background(), "run-1"), "span-1")
	WarnCtx(ctx, "Timeout reached (%d seconds)", 30)
	Info("plain %s", "message")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)

	assert.Equal(t, "Timeout reached (30 seconds)", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "run-1", fields[TraceIDKey])
	assert.Equal(t, "span-1", fields[SpanIDKey])

	assert.Equal(t, "plain message", entries[1].Message)
	assert.Empty(t, entries[1].Context)
}

func TestTraceIDFromEmptyContext(t *testing.T) {
	assert.Empty(t, TraceIDFromContext(context.Background()))
	assert.Empty(t, SpanIDFromContext(context.Background()))
}

func TestReplaceWhileLogging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))
	defer restore()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				Info("message %d", j)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		Replace(zap.New(core))()
	}
	wg.Wait()

	assert.Equal(t, 400, logs.Len())
}
