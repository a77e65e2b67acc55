package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "sqs", cfg.QueueType)
	assert.Equal(t, "eu-west-2", cfg.QueueAwsSqsRegion)
	assert.Equal(t, int32(5), cfg.QueueAwsSqsWaitTimeSeconds)
	assert.Equal(t, "queue-", cfg.QueueRedisKeyPrefix)
	assert.Equal(t, 3, cfg.InspectRetryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.InspectRetryDelayDuration)
}

func TestParseRedis(t *testing.T) {
	t.Setenv("QUEUE_TYPE", "redis")
	t.Setenv("QUEUE_REDIS_ENDPOINT", "localhost:6379")
	t.Setenv("QUEUE_REDIS_DB", "2")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.QueueRedisEndpoint)
	assert.Equal(t, 2, cfg.QueueRedisDB)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"queue type":     {"QUEUE_TYPE": "kafka"},
		"redis endpoint": {"QUEUE_TYPE": "redis"},
		"wait time":      {"QUEUE_AWS_SQS_WAIT_TIME_SECONDS": "21"},
		"log format":     {"LOG_FORMAT": "xml"},
		"retry attempts": {"INSPECT_RETRY_ATTEMPTS": "0"},
		"not a number":   {"QUEUE_REDIS_DB": "two"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := Parse()
			assert.Error(t, err)
		})
	}
}
