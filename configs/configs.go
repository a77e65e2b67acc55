package configs

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config defines all environment variables and derived config for the utility.
type Config struct {
	// Transformed time.Duration fields (not loaded from env directly)
	InspectRetryDelayDuration time.Duration `env:"-"` // Delay between introspection retries

	QueueType string `env:"QUEUE_TYPE" envDefault:"sqs"`

	QueueAwsSqsRegion          string `env:"QUEUE_AWS_SQS_REGION" envDefault:"eu-west-2"`
	QueueAwsSqsEndpoint        string `env:"QUEUE_AWS_SQS_ENDPOINT"`
	QueueAwsSqsWaitTimeSeconds int32  `env:"QUEUE_AWS_SQS_WAIT_TIME_SECONDS" envDefault:"5"`

	QueueRedisEndpoint  string `env:"QUEUE_REDIS_ENDPOINT"`
	QueueRedisDB        int    `env:"QUEUE_REDIS_DB" envDefault:"0"`
	QueueRedisKeyPrefix string `env:"QUEUE_REDIS_KEY_PREFIX" envDefault:"queue-"`
	QueueRedisSenderID  string `env:"QUEUE_REDIS_SENDER_ID" envDefault:"sqs-utility"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"console"`
	MetricsAddr string `env:"METRICS_ADDR"`

	InspectRetryAttempts int `env:"INSPECT_RETRY_ATTEMPTS" envDefault:"3"`
	InspectRetryDelayMs  int `env:"INSPECT_RETRY_DELAY_MS" envDefault:"500"`
}

// Parse loads configuration from environment variables, validates and normalizes it.
func Parse() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.normalize()

	return &cfg, nil
}

// Validate performs all required configuration checks. It is exported so that
// command-line overrides can be re-checked after they are applied.
func (c *Config) Validate() error {
	if c.QueueType != "redis" && c.QueueType != "sqs" {
		return errors.New("QUEUE_TYPE must be 'redis' or 'sqs'")
	}

	if c.QueueType == "sqs" && c.QueueAwsSqsRegion == "" {
		return errors.New("QUEUE_AWS_SQS_REGION is required for SQS queue type")
	}

	if c.QueueType == "redis" && c.QueueRedisEndpoint == "" {
		return errors.New("QUEUE_REDIS_ENDPOINT is required for Redis queue type")
	}

	if c.QueueAwsSqsWaitTimeSeconds < 0 || c.QueueAwsSqsWaitTimeSeconds > 20 {
		return errors.New("QUEUE_AWS_SQS_WAIT_TIME_SECONDS must be between 0 and 20")
	}

	if c.LogFormat != "json" && c.LogFormat != "console" {
		return errors.New("LOG_FORMAT must be 'json' or 'console'")
	}

	if c.InspectRetryAttempts <= 0 {
		return errors.New("INSPECT_RETRY_ATTEMPTS must be greater than 0")
	}

	return nil
}

// normalize converts int values to duration and sets derived fields.
func (c *Config) normalize() {
	c.InspectRetryDelayDuration = time.Duration(c.InspectRetryDelayMs) * time.Millisecond
}
