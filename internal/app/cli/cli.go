// Package cli wires the queue backends, the CSV file layer and the drain/load pipelines
// into the sqs-utility command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"aws-sqs-csv-utility/configs"
	"aws-sqs-csv-utility/internal/app/drain"
	"aws-sqs-csv-utility/internal/app/load"
	"aws-sqs-csv-utility/internal/pkg/csvfile"
	"aws-sqs-csv-utility/internal/pkg/expr"
	httpserver "aws-sqs-csv-utility/internal/pkg/http"
	"aws-sqs-csv-utility/internal/pkg/logger"
	"aws-sqs-csv-utility/internal/pkg/observability/metrics"
	"aws-sqs-csv-utility/internal/pkg/queue"
	redisQueue "aws-sqs-csv-utility/internal/pkg/queue/redis"
	sqsQueue "aws-sqs-csv-utility/internal/pkg/queue/sqs"
	"aws-sqs-csv-utility/internal/pkg/record"
	"aws-sqs-csv-utility/internal/utils"
)

// ClientFactory builds the queue backend selected by cfg.
type ClientFactory func(ctx context.Context, cfg *configs.Config) (queue.Client, error)

// App holds what every command needs.
type App struct {
	Config    *configs.Config
	NewClient ClientFactory
}

// NewClient builds an SQS or Redis backed queue client from cfg.
func NewClient(ctx context.Context, cfg *configs.Config) (queue.Client, error) {
	switch cfg.QueueType {
	case "redis":
		client := redisQueue.NewClient(cfg.QueueRedisEndpoint, cfg.QueueRedisDB)
		return redisQueue.New(client, &redisQueue.Config{
			KeyPrefix: cfg.QueueRedisKeyPrefix,
			SenderID:  cfg.QueueRedisSenderID,
		}), nil
	default:
		svc, err := sqsQueue.NewClient(ctx, cfg.QueueAwsSqsRegion, cfg.QueueAwsSqsEndpoint)
		if err != nil {
			return nil, fmt.Errorf("unable to load SDK config: %w", err)
		}
		return &sqsQueue.SqsActions{SqsClient: svc}, nil
	}
}

// options are the flags shared by the data-moving commands.
type options struct {
	file      string
	target    string
	filter    string
	transform string
	limit     int
	timeout   int
	quiet     bool
}

// NewRoot constructs the root command.
func NewRoot(app *App) *cobra.Command {
	var region, endpoint string
	quiet := false

	root := &cobra.Command{
		Use:           "sqs-utility",
		Short:         "Move messages between a queue and CSV files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if region != "" {
				app.Config.QueueAwsSqsRegion = region
			}
			if endpoint != "" {
				app.Config.QueueAwsSqsEndpoint = endpoint
			}
			if err := app.Config.Validate(); err != nil {
				return err
			}

			ctx := logger.WithTraceID(cmd.Context(), uuid.NewString())
			if app.Config.MetricsAddr != "" {
				httpserver.StartHTTPServer(ctx, app.Config.MetricsAddr)
			}
			cmd.SetContext(ctx)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&region, "region", "", "AWS region (overrides QUEUE_AWS_SQS_REGION)")
	root.PersistentFlags().StringVar(&endpoint, "endpoint", "", "SQS endpoint URL (overrides QUEUE_AWS_SQS_ENDPOINT)")
	root.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress the summary report")

	root.AddCommand(
		newQueuesCommand(app),
		newDescribeCommand(app),
		newReceiveCommand(app, &quiet, "list", "Copy messages from a queue to a file or another queue", false),
		newReceiveCommand(app, &quiet, "extract", "Move messages from a queue to a file or another queue", true),
		newModifyCommand(app, &quiet, "load", "Send the messages in a file to a queue", false),
		newModifyCommand(app, &quiet, "delete", "Delete the messages in a file from a queue", true),
	)
	return root
}

func newQueuesCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "queues",
		Short: "List queues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := app.NewClient(ctx, app.Config)
			if err != nil {
				return err
			}

			queues, err := utils.Retry(ctx, app.Config.InspectRetryAttempts, app.Config.InspectRetryDelayDuration,
				func() ([]string, error) { return client.ListQueues(ctx) })
			if err != nil {
				return err
			}
			for _, q := range queues {
				fmt.Fprintln(cmd.OutOrStdout(), q)
			}
			return nil
		},
	}
}

func newDescribeCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <queue>",
		Short: "Show approximate message counts of a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := app.NewClient(ctx, app.Config)
			if err != nil {
				return err
			}
			queueURL, err := client.Resolve(ctx, args[0])
			if err != nil {
				return err
			}

			depth, err := utils.Retry(ctx, app.Config.InspectRetryAttempts, app.Config.InspectRetryDelayDuration,
				func() (queue.Depth, error) { return client.Describe(ctx, queueURL) })
			if err != nil {
				return err
			}
			if n, err := strconv.ParseFloat(depth.Messages, 64); err == nil {
				metrics.QueueLength.WithLabelValues(queueURL).Set(n)
			}
			reportDescribe(cmd.OutOrStdout(), queueURL, depth)
			return nil
		},
	}
}

func newReceiveCommand(app *App, quiet *bool, use, short string, deleteFromQueue bool) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   use + " <queue>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.quiet = *quiet
			return runReceive(cmd.Context(), app, cmd.OutOrStdout(), args[0], opts, deleteFromQueue)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "CSV file to write (must not exist)")
	cmd.Flags().StringVarP(&opts.target, "target", "t", "", "queue to copy messages to")
	cmd.Flags().IntVar(&opts.limit, "limit", drain.DefaultLimit, "maximum number of messages to receive")
	cmd.Flags().IntVar(&opts.timeout, "timeout", int(drain.DefaultTimeout/time.Second), "time budget in seconds")
	addProcessorFlags(cmd, opts)
	cmd.MarkFlagsMutuallyExclusive("file", "target")
	cmd.MarkFlagsOneRequired("file", "target")
	return cmd
}

func newModifyCommand(app *App, quiet *bool, use, short string, deleteFromQueue bool) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   use + " <queue>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.quiet = *quiet
			return runModify(cmd.Context(), app, cmd.OutOrStdout(), args[0], opts, deleteFromQueue)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "CSV file to read")
	addProcessorFlags(cmd, opts)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func addProcessorFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVar(&opts.filter, "filter", "", "CEL expression selecting messages, e.g. 'message.Body.contains(\"x\")'")
	cmd.Flags().StringVar(&opts.transform, "transform", "", "CEL expression returning fields to replace, e.g. '{\"Body\": \"x\"}'")
}

func newProcessor(opts *options) (record.Processor, error) {
	p, err := expr.New(opts.filter, opts.transform)
	if err != nil || p == nil {
		return nil, err
	}
	return p, nil
}

func runReceive(ctx context.Context, app *App, out io.Writer, name string, opts *options, deleteFromQueue bool) error {
	processor, err := newProcessor(opts)
	if err != nil {
		return err
	}
	client, err := app.NewClient(ctx, app.Config)
	if err != nil {
		return err
	}
	queueURL, err := client.Resolve(ctx, name)
	if err != nil {
		return err
	}

	drainer, err := drain.New(client, drain.Options{
		Limit:     opts.limit,
		Timeout:   time.Duration(opts.timeout) * time.Second,
		WaitTime:  app.Config.QueueAwsSqsWaitTimeSeconds,
		Processor: processor,
	})
	if err != nil {
		return err
	}

	var sink drain.Sink
	var file *csvfile.Writer
	destination := "file"
	if opts.target != "" {
		targetURL, err := client.Resolve(ctx, opts.target)
		if err != nil {
			return err
		}
		sink = &drain.QueueSink{Transport: client, QueueURL: targetURL}
		destination = "queue"
	} else {
		file, err = csvfile.Create(opts.file)
		if err != nil {
			return err
		}
		sink = file
	}

	res, err := drainer.Drain(ctx, queueURL, sink, deleteFromQueue)
	if file != nil {
		err = closeOutput(file, opts.file, err)
	}
	if !opts.quiet {
		reportReceive(out, res, deleteFromQueue, processor != nil, destination)
	}
	return err
}

// closeOutput closes c and returns err, or the close error when err is nil.
func closeOutput(c io.Closer, path string, err error) error {
	if cerr := c.Close(); err == nil && cerr != nil {
		return fmt.Errorf("closing %s: %w", path, cerr)
	}
	return err
}

func runModify(ctx context.Context, app *App, out io.Writer, name string, opts *options, deleteFromQueue bool) error {
	processor, err := newProcessor(opts)
	if err != nil {
		return err
	}
	client, err := app.NewClient(ctx, app.Config)
	if err != nil {
		return err
	}
	queueURL, err := client.Resolve(ctx, name)
	if err != nil {
		return err
	}

	loader, err := load.New(client, load.Options{Processor: processor})
	if err != nil {
		return err
	}

	reader, err := csvfile.Open(opts.file)
	if err != nil {
		return err
	}
	defer reader.Close()

	res, err := loader.Load(ctx, queueURL, reader, deleteFromQueue)
	if !opts.quiet {
		reportModify(out, res, deleteFromQueue, processor != nil)
	}
	return err
}
