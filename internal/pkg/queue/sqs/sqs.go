package sqs

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"aws-sqs-csv-utility/internal/pkg/logger"
	"aws-sqs-csv-utility/internal/pkg/queue"
	"aws-sqs-csv-utility/internal/pkg/record"
)

// API is the subset of *sqs.Client used by SqsActions.
type API interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
	DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
	ChangeMessageVisibilityBatch(ctx context.Context, params *sqs.ChangeMessageVisibilityBatchInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityBatchOutput, error)
	ListQueues(ctx context.Context, params *sqs.ListQueuesInput, optFns ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
}

// SqsActions provides batch operations against AWS SQS.
type SqsActions struct {
	SqsClient API // AWS SQS client
}

var _ queue.Client = (*SqsActions)(nil)

// NewClient creates a new sqs client. An empty endpoint keeps the SDK default.
func NewClient(ctx context.Context, region string, endpoint string) (*sqs.Client, error) {
	// Load the Shared AWS Configuration
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	// Create an SQS service client
	svc := sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return svc, nil
}

// Receive receives up to opts.MaxMessages messages with all system and message attributes.
func (a *SqsActions) Receive(ctx context.Context, queueURL string, opts queue.ReceiveOptions) ([]record.Record, error) {
	opts, err := opts.Clamp()
	if err != nil {
		return nil, err
	}

	result, err := a.SqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(queueURL),
		MaxNumberOfMessages:         opts.MaxMessages,
		VisibilityTimeout:           opts.VisibilityTimeout,
		WaitTimeSeconds:             opts.WaitTime,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameAll},
		MessageAttributeNames:       []string{"All"},
	})
	if err != nil {
		logger.ErrorCtx(ctx, "SQS ReceiveMessage error: %s", err)
		return nil, err
	}

	records := make([]record.Record, 0, len(result.Messages))
	for _, msg := range result.Messages {
		records = append(records, toRecord(msg))
	}
	return records, nil
}

// Send sends a batch of records and returns how many were accepted.
func (a *SqsActions) Send(ctx context.Context, queueURL string, batch []record.Record) (int, error) {
	entries := make([]types.SendMessageBatchRequestEntry, 0, len(batch))
	for _, r := range batch {
		entries = append(entries, toSendEntry(r))
	}

	result, err := a.SqsClient.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(queueURL),
		Entries:  entries,
	})
	if err != nil {
		return 0, err
	}

	for _, failure := range result.Failed {
		logger.ErrorCtx(ctx, "Failed to send %s", aws.ToString(failure.Id))
	}
	return len(entries) - len(result.Failed), nil
}

// Delete deletes a batch of received records and returns how many were removed.
func (a *SqsActions) Delete(ctx context.Context, queueURL string, batch []record.Record) (int, error) {
	entries := make([]types.DeleteMessageBatchRequestEntry, 0, len(batch))
	for _, r := range batch {
		entries = append(entries, types.DeleteMessageBatchRequestEntry{
			Id:            aws.String(r.MessageID),
			ReceiptHandle: aws.String(r.ReceiptHandle),
		})
	}

	result, err := a.SqsClient.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
		QueueUrl: aws.String(queueURL),
		Entries:  entries,
	})
	if err != nil {
		return 0, err
	}

	for _, failure := range result.Failed {
		logger.ErrorCtx(ctx, "Failed to delete %s", aws.ToString(failure.Id))
	}
	return len(entries) - len(result.Failed), nil
}

// ResetVisibility changes the visibility timeout of the given deliveries.
func (a *SqsActions) ResetVisibility(ctx context.Context, queueURL string, handles []string, timeout int32) (int, error) {
	entries := make([]types.ChangeMessageVisibilityBatchRequestEntry, 0, len(handles))
	for i, handle := range handles {
		entries = append(entries, types.ChangeMessageVisibilityBatchRequestEntry{
			Id:                aws.String(strconv.Itoa(i)),
			ReceiptHandle:     aws.String(handle),
			VisibilityTimeout: timeout,
		})
	}

	result, err := a.SqsClient.ChangeMessageVisibilityBatch(ctx, &sqs.ChangeMessageVisibilityBatchInput{
		QueueUrl: aws.String(queueURL),
		Entries:  entries,
	})
	if err != nil {
		return 0, err
	}
	return len(entries) - len(result.Failed), nil
}

// ListQueues returns the URLs of all queues visible to the caller.
func (a *SqsActions) ListQueues(ctx context.Context) ([]string, error) {
	var urls []string
	paginator := sqs.NewListQueuesPaginator(a.SqsClient, &sqs.ListQueuesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		urls = append(urls, page.QueueUrls...)
	}
	return urls, nil
}

// Describe returns the approximate message counts of a queue.
func (a *SqsActions) Describe(ctx context.Context, queueURL string) (queue.Depth, error) {
	result, err := a.SqsClient.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(queueURL),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
			types.QueueAttributeNameApproximateNumberOfMessagesDelayed,
			types.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
		},
	})
	if err != nil {
		return queue.Depth{}, err
	}

	attrs := result.Attributes
	return queue.Depth{
		Messages:           attrs[string(types.QueueAttributeNameApproximateNumberOfMessages)],
		MessagesDelayed:    attrs[string(types.QueueAttributeNameApproximateNumberOfMessagesDelayed)],
		MessagesNotVisible: attrs[string(types.QueueAttributeNameApproximateNumberOfMessagesNotVisible)],
	}, nil
}

// Resolve returns queue unchanged when it is already a URL, otherwise looks up its URL by name.
func (a *SqsActions) Resolve(ctx context.Context, name string) (string, error) {
	if strings.Contains(name, "://") {
		return name, nil
	}
	result, err := a.SqsClient.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("unable to get queue url for %s: %w", name, err)
	}
	return aws.ToString(result.QueueUrl), nil
}

func toRecord(msg types.Message) record.Record {
	attrs := msg.Attributes
	r := record.Record{
		MessageID:     aws.ToString(msg.MessageId),
		SenderID:      attrs[string(types.MessageSystemAttributeNameSenderId)],
		Sent:          record.FormatTimestamp(attrs[string(types.MessageSystemAttributeNameSentTimestamp)]),
		FirstReceived: record.FormatTimestamp(attrs[string(types.MessageSystemAttributeNameApproximateFirstReceiveTimestamp)]),
		ReceiveCount:  attrs[string(types.MessageSystemAttributeNameApproximateReceiveCount)],
		Body:          aws.ToString(msg.Body),
		ReceiptHandle: aws.ToString(msg.ReceiptHandle),
	}

	if groupID, ok := attrs[string(types.MessageSystemAttributeNameMessageGroupId)]; ok {
		r.MessageGroupID = groupID
		r.MessageDeduplicationID = attrs[string(types.MessageSystemAttributeNameMessageDeduplicationId)]
	}

	if len(msg.MessageAttributes) > 0 {
		r.Attributes = make(map[string]record.Attribute, len(msg.MessageAttributes))
		for key, value := range msg.MessageAttributes {
			r.Attributes[key] = record.Attribute{
				DataType:    aws.ToString(value.DataType),
				StringValue: value.StringValue,
				BinaryValue: value.BinaryValue,
			}
		}
	}
	return r
}

func toSendEntry(r record.Record) types.SendMessageBatchRequestEntry {
	entry := types.SendMessageBatchRequestEntry{
		Id:          aws.String(r.MessageID),
		MessageBody: aws.String(r.Body),
	}

	if len(r.Attributes) > 0 {
		entry.MessageAttributes = make(map[string]types.MessageAttributeValue, len(r.Attributes))
		for key, value := range r.Attributes {
			entry.MessageAttributes[key] = types.MessageAttributeValue{
				DataType:    aws.String(value.DataType),
				StringValue: value.StringValue,
				BinaryValue: value.BinaryValue,
			}
		}
	}

	// FIFO
	if r.IsFIFO() {
		entry.MessageGroupId = aws.String(r.MessageGroupID)
		if r.MessageDeduplicationID != "" {
			entry.MessageDeduplicationId = aws.String(r.MessageDeduplicationID)
		}
	}
	return entry
}
