// Package sqsqueue hands rendered emails to an SQS queue drained by a
// separate sender.
package sqsqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/flaboy/aira-checkout/pkg/extensions/email/types"
)

// API is the subset of the SQS client used here.
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type Options struct {
	QueueURL  string
	Region    string
	AccessKey string
	Secret    string
}

type SQSQueue struct {
	opts   Options
	client API
}

func New(opts Options) *SQSQueue {
	return &SQSQueue{opts: opts}
}

// NewWithClient skips AWS configuration. Tests use it with a fake client.
func NewWithClient(queueURL string, client API) *SQSQueue {
	return &SQSQueue{opts: Options{QueueURL: queueURL}, client: client}
}

func (q *SQSQueue) Init() error {
	if q.opts.QueueURL == "" {
		return fmt.Errorf("email SQS queue url is not configured")
	}
	if q.client != nil {
		return nil
	}

	ctx := context.Background()
	var (
		cfg aws.Config
		err error
	)
	if q.opts.AccessKey != "" && q.opts.Secret != "" {
		cfg, err = awsConfig.LoadDefaultConfig(ctx,
			awsConfig.WithRegion(q.opts.Region),
			awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				q.opts.AccessKey,
				q.opts.Secret,
				"",
			)),
		)
	} else {
		// 回退到默认凭证链
		cfg, err = awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(q.opts.Region))
	}
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	q.client = sqs.NewFromConfig(cfg)
	slog.Info("[EmailSQS] Client created", "queue", q.opts.QueueURL, "region", q.opts.Region)
	return nil
}

func (q *SQSQueue) GetProviderName() string {
	return "sqs"
}

func (q *SQSQueue) Send(ctx context.Context, msg *types.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	out, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.opts.QueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"kind": {DataType: aws.String("String"), StringValue: aws.String("email")},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue email: %w", err)
	}

	slog.Info("[EmailSQS] Enqueued", "to", msg.To, "messageID", aws.ToString(out.MessageId))
	return nil
}
