// Package notify delivers outbound settlement notifications. Delivery is fire
// and forget: the core has no confirmation contract with downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/openbridge/converter-core/pkg/config"
)

// snsAPI is the minimal SNS surface the notifier needs.
// *sns.Client from aws-sdk-go-v2 satisfies this interface.
type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// sqsAPI is the minimal SQS surface the notifier needs.
type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Notifier publishes report payloads to a topic and forwards messages to a
// queue.
type Notifier struct {
	topicARN string
	queueURL string
	topics   snsAPI
	queues   sqsAPI
	logger   *zap.Logger
}

// New builds a Notifier from AWS default credentials and the configured
// topic/queue endpoints.
func New(ctx context.Context, cfg *config.NotifyConfig, logger *zap.Logger) (*Notifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &Notifier{
		topicARN: cfg.TopicARN,
		queueURL: cfg.QueueURL,
		topics:   sns.NewFromConfig(awsCfg),
		queues:   sqs.NewFromConfig(awsCfg),
		logger:   logger,
	}, nil
}

// NewWithClients wires a Notifier with explicit API implementations.
func NewWithClients(topicARN, queueURL string, topics snsAPI, queues sqsAPI, logger *zap.Logger) *Notifier {
	return &Notifier{
		topicARN: topicARN,
		queueURL: queueURL,
		topics:   topics,
		queues:   queues,
		logger:   logger,
	}
}

// Publish sends a JSON-encoded payload to the notification topic.
func (n *Notifier) Publish(ctx context.Context, subject string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", subject, err)
	}
	_, err = n.topics.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s notification: %w", subject, err)
	}
	n.logger.Debug("Published notification",
		zap.String("subject", subject),
		zap.String("topic", n.topicARN))
	return nil
}

// Send forwards a JSON-encoded payload to the processing queue.
func (n *Notifier) Send(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode queue payload: %w", err)
	}
	_, err = n.queues.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send queue message: %w", err)
	}
	n.logger.Debug("Sent queue message", zap.String("queue", n.queueURL))
	return nil
}
