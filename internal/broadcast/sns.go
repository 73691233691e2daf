package broadcast

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"
)

// SNSConfig holds the SNS broadcast transport configuration.
type SNSConfig struct {
	Region   string
	TopicARN string
}

// SNSTransport publishes broadcast events to a single SNS topic. The
// channel and event names travel as message attributes so subscriptions
// can filter per channel without parsing bodies.
type SNSTransport struct {
	client   *sns.Client
	topicARN string
	logger   *zap.Logger
}

// NewSNSTransport creates an SNS-backed broadcast transport.
func NewSNSTransport(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSTransport, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for SNS: %w", err)
	}

	logger.Info("sns broadcast transport initialized",
		zap.String("topic_arn", cfg.TopicARN),
	)

	return &SNSTransport{
		client:   sns.NewFromConfig(awsCfg),
		topicARN: cfg.TopicARN,
		logger:   logger,
	}, nil
}

// Publish sends the event to the broadcast topic.
func (t *SNSTransport) Publish(ctx context.Context, channel, eventName string, payload []byte) error {
	input := &sns.PublishInput{
		TopicArn: aws.String(t.topicARN),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"channel": {
				DataType:    aws.String("String"),
				StringValue: aws.String(channel),
			},
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String(eventName),
			},
		},
	}

	result, err := t.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}

	t.logger.Debug("broadcast published to sns",
		zap.String("channel", channel),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}
