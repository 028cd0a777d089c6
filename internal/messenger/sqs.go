package messenger

import (
	"context"
	"encoding/json"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

const eventTypeAttribute = "EventType"

// SqsQueue publishes envelopes to a single SQS queue and polls them back.
type SqsQueue struct {
	client   sqsiface.SQSAPI
	queueUrl string
}

func NewSqsQueue(accessKey, secretKey, token, region, queueUrl string) (*SqsQueue, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewStaticCredentials(accessKey, secretKey, token),
	})
	if err != nil {
		return nil, xerrors.Errorf("aws session: %w", err)
	}

	return NewSqsQueueWithClient(sqs.New(sess), queueUrl), nil
}

func NewSqsQueueWithClient(client sqsiface.SQSAPI, queueUrl string) *SqsQueue {
	return &SqsQueue{client: client, queueUrl: queueUrl}
}

func (q *SqsQueue) Publish(ctx context.Context, envelope event.Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return xerrors.Errorf("encode envelope %s: %w", envelope.Id, err)
	}

	out, err := q.client.SendMessageWithContext(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueUrl),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]*sqs.MessageAttributeValue{
			eventTypeAttribute: {
				DataType:    aws.String("String"),
				StringValue: aws.String(RoutingKey(envelope)),
			},
		},
	})
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("queue", q.queueUrl)).Error("[SQS] Failed to send message")
		return err
	}

	zap.L().With(zap.String("queue", q.queueUrl), zap.String("messageId", aws.StringValue(out.MessageId))).Info("[SQS] Published message")

	return nil
}

// PollMessages long-polls the queue, sending every message to messages until
// ctx is done. The channel is closed on return.
func (q *SqsQueue) PollMessages(ctx context.Context, messages chan<- *sqs.Message) error {
	defer close(messages)

	for {
		out, err := q.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(q.queueUrl),
			MaxNumberOfMessages:   aws.Int64(10),
			WaitTimeSeconds:       aws.Int64(20),
			MessageAttributeNames: []*string{aws.String(sqs.QueueAttributeNameAll)},
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			zap.L().With(zap.Error(err), zap.String("queue", q.queueUrl)).Error("[SQS] Failed to receive messages")
			return err
		}

		for _, message := range out.Messages {
			select {
			case messages <- message:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (q *SqsQueue) DeleteMessage(ctx context.Context, message *sqs.Message) error {
	_, err := q.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueUrl),
		ReceiptHandle: message.ReceiptHandle,
	})
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("queue", q.queueUrl)).Error("[SQS] Failed to delete message")
	}

	return err
}
