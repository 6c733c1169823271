package iot

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"

	"github.com/xrl111/smart-eparking-pi4/internal/service"
)

const defaultRetryDelay = 5 * time.Second

// SQSAPI là phần của sqs.Client mà consumer dùng.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// CommandHandler xử lý body của một message lệnh.
type CommandHandler interface {
	HandleRemoteCommand(ctx context.Context, body string) error
}

// SQSCommandConsumer đọc lệnh operator từ hàng đợi SQS và chuyển cho Controller.
type SQSCommandConsumer struct {
	client     SQSAPI
	queueURL   string
	handler    CommandHandler
	retryDelay time.Duration
	log        zerolog.Logger
}

func NewSQSCommandConsumer(client SQSAPI, queueURL string, handler CommandHandler, log zerolog.Logger) *SQSCommandConsumer {
	return &SQSCommandConsumer{
		client:     client,
		queueURL:   queueURL,
		handler:    handler,
		retryDelay: defaultRetryDelay,
		log:        log.With().Str("component", "sqs_consumer").Logger(),
	}
}

func (c *SQSCommandConsumer) Start(ctx context.Context) {
	c.log.Info().Str("queue", c.queueURL).Msg("SQS Consumer đang bắt đầu lắng nghe queue")
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("SQS Consumer: context cancelled, stopping.")
			return
		default:
		}

		result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            &c.queueURL,
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   60,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Err(err).Dur("retry_in", c.retryDelay).Msg("SQS Consumer: Lỗi khi nhận message")
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, message := range result.Messages {
			if message.Body == nil {
				c.log.Warn().Msg("SQS Consumer: Nhận được message với body rỗng. Đang xóa...")
				c.deleteMessage(ctx, message.ReceiptHandle)
				continue
			}
			err := c.handler.HandleRemoteCommand(ctx, *message.Body)
			switch {
			case err == nil:
				c.deleteMessage(ctx, message.ReceiptHandle)
			case errors.Is(err, service.ErrCommandRejected):
				// lệnh sai sẽ sai mãi, xóa luôn
				c.deleteMessage(ctx, message.ReceiptHandle)
			default:
				id := ""
				if message.MessageId != nil {
					id = *message.MessageId
				}
				c.log.Error().Err(err).Str("message_id", id).
					Msg("SQS Consumer: Lỗi khi xử lý message, sẽ được xử lý lại sau visibility timeout")
			}
		}
	}
}

func (c *SQSCommandConsumer) deleteMessage(ctx context.Context, receiptHandle *string) {
	if receiptHandle == nil {
		c.log.Warn().Msg("SQS Consumer: Receipt handle rỗng, không thể xóa message.")
		return
	}
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.queueURL,
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("SQS Consumer: Lỗi khi xóa message")
	}
}
