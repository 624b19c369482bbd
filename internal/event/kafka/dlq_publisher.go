package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DLQPublisher публикует необработанные сообщения в Dead Letter Queue
type DLQPublisher struct {
	logger *zap.Logger
	writer MessageWriter
	now    func() time.Time
}

// NewDLQPublisher создаёт новый DLQ publisher. writer должен быть настроен на DLQ топик.
func NewDLQPublisher(logger *zap.Logger, writer MessageWriter) *DLQPublisher {
	return &DLQPublisher{
		logger: logger,
		writer: writer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// DLQMessage представляет сообщение для DLQ
type DLQMessage struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int       `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	OriginalKey       string    `json:"original_key"`
	OriginalValue     string    `json:"original_value"`
	ErrorMessage      string    `json:"error_message"`
	FailedAt          time.Time `json:"failed_at"`
	EventID           string    `json:"event_id,omitempty"`
	OrderID           string    `json:"order_id,omitempty"`
}

// Publish публикует исходное сообщение вместе с причиной ошибки
func (p *DLQPublisher) Publish(ctx context.Context, original kafka.Message, originalErr error, eventID, orderID string) error {
	errorMsg := ""
	if originalErr != nil {
		errorMsg = originalErr.Error()
	}

	payload, err := json.Marshal(DLQMessage{
		OriginalTopic:     original.Topic,
		OriginalPartition: original.Partition,
		OriginalOffset:    original.Offset,
		OriginalKey:       string(original.Key),
		OriginalValue:     string(original.Value),
		ErrorMessage:      errorMsg,
		FailedAt:          p.now(),
		EventID:           eventID,
		OrderID:           orderID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	// Используем orderID как key, если доступен, иначе original key
	key := original.Key
	if orderID != "" {
		key = []byte(orderID)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: payload, Headers: original.Headers}); err != nil {
		p.logger.Error("failed to publish message to DLQ",
			zap.Error(err),
			zap.String("original_topic", original.Topic),
			zap.Int("original_partition", original.Partition),
			zap.Int64("original_offset", original.Offset),
		)
		return err
	}

	p.logger.Info("message published to DLQ",
		zap.String("original_topic", original.Topic),
		zap.Int("original_partition", original.Partition),
		zap.Int64("original_offset", original.Offset),
		zap.String("error_message", errorMsg),
	)
	return nil
}

// Close закрывает writer
func (p *DLQPublisher) Close() error {
	p.logger.Info("closing DLQ publisher")
	return p.writer.Close()
}
