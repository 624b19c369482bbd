package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Epky/GA-Enterprice-sub001/internal/repository"
	"github.com/Epky/GA-Enterprice-sub001/internal/service"
	"github.com/Epky/GA-Enterprice-sub001/platform/observability"
)

const (
	ConsumerResultProcessed = "processed"
	ConsumerResultDuplicate = "duplicate"
	ConsumerResultDLQ       = "dlq"
	ConsumerResultError     = "error"

	processedKeyPrefix = "order-cancelled:"

	maxRedeliveryBackoff = 30 * time.Second
)

// OrderCancelledEvent событие отмены заказа: резервы заказа нужно вернуть на склад
type OrderCancelledEvent struct {
	EventID        string   `json:"event_id"`
	OrderID        string   `json:"order_id"`
	ReservationIDs []string `json:"reservation_ids"`
}

// ParseOrderCancelledEvent разбирает и валидирует payload события
func ParseOrderCancelledEvent(value []byte) (OrderCancelledEvent, error) {
	var event OrderCancelledEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return OrderCancelledEvent{}, &ParseError{Field: "", Message: fmt.Sprintf("invalid json: %v", err)}
	}

	if event.EventID == "" {
		return event, &ParseError{Field: "event_id", Message: "event_id is required"}
	}
	if event.OrderID == "" {
		return event, &ParseError{Field: "order_id", Message: "order_id is required"}
	}
	for i, id := range event.ReservationIDs {
		if id == "" {
			return event, &ParseError{Field: "reservation_ids", Message: fmt.Sprintf("reservation_ids[%d] is empty", i)}
		}
	}

	return event, nil
}

// OrderCancelledConsumer снимает резервы отменённых заказов
type OrderCancelledConsumer struct {
	logger       *zap.Logger
	reader       MessageReader
	topic        string
	releaser     ReservationReleaser
	processed    repository.IdempotencyStore
	processedTTL time.Duration
	dlqPublisher *DLQPublisher
	metrics      Metrics
	maxAttempts  int
	backoffBase  time.Duration
}

// NewOrderCancelledReader создаёт kafka.Reader для consumer group
func NewOrderCancelledReader(brokers []string, groupID, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
}

// NewOrderCancelledConsumer создаёт новый consumer событий отмены заказа.
// processed хранит event_id уже обработанных событий (защита от повторной доставки).
func NewOrderCancelledConsumer(
	logger *zap.Logger,
	reader MessageReader,
	topic string,
	releaser ReservationReleaser,
	processed repository.IdempotencyStore,
	processedTTL time.Duration,
	dlqPublisher *DLQPublisher,
	metrics Metrics,
	maxAttempts int,
	backoffBase time.Duration,
) *OrderCancelledConsumer {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &OrderCancelledConsumer{
		logger:       logger,
		reader:       reader,
		topic:        topic,
		releaser:     releaser,
		processed:    processed,
		processedTTL: processedTTL,
		dlqPublisher: dlqPublisher,
		metrics:      metrics,
		maxAttempts:  maxAttempts,
		backoffBase:  backoffBase,
	}
}

// Start запускает consumer и блокируется до отмены ctx.
// At-least-once: FetchMessage + CommitMessages после обработки.
// Сообщение, которое нельзя закоммитить, обрабатывается повторно до успеха.
func (c *OrderCancelledConsumer) Start(ctx context.Context) error {
	c.logger.Info("starting kafka consumer",
		zap.String("topic", c.topic),
		zap.Int("max_retry_attempts", c.maxAttempts),
		zap.Duration("retry_backoff_base", c.backoffBase),
	)

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer context cancelled, stopping")
				return nil
			}
			c.logger.Error("failed to fetch message from kafka", zap.Error(err))
			continue
		}

		// следующий commit сдвинул бы offset за это сообщение, поэтому дальше не идём
		if !c.processUntilCommittable(ctx, m) {
			c.logger.Info("consumer context cancelled, stopping")
			return nil
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Error("failed to commit message offset",
				zap.Error(err),
				zap.String("topic", m.Topic),
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
			)
			continue
		}

		c.logger.Debug("message offset committed",
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
		)
	}
}

// processUntilCommittable повторяет ProcessMessage с растущей паузой, пока offset нельзя коммитить.
// false только при отмене ctx.
func (c *OrderCancelledConsumer) processUntilCommittable(ctx context.Context, m kafka.Message) bool {
	backoff := c.backoffBase
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	for attempt := 1; ; attempt++ {
		if c.ProcessMessage(ctx, m) {
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		c.logger.Warn("message not committable, processing again",
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxRedeliveryBackoff {
			backoff = maxRedeliveryBackoff
		}
	}
}

// ProcessMessage обрабатывает одно сообщение.
// Возвращает true, если offset можно коммитить.
func (c *OrderCancelledConsumer) ProcessMessage(ctx context.Context, m kafka.Message) bool {
	ctx = observability.ExtractKafka(ctx, m)
	logger := observability.L(ctx, c.logger).With(
		zap.String("topic", m.Topic),
		zap.Int("partition", m.Partition),
		zap.Int64("offset", m.Offset),
	)

	event, err := ParseOrderCancelledEvent(m.Value)
	if err != nil {
		logger.Error("failed to parse order cancelled event", zap.Error(err))
		return c.toDLQ(m, err, event.EventID, event.OrderID)
	}

	logger = logger.With(zap.String("event_id", event.EventID), zap.String("order_id", event.OrderID))

	if c.alreadyProcessed(ctx, logger, event.EventID) {
		logger.Info("order cancelled event already processed, skipping")
		c.metrics.ObserveConsumedMessage(c.topic, ConsumerResultDuplicate)
		return true
	}

	logger.Info("received order cancelled event", zap.Int("reservations", len(event.ReservationIDs)))

	if err := c.handleWithRetry(ctx, logger, event); err != nil {
		if ctx.Err() != nil {
			// остановка сервиса: сообщение перечитается после рестарта
			return false
		}
		logger.Error("failed to handle order cancelled event, sending to DLQ", zap.Error(err))
		return c.toDLQ(m, err, event.EventID, event.OrderID)
	}

	if c.processed != nil {
		if _, _, err := c.processed.SetIfAbsent(ctx, processedKeyPrefix+event.EventID, event.OrderID, c.processedTTL); err != nil {
			// повторная обработка безопасна: снятый резерв второй раз не снимается
			logger.Warn("failed to remember processed event", zap.Error(err))
		}
	}

	c.metrics.ObserveConsumedMessage(c.topic, ConsumerResultProcessed)
	logger.Info("order cancelled event processed successfully")
	return true
}

func (c *OrderCancelledConsumer) alreadyProcessed(ctx context.Context, logger *zap.Logger, eventID string) bool {
	if c.processed == nil {
		return false
	}
	_, err := c.processed.Get(ctx, processedKeyPrefix+eventID)
	if err == nil {
		return true
	}
	if !errors.Is(err, repository.ErrNotFound) {
		logger.Warn("failed to check processed event, handling anyway", zap.Error(err))
	}
	return false
}

// handleWithRetry снимает все резервы события.
// Повторяются только ошибки хранилища, остальные сразу уходят в DLQ.
func (c *OrderCancelledConsumer) handleWithRetry(ctx context.Context, logger *zap.Logger, event OrderCancelledEvent) error {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		// backoff: base, 2*base, 4*base ...
		if attempt > 1 {
			backoff := c.backoffBase * time.Duration(1<<uint(attempt-2))
			logger.Info("retrying order cancelled event",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.maxAttempts),
				zap.Duration("backoff", backoff),
			)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := c.releaseAll(ctx, logger, event)
		if err == nil {
			return nil
		}
		if !errors.Is(err, service.ErrStorage) {
			return err
		}

		lastErr = err
		logger.Warn("failed to handle order cancelled event",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
		)
	}

	return fmt.Errorf("exhausted %d retry attempts: %w", c.maxAttempts, lastErr)
}

func (c *OrderCancelledConsumer) releaseAll(ctx context.Context, logger *zap.Logger, event OrderCancelledEvent) error {
	for _, id := range event.ReservationIDs {
		err := c.releaser.Release(ctx, id)
		switch {
		case err == nil:
			logger.Debug("reservation released", zap.String("reservation_id", id))
		case errors.Is(err, service.ErrInvalidReservation):
			// уже снят или не существует
			logger.Debug("reservation already inactive", zap.String("reservation_id", id))
		default:
			return fmt.Errorf("release reservation %s: %w", id, err)
		}
	}
	return nil
}

func (c *OrderCancelledConsumer) toDLQ(m kafka.Message, cause error, eventID, orderID string) bool {
	if err := c.dlqPublisher.Publish(context.Background(), m, cause, eventID, orderID); err != nil {
		c.logger.Error("failed to publish to DLQ, not committing", zap.Error(err))
		c.metrics.ObserveConsumedMessage(c.topic, ConsumerResultError)
		return false
	}
	c.metrics.ObserveConsumedMessage(c.topic, ConsumerResultDLQ)
	return true
}

// Close закрывает reader
func (c *OrderCancelledConsumer) Close() error {
	c.logger.Info("closing order cancelled consumer")
	return c.reader.Close()
}
