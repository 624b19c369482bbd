package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Epky/GA-Enterprice-sub001/internal/repository"
	"github.com/Epky/GA-Enterprice-sub001/platform/observability"
)

const (
	OutboxResultSent   = "sent"
	OutboxResultFailed = "failed"
	OutboxResultError  = "mark_error"
)

// OutboxDispatcher обрабатывает события из outbox и публикует их в Kafka
type OutboxDispatcher struct {
	logger     *zap.Logger
	repo       repository.OutboxRepository
	writer     MessageWriter
	metrics    Metrics
	tracer     trace.Tracer
	batchSize  int
	interval   time.Duration
	maxRetries int
	backoff    time.Duration
}

// NewOutboxDispatcher создаёт новый outbox dispatcher.
// writer должен быть без фиксированного топика: топик берётся из события.
func NewOutboxDispatcher(
	logger *zap.Logger,
	repo repository.OutboxRepository,
	writer MessageWriter,
	metrics Metrics,
	batchSize int, // количество событий за один проход
	interval time.Duration, // интервал между проходами
	maxRetries int, // попыток публикации одного события за проход
	backoff time.Duration, // базовый интервал между попытками
) *OutboxDispatcher {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &OutboxDispatcher{
		logger:     logger,
		repo:       repo,
		writer:     writer,
		metrics:    metrics,
		tracer:     otel.Tracer("stock/outbox"),
		batchSize:  batchSize,
		interval:   interval,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// Start запускает dispatcher и блокируется до отмены ctx
func (d *OutboxDispatcher) Start(ctx context.Context) error {
	d.logger.Info("starting outbox dispatcher",
		zap.Int("batch_size", d.batchSize),
		zap.Duration("interval", d.interval),
		zap.Int("max_retries", d.maxRetries),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	if err := d.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
		d.logger.Error("failed to process initial batch", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher context cancelled, stopping")
			return nil
		case <-ticker.C:
			if err := d.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("failed to process batch", zap.Error(err))
			}
		}
	}
}

// ProcessBatch публикует один батч pending событий.
// Если событие агрегата не удалось опубликовать, следующие события того же агрегата
// в этом батче пропускаются, чтобы не нарушить порядок внутри партиции.
func (d *OutboxDispatcher) ProcessBatch(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	events, err := d.repo.GetPendingOutboxEvents(ctx, d.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to get pending events: %w", err)
	}

	if len(events) == 0 {
		return nil
	}

	d.logger.Debug("processing outbox batch", zap.Int("count", len(events)))

	blocked := make(map[string]struct{})
	for _, event := range events {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if _, ok := blocked[event.AggregateID]; ok {
			continue
		}

		if err := d.processEvent(ctx, event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			blocked[event.AggregateID] = struct{}{}
			d.logger.Error("failed to process event",
				zap.Error(err),
				zap.String("event_id", event.EventID),
				zap.String("topic", event.Topic),
			)
		}
	}

	return nil
}

// processEvent публикует одно событие с retry
func (d *OutboxDispatcher) processEvent(ctx context.Context, event repository.OutboxEvent) error {
	ctx, span := d.tracer.Start(ctx, "outbox.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", event.Topic),
			attribute.String("outbox.event_id", event.EventID),
		),
	)
	defer span.End()

	msg := kafka.Message{
		Topic: event.Topic,
		Key:   []byte(event.AggregateID), // ключ записи склада: события одной записи в одной партиции
		Value: event.Payload,
	}
	observability.InjectKafka(ctx, &msg)

	var lastErr error
	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		err := d.writer.WriteMessages(ctx, msg)
		if err == nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if markErr := d.repo.MarkOutboxEventSent(ctx, event.EventID); markErr != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				d.metrics.ObserveOutboxEvent(OutboxResultError)
				span.RecordError(markErr)
				span.SetStatus(codes.Error, "mark sent failed")
				return fmt.Errorf("failed to mark event as sent: %w", markErr)
			}

			d.metrics.ObserveOutboxEvent(OutboxResultSent)
			d.logger.Info("outbox event published successfully",
				zap.String("event_id", event.EventID),
				zap.String("topic", event.Topic),
				zap.String("aggregate_id", event.AggregateID),
				zap.Int("attempt", attempt),
			)
			return nil
		}

		lastErr = err
		d.logger.Warn("failed to publish outbox event",
			zap.Error(err),
			zap.String("event_id", event.EventID),
			zap.String("topic", event.Topic),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", d.maxRetries),
		)

		if attempt < d.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.backoff * time.Duration(attempt)):
			}
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "publish failed")
	d.metrics.ObserveOutboxEvent(OutboxResultFailed)

	// failed остаётся в выборке pending, следующий проход повторит публикацию
	errMsg := fmt.Sprintf("failed after %d attempts: %v", d.maxRetries, lastErr)
	if markErr := d.repo.MarkOutboxEventFailed(ctx, event.EventID, errMsg); markErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Error("failed to mark event as failed",
			zap.Error(markErr),
			zap.String("event_id", event.EventID),
		)
	}

	return fmt.Errorf("failed to publish event after %d attempts: %w", d.maxRetries, lastErr)
}

// Close закрывает Kafka writer
func (d *OutboxDispatcher) Close() error {
	d.logger.Info("closing outbox dispatcher")
	return d.writer.Close()
}
