package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// MessageWriter - часть *kafka.Writer, нужная dispatcher'у и DLQ (подменяется в тестах)
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageReader - часть *kafka.Reader, нужная consumer'у
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReservationReleaser снимает резерв (реализуется service.StockLedger)
type ReservationReleaser interface {
	Release(ctx context.Context, reservationID string) error
}

// Metrics счётчики Kafka компонентов (реализуется internal/metrics)
type Metrics interface {
	ObserveOutboxEvent(result string)
	ObserveConsumedMessage(topic, result string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveOutboxEvent(string)             {}
func (nopMetrics) ObserveConsumedMessage(string, string) {}
