package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewWriter создаёт kafka.Writer с общими для сервиса настройками.
// topic может быть пустым - тогда topic задаётся в каждом kafka.Message (так делает outbox).
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // одинаковый key (запись склада) -> одна партиция -> порядок движений сохраняется
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}
