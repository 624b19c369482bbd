// Package main публикует событие order.cancelled в Kafka для ручной проверки Stock Service.
//
// Использование:
//
//	KAFKA_BROKERS=localhost:19092 go run ./cmd/order-cancelled-producer -order o-1 <reservation_id>...
//
// Топик берётся из ORDER_CANCELLED_TOPIC (по умолчанию order.cancelled).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	eventkafka "github.com/Epky/GA-Enterprice-sub001/internal/event/kafka"
	platformkafka "github.com/Epky/GA-Enterprice-sub001/platform/kafka"
	platformlogging "github.com/Epky/GA-Enterprice-sub001/platform/logging"
	platformobservability "github.com/Epky/GA-Enterprice-sub001/platform/observability"
)

// producerConfig параметры CLI помимо Kafka
type producerConfig struct {
	AppEnv string `env:"APP_ENV" envDefault:"local"`
	Topic  string `env:"ORDER_CANCELLED_TOPIC" envDefault:"order.cancelled"`
}

func loadProducerConfig() (producerConfig, error) {
	var cfg producerConfig
	if err := env.Parse(&cfg); err != nil {
		return producerConfig{}, err
	}
	return cfg, nil
}

func main() {
	orderID := flag.String("order", "", "order id (default: random uuid)")
	flag.Parse()

	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: "order-cancelled-producer",
		Env:         "local",
		Format:      "console",
	})
	if err != nil {
		os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer platformlogging.Sync(logger)

	if err := run(logger, *orderID, flag.Args()); err != nil {
		logger.Error("failed to publish order cancelled event", zap.Error(err))
		platformlogging.Sync(logger)
		os.Exit(1)
	}
}

func run(logger *zap.Logger, orderID string, reservationIDs []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pcfg, err := loadProducerConfig()
	if err != nil {
		return err
	}

	var cfg platformkafka.Config
	if err := platformkafka.LoadEnv(&cfg); err != nil {
		return err
	}
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = platformkafka.DefaultBrokers(pcfg.AppEnv)
	}
	topic := pcfg.Topic
	if orderID == "" {
		orderID = uuid.NewString()
	}

	event := eventkafka.OrderCancelledEvent{
		EventID:        uuid.NewString(),
		OrderID:        orderID,
		ReservationIDs: reservationIDs,
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// проверяем payload тем же парсером, что и consumer
	if _, err := eventkafka.ParseOrderCancelledEvent(value); err != nil {
		return err
	}

	writer := platformkafka.NewWriter(cfg.Brokers, topic)
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error("failed to close kafka writer", zap.Error(err))
		}
	}()

	msg := kafka.Message{Key: []byte(orderID), Value: value}
	platformobservability.InjectKafka(ctx, &msg)

	logger.Info("sending order cancelled event",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", topic),
		zap.String("event_id", event.EventID),
		zap.String("order_id", orderID),
		zap.Strings("reservation_ids", reservationIDs),
	)
	if err := writer.WriteMessages(ctx, msg); err != nil {
		return err
	}

	logger.Info("order cancelled event sent")
	return nil
}
