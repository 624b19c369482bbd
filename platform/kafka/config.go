package kafka

import "fmt"

// Config содержит конфигурацию для подключения к Kafka
type Config struct {
	// Enabled выключает всю работу с Kafka (outbox dispatcher и consumer не запускаются).
	// Удобно для локального запуска без брокера: события копятся в outbox таблице.
	Enabled bool `env:"KAFKA_ENABLED" envDefault:"false"`
	// Brokers - список брокеров Kafka:
	//   - локальная разработка (go run): localhost:19092
	//   - запуск в Docker: kafka:9092
	// Можно указать несколько брокеров через запятую: "broker1:9092,broker2:9092"
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	// GroupID consumer group для входящих топиков
	GroupID string `env:"KAFKA_GROUP_ID" envDefault:"stock"`
}

// DefaultBrokers возвращает брокеры по умолчанию для окружения (local/docker)
func DefaultBrokers(appEnv string) []string {
	if appEnv == "docker" {
		return []string{"kafka:9092"}
	}
	return []string{"localhost:19092"}
}

// Validate проверяет конфигурацию, только если Kafka включена
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}
	if c.GroupID == "" {
		return fmt.Errorf("KAFKA_GROUP_ID is required when KAFKA_ENABLED=true")
	}
	return nil
}
