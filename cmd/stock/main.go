package main

import (
	"context"
	"log"

	"github.com/Epky/GA-Enterprice-sub001/internal/app"
	"github.com/Epky/GA-Enterprice-sub001/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Build собирает граф зависимостей: хранилище, миграции, redis, kafka воркеры, HTTP
	application, err := app.Build(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to build app: %v", err)
	}

	// Run блокируется до graceful shutdown
	if err := application.Run(); err != nil {
		log.Fatalf("Service error: %v", err)
	}
}
