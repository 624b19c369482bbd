package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadProducerConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		// t.Setenv вернёт прежние значения после теста
		for _, key := range []string{"ORDER_CANCELLED_TOPIC", "APP_ENV"} {
			t.Setenv(key, "")
			require.NoError(t, os.Unsetenv(key))
		}

		cfg, err := loadProducerConfig()
		require.NoError(t, err)
		require.Equal(t, "order.cancelled", cfg.Topic)
		require.Equal(t, "local", cfg.AppEnv)
	})

	t.Run("overrides from env", func(t *testing.T) {
		t.Setenv("ORDER_CANCELLED_TOPIC", "custom.cancelled")
		t.Setenv("APP_ENV", "docker")

		cfg, err := loadProducerConfig()
		require.NoError(t, err)
		require.Equal(t, "custom.cancelled", cfg.Topic)
		require.Equal(t, "docker", cfg.AppEnv)
	})
}
