package main

import (
	"context"
	"log/slog"
	"testing"

	"order-callback-service/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ReturnsStartupError(t *testing.T) {
	cfg := &config.Config{
		Database: config.Database{
			User:     "postgres",
			Password: "postgres",
			Name:     "orders",
			Host:     "127.0.0.1",
			Port:     "1",
			SSLMode:  "disable",
		},
		Events: config.Events{Broker: config.BrokerKafka},
	}

	err := run(context.Background(), cfg, slog.Default())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "run migrations")
}
