package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cuongbtq/media-relay/internal/config"
)

func TestPostgresConfig(t *testing.T) {
	cfg := PostgresConfig(&config.DatabaseConfig{
		Host:            "db",
		Port:            5433,
		User:            "relay",
		Database:        "media_relay",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		ConnMaxLifetime: time.Minute,
	})

	assert.Equal(t, "db", cfg.Host)
	assert.Equal(t, 5433, cfg.Port)
	assert.Equal(t, "media_relay", cfg.Database)
	assert.Equal(t, 10, cfg.MaxOpenConns)
	assert.Equal(t, time.Minute, cfg.ConnMaxLifetime)
}

func TestRabbitMQConfig(t *testing.T) {
	cfg := RabbitMQConfig(&config.RabbitMQConfig{
		Host:       "rabbit",
		Port:       5672,
		Exchange:   config.ExchangeConfig{Name: "media_exchange", Type: "direct", Durable: true},
		Queue:      config.QueueConfig{Name: "media_jobs", Durable: true, DeadLetterExchange: "media_dlx"},
		RoutingKey: "media.job",
		Connection: config.ConnectionConfig{RetryAttempts: 5, RetryInterval: 2 * time.Second},
		Publish:    config.PublishConfig{RetryAttempts: 4, BackoffMultiplier: 1.5},
	})

	assert.Equal(t, "media_exchange", cfg.ExchangeName)
	assert.True(t, cfg.ExchangeDurable)
	assert.Equal(t, "media_jobs", cfg.QueueName)
	assert.Equal(t, "media_dlx", cfg.DeadLetterExchange)
	assert.Equal(t, "media.job", cfg.RoutingKey)
	assert.Equal(t, 5, cfg.RetryAttempts)
	assert.Equal(t, 4, cfg.PublishRetries)
	assert.Equal(t, 1.5, cfg.PublishBackoffMult)
}
