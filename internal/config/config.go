package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

// Config holds process configuration. REDIS_URL and RABBITMQ_URL are
// optional: without Redis the realtime registry degrades to local-process
// delivery and webhook deliveries are not rate limited; without RabbitMQ the
// task runner executes inline.
type Config struct {
	DatabaseDSN       string `env:"DATABASE_DSN,required=true"`
	RedisURL          string `env:"REDIS_URL"`
	RabbitMQURL       string `env:"RABBITMQ_URL"`
	WebhookRatePerSec int    `env:"WEBHOOK_RATE_PER_SEC,default=50"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=16"`
	APIPort           int    `env:"API_PORT,default=8080"`
	MetricsPort       int    `env:"METRICS_PORT,default=9091"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
