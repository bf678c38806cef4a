package bridge

import (
	env "github.com/Netflix/go-env"
)

// RedisConfig holds connection settings for the Redis pub/sub bridge.
type RedisConfig struct {
	Addr      string `env:"REDIS_ADDR"`      // default "localhost:6379"
	Password  string `env:"REDIS_PASSWORD"`  // default ""
	DB        int    `env:"REDIS_DB"`        // default 0
	Prefix    string `env:"REDIS_WS_PREFIX"` // default "chat:relay:"
	QueueSize int    `env:"REDIS_QUEUE_SIZE"`
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		Prefix:    "chat:relay:",
		QueueSize: 1024,
	}
}

// RedisConfigFromEnv loads Redis configuration from environment variables.
// Falls back to defaults when the environment cannot be parsed.
func RedisConfigFromEnv() *RedisConfig {
	cfg := DefaultRedisConfig()
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return DefaultRedisConfig()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultRedisConfig().QueueSize
	}
	return cfg
}
