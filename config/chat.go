package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Spam policies.
const (
	SpamPolicyDrop = "drop"
	SpamPolicyFlag = "flag"
)

// ChatConfig holds chat relay server configuration.
type ChatConfig struct {
	Addr              string        `env:"CHAT_ADDR" validate:"required"`
	MaxConnections    int           `env:"MAX_CONNECTIONS" validate:"gte=0"`
	PingInterval      time.Duration `env:"PING_INTERVAL" validate:"gt=0"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" validate:"gtfield=PingInterval"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" validate:"gt=0"`
	ReadBufferSize    int           `env:"READ_BUFFER_SIZE" validate:"gte=128"`
	WriteBufferSize   int           `env:"WRITE_BUFFER_SIZE" validate:"gte=128"`
	SendBufferSize    int           `env:"SEND_BUFFER_SIZE" validate:"gte=1"`
	MaxMessageSize    int64         `env:"MAX_MESSAGE_SIZE" validate:"gte=64"`
	EchoToSender      bool          `env:"ECHO_TO_SENDER"`
	SpamPolicy        string        `env:"SPAM_POLICY" validate:"oneof=drop flag"`
	SpamKeywords      string        `env:"SPAM_KEYWORDS"`
	RateLimitBurst    int           `env:"RATE_LIMIT_BURST" validate:"gte=1"`
	RateLimitInterval time.Duration `env:"RATE_LIMIT_INTERVAL" validate:"gt=0"`
	LogLevel          string        `env:"LOG_LEVEL" validate:"oneof=trace debug info warn error"`
	LogFormat         string        `env:"LOG_FORMAT" validate:"oneof=json console"`
	RedisEnabled      bool          `env:"REDIS_ENABLED"`
}

// DefaultConfig returns the default chat configuration.
func DefaultConfig() *ChatConfig {
	return &ChatConfig{
		Addr:              ":8080",
		MaxConnections:    1000,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		SendBufferSize:    256,
		MaxMessageSize:    4096,
		EchoToSender:      true,
		SpamPolicy:        SpamPolicyDrop,
		SpamKeywords:      "viagra,cialis,casino,lottery,prize,winner",
		RateLimitBurst:    5,
		RateLimitInterval: time.Second,
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

var validate = validator.New()

// FromEnv overlays environment variables on the defaults and validates the result.
func FromEnv() (*ChatConfig, error) {
	cfg := DefaultConfig()
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *ChatConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Keywords splits SpamKeywords on commas.
func (c *ChatConfig) Keywords() []string {
	return lo.Compact(lo.Map(strings.Split(c.SpamKeywords, ","), func(k string, _ int) string {
		return strings.TrimSpace(k)
	}))
}

// FlagSpam reports whether spam is delivered with a flag instead of dropped.
func (c *ChatConfig) FlagSpam() bool {
	return c.SpamPolicy == SpamPolicyFlag
}
