package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	RateLimit   RateLimitConfig   `yaml:"ratelimit"`
	Wallet      WalletConfig      `yaml:"wallet"`
	Sweeper     SweeperConfig     `yaml:"sweeper"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

type WalletConfig struct {
	Currencies []string `yaml:"currencies"`
}

type SweeperConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

type IdempotencyConfig struct {
	InflightTTLSeconds int `yaml:"inflight_ttl_seconds"`
	KeyTTLHours        int `yaml:"key_ttl_hours"`
}

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// override secrets from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if sec := os.Getenv("WEBHOOK_SECRET"); sec != "" {
		cfg.Webhook.Secret = sec
	}
	if len(cfg.Wallet.Currencies) == 0 {
		cfg.Wallet.Currencies = []string{"USD"}
	}
	if cfg.Sweeper.IntervalSeconds <= 0 {
		cfg.Sweeper.IntervalSeconds = 60
	}
	if cfg.Idempotency.InflightTTLSeconds <= 0 {
		cfg.Idempotency.InflightTTLSeconds = 30
	}
	if cfg.Idempotency.KeyTTLHours <= 0 {
		cfg.Idempotency.KeyTTLHours = 24
	}
	return &cfg, nil
}
