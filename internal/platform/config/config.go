package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures service-level configuration. FromEnv builds it from
// environment variables so main stays lean.
type Config struct {
	Addr string

	PostgresURL string
	Redis       RedisConfig
	Kafka       KafkaConfig

	// AnonymizationSecret keys the one-way child-id derivation. Rotating it
	// breaks correlation with previously sealed records, so treat it like a
	// KMS-managed key in production.
	AnonymizationSecret string
	// IPSalt salts the IP hash used in device fingerprints.
	IPSalt string

	JWTSigningKey string

	// BlackoutDefault is the family-notification suppression window started
	// when a signal is routed.
	BlackoutDefault time.Duration

	// DeliveryTimeout bounds a single outbound webhook call.
	DeliveryTimeout time.Duration

	// TriggerRateLimit caps signal triggers per client address per window.
	// Generous on purpose: it exists to absorb scripted abuse, not to slow a
	// panicking child re-tapping the button.
	TriggerRateLimit  int
	TriggerRateWindow time.Duration
}

// RedisConfig configures the optional Redis-backed blackout store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit stream publisher. Empty brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables, with development
// defaults that must be overridden in production.
func FromEnv() Config {
	cfg := Config{
		Addr:                envOr("HAVEN_ADDR", ":8080"),
		PostgresURL:         os.Getenv("HAVEN_POSTGRES_URL"),
		AnonymizationSecret: envOr("HAVEN_ANON_SECRET", "dev-anon-secret-change-in-production"),
		IPSalt:              envOr("HAVEN_IP_SALT", "dev-ip-salt-change-in-production"),
		JWTSigningKey:       envOr("HAVEN_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		BlackoutDefault:     envDurationOr("HAVEN_BLACKOUT_HOURS", 48) * time.Hour,
		DeliveryTimeout:     10 * time.Second,
		TriggerRateLimit:    envIntOr("HAVEN_TRIGGER_RATE_LIMIT", 30),
		TriggerRateWindow:   time.Minute,
		Redis: RedisConfig{
			URL:          os.Getenv("HAVEN_REDIS_URL"),
			PoolSize:     envIntOr("HAVEN_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("HAVEN_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic: envOr("HAVEN_AUDIT_TOPIC", "haven.audit.v1"),
		},
	}
	if brokers := os.Getenv("HAVEN_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallbackHours int) time.Duration {
	return time.Duration(envIntOr(key, fallbackHours))
}
