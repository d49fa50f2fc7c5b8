// Package config builds runtime configuration from environment variables so
// main stays lean. Every knob has a development default; production overrides
// via the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration for the service.
type Config struct {
	Server   Server
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
	Audit    Audit

	// PolicyVersion is stamped on consent records granted without an
	// explicit policy version.
	PolicyVersion string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	JWTSigningKey   string
}

// Postgres captures the database connection settings. An empty DSN selects
// the in-memory stores, which keeps local development dependency-free.
type Postgres struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Redis captures the privacy score cache settings. An empty URL disables
// caching; scores are then computed on every read.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures the audit pipeline and re-evaluation trigger settings.
// No brokers means audit events stay in the outbox and no trigger fires.
type Kafka struct {
	Brokers           []string
	ConsumerGroup     string
	ComplianceTopic   string
	SecurityTopic     string
	OperationsTopic   string
	ReevaluationTopic string
}

// Audit captures outbox worker tuning.
type Audit struct {
	PollInterval time.Duration
	BatchSize    int
}

// FromEnv builds the Config from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            getString("CONSENTGATE_ADDR", ":8080"),
			RequestTimeout:  getDuration("CONSENTGATE_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDuration("CONSENTGATE_SHUTDOWN_TIMEOUT", 15*time.Second),
			// Development default; production must override.
			JWTSigningKey: getString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Postgres: Postgres{
			DSN:          os.Getenv("POSTGRES_DSN"),
			MaxOpenConns: getInt("POSTGRES_MAX_OPEN_CONNS", 20),
			MaxIdleConns: getInt("POSTGRES_MAX_IDLE_CONNS", 5),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:           getList("KAFKA_BROKERS"),
			ConsumerGroup:     getString("KAFKA_CONSUMER_GROUP", "consentgate-audit"),
			ComplianceTopic:   getString("KAFKA_TOPIC_COMPLIANCE", "audit.compliance"),
			SecurityTopic:     getString("KAFKA_TOPIC_SECURITY", "audit.security"),
			OperationsTopic:   getString("KAFKA_TOPIC_OPERATIONS", "audit.operations"),
			ReevaluationTopic: getString("KAFKA_TOPIC_REEVALUATION", "perception.reevaluate"),
		},
		Audit: Audit{
			PollInterval: getDuration("AUDIT_OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:    getInt("AUDIT_OUTBOX_BATCH_SIZE", 100),
		},
		PolicyVersion: getString("CONSENT_POLICY_VERSION", "1.0"),
		LogLevel:      getString("LOG_LEVEL", "info"),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
