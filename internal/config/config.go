// Package config loads application configuration from environment
// variables. Required variables abort startup when missing.
package config

import (
	"log"
	"os"
	"strings"
	"time"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env    string // APP_ENV: dev, test or prod
	Port   string // APP_PORT
	DBUser string // DB_USER
	DBPass string // DB_PASS, may be empty
	DBHost string // DB_HOST
	DBPort string // DB_PORT
	DBName string // DB_NAME

	JWTSecret           string        // JWT_SECRET, verifies bearer access tokens
	PaymentProofSecret  string        // PAYMENT_PROOF_SECRET, shared with the payment authority
	PaymentProofIssuer  string        // PAYMENT_PROOF_ISSUER, optional iss claim to require
	PaymentProofTTL     time.Duration // PAYMENT_PROOF_TTL, lifetime of simulated proofs
	PaymentSimulation   bool          // PAYMENT_SIMULATION_ENABLED
	TicketSigningSecret string        // TICKET_SIGNING_SECRET, keys verification payloads

	LockBackend string        // LOCK_BACKEND: local or redis
	LockTTL     time.Duration // LOCK_TTL, lease of a redis lock

	EventBroker  string   // EVENT_BROKER: none, rabbitmq or kafka
	RabbitMQURL  string   // RABBITMQ_URL
	KafkaBrokers []string // KAFKA_BROKERS, comma separated
	KafkaTopic   string   // KAFKA_TOPIC
	AuditLogDir  string   // AUDIT_LOG_DIR, where the audit consumer writes

	LogLevel  string // LOG_LEVEL
	LogFormat string // LOG_FORMAT: text or json
}

// Load reads configuration values from environment variables and returns a
// Config. Missing required variables cause a fatal log message.
func Load() Config {
	cfg := Config{
		Env:    must("APP_ENV"),
		Port:   must("APP_PORT"),
		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		JWTSecret:           must("JWT_SECRET"),
		PaymentProofSecret:  must("PAYMENT_PROOF_SECRET"),
		PaymentProofIssuer:  os.Getenv("PAYMENT_PROOF_ISSUER"),
		PaymentProofTTL:     envDur("PAYMENT_PROOF_TTL", 15*time.Minute),
		PaymentSimulation:   envBool("PAYMENT_SIMULATION_ENABLED", false),
		TicketSigningSecret: must("TICKET_SIGNING_SECRET"),

		LockBackend: strings.ToLower(envStr("LOCK_BACKEND", "local")),
		LockTTL:     envDur("LOCK_TTL", 10*time.Second),

		EventBroker:  strings.ToLower(envStr("EVENT_BROKER", "none")),
		RabbitMQURL:  envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
		KafkaBrokers: splitList(envStr("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   envStr("KAFKA_TOPIC", "ticket-events"),
		AuditLogDir:  envStr("AUDIT_LOG_DIR", "logs"),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "text"),
	}
	if cfg.PaymentSimulation && cfg.Env == "prod" {
		log.Fatalf("PAYMENT_SIMULATION_ENABLED must not be set when APP_ENV=prod")
	}
	switch cfg.LockBackend {
	case "local", "redis":
	default:
		log.Fatalf("invalid LOCK_BACKEND: %q", cfg.LockBackend)
	}
	switch cfg.EventBroker {
	case "none", "rabbitmq", "kafka":
	default:
		log.Fatalf("invalid EVENT_BROKER: %q", cfg.EventBroker)
	}
	return cfg
}

// must retrieves the value of a required environment variable and exits
// when it is unset or empty.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
