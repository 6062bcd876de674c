package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures all process configuration. Built once in main via FromEnv
// so the rest of the tree never reads the environment.
type Config struct {
	Server   Server
	Ledger   Ledger
	Registry Registry
	Postgres Postgres
	Redis    RedisConfig
	Kafka    Kafka
	AMQP     AMQP
	LevelDB  LevelDB
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Ledger captures token ledger behavior knobs.
type Ledger struct {
	// DerivationKey keys token id derivation; issuance must not start without it.
	DerivationKey string
	// MaxExpiry bounds the expiry window accepted at mint.
	MaxExpiry time.Duration
	// LockWait bounds how long an operation waits for a per-token lock before
	// failing with a retryable contention error.
	LockWait time.Duration
	// VerifyCacheTTL bounds how long terminal verification results may be
	// served from cache.
	VerifyCacheTTL time.Duration
}

// Registry captures issuer registry bootstrap configuration.
type Registry struct {
	// SeedPath points at the YAML file holding bootstrap issuer identities.
	SeedPath string
	// WatchSeed re-reads the seed file on change and registers new issuers.
	WatchSeed bool
}

// Postgres captures the SQL store configuration. Empty URL selects the
// in-memory stores.
type Postgres struct {
	URL string
}

// RedisConfig captures Redis connection tuning. Empty URL disables the
// verification cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures the audit event relay configuration. Empty brokers disable
// the relay.
type Kafka struct {
	Brokers []string
	Topic   string
}

// AMQP captures the off-chain storage notifier configuration. Empty URL
// selects the noop notifier.
type AMQP struct {
	URL      string
	Exchange string
}

// LevelDB captures the embedded store configuration. Empty path selects the
// in-memory stores.
type LevelDB struct {
	Path string
}

// FromEnv builds the full Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            envOr("ATTESTO_ADDR", ":8080"),
			JWTSigningKey:   envOr("ATTESTO_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			RequestTimeout:  envDuration("ATTESTO_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: envDuration("ATTESTO_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Ledger: Ledger{
			DerivationKey:  os.Getenv("ATTESTO_DERIVATION_KEY"),
			MaxExpiry:      envDuration("ATTESTO_MAX_EXPIRY", 365*24*time.Hour),
			LockWait:       envDuration("ATTESTO_LOCK_WAIT", 2*time.Second),
			VerifyCacheTTL: envDuration("ATTESTO_VERIFY_CACHE_TTL", 5*time.Minute),
		},
		Registry: Registry{
			SeedPath:  os.Getenv("ATTESTO_ISSUER_SEED"),
			WatchSeed: os.Getenv("ATTESTO_ISSUER_SEED_WATCH") == "true",
		},
		Postgres: Postgres{
			URL: os.Getenv("ATTESTO_POSTGRES_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("ATTESTO_REDIS_URL"),
			PoolSize:     envInt("ATTESTO_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("ATTESTO_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("ATTESTO_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("ATTESTO_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("ATTESTO_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: splitNonEmpty(os.Getenv("ATTESTO_KAFKA_BROKERS")),
			Topic:   envOr("ATTESTO_KAFKA_TOPIC", "attesto.audit.events"),
		},
		AMQP: AMQP{
			URL:      os.Getenv("ATTESTO_AMQP_URL"),
			Exchange: envOr("ATTESTO_AMQP_EXCHANGE", "attesto.vault"),
		},
		LevelDB: LevelDB{
			Path: os.Getenv("ATTESTO_LEVELDB_PATH"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
