package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"onboarding/internal/verification"
	pstrings "onboarding/pkg/platform/strings"
)

// Server captures process level configuration.
type Server struct {
	Addr          string `yaml:"addr"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	JWTSigningKey string `yaml:"jwt_signing_key"`
	// SealKey is a base64 32-byte key; when set, persisted profile values
	// are sealed at rest.
	SealKey string `yaml:"seal_key"`

	Backend    BackendConfig    `yaml:"backend"`
	Redis      RedisConfig      `yaml:"redis"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Journey    JourneyConfig    `yaml:"journey"`

	Verification map[verification.Kind]verification.KindConfig `yaml:"verification"`
}

// BackendConfig locates the KYC backend.
type BackendConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RedisConfig configures the optional Redis store for profile values.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig configures the optional Postgres store for profile values.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

// KafkaConfig configures journey event publishing. Without brokers events
// are only logged.
type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	Topic       string   `yaml:"topic"`
	Partitions  int32    `yaml:"partitions"`
	Replication int16    `yaml:"replication"`
}

// CheckpointConfig tunes the checkpoint cache.
type CheckpointConfig struct {
	FreshFor   time.Duration `yaml:"fresh_for"`
	EvictAfter time.Duration `yaml:"evict_after"`
	MaxRetries uint64        `yaml:"max_retries"`
}

// JourneyConfig tunes per-client journeys.
type JourneyConfig struct {
	MinSettled    int           `yaml:"min_settled"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	ProfileTTL    time.Duration `yaml:"profile_ttl"`
}

// Defaults returns a configuration suitable for local development.
func Defaults() Server {
	return Server{
		Addr:          ":8080",
		LogLevel:      "info",
		LogFormat:     "json",
		JWTSigningKey: "dev-secret-key-change-in-production",
		Backend: BackendConfig{
			URL:     "http://localhost:9090",
			Timeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Postgres: PostgresConfig{MaxConns: 10},
		Kafka: KafkaConfig{
			Topic:       "onboarding.journey-events",
			Partitions:  3,
			Replication: 1,
		},
		Checkpoint: CheckpointConfig{
			FreshFor:   5 * time.Minute,
			EvictAfter: 20 * time.Minute,
			MaxRetries: 2,
		},
		Journey: JourneyConfig{
			MinSettled:    12,
			IdleTimeout:   30 * time.Minute,
			SweepInterval: time.Minute,
			ProfileTTL:    24 * time.Hour,
		},
		Verification: verification.DefaultKinds(),
	}
}

// FromEnv builds the configuration: defaults, then the YAML file named by
// ONBOARDING_CONFIG, then individual environment variables.
func FromEnv() (Server, error) {
	return Load(os.Getenv("ONBOARDING_CONFIG"))
}

// Load is FromEnv with an explicit config file path. An empty path skips
// the file.
func Load(path string) (Server, error) {
	cfg := Defaults()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Server{}, err
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Server{}, err
	}
	return cfg, cfg.Validate()
}

// LoadFile overlays the YAML file at path. Verification kinds present in
// the file replace the defaults of that kind only.
func (s *Server) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	kinds := s.Verification
	s.Verification = nil
	if err := yaml.Unmarshal(raw, s); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	for kind, budget := range s.Verification {
		kinds[kind] = budget
	}
	s.Verification = kinds
	return nil
}

func (s *Server) applyEnv(getenv func(string) string) error {
	setString := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&s.Addr, "ONBOARDING_ADDR")
	setString(&s.LogLevel, "LOG_LEVEL")
	setString(&s.LogFormat, "LOG_FORMAT")
	setString(&s.JWTSigningKey, "JWT_SIGNING_KEY")
	setString(&s.SealKey, "ONBOARDING_SEAL_KEY")
	setString(&s.Backend.URL, "KYC_BACKEND_URL")
	setString(&s.Redis.URL, "REDIS_URL")
	setString(&s.Postgres.DSN, "DATABASE_URL")
	setString(&s.Kafka.Topic, "KAFKA_TOPIC")
	if v := getenv("KAFKA_BROKERS"); v != "" {
		s.Kafka.Brokers = pstrings.SplitList(v)
	}
	if v := getenv("KYC_BACKEND_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("KYC_BACKEND_TIMEOUT: %w", err)
		}
		s.Backend.Timeout = d
	}
	if v := getenv("ONBOARDING_MIN_SETTLED"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ONBOARDING_MIN_SETTLED: %w", err)
		}
		s.Journey.MinSettled = n
	}
	return nil
}

// Validate rejects unusable settings.
func (s Server) Validate() error {
	if s.Backend.URL == "" {
		return fmt.Errorf("backend url is required")
	}
	if s.Journey.MinSettled < 0 {
		return fmt.Errorf("journey.min_settled must not be negative")
	}
	if s.Journey.SweepInterval <= 0 {
		return fmt.Errorf("journey.sweep_interval must be positive")
	}
	for kind, budget := range s.Verification {
		if err := budget.Validate(); err != nil {
			return fmt.Errorf("verification.%s: %w", kind, err)
		}
	}
	return nil
}
