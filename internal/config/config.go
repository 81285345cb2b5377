package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"

	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

// Config is read from a YAML file and then overridden by environment variables.
type Config struct {
	LogLevel  string    `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat string    `yaml:"log-format" env:"LOG_FORMAT" env-default:"text"`
	HTTP      HTTP      `yaml:"http"`
	Session   Session   `yaml:"session"`
	Store     Store     `yaml:"store"`
	Redis     Redis     `yaml:"redis"`
	Auth      Auth      `yaml:"auth"`
	Telemetry Telemetry `yaml:"telemetry"`
}

type HTTP struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown-timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

type Session struct {
	// TTL bounds how long an untouched game is kept by the store.
	TTL               time.Duration `yaml:"ttl" env:"SESSION_TTL" env-default:"2h"`
	IdleTimeout       time.Duration `yaml:"idle-timeout" env:"SESSION_IDLE_TIMEOUT" env-default:"60s"`
	HeartbeatInterval time.Duration `yaml:"heartbeat-interval" env:"SESSION_HEARTBEAT_INTERVAL" env-default:"10s"`
}

type Store struct {
	Driver string `yaml:"driver" env:"STORE_DRIVER" env-default:"memory"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_CONNSTRING" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Auth struct {
	Secret   string        `yaml:"secret" env:"AUTH_SECRET" env-default:""`
	TokenTTL time.Duration `yaml:"token-ttl" env:"AUTH_TOKEN_TTL" env-default:"2h"`
}

type Telemetry struct {
	Enabled     bool   `yaml:"enabled" env:"OTEL_ENABLED" env-default:"false"`
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"otel-collector:4317"`
	Exporter    string `yaml:"exporter" env:"OTEL_EXPORTER" env-default:"otlp"`
	ServiceName string `yaml:"service-name" env:"OTEL_SERVICE_NAME" env-default:"tic-tac-toe"`
}

var (
	ErrUnknownStore    = errors.New("unknown store driver")
	ErrUnknownExporter = errors.New("unknown telemetry exporter")
	ErrMissingSecret   = errors.New("auth secret is empty")
)

// Load reads path if it exists, otherwise only the environment. Defaults fill the rest.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("unable to load config file: %w", err)
			}
			return cfg, cfg.Validate()
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("unable to read config from environment: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks fields that have no safe default.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStore, c.Store.Driver)
	}

	switch c.Telemetry.Exporter {
	case ExporterOTLP, ExporterStdout:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownExporter, c.Telemetry.Exporter)
	}

	if c.Auth.Secret == "" {
		return ErrMissingSecret
	}
	return nil
}
