package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	ServerAddr        string
	DatabaseDSN       string
	Store             string
	SigningKey        []byte
	AllowedOrigins    []string
	StoreTimeout      time.Duration
	MaxMessageSize    int64
	PingInterval      time.Duration
	PongWait          time.Duration
	RateLimitBurst    int
	RateLimitInterval time.Duration
	HistoryLimit      int
	SeedFile          string
}

// Env holds the settings read from the environment. They become the flag
// defaults in cmd/server.
type Env struct {
	ServerAddr        string        `env:"GOCHAT_ADDR" envDefault:"localhost:8000"`
	DatabaseDSN       string        `env:"GOCHAT_DSN" envDefault:"host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"`
	Store             string        `env:"GOCHAT_STORE" envDefault:"postgres"`
	SigningKey        string        `env:"GOCHAT_SIGNING_KEY"`
	AllowedOrigins    []string      `env:"GOCHAT_ALLOWED_ORIGINS" envSeparator:","`
	StoreTimeout      time.Duration `env:"GOCHAT_STORE_TIMEOUT" envDefault:"5s"`
	MaxMessageSize    int64         `env:"GOCHAT_MAX_MESSAGE_SIZE" envDefault:"4096"`
	PingInterval      time.Duration `env:"GOCHAT_PING_INTERVAL" envDefault:"30s"`
	PongWait          time.Duration `env:"GOCHAT_PONG_WAIT" envDefault:"60s"`
	RateLimitBurst    int           `env:"GOCHAT_RATE_LIMIT_BURST" envDefault:"20"`
	RateLimitInterval time.Duration `env:"GOCHAT_RATE_LIMIT_INTERVAL" envDefault:"100ms"`
	HistoryLimit      int           `env:"GOCHAT_HISTORY_LIMIT" envDefault:"100"`
	SeedFile          string        `env:"GOCHAT_SEED_FILE"`
}

func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("signing secret is empty")
	}
	return key, nil
}

func NewConfig(e Env) (*Config, error) {
	if e.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	switch e.Store {
	case StorePostgres:
		if e.DatabaseDSN == "" {
			return nil, fmt.Errorf("database DSN cannot be empty")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("unknown store %q", e.Store)
	}
	if e.SigningKey == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if e.StoreTimeout <= 0 {
		return nil, fmt.Errorf("store timeout must be positive")
	}
	if e.MaxMessageSize <= 0 {
		return nil, fmt.Errorf("max message size must be positive")
	}
	if e.PingInterval <= 0 || e.PongWait <= 0 {
		return nil, fmt.Errorf("ping interval and pong wait must be positive")
	}
	if e.PingInterval >= e.PongWait {
		return nil, fmt.Errorf("ping interval must be shorter than pong wait")
	}
	if e.RateLimitBurst <= 0 || e.RateLimitInterval <= 0 {
		return nil, fmt.Errorf("rate limit burst and interval must be positive")
	}
	if e.HistoryLimit <= 0 {
		return nil, fmt.Errorf("history limit must be positive")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(e.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:        e.ServerAddr,
		DatabaseDSN:       e.DatabaseDSN,
		Store:             e.Store,
		SigningKey:        signingKey,
		AllowedOrigins:    e.AllowedOrigins,
		StoreTimeout:      e.StoreTimeout,
		MaxMessageSize:    e.MaxMessageSize,
		PingInterval:      e.PingInterval,
		PongWait:          e.PongWait,
		RateLimitBurst:    e.RateLimitBurst,
		RateLimitInterval: e.RateLimitInterval,
		HistoryLimit:      e.HistoryLimit,
		SeedFile:          e.SeedFile,
	}, nil
}
