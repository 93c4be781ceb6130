// Package config loads the client configuration from the environment, with
// .env support for local development.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Backend selects the document store implementation: mem, redis or ws.
	Backend string `env:"CONVOSYNC_BACKEND" envDefault:"mem"`

	RedisAddr  string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	GatewayURL string `env:"GATEWAY_URL" envDefault:"ws://localhost:8080/ws"`
	AuthURL    string `env:"AUTH_URL" envDefault:"http://localhost:8081"`

	StorageURL    string `env:"STORAGE_URL" envDefault:"http://localhost:8082"`
	StorageKey    string `env:"STORAGE_KEY"`
	StorageBucket string `env:"STORAGE_BUCKET" envDefault:"chat-media"`

	TypingDebounce  time.Duration `env:"TYPING_DEBOUNCE" envDefault:"2s"`
	TypingStaleness time.Duration `env:"TYPING_STALENESS" envDefault:"2s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
