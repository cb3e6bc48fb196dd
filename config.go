package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds everything tunable from the environment.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	Env      string `env:"ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Anonymous identity cookie. Long-lived so progress survives visits.
	CookieMaxAge time.Duration `env:"COOKIE_MAX_AGE" envDefault:"720h"`

	// Idle session bundles are evicted after SessionTimeout.
	SessionTimeout  time.Duration `env:"SESSION_TIMEOUT" envDefault:"2h"`
	CleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"10m"`

	RateLimitRPS   int `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST" envDefault:"10"`

	// Transient-flag window and round-advance delay. Overridable mostly
	// so integration tests do not have to wait out the real durations.
	FlagWindow   time.Duration `env:"FLAG_WINDOW" envDefault:"5500ms"`
	AdvanceDelay time.Duration `env:"ADVANCE_DELAY" envDefault:"1s"`
}

// loadConfig reads .env if present, then the process environment.
func loadConfig() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// production reports whether the service runs in production mode.
func (c Config) production() bool {
	return c.Env == "production"
}
