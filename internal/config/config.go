// Package config содержит логику чтения конфигурации сервиса truthstake.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mmeshcher/truthstake/internal/model"
)

// Config содержит параметры конфигурации сервиса truthstake.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	AuthSecret  string `env:"AUTH_SECRET"`
	WebhookURL  string `env:"WEBHOOK_URL"`

	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"720h"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"truthstake.events"`

	EventQueueSize int `env:"EVENT_QUEUE_SIZE" envDefault:"256"`

	StartingBalance  int64         `env:"STARTING_BALANCE" envDefault:"50"`
	ResolveThreshold int64         `env:"RESOLVE_THRESHOLD" envDefault:"500"`
	ResolveWindow    time.Duration `env:"RESOLVE_WINDOW" envDefault:"72h"`
	TieExtension     time.Duration `env:"TIE_EXTENSION" envDefault:"72h"`
	TieBreak         string        `env:"TIE_BREAK" envDefault:"false"`
	MinStake         int64         `env:"MIN_STAKE" envDefault:"1"`
	MaxStake         int64         `env:"MAX_STAKE" envDefault:"0"`
	ScanInterval     time.Duration `env:"SCAN_INTERVAL" envDefault:"1m"`
	EagerResolve     bool          `env:"EAGER_RESOLVE" envDefault:"true"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envAuthSecret := cfg.AuthSecret
	envWebhookURL := cfg.WebhookURL

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, empty for in-memory store")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for signing auth cookies")
	flag.StringVar(&cfg.WebhookURL, "w", "", "webhook URL for settlement events")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envWebhookURL != "" {
		cfg.WebhookURL = envWebhookURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет значения параметров политики.
func (c *Config) Validate() error {
	var errs []error

	if c.StartingBalance < 0 {
		errs = append(errs, fmt.Errorf("STARTING_BALANCE must not be negative, got %d", c.StartingBalance))
	}
	if c.ResolveThreshold <= 0 {
		errs = append(errs, fmt.Errorf("RESOLVE_THRESHOLD must be positive, got %d", c.ResolveThreshold))
	}
	if c.ResolveWindow <= 0 {
		errs = append(errs, fmt.Errorf("RESOLVE_WINDOW must be positive, got %s", c.ResolveWindow))
	}
	if c.TieExtension <= 0 {
		errs = append(errs, fmt.Errorf("TIE_EXTENSION must be positive, got %s", c.TieExtension))
	}
	if _, err := c.TieBreakResolution(); err != nil {
		errs = append(errs, err)
	}
	if c.MinStake < 1 {
		errs = append(errs, fmt.Errorf("MIN_STAKE must be at least 1, got %d", c.MinStake))
	}
	if c.MaxStake != 0 && c.MaxStake < c.MinStake {
		errs = append(errs, fmt.Errorf("MAX_STAKE %d below MIN_STAKE %d", c.MaxStake, c.MinStake))
	}
	if c.ScanInterval <= 0 {
		errs = append(errs, fmt.Errorf("SCAN_INTERVAL must be positive, got %s", c.ScanInterval))
	}
	if c.EventQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("EVENT_QUEUE_SIZE must be positive, got %d", c.EventQueueSize))
	}

	return errors.Join(errs...)
}

// TieBreakResolution возвращает исход повторной ничьей.
func (c *Config) TieBreakResolution() (model.Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(c.TieBreak)) {
	case "false", "":
		return model.ResolutionFalse, nil
	case "true":
		return model.ResolutionTrue, nil
	default:
		return "", fmt.Errorf("TIE_BREAK must be true or false, got %q", c.TieBreak)
	}
}
