// Package config reads the runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Backends that can be configured with CQRS_BACKEND.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
	Mongo    = "mongo"
)

// ErrInvalid is returned by Validate for an incomplete configuration.
var ErrInvalid = errors.New("invalid configuration")

// Config is the runtime configuration.
type Config struct {
	Backend string `env:"CQRS_BACKEND" envDefault:"sqlite"`

	SQLitePath string `env:"CQRS_SQLITE_PATH" envDefault:"cqrs.db"`

	PostgresURL      string `env:"POSTGRES_EVENTSTORE"`
	PostgresDatabase string `env:"CQRS_POSTGRES_DATABASE" envDefault:"cqrs"`

	MongoURL              string `env:"MONGO_URL"`
	MongoDatabase         string `env:"CQRS_MONGO_DATABASE" envDefault:"event"`
	MongoSnapshotDatabase string `env:"CQRS_MONGO_SNAPSHOT_DATABASE" envDefault:"snapshot"`

	NATSURL string `env:"NATS_URL"`

	LogLevel string        `env:"CQRS_LOG_LEVEL" envDefault:"info"`
	Timeout  time.Duration `env:"CQRS_TIMEOUT" envDefault:"5s"`
}

// Load loads the given .env files (".env" if none are given) into the
// environment and parses the Config. Missing files are ignored; variables
// that are already set are not overridden.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %q: %w", file, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))

	return cfg, cfg.Validate()
}

// Validate checks that the configured backend has everything it needs.
func (cfg Config) Validate() error {
	switch cfg.Backend {
	case SQLite:
		if cfg.SQLitePath == "" {
			return fmt.Errorf("%w: CQRS_SQLITE_PATH is empty", ErrInvalid)
		}
	case Postgres:
		if cfg.PostgresURL == "" {
			return fmt.Errorf("%w: POSTGRES_EVENTSTORE is required for the %q backend", ErrInvalid, cfg.Backend)
		}
	case Mongo:
		if cfg.MongoURL == "" {
			return fmt.Errorf("%w: MONGO_URL is required for the %q backend", ErrInvalid, cfg.Backend)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q [backends=%v]", ErrInvalid, cfg.Backend, []string{SQLite, Postgres, Mongo})
	}

	if cfg.Timeout <= 0 {
		return fmt.Errorf("%w: CQRS_TIMEOUT must be positive", ErrInvalid)
	}

	return nil
}

// Logger returns a logrus.Logger at the configured level.
func (cfg Config) Logger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: CQRS_LOG_LEVEL: %v", ErrInvalid, err)
	}
	l := logrus.New()
	l.SetLevel(level)
	return l, nil
}
