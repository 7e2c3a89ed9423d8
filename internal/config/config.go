// Package config loads rapport settings from YAML, a .env file and
// RAPPORT_* environment variables, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lazypower/rapport/internal/logging"
	"github.com/lazypower/rapport/internal/proximity"
	"github.com/lazypower/rapport/internal/reinforce"
	"github.com/lazypower/rapport/internal/store"
)

// DefaultPath is read when no path is given and RAPPORT_CONFIG is unset.
const DefaultPath = "config/settings.yaml"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all rapport configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Session   SessionConfig    `yaml:"session"`
	Proximity proximity.Config `yaml:"proximity"`
	Reinforce reinforce.Config `yaml:"reinforce"`
	Logging   logging.Config   `yaml:"logging"`
}

type ServerConfig struct {
	Bind     string        `yaml:"bind" validate:"required"`
	Port     int           `yaml:"port" validate:"gte=1,lte=65535"`
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"gt=0"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// SessionConfig sizes the in-memory history the bond is scored over.
type SessionConfig struct {
	Window   time.Duration `yaml:"window" validate:"gt=0"`
	Capacity int           `yaml:"capacity" validate:"gte=1"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind:     "127.0.0.1",
			Port:     37778,
			CacheTTL: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Path: store.DefaultDBPath(),
		},
		Session: SessionConfig{
			Window:   60 * time.Minute,
			Capacity: 1000,
		},
		Proximity: proximity.DefaultConfig(),
		Reinforce: reinforce.DefaultConfig(),
		Logging:   logging.DefaultConfig(),
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path means RAPPORT_CONFIG, then
// DefaultPath. A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	// .env is optional and never overrides variables already set.
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = getEnv("RAPPORT_CONFIG", DefaultPath)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := decode(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Server.Bind = getEnv("RAPPORT_BIND", cfg.Server.Bind)
	cfg.Database.Path = getEnv("RAPPORT_DB", cfg.Database.Path)
	cfg.Reinforce.WeightsFile = getEnv("RAPPORT_WEIGHTS_FILE", cfg.Reinforce.WeightsFile)
	cfg.Logging.Level = getEnv("RAPPORT_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.File = getEnv("RAPPORT_LOG_FILE", cfg.Logging.File)

	var err error
	if cfg.Server.Port, err = getEnvAsInt("RAPPORT_PORT", cfg.Server.Port); err != nil {
		return err
	}
	if cfg.Reinforce.Interval, err = getEnvAsDuration("RAPPORT_REINFORCE_INTERVAL", cfg.Reinforce.Interval); err != nil {
		return err
	}
	if cfg.Session.Window, err = getEnvAsDuration("RAPPORT_WINDOW", cfg.Session.Window); err != nil {
		return err
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, raw)
	}
	return v, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue, fmt.Errorf("%w: %s=%q is not a duration", ErrInvalid, key, raw)
	}
	return v, nil
}
