package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	authcore "github.com/munyaradzichiondegwa/vision-2030-platform"
)

type config struct {
	Listen          string        `yaml:"listen"`
	TrustProxy      bool          `yaml:"trust_proxy"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Log             logConfig     `yaml:"log"`
	Database        dbConfig      `yaml:"database"`
	Redis           redisConfig   `yaml:"redis"`
	// RefreshStore is "redis" or "sql".
	RefreshStore string `yaml:"refresh_store"`
	// AuditSink is "sql", "stdout" or "none".
	AuditSink string          `yaml:"audit_sink"`
	Purge     purgeConfig     `yaml:"purge"`
	Keys      keyConfig       `yaml:"keys"`
	Auth      authcore.Config `yaml:"auth"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

type dbConfig struct {
	Driver string `yaml:"driver"` // "postgres" or "sqlite"
	DSN    string `yaml:"dsn"`
}

type redisConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
}

type purgeConfig struct {
	Schedule string        `yaml:"schedule"`
	Grace    time.Duration `yaml:"grace"`
	// SweepSchedule drops expired in-process rate counters. Unused when
	// counters live in Redis.
	SweepSchedule string `yaml:"sweep_schedule"`
}

// keyConfig points at signing key material, which never lives in the YAML
// file itself.
type keyConfig struct {
	PrivateKeyFile string `yaml:"private_key_file"`
	PublicKeyFile  string `yaml:"public_key_file"`
}

func defaultConfig() config {
	return config{
		Listen:          ":8080",
		ShutdownTimeout: 15 * time.Second,
		Log:             logConfig{Level: "info", Format: "json"},
		Database:        dbConfig{Driver: "sqlite", DSN: "authd.db"},
		Redis:           redisConfig{Addrs: []string{"localhost:6379"}},
		RefreshStore:    "redis",
		AuditSink:       "sql",
		Purge:           purgeConfig{Schedule: "@every 1h", Grace: 24 * time.Hour, SweepSchedule: "@every 1m"},
		Auth:            authcore.DefaultConfig(),
	}
}

// loadConfig applies defaults, then the YAML file at path (optional), then
// AUTHD_* environment overrides, then loads key material and validates.
func loadConfig(path string, getenv func(string) string) (config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	if err := loadKeys(&cfg, getenv); err != nil {
		return cfg, err
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *config, getenv func(string) string) error {
	set := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	set("AUTHD_LISTEN", &cfg.Listen)
	set("AUTHD_LOG_LEVEL", &cfg.Log.Level)
	set("AUTHD_LOG_FORMAT", &cfg.Log.Format)
	set("AUTHD_DB_DRIVER", &cfg.Database.Driver)
	set("AUTHD_DB_DSN", &cfg.Database.DSN)
	set("AUTHD_REDIS_PASSWORD", &cfg.Redis.Password)
	set("AUTHD_REFRESH_STORE", &cfg.RefreshStore)
	set("AUTHD_AUDIT_SINK", &cfg.AuditSink)
	set("AUTHD_PURGE_SCHEDULE", &cfg.Purge.Schedule)
	set("AUTHD_SWEEP_SCHEDULE", &cfg.Purge.SweepSchedule)
	set("AUTHD_PRIVATE_KEY_FILE", &cfg.Keys.PrivateKeyFile)
	set("AUTHD_PUBLIC_KEY_FILE", &cfg.Keys.PublicKeyFile)
	set("AUTHD_JWT_ISSUER", &cfg.Auth.JWT.Issuer)

	if v := getenv("AUTHD_REDIS_ADDRS"); v != "" {
		cfg.Redis.Addrs = strings.Split(v, ",")
	}
	if v := getenv("AUTHD_TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTHD_TRUST_PROXY: %w", err)
		}
		cfg.TrustProxy = b
	}
	if v := getenv("AUTHD_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("AUTHD_ACCESS_TTL: %w", err)
		}
		cfg.Auth.JWT.AccessTTL = d
	}
	return nil
}

// loadKeys reads the signing keys. AUTHD_JWT_SECRET supplies an hs256 secret
// directly and wins over a key file.
func loadKeys(cfg *config, getenv func(string) string) error {
	if secret := getenv("AUTHD_JWT_SECRET"); secret != "" {
		cfg.Auth.JWT.PrivateKey = []byte(secret)
		return nil
	}

	if cfg.Keys.PrivateKeyFile != "" {
		key, err := os.ReadFile(cfg.Keys.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("reading private key: %w", err)
		}
		if cfg.Auth.JWT.SigningMethod != "ed25519" {
			key = []byte(strings.TrimSpace(string(key)))
		}
		cfg.Auth.JWT.PrivateKey = key
	}
	if cfg.Keys.PublicKeyFile != "" {
		key, err := os.ReadFile(cfg.Keys.PublicKeyFile)
		if err != nil {
			return fmt.Errorf("reading public key: %w", err)
		}
		cfg.Auth.JWT.PublicKey = key
	}
	return nil
}

func (c *config) validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is required")
	}
	switch c.RefreshStore {
	case "redis":
		if len(c.Redis.Addrs) == 0 {
			return errors.New("redis refresh store requires redis addrs")
		}
	case "sql":
	default:
		return fmt.Errorf("unsupported refresh store %q", c.RefreshStore)
	}
	switch c.AuditSink {
	case "sql", "stdout", "none":
	default:
		return fmt.Errorf("unsupported audit sink %q", c.AuditSink)
	}
	if c.Purge.Schedule != "" {
		if _, err := cron.ParseStandard(c.Purge.Schedule); err != nil {
			return fmt.Errorf("purge schedule: %w", err)
		}
	}
	if c.Purge.SweepSchedule != "" {
		if _, err := cron.ParseStandard(c.Purge.SweepSchedule); err != nil {
			return fmt.Errorf("sweep schedule: %w", err)
		}
	}
	if c.Purge.Grace < 0 {
		return errors.New("purge grace must be >= 0")
	}
	return c.Auth.Validate()
}
