package goRotate

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	minSecretLength = 32
	maxLeeway       = 2 * time.Minute
)

// Config defines a public type used by goRotate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT     JWTConfig
	Store   StoreConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the signing material and token lifetimes. The signing
// algorithm is HS256 and is not configurable.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	// Leeway tolerates clock skew on exp/iat checks. Zero means exact.
	Leeway time.Duration
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig controls the Redis-backed store created by Builder.WithRedis.
type StoreConfig struct {
	RedisPrefix string
	// RetentionGrace is added to a record's expiry to form its Redis TTL.
	RetentionGrace time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and the refresh latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULTS
====================================
*/

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Store: StoreConfig{
			RedisPrefix:    "rt",
			RetentionGrace: time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the defaults used by New. Secrets are left empty and
// must be set before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cfg and returns the first problem found.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.AccessSecret) < minSecretLength {
		return fmt.Errorf("JWT AccessSecret must be at least %d bytes", minSecretLength)
	}
	if len(c.JWT.RefreshSecret) < minSecretLength {
		return fmt.Errorf("JWT RefreshSecret must be at least %d bytes", minSecretLength)
	}
	if bytes.Equal(c.JWT.AccessSecret, c.JWT.RefreshSecret) {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be greater than AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > maxLeeway {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Store
	if strings.TrimSpace(c.Store.RedisPrefix) == "" {
		return errors.New("Store RedisPrefix must not be empty")
	}
	if strings.ContainsAny(c.Store.RedisPrefix, " \t\r\n") {
		return errors.New("Store RedisPrefix must not contain whitespace")
	}
	if c.Store.RetentionGrace < 0 {
		return errors.New("Store RetentionGrace must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

/*
====================================
LOADING
====================================
*/

// fileConfig is the YAML/env shape of Config. Secrets are strings here and
// converted to bytes by LoadConfig.
type fileConfig struct {
	JWT struct {
		AccessSecret  string        `yaml:"access_secret" env:"ROTATE_ACCESS_SECRET"`
		RefreshSecret string        `yaml:"refresh_secret" env:"ROTATE_REFRESH_SECRET"`
		AccessTTL     time.Duration `yaml:"access_ttl" env:"ROTATE_ACCESS_TTL" env-default:"15m"`
		RefreshTTL    time.Duration `yaml:"refresh_ttl" env:"ROTATE_REFRESH_TTL" env-default:"168h"`
		Issuer        string        `yaml:"issuer" env:"ROTATE_ISSUER"`
		Audience      string        `yaml:"audience" env:"ROTATE_AUDIENCE"`
		Leeway        time.Duration `yaml:"leeway" env:"ROTATE_LEEWAY" env-default:"0s"`
	} `yaml:"jwt"`
	Store struct {
		RedisPrefix    string        `yaml:"redis_prefix" env:"ROTATE_REDIS_PREFIX" env-default:"rt"`
		RetentionGrace time.Duration `yaml:"retention_grace" env:"ROTATE_RETENTION_GRACE" env-default:"1m"`
	} `yaml:"store"`
	Audit struct {
		Enabled    bool `yaml:"enabled" env:"ROTATE_AUDIT_ENABLED" env-default:"false"`
		BufferSize int  `yaml:"buffer_size" env:"ROTATE_AUDIT_BUFFER_SIZE" env-default:"1024"`
		DropIfFull bool `yaml:"drop_if_full" env:"ROTATE_AUDIT_DROP_IF_FULL" env-default:"true"`
	} `yaml:"audit"`
	Metrics struct {
		Enabled                 bool `yaml:"enabled" env:"ROTATE_METRICS_ENABLED" env-default:"false"`
		EnableLatencyHistograms bool `yaml:"latency_histograms" env:"ROTATE_METRICS_LATENCY" env-default:"false"`
	} `yaml:"metrics"`
}

// LoadConfig reads a YAML file at path and overlays ROTATE_* environment
// variables. An empty path reads the environment only. The result is
// validated.
func LoadConfig(path string) (Config, error) {
	var fc fileConfig

	if path != "" {
		if err := cleanenv.ReadConfig(path, &fc); err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&fc); err != nil {
		return Config{}, fmt.Errorf("read config from env: %w", err)
	}

	cfg := Config{
		JWT: JWTConfig{
			AccessSecret:  []byte(fc.JWT.AccessSecret),
			RefreshSecret: []byte(fc.JWT.RefreshSecret),
			AccessTTL:     fc.JWT.AccessTTL,
			RefreshTTL:    fc.JWT.RefreshTTL,
			Issuer:        fc.JWT.Issuer,
			Audience:      fc.JWT.Audience,
			Leeway:        fc.JWT.Leeway,
		},
		Store: StoreConfig{
			RedisPrefix:    fc.Store.RedisPrefix,
			RetentionGrace: fc.Store.RetentionGrace,
		},
		Audit: AuditConfig{
			Enabled:    fc.Audit.Enabled,
			BufferSize: fc.Audit.BufferSize,
			DropIfFull: fc.Audit.DropIfFull,
		},
		Metrics: MetricsConfig{
			Enabled:                 fc.Metrics.Enabled,
			EnableLatencyHistograms: fc.Metrics.EnableLatencyHistograms,
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
