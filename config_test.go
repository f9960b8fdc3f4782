package goRotate

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "test config valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "short access secret",
			mutate: func(c *Config) {
				c.JWT.AccessSecret = []byte("short")
			},
			wantValid: false,
		},
		{
			name: "short refresh secret",
			mutate: func(c *Config) {
				c.JWT.RefreshSecret = make([]byte, 31)
			},
			wantValid: false,
		},
		{
			name: "shared secret",
			mutate: func(c *Config) {
				c.JWT.RefreshSecret = c.JWT.AccessSecret
			},
			wantValid: false,
		},
		{
			name: "zero access ttl",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = 0
			},
			wantValid: false,
		},
		{
			name: "refresh ttl not above access ttl",
			mutate: func(c *Config) {
				c.JWT.RefreshTTL = c.JWT.AccessTTL
			},
			wantValid: false,
		},
		{
			name: "leeway valid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 45 * time.Second
			},
			wantValid: true,
		},
		{
			name: "leeway too large",
			mutate: func(c *Config) {
				c.JWT.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "negative leeway",
			mutate: func(c *Config) {
				c.JWT.Leeway = -time.Second
			},
			wantValid: false,
		},
		{
			name: "blank redis prefix",
			mutate: func(c *Config) {
				c.Store.RedisPrefix = "  "
			},
			wantValid: false,
		},
		{
			name: "redis prefix with space",
			mutate: func(c *Config) {
				c.Store.RedisPrefix = "rt x"
			},
			wantValid: false,
		},
		{
			name: "negative grace",
			mutate: func(c *Config) {
				c.Store.RetentionGrace = -time.Second
			},
			wantValid: false,
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDefaultConfigNeedsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("default config must not validate without secrets")
	}
	if cfg.JWT.AccessTTL != 15*time.Minute || cfg.JWT.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected default TTLs: %v / %v", cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	}
}

func TestBuildConfigImmutabilityAgainstExternalMutation(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.RefreshSecret = append([]byte(nil), testRefreshSecret...)

	engine := newTestEngine(t, engineOptions{cfg: cfg})
	pair, err := engine.Login(t.Context(), alice)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	cfg.JWT.RefreshSecret[0] ^= 0xff
	if engine.config.JWT.RefreshSecret[0] == cfg.JWT.RefreshSecret[0] {
		t.Fatal("engine config secret mutated from external config after build")
	}
	if _, err := engine.Refresh(t.Context(), pair.RefreshToken); err != nil {
		t.Fatalf("refresh after external mutation failed: %v", err)
	}
}

func TestBuilderRequiresStore(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without a store")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	b := New().WithConfig(testConfig()).WithRedis(rdb)
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuilderWithRedisUsesPrefix(t *testing.T) {
	mr, rdb := newTestRedis(t)
	cfg := testConfig()
	cfg.Store.RedisPrefix = "svc"

	engine, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Login(t.Context(), alice); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	found := false
	for _, key := range mr.Keys() {
		if len(key) > 7 && key[:7] == "svc:rt:" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a svc:rt: key, got %v", mr.Keys())
	}
}

const sampleYAML = `
jwt:
  access_secret: "access-secret-from-file-0123456789abcdef"
  refresh_secret: "refresh-secret-from-file-0123456789abcde"
  access_ttl: 10m
  refresh_ttl: 48h
  issuer: "files"
store:
  redis_prefix: "cfg"
audit:
  enabled: true
  buffer_size: 64
`

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotate.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ROTATE_ISSUER", "env-wins")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.JWT.AccessTTL != 10*time.Minute || cfg.JWT.RefreshTTL != 48*time.Hour {
		t.Fatalf("unexpected TTLs %v / %v", cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	}
	if cfg.JWT.Issuer != "env-wins" {
		t.Fatalf("expected env overlay, got issuer %q", cfg.JWT.Issuer)
	}
	if cfg.Store.RedisPrefix != "cfg" || cfg.Store.RetentionGrace != time.Minute {
		t.Fatalf("unexpected store config %+v", cfg.Store)
	}
	if !cfg.Audit.Enabled || cfg.Audit.BufferSize != 64 {
		t.Fatalf("unexpected audit config %+v", cfg.Audit)
	}
	if string(cfg.JWT.AccessSecret) != "access-secret-from-file-0123456789abcdef" {
		t.Fatal("access secret not loaded")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ROTATE_ACCESS_SECRET", string(testAccessSecret))
	t.Setenv("ROTATE_REFRESH_SECRET", string(testRefreshSecret))
	t.Setenv("ROTATE_REFRESH_TTL", "24h")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.JWT.AccessTTL != 15*time.Minute || cfg.JWT.RefreshTTL != 24*time.Hour {
		t.Fatalf("unexpected TTLs %v / %v", cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	}
	if cfg.Store.RedisPrefix != "rt" {
		t.Fatalf("expected default prefix, got %q", cfg.Store.RedisPrefix)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("ROTATE_ACCESS_SECRET", "short")
	t.Setenv("ROTATE_REFRESH_SECRET", string(testRefreshSecret))

	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
