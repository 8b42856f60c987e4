package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MONETIZE_API_KEY_MASTER", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Stats.DefaultWindowDays != 30 {
		t.Errorf("stats window = %d, want 30", cfg.Stats.DefaultWindowDays)
	}
	if cfg.Stats.CacheTTL != 60*time.Second {
		t.Errorf("cache TTL = %v", cfg.Stats.CacheTTL)
	}
	if cfg.Ledger.DefaultCostPerImpression != 0.01 {
		t.Errorf("default CPI = %v", cfg.Ledger.DefaultCostPerImpression)
	}
	if cfg.Ledger.DefaultCostPerClick != 0.50 {
		t.Errorf("default CPC = %v", cfg.Ledger.DefaultCostPerClick)
	}
	if cfg.Ledger.DefaultListingDays != 7 {
		t.Errorf("default listing days = %d", cfg.Ledger.DefaultListingDays)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MONETIZE_API_KEY_MASTER", "test-key")
	t.Setenv("MONETIZE_HTTP_ADDR", ":9090")
	t.Setenv("MONETIZE_STATS_DEFAULT_WINDOW_DAYS", "7")
	t.Setenv("MONETIZE_STATS_CACHE_TTL", "5m")
	t.Setenv("MONETIZE_AUTH_SKIP_PATHS", "/health, /metrics")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Stats.DefaultWindowDays != 7 {
		t.Errorf("window = %d", cfg.Stats.DefaultWindowDays)
	}
	if cfg.Stats.CacheTTL != 5*time.Minute {
		t.Errorf("TTL = %v", cfg.Stats.CacheTTL)
	}
	if len(cfg.Auth.SkipPaths) != 2 || cfg.Auth.SkipPaths[1] != "/metrics" {
		t.Errorf("skip paths = %v", cfg.Auth.SkipPaths)
	}
}

func TestLoadRequiresMasterKeyWhenAuthEnabled(t *testing.T) {
	t.Setenv("MONETIZE_AUTH_ENABLED", "true")
	t.Setenv("MONETIZE_API_KEY_MASTER", "")

	if _, err := Load(); err == nil {
		t.Error("expected error for missing master key")
	}
}

func TestLoadAuthDisabledNeedsNoKey(t *testing.T) {
	t.Setenv("MONETIZE_AUTH_ENABLED", "false")
	t.Setenv("MONETIZE_API_KEY_MASTER", "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Auth.Enabled {
		t.Error("auth should be disabled")
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db.internal", Port: 5433, User: "svc", Password: "pw",
		DBName: "monetize", SSLMode: "require",
	}
	want := "postgres://svc:pw@db.internal:5433/monetize?sslmode=require"
	if got := d.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestInvalidStatsWindowRejected(t *testing.T) {
	t.Setenv("MONETIZE_API_KEY_MASTER", "test-key")
	t.Setenv("MONETIZE_STATS_DEFAULT_WINDOW_DAYS", "0")

	if _, err := Load(); err == nil {
		t.Error("expected error for zero window")
	}
}
