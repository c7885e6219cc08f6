package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %q", cfg.Server.Addr)
	}
	if cfg.Auction.Duration != 24*time.Hour {
		t.Errorf("expected default duration 24h, got %s", cfg.Auction.Duration)
	}
	if cfg.Auction.ReserveUSD != "50000" {
		t.Errorf("expected default reserve 50000, got %q", cfg.Auction.ReserveUSD)
	}
	if cfg.Minter.Cadence != 10 {
		t.Errorf("expected default cadence 10, got %d", cfg.Minter.Cadence)
	}
	if cfg.Accounts.Escrow != "auctionhouse" || cfg.Accounts.Treasury != "treasury" {
		t.Errorf("unexpected default accounts: %q/%q", cfg.Accounts.Escrow, cfg.Accounts.Treasury)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  admin_token: secret
auction:
  duration: 1h
  time_buffer: 5m
  min_increment_pct: 2
  reserve_usd: "100000"
  eligibility_mode: holder
oracle:
  static_price: "2000"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr: got %q", cfg.Server.Addr)
	}
	if cfg.Auction.Duration != time.Hour || cfg.Auction.TimeBuffer != 5*time.Minute {
		t.Errorf("durations: got %s / %s", cfg.Auction.Duration, cfg.Auction.TimeBuffer)
	}
	if cfg.Auction.EligibilityMode != "holder" {
		t.Errorf("eligibility: got %q", cfg.Auction.EligibilityMode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
`)
	t.Setenv("AUCTION_ADDR", ":7070")
	t.Setenv("AUCTION_ADMIN_TOKEN", "from-env")
	t.Setenv("AUCTION_DURATION", "2h")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("env should override file: got %q", cfg.Server.Addr)
	}
	if cfg.Server.AdminToken != "from-env" {
		t.Errorf("admin token: got %q", cfg.Server.AdminToken)
	}
	if cfg.Auction.Duration != 2*time.Hour {
		t.Errorf("duration: got %s", cfg.Auction.Duration)
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	if err := cfg.Validate(); err == nil {
		t.Error("missing admin token should fail validation")
	}
	cfg.Server.AdminToken = "secret"

	if err := cfg.Validate(); err == nil {
		t.Error("missing oracle source should fail validation")
	}
	cfg.Oracle.StaticPrice = "2000"

	if err := cfg.Validate(); err != nil {
		t.Errorf("complete config should validate: %v", err)
	}

	cfg.Auction.EligibilityMode = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown eligibility mode should fail validation")
	}
}
