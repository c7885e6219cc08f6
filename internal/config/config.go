package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Addr       string `yaml:"addr"`
		AdminToken string `yaml:"admin_token"`
	} `yaml:"server"`
	Database struct {
		PostgresURL string `yaml:"postgres_url"`
	} `yaml:"database"`
	Redis struct {
		Addr     string        `yaml:"addr"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"redis"`
	Oracle struct {
		FeedURL     string        `yaml:"feed_url"`
		Freshness   time.Duration `yaml:"freshness"`
		StaticPrice string        `yaml:"static_price"`
	} `yaml:"oracle"`
	Auction struct {
		Duration        time.Duration `yaml:"duration"`
		TimeBuffer      time.Duration `yaml:"time_buffer"`
		MinIncrementPct int64         `yaml:"min_increment_pct"`
		ReserveUSD      string        `yaml:"reserve_usd"`
		EligibilityMode string        `yaml:"eligibility_mode"`
		GenesisCutoff   uint64        `yaml:"genesis_cutoff"`
		PublicBidding   bool          `yaml:"public_bidding"`
		AutoStart       bool          `yaml:"auto_start"`
	} `yaml:"auction"`
	Minter struct {
		Cadence   uint64 `yaml:"cadence"`
		BonusCap  uint64 `yaml:"bonus_cap"`
		MaxSupply uint64 `yaml:"max_supply"`
	} `yaml:"minter"`
	Accounts struct {
		Escrow   string `yaml:"escrow"`
		Treasury string `yaml:"treasury"`
	} `yaml:"accounts"`
	Settler struct {
		Cron string `yaml:"cron"`
	} `yaml:"settler"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("AUCTION_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("AUCTION_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.PostgresURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("ORACLE_FEED_URL"); v != "" {
		cfg.Oracle.FeedURL = v
	}
	if v := os.Getenv("AUCTION_RESERVE_USD"); v != "" {
		cfg.Auction.ReserveUSD = v
	}
	if v := os.Getenv("AUCTION_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auction.Duration = d
		}
	}
	if v := os.Getenv("AUCTION_AUTO_START"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Auction.AutoStart = b
		}
	}
	if v := os.Getenv("SETTLER_CRON"); v != "" {
		cfg.Settler.Cron = v
	}

	// Defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Redis.CacheTTL == 0 {
		cfg.Redis.CacheTTL = 5 * time.Second
	}
	if cfg.Oracle.Freshness == 0 {
		cfg.Oracle.Freshness = time.Hour
	}
	if cfg.Auction.Duration == 0 {
		cfg.Auction.Duration = 24 * time.Hour
	}
	if cfg.Auction.TimeBuffer == 0 {
		cfg.Auction.TimeBuffer = 15 * time.Minute
	}
	if cfg.Auction.MinIncrementPct == 0 {
		cfg.Auction.MinIncrementPct = 5
	}
	if cfg.Auction.ReserveUSD == "" {
		cfg.Auction.ReserveUSD = "50000"
	}
	if cfg.Auction.EligibilityMode == "" {
		cfg.Auction.EligibilityMode = "open"
	}
	if cfg.Minter.Cadence == 0 {
		cfg.Minter.Cadence = 10
	}
	if cfg.Minter.BonusCap == 0 {
		cfg.Minter.BonusCap = 1830
	}
	if cfg.Accounts.Escrow == "" {
		cfg.Accounts.Escrow = "auctionhouse"
	}
	if cfg.Accounts.Treasury == "" {
		cfg.Accounts.Treasury = "treasury"
	}
	if cfg.Settler.Cron == "" {
		cfg.Settler.Cron = "*/30 * * * * *"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Server.AdminToken == "" {
		return fmt.Errorf("server.admin_token is required")
	}
	if c.Auction.Duration <= 0 {
		return fmt.Errorf("auction.duration must be positive")
	}
	if c.Auction.TimeBuffer < 0 {
		return fmt.Errorf("auction.time_buffer must not be negative")
	}
	if c.Auction.MinIncrementPct < 0 {
		return fmt.Errorf("auction.min_increment_pct must not be negative")
	}
	switch c.Auction.EligibilityMode {
	case "open", "genesis", "holder":
	default:
		return fmt.Errorf("auction.eligibility_mode must be open, genesis, or holder")
	}
	if c.Oracle.FeedURL == "" && c.Oracle.StaticPrice == "" {
		return fmt.Errorf("oracle.feed_url or oracle.static_price is required")
	}
	return nil
}
