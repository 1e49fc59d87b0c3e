package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"tradesim/internal/domain/model"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	ProviderIEX    = "iex"
	ProviderStatic = "static"
)

type Config struct {
	App struct {
		Listen       string `toml:"listen"`
		Currency     string `toml:"currency"`
		StartingCash string `toml:"starting_cash"`
		LogLevel     string `toml:"log_level"`
		UserHeader   string `toml:"user_header"`
		BcryptCost   int    `toml:"bcrypt_cost"`
		PrintTrades  bool   `toml:"print_trades"`

		startingCash decimal.Decimal
	} `toml:"app"`

	Quote struct {
		Provider    string `toml:"provider"`
		BaseURL     string `toml:"base_url"`
		APIKey      string `toml:"api_key"`
		TimeoutSec  int    `toml:"timeout_sec"`
		CacheTTLSec int    `toml:"cache_ttl_sec"`
		Concurrency int    `toml:"concurrency"`

		Static map[string]StaticQuote `toml:"static"`
	} `toml:"quote"`

	Storage struct {
		Driver string `toml:"driver"`
	} `toml:"storage"`

	SQLite struct {
		Path string `toml:"path"`
	} `toml:"sqlite"`

	Postgres struct {
		DSN      string `toml:"dsn"`
		MaxConns int    `toml:"max_conns"`
		MinConns int    `toml:"min_conns"`
	} `toml:"postgres"`

	Redis struct {
		Enabled      bool   `toml:"enabled"`
		Addr         string `toml:"addr"`
		Password     string `toml:"password"`
		DB           int    `toml:"db"`
		Prefix       string `toml:"prefix"`
		QuoteTTLSec  int    `toml:"quote_ttl_sec"`
		EventStream  string `toml:"event_stream"`
		EventChannel string `toml:"event_channel"`
	} `toml:"redis"`

	Trade struct {
		LockTimeoutMs int `toml:"lock_timeout_ms"`
	} `toml:"trade"`
}

// StaticQuote 固定报价（离线/演示用）
type StaticQuote struct {
	Name  string `toml:"name"`
	Price string `toml:"price"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.App.Listen) == "" {
		cfg.App.Listen = ":8080"
	}
	if strings.TrimSpace(cfg.App.Currency) == "" {
		cfg.App.Currency = money.USD
	}
	if strings.TrimSpace(cfg.App.StartingCash) == "" {
		cfg.App.StartingCash = "10000"
	}
	if strings.TrimSpace(cfg.App.LogLevel) == "" {
		cfg.App.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.App.UserHeader) == "" {
		cfg.App.UserHeader = "X-User-ID"
	}
	if cfg.App.BcryptCost <= 0 {
		cfg.App.BcryptCost = 10
	}

	if strings.TrimSpace(cfg.Quote.Provider) == "" {
		cfg.Quote.Provider = ProviderIEX
	}
	if strings.TrimSpace(cfg.Quote.BaseURL) == "" {
		cfg.Quote.BaseURL = "https://cloud.iexapis.com/stable"
	}
	if cfg.Quote.APIKey == "" {
		cfg.Quote.APIKey = os.Getenv("API_KEY")
	}
	if cfg.Quote.TimeoutSec <= 0 {
		cfg.Quote.TimeoutSec = 5
	}
	if cfg.Quote.CacheTTLSec < 0 {
		cfg.Quote.CacheTTLSec = 0
	}
	if cfg.Quote.Concurrency <= 0 {
		cfg.Quote.Concurrency = 4
	}

	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = DriverSQLite
	}
	if strings.TrimSpace(cfg.SQLite.Path) == "" {
		cfg.SQLite.Path = "data/tradesim.db"
	}
	if cfg.Postgres.MaxConns <= 0 {
		cfg.Postgres.MaxConns = 10
	}
	if cfg.Postgres.MinConns < 0 {
		cfg.Postgres.MinConns = 0
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Redis.QuoteTTLSec <= 0 {
		cfg.Redis.QuoteTTLSec = 60
	}

	if cfg.Trade.LockTimeoutMs <= 0 {
		cfg.Trade.LockTimeoutMs = 5000
	}
}

func validate(cfg *Config) error {
	cfg.App.Currency = strings.ToUpper(strings.TrimSpace(cfg.App.Currency))
	if money.GetCurrency(cfg.App.Currency) == nil {
		return fmt.Errorf("app.currency %q is not a known ISO 4217 code", cfg.App.Currency)
	}
	cash, err := decimal.NewFromString(strings.TrimSpace(cfg.App.StartingCash))
	if err != nil {
		return fmt.Errorf("app.starting_cash: %w", err)
	}
	if cash.IsNegative() {
		return errors.New("app.starting_cash must not be negative")
	}
	cfg.App.startingCash = cash

	cfg.Quote.Provider = strings.ToLower(strings.TrimSpace(cfg.Quote.Provider))
	switch cfg.Quote.Provider {
	case ProviderIEX:
		if strings.TrimSpace(cfg.Quote.APIKey) == "" {
			return errors.New("quote.api_key empty and API_KEY not set")
		}
	case ProviderStatic:
		static, err := normalizeStatic(cfg.Quote.Static)
		if err != nil {
			return err
		}
		if len(static) == 0 {
			return errors.New("quote.static is empty but provider is static")
		}
		cfg.Quote.Static = static
	default:
		return fmt.Errorf("quote.provider %q unsupported", cfg.Quote.Provider)
	}

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch cfg.Storage.Driver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(cfg.Postgres.DSN) == "" {
			return errors.New("postgres.dsn empty but storage.driver is postgres")
		}
		if cfg.Postgres.MinConns > cfg.Postgres.MaxConns {
			return errors.New("postgres.min_conns exceeds postgres.max_conns")
		}
	default:
		return fmt.Errorf("storage.driver %q unsupported", cfg.Storage.Driver)
	}

	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	return nil
}

// normalizeStatic 统一代码大小写，校验价格
func normalizeStatic(in map[string]StaticQuote) (map[string]StaticQuote, error) {
	out := make(map[string]StaticQuote, len(in))
	for sym, q := range in {
		u := model.NormalizeSymbol(sym)
		if u == "" {
			continue
		}
		if _, ok := out[u]; ok {
			return nil, fmt.Errorf("quote.static.%s defined twice", u)
		}
		p, err := decimal.NewFromString(strings.TrimSpace(q.Price))
		if err != nil || !p.IsPositive() {
			return nil, fmt.Errorf("quote.static.%s.price %q must be a positive number", u, q.Price)
		}
		if strings.TrimSpace(q.Name) == "" {
			q.Name = u
		}
		out[u] = q
	}
	return out, nil
}

// StartingCash is app.starting_cash as parsed by Load.
func (c *Config) StartingCash() decimal.Decimal {
	return c.App.startingCash
}

// StaticQuotes returns quote.static as domain quotes ordered by symbol.
func (c *Config) StaticQuotes() []model.Quote {
	out := make([]model.Quote, 0, len(c.Quote.Static))
	for sym, q := range c.Quote.Static {
		out = append(out, model.Quote{Symbol: sym, Name: q.Name, Price: decimal.RequireFromString(q.Price)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (c *Config) QuoteTimeout() time.Duration {
	return time.Duration(c.Quote.TimeoutSec) * time.Second
}

func (c *Config) QuoteCacheTTL() time.Duration {
	return time.Duration(c.Quote.CacheTTLSec) * time.Second
}

func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Trade.LockTimeoutMs) * time.Millisecond
}
