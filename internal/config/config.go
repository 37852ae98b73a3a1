package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"marketdash/internal/provider"
)

type Server struct {
	Addr              string `json:"addr" yaml:"addr"`
	RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec"`
	CORSOrigin        string `json:"cors_origin" yaml:"cors_origin"`
}

// Upstream is the shared shape of one market data source.
type Upstream struct {
	Enabled               bool   `json:"enabled" yaml:"enabled"`
	APIKey                string `json:"api_key" yaml:"api_key"`
	BaseURL               string `json:"base_url" yaml:"base_url"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec" yaml:"min_request_interval_sec"`
	Burst                 int    `json:"burst" yaml:"burst"`
}

type Providers struct {
	Finnhub      Upstream `json:"finnhub" yaml:"finnhub"`
	AlphaVantage Upstream `json:"alphavantage" yaml:"alphavantage"`
	FMP          Upstream `json:"fmp" yaml:"fmp"`
	Stooq        Upstream `json:"stooq" yaml:"stooq"`
	CoinGecko    Upstream `json:"coingecko" yaml:"coingecko"`
	Yahoo        Upstream `json:"yahoo" yaml:"yahoo"`

	// QuoteCacheTTLSec caches accepted provider quotes per symbol; 0 disables it.
	QuoteCacheTTLSec int `json:"quote_cache_ttl_sec" yaml:"quote_cache_ttl_sec"`
	QuoteStaleSec    int `json:"quote_stale_sec" yaml:"quote_stale_sec"`
	QuoteCacheItems  int `json:"quote_cache_max_items" yaml:"quote_cache_max_items"`
	BackoffSec       int `json:"entitlement_backoff_sec" yaml:"entitlement_backoff_sec"`
}

type Validation struct {
	Ranges provider.Ranges `json:"ranges" yaml:"ranges"`
}

const (
	CacheMemory   = "memory"
	CachePostgres = "postgres"
)

type Cache struct {
	Backend     string `json:"backend" yaml:"backend"`
	DatabaseURL string `json:"database_url" yaml:"database_url"`
}

type Store struct {
	Path string `json:"path" yaml:"path"`
}

type Logging struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file" yaml:"file"`
}

type Config struct {
	Server     Server     `json:"server" yaml:"server"`
	Providers  Providers  `json:"providers" yaml:"providers"`
	Validation Validation `json:"validation" yaml:"validation"`
	Cache      Cache      `json:"cache" yaml:"cache"`
	Store      Store      `json:"store" yaml:"store"`
	Logging    Logging    `json:"logging" yaml:"logging"`
}

func Default() Config {
	return Config{
		Server: Server{Addr: ":8080", RequestTimeoutSec: 15, CORSOrigin: "*"},
		Providers: Providers{
			Finnhub:      Upstream{Enabled: true, MaxRequestsPerMinute: 60, Burst: 5},
			AlphaVantage: Upstream{Enabled: true, MaxRequestsPerMinute: 5, Burst: 1},
			FMP:          Upstream{Enabled: true},
			Stooq:        Upstream{Enabled: true},
			CoinGecko:    Upstream{Enabled: true, MaxRequestsPerMinute: 30, Burst: 3},
			Yahoo:        Upstream{Enabled: false},

			QuoteCacheTTLSec: 30,
			QuoteStaleSec:    300,
			QuoteCacheItems:  5000,
			BackoffSec:       3600,
		},
		Validation: Validation{Ranges: provider.DefaultRanges()},
		Cache:      Cache{Backend: CacheMemory},
		Store:      Store{Path: "data/marketdash.db"},
		Logging:    Logging{Level: "info"},
	}
}

// Load builds the configuration from defaults, then the file at path (JSON
// or YAML by extension), then a .env file in the working directory,
// then environment variables. If path is empty, config.yaml, config.yml and
// config.json are tried in that order. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, candidate := range []string{"config.yaml", "config.yml", "config.json"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			// Ranges from the file are decoded on their own and laid over
			// the defaults, so "nvda" in a file replaces the default "NVDA".
			defaults := cfg.Validation.Ranges
			cfg.Validation.Ranges = nil
			if err := decode(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
			if err := checkRangeKeys(cfg.Validation.Ranges); err != nil {
				return cfg, err
			}
			merged := normalizeRanges(defaults)
			for sym, rg := range cfg.Validation.Ranges {
				merged[provider.NormalizeSymbol(sym)] = rg
			}
			cfg.Validation.Ranges = merged
		}
	}

	// Existing environment variables win over .env entries.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(&cfg)
	cfg.Validation.Ranges = normalizeRanges(cfg.Validation.Ranges)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("config: server.addr is empty")
	}
	switch c.Cache.Backend {
	case CacheMemory:
	case CachePostgres:
		if c.Cache.DatabaseURL == "" {
			return errors.New("config: cache.backend=postgres requires cache.database_url")
		}
	default:
		return fmt.Errorf("config: unknown cache.backend %q", c.Cache.Backend)
	}
	if err := checkRangeKeys(c.Validation.Ranges); err != nil {
		return err
	}
	for sym, rg := range c.Validation.Ranges {
		if rg.Min < 0 || rg.Max < rg.Min {
			return fmt.Errorf("config: invalid range for %s: [%v, %v]", sym, rg.Min, rg.Max)
		}
	}
	return nil
}

func (c Config) RequestTimeout() time.Duration {
	return seconds(c.Server.RequestTimeoutSec)
}

func (p Providers) QuoteCacheTTL() time.Duration { return seconds(p.QuoteCacheTTLSec) }

func (p Providers) QuoteStale() time.Duration { return seconds(p.QuoteStaleSec) }

func (p Providers) Backoff() time.Duration { return seconds(p.BackoffSec) }

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

// checkRangeKeys rejects two spellings of one symbol, e.g. "nvda" and "NVDA".
func checkRangeKeys(r provider.Ranges) error {
	seen := make(map[string]string, len(r))
	for sym := range r {
		norm := provider.NormalizeSymbol(sym)
		if other, dup := seen[norm]; dup {
			a, b := min(sym, other), max(sym, other)
			return fmt.Errorf("config: range for %s given twice (%q and %q)", norm, a, b)
		}
		seen[norm] = sym
	}
	return nil
}

func normalizeRanges(in provider.Ranges) provider.Ranges {
	out := make(provider.Ranges, len(in))
	for sym, rg := range in {
		out[provider.NormalizeSymbol(sym)] = rg
	}
	return out
}

func applyEnv(cfg *Config) {
	envString("HTTP_ADDR", &cfg.Server.Addr)
	if v := os.Getenv("PORT"); v != "" && os.Getenv("HTTP_ADDR") == "" {
		cfg.Server.Addr = ":" + v
	}
	envInt("REQUEST_TIMEOUT_SEC", &cfg.Server.RequestTimeoutSec)
	envString("CORS_ORIGIN", &cfg.Server.CORSOrigin)

	envString("FINNHUB_API_KEY", &cfg.Providers.Finnhub.APIKey)
	envString("FINNHUB_BASE_URL", &cfg.Providers.Finnhub.BaseURL)
	envInt("FINNHUB_RPM", &cfg.Providers.Finnhub.MaxRequestsPerMinute)
	envString("ALPHA_VANTAGE_API_KEY", &cfg.Providers.AlphaVantage.APIKey)
	envString("FMP_API_KEY", &cfg.Providers.FMP.APIKey)
	envString("COINGECKO_API_KEY", &cfg.Providers.CoinGecko.APIKey)
	envString("STOOQ_ENDPOINT", &cfg.Providers.Stooq.BaseURL)
	envBool("YAHOO_ENABLED", &cfg.Providers.Yahoo.Enabled)
	envInt("QUOTE_CACHE_TTL", &cfg.Providers.QuoteCacheTTLSec)
	envInt("ENTITLEMENT_BACKOFF_SEC", &cfg.Providers.BackoffSec)

	envString("CACHE_BACKEND", &cfg.Cache.Backend)
	envString("DATABASE_URL", &cfg.Cache.DatabaseURL)
	envString("STORE_PATH", &cfg.Store.Path)
	envString("LOG_LEVEL", &cfg.Logging.Level)
	envString("LOG_FILE", &cfg.Logging.File)
}

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// envInt ignores values that do not parse or are negative.
func envInt(key string, dst *int) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if x, err := strconv.Atoi(v); err == nil && x >= 0 {
		*dst = x
	}
}

func envBool(key string, dst *bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y":
		*dst = true
	case "0", "false", "no", "n":
		*dst = false
	}
}
