package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdash/internal/provider"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	// Arrange
	path := writeFile(t, "config.yaml", `
server:
  addr: ":9000"
providers:
  finnhub:
    api_key: from-file
    max_requests_per_minute: 30
  quote_cache_ttl_sec: 10
validation:
  ranges:
    pltr: {min: 10, max: 200}
logging:
  level: debug
`)
	t.Setenv("FINNHUB_API_KEY", "from-env")
	t.Setenv("YAHOO_ENABLED", "true")
	t.Setenv("QUOTE_CACHE_TTL", "not-a-number")

	// Act
	cfg, err := Load(path)

	// Assert
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Server.Addr)
	require.Equal(t, "from-env", cfg.Providers.Finnhub.APIKey)
	require.Equal(t, 30, cfg.Providers.Finnhub.MaxRequestsPerMinute)
	require.True(t, cfg.Providers.Yahoo.Enabled)
	require.Equal(t, 10*time.Second, cfg.Providers.QuoteCacheTTL())
	require.Equal(t, "debug", cfg.Logging.Level)

	rg, ok := cfg.Validation.Ranges.Lookup("PLTR")
	require.True(t, ok)
	require.Equal(t, provider.Range{Min: 10, Max: 200}, rg)
	_, ok = cfg.Validation.Ranges.Lookup("NVDA")
	require.True(t, ok, "file ranges extend the reference table")
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"cache":{"backend":"postgres","database_url":"postgres://localhost/md"},"store":{"path":"/tmp/x.db"}}`)

	cfg, err := Load(path)

	require.NoError(t, err)
	require.Equal(t, CachePostgres, cfg.Cache.Backend)
	require.Equal(t, "/tmp/x.db", cfg.Store.Path)
	require.Equal(t, time.Hour, cfg.Providers.Backoff())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("PORT", "7070")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.Server.Addr)
	require.Equal(t, CacheMemory, cfg.Cache.Backend)
	require.Equal(t, provider.DefaultRanges(), cfg.Validation.Ranges)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "database_url")

	_, err = Load(writeFile(t, "bad.yaml", "server: [oops"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Validation.Ranges = provider.Ranges{"X": {Min: 5, Max: 1}}
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Cache.Backend = "redis"
	require.Error(t, cfg.Validate())
}

func TestLoad_FileRangeOverridesDefaultInAnyCase(t *testing.T) {
	path := writeFile(t, "config.yaml", `
validation:
  ranges:
    nvda: {min: 50, max: 1000}
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	require.Equal(t, provider.Range{Min: 50, Max: 1000}, cfg.Validation.Ranges["NVDA"])
	require.NotContains(t, cfg.Validation.Ranges, "nvda")
	require.Len(t, cfg.Validation.Ranges, len(provider.DefaultRanges()))
}

func TestLoad_RejectsRangeGivenTwice(t *testing.T) {
	path := writeFile(t, "config.yaml", `
validation:
  ranges:
    nvda: {min: 50, max: 1000}
    NVDA: {min: 1, max: 2}
`)

	_, err := Load(path)

	require.ErrorContains(t, err, `range for NVDA given twice ("NVDA" and "nvda")`)
}

func TestValidate_DuplicateSpellings(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Validation.Ranges["aapl"] = provider.Range{Min: 1, Max: 2}

	require.ErrorContains(t, cfg.Validate(), "AAPL given twice")
}
