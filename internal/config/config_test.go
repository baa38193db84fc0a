package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns the defaults patched with the fields Validate requires.
func validConfig() Config {
	cfg := Defaults()
	cfg.Exchange.Token = "tok"
	return cfg
}

func TestDefaultsValidateWithToken(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestDefaultsTierTable(t *testing.T) {
	cfg := Defaults()
	table, err := cfg.TierTable()
	require.NoError(t, err)

	tier, ok := table.ByDuration(30)
	require.True(t, ok)
	assert.Equal(t, 12.0, tier.PayoutRatePercent)
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			"unknown mode",
			func(c *Config) { c.Mode = "hybrid" },
			"unknown mode",
		},
		{
			"unknown log level",
			func(c *Config) { c.LogLevel = "trace" },
			"unknown log_level",
		},
		{
			"missing token source",
			func(c *Config) { c.Exchange.Token = "" },
			"either token or encrypted_token_path",
		},
		{
			"encrypted token without password",
			func(c *Config) {
				c.Exchange.Token = ""
				c.Exchange.EncryptedTokenPath = "/tmp/token.json"
			},
			"token_password is required",
		},
		{
			"feed enabled without symbols",
			func(c *Config) { c.Feed.Symbols = nil },
			"at least one symbol",
		},
		{
			"no tiers",
			func(c *Config) { c.Tiers = nil },
			"at least one tier row",
		},
		{
			"bad postgres port",
			func(c *Config) { c.Postgres.Port = 0 },
			"postgres: port",
		},
		{
			"redis enabled without addr",
			func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Addr = ""
			},
			"redis: addr",
		},
		{
			"archive enabled without retention",
			func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.RetentionDays = 0
			},
			"retention_days",
		},
		{
			"archive enabled without bucket",
			func(c *Config) {
				c.Archive.Enabled = true
				c.S3.Bucket = ""
			},
			"s3: bucket",
		},
		{
			"non-positive history poll interval",
			func(c *Config) { c.History.PollInterval = duration{} },
			"poll_interval",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "bogus"
	cfg.Tiers = nil

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "tier row")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "monitor"

[exchange]
token = "file-token"

[server]
port = 9090

[history]
poll_interval = "5m"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "file-token", cfg.Exchange.Token)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.History.PollInterval.Duration)
	// Untouched fields keep their defaults.
	assert.Equal(t, "http://localhost:3000", cfg.Exchange.BaseURL)
	assert.Len(t, cfg.Tiers, len(Defaults().Tiers))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SECONDSD_MODE", "full")
	t.Setenv("SECONDSD_EXCHANGE_TOKEN", "env-token")
	t.Setenv("SECONDSD_SERVER_PORT", "7070")
	t.Setenv("SECONDSD_REDIS_ENABLED", "true")
	t.Setenv("SECONDSD_FEED_SYMBOLS", "BTCUSDT, SOLUSDT ,")
	t.Setenv("SECONDSD_ARCHIVE_INTERVAL", "90m")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "env-token", cfg.Exchange.Token)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"BTCUSDT", "SOLUSDT"}, cfg.Feed.Symbols)
	assert.Equal(t, 90*time.Minute, cfg.Archive.Interval.Duration)
}

func TestEnvOverridesIgnoreMalformedValues(t *testing.T) {
	t.Setenv("SECONDSD_SERVER_PORT", "not-a-number")
	t.Setenv("SECONDSD_REDIS_ENABLED", "maybe")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Redis.Enabled)
}

func TestDurationRoundTrip(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("2h30m")))
	assert.Equal(t, 2*time.Hour+30*time.Minute, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2h30m0s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
