package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// The default storage provider is s3, which validation requires a bucket
	// for; the platform always supplies it.
	t.Setenv("S3_BUCKET_NAME", "inspections-bucket")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.True(t, cfg.Schedule.Enabled)
	require.Equal(t, "0 11 * * *", cfg.Schedule.Cron)
	require.Equal(t, "Violation Details", cfg.Report.Tab)
	require.Equal(t, "inspections.xlsx", cfg.Dataset.ObjectName)
	require.Equal(t, "2025/restaurant-inspections", cfg.Storage.Prefix)
	require.Equal(t, "memory", cfg.Store.Provider)
}

func TestLoadHonorsExternalEnvContract(t *testing.T) {
	t.Setenv("S3_BUCKET_NAME", "inspections-bucket")
	t.Setenv("AWS_REGION", "us-east-2")
	t.Setenv("S3_FILE_NAME", "inspections-latest.xlsx")
	t.Setenv("GEOCODIO_API_KEY", "secret-key")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "inspections-bucket", cfg.Storage.S3.Bucket)
	require.Equal(t, "us-east-2", cfg.Storage.S3.Region)
	require.Equal(t, "inspections-latest.xlsx", cfg.Dataset.ObjectName)
	require.Equal(t, "secret-key", cfg.Geocodio.APIKey)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  port: 9090
storage:
  provider: local
  local:
    base_dir: /tmp/blobs
schedule:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "local", cfg.Storage.Provider)
	require.False(t, cfg.Schedule.Enabled)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("S3_BUCKET_NAME", "inspections-bucket")

	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		// Use memory storage so the mutations below are the only validation
		// failures.
		cfg.Storage.Provider = "memory"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"missing cron", func(c *Config) { c.Schedule.Cron = "" }},
		{"missing report url", func(c *Config) { c.Report.URL = "" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Provider = "s3"; c.Storage.S3.Bucket = "" }},
		{"unknown storage", func(c *Config) { c.Storage.Provider = "tape" }},
		{"postgres without dsn", func(c *Config) { c.Store.Provider = "postgres" }},
		{"auth without key", func(c *Config) { c.Auth.Enabled = true; c.Auth.APIKey = "" }},
		{"zero queue depth", func(c *Config) { c.Queue.Depth = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestRedactedHidesSecrets(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	cfg.Auth.APIKey = "abc"
	cfg.Geocodio.APIKey = "def"
	cfg.Store.Postgres.DSN = "postgres://user:pw@host/db"

	red := cfg.Redacted()
	require.Equal(t, "[redacted]", red.Auth.APIKey)
	require.Equal(t, "[redacted]", red.Geocodio.APIKey)
	require.Equal(t, "[redacted]", red.Store.Postgres.DSN)
	// Original untouched.
	require.Equal(t, "abc", cfg.Auth.APIKey)
}
