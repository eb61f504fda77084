package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/logging"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 1, cfg.Scanning.StartPort)
	assert.Equal(t, 1024, cfg.Scanning.EndPort)
	assert.Equal(t, 100, cfg.Scanning.Workers)
	assert.Equal(t, time.Second, cfg.Scanning.Timeout)
	assert.Equal(t, 4096, cfg.Scanning.MaxWorkers)
	assert.Equal(t, "Hello\r\n", cfg.Scanning.Greeting)
	assert.Equal(t, 1024, cfg.Scanning.BannerBufferSize)
	assert.Equal(t, 2*time.Second, cfg.Scanning.PingTimeout)
	assert.Equal(t, "system", cfg.Resolver.Mode)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, []string{"txt", "json", "csv"}, cfg.Report.Formats)
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("missing file returns defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 100, cfg.Scanning.Workers)
	})

	t.Run("overrides are merged onto defaults", func(t *testing.T) {
		path := writeConfig(t, `
scanning:
  start_port: 20
  end_port: 25
  workers: 8
  timeout: 500ms
resolver:
  mode: dns
  nameserver: 1.1.1.1:53
logging:
  level: debug
  format: json
  output: scanner.log
database:
  enabled: true
  host: db.internal
  database: portsweep
  username: sweeper
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 20, cfg.Scanning.StartPort)
		assert.Equal(t, 25, cfg.Scanning.EndPort)
		assert.Equal(t, 8, cfg.Scanning.Workers)
		assert.Equal(t, 500*time.Millisecond, cfg.Scanning.Timeout)
		assert.Equal(t, 1024, cfg.Scanning.BannerBufferSize, "unset fields keep defaults")
		assert.Equal(t, "dns", cfg.Resolver.Mode)
		assert.Equal(t, "1.1.1.1:53", cfg.Resolver.Nameserver)
		assert.Equal(t, "scanner.log", cfg.Logging.Output)
		assert.True(t, cfg.Database.Enabled)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "scanning: [unterminated")
		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeConfiguration))
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := writeConfig(t, `
scanning:
  start_port: 500
  end_port: 100
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, errors.IsConfigError(err))
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"start port zero", func(c *Config) { c.Scanning.StartPort = 0 }, "scanning.startport"},
		{"end port too high", func(c *Config) { c.Scanning.EndPort = 70000 }, "scanning.endport"},
		{"zero workers", func(c *Config) { c.Scanning.Workers = 0 }, "scanning.workers"},
		{"zero timeout", func(c *Config) { c.Scanning.Timeout = 0 }, "scanning.timeout"},
		{"start after end", func(c *Config) { c.Scanning.StartPort = 2000 }, "scanning.start_port"},
		{"workers above max", func(c *Config) { c.Scanning.Workers = 5000 }, "scanning.workers"},
		{"unknown resolver", func(c *Config) { c.Resolver.Mode = "mdns" }, "resolver.mode"},
		{"dns without nameserver", func(c *Config) {
			c.Resolver.Mode = "dns"
			c.Resolver.Nameserver = ""
		}, "resolver.nameserver"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad report format", func(c *Config) { c.Report.Formats = []string{"xml"} }, "report.formats[0]"},
		{"database without name", func(c *Config) { c.Database.Enabled = true }, "database.database"},
		{"schedule without target", func(c *Config) { c.Schedule.Enabled = true }, "schedule.target"},
		{"schedule with bad cron", func(c *Config) {
			c.Schedule.Enabled = true
			c.Schedule.Target = "example.com"
			c.Schedule.Cron = "every tuesday"
		}, "schedule.cron"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cfgErr *errors.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, errors.CodeValidation, cfgErr.Code)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Scanning.Workers = 42
	cfg.API.APIKeyHash = "$2a$10$abcdefghijklmnopqrstuv"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoggerConfig(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "scanner.log"

	lc := cfg.LoggerConfig()
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.Equal(t, logging.FormatJSON, lc.Format)
	assert.Equal(t, "scanner.log", lc.Output)
	assert.True(t, lc.AddSource)
}

func TestGetAPIAddress(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "127.0.0.1:8080", cfg.GetAPIAddress())
}
