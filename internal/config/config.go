// Package config loads, validates and saves the portsweep YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/portsweep/internal/db"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/logging"
)

const (
	defaultStartPort        = 1
	defaultEndPort          = 1024
	defaultWorkers          = 100
	defaultMaxWorkers       = 4096
	defaultTimeout          = time.Second
	defaultGreeting         = "Hello\r\n"
	defaultBannerBufferSize = 1024
	defaultPingTimeout      = 2 * time.Second
	defaultAPIPort          = 8080
	defaultNameserver       = "8.8.8.8:53"

	configDirPerm  = 0755
	configFilePerm = 0600
)

// Config represents the complete portsweep configuration.
type Config struct {
	Scanning ScanningConfig `yaml:"scanning" json:"scanning"`
	Resolver ResolverConfig `yaml:"resolver" json:"resolver"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	API      APIConfig      `yaml:"api" json:"api"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Report   ReportConfig   `yaml:"report" json:"report"`
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`
}

// ScanningConfig holds the defaults for a scan and the probe protocol.
type ScanningConfig struct {
	StartPort int           `yaml:"start_port" json:"start_port" validate:"min=1,max=65535"`
	EndPort   int           `yaml:"end_port" json:"end_port" validate:"min=1,max=65535"`
	Workers   int           `yaml:"workers" json:"workers" validate:"min=1"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`

	// Upper bound for requested worker counts.
	MaxWorkers int `yaml:"max_workers" json:"max_workers" validate:"min=1"`

	// Payload written after connect to provoke a banner.
	Greeting         string        `yaml:"greeting" json:"greeting"`
	BannerBufferSize int           `yaml:"banner_buffer_size" json:"banner_buffer_size" validate:"min=1"`
	PingTimeout      time.Duration `yaml:"ping_timeout" json:"ping_timeout" validate:"gt=0"`
}

// ResolverConfig selects how targets are resolved.
type ResolverConfig struct {
	// "system" uses the host resolver, "dns" queries Nameserver directly.
	Mode       string        `yaml:"mode" json:"mode" validate:"oneof=system dns"`
	Nameserver string        `yaml:"nameserver" json:"nameserver"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`
	Output string `yaml:"output" json:"output"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr" validate:"required"`
	Port       int    `yaml:"port" json:"port" validate:"min=1,max=65535"`

	// bcrypt hash of the API key; empty disables authentication.
	APIKeyHash string `yaml:"api_key_hash" json:"api_key_hash"`

	AllowedOrigins []string      `yaml:"allowed_origins" json:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout" validate:"gt=0"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout" validate:"gt=0"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" json:"idle_timeout" validate:"gt=0"`
	MaxRequestSize int64         `yaml:"max_request_size" json:"max_request_size" validate:"min=1"`
}

// DatabaseConfig holds optional report persistence settings.
type DatabaseConfig struct {
	Enabled   bool `yaml:"enabled" json:"enabled"`
	db.Config `yaml:",inline"`
}

// ReportConfig holds report writer settings.
type ReportConfig struct {
	OutputDir string   `yaml:"output_dir" json:"output_dir"`
	Formats   []string `yaml:"formats" json:"formats" validate:"dive,oneof=txt json csv table"`
}

// ScheduleConfig configures periodic rescans in serve mode.
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Cron    string `yaml:"cron" json:"cron"`
	Target  string `yaml:"target" json:"target"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Scanning: ScanningConfig{
			StartPort:        defaultStartPort,
			EndPort:          defaultEndPort,
			Workers:          defaultWorkers,
			Timeout:          defaultTimeout,
			MaxWorkers:       defaultMaxWorkers,
			Greeting:         defaultGreeting,
			BannerBufferSize: defaultBannerBufferSize,
			PingTimeout:      defaultPingTimeout,
		},
		Resolver: ResolverConfig{
			Mode:       "system",
			Nameserver: defaultNameserver,
			Timeout:    2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		API: APIConfig{
			ListenAddr:     "127.0.0.1",
			Port:           defaultAPIPort,
			AllowedOrigins: []string{"*"},
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxRequestSize: 1024 * 1024,
		},
		Database: DatabaseConfig{
			Enabled: false,
			Config:  db.DefaultConfig(),
		},
		Report: ReportConfig{
			OutputDir: ".",
			Formats:   []string{"txt", "json", "csv"},
		},
		Schedule: ScheduleConfig{
			Cron: "0 * * * *",
		},
	}
}

// Load loads configuration from a file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		return config, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to parse config", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save saves configuration to a file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), configDirPerm); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, configFilePerm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validate = validator.New()

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			first := verrs[0]
			return errors.NewConfigFieldError(errors.CodeValidation,
				fmt.Sprintf("failed %q check", first.Tag()), fieldPath(first.Namespace()), first.Value())
		}
		return errors.WrapConfigError(errors.CodeValidation, "invalid configuration", err)
	}

	if c.Scanning.StartPort > c.Scanning.EndPort {
		return errors.NewConfigFieldError(errors.CodeValidation,
			"start port must not exceed end port", "scanning.start_port", c.Scanning.StartPort)
	}
	if c.Scanning.Workers > c.Scanning.MaxWorkers {
		return errors.NewConfigFieldError(errors.CodeValidation,
			"workers exceeds max_workers", "scanning.workers", c.Scanning.Workers)
	}

	if c.Resolver.Mode == "dns" && c.Resolver.Nameserver == "" {
		return errors.ErrConfigMissing("resolver.nameserver")
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return errors.ErrConfigMissing("database.host")
		}
		if c.Database.Database == "" {
			return errors.ErrConfigMissing("database.database")
		}
		if c.Database.Username == "" {
			return errors.ErrConfigMissing("database.username")
		}
	}

	if c.Schedule.Enabled {
		if c.Schedule.Target == "" {
			return errors.ErrConfigMissing("schedule.target")
		}
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			cfgErr := errors.ErrConfigInvalid("schedule.cron", c.Schedule.Cron)
			cfgErr.Cause = err
			return cfgErr
		}
	}

	return nil
}

// LoggerConfig converts the logging section for the logging package.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:     logging.LogLevel(c.Logging.Level),
		Format:    logging.LogFormat(c.Logging.Format),
		Output:    c.Logging.Output,
		AddSource: c.Logging.Level == "debug",
	}
}

// GetAPIAddress returns the full API address.
func (c *Config) GetAPIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.ListenAddr, c.API.Port)
}

// fieldPath turns a validator namespace such as "Config.Scanning.StartPort"
// into the lower-case dotted form used in messages.
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.ToLower(strings.Join(parts, "."))
}
