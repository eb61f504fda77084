package cli

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/anstrom/portsweep/internal/config"
)

// setting ties a dotted viper key to one field of config.Config.
type setting interface {
	setDefault(defaults *config.Config)
	apply(cfg *config.Config)
}

type field[T any] struct {
	key string
	ptr func(*config.Config) *T
	get func(string) T
}

func (f field[T]) setDefault(defaults *config.Config) {
	viper.SetDefault(f.key, *f.ptr(defaults))
}

func (f field[T]) apply(cfg *config.Config) {
	if viper.IsSet(f.key) {
		*f.ptr(cfg) = f.get(f.key)
	}
}

func intField(key string, ptr func(*config.Config) *int) setting {
	return field[int]{key: key, ptr: ptr, get: viper.GetInt}
}

func int64Field(key string, ptr func(*config.Config) *int64) setting {
	return field[int64]{key: key, ptr: ptr, get: viper.GetInt64}
}

func stringField(key string, ptr func(*config.Config) *string) setting {
	return field[string]{key: key, ptr: ptr, get: viper.GetString}
}

func boolField(key string, ptr func(*config.Config) *bool) setting {
	return field[bool]{key: key, ptr: ptr, get: viper.GetBool}
}

func durationField(key string, ptr func(*config.Config) *time.Duration) setting {
	return field[time.Duration]{key: key, ptr: ptr, get: viper.GetDuration}
}

func stringsField(key string, ptr func(*config.Config) *[]string) setting {
	return field[[]string]{key: key, ptr: ptr, get: viper.GetStringSlice}
}

// settings lists every key that can come from flags or PORTSWEEP_*
// variables. PORTSWEEP_API_PORT maps to api.port and so on; list values
// taken from the environment are space separated.
var settings = []setting{
	intField("scanning.start_port", func(c *config.Config) *int { return &c.Scanning.StartPort }),
	intField("scanning.end_port", func(c *config.Config) *int { return &c.Scanning.EndPort }),
	intField("scanning.workers", func(c *config.Config) *int { return &c.Scanning.Workers }),
	durationField("scanning.timeout", func(c *config.Config) *time.Duration { return &c.Scanning.Timeout }),
	intField("scanning.max_workers", func(c *config.Config) *int { return &c.Scanning.MaxWorkers }),
	stringField("scanning.greeting", func(c *config.Config) *string { return &c.Scanning.Greeting }),
	intField("scanning.banner_buffer_size", func(c *config.Config) *int { return &c.Scanning.BannerBufferSize }),
	durationField("scanning.ping_timeout", func(c *config.Config) *time.Duration { return &c.Scanning.PingTimeout }),

	stringField("resolver.mode", func(c *config.Config) *string { return &c.Resolver.Mode }),
	stringField("resolver.nameserver", func(c *config.Config) *string { return &c.Resolver.Nameserver }),
	durationField("resolver.timeout", func(c *config.Config) *time.Duration { return &c.Resolver.Timeout }),

	stringField("logging.level", func(c *config.Config) *string { return &c.Logging.Level }),
	stringField("logging.format", func(c *config.Config) *string { return &c.Logging.Format }),
	stringField("logging.output", func(c *config.Config) *string { return &c.Logging.Output }),

	stringField("api.listen_addr", func(c *config.Config) *string { return &c.API.ListenAddr }),
	intField("api.port", func(c *config.Config) *int { return &c.API.Port }),
	stringField("api.api_key_hash", func(c *config.Config) *string { return &c.API.APIKeyHash }),
	stringsField("api.allowed_origins", func(c *config.Config) *[]string { return &c.API.AllowedOrigins }),
	durationField("api.read_timeout", func(c *config.Config) *time.Duration { return &c.API.ReadTimeout }),
	durationField("api.write_timeout", func(c *config.Config) *time.Duration { return &c.API.WriteTimeout }),
	durationField("api.idle_timeout", func(c *config.Config) *time.Duration { return &c.API.IdleTimeout }),
	int64Field("api.max_request_size", func(c *config.Config) *int64 { return &c.API.MaxRequestSize }),

	boolField("database.enabled", func(c *config.Config) *bool { return &c.Database.Enabled }),
	stringField("database.host", func(c *config.Config) *string { return &c.Database.Host }),
	intField("database.port", func(c *config.Config) *int { return &c.Database.Port }),
	stringField("database.database", func(c *config.Config) *string { return &c.Database.Database }),
	stringField("database.username", func(c *config.Config) *string { return &c.Database.Username }),
	stringField("database.password", func(c *config.Config) *string { return &c.Database.Password }),
	stringField("database.ssl_mode", func(c *config.Config) *string { return &c.Database.SSLMode }),

	stringField("report.output_dir", func(c *config.Config) *string { return &c.Report.OutputDir }),
	stringsField("report.formats", func(c *config.Config) *[]string { return &c.Report.Formats }),

	boolField("schedule.enabled", func(c *config.Config) *bool { return &c.Schedule.Enabled }),
	stringField("schedule.cron", func(c *config.Config) *string { return &c.Schedule.Cron }),
	stringField("schedule.target", func(c *config.Config) *string { return &c.Schedule.Target }),
}

// setConfigDefaults registers the built-in defaults with viper.
func setConfigDefaults(defaults *config.Config) {
	for _, s := range settings {
		s.setDefault(defaults)
	}
}

// loadConfig loads the config file and layers viper's view of flags and
// environment on top of it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.ConfigFileUsed())
	if err != nil {
		return nil, err
	}

	for _, s := range settings {
		s.apply(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
