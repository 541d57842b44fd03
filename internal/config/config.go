package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"spatialization-module/internal/core/domain"
)

// FileEnv names an optional config file merged over the defaults.
const FileEnv = "SPATIALIZATION_CONFIG"

type Config struct {
	Server   ServerConfig
	Logger   LoggerConfig
	Pipeline PipelineConfig
	Database DatabaseConfig
	Tracing  TracingConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level  string
	Format string
}

type PipelineConfig struct {
	Overwrite           bool
	ConcurrencyMode     string
	WorkerCount         int
	TolerancePercentage *float64
	FlatSubdir          string
}

// RunOptions converts the pipeline section into per-run options.
func (p PipelineConfig) RunOptions() domain.RunOptions {
	return domain.RunOptions{
		Overwrite:           p.Overwrite,
		ConcurrencyMode:     domain.ConcurrencyMode(p.ConcurrencyMode),
		WorkerCount:         p.WorkerCount,
		TolerancePercentage: p.TolerancePercentage,
	}
}

// DatabaseConfig is only used for PostGIS boundary sources.
type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// TracingConfig enables OTLP/HTTP span export. Tracing stays off unless it is
// enabled and an endpoint is set.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	SampleRatio float64
}

func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

func Load() (*Config, error) {
	return LoadWithFlags(nil)
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"overwrite":   "pipeline.overwrite",
	"concurrency": "pipeline.concurrency_mode",
	"workers":     "pipeline.worker_count",
	"tolerance":   "pipeline.tolerance_percentage",
	"flat-subdir": "pipeline.flat_subdir",
	"log-level":   "logger.level",
	"log-format":  "logger.format",
}

// LoadWithFlags reads defaults, then the optional file, then the environment,
// then any flags in fs that were set explicitly.
func LoadWithFlags(fs *pflag.FlagSet) (*Config, error) {
	// a missing .env is normal
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(FileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Logger: LoggerConfig{
			Level:  v.GetString("logger.level"),
			Format: v.GetString("logger.format"),
		},
		Pipeline: PipelineConfig{
			Overwrite:       v.GetBool("pipeline.overwrite"),
			ConcurrencyMode: v.GetString("pipeline.concurrency_mode"),
			WorkerCount:     v.GetInt("pipeline.worker_count"),
			FlatSubdir:      v.GetString("pipeline.flat_subdir"),
		},
		Database: DatabaseConfig{
			Enabled:         v.GetBool("database.enabled"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Tracing: TracingConfig{
			Enabled:     v.GetBool("tracing.enabled"),
			Endpoint:    v.GetString("tracing.endpoint"),
			ServiceName: v.GetString("tracing.service_name"),
			SampleRatio: v.GetFloat64("tracing.sample_ratio"),
		},
	}
	if raw := v.GetString("pipeline.tolerance_percentage"); raw != "" {
		tol, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("pipeline.tolerance_percentage %q: %w", raw, err)
		}
		cfg.Pipeline.TolerancePercentage = &tol
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("pipeline.overwrite", false)
	v.SetDefault("pipeline.concurrency_mode", string(domain.ConcurrencySequential))
	v.SetDefault("pipeline.worker_count", 4)
	v.SetDefault("pipeline.tolerance_percentage", "")
	v.SetDefault("pipeline.flat_subdir", domain.DefaultFlatSubdir)
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "boundaries")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "spatialization")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if err := c.Pipeline.RunOptions().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pipeline: %w", err))
	}
	if t := c.Pipeline.TolerancePercentage; t != nil && *t < 0 {
		errs = append(errs, fmt.Errorf("pipeline.tolerance_percentage %v is negative", *t))
	}
	if c.Database.Enabled && c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required when the database is enabled"))
	}
	if r := c.Tracing.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio %v outside [0, 1]", r))
	}
	return errors.Join(errs...)
}
