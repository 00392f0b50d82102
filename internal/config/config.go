package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"netflow-crawler/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Source    SourceConfig    `mapstructure:"source"`
	Session   SessionConfig   `mapstructure:"session"`
	Locator   LocatorConfig   `mapstructure:"locator"`
	Record    RecordConfig    `mapstructure:"record"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SourceConfig describes the scraped page.
type SourceConfig struct {
	URL    string `mapstructure:"url"`
	Marker string `mapstructure:"marker"`
}

// SessionConfig selects and tunes the page retrieval backend.
type SessionConfig struct {
	Driver         string        `mapstructure:"driver"`
	ChromePath     string        `mapstructure:"chrome_path"`
	Headless       bool          `mapstructure:"headless"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LocatorConfig governs row lookup retries.
type LocatorConfig struct {
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	ElementTimeout time.Duration `mapstructure:"element_timeout"`
	Retries        int           `mapstructure:"retries"`
	BackoffMin     time.Duration `mapstructure:"backoff_min"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
}

// RecordConfig 控制记录组装。
type RecordConfig struct {
	MarketMarker    string `mapstructure:"market_marker"`
	AlignTimestamps bool   `mapstructure:"align_timestamps"`
}

// SchedulerConfig governs sampling cadence.
type SchedulerConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	AlignToBucket    bool          `mapstructure:"align_to_bucket"`
	RunOnStart       bool          `mapstructure:"run_on_start"`
	StartupDelay     time.Duration `mapstructure:"startup_delay"`
	FailOnCloseError bool          `mapstructure:"fail_on_close_error"`
}

// StorageConfig locates the CSV log and the optional SQLite mirror.
type StorageConfig struct {
	CSVPath    string `mapstructure:"csv_path"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DatabaseConfig encapsulates the optional PostgreSQL mirror.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MetricsConfig exposes Prometheus metrics when Listen is set.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
	Path   string `mapstructure:"path"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NETFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "netflow-crawler")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "crawler.log")

	v.SetDefault("source.url", "https://www.coinglass.com/spot-inflow-outflow")
	v.SetDefault("source.marker", "BTC")

	v.SetDefault("session.driver", "chrome")
	v.SetDefault("session.headless", true)
	v.SetDefault("session.request_timeout", "30s")

	v.SetDefault("locator.settle_delay", "5s")
	v.SetDefault("locator.element_timeout", "10s")
	v.SetDefault("locator.retries", 3)
	v.SetDefault("locator.backoff_min", "1s")
	v.SetDefault("locator.backoff_max", "3s")

	v.SetDefault("record.market_marker", "Market")
	v.SetDefault("record.align_timestamps", false)

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.fail_on_close_error", false)

	v.SetDefault("storage.csv_path", "btc_spot_netflow.csv")

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("metrics.path", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Source.URL == "" {
		return fmt.Errorf("source.url must be set")
	}
	if strings.TrimSpace(c.Source.Marker) == "" {
		return fmt.Errorf("source.marker must be set")
	}
	switch c.Session.Driver {
	case "chrome", "http":
	default:
		return fmt.Errorf("session.driver must be chrome or http, got %q", c.Session.Driver)
	}
	if c.Locator.Retries <= 0 {
		return fmt.Errorf("locator.retries must be greater than zero")
	}
	if c.Locator.BackoffMin < 0 || c.Locator.BackoffMax < c.Locator.BackoffMin {
		return fmt.Errorf("locator.backoff_min/backoff_max 配置不合法")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.AlignToBucket && !DividesHour(c.Scheduler.Interval) {
		return fmt.Errorf("scheduler.align_to_bucket requires an interval of whole minutes dividing 60, got %s", c.Scheduler.Interval)
	}
	if c.Storage.CSVPath == "" {
		return fmt.Errorf("storage.csv_path must be set")
	}
	return nil
}

// DividesHour reports whether d is a whole number of minutes that divides an hour.
func DividesHour(d time.Duration) bool {
	if d <= 0 || d%time.Minute != 0 {
		return false
	}
	minutes := int(d / time.Minute)
	return minutes <= 60 && 60%minutes == 0
}
