package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data    DataConfig    `yaml:"data" mapstructure:"data"`
	Sink    SinkConfig    `yaml:"sink" mapstructure:"sink"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Profile ProfileConfig `yaml:"profile" mapstructure:"profile"`
	Ingest  IngestConfig  `yaml:"ingest" mapstructure:"ingest"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the on-disk working tree: manifests, blobs, profiles,
// and extraction configs.
type DataConfig struct {
	Dir          string `yaml:"dir" mapstructure:"dir"`
	ManifestFile string `yaml:"manifest_file" mapstructure:"manifest_file"`
}

// SinkConfig configures the canonical sink backend.
type SinkConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// FetchConfig configures the multi-source fetcher and its retry policy.
type FetchConfig struct {
	UserAgent        string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Workers          int     `yaml:"workers" mapstructure:"workers"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	HostRateLimit    float64 `yaml:"host_rate_limit" mapstructure:"host_rate_limit"` // requests/sec per host
	HostBurst        int     `yaml:"host_burst" mapstructure:"host_burst"`
}

// ProfileConfig configures the schema profiler. Thresholds are operator
// tunables, not hardcoded law.
type ProfileConfig struct {
	SampleRows       int     `yaml:"sample_rows" mapstructure:"sample_rows"`
	RoleConfidence   float64 `yaml:"role_confidence" mapstructure:"role_confidence"`
	SentinelFraction float64 `yaml:"sentinel_fraction" mapstructure:"sentinel_fraction"`
	MinPayerColumns  int     `yaml:"min_payer_columns" mapstructure:"min_payer_columns"`
	HeaderScanRows   int     `yaml:"header_scan_rows" mapstructure:"header_scan_rows"`
}

// IngestConfig configures the normalizer.
type IngestConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PRICING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.manifest_file", "sources.yaml")
	v.SetDefault("sink.driver", "sqlite")
	v.SetDefault("sink.sqlite_path", "pricing.db")
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("fetch.timeout_secs", 300)
	v.SetDefault("fetch.workers", 8)
	v.SetDefault("fetch.max_attempts", 4)
	v.SetDefault("fetch.initial_backoff_ms", 500)
	v.SetDefault("fetch.max_backoff_ms", 30000)
	v.SetDefault("fetch.jitter_fraction", 0.25)
	v.SetDefault("fetch.host_rate_limit", 2)
	v.SetDefault("fetch.host_burst", 4)
	v.SetDefault("profile.sample_rows", 500)
	v.SetDefault("profile.role_confidence", 0.6)
	v.SetDefault("profile.sentinel_fraction", 0.3)
	v.SetDefault("profile.min_payer_columns", 2)
	v.SetDefault("profile.header_scan_rows", 10)
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
