package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"github.com/alvmarrod/tag-weaver/internal/catalog"
)

// EnvPrefix prefixes every environment override, e.g. WEAVER_PAGE_SIZE
const EnvPrefix = "WEAVER"

// Config holds all runtime configuration parameters
type Config struct {
	CatalogURL       string `mapstructure:"catalog_url"`
	PageSize         int    `mapstructure:"page_size"`
	RequestDelayMs   int    `mapstructure:"request_delay_ms"`
	RequestTimeoutMs int    `mapstructure:"request_timeout_ms"`
	UserAgent        string `mapstructure:"user_agent"`

	Store       string `mapstructure:"store"`
	DBPath      string `mapstructure:"db_path"`
	RecordsDir  string `mapstructure:"records_dir"`
	RedisAddr   string `mapstructure:"redis_addr"`
	PostgresURL string `mapstructure:"postgres_url"`
	WriteBack   bool   `mapstructure:"write_back"`

	StatePath       string `mapstructure:"state_path"`
	MetricsPath     string `mapstructure:"metrics_path"`
	MetricsAddr     string `mapstructure:"metrics_addr"`
	TraversalBudget int    `mapstructure:"traversal_budget"`
	Ephemeral       bool   `mapstructure:"ephemeral"`
	LogLevel        string `mapstructure:"log_level"`
}

// LoadConfig reads configuration from path (optional; json, yaml or env by
// extension), then applies WEAVER_* environment overrides and validates the
// result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults registers a default for every key so environment overrides
// are picked up by Unmarshal
func applyDefaults(v *viper.Viper) {
	v.SetDefault("catalog_url", catalog.DefaultURL)
	v.SetDefault("page_size", 25)
	v.SetDefault("request_delay_ms", 1000)
	v.SetDefault("request_timeout_ms", 10000)
	v.SetDefault("user_agent", "tag-weaver/0.3 (subreddit tag crawler)")

	v.SetDefault("store", "sqlite")
	v.SetDefault("db_path", "crawler.db")
	v.SetDefault("records_dir", "parsed_subreddits")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("postgres_url", "")
	v.SetDefault("write_back", false)

	v.SetDefault("state_path", "state.json")
	v.SetDefault("metrics_path", "metrics.log")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("traversal_budget", 100000)
	v.SetDefault("ephemeral", false)
	v.SetDefault("log_level", "info")
}

// validate checks that required fields are present and values are sensible
func (cfg *Config) validate() error {
	var err error

	if u, perr := url.Parse(cfg.CatalogURL); perr != nil || u.Scheme == "" || u.Host == "" {
		err = multierror.Append(err, fmt.Errorf("catalog_url must be an absolute URL"))
	}
	if cfg.RequestDelayMs < 0 {
		err = multierror.Append(err, errors.New("request_delay_ms must be >= 0"))
	}
	if cfg.RequestTimeoutMs < 1000 {
		err = multierror.Append(err, errors.New("request_timeout_ms must be >= 1000"))
	}
	if cfg.TraversalBudget < 0 {
		err = multierror.Append(err, errors.New("traversal_budget must be >= 0"))
	}

	switch cfg.Store {
	case "sqlite":
		if cfg.DBPath == "" {
			err = multierror.Append(err, errors.New("db_path is required for the sqlite store"))
		}
	case "file":
		if cfg.RecordsDir == "" {
			err = multierror.Append(err, errors.New("records_dir is required for the file store"))
		}
	case "redis":
		if cfg.RedisAddr == "" {
			err = multierror.Append(err, errors.New("redis_addr is required for the redis store"))
		}
	case "postgres":
		if cfg.PostgresURL == "" {
			err = multierror.Append(err, errors.New("postgres_url is required for the postgres store"))
		}
	case "memory":
	default:
		err = multierror.Append(err, fmt.Errorf("unknown store %q", cfg.Store))
	}

	if !cfg.Ephemeral && cfg.StatePath == "" {
		err = multierror.Append(err, errors.New("state_path is required unless ephemeral"))
	}
	if cfg.MetricsPath == "" {
		err = multierror.Append(err, errors.New("metrics_path is required"))
	}

	return err
}
