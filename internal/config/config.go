package config

import (
	"fmt"
	"strings"
	"time"

	"mercari/monitor/internal/domain"
	"mercari/monitor/internal/quality"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Search      SearchConfig      `mapstructure:"search"`
	Scraper     ScraperConfig     `mapstructure:"scraper"`
	Retry       RetryConfig       `mapstructure:"retry"`
	ImageFilter ImageFilterConfig `mapstructure:"image_filter"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
}

// MonitorConfig drives the acquisition loop.
type MonitorConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	MaxItemsPerCheck int           `mapstructure:"max_items_per_check"`
	ResultsDir       string        `mapstructure:"results_dir"`
	NGWords          []string      `mapstructure:"ng_words"`
	OKWords          []string      `mapstructure:"ok_words"`
}

// SearchConfig lists what to watch and under which conditions.
type SearchConfig struct {
	Keywords   []string                `mapstructure:"keywords"`
	Conditions domain.SearchConditions `mapstructure:"conditions"`
}

// ScraperConfig holds marketplace HTTP access configuration.
type ScraperConfig struct {
	BaseURL              string   `mapstructure:"base_url"`
	Timeout              int      `mapstructure:"timeout"`
	MaxRequestsPerSecond int      `mapstructure:"max_requests_per_second"`
	UserAgent            string   `mapstructure:"user_agent"`
	CoolOffMinutes       int      `mapstructure:"cool_off_minutes"`
	Proxies              []string `mapstructure:"proxies"`
}

// RetryConfig feeds the retry executor policy.
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
}

// ImageFilterConfig tunes near-duplicate rejection and the quality
// classifier. The empirical constants are deliberately configurable.
type ImageFilterConfig struct {
	Enabled          bool               `mapstructure:"enabled"`
	HammingThreshold int                `mapstructure:"hamming_threshold"`
	Quality          quality.Thresholds `mapstructure:"quality"`
}

// NotifyConfig wires the downstream notification channels.
type NotifyConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	DiscordWebhookURL string `mapstructure:"discord_webhook_url"`
	LineToken         string `mapstructure:"line_token"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// RedisConfig holds Redis connection details
type RedisConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Password      string `mapstructure:"password"`
	Database      int    `mapstructure:"database"`
	ConsumerGroup string `mapstructure:"consumer_group"`
	MinIdleTime   int    `mapstructure:"min_idle_time"`
}

// Load loads configuration from YAML file with environment variable overrides
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("config.yaml file not found in current directory")
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if len(config.Search.Keywords) == 0 {
		return nil, fmt.Errorf("search.keywords must list at least one keyword")
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("monitor.interval", "60s")
	viper.SetDefault("monitor.max_items_per_check", 30)
	viper.SetDefault("monitor.results_dir", "results")

	viper.SetDefault("search.conditions.status", "on_sale")
	viper.SetDefault("search.conditions.sort", "created_time")
	viper.SetDefault("search.conditions.order", "desc")

	viper.SetDefault("scraper.base_url", "https://jp.mercari.com")
	viper.SetDefault("scraper.timeout", 30)
	viper.SetDefault("scraper.max_requests_per_second", 1)
	viper.SetDefault("scraper.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	viper.SetDefault("scraper.cool_off_minutes", 30)

	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.base_delay", "1s")
	viper.SetDefault("retry.max_delay", "60s")
	viper.SetDefault("retry.backoff_multiplier", 2.0)

	viper.SetDefault("image_filter.enabled", true)
	viper.SetDefault("image_filter.hamming_threshold", 4)
	viper.SetDefault("image_filter.quality.white_channel_min", 240)
	viper.SetDefault("image_filter.quality.white_border_ratio", 0.8)
	viper.SetDefault("image_filter.quality.min_resolution", 300)
	viper.SetDefault("image_filter.quality.brightness_min", 100)
	viper.SetDefault("image_filter.quality.brightness_max", 200)
	viper.SetDefault("image_filter.quality.contrast_min", 30)
	viper.SetDefault("image_filter.quality.sharpness_min", 100)
	viper.SetDefault("image_filter.quality.pass_ratio", 0.6)

	viper.SetDefault("notify.enabled", false)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "mercari")
	viper.SetDefault("database.user", "mercari_user")
	viper.SetDefault("database.password", "mercari_pass")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.database", 0)
	viper.SetDefault("redis.consumer_group", "mercari_consumer")
	viper.SetDefault("redis.min_idle_time", 120)
}
