// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/simplecrawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/simplecrawler/internal/fetcher/colly"
	"github.com/JakeFAU/simplecrawler/internal/logging"
	"github.com/JakeFAU/simplecrawler/internal/progress"
	"github.com/JakeFAU/simplecrawler/internal/storage"
	"github.com/JakeFAU/simplecrawler/internal/storage/local"
	"github.com/JakeFAU/simplecrawler/internal/telemetry"
)

// EnvPrefix is prepended to environment overrides, e.g.
// SIMPLECRAWLER_LIMITS_REQUEST_LIMIT.
const EnvPrefix = "SIMPLECRAWLER"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig    `mapstructure:"crawler" yaml:"crawler"`
	Limits   LimitsConfig     `mapstructure:"limits" yaml:"limits"`
	HTTP     HTTPConfig       `mapstructure:"http" yaml:"http"`
	Storage  storage.Config   `mapstructure:"storage" yaml:"storage"`
	Progress ProgressConfig   `mapstructure:"progress" yaml:"progress"`
	Metrics  MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Logging  logging.Config   `mapstructure:"logging" yaml:"logging"`
	Tracing  telemetry.Config `mapstructure:"tracing" yaml:"tracing"`
}

// CrawlerConfig governs the crawl session.
type CrawlerConfig struct {
	SeedURL     string `mapstructure:"seed_url" yaml:"seed_url"`
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
	FollowMode  int    `mapstructure:"follow_mode" yaml:"follow_mode"`
	Port        int    `mapstructure:"port" yaml:"port"`
}

// LimitsConfig holds the stopping thresholds. Zero disables a limit.
type LimitsConfig struct {
	RequestLimit           int   `mapstructure:"request_limit" yaml:"request_limit"`
	OnlyCountReceived      bool  `mapstructure:"only_count_received" yaml:"only_count_received"`
	ContentSizeLimit       int64 `mapstructure:"content_size_limit" yaml:"content_size_limit"`
	TrafficLimit           int64 `mapstructure:"traffic_limit" yaml:"traffic_limit"`
	CompleteRequestedFiles bool  `mapstructure:"complete_requested_files" yaml:"complete_requested_files"`
}

// HTTPConfig configures the HTTP client.
type HTTPConfig struct {
	UserAgent          string                   `mapstructure:"user_agent" yaml:"user_agent"`
	FollowRedirects    bool                     `mapstructure:"follow_redirects" yaml:"follow_redirects"`
	Delay              time.Duration            `mapstructure:"delay" yaml:"delay"`
	ConnectTimeout     time.Duration            `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout        time.Duration            `mapstructure:"read_timeout" yaml:"read_timeout"`
	Proxy              collyfetcher.ProxyConfig `mapstructure:"proxy" yaml:"proxy"`
	InsecureSkipVerify bool                     `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	BufferSize     int           `mapstructure:"buffer_size" yaml:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events" yaml:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait" yaml:"max_batch_wait"`
}

// MetricsConfig controls the optional metrics endpoint.
type MetricsConfig struct {
	// ListenAddr enables /metrics and /healthz when set, e.g. ":9090".
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// flagKeys maps command-line flag names onto configuration keys.
var flagKeys = map[string]string{
	"verbose":                  "logging.verbose",
	"seed-url":                 "crawler.seed_url",
	"concurrency":              "crawler.concurrency",
	"follow-mode":              "crawler.follow_mode",
	"port":                     "crawler.port",
	"request-limit":            "limits.request_limit",
	"only-count-received":      "limits.only_count_received",
	"content-size-limit":       "limits.content_size_limit",
	"traffic-limit":            "limits.traffic_limit",
	"complete-requested-files": "limits.complete_requested_files",
	"user-agent":               "http.user_agent",
	"follow-redirects":         "http.follow_redirects",
	"delay":                    "http.delay",
	"connect-timeout":          "http.connect_timeout",
	"read-timeout":             "http.read_timeout",
	"insecure":                 "http.insecure_skip_verify",
	"storage":                  "storage.backend",
	"base-dir":                 "storage.local.base_dir",
	"metrics-addr":             "metrics.listen_addr",
	"trace":                    "tracing.enabled",
}

// Load builds a Config from defaults, an optional file, the environment and
// any flags in flags that were set explicitly, in increasing precedence.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.concurrency", crawler.DefaultConcurrency)
	v.SetDefault("crawler.follow_mode", crawler.DefaultFollowMode.Level())
	v.SetDefault("crawler.port", 0)
	v.SetDefault("limits.request_limit", 0)
	v.SetDefault("limits.only_count_received", false)
	v.SetDefault("limits.content_size_limit", 0)
	v.SetDefault("limits.traffic_limit", 0)
	v.SetDefault("limits.complete_requested_files", false)
	v.SetDefault("http.user_agent", "simplecrawler/0.1")
	v.SetDefault("http.follow_redirects", true)
	v.SetDefault("http.delay", 0)
	v.SetDefault("http.connect_timeout", collyfetcher.DefaultConnectTimeout)
	v.SetDefault("http.read_timeout", collyfetcher.DefaultReadTimeout)
	v.SetDefault("http.insecure_skip_verify", false)
	v.SetDefault("http.proxy.host", "")
	v.SetDefault("http.proxy.port", 0)
	v.SetDefault("http.proxy.username", "")
	v.SetDefault("http.proxy.password", "")
	v.SetDefault("storage.backend", storage.BackendLocal)
	v.SetDefault("storage.local.base_dir", local.DefaultBaseDir)
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.prefix", "")
	v.SetDefault("storage.gcs.endpoint", "")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", 250*time.Millisecond)
	v.SetDefault("logging.verbose", false)
	v.SetDefault("logging.json", false)
	v.SetDefault("logging.level", "debug")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", telemetry.DefaultServiceName)
	v.SetDefault("tracing.exporter", telemetry.ExporterStdout)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Concurrency <= 0 {
		return errors.New("crawler.concurrency must be > 0")
	}
	if _, err := crawler.FollowModeFromLevel(c.Crawler.FollowMode); err != nil {
		return fmt.Errorf("crawler.follow_mode: %w", err)
	}
	if c.Crawler.Port < 0 || c.Crawler.Port > 65535 {
		return fmt.Errorf("crawler.port out of range: %d", c.Crawler.Port)
	}
	if c.Limits.RequestLimit < 0 {
		return errors.New("limits.request_limit must be >= 0")
	}
	if c.Limits.ContentSizeLimit < 0 {
		return errors.New("limits.content_size_limit must be >= 0")
	}
	if c.Limits.TrafficLimit < 0 {
		return errors.New("limits.traffic_limit must be >= 0")
	}
	if c.HTTP.Delay < 0 {
		return errors.New("http.delay must be >= 0")
	}
	if c.HTTP.ConnectTimeout < 0 || c.HTTP.ReadTimeout < 0 {
		return errors.New("http timeouts must be >= 0")
	}
	if c.HTTP.Proxy.Port < 0 || c.HTTP.Proxy.Port > 65535 {
		return fmt.Errorf("http.proxy.port out of range: %d", c.HTTP.Proxy.Port)
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return nil
}

// CrawlerOptions converts the configuration into engine options.
// An out-of-range follow mode falls back to the default; Validate reports it.
func (c Config) CrawlerOptions() crawler.Options {
	followMode, _ := crawler.FollowModeFromLevel(c.Crawler.FollowMode)
	return crawler.Options{
		RootURL:     c.Crawler.SeedURL,
		Concurrency: c.Crawler.Concurrency,
		FollowMode:  followMode,
		Port:        c.Crawler.Port,
		Limits: crawler.Limits{
			RequestLimit:           c.Limits.RequestLimit,
			OnlyCountReceived:      c.Limits.OnlyCountReceived,
			ContentSizeLimit:       c.Limits.ContentSizeLimit,
			TrafficLimit:           c.Limits.TrafficLimit,
			CompleteRequestedFiles: c.Limits.CompleteRequestedFiles,
		},
	}
}

// FetcherConfig converts the HTTP section into colly fetcher settings.
func (c Config) FetcherConfig() collyfetcher.Config {
	return collyfetcher.Config{
		UserAgent:          c.HTTP.UserAgent,
		FollowRedirects:    c.HTTP.FollowRedirects,
		ConnectTimeout:     c.HTTP.ConnectTimeout,
		ReadTimeout:        c.HTTP.ReadTimeout,
		Proxy:              c.HTTP.Proxy,
		InsecureSkipVerify: c.HTTP.InsecureSkipVerify,
	}
}

// HubConfig converts the progress section into hub settings.
func (c Config) HubConfig() progress.Config {
	return progress.Config{
		BufferSize:     c.Progress.BufferSize,
		MaxBatchEvents: c.Progress.MaxBatchEvents,
		MaxBatchWait:   c.Progress.MaxBatchWait,
	}
}
