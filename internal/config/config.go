// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. COUNTRYD_SERVER_PORT.
const EnvPrefix = "COUNTRYD"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Lookup    LookupConfig    `mapstructure:"lookup"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port" validate:"gt=0,lt=65536"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key" validate:"required_if=Enabled true"`
}

// DirectoryConfig points the crawl tasks at the upstream country directory.
type DirectoryConfig struct {
	BaseURL               string `mapstructure:"base_url" validate:"required,url"`
	UserAgent             string `mapstructure:"user_agent" validate:"required"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds" validate:"gt=0"`
}

// CrawlerConfig governs the crawl engine.
type CrawlerConfig struct {
	Workers           int `mapstructure:"workers" validate:"gt=0"`
	QueueDepth        int `mapstructure:"queue_depth" validate:"gt=0"`
	DelayMs           int `mapstructure:"delay_ms" validate:"gte=0"`
	DispatchTimeoutMs int `mapstructure:"dispatch_timeout_ms" validate:"gt=0"`
}

// LookupConfig bounds how long a caller waits for a crawl outcome.
type LookupConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds" validate:"gt=0"`
	PollIntervalMs int `mapstructure:"poll_interval_ms" validate:"gt=0"`
}

// PubSubConfig holds metadata for completion notifications. Leaving the
// project empty keeps events in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name" validate:"required_with=ProjectID"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TelemetryConfig names the service in exported traces. Spans are exported
// to Cloud Trace only when ProjectID is set.
type TelemetryConfig struct {
	ServiceName    string `mapstructure:"service_name" validate:"required"`
	ServiceVersion string `mapstructure:"service_version"`
	ProjectID      string `mapstructure:"project_id"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("directory.base_url", "https://restcountries.com/v3.1")
	v.SetDefault("directory.user_agent", "countryd/0.1")
	v.SetDefault("directory.request_timeout_seconds", 8)
	v.SetDefault("crawler.workers", 4)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.delay_ms", 500)
	v.SetDefault("crawler.dispatch_timeout_ms", 2000)
	v.SetDefault("lookup.timeout_seconds", 10)
	v.SetDefault("lookup.poll_interval_ms", 100)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.service_name", "countryd")
	v.SetDefault("telemetry.service_version", "dev")
	v.SetDefault("telemetry.project_id", "")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report errors using config keys rather than Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s", describe(verrs[0]))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.PollInterval() >= c.LookupTimeout() {
		return errors.New("invalid config: lookup.poll_interval_ms must be shorter than lookup.timeout_seconds")
	}
	if c.DispatchTimeout() >= c.LookupTimeout() {
		return errors.New("invalid config: crawler.dispatch_timeout_ms must be shorter than lookup.timeout_seconds")
	}
	return nil
}

func describe(fe validator.FieldError) string {
	// Namespace is "Config.section.key"; drop the root type.
	key := fe.Namespace()
	if i := strings.IndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	switch fe.Tag() {
	case "required", "required_if", "required_with":
		return fmt.Sprintf("%s must be set", key)
	case "url":
		return fmt.Sprintf("%s must be an absolute URL", key)
	case "gt":
		return fmt.Sprintf("%s must be > %s", key, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", key, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be < %s", key, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", key)
	}
}

// RequestTimeout is the per-request timeout for upstream fetches.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Directory.RequestTimeoutSeconds) * time.Second
}

// CrawlDelay is the engine-wide politeness delay.
func (c Config) CrawlDelay() time.Duration {
	return time.Duration(c.Crawler.DelayMs) * time.Millisecond
}

// DispatchTimeout bounds how long a dispatch may wait on a full queue.
func (c Config) DispatchTimeout() time.Duration {
	return time.Duration(c.Crawler.DispatchTimeoutMs) * time.Millisecond
}

// LookupTimeout is the total budget a caller waits for an outcome.
func (c Config) LookupTimeout() time.Duration {
	return time.Duration(c.Lookup.TimeoutSeconds) * time.Second
}

// PollInterval is the result store polling cadence.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Lookup.PollIntervalMs) * time.Millisecond
}
