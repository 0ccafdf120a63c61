// Package config loads service configuration from the environment and
// an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service settings. Interval and step values are in
// seconds, matching the environment variable conventions of the stack.
type Config struct {
	Name  string `mapstructure:"name"`
	Debug bool   `mapstructure:"debug"`
	Port  int    `mapstructure:"port"`

	MqttProtocol string `mapstructure:"mqtt_protocol"`
	MqttHost     string `mapstructure:"mqtt_host"`
	MqttPort     int    `mapstructure:"mqtt_port"`

	RedisHost string `mapstructure:"redis_host"`
	RedisPort int    `mapstructure:"redis_port"`

	VictoriaProtocol string `mapstructure:"victoria_protocol"`
	VictoriaHost     string `mapstructure:"victoria_host"`
	VictoriaPort     int    `mapstructure:"victoria_port"`
	VictoriaPath     string `mapstructure:"victoria_path"`

	HistoryTopic   string `mapstructure:"history_topic"`
	DatastoreTopic string `mapstructure:"datastore_topic"`

	RangesInterval    float64 `mapstructure:"ranges_interval"`
	MetricsInterval   float64 `mapstructure:"metrics_interval"`
	WriteInterval     float64 `mapstructure:"write_interval"`
	ReconnectInterval float64 `mapstructure:"reconnect_interval"`
	MinimumStep       float64 `mapstructure:"minimum_step"`

	QueryDurationDefault string `mapstructure:"query_duration_default"`
	QueryDesiredPoints   int64  `mapstructure:"query_desired_points"`
	MaxPendingLines      int    `mapstructure:"max_pending_lines"`

	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	RequestTimeoutSec  int      `mapstructure:"request_timeout_sec"`
	ShutdownTimeoutSec int      `mapstructure:"shutdown_timeout_sec"`
}

// Load reads configuration with BREWKIT-prefixed environment variables
// taking precedence over an optional config file and the defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/brewkit/")
	v.AddConfigPath(".")

	v.SetDefault("name", "history")
	v.SetDefault("debug", false)
	v.SetDefault("port", 5283)
	v.SetDefault("mqtt_protocol", "mqtt")
	v.SetDefault("mqtt_host", "eventbus")
	v.SetDefault("mqtt_port", 1883)
	v.SetDefault("redis_host", "redis")
	v.SetDefault("redis_port", 6379)
	v.SetDefault("victoria_protocol", "http")
	v.SetDefault("victoria_host", "victoria")
	v.SetDefault("victoria_port", 8428)
	v.SetDefault("victoria_path", "/victoria")
	v.SetDefault("history_topic", "brewcast/history")
	v.SetDefault("datastore_topic", "brewcast/datastore")
	v.SetDefault("ranges_interval", 10.0)
	v.SetDefault("metrics_interval", 10.0)
	v.SetDefault("write_interval", 1.0)
	v.SetDefault("reconnect_interval", 5.0)
	v.SetDefault("minimum_step", 10.0)
	v.SetDefault("query_duration_default", "1d")
	v.SetDefault("query_desired_points", 1000)
	v.SetDefault("max_pending_lines", 5000)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("request_timeout_sec", 30)
	v.SetDefault("shutdown_timeout_sec", 15)

	v.SetEnvPrefix("BREWKIT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file; defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// VictoriaURL is the base URL of the time-series backend, including
// its path prefix.
func (c *Config) VictoriaURL() string {
	path := c.VictoriaPath
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s:%d%s", c.VictoriaProtocol, c.VictoriaHost, c.VictoriaPort, path)
}

// RedisAddr is the host:port of the Redis datastore.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// MqttURL is the broker address in the scheme paho expects.
func (c *Config) MqttURL() string {
	protocol := c.MqttProtocol
	if protocol == "mqtt" {
		protocol = "tcp"
	}
	return fmt.Sprintf("%s://%s:%d", protocol, c.MqttHost, c.MqttPort)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Durations derived from the numeric settings.

func (c *Config) RangesIntervalDuration() time.Duration    { return seconds(c.RangesInterval) }
func (c *Config) MetricsIntervalDuration() time.Duration   { return seconds(c.MetricsInterval) }
func (c *Config) WriteIntervalDuration() time.Duration     { return seconds(c.WriteInterval) }
func (c *Config) ReconnectIntervalDuration() time.Duration { return seconds(c.ReconnectInterval) }
func (c *Config) MinimumStepDuration() time.Duration       { return seconds(c.MinimumStep) }
func (c *Config) RequestTimeout() time.Duration            { return time.Duration(c.RequestTimeoutSec) * time.Second }
func (c *Config) ShutdownTimeout() time.Duration           { return time.Duration(c.ShutdownTimeoutSec) * time.Second }
