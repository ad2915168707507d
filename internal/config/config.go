package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/pulsr/internal/logger"
	"github.com/spf13/viper"
)

const (
	DefaultProcessExpirationInSeconds = 30
	DefaultMonitorIntervalInSeconds   = 5

	// EnvPrefix is prepended to upper-cased keys, e.g.
	// PULSR_HEARTBEAT_PROCESS_EXPIRATION_IN_SECONDS.
	EnvPrefix = "PULSR"
)

// HeartbeatSettings is consumed by the registry and the monitor.
type HeartbeatSettings struct {
	ProcessExpirationInSeconds int  `toml:"process_expiration_in_seconds" mapstructure:"process_expiration_in_seconds"`
	MonitorIntervalInSeconds   int  `toml:"monitor_interval_in_seconds" mapstructure:"monitor_interval_in_seconds"`
	StrictRenew                bool `toml:"strict_renew" mapstructure:"strict_renew"`
}

// Expiration returns the TTL applied to newly created records.
func (h HeartbeatSettings) Expiration() time.Duration {
	return time.Duration(h.ProcessExpirationInSeconds) * time.Second
}

// Interval returns the monitor tick period.
func (h HeartbeatSettings) Interval() time.Duration {
	return time.Duration(h.MonitorIntervalInSeconds) * time.Second
}

type TLSConfig struct {
	Enabled      bool        `toml:"enabled" mapstructure:"enabled"`
	CertFile     string      `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string      `toml:"key_file" mapstructure:"key_file"`
	Dir          string      `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool        `toml:"auto_generate" mapstructure:"auto_generate"`
	AutoGen      *AutoGenTLS `toml:"auto_gen" mapstructure:"auto_gen"`
}

type AutoGenTLS struct {
	CommonName   string   `toml:"common_name" mapstructure:"common_name"`
	Organization string   `toml:"organization" mapstructure:"organization"`
	DNSNames     []string `toml:"dns_names" mapstructure:"dns_names"`
	IPAddresses  []string `toml:"ip_addresses" mapstructure:"ip_addresses"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
}

type ServerConfig struct {
	Listen        string     `toml:"listen" mapstructure:"listen"`
	BasePath      string     `toml:"base_path" mapstructure:"base_path"`
	TLSMinVersion string     `toml:"tls_min_version" mapstructure:"tls_min_version"`
	TLSMaxVersion string     `toml:"tls_max_version" mapstructure:"tls_max_version"`
	TLS           *TLSConfig `toml:"tls" mapstructure:"tls"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// Logger converts the file section into logger.Config.
func (l LogConfig) Logger() logger.Config {
	return logger.Config{
		Level:      l.Level,
		Format:     l.Format,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
	}
}

type HistoryConfig struct {
	Enabled    bool   `toml:"enabled" mapstructure:"enabled"`
	DSN        string `toml:"dsn" mapstructure:"dsn"`
	Renewals   bool   `toml:"renewals" mapstructure:"renewals"`
	BufferSize int    `toml:"buffer_size" mapstructure:"buffer_size"`
}

// Config is the process-wide configuration. It is built once at startup and
// handed to constructors by value; nothing re-reads it afterwards.
type Config struct {
	Heartbeat HeartbeatSettings `toml:"heartbeat" mapstructure:"heartbeat"`
	Server    ServerConfig      `toml:"server" mapstructure:"server"`
	Metrics   MetricsConfig     `toml:"metrics" mapstructure:"metrics"`
	Log       LogConfig         `toml:"log" mapstructure:"log"`
	History   HistoryConfig     `toml:"history" mapstructure:"history"`
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("heartbeat.process_expiration_in_seconds", d.Heartbeat.ProcessExpirationInSeconds)
	v.SetDefault("heartbeat.monitor_interval_in_seconds", d.Heartbeat.MonitorIntervalInSeconds)
	v.SetDefault("heartbeat.strict_renew", d.Heartbeat.StrictRenew)
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.base_path", d.Server.BasePath)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.dsn", d.History.DSN)
	v.SetDefault("history.renewals", d.History.Renewals)
	v.SetDefault("history.buffer_size", d.History.BufferSize)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the built-in configuration, without file or environment.
func Default() *Config {
	return &Config{
		Heartbeat: HeartbeatSettings{
			ProcessExpirationInSeconds: DefaultProcessExpirationInSeconds,
			MonitorIntervalInSeconds:   DefaultMonitorIntervalInSeconds,
		},
		Server:  ServerConfig{Listen: ":8080", BasePath: "/api"},
		Metrics: MetricsConfig{Listen: ":9090"},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  logger.DefaultMaxSizeMB,
			MaxBackups: logger.DefaultMaxBackups,
			MaxAgeDays: logger.DefaultMaxAgeDays,
		},
	}
}

// FromEnv returns the defaults with PULSR_* environment overrides applied.
// It is used when the daemon starts without a config file.
func FromEnv() (*Config, error) {
	return decode(newViper(), "environment")
}

// LoadConfig reads a TOML file, applies PULSR_* environment overrides and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(v, path)
}

func decode(v *viper.Viper, source string) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", source, err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// normalize replaces non-positive heartbeat values with defaults.
func (c *Config) normalize() {
	if c.Heartbeat.ProcessExpirationInSeconds <= 0 {
		c.Heartbeat.ProcessExpirationInSeconds = DefaultProcessExpirationInSeconds
	}
	if c.Heartbeat.MonitorIntervalInSeconds <= 0 {
		c.Heartbeat.MonitorIntervalInSeconds = DefaultMonitorIntervalInSeconds
	}
}

var (
	ErrHistoryDSN = errors.New("history.dsn is required when history is enabled")
	ErrServerTLS  = errors.New("server.tls enabled without cert_file/key_file or dir")
)

// Validate checks the values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if c.Heartbeat.ProcessExpirationInSeconds <= 0 {
		return fmt.Errorf("heartbeat.process_expiration_in_seconds must be positive, got %d", c.Heartbeat.ProcessExpirationInSeconds)
	}
	if c.Heartbeat.MonitorIntervalInSeconds <= 0 {
		return fmt.Errorf("heartbeat.monitor_interval_in_seconds must be positive, got %d", c.Heartbeat.MonitorIntervalInSeconds)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if !logger.ValidFormat(c.Log.Format) {
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	if c.History.Enabled && strings.TrimSpace(c.History.DSN) == "" {
		return ErrHistoryDSN
	}
	if t := c.Server.TLS; t != nil && t.Enabled {
		if (t.CertFile == "" || t.KeyFile == "") && t.Dir == "" {
			return ErrServerTLS
		}
	}
	return nil
}

// Warnings reports settings that are legal but defeat keep-alive renewal.
// The interval/expiration relationship is a deployment concern and is not enforced.
func (c *Config) Warnings() []string {
	var out []string
	if c.Heartbeat.MonitorIntervalInSeconds >= c.Heartbeat.ProcessExpirationInSeconds {
		out = append(out, fmt.Sprintf(
			"heartbeat.monitor_interval_in_seconds (%d) is not smaller than heartbeat.process_expiration_in_seconds (%d); keep-alive processes may expire between monitor ticks",
			c.Heartbeat.MonitorIntervalInSeconds, c.Heartbeat.ProcessExpirationInSeconds))
	}
	return out
}
