// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/sourcewatch/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `sourcewatch:` root key in YAML.
type GlobalConfig struct {
	Capture    CaptureConfig    `mapstructure:"capture" yaml:"capture"`
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Queue      QueueConfig      `mapstructure:"queue" yaml:"queue"`
	Consumer   ConsumerConfig   `mapstructure:"consumer" yaml:"consumer"`
	Reporters  []ReporterConfig `mapstructure:"reporters" yaml:"reporters"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

// ─── Capture ───

// MinSnapLen fits the longest header chain the classifier reads: Ethernet,
// two VLAN tags, IPv4 with maximum options, and a TCP header.
const MinSnapLen = 14 + 2*4 + 60 + 20

// CaptureConfig configures the AF_PACKET ingestion lanes.
type CaptureConfig struct {
	Interface   string `mapstructure:"interface" yaml:"interface"`
	Lanes       int    `mapstructure:"lanes" yaml:"lanes"` // 0 = runtime.NumCPU()
	SnapLen     int    `mapstructure:"snap_len" yaml:"snap_len"`
	BlockSize   int    `mapstructure:"block_size" yaml:"block_size"` // bytes, multiple of the page size
	NumBlocks   int    `mapstructure:"num_blocks" yaml:"num_blocks"`
	FanoutID    uint16 `mapstructure:"fanout_id" yaml:"fanout_id"`
	BPFFilter   string `mapstructure:"bpf_filter" yaml:"bpf_filter"`
	PollTimeout string `mapstructure:"poll_timeout" yaml:"poll_timeout"` // e.g. "100ms"
}

// PollTimeoutDuration returns the parsed poll timeout.
func (c CaptureConfig) PollTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.PollTimeout)
	return d
}

// ─── Classifier ───

// ClassifierConfig toggles optional classifier behaviour.
type ClassifierConfig struct {
	VLAN bool `mapstructure:"vlan" yaml:"vlan"` // strip up to two 802.1Q/802.1ad tags
}

// ─── Queue ───

// QueueConfig configures the hand-off queue.
type QueueConfig struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Capacity int    `mapstructure:"capacity" yaml:"capacity"`
}

// ─── Consumer ───

// ConsumerConfig configures the consumer loop.
type ConsumerConfig struct {
	BatchSize int    `mapstructure:"batch_size" yaml:"batch_size"`
	IdleMin   string `mapstructure:"idle_min" yaml:"idle_min"`
	IdleMax   string `mapstructure:"idle_max" yaml:"idle_max"`
}

// IdleMinDuration returns the parsed minimum idle wait.
func (c ConsumerConfig) IdleMinDuration() time.Duration {
	d, _ := time.ParseDuration(c.IdleMin)
	return d
}

// IdleMaxDuration returns the parsed maximum idle wait.
func (c ConsumerConfig) IdleMaxDuration() time.Duration {
	d, _ := time.ParseDuration(c.IdleMax)
	return d
}

// ─── Reporters ───

// ReporterConfig selects a reporter by type with free-form options.
type ReporterConfig struct {
	Type    string         `mapstructure:"type" yaml:"type"`
	Options map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format  string           `mapstructure:"format" yaml:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `sourcewatch: ...`.
type configRoot struct {
	Sourcewatch GlobalConfig `mapstructure:"sourcewatch"`
}

// Option adjusts the loader before the config is unmarshalled.
type Option func(v *viper.Viper)

// WithDefault replaces the built-in default for key (relative to the
// `sourcewatch.` root). Values from the file or env still take precedence.
func WithDefault(key string, value any) Option {
	return func(v *viper.Viper) {
		v.SetDefault("sourcewatch."+key, value)
	}
}

// Load loads configuration from file. An empty path loads defaults only.
// Env vars use the SOURCEWATCH_ prefix (e.g., SOURCEWATCH_LOG_LEVEL).
func Load(path string, opts ...Option) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `sourcewatch.` key prefix maps to `SOURCEWATCH_` in env vars via the
	// key replacer (e.g., key "sourcewatch.log.level" → env "SOURCEWATCH_LOG_LEVEL").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for _, opt := range opts {
		opt(v)
	}

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Sourcewatch

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "sourcewatch." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Capture defaults
	v.SetDefault("sourcewatch.capture.interface", "eth0")
	v.SetDefault("sourcewatch.capture.lanes", 0)
	v.SetDefault("sourcewatch.capture.snap_len", 128)
	v.SetDefault("sourcewatch.capture.block_size", 1<<20)
	v.SetDefault("sourcewatch.capture.num_blocks", 64)
	v.SetDefault("sourcewatch.capture.fanout_id", 42)
	v.SetDefault("sourcewatch.capture.bpf_filter", "")
	v.SetDefault("sourcewatch.capture.poll_timeout", "100ms")

	// Classifier defaults
	v.SetDefault("sourcewatch.classifier.vlan", false)

	// Queue defaults
	v.SetDefault("sourcewatch.queue.name", "SOURCE_ADDR_QUEUE")
	v.SetDefault("sourcewatch.queue.capacity", 1024)

	// Consumer defaults
	v.SetDefault("sourcewatch.consumer.batch_size", 64)
	v.SetDefault("sourcewatch.consumer.idle_min", "1ms")
	v.SetDefault("sourcewatch.consumer.idle_max", "50ms")

	// Metrics defaults
	v.SetDefault("sourcewatch.metrics.enabled", true)
	v.SetDefault("sourcewatch.metrics.listen", ":9091")
	v.SetDefault("sourcewatch.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("sourcewatch.log.level", "info")
	v.SetDefault("sourcewatch.log.format", "text")
	v.SetDefault("sourcewatch.log.outputs.file.enabled", false)
	v.SetDefault("sourcewatch.log.outputs.file.path", "/var/log/sourcewatch/sourcewatch.log")
	v.SetDefault("sourcewatch.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("sourcewatch.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("sourcewatch.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("sourcewatch.log.outputs.file.rotation.compress", true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
// Every validation error wraps core.ErrConfigInvalid.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return invalid("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return invalid("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return invalid("log.outputs.file.path is required when file output is enabled")
	}

	// ── Capture ──
	if cfg.Capture.Interface == "" {
		return invalid("capture.interface is required")
	}
	if cfg.Capture.Lanes < 0 {
		return invalid("capture.lanes must not be negative, got %d", cfg.Capture.Lanes)
	}
	if cfg.Capture.Lanes == 0 {
		cfg.Capture.Lanes = runtime.NumCPU()
	}
	if cfg.Capture.SnapLen < MinSnapLen {
		return invalid("capture.snap_len must be at least %d, got %d", MinSnapLen, cfg.Capture.SnapLen)
	}
	if cfg.Capture.BlockSize <= 0 || cfg.Capture.NumBlocks <= 0 {
		return invalid("capture.block_size and capture.num_blocks must be positive")
	}
	if err := checkDuration("capture.poll_timeout", cfg.Capture.PollTimeout); err != nil {
		return err
	}

	// ── Queue ──
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "SOURCE_ADDR_QUEUE"
	}
	if cfg.Queue.Capacity <= 0 {
		return invalid("queue.capacity must be positive, got %d", cfg.Queue.Capacity)
	}

	// ── Consumer ──
	if cfg.Consumer.BatchSize <= 0 {
		return invalid("consumer.batch_size must be positive, got %d", cfg.Consumer.BatchSize)
	}
	if err := checkDuration("consumer.idle_min", cfg.Consumer.IdleMin); err != nil {
		return err
	}
	if err := checkDuration("consumer.idle_max", cfg.Consumer.IdleMax); err != nil {
		return err
	}
	if cfg.Consumer.IdleMaxDuration() < cfg.Consumer.IdleMinDuration() {
		return invalid("consumer.idle_max (%s) must not be below consumer.idle_min (%s)",
			cfg.Consumer.IdleMax, cfg.Consumer.IdleMin)
	}

	// ── Reporters ──
	if len(cfg.Reporters) == 0 {
		cfg.Reporters = []ReporterConfig{{Type: "log"}}
	}
	for i, r := range cfg.Reporters {
		if r.Type == "" {
			return invalid("reporters[%d]: type is required", i)
		}
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return invalid("metrics.listen is required when metrics.enabled=true")
	}

	return nil
}

func checkDuration(key, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return invalid("%s: %v", key, err)
	}
	if d <= 0 {
		return invalid("%s must be positive, got %s", key, value)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrConfigInvalid, fmt.Sprintf(format, args...))
}
