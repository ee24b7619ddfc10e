// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"firestige.xyz/dissect/internal/core"
)

// Config represents the top-level configuration.
// Maps to the `dissect:` root key in YAML.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Capture CaptureConfig `mapstructure:"capture"`
	Decoder DecoderConfig `mapstructure:"decoder"`
	Output  OutputConfig  `mapstructure:"output"`
	Filter  FilterConfig  `mapstructure:"filter"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string        `mapstructure:"level"`   // trace / debug / info / warn / error
	Pattern string        `mapstructure:"pattern"` // %time %level %field %msg %caller %func %goroutine
	Time    string        `mapstructure:"time"`    // Go time layout
	File    FileLogConfig `mapstructure:"file"`
}

// FileLogConfig configures the rotating log file.
type FileLogConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // Days
	Compress   bool   `mapstructure:"compress"`
}

// ─── Capture File ───

// CaptureConfig configures the capture file writer.
type CaptureConfig struct {
	LinkType uint32 `mapstructure:"link_type"` // 1 = Ethernet
	Output   string `mapstructure:"output"`    // Capture file written by `record` and `decode --write`
}

// ─── Decoder ───

// DecoderConfig configures the dissector chain.
type DecoderConfig struct {
	Payload bool `mapstructure:"payload"` // Best-effort text decoding of TCP/UDP payloads
}

// ─── Output ───

// OutputConfig configures how observations are printed.
type OutputConfig struct {
	Format  string `mapstructure:"format"`  // text | json | yaml | log
	Hexdump bool   `mapstructure:"hexdump"` // Append payload bytes in text format
	Width   int    `mapstructure:"width"`   // Hexdump line width
}

// ─── Filter ───

// FilterConfig selects frames before decoding.
type FilterConfig struct {
	Protocol string `mapstructure:"protocol"` // "" | tcp | udp | icmp
	Port     int    `mapstructure:"port"`     // 0 = any
}

// ─── Loading ───

const rootKey = "dissect"

// configRoot is the top-level wrapper matching the YAML structure `dissect: ...`.
type configRoot struct {
	Dissect Config `mapstructure:"dissect"`
}

// Load loads configuration from path. An empty path loads defaults and
// environment overrides only. Env vars use the DISSECT_ prefix
// (e.g. DISSECT_LOG_LEVEL).
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `dissect.` key prefix maps to DISSECT_ through the replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Dissect

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Log
	v.SetDefault(rootKey+".log.level", "info")
	v.SetDefault(rootKey+".log.pattern", "%time [%level] %field %msg%n")
	v.SetDefault(rootKey+".log.time", "2006-01-02 15:04:05.000")
	v.SetDefault(rootKey+".log.file.enabled", false)
	v.SetDefault(rootKey+".log.file.filename", "/var/log/dissect/dissect.log")
	v.SetDefault(rootKey+".log.file.max_size", 100)
	v.SetDefault(rootKey+".log.file.max_backups", 5)
	v.SetDefault(rootKey+".log.file.max_age", 30)
	v.SetDefault(rootKey+".log.file.compress", true)

	// Capture file
	v.SetDefault(rootKey+".capture.link_type", 1)
	v.SetDefault(rootKey+".capture.output", "")

	// Decoder
	v.SetDefault(rootKey+".decoder.payload", true)

	// Output
	v.SetDefault(rootKey+".output.format", "text")
	v.SetDefault(rootKey+".output.hexdump", false)
	v.SetDefault(rootKey+".output.width", 80)

	// Filter
	v.SetDefault(rootKey+".filter.protocol", "")
	v.SetDefault(rootKey+".filter.port", 0)
}

// Validate checks field values.
func (cfg *Config) Validate() error {
	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level %q", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Filename == "" {
		return fmt.Errorf("%w: log.file.filename is required when file logging is enabled", core.ErrConfigInvalid)
	}

	if cfg.Capture.LinkType == 0 || cfg.Capture.LinkType > 0xFFFF {
		return fmt.Errorf("%w: capture.link_type %d out of range", core.ErrConfigInvalid, cfg.Capture.LinkType)
	}

	switch cfg.Output.Format {
	case "text", "json", "yaml", "log":
	default:
		return fmt.Errorf("%w: output.format %q (must be text, json, yaml or log)", core.ErrConfigInvalid, cfg.Output.Format)
	}
	if cfg.Output.Width < 16 {
		return fmt.Errorf("%w: output.width %d below 16", core.ErrConfigInvalid, cfg.Output.Width)
	}

	switch strings.ToLower(cfg.Filter.Protocol) {
	case "", "tcp", "udp", "icmp":
	default:
		return fmt.Errorf("%w: filter.protocol %q", core.ErrConfigInvalid, cfg.Filter.Protocol)
	}
	if cfg.Filter.Port < 0 || cfg.Filter.Port > 0xFFFF {
		return fmt.Errorf("%w: filter.port %d out of range", core.ErrConfigInvalid, cfg.Filter.Port)
	}
	if cfg.Filter.Port != 0 && strings.EqualFold(cfg.Filter.Protocol, "icmp") {
		return fmt.Errorf("%w: filter.port cannot be combined with icmp", core.ErrConfigInvalid)
	}
	return nil
}
