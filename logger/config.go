package logger

import (
	"fmt"
	"slices"
)

// Config selects level, format and destination of log output.
type Config struct {
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
	Level       string `yaml:"level" mapstructure:"level"`
	// Format is json, or console (alias pretty) for humans.
	Format string `yaml:"format" mapstructure:"format"`
	// Output is stdout, stderr or discard.
	Output    string `yaml:"output" mapstructure:"output"`
	NoColor   bool   `yaml:"no_color" mapstructure:"no_color"`
	Timestamp bool   `yaml:"timestamp" mapstructure:"timestamp"`
	Caller    bool   `yaml:"caller" mapstructure:"caller"`
}

var (
	levels  = []string{"trace", "debug", "info", "warn", "error"}
	formats = []string{"json", "console", "pretty"}
	outputs = []string{"stdout", "stderr", "discard"}
)

// ApplyDefaults logs info and above to stdout with timestamps.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "console"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
	c.Timestamp = true
}

// Validate rejects unknown levels, formats and outputs.
func (c *Config) Validate() error {
	if !slices.Contains(levels, c.Level) {
		return fmt.Errorf("logging.level must be one of %v (got: %s)", levels, c.Level)
	}
	if !slices.Contains(formats, c.Format) {
		return fmt.Errorf("logging.format must be one of %v (got: %s)", formats, c.Format)
	}
	if c.Output != "" && !slices.Contains(outputs, c.Output) {
		return fmt.Errorf("logging.output must be one of %v (got: %s)", outputs, c.Output)
	}
	return nil
}
