package roster

import (
	"github.com/ETS-Next-Gen/writing-observer-sub002/validation"
)

// Roster sources.
const (
	SourceFile      = "file"
	SourceHTTP      = "http"
	SourceSynthetic = "synthetic"
)

// Config selects the roster source.
type Config struct {
	Source string `mapstructure:"source"`
	// Dir holds one <course_id>.yaml (.yml, .json) file per course.
	Dir string `mapstructure:"dir"`
	// HTTP configures the http source.
	HTTP HTTPConfig `mapstructure:"http"`
	// SyntheticSize is the class size of the synthetic source.
	SyntheticSize int `mapstructure:"synthetic_size"`
}

// ApplyDefaults reads rosters from ./rosters.
func (c *Config) ApplyDefaults() {
	if c.Source == "" {
		c.Source = SourceFile
	}
	if c.Dir == "" {
		c.Dir = "./rosters"
	}
	if c.SyntheticSize <= 0 {
		c.SyntheticSize = 10
	}
	c.HTTP.applyDefaults()
}

// Validate checks the source and what it needs.
func (c *Config) Validate() error {
	v := validation.New()
	v.OneOf("source", c.Source, []string{SourceFile, SourceHTTP, SourceSynthetic})
	if c.Source == SourceHTTP {
		v.Required("http.base_url", c.HTTP.BaseURL)
		v.Min("http.retries", c.HTTP.Retries, 0)
	}
	return v.Err()
}

// NewSource builds the source named by cfg.
func NewSource(cfg Config) (Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Source {
	case SourceSynthetic:
		return Synthetic(cfg.SyntheticSize), nil
	case SourceHTTP:
		return NewHTTPSource(cfg.HTTP), nil
	}
	return NewFileSource(cfg.Dir), nil
}
