package config

import (
	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
	"github.com/ETS-Next-Gen/writing-observer-sub002/validation"
)

// Deployment environments.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

var environments = []string{EnvDevelopment, EnvStaging, EnvProduction}

// ServiceConfig names the binary and its deployment. AppConfig embeds it
// squashed, so these keys sit at the top level of config.yml.
type ServiceConfig struct {
	Name        string        `yaml:"name" mapstructure:"name"`
	Environment string        `yaml:"environment" mapstructure:"environment"`
	Version     string        `yaml:"version" mapstructure:"version"`
	Debug       bool          `yaml:"debug" mapstructure:"debug"`
	Logging     logger.Config `yaml:"logging" mapstructure:"logging"`
}

// ApplyDefaults assumes development, where Debug is on and an unset log
// level means debug. Log lines carry the service name.
func (c *ServiceConfig) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}
	c.Debug = c.Debug || c.Environment == EnvDevelopment
	if c.Debug && c.Logging.Level == "" {
		c.Logging.Level = "debug"
	}
	if c.Logging.ServiceName == "" {
		c.Logging.ServiceName = c.Name
	}
	c.Logging.ApplyDefaults()
}

// Validate reports a missing name, an unknown environment and bad
// logging settings together.
func (c *ServiceConfig) Validate() error {
	v := validation.New().At("config")
	v.Required("name", c.Name)
	v.OneOf("environment", c.Environment, environments)
	if err := c.Logging.Validate(); err != nil {
		v.Addf("logging", "%v", err)
	}
	return v.Err()
}

// GetServiceConfig returns c. Types embedding ServiceConfig satisfy
// bootstrap.Config through this promoted method.
func (c *ServiceConfig) GetServiceConfig() *ServiceConfig { return c }
