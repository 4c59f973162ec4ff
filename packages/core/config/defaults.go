package config

import (
	"fmt"
	"strings"
)

// Outputs lists the report formats the CLI can write.
var Outputs = []string{"console", "json", "junit", "tap"}

var logLevels = []string{"debug", "info", "warn", "error"}
var logFormats = []string{"console", "json"}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Timeout:         30000, // 30 seconds
		FollowRedirects: BoolPtr(true),
		MaxRedirects:    10,
		ValidateSSL:     BoolPtr(true),
		Concurrency:     1,
		Bail:            BoolPtr(false),
		Output:          "console",
		NoColor:         BoolPtr(false),
		LogLevel:        "warn",
		LogFormat:       "console",
	}
}

// Validate rejects values no command could use.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rateLimit must not be negative")
	}
	if c.Output != "" && !oneOf(c.Output, Outputs) {
		return fmt.Errorf("unknown output %q (expected one of %s)", c.Output, strings.Join(Outputs, ", "))
	}
	if c.LogLevel != "" && !oneOf(c.LogLevel, logLevels) {
		return fmt.Errorf("unknown log level %q (expected one of %s)", c.LogLevel, strings.Join(logLevels, ", "))
	}
	if c.LogFormat != "" && !oneOf(c.LogFormat, logFormats) {
		return fmt.Errorf("unknown log format %q (expected one of %s)", c.LogFormat, strings.Join(logFormats, ", "))
	}
	if c.DefaultEnvironment != "" && len(c.Environments) > 0 {
		if _, ok := c.Environments[c.DefaultEnvironment]; !ok {
			return fmt.Errorf("defaultEnvironment %q is not defined in environments", c.DefaultEnvironment)
		}
	}
	return nil
}

func oneOf(v string, options []string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
