package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Config is the tkrun project configuration. Every field is optional;
// CLI flags override it.
type Config struct {
	DefaultEnvironment string                    `json:"defaultEnvironment,omitempty"`
	Environments       map[string]map[string]any `json:"environments,omitempty"`
	Timeout            int                       `json:"timeout,omitempty"` // milliseconds
	FollowRedirects    *bool                     `json:"followRedirects,omitempty"`
	MaxRedirects       int                       `json:"maxRedirects,omitempty"`
	ValidateSSL        *bool                     `json:"validateSSL,omitempty"`
	Proxy              string                    `json:"proxy,omitempty"`
	BaseURL            string                    `json:"baseURL,omitempty"`
	Headers            map[string]string         `json:"headers,omitempty"`     // Default headers for all requests
	RateLimit          float64                   `json:"rateLimit,omitempty"`   // requests per second, 0 is unlimited
	Concurrency        int                       `json:"concurrency,omitempty"` // files run at once in directory mode
	Bail               *bool                     `json:"bail,omitempty"`
	Output             string                    `json:"output,omitempty"`
	OutputFile         string                    `json:"outputFile,omitempty"`
	NoColor            *bool                     `json:"noColor,omitempty"`
	EnvFile            string                    `json:"envFile,omitempty"`
	LogLevel           string                    `json:"logLevel,omitempty"`
	LogFormat          string                    `json:"logFormat,omitempty"`
	History            string                    `json:"history,omitempty"` // sqlite database path
	MetricsFile        string                    `json:"metricsFile,omitempty"`
}

// BoolPtr returns a pointer to b, for the optional boolean fields.
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetFollowRedirects returns the follow redirects setting, defaulting to true
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, true)
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

func (c *Config) GetBail() bool {
	return getBool(c.Bail, false)
}

func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// EnvironmentNames returns the configured environment names, sorted.
func (c *Config) EnvironmentNames() []string {
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConfigFilenames contains the possible config file names, in lookup order
var ConfigFilenames = []string{
	".tkrun.json",
	"tkrun.config.json",
	".tkrunrc",
}

// LoadConfig loads configuration from the specified path or searches the
// current directory for a config file.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return config, nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.DefaultEnvironment != "" {
		result.DefaultEnvironment = other.DefaultEnvironment
	}
	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.MaxRedirects > 0 {
		result.MaxRedirects = other.MaxRedirects
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.BaseURL != "" {
		result.BaseURL = other.BaseURL
	}
	if other.RateLimit > 0 {
		result.RateLimit = other.RateLimit
	}
	if other.Concurrency > 0 {
		result.Concurrency = other.Concurrency
	}
	if other.Output != "" {
		result.Output = other.Output
	}
	if other.OutputFile != "" {
		result.OutputFile = other.OutputFile
	}
	if other.EnvFile != "" {
		result.EnvFile = other.EnvFile
	}
	if other.LogLevel != "" {
		result.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		result.LogFormat = other.LogFormat
	}
	if other.History != "" {
		result.History = other.History
	}
	if other.MetricsFile != "" {
		result.MetricsFile = other.MetricsFile
	}

	// Boolean flags - only override if explicitly set in other config
	if other.FollowRedirects != nil {
		result.FollowRedirects = other.FollowRedirects
	}
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.Bail != nil {
		result.Bail = other.Bail
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	if len(other.Headers) > 0 {
		headers := make(map[string]string, len(result.Headers)+len(other.Headers))
		for k, v := range result.Headers {
			headers[k] = v
		}
		for k, v := range other.Headers {
			headers[k] = v
		}
		result.Headers = headers
	}

	// Environments merge by name; variables inside one environment merge
	// key by key.
	if len(other.Environments) > 0 {
		envs := make(map[string]map[string]any, len(result.Environments)+len(other.Environments))
		for name, vars := range result.Environments {
			envs[name] = vars
		}
		for name, vars := range other.Environments {
			merged := make(map[string]any, len(envs[name])+len(vars))
			for k, v := range envs[name] {
				merged[k] = v
			}
			for k, v := range vars {
				merged[k] = v
			}
			envs[name] = merged
		}
		result.Environments = envs
	}

	return &result
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
