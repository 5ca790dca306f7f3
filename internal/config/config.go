// Package config loads adhesive's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/cryguy/adhesive/internal/core"
	"github.com/cryguy/adhesive/internal/logger"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	Runtime core.BootOptions `yaml:"runtime" mapstructure:"runtime"`
	Log     logger.Config    `yaml:"log" mapstructure:"log"`
	Metrics MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	// Listen is a host:port for the /metrics endpoint. Empty disables it.
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Runtime: core.BootOptions{MemoryLimitMB: 256},
		Log:     logger.Config{Level: "info", Encoding: "console"},
	}
}

// Load reads a YAML file over the defaults. ${VAR} references are replaced
// with environment values before parsing.
func Load(filePath string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	content := substituteEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate checks option ranges.
func (c Config) Validate() error {
	if c.Runtime.MemoryLimitMB < 0 {
		return fmt.Errorf("runtime.memory_limit_mb must not be negative, got %d", c.Runtime.MemoryLimitMB)
	}
	for i, entry := range c.Runtime.Classpath {
		if strings.TrimSpace(entry) == "" {
			return fmt.Errorf("runtime.classpath[%d] is empty", i)
		}
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
