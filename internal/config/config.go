package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads configuration from a TOML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	expandEnvVars(&cfg)

	return &cfg, nil
}

// Validate checks configuration validity and returns all problems found.
func (c *Config) Validate() []error {
	var errors []error

	if c.Storage.Path == "" {
		errors = append(errors, fmt.Errorf("storage.path is required"))
	} else if strings.Contains(c.Storage.Path, "..") {
		errors = append(errors, fmt.Errorf("storage.path contains potentially dangerous path traversal sequence"))
	}

	switch c.Agent.Provider {
	case "":
		errors = append(errors, fmt.Errorf("agent.provider is required"))
	case "zai":
		if c.LLM.ZAI.APIKey == "" {
			errors = append(errors, fmt.Errorf("llm.zai.api_key is required when provider is 'zai'"))
		} else if len(c.LLM.ZAI.APIKey) < 10 {
			errors = append(errors, fmt.Errorf("llm.zai.api_key is too short (minimum 10 characters, got %d)", len(c.LLM.ZAI.APIKey)))
		}
	case "mock":
		// No credentials needed
	default:
		errors = append(errors, fmt.Errorf("invalid agent.provider: %s (expected: zai, mock)", c.Agent.Provider))
	}

	if c.Agent.DecisionThreshold < 0 || c.Agent.DecisionThreshold > 1 {
		errors = append(errors, fmt.Errorf("agent.decision_threshold must be in [0,1], got %v", c.Agent.DecisionThreshold))
	}

	if c.Logging.Level == "" {
		errors = append(errors, fmt.Errorf("logging.level is required"))
	} else {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[strings.ToLower(c.Logging.Level)] {
			errors = append(errors, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
		}
	}

	if c.Logging.Format == "" {
		errors = append(errors, fmt.Errorf("logging.format is required"))
	} else {
		validFormats := map[string]bool{"json": true, "text": true}
		if !validFormats[strings.ToLower(c.Logging.Format)] {
			errors = append(errors, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
		}
	}

	if c.Accounts.Path == "" {
		errors = append(errors, fmt.Errorf("accounts.path is required"))
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		errors = append(errors, fmt.Errorf("metrics.listen_addr is required when metrics are enabled"))
	}

	if c.Cleanup.Enabled && c.Cleanup.RetentionDays <= 0 {
		errors = append(errors, fmt.Errorf("cleanup.retention_days must be positive when cleanup is enabled"))
	}

	return errors
}

// applyDefaults fills in default values.
func applyDefaults(c *Config) {
	if c.Storage.Path == "" {
		c.Storage.Path = "agent_memory"
	}

	if c.Agent.Provider == "" {
		c.Agent.Provider = "zai"
	}
	if c.Agent.Model == "" {
		c.Agent.Model = "glm-4.7-flash"
	}
	if c.Agent.MaxTokens == 0 {
		c.Agent.MaxTokens = 1000
	}
	if c.Agent.Temperature == 0 {
		c.Agent.Temperature = 0.3
	}
	if c.Agent.TimeoutSeconds == 0 {
		c.Agent.TimeoutSeconds = 60
	}
	if c.Agent.CycleIntervalSeconds == 0 {
		c.Agent.CycleIntervalSeconds = 60
	}
	if c.Agent.MaxConcurrentTasks == 0 {
		c.Agent.MaxConcurrentTasks = 3
	}
	if c.Agent.MaxConcurrentAccounts == 0 {
		c.Agent.MaxConcurrentAccounts = 3
	}
	if c.Agent.DecisionThreshold == 0 {
		c.Agent.DecisionThreshold = 0.7
	}

	if c.LLM.ZAI.BaseURL == "" {
		c.LLM.ZAI.BaseURL = "https://api.z.ai/api/coding/paas/v4"
	}
	if c.LLM.RateLimit.RequestsPerMinute == 0 {
		c.LLM.RateLimit.RequestsPerMinute = 30
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Accounts.Path == "" {
		c.Accounts.Path = "accounts.yaml"
	}

	if c.Fetch.TimeoutSeconds == 0 {
		c.Fetch.TimeoutSeconds = 30
	}
	if c.Fetch.MaxResponseSize == 0 {
		c.Fetch.MaxResponseSize = 2 * 1024 * 1024
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "feedpilot/1.0"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9190"
	}

	if c.Cleanup.RetentionDays == 0 {
		c.Cleanup.RetentionDays = 90
	}
	if c.Cleanup.Schedule == "" {
		c.Cleanup.Schedule = "0 3 * * *"
	}
}

// expandEnvVars expands environment references in string settings.
func expandEnvVars(c *Config) {
	c.LLM.ZAI.APIKey = expandEnv(c.LLM.ZAI.APIKey)
	c.Storage.Path = expandHome(expandEnv(c.Storage.Path))
	c.Accounts.Path = expandHome(expandEnv(c.Accounts.Path))
	c.Logging.Output = expandHome(c.Logging.Output)
}

// expandEnv expands a ${VAR} or ${VAR:default} reference.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	if parts := strings.SplitN(content, ":", 2); len(parts) == 2 {
		if val := os.Getenv(parts[0]); val != "" {
			return val
		}
		return parts[1]
	}

	return os.Getenv(content)
}

// expandHome expands a leading ~ in a path.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
