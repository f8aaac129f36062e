// Package config provides configuration loading and validation for feedpilot.
// It supports TOML configuration files with environment variable expansion,
// default values, and comprehensive validation. Account definitions live in a
// separate YAML file referenced by [accounts].path.
//
// Configuration structure:
//   - [storage]: Persistent memory directory and retention settings
//   - [agent]: Planning loop behavior (cycle interval, batching, thresholds)
//   - [llm]: LLM provider configuration (Z.ai, mock)
//   - [logging]: Logging level, format, and output
//   - [accounts]: Path to the accounts YAML file
//   - [fetch]: Web page fetcher used by the content curator
//   - [metrics]: Prometheus metrics endpoint
//   - [cleanup]: Scheduled retention cleanup
//
// Environment variables can be referenced using ${VAR} or ${VAR:default}
// syntax. For example: api_key = "${ZAI_API_KEY}"
package config

// Config represents the main application configuration.
type Config struct {
	Storage  StorageConfig  `toml:"storage"`
	Agent    AgentConfig    `toml:"agent"`
	LLM      LLMConfig      `toml:"llm"`
	Logging  LoggingConfig  `toml:"logging"`
	Accounts AccountsConfig `toml:"accounts"`
	Fetch    FetchConfig    `toml:"fetch"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Cleanup  CleanupConfig  `toml:"cleanup"`
}

// StorageConfig controls where per-account memory is persisted.
type StorageConfig struct {
	Path string `toml:"path"`
}

// AgentConfig controls the planning/execution loop.
type AgentConfig struct {
	Provider              string  `toml:"provider"`                // zai, mock
	Model                 string  `toml:"model"`                   //
	MaxTokens             int     `toml:"max_tokens"`              //
	Temperature           float64 `toml:"temperature"`             //
	TimeoutSeconds        int     `toml:"timeout_seconds"`         // per LLM call
	CycleIntervalSeconds  int     `toml:"cycle_interval_seconds"`  // sleep between continuous cycles
	MaxConcurrentTasks    int     `toml:"max_concurrent_tasks"`    // decisions executed per cycle
	MaxConcurrentAccounts int     `toml:"max_concurrent_accounts"` // accounts per batch
	DecisionThreshold     float64 `toml:"decision_threshold"`      // confidence cutoff
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	ZAI       ZAIConfig `toml:"zai"`
	RateLimit struct {
		RequestsPerMinute int `toml:"requests_per_minute"`
	} `toml:"rate_limit"`
}

// ZAIConfig holds Z.ai provider settings.
type ZAIConfig struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// AccountsConfig points at the YAML accounts file.
type AccountsConfig struct {
	Path string `toml:"path"`
}

// FetchConfig controls the curator's web page fetcher.
type FetchConfig struct {
	Enabled         bool   `toml:"enabled"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	MaxResponseSize int64  `toml:"max_response_size"`
	UserAgent       string `toml:"user_agent"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// CleanupConfig controls scheduled retention cleanup.
type CleanupConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Schedule      string `toml:"schedule"` // cron expression
}
