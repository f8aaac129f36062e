package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "agent_memory", cfg.Storage.Path)
	assert.Equal(t, "zai", cfg.Agent.Provider)
	assert.Equal(t, "glm-4.7-flash", cfg.Agent.Model)
	assert.Equal(t, 0.7, cfg.Agent.DecisionThreshold)
	assert.Equal(t, 3, cfg.Agent.MaxConcurrentTasks)
	assert.Equal(t, 3, cfg.Agent.MaxConcurrentAccounts)
	assert.Equal(t, 60, cfg.Agent.CycleIntervalSeconds)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 90, cfg.Cleanup.RetentionDays)
	assert.Equal(t, "0 3 * * *", cfg.Cleanup.Schedule)
	assert.Equal(t, 30, cfg.LLM.RateLimit.RequestsPerMinute)
	assert.Equal(t, int64(2*1024*1024), cfg.Fetch.MaxResponseSize)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[agent]
provider = "mock"
decision_threshold = 0.5
max_concurrent_tasks = 5

[storage]
path = "/var/lib/feedpilot"

[logging]
level = "debug"
format = "text"
`))
	require.NoError(t, err)

	assert.Equal(t, "mock", cfg.Agent.Provider)
	assert.Equal(t, 0.5, cfg.Agent.DecisionThreshold)
	assert.Equal(t, 5, cfg.Agent.MaxConcurrentTasks)
	assert.Equal(t, "/var/lib/feedpilot", cfg.Storage.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadInvalidTOML(t *testing.T) {
	_, err := Load(writeConfig(t, "not [valid toml"))
	assert.Error(t, err)
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("FEEDPILOT_TEST_KEY", "secret-key-from-env")

	cfg, err := Load(writeConfig(t, `
[llm.zai]
api_key = "${FEEDPILOT_TEST_KEY}"
`))
	require.NoError(t, err)
	assert.Equal(t, "secret-key-from-env", cfg.LLM.ZAI.APIKey)
}

func TestEnvExpansionDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[llm.zai]
api_key = "${FEEDPILOT_UNSET_VAR:fallback-value}"
`))
	require.NoError(t, err)
	assert.Equal(t, "fallback-value", cfg.LLM.ZAI.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid mock config",
			mutate: func(c *Config) {},
		},
		{
			name:    "zai requires api key",
			mutate:  func(c *Config) { c.Agent.Provider = "zai"; c.LLM.ZAI.APIKey = "" },
			wantErr: "api_key",
		},
		{
			name:    "zai api key too short",
			mutate:  func(c *Config) { c.Agent.Provider = "zai"; c.LLM.ZAI.APIKey = "short" },
			wantErr: "too short",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Agent.Provider = "openai" },
			wantErr: "invalid agent.provider",
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *Config) { c.Agent.DecisionThreshold = 1.5 },
			wantErr: "decision_threshold",
		},
		{
			name:    "path traversal rejected",
			mutate:  func(c *Config) { c.Storage.Path = "../../etc" },
			wantErr: "path traversal",
		},
		{
			name:    "bad logging level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "metrics need listen addr",
			mutate:  func(c *Config) { c.Metrics.Enabled = true; c.Metrics.ListenAddr = "" },
			wantErr: "listen_addr",
		},
		{
			name:    "cleanup needs retention",
			mutate:  func(c *Config) { c.Cleanup.Enabled = true; c.Cleanup.RetentionDays = -1 },
			wantErr: "retention_days",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, "[agent]\nprovider = \"mock\"\n"))
			require.NoError(t, err)
			tt.mutate(cfg)

			errs := cfg.Validate()
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.NotEmpty(t, errs)
			found := false
			for _, e := range errs {
				if strings.Contains(e.Error(), tt.wantErr) {
					found = true
				}
			}
			assert.True(t, found, "expected an error containing %q, got %v", tt.wantErr, errs)
		})
	}
}

func TestLoadAccounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
accounts:
  - id: tech_account
    username: techie
    personality: curious and helpful
    niche: technology
    target_keywords: [ai, golang]
    competitor_profiles: [bigtech]
    active: true
  - id: food_account
    username: foodie
    niche: cooking
    active: false
`), 0o644))

	accounts, err := LoadAccounts(path)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, "tech_account", accounts[0].ID)
	assert.Equal(t, []string{"ai", "golang"}, accounts[0].TargetKeywords)
	assert.True(t, accounts[0].Active)
	assert.False(t, accounts[1].Active)
}

func TestLoadAccountsDuplicateID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
accounts:
  - id: same
    active: true
  - id: same
    active: true
`), 0o644))

	_, err := LoadAccounts(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoadAccountsMissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
accounts:
  - username: anonymous
`), 0o644))

	_, err := LoadAccounts(path)
	assert.Error(t, err)
}
