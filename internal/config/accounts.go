package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Account describes a single managed social-media account.
type Account struct {
	ID                 string   `yaml:"id" json:"id"`
	Username           string   `yaml:"username" json:"username"`
	Personality        string   `yaml:"personality" json:"personality"`
	Niche              string   `yaml:"niche" json:"niche"`
	TargetKeywords     []string `yaml:"target_keywords" json:"target_keywords"`
	CompetitorProfiles []string `yaml:"competitor_profiles" json:"competitor_profiles"`
	Active             bool     `yaml:"active" json:"active"`
}

// accountsFile is the on-disk YAML layout.
type accountsFile struct {
	Accounts []Account `yaml:"accounts"`
}

// LoadAccounts reads account definitions from a YAML file.
func LoadAccounts(path string) ([]Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	var file accountsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}

	seen := make(map[string]bool, len(file.Accounts))
	for i, acc := range file.Accounts {
		if acc.ID == "" {
			return nil, fmt.Errorf("account #%d is missing an id", i+1)
		}
		if seen[acc.ID] {
			return nil, fmt.Errorf("duplicate account id: %s", acc.ID)
		}
		seen[acc.ID] = true
	}

	return file.Accounts, nil
}
