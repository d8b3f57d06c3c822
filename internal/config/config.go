package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models budgetline.yml.
type Config struct {
	Company struct {
		ID       string `yaml:"id"`
		Name     string `yaml:"name"`
		Currency string `yaml:"currency"`
	} `yaml:"company"`
	Budget struct {
		// LockPastMonths makes the engine reject edits to months that are
		// already in the past, instead of leaving that to clients.
		LockPastMonths bool `yaml:"lock_past_months"`
		DefaultYear    int  `yaml:"default_year"`
	} `yaml:"budget"`
	RBAC struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// WebhookConfig describes one outbound event subscription.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with bl config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Company.ID == "" {
		return fmt.Errorf("config.company.id is required")
	}
	if c.Company.Currency == "" {
		return fmt.Errorf("config.company.currency is required")
	}
	if len(c.RBAC.Roles) > 0 {
		if _, ok := c.RBAC.Roles["owner"]; !ok {
			return fmt.Errorf("config.rbac.roles must include owner")
		}
		for roleID, role := range c.RBAC.Roles {
			if roleID == "" {
				return fmt.Errorf("config.rbac.roles contains empty role id")
			}
			for _, perm := range role.Permissions {
				if perm == "" {
					return fmt.Errorf("role %s has empty permission id", roleID)
				}
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "budgetline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(companyID string) string {
	return fmt.Sprintf(defaultTemplate, companyID, companyID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a company.
func Default(companyID string) *Config {
	var cfg Config
	cfg.Company.ID = companyID
	cfg.Company.Currency = "EUR"
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(companyID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `company:
  id: %s
  name: %s
  currency: EUR

budget:
  lock_past_months: false
  default_year: 0

rbac:
  roles:
    owner:
      description: "Full control over company data"
      permissions:
        - budget.edit
        - budget.submit
        - budget.approve
        - budget.delete
        - process.edit
        - process.submit
        - process.approve
        - process.delete
        - transaction.edit
        - company.admin
    controller:
      description: "Approves budgets and schedules"
      permissions:
        - budget.approve
        - process.approve
    editor:
      description: "Edits and submits budgets and schedules"
      permissions:
        - budget.edit
        - budget.submit
        - process.edit
        - process.submit
        - transaction.edit
    viewer:
      description: "Read-only access"
      permissions: []
`
