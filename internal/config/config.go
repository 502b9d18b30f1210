package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"focusly/internal/domain"
)

const (
	MinDailyLimit = 60
	MaxDailyLimit = 960
)

// Config models focusly.yml.
type Config struct {
	Workspace struct {
		Name           string `yaml:"name"`
		Role           string `yaml:"role"`
		DailyTimeLimit int    `yaml:"daily_time_limit"`
	} `yaml:"workspace"`
	Roles struct {
		DailyLimits map[string]int `yaml:"daily_limits"`
	} `yaml:"roles"`
	Scheduling struct {
		HorizonDays       int     `yaml:"horizon_days"`
		OverloadThreshold float64 `yaml:"overload_threshold"`
		OverloadWindow    int     `yaml:"overload_window"`
	} `yaml:"scheduling"`
	Logging struct {
		Level    string `yaml:"level"`
		Encoding string `yaml:"encoding"`
	} `yaml:"logging"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with fl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Workspace.Name == "" {
		return fmt.Errorf("config.workspace.name is required")
	}
	if _, err := domain.ParseRole(c.Workspace.Role); err != nil {
		return fmt.Errorf("config.workspace.role: %w", err)
	}
	if c.Workspace.DailyTimeLimit != 0 {
		if err := ValidateLimit(c.Workspace.DailyTimeLimit); err != nil {
			return fmt.Errorf("config.workspace.daily_time_limit: %w", err)
		}
	}
	for role, limit := range c.Roles.DailyLimits {
		if _, err := domain.ParseRole(role); err != nil {
			return fmt.Errorf("config.roles.daily_limits: %w", err)
		}
		if err := ValidateLimit(limit); err != nil {
			return fmt.Errorf("config.roles.daily_limits.%s: %w", role, err)
		}
	}
	if c.Scheduling.HorizonDays < 1 {
		return fmt.Errorf("config.scheduling.horizon_days must be at least 1")
	}
	if c.Scheduling.OverloadThreshold <= 0 || c.Scheduling.OverloadThreshold > 1 {
		return fmt.Errorf("config.scheduling.overload_threshold must be in (0,1]")
	}
	if c.Scheduling.OverloadWindow < 1 {
		return fmt.Errorf("config.scheduling.overload_window must be at least 1")
	}
	switch c.Logging.Encoding {
	case "", "json", "console":
	default:
		return fmt.Errorf("config.logging.encoding must be json or console")
	}
	return nil
}

// ValidateLimit checks a daily time limit in minutes.
func ValidateLimit(minutes int) error {
	if minutes < MinDailyLimit || minutes > MaxDailyLimit {
		return fmt.Errorf("daily time limit must be between %d and %d minutes, got %d", MinDailyLimit, MaxDailyLimit, minutes)
	}
	return nil
}

// DailyLimit resolves the workspace limit: explicit value, then role default, then 480.
func (c *Config) DailyLimit() int {
	if c.Workspace.DailyTimeLimit > 0 {
		return c.Workspace.DailyTimeLimit
	}
	return c.RoleLimit(domain.Role(c.Workspace.Role))
}

func (c *Config) RoleLimit(role domain.Role) int {
	if v, ok := c.Roles.DailyLimits[string(role)]; ok && v > 0 {
		return v
	}
	return 480
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "focusly.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(name string) string {
	return fmt.Sprintf(defaultTemplate, name)
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

// Default returns the default Config struct.
func Default(name string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, name))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing sections keep
// their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default("default")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `workspace:
  name: %s
  role: professional

roles:
  daily_limits:
    student: 360
    professional: 480
    business: 540
    general: 480

scheduling:
  horizon_days: 14
  overload_threshold: 0.8
  overload_window: 7

logging:
  level: info
  encoding: console
`
