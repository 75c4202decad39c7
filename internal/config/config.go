package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models voluna.yml.
type Config struct {
	Org struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"org"`
	Badges struct {
		Catalog map[string]BadgeEntry `yaml:"catalog"`
	} `yaml:"badges"`
	Rewards struct {
		FirstApplicationBadge string         `yaml:"first_application_badge"`
		Taxonomy              []TaxonomyRule `yaml:"taxonomy"`
	} `yaml:"rewards"`
	Validation struct {
		// StrictClose refuses closing an activity while applications are
		// still pending. Off by default to match walk-up heavy orgs.
		StrictClose bool `yaml:"strict_close"`
	} `yaml:"validation"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type BadgeEntry struct {
	Name   string `yaml:"name"`
	Points int    `yaml:"points"`
}

// TaxonomyRule grants a badge when a validated activity matches the rule.
// Empty fields are wildcards; at least one must be set.
type TaxonomyRule struct {
	Badge     string `yaml:"badge"`
	SDG       *int   `yaml:"sdg,omitempty"`
	Continent string `yaml:"continent,omitempty"`
	Type      string `yaml:"type,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
}

// Matches reports whether an activity's taxonomy satisfies the rule.
func (r TaxonomyRule) Matches(sdg *int, continent, activityType string) bool {
	if r.SDG == nil && r.Continent == "" && r.Type == "" {
		return false
	}
	if r.SDG != nil && (sdg == nil || *sdg != *r.SDG) {
		return false
	}
	if r.Continent != "" && !strings.EqualFold(r.Continent, continent) {
		return false
	}
	if r.Type != "" && r.Type != activityType {
		return false
	}
	return true
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with vl org config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
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

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Org.ID == "" {
		return fmt.Errorf("config.org.id is required")
	}
	for id, entry := range c.Badges.Catalog {
		if id == "" {
			return fmt.Errorf("config.badges.catalog contains empty badge id")
		}
		if entry.Points < 0 {
			return fmt.Errorf("badge %s has negative point value", id)
		}
	}
	if b := c.Rewards.FirstApplicationBadge; b != "" && len(c.Badges.Catalog) > 0 {
		if _, ok := c.Badges.Catalog[b]; !ok {
			return fmt.Errorf("first_application_badge %s not in badge catalog", b)
		}
	}
	for i, rule := range c.Rewards.Taxonomy {
		if rule.Badge == "" {
			return fmt.Errorf("taxonomy rule %d has empty badge id", i)
		}
		if len(c.Badges.Catalog) > 0 {
			if _, ok := c.Badges.Catalog[rule.Badge]; !ok {
				return fmt.Errorf("taxonomy rule %d references unknown badge %s", i, rule.Badge)
			}
		}
		if rule.SDG == nil && rule.Continent == "" && rule.Type == "" {
			return fmt.Errorf("taxonomy rule %d matches nothing; set sdg, continent or type", i)
		}
		if rule.SDG != nil && (*rule.SDG < 1 || *rule.SDG > 17) {
			return fmt.Errorf("taxonomy rule %d has sdg %d outside 1..17", i, *rule.SDG)
		}
		if rule.Type != "" && rule.Type != "online" && rule.Type != "local" && rule.Type != "event" {
			return fmt.Errorf("taxonomy rule %d has unknown activity type %s", i, rule.Type)
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "voluna.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(orgID string) string {
	return fmt.Sprintf(defaultTemplate, orgID, orgID)
}

// Default returns the default Config struct for an organization.
func Default(orgID string) *Config {
	var cfg Config
	cfg.Org.ID = orgID
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(orgID))).Decode(&cfg)
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

const defaultTemplate = `org:
  id: %s
  name: %s

badges:
  catalog:
    first-application:
      name: "First step"
      points: 5
    climate-action:
      name: "Climate action"
      points: 10
    no-poverty:
      name: "Zero poverty ally"
      points: 10
    globe-trotter:
      name: "Globe trotter"
      points: 15
    event-goer:
      name: "Event goer"
      points: 5

rewards:
  first_application_badge: first-application
  taxonomy:
    - badge: climate-action
      sdg: 13
    - badge: no-poverty
      sdg: 1
    - badge: event-goer
      type: event

validation:
  strict_close: false
`
