package reconcile

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/bill-advisor/internal/model"
)

// Default merge policy.
const (
	DefaultThreshold        = 0.9
	DefaultElectricityShare = 0.6
)

// Thresholds are the confidence levels at which a source wins outright.
type Thresholds struct {
	Template float64 `yaml:"template" json:"template"`
	AI       float64 `yaml:"ai" json:"ai"`
}

// Config is the merge policy.
type Config struct {
	Defaults Thresholds                     `yaml:"defaults"`
	Fields   map[model.FieldName]Thresholds `yaml:"fields"`
	// ElectricityShare is the portion of a joint total attributed to
	// electricity by SplitCombinedTotal.
	ElectricityShare float64 `yaml:"electricity_share"`
}

// DefaultConfig returns the standard policy: 0.9 for both sources.
func DefaultConfig() *Config {
	return &Config{
		Defaults:         Thresholds{Template: DefaultThreshold, AI: DefaultThreshold},
		ElectricityShare: DefaultElectricityShare,
	}
}

// LoadConfig reads a merge policy from a YAML file with a top-level
// "reconcile" key. Unset values fall back to DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: read config %s", path)
	}

	var wrapper struct {
		Reconcile Config `yaml:"reconcile"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "reconcile: parse config")
	}

	cfg := &wrapper.Reconcile
	def := DefaultConfig()
	if cfg.Defaults.Template == 0 {
		cfg.Defaults.Template = def.Defaults.Template
	}
	if cfg.Defaults.AI == 0 {
		cfg.Defaults.AI = def.Defaults.AI
	}
	if cfg.ElectricityShare == 0 {
		cfg.ElectricityShare = def.ElectricityShare
	}
	for name, th := range cfg.Fields {
		if _, ok := model.Spec(name); !ok {
			return nil, eris.Errorf("reconcile: unknown field %q in config", name)
		}
		if th.Template == 0 {
			th.Template = cfg.Defaults.Template
		}
		if th.AI == 0 {
			th.AI = cfg.Defaults.AI
		}
		cfg.Fields[name] = th
	}
	return cfg, cfg.Validate()
}

// Validate checks that thresholds and the split share are usable.
func (c *Config) Validate() error {
	check := func(where string, th Thresholds) error {
		if th.Template <= 0 || th.Template > 1 || th.AI <= 0 || th.AI > 1 {
			return eris.Errorf("reconcile: %s thresholds must be in (0,1], got %+v", where, th)
		}
		return nil
	}
	if err := check("default", c.Defaults); err != nil {
		return err
	}
	for name, th := range c.Fields {
		if err := check(string(name), th); err != nil {
			return err
		}
	}
	if c.ElectricityShare <= 0 || c.ElectricityShare >= 1 {
		return eris.Errorf("reconcile: electricity_share must be in (0,1), got %g", c.ElectricityShare)
	}
	return nil
}

// For returns the thresholds for a field, falling back to defaults.
func (c *Config) For(name model.FieldName) Thresholds {
	if th, ok := c.Fields[name]; ok {
		return th
	}
	return c.Defaults
}
