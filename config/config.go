package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/homegrid/homegrid/core/adjust"
	"github.com/homegrid/homegrid/core/balancer"
	"github.com/homegrid/homegrid/core/battery"
	"github.com/homegrid/homegrid/core/metrics"
	"github.com/homegrid/homegrid/core/oscillation"
	"github.com/homegrid/homegrid/core/wallbox"
	"github.com/homegrid/homegrid/infra/hass"
)

// AppConfig holds the service-level cadences.
type AppConfig struct {
	// BalancerIntervalS is the balancing cycle period.
	BalancerIntervalS int `json:"balancer_interval_s"`
	// WallboxIntervalS is the wallbox allocation period.
	WallboxIntervalS int `json:"wallbox_interval_s"`
	// StatusIntervalS is the telemetry snapshot period.
	StatusIntervalS int `json:"status_interval_s"`
}

// SetDefaults applies sane defaults for unset fields.
func (c *AppConfig) SetDefaults() {
	if c.BalancerIntervalS == 0 {
		c.BalancerIntervalS = 5
	}
	if c.WallboxIntervalS == 0 {
		c.WallboxIntervalS = 10
	}
	if c.StatusIntervalS == 0 {
		c.StatusIntervalS = 30
	}
}

type Config struct {
	App         AppConfig          `json:"app"`
	Hass        hass.Config        `json:"hass"`
	Balancer    balancer.Config    `json:"balancer"`
	Oscillation oscillation.Config `json:"oscillation"`
	Adjust      adjust.Config      `json:"adjust"`
	Battery     battery.Config     `json:"battery"`
	Wallbox     wallbox.Config     `json:"wallbox"`
	Metrics     metrics.Config     `json:"metrics"`
}

// Load reads the config file, applies environment overrides with the HG_
// prefix and fills in defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("HG_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "hg_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.App.SetDefaults()
	cfg.Hass.SetDefaults()
	cfg.Balancer.SetDefaults()
	cfg.Oscillation.SetDefaults()
	cfg.Adjust.SetDefaults()
	cfg.Battery.SetDefaults()
	cfg.Wallbox.SetDefaults()
	cfg.Metrics.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot start with. Tuning
// values out of range are clamped by their packages instead.
func (c *Config) Validate() error {
	if c.Hass.BrokerURL == "" {
		return fmt.Errorf("hass.broker_url is required")
	}
	if c.Hass.Entities.GridPower == "" {
		return fmt.Errorf("hass.entities.grid_power is required")
	}
	if c.Hass.Entities.BatteryTarget == "" {
		return fmt.Errorf("hass.entities.battery_target is required")
	}
	for i, b := range c.Hass.Batteries {
		if b.Name == "" || b.SoC == "" || b.Power == "" || b.SetPower == "" {
			return fmt.Errorf("hass.batteries[%d] is missing an entity", i)
		}
		if b.CapacityKWh <= 0 {
			return fmt.Errorf("hass.batteries[%d] needs a positive capacity", i)
		}
	}
	for i, ch := range c.Hass.Chargers {
		if ch.Name == "" || ch.Power == "" || ch.SetCurrent == "" {
			return fmt.Errorf("hass.chargers[%d] is missing an entity", i)
		}
	}
	return nil
}
