package hass

// EntityConfig names the Home Assistant entities the balancing loop reads
// and writes.
type EntityConfig struct {
	// GridPower is the signed grid meter sensor, positive on import.
	GridPower string `json:"grid_power"`
	// WallboxPower is the total wallbox draw sensor.
	WallboxPower string `json:"wallbox_power"`
	// BatteryTarget is the number entity holding the commanded battery
	// power.
	BatteryTarget string `json:"battery_target"`
	// Enable is the master switch for the balancing loop.
	Enable string `json:"enable"`
	// WallboxBatteryUse allows battery discharge while a wallbox session
	// has priority.
	WallboxBatteryUse string `json:"wallbox_battery_use"`
}

// BatteryEntityConfig wires one battery unit to its entities. Capacity and
// power limits are static ratings, not entities.
type BatteryEntityConfig struct {
	Name               string  `json:"name"`
	SoC                string  `json:"soc"`
	Power              string  `json:"power"`
	SetPower           string  `json:"set_power"`
	CapacityKWh        float64 `json:"capacity_kwh"`
	MaxChargePowerW    float64 `json:"max_charge_power_w"`
	MaxDischargePowerW float64 `json:"max_discharge_power_w"`
}

// ChargerEntityConfig wires one wallbox to its entities.
type ChargerEntityConfig struct {
	Name         string `json:"name"`
	EnableSwitch string `json:"enable_switch"`
	Cable        string `json:"cable"`
	Charging     string `json:"charging"`
	Power        string `json:"power"`
	CurrentLimit string `json:"current_limit"`
	SetCurrent   string `json:"set_current"`
	Session      string `json:"session"`
}

// Config holds the MQTT connection and entity wiring for the Home
// Assistant bridge. States arrive on the statestream topic tree; commands
// go out on a separate prefix handled by automations on the other side.
type Config struct {
	BrokerURL     string `json:"broker_url"`
	ClientID      string `json:"client_id"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	StatePrefix   string `json:"state_prefix"`
	CommandPrefix string `json:"command_prefix"`
	// StaleAfterS marks cached states unavailable when older than this.
	// Zero disables the check.
	StaleAfterS int `json:"stale_after_s"`

	Entities  EntityConfig          `json:"entities"`
	Batteries []BatteryEntityConfig `json:"batteries"`
	Chargers  []ChargerEntityConfig `json:"chargers"`
}

// SetDefaults applies sane defaults for unset fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "homegrid"
	}
	if c.StatePrefix == "" {
		c.StatePrefix = "homeassistant/statestream"
	}
	if c.CommandPrefix == "" {
		c.CommandPrefix = "homegrid/cmd"
	}
}
