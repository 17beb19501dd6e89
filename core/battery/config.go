package battery

// Config tunes the multi-battery distributor.
type Config struct {
	// PowerToleranceW skips re-sending a command when the new per-unit
	// power is within this band of the last applied value.
	PowerToleranceW float64 `json:"power_tolerance_w"`
	// MinDischargeSoC excludes units at or below this SoC from discharge
	// requests.
	MinDischargeSoC float64 `json:"min_discharge_soc"`
	// MaxChargeSoC excludes units at or above this SoC from charge
	// requests.
	MaxChargeSoC float64 `json:"max_charge_soc"`
}

// SetDefaults applies sane defaults for unset fields.
func (c *Config) SetDefaults() {
	if c.PowerToleranceW == 0 {
		c.PowerToleranceW = 5
	}
	if c.MinDischargeSoC == 0 {
		c.MinDischargeSoC = 5
	}
	if c.MaxChargeSoC == 0 {
		c.MaxChargeSoC = 100
	}
}
