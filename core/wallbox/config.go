package wallbox

// ChargerConfig declares one managed charger and its share weight.
type ChargerConfig struct {
	Name string `json:"name"`
	// PriorityWeight scales this charger's share of the surplus. A 2.0
	// charger gets twice the power of a 1.0 one.
	PriorityWeight float64 `json:"priority_weight"`
}

// Config tunes the surplus allocation engine.
type Config struct {
	Chargers []ChargerConfig `json:"chargers"`
	// VoltageV is the line voltage used for watt/amp conversion.
	VoltageV float64 `json:"voltage_v"`
	// Sqrt3 is 1.0 for single-phase circuits, 1.732 for three-phase.
	Sqrt3 float64 `json:"sqrt_3"`
	// MinCurrentA is the lowest current a charger can run at; allocations
	// below it stop the charger instead.
	MinCurrentA float64 `json:"min_current_a"`
	MaxCurrentA float64 `json:"max_current_a"`
	// BufferW is held back from the surplus before allocating.
	BufferW float64 `json:"buffer_w"`
	// MaxChargingAttempts marks a charger failed after this many start
	// attempts without power draw.
	MaxChargingAttempts int `json:"max_charging_attempts"`
	// ChargingRetryIntervalS is the wait before a failed charger is tried
	// again.
	ChargingRetryIntervalS float64 `json:"charging_retry_interval_s"`
	// ChargingCheckDelayS is how long after a start attempt the draw is
	// verified.
	ChargingCheckDelayS float64 `json:"charging_check_delay_s"`
	// ChargingPowerThresholdW is the minimum draw that counts as an
	// actually running session.
	ChargingPowerThresholdW float64 `json:"charging_power_threshold_w"`
}

// SetDefaults applies sane defaults for unset fields.
func (c *Config) SetDefaults() {
	if c.VoltageV == 0 {
		c.VoltageV = 233.33
	}
	if c.Sqrt3 == 0 {
		c.Sqrt3 = 1.0
	}
	if c.MinCurrentA == 0 {
		c.MinCurrentA = 6
	}
	if c.MaxCurrentA == 0 {
		c.MaxCurrentA = 32
	}
	if c.BufferW == 0 {
		c.BufferW = 100
	}
	if c.MaxChargingAttempts == 0 {
		c.MaxChargingAttempts = 3
	}
	if c.ChargingRetryIntervalS == 0 {
		c.ChargingRetryIntervalS = 300
	}
	if c.ChargingCheckDelayS == 0 {
		c.ChargingCheckDelayS = 30
	}
	if c.ChargingPowerThresholdW == 0 {
		c.ChargingPowerThresholdW = 100
	}
	for i := range c.Chargers {
		if c.Chargers[i].PriorityWeight == 0 {
			c.Chargers[i].PriorityWeight = 1
		}
	}
}
