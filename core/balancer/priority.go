package balancer

import "fmt"

// PriorityConfig tunes the wallbox priority override.
type PriorityConfig struct {
	Enabled bool `json:"enabled"`
	// PowerThresholdW is the minimum wallbox draw that counts as an
	// active charging session.
	PowerThresholdW float64 `json:"power_threshold_w"`
	// ReservePowerW is held back from the battery charge target while a
	// session runs, leaving headroom for the vehicle to ramp up.
	ReservePowerW float64 `json:"reserve_power_w"`
}

// SetDefaults applies sane defaults for unset fields.
func (c *PriorityConfig) SetDefaults() {
	if c.PowerThresholdW == 0 {
		c.PowerThresholdW = 100
	}
	if c.ReservePowerW == 0 {
		c.ReservePowerW = 1000
	}
}

// PriorityOverride bends the battery target while a wallbox session is
// active: charge targets lose the configured reserve, and discharge is
// blocked entirely unless the operator toggle allows burning battery for
// vehicle charging.
type PriorityOverride struct {
	cfg PriorityConfig
}

// NewPriorityOverride builds the override from cfg.
func NewPriorityOverride(cfg PriorityConfig) *PriorityOverride {
	return &PriorityOverride{cfg: cfg}
}

// Apply returns the allowed battery target given the current wallbox draw,
// plus a reason string for logging when the target was changed.
func (p *PriorityOverride) Apply(wallboxPowerW, normalTargetW float64, allowBatteryUse bool) (float64, string) {
	if !p.cfg.Enabled {
		return normalTargetW, ""
	}
	active := wallboxPowerW >= p.cfg.PowerThresholdW
	if !active {
		return normalTargetW, ""
	}

	if normalTargetW < 0 {
		if allowBatteryUse {
			return normalTargetW, fmt.Sprintf("wallbox active (%.0f W), battery discharge allowed by toggle", wallboxPowerW)
		}
		return 0, fmt.Sprintf("wallbox active (%.0f W), blocking battery discharge of %.0f W", wallboxPowerW, normalTargetW)
	}

	reserved := normalTargetW - p.cfg.ReservePowerW
	if reserved < 0 {
		reserved = 0
	}
	return reserved, fmt.Sprintf("wallbox active (%.0f W), reserving %.0f W: %.0f W -> %.0f W",
		wallboxPowerW, p.cfg.ReservePowerW, normalTargetW, reserved)
}

// Status is a diagnostic view of the override.
type PriorityStatus struct {
	Enabled         bool    `json:"enabled"`
	WallboxPowerW   float64 `json:"wallbox_power_w"`
	WallboxActive   bool    `json:"wallbox_active"`
	PowerThresholdW float64 `json:"power_threshold_w"`
	ReservePowerW   float64 `json:"reserve_power_w"`
}

// Status reports the override's view of the given wallbox draw.
func (p *PriorityOverride) Status(wallboxPowerW float64) PriorityStatus {
	return PriorityStatus{
		Enabled:         p.cfg.Enabled,
		WallboxPowerW:   wallboxPowerW,
		WallboxActive:   wallboxPowerW >= p.cfg.PowerThresholdW,
		PowerThresholdW: p.cfg.PowerThresholdW,
		ReservePowerW:   p.cfg.ReservePowerW,
	}
}
