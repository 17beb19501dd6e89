package hass

import (
	"strconv"
)

// LoopAdapter exposes the bridge as the sensor, actuator and switch
// surfaces the balancing loop consumes.
type LoopAdapter struct {
	bridge   *Bridge
	entities EntityConfig
}

// NewLoopAdapter wires the configured loop entities to the bridge.
func NewLoopAdapter(bridge *Bridge, entities EntityConfig) *LoopAdapter {
	return &LoopAdapter{bridge: bridge, entities: entities}
}

// GridPowerW returns the signed grid meter reading, positive on import.
func (a *LoopAdapter) GridPowerW() (float64, bool) {
	return a.bridge.Float(a.entities.GridPower)
}

// WallboxPowerW returns the total wallbox draw. Without a configured
// entity it reads as a steady zero, which keeps the priority override
// inactive.
func (a *LoopAdapter) WallboxPowerW() (float64, bool) {
	if a.entities.WallboxPower == "" {
		return 0, true
	}
	return a.bridge.Float(a.entities.WallboxPower)
}

// TargetW returns the last commanded battery target.
func (a *LoopAdapter) TargetW() (float64, bool) {
	return a.bridge.Float(a.entities.BatteryTarget)
}

// SetTargetW publishes a new battery target.
func (a *LoopAdapter) SetTargetW(targetW float64) error {
	return a.bridge.Command(a.entities.BatteryTarget, strconv.FormatFloat(targetW, 'f', 0, 64))
}

// Enabled reports the master switch. An unconfigured switch means always
// on.
func (a *LoopAdapter) Enabled() bool {
	if a.entities.Enable == "" {
		return true
	}
	return a.bridge.Bool(a.entities.Enable)
}

// AllowWallboxBatteryUse reports the battery-use toggle for priority
// charging sessions.
func (a *LoopAdapter) AllowWallboxBatteryUse() bool {
	return a.bridge.Bool(a.entities.WallboxBatteryUse)
}
