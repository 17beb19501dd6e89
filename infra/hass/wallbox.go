package hass

import (
	"strconv"
	"strings"
)

// WallboxCharger adapts one configured wallbox to the allocation engine's
// charger interface.
type WallboxCharger struct {
	bridge *Bridge
	cfg    ChargerEntityConfig
}

// NewWallboxCharger wires a charger to the bridge.
func NewWallboxCharger(bridge *Bridge, cfg ChargerEntityConfig) *WallboxCharger {
	return &WallboxCharger{bridge: bridge, cfg: cfg}
}

func (c *WallboxCharger) Name() string { return c.cfg.Name }

func (c *WallboxCharger) Enabled() bool {
	return c.bridge.Bool(c.cfg.EnableSwitch)
}

// CableConnected accepts both binary sensors and status strings, since
// integrations differ in how they expose the plug state.
func (c *WallboxCharger) CableConnected() bool {
	if c.bridge.Bool(c.cfg.Cable) {
		return true
	}
	raw, ok := c.bridge.String(c.cfg.Cable)
	if !ok {
		return false
	}
	switch strings.ToLower(raw) {
	case "connected", "charging", "ready":
		return true
	}
	return false
}

func (c *WallboxCharger) Charging() bool {
	if c.bridge.Bool(c.cfg.Charging) {
		return true
	}
	raw, ok := c.bridge.String(c.cfg.Charging)
	return ok && strings.EqualFold(raw, "charging")
}

func (c *WallboxCharger) CurrentPowerW() float64 {
	p, _ := c.bridge.Float(c.cfg.Power)
	return p
}

func (c *WallboxCharger) CurrentLimitA() float64 {
	a, _ := c.bridge.Float(c.cfg.CurrentLimit)
	return a
}

// SetCurrentA publishes a new current limit in whole amps.
func (c *WallboxCharger) SetCurrentA(amps float64) error {
	return c.bridge.Command(c.cfg.SetCurrent, strconv.FormatFloat(amps, 'f', 0, 64))
}

// StartCharging begins a session via the session command entity.
func (c *WallboxCharger) StartCharging() error {
	return c.bridge.Command(c.cfg.Session, "start")
}

// StopCharging ends the running session.
func (c *WallboxCharger) StopCharging() error {
	return c.bridge.Command(c.cfg.Session, "stop")
}
