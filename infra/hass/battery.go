package hass

import (
	"strconv"

	"github.com/homegrid/homegrid/core/model"
)

// BatteryUnit adapts one configured battery to the distributor's unit
// interface. State of charge and power come from the statestream cache;
// capacity and power limits are static ratings from configuration.
type BatteryUnit struct {
	bridge *Bridge
	cfg    BatteryEntityConfig
}

// NewBatteryUnit wires a battery unit to the bridge.
func NewBatteryUnit(bridge *Bridge, cfg BatteryEntityConfig) *BatteryUnit {
	return &BatteryUnit{bridge: bridge, cfg: cfg}
}

func (u *BatteryUnit) Name() string { return u.cfg.Name }

// Available reports whether the unit's sensors are currently readable. A
// battery whose integration dropped off the stream takes no commands.
func (u *BatteryUnit) Available() bool {
	_, socOK := u.bridge.Float(u.cfg.SoC)
	_, powerOK := u.bridge.Float(u.cfg.Power)
	return socOK && powerOK
}

func (u *BatteryUnit) SoC() float64 {
	soc, _ := u.bridge.Float(u.cfg.SoC)
	return soc
}

func (u *BatteryUnit) RemainingKWh() float64 {
	return u.cfg.CapacityKWh * u.SoC() / 100
}

func (u *BatteryUnit) CapacityKWh() float64 { return u.cfg.CapacityKWh }

func (u *BatteryUnit) CurrentPowerW() float64 {
	p, _ := u.bridge.Float(u.cfg.Power)
	return p
}

func (u *BatteryUnit) MaxChargePowerW() float64    { return u.cfg.MaxChargePowerW }
func (u *BatteryUnit) MaxDischargePowerW() float64 { return u.cfg.MaxDischargePowerW }

// State derives the unit state from availability and the measured power
// sign.
func (u *BatteryUnit) State() model.BatteryState {
	if !u.Available() {
		return model.BatteryOffline
	}
	switch p := u.CurrentPowerW(); {
	case p > 0:
		return model.BatteryCharging
	case p < 0:
		return model.BatteryDischarging
	default:
		return model.BatteryAvailable
	}
}

// SetPowerW publishes the power command for this unit.
func (u *BatteryUnit) SetPowerW(powerW float64) error {
	return u.bridge.Command(u.cfg.SetPower, strconv.FormatFloat(powerW, 'f', 0, 64))
}
