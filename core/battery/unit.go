package battery

import "github.com/homegrid/homegrid/core/model"

// Unit is a single controllable battery. Implementations wrap whatever
// integration exposes the device; the distributor only deals in watts and
// state of charge.
//
// Power follows the battery sign convention: positive charges, negative
// discharges.
type Unit interface {
	Name() string
	// Available reports whether the unit currently accepts commands.
	Available() bool
	// SoC returns the state of charge in percent.
	SoC() float64
	RemainingKWh() float64
	CapacityKWh() float64
	// CurrentPowerW returns the measured power right now.
	CurrentPowerW() float64
	MaxChargePowerW() float64
	MaxDischargePowerW() float64
	State() model.BatteryState
	// SetPowerW commands the unit to the given power. Zero stops it.
	SetPowerW(powerW float64) error
}
