package wallbox

// Charger is a single controllable wallbox. Implementations wrap the
// integration exposing the device; the allocation engine only deals in
// watts, amps and a few boolean states.
type Charger interface {
	Name() string
	// Enabled reports whether surplus charging is switched on for this
	// charger.
	Enabled() bool
	// CableConnected reports whether a vehicle is plugged in.
	CableConnected() bool
	// Charging reports whether a charge session is running.
	Charging() bool
	// CurrentPowerW returns the measured draw right now.
	CurrentPowerW() float64
	// CurrentLimitA returns the configured current limit.
	CurrentLimitA() float64
	// SetCurrentA sets the charging current limit.
	SetCurrentA(amps float64) error
	// StartCharging begins a charge session.
	StartCharging() error
	// StopCharging ends the running charge session.
	StopCharging() error
}
