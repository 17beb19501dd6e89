package wallbox

// PowerConverter translates between watts and amps for a charging circuit.
// Sqrt3 is 1.0 on single-phase circuits and 1.732 on three-phase ones.
type PowerConverter struct {
	voltage   float64
	sqrt3     float64
	basePower float64
}

// NewPowerConverter builds a converter for the given line voltage and phase
// factor.
func NewPowerConverter(voltage, sqrt3 float64) PowerConverter {
	return PowerConverter{voltage: voltage, sqrt3: sqrt3, basePower: voltage * sqrt3}
}

// ToAmps converts power to current. Non-positive power maps to zero.
func (p PowerConverter) ToAmps(watts float64) float64 {
	if watts <= 0 {
		return 0
	}
	return watts / p.basePower
}

// ToWatts converts current to power. Non-positive current maps to zero.
func (p PowerConverter) ToWatts(amps float64) float64 {
	if amps <= 0 {
		return 0
	}
	return amps * p.basePower
}

// MinPowerForCurrent returns the power drawn at the given minimum current.
func (p PowerConverter) MinPowerForCurrent(minAmps float64) float64 {
	return p.ToWatts(minAmps)
}

// Voltage returns the configured line voltage.
func (p PowerConverter) Voltage() float64 {
	return p.voltage
}
