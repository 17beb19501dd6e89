package oscillation

// Strategy selects how a detected oscillation is compensated.
type Strategy string

const (
	// StrategyMin leaves the caller's target untouched.
	StrategyMin Strategy = "min"
	// StrategyMax compensates half the amplitude plus the safety margin.
	StrategyMax Strategy = "max"
	// StrategyAverage is the midpoint of min and max.
	StrategyAverage Strategy = "average"
	// StrategyProportional interpolates between min and max by the
	// configured damping factor.
	StrategyProportional Strategy = "proportional"
)

// ParseStrategy maps a config string to a Strategy, falling back to
// proportional for anything unknown. The fallback is deliberate: a bad
// config value must not take down a long-running control loop.
func ParseStrategy(s string) (Strategy, bool) {
	switch Strategy(s) {
	case StrategyMin, StrategyMax, StrategyAverage, StrategyProportional:
		return Strategy(s), true
	default:
		return StrategyProportional, false
	}
}

// dampedTarget applies the selected strategy to the caller's target.
//
// The result is always baseTarget plus an offset derived from the detected
// amplitude. It must never be an absolute value computed from the
// oscillation's own baseline: that would flip the intended direction when
// the oscillation is centered near zero or on the opposite sign of the
// caller's target.
func (d *Detector) dampedTarget(baseTarget float64) float64 {
	switch d.strategy {
	case StrategyMin:
		return d.minTarget(baseTarget)
	case StrategyMax:
		return d.maxTarget(baseTarget)
	case StrategyAverage:
		return (d.minTarget(baseTarget) + d.maxTarget(baseTarget)) / 2
	default:
		return d.proportionalTarget(baseTarget)
	}
}

// minTarget is the conservative bound: no adjustment at all.
func (d *Detector) minTarget(baseTarget float64) float64 {
	return baseTarget
}

// maxTarget compensates half the amplitude scaled by the safety margin,
// pushed further in the discharge direction.
func (d *Detector) maxTarget(baseTarget float64) float64 {
	return baseTarget - (d.amplitude/2)*d.cfg.StabilizationFactor
}

func (d *Detector) proportionalTarget(baseTarget float64) float64 {
	aggressive := -(d.amplitude / 2) * d.cfg.StabilizationFactor
	return baseTarget + d.dampingFactor*aggressive
}
