package adjust

import (
	"math"
	"time"
)

// Directional applies the cooldown only when the grid responded to the last
// adjustment by moving toward zero. When the grid magnitude keeps growing
// the previous correction was too small and a follow-up is released
// immediately.
type Directional struct {
	cooldown     time.Duration
	minChangeW   float64
	now          func() time.Time
	lastAt       time.Time
	hasLast      bool
	gridAtAdjust float64
}

// NewDirectional returns the direction-aware cooldown controller.
func NewDirectional(cooldownSeconds, minChangeThresholdW float64, now func() time.Time) *Directional {
	if now == nil {
		now = time.Now
	}
	return &Directional{
		cooldown:   time.Duration(cooldownSeconds * float64(time.Second)),
		minChangeW: minChangeThresholdW,
		now:        now,
	}
}

func (d *Directional) Allow(gridPowerW, proposedTargetW, currentTargetW float64) bool {
	if !d.hasLast {
		return true
	}
	if d.now().Sub(d.lastAt) >= d.cooldown {
		return true
	}
	change := gridPowerW - d.gridAtAdjust
	if math.Abs(change) < d.minChangeW {
		return false
	}
	// Magnitude growing away from zero means the last correction fell
	// short; shrinking means it worked and the cooldown holds.
	return math.Abs(gridPowerW) > math.Abs(d.gridAtAdjust)
}

func (d *Directional) Record(gridPowerW, newTargetW, previousTargetW float64, at time.Time) {
	d.lastAt = at
	d.hasLast = true
	d.gridAtAdjust = gridPowerW
}

func (d *Directional) Status() Status {
	st := Status{
		Strategy:               "directional",
		CooldownSeconds:        d.cooldown.Seconds(),
		GridPowerAtAdjustmentW: d.gridAtAdjust,
	}
	if d.hasLast {
		st.TimeSinceLastAdjustment = d.now().Sub(d.lastAt)
	}
	return st
}
