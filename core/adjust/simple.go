package adjust

import "time"

// Simple allows an adjustment whenever the cooldown since the last one has
// elapsed, regardless of grid behaviour.
type Simple struct {
	cooldown time.Duration
	now      func() time.Time
	lastAt   time.Time
	hasLast  bool
}

// NewSimple returns a cooldown-only controller. now may be nil.
func NewSimple(cooldownSeconds float64, now func() time.Time) *Simple {
	if now == nil {
		now = time.Now
	}
	return &Simple{
		cooldown: time.Duration(cooldownSeconds * float64(time.Second)),
		now:      now,
	}
}

func (s *Simple) Allow(gridPowerW, proposedTargetW, currentTargetW float64) bool {
	if !s.hasLast {
		return true
	}
	return s.now().Sub(s.lastAt) >= s.cooldown
}

func (s *Simple) Record(gridPowerW, newTargetW, previousTargetW float64, at time.Time) {
	s.lastAt = at
	s.hasLast = true
}

func (s *Simple) Status() Status {
	st := Status{
		Strategy:        "simple",
		CooldownSeconds: s.cooldown.Seconds(),
	}
	if s.hasLast {
		st.TimeSinceLastAdjustment = s.now().Sub(s.lastAt)
	}
	return st
}
