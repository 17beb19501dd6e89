package adjust

import (
	"time"

	"github.com/homegrid/homegrid/core/logger"
)

// Controller gates whether a freshly computed actuator target may be
// applied. Grid readings lag the battery's physical response by the sensor
// refresh interval; re-applying the full correction before the meter
// reflects the previous one doubles the correction and rings.
//
// Implementations are not safe for concurrent use. The balancing loop is
// cycle-driven and single-threaded, so each controller is only ever touched
// from one goroutine.
type Controller interface {
	// Allow reports whether the proposed target may be applied now.
	Allow(gridPowerW, proposedTargetW, currentTargetW float64) bool
	// Record stores an applied adjustment for subsequent gating.
	Record(gridPowerW, newTargetW, previousTargetW float64, at time.Time)
	// Status returns a diagnostic snapshot for logging.
	Status() Status
}

// Status is a diagnostic view of a controller's gating state.
type Status struct {
	Strategy                 string        `json:"strategy"`
	CooldownSeconds          float64       `json:"cooldown_seconds,omitempty"`
	WaitingForFeedback       bool          `json:"waiting_for_feedback,omitempty"`
	GridPowerAtAdjustmentW   float64       `json:"grid_power_at_adjustment_w,omitempty"`
	ExpectedGridChangeW      float64       `json:"expected_grid_change_w,omitempty"`
	TimeSinceLastAdjustment  time.Duration `json:"time_since_last_adjustment,omitempty"`
	TimeSinceSmallAdjustment time.Duration `json:"time_since_small_adjustment,omitempty"`
}

// Config selects and tunes the gating strategy.
type Config struct {
	// Strategy is one of "simple", "feedback" or "directional".
	Strategy string `json:"strategy"`
	// CooldownSeconds is the wait between adjustments (simple and
	// directional strategies, and the feedback strategy's timeout).
	CooldownSeconds float64 `json:"cooldown_seconds"`
	// FeedbackThresholdRatio is the fraction of the expected grid change
	// that must be observed to confirm feedback.
	FeedbackThresholdRatio float64 `json:"feedback_threshold_ratio"`
	// LargeChangeThresholdW separates small cooldown-gated changes from
	// large feedback-gated ones.
	LargeChangeThresholdW float64 `json:"large_change_threshold_w"`
	// MinChangeThresholdW is the grid move below which the directional
	// strategy considers the grid unchanged.
	MinChangeThresholdW float64 `json:"min_change_threshold_w"`
}

// SetDefaults applies sane defaults for unset fields.
func (c *Config) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = "simple"
	}
	if c.CooldownSeconds == 0 {
		c.CooldownSeconds = 4
	}
	if c.FeedbackThresholdRatio == 0 {
		c.FeedbackThresholdRatio = 0.4
	}
	if c.LargeChangeThresholdW == 0 {
		c.LargeChangeThresholdW = 100
	}
	if c.MinChangeThresholdW == 0 {
		c.MinChangeThresholdW = 100
	}
}

// New builds the configured controller. An unknown strategy name falls back
// to the simple cooldown with a log line rather than an error: the control
// loop must come up even with a bad config value.
func New(cfg Config, now func() time.Time, log logger.Logger) Controller {
	switch cfg.Strategy {
	case "simple", "":
		return NewSimple(cfg.CooldownSeconds, now)
	case "feedback":
		return NewFeedback(cfg, now)
	case "directional":
		return NewDirectional(cfg.CooldownSeconds, cfg.MinChangeThresholdW, now)
	default:
		log.Warnf("unknown adjustment strategy %q, using simple cooldown", cfg.Strategy)
		return NewSimple(cfg.CooldownSeconds, now)
	}
}
