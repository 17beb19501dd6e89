package adjust

import (
	"math"
	"time"
)

// FeedbackCheck captures the outcome of a single feedback evaluation so the
// balancing loop can log why an adjustment was released or held back.
type FeedbackCheck struct {
	Detected            bool          `json:"detected"`
	ActualChangeW       float64       `json:"actual_change_w"`
	ExpectedChangeW     float64       `json:"expected_change_w"`
	DirectionCorrect    bool          `json:"direction_correct"`
	MagnitudeSufficient bool          `json:"magnitude_sufficient"`
	MagnitudeRatio      float64       `json:"magnitude_ratio"`
	Elapsed             time.Duration `json:"elapsed"`
}

// Feedback gates small target changes with a time cooldown and large ones by
// waiting until the grid meter actually reflects the previous correction, or
// the timeout runs out. This prevents stacking a second full correction on a
// meter reading that predates the first.
type Feedback struct {
	thresholdRatio float64
	maxTimeout     time.Duration
	largeChangeW   float64
	now            func() time.Time

	waiting       bool
	gridAtAdjustW float64
	expectedW     float64
	adjustedAt    time.Time

	lastSmallAt  time.Time
	hasLastSmall bool

	lastCheck   *FeedbackCheck
	successInfo *FeedbackCheck
	timeoutInfo *FeedbackCheck
}

// NewFeedback returns the hybrid cooldown/feedback controller.
func NewFeedback(cfg Config, now func() time.Time) *Feedback {
	if now == nil {
		now = time.Now
	}
	return &Feedback{
		thresholdRatio: cfg.FeedbackThresholdRatio,
		maxTimeout:     time.Duration(cfg.CooldownSeconds * float64(time.Second)),
		largeChangeW:   cfg.LargeChangeThresholdW,
		now:            now,
	}
}

func (f *Feedback) Allow(gridPowerW, proposedTargetW, currentTargetW float64) bool {
	if math.Abs(proposedTargetW-currentTargetW) < f.largeChangeW {
		return f.smallChangeAllowed()
	}
	return f.largeChangeAllowed(gridPowerW)
}

func (f *Feedback) smallChangeAllowed() bool {
	if !f.hasLastSmall {
		return true
	}
	return f.now().Sub(f.lastSmallAt) >= f.maxTimeout
}

func (f *Feedback) largeChangeAllowed(gridPowerW float64) bool {
	if !f.waiting {
		return true
	}
	if f.feedbackDetected(gridPowerW) {
		if f.lastCheck != nil {
			c := *f.lastCheck
			f.successInfo = &c
		}
		f.clearWaiting()
		return true
	}
	if f.now().Sub(f.adjustedAt) >= f.maxTimeout {
		f.timeoutInfo = &FeedbackCheck{Elapsed: f.now().Sub(f.adjustedAt)}
		f.clearWaiting()
		return true
	}
	return false
}

func (f *Feedback) Record(gridPowerW, newTargetW, previousTargetW float64, at time.Time) {
	change := newTargetW - previousTargetW
	if math.Abs(change) < f.largeChangeW {
		f.lastSmallAt = at
		f.hasLastSmall = true
		return
	}
	f.waiting = true
	f.gridAtAdjustW = gridPowerW
	// Increasing discharge (more negative target) should pull grid import
	// down by the same amount, so the expected grid delta tracks the
	// target delta directly.
	f.expectedW = change
	f.adjustedAt = at
}

func (f *Feedback) feedbackDetected(gridPowerW float64) bool {
	if f.expectedW == 0 {
		return true
	}
	actual := gridPowerW - f.gridAtAdjustW
	directionOK := actual*f.expectedW > 0
	magnitudeOK := math.Abs(actual) >= math.Abs(f.expectedW)*f.thresholdRatio
	check := &FeedbackCheck{
		Detected:            directionOK && magnitudeOK,
		ActualChangeW:       actual,
		ExpectedChangeW:     f.expectedW,
		DirectionCorrect:    directionOK,
		MagnitudeSufficient: magnitudeOK,
		MagnitudeRatio:      math.Abs(actual) / math.Abs(f.expectedW),
		Elapsed:             f.now().Sub(f.adjustedAt),
	}
	f.lastCheck = check
	return check.Detected
}

func (f *Feedback) clearWaiting() {
	f.waiting = false
	f.gridAtAdjustW = 0
	f.expectedW = 0
	f.adjustedAt = time.Time{}
	f.lastCheck = nil
}

func (f *Feedback) Status() Status {
	st := Status{
		Strategy:               "feedback",
		CooldownSeconds:        f.maxTimeout.Seconds(),
		WaitingForFeedback:     f.waiting,
		GridPowerAtAdjustmentW: f.gridAtAdjustW,
		ExpectedGridChangeW:    f.expectedW,
	}
	if !f.adjustedAt.IsZero() {
		st.TimeSinceLastAdjustment = f.now().Sub(f.adjustedAt)
	}
	if f.hasLastSmall {
		st.TimeSinceSmallAdjustment = f.now().Sub(f.lastSmallAt)
	}
	return st
}

// LastCheck returns the outcome of the most recent feedback evaluation, or
// nil when none happened since the last release.
func (f *Feedback) LastCheck() *FeedbackCheck {
	return f.lastCheck
}

// TakeSuccess returns and clears the record of the last successful feedback
// detection.
func (f *Feedback) TakeSuccess() *FeedbackCheck {
	info := f.successInfo
	f.successInfo = nil
	return info
}

// TakeTimeout returns and clears the record of the last feedback timeout.
func (f *Feedback) TakeTimeout() *FeedbackCheck {
	info := f.timeoutInfo
	f.timeoutInfo = nil
	return info
}
