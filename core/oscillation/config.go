package oscillation

// Config tunes the oscillation detector.
type Config struct {
	Enabled bool `json:"enabled"`
	// MinAmplitudeW is the minimum average peak-valley swing to detect.
	MinAmplitudeW float64 `json:"min_amplitude_w"`
	// MinCycles is the minimum number of peaks and valleys required.
	MinCycles int `json:"min_cycles"`
	// MaxCycleDurationS rejects drifts slower than this per full cycle.
	MaxCycleDurationS float64 `json:"max_cycle_duration_s"`
	// HistoryDurationS bounds the rolling sample window.
	HistoryDurationS float64 `json:"history_duration_s"`
	// StabilizationFactor is the safety margin applied on top of half the
	// detected amplitude when compensating.
	StabilizationFactor float64 `json:"stabilization_factor"`
	// BaselineSmoothingFactor is the exponential smoothing rate applied to
	// the adaptive baseline, 0-1.
	BaselineSmoothingFactor float64 `json:"baseline_smoothing_factor"`
	// BaselineShiftThresholdW is the minimum baseline move that counts as a
	// load step rather than noise.
	BaselineShiftThresholdW float64 `json:"baseline_shift_threshold_w"`
	// DampingFactor interpolates between the min and max strategies, 0-1.
	DampingFactor float64 `json:"damping_factor"`
	// DampingStrategy selects how aggressively detected oscillation is
	// compensated: "min", "max", "average" or "proportional".
	DampingStrategy string `json:"damping_strategy"`
}

// SetDefaults applies sane defaults for unset fields.
func (c *Config) SetDefaults() {
	if c.MinAmplitudeW == 0 {
		c.MinAmplitudeW = 1000
	}
	if c.MinCycles == 0 {
		c.MinCycles = 2
	}
	if c.MaxCycleDurationS == 0 {
		c.MaxCycleDurationS = 10
	}
	if c.HistoryDurationS == 0 {
		c.HistoryDurationS = 30
	}
	if c.StabilizationFactor == 0 {
		c.StabilizationFactor = 1.1
	}
	if c.BaselineSmoothingFactor == 0 {
		c.BaselineSmoothingFactor = 0.1
	}
	if c.BaselineShiftThresholdW == 0 {
		c.BaselineShiftThresholdW = 500
	}
	if c.DampingFactor == 0 {
		c.DampingFactor = 0.5
	}
	if c.DampingStrategy == "" {
		c.DampingStrategy = string(StrategyProportional)
	}
}
