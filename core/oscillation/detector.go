package oscillation

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/homegrid/homegrid/core/logger"
	"github.com/homegrid/homegrid/core/model"
)

// analysisInterval throttles how often the sample history is re-analyzed.
// Readings can arrive every few hundred milliseconds in fast-poll mode and
// a full extrema scan per reading would be wasted work.
const analysisInterval = time.Second

// minSamples is the minimum history length before analysis is attempted.
const minSamples = 10

// levelThresholdFloor is the absolute minimum level-change threshold used
// when the recent value range is too small to derive one.
const levelThresholdFloor = 100.0

// Detector classifies a noisy grid power stream as oscillating or not and
// produces a damped actuator target that compensates the detected swing
// without chasing every ripple.
//
// It keeps a rolling time-bounded history of readings, scans it for
// peak/valley cycles, and tracks an adaptive baseline built from the
// midpoints of recent cycles. The baseline survives brief detection gaps
// and follows load steps through exponential smoothing, so a kettle
// switching on mid-oscillation shifts the baseline instead of killing the
// detection.
type Detector struct {
	cfg           Config
	strategy      Strategy
	dampingFactor float64
	log           logger.Logger

	samples []model.PowerSample

	oscillating   bool
	amplitude     float64
	baseline      float64
	baselineSet   bool
	prevBaseline  float64
	shiftDetected bool
	lastAnalysis  time.Time

	centers      []float64
	baselineHist []model.PowerSample
}

// NewDetector builds a detector from cfg. Out-of-range damping factors are
// clamped and unknown strategy names fall back to proportional; neither is
// an error.
func NewDetector(cfg Config, log logger.Logger) *Detector {
	strategy, known := ParseStrategy(cfg.DampingStrategy)
	if !known && cfg.DampingStrategy != "" {
		log.Warnf("unknown damping strategy %q, using %s", cfg.DampingStrategy, strategy)
	}
	factor := cfg.DampingFactor
	if factor < 0 {
		log.Warnf("damping factor %v below range, clamping to 0", factor)
		factor = 0
	}
	if factor > 1 {
		log.Warnf("damping factor %v above range, clamping to 1", factor)
		factor = 1
	}
	return &Detector{cfg: cfg, strategy: strategy, dampingFactor: factor, log: log}
}

// AddReading appends a grid power reading, prunes history outside the
// retention window and re-analyzes at most once per analysisInterval.
// No-op when the detector is disabled.
func (d *Detector) AddReading(powerW float64, at time.Time) {
	if !d.cfg.Enabled {
		return
	}
	d.samples = append(d.samples, model.PowerSample{PowerW: powerW, Timestamp: at})

	cutoff := at.Add(-time.Duration(d.cfg.HistoryDurationS * float64(time.Second)))
	d.samples = pruneBefore(d.samples, cutoff)
	d.baselineHist = pruneBefore(d.baselineHist, cutoff)

	if d.lastAnalysis.IsZero() || at.Sub(d.lastAnalysis) >= analysisInterval {
		d.analyze(at)
		d.lastAnalysis = at
	}
}

func pruneBefore(samples []model.PowerSample, cutoff time.Time) []model.PowerSample {
	kept := samples[:0]
	for _, s := range samples {
		if s.Timestamp.After(cutoff) {
			kept = append(kept, s)
		}
	}
	return kept
}

// IsOscillating returns the cached detection state without re-analyzing.
func (d *Detector) IsOscillating() bool {
	return d.cfg.Enabled && d.oscillating
}

// StabilizedTarget returns a damped actuator target. When no oscillation is
// detected the caller's target passes through unchanged.
func (d *Detector) StabilizedTarget(baseTarget float64) float64 {
	if !d.IsOscillating() {
		return baseTarget
	}
	return d.dampedTarget(baseTarget)
}

// Info is a diagnostic snapshot of the detector state.
type Info struct {
	Enabled                 bool     `json:"enabled"`
	Oscillating             bool     `json:"oscillating"`
	AmplitudeW              float64  `json:"amplitude_w"`
	BaselineW               float64  `json:"baseline_w"`
	PreviousBaselineW       float64  `json:"previous_baseline_w"`
	BaselineShiftDetected   bool     `json:"baseline_shift_detected"`
	BaselineShiftMagnitudeW float64  `json:"baseline_shift_magnitude_w"`
	HistoryPoints           int      `json:"history_points"`
	CenterCount             int      `json:"center_count"`
	DampingFactor           float64  `json:"damping_factor"`
	DampingStrategy         Strategy `json:"damping_strategy"`
}

// Info returns the current diagnostic snapshot.
func (d *Detector) Info() Info {
	return Info{
		Enabled:                 d.cfg.Enabled,
		Oscillating:             d.oscillating,
		AmplitudeW:              d.amplitude,
		BaselineW:               d.baseline,
		PreviousBaselineW:       d.prevBaseline,
		BaselineShiftDetected:   d.shiftDetected,
		BaselineShiftMagnitudeW: d.baseline - d.prevBaseline,
		HistoryPoints:           len(d.samples),
		CenterCount:             len(d.centers),
		DampingFactor:           d.dampingFactor,
		DampingStrategy:         d.strategy,
	}
}

// Reset clears all learned state and history.
func (d *Detector) Reset() {
	d.samples = nil
	d.baselineHist = nil
	d.centers = nil
	d.oscillating = false
	d.amplitude = 0
	d.baseline = 0
	d.baselineSet = false
	d.prevBaseline = 0
	d.shiftDetected = false
	d.lastAnalysis = time.Time{}
}

func (d *Detector) analyze(at time.Time) {
	if len(d.samples) < minSamples {
		d.clearDetection()
		return
	}

	powers := make([]float64, len(d.samples))
	for i, s := range d.samples {
		powers[i] = s.PowerW
	}

	peaks, valleys := findExtrema(powers)
	if len(peaks) < d.cfg.MinCycles || len(valleys) < d.cfg.MinCycles {
		d.clearDetection()
		return
	}
	if !d.validate(peaks, valleys, powers) {
		d.clearDetection()
		return
	}

	d.oscillating = true
	d.amplitude = pairAmplitude(peaks, valleys, powers, 3)

	newBaseline := d.adaptiveBaseline(peaks, valleys, powers)
	if d.baselineSet {
		if shift := abs(newBaseline - d.baseline); shift >= d.cfg.BaselineShiftThresholdW {
			d.shiftDetected = true
			d.prevBaseline = d.baseline
		}
		// Sub-threshold moves keep the previous shift flag to avoid
		// flicker.
		a := d.cfg.BaselineSmoothingFactor
		d.baseline = d.baseline*(1-a) + newBaseline*a
	} else {
		d.baseline = newBaseline
		d.baselineSet = true
	}
	d.baselineHist = append(d.baselineHist, model.PowerSample{PowerW: d.baseline, Timestamp: at})
}

// clearDetection drops the oscillating flag and amplitude but keeps the
// learned baseline so a brief detection gap does not discard it.
func (d *Detector) clearDetection() {
	d.oscillating = false
	d.amplitude = 0
	d.shiftDetected = false
}

// findExtrema locates peaks and valleys through level-change detection.
// A transition is flagged when a reading jumps by more than 20% of the
// recent value range; the midpoint of each stable high or low run is the
// recorded extremum. This handles square-wave patterns with runs of
// identical values that a naive neighbor comparison misses.
func findExtrema(powers []float64) (peaks, valleys []int) {
	if len(powers) < 6 {
		return nil, nil
	}

	recent := powers
	if len(powers) > 15 {
		recent = powers[len(powers)-15:]
	}
	threshold := levelThresholdFloor
	if len(recent) > 1 {
		if r := maxOf(recent) - minOf(recent); r*0.2 > 0 {
			threshold = r * 0.2
		}
	}

	i := 1
	for i < len(powers)-1 {
		level := powers[i]
		switch {
		case powers[i] > powers[i-1]+threshold:
			start := i
			for i < len(powers)-1 && abs(powers[i]-level) < threshold/2 {
				i++
			}
			peaks = append(peaks, (start+i-1)/2)
		case powers[i] < powers[i-1]-threshold:
			start := i
			for i < len(powers)-1 && abs(powers[i]-level) < threshold/2 {
				i++
			}
			valleys = append(valleys, (start+i-1)/2)
		default:
			i++
		}
	}
	return peaks, valleys
}

func (d *Detector) validate(peaks, valleys []int, powers []float64) bool {
	return d.amplitudeSufficient(peaks, valleys, powers) &&
		d.cycleTimingValid(peaks, valleys) &&
		amplitudeConsistent(peaks, valleys, powers)
}

// amplitudeSufficient checks the mean swing of recent peak-valley pairs
// against the configured minimum.
func (d *Detector) amplitudeSufficient(peaks, valleys []int, powers []float64) bool {
	amps := pairAmplitudes(peaks, valleys, powers, 5)
	if len(amps) == 0 {
		return false
	}
	return stat.Mean(amps, nil) >= d.cfg.MinAmplitudeW
}

// cycleTimingValid rejects both sensor noise (half-cycles under 10 ms) and
// slow drift (half-cycles longer than half the configured max cycle).
func (d *Detector) cycleTimingValid(peaks, valleys []int) bool {
	extrema := append(append([]int{}, peaks...), valleys...)
	sort.Ints(extrema)
	if len(extrema) < 4 {
		return false
	}
	const minHalfCycle = 0.01
	maxHalfCycle := d.cfg.MaxCycleDurationS / 2
	for i := 1; i < len(extrema); i++ {
		a, b := extrema[i-1], extrema[i]
		if a >= len(d.samples) || b >= len(d.samples) {
			continue
		}
		gap := d.samples[b].Timestamp.Sub(d.samples[a].Timestamp).Seconds()
		if gap < minHalfCycle || gap > maxHalfCycle {
			return false
		}
	}
	return true
}

// amplitudeConsistent rejects non-periodic noise: the coefficient of
// variation across recent cycle amplitudes must stay under 40%. Absolute
// levels are deliberately not compared so baseline shifts pass.
func amplitudeConsistent(peaks, valleys []int, powers []float64) bool {
	if len(peaks) < 2 || len(valleys) < 2 {
		return true
	}
	amps := pairAmplitudes(peaks, valleys, powers, 3)
	if len(amps) < 2 {
		return true
	}
	mean := stat.Mean(amps, nil)
	if mean <= 0 {
		return true
	}
	return stat.StdDev(amps, nil)/mean <= 0.4
}

// adaptiveBaseline derives the baseline from the midpoints of recent
// peak-valley pairs, pooled over the last ten centers. With no usable
// centers it falls back to the mean of the last ten raw readings.
func (d *Detector) adaptiveBaseline(peaks, valleys []int, powers []float64) float64 {
	recentPeaks := tail(peaks, 5)
	recentValleys := tail(valleys, 5)
	for _, p := range recentPeaks {
		if v, ok := closestIndex(recentValleys, p); ok {
			d.centers = append(d.centers, (powers[p]+powers[v])/2)
		}
	}
	if len(d.centers) > 10 {
		d.centers = d.centers[len(d.centers)-10:]
	}
	if len(d.centers) > 0 {
		return stat.Mean(d.centers, nil)
	}
	recent := powers
	if len(powers) > 10 {
		recent = powers[len(powers)-10:]
	}
	return stat.Mean(recent, nil)
}

// pairAmplitude is the mean swing of the n most recent peak-valley pairs.
func pairAmplitude(peaks, valleys []int, powers []float64, n int) float64 {
	amps := pairAmplitudes(peaks, valleys, powers, n)
	if len(amps) == 0 {
		return 0
	}
	return stat.Mean(amps, nil)
}

func pairAmplitudes(peaks, valleys []int, powers []float64, n int) []float64 {
	recentPeaks := tail(peaks, n)
	recentValleys := tail(valleys, n)
	var amps []float64
	for _, p := range recentPeaks {
		if v, ok := closestIndex(recentValleys, p); ok {
			amps = append(amps, abs(powers[p]-powers[v]))
		}
	}
	return amps
}

// closestIndex returns the candidate nearest to target.
func closestIndex(candidates []int, target int) (int, bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if absInt(c-target) < absInt(best-target) {
			best = c
		}
	}
	return best, true
}

func tail(xs []int, n int) []int {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
