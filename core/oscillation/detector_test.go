package oscillation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homegrid/homegrid/infra/logger"
)

func testConfig() Config {
	return Config{
		Enabled:                 true,
		MinAmplitudeW:           400,
		MinCycles:               2,
		MaxCycleDurationS:       10,
		HistoryDurationS:        30,
		StabilizationFactor:     1.1,
		BaselineSmoothingFactor: 0.1,
		BaselineShiftThresholdW: 500,
		DampingFactor:           0.5,
		DampingStrategy:         string(StrategyProportional),
	}
}

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// feedSquareWave alternates hi and lo readings, step apart, starting at
// start, and returns the timestamp after the last sample.
func feedSquareWave(d *Detector, hi, lo float64, n int, start time.Time, step time.Duration) time.Time {
	at := start
	for i := 0; i < n; i++ {
		v := hi
		if i%2 == 1 {
			v = lo
		}
		d.AddReading(v, at)
		at = at.Add(step)
	}
	return at
}

func TestDetectorDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	d := NewDetector(cfg, logger.NopLogger{})

	feedSquareWave(d, -1200, -1800, 20, t0, 500*time.Millisecond)

	assert.False(t, d.IsOscillating())
	assert.Equal(t, 0, d.Info().HistoryPoints)
	assert.Equal(t, 1500.0, d.StabilizedTarget(1500))
}

func TestDetectorNeedsMinimumSamples(t *testing.T) {
	d := NewDetector(testConfig(), logger.NopLogger{})
	feedSquareWave(d, -1200, -1800, 8, t0, 500*time.Millisecond)
	assert.False(t, d.IsOscillating())
}

func TestDetectorSteadySignal(t *testing.T) {
	d := NewDetector(testConfig(), logger.NopLogger{})
	at := t0
	for i := 0; i < 20; i++ {
		d.AddReading(-1500, at)
		at = at.Add(500 * time.Millisecond)
	}
	assert.False(t, d.IsOscillating())
	assert.Equal(t, 2500.0, d.StabilizedTarget(2500), "no detection passes the target through")
}

func TestDetectorSquareWave(t *testing.T) {
	d := NewDetector(testConfig(), logger.NopLogger{})
	feedSquareWave(d, -1200, -1800, 20, t0, 500*time.Millisecond)

	require.True(t, d.IsOscillating())

	info := d.Info()
	assert.InDelta(t, 600, info.AmplitudeW, 50)
	assert.Greater(t, info.BaselineW, -1800.0)
	assert.Less(t, info.BaselineW, -1200.0)

	target := d.StabilizedTarget(1500)
	assert.Less(t, target, 1500.0, "compensation must push toward discharge")
	assert.Greater(t, target, 0.0, "compensation must not overshoot past zero")
}

func TestDetectorRejectsSlowDrift(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCycleDurationS = 4
	cfg.HistoryDurationS = 120
	d := NewDetector(cfg, logger.NopLogger{})

	// Same swing, but a full cycle takes 12 s: slower than the 4 s limit.
	feedSquareWave(d, -1200, -1800, 20, t0, 6*time.Second)
	assert.False(t, d.IsOscillating())
}

func TestDetectorRejectsInconsistentAmplitudes(t *testing.T) {
	d := NewDetector(testConfig(), logger.NopLogger{})
	at := t0
	// Dips of 1700, 8000, 2400 and 8000 W: periodic, but far too ragged
	// to treat as one oscillation.
	for _, v := range []float64{
		-1000, -2700, -1000, -1000, -9000, -1000, -1000,
		-3400, -1000, -1000, -9000, -1000, -1000, -1000,
	} {
		d.AddReading(v, at)
		at = at.Add(500 * time.Millisecond)
	}
	assert.False(t, d.IsOscillating())
}

func TestDetectorBaselineSurvivesDetectionGap(t *testing.T) {
	cfg := testConfig()
	cfg.HistoryDurationS = 8
	d := NewDetector(cfg, logger.NopLogger{})

	at := feedSquareWave(d, -1200, -1800, 20, t0, 500*time.Millisecond)
	require.True(t, d.IsOscillating())
	baseline := d.Info().BaselineW
	require.NotZero(t, baseline)

	// Steady readings push the oscillation out of the rolling window.
	for i := 0; i < 20; i++ {
		d.AddReading(-1500, at)
		at = at.Add(500 * time.Millisecond)
	}

	info := d.Info()
	assert.False(t, info.Oscillating)
	assert.Zero(t, info.AmplitudeW)
	assert.Equal(t, baseline, info.BaselineW, "baseline is kept across the gap")
}

func TestDetectorBaselineShift(t *testing.T) {
	d := NewDetector(testConfig(), logger.NopLogger{})

	// Pretend a baseline near -1500 was already learned, then present an
	// oscillation centered near zero: a 1500 W step, well past the 500 W
	// shift threshold.
	d.baseline = -1500
	d.baselineSet = true

	feedSquareWave(d, 300, -300, 20, t0, 500*time.Millisecond)

	require.True(t, d.IsOscillating())
	info := d.Info()
	assert.True(t, info.BaselineShiftDetected)
	assert.Greater(t, info.BaselineShiftMagnitudeW, 0.0, "baseline moves toward the new center")
	assert.Greater(t, info.BaselineW, -1500.0)
	assert.Less(t, info.BaselineW, 0.0, "smoothing keeps the baseline short of the new center")
}

func TestDetectorReset(t *testing.T) {
	d := NewDetector(testConfig(), logger.NopLogger{})
	feedSquareWave(d, -1200, -1800, 20, t0, 500*time.Millisecond)
	require.True(t, d.IsOscillating())

	d.Reset()

	info := d.Info()
	assert.False(t, info.Oscillating)
	assert.Zero(t, info.BaselineW)
	assert.Zero(t, info.HistoryPoints)
	assert.Zero(t, info.CenterCount)
}

func TestNewDetectorClampsDampingFactor(t *testing.T) {
	cfg := testConfig()
	cfg.DampingFactor = 5
	d := NewDetector(cfg, logger.NopLogger{})
	assert.Equal(t, 1.0, d.Info().DampingFactor)

	cfg.DampingFactor = -3
	d = NewDetector(cfg, logger.NopLogger{})
	assert.Equal(t, 0.0, d.Info().DampingFactor)
}

func TestNewDetectorUnknownStrategy(t *testing.T) {
	cfg := testConfig()
	cfg.DampingStrategy = "wild"
	d := NewDetector(cfg, logger.NopLogger{})
	assert.Equal(t, StrategyProportional, d.Info().DampingStrategy)
}

func TestConfigSetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, 1000.0, cfg.MinAmplitudeW)
	assert.Equal(t, 2, cfg.MinCycles)
	assert.Equal(t, 10.0, cfg.MaxCycleDurationS)
	assert.Equal(t, 30.0, cfg.HistoryDurationS)
	assert.Equal(t, 0.5, cfg.DampingFactor)
	assert.Equal(t, string(StrategyProportional), cfg.DampingStrategy)
}
