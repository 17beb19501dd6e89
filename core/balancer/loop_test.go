package balancer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homegrid/homegrid/core/adjust"
	"github.com/homegrid/homegrid/core/metrics"
	"github.com/homegrid/homegrid/core/oscillation"
	"github.com/homegrid/homegrid/infra/logger"
	"github.com/homegrid/homegrid/internal/eventbus"
)

type fakeSensors struct {
	gridW     float64
	gridOK    bool
	wallboxW  float64
	wallboxOK bool
}

func (s *fakeSensors) GridPowerW() (float64, bool)    { return s.gridW, s.gridOK }
func (s *fakeSensors) WallboxPowerW() (float64, bool) { return s.wallboxW, s.wallboxOK }

type fakeStore struct {
	targetW float64
	ok      bool
	sets    []float64
	failSet bool
}

func (s *fakeStore) TargetW() (float64, bool) { return s.targetW, s.ok }

func (s *fakeStore) SetTargetW(targetW float64) error {
	if s.failSet {
		return errors.New("service call failed")
	}
	s.sets = append(s.sets, targetW)
	s.targetW = targetW
	return nil
}

type fakeSwitches struct {
	enabled         bool
	allowBatteryUse bool
}

func (s *fakeSwitches) Enabled() bool                { return s.enabled }
func (s *fakeSwitches) AllowWallboxBatteryUse() bool { return s.allowBatteryUse }

type loopClock struct {
	t time.Time
}

func (c *loopClock) Now() time.Time          { return c.t }
func (c *loopClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type captureSink struct {
	cycles   []metrics.CycleSample
	statuses []metrics.StatusSample
}

func (s *captureSink) RecordCycle(c metrics.CycleSample)   { s.cycles = append(s.cycles, c) }
func (s *captureSink) RecordStatus(c metrics.StatusSample) { s.statuses = append(s.statuses, c) }
func (s *captureSink) Close() error                        { return nil }

type loopFixture struct {
	loop     *Loop
	sensors  *fakeSensors
	store    *fakeStore
	switches *fakeSwitches
	clock    *loopClock
	bus      *eventbus.TypedBus[metrics.CycleSample]
	events   <-chan metrics.CycleSample
	sink     *captureSink
}

func newLoopFixture(cfg Config, cooldownSeconds float64) *loopFixture {
	cfg.SetDefaults()
	clk := &loopClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	oscCfg := oscillation.Config{Enabled: true, MinAmplitudeW: 400}
	oscCfg.SetDefaults()
	detector := oscillation.NewDetector(oscCfg, logger.NopLogger{})
	bus := eventbus.NewTyped[metrics.CycleSample]()

	f := &loopFixture{
		sensors:  &fakeSensors{gridOK: true, wallboxOK: true},
		store:    &fakeStore{ok: true},
		switches: &fakeSwitches{enabled: true},
		clock:    clk,
		bus:      bus,
		events:   bus.Subscribe(),
		sink:     &captureSink{},
	}
	f.loop = NewLoop(cfg, detector, adjust.NewSimple(cooldownSeconds, clk.Now),
		f.sensors, f.store, f.switches, bus, f.sink, clk.Now, logger.NopLogger{})
	return f
}

func (f *loopFixture) lastEvent(t *testing.T) metrics.CycleSample {
	t.Helper()
	var last metrics.CycleSample
	got := false
	for {
		select {
		case e := <-f.events:
			last = e
			got = true
		default:
			require.True(t, got, "no cycle event published")
			return last
		}
	}
}

func TestCycleBalancesTowardBuffer(t *testing.T) {
	f := newLoopFixture(Config{}, 0)
	f.sensors.gridW = 500

	f.loop.Cycle()

	// Importing 500 W with a 50 W export buffer needs 550 W more
	// discharge.
	require.Len(t, f.store.sets, 1)
	assert.Equal(t, -550.0, f.store.sets[0])

	e := f.lastEvent(t)
	assert.True(t, e.Applied)
	assert.Equal(t, 500.0, e.GridPowerW)
	assert.Equal(t, -550.0, e.NewTargetW)
	assert.NotEmpty(t, e.ID)
}

func TestCycleIncrementalAdjustment(t *testing.T) {
	f := newLoopFixture(Config{}, 0)
	f.store.targetW = -1000
	f.sensors.gridW = 200

	f.loop.Cycle()

	require.Len(t, f.store.sets, 1)
	assert.Equal(t, -1250.0, f.store.sets[0], "adjustment stacks on the current target")
}

func TestCycleClampsTarget(t *testing.T) {
	f := newLoopFixture(Config{}, 0)
	f.sensors.gridW = 20000

	f.loop.Cycle()

	require.Len(t, f.store.sets, 1)
	assert.Equal(t, -7500.0, f.store.sets[0])
}

func TestCycleCooldownBlocks(t *testing.T) {
	f := newLoopFixture(Config{}, 6)
	f.sensors.gridW = 500

	f.loop.Cycle()
	require.Len(t, f.store.sets, 1)

	f.clock.Advance(2 * time.Second)
	f.sensors.gridW = 400
	f.loop.Cycle()
	assert.Len(t, f.store.sets, 1, "second write blocked inside cooldown")
	e := f.lastEvent(t)
	assert.False(t, e.Applied)

	f.clock.Advance(5 * time.Second)
	f.loop.Cycle()
	assert.Len(t, f.store.sets, 2)
}

func TestCycleSkipsOnMissingGridReading(t *testing.T) {
	f := newLoopFixture(Config{}, 0)
	f.sensors.gridOK = false

	f.loop.Cycle()

	assert.Empty(t, f.store.sets)
}

func TestCycleMissingTargetAssumesZero(t *testing.T) {
	f := newLoopFixture(Config{}, 0)
	f.store.ok = false
	f.store.targetW = -9999 // must be ignored
	f.sensors.gridW = 100

	f.loop.Cycle()

	require.Len(t, f.store.sets, 1)
	assert.Equal(t, -150.0, f.store.sets[0])
}

func TestCycleDisabledParksTargetOnce(t *testing.T) {
	f := newLoopFixture(Config{}, 0)
	f.switches.enabled = false
	f.sensors.gridW = 500

	f.loop.Cycle()
	f.loop.Cycle()

	assert.Equal(t, []float64{0}, f.store.sets, "park at zero exactly once")
}

func TestCycleFailedWriteNotRecorded(t *testing.T) {
	f := newLoopFixture(Config{}, 6)
	f.sensors.gridW = 500
	f.store.failSet = true

	f.loop.Cycle()
	e := f.lastEvent(t)
	assert.False(t, e.Applied)

	// The gate must not have recorded the failed write, so a retry goes
	// out immediately.
	f.store.failSet = false
	f.loop.Cycle()
	require.Len(t, f.store.sets, 1)
}

func TestCyclePriorityBlocksDischarge(t *testing.T) {
	cfg := Config{Priority: PriorityConfig{Enabled: true}}
	f := newLoopFixture(cfg, 0)
	f.sensors.gridW = 500 // would discharge 550 W
	f.sensors.wallboxW = 2500

	f.loop.Cycle()

	require.Len(t, f.store.sets, 1)
	assert.Equal(t, 0.0, f.store.sets[0], "discharge blocked while the wallbox charges")
}

func TestCyclePriorityToggleAllowsDischarge(t *testing.T) {
	cfg := Config{Priority: PriorityConfig{Enabled: true}}
	f := newLoopFixture(cfg, 0)
	f.sensors.gridW = 500
	f.sensors.wallboxW = 2500
	f.switches.allowBatteryUse = true

	f.loop.Cycle()

	require.Len(t, f.store.sets, 1)
	assert.Equal(t, -550.0, f.store.sets[0])
}

func TestCyclePriorityReservesChargeHeadroom(t *testing.T) {
	cfg := Config{Priority: PriorityConfig{Enabled: true}}
	f := newLoopFixture(cfg, 0)
	f.sensors.gridW = -1550 // exporting: charge target 1500 W
	f.sensors.wallboxW = 2500

	f.loop.Cycle()

	require.Len(t, f.store.sets, 1)
	assert.Equal(t, 500.0, f.store.sets[0], "1000 W reserved for the wallbox")
}

func TestCyclePriorityIdleWallboxUntouched(t *testing.T) {
	cfg := Config{Priority: PriorityConfig{Enabled: true}}
	f := newLoopFixture(cfg, 0)
	f.sensors.gridW = -1550
	f.sensors.wallboxW = 20 // below the 100 W threshold

	f.loop.Cycle()

	require.Len(t, f.store.sets, 1)
	assert.Equal(t, 1500.0, f.store.sets[0])
}

func TestCycleOscillationDamping(t *testing.T) {
	f := newLoopFixture(Config{}, 0)

	// Square wave on the meter; every cycle feeds the detector.
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			f.sensors.gridW = -1200
		} else {
			f.sensors.gridW = -1800
		}
		f.loop.Cycle()
		f.clock.Advance(500 * time.Millisecond)
	}

	info := f.loop.DetectorInfo()
	require.True(t, info.Oscillating)
	assert.InDelta(t, 600, info.AmplitudeW, 50)

	require.NotEmpty(t, f.sink.cycles)
	last := f.sink.cycles[len(f.sink.cycles)-1]
	assert.True(t, last.Oscillating)
	assert.NotZero(t, last.AmplitudeW)
}

func TestPriorityOverrideDisabled(t *testing.T) {
	p := NewPriorityOverride(PriorityConfig{})
	got, reason := p.Apply(5000, -2000, false)
	assert.Equal(t, -2000.0, got)
	assert.Empty(t, reason)
}

func TestPriorityOverrideReserveFloorsAtZero(t *testing.T) {
	cfg := PriorityConfig{Enabled: true}
	cfg.SetDefaults()
	p := NewPriorityOverride(cfg)

	got, _ := p.Apply(2000, 600, false)
	assert.Equal(t, 0.0, got, "reserve never flips a charge target negative")
}

func TestPriorityStatus(t *testing.T) {
	cfg := PriorityConfig{Enabled: true}
	cfg.SetDefaults()
	p := NewPriorityOverride(cfg)

	st := p.Status(350)
	assert.True(t, st.Enabled)
	assert.True(t, st.WallboxActive)
	assert.Equal(t, 350.0, st.WallboxPowerW)
	assert.Equal(t, 1000.0, st.ReservePowerW)
}
