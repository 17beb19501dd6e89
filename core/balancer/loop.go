package balancer

import (
	"time"

	"github.com/google/uuid"

	"github.com/homegrid/homegrid/core/adjust"
	"github.com/homegrid/homegrid/core/logger"
	"github.com/homegrid/homegrid/core/metrics"
	"github.com/homegrid/homegrid/core/model"
	"github.com/homegrid/homegrid/core/oscillation"
	"github.com/homegrid/homegrid/internal/eventbus"
)

// Sensors provides the power readings a balancing cycle needs. A false
// second return means the reading is currently unavailable; that is a skip
// condition, not an error.
type Sensors interface {
	GridPowerW() (float64, bool)
	WallboxPowerW() (float64, bool)
}

// TargetStore reads and writes the battery target actuator.
type TargetStore interface {
	TargetW() (float64, bool)
	SetTargetW(targetW float64) error
}

// Switches exposes the operator toggles the loop honors each cycle.
type Switches interface {
	Enabled() bool
	AllowWallboxBatteryUse() bool
}

// Loop is the grid balancing control loop. Each cycle it reads the meter,
// derives an incremental battery target that steers the grid toward the
// configured export buffer, bends it through the wallbox priority override
// and the oscillation damper, and applies it if the adjustment gate agrees.
//
// Not safe for concurrent use; drive it from a single goroutine.
type Loop struct {
	cfg      Config
	detector *oscillation.Detector
	gate     adjust.Controller
	priority *PriorityOverride
	sensors  Sensors
	store    TargetStore
	switches Switches
	bus      *eventbus.TypedBus[metrics.CycleSample]
	sink     metrics.Sink
	now      func() time.Time
	log      logger.Logger

	wasEnabled bool
}

// NewLoop wires a balancing loop. bus and sink may be nil.
func NewLoop(
	cfg Config,
	detector *oscillation.Detector,
	gate adjust.Controller,
	sensors Sensors,
	store TargetStore,
	switches Switches,
	bus *eventbus.TypedBus[metrics.CycleSample],
	sink metrics.Sink,
	now func() time.Time,
	log logger.Logger,
) *Loop {
	if now == nil {
		now = time.Now
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Loop{
		cfg:        cfg,
		detector:   detector,
		gate:       gate,
		priority:   NewPriorityOverride(cfg.Priority),
		sensors:    sensors,
		store:      store,
		switches:   switches,
		bus:        bus,
		sink:       sink,
		now:        now,
		log:        log,
		wasEnabled: true,
	}
}

// Cycle runs one balancing pass. Disabled loops park the battery at zero
// once and then idle until re-enabled.
func (l *Loop) Cycle() {
	if !l.switches.Enabled() {
		if l.wasEnabled {
			l.wasEnabled = false
			if err := l.store.SetTargetW(0); err != nil {
				l.log.Errorf("failed to reset battery target on disable: %v", err)
			} else {
				l.log.Infof("balancer disabled, battery target set to 0 W")
			}
		}
		return
	}
	if !l.wasEnabled {
		l.wasEnabled = true
		l.log.Infof("balancer enabled, resuming grid balancing")
	}

	gridPowerW, ok := l.sensors.GridPowerW()
	if !ok {
		l.log.Warnf("grid power reading unavailable, skipping cycle")
		return
	}
	currentTargetW, ok := l.store.TargetW()
	if !ok {
		l.log.Warnf("battery target unavailable, assuming 0 W")
		currentTargetW = 0
	}

	targetW, reason := l.computeTarget(gridPowerW, currentTargetW)

	if !l.gate.Allow(gridPowerW, targetW, currentTargetW) {
		st := l.gate.Status()
		l.log.Debugf("grid %+.0f W, cooldown: %.0f W change blocked (%.1fs since last adjustment)",
			gridPowerW, targetW-currentTargetW, st.TimeSinceLastAdjustment.Seconds())
		l.record(gridPowerW, currentTargetW, targetW, false, "blocked by adjustment gate")
		return
	}

	if err := l.store.SetTargetW(targetW); err != nil {
		l.log.Errorf("failed to set battery target to %.0f W: %v", targetW, err)
		l.record(gridPowerW, currentTargetW, targetW, false, "target write failed")
		return
	}
	l.gate.Record(gridPowerW, targetW, currentTargetW, l.now())

	l.log.Infof("grid %+.0f W (%s), battery %+.0f W -> %+.0f W (%+.0f W adjustment)",
		gridPowerW, model.StateOf(gridPowerW), currentTargetW, targetW, targetW-currentTargetW)
	l.record(gridPowerW, currentTargetW, targetW, true, reason)
}

// computeTarget derives the next battery target from the meter reading.
func (l *Loop) computeTarget(gridPowerW, currentTargetW float64) (float64, string) {
	// Steer toward a small export instead of exactly zero.
	gridAdjustment := gridPowerW + l.cfg.SurplusBufferW
	normal := l.clamp(currentTargetW - gridAdjustment)

	target := normal
	var reason string
	if wallboxPowerW, ok := l.sensors.WallboxPowerW(); ok {
		allowed, why := l.priority.Apply(wallboxPowerW, normal, l.switches.AllowWallboxBatteryUse())
		if allowed != normal {
			l.log.Infof("wallbox priority: %s", why)
			reason = why
		}
		target = allowed
	}

	l.detector.AddReading(gridPowerW, l.now())
	if l.detector.IsOscillating() {
		stabilized := l.clamp(l.detector.StabilizedTarget(target))
		info := l.detector.Info()
		l.log.Infof("oscillation detected: amplitude %.0f W, baseline %.0f W, target %.0f W -> %.0f W",
			info.AmplitudeW, info.BaselineW, target, stabilized)
		return stabilized, reason
	}
	return target, reason
}

func (l *Loop) clamp(targetW float64) float64 {
	if targetW > l.cfg.MaxTargetW {
		return l.cfg.MaxTargetW
	}
	if targetW < -l.cfg.MaxTargetW {
		return -l.cfg.MaxTargetW
	}
	return targetW
}

func (l *Loop) record(gridPowerW, previousTargetW, newTargetW float64, applied bool, reason string) {
	info := l.detector.Info()
	sample := metrics.CycleSample{
		ID:              uuid.NewString(),
		Timestamp:       l.now(),
		GridPowerW:      gridPowerW,
		PreviousTargetW: previousTargetW,
		NewTargetW:      newTargetW,
		Oscillating:     info.Oscillating,
		AmplitudeW:      info.AmplitudeW,
		BaselineW:       info.BaselineW,
		Applied:         applied,
		Reason:          reason,
	}
	if l.bus != nil {
		l.bus.Publish(sample)
	}
	l.sink.RecordCycle(sample)
}

// GateStatus exposes the adjustment gate's diagnostic snapshot.
func (l *Loop) GateStatus() adjust.Status {
	return l.gate.Status()
}

// DetectorInfo exposes the oscillation detector's diagnostic snapshot.
func (l *Loop) DetectorInfo() oscillation.Info {
	return l.detector.Info()
}
