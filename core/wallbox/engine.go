package wallbox

import (
	"math"
	"time"

	"github.com/homegrid/homegrid/core/logger"
	"github.com/homegrid/homegrid/core/model"
)

// managed carries the per-charger failure bookkeeping the engine keeps
// between cycles.
type managed struct {
	charger Charger
	weight  float64

	attempts int
	checkAt  time.Time
	retryAt  time.Time
}

// Engine allocates export surplus across the configured chargers by
// priority weight. It is cycle-driven: every Manage call reads the charger
// states, splits the available power and issues the resulting current
// commands. Chargers that repeatedly fail to draw power after a start
// command are parked at minimum current and retried after a backoff.
//
// Not safe for concurrent use.
type Engine struct {
	cfg  Config
	conv PowerConverter
	now  func() time.Time
	log  logger.Logger

	chargers []*managed
}

// NewEngine builds an engine over the given chargers. Weights come from the
// config entry matching each charger's name; unlisted chargers get weight 1.
func NewEngine(cfg Config, chargers []Charger, now func() time.Time, log logger.Logger) *Engine {
	if now == nil {
		now = time.Now
	}
	weights := make(map[string]float64, len(cfg.Chargers))
	for _, cc := range cfg.Chargers {
		weights[cc.Name] = cc.PriorityWeight
	}
	e := &Engine{cfg: cfg, conv: NewPowerConverter(cfg.VoltageV, cfg.Sqrt3), now: now, log: log}
	for _, c := range chargers {
		w, ok := weights[c.Name()]
		if !ok {
			log.Warnf("charger %s has no configured priority, using weight 1", c.Name())
			w = 1
		}
		e.chargers = append(e.chargers, &managed{charger: c, weight: w})
	}
	return e
}

// Manage runs one allocation cycle. gridPowerW is the signed meter reading,
// batteryPowerW the battery system's current power (positive while
// charging). Battery charging counts as surplus the chargers may claim:
// vehicle charging outranks filling the home battery.
func (e *Engine) Manage(gridPowerW, batteryPowerW float64) {
	at := e.now()
	e.processPendingChecks(at)
	e.processRetries(at)

	surplus := model.Surplus(gridPowerW)
	if batteryPowerW > 0 {
		e.log.Debugf("battery charging at %.1f W, adding to surplus", batteryPowerW)
		surplus += batteryPowerW
	}
	adjusted := surplus - e.cfg.BufferW

	totalAvailable := adjusted
	for _, m := range e.active() {
		if m.charger.Charging() {
			totalAvailable += m.charger.CurrentPowerW()
		}
	}
	e.log.Debugf("surplus %.1f W, %.1f W available after buffer and running sessions", surplus, totalAvailable)

	available := e.availableForAllocation()
	switch len(available) {
	case 0:
		e.handleNoneAvailable(at)
	case 1:
		e.handleSingle(available[0], totalAvailable, at)
	default:
		e.handleMultiple(available, totalAvailable, at)
	}
}

func (e *Engine) active() []*managed {
	var out []*managed
	for _, m := range e.chargers {
		if m.charger.Enabled() && m.charger.CableConnected() {
			out = append(out, m)
		}
	}
	return out
}

func (e *Engine) availableForAllocation() []*managed {
	var out []*managed
	for _, m := range e.active() {
		if !e.failed(m) {
			out = append(out, m)
		}
	}
	return out
}

// failed reports whether the charger burned through its start attempts
// without ever drawing power. An actually running session always clears it.
func (e *Engine) failed(m *managed) bool {
	if m.charger.Charging() && m.charger.CurrentPowerW() > e.cfg.ChargingPowerThresholdW {
		return false
	}
	return m.attempts >= e.cfg.MaxChargingAttempts
}

// processPendingChecks verifies start attempts whose check delay expired.
func (e *Engine) processPendingChecks(at time.Time) {
	for _, m := range e.chargers {
		if m.checkAt.IsZero() || at.Before(m.checkAt) {
			continue
		}
		m.checkAt = time.Time{}
		if m.charger.Charging() && m.charger.CurrentPowerW() > e.cfg.ChargingPowerThresholdW {
			e.log.Infof("%s charging started, drawing %.0f W", m.charger.Name(), m.charger.CurrentPowerW())
			m.attempts = 0
			continue
		}
		e.log.Warnf("%s did not start charging, attempt %d of %d", m.charger.Name(), m.attempts, e.cfg.MaxChargingAttempts)
		if m.attempts >= e.cfg.MaxChargingAttempts && m.retryAt.IsZero() {
			m.retryAt = at.Add(time.Duration(e.cfg.ChargingRetryIntervalS * float64(time.Second)))
			e.log.Warnf("%s failed to start charging, retrying at %s", m.charger.Name(), m.retryAt.Format(time.RFC3339))
		}
	}
}

// processRetries re-arms failed chargers whose backoff expired.
func (e *Engine) processRetries(at time.Time) {
	for _, m := range e.chargers {
		if m.retryAt.IsZero() {
			if e.failed(m) {
				m.retryAt = at.Add(time.Duration(e.cfg.ChargingRetryIntervalS * float64(time.Second)))
			}
			continue
		}
		if at.Before(m.retryAt) {
			continue
		}
		e.log.Infof("retrying charging for %s", m.charger.Name())
		m.attempts = 0
		m.retryAt = time.Time{}
		if m.charger.Enabled() && m.charger.CableConnected() {
			e.startCharging(m, at)
		}
	}
}

func (e *Engine) handleNoneAvailable(at time.Time) {
	active := e.active()
	if len(active) == 0 {
		e.log.Debugf("no chargers active")
		return
	}
	// Everything active has failed: park at minimum current without
	// starting a session.
	minW := e.conv.MinPowerForCurrent(e.cfg.MinCurrentA)
	for _, m := range active {
		if e.failed(m) {
			e.apply(m, minW, at)
		}
	}
}

func (e *Engine) handleSingle(m *managed, totalAvailable float64, at time.Time) {
	e.log.Debugf("single charger %s, allocating all %.1f W", m.charger.Name(), totalAvailable)
	e.apply(m, totalAvailable, at)

	minW := e.conv.MinPowerForCurrent(e.cfg.MinCurrentA)
	for _, other := range e.active() {
		if other == m {
			continue
		}
		if e.failed(other) {
			e.apply(other, minW, at)
		} else if other.charger.Charging() {
			e.log.Infof("%s should not be charging, stopping", other.charger.Name())
			e.stopCharging(other)
		}
	}
}

func (e *Engine) handleMultiple(available []*managed, totalPower float64, at time.Time) {
	allocations := e.allocateByWeight(available, totalPower)

	// Clamp each share to the max current; hand freed power to chargers
	// still below their limit.
	var totalRealistic float64
	for _, m := range available {
		amps := math.Min(e.conv.ToAmps(allocations[m]), e.cfg.MaxCurrentA)
		allocations[m] = e.conv.ToWatts(amps)
		totalRealistic += allocations[m]
	}
	remaining := totalPower - totalRealistic
	for _, m := range available {
		if remaining <= 0 {
			break
		}
		amps := e.conv.ToAmps(allocations[m])
		if amps >= e.cfg.MaxCurrentA {
			continue
		}
		add := math.Min(remaining/e.conv.Voltage(), e.cfg.MaxCurrentA-amps)
		addW := e.conv.ToWatts(add)
		if addW > 0 {
			allocations[m] += addW
			remaining -= addW
		}
	}

	insufficient := false
	for _, m := range available {
		if e.conv.ToAmps(allocations[m]) < e.cfg.MinCurrentA {
			insufficient = true
			break
		}
	}
	minForAll := float64(len(available)) * e.conv.MinPowerForCurrent(e.cfg.MinCurrentA)

	if !insufficient && totalPower >= minForAll {
		e.log.Debugf("enough power for all %d chargers", len(available))
		for _, m := range available {
			e.apply(m, allocations[m], at)
		}
		return
	}

	e.log.Infof("not enough power for all chargers at minimum current, prioritizing")
	priority := available[0]
	for _, m := range available[1:] {
		if m.weight > priority.weight {
			priority = m
		}
	}
	e.prioritize(priority, available, totalPower, at)
}

func (e *Engine) allocateByWeight(available []*managed, totalPower float64) map[*managed]float64 {
	var totalWeight float64
	for _, m := range available {
		totalWeight += m.weight
	}
	out := make(map[*managed]float64, len(available))
	for _, m := range available {
		out[m] = totalPower * m.weight / totalWeight
	}
	return out
}

// prioritize gives all available power to the highest-weight charger and stops
// the rest, or stops everything when even one charger cannot run.
func (e *Engine) prioritize(priority *managed, available []*managed, totalPower float64, at time.Time) {
	minW := e.conv.MinPowerForCurrent(e.cfg.MinCurrentA)

	if totalPower >= minW && !e.failed(priority) {
		amps := math.Min(math.Round(e.conv.ToAmps(totalPower)), e.cfg.MaxCurrentA)
		amps = math.Max(amps, e.cfg.MinCurrentA)
		e.log.Infof("%s has priority, allocating %.1f W (%.0f A)", priority.charger.Name(), e.conv.ToWatts(amps), amps)
		e.apply(priority, e.conv.ToWatts(amps), at)

		for _, m := range available {
			if m == priority {
				continue
			}
			if e.failed(m) {
				e.apply(m, minW, at)
			} else if m.charger.Charging() {
				e.log.Infof("not enough remaining power for %s, stopping", m.charger.Name())
				e.stopCharging(m)
			}
		}
		return
	}

	e.log.Infof("not enough power even for the priority charger")
	for _, m := range available {
		if e.failed(m) {
			e.apply(m, minW, at)
		} else if m.charger.Charging() {
			e.stopCharging(m)
		}
	}
}

// apply turns a watt allocation into a current command. Failed chargers are
// parked at minimum current without starting; allocations below the minimum
// viable current stop the charger.
func (e *Engine) apply(m *managed, watts float64, at time.Time) {
	if e.failed(m) {
		e.setCurrent(m, e.cfg.MinCurrentA, false, at)
		return
	}
	amps := e.conv.ToAmps(watts)
	if amps < e.cfg.MinCurrentA {
		e.setCurrent(m, 0, false, at)
		return
	}
	e.setCurrent(m, math.Min(amps, e.cfg.MaxCurrentA), true, at)
}

func (e *Engine) setCurrent(m *managed, amps float64, tryStart bool, at time.Time) {
	clamped := math.Max(math.Min(math.Trunc(amps), e.cfg.MaxCurrentA), 0)

	if clamped < e.cfg.MinCurrentA {
		if m.charger.Charging() {
			e.log.Infof("%s current %.0f A below minimum, stopping charge", m.charger.Name(), clamped)
			e.stopCharging(m)
		}
		return
	}

	if clamped != m.charger.CurrentLimitA() {
		if err := m.charger.SetCurrentA(clamped); err != nil {
			e.log.Errorf("failed to set %s current to %.0f A: %v", m.charger.Name(), clamped, err)
			return
		}
	}
	if tryStart && !m.charger.Charging() && m.charger.CableConnected() {
		e.startCharging(m, at)
	}
}

func (e *Engine) startCharging(m *managed, at time.Time) {
	e.log.Infof("starting charging for %s at %.0f A", m.charger.Name(), e.cfg.MinCurrentA)
	if err := m.charger.SetCurrentA(e.cfg.MinCurrentA); err != nil {
		e.log.Errorf("failed to set %s start current: %v", m.charger.Name(), err)
	}
	if err := m.charger.StartCharging(); err != nil {
		e.log.Errorf("failed to start charging for %s: %v", m.charger.Name(), err)
		return
	}
	m.attempts++
	m.checkAt = at.Add(time.Duration(e.cfg.ChargingCheckDelayS * float64(time.Second)))
}

func (e *Engine) stopCharging(m *managed) {
	if err := m.charger.StopCharging(); err != nil {
		e.log.Errorf("failed to stop charging for %s: %v", m.charger.Name(), err)
		return
	}
	if err := m.charger.SetCurrentA(0); err != nil {
		e.log.Errorf("failed to reset %s current: %v", m.charger.Name(), err)
	}
}

// RequiresPower reports whether any charger wants surplus right now:
// enabled, plugged in, and either charging or still healthy enough to
// start. The balancing loop uses this to decide between feeding surplus to
// vehicles or to the home battery.
func (e *Engine) RequiresPower() bool {
	for _, m := range e.chargers {
		c := m.charger
		if c.Enabled() && c.CableConnected() && (c.Charging() || !e.failed(m)) {
			return true
		}
	}
	return false
}

// Status returns a diagnostic snapshot of every managed charger.
func (e *Engine) Status() []model.WallboxSnapshot {
	out := make([]model.WallboxSnapshot, 0, len(e.chargers))
	for _, m := range e.chargers {
		c := m.charger
		out = append(out, model.WallboxSnapshot{
			Name:           c.Name(),
			PriorityWeight: m.weight,
			Enabled:        c.Enabled(),
			CableConnected: c.CableConnected(),
			Charging:       c.Charging(),
			CurrentPowerW:  c.CurrentPowerW(),
			CurrentLimitA:  c.CurrentLimitA(),
			Failed:         e.failed(m),
		})
	}
	return out
}
