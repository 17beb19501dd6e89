package battery

import (
	"math"

	"github.com/homegrid/homegrid/core/logger"
	"github.com/homegrid/homegrid/core/model"
)

// Distributor coordinates a set of battery units as one logical battery.
// A total power request is split proportionally to unit capacity among the
// units whose state of charge can actually serve it, clamped to per-unit
// limits. Commands are cached per unit and skipped when the new value is
// within the configured tolerance of the last applied one; the cache is
// invalidated whenever the set of available units changes.
//
// Not safe for concurrent use; the balancing loop drives it from a single
// goroutine.
type Distributor struct {
	cfg   Config
	units []Unit
	log   logger.Logger

	targetPowerW  float64
	lastApplied   map[string]float64
	lastAvailable map[string]struct{}
}

// NewDistributor builds a distributor over the given units.
func NewDistributor(cfg Config, units []Unit, log logger.Logger) *Distributor {
	return &Distributor{
		cfg:           cfg,
		units:         units,
		log:           log,
		lastApplied:   make(map[string]float64),
		lastAvailable: make(map[string]struct{}),
	}
}

// Available returns the units currently accepting commands.
func (d *Distributor) Available() []Unit {
	var out []Unit
	for _, u := range d.units {
		if u.Available() {
			out = append(out, u)
		}
	}
	return out
}

// TargetPowerW returns the last requested total power.
func (d *Distributor) TargetPowerW() float64 {
	return d.targetPowerW
}

// CombinedSoC is total remaining energy over total capacity across the
// available units, in percent.
func (d *Distributor) CombinedSoC() float64 {
	var remaining, capacity float64
	for _, u := range d.Available() {
		remaining += u.RemainingKWh()
		capacity += u.CapacityKWh()
	}
	if capacity == 0 {
		return 0
	}
	return remaining / capacity * 100
}

// CombinedRemainingKWh sums remaining energy across available units.
func (d *Distributor) CombinedRemainingKWh() float64 {
	var total float64
	for _, u := range d.Available() {
		total += u.RemainingKWh()
	}
	return total
}

// CombinedCapacityKWh sums capacity across available units.
func (d *Distributor) CombinedCapacityKWh() float64 {
	var total float64
	for _, u := range d.Available() {
		total += u.CapacityKWh()
	}
	return total
}

// CombinedPowerW sums measured power across available units.
func (d *Distributor) CombinedPowerW() float64 {
	var total float64
	for _, u := range d.Available() {
		total += u.CurrentPowerW()
	}
	return total
}

// SetTotalPowerW distributes a total power request across the eligible
// units. It returns false when no unit could serve the request or any
// command failed.
func (d *Distributor) SetTotalPowerW(totalPowerW float64) bool {
	d.targetPowerW = totalPowerW

	available := d.Available()
	d.invalidateCacheOnChange(available)

	if len(available) == 0 {
		d.log.Warnf("no available batteries for %.0f W request", totalPowerW)
		return false
	}
	return d.distribute(totalPowerW, available)
}

// invalidateCacheOnChange clears the per-unit command cache when the set of
// available units differs from the last call. A unit coming back online
// must receive a fresh command even if its share is numerically unchanged.
func (d *Distributor) invalidateCacheOnChange(available []Unit) {
	current := make(map[string]struct{}, len(available))
	for _, u := range available {
		current[u.Name()] = struct{}{}
	}
	same := len(current) == len(d.lastAvailable)
	if same {
		for name := range current {
			if _, ok := d.lastAvailable[name]; !ok {
				same = false
				break
			}
		}
	}
	if !same {
		if len(d.lastApplied) > 0 {
			d.log.Infof("battery availability changed, clearing power cache for %d units", len(d.lastApplied))
		}
		d.lastApplied = make(map[string]float64)
		d.lastAvailable = current
	}
}

func (d *Distributor) distribute(totalPowerW float64, available []Unit) bool {
	eligible := d.eligibleFor(totalPowerW, available)
	if len(eligible) == 0 {
		d.log.Warnf("no eligible batteries for %.0f W request", totalPowerW)
		return false
	}
	if len(eligible) < len(available) {
		d.log.Infof("redistributing %.0f W among %d eligible batteries (%d filtered out by SoC)",
			totalPowerW, len(eligible), len(available)-len(eligible))
	}

	var eligibleCapacity float64
	for _, u := range eligible {
		eligibleCapacity += u.CapacityKWh()
	}
	if eligibleCapacity == 0 {
		return false
	}

	ok := true
	for _, u := range eligible {
		share := totalPowerW * (u.CapacityKWh() / eligibleCapacity)
		powerW := math.Round(clampToLimits(u, share))

		if last, cached := d.lastApplied[u.Name()]; cached && math.Abs(powerW-last) <= d.cfg.PowerToleranceW {
			continue
		}
		if err := u.SetPowerW(powerW); err != nil {
			ok = false
			d.log.Errorf("failed to set %s to %.0f W: %v", u.Name(), powerW, err)
			continue
		}
		d.lastApplied[u.Name()] = powerW
		d.log.Debugf("applied %s: %.0f W", u.Name(), powerW)
	}

	// Units excluded by SoC are stopped so they do not keep running a
	// stale command.
	for _, u := range available {
		if containsUnit(eligible, u) {
			continue
		}
		if err := u.SetPowerW(0); err != nil {
			d.log.Errorf("failed to stop %s: %v", u.Name(), err)
			continue
		}
		d.lastApplied[u.Name()] = 0
		d.log.Infof("stopped %s (SoC %.1f%%)", u.Name(), u.SoC())
	}
	return ok
}

// eligibleFor filters units by SoC against the request direction. A zero
// request stops everything, so every unit qualifies.
func (d *Distributor) eligibleFor(totalPowerW float64, available []Unit) []Unit {
	var eligible []Unit
	for _, u := range available {
		soc := u.SoC()
		switch {
		case totalPowerW > 0 && soc >= d.cfg.MaxChargeSoC:
			d.log.Debugf("skipping %s for charging (SoC %.1f%%)", u.Name(), soc)
		case totalPowerW < 0 && soc <= d.cfg.MinDischargeSoC:
			d.log.Debugf("skipping %s for discharging (SoC %.1f%%)", u.Name(), soc)
		default:
			eligible = append(eligible, u)
		}
	}
	return eligible
}

func clampToLimits(u Unit, requestedW float64) float64 {
	if requestedW > 0 {
		return math.Min(requestedW, u.MaxChargePowerW())
	}
	return math.Max(requestedW, -u.MaxDischargePowerW())
}

func containsUnit(units []Unit, target Unit) bool {
	for _, u := range units {
		if u.Name() == target.Name() {
			return true
		}
	}
	return false
}

// StopAll commands every available unit to zero power and clears the
// command cache.
func (d *Distributor) StopAll() {
	d.targetPowerW = 0
	d.lastApplied = make(map[string]float64)
	for _, u := range d.units {
		if !u.Available() {
			continue
		}
		if err := u.SetPowerW(0); err != nil {
			d.log.Errorf("failed to stop %s: %v", u.Name(), err)
		}
	}
	d.log.Infof("all batteries stopped")
}

// UnitStatus is a diagnostic view of one unit.
type UnitStatus struct {
	Name          string             `json:"name"`
	SoC           float64            `json:"soc"`
	RemainingKWh  float64            `json:"remaining_kwh"`
	CapacityKWh   float64            `json:"capacity_kwh"`
	CurrentPowerW float64            `json:"current_power_w"`
	State         model.BatteryState `json:"state"`
	Available     bool               `json:"available"`
}

// Status returns a diagnostic snapshot of every unit, available or not.
func (d *Distributor) Status() []UnitStatus {
	out := make([]UnitStatus, 0, len(d.units))
	for _, u := range d.units {
		out = append(out, UnitStatus{
			Name:          u.Name(),
			SoC:           u.SoC(),
			RemainingKWh:  u.RemainingKWh(),
			CapacityKWh:   u.CapacityKWh(),
			CurrentPowerW: u.CurrentPowerW(),
			State:         u.State(),
			Available:     u.Available(),
		})
	}
	return out
}
