package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/homegrid/homegrid/core/metrics"
)

// PromSink exposes balancing telemetry as Prometheus metrics.
type PromSink struct {
	cycles        *prometheus.CounterVec
	gridPower     prometheus.Gauge
	batteryTarget prometheus.Gauge
	amplitude     prometheus.Gauge
	baseline      prometheus.Gauge
	combinedSoC   prometheus.Gauge
	combinedPower prometheus.Gauge
	wallboxPower  prometheus.Gauge
	units         *prometheus.GaugeVec
}

// NewPromSink registers the collectors on the default Prometheus
// registerer. The scrape endpoint is served separately.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers the collectors on the provided
// registerer. A nil registerer defaults to the global one.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "balancer_cycles_total",
			Help: "Total number of balancing cycles",
		}, []string{"applied", "oscillating"}),
		gridPower: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grid_power_watts",
			Help: "Signed grid power, positive is import",
		}),
		batteryTarget: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "battery_target_watts",
			Help: "Commanded battery target power, positive is charge",
		}),
		amplitude: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oscillation_amplitude_watts",
			Help: "Detected grid oscillation amplitude",
		}),
		baseline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oscillation_baseline_watts",
			Help: "Adaptive baseline of the detected oscillation",
		}),
		combinedSoC: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "battery_combined_soc_percent",
			Help: "Combined state of charge of the available batteries",
		}),
		combinedPower: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "battery_combined_power_watts",
			Help: "Combined measured battery power",
		}),
		wallboxPower: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wallbox_power_watts",
			Help: "Total wallbox draw",
		}),
		units: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "battery_units",
			Help: "Battery unit counts by availability",
		}, []string{"state"}),
	}

	collectors := []prometheus.Collector{
		s.cycles, s.gridPower, s.batteryTarget, s.amplitude, s.baseline,
		s.combinedSoC, s.combinedPower, s.wallboxPower, s.units,
	}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			collectors[i] = are.ExistingCollector
		}
	}
	s.cycles = collectors[0].(*prometheus.CounterVec)
	s.gridPower = collectors[1].(prometheus.Gauge)
	s.batteryTarget = collectors[2].(prometheus.Gauge)
	s.amplitude = collectors[3].(prometheus.Gauge)
	s.baseline = collectors[4].(prometheus.Gauge)
	s.combinedSoC = collectors[5].(prometheus.Gauge)
	s.combinedPower = collectors[6].(prometheus.Gauge)
	s.wallboxPower = collectors[7].(prometheus.Gauge)
	s.units = collectors[8].(*prometheus.GaugeVec)
	return s, nil
}

// RecordCycle updates the per-cycle gauges and counters.
func (s *PromSink) RecordCycle(c coremetrics.CycleSample) {
	s.cycles.WithLabelValues(strconv.FormatBool(c.Applied), strconv.FormatBool(c.Oscillating)).Inc()
	s.gridPower.Set(c.GridPowerW)
	if c.Applied {
		s.batteryTarget.Set(c.NewTargetW)
	}
	s.amplitude.Set(c.AmplitudeW)
	s.baseline.Set(c.BaselineW)
}

// RecordStatus updates the system snapshot gauges.
func (s *PromSink) RecordStatus(st coremetrics.StatusSample) {
	s.combinedSoC.Set(st.CombinedSoC)
	s.combinedPower.Set(st.CombinedPowerW)
	s.wallboxPower.Set(st.WallboxPowerW)
	s.units.WithLabelValues("available").Set(float64(st.AvailableUnits))
	s.units.WithLabelValues("total").Set(float64(st.TotalUnits))
}

// Close is a no-op; the scrape endpoint owns the server lifecycle.
func (s *PromSink) Close() error { return nil }
