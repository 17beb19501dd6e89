package metrics

import "time"

// CycleSample captures the outcome of one balancing cycle.
type CycleSample struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	GridPowerW      float64   `json:"grid_power_w"`
	PreviousTargetW float64   `json:"previous_target_w"`
	NewTargetW      float64   `json:"new_target_w"`
	Oscillating     bool      `json:"oscillating"`
	AmplitudeW      float64   `json:"amplitude_w"`
	BaselineW       float64   `json:"baseline_w"`
	Applied         bool      `json:"applied"`
	Reason          string    `json:"reason,omitempty"`
}

// StatusSample is a periodic snapshot of the whole system.
type StatusSample struct {
	Timestamp       time.Time `json:"timestamp"`
	CombinedSoC     float64   `json:"combined_soc"`
	CombinedPowerW  float64   `json:"combined_power_w"`
	TargetPowerW    float64   `json:"target_power_w"`
	AvailableUnits  int       `json:"available_units"`
	TotalUnits      int       `json:"total_units"`
	WallboxPowerW   float64   `json:"wallbox_power_w"`
	WallboxRequired bool      `json:"wallbox_required"`
	// Degraded is set when fewer batteries are available than configured.
	Degraded bool `json:"degraded"`
}

// Sink receives balancing telemetry. Implementations must tolerate being
// called from the control loop's goroutine and must not block it.
type Sink interface {
	RecordCycle(CycleSample)
	RecordStatus(StatusSample)
	Close() error
}

// NopSink discards everything. It stands in when no telemetry backend is
// configured or a backend failed its health check.
type NopSink struct{}

func (NopSink) RecordCycle(CycleSample)   {}
func (NopSink) RecordStatus(StatusSample) {}
func (NopSink) Close() error              { return nil }

// MultiSink fans samples out to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMulti builds a MultiSink over the given sinks.
func NewMulti(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) RecordCycle(s CycleSample) {
	for _, sink := range m.sinks {
		sink.RecordCycle(s)
	}
}

func (m *MultiSink) RecordStatus(s StatusSample) {
	for _, sink := range m.sinks {
		sink.RecordStatus(s)
	}
}

func (m *MultiSink) Close() error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
