package metrics

import (
	"context"
	"math"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/homegrid/homegrid/core/metrics"
	"github.com/homegrid/homegrid/infra/logger"
)

// InfluxSink writes balancing telemetry to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(cfg coremetrics.Config) *InfluxSink {
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink when the health check fails, so a down telemetry backend never
// stops the control loop from starting.
func NewInfluxSinkWithFallback(cfg coremetrics.Config) coremetrics.Sink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordCycle writes one balancing cycle as a point.
func (s *InfluxSink) RecordCycle(c coremetrics.CycleSample) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("balancer_cycle").
		AddTag("cycle_id", c.ID).
		AddTag("applied", strconv.FormatBool(c.Applied)).
		AddTag("oscillating", strconv.FormatBool(c.Oscillating)).
		AddField("grid_power_w", round1(c.GridPowerW)).
		AddField("previous_target_w", round1(c.PreviousTargetW)).
		AddField("new_target_w", round1(c.NewTargetW)).
		AddField("amplitude_w", round1(c.AmplitudeW)).
		AddField("baseline_w", round1(c.BaselineW)).
		SetTime(c.Timestamp)
	if c.Reason != "" {
		p.AddField("reason", c.Reason)
	}
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		s.log.Errorf("failed to write cycle point: %v", err)
	}
}

// RecordStatus writes a periodic system snapshot as a point.
func (s *InfluxSink) RecordStatus(st coremetrics.StatusSample) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("system_status").
		AddTag("wallbox_required", strconv.FormatBool(st.WallboxRequired)).
		AddTag("degraded", strconv.FormatBool(st.Degraded)).
		AddField("combined_soc", round1(st.CombinedSoC)).
		AddField("combined_power_w", round1(st.CombinedPowerW)).
		AddField("target_power_w", round1(st.TargetPowerW)).
		AddField("available_units", st.AvailableUnits).
		AddField("total_units", st.TotalUnits).
		AddField("wallbox_power_w", round1(st.WallboxPowerW)).
		SetTime(st.Timestamp)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		s.log.Errorf("failed to write status point: %v", err)
	}
}

// Close flushes and closes the underlying client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
