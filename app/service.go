package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/homegrid/homegrid/config"
	"github.com/homegrid/homegrid/core/adjust"
	"github.com/homegrid/homegrid/core/balancer"
	"github.com/homegrid/homegrid/core/battery"
	coremetrics "github.com/homegrid/homegrid/core/metrics"
	"github.com/homegrid/homegrid/core/model"
	"github.com/homegrid/homegrid/core/oscillation"
	"github.com/homegrid/homegrid/core/wallbox"
	"github.com/homegrid/homegrid/infra/hass"
	"github.com/homegrid/homegrid/infra/logger"
	"github.com/homegrid/homegrid/infra/metrics"
	"github.com/homegrid/homegrid/internal/eventbus"
)

// batteryStore applies the balancing target through the distributor
// instead of a single actuator entity, and mirrors it to the target number
// entity for visibility when one is configured.
type batteryStore struct {
	dist    *battery.Distributor
	adapter *hass.LoopAdapter
}

func (s *batteryStore) TargetW() (float64, bool) {
	return s.dist.TargetPowerW(), true
}

func (s *batteryStore) SetTargetW(targetW float64) error {
	if !s.dist.SetTotalPowerW(targetW) {
		return fmt.Errorf("no battery accepted the %.0f W target", targetW)
	}
	if s.adapter != nil {
		// Mirroring is cosmetic; a failed publish must not fail the cycle.
		_ = s.adapter.SetTargetW(targetW)
	}
	return nil
}

// Service wires the Home Assistant bridge, the balancing loop, the battery
// distributor and the wallbox engine, and drives them on their cadences.
type Service struct {
	cfg    *config.Config
	bridge *hass.Bridge
	loop   *balancer.Loop
	dist   *battery.Distributor
	engine *wallbox.Engine
	sensor *hass.LoopAdapter
	sink   coremetrics.Sink
	Bus    *eventbus.TypedBus[coremetrics.CycleSample]
	log    logger.Logger
}

// New creates a Service from the configuration, connecting to the broker.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	client, err := hass.Connect(cfg.Hass)
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}
	bridge := hass.NewBridge(client, cfg.Hass, nil)
	if err := bridge.Start(); err != nil {
		bridge.Close()
		return nil, fmt.Errorf("statestream subscribe: %w", err)
	}
	return build(cfg, bridge, logg)
}

// build finishes the wiring over a started bridge. Split out for tests.
func build(cfg *config.Config, bridge *hass.Bridge, logg logger.Logger) (*Service, error) {
	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			bridge.Close()
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics))
	}
	var sink coremetrics.Sink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = coremetrics.NewMulti(sinks...)
	}

	adapter := hass.NewLoopAdapter(bridge, cfg.Hass.Entities)

	units := make([]battery.Unit, 0, len(cfg.Hass.Batteries))
	for _, bc := range cfg.Hass.Batteries {
		units = append(units, hass.NewBatteryUnit(bridge, bc))
	}
	dist := battery.NewDistributor(cfg.Battery, units, logger.New("battery"))

	// With managed batteries the target is applied directly through the
	// distributor; otherwise the target number entity is the actuator.
	var store balancer.TargetStore = adapter
	if len(units) > 0 {
		mirror := adapter
		if cfg.Hass.Entities.BatteryTarget == "" {
			mirror = nil
		}
		store = &batteryStore{dist: dist, adapter: mirror}
	}

	var engine *wallbox.Engine
	if len(cfg.Hass.Chargers) > 0 {
		chargers := make([]wallbox.Charger, 0, len(cfg.Hass.Chargers))
		for _, cc := range cfg.Hass.Chargers {
			chargers = append(chargers, hass.NewWallboxCharger(bridge, cc))
		}
		engine = wallbox.NewEngine(cfg.Wallbox, chargers, nil, logger.New("wallbox"))
	}

	bus := eventbus.NewTyped[coremetrics.CycleSample]()
	detector := oscillation.NewDetector(cfg.Oscillation, logger.New("oscillation"))
	gate := adjust.New(cfg.Adjust, nil, logger.New("adjust"))
	loop := balancer.NewLoop(cfg.Balancer, detector, gate, adapter, store, adapter, bus, sink, nil, logger.New("balancer"))

	return &Service{
		cfg:    cfg,
		bridge: bridge,
		loop:   loop,
		dist:   dist,
		engine: engine,
		sensor: adapter,
		sink:   sink,
		Bus:    bus,
		log:    logg,
	}, nil
}

// Run drives the control loops until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	balanceTicker := time.NewTicker(time.Duration(s.cfg.App.BalancerIntervalS) * time.Second)
	defer balanceTicker.Stop()
	wallboxTicker := time.NewTicker(time.Duration(s.cfg.App.WallboxIntervalS) * time.Second)
	defer wallboxTicker.Stop()
	statusTicker := time.NewTicker(time.Duration(s.cfg.App.StatusIntervalS) * time.Second)
	defer statusTicker.Stop()

	s.log.Infof("balancing every %ds, wallbox allocation every %ds", s.cfg.App.BalancerIntervalS, s.cfg.App.WallboxIntervalS)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-balanceTicker.C:
			s.loop.Cycle()
		case <-wallboxTicker.C:
			s.manageWallboxes()
		case <-statusTicker.C:
			s.publishStatus()
		}
	}
}

func (s *Service) manageWallboxes() {
	if s.engine == nil {
		return
	}
	grid, ok := s.sensor.GridPowerW()
	if !ok {
		s.log.Warnf("grid power unavailable, skipping wallbox allocation")
		return
	}
	s.engine.Manage(grid, s.dist.CombinedPowerW())
}

// statusDocument is the retained snapshot published for dashboards.
type statusDocument struct {
	coremetrics.StatusSample
	Batteries []battery.UnitStatus    `json:"batteries"`
	Wallboxes []model.WallboxSnapshot `json:"wallboxes,omitempty"`
	Gate      adjust.Status           `json:"gate"`
	Detector  oscillation.Info        `json:"detector"`
}

func (s *Service) publishStatus() {
	wallboxPowerW, _ := s.sensor.WallboxPowerW()
	units := s.dist.Status()
	sample := coremetrics.StatusSample{
		Timestamp:      time.Now(),
		CombinedSoC:    s.dist.CombinedSoC(),
		CombinedPowerW: s.dist.CombinedPowerW(),
		TargetPowerW:   s.dist.TargetPowerW(),
		AvailableUnits: len(s.dist.Available()),
		TotalUnits:     len(units),
		WallboxPowerW:  wallboxPowerW,
	}
	sample.Degraded = sample.AvailableUnits < sample.TotalUnits
	if s.engine != nil {
		sample.WallboxRequired = s.engine.RequiresPower()
	}
	s.sink.RecordStatus(sample)

	doc := statusDocument{
		StatusSample: sample,
		Batteries:    units,
		Gate:         s.loop.GateStatus(),
		Detector:     s.loop.DetectorInfo(),
	}
	if s.engine != nil {
		doc.Wallboxes = s.engine.Status()
	}
	data, err := json.Marshal(doc)
	if err != nil {
		s.log.Errorf("marshal status: %v", err)
		return
	}
	if err := s.bridge.PublishStatus("system", string(data)); err != nil {
		s.log.Errorf("publish status: %v", err)
	}
}

// Close parks the batteries and releases broker and sink resources.
func (s *Service) Close() error {
	s.dist.StopAll()
	s.Bus.Close()
	err := s.sink.Close()
	s.bridge.Close()
	return err
}
