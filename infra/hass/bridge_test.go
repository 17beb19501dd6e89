package hass

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homegrid/homegrid/core/model"
)

type published struct {
	topic   string
	payload string
}

// fakeClient delivers injected messages to the subscribed handler and
// records publishes.
type fakeClient struct {
	handler   func(topic string, payload []byte)
	published []published
	pubErr    error
	closed    bool
}

func (f *fakeClient) Publish(topic string, _ byte, _ bool, payload string) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.published = append(f.published, published{topic: topic, payload: payload})
	return nil
}

func (f *fakeClient) Subscribe(_ string, _ byte, handler func(topic string, payload []byte)) error {
	f.handler = handler
	return nil
}

func (f *fakeClient) Close() { f.closed = true }

func (f *fakeClient) inject(topic, payload string) {
	f.handler(topic, []byte(payload))
}

type bridgeClock struct {
	t time.Time
}

func (c *bridgeClock) now() time.Time          { return c.t }
func (c *bridgeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBridge(t *testing.T, cfg Config) (*Bridge, *fakeClient, *bridgeClock) {
	t.Helper()
	cfg.SetDefaults()
	client := &fakeClient{}
	clock := &bridgeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	b := NewBridge(client, cfg, clock.now)
	require.NoError(t, b.Start())
	return b, client, clock
}

func TestBridgeFloat(t *testing.T) {
	b, client, _ := newTestBridge(t, Config{})

	client.inject("homeassistant/statestream/sensor/grid_power/state", "512.5")
	v, ok := b.Float("sensor.grid_power")
	require.True(t, ok)
	assert.Equal(t, 512.5, v)

	_, ok = b.Float("sensor.absent")
	assert.False(t, ok)

	client.inject("homeassistant/statestream/sensor/grid_power/state", "unavailable")
	_, ok = b.Float("sensor.grid_power")
	assert.False(t, ok)

	client.inject("homeassistant/statestream/sensor/grid_power/state", "garbage")
	_, ok = b.Float("sensor.grid_power")
	assert.False(t, ok)
}

func TestBridgeIgnoresAttributeTopics(t *testing.T) {
	b, client, _ := newTestBridge(t, Config{})

	client.inject("homeassistant/statestream/sensor/grid_power/unit_of_measurement", "W")
	_, ok := b.Float("sensor.grid_power")
	assert.False(t, ok)
}

func TestBridgeStaleness(t *testing.T) {
	b, client, clock := newTestBridge(t, Config{StaleAfterS: 30})

	client.inject("homeassistant/statestream/sensor/grid_power/state", "200")
	_, ok := b.Float("sensor.grid_power")
	require.True(t, ok)

	clock.advance(31 * time.Second)
	_, ok = b.Float("sensor.grid_power")
	assert.False(t, ok)

	// A fresh message revives the entity.
	client.inject("homeassistant/statestream/sensor/grid_power/state", "250")
	v, ok := b.Float("sensor.grid_power")
	require.True(t, ok)
	assert.Equal(t, 250.0, v)
}

func TestBridgeBool(t *testing.T) {
	b, client, _ := newTestBridge(t, Config{})

	client.inject("homeassistant/statestream/switch/balancer_enable/state", "on")
	assert.True(t, b.Bool("switch.balancer_enable"))

	client.inject("homeassistant/statestream/switch/balancer_enable/state", "off")
	assert.False(t, b.Bool("switch.balancer_enable"))

	assert.False(t, b.Bool("switch.absent"))
}

func TestBridgeCommandTopic(t *testing.T) {
	b, client, _ := newTestBridge(t, Config{})

	require.NoError(t, b.Command("number.battery_target", "-1500"))
	require.Len(t, client.published, 1)
	assert.Equal(t, "homegrid/cmd/number/battery_target/set", client.published[0].topic)
	assert.Equal(t, "-1500", client.published[0].payload)
}

func TestBridgePublishStatus(t *testing.T) {
	b, client, _ := newTestBridge(t, Config{})

	require.NoError(t, b.PublishStatus("system", `{"degraded":false}`))
	require.Len(t, client.published, 1)
	assert.Equal(t, "homegrid/cmd/status/system", client.published[0].topic)
}

func TestLoopAdapter(t *testing.T) {
	cfg := Config{Entities: EntityConfig{
		GridPower:         "sensor.grid_power",
		WallboxPower:      "sensor.wallbox_power",
		BatteryTarget:     "number.battery_target",
		Enable:            "switch.balancer_enable",
		WallboxBatteryUse: "switch.wallbox_battery_use",
	}}
	b, client, _ := newTestBridge(t, cfg)
	a := NewLoopAdapter(b, cfg.Entities)

	client.inject("homeassistant/statestream/sensor/grid_power/state", "480")
	client.inject("homeassistant/statestream/sensor/wallbox_power/state", "0")
	client.inject("homeassistant/statestream/number/battery_target/state", "-1000")
	client.inject("homeassistant/statestream/switch/balancer_enable/state", "on")

	grid, ok := a.GridPowerW()
	require.True(t, ok)
	assert.Equal(t, 480.0, grid)

	target, ok := a.TargetW()
	require.True(t, ok)
	assert.Equal(t, -1000.0, target)

	assert.True(t, a.Enabled())
	assert.False(t, a.AllowWallboxBatteryUse())

	require.NoError(t, a.SetTargetW(-1550))
	require.Len(t, client.published, 1)
	assert.Equal(t, "homegrid/cmd/number/battery_target/set", client.published[0].topic)
	assert.Equal(t, "-1550", client.published[0].payload)
}

func TestLoopAdapterUnconfiguredWallboxReadsZero(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{})
	a := NewLoopAdapter(b, EntityConfig{GridPower: "sensor.grid_power"})

	v, ok := a.WallboxPowerW()
	require.True(t, ok)
	assert.Zero(t, v)
	assert.True(t, a.Enabled())
}

func TestBatteryUnit(t *testing.T) {
	cfg := BatteryEntityConfig{
		Name:               "cellar",
		SoC:                "sensor.cellar_soc",
		Power:              "sensor.cellar_power",
		SetPower:           "number.cellar_set_power",
		CapacityKWh:        10,
		MaxChargePowerW:    3000,
		MaxDischargePowerW: 3000,
	}
	b, client, _ := newTestBridge(t, Config{})
	u := NewBatteryUnit(b, cfg)

	assert.False(t, u.Available())
	assert.Equal(t, model.BatteryOffline, u.State())

	client.inject("homeassistant/statestream/sensor/cellar_soc/state", "60")
	client.inject("homeassistant/statestream/sensor/cellar_power/state", "-1200")

	require.True(t, u.Available())
	assert.Equal(t, 60.0, u.SoC())
	assert.Equal(t, 6.0, u.RemainingKWh())
	assert.Equal(t, -1200.0, u.CurrentPowerW())
	assert.Equal(t, model.BatteryDischarging, u.State())

	client.inject("homeassistant/statestream/sensor/cellar_power/state", "0")
	assert.Equal(t, model.BatteryAvailable, u.State())

	require.NoError(t, u.SetPowerW(-1500))
	require.Len(t, client.published, 1)
	assert.Equal(t, "homegrid/cmd/number/cellar_set_power/set", client.published[0].topic)
	assert.Equal(t, "-1500", client.published[0].payload)
}

func TestWallboxCharger(t *testing.T) {
	cfg := ChargerEntityConfig{
		Name:         "garage",
		EnableSwitch: "switch.garage_surplus",
		Cable:        "sensor.garage_status",
		Charging:     "sensor.garage_status",
		Power:        "sensor.garage_power",
		CurrentLimit: "number.garage_current",
		SetCurrent:   "number.garage_current",
		Session:      "button.garage_session",
	}
	b, client, _ := newTestBridge(t, Config{})
	c := NewWallboxCharger(b, cfg)

	assert.False(t, c.CableConnected())

	client.inject("homeassistant/statestream/switch/garage_surplus/state", "on")
	client.inject("homeassistant/statestream/sensor/garage_status/state", "Connected")
	client.inject("homeassistant/statestream/sensor/garage_power/state", "0")
	client.inject("homeassistant/statestream/number/garage_current/state", "6")

	assert.True(t, c.Enabled())
	assert.True(t, c.CableConnected())
	assert.False(t, c.Charging())
	assert.Equal(t, 6.0, c.CurrentLimitA())

	client.inject("homeassistant/statestream/sensor/garage_status/state", "Charging")
	client.inject("homeassistant/statestream/sensor/garage_power/state", "4100")
	assert.True(t, c.Charging())
	assert.Equal(t, 4100.0, c.CurrentPowerW())

	require.NoError(t, c.SetCurrentA(8))
	require.NoError(t, c.StartCharging())
	require.NoError(t, c.StopCharging())
	require.Len(t, client.published, 3)
	assert.Equal(t, "homegrid/cmd/number/garage_current/set", client.published[0].topic)
	assert.Equal(t, "8", client.published[0].payload)
	assert.Equal(t, "start", client.published[1].payload)
	assert.Equal(t, "stop", client.published[2].payload)
}
