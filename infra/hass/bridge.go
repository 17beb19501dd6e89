package hass

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/homegrid/homegrid/infra/logger"
)

type stateEntry struct {
	value string
	at    time.Time
}

// Bridge caches Home Assistant entity states from the MQTT statestream and
// publishes commands back. It is the single integration point; the typed
// adapters in this package read through it.
//
// Safe for concurrent use.
type Bridge struct {
	client Client
	cfg    Config
	now    func() time.Time
	log    logger.Logger

	mu     sync.RWMutex
	states map[string]stateEntry
}

// NewBridge builds a bridge over a connected client. now may be nil.
func NewBridge(client Client, cfg Config, now func() time.Time) *Bridge {
	if now == nil {
		now = time.Now
	}
	return &Bridge{
		client: client,
		cfg:    cfg,
		now:    now,
		log:    logger.New("hass-bridge"),
		states: make(map[string]stateEntry),
	}
}

// Start subscribes to the statestream tree. Retained state topics replay
// immediately, so the cache warms up without waiting for changes.
func (b *Bridge) Start() error {
	topic := b.cfg.StatePrefix + "/#"
	return b.client.Subscribe(topic, 0, b.handle)
}

func (b *Bridge) handle(topic string, payload []byte) {
	rel, ok := strings.CutPrefix(topic, b.cfg.StatePrefix+"/")
	if !ok {
		return
	}
	// Attribute topics share the tree; only the state leaf matters here.
	key, ok := strings.CutSuffix(rel, "/state")
	if !ok {
		return
	}
	b.mu.Lock()
	b.states[key] = stateEntry{value: string(payload), at: b.now()}
	b.mu.Unlock()
}

// entityKey maps "sensor.grid_power" to the statestream path
// "sensor/grid_power".
func entityKey(entity string) string {
	return strings.Replace(entity, ".", "/", 1)
}

func (b *Bridge) lookup(entity string) (string, bool) {
	b.mu.RLock()
	e, ok := b.states[entityKey(entity)]
	b.mu.RUnlock()
	if !ok {
		return "", false
	}
	if b.cfg.StaleAfterS > 0 {
		age := b.now().Sub(e.at)
		if age > time.Duration(b.cfg.StaleAfterS)*time.Second {
			return "", false
		}
	}
	switch strings.ToLower(e.value) {
	case "", "unavailable", "unknown", "none":
		return "", false
	}
	return e.value, true
}

// Float returns the entity state as a number. The second return is false
// when the entity is missing, stale, unavailable or not numeric.
func (b *Bridge) Float(entity string) (float64, bool) {
	raw, ok := b.lookup(entity)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		b.log.Warnf("entity %s has non-numeric state %q", entity, raw)
		return 0, false
	}
	return v, true
}

// Bool returns the entity state as a switch position. Missing or
// unavailable entities read as off.
func (b *Bridge) Bool(entity string) bool {
	raw, ok := b.lookup(entity)
	if !ok {
		return false
	}
	switch strings.ToLower(raw) {
	case "on", "true", "1":
		return true
	}
	return false
}

// String returns the raw entity state.
func (b *Bridge) String(entity string) (string, bool) {
	return b.lookup(entity)
}

// Command publishes a command payload for the entity on the command
// prefix.
func (b *Bridge) Command(entity, payload string) error {
	topic := b.cfg.CommandPrefix + "/" + entityKey(entity) + "/set"
	return b.client.Publish(topic, 1, false, payload)
}

// PublishStatus publishes a retained status document under the command
// prefix, so dashboards joining late still see the last snapshot.
func (b *Bridge) PublishStatus(name, payload string) error {
	topic := b.cfg.CommandPrefix + "/status/" + name
	return b.client.Publish(topic, 0, true, payload)
}

// Close disconnects the underlying client.
func (b *Bridge) Close() {
	b.client.Close()
}
