package balancer

// Config tunes the grid balancing loop.
type Config struct {
	// SurplusBufferW is the export level the loop steers toward instead
	// of exactly zero, keeping a margin against brief import spikes.
	SurplusBufferW float64 `json:"surplus_buffer_w"`
	// MaxTargetW clamps the battery target magnitude.
	MaxTargetW float64 `json:"max_target_w"`
	// Priority configures the wallbox priority override.
	Priority PriorityConfig `json:"wallbox_priority"`
}

// SetDefaults applies sane defaults for unset fields.
func (c *Config) SetDefaults() {
	if c.SurplusBufferW == 0 {
		c.SurplusBufferW = 50
	}
	if c.MaxTargetW == 0 {
		c.MaxTargetW = 7500
	}
	c.Priority.SetDefaults()
}
