package metrics

// Config selects and configures the telemetry sinks.
type Config struct {
	// PrometheusEnabled registers the Prometheus collectors and serves
	// them on PrometheusPort.
	PrometheusEnabled bool `json:"prometheus_enabled"`
	PrometheusPort    int  `json:"prometheus_port"`
	// InfluxEnabled writes cycle and status samples to InfluxDB.
	InfluxEnabled bool   `json:"influx_enabled"`
	InfluxURL     string `json:"influx_url"`
	InfluxToken   string `json:"influx_token"`
	InfluxOrg     string `json:"influx_org"`
	InfluxBucket  string `json:"influx_bucket"`
}

// SetDefaults applies sane defaults for unset fields.
func (c *Config) SetDefaults() {
	if c.PrometheusPort == 0 {
		c.PrometheusPort = 9090
	}
	if c.InfluxBucket == "" {
		c.InfluxBucket = "homegrid"
	}
}
