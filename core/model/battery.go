package model

// BatteryState describes the operational state of a battery unit.
type BatteryState string

const (
	BatteryAvailable   BatteryState = "available"
	BatteryCharging    BatteryState = "charging"
	BatteryDischarging BatteryState = "discharging"
	BatteryFault       BatteryState = "fault"
	BatteryOffline     BatteryState = "offline"
)

// BatterySnapshot is a read-only view of a battery unit taken once per
// control cycle.
type BatterySnapshot struct {
	Name          string
	SoC           float64 // percent, 0-100
	RemainingKWh  float64
	CapacityKWh   float64
	CurrentPowerW float64 // positive = charging, negative = discharging
	MaxChargeW    float64
	MaxDischargeW float64
	State         BatteryState
	Available     bool
}

// WallboxSnapshot is a read-only view of a wallbox taken once per control
// cycle. Failure bookkeeping lives in the allocation engine, not here.
type WallboxSnapshot struct {
	Name           string  `json:"name"`
	PriorityWeight float64 `json:"priority_weight"`
	Enabled        bool    `json:"enabled"`
	CableConnected bool    `json:"cable_connected"`
	Charging       bool    `json:"charging"`
	CurrentPowerW  float64 `json:"current_power_w"`
	CurrentLimitA  float64 `json:"current_limit_a"`
	Failed         bool    `json:"failed"`
}
