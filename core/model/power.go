package model

import "time"

// PowerSample is a single signed grid power reading. Positive values are
// import from the grid, negative values are export.
type PowerSample struct {
	PowerW    float64
	Timestamp time.Time
}

// Surplus converts a signed grid power reading into export surplus.
// Exporting 1500 W reads as -1500 W on the grid sensor and is 1500 W of
// surplus available for flexible loads.
func Surplus(gridPowerW float64) float64 {
	return -gridPowerW
}

// GridState describes which way power is flowing at the meter.
type GridState string

const (
	GridImport   GridState = "import"
	GridExport   GridState = "export"
	GridBalanced GridState = "balanced"
)

// StateOf classifies a grid power reading.
func StateOf(gridPowerW float64) GridState {
	switch {
	case gridPowerW > 0:
		return GridImport
	case gridPowerW < 0:
		return GridExport
	default:
		return GridBalanced
	}
}
