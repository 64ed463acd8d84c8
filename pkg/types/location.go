package types

import "time"

// Location is where the inverter is installed. It is only used to work out
// daylight hours and the local time of readings.
type Location struct {
	Name      string  `json:"name"`
	Region    string  `json:"region"`
	Timezone  string  `json:"timezone"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	TZ *time.Location `json:"-"`
}

// SystemInfo is what PVOutput knows about the configured system.
type SystemInfo struct {
	Name string `json:"name"`
	// Interval is the status interval configured on PVOutput, zero when unknown
	Interval time.Duration `json:"interval"`
}
