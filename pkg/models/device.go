package models

// Device is an immutable snapshot of one neighboring peer as observed at a
// single instant by the radio discovery subsystem. Numeric fields are assumed
// validated upstream; the clustering core treats them as given.
type Device struct {
	ID                  string  `json:"id"`
	RSSI                float64 `json:"rssi"`                 // dBm, roughly [-100, 0]; higher = closer
	BatteryLevel        float64 `json:"battery_level"`        // percent, [0, 100]
	ConnectionStability float64 `json:"connection_stability"` // historical reliability, [0, 1]
	CPUCores            float64 `json:"cpu_cores"`
	RAMGB               float64 `json:"ram_gb"`
	StorageGB           float64 `json:"storage_gb"`
	Supports5G          bool    `json:"supports_5g"`
	SupportsWiFi6       bool    `json:"supports_wifi6"`
	SupportsWiFi5       bool    `json:"supports_wifi5"`
}
