package domain

import "time"

// ConnectionType classifies the active network link.
type ConnectionType string

const (
	NetNone     ConnectionType = "none"
	NetWifi     ConnectionType = "wifi"
	NetCellular ConnectionType = "cellular"
	NetEthernet ConnectionType = "ethernet"
	NetOther    ConnectionType = "other"
)

// NetworkState is an immutable snapshot of device connectivity. A new value
// is created on every observed change, never mutated in place.
type NetworkState struct {
	Connected bool           `json:"connected"`
	Type      ConnectionType `json:"type"`
	Metered   bool           `json:"metered"`
	Validated bool           `json:"validated"`
	Timestamp time.Time      `json:"timestamp"`
}

// Offline is the zero-value snapshot used before the first observation.
func Offline() NetworkState {
	return NetworkState{Connected: false, Type: NetNone, Timestamp: time.Now()}
}
