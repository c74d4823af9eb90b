package event

import (
	"github.com/gobuffalo/nulls"
	"time"
)

// DeviceOnlineEvent is the plain presence announcement a household device like
// a kitchen display publishes when it comes online.
type DeviceOnlineEvent struct {
	// DeviceID is the id the device assigned itself.
	DeviceID string `json:"device_id"`
	// DeviceType describes what kind of device this is.
	DeviceType string `json:"device_type"`
}

// DeviceOfflineEvent announces that a device went offline. Devices usually set
// this as LWT so the broker publishes it when the connection drops.
type DeviceOfflineEvent struct {
	// DeviceID is the id of the device that went offline.
	DeviceID string `json:"device_id"`
}

// DeviceOnlineDetailedEvent is the enriched answer to DeviceOnlineEvent after
// the device was registered. It carries the stored name and config so the
// device can pick them up without a separate request.
type DeviceOnlineDetailedEvent struct {
	// DeviceID is the id the device assigned itself.
	DeviceID string `json:"device_id"`
	// DeviceType describes what kind of device this is.
	DeviceType string `json:"device_type"`
	// LastSeen is the last time the device updated its online state.
	LastSeen time.Time `json:"last_seen"`
	// Name is the optional stored human-readable name.
	Name nulls.String `json:"name"`
	// Config is the optional stored configuration. Cleared when the device
	// changed its type since the last registration.
	Config nulls.ByteSlice `json:"config"`
}
