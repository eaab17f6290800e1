// Package bluetooth provides controller backends for discovering and managing
// Wii Remotes over Bluetooth.
package bluetooth

import (
	"context"
)

// Device describes a Bluetooth device as reported by the controller.
type Device struct {
	Address   string `json:"address"`
	Name      string `json:"name,omitempty"`
	RSSI      int    `json:"rssi,omitempty"`
	Connected bool   `json:"connected"`
}

// Controller abstracts the Bluetooth stack so the connection manager can be
// tested without radio hardware.
type Controller interface {
	// Scan runs one discovery pass and returns matching devices. Blocks for
	// up to the backend's scan window or until ctx is cancelled.
	Scan(ctx context.Context) ([]Device, error)
	// KnownDevices returns devices the adapter already knows about, with
	// their live connection status.
	KnownDevices(ctx context.Context) ([]Device, error)
	Connect(ctx context.Context, address string) error
	Disconnect(ctx context.Context, address string) error
}
