package domain

import (
	"time"
)

// RemoteNamePrefix is the model prefix Nintendo uses in the Bluetooth name of
// every Wii Remote revision ("Nintendo RVL-CNT-01", "-TR", "-UC", ...).
const RemoteNamePrefix = "RVL"

// ConnectionState describes where a remote is in its lifecycle.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateScanning     ConnectionState = "scanning"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	// StateCooldown is entered after an idle disconnect; the manager waits a
	// short grace period before scanning again so the remote can power down.
	StateCooldown ConnectionState = "cooldown"
)

// Remote is a Wii Remote as seen by the daemon.
type Remote struct {
	Address      string          `json:"address"`
	Name         string          `json:"name,omitempty"`
	RSSI         int             `json:"rssi,omitempty"`
	State        ConnectionState `json:"state"`
	SysPath      string          `json:"sys_path,omitempty"`
	LastSeen     time.Time       `json:"last_seen,omitempty"`
	LastActivity time.Time       `json:"last_activity,omitempty"`
}

// DisconnectReason records why a session ended.
type DisconnectReason string

const (
	ReasonIdle     DisconnectReason = "idle"
	ReasonManual   DisconnectReason = "manual"
	ReasonLost     DisconnectReason = "lost"
	ReasonShutdown DisconnectReason = "shutdown"
)

// Session is one connected stretch of a remote, journaled in the registry.
type Session struct {
	ID             string           `json:"id"` // ULID
	Address        string           `json:"address"`
	ConnectedAt    time.Time        `json:"connected_at"`
	DisconnectedAt time.Time        `json:"disconnected_at,omitempty"`
	Reason         DisconnectReason `json:"reason,omitempty"`
}

// Duration returns the session length, or the time since connect for a
// session that is still open.
func (s Session) Duration() time.Duration {
	if s.DisconnectedAt.IsZero() {
		return time.Since(s.ConnectedAt)
	}
	return s.DisconnectedAt.Sub(s.ConnectedAt)
}

// RegistryEntry is the persisted record of a remote the daemon has ever seen.
type RegistryEntry struct {
	Address      string    `json:"address"`
	Name         string    `json:"name"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	ConnectCount int       `json:"connect_count"`
}
