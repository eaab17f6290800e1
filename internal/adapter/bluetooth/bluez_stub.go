//go:build !linux || !bluez

package bluetooth

import (
	"log/slog"
	"time"

	"wiiblue/internal/domain"
)

// NewBluezBackend is unavailable without the bluez build tag; callers get an
// error at construction time instead of a panic at first use.
func NewBluezBackend(_, _ string, _ time.Duration, _ *slog.Logger) (Controller, error) {
	return nil, domain.NewDomainError("NewBluezBackend", domain.ErrDisabled,
		"binary built without bluez support; use the bluetoothctl backend or rebuild with -tags bluez")
}
