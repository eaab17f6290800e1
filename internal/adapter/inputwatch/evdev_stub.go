//go:build !linux

package inputwatch

import (
	"context"
	"log/slog"
	"time"

	"wiiblue/internal/domain"
)

// EvdevWatcher only works on Linux; other platforms get a stub so the daemon
// still builds for development.
type EvdevWatcher struct{}

// NewEvdevWatcher returns a stub watcher on non-Linux platforms.
func NewEvdevWatcher(_ string, _ *slog.Logger) *EvdevWatcher {
	return &EvdevWatcher{}
}

func (w *EvdevWatcher) Watch(context.Context, string) (<-chan time.Time, error) {
	return nil, domain.NewDomainError("EvdevWatcher.Watch", domain.ErrDisabled,
		"evdev input watching requires linux")
}

var _ Watcher = (*EvdevWatcher)(nil)
