// Package inputwatch resolves a connected Wii Remote's kernel device and
// watches its input events to track activity.
package inputwatch

import (
	"context"
	"sync"
	"time"
)

// Watcher streams activity timestamps for one device. The returned channel is
// closed when the watch ends (context cancelled, device gone, or Close).
type Watcher interface {
	Watch(ctx context.Context, sysPath string) (<-chan time.Time, error)
}

// MockWatcher is a test double; feed it activity with Emit.
type MockWatcher struct {
	mu          sync.Mutex
	ch          chan time.Time
	Err         error // returned by Watch when set
	Calls       int
	LastSysPath string
}

// NewMockWatcher creates a mock watcher.
func NewMockWatcher() *MockWatcher {
	return &MockWatcher{}
}

func (m *MockWatcher) Watch(ctx context.Context, sysPath string) (<-chan time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.LastSysPath = sysPath
	if m.Err != nil {
		return nil, m.Err
	}
	m.ch = make(chan time.Time, 16)
	ch := m.ch
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		if m.ch == ch {
			close(m.ch)
			m.ch = nil
		}
		m.mu.Unlock()
	}()
	return ch, nil
}

// Emit injects one activity timestamp into the active watch.
func (m *MockWatcher) Emit(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ch != nil {
		select {
		case m.ch <- t:
		default:
		}
	}
}
