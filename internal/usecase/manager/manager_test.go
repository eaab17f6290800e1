package manager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"wiiblue/internal/adapter/bluetooth"
	"wiiblue/internal/adapter/inputwatch"
	"wiiblue/internal/domain"
	"wiiblue/internal/usecase/eventbus"
)

const testAddr = "00:1F:C5:12:34:56"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubResolver struct {
	path string
	err  error
}

func (s stubResolver) Resolve(context.Context) (string, error) { return s.path, s.err }

type fakeRegistry struct {
	mu       sync.Mutex
	observed []string
	opened   []string
	closed   map[string]domain.DisconnectReason
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{closed: make(map[string]domain.DisconnectReason)}
}

func (f *fakeRegistry) Observe(_ context.Context, address, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observed = append(f.observed, address)
	return nil
}

func (f *fakeRegistry) OpenSession(_ context.Context, address string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "sess-" + address
	f.opened = append(f.opened, id)
	return id, nil
}

func (f *fakeRegistry) CloseSession(_ context.Context, id string, reason domain.DisconnectReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[id] = reason
	return nil
}

func (f *fakeRegistry) closedReason(id string) (domain.DisconnectReason, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.closed[id]
	return r, ok
}

func testConfig() Config {
	return Config{
		MaxRetries:     3,
		RetryBackoff:   10 * time.Millisecond,
		IdleTimeout:    5 * time.Minute,
		Cooldown:       10 * time.Millisecond,
		ScansPerMinute: 6000, // effectively unlimited in tests
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestManager(ctl bluetooth.Controller, reg Registry) (*Manager, *inputwatch.MockWatcher) {
	watcher := inputwatch.NewMockWatcher()
	bus := eventbus.New(newTestLogger())
	m := New(ctl, stubResolver{path: "/sys/devices/virtual/misc/uhid/0005:057E:0306.0006"},
		watcher, reg, bus, testConfig(), newTestLogger())
	return m, watcher
}

func TestConnectAndIdleDisconnect(t *testing.T) {
	ctl := bluetooth.NewMockController()
	ctl.AddDevice(testAddr, "Nintendo RVL-CNT-01", -50)
	reg := newFakeRegistry()
	m, watcher := newTestManager(ctl, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	waitFor(t, func() bool { return m.Status().State == domain.StateConnected })
	if !ctl.IsConnected(testAddr) {
		t.Error("controller should report connected")
	}

	// Fresh activity keeps the session alive.
	watcher.Emit(time.Now())
	if err := m.IdleCheck(ctx); err != nil {
		t.Fatalf("IdleCheck: %v", err)
	}
	if m.Status().State != domain.StateConnected {
		t.Fatal("idle check should not disconnect an active remote")
	}

	// Simulate five minutes of silence by moving the manager's clock.
	m.now = func() time.Time { return time.Now().Add(6 * time.Minute) }
	if err := m.IdleCheck(ctx); err != nil {
		t.Fatalf("IdleCheck: %v", err)
	}

	// The manager may rediscover and reconnect right after the cooldown, so
	// assert on the journaled session rather than transient radio state.
	waitFor(t, func() bool {
		r, ok := reg.closedReason("sess-" + testAddr)
		return ok && r == domain.ReasonIdle
	})

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v, want nil on cancel", err)
	}
}

func TestRetriesExhausted(t *testing.T) {
	ctl := bluetooth.NewMockController() // nothing in range
	m, _ := newTestManager(ctl, nil)

	err := m.Run(context.Background())
	if !errors.Is(err, domain.ErrRetriesExhausted) {
		t.Errorf("Run = %v, want ErrRetriesExhausted", err)
	}
	if ctl.ScanCalls < 3 {
		t.Errorf("scan called %d times, want >= MaxRetries", ctl.ScanCalls)
	}
}

func TestConnectFailureBurnsBudget(t *testing.T) {
	ctl := bluetooth.NewMockController()
	ctl.AddDevice(testAddr, "Nintendo RVL-CNT-01", -50)
	ctl.ConnectErr = errors.New("org.bluez.Error.Failed")
	m, _ := newTestManager(ctl, nil)

	err := m.Run(context.Background())
	if !errors.Is(err, domain.ErrRetriesExhausted) {
		t.Errorf("Run = %v, want ErrRetriesExhausted", err)
	}
}

func TestAlreadyConnectedSkipsScan(t *testing.T) {
	ctl := bluetooth.NewMockController()
	ctl.AddDevice(testAddr, "Nintendo RVL-CNT-01", -50)
	// Pre-connected, as when the daemon restarts while a remote is live.
	if err := ctl.Connect(context.Background(), testAddr); err != nil {
		t.Fatal(err)
	}
	m, _ := newTestManager(ctl, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	waitFor(t, func() bool { return m.Status().State == domain.StateConnected })
	if ctl.ScanCalls != 0 {
		t.Errorf("scan called %d times, want 0 for pre-connected remote", ctl.ScanCalls)
	}
}

func TestManualDisconnect(t *testing.T) {
	ctl := bluetooth.NewMockController()
	ctl.AddDevice(testAddr, "Nintendo RVL-CNT-01", -50)
	reg := newFakeRegistry()
	m, _ := newTestManager(ctl, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	waitFor(t, func() bool { return m.Status().State == domain.StateConnected })

	if err := m.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	waitFor(t, func() bool {
		r, ok := reg.closedReason("sess-" + testAddr)
		return ok && r == domain.ReasonManual
	})
}

func TestDisconnectWhenNotConnected(t *testing.T) {
	m, _ := newTestManager(bluetooth.NewMockController(), nil)
	if err := m.Disconnect(context.Background()); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestResolveFailureReleasesRadio(t *testing.T) {
	ctl := bluetooth.NewMockController()
	ctl.AddDevice(testAddr, "Nintendo RVL-CNT-01", -50)

	bus := eventbus.New(newTestLogger())
	lost := make(chan domain.Event, 4)
	bus.Subscribe(domain.EventRemoteLost, func(_ context.Context, ev domain.Event) {
		select {
		case lost <- ev:
		default:
		}
	})

	m := New(ctl, stubResolver{err: errors.New("no wiimote device found")},
		inputwatch.NewMockWatcher(), nil, bus, testConfig(), newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	var ev domain.Event
	select {
	case ev = <-lost:
	case <-time.After(3 * time.Second):
		t.Fatal("no remote.lost event published")
	}
	if ev.Address != testAddr {
		t.Errorf("event address = %q, want %q", ev.Address, testAddr)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run = %v, want nil", err)
	}
	// The radio link must be released, not just the manager state.
	if ctl.DisconnectCalls == 0 {
		t.Error("bluetooth disconnect never issued for the lost device")
	}
	if st := m.Status(); st.State == domain.StateConnected {
		t.Errorf("state = %q after lost device", st.State)
	}
}

func TestStatusCounters(t *testing.T) {
	ctl := bluetooth.NewMockController()
	ctl.AddDevice(testAddr, "Nintendo RVL-CNT-01", -50)
	m, watcher := newTestManager(ctl, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	waitFor(t, func() bool { return m.Status().State == domain.StateConnected })
	watcher.Emit(time.Now())
	waitFor(t, func() bool { return m.Status().ActivityTotal == 1 })

	st := m.Status()
	if st.ConnectsTotal != 1 {
		t.Errorf("ConnectsTotal = %d, want 1", st.ConnectsTotal)
	}
	if st.Remote.Address != testAddr {
		t.Errorf("Remote.Address = %q", st.Remote.Address)
	}
	if st.LastActivity.IsZero() {
		t.Error("LastActivity should be set")
	}
	if !st.Remote.LastActivity.Equal(st.LastActivity) {
		t.Errorf("Remote.LastActivity = %v, want %v", st.Remote.LastActivity, st.LastActivity)
	}
}

func TestShutdownClosesSession(t *testing.T) {
	ctl := bluetooth.NewMockController()
	ctl.AddDevice(testAddr, "Nintendo RVL-CNT-01", -50)
	reg := newFakeRegistry()
	m, _ := newTestManager(ctl, reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	waitFor(t, func() bool { return m.Status().State == domain.StateConnected })
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run = %v, want nil", err)
	}
	r, ok := reg.closedReason("sess-" + testAddr)
	if !ok || r != domain.ReasonShutdown {
		t.Errorf("session reason = %q, want shutdown", r)
	}
}
