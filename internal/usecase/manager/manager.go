// Package manager owns the Wii Remote connection lifecycle: scan, connect,
// watch input, disconnect on idle, repeat.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"wiiblue/internal/adapter/bluetooth"
	"wiiblue/internal/adapter/inputwatch"
	"wiiblue/internal/domain"
	"wiiblue/internal/infra/tracer"
)

// Registry is the subset of the registry store the manager needs. A nil
// Registry disables journaling.
type Registry interface {
	Observe(ctx context.Context, address, name string) error
	OpenSession(ctx context.Context, address string) (string, error)
	CloseSession(ctx context.Context, id string, reason domain.DisconnectReason) error
}

// Config tunes the connection lifecycle.
type Config struct {
	MaxRetries     int           // consecutive failed acquire attempts before Run gives up
	RetryBackoff   time.Duration // pause between failed attempts
	IdleTimeout    time.Duration // disconnect after this much input silence; 0 disables
	Cooldown       time.Duration // pause after an idle disconnect before rescanning
	ScansPerMinute float64       // discovery pass rate limit
}

// Status is a point-in-time snapshot for the gateway and CLI.
type Status struct {
	State            domain.ConnectionState `json:"state"`
	Remote           domain.Remote          `json:"remote,omitempty"`
	SessionID        string                 `json:"session_id,omitempty"`
	LastActivity     time.Time              `json:"last_activity,omitempty"`
	IdleFor          time.Duration          `json:"idle_for,omitempty"`
	ConnectsTotal    int64                  `json:"connects_total"`
	DisconnectsTotal int64                  `json:"disconnects_total"`
	ActivityTotal    int64                  `json:"activity_total"`
}

// Manager drives a single remote through its lifecycle. One Manager per
// adapter; the first matching remote wins, as on the original daemon.
type Manager struct {
	ctl      bluetooth.Controller
	resolver inputwatch.Resolver
	watcher  inputwatch.Watcher
	registry Registry
	bus      domain.EventBus
	cfg      Config
	logger   *slog.Logger
	breaker  *gobreaker.CircuitBreaker[any]
	limiter  *rate.Limiter
	now      func() time.Time

	mu          sync.Mutex
	state       domain.ConnectionState
	remote      domain.Remote
	sessionID   string
	watchCancel context.CancelFunc
	lastReason  domain.DisconnectReason

	lastActivity     atomic.Int64 // unix nanos; 0 = never
	connectsTotal    atomic.Int64
	disconnectsTotal atomic.Int64
	activityTotal    atomic.Int64
}

// New creates a Manager. registry may be nil.
func New(ctl bluetooth.Controller, resolver inputwatch.Resolver, watcher inputwatch.Watcher,
	registry Registry, bus domain.EventBus, cfg Config, logger *slog.Logger) *Manager {

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.ScansPerMinute <= 0 {
		cfg.ScansPerMinute = 2
	}

	m := &Manager{
		ctl:      ctl,
		resolver: resolver,
		watcher:  watcher,
		registry: registry,
		bus:      bus,
		cfg:      cfg,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Limit(cfg.ScansPerMinute/60.0), 1),
		now:      time.Now,
		state:    domain.StateDisconnected,
	}

	// The breaker fails connect attempts fast when the adapter itself is
	// broken, so the retry loop burns its budget in seconds instead of
	// hammering a dead radio for minutes.
	m.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "bluetooth-connect",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.MaxRetries)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return m
}

// Run drives the lifecycle until ctx is cancelled or the acquire retry budget
// is exhausted. Cancellation disconnects a connected remote cleanly.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("starting wii remote manager",
		"max_retries", m.cfg.MaxRetries, "idle_timeout", m.cfg.IdleTimeout)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		dev, err := m.acquire(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			if errors.Is(err, domain.ErrRetriesExhausted) {
				m.publish(ctx, domain.NewEvent(domain.EventRetryExhausted, "", map[string]int{
					"attempts": m.cfg.MaxRetries,
				}))
				m.logger.Error("failed to connect to wii remote", "attempts", m.cfg.MaxRetries)
				return err
			}
			m.logger.Warn("acquire failed", "error", err)
			continue
		}

		reason := m.watch(ctx, dev)

		if reason == domain.ReasonShutdown {
			return nil
		}
		if reason == domain.ReasonIdle && m.cfg.Cooldown > 0 {
			m.setState(domain.StateCooldown)
			select {
			case <-time.After(m.cfg.Cooldown):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// acquire finds a remote and connects to it, burning the retry budget on
// consecutive failures. An already-connected remote short-circuits scanning.
func (m *Manager) acquire(ctx context.Context) (bluetooth.Device, error) {
	failures := 0

	for {
		if err := ctx.Err(); err != nil {
			return bluetooth.Device{}, err
		}

		dev, found, err := m.findRemote(ctx)
		if err != nil {
			m.logger.Warn("bluetooth lookup failed", "error", err)
			found = false
		}
		if !found {
			failures++
			if failures >= m.cfg.MaxRetries {
				return bluetooth.Device{}, domain.NewDomainError("Manager.acquire",
					domain.ErrRetriesExhausted, fmt.Sprintf("%d attempts", failures))
			}
			m.logger.Warn("no wii remote found, retrying",
				"attempt", failures, "max", m.cfg.MaxRetries)
			select {
			case <-time.After(m.cfg.RetryBackoff):
			case <-ctx.Done():
				return bluetooth.Device{}, ctx.Err()
			}
			continue
		}

		if dev.Connected {
			return dev, nil
		}

		m.setState(domain.StateConnecting)
		spanCtx, span := tracer.StartSpan(ctx, "manager.connect")
		_, err = m.breaker.Execute(func() (any, error) {
			return nil, m.ctl.Connect(spanCtx, dev.Address)
		})
		if err != nil {
			tracer.RecordError(span, err)
			span.End()
			failures++
			if failures >= m.cfg.MaxRetries {
				return bluetooth.Device{}, domain.NewDomainError("Manager.acquire",
					domain.ErrRetriesExhausted, fmt.Sprintf("%d attempts", failures))
			}
			m.logger.Warn("failed to connect to wii remote, retrying",
				"address", dev.Address, "attempt", failures, "max", m.cfg.MaxRetries, "error", err)
			select {
			case <-time.After(m.cfg.RetryBackoff):
			case <-ctx.Done():
				return bluetooth.Device{}, ctx.Err()
			}
			continue
		}
		span.End()
		return dev, nil
	}
}

// findRemote checks already-connected devices first, then runs a rate-limited
// discovery pass.
func (m *Manager) findRemote(ctx context.Context) (bluetooth.Device, bool, error) {
	known, err := m.ctl.KnownDevices(ctx)
	if err == nil {
		for _, dev := range known {
			if dev.Connected {
				m.logger.Debug("remote already connected", "address", dev.Address)
				return dev, true, nil
			}
		}
	}

	m.setState(domain.StateScanning)
	if err := m.limiter.Wait(ctx); err != nil {
		return bluetooth.Device{}, false, err
	}

	m.publish(ctx, domain.NewEvent(domain.EventScanStarted, "", nil))
	spanCtx, span := tracer.StartSpan(ctx, "manager.scan")
	devices, err := m.ctl.Scan(spanCtx)
	if err != nil {
		tracer.RecordError(span, err)
		span.End()
		m.publish(ctx, domain.NewEvent(domain.EventScanFinished, "", map[string]int{"found": 0}))
		return bluetooth.Device{}, false, err
	}
	span.End()
	m.publish(ctx, domain.NewEvent(domain.EventScanFinished, "", map[string]int{"found": len(devices)}))

	if len(devices) == 0 {
		return bluetooth.Device{}, false, nil
	}

	dev := devices[0]
	m.publish(ctx, domain.NewEvent(domain.EventRemoteDiscovered, dev.Address, dev))
	if m.registry != nil {
		if err := m.registry.Observe(ctx, dev.Address, dev.Name); err != nil {
			m.logger.Warn("registry observe failed", "error", err)
		}
	}
	return dev, true, nil
}

// watch marks the remote connected, resolves its kernel device and consumes
// input activity until the session ends. Returns the disconnect reason.
func (m *Manager) watch(ctx context.Context, dev bluetooth.Device) domain.DisconnectReason {
	sysPath, err := m.resolveSysPath(ctx)
	if err != nil {
		m.logger.Warn("failed to resolve device path, dropping connection", "error", err)
		m.dropLost(ctx, dev)
		return domain.ReasonLost
	}

	watchCtx, cancel := context.WithCancel(ctx)
	activity, err := m.watcher.Watch(watchCtx, sysPath)
	if err != nil {
		cancel()
		m.logger.Warn("input watch failed, dropping connection", "error", err)
		m.dropLost(ctx, dev)
		return domain.ReasonLost
	}

	var sessionID string
	if m.registry != nil {
		if sessionID, err = m.registry.OpenSession(ctx, dev.Address); err != nil {
			m.logger.Warn("registry session open failed", "error", err)
		}
	}

	m.mu.Lock()
	m.state = domain.StateConnected
	m.remote = domain.Remote{
		Address:  dev.Address,
		Name:     dev.Name,
		RSSI:     dev.RSSI,
		State:    domain.StateConnected,
		SysPath:  sysPath,
		LastSeen: m.now(),
	}
	m.sessionID = sessionID
	m.watchCancel = cancel
	m.mu.Unlock()

	m.lastActivity.Store(m.now().UnixNano())
	m.connectsTotal.Add(1)
	m.publish(ctx, domain.NewEvent(domain.EventRemoteConnected, dev.Address, dev))
	m.logger.Info("wii remote connected", "address", dev.Address, "sys_path", sysPath)

	lastPublished := time.Time{}
	for {
		select {
		case ts, ok := <-activity:
			if !ok {
				// Channel closed: the watch context was cancelled by a
				// disconnect, or the device vanished underneath us.
				reason := m.finishReason()
				if reason == "" {
					reason = domain.ReasonLost
					if ctx.Err() != nil {
						reason = domain.ReasonShutdown
					}
					m.disconnect(ctx, reason)
				}
				return reason
			}
			m.lastActivity.Store(ts.UnixNano())
			m.activityTotal.Add(1)
			// At most one activity event per second on the bus; the raw
			// rate from the accelerometer is far too chatty to fan out.
			if ts.Sub(lastPublished) >= time.Second {
				lastPublished = ts
				m.publish(ctx, domain.NewEvent(domain.EventInputActivity, dev.Address, nil))
			}
		case <-ctx.Done():
			m.disconnect(context.WithoutCancel(ctx), domain.ReasonShutdown)
			return domain.ReasonShutdown
		}
	}
}

// resolveSysPath retries the xwiishow lookup briefly; right after connect the
// kernel device can take a moment to appear.
func (m *Manager) resolveSysPath(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		path, err := m.resolver.Resolve(ctx)
		if err == nil {
			return path, nil
		}
		lastErr = err
		select {
		case <-time.After(m.cfg.RetryBackoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

// IdleCheck disconnects the remote when it has been idle for the configured
// window. Intended to run from the scheduler.
func (m *Manager) IdleCheck(ctx context.Context) error {
	if m.cfg.IdleTimeout <= 0 {
		return nil
	}
	m.mu.Lock()
	connected := m.state == domain.StateConnected
	addr := m.remote.Address
	m.mu.Unlock()
	if !connected {
		return nil
	}

	last := m.lastActivity.Load()
	if last == 0 {
		return nil
	}
	idle := m.now().Sub(time.Unix(0, last))
	if idle < m.cfg.IdleTimeout {
		return nil
	}

	m.logger.Info("wii remote idle, disconnecting", "address", addr, "idle", idle.Round(time.Second))
	m.publish(ctx, domain.NewEvent(domain.EventIdleTimeout, addr, map[string]string{
		"idle": idle.Round(time.Second).String(),
	}))
	m.disconnect(ctx, domain.ReasonIdle)
	return nil
}

// Disconnect ends the current session on request (gateway, CLI).
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	connected := m.state == domain.StateConnected
	m.mu.Unlock()
	if !connected {
		return domain.NewDomainError("Manager.Disconnect", domain.ErrNotConnected, "")
	}
	m.disconnect(ctx, domain.ReasonManual)
	return nil
}

// dropLost tears down a half-established connection that never reached the
// connected state, so the regular disconnect path does not apply. The radio
// link is released so the next acquire starts from scratch.
func (m *Manager) dropLost(ctx context.Context, dev bluetooth.Device) {
	if err := m.ctl.Disconnect(ctx, dev.Address); err != nil {
		m.logger.Warn("bluetooth disconnect failed", "address", dev.Address, "error", err)
	}
	m.setState(domain.StateDisconnected)
	m.publish(ctx, domain.NewEvent(domain.EventRemoteLost, dev.Address, map[string]string{
		"reason": string(domain.ReasonLost),
	}))
}

// disconnect tears down the current session. Idempotent: a second call while
// already disconnected is a no-op.
func (m *Manager) disconnect(ctx context.Context, reason domain.DisconnectReason) {
	m.mu.Lock()
	if m.state != domain.StateConnected {
		m.mu.Unlock()
		return
	}
	addr := m.remote.Address
	sessionID := m.sessionID
	cancel := m.watchCancel
	m.state = domain.StateDisconnected
	m.remote.State = domain.StateDisconnected
	m.sessionID = ""
	m.watchCancel = nil
	m.lastReason = reason
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := m.ctl.Disconnect(ctx, addr); err != nil {
		m.logger.Warn("bluetooth disconnect failed", "address", addr, "error", err)
	}
	if m.registry != nil && sessionID != "" {
		if err := m.registry.CloseSession(ctx, sessionID, reason); err != nil {
			m.logger.Warn("registry session close failed", "error", err)
		}
	}
	m.disconnectsTotal.Add(1)
	m.publish(ctx, domain.NewEvent(domain.EventRemoteDisconnect, addr, map[string]string{
		"reason": string(reason),
	}))
	m.logger.Info("wii remote disconnected", "address", addr, "reason", string(reason))
}

// finishReason returns the reason recorded by a disconnect that already ran,
// or "" when none has.
func (m *Manager) finishReason() domain.DisconnectReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == domain.StateConnected {
		return ""
	}
	return m.lastReason
}

// Status returns a snapshot of the manager for the gateway and CLI.
func (m *Manager) Status() Status {
	m.mu.Lock()
	st := Status{
		State:     m.state,
		Remote:    m.remote,
		SessionID: m.sessionID,
	}
	m.mu.Unlock()

	if last := m.lastActivity.Load(); last > 0 {
		st.LastActivity = time.Unix(0, last)
		st.Remote.LastActivity = st.LastActivity
		if st.State == domain.StateConnected {
			st.IdleFor = m.now().Sub(st.LastActivity)
		}
	}
	st.ConnectsTotal = m.connectsTotal.Load()
	st.DisconnectsTotal = m.disconnectsTotal.Load()
	st.ActivityTotal = m.activityTotal.Load()
	return st
}

func (m *Manager) setState(s domain.ConnectionState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) publish(ctx context.Context, ev domain.Event) {
	if m.bus != nil {
		m.bus.Publish(ctx, ev)
	}
}
