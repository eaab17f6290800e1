package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"wiiblue/internal/domain"
)

// --- test doubles ---

type testBus struct {
	mu       sync.Mutex
	handlers []domain.EventHandler
}

func (b *testBus) Publish(ctx context.Context, event domain.Event) {
	b.mu.Lock()
	hs := make([]domain.EventHandler, len(b.handlers))
	copy(hs, b.handlers)
	b.mu.Unlock()
	for _, h := range hs {
		h(ctx, event)
	}
}

func (b *testBus) Subscribe(_ domain.EventType, _ domain.EventHandler) func() { return func() {} }

func (b *testBus) SubscribeAll(handler domain.EventHandler) func() {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handlers = nil
	}
}

func (b *testBus) Close() {}

func newTestAuth() Authenticator {
	return NewStaticTokenAuth([]TokenEntry{
		{Token: "test-token", Name: "tester"},
	})
}

func startTestServer(t *testing.T, bus domain.EventBus, configure func(*Server)) *Server {
	t.Helper()
	srv := NewServer(bus, newTestAuth(), "127.0.0.1:0", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if configure != nil {
		configure(srv)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	started := make(chan struct{})
	go func() {
		go func() {
			for srv.BoundAddr() == "" {
				time.Sleep(5 * time.Millisecond)
			}
			close(started)
		}()
		if err := srv.Start(ctx); err != nil {
			// The test may have cancelled the context already.
			_ = err
		}
	}()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("server did not start in time")
	}

	t.Cleanup(func() {
		srv.Stop(context.Background())
	})

	return srv
}

func dialWS(t *testing.T, addr, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws://"+addr+"/ws?token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

// --- tests ---

func TestServerLifecycle(t *testing.T) {
	srv := startTestServer(t, &testBus{}, nil)

	if srv.BoundAddr() == "" {
		t.Fatal("BoundAddr is empty")
	}
}

func TestServerAuthReject(t *testing.T) {
	srv := startTestServer(t, &testBus{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+"/ws?token=bad-token", nil)
	if err == nil {
		t.Fatal("expected auth rejection")
	}
}

func TestServerHelloFrame(t *testing.T) {
	srv := startTestServer(t, &testBus{}, func(s *Server) {
		s.SetHello(func() any {
			return map[string]string{"state": "disconnected"}
		})
	})

	ws := dialWS(t, srv.BoundAddr(), "test-token")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var frame Frame
	if err := wsjson.Read(ctx, ws, &frame); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if frame.Type != FrameTypeHello {
		t.Errorf("type = %q, want hello", frame.Type)
	}
	if len(frame.Payload) == 0 {
		t.Error("hello payload is empty")
	}
}

func TestServerEventForwarding(t *testing.T) {
	bus := &testBus{}
	srv := startTestServer(t, bus, nil)

	ws := dialWS(t, srv.BoundAddr(), "test-token")

	// Give the connection time to be registered.
	time.Sleep(100 * time.Millisecond)

	bus.Publish(context.Background(), domain.NewEvent(domain.EventRemoteConnected, "00:1F:32:AA:BB:CC", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// The connect itself published a gateway client event; skip any of those
	// until the remote event arrives.
	for {
		var frame Frame
		if err := wsjson.Read(ctx, ws, &frame); err != nil {
			t.Fatalf("read event: %v", err)
		}
		if frame.Type != FrameTypeEvent {
			t.Fatalf("type = %q, want event", frame.Type)
		}
		var ev domain.Event
		if err := json.Unmarshal(frame.Payload, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Type == domain.EventRemoteConnected {
			if ev.Address != "00:1F:32:AA:BB:CC" {
				t.Errorf("address = %q", ev.Address)
			}
			return
		}
	}
}

func TestServerSlowClient(t *testing.T) {
	bus := &testBus{}
	srv := startTestServer(t, bus, nil)

	ws := dialWS(t, srv.BoundAddr(), "test-token")
	_ = ws // connected but not reading

	time.Sleep(100 * time.Millisecond)

	// Flood events. Must not block or panic.
	for i := 0; i < 200; i++ {
		bus.Publish(context.Background(), domain.NewEvent(domain.EventInputActivity, "00:1F:32:AA:BB:CC", nil))
	}
}

func TestServerClientDisconnect(t *testing.T) {
	bus := &testBus{}
	srv := startTestServer(t, bus, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+"/ws?token=test-token", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	ws.Close(websocket.StatusNormalClosure, "bye")

	time.Sleep(100 * time.Millisecond)

	// Publishing after the client left must not panic.
	bus.Publish(context.Background(), domain.NewEvent(domain.EventRemoteLost, "00:1F:32:AA:BB:CC", nil))
}
