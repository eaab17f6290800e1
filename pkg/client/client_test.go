package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func fakeGateway(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"daemon":{"name":"wiiblue","version":"0.3.0","uptime_seconds":42},` +
			`"connection":{"state":"connected","connects_total":1,"disconnects_total":0,"activity_total":7}}`))
	})
	mux.HandleFunc("/api/v1/remotes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"address":"00:1F:32:AA:BB:CC","name":"Nintendo RVL-CNT-01","connect_count":3}]`))
	})
	mux.HandleFunc("/api/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("address") == "" {
			http.Error(w, "missing address", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"01JX","address":"00:1F:32:AA:BB:CC","reason":"idle"}]`))
	})
	mux.HandleFunc("/api/v1/disconnect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Write([]byte(`{"status":"disconnected"}`))
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		ctx := r.Context()
		wsjson.Write(ctx, ws, map[string]any{"type": "hello", "payload": map[string]any{}})
		wsjson.Write(ctx, ws, map[string]any{
			"type": "event",
			"payload": map[string]any{
				"type":      "remote.connected",
				"timestamp": time.Now().UTC(),
				"address":   "00:1F:32:AA:BB:CC",
			},
		})
		// Hold the connection open until the client leaves.
		var discard json.RawMessage
		wsjson.Read(ctx, ws, &discard)
		ws.Close(websocket.StatusNormalClosure, "")
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T) *Client {
	srv := fakeGateway(t)
	return New(strings.TrimPrefix(srv.URL, "http://"))
}

func TestStatus(t *testing.T) {
	c := newTestClient(t)

	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Daemon.Name != "wiiblue" {
		t.Errorf("name = %q", st.Daemon.Name)
	}
	if st.Connection.State != "connected" {
		t.Errorf("state = %q", st.Connection.State)
	}
	if st.Connection.ActivityTotal != 7 {
		t.Errorf("activity = %d", st.Connection.ActivityTotal)
	}
}

func TestRemotes(t *testing.T) {
	c := newTestClient(t)

	remotes, err := c.Remotes(context.Background())
	if err != nil {
		t.Fatalf("Remotes: %v", err)
	}
	if len(remotes) != 1 || remotes[0].ConnectCount != 3 {
		t.Errorf("remotes = %+v", remotes)
	}
}

func TestSessions(t *testing.T) {
	c := newTestClient(t)

	sessions, err := c.Sessions(context.Background(), "00:1F:32:AA:BB:CC", 5)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Reason != "idle" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestDisconnect(t *testing.T) {
	c := newTestClient(t)

	if err := c.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
}

func TestEventsSkipsHello(t *testing.T) {
	c := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	events, err := c.Events(ctx)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}

	ev, ok := <-events
	if !ok {
		t.Fatal("event channel closed before first event")
	}
	if ev.Type != "remote.connected" {
		t.Errorf("type = %q", ev.Type)
	}
	if ev.Address != "00:1F:32:AA:BB:CC" {
		t.Errorf("address = %q", ev.Address)
	}
}

func TestStatusServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := New(strings.TrimPrefix(srv.URL, "http://"))
	if _, err := c.Status(context.Background()); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
