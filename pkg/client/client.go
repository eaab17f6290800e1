// Package client provides a Go client for the wiiblue gateway.
//
// It wraps the REST API and the WebSocket event stream so dashboards and
// scripts do not have to speak the wire protocol themselves:
//
//	c := client.New("127.0.0.1:8537", client.WithToken("secret"))
//	st, err := c.Status(ctx)
//	events, err := c.Events(ctx)
//	for ev := range events {
//	    fmt.Println(ev.Type, ev.Address)
//	}
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Event mirrors the daemon's event envelope.
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Address   string          `json:"address,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Connection is the live connection snapshot inside Status.
type Connection struct {
	State            string        `json:"state"`
	SessionID        string        `json:"session_id,omitempty"`
	LastActivity     time.Time     `json:"last_activity,omitempty"`
	IdleFor          time.Duration `json:"idle_for,omitempty"`
	ConnectsTotal    int64         `json:"connects_total"`
	DisconnectsTotal int64         `json:"disconnects_total"`
	ActivityTotal    int64         `json:"activity_total"`
}

// Status is the response of GET /api/v1/status.
type Status struct {
	Daemon struct {
		Name          string `json:"name"`
		Version       string `json:"version"`
		UptimeSeconds int64  `json:"uptime_seconds"`
	} `json:"daemon"`
	Connection Connection `json:"connection"`
}

// RegistryEntry is one remembered remote from GET /api/v1/remotes.
type RegistryEntry struct {
	Address      string    `json:"address"`
	Name         string    `json:"name"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	ConnectCount int       `json:"connect_count"`
}

// Session is one journal row from GET /api/v1/sessions.
type Session struct {
	ID             string    `json:"id"`
	Address        string    `json:"address"`
	ConnectedAt    time.Time `json:"connected_at"`
	DisconnectedAt time.Time `json:"disconnected_at,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}

// frame is the WebSocket envelope. Hello frames carry a Status snapshot,
// event frames carry an Event.
type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client talks to a wiiblue gateway.
type Client struct {
	addr  string
	token string
	http  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the auth token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the gateway at addr (host:port).
func New(addr string, opts ...Option) *Client {
	c := &Client{
		addr: addr,
		http: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status fetches the daemon status snapshot.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.get(ctx, "/api/v1/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Remotes lists every remote the daemon has recorded.
func (c *Client) Remotes(ctx context.Context) ([]RegistryEntry, error) {
	var entries []RegistryEntry
	if err := c.get(ctx, "/api/v1/remotes", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Sessions lists the most recent sessions for a remote.
func (c *Client) Sessions(ctx context.Context, address string, limit int) ([]Session, error) {
	q := url.Values{"address": {address}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var sessions []Session
	if err := c.get(ctx, "/api/v1/sessions", q, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Disconnect asks the daemon to drop the current remote.
func (c *Client) Disconnect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/api/v1/disconnect", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("disconnect: %s", resp.Status)
	}
	return nil
}

// Events dials the WebSocket stream and returns a channel of events. The
// channel closes when ctx is cancelled or the connection drops. The initial
// hello frame is consumed and discarded; use Status for the snapshot.
func (c *Client) Events(ctx context.Context) (<-chan Event, error) {
	wsURL := "ws://" + c.addr + "/ws"
	if c.token != "" {
		wsURL += "?token=" + url.QueryEscape(c.token)
	}

	ws, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer ws.Close(websocket.StatusNormalClosure, "")
		for {
			var f frame
			if err := wsjson.Read(ctx, ws, &f); err != nil {
				return
			}
			if f.Type != "event" {
				continue
			}
			var ev Event
			if err := json.Unmarshal(f.Payload, &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) baseURL() string {
	return "http://" + c.addr
}

func (c *Client) get(ctx context.Context, path string, query url.Values, into any) error {
	u := c.baseURL() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(into)
}
