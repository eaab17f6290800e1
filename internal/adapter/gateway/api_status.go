package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"wiiblue/internal/domain"
	"wiiblue/internal/usecase/manager"
)

// RemoteStore is the slice of the registry the REST API reads from.
type RemoteStore interface {
	Remotes(ctx context.Context) ([]domain.RegistryEntry, error)
	Sessions(ctx context.Context, address string, limit int) ([]domain.Session, error)
}

// APIDeps holds dependencies for the REST API handlers.
type APIDeps struct {
	Manager  *manager.Manager
	Registry RemoteStore // can be nil (registry disabled)
	Version  string
}

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Daemon     DaemonStatus   `json:"daemon"`
	Connection manager.Status `json:"connection"`
}

// DaemonStatus holds daemon overview info.
type DaemonStatus struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// RegisterAPI mounts the REST endpoints on the server and installs the
// hello snapshot for new WebSocket clients. Must be called before Start().
func RegisterAPI(s *Server, deps APIDeps) {
	startTime := time.Now()

	s.RegisterHTTPRoute("/api/v1/status", statusHandler(deps, startTime))
	s.RegisterHTTPRoute("/api/v1/remotes", remotesHandler(deps))
	s.RegisterHTTPRoute("/api/v1/sessions", sessionsHandler(deps))
	s.RegisterHTTPRoute("/api/v1/disconnect", disconnectHandler(deps))
	s.RegisterHTTPRoute("/metrics", metricsHandler(deps, startTime))

	s.SetHello(func() any {
		return statusResponse(deps, startTime)
	})
}

func statusResponse(deps APIDeps, startTime time.Time) StatusResponse {
	return StatusResponse{
		Daemon: DaemonStatus{
			Name:          "wiiblue",
			Version:       deps.Version,
			UptimeSeconds: int64(time.Since(startTime).Seconds()),
		},
		Connection: deps.Manager.Status(),
	}
}

// statusHandler returns an HTTP handler for GET /api/v1/status.
func statusHandler(deps APIDeps, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, statusResponse(deps, startTime))
	}
}

// remotesHandler returns an HTTP handler for GET /api/v1/remotes.
func remotesHandler(deps APIDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if deps.Registry == nil {
			http.Error(w, "registry disabled", http.StatusNotImplemented)
			return
		}
		remotes, err := deps.Registry.Remotes(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if remotes == nil {
			remotes = []domain.RegistryEntry{}
		}
		writeJSON(w, remotes)
	}
}

// sessionsHandler returns an HTTP handler for GET /api/v1/sessions.
// Query params: address (required), limit (default 20).
func sessionsHandler(deps APIDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if deps.Registry == nil {
			http.Error(w, "registry disabled", http.StatusNotImplemented)
			return
		}
		address := r.URL.Query().Get("address")
		if address == "" {
			http.Error(w, "missing address", http.StatusBadRequest)
			return
		}
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		sessions, err := deps.Registry.Sessions(r.Context(), address, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if sessions == nil {
			sessions = []domain.Session{}
		}
		writeJSON(w, sessions)
	}
}

// disconnectHandler returns an HTTP handler for POST /api/v1/disconnect.
func disconnectHandler(deps APIDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := deps.Manager.Disconnect(r.Context()); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, domain.ErrNotConnected) {
				status = http.StatusConflict
			}
			http.Error(w, err.Error(), status)
			return
		}
		writeJSON(w, map[string]string{"status": "disconnected"})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
