package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"wiiblue/internal/domain"
)

// clientConn tracks a single WebSocket connection.
type clientConn struct {
	info      *ClientInfo
	ws        *websocket.Conn
	sendCh    chan Frame // buffered outbound queue
	done      chan struct{}
	closeOnce sync.Once
}

// Server is the HTTP/WebSocket gateway. It streams domain events to
// WebSocket clients and serves the REST API registered on it.
type Server struct {
	bus        domain.EventBus
	clients    sync.Map // connID (uint64) -> *clientConn
	auth       Authenticator
	logger     *slog.Logger
	addr       string
	httpSrv    *http.Server
	boundAddr  string
	nextID     atomic.Uint64
	unsubAll   func()
	httpRoutes []httpRoute // additional HTTP routes
	helloFn    func() any  // snapshot sent to each new client, may be nil
}

type httpRoute struct {
	pattern string
	handler http.HandlerFunc
}

// NewServer creates a gateway server.
func NewServer(bus domain.EventBus, auth Authenticator, addr string, logger *slog.Logger) *Server {
	return &Server{
		bus:    bus,
		auth:   auth,
		logger: logger,
		addr:   addr,
	}
}

// RegisterHTTPRoute adds an HTTP handler to the gateway's mux.
// Must be called before Start().
func (s *Server) RegisterHTTPRoute(pattern string, handler http.HandlerFunc) {
	s.httpRoutes = append(s.httpRoutes, httpRoute{pattern: pattern, handler: handler})
}

// SetHello installs a snapshot function whose result is sent as the first
// frame to every new WebSocket client. Must be called before Start().
func (s *Server) SetHello(fn func() any) {
	s.helloFn = fn
}

// Start begins accepting connections. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	for _, route := range s.httpRoutes {
		mux.HandleFunc(route.pattern, route.handler)
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()

	s.httpSrv = &http.Server{Handler: mux}

	// Subscribe to all events and forward to connected clients.
	unsub := s.bus.SubscribeAll(func(_ context.Context, event domain.Event) {
		payload, err := json.Marshal(event)
		if err != nil {
			return
		}
		frame := Frame{
			Type:    FrameTypeEvent,
			Payload: payload,
		}
		s.clients.Range(func(_, value any) bool {
			cc := value.(*clientConn)
			select {
			case cc.sendCh <- frame:
			default:
				s.logger.Warn("gateway: dropped event for slow client")
			}
			return true
		})
	})
	s.unsubAll = unsub

	s.logger.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the gateway server.
func (s *Server) Stop(ctx context.Context) error {
	if s.unsubAll != nil {
		s.unsubAll()
	}

	// Close all client connections.
	s.clients.Range(func(key, value any) bool {
		cc := value.(*clientConn)
		cc.closeOnce.Do(func() { close(cc.done) })
		cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.clients.Delete(key)
		return true
	})

	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// BoundAddr returns the actual address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	// Authenticate via query param.
	token := r.URL.Query().Get("token")
	clientInfo, err := s.auth.Authenticate(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Dashboards connect from the local host only.
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	connID := s.nextID.Add(1)
	cc := &clientConn{
		info:   clientInfo,
		ws:     ws,
		sendCh: make(chan Frame, 64),
		done:   make(chan struct{}),
	}

	if s.helloFn != nil {
		if payload, err := json.Marshal(s.helloFn()); err == nil {
			cc.sendCh <- Frame{Type: FrameTypeHello, Payload: payload}
		}
	}

	s.clients.Store(connID, cc)
	s.publish(r.Context(), domain.EventClientConnected, clientInfo.Name)
	s.logger.Info("gateway client connected", "conn_id", connID, "client", clientInfo.Name)

	// Start write loop.
	go s.writeLoop(cc)

	// Read loop (blocking). Clients send nothing meaningful; the loop exists
	// to detect the close handshake and pings.
	s.readLoop(r.Context(), cc)

	// Cleanup.
	cc.closeOnce.Do(func() { close(cc.done) })
	s.clients.Delete(connID)
	ws.Close(websocket.StatusNormalClosure, "")
	s.publish(context.Background(), domain.EventClientDisconnected, clientInfo.Name)
	s.logger.Info("gateway client disconnected", "conn_id", connID)
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		default:
		}

		var frame Frame
		if err := wsjson.Read(ctx, cc.ws, &frame); err != nil {
			return // connection closed or error
		}
	}
}

func (s *Server) writeLoop(cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, cc.ws, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) publish(ctx context.Context, typ domain.EventType, client string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, domain.NewEvent(typ, "", map[string]string{"client": client}))
}
