// Package api implements the local status API: health, version, and a
// WebSocket tap on the operational event bus.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nugget/trunk-status/internal/buildinfo"
	"github.com/nugget/trunk-status/internal/connwatch"
	"github.com/nugget/trunk-status/internal/events"
	"github.com/nugget/trunk-status/internal/mqtt"
)

// eventBuffer is the per-client subscription depth. Clients that fall
// further behind miss events.
const eventBuffer = 64

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Session is the broker session the API reports on.
type Session interface {
	State() mqtt.State
	Options() mqtt.ConnectOptions
}

// HealthSource reports watched service status.
type HealthSource interface {
	Status() map[string]connwatch.ServiceStatus
}

// Server is the HTTP status server.
type Server struct {
	address string
	port    int
	logger  *slog.Logger
	server  *http.Server

	session    Session
	health     HealthSource
	counters   *events.Counters
	bus        *events.Bus
	configSent func() bool

	upgrader websocket.Upgrader
}

// NewServer creates a status server. Collaborators are attached with
// the Set methods; any left unset are omitted from responses.
func NewServer(address string, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// SetSession configures the broker session reported by /health.
func (s *Server) SetSession(session Session) {
	s.session = session
}

// SetHealth configures the connwatch status reported by /health.
func (s *Server) SetHealth(h HealthSource) {
	s.health = h
}

// SetCounters configures the event tallies reported by /health.
func (s *Server) SetCounters(c *events.Counters) {
	s.counters = c
}

// SetEventBus configures the bus streamed by /v1/events.
func (s *Server) SetEventBus(bus *events.Bus) {
	s.bus = bus
}

// SetConfigSent configures the probe for whether the configuration dump
// has been published.
func (s *Server) SetConfigSent(fn func() bool) {
	s.configSent = fn
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting status API", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    "trstatus",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.RuntimeInfo(), s.logger)
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status   string                             `json:"status"`
	MQTT     *MQTTHealth                        `json:"mqtt,omitempty"`
	Services map[string]connwatch.ServiceStatus `json:"services,omitempty"`
	Events   map[string]int64                   `json:"events,omitempty"`
	Uptime   string                             `json:"uptime"`
}

// MQTTHealth describes the broker session.
type MQTTHealth struct {
	State      string `json:"state"`
	Broker     string `json:"broker"`
	ClientID   string `json:"client_id"`
	ConfigSent bool   `json:"config_sent"`
}

// handleHealth answers 200 while the broker session is Open and 503
// otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "healthy",
		Uptime: buildinfo.Uptime().String(),
	}
	code := http.StatusOK

	if s.session != nil {
		opts := s.session.Options()
		state := s.session.State()
		resp.MQTT = &MQTTHealth{
			State:    state.String(),
			Broker:   opts.Broker,
			ClientID: opts.ClientID,
		}
		if s.configSent != nil {
			resp.MQTT.ConfigSent = s.configSent()
		}
		if state != mqtt.StateOpen {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	if s.health != nil {
		resp.Services = s.health.Status()
	}
	if s.counters != nil {
		resp.Events = s.counters.Snapshot()
	}

	writeJSON(w, code, resp, s.logger)
}

// handleEvents upgrades to a WebSocket and streams bus events as JSON
// text frames until either side closes. The optional source query
// parameter restricts the stream to one event source.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		http.Error(w, "event stream not configured", http.StatusNotFound)
		return
	}
	source := r.URL.Query().Get("source")

	// Subscribed before the handshake completes so a client sees every
	// event published after its dial returns.
	ch := s.bus.Subscribe(eventBuffer)
	defer s.bus.Unsubscribe(ch)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.logger.Debug("event stream opened", "remote", r.RemoteAddr, "source", source)

	// Reading is required to process close and ping frames.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			s.logger.Debug("event stream closed", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if source != "" && e.Source != source {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Debug("event stream write failed", "error", err)
				return
			}
		}
	}
}
