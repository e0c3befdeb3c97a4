package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Simulation is everything the server needs from the world: ingress,
// read access for the API and the tick loop lifecycle.
type Simulation interface {
	WorldInterface
	WorldStateProvider
	Start()
	Stop()
}

// Server is the HTTP server with WebSocket support.
// It combines the HTTP router with the websocket hub for real-time updates.
type Server struct {
	world       Simulation
	hub         *Hub
	router      *chi.Mux
	rateLimiter *IPRateLimiter
	log         *zap.SugaredLogger

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer wires the hub to the world and builds the router.
//
// IMPORTANT: The tick loop does NOT start until Start() is called.
// Tests can construct the server and use Router() with httptest, driving
// world.Tick() by hand.
func NewServer(world Simulation, hub *Hub, cfg RouterConfig) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	hub.SetWorld(world)

	s := &Server{
		world: world,
		hub:   hub,
		log:   log,
	}

	// Keep the rate limiter so Stop can release its goroutine
	if cfg.RateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		cfg.RateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	s.rateLimiter = cfg.RateLimiter

	cfg.World = world
	if cfg.Connections == nil {
		cfg.Connections = hub
	}
	s.router = NewRouter(cfg)

	s.setupWebSocketRoutes()

	return s
}

// setupWebSocketRoutes adds WebSocket-specific routes to the router.
// These routes need access to the hub instance, so they can't be
// part of the generic NewRouter factory.
func (s *Server) setupWebSocketRoutes() {
	s.router.Get("/ws", s.handleWS)
	// Path used by clients ported from socket.io
	s.router.Get("/socket.io/", s.handleSocketIO)
}

// Start begins the tick loop and serves HTTP on addr until Stop is called.
// It returns nil after a graceful Stop.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.world.Start()

	s.log.Infof("🌐 Arena server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.world.Stop()
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
// Use this in integration tests instead of calling Start().
//
// Example:
//
//	server := api.NewServer(world, hub, api.RouterConfig{})
//	ts := httptest.NewServer(server.Router())
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/state")
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Stop shuts down in dependency order: stop accepting HTTP, close the
// websockets (each one disconnects from the world), then stop the tick.
func (s *Server) Stop(ctx context.Context) error {
	var err error

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv != nil {
		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("http shutdown: %w", shutdownErr)
		}
	}

	s.hub.Stop()
	s.world.Stop()
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	return err
}

// WebSocket handlers - these need access to the hub

func (s *Server) handleSocketIO(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.hub.HandleWebSocket(w, r)
		return
	}

	// No long-polling fallback
	writeError(w, "use websocket", http.StatusNotFound)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.HandleWebSocket(w, r)
}
