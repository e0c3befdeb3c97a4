package api

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"arena-server/internal/game"
	"arena-server/internal/render"
)

// WorldStateProvider is the read side of game.World used by the HTTP API.
// This interface enables mocking for tests without spinning up the tick loop.
type WorldStateProvider interface {
	// Snapshot returns a consistent copy of players and projectiles
	Snapshot() game.WorldSnapshot
	// Stats returns world counters
	Stats() game.Stats
	// EventLogStats returns journal counters (nil without a journal)
	EventLogStats() map[string]interface{}
}

// ConnectionStats is implemented by Hub.
type ConnectionStats interface {
	ClientCount() int
	FramesDropped() uint64
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
// This struct is designed for dependency injection and testability.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    World: fakeWorld,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// World is the state source for /api (required)
	World WorldStateProvider

	// Connections reports websocket counters for /api/stats (optional)
	Connections ConnectionStats

	// Minimap renders /api/world.png. If nil, a default renderer is used.
	Minimap *render.Minimap

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins for /api.
	// If nil, only localhost origins are allowed.
	CORSOrigins []string

	// StaticDir holds index.html, assets/ and lib/. Defaults to "./public".
	StaticDir string

	// DisableLogging disables the request logger (useful for benchmarks).
	DisableLogging bool

	// Logger receives request logs. Nil disables them.
	Logger *zap.SugaredLogger
}

// routerHandlers holds the handler dependencies.
type routerHandlers struct {
	world       WorldStateProvider
	connections ConnectionStats
	minimap     *render.Minimap
	log         *zap.SugaredLogger
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// This function has no side effects beyond the rate limiter's cleanup
// goroutine (stopped by IPRateLimiter.Stop): no listeners are opened and
// the world is only read, so it is safe to use with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	log := cfg.Logger
	if log == nil || cfg.DisableLogging {
		log = zap.NewNop().Sugar()
	}

	// Middleware - Order matters!
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	// Rate limiting before anything expensive
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	minimap := cfg.Minimap
	if minimap == nil {
		minimap = render.NewMinimap(render.DefaultMinimapConfig())
	}

	h := &routerHandlers{
		world:       cfg.World,
		connections: cfg.Connections,
		minimap:     minimap,
		log:         log,
	}

	// CORS configuration
	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}

	// API routes (read-only debug/admin views)
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         300,
		}))

		r.Get("/state", h.handleGetState)
		r.Get("/stats", h.handleGetStats)
		r.Get("/world.png", h.handleWorldImage)
	})

	r.Get("/healthz", h.handleHealth)

	// Client entry page and static trees
	staticDir := cfg.StaticDir
	if staticDir == "" {
		staticDir = "./public"
	}
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.ServeFile(w, req, filepath.Join(staticDir, "index.html"))
	})
	for _, tree := range []string{"assets", "lib"} {
		prefix := "/" + tree + "/"
		r.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(filepath.Join(staticDir, tree)))))
	}

	return r
}

// requestLogger logs one line per request and records HTTP metrics
// under the matched chi route pattern.
func requestLogger(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			endpoint := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					endpoint = p
				}
			}
			RecordRequest(r.Method, endpoint, status, elapsed)

			log.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", elapsed,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
