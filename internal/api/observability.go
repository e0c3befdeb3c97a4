package api

import (
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"arena-server/internal/config"
)

// Metrics with bounded cardinality (no per-player labels to prevent DoS)
var (
	// World metrics
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_tick_duration_seconds",
		Help:    "Time spent in one world tick, including fan-out enqueue",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.0167, 0.05},
	})

	playerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_player_count",
		Help: "Current number of joined players",
	})

	projectileCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_projectile_count",
		Help: "Current number of in-flight projectiles",
	})

	hitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_hits_total",
		Help: "Hit notifications produced by the simulation",
	})

	// Inbound message metrics
	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_messages_total",
		Help: "Inbound messages accepted, by event",
	}, []string{"event"}) // Bounded: protocol event names only

	messagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_messages_rejected_total",
		Help: "Inbound messages dropped",
	}, []string{"reason"}) // Bounded: "malformed", "unknown_event", "rate_limit", "projectile_limit"

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit", "codec"

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsFramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_frames_sent_total",
		Help: "Frames written to clients",
	})

	wsFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_frames_dropped_total",
		Help: "Frames dropped because a client queue was full",
	})

	// Event journal metrics
	eventLogDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_log_dropped",
		Help: "Journal events dropped due to rate limiting or buffer full",
	})
)

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // MUST be loopback in production
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
	Logger        *zap.SugaredLogger
}

// ObservabilityFromConfig maps the process configuration.
func ObservabilityFromConfig(cfg config.DebugConfig, logger *zap.SugaredLogger) ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:       cfg.Enabled,
		ListenAddr:    cfg.ListenAddr,
		BasicAuthUser: cfg.BasicAuthUser,
		BasicAuthPass: cfg.BasicAuthPass,
		Logger:        logger,
	}
}

// DebugHandler serves pprof, Prometheus metrics and a health check.
func DebugHandler(cfg ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()

	// pprof endpoints for profiling
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Optional basic auth wrapper
	var handler http.Handler = mux
	if cfg.BasicAuthUser != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}
	return handler
}

// StartDebugServer starts the internal observability server.
// It refuses non-loopback addresses to prevent pprof-based DoS.
// The returned server is nil when disabled.
func StartDebugServer(cfg ObservabilityConfig) *http.Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if !cfg.Enabled {
		log.Info("📊 Debug server disabled")
		return nil
	}

	if !isLoopback(cfg.ListenAddr) {
		log.Warnf("⚠️ Debug server address %s is not loopback, forcing 127.0.0.1:6060", cfg.ListenAddr)
		cfg.ListenAddr = "127.0.0.1:6060"
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           DebugHandler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("📊 Debug server starting on %s", cfg.ListenAddr)
		log.Infof("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		log.Infof("   - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warnf("⚠️ Debug server error: %v", err)
		}
	}()

	return srv
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecordTick records tick timing and world gauges for metrics
func RecordTick(duration time.Duration, players, projectiles int) {
	tickDuration.Observe(duration.Seconds())
	playerCount.Set(float64(players))
	projectileCount.Set(float64(projectiles))
}

// RecordHit increments the hit counter
func RecordHit() {
	hitsTotal.Inc()
}

// RecordMessage counts an accepted inbound message
func RecordMessage(event string) {
	messagesTotal.WithLabelValues(event).Inc()
}

// RecordMessageRejected counts a dropped inbound message
func RecordMessageRejected(reason string) {
	messagesRejected.WithLabelValues(reason).Inc()
}

// UpdateEventLogStats mirrors the journal drop counter
func UpdateEventLogStats(dropped uint64) {
	eventLogDropped.Set(float64(dropped))
}

// RecordConnectionRejected increments the rejection counter
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// RecordFramesSent counts frames written to clients
func RecordFramesSent(n int) {
	wsFramesSent.Add(float64(n))
}

// RecordFrameDropped counts a frame dropped by backpressure
func RecordFrameDropped() {
	wsFramesDropped.Inc()
}
