// Package config provides centralized configuration management.
// Every tunable of the arena server is defined here with its default and
// the environment variable that overrides it.
package config

import (
	"net/netip"
	"os"
	"strconv"
	"strings"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      // Listen port (PORT)
	StaticDir      string   // Directory holding index.html, assets/ and lib/ (STATIC_DIR)
	AllowedOrigins []string // CORS and WebSocket origins (ALLOWED_ORIGINS, comma separated)

	// TrustedProxies lists the reverse proxies allowed to set X-Forwarded-For
	// (TRUSTED_PROXIES, comma separated CIDRs or addresses). Empty means the
	// server is exposed directly and forwarding headers are ignored.
	TrustedProxies []netip.Prefix
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:      5000,
		StaticDir: "./public",
		AllowedOrigins: []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		},
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if dir := os.Getenv("STATIC_DIR"); dir != "" {
		cfg.StaticDir = dir
	}
	if origins := getEnvList("ALLOWED_ORIGINS"); len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}
	cfg.TrustedProxies = parsePrefixes(getEnvList("TRUSTED_PROXIES"))

	return cfg
}

// =============================================================================
// WORLD CONFIGURATION
// =============================================================================

// WorldConfig holds the simulation constants of the shared world.
type WorldConfig struct {
	FPS       int     // Simulation ticks per second
	Width     float64 // Upper X bound; projectiles beyond it are culled
	Height    float64 // Upper Y bound
	MinCoord  float64 // Lower bound on both axes
	HitRadius float64 // Projectile/player distance that counts as a hit
}

// DefaultWorld returns the default world configuration.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		FPS:       60,
		Width:     2000,
		Height:    2000,
		MinCoord:  -10,
		HitRadius: 50,
	}
}

// WorldFromEnv returns world configuration with environment variable overrides.
func WorldFromEnv() WorldConfig {
	cfg := DefaultWorld()

	if fps := getEnvInt("TICK_RATE", 0); fps > 0 {
		cfg.FPS = fps
	}
	if r := getEnvFloat("HIT_RADIUS", -1); r > 0 {
		cfg.HitRadius = r
	}
	if w := getEnvFloat("WORLD_WIDTH", -1); w > 0 {
		cfg.Width = w
	}
	if h := getEnvFloat("WORLD_HEIGHT", -1); h > 0 {
		cfg.Height = h
	}

	return cfg
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// ResourceLimits controls DoS protection and performance limits.
type ResourceLimits struct {
	MaxConnections      int     // Hard cap on concurrent WebSocket connections
	MaxConnectionsPerIP int     // Concurrent WebSocket connections per source IP
	MaxProjectiles      int     // Projectiles alive at once; extra shots are rejected
	MessagesPerSecond   float64 // Inbound messages per connection per second
	MessageBurst        int     // Inbound burst per connection
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxConnections:      500,
		MaxConnectionsPerIP: 10,
		MaxProjectiles:      2000,
		MessagesPerSecond:   120, // two messages per tick at 60 FPS
		MessageBurst:        240,
	}
}

// LimitsFromEnv returns resource limits with environment variable overrides.
func LimitsFromEnv() ResourceLimits {
	cfg := DefaultLimits()

	if n := getEnvInt("MAX_CONNECTIONS", 0); n > 0 {
		cfg.MaxConnections = n
	}
	if n := getEnvInt("MAX_CONNECTIONS_PER_IP", 0); n > 0 {
		cfg.MaxConnectionsPerIP = n
	}
	if n := getEnvInt("MAX_PROJECTILES", 0); n > 0 {
		cfg.MaxProjectiles = n
	}
	if r := getEnvFloat("MESSAGES_PER_SECOND", -1); r > 0 {
		cfg.MessagesPerSecond = r
	}
	if b := getEnvInt("MESSAGE_BURST", 0); b > 0 {
		cfg.MessageBurst = b
	}

	return cfg
}

// =============================================================================
// LOGGING & DEBUG
// =============================================================================

// LogConfig holds logger settings.
type LogConfig struct {
	File      string // Rotated log file; empty disables file output
	Level     string // debug, info, warn, error
	EventFile string // JSONL event journal; empty disables it
}

// DefaultLog returns the default logging configuration.
func DefaultLog() LogConfig {
	return LogConfig{
		File:      "arena.log",
		Level:     "info",
		EventFile: "events.jsonl",
	}
}

// LogFromEnv returns logging configuration with environment variable overrides.
func LogFromEnv() LogConfig {
	cfg := DefaultLog()

	if v, ok := os.LookupEnv("LOG_FILE"); ok {
		cfg.File = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Level = strings.ToLower(v)
	}
	if v, ok := os.LookupEnv("EVENT_LOG_PATH"); ok {
		cfg.EventFile = v
	}

	return cfg
}

// DebugConfig configures the localhost-only observability server.
type DebugConfig struct {
	Enabled       bool
	ListenAddr    string // MUST stay on localhost in production
	BasicAuthUser string // Optional (DEBUG_USER)
	BasicAuthPass string // (DEBUG_PASSWORD)
}

// DebugFromEnv returns the debug server configuration.
func DebugFromEnv() DebugConfig {
	cfg := DebugConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		cfg.Enabled = false
	}
	if addr := os.Getenv("DEBUG_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	cfg.BasicAuthUser = os.Getenv("DEBUG_USER")
	cfg.BasicAuthPass = os.Getenv("DEBUG_PASSWORD")
	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server ServerConfig
	World  WorldConfig
	Limits ResourceLimits
	Log    LogConfig
	Debug  DebugConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Server: ServerFromEnv(),
		World:  WorldFromEnv(),
		Limits: LimitsFromEnv(),
		Log:    LogFromEnv(),
		Debug:  DebugFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parsePrefixes accepts CIDRs and bare addresses; invalid entries are skipped.
func parsePrefixes(items []string) []netip.Prefix {
	var out []netip.Prefix
	for _, item := range items {
		if p, err := netip.ParsePrefix(item); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(item); err == nil {
			addr = addr.Unmap()
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
		}
	}
	return out
}
