package api

import (
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"arena-server/internal/game"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// MockWorld implements WorldStateProvider for testing
type MockWorld struct {
	snapshot game.WorldSnapshot
	stats    game.Stats
	eventLog map[string]interface{}
}

func NewMockWorld() *MockWorld {
	return &MockWorld{
		snapshot: game.WorldSnapshot{
			Tick: 42,
			Players: []game.PlayerState{
				{ID: "a", X: 100, Y: 100, Angle: 0.5, Attrs: map[string]any{"skin": "red"}},
				{ID: "b", X: 110, Y: 100},
			},
			Projectiles: []game.Projectile{{X: 110, Y: 100, SpeedX: 10, OwnerID: "a"}},
			TotalHits:   3,
			Bounds:      game.Bounds{Min: -10, MaxX: 2000, MaxY: 2000},
		},
		stats: game.Stats{Tick: 42, Players: 2, Projectiles: 1, TotalHits: 3, TotalFired: 7},
	}
}

func (m *MockWorld) Snapshot() game.WorldSnapshot         { return m.snapshot }
func (m *MockWorld) Stats() game.Stats                     { return m.stats }
func (m *MockWorld) EventLogStats() map[string]interface{} { return m.eventLog }

// MockConnections implements ConnectionStats
type MockConnections struct{}

func (MockConnections) ClientCount() int      { return 5 }
func (MockConnections) FramesDropped() uint64 { return 9 }

// ============================================================================
// Test Helpers
// ============================================================================

func newTestRouter(t *testing.T, cfg RouterConfig) *httptest.Server {
	t.Helper()
	if cfg.World == nil {
		cfg.World = NewMockWorld()
	}
	if cfg.RateLimiter == nil {
		cfg.RateLimiter = NewIPRateLimiter(RateLimitConfig{
			RequestsPerSecond: 1000, // High limit for tests
			Burst:             1000,
			CleanupInterval:   time.Minute,
		})
	}
	cfg.DisableLogging = true
	ts := httptest.NewServer(NewRouter(cfg))
	t.Cleanup(func() {
		ts.Close()
		cfg.RateLimiter.Stop()
	})
	return ts
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

// ============================================================================
// Route Tests
// ============================================================================

func TestHealthz(t *testing.T) {
	ts := newTestRouter(t, RouterConfig{})

	var body map[string]interface{}
	resp := getJSON(t, ts.URL+"/healthz", &body)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
}

func TestGetState(t *testing.T) {
	ts := newTestRouter(t, RouterConfig{})

	var body struct {
		Tick        uint64                   `json:"tick"`
		Players     []map[string]interface{} `json:"players"`
		Projectiles []map[string]interface{} `json:"projectiles"`
		TotalHits   uint64                   `json:"totalHits"`
	}
	resp := getJSON(t, ts.URL+"/api/state", &body)

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}
	if body.Tick != 42 || body.TotalHits != 3 {
		t.Errorf("Unexpected counters %+v", body)
	}
	if len(body.Players) != 2 {
		t.Fatalf("Expected 2 players, got %d", len(body.Players))
	}
	a := body.Players[0]
	if a["id"] != "a" || a["x"] != 100.0 || a["skin"] != "red" {
		t.Errorf("Unexpected player shape %v", a)
	}
	if len(body.Projectiles) != 1 || body.Projectiles[0]["owner_id"] != "a" || body.Projectiles[0]["speed_x"] != 10.0 {
		t.Errorf("Unexpected projectiles %v", body.Projectiles)
	}
}

func TestGetStats(t *testing.T) {
	world := NewMockWorld()
	world.eventLog = map[string]interface{}{"dropped": 0}
	ts := newTestRouter(t, RouterConfig{World: world, Connections: MockConnections{}})

	var body map[string]interface{}
	getJSON(t, ts.URL+"/api/stats", &body)

	tests := []struct {
		key  string
		want float64
	}{
		{"tick", 42},
		{"playerCount", 2},
		{"projectiles", 1},
		{"totalHits", 3},
		{"totalFired", 7},
		{"connections", 5},
		{"framesDropped", 9},
	}
	for _, tt := range tests {
		if body[tt.key] != tt.want {
			t.Errorf("%s = %v, want %v", tt.key, body[tt.key], tt.want)
		}
	}
	if _, ok := body["eventLog"]; !ok {
		t.Error("Expected eventLog stats")
	}
}

func TestWorldImage(t *testing.T) {
	ts := newTestRouter(t, RouterConfig{})

	resp, err := http.Get(ts.URL + "/api/world.png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %q", ct)
	}
	if _, err := png.Decode(resp.Body); err != nil {
		t.Errorf("Body is not a PNG: %v", err)
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "index.html"), "<html>arena</html>")
	mustWrite(t, filepath.Join(dir, "assets", "ship.svg"), "<svg/>")
	mustWrite(t, filepath.Join(dir, "lib", "client.js"), "console.log(1)")

	ts := newTestRouter(t, RouterConfig{StaticDir: dir})

	tests := []struct {
		path string
		want string
		code int
	}{
		{"/", "<html>arena</html>", http.StatusOK},
		{"/assets/ship.svg", "<svg/>", http.StatusOK},
		{"/lib/client.js", "console.log(1)", http.StatusOK},
		{"/assets/missing.png", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != tt.code {
				t.Fatalf("Expected %d, got %d", tt.code, resp.StatusCode)
			}
			if tt.want != "" && string(body) != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, body)
			}
		})
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestHTTPRateLimit(t *testing.T) {
	limiter := NewIPRateLimiter(RateLimitConfig{
		RequestsPerSecond: 0.001,
		Burst:             2,
		CleanupInterval:   time.Minute,
	})
	ts := newTestRouter(t, RouterConfig{RateLimiter: limiter})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp := getJSON(t, ts.URL+"/healthz", nil)
		codes = append(codes, resp.StatusCode)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected 200,200,429 got %v", codes)
	}
	if stats := limiter.Stats(); stats.Rejected != 1 || stats.Allowed != 2 {
		t.Errorf("Expected 2 allowed and 1 rejection, got %+v", stats)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestRouter(t, RouterConfig{CORSOrigins: []string{"https://arena.example"}})

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/state", nil)
	req.Header.Set("Origin", "https://arena.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://arena.example" {
		t.Errorf("Expected allowed origin header, got %q", got)
	}
}

// ============================================================================
// Limiter Tests
// ============================================================================

func TestIsAllowedOrigin(t *testing.T) {
	patterns := []string{"http://localhost:*", "https://*.arena.example", "https://play.example"}

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:5000", true},
		{"https://eu.arena.example", true},
		{"https://play.example", true},
		{"https://play.example.evil", false},
		{"https://arena.example", false},
		{"http://127.0.0.1:5000", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			if got := IsAllowedOrigin(tt.origin, patterns); got != tt.want {
				t.Errorf("IsAllowedOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}

	if !IsAllowedOrigin("https://anything", []string{"*"}) {
		t.Error("Bare wildcard should allow everything")
	}
}

func TestConnLimiter(t *testing.T) {
	l := NewConnLimiter(2)

	if !l.Acquire("1.2.3.4") || !l.Acquire("1.2.3.4") {
		t.Fatal("First two connections should be allowed")
	}
	if l.Acquire("1.2.3.4") {
		t.Error("Third connection should be rejected")
	}
	if !l.Acquire("5.6.7.8") {
		t.Error("Other IPs have their own budget")
	}

	l.Release("1.2.3.4")
	if !l.Acquire("1.2.3.4") {
		t.Error("Released slot should be reusable")
	}
	if got := l.Open("1.2.3.4"); got != 2 {
		t.Errorf("Expected 2 connections, got %d", got)
	}
	if got := l.Rejected(); got != 1 {
		t.Errorf("Expected 1 rejection, got %d", got)
	}

	l.Release("1.2.3.4")
	l.Release("1.2.3.4")
	l.Release("5.6.7.8")
	if got := l.Tracked(); got != 0 {
		t.Errorf("Expected no tracked IPs after every release, got %d", got)
	}

	// Releasing an IP with no slots is a no-op
	l.Release("9.9.9.9")
	if got := l.Tracked(); got != 0 {
		t.Errorf("Stray release should not create an entry, got %d", got)
	}

	unlimited := NewConnLimiter(0)
	for i := 0; i < 100; i++ {
		if !unlimited.Acquire("x") {
			t.Fatal("Zero limit means unlimited")
		}
	}
}

func TestClientIPResolver(t *testing.T) {
	proxies := NewClientIPResolver([]netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("fd00::/8"),
	})

	tests := []struct {
		name     string
		resolver *ClientIPResolver
		headers  map[string]string
		remote   string
		want     string
	}{
		{"remote addr", proxies, nil, "10.0.0.1:5555", "10.0.0.1"},
		{"untrusted peer ignores forwarded", proxies, map[string]string{"X-Forwarded-For": "1.1.1.1"}, "203.0.113.9:5555", "203.0.113.9"},
		{"untrusted peer ignores real ip", proxies, map[string]string{"X-Real-IP": "1.1.1.1"}, "203.0.113.9:5555", "203.0.113.9"},
		{"nil resolver trusts nobody", nil, map[string]string{"X-Forwarded-For": "1.1.1.1"}, "10.0.0.1:5555", "10.0.0.1"},
		{"forwarded chain", proxies, map[string]string{"X-Forwarded-For": "1.1.1.1, 2.2.2.2"}, "10.0.0.1:5555", "2.2.2.2"},
		{"trusted hops skipped", proxies, map[string]string{"X-Forwarded-For": "1.1.1.1, 10.0.0.2"}, "10.0.0.1:5555", "1.1.1.1"},
		{"real ip", proxies, map[string]string{"X-Real-IP": " 3.3.3.3 "}, "10.0.0.1:5555", "3.3.3.3"},
		{"garbage forwarded falls back", proxies, map[string]string{"X-Forwarded-For": "nonsense"}, "10.0.0.1:5555", "10.0.0.1"},
		{"ipv6 proxy", proxies, map[string]string{"X-Forwarded-For": "2001:db8::1"}, "[fd00::1]:5555", "2001:db8::1"},
		{"mapped peer", proxies, map[string]string{"X-Forwarded-For": "4.4.4.4"}, "[::ffff:10.0.0.1]:5555", "4.4.4.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := tt.resolver.ClientIP(r); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDebugHandler(t *testing.T) {
	ts := httptest.NewServer(DebugHandler(ObservabilityConfig{BasicAuthUser: "ops", BasicAuthPass: "secret"}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without credentials, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/metrics", nil)
	req.SetBasicAuth("ops", "secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 with credentials, got %d", resp.StatusCode)
	}
}

func TestIsLoopback(t *testing.T) {
	tests := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:6060": true,
		"[::1]:6060":     true,
		"0.0.0.0:6060":   false,
		":6060":          false,
		"garbage":        false,
	}
	for addr, want := range tests {
		if got := isLoopback(addr); got != want {
			t.Errorf("isLoopback(%q) = %v, want %v", addr, got, want)
		}
	}
}
