package game

import "time"

// WorldSnapshot is an immutable copy of the whole world, taken under the
// world lock. It backs the HTTP state endpoint and the minimap renderer.
type WorldSnapshot struct {
	Tick        uint64        `json:"tick"`
	Timestamp   time.Time     `json:"timestamp"`
	Players     []PlayerState `json:"players"` // Sorted by id
	Projectiles []Projectile  `json:"projectiles"`
	TotalHits   uint64        `json:"totalHits"`
	Bounds      Bounds        `json:"bounds"`
}

// Stats is a cheap summary of world counters for monitoring.
type Stats struct {
	Tick        uint64 `json:"tick"`
	Players     int    `json:"players"`
	Projectiles int    `json:"projectiles"`
	TotalHits   uint64 `json:"totalHits"`
	TotalFired  uint64 `json:"totalFired"`
	Running     bool   `json:"running"`
}
