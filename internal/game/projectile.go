package game

import "errors"

// ErrProjectileLimit is returned by Spawn when the store is at capacity.
var ErrProjectileLimit = errors.New("projectile limit reached")

// Projectile is one in-flight shot. It has no identity beyond its position
// in the store; OwnerID is always assigned by the server.
type Projectile struct {
	X       float64 `json:"x" msgpack:"x"`
	Y       float64 `json:"y" msgpack:"y"`
	SpeedX  float64 `json:"speed_x" msgpack:"speed_x"` // World units per tick
	SpeedY  float64 `json:"speed_y" msgpack:"speed_y"`
	OwnerID string  `json:"owner_id" msgpack:"owner_id"` // Connection id of the shooter
}

// Bounds is the axis-aligned rectangle projectiles may live in.
// Both edges are inclusive.
type Bounds struct {
	Min  float64 `json:"min"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// Contains reports whether (x, y) lies inside the bounds.
func (b Bounds) Contains(x, y float64) bool {
	return x >= b.Min && x <= b.MaxX && y >= b.Min && y <= b.MaxY
}

// ProjectileStore is the ordered collection of in-flight projectiles.
// Like Registry it relies on World for synchronization.
type ProjectileStore struct {
	items []Projectile
	limit int // 0 means unbounded
}

// NewProjectileStore creates an empty store holding at most limit projectiles.
func NewProjectileStore(limit int) *ProjectileStore {
	capHint := limit
	if capHint <= 0 || capHint > 256 {
		capHint = 256
	}
	return &ProjectileStore{
		items: make([]Projectile, 0, capHint),
		limit: limit,
	}
}

// Spawn appends a projectile owned by owner. The owner is always the
// caller-supplied authoritative id, never a client field.
func (s *ProjectileStore) Spawn(owner string, x, y, speedX, speedY float64) error {
	if s.limit > 0 && len(s.items) >= s.limit {
		return ErrProjectileLimit
	}
	s.items = append(s.items, Projectile{
		X:       x,
		Y:       y,
		SpeedX:  speedX,
		SpeedY:  speedY,
		OwnerID: owner,
	})
	return nil
}

// AdvanceAndCull moves every projectile by its velocity once, then drops
// the ones that left b. Survivors keep their relative order.
//
// Removal compacts into the front of the same slice (write index n trails
// read index i), so no element is skipped or advanced twice.
func (s *ProjectileStore) AdvanceAndCull(b Bounds) int {
	n := 0
	for i := range s.items {
		p := s.items[i]
		p.X += p.SpeedX
		p.Y += p.SpeedY

		if !b.Contains(p.X, p.Y) {
			continue
		}
		s.items[n] = p
		n++
	}

	removed := len(s.items) - n
	clear(s.items[n:]) // release owner strings
	s.items = s.items[:n]
	return removed
}

// Snapshot returns an independent copy of the current projectiles.
func (s *ProjectileStore) Snapshot() []Projectile {
	out := make([]Projectile, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of in-flight projectiles.
func (s *ProjectileStore) Len() int {
	return len(s.items)
}
