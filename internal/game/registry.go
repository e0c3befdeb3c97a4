package game

import "sort"

// Registry maps connection ids to player states.
//
// Registry is not safe for concurrent use; World serializes every access
// behind its lock. Iteration order is the sorted id order so that hit
// notifications and snapshots are deterministic.
type Registry struct {
	players map[string]*PlayerState
	order   []string // sorted ids, kept in sync with players
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		players: make(map[string]*PlayerState),
	}
}

// Join inserts the state for id, replacing any previous entry (last join wins).
// The stored copy is independent of initial.
func (r *Registry) Join(id string, initial PlayerState) PlayerState {
	state := initial.clone()
	state.ID = id

	if _, exists := r.players[id]; !exists {
		i := sort.SearchStrings(r.order, id)
		r.order = append(r.order, "")
		copy(r.order[i+1:], r.order[i:])
		r.order[i] = id
	}
	r.players[id] = &state
	return state
}

// UpdatePosition moves an existing player in place.
// It reports false, changing nothing, when id has no entry.
func (r *Registry) UpdatePosition(id string, x, y, angle float64) (PlayerState, bool) {
	p, ok := r.players[id]
	if !ok {
		return PlayerState{}, false
	}
	p.X = x
	p.Y = y
	p.Angle = angle
	return *p, true
}

// Remove deletes id. Removing an absent id is a no-op that reports false.
func (r *Registry) Remove(id string) bool {
	if _, ok := r.players[id]; !ok {
		return false
	}
	delete(r.players, id)
	i := sort.SearchStrings(r.order, id)
	r.order = append(r.order[:i], r.order[i+1:]...)
	return true
}

// Get returns a copy of the state stored for id.
func (r *Registry) Get(id string) (PlayerState, bool) {
	p, ok := r.players[id]
	if !ok {
		return PlayerState{}, false
	}
	return *p, true
}

// Has reports whether id has joined.
func (r *Registry) Has(id string) bool {
	_, ok := r.players[id]
	return ok
}

// Len returns the number of joined players.
func (r *Registry) Len() int {
	return len(r.players)
}

// IDs returns the joined ids in sorted order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Snapshot returns a point-in-time copy of the roster.
// Attrs maps are shared with the registry; they are never mutated after join.
func (r *Registry) Snapshot() Roster {
	out := make(Roster, len(r.players))
	for id, p := range r.players {
		out[id] = *p
	}
	return out
}

// list returns copies of all players in sorted id order.
func (r *Registry) list() []PlayerState {
	out := make([]PlayerState, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.players[id])
	}
	return out
}

// each calls fn for every player in sorted id order without copying.
func (r *Registry) each(fn func(p *PlayerState)) {
	for _, id := range r.order {
		fn(r.players[id])
	}
}
