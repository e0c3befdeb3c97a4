package game

import (
	"math"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"arena-server/internal/game/spatial"
)

// Config holds the simulation constants of one world.
type Config struct {
	FPS            int     // Ticks per second
	Bounds         Bounds  // Projectiles outside are culled
	HitRadius      float64 // Strictly-less-than distance for a hit
	MaxProjectiles int     // 0 disables the cap
}

// DefaultConfig returns the standard 60 FPS, 2000x2000 world.
func DefaultConfig() Config {
	return Config{
		FPS:            60,
		Bounds:         Bounds{Min: -10, MaxX: 2000, MaxY: 2000},
		HitRadius:      50,
		MaxProjectiles: 2000,
	}
}

// World owns the player registry and projectile store of one shared space.
//
// Every inbound event and every tick runs under mu, so a tick never
// interleaves with a join, move, fire or disconnect. Broadcasts are handed
// to the Publisher while mu is held; the Publisher only enqueues.
type World struct {
	mu          sync.Mutex
	players     *Registry
	projectiles *ProjectileStore
	publisher   Publisher
	cfg         Config
	log         *zap.SugaredLogger
	eventLog    *EventLog

	// Hit detection scratch, rebuilt every tick
	grid    *spatial.Grid
	indexed []*PlayerState

	tickCount  uint64
	totalHits  uint64
	totalFired uint64

	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}
	doneChan chan struct{}

	// Event callbacks, invoked outside the world lock
	OnTick func(elapsed time.Duration, players, projectiles int)
	OnHit  func(victimID, ownerID string)
}

// NewWorld creates an idle world. A nil publisher discards broadcasts and
// a nil logger disables logging.
func NewWorld(cfg Config, publisher Publisher, logger *zap.SugaredLogger) *World {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultConfig().FPS
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	w := &World{
		players:     NewRegistry(),
		projectiles: NewProjectileStore(cfg.MaxProjectiles),
		publisher:   publisher,
		cfg:         cfg,
		log:         logger,
	}
	if cfg.HitRadius > 0 {
		// At most 256 cells per side, whatever the radius
		b := cfg.Bounds
		cell := max(cfg.HitRadius, (b.MaxX-b.Min)/256, (b.MaxY-b.Min)/256)
		w.grid = spatial.NewGrid(b.Min, b.Min, b.MaxX, b.MaxY, cell)
	}
	return w
}

// SetEventLog attaches a journal. Must be called before Start.
func (w *World) SetEventLog(el *EventLog) {
	w.mu.Lock()
	w.eventLog = el
	w.mu.Unlock()
}

// Config returns the world's simulation constants.
func (w *World) Config() Config {
	return w.cfg
}

// Join registers id with the given initial state and sends the full roster
// to every connection. A repeated join for the same id replaces the entry.
func (w *World) Join(id string, initial PlayerState) PlayerState {
	w.mu.Lock()
	defer w.mu.Unlock()

	rejoin := w.players.Has(id)
	state := w.players.Join(id, initial)
	w.publisher.PublishAll(rosterBroadcast(w.players.Snapshot()))

	w.emit(EventTypePlayerJoin, id, PlayerJoinPayload{
		PlayerID: id,
		X:        state.X,
		Y:        state.Y,
		Rejoin:   rejoin,
	})
	w.log.Debugw("player joined", "id", id, "x", state.X, "y", state.Y, "rejoin", rejoin)
	return state
}

// Move updates the position of id and relays it to everyone else.
// A move for an id that has not joined, or already left, is ignored.
func (w *World) Move(id string, x, y, angle float64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	state, ok := w.players.UpdatePosition(id, x, y, angle)
	if !ok {
		return false
	}
	w.publisher.PublishAllExcept(id, moveBroadcast(id, state))
	return true
}

// Disconnect removes id and sends the remaining roster to the other
// connections. The roster goes out even when id never joined, and calling
// Disconnect twice is harmless. It reports whether an entry was removed.
func (w *World) Disconnect(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := w.players.Remove(id)
	w.publisher.PublishAllExcept(id, rosterBroadcast(w.players.Snapshot()))

	w.emit(EventTypePlayerLeave, id, PlayerLeavePayload{PlayerID: id, Joined: removed})
	if removed {
		w.log.Debugw("player left", "id", id)
	}
	return removed
}

// Fire spawns a projectile owned by id. The owner always comes from the
// connection, never from the message.
func (w *World) Fire(id string, x, y, speedX, speedY float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.projectiles.Spawn(id, x, y, speedX, speedY); err != nil {
		return err
	}
	w.totalFired++
	w.emit(EventTypeFire, id, FirePayload{OwnerID: id, X: x, Y: y, SpeedX: speedX, SpeedY: speedY})
	return nil
}

type hit struct {
	victim, owner string
}

// Tick advances the simulation by one step:
//  1. move every projectile and cull those outside the bounds
//  2. notify a hit for every projectile/player pair closer than the hit
//     radius, skipping the projectile's owner
//  3. send the projectile snapshot to everyone, even when empty
//
// Hits do not consume the projectile and a projectile may hit several
// players in the same tick.
func (w *World) Tick() {
	start := time.Now()
	hits, players, projectiles := w.step()

	if w.OnHit != nil {
		for _, h := range hits {
			w.OnHit(h.victim, h.owner)
		}
	}
	if w.OnTick != nil {
		w.OnTick(time.Since(start), players, projectiles)
	}
}

func (w *World) step() (hits []hit, players, projectiles int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.tickCount++
	w.projectiles.AdvanceAndCull(w.cfg.Bounds)

	if w.grid != nil && w.projectiles.Len() > 0 {
		hits = w.detectHits()
	}

	w.publisher.PublishAll(projectilesBroadcast(w.projectiles.Snapshot()))
	return hits, w.players.Len(), w.projectiles.Len()
}

// detectHits reports every projectile/player pair closer than the hit
// radius, skipping owners. Pairs come out in projectile order, then player
// id order, exactly as a full scan would produce them.
func (w *World) detectHits() []hit {
	var hits []hit

	w.grid.Clear()
	w.indexed = w.indexed[:0]
	w.players.each(func(p *PlayerState) {
		w.grid.Insert(uint32(len(w.indexed)), p.X, p.Y)
		w.indexed = append(w.indexed, p)
	})

	for i := range w.projectiles.items {
		proj := &w.projectiles.items[i]
		candidates := w.grid.QueryRadius(proj.X, proj.Y, w.cfg.HitRadius)
		slices.Sort(candidates)

		for _, idx := range candidates {
			p := w.indexed[idx]
			if p.ID == proj.OwnerID {
				continue
			}
			dist := math.Hypot(p.X-proj.X, p.Y-proj.Y)
			if dist >= w.cfg.HitRadius {
				continue
			}
			w.totalHits++
			w.publisher.PublishAll(hitBroadcast(p.ID))
			w.emit(EventTypeHit, "", HitPayload{VictimID: p.ID, OwnerID: proj.OwnerID, Distance: dist})
			hits = append(hits, hit{victim: p.ID, owner: proj.OwnerID})
		}
	}

	// Drop pointers so removed players can be collected
	clear(w.indexed)
	return hits
}

// Start begins the tick loop. Ticks run on a single goroutine, so a slow
// tick delays the next one instead of overlapping it.
func (w *World) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.doneChan = make(chan struct{})
	w.ticker = time.NewTicker(time.Second / time.Duration(w.cfg.FPS))
	ticker, stop, done := w.ticker, w.stopChan, w.doneChan
	w.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ticker.C:
				w.Tick()
			case <-stop:
				return
			}
		}
	}()

	w.log.Infof("🎮 World started at %d FPS", w.cfg.FPS)
}

// Stop halts the tick loop and waits for an in-flight tick to finish.
func (w *World) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.ticker.Stop()
	close(w.stopChan)
	done := w.doneChan
	w.mu.Unlock()

	<-done
	w.log.Info("🛑 World stopped")
}

// Running reports whether the tick loop is active.
func (w *World) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Snapshot returns a consistent copy of players and projectiles.
func (w *World) Snapshot() WorldSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	return WorldSnapshot{
		Tick:        w.tickCount,
		Timestamp:   time.Now(),
		Players:     w.players.list(),
		Projectiles: w.projectiles.Snapshot(),
		TotalHits:   w.totalHits,
		Bounds:      w.cfg.Bounds,
	}
}

// Stats returns world counters.
func (w *World) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return Stats{
		Tick:        w.tickCount,
		Players:     w.players.Len(),
		Projectiles: w.projectiles.Len(),
		TotalHits:   w.totalHits,
		TotalFired:  w.totalFired,
		Running:     w.running,
	}
}

// EventLogStats returns journal counters, or nil without a journal.
func (w *World) EventLogStats() map[string]interface{} {
	w.mu.Lock()
	el := w.eventLog
	w.mu.Unlock()
	if el == nil {
		return nil
	}
	return el.GetStats()
}

// emit journals an event. Caller holds mu.
func (w *World) emit(t EventType, playerID string, payload interface{}) {
	if w.eventLog == nil {
		return
	}
	w.eventLog.EmitSimple(t, w.tickCount, playerID, payload)
}
