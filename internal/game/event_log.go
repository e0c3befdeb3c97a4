package game

import (
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	EventBufferSize      = 1024                   // Pending events before drops start
	MaxEventsPerSec      = 10000                  // Global rate limit
	MaxEventsPerPlayer   = 100                    // Per-player rate limit per second
	BatchFlushSize       = 64                     // Events per batch write
	BatchFlushInterval   = 100 * time.Millisecond // How often to flush
	PlayerLimiterCleanup = 5 * time.Minute        // Cleanup interval for player limiters
)

// EventLog is a bounded, rate-limited journal of world events.
//
// Emit never blocks: it is called from inside the world lock. Events
// are written as newline-delimited JSON by a background goroutine.
// The journal is an audit trail; nothing reads it back at startup.
type EventLog struct {
	pending chan Event

	// Rate limiting for DoS protection
	globalLimiter  *rate.Limiter
	playerLimiters sync.Map // map[string]*playerLimiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	out io.WriteCloser

	sequence     uint64 // atomic
	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
	writtenCount uint64 // atomic
}

// playerLimiterEntry tracks per-player rate limiting
type playerLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // unix nano
}

// NewEventLog creates a new bounded event log
func NewEventLog() *EventLog {
	return &EventLog{
		pending:       make(chan Event, EventBufferSize),
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// Start begins the async writer goroutine. out is closed by Stop.
func (el *EventLog) Start(out io.WriteCloser) {
	if el.running.Load() || out == nil {
		return
	}
	el.out = out
	el.running.Store(true)
	el.writerWg.Add(2)
	go el.writerLoop()
	go el.cleanupLoop()
}

// Stop flushes pending events and closes the output
func (el *EventLog) Stop() {
	if !el.running.Load() {
		return
	}
	el.stopOnce.Do(func() {
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()
		if el.out != nil {
			_ = el.out.Close()
		}
	})
}

// Emit queues an event.
// Returns false if the log is stopped, rate limited or full.
func (el *EventLog) Emit(event Event) bool {
	if !el.running.Load() {
		return false
	}

	if !el.globalLimiter.Allow() {
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}

	// Per-player limit keeps one noisy client from starving the journal
	if event.PlayerID != "" && !el.getPlayerLimiter(event.PlayerID).Allow() {
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}

	event.Sequence = atomic.AddUint64(&el.sequence, 1)
	select {
	case el.pending <- event:
		atomic.AddUint64(&el.totalCount, 1)
		return true
	default:
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}
}

// EmitSimple is a convenience method to emit an event with automatic creation
func (el *EventLog) EmitSimple(eventType EventType, tickNum uint64, playerID string, payload interface{}) bool {
	if !el.running.Load() {
		return false
	}
	return el.Emit(NewEvent(eventType, tickNum, playerID, payload))
}

// getPlayerLimiter returns/creates a per-player rate limiter
func (el *EventLog) getPlayerLimiter(playerID string) *rate.Limiter {
	now := time.Now().UnixNano()
	if entry, ok := el.playerLimiters.Load(playerID); ok {
		e := entry.(*playerLimiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}

	entry := &playerLimiterEntry{
		limiter: rate.NewLimiter(MaxEventsPerPlayer, MaxEventsPerPlayer/10),
	}
	entry.lastUsed.Store(now)
	actual, _ := el.playerLimiters.LoadOrStore(playerID, entry)
	return actual.(*playerLimiterEntry).limiter
}

// writerLoop batches and writes events asynchronously
func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)

	for {
		select {
		case <-el.stopChan:
			// Final flush of everything still queued
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}

		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

// cleanupLoop removes stale player limiters to prevent memory leak
func (el *EventLog) cleanupLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(PlayerLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			el.cleanupPlayerLimiters(time.Now().Add(-PlayerLimiterCleanup))
		}
	}
}

// cleanupPlayerLimiters removes player limiters unused since cutoff
func (el *EventLog) cleanupPlayerLimiters(cutoff time.Time) {
	el.playerLimiters.Range(func(key, value interface{}) bool {
		entry := value.(*playerLimiterEntry)
		if entry.lastUsed.Load() < cutoff.UnixNano() {
			el.playerLimiters.Delete(key)
		}
		return true
	})
}

// collectBatch drains up to BatchFlushSize queued events
func (el *EventLog) collectBatch(batch []Event) []Event {
	for len(batch) < BatchFlushSize {
		select {
		case ev := <-el.pending:
			batch = append(batch, ev)
		default:
			return batch
		}
	}
	return batch
}

// flushBatch writes events (append-only, newline-delimited JSON)
func (el *EventLog) flushBatch(batch []Event) {
	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		data = append(data, '\n')
		if _, err := el.out.Write(data); err != nil {
			atomic.AddUint64(&el.droppedCount, 1)
			continue
		}
		atomic.AddUint64(&el.writtenCount, 1)
	}
}

// GetStats returns metrics for DoS monitoring
func (el *EventLog) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"total":   atomic.LoadUint64(&el.totalCount),
		"written": atomic.LoadUint64(&el.writtenCount),
		"dropped": atomic.LoadUint64(&el.droppedCount),
		"pending": len(el.pending),
		"running": el.running.Load(),
	}
}

// GetDroppedCount returns the number of dropped events
func (el *EventLog) GetDroppedCount() uint64 {
	return atomic.LoadUint64(&el.droppedCount)
}
