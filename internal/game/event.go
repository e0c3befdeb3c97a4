package game

import (
	"encoding/json"
	"time"
)

// EventType enum for journal event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypePlayerJoin
	EventTypePlayerLeave
	EventTypeFire
	EventTypeHit
)

// EventVersion for backwards compatibility of journal readers
const EventVersion uint8 = 1

// Event is one journal record
type Event struct {
	Version   uint8           `json:"version"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`  // Monotonic sequence
	TickNum   uint64          `json:"tickNum"`   // Tick during which it happened
	PlayerID  string          `json:"playerId"`  // Source connection (for rate limiting)
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypePlayerJoin:
		return "player_join"
	case EventTypePlayerLeave:
		return "player_leave"
	case EventTypeFire:
		return "fire"
	case EventTypeHit:
		return "hit"
	default:
		return "unknown"
	}
}

// Typed payloads for different event types

// PlayerJoinPayload contains player join details
type PlayerJoinPayload struct {
	PlayerID string  `json:"playerId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rejoin   bool    `json:"rejoin,omitempty"`
}

// PlayerLeavePayload contains player leave details
type PlayerLeavePayload struct {
	PlayerID string `json:"playerId"`
	Joined   bool   `json:"joined"` // false when the connection never sent a join
}

// FirePayload contains the spawn parameters of a projectile
type FirePayload struct {
	OwnerID string  `json:"ownerId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	SpeedX  float64 `json:"speedX"`
	SpeedY  float64 `json:"speedY"`
}

// HitPayload contains hit details
type HitPayload struct {
	VictimID string  `json:"victimId"`
	OwnerID  string  `json:"ownerId"`
	Distance float64 `json:"distance"`
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, tickNum uint64, playerID string, payload interface{}) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		data = nil
	}
	return Event{
		Version:   EventVersion,
		Type:      eventType.String(),
		Timestamp: time.Now().UnixNano(),
		TickNum:   tickNum,
		PlayerID:  playerID,
		Payload:   data,
	}
}
