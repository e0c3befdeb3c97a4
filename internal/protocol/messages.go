package protocol

import (
	"errors"
	"fmt"
	"math"

	"arena-server/internal/game"
)

// Inbound event names (client -> server)
const (
	EventJoin = "new-player"
	EventMove = "player-update"
	EventFire = "bullet-shot"
)

// Outbound event names (server -> client)
const (
	EventRoster      = "update-players"
	EventMoveDelta   = "move-player"
	EventProjectiles = "bullet-update"
	EventHit         = "player-hit"
	EventWelcome     = "welcome"
)

var (
	// ErrMalformed means the frame or its payload could not be used.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownEvent means the event name is not part of the protocol.
	ErrUnknownEvent = errors.New("unknown event")
)

// Envelope is the frame shape shared by both directions.
type Envelope struct {
	Event string `json:"event" msgpack:"event"`
	Data  any    `json:"data" msgpack:"data"`
}

// inboundEnvelope keeps the payload generic so one decoder serves both codecs.
type inboundEnvelope struct {
	Event string         `json:"event" msgpack:"event"`
	Data  map[string]any `json:"data" msgpack:"data"`
}

// MoveDelta is the payload of EventMoveDelta.
type MoveDelta struct {
	PlayerID string         `json:"player_id" msgpack:"player_id"`
	State    map[string]any `json:"state" msgpack:"state"`
}

// Welcome is the payload of EventWelcome.
type Welcome struct {
	ID string `json:"id" msgpack:"id"`
}

// Inbound is a decoded client message: one of Join, Move or Fire.
type Inbound interface {
	EventName() string
}

// Join announces the sender's player.
type Join struct {
	X, Y, Angle float64
	Attrs       map[string]any // everything but x, y and angle
}

// Move reports the sender's new position.
type Move struct {
	X, Y, Angle float64
}

// Fire spawns a projectile owned by the sender.
type Fire struct {
	X, Y, SpeedX, SpeedY float64
}

func (Join) EventName() string { return EventJoin }
func (Move) EventName() string { return EventMove }
func (Fire) EventName() string { return EventFire }

// State converts the join into the initial player state.
func (j Join) State() game.PlayerState {
	return game.PlayerState{X: j.X, Y: j.Y, Angle: j.Angle, Attrs: j.Attrs}
}

// Decode parses one inbound frame. Any error wraps ErrMalformed or
// ErrUnknownEvent; the caller drops the frame and keeps the connection.
func Decode(c Codec, frame []byte) (Inbound, error) {
	var env inboundEnvelope
	if err := c.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Event {
	case EventJoin:
		nums, err := numbers(env.Data, "x", "y", "angle")
		if err != nil {
			return nil, err
		}
		attrs := make(map[string]any, len(env.Data))
		for k, v := range env.Data {
			if k == "x" || k == "y" || k == "angle" {
				continue
			}
			if !encodable(v) {
				return nil, fmt.Errorf("%w: attribute %q holds a non-finite number", ErrMalformed, k)
			}
			attrs[k] = v
		}
		return Join{X: nums[0], Y: nums[1], Angle: nums[2], Attrs: attrs}, nil

	case EventMove:
		nums, err := numbers(env.Data, "x", "y", "angle")
		if err != nil {
			return nil, err
		}
		return Move{X: nums[0], Y: nums[1], Angle: nums[2]}, nil

	case EventFire:
		// owner_id, if present, is ignored
		nums, err := numbers(env.Data, "x", "y", "speed_x", "speed_y")
		if err != nil {
			return nil, err
		}
		return Fire{X: nums[0], Y: nums[1], SpeedX: nums[2], SpeedY: nums[3]}, nil

	case "":
		return nil, fmt.Errorf("%w: missing event name", ErrMalformed)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// numbers extracts finite numeric fields in order.
func numbers(data map[string]any, keys ...string) ([]float64, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: missing data", ErrMalformed)
	}
	out := make([]float64, len(keys))
	for i, k := range keys {
		v, ok := data[k]
		if !ok {
			return nil, fmt.Errorf("%w: missing field %q", ErrMalformed, k)
		}
		f, ok := toFloat(v)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: field %q is not a finite number", ErrMalformed, k)
		}
		out[i] = f
	}
	return out, nil
}

// encodable reports whether v survives every codec. Attributes are echoed
// to all clients, so a NaN or Inf accepted from a msgpack client would
// make the roster unencodable as JSON.
func encodable(v any) bool {
	switch n := v.(type) {
	case float64:
		return !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		f := float64(n)
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	case []any:
		for _, e := range n {
			if !encodable(e) {
				return false
			}
		}
	case map[string]any:
		for _, e := range n {
			if !encodable(e) {
				return false
			}
		}
	case map[any]any:
		for k, e := range n {
			if !encodable(k) || !encodable(e) {
				return false
			}
		}
	}
	return true
}

// toFloat accepts every numeric type the JSON and msgpack decoders produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Outbound converts a world broadcast into its wire envelope.
func Outbound(b game.Broadcast) (Envelope, error) {
	switch b.Kind {
	case game.BroadcastRoster:
		roster, ok := b.Payload.(game.Roster)
		if !ok {
			break
		}
		players := make(map[string]map[string]any, len(roster))
		for id, p := range roster {
			players[id] = p.Fields()
		}
		return Envelope{Event: EventRoster, Data: players}, nil

	case game.BroadcastMove:
		delta, ok := b.Payload.(game.MoveDelta)
		if !ok {
			break
		}
		return Envelope{Event: EventMoveDelta, Data: MoveDelta{
			PlayerID: delta.PlayerID,
			State:    delta.State.Fields(),
		}}, nil

	case game.BroadcastProjectiles:
		projectiles, ok := b.Payload.([]game.Projectile)
		if !ok {
			break
		}
		if projectiles == nil {
			projectiles = []game.Projectile{}
		}
		return Envelope{Event: EventProjectiles, Data: projectiles}, nil

	case game.BroadcastHit:
		victim, ok := b.Payload.(string)
		if !ok {
			break
		}
		return Envelope{Event: EventHit, Data: victim}, nil
	}
	return Envelope{}, fmt.Errorf("cannot encode %s broadcast with payload %T", b.Kind, b.Payload)
}

// WelcomeEnvelope tells a freshly connected client its id.
func WelcomeEnvelope(id string) Envelope {
	return Envelope{Event: EventWelcome, Data: Welcome{ID: id}}
}
