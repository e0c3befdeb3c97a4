package game

// BroadcastKind classifies outbound world updates.
type BroadcastKind uint8

const (
	BroadcastRoster      BroadcastKind = iota + 1 // Payload: Roster
	BroadcastMove                                 // Payload: MoveDelta
	BroadcastProjectiles                          // Payload: []Projectile
	BroadcastHit                                  // Payload: string (victim id)
)

// String returns a human-readable kind name.
func (k BroadcastKind) String() string {
	switch k {
	case BroadcastRoster:
		return "roster"
	case BroadcastMove:
		return "move"
	case BroadcastProjectiles:
		return "projectiles"
	case BroadcastHit:
		return "hit"
	default:
		return "unknown"
	}
}

// Broadcast is one outbound update. Payloads are snapshots and are never
// mutated after publication, so publishers may encode them asynchronously.
type Broadcast struct {
	Kind    BroadcastKind
	Payload any
}

// Roster is a full copy of the player mapping keyed by connection id.
type Roster map[string]PlayerState

// MoveDelta announces the new state of one player.
type MoveDelta struct {
	PlayerID string
	State    PlayerState
}

// Publisher delivers broadcasts to connected clients.
//
// Implementations must not block on I/O and must not call back into the
// World: both methods are invoked while the world lock is held.
type Publisher interface {
	// PublishAll sends b to every connection.
	PublishAll(b Broadcast)
	// PublishAllExcept sends b to every connection but senderID.
	PublishAllExcept(senderID string, b Broadcast)
}

type nopPublisher struct{}

func (nopPublisher) PublishAll(Broadcast)              {}
func (nopPublisher) PublishAllExcept(string, Broadcast) {}

func rosterBroadcast(r Roster) Broadcast {
	return Broadcast{Kind: BroadcastRoster, Payload: r}
}

func moveBroadcast(id string, state PlayerState) Broadcast {
	return Broadcast{Kind: BroadcastMove, Payload: MoveDelta{PlayerID: id, State: state}}
}

func projectilesBroadcast(p []Projectile) Broadcast {
	return Broadcast{Kind: BroadcastProjectiles, Payload: p}
}

func hitBroadcast(victimID string) Broadcast {
	return Broadcast{Kind: BroadcastHit, Payload: victimID}
}
