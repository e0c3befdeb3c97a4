package game

// PlayerState is the authoritative state of one joined connection.
//
// X, Y and Angle are owned by the server and updated by move messages.
// Attrs carries whatever else the client sent at join time (skin, name,
// color...). The server never reads it; it is echoed back in roster updates.
type PlayerState struct {
	ID    string         `json:"id"`
	X     float64        `json:"x"`
	Y     float64        `json:"y"`
	Angle float64        `json:"angle"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Fields returns the wire representation of the player: the client's
// join object with x, y and angle replaced by the authoritative values.
func (p PlayerState) Fields() map[string]any {
	out := make(map[string]any, len(p.Attrs)+3)
	for k, v := range p.Attrs {
		out[k] = v
	}
	out["x"] = p.X
	out["y"] = p.Y
	out["angle"] = p.Angle
	return out
}

// clone returns a copy whose Attrs map is not shared with p.
func (p PlayerState) clone() PlayerState {
	if p.Attrs == nil {
		return p
	}
	attrs := make(map[string]any, len(p.Attrs))
	for k, v := range p.Attrs {
		attrs[k] = v
	}
	p.Attrs = attrs
	return p
}
