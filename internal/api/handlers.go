package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"arena-server/internal/game"
)

// Handler methods for routerHandlers
// These are used by both the standalone router (for testing) and the full Server.

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	snap := h.world.Snapshot()

	// Players in sorted id order, each in its wire shape plus the id
	players := make([]map[string]interface{}, 0, len(snap.Players))
	for _, p := range snap.Players {
		fields := p.Fields()
		fields["id"] = p.ID
		players = append(players, fields)
	}

	writeJSON(w, map[string]interface{}{
		"tick":        snap.Tick,
		"timestamp":   snap.Timestamp.UnixMilli(),
		"players":     players,
		"projectiles": snap.Projectiles,
		"totalHits":   snap.TotalHits,
		"bounds":      snap.Bounds,
	})
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := h.world.Stats()

	resp := map[string]interface{}{
		"tick":        stats.Tick,
		"playerCount": stats.Players,
		"projectiles": stats.Projectiles,
		"totalHits":   stats.TotalHits,
		"totalFired":  stats.TotalFired,
		"running":     stats.Running,
	}
	if h.connections != nil {
		resp["connections"] = h.connections.ClientCount()
		resp["framesDropped"] = h.connections.FramesDropped()
	}
	if el := h.world.EventLogStats(); el != nil {
		resp["eventLog"] = el
	}
	writeJSON(w, resp)
}

func (h *routerHandlers) handleWorldImage(w http.ResponseWriter, r *http.Request) {
	// Render into a buffer so an encode failure can still produce a 500
	var buf bytes.Buffer
	if err := h.minimap.WritePNG(&buf, h.world.Snapshot()); err != nil {
		h.log.Errorw("render minimap", "error", err)
		writeError(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

var _ WorldStateProvider = (*game.World)(nil)
