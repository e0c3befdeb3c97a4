package api

import (
	"errors"
	"net/http"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"arena-server/internal/game"
	"arena-server/internal/protocol"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a frame
	pongWait       = 60 * time.Second    // Time allowed to read the next pong
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait
	maxMessageSize = 4096                // Inbound frames are small JSON/msgpack objects
	sendBufferSize = 256                 // Frames queued per client before dropping
)

// WorldInterface is the part of game.World the hub feeds inbound events into.
// Keeping it minimal lets tests use a fake world.
type WorldInterface interface {
	Join(id string, initial game.PlayerState) game.PlayerState
	Move(id string, x, y, angle float64) bool
	Fire(id string, x, y, speedX, speedY float64) error
	Disconnect(id string) bool
}

// HubConfig configures connection limits and inbound throttling.
type HubConfig struct {
	MaxConnections      int
	MaxConnectionsPerIP int
	MessagesPerSecond   float64 // Per connection
	MessageBurst        int
	SendBuffer          int            // Per-client queue length; 0 uses the default
	AllowedOrigins      []string       // Browser origins; "*" wildcards allowed
	TrustedProxies      []netip.Prefix // Peers whose forwarding headers are believed
	Logger              *zap.SugaredLogger
}

// DefaultHubConfig returns production-safe defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		MaxConnections:      500,
		MaxConnectionsPerIP: 10,
		MessagesPerSecond:   120,
		MessageBurst:        240,
		SendBuffer:          sendBufferSize,
		AllowedOrigins:      []string{"http://localhost:*", "http://127.0.0.1:*"},
	}
}

// wsClient is one live connection.
type wsClient struct {
	id      string
	ip      string
	conn    *websocket.Conn
	codec   protocol.Codec
	send    chan []byte   // never closed; the write pump exits on done
	done    chan struct{} // closed once on unregister
	limiter *rate.Limiter
}

// Hub owns every websocket connection. It implements game.Publisher for
// the world and forwards decoded client messages to it.
//
// Lock order: the world lock is taken before h.mu (publishes arrive with
// the world locked). The hub never calls into the world while holding h.mu.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
	closed  bool

	world     WorldInterface
	cfg       HubConfig
	log       *zap.SugaredLogger
	upgrader  websocket.Upgrader
	clientIP  *ClientIPResolver
	slots     *ConnLimiter
	pumps     sync.WaitGroup

	framesDropped uint64 // atomic
}

var _ game.Publisher = (*Hub)(nil)

// NewHub creates a hub with no world attached. Call SetWorld before serving.
func NewHub(cfg HubConfig) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = sendBufferSize
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	h := &Hub{
		clients:   make(map[string]*wsClient),
		cfg:       cfg,
		log:       log,
		clientIP:  NewClientIPResolver(cfg.TrustedProxies),
		slots:     NewConnLimiter(cfg.MaxConnectionsPerIP),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if IsAllowedOrigin(origin, cfg.AllowedOrigins) {
				return true
			}

			// Log rejected origin for security monitoring
			h.log.Warnf("⚠️ WebSocket connection rejected from origin: %s", origin)
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// SetWorld attaches the world that receives inbound events. The world is
// created with the hub as its publisher, so it cannot be a constructor argument.
func (h *Hub) SetWorld(w WorldInterface) {
	h.mu.Lock()
	h.world = w
	h.mu.Unlock()
}

// PublishAll sends b to every connection.
func (h *Hub) PublishAll(b game.Broadcast) {
	h.publish("", b)
}

// PublishAllExcept sends b to every connection but senderID.
func (h *Hub) PublishAllExcept(senderID string, b game.Broadcast) {
	h.publish(senderID, b)
}

// publish encodes b at most once per codec and enqueues it without blocking.
// A codec that cannot encode b skips only the clients using it.
func (h *Hub) publish(except string, b game.Broadcast) {
	env, err := protocol.Outbound(b)
	if err != nil {
		h.log.Errorw("dropping broadcast", "kind", b.Kind.String(), "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	frames := make(map[string][]byte, len(protocol.Codecs)) // nil value: encode failed
	for id, c := range h.clients {
		if id == except {
			continue
		}
		name := c.codec.Name()
		frame, seen := frames[name]
		if !seen {
			frame, err = c.codec.Marshal(env)
			if err != nil {
				h.log.Errorw("encode broadcast", "codec", name, "kind", b.Kind.String(), "error", err)
				frame = nil
			}
			frames[name] = frame
		}
		if frame == nil {
			continue
		}
		h.enqueue(c, frame)
	}
}

// enqueue hands a frame to the client's write pump, dropping it when the
// queue is full. A slow client loses frames; it never stalls the tick.
func (h *Hub) enqueue(c *wsClient, frame []byte) {
	select {
	case c.send <- frame:
	default:
		atomic.AddUint64(&h.framesDropped, 1)
		RecordFrameDropped()
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// FramesDropped returns how many frames were dropped by backpressure.
func (h *Hub) FramesDropped() uint64 {
	return atomic.LoadUint64(&h.framesDropped)
}

// HandleWebSocket upgrades the request and starts the client's pumps.
// The codec is picked with ?codec=json|msgpack.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := h.clientIP.ClientIP(r)

	codec, err := protocol.CodecByName(r.URL.Query().Get("codec"))
	if err != nil {
		RecordConnectionRejected("codec")
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.RLock()
	total, closed, world := len(h.clients), h.closed, h.world
	h.mu.RUnlock()

	if closed || world == nil {
		writeError(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	// Check total connection limit
	if h.cfg.MaxConnections > 0 && total >= h.cfg.MaxConnections {
		h.log.Warnf("⚠️ WebSocket connection rejected: total limit reached (%d)", total)
		RecordConnectionRejected("ws_total_limit")
		writeError(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	// Check per-IP connection limit
	if !h.slots.Acquire(ip) {
		h.log.Warnf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		writeError(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.log.Debugw("websocket upgrade failed", "ip", ip, "error", err)
		h.slots.Release(ip)
		return
	}

	limit := rate.Limit(h.cfg.MessagesPerSecond)
	if h.cfg.MessagesPerSecond <= 0 {
		limit = rate.Inf
	}
	c := &wsClient{
		id:      uuid.NewString(),
		ip:      ip,
		conn:    conn,
		codec:   codec,
		send:    make(chan []byte, h.cfg.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(limit, h.cfg.MessageBurst),
	}

	// The welcome frame is queued before registration, so it is always first
	if frame, err := codec.Marshal(protocol.WelcomeEnvelope(c.id)); err == nil {
		c.send <- frame
	}

	if !h.register(c) {
		h.slots.Release(ip)
		conn.Close()
		return
	}

	h.pumps.Add(2)
	go h.writePump(c)
	go h.readPump(c, world)
}

func (h *Hub) register(c *wsClient) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Infof("📱 Client %s connected from %s (%d total, %s)", c.id, c.ip, count, c.codec.Name())
	UpdateWSConnections(count)
	return true
}

// unregister removes c and then tells the world it left.
func (h *Hub) unregister(c *wsClient, world WorldInterface) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	count := len(h.clients)
	h.mu.Unlock()

	// No publisher can reach c after the delete, so done is closed exactly once here
	close(c.done)
	h.slots.Release(c.ip)
	c.conn.Close()

	world.Disconnect(c.id)

	h.log.Infof("📱 Client %s disconnected (%d remaining)", c.id, count)
	UpdateWSConnections(count)
}

// readPump decodes client frames and applies them to the world.
func (h *Hub) readPump(c *wsClient, world WorldInterface) {
	defer h.pumps.Done()
	defer h.unregister(c, world)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debugw("websocket read error", "id", c.id, "error", err)
			}
			return
		}

		if !c.limiter.Allow() {
			RecordMessageRejected("rate_limit")
			continue
		}
		h.dispatch(c, world, data)
	}
}

// dispatch applies one frame. Bad frames are dropped; the connection stays.
func (h *Hub) dispatch(c *wsClient, world WorldInterface, data []byte) {
	msg, err := protocol.Decode(c.codec, data)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, protocol.ErrUnknownEvent) {
			reason = "unknown_event"
		}
		RecordMessageRejected(reason)
		h.log.Debugw("rejected message", "id", c.id, "reason", reason, "error", err)
		return
	}

	switch m := msg.(type) {
	case protocol.Join:
		world.Join(c.id, m.State())
	case protocol.Move:
		world.Move(c.id, m.X, m.Y, m.Angle)
	case protocol.Fire:
		if err := world.Fire(c.id, m.X, m.Y, m.SpeedX, m.SpeedY); err != nil {
			if errors.Is(err, game.ErrProjectileLimit) {
				RecordMessageRejected("projectile_limit")
			}
			h.log.Debugw("fire rejected", "id", c.id, "error", err)
			return
		}
	}
	RecordMessage(msg.EventName())
}

// writePump is the only goroutine writing to c.conn.
func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		h.pumps.Done()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.codec.FrameType(), frame); err != nil {
				// Closing the conn ends the read pump, which unregisters
				return
			}
			RecordFramesSent(1)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// Stop closes every connection and waits for their pumps to exit.
// Each closed connection goes through the normal disconnect path.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	h.pumps.Wait()
	h.log.Info("🛑 WebSocket hub stopped")
}
