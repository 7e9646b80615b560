package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/ironicviking/max-pixels-sub000/analytics"
	"github.com/ironicviking/max-pixels-sub000/protocol"
)

const (
	maxConnsPerIP = 5
	maxTotalConns = 1000

	// DefaultStaleAfter is the inactivity window after which a player is
	// evicted by the scheduler sweep.
	DefaultStaleAfter = 30 * time.Second
)

// Hub owns the connected clients, the connection registry and the shared
// game state, and routes every inbound message. It is constructed in main
// and passed to whatever needs it; there are no package-level instances.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	byPlayer map[string]*Client // connection registry: playerID -> client

	register   chan *Client
	unregister chan *Client

	state    *State
	metrics  *RelayMetrics
	handlers map[string]handlerFunc
	log      *zap.SugaredLogger
	rec      *analytics.Recorder // nil-safe, may be disabled

	staleAfter time.Duration

	// Connection limiting (accessed from HTTP handlers).
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
}

// NewHub creates a Hub. rec may be nil when analytics is disabled.
func NewHub(log *zap.SugaredLogger, rec *analytics.Recorder) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		byPlayer:   make(map[string]*Client),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		state:      NewState(),
		metrics:    &RelayMetrics{},
		log:        log,
		rec:        rec,
		staleAfter: DefaultStaleAfter,
		ipConns:    make(map[string]int),
	}
	h.handlers = h.routes()
	return h
}

// State exposes the shared game state.
func (h *Hub) State() *State { return h.state }

// Metrics exposes the relay counters.
func (h *Hub) Metrics() *RelayMetrics { return h.metrics }

// CanAccept reports whether a new connection from ip fits the limits.
func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

// TrackConnect records an accepted connection.
func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
	h.metrics.IncConnects()
}

// TrackDisconnect records a closed connection.
func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
	h.metrics.IncDisconnects()
}

// Run processes register/unregister events.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.dropPlayer(client)
		}
	}
}

// dropPlayer removes a client's registry entry and state on socket close and
// tells the remaining clients. Harmless if the player already left.
func (h *Hub) dropPlayer(c *Client) {
	if c.playerID == "" {
		return
	}
	h.mu.Lock()
	if h.byPlayer[c.playerID] == c {
		delete(h.byPlayer, c.playerID)
	}
	h.mu.Unlock()

	if h.state.RemovePlayer(c.playerID) {
		h.log.Infow("player disconnected", "player", c.playerID)
		h.rec.Track(analytics.EvtLeave, c.playerID, "")
		h.broadcastAll(h.envelope(protocol.MsgPlayerLeave, c.playerID,
			protocol.LeaveData{PlayerID: c.playerID}))
	}
}

// envelope builds an outgoing envelope with a fresh timestamp.
func (h *Hub) envelope(typ, playerID string, data interface{}) protocol.Envelope {
	return protocol.Envelope{
		Type:      typ,
		PlayerID:  playerID,
		Timestamp: protocol.NowMillis(),
		Data:      data,
	}
}

func (h *Hub) sendTo(c *Client, env protocol.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Errorw("marshal error", "type", env.Type, "err", err)
		return
	}
	c.SendRaw(data)
}

// broadcastAll fans an envelope out to every connected client. A failed or
// slow client drops its copy; the fan-out never aborts.
func (h *Hub) broadcastAll(env protocol.Envelope) {
	h.broadcast(env, nil)
}

// broadcastExcept fans out to every client except the sender.
func (h *Hub) broadcastExcept(sender *Client, env protocol.Envelope) {
	h.broadcast(env, sender)
}

func (h *Hub) broadcast(env protocol.Envelope, skip *Client) {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Errorw("marshal error", "type", env.Type, "err", err)
		return
	}
	h.metrics.IncBroadcasts()
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c == skip {
			continue
		}
		c.SendRaw(data)
	}
}

// broadcastState sends the full game_state snapshot to everyone. Clients
// that opted into binary frames get the msgpack encoding; the snapshot is
// encoded once per format.
func (h *Hub) broadcastState(now int64) {
	gs := h.state.Snapshot(now)
	env := h.envelope(protocol.MsgGameState, "", gs)

	jsonData, err := json.Marshal(env)
	if err != nil {
		h.log.Errorw("marshal error", "type", env.Type, "err", err)
		return
	}
	var binData []byte
	h.metrics.IncBroadcasts()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.binary {
			if binData == nil {
				binData, err = msgpack.Marshal(gs)
				if err != nil {
					h.log.Errorw("msgpack marshal error", "err", err)
					binData = []byte{}
				}
			}
			if len(binData) > 0 {
				c.SendBinary(binData)
				continue
			}
		}
		c.SendRaw(jsonData)
	}
}

// sweep is one scheduler tick: evict stale players, then push a full
// snapshot. It does nothing while nobody is registered. The scheduler calls
// it with the wall clock; tests drive it with synthetic times.
func (h *Hub) sweep(now time.Time) {
	if h.state.PlayerCount() == 0 {
		return
	}
	nowMs := now.UnixMilli()
	cutoff := nowMs - h.staleAfter.Milliseconds()

	for _, id := range h.state.EvictStale(cutoff) {
		h.mu.Lock()
		delete(h.byPlayer, id)
		h.mu.Unlock()
		h.log.Infow("player evicted for inactivity", "player", id)
		h.rec.Track(analytics.EvtEvict, id, "")
		h.broadcastAll(h.envelope(protocol.MsgPlayerLeave, id,
			protocol.LeaveData{PlayerID: id}))
		h.metrics.AddEvictions(1)
	}

	h.broadcastState(nowMs)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
