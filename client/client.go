// Package client is the game's network client: it owns the WebSocket
// connection, the reconnect policy, the heartbeat loop and a pub/sub registry
// for inbound message types. The game loop never blocks on it.
package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/ironicviking/max-pixels-sub000/protocol"
)

// Connection lifecycle events for OnConnection.
const (
	EventConnected       = "connected"
	EventDisconnected    = "disconnected"
	EventReconnecting    = "reconnecting"
	EventReconnectFailed = "reconnectFailed"
)

// State of the connection state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

const (
	heartbeatInterval = 5 * time.Second
	heartbeatStale    = 10 * time.Second
	clientWriteWait   = 10 * time.Second
)

// Handler consumes one inbound envelope. Handlers run on the read goroutine;
// a panicking handler is recovered and never stops the others.
type Handler func(env protocol.InEnvelope)

// Client is the network client. Construct with New, subscribe with On and
// OnConnection, then Connect.
type Client struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	url      string
	playerID string
	name     string
	binary   bool

	handlers     map[string][]Handler
	connHandlers map[string][]func()

	retry             RetryPolicy
	failedFired       bool
	suppressReconnect bool

	lastHeartbeat time.Time

	// session is closed when the current connection ends, stopping its loops.
	session chan struct{}

	dial func(url string) (*websocket.Conn, error)
	log  *zap.SugaredLogger
}

// New creates a disconnected client.
func New(log *zap.SugaredLogger) *Client {
	return &Client{
		handlers:     make(map[string][]Handler),
		connHandlers: make(map[string][]func()),
		retry:        NewRetryPolicy(),
		log:          log,
		dial: func(url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			return conn, err
		},
	}
}

// SetName sets the display name sent with player_join and chat.
func (c *Client) SetName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

// UseBinarySnapshots opts into msgpack-encoded game_state frames.
func (c *Client) UseBinarySnapshots(on bool) {
	c.mu.Lock()
	c.binary = on
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// On registers a handler for an inbound message type. heartbeat is consumed
// internally and never reaches subscribers.
func (c *Client) On(msgType string, fn Handler) {
	c.mu.Lock()
	c.handlers[msgType] = append(c.handlers[msgType], fn)
	c.mu.Unlock()
}

// OnConnection registers a callback for a lifecycle event.
func (c *Client) OnConnection(event string, fn func()) {
	c.mu.Lock()
	c.connHandlers[event] = append(c.connHandlers[event], fn)
	c.mu.Unlock()
}

// Connect opens the connection and joins as playerID. A no-op when already
// connected. On dial failure the reconnect policy takes over and the dial
// error is returned.
func (c *Client) Connect(url, playerID string) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.url = url
	c.playerID = playerID
	c.suppressReconnect = false
	c.failedFired = false
	c.retry.Reset()
	c.state = StateConnecting
	c.mu.Unlock()

	return c.connectOnce()
}

func (c *Client) connectOnce() error {
	c.mu.Lock()
	url := c.url
	c.mu.Unlock()

	conn, err := c.dial(url)
	if err != nil {
		c.log.Warnw("connect failed", "url", url, "err", err)
		c.scheduleReconnect()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.retry.Reset()
	c.failedFired = false
	c.lastHeartbeat = time.Now()
	session := make(chan struct{})
	c.session = session
	join := protocol.JoinData{PlayerID: c.playerID, Name: c.name, Binary: c.binary}
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.heartbeatLoop(session)

	c.SendMessage(protocol.MsgPlayerJoin, join)
	c.fireConnection(EventConnected)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(err)
			return
		}
		if msgType == websocket.BinaryMessage {
			c.handleBinary(raw)
		} else {
			c.handleMessage(raw)
		}
	}
}

// handleMessage parses and dispatches one text frame. Heartbeats refresh the
// staleness clock and are swallowed.
func (c *Client) handleMessage(raw []byte) {
	var env protocol.InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Warnw("malformed server message", "err", err)
		return
	}
	if env.Type == protocol.MsgHeartbeat {
		c.mu.Lock()
		c.lastHeartbeat = time.Now()
		c.mu.Unlock()
		return
	}
	c.dispatch(env)
}

// handleBinary decodes a msgpack game_state frame and dispatches it through
// the same subscriber path as JSON snapshots.
func (c *Client) handleBinary(raw []byte) {
	var gs protocol.GameStateData
	if err := msgpack.Unmarshal(raw, &gs); err != nil {
		c.log.Warnw("malformed binary snapshot", "err", err)
		return
	}
	data, err := json.Marshal(gs)
	if err != nil {
		return
	}
	c.dispatch(protocol.InEnvelope{
		Type:      protocol.MsgGameState,
		Timestamp: gs.Timestamp,
		Data:      data,
	})
}

// dispatch fans an envelope out to the registered handlers, each inside its
// own fault boundary.
func (c *Client) dispatch(env protocol.InEnvelope) {
	c.mu.Lock()
	handlers := make([]Handler, len(c.handlers[env.Type]))
	copy(handlers, c.handlers[env.Type])
	c.mu.Unlock()

	for _, fn := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Errorw("handler panic", "type", env.Type, "panic", r)
				}
			}()
			fn(env)
		}()
	}
}

func (c *Client) fireConnection(event string) {
	c.mu.Lock()
	handlers := make([]func(), len(c.connHandlers[event]))
	copy(handlers, c.connHandlers[event])
	c.mu.Unlock()

	for _, fn := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Errorw("connection handler panic", "event", event, "panic", r)
				}
			}()
			fn()
		}()
	}
}

// handleClose runs when the read loop ends. Normal closure and deliberate
// disconnects stay down; anything else enters the reconnect path.
func (c *Client) handleClose(err error) {
	c.mu.Lock()
	c.conn = nil
	if c.session != nil {
		close(c.session)
		c.session = nil
	}
	suppress := c.suppressReconnect
	wasDown := c.state == StateDisconnected
	c.mu.Unlock()

	if suppress || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		// Disconnect() already announced a deliberate close.
		if !wasDown {
			c.fireConnection(EventDisconnected)
		}
		return
	}

	c.log.Warnw("connection lost", "err", err)
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.suppressReconnect {
		c.state = StateDisconnected
		c.mu.Unlock()
		return
	}
	delay, ok := c.retry.NextDelay()
	if !ok {
		c.state = StateDisconnected
		fired := c.failedFired
		c.failedFired = true
		c.mu.Unlock()
		if !fired {
			c.log.Warnw("reconnect attempts exhausted")
			c.fireConnection(EventReconnectFailed)
		}
		return
	}
	c.state = StateReconnecting
	attempt := c.retry.Attempt()
	c.mu.Unlock()

	c.log.Infow("scheduling reconnect", "attempt", attempt, "delay", delay)
	c.fireConnection(EventReconnecting)

	time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.suppressReconnect || c.state != StateReconnecting {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		c.connectOnce()
	})
}

// SendMessage sends one envelope of the given type. It fails closed: false
// when not connected or the write fails, never a panic.
func (c *Client) SendMessage(msgType string, data interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.conn == nil {
		return false
	}
	env := protocol.Envelope{
		Type:      msgType,
		PlayerID:  c.playerID,
		Timestamp: protocol.NowMillis(),
		Data:      data,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		c.log.Errorw("marshal error", "type", msgType, "err", err)
		return false
	}
	c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		c.log.Warnw("write failed", "type", msgType, "err", err)
		return false
	}
	return true
}

// SendPlayerMovement sends a sparse movement update.
func (c *Client) SendPlayerMovement(move protocol.MoveData) bool {
	c.mu.Lock()
	move.PlayerID = c.playerID
	c.mu.Unlock()
	return c.SendMessage(protocol.MsgPlayerMove, move)
}

// SendPlayerFire sends a fire event.
func (c *Client) SendPlayerFire(fire protocol.FireData) bool {
	c.mu.Lock()
	fire.PlayerID = c.playerID
	c.mu.Unlock()
	if fire.Timestamp == 0 {
		fire.Timestamp = protocol.NowMillis()
	}
	return c.SendMessage(protocol.MsgPlayerFire, fire)
}

// SendChatMessage sends a chat line.
func (c *Client) SendChatMessage(text string) bool {
	c.mu.Lock()
	chat := protocol.ChatData{
		PlayerID:  c.playerID,
		Name:      c.name,
		Text:      text,
		Timestamp: protocol.NowMillis(),
	}
	c.mu.Unlock()
	return c.SendMessage(protocol.MsgChat, chat)
}

// Disconnect leaves the game and closes the connection with the normal close
// code. No reconnect follows; only a new Connect resumes.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.suppressReconnect = true
	conn := c.conn
	session := c.session
	c.session = nil
	c.conn = nil
	wasConnected := c.state == StateConnected
	playerID := c.playerID
	c.state = StateDisconnected
	c.mu.Unlock()

	if session != nil {
		close(session)
	}
	if conn != nil && wasConnected {
		env := protocol.Envelope{
			Type:      protocol.MsgPlayerLeave,
			PlayerID:  playerID,
			Timestamp: protocol.NowMillis(),
			Data:      protocol.LeaveData{PlayerID: playerID},
		}
		if raw, err := json.Marshal(env); err == nil {
			conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			conn.WriteMessage(websocket.TextMessage, raw)
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	c.fireConnection(EventDisconnected)
}

// heartbeatLoop sends a heartbeat every interval and watches for staleness.
// Staleness is advisory only: the server's inactivity eviction is the
// enforcement point, so we log and keep going.
func (c *Client) heartbeatLoop(session chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.SendMessage(protocol.MsgHeartbeat,
				protocol.HeartbeatData{Timestamp: protocol.NowMillis()})
			c.mu.Lock()
			stale := time.Since(c.lastHeartbeat)
			c.mu.Unlock()
			if stale > heartbeatStale {
				c.log.Warnw("no heartbeat from server", "since", stale)
			}
		case <-session:
			return
		}
	}
}
