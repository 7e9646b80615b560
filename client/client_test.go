package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/ironicviking/max-pixels-sub000/protocol"
)

func newTestClient() *Client {
	return New(zap.NewNop().Sugar())
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestSendFailsClosedWhenDisconnected(t *testing.T) {
	c := newTestClient()
	if c.SendMessage(protocol.MsgChat, protocol.ChatData{Text: "hi"}) {
		t.Error("SendMessage should return false when disconnected")
	}
	if c.SendPlayerMovement(protocol.MoveData{}) {
		t.Error("SendPlayerMovement should return false when disconnected")
	}
	if c.SendPlayerFire(protocol.FireData{}) {
		t.Error("SendPlayerFire should return false when disconnected")
	}
	if c.SendChatMessage("hello") {
		t.Error("SendChatMessage should return false when disconnected")
	}
}

func TestDispatchIsolatesPanickingHandlers(t *testing.T) {
	c := newTestClient()
	var calls int32

	c.On(protocol.MsgChat, func(env protocol.InEnvelope) {
		panic("bad handler")
	})
	c.On(protocol.MsgChat, func(env protocol.InEnvelope) {
		atomic.AddInt32(&calls, 1)
	})

	env := protocol.InEnvelope{Type: protocol.MsgChat}
	c.dispatch(env)
	c.dispatch(env) // the panic must not poison later dispatches

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("surviving handler calls = %d, want 2", got)
	}
}

func TestHeartbeatSwallowedAndTracked(t *testing.T) {
	c := newTestClient()
	var calls int32
	c.On(protocol.MsgHeartbeat, func(env protocol.InEnvelope) {
		atomic.AddInt32(&calls, 1)
	})

	before := time.Now().Add(-time.Minute)
	c.mu.Lock()
	c.lastHeartbeat = before
	c.mu.Unlock()

	c.handleMessage(mustMarshal(t, protocol.Envelope{
		Type:      protocol.MsgHeartbeat,
		Timestamp: protocol.NowMillis(),
		Data:      protocol.HeartbeatData{Timestamp: protocol.NowMillis()},
	}))

	if atomic.LoadInt32(&calls) != 0 {
		t.Error("heartbeat must never reach subscribers")
	}
	c.mu.Lock()
	updated := c.lastHeartbeat.After(before)
	c.mu.Unlock()
	if !updated {
		t.Error("heartbeat should refresh the staleness clock")
	}
}

func TestMalformedServerMessageIgnored(t *testing.T) {
	c := newTestClient()
	c.handleMessage([]byte("garbage")) // must not panic
}

func TestReconnectFailedFiresExactlyOnce(t *testing.T) {
	c := newTestClient()
	c.retry = RetryPolicy{Base: time.Millisecond, Cap: 10 * time.Millisecond, MaxAttempts: 3}

	var dials, failures int32
	c.dial = func(url string) (*websocket.Conn, error) {
		atomic.AddInt32(&dials, 1)
		return nil, errors.New("refused")
	}
	c.OnConnection(EventReconnectFailed, func() {
		atomic.AddInt32(&failures, 1)
	})

	if err := c.Connect("ws://nowhere/ws", "a"); err == nil {
		t.Fatal("Connect should surface the dial error")
	}

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&failures) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond) // room for spurious extra firings

	if got := atomic.LoadInt32(&failures); got != 1 {
		t.Fatalf("reconnectFailed fired %d times, want exactly 1", got)
	}
	// Initial dial plus the three budgeted retries.
	if got := atomic.LoadInt32(&dials); got != 4 {
		t.Errorf("dial attempts = %d, want 4", got)
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected", c.State())
	}
}

func TestBinarySnapshotDispatchedAsGameState(t *testing.T) {
	c := newTestClient()
	got := make(chan protocol.GameStateData, 1)
	c.On(protocol.MsgGameState, func(env protocol.InEnvelope) {
		var gs protocol.GameStateData
		json.Unmarshal(env.Data, &gs)
		got <- gs
	})

	gs := protocol.GameStateData{
		Players:     []protocol.PlayerSnapshot{{ID: "a", LastUpdateTime: 42}},
		GameObjects: []interface{}{},
		Timestamp:   1000,
	}
	raw, err := msgpack.Marshal(gs)
	if err != nil {
		t.Fatalf("msgpack: %v", err)
	}
	c.handleBinary(raw)

	select {
	case decoded := <-got:
		if len(decoded.Players) != 1 || decoded.Players[0].ID != "a" {
			t.Errorf("decoded snapshot = %+v", decoded)
		}
	default:
		t.Fatal("binary snapshot never reached the game_state subscribers")
	}
}

// ---------- tests against a live relay-shaped server ----------

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// startEchoServer accepts one message-recording WebSocket at a time and
// funnels everything received into the returned channel.
func startEchoServer(t *testing.T) (string, chan protocol.InEnvelope, func()) {
	t.Helper()
	inbound := make(chan protocol.InEnvelope, 32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var env protocol.InEnvelope
				if json.Unmarshal(raw, &env) == nil {
					inbound <- env
				}
			}
		}()
	}))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, inbound, srv.Close
}

func waitFor(t *testing.T, inbound chan protocol.InEnvelope, msgType string) protocol.InEnvelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-inbound:
			if env.Type == msgType {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", msgType)
		}
	}
}

func TestConnectSendsJoinAndFiresCallback(t *testing.T) {
	wsURL, inbound, cleanup := startEchoServer(t)
	defer cleanup()

	c := newTestClient()
	connected := make(chan struct{}, 1)
	c.OnConnection(EventConnected, func() { connected <- struct{}{} })

	if err := c.Connect(wsURL, "pilot-1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("connected callback never fired")
	}

	env := waitFor(t, inbound, protocol.MsgPlayerJoin)
	var join protocol.JoinData
	json.Unmarshal(env.Data, &join)
	if join.PlayerID != "pilot-1" {
		t.Errorf("join playerId = %q, want pilot-1", join.PlayerID)
	}
	if c.State() != StateConnected {
		t.Errorf("state = %v, want connected", c.State())
	}

	// Connecting again while connected is a no-op success.
	if err := c.Connect(wsURL, "pilot-1"); err != nil {
		t.Errorf("second Connect: %v", err)
	}
}

func TestDisconnectSendsLeaveAndSuppressesReconnect(t *testing.T) {
	wsURL, inbound, cleanup := startEchoServer(t)
	defer cleanup()

	c := newTestClient()
	var reconnects int32
	c.OnConnection(EventReconnecting, func() { atomic.AddInt32(&reconnects, 1) })

	if err := c.Connect(wsURL, "pilot-2"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, inbound, protocol.MsgPlayerJoin)

	c.Disconnect()

	env := waitFor(t, inbound, protocol.MsgPlayerLeave)
	var leave protocol.LeaveData
	json.Unmarshal(env.Data, &leave)
	if leave.PlayerID != "pilot-2" {
		t.Errorf("leave playerId = %q, want pilot-2", leave.PlayerID)
	}

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&reconnects); got != 0 {
		t.Errorf("reconnect attempts after deliberate disconnect = %d, want 0", got)
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected", c.State())
	}
}
