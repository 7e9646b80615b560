package server

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/ironicviking/max-pixels-sub000/analytics"
	"github.com/ironicviking/max-pixels-sub000/game"
	"github.com/ironicviking/max-pixels-sub000/protocol"
)

type handlerFunc func(c *Client, env protocol.InEnvelope)

// routes builds the dispatch table. Message types without an entry are
// logged and ignored — unknown types are forward-compatibility, not errors.
func (h *Hub) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		protocol.MsgPlayerJoin:  h.handleJoin,
		protocol.MsgPlayerLeave: h.handleLeave,
		protocol.MsgPlayerMove:  h.handleMove,
		protocol.MsgPlayerFire:  h.handleFire,
		protocol.MsgChat:        h.handleChat,
		protocol.MsgHeartbeat:   h.handleHeartbeat,
	}
}

// dispatch parses one inbound frame and routes it. A parse failure answers
// the sender privately and is never broadcast.
func (h *Hub) dispatch(c *Client, raw []byte) {
	h.metrics.IncMsgsRouted()

	var env protocol.InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.metrics.IncParseErrors()
		h.log.Warnw("malformed message", "addr", c.remoteAddr, "err", err)
		h.sendTo(c, h.envelope(protocol.MsgError, "",
			protocol.ErrorData{Message: "invalid message format"}))
		return
	}

	handler, ok := h.handlers[env.Type]
	if !ok {
		h.metrics.IncUnknown()
		h.log.Debugw("unknown message type", "type", env.Type, "addr", c.remoteAddr)
		return
	}
	handler(c, env)
}

func (h *Hub) handleJoin(c *Client, env protocol.InEnvelope) {
	var join protocol.JoinData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &join); err != nil {
			h.sendTo(c, h.envelope(protocol.MsgError, "",
				protocol.ErrorData{Message: "invalid join payload"}))
			return
		}
	}

	id := join.PlayerID
	if id == "" {
		id = env.PlayerID
	}
	if id == "" {
		id = uuid.NewString()
	}

	now := protocol.NowMillis()
	snap := game.NewPlayer(id, join.Name).ToNetworkData()
	snap.LastUpdateTime = now

	c.playerID = id
	c.binary = join.Binary
	h.mu.Lock()
	h.byPlayer[id] = c
	h.mu.Unlock()

	h.state.AddPlayer(snap)
	h.log.Infow("player joined", "player", id, "addr", c.remoteAddr)
	h.rec.Track(analytics.EvtJoin, id, "")

	// Full state to the joiner first, then announce to everyone else.
	h.sendTo(c, h.envelope(protocol.MsgGameState, "", h.state.Snapshot(now)))
	h.broadcastExcept(c, h.envelope(protocol.MsgPlayerJoin, id, snap))
}

func (h *Hub) handleLeave(c *Client, env protocol.InEnvelope) {
	var leave protocol.LeaveData
	if len(env.Data) > 0 {
		json.Unmarshal(env.Data, &leave)
	}
	id := leave.PlayerID
	if id == "" {
		id = env.PlayerID
	}
	if id == "" {
		id = c.playerID
	}
	if id == "" || !h.state.RemovePlayer(id) {
		return // already gone, nothing to do
	}

	h.mu.Lock()
	delete(h.byPlayer, id)
	h.mu.Unlock()
	if c.playerID == id {
		c.playerID = ""
	}

	h.log.Infow("player left", "player", id)
	h.rec.Track(analytics.EvtLeave, id, "")
	h.broadcastAll(h.envelope(protocol.MsgPlayerLeave, id,
		protocol.LeaveData{PlayerID: id}))
}

func (h *Hub) handleMove(c *Client, env protocol.InEnvelope) {
	var move protocol.MoveData
	if err := json.Unmarshal(env.Data, &move); err != nil {
		return
	}
	if move.PlayerID == "" {
		move.PlayerID = c.playerID
	}
	if !h.claimMatches(c, move.PlayerID) {
		return
	}
	if !h.state.ApplyMove(move, protocol.NowMillis()) {
		return // unknown player, silently ignored
	}
	h.broadcastExcept(c, h.envelope(protocol.MsgPlayerMove, move.PlayerID, move))
}

func (h *Hub) handleFire(c *Client, env protocol.InEnvelope) {
	var fire protocol.FireData
	if err := json.Unmarshal(env.Data, &fire); err != nil {
		return
	}
	if fire.PlayerID == "" {
		fire.PlayerID = c.playerID
	}
	if !h.claimMatches(c, fire.PlayerID) {
		return
	}
	// Stateless pass-through, sender included.
	h.broadcastAll(h.envelope(protocol.MsgPlayerFire, fire.PlayerID, fire))
}

func (h *Hub) handleChat(c *Client, env protocol.InEnvelope) {
	var chat protocol.ChatData
	if err := json.Unmarshal(env.Data, &chat); err != nil {
		return
	}
	if chat.PlayerID == "" {
		chat.PlayerID = c.playerID
	}
	if chat.Timestamp == 0 {
		chat.Timestamp = protocol.NowMillis()
	}
	h.rec.Track(analytics.EvtChat, chat.PlayerID, chat.Text)
	h.broadcastAll(h.envelope(protocol.MsgChat, chat.PlayerID, chat))
}

func (h *Hub) handleHeartbeat(c *Client, env protocol.InEnvelope) {
	now := protocol.NowMillis()
	h.sendTo(c, protocol.Envelope{
		Type:      protocol.MsgHeartbeat,
		PlayerID:  c.playerID,
		Timestamp: now,
		Data:      protocol.HeartbeatData{Timestamp: now},
	})
}

// claimMatches rejects mutations whose claimed player id does not match the
// id registered for this connection. Unregistered connections cannot mutate.
func (h *Hub) claimMatches(c *Client, claimed string) bool {
	if c.playerID == "" || claimed != c.playerID {
		h.metrics.IncSpoofed()
		h.log.Warnw("dropping message with mismatched player id",
			"claimed", claimed, "registered", c.playerID, "addr", c.remoteAddr)
		return false
	}
	return true
}
