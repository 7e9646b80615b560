package protocol

import (
	"encoding/json"
	"time"
)

// Message types exchanged between client and relay. The same envelope shape
// is used in both directions.
const (
	MsgPlayerJoin  = "player_join"
	MsgPlayerLeave = "player_leave"
	MsgPlayerMove  = "player_move"
	MsgPlayerFire  = "player_fire"
	MsgGameState   = "game_state"
	MsgChat        = "chat_message"
	MsgHeartbeat   = "heartbeat"
	MsgError       = "error"
)

// Envelope wraps every outgoing message. PlayerID is empty for messages that
// are not attributed to a player (the JSON null case).
type Envelope struct {
	Type      string      `json:"type"`
	PlayerID  string      `json:"playerId,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// InEnvelope is used for incoming messages — json.RawMessage avoids
// double-unmarshal of the payload.
type InEnvelope struct {
	Type      string          `json:"type"`
	PlayerID  string          `json:"playerId,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Vec2 is a 2D vector in world coordinates.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlayerSnapshot is the authoritative unit of player state on the wire.
// LastUpdateTime is the merge version: a snapshot whose LastUpdateTime is not
// strictly newer than the locally held one must be discarded.
type PlayerSnapshot struct {
	ID             string  `json:"id"`
	Position       Vec2    `json:"position"`
	Velocity       Vec2    `json:"velocity"`
	Rotation       float64 `json:"rotation"`
	Health         float64 `json:"health"`
	Shield         float64 `json:"shield"`
	Energy         float64 `json:"energy"`
	Thrust         bool    `json:"thrust"`
	Boosting       bool    `json:"boosting"`
	ShieldsActive  bool    `json:"shieldsActive"`
	IsAlive        bool    `json:"isAlive"`
	Connected      bool    `json:"connected"`
	CurrentSystem  *string `json:"currentSystem"`
	LastUpdateTime int64   `json:"lastUpdateTime"`
}

// Newer reports whether s should replace held under last-write-wins.
func (s PlayerSnapshot) Newer(held PlayerSnapshot) bool {
	return s.LastUpdateTime > held.LastUpdateTime
}

// JoinData is sent by a client on player_join. PlayerID may be empty, in
// which case the relay assigns one. Binary opts the connection into
// msgpack-encoded game_state frames.
type JoinData struct {
	PlayerID string `json:"playerId,omitempty"`
	Name     string `json:"name,omitempty"`
	Binary   bool   `json:"binary,omitempty"`
}

// LeaveData identifies the departing player.
type LeaveData struct {
	PlayerID string `json:"playerId"`
}

// MoveData carries a sparse movement update: nil fields leave the held
// snapshot untouched.
type MoveData struct {
	PlayerID string   `json:"playerId"`
	Position *Vec2    `json:"position,omitempty"`
	Velocity *Vec2    `json:"velocity,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
}

// FireData describes a weapon discharge. The relay forwards it verbatim and
// validates nothing about cooldown, ammo or range.
type FireData struct {
	PlayerID  string  `json:"playerId"`
	Position  Vec2    `json:"position"`
	Rotation  float64 `json:"rotation"`
	Weapon    string  `json:"weapon"`
	Timestamp int64   `json:"timestamp"`
}

// GameStateData is the full-state snapshot broadcast. GameObjects is a
// reserved extension point and stays empty for now.
type GameStateData struct {
	Players     []PlayerSnapshot `json:"players"`
	GameObjects []interface{}    `json:"gameObjects"`
	Timestamp   int64            `json:"timestamp"`
}

// ChatData is a chat line. Not persisted, not rate limited at this layer.
type ChatData struct {
	PlayerID  string `json:"playerId"`
	Name      string `json:"name,omitempty"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// HeartbeatData carries the sender's clock reading.
type HeartbeatData struct {
	Timestamp int64 `json:"timestamp"`
}

// ErrorData is sent privately to a misbehaving connection.
type ErrorData struct {
	Message string `json:"message"`
}

// NowMillis returns the current wall clock in milliseconds since epoch, the
// unit used for envelope timestamps and snapshot versions.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
