package protocol

import (
	"encoding/json"
	"testing"
)

func TestSparseMoveDecode(t *testing.T) {
	raw := []byte(`{"playerId":"a","position":{"x":10,"y":20}}`)
	var move MoveData
	if err := json.Unmarshal(raw, &move); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if move.Position == nil || move.Position.X != 10 || move.Position.Y != 20 {
		t.Errorf("position = %+v, want {10 20}", move.Position)
	}
	if move.Velocity != nil || move.Rotation != nil {
		t.Error("absent fields must decode as nil, not zero values")
	}
}

func TestInEnvelopeSinglePassDecode(t *testing.T) {
	raw := []byte(`{"type":"player_move","playerId":"a","timestamp":99,"data":{"playerId":"a","rotation":1.5}}`)
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != MsgPlayerMove || env.PlayerID != "a" || env.Timestamp != 99 {
		t.Errorf("envelope = %+v", env)
	}
	var move MoveData
	if err := json.Unmarshal(env.Data, &move); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if move.Rotation == nil || *move.Rotation != 1.5 {
		t.Errorf("rotation = %v, want 1.5", move.Rotation)
	}
}

func TestSnapshotNewer(t *testing.T) {
	held := PlayerSnapshot{ID: "a", LastUpdateTime: 1000}
	if (PlayerSnapshot{ID: "a", LastUpdateTime: 999}).Newer(held) {
		t.Error("older snapshot reported as newer")
	}
	if (PlayerSnapshot{ID: "a", LastUpdateTime: 1000}).Newer(held) {
		t.Error("equal timestamp must not win")
	}
	if !(PlayerSnapshot{ID: "a", LastUpdateTime: 1001}).Newer(held) {
		t.Error("newer snapshot rejected")
	}
}

func TestNullableCurrentSystem(t *testing.T) {
	var snap PlayerSnapshot
	if err := json.Unmarshal([]byte(`{"id":"a","currentSystem":null}`), &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snap.CurrentSystem != nil {
		t.Error("null sector should decode as nil")
	}

	out, _ := json.Marshal(snap)
	var m map[string]interface{}
	json.Unmarshal(out, &m)
	if v, ok := m["currentSystem"]; !ok || v != nil {
		t.Errorf("currentSystem should marshal as explicit null, got %v", v)
	}
}
