package server

import (
	"sync"

	"github.com/ironicviking/max-pixels-sub000/protocol"
)

// State is the shared game state: the single source of truth the relay
// broadcasts from. It lives for the process lifetime and is rebuilt as
// players (re)join; nothing is persisted.
type State struct {
	mu          sync.RWMutex
	players     map[string]*protocol.PlayerSnapshot
	gameObjects []interface{}
}

// NewState creates an empty shared state.
func NewState() *State {
	return &State{
		players:     make(map[string]*protocol.PlayerSnapshot),
		gameObjects: make([]interface{}, 0),
	}
}

// AddPlayer inserts (or replaces) a player snapshot.
func (s *State) AddPlayer(snap protocol.PlayerSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := snap
	s.players[snap.ID] = &cp
}

// RemovePlayer deletes a player and reports whether it was present.
func (s *State) RemovePlayer(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.players[id]
	delete(s.players, id)
	return ok
}

// GetPlayer returns a copy of the held snapshot.
func (s *State) GetPlayer(id string) (protocol.PlayerSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return protocol.PlayerSnapshot{}, false
	}
	return *p, true
}

// HasPlayer reports whether the player is registered.
func (s *State) HasPlayer(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.players[id]
	return ok
}

// PlayerCount returns the number of registered players.
func (s *State) PlayerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

// ApplyMove performs a sparse update: only fields present in the move touch
// the held snapshot. The snapshot's version is refreshed to now. Returns
// false when the player is unknown.
func (s *State) ApplyMove(move protocol.MoveData, now int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[move.PlayerID]
	if !ok {
		return false
	}
	if move.Position != nil {
		p.Position = *move.Position
	}
	if move.Velocity != nil {
		p.Velocity = *move.Velocity
	}
	if move.Rotation != nil {
		p.Rotation = *move.Rotation
	}
	p.LastUpdateTime = now
	return true
}

// Touch refreshes a player's version stamp without changing fields.
func (s *State) Touch(id string, now int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[id]; ok {
		p.LastUpdateTime = now
	}
}

// Snapshot returns the full game state for broadcast.
func (s *State) Snapshot(now int64) protocol.GameStateData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	players := make([]protocol.PlayerSnapshot, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, *p)
	}
	return protocol.GameStateData{
		Players:     players,
		GameObjects: append([]interface{}{}, s.gameObjects...),
		Timestamp:   now,
	}
}

// EvictStale removes every player whose version stamp is older than cutoff
// (ms since epoch) and returns the evicted ids.
func (s *State) EvictStale(cutoff int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []string
	for id, p := range s.players {
		if p.LastUpdateTime < cutoff {
			evicted = append(evicted, id)
			delete(s.players, id)
		}
	}
	return evicted
}
