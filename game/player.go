package game

import (
	"math"

	"github.com/ironicviking/max-pixels-sub000/protocol"
)

const (
	SpawnX = 960.0
	SpawnY = 540.0

	PlayerMaxHealth = 100.0
	PlayerMaxShield = 100.0
	PlayerMaxEnergy = 100.0

	PlayerAccel    = 220.0 // pixels/s²
	PlayerMaxSpeed = 420.0 // pixels/s
	PlayerFriction = 0.99  // velocity multiplier per tick
	BoostMul       = 1.8   // thrust and speed multiplier while boosting

	BoostEnergyDrain  = 25.0 // energy/s while boosting
	ShieldEnergyDrain = 15.0 // energy/s while shields are up
	EnergyRegen       = 10.0 // energy/s otherwise
)

// Player is the locally simulated player entity. The simulation runs on the
// client; the relay never interprets these fields. Remote snapshots are folded
// in through FromNetworkData under last-write-wins.
type Player struct {
	ID       string
	Name     string
	Position protocol.Vec2
	Velocity protocol.Vec2
	Rotation float64

	Health float64
	Shield float64
	Energy float64

	Thrust        bool
	Boosting      bool
	ShieldsActive bool
	IsAlive       bool

	// CurrentSystem is an opaque sector identifier owned by the navigation
	// layer; empty means none.
	CurrentSystem string

	// LastUpdateTime versions this state for merging, ms since epoch.
	LastUpdateTime int64

	// dirty is set whenever local simulation mutates state and cleared when a
	// newer remote snapshot is applied. It tells the sync loop whether an
	// outbound update is pending.
	dirty bool
}

// NewPlayer creates an alive player at the spawn point with full gauges.
func NewPlayer(id, name string) *Player {
	return &Player{
		ID:       id,
		Name:     name,
		Position: protocol.Vec2{X: SpawnX, Y: SpawnY},
		Health:   PlayerMaxHealth,
		Shield:   PlayerMaxShield,
		Energy:   PlayerMaxEnergy,
		IsAlive:  true,
	}
}

// Update advances the local simulation by dt seconds and stamps the state
// with now (ms since epoch).
func (p *Player) Update(dt float64, now int64) {
	if !p.IsAlive {
		return
	}

	accel := 0.0
	if p.Thrust {
		accel = PlayerAccel * dt
		if p.Boosting && p.Energy > 0 {
			accel *= BoostMul
		}
	}
	p.Velocity.X += math.Cos(p.Rotation) * accel
	p.Velocity.Y += math.Sin(p.Rotation) * accel

	p.Velocity.X *= PlayerFriction
	p.Velocity.Y *= PlayerFriction

	maxSpd := PlayerMaxSpeed
	if p.Boosting && p.Energy > 0 {
		maxSpd *= BoostMul
	}
	speed := math.Sqrt(p.Velocity.X*p.Velocity.X + p.Velocity.Y*p.Velocity.Y)
	if speed > maxSpd {
		scale := maxSpd / speed
		p.Velocity.X *= scale
		p.Velocity.Y *= scale
	}

	p.Position.X += p.Velocity.X * dt
	p.Position.Y += p.Velocity.Y * dt

	// Energy budget: boost and shields drain, idle regenerates.
	drain := 0.0
	if p.Boosting && p.Thrust {
		drain += BoostEnergyDrain
	}
	if p.ShieldsActive {
		drain += ShieldEnergyDrain
	}
	if drain > 0 {
		p.Energy = Clamp(p.Energy-drain*dt, 0, PlayerMaxEnergy)
		if p.Energy == 0 {
			p.Boosting = false
			p.ShieldsActive = false
		}
	} else {
		p.Energy = Clamp(p.Energy+EnergyRegen*dt, 0, PlayerMaxEnergy)
	}

	p.LastUpdateTime = now
	p.dirty = true
}

// TakeDamage applies damage, shields first, and returns true if the player
// died. The stamp is applied by the caller's next Update.
func (p *Player) TakeDamage(dmg float64) bool {
	if !p.IsAlive {
		return false
	}
	if p.ShieldsActive && p.Shield > 0 {
		absorbed := math.Min(p.Shield, dmg)
		p.Shield -= absorbed
		dmg -= absorbed
	}
	p.Health -= dmg
	p.dirty = true
	if p.Health <= 0 {
		p.Health = 0
		p.IsAlive = false
		return true
	}
	return false
}

// Respawn resets the player at the spawn point with full gauges.
func (p *Player) Respawn(now int64) {
	p.Position = protocol.Vec2{X: SpawnX, Y: SpawnY}
	p.Velocity = protocol.Vec2{}
	p.Health = PlayerMaxHealth
	p.Shield = PlayerMaxShield
	p.Energy = PlayerMaxEnergy
	p.IsAlive = true
	p.LastUpdateTime = now
	p.dirty = true
}

// Dirty reports whether local state has pending changes to sync out.
func (p *Player) Dirty() bool {
	return p.dirty
}

// MarkClean clears the pending-sync flag, typically after a send.
func (p *Player) MarkClean() {
	p.dirty = false
}

// ToNetworkData projects the entity into its wire snapshot. It never mutates
// the player.
func (p *Player) ToNetworkData() protocol.PlayerSnapshot {
	var system *string
	if p.CurrentSystem != "" {
		s := p.CurrentSystem
		system = &s
	}
	return protocol.PlayerSnapshot{
		ID:             p.ID,
		Position:       p.Position,
		Velocity:       p.Velocity,
		Rotation:       p.Rotation,
		Health:         p.Health,
		Shield:         p.Shield,
		Energy:         p.Energy,
		Thrust:         p.Thrust,
		Boosting:       p.Boosting,
		ShieldsActive:  p.ShieldsActive,
		IsAlive:        p.IsAlive,
		Connected:      true,
		CurrentSystem:  system,
		LastUpdateTime: p.LastUpdateTime,
	}
}

// FromNetworkData merges a remote snapshot under last-write-wins: the merge
// happens only when the remote version is strictly newer, otherwise the call
// is a no-op. A successful merge clears the dirty flag — the remote state is
// now authoritative and nothing local is pending.
func (p *Player) FromNetworkData(remote protocol.PlayerSnapshot) bool {
	if remote.LastUpdateTime <= p.LastUpdateTime {
		return false
	}
	p.Position = remote.Position
	p.Velocity = remote.Velocity
	p.Rotation = remote.Rotation
	p.Health = remote.Health
	p.Shield = remote.Shield
	p.Energy = remote.Energy
	p.Thrust = remote.Thrust
	p.Boosting = remote.Boosting
	p.ShieldsActive = remote.ShieldsActive
	p.IsAlive = remote.IsAlive
	if remote.CurrentSystem != nil {
		p.CurrentSystem = *remote.CurrentSystem
	} else {
		p.CurrentSystem = ""
	}
	p.LastUpdateTime = remote.LastUpdateTime
	p.dirty = false
	return true
}
