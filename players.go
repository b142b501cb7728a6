package main

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

const (
	defaultMaxHealth   = float32(100)
	playerRespawnDelay = 5 * time.Second
)

// Player is a connected participant. All mutable fields are guarded by mu;
// when both a player and an object must be locked, the player lock is taken
// first.
type Player struct {
	ID uuid.UUID

	mu            sync.Mutex
	WorldOrigin   mgl64.Vec3
	LocalPosition mgl32.Vec3
	Rotation      mgl32.Quat
	Velocity      mgl32.Vec3
	IsGrounded    bool
	IsSwimming    bool

	Health    float32
	Armor     float32
	MaxHealth float32
	IsDead    bool
	RespawnAt time.Time // zero unless dead with a pending respawn

	CurrentVehicleID string

	Body     BodyHandle
	Collider ColliderHandle

	// Where the kinematic capsule should be moved at the next tick.
	pendingBodyTarget *mgl32.Vec3
}

func NewPlayer(id uuid.UUID, spawn mgl32.Vec3) *Player {
	return &Player{
		ID:            id,
		LocalPosition: spawn,
		Rotation:      mgl32.QuatIdent(),
		Health:        defaultMaxHealth,
		MaxHealth:     defaultMaxHealth,
	}
}

// WorldPosition composes the anchor and local position in double precision.
func (p *Player) WorldPosition() mgl64.Vec3 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return worldPosition(p.WorldOrigin, p.LocalPosition)
}

// UpdateState applies a client player_update. When the player is in a
// vehicle the position is an offset in the vehicle's frame and the anchor is
// left alone. Returns true iff the anchor was recentered; the caller then
// owes the participant an OriginUpdate.
func (p *Player) UpdateState(msg *PlayerUpdateMsg) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.LocalPosition = msg.Position.Vec()
	p.Rotation = msg.Rotation.Quat()
	p.Velocity = msg.Velocity.Vec()
	if p.CurrentVehicleID != "" {
		return false
	}
	p.IsGrounded = msg.IsGrounded

	recentered := recenterIfNeeded(&p.WorldOrigin, &p.LocalPosition)
	// The capsule mirrors the client in the engine's 32-bit world frame.
	target := vec32(worldPosition(p.WorldOrigin, p.LocalPosition))
	p.pendingBodyTarget = &target
	return recentered
}

// TakeDamage applies armor-absorbed damage. Armor soaks half the incoming
// damage up to its remaining value. Returns the resulting health and whether
// this hit killed the player.
func (p *Player) TakeDamage(damage float32) (float32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.IsDead || damage <= 0 {
		return p.Health, false
	}
	actual := damage
	if p.Armor > 0 {
		absorbed := damage * 0.5
		if absorbed > p.Armor {
			absorbed = p.Armor
		}
		p.Armor -= absorbed
		actual = damage - absorbed
	}
	p.Health -= actual
	if p.Health <= 0 {
		p.Health = 0
		p.IsDead = true
		p.RespawnAt = time.Now().Add(playerRespawnDelay)
		return 0, true
	}
	return p.Health, false
}

func (p *Player) Heal(amount float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.IsDead {
		return
	}
	p.Health += amount
	if p.Health > p.MaxHealth {
		p.Health = p.MaxHealth
	}
}

// CanRespawn reports whether a dead player's respawn delay has elapsed.
func (p *Player) CanRespawn(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.IsDead && !p.RespawnAt.IsZero() && !now.Before(p.RespawnAt)
}

// Respawn resets the player at a spawn position with full health.
func (p *Player) Respawn(spawn mgl32.Vec3) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Health = p.MaxHealth
	p.Armor = 0
	p.IsDead = false
	p.RespawnAt = time.Time{}
	p.WorldOrigin = mgl64.Vec3{}
	p.LocalPosition = spawn
	p.Velocity = mgl32.Vec3{}
	p.CurrentVehicleID = ""
	target := spawn
	p.pendingBodyTarget = &target
}

// Info snapshots the player for a players_list entry, translated into the
// receiver's anchor.
func (p *Player) Info(receiverOrigin mgl64.Vec3) PlayerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	world := worldPosition(p.WorldOrigin, p.LocalPosition)
	rot := rotFromQuat(p.Rotation)
	vel := velFromVec(p.Velocity)
	grounded := p.IsGrounded
	swimming := p.IsSwimming
	return PlayerInfo{
		ID:         p.ID.String(),
		Position:   posFromVec(toLocal(world, receiverOrigin)),
		Rotation:   &rot,
		Velocity:   &vel,
		IsGrounded: &grounded,
		IsSwimming: &swimming,
	}
}

// Origin reads the participant's anchor.
func (p *Player) Origin() mgl64.Vec3 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.WorldOrigin
}

func (p *Player) ArmorValue() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Armor
}

func (p *Player) Dead() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.IsDead
}

func (p *Player) Swimming() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.IsSwimming
}

func (p *Player) SetSwimming(swimming bool) {
	p.mu.Lock()
	p.IsSwimming = swimming
	p.mu.Unlock()
}

func (p *Player) VehicleID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentVehicleID
}

func (p *Player) SetVehicle(id string) {
	p.mu.Lock()
	p.CurrentVehicleID = id
	p.mu.Unlock()
}

func (p *Player) ClearVehicle() {
	p.mu.Lock()
	p.CurrentVehicleID = ""
	p.mu.Unlock()
}

// PlaceAt moves the participant to a world position without touching the
// anchor, and queues the capsule teleport.
func (p *Player) PlaceAt(world mgl64.Vec3) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LocalPosition = toLocal(world, p.WorldOrigin)
	p.Velocity = mgl32.Vec3{}
	target := vec32(world)
	p.pendingBodyTarget = &target
}

// takeBodyTarget pops the pending kinematic target, if any. Tick loop only.
func (p *Player) takeBodyTarget() (mgl32.Vec3, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pendingBodyTarget == nil {
		return mgl32.Vec3{}, false
	}
	t := *p.pendingBodyTarget
	p.pendingBodyTarget = nil
	return t, true
}
