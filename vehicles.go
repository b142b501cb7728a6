package main

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
)

type vehicleKindSpec struct {
	maxHealth float32
	respawn   time.Duration
}

var vehicleKinds = map[string]vehicleKindSpec{
	"spaceship":  {maxHealth: 500, respawn: 180 * time.Second},
	"helicopter": {maxHealth: 300, respawn: 120 * time.Second},
	"plane":      {maxHealth: 400, respawn: 150 * time.Second},
	"car":        {maxHealth: 200, respawn: 90 * time.Second},
}

// Vehicle is a server-owned pilotable body. Destroyed vehicles survive in the
// store in a destroyed sub-state until their respawn time elapses.
type Vehicle struct {
	ID   string
	Kind string

	mu              sync.Mutex
	WorldOrigin     mgl64.Vec3
	LocalPosition   mgl32.Vec3
	Rotation        mgl32.Quat
	Velocity        mgl32.Vec3
	AngularVelocity mgl32.Vec3

	Health      float32
	MaxHealth   float32
	IsDestroyed bool
	RespawnAt   time.Time

	PilotID uuid.UUID // uuid.Nil when empty

	Body     BodyHandle
	Collider ColliderHandle

	// Origin spawn point the vehicle is reconstructed at on respawn.
	SpawnPosition mgl64.Vec3
	SpawnRotation mgl32.Quat
}

func (v *Vehicle) WorldPosition() mgl64.Vec3 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return worldPosition(v.WorldOrigin, v.LocalPosition)
}

// ExitPosition is where a pilot is placed when leaving the vehicle.
func (v *Vehicle) ExitPosition() mgl32.Vec3 {
	v.mu.Lock()
	defer v.mu.Unlock()
	offset := v.Rotation.Rotate(mgl32.Vec3{2.5, 0.5, 0})
	return vec32(worldPosition(v.WorldOrigin, v.LocalPosition)).Add(offset)
}

type VehicleManager struct {
	vehicles *xsync.Map[string, *Vehicle]
}

func NewVehicleManager() *VehicleManager {
	return &VehicleManager{vehicles: xsync.NewMap[string, *Vehicle]()}
}

func (v *Vehicle) Destroyed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.IsDestroyed
}

func (m *VehicleManager) Get(id string) (*Vehicle, bool) { return m.vehicles.Load(id) }

func (m *VehicleManager) Range(f func(*Vehicle) bool) {
	m.vehicles.Range(func(_ string, v *Vehicle) bool { return f(v) })
}

// Spawn registers a vehicle whose physics body was already created.
func (m *VehicleManager) Spawn(id, kind string, worldPos mgl64.Vec3, rot mgl32.Quat, body BodyHandle, collider ColliderHandle) *Vehicle {
	spec, ok := vehicleKinds[kind]
	if !ok {
		spec = vehicleKinds["car"]
	}
	v := &Vehicle{
		ID:            id,
		Kind:          kind,
		WorldOrigin:   worldPos,
		Rotation:      rot,
		Health:        spec.maxHealth,
		MaxHealth:     spec.maxHealth,
		Body:          body,
		Collider:      collider,
		SpawnPosition: worldPos,
		SpawnRotation: rot,
	}
	m.vehicles.Store(id, v)
	return v
}

// Enter seats a pilot. Fails if the vehicle is destroyed or already piloted
// by someone else.
func (m *VehicleManager) Enter(id string, player uuid.UUID) (*Vehicle, bool) {
	v, ok := m.vehicles.Load(id)
	if !ok {
		return nil, false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.IsDestroyed {
		return nil, false
	}
	if v.PilotID != uuid.Nil && v.PilotID != player {
		return nil, false
	}
	v.PilotID = player
	return v, true
}

// Exit clears the pilot seat. Only the seated pilot may exit.
func (m *VehicleManager) Exit(id string, player uuid.UUID) (*Vehicle, bool) {
	v, ok := m.vehicles.Load(id)
	if !ok {
		return nil, false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.PilotID != player {
		return nil, false
	}
	v.PilotID = uuid.Nil
	return v, true
}

// Damage applies damage to a vehicle. When health reaches zero the vehicle
// enters the destroyed sub-state with a respawn clock keyed by kind; the
// ejected pilot (if any) is returned.
func (m *VehicleManager) Damage(id string, damage float32, now time.Time) (health float32, destroyed bool, pilot uuid.UUID, ok bool) {
	v, found := m.vehicles.Load(id)
	if !found {
		return 0, false, uuid.Nil, false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.IsDestroyed || damage <= 0 {
		return v.Health, false, uuid.Nil, true
	}
	v.Health -= damage
	if v.Health > 0 {
		return v.Health, false, uuid.Nil, true
	}
	spec := vehicleKinds[v.Kind]
	v.Health = 0
	v.IsDestroyed = true
	v.RespawnAt = now.Add(spec.respawn)
	pilot = v.PilotID
	v.PilotID = uuid.Nil
	return 0, true, pilot, true
}

// SweepRespawns resets every destroyed vehicle whose clock elapsed and
// returns them; the caller rebuilds physics bodies and broadcasts spawns.
func (m *VehicleManager) SweepRespawns(now time.Time) []*Vehicle {
	var ready []*Vehicle
	m.vehicles.Range(func(_ string, v *Vehicle) bool {
		v.mu.Lock()
		if v.IsDestroyed && !v.RespawnAt.IsZero() && !now.Before(v.RespawnAt) {
			v.Health = v.MaxHealth
			v.IsDestroyed = false
			v.RespawnAt = time.Time{}
			v.WorldOrigin = v.SpawnPosition
			v.LocalPosition = mgl32.Vec3{}
			v.Rotation = v.SpawnRotation
			v.Velocity = mgl32.Vec3{}
			v.AngularVelocity = mgl32.Vec3{}
			ready = append(ready, v)
		}
		v.mu.Unlock()
		return true
	})
	return ready
}

// UpdateFromPhysics overwrites the vehicle transform with the physics result.
func (m *VehicleManager) UpdateFromPhysics(id string, pos mgl32.Vec3, rot mgl32.Quat, vel mgl32.Vec3) {
	v, ok := m.vehicles.Load(id)
	if !ok {
		return
	}
	v.mu.Lock()
	v.WorldOrigin = vec64(pos)
	v.LocalPosition = mgl32.Vec3{}
	v.Rotation = rot
	v.Velocity = vel
	v.mu.Unlock()
}
