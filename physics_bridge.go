package main

import (
	"sync"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Gravity and water constants. The world has no uniform gravity: a single
// center attracts every dynamic body radially.
const (
	gravityStrength     = float32(25.0)
	buoyancyFactor      = float32(0.3)
	waterDragFactor     = float32(3.0)
	airDampingFactor    = float32(0.02)
	pushForceMultiplier = float32(0.5)
	pushLiftImpulse     = float32(0.5)
)

// WaterVolume is an axis-aligned box registered as a sensor; bodies inside
// receive buoyancy and drag instead of gravity.
type WaterVolume struct {
	Position mgl32.Vec3
	Scale    mgl32.Vec3
	Sensor   ColliderHandle
}

func (w WaterVolume) Contains(pos mgl32.Vec3) bool {
	half := w.Scale.Mul(0.5)
	min := w.Position.Sub(half)
	max := w.Position.Add(half)
	return pos.X() >= min.X() && pos.X() <= max.X() &&
		pos.Y() >= min.Y() && pos.Y() <= max.Y() &&
		pos.Z() >= min.Z() && pos.Z() <= max.Z()
}

type movingPlatform struct {
	ID        string
	Body      BodyHandle
	InitialX  float32
	BaseY     float32
	BaseZ     float32
	MoveRange float32
	MoveSpeed float32
}

// PlatformState is a platform transform snapshot for the 20 Hz broadcast.
type PlatformState struct {
	ID       string
	Position mgl32.Vec3
}

type queuedPush struct {
	body  BodyHandle
	force mgl32.Vec3
	point mgl32.Vec3 // body-local contact point
}

// PhysicsBridge wraps the engine and owns the gravity, buoyancy and platform
// policy. The engine itself is only ever touched inside the tick guard;
// session handlers queue work here instead of calling it directly.
type PhysicsBridge struct {
	engine        *PhysicsEngine
	gravityCenter mgl32.Vec3
	waterVolumes  []WaterVolume
	platforms     []movingPlatform

	pendingMu     sync.Mutex
	pendingPushes []queuedPush
}

func NewPhysicsBridge() *PhysicsBridge {
	return &PhysicsBridge{
		engine:        NewPhysicsEngine(),
		gravityCenter: mgl32.Vec3{0, -250, 0},
	}
}

func (pb *PhysicsBridge) Engine() *PhysicsEngine { return pb.engine }

func (pb *PhysicsBridge) SetGravityCenter(center mgl32.Vec3) { pb.gravityCenter = center }

// RadialUp is the away-from-planet direction at a position.
func (pb *PhysicsBridge) RadialUp(pos mgl32.Vec3) mgl32.Vec3 {
	d := pos.Sub(pb.gravityCenter)
	if d.Len() < 0.1 {
		return mgl32.Vec3{0, 1, 0}
	}
	return d.Normalize()
}

func (pb *PhysicsBridge) IsPositionInWater(pos mgl32.Vec3) bool {
	for _, w := range pb.waterVolumes {
		if w.Contains(pos) {
			return true
		}
	}
	return false
}

// QueuePush records a push to be applied at the start of the next tick.
// Never blocks and never touches the engine.
func (pb *PhysicsBridge) QueuePush(body BodyHandle, force, point mgl32.Vec3) {
	pb.pendingMu.Lock()
	pb.pendingPushes = append(pb.pendingPushes, queuedPush{body: body, force: force, point: point})
	pb.pendingMu.Unlock()
}

// DrainPushes applies all queued pushes. Tick guard must be held.
// The force is scaled by the body's mass and a fixed multiplier and applied
// at the contact point; a lift impulse is added for upward pushes.
func (pb *PhysicsBridge) DrainPushes() {
	pb.pendingMu.Lock()
	pushes := pb.pendingPushes
	pb.pendingPushes = nil
	pb.pendingMu.Unlock()

	for _, p := range pushes {
		body := pb.engine.Body(p.body)
		if body == nil || !body.IsDynamic() {
			continue
		}
		pb.engine.WakeUp(p.body)
		worldPoint := body.translation.Add(body.rotation.Rotate(p.point))
		scaled := p.force.Mul(body.mass * pushForceMultiplier / physicsDt)
		pb.engine.ApplyForceAtPoint(p.body, scaled, worldPoint)
		if p.force.Y() > 0.1 {
			up := pb.RadialUp(body.translation)
			pb.engine.ApplyImpulse(p.body, up.Mul(pushLiftImpulse*body.mass))
		}
	}
}

// PreStep applies radial gravity, buoyancy and drag to every awake dynamic
// body before the step. Sleeping bodies are left alone so they can stay
// asleep on the ground.
func (pb *PhysicsBridge) PreStep() {
	for handle, body := range pb.engine.bodies {
		if !body.IsDynamic() || body.sleeping {
			continue
		}
		pos := body.translation
		up := pb.RadialUp(pos)
		if pb.IsPositionInWater(pos) {
			buoyancy := up.Mul(buoyancyFactor * gravityStrength * body.mass)
			pb.engine.ApplyForce(handle, buoyancy)
			drag := body.linvel.Mul(-waterDragFactor)
			pb.engine.ApplyForce(handle, drag)
		} else {
			gravity := up.Mul(-gravityStrength * body.mass)
			pb.engine.ApplyForce(handle, gravity)
			damping := body.linvel.Mul(-airDampingFactor)
			pb.engine.ApplyForce(handle, damping)
		}
	}
}

// UpdateMovingPlatforms retargets every kinematic platform for elapsed time t.
func (pb *PhysicsBridge) UpdateMovingPlatforms(t float64) {
	for _, p := range pb.platforms {
		offset := math32.Sin(float32(t)*p.MoveSpeed) * p.MoveRange
		pb.engine.SetNextKinematicTranslation(p.Body, mgl32.Vec3{p.InitialX + offset, p.BaseY, p.BaseZ})
	}
}

// PlatformStates snapshots platform transforms for broadcast.
func (pb *PhysicsBridge) PlatformStates() []PlatformState {
	out := make([]PlatformState, 0, len(pb.platforms))
	for _, p := range pb.platforms {
		pos, _, _, ok := pb.engine.BodyState(p.Body)
		if !ok {
			continue
		}
		out = append(out, PlatformState{ID: p.ID, Position: pos})
	}
	return out
}

func (pb *PhysicsBridge) Step() {
	pb.engine.Step()
}

// BodyState reads back a body transform; the bridge convention for entities
// is world_origin = physics translation, local position = zero.
func (pb *PhysicsBridge) BodyState(h BodyHandle) (mgl32.Vec3, mgl32.Quat, mgl32.Vec3, bool) {
	return pb.engine.BodyState(h)
}

func (pb *PhysicsBridge) Wake(h BodyHandle) { pb.engine.WakeUp(h) }

func (pb *PhysicsBridge) RemoveBody(h BodyHandle) {
	if h != NoHandle {
		pb.engine.RemoveBody(h)
	}
}

// ---- Body factories ----

// CreatePlayerBody builds the kinematic capsule that mirrors a participant.
func (pb *PhysicsBridge) CreatePlayerBody(pos mgl32.Vec3) (BodyHandle, ColliderHandle) {
	body := pb.engine.CreateBody(BodyKinematic, pos, mgl32.QuatIdent())
	pb.engine.SetLockRotations(body, true)
	pb.engine.SetDamping(body, 0.95, 0.95)
	collider := pb.engine.AttachCollider(body, ColliderSpec{
		Kind:       ShapeCapsule,
		Radius:     0.4,
		HalfHeight: 0.5,
		Density:    1.0,
	})
	return body, collider
}

// CreateRockBody builds a dynamic ball body for a rock of the given scale.
func (pb *PhysicsBridge) CreateRockBody(pos mgl32.Vec3, rot mgl32.Quat, scale float32) (BodyHandle, ColliderHandle) {
	body := pb.engine.CreateBody(BodyDynamic, pos, rot)
	pb.engine.SetDamping(body, 0.8, 3.0)
	pb.engine.SetCCD(body, true)
	collider := pb.engine.AttachCollider(body, ColliderSpec{
		Kind:        ShapeBall,
		Radius:      2 * scale,
		Density:     0.25,
		Friction:    1.2,
		Restitution: 0.2,
	})
	return body, collider
}

type vehicleBodySpec struct {
	halfExtents    mgl32.Vec3
	density        float32
	linearDamping  float32
	angularDamping float32
}

var vehicleBodies = map[string]vehicleBodySpec{
	"spaceship":  {halfExtents: mgl32.Vec3{2.5, 1.5, 4.0}, density: 0.4, linearDamping: 0.5, angularDamping: 2.0},
	"helicopter": {halfExtents: mgl32.Vec3{1.5, 1.5, 3.0}, density: 0.5, linearDamping: 0.8, angularDamping: 3.0},
	"plane":      {halfExtents: mgl32.Vec3{3.0, 1.0, 3.5}, density: 0.4, linearDamping: 0.3, angularDamping: 2.0},
	"car":        {halfExtents: mgl32.Vec3{1.2, 0.8, 2.2}, density: 0.8, linearDamping: 1.0, angularDamping: 4.0},
}

// CreateVehicleBody builds a dynamic cuboid sized and damped per kind.
func (pb *PhysicsBridge) CreateVehicleBody(kind string, pos mgl32.Vec3, rot mgl32.Quat) (BodyHandle, ColliderHandle) {
	spec, ok := vehicleBodies[kind]
	if !ok {
		spec = vehicleBodies["car"]
	}
	body := pb.engine.CreateBody(BodyDynamic, pos, rot)
	pb.engine.SetDamping(body, spec.linearDamping, spec.angularDamping)
	pb.engine.SetCCD(body, true)
	collider := pb.engine.AttachCollider(body, ColliderSpec{
		Kind:        ShapeCuboid,
		HalfExtents: spec.halfExtents,
		Density:     spec.density,
		Friction:    0.8,
		Restitution: 0.1,
	})
	return body, collider
}

// CreateStaticBox builds fixed level geometry.
func (pb *PhysicsBridge) CreateStaticBox(pos mgl32.Vec3, rot mgl32.Quat, scale mgl32.Vec3, friction, restitution float32) BodyHandle {
	body := pb.engine.CreateBody(BodyFixed, pos, rot)
	pb.engine.AttachCollider(body, ColliderSpec{
		Kind:        ShapeCuboid,
		HalfExtents: scale.Mul(0.5),
		Friction:    friction,
		Restitution: restitution,
	})
	return body
}

// CreateStaticBall builds a fixed sphere (static rocks).
func (pb *PhysicsBridge) CreateStaticBall(pos mgl32.Vec3, radius, friction, restitution float32) BodyHandle {
	body := pb.engine.CreateBody(BodyFixed, pos, mgl32.QuatIdent())
	pb.engine.AttachCollider(body, ColliderSpec{
		Kind:        ShapeBall,
		Radius:      radius,
		Friction:    friction,
		Restitution: restitution,
	})
	return body
}

// CreateTerrain registers the planet trimesh. heightAt maps a unit direction
// to the surface distance from the planet center.
func (pb *PhysicsBridge) CreateTerrain(center mgl32.Vec3, heightAt func(dir mgl32.Vec3) float32) BodyHandle {
	body := pb.engine.CreateBody(BodyFixed, center, mgl32.QuatIdent())
	pb.engine.AttachCollider(body, ColliderSpec{
		Kind:        ShapeTrimesh,
		Friction:    0.8,
		Restitution: 0.1,
		HeightAt:    heightAt,
	})
	return body
}

// CreateMovingPlatform builds a kinematic platform animated along X.
func (pb *PhysicsBridge) CreateMovingPlatform(id string, pos, scale mgl32.Vec3, moveRange, moveSpeed float32) BodyHandle {
	body := pb.engine.CreateBody(BodyKinematic, pos, mgl32.QuatIdent())
	pb.engine.AttachCollider(body, ColliderSpec{
		Kind:        ShapeCuboid,
		HalfExtents: scale.Mul(0.5),
		Friction:    12.0,
		Restitution: 0.01,
	})
	pb.platforms = append(pb.platforms, movingPlatform{
		ID:        id,
		Body:      body,
		InitialX:  pos.X(),
		BaseY:     pos.Y(),
		BaseZ:     pos.Z(),
		MoveRange: moveRange,
		MoveSpeed: moveSpeed,
	})
	return body
}

// RegisterWaterVolume adds a water sensor box.
func (pb *PhysicsBridge) RegisterWaterVolume(pos, scale mgl32.Vec3) {
	body := pb.engine.CreateBody(BodyFixed, pos, mgl32.QuatIdent())
	sensor := pb.engine.AttachCollider(body, ColliderSpec{
		Kind:        ShapeCuboid,
		HalfExtents: scale.Mul(0.5),
		Sensor:      true,
	})
	pb.waterVolumes = append(pb.waterVolumes, WaterVolume{Position: pos, Scale: scale, Sensor: sensor})
}
