package main

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// The embedded rigid-body engine. It owns every body and collider and is not
// thread-safe: all calls must happen under the tick guard.

type BodyHandle int
type ColliderHandle int

// NoHandle marks an entity without a physics body.
const NoHandle = 0

type BodyType int

const (
	BodyDynamic BodyType = iota
	BodyKinematic
	BodyFixed
)

type ShapeKind int

const (
	ShapeBall ShapeKind = iota
	ShapeCuboid
	ShapeCapsule
	ShapeTrimesh
)

// ColliderSpec describes a collider to attach to a body.
type ColliderSpec struct {
	Kind        ShapeKind
	Radius      float32
	HalfExtents mgl32.Vec3
	HalfHeight  float32 // capsule cylinder half-height
	Density     float32
	Friction    float32
	Restitution float32
	Sensor      bool
	// HeightAt gives the terrain surface distance from the trimesh center
	// along a unit direction. Trimesh colliders only.
	HeightAt func(dir mgl32.Vec3) float32
}

type Collider struct {
	handle ColliderHandle
	body   BodyHandle
	spec   ColliderSpec
}

type RigidBody struct {
	handle      BodyHandle
	bodyType    BodyType
	translation mgl32.Vec3
	rotation    mgl32.Quat
	linvel      mgl32.Vec3
	angvel      mgl32.Vec3

	force  mgl32.Vec3
	torque mgl32.Vec3

	mass           float32
	radius         float32 // characteristic radius for inertia and CCD
	linearDamping  float32
	angularDamping float32
	lockRotations  bool
	ccd            bool

	sleeping    bool
	lowVelTicks int

	nextKinematic *mgl32.Vec3
}

func (b *RigidBody) IsDynamic() bool { return b.bodyType == BodyDynamic }

const (
	physicsDt      = float32(1.0 / 60.0)
	sleepVelocity  = 0.05
	sleepTickCount = 30
	maxCCDSubsteps = 4
)

type PhysicsEngine struct {
	bodies       map[BodyHandle]*RigidBody
	colliders    map[ColliderHandle]*Collider
	byBody       map[BodyHandle][]ColliderHandle
	nextBody     BodyHandle
	nextCollider ColliderHandle
}

func NewPhysicsEngine() *PhysicsEngine {
	return &PhysicsEngine{
		bodies:       make(map[BodyHandle]*RigidBody),
		colliders:    make(map[ColliderHandle]*Collider),
		byBody:       make(map[BodyHandle][]ColliderHandle),
		nextBody:     1,
		nextCollider: 1,
	}
}

func (pe *PhysicsEngine) CreateBody(t BodyType, translation mgl32.Vec3, rotation mgl32.Quat) BodyHandle {
	h := pe.nextBody
	pe.nextBody++
	if rotation.Len() == 0 {
		rotation = mgl32.QuatIdent()
	}
	pe.bodies[h] = &RigidBody{
		handle:      h,
		bodyType:    t,
		translation: translation,
		rotation:    rotation.Normalize(),
		mass:        1,
		radius:      0.5,
	}
	return h
}

// RemoveBody detaches and removes a body and all of its colliders.
func (pe *PhysicsEngine) RemoveBody(h BodyHandle) {
	for _, ch := range pe.byBody[h] {
		delete(pe.colliders, ch)
	}
	delete(pe.byBody, h)
	delete(pe.bodies, h)
}

func (pe *PhysicsEngine) AttachCollider(h BodyHandle, spec ColliderSpec) ColliderHandle {
	body, ok := pe.bodies[h]
	if !ok {
		return NoHandle
	}
	ch := pe.nextCollider
	pe.nextCollider++
	c := &Collider{handle: ch, body: h, spec: spec}
	pe.colliders[ch] = c
	pe.byBody[h] = append(pe.byBody[h], ch)

	if !spec.Sensor {
		density := spec.Density
		if density <= 0 {
			density = 1
		}
		body.mass = math32.Max(0.1, density*shapeVolume(spec))
		body.radius = boundingRadius(spec)
	}
	return ch
}

func shapeVolume(spec ColliderSpec) float32 {
	switch spec.Kind {
	case ShapeBall:
		return (4.0 / 3.0) * math32.Pi * spec.Radius * spec.Radius * spec.Radius
	case ShapeCuboid:
		e := spec.HalfExtents
		return 8 * e.X() * e.Y() * e.Z()
	case ShapeCapsule:
		r := spec.Radius
		return math32.Pi * r * r * ((4.0/3.0)*r + 2*spec.HalfHeight)
	default:
		return 1
	}
}

func boundingRadius(spec ColliderSpec) float32 {
	switch spec.Kind {
	case ShapeBall:
		return spec.Radius
	case ShapeCuboid:
		e := spec.HalfExtents
		return (e.X() + e.Y() + e.Z()) / 3
	case ShapeCapsule:
		return spec.Radius + spec.HalfHeight
	default:
		return 0.5
	}
}

func (pe *PhysicsEngine) Body(h BodyHandle) *RigidBody { return pe.bodies[h] }

// BodyState reads back the transform and linear velocity of a body.
func (pe *PhysicsEngine) BodyState(h BodyHandle) (mgl32.Vec3, mgl32.Quat, mgl32.Vec3, bool) {
	body, ok := pe.bodies[h]
	if !ok {
		return mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{}, false
	}
	return body.translation, body.rotation, body.linvel, true
}

// SetBodyType flips a body between dynamic, kinematic and fixed. Velocities
// are cleared so the new regime starts from rest.
func (pe *PhysicsEngine) SetBodyType(h BodyHandle, t BodyType) {
	if body, ok := pe.bodies[h]; ok {
		body.bodyType = t
		body.linvel = mgl32.Vec3{}
		body.angvel = mgl32.Vec3{}
		body.nextKinematic = nil
		body.sleeping = false
		body.lowVelTicks = 0
	}
}

func (pe *PhysicsEngine) SetTranslation(h BodyHandle, pos mgl32.Vec3) {
	if body, ok := pe.bodies[h]; ok {
		body.translation = pos
		body.linvel = mgl32.Vec3{}
		body.angvel = mgl32.Vec3{}
		body.sleeping = false
		body.lowVelTicks = 0
	}
}

func (pe *PhysicsEngine) SetLinvel(h BodyHandle, v mgl32.Vec3) {
	if body, ok := pe.bodies[h]; ok {
		body.linvel = v
		body.sleeping = false
		body.lowVelTicks = 0
	}
}

func (pe *PhysicsEngine) SetAngvel(h BodyHandle, v mgl32.Vec3) {
	if body, ok := pe.bodies[h]; ok && !body.lockRotations {
		body.angvel = v
		body.sleeping = false
	}
}

func (pe *PhysicsEngine) SetDamping(h BodyHandle, linear, angular float32) {
	if body, ok := pe.bodies[h]; ok {
		body.linearDamping = linear
		body.angularDamping = angular
	}
}

func (pe *PhysicsEngine) SetLockRotations(h BodyHandle, locked bool) {
	if body, ok := pe.bodies[h]; ok {
		body.lockRotations = locked
		if locked {
			body.angvel = mgl32.Vec3{}
		}
	}
}

func (pe *PhysicsEngine) SetCCD(h BodyHandle, enabled bool) {
	if body, ok := pe.bodies[h]; ok {
		body.ccd = enabled
	}
}

// WakeUp clears the sleep state so a queued impulse takes effect this step.
func (pe *PhysicsEngine) WakeUp(h BodyHandle) {
	if body, ok := pe.bodies[h]; ok {
		body.sleeping = false
		body.lowVelTicks = 0
	}
}

// ApplyForce accumulates a force consumed by the next step.
func (pe *PhysicsEngine) ApplyForce(h BodyHandle, f mgl32.Vec3) {
	if body, ok := pe.bodies[h]; ok && body.IsDynamic() {
		body.force = body.force.Add(f)
		body.sleeping = false
	}
}

// ApplyForceAtPoint accumulates a force and the torque it induces about the
// body center. The point is in world coordinates.
func (pe *PhysicsEngine) ApplyForceAtPoint(h BodyHandle, f, point mgl32.Vec3) {
	body, ok := pe.bodies[h]
	if !ok || !body.IsDynamic() {
		return
	}
	body.force = body.force.Add(f)
	arm := point.Sub(body.translation)
	body.torque = body.torque.Add(arm.Cross(f))
	body.sleeping = false
}

func (pe *PhysicsEngine) ApplyImpulse(h BodyHandle, imp mgl32.Vec3) {
	if body, ok := pe.bodies[h]; ok && body.IsDynamic() {
		body.linvel = body.linvel.Add(imp.Mul(1 / body.mass))
		body.sleeping = false
		body.lowVelTicks = 0
	}
}

// SetNextKinematicTranslation records the target a kinematic body is moved to
// during the next step, so it pushes dynamic bodies on its way there.
func (pe *PhysicsEngine) SetNextKinematicTranslation(h BodyHandle, pos mgl32.Vec3) {
	if body, ok := pe.bodies[h]; ok && body.bodyType == BodyKinematic {
		p := pos
		body.nextKinematic = &p
	}
}

// ---- Stepping ----

// Step advances the world by one fixed 1/60 s step: kinematic targets first,
// then dynamic integration with per-body CCD substeps and contact resolution
// against static and kinematic colliders, then dynamic pair contacts, then
// damping and sleep bookkeeping.
func (pe *PhysicsEngine) Step() {
	dt := physicsDt

	// Move kinematic bodies to their recorded targets. The implied velocity
	// is kept so contacts impart platform motion to riders.
	for _, body := range pe.bodies {
		if body.bodyType != BodyKinematic || body.nextKinematic == nil {
			continue
		}
		target := *body.nextKinematic
		body.linvel = target.Sub(body.translation).Mul(1 / dt)
		body.translation = target
		body.nextKinematic = nil
	}

	obstacles := pe.collectObstacles()

	for _, body := range pe.bodies {
		if !body.IsDynamic() {
			continue
		}
		if body.sleeping {
			// A platform can move into a sleeping body; only that wakes it.
			if pe.kinematicTouches(body, obstacles) {
				body.sleeping = false
				body.lowVelTicks = 0
			} else {
				body.force = mgl32.Vec3{}
				body.torque = mgl32.Vec3{}
				continue
			}
		}

		body.linvel = body.linvel.Add(body.force.Mul(dt / body.mass))
		if !body.lockRotations {
			inertia := 0.4 * body.mass * body.radius * body.radius
			if inertia > 0 {
				body.angvel = body.angvel.Add(body.torque.Mul(dt / inertia))
			}
		}

		substeps := 1
		if body.ccd {
			travel := body.linvel.Len() * dt
			if travel > body.radius*0.5 {
				substeps = int(travel/(body.radius*0.5)) + 1
				if substeps > maxCCDSubsteps {
					substeps = maxCCDSubsteps
				}
			}
		}
		h := dt / float32(substeps)
		for i := 0; i < substeps; i++ {
			body.translation = body.translation.Add(body.linvel.Mul(h))
			pe.resolveObstacleContacts(body, obstacles)
		}

		if !body.lockRotations && body.angvel.Len() > 1e-6 {
			angle := body.angvel.Len() * dt
			axis := body.angvel.Normalize()
			body.rotation = mgl32.QuatRotate(angle, axis).Mul(body.rotation).Normalize()
		}

		body.force = mgl32.Vec3{}
		body.torque = mgl32.Vec3{}
	}

	pe.resolveDynamicPairs()

	for _, body := range pe.bodies {
		if !body.IsDynamic() || body.sleeping {
			continue
		}
		body.linvel = body.linvel.Mul(1 / (1 + body.linearDamping*dt))
		body.angvel = body.angvel.Mul(1 / (1 + body.angularDamping*dt))

		if body.linvel.Len() < sleepVelocity && body.angvel.Len() < sleepVelocity {
			body.lowVelTicks++
			if body.lowVelTicks >= sleepTickCount {
				body.sleeping = true
				body.linvel = mgl32.Vec3{}
				body.angvel = mgl32.Vec3{}
			}
		} else {
			body.lowVelTicks = 0
		}
	}
}

// obstacle is a static or kinematic collider flattened for the contact pass.
type obstacle struct {
	body *RigidBody
	col  *Collider
}

func (pe *PhysicsEngine) collectObstacles() []obstacle {
	out := make([]obstacle, 0, len(pe.colliders))
	for _, c := range pe.colliders {
		if c.spec.Sensor {
			continue
		}
		body := pe.bodies[c.body]
		if body == nil || body.IsDynamic() {
			continue
		}
		out = append(out, obstacle{body: body, col: c})
	}
	return out
}

// contactSpheres reduces a dynamic body's collider to one or two spheres used
// for the narrow phase. Capsules contribute both end caps.
func contactSpheres(body *RigidBody, spec ColliderSpec) ([2]mgl32.Vec3, float32, int) {
	var centers [2]mgl32.Vec3
	switch spec.Kind {
	case ShapeCapsule:
		up := body.rotation.Rotate(mgl32.Vec3{0, 1, 0}).Mul(spec.HalfHeight)
		centers[0] = body.translation.Sub(up)
		centers[1] = body.translation.Add(up)
		return centers, spec.Radius, 2
	case ShapeCuboid:
		centers[0] = body.translation
		return centers, boundingRadius(spec), 1
	default:
		centers[0] = body.translation
		return centers, spec.Radius, 1
	}
}

func (pe *PhysicsEngine) resolveObstacleContacts(body *RigidBody, obstacles []obstacle) {
	for _, ch := range pe.byBody[body.handle] {
		spec := pe.colliders[ch].spec
		if spec.Sensor {
			continue
		}
		centers, radius, n := contactSpheres(body, spec)
		for i := 0; i < n; i++ {
			for _, ob := range obstacles {
				normal, depth, hit := sphereObstacleContact(centers[i], radius, ob)
				if !hit {
					continue
				}
				pe.resolveContact(body, normal, depth, ob.body.linvel, spec, ob.col.spec)
				// The push moved the body; shift the probe too.
				centers[i] = centers[i].Add(normal.Mul(depth))
			}
		}
	}
}

// sphereObstacleContact returns the contact normal (pointing out of the
// obstacle) and penetration depth for a sphere against one obstacle collider.
func sphereObstacleContact(center mgl32.Vec3, radius float32, ob obstacle) (mgl32.Vec3, float32, bool) {
	spec := ob.col.spec
	pos := ob.body.translation
	switch spec.Kind {
	case ShapeBall:
		d := center.Sub(pos)
		dist := d.Len()
		if dist >= spec.Radius+radius || dist == 0 {
			return mgl32.Vec3{}, 0, false
		}
		return d.Mul(1 / dist), spec.Radius + radius - dist, true
	case ShapeCuboid:
		// Work in the obstacle's local frame so rotated ramps resolve right.
		inv := ob.body.rotation.Inverse()
		local := inv.Rotate(center.Sub(pos))
		e := spec.HalfExtents
		closest := mgl32.Vec3{
			clamp32(local.X(), -e.X(), e.X()),
			clamp32(local.Y(), -e.Y(), e.Y()),
			clamp32(local.Z(), -e.Z(), e.Z()),
		}
		d := local.Sub(closest)
		dist := d.Len()
		if dist >= radius {
			return mgl32.Vec3{}, 0, false
		}
		var normalLocal mgl32.Vec3
		var depth float32
		if dist > 1e-6 {
			normalLocal = d.Mul(1 / dist)
			depth = radius - dist
		} else {
			// Center inside the box: push out along the shallowest face.
			normalLocal, depth = shallowestFace(local, e)
			depth += radius
		}
		return ob.body.rotation.Rotate(normalLocal), depth, true
	case ShapeTrimesh:
		d := center.Sub(pos)
		dist := d.Len()
		if dist == 0 {
			return mgl32.Vec3{0, 1, 0}, radius, true
		}
		dir := d.Mul(1 / dist)
		surface := spec.HeightAt(dir)
		if dist >= surface+radius {
			return mgl32.Vec3{}, 0, false
		}
		return dir, surface + radius - dist, true
	default:
		return mgl32.Vec3{}, 0, false
	}
}

func shallowestFace(local, e mgl32.Vec3) (mgl32.Vec3, float32) {
	dx := e.X() - math32.Abs(local.X())
	dy := e.Y() - math32.Abs(local.Y())
	dz := e.Z() - math32.Abs(local.Z())
	switch {
	case dx <= dy && dx <= dz:
		return mgl32.Vec3{sign32(local.X()), 0, 0}, dx
	case dy <= dz:
		return mgl32.Vec3{0, sign32(local.Y()), 0}, dy
	default:
		return mgl32.Vec3{0, 0, sign32(local.Z())}, dz
	}
}

// resolveContact pushes the body out along the normal and applies a
// restitution impulse plus tangential friction relative to the obstacle's
// own velocity (nonzero for kinematic platforms, so riders are carried).
func (pe *PhysicsEngine) resolveContact(body *RigidBody, normal mgl32.Vec3, depth float32, obstacleVel mgl32.Vec3, a, b ColliderSpec) {
	body.translation = body.translation.Add(normal.Mul(depth))

	rel := body.linvel.Sub(obstacleVel)
	vn := rel.Dot(normal)
	if vn >= 0 {
		return
	}
	restitution := math32.Max(a.Restitution, b.Restitution)
	body.linvel = body.linvel.Sub(normal.Mul((1 + restitution) * vn))

	friction := math32.Sqrt(math32.Max(0, a.Friction*b.Friction))
	tangent := rel.Sub(normal.Mul(vn))
	k := math32.Min(1, friction*0.5)
	body.linvel = body.linvel.Sub(tangent.Mul(k))
}

// resolveDynamicPairs handles dynamic-vs-dynamic contacts as mass-weighted
// sphere impulses.
func (pe *PhysicsEngine) resolveDynamicPairs() {
	dynamics := make([]*RigidBody, 0, len(pe.bodies))
	for _, body := range pe.bodies {
		if body.IsDynamic() && !body.sleeping {
			dynamics = append(dynamics, body)
		}
	}
	for i := 0; i < len(dynamics); i++ {
		for j := i + 1; j < len(dynamics); j++ {
			a, b := dynamics[i], dynamics[j]
			ra, rb := a.radius, b.radius
			d := b.translation.Sub(a.translation)
			dist := d.Len()
			if dist >= ra+rb || dist == 0 {
				continue
			}
			normal := d.Mul(1 / dist)
			overlap := ra + rb - dist

			total := a.mass + b.mass
			a.translation = a.translation.Sub(normal.Mul(overlap * b.mass / total))
			b.translation = b.translation.Add(normal.Mul(overlap * a.mass / total))

			relVel := b.linvel.Sub(a.linvel)
			velAlongNormal := relVel.Dot(normal)
			if velAlongNormal > 0 {
				continue
			}
			restitution := float32(0.2)
			impulse := -(1 + restitution) * velAlongNormal / (1/a.mass + 1/b.mass)
			a.linvel = a.linvel.Sub(normal.Mul(impulse / a.mass))
			b.linvel = b.linvel.Add(normal.Mul(impulse / b.mass))
		}
	}
}

func (pe *PhysicsEngine) kinematicTouches(body *RigidBody, obstacles []obstacle) bool {
	for _, ch := range pe.byBody[body.handle] {
		spec := pe.colliders[ch].spec
		if spec.Sensor {
			continue
		}
		centers, radius, n := contactSpheres(body, spec)
		for i := 0; i < n; i++ {
			for _, ob := range obstacles {
				if ob.body.bodyType != BodyKinematic {
					continue
				}
				if _, _, hit := sphereObstacleContact(centers[i], radius, ob); hit {
					return true
				}
			}
		}
	}
	return false
}

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sign32(v float32) float32 {
	if v < 0 {
		return -1
	}
	return 1
}
