package main

import (
	"time"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
)

// weaponSpec drives both hitscan arbitration and ballistic projectiles.
type weaponSpec struct {
	speed           float32
	damage          float32
	explosionRadius float32 // zero for none
	lifetime        float32 // seconds
	ballistic       bool    // ballistic kinds spawn tracked projectiles
	homing          bool
}

var weaponSpecs = map[string]weaponSpec{
	"pistol":           {speed: 500, damage: 25, lifetime: 2},
	"rifle":            {speed: 800, damage: 35, lifetime: 2},
	"shotgun":          {speed: 400, damage: 15, lifetime: 1},
	"rocket_launcher":  {speed: 50, damage: 100, explosionRadius: 5, lifetime: 10, ballistic: true, homing: true},
	"grenade_launcher": {speed: 30, damage: 80, explosionRadius: 4, lifetime: 5, ballistic: true},
	"plasma_rifle":     {speed: 300, damage: 40, explosionRadius: 1, lifetime: 3, ballistic: true},
}

func weaponSpecFor(kind string) weaponSpec {
	if spec, ok := weaponSpecs[kind]; ok {
		return spec
	}
	return weaponSpec{speed: 500, damage: 30, lifetime: 2}
}

const homingTurnRate = float32(2.0) // rad/s

// Projectile is a tracked ballistic shot. It rides a dynamic CCD body, so
// radial gravity applies through the bridge like any other dynamic body.
type Projectile struct {
	ID              string
	Kind            string
	OwnerID         uuid.UUID
	Position        mgl32.Vec3
	Velocity        mgl32.Vec3
	Rotation        mgl32.Quat
	Damage          float32
	ExplosionRadius float32
	SpawnedAt       time.Time
	Lifetime        float32
	IsHoming        bool
	TargetID        uuid.UUID

	// Damage the firing client reported landing; echoed in the impact
	// frame when the projectile is removed.
	HitDamage float32

	Body     BodyHandle
	Collider ColliderHandle
}

func (p *Projectile) expired(now time.Time) bool {
	return now.Sub(p.SpawnedAt).Seconds() > float64(p.Lifetime)
}

type ProjectileManager struct {
	projectiles *xsync.Map[string, *Projectile]
}

func NewProjectileManager() *ProjectileManager {
	return &ProjectileManager{projectiles: xsync.NewMap[string, *Projectile]()}
}

func (m *ProjectileManager) Get(id string) (*Projectile, bool) { return m.projectiles.Load(id) }
func (m *ProjectileManager) Size() int                         { return m.projectiles.Size() }

func (m *ProjectileManager) Range(f func(*Projectile) bool) {
	m.projectiles.Range(func(_ string, p *Projectile) bool { return f(p) })
}

// Spawn creates a projectile for a ballistic weapon and gives it a physics
// body. Tick guard must be held (it touches the engine).
func (m *ProjectileManager) Spawn(pb *PhysicsBridge, owner uuid.UUID, kind string, origin, direction mgl32.Vec3, target uuid.UUID) *Projectile {
	spec := weaponSpecFor(kind)
	dir := direction
	if dir.Len() == 0 {
		dir = mgl32.Vec3{0, 0, 1}
	} else {
		dir = dir.Normalize()
	}
	velocity := dir.Mul(spec.speed)

	engine := pb.Engine()
	body := engine.CreateBody(BodyDynamic, origin, mgl32.QuatIdent())
	engine.SetCCD(body, true)
	collider := engine.AttachCollider(body, ColliderSpec{
		Kind:        ShapeBall,
		Radius:      0.2,
		Density:     0.5,
		Friction:    0.5,
		Restitution: 0.1,
	})
	engine.SetLinvel(body, velocity)

	p := &Projectile{
		ID:              "proj_" + uuid.NewString(),
		Kind:            kind,
		OwnerID:         owner,
		Position:        origin,
		Velocity:        velocity,
		Rotation:        rotationAlignedTo(dir),
		Damage:          spec.damage,
		ExplosionRadius: spec.explosionRadius,
		SpawnedAt:       time.Now(),
		Lifetime:        spec.lifetime,
		IsHoming:        spec.homing && target != uuid.Nil,
		TargetID:        target,
		Body:            body,
		Collider:        collider,
	}
	m.projectiles.Store(p.ID, p)
	return p
}

// Advance runs after the physics step: read back transforms, steer homing
// projectiles, and collect the ones past their lifetime. Tick guard must be
// held. targetPos resolves a homing target's current position.
func (m *ProjectileManager) Advance(pb *PhysicsBridge, now time.Time, dt float32, targetPos func(uuid.UUID) (mgl32.Vec3, bool)) []*Projectile {
	var expired []*Projectile
	m.projectiles.Range(func(id string, p *Projectile) bool {
		if p.expired(now) {
			expired = append(expired, p)
			m.projectiles.Delete(id)
			return true
		}
		pos, _, vel, ok := pb.BodyState(p.Body)
		if !ok {
			// Physics handle gone; skip this projectile's physics work.
			return true
		}
		p.Position = pos
		p.Velocity = vel

		if p.IsHoming {
			if tp, found := targetPos(p.TargetID); found {
				p.Velocity = steerToward(p.Velocity, tp.Sub(p.Position), homingTurnRate*dt)
				pb.Engine().SetLinvel(p.Body, p.Velocity)
			}
		}
		if p.Velocity.Len() > 0.01 {
			p.Rotation = rotationAlignedTo(p.Velocity.Normalize())
		}
		return true
	})
	return expired
}

// Remove drops a projectile (impact before expiry).
func (m *ProjectileManager) Remove(id string) (*Projectile, bool) {
	return m.projectiles.LoadAndDelete(id)
}

// steerToward rotates the velocity direction toward the target direction by
// at most maxAngle radians, keeping speed.
func steerToward(velocity, toTarget mgl32.Vec3, maxAngle float32) mgl32.Vec3 {
	speed := velocity.Len()
	if speed == 0 || toTarget.Len() == 0 {
		return velocity
	}
	cur := velocity.Mul(1 / speed)
	want := toTarget.Normalize()

	dot := clamp32(cur.Dot(want), -1, 1)
	angle := math32.Acos(dot)
	if angle <= maxAngle {
		return want.Mul(speed)
	}

	axis := cur.Cross(want)
	if axis.Len() < 1e-6 {
		// Opposite directions: pick any perpendicular axis.
		axis = cur.Cross(mgl32.Vec3{0, 1, 0})
		if axis.Len() < 1e-6 {
			axis = cur.Cross(mgl32.Vec3{1, 0, 0})
		}
	}
	rot := mgl32.QuatRotate(maxAngle, axis.Normalize())
	return rot.Rotate(cur).Mul(speed)
}

// rotationAlignedTo orients +Z along the given unit direction.
func rotationAlignedTo(dir mgl32.Vec3) mgl32.Quat {
	return mgl32.QuatBetweenVectors(mgl32.Vec3{0, 0, 1}, dir)
}
