package main

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBridge() *PhysicsBridge {
	pb := NewPhysicsBridge()
	pb.SetGravityCenter(mgl32.Vec3{0, -250, 0})
	return pb
}

func TestRadialGravityPullsTowardCenter(t *testing.T) {
	pb := newTestBridge()
	body, _ := pb.CreateRockBody(mgl32.Vec3{0, 100, 0}, mgl32.QuatIdent(), 1)

	pb.PreStep()
	pb.Step()

	_, _, vel, ok := pb.BodyState(body)
	require.True(t, ok)
	// Center is straight down from the spawn, so the body accelerates -Y.
	assert.Less(t, vel.Y(), float32(0))
	assert.InDelta(t, 0, vel.X(), 1e-3)
	assert.InDelta(t, 0, vel.Z(), 1e-3)
}

func TestBuoyancySign(t *testing.T) {
	pb := newTestBridge()
	pb.RegisterWaterVolume(mgl32.Vec3{0, 50, 0}, mgl32.Vec3{20, 20, 20})
	body, _ := pb.CreateRockBody(mgl32.Vec3{0, 50, 0}, mgl32.QuatIdent(), 1)

	rb := pb.Engine().Body(body)
	pb.PreStep()

	// Net non-drag force dotted with radial-up must be positive in water.
	up := pb.RadialUp(rb.translation)
	drag := rb.linvel.Mul(-waterDragFactor)
	nonDrag := rb.force.Sub(drag)
	assert.Positive(t, nonDrag.Dot(up))
}

func TestOutOfWaterGetsGravityAndDamping(t *testing.T) {
	pb := newTestBridge()
	pb.RegisterWaterVolume(mgl32.Vec3{100, 0, 0}, mgl32.Vec3{10, 10, 10})
	body, _ := pb.CreateRockBody(mgl32.Vec3{0, 100, 0}, mgl32.QuatIdent(), 1)

	rb := pb.Engine().Body(body)
	pb.Engine().SetLinvel(body, mgl32.Vec3{5, 0, 0})
	pb.PreStep()

	up := pb.RadialUp(rb.translation)
	assert.Negative(t, rb.force.Dot(up))
	assert.False(t, pb.IsPositionInWater(rb.translation))
}

func TestKinematicTargetCarriesBody(t *testing.T) {
	pe := NewPhysicsEngine()
	body := pe.CreateBody(BodyKinematic, mgl32.Vec3{0, 0, 0}, mgl32.QuatIdent())
	pe.AttachCollider(body, ColliderSpec{Kind: ShapeCuboid, HalfExtents: mgl32.Vec3{4, 0.5, 4}})

	pe.SetNextKinematicTranslation(body, mgl32.Vec3{1, 0, 0})
	pe.Step()

	pos, _, vel, ok := pe.BodyState(body)
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, pos)
	// Implied velocity is kept so contacts carry riders.
	assert.InDelta(t, 60.0, vel.X(), 1e-3)
}

func TestMovingPlatformRetarget(t *testing.T) {
	pb := newTestBridge()
	body := pb.CreateMovingPlatform("p1", mgl32.Vec3{-15, 40, 20}, mgl32.Vec3{8, 1, 8}, 20, 0.2)

	pb.UpdateMovingPlatforms(0)
	pb.Step()
	pos, _, _, _ := pb.BodyState(body)
	assert.InDelta(t, -15, pos.X(), 1e-3)

	// sin(10*0.2)*20 offset after 10 seconds of simulated time.
	pb.UpdateMovingPlatforms(10)
	pb.Step()
	pos, _, _, _ = pb.BodyState(body)
	assert.InDelta(t, -15+18.185949, pos.X(), 1e-2)

	states := pb.PlatformStates()
	require.Len(t, states, 1)
	assert.Equal(t, "p1", states[0].ID)
}

func TestSphereRestsOnStaticBox(t *testing.T) {
	pb := newTestBridge()
	pb.CreateStaticBox(mgl32.Vec3{0, 30, 0}, mgl32.QuatIdent(), mgl32.Vec3{50, 3, 50}, 0.8, 0.2)
	body, _ := pb.CreateRockBody(mgl32.Vec3{0, 40, 0}, mgl32.QuatIdent(), 0.5)

	for i := 0; i < 600; i++ {
		pb.PreStep()
		pb.Step()
	}

	pos, _, _, ok := pb.BodyState(body)
	require.True(t, ok)
	// Ball radius 1 should settle on the platform top at y = 31.5.
	assert.InDelta(t, 32.5, pos.Y(), 0.5)
}

func TestBodyTypeTransitionClearsVelocity(t *testing.T) {
	pe := NewPhysicsEngine()
	body := pe.CreateBody(BodyDynamic, mgl32.Vec3{}, mgl32.QuatIdent())
	pe.AttachCollider(body, ColliderSpec{Kind: ShapeBall, Radius: 1, Density: 1})
	pe.SetLinvel(body, mgl32.Vec3{10, 0, 0})

	pe.SetBodyType(body, BodyKinematic)
	_, _, vel, _ := pe.BodyState(body)
	assert.Equal(t, mgl32.Vec3{}, vel)
	assert.False(t, pe.Body(body).IsDynamic())

	pe.SetBodyType(body, BodyDynamic)
	assert.True(t, pe.Body(body).IsDynamic())
}

func TestRemoveBodyDropsColliders(t *testing.T) {
	pe := NewPhysicsEngine()
	body := pe.CreateBody(BodyDynamic, mgl32.Vec3{}, mgl32.QuatIdent())
	pe.AttachCollider(body, ColliderSpec{Kind: ShapeBall, Radius: 1})

	pe.RemoveBody(body)
	_, _, _, ok := pe.BodyState(body)
	assert.False(t, ok)
	assert.Empty(t, pe.colliders)
}

func TestTerrainContactPushesOutward(t *testing.T) {
	pb := newTestBridge()
	center := mgl32.Vec3{0, -250, 0}
	pb.CreateTerrain(center, func(dir mgl32.Vec3) float32 { return 200 })

	// Start inside the surface; one step must push the body out.
	body, _ := pb.CreateRockBody(mgl32.Vec3{0, -51, 0}, mgl32.QuatIdent(), 0.5)
	pb.Step()

	pos, _, _, ok := pb.BodyState(body)
	require.True(t, ok)
	dist := pos.Sub(center).Len()
	assert.GreaterOrEqual(t, dist, float32(200))
}
