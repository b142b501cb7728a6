package main

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spawnTestCar(m *VehicleManager) *Vehicle {
	return m.Spawn("car_1", "car", mgl64.Vec3{-40, 32, -40}, mgl32.QuatIdent(), BodyHandle(1), ColliderHandle(1))
}

func TestVehicleKindTable(t *testing.T) {
	m := NewVehicleManager()
	for kind, want := range map[string]float32{
		"spaceship":  500,
		"helicopter": 300,
		"plane":      400,
		"car":        200,
	} {
		v := m.Spawn(kind+"_1", kind, mgl64.Vec3{}, mgl32.QuatIdent(), NoHandle, NoHandle)
		assert.Equal(t, want, v.MaxHealth, kind)
	}
}

func TestVehicleDestructionAndRespawnTiming(t *testing.T) {
	m := NewVehicleManager()
	v := spawnTestCar(m)
	pilot := uuid.New()
	now := time.Now()

	_, ok := m.Enter(v.ID, pilot)
	require.True(t, ok)

	health, destroyed, ejected, ok := m.Damage(v.ID, 200, now)
	require.True(t, ok)
	assert.True(t, destroyed)
	assert.Equal(t, float32(0), health)
	assert.Equal(t, pilot, ejected)

	v.mu.Lock()
	assert.True(t, v.IsDestroyed)
	assert.Equal(t, now.Add(90*time.Second), v.RespawnAt)
	assert.Equal(t, uuid.Nil, v.PilotID)
	v.mu.Unlock()

	// One instant before the respawn clock elapses: nothing.
	assert.Empty(t, m.SweepRespawns(now.Add(90*time.Second-time.Millisecond)))

	// Exactly at the boundary the vehicle is reconstructed at its origin
	// spawn point with full health and zeroed velocities.
	ready := m.SweepRespawns(now.Add(90 * time.Second))
	require.Len(t, ready, 1)
	v.mu.Lock()
	assert.False(t, v.IsDestroyed)
	assert.Equal(t, float32(200), v.Health)
	assert.Equal(t, mgl64.Vec3{-40, 32, -40}, v.WorldOrigin)
	assert.Equal(t, mgl32.Vec3{}, v.Velocity)
	v.mu.Unlock()
}

func TestEnterDestroyedVehicleFails(t *testing.T) {
	m := NewVehicleManager()
	v := spawnTestCar(m)
	now := time.Now()

	_, _, _, ok := m.Damage(v.ID, 500, now)
	require.True(t, ok)

	_, entered := m.Enter(v.ID, uuid.New())
	assert.False(t, entered)
}

func TestEnterOccupiedVehicleFails(t *testing.T) {
	m := NewVehicleManager()
	v := spawnTestCar(m)
	a, b := uuid.New(), uuid.New()

	_, ok := m.Enter(v.ID, a)
	require.True(t, ok)
	_, ok = m.Enter(v.ID, b)
	assert.False(t, ok)

	// Only the seated pilot may exit.
	_, ok = m.Exit(v.ID, b)
	assert.False(t, ok)
	_, ok = m.Exit(v.ID, a)
	assert.True(t, ok)
}

func TestDamageDoesNotUnderflowDestroyed(t *testing.T) {
	m := NewVehicleManager()
	v := spawnTestCar(m)
	now := time.Now()

	_, destroyed, _, _ := m.Damage(v.ID, 1000, now)
	require.True(t, destroyed)

	// Further damage on a destroyed vehicle is a no-op.
	health, destroyedAgain, _, ok := m.Damage(v.ID, 50, now)
	require.True(t, ok)
	assert.False(t, destroyedAgain)
	assert.Equal(t, float32(0), health)
}
