package main

import (
	"math/rand"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthBoundsInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	p := NewPlayer(uuid.New(), mgl32.Vec3{0, 80, 0})

	for i := 0; i < 500; i++ {
		if rng.Intn(2) == 0 {
			p.TakeDamage(rng.Float32() * 60)
		} else {
			p.Heal(rng.Float32() * 40)
		}
		p.mu.Lock()
		assert.GreaterOrEqual(t, p.Health, float32(0))
		assert.LessOrEqual(t, p.Health, p.MaxHealth)
		assert.Equal(t, p.Health == 0, p.IsDead)
		p.mu.Unlock()
		if p.Dead() {
			p.Respawn(mgl32.Vec3{0, 33, 0})
		}
	}
}

func TestArmorAbsorbsHalf(t *testing.T) {
	p := NewPlayer(uuid.New(), mgl32.Vec3{})
	p.mu.Lock()
	p.Armor = 50
	p.mu.Unlock()

	health, killed := p.TakeDamage(40)
	assert.False(t, killed)
	// Armor soaks 20, health takes 20.
	assert.Equal(t, float32(80), health)
	assert.Equal(t, float32(30), p.ArmorValue())
}

func TestDeathSetsRespawnClock(t *testing.T) {
	p := NewPlayer(uuid.New(), mgl32.Vec3{})
	before := time.Now()

	health, killed := p.TakeDamage(150)
	require.True(t, killed)
	assert.Equal(t, float32(0), health)

	p.mu.Lock()
	assert.True(t, p.IsDead)
	assert.False(t, p.RespawnAt.IsZero())
	respawnAt := p.RespawnAt
	p.mu.Unlock()

	assert.False(t, p.CanRespawn(before))
	assert.True(t, p.CanRespawn(respawnAt))

	// Damage on a dead player is ignored.
	health, killed = p.TakeDamage(10)
	assert.Equal(t, float32(0), health)
	assert.False(t, killed)
}

func TestRespawnResetsState(t *testing.T) {
	p := NewPlayer(uuid.New(), mgl32.Vec3{0, 80, 0})
	p.UpdateState(&PlayerUpdateMsg{Position: Position{1500, 0, 0}, Rotation: identRotation()})
	p.SetVehicle("car_1")
	p.TakeDamage(1000)

	p.Respawn(mgl32.Vec3{8, 33, 8})

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, p.MaxHealth, p.Health)
	assert.False(t, p.IsDead)
	assert.True(t, p.RespawnAt.IsZero())
	assert.Equal(t, mgl32.Vec3{8, 33, 8}, p.LocalPosition)
	assert.Equal(t, "", p.CurrentVehicleID)
	assert.Equal(t, float64(0), p.WorldOrigin.Len())
}

func TestVehicleOffsetDoesNotMoveAnchor(t *testing.T) {
	p := NewPlayer(uuid.New(), mgl32.Vec3{0, 80, 0})
	p.SetVehicle("car_1")

	// In a vehicle the position is an offset in the vehicle frame; a large
	// value must not trigger a recenter.
	recentered := p.UpdateState(&PlayerUpdateMsg{Position: Position{2000, 0, 0}, Rotation: identRotation()})
	assert.False(t, recentered)
	assert.Equal(t, float64(0), p.Origin().Len())
}
