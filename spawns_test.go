package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeFromLevelSeedsPools(t *testing.T) {
	level := CreateDefaultMultiplayerLevel()
	sm := NewSpawnManager()

	initial := sm.InitializeFromLevel(level)
	assert.Len(t, initial, 3)
	assert.Len(t, sm.VehicleSpawnPoints(), 4)
	assert.Len(t, sm.ActiveWeapons(), 3)

	kinds := map[string]bool{}
	for _, sp := range sm.VehicleSpawnPoints() {
		kinds[sp.Kind] = true
	}
	for _, kind := range []string{"car", "spaceship", "helicopter", "plane"} {
		assert.True(t, kinds[kind], kind)
	}
}

func TestPickupRespawnStateMachine(t *testing.T) {
	level := CreateDefaultMultiplayerLevel()
	sm := NewSpawnManager()
	initial := sm.InitializeFromLevel(level)
	require.NotEmpty(t, initial)
	item := initial[0]
	now := time.Now()

	weaponType, ok := sm.Pickup(item.WeaponID, now)
	require.True(t, ok)
	assert.Equal(t, item.WeaponType, weaponType)

	// Second pickup of a taken item loses the arbitration.
	_, ok = sm.Pickup(item.WeaponID, now)
	assert.False(t, ok)
	assert.Len(t, sm.ActiveWeapons(), 2)

	// Nothing respawns before the clock elapses.
	assert.Empty(t, sm.Sweep(now.Add(29*time.Second)))

	respawned := sm.Sweep(now.Add(30 * time.Second))
	require.Len(t, respawned, 1)
	assert.Equal(t, item.WeaponID, respawned[0].WeaponID)
	assert.Len(t, sm.ActiveWeapons(), 3)
}

func TestPickupUnknownItem(t *testing.T) {
	sm := NewSpawnManager()
	_, ok := sm.Pickup("nope", time.Now())
	assert.False(t, ok)
}

func TestRandomPlayerSpawnFallsBack(t *testing.T) {
	sm := NewSpawnManager()
	assert.Equal(t, float32(80), sm.RandomPlayerSpawn().Y())

	level := CreateDefaultMultiplayerLevel()
	sm.InitializeFromLevel(level)
	spawn := sm.RandomPlayerSpawn()
	assert.InDelta(t, 33, spawn.Y(), 0.1)
}
