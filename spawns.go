package main

import (
	"math/rand"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

const defaultWeaponRespawn = 30 * time.Second

type PlayerSpawnPoint struct {
	ID       string
	Position mgl32.Vec3
	Rotation mgl32.Quat
}

type VehicleSpawnPoint struct {
	ID       string
	Kind     string
	Position mgl64.Vec3
	Rotation mgl32.Quat
}

type WeaponSpawnPoint struct {
	ID       string
	Kind     string
	Position mgl64.Vec3
	Respawn  time.Duration
}

// SpawnedItem tracks one pool item through Available -> Taken -> Available.
type SpawnedItem struct {
	SpawnPointID string
	ItemID       string
	PickedUp     bool
	PickupTime   time.Time
}

// WeaponRespawn is a sweep result the tick loop turns into spawn frames.
type WeaponRespawn struct {
	WeaponID   string
	WeaponType string
	Position   mgl64.Vec3
}

// SpawnManager owns the three spawn pools seeded from the static level.
// The player pool only provides respawn positions and has no Taken state.
type SpawnManager struct {
	mu sync.Mutex

	playerSpawns  []PlayerSpawnPoint
	vehicleSpawns []VehicleSpawnPoint
	weaponSpawns  []WeaponSpawnPoint

	spawnedWeapons map[string]*SpawnedItem
}

func NewSpawnManager() *SpawnManager {
	return &SpawnManager{spawnedWeapons: make(map[string]*SpawnedItem)}
}

// InitializeFromLevel seeds the pools from the level's spawn point objects
// and returns the initial weapon spawns to announce.
func (sm *SpawnManager) InitializeFromLevel(level *Level) []WeaponRespawn {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var initial []WeaponRespawn
	for _, obj := range level.Objects {
		switch obj.Kind {
		case "player_spawn":
			sm.playerSpawns = append(sm.playerSpawns, PlayerSpawnPoint{
				ID:       obj.ID,
				Position: obj.Position.Vec(),
				Rotation: obj.Rotation.Quat(),
			})
		case "vehicle_spawn":
			sm.vehicleSpawns = append(sm.vehicleSpawns, VehicleSpawnPoint{
				ID:       obj.ID,
				Kind:     obj.StringProp("vehicle_type", "car"),
				Position: vec64(obj.Position.Vec()),
				Rotation: obj.Rotation.Quat(),
			})
		case "weapon_spawn":
			respawn := time.Duration(obj.FloatProp("respawn_time", defaultWeaponRespawn.Seconds())) * time.Second
			point := WeaponSpawnPoint{
				ID:       obj.ID,
				Kind:     obj.StringProp("weapon_type", "pistol"),
				Position: vec64(obj.Position.Vec()),
				Respawn:  respawn,
			}
			sm.weaponSpawns = append(sm.weaponSpawns, point)

			itemID := point.ID + "_" + uuid.NewString()
			sm.spawnedWeapons[itemID] = &SpawnedItem{SpawnPointID: point.ID, ItemID: itemID}
			initial = append(initial, WeaponRespawn{WeaponID: itemID, WeaponType: point.Kind, Position: point.Position})
		}
	}
	return initial
}

// VehicleSpawnPoints lists the seeded vehicle spawn points.
func (sm *SpawnManager) VehicleSpawnPoints() []VehicleSpawnPoint {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make([]VehicleSpawnPoint, len(sm.vehicleSpawns))
	copy(out, sm.vehicleSpawns)
	return out
}

// RandomPlayerSpawn picks a respawn position; falls back to the default
// join spawn when the level has no player spawn points.
func (sm *SpawnManager) RandomPlayerSpawn() mgl32.Vec3 {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if len(sm.playerSpawns) == 0 {
		return mgl32.Vec3{0, 80, 0}
	}
	return sm.playerSpawns[rand.Intn(len(sm.playerSpawns))].Position
}

// ActiveWeapons snapshots the items currently available for pickup.
func (sm *SpawnManager) ActiveWeapons() []WeaponRespawn {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	var out []WeaponRespawn
	for _, item := range sm.spawnedWeapons {
		if item.PickedUp {
			continue
		}
		if point := sm.weaponSpawnPoint(item.SpawnPointID); point != nil {
			out = append(out, WeaponRespawn{WeaponID: item.ItemID, WeaponType: point.Kind, Position: point.Position})
		}
	}
	return out
}

// Pickup arbitrates an item pickup; only the first taker wins. Returns the
// weapon type on success.
func (sm *SpawnManager) Pickup(itemID string, now time.Time) (string, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	item, ok := sm.spawnedWeapons[itemID]
	if !ok || item.PickedUp {
		return "", false
	}
	item.PickedUp = true
	item.PickupTime = now
	if point := sm.weaponSpawnPoint(item.SpawnPointID); point != nil {
		return point.Kind, true
	}
	return "", true
}

// Sweep returns the items whose respawn clock elapsed, flipping them back to
// Available. Driven by the tick loop after each step.
func (sm *SpawnManager) Sweep(now time.Time) []WeaponRespawn {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	var respawned []WeaponRespawn
	for _, item := range sm.spawnedWeapons {
		if !item.PickedUp {
			continue
		}
		point := sm.weaponSpawnPoint(item.SpawnPointID)
		if point == nil {
			continue
		}
		if now.Sub(item.PickupTime) >= point.Respawn {
			item.PickedUp = false
			item.PickupTime = time.Time{}
			respawned = append(respawned, WeaponRespawn{WeaponID: item.ItemID, WeaponType: point.Kind, Position: point.Position})
		}
	}
	return respawned
}

func (sm *SpawnManager) weaponSpawnPoint(id string) *WeaponSpawnPoint {
	for i := range sm.weaponSpawns {
		if sm.weaponSpawns[i].ID == id {
			return &sm.weaponSpawns[i]
		}
	}
	return nil
}
