package main

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/aquilax/go-perlin"
	"github.com/go-gl/mathgl/mgl32"
)

// Static level construction. The level is generated once at boot, handed to
// the physics bridge, and serialized wholesale in the level_data frame.

const (
	planetRadius       = float32(200)
	planetCenterY      = float32(-250)
	terrainAmplitude   = float32(6)
	terrainFrequency   = 2.5
	terrainSeed        = int64(1337)
	terrainMeshStacks  = 24
	terrainMeshSlices  = 32
	defaultJoinSpawnY  = float32(80)
	mainPlatformHeight = float32(30)
)

// TerrainMesh is the flattened planet surface sent to clients.
type TerrainMesh struct {
	Vertices []float32 `json:"vertices"`
	Indices  []uint32  `json:"indices"`
}

// LevelObject is one static world object, wire-serializable for level_data.
type LevelObject struct {
	ID         string         `json:"id,omitempty"`
	Kind       string         `json:"object_type"`
	Position   Position       `json:"position"`
	Rotation   Rotation       `json:"rotation"`
	Scale      *Vec3          `json:"scale,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Mesh       *TerrainMesh   `json:"mesh,omitempty"`
}

func (o *LevelObject) StringProp(key, fallback string) string {
	if v, ok := o.Properties[key].(string); ok {
		return v
	}
	return fallback
}

func (o *LevelObject) FloatProp(key string, fallback float64) float64 {
	switch v := o.Properties[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return fallback
}

type Level struct {
	Objects []LevelObject

	noise *perlin.Perlin
}

// JoinSpawnPosition is where new participants appear.
func (l *Level) JoinSpawnPosition() mgl32.Vec3 {
	return mgl32.Vec3{0, defaultJoinSpawnY, 0}
}

// TerrainHeight maps a unit direction from the planet center to the surface
// distance. The collider and the broadcast mesh share this function.
func (l *Level) TerrainHeight(dir mgl32.Vec3) float32 {
	n := l.noise.Noise3D(
		float64(dir.X())*terrainFrequency+10,
		float64(dir.Y())*terrainFrequency+10,
		float64(dir.Z())*terrainFrequency+10,
	)
	return planetRadius + terrainAmplitude*float32(n)
}

// CreateDefaultMultiplayerLevel assembles the built-in world: the planet, a
// main platform high above it, a wall, a ramp, a moving platform, a water
// pool, a ring of static rocks, and the spawn point pools.
func CreateDefaultMultiplayerLevel() *Level {
	level := &Level{
		noise: perlin.NewPerlin(2, 2, 3, terrainSeed),
	}
	objects := []LevelObject{}

	planet := LevelObject{
		Kind:     "planet",
		Position: Position{0, planetCenterY, 0},
		Rotation: identRotation(),
		Scale:    &Vec3{planetRadius, planetRadius, planetRadius},
	}
	planet.Mesh = level.buildTerrainMesh()
	objects = append(objects, planet)

	objects = append(objects, LevelObject{
		Kind:     "platform",
		Position: Position{0, mainPlatformHeight, 0},
		Rotation: identRotation(),
		Scale:    &Vec3{50, 3, 50},
	})

	objects = append(objects, LevelObject{
		Kind:     "wall",
		Position: Position{10, mainPlatformHeight + 1.5 + 4.0, -15},
		Rotation: identRotation(),
		Scale:    &Vec3{20, 8, 1},
	})

	rampAngle := float32(math.Pi / 6)
	ramp := mgl32.QuatRotate(rampAngle, mgl32.Vec3{1, 0, 0})
	objects = append(objects, LevelObject{
		Kind:     "ramp",
		Position: Position{-15, mainPlatformHeight + 1.5 + 2.5, 10},
		Rotation: rotFromQuat(ramp),
		Scale:    &Vec3{10, 1, 15},
	})

	// Moving platform parked just past the top of the ramp.
	rampTopOffset := float32(math.Sin(float64(rampAngle))) * 15 / 2
	rampTopY := mainPlatformHeight + 1.5 + 2.5 + rampTopOffset
	rampTopZ := float32(10) + float32(math.Cos(float64(rampAngle)))*15/2
	objects = append(objects, LevelObject{
		ID:       "moving_platform_1",
		Kind:     "moving_platform",
		Position: Position{-15, rampTopY + 0.5, rampTopZ + 5},
		Rotation: identRotation(),
		Scale:    &Vec3{8, 1, 8},
		Properties: map[string]any{
			"move_range": 20.0,
			"move_speed": 0.2,
		},
	})

	objects = append(objects, LevelObject{
		ID:       "water_1",
		Kind:     "water",
		Position: Position{40, mainPlatformHeight - 2, 40},
		Rotation: identRotation(),
		Scale:    &Vec3{30, 8, 30},
	})

	// Static rocks ringing the planet 60 degrees from the pole.
	for i := 0; i < 20; i++ {
		theta := float64(i) * 2 * math.Pi / 20
		phi := math.Pi / 3
		dir := mgl32.Vec3{
			float32(math.Sin(phi) * math.Cos(theta)),
			float32(math.Cos(phi)),
			float32(math.Sin(phi) * math.Sin(theta)),
		}
		pos := dir.Mul(planetRadius + 5).Add(mgl32.Vec3{0, planetCenterY, 0})
		objects = append(objects, LevelObject{
			Kind:     "static_rock",
			Position: posFromVec(pos),
			Rotation: identRotation(),
			Scale: &Vec3{
				0.5 + rand.Float32()*1.5,
				0.5 + rand.Float32()*1.5,
				0.5 + rand.Float32()*1.5,
			},
		})
	}

	// Spawn point pools.
	platformTop := mainPlatformHeight + 1.5
	playerSpawns := []Position{
		{0, platformTop + 1.5, 0},
		{8, platformTop + 1.5, 8},
		{-8, platformTop + 1.5, -8},
	}
	for i, pos := range playerSpawns {
		objects = append(objects, LevelObject{
			ID:       fmt.Sprintf("player_spawn_%d", i+1),
			Kind:     "player_spawn",
			Position: pos,
			Rotation: identRotation(),
		})
	}

	vehicleSpawns := []struct {
		kind string
		pos  Position
	}{
		{"car", Position{-40, platformTop + 0.5, -40}},
		{"spaceship", Position{40, platformTop + 1.0, -40}},
		{"helicopter", Position{-40, platformTop + 1.0, 40}},
		{"plane", Position{40, platformTop + 0.8, 40}},
	}
	for i, vs := range vehicleSpawns {
		objects = append(objects, LevelObject{
			ID:       fmt.Sprintf("vehicle_spawn_%d", i+1),
			Kind:     "vehicle_spawn",
			Position: vs.pos,
			Rotation: identRotation(),
			Properties: map[string]any{
				"vehicle_type": vs.kind,
			},
		})
	}

	weaponSpawns := []struct {
		kind string
		pos  Position
	}{
		{"pistol", Position{5, platformTop + 0.5, 0}},
		{"rifle", Position{-5, platformTop + 0.5, 0}},
		{"rocket_launcher", Position{0, platformTop + 0.5, 8}},
	}
	for i, ws := range weaponSpawns {
		objects = append(objects, LevelObject{
			ID:       fmt.Sprintf("weapon_spawn_%d", i+1),
			Kind:     "weapon_spawn",
			Position: ws.pos,
			Rotation: identRotation(),
			Properties: map[string]any{
				"weapon_type":  ws.kind,
				"respawn_time": 30.0,
			},
		})
	}

	level.Objects = objects
	return level
}

// buildTerrainMesh samples the displaced sphere into a lat-long grid.
// Vertices are relative to the planet center.
func (l *Level) buildTerrainMesh() *TerrainMesh {
	mesh := &TerrainMesh{}
	for stack := 0; stack <= terrainMeshStacks; stack++ {
		phi := math.Pi * float64(stack) / terrainMeshStacks
		for slice := 0; slice <= terrainMeshSlices; slice++ {
			theta := 2 * math.Pi * float64(slice) / terrainMeshSlices
			dir := mgl32.Vec3{
				float32(math.Sin(phi) * math.Cos(theta)),
				float32(math.Cos(phi)),
				float32(math.Sin(phi) * math.Sin(theta)),
			}
			v := dir.Mul(l.TerrainHeight(dir))
			mesh.Vertices = append(mesh.Vertices, v.X(), v.Y(), v.Z())
		}
	}
	cols := uint32(terrainMeshSlices + 1)
	for stack := uint32(0); stack < terrainMeshStacks; stack++ {
		for slice := uint32(0); slice < terrainMeshSlices; slice++ {
			a := stack*cols + slice
			b := a + cols
			mesh.Indices = append(mesh.Indices, a, b, a+1, b, b+1, a+1)
		}
	}
	return mesh
}

// BuildPhysics walks the level objects and registers their colliders.
func (l *Level) BuildPhysics(pb *PhysicsBridge) {
	for i := range l.Objects {
		obj := &l.Objects[i]
		pos := obj.Position.Vec()
		switch obj.Kind {
		case "planet":
			pb.CreateTerrain(pos, l.TerrainHeight)
			pb.SetGravityCenter(pos)
		case "platform", "wall":
			pb.CreateStaticBox(pos, obj.Rotation.Quat(), obj.Scale.Vec(), 0.8, 0.2)
		case "ramp":
			pb.CreateStaticBox(pos, obj.Rotation.Quat(), obj.Scale.Vec(), 0.7, 0.1)
		case "moving_platform":
			pb.CreateMovingPlatform(
				obj.ID,
				pos,
				obj.Scale.Vec(),
				float32(obj.FloatProp("move_range", 20)),
				float32(obj.FloatProp("move_speed", 0.2)),
			)
		case "static_rock":
			s := obj.Scale.Vec()
			radius := (s.X() + s.Y() + s.Z()) / 3
			pb.CreateStaticBall(pos, radius*2, 0.8, 0.4)
		case "water":
			pb.RegisterWaterVolume(pos, obj.Scale.Vec())
		case "player_spawn", "vehicle_spawn", "weapon_spawn":
			// Spawn points carry no geometry.
		}
	}
}
