package main

import (
	"github.com/go-gl/mathgl/mgl32"
	jsoniter "github.com/json-iterator/go"
)

// json is the codec used for every wire frame.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ---- Wire vector types ----

// Position is a 32-bit position in the receiver's local frame.
type Position struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Rotation is a unit quaternion.
type Rotation struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
	W float32 `json:"w"`
}

type Velocity struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

func posFromVec(v mgl32.Vec3) Position { return Position{v.X(), v.Y(), v.Z()} }
func velFromVec(v mgl32.Vec3) Velocity { return Velocity{v.X(), v.Y(), v.Z()} }

func (p Position) Vec() mgl32.Vec3 { return mgl32.Vec3{p.X, p.Y, p.Z} }
func (v Velocity) Vec() mgl32.Vec3 { return mgl32.Vec3{v.X, v.Y, v.Z} }
func (v Vec3) Vec() mgl32.Vec3     { return mgl32.Vec3{v.X, v.Y, v.Z} }

func rotFromQuat(q mgl32.Quat) Rotation {
	return Rotation{q.V.X(), q.V.Y(), q.V.Z(), q.W}
}

func (r Rotation) Quat() mgl32.Quat {
	q := mgl32.Quat{W: r.W, V: mgl32.Vec3{r.X, r.Y, r.Z}}
	if q.Len() == 0 {
		return mgl32.QuatIdent()
	}
	return q.Normalize()
}

func identRotation() Rotation { return Rotation{0, 0, 0, 1} }

// ---- Inbound (client -> server) ----

const (
	MsgPlayerUpdate        = "player_update"
	MsgDynamicObjectUpdate = "dynamic_object_update"
	MsgPushObject          = "push_object"
	MsgGrabObject          = "grab_object"
	MsgMoveGrabbedObject   = "move_grabbed_object"
	MsgReleaseObject       = "release_object"
	MsgThrowObject         = "throw_object"
	MsgFireWeapon          = "fire_weapon"
	MsgPickupItem          = "pickup_item"
	MsgRequestRespawn      = "request_respawn"
	MsgEnterVehicle        = "enter_vehicle"
	MsgExitVehicle         = "exit_vehicle"
	MsgPlayerAction        = "player_action"
)

// clientEnvelope carries only the discriminant; the full payload is decoded
// per kind by the input processor.
type clientEnvelope struct {
	Type string `json:"type"`
}

type PlayerUpdateMsg struct {
	Position   Position `json:"position"`
	Rotation   Rotation `json:"rotation"`
	Velocity   Velocity `json:"velocity"`
	IsGrounded bool     `json:"is_grounded"`
	IsSwimming bool     `json:"is_swimming"`
}

type PushObjectMsg struct {
	ObjectID string `json:"object_id"`
	Force    Vec3   `json:"force"`
	Point    Vec3   `json:"point"`
}

type GrabObjectMsg struct {
	ObjectID  string `json:"object_id"`
	GrabPoint Vec3   `json:"grab_point"`
}

type MoveGrabbedObjectMsg struct {
	ObjectID       string   `json:"object_id"`
	TargetPosition Position `json:"target_position"`
}

type ReleaseObjectMsg struct {
	ObjectID string `json:"object_id"`
}

type ThrowObjectMsg struct {
	ObjectID     string   `json:"object_id"`
	ThrowForce   Vec3     `json:"throw_force"`
	ReleasePoint Position `json:"release_point"`
}

type FireWeaponMsg struct {
	WeaponType  string    `json:"weapon_type"`
	Origin      Position  `json:"origin"`
	Direction   Vec3      `json:"direction"`
	HitPoint    *Position `json:"hit_point,omitempty"`
	HitPlayerID string    `json:"hit_player_id,omitempty"`
	HitObjectID string    `json:"hit_object_id,omitempty"`
}

type PickupItemMsg struct {
	ItemID string `json:"item_id"`
}

type EnterVehicleMsg struct {
	VehicleID string `json:"vehicle_id"`
}

type ExitVehicleMsg struct {
	ExitPosition *Position `json:"exit_position,omitempty"`
}

type PlayerActionMsg struct {
	Action string              `json:"action"`
	Data   jsoniter.RawMessage `json:"data,omitempty"`
}

// ---- Outbound (server -> client) ----
//
// Every frame carries a snake_case "type" discriminant. Positions are always
// expressed in the receiver's local frame before the frame is enqueued.

type WelcomeFrame struct {
	Type          string   `json:"type"`
	PlayerID      string   `json:"player_id"`
	SpawnPosition Position `json:"spawn_position"`
}

type OriginUpdateFrame struct {
	Type   string   `json:"type"`
	Origin Position `json:"origin"`
}

type LevelDataFrame struct {
	Type    string        `json:"type"`
	Objects []LevelObject `json:"objects"`
}

type PlayerInfo struct {
	ID         string    `json:"id"`
	Position   Position  `json:"position"`
	Rotation   *Rotation `json:"rotation,omitempty"`
	Velocity   *Velocity `json:"velocity,omitempty"`
	IsGrounded *bool     `json:"is_grounded,omitempty"`
	IsSwimming *bool     `json:"is_swimming,omitempty"`
}

type PlayersListFrame struct {
	Type    string       `json:"type"`
	Players []PlayerInfo `json:"players"`
}

type PlayerJoinedFrame struct {
	Type     string   `json:"type"`
	PlayerID string   `json:"player_id"`
	Position Position `json:"position"`
}

type PlayerLeftFrame struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
}

type PlayerStateFrame struct {
	Type       string   `json:"type"`
	PlayerID   string   `json:"player_id"`
	Position   Position `json:"position"`
	Rotation   Rotation `json:"rotation"`
	Velocity   Velocity `json:"velocity"`
	IsGrounded bool     `json:"is_grounded"`
	IsSwimming bool     `json:"is_swimming"`
}

type DynamicObjectInfo struct {
	ID       string   `json:"id"`
	Kind     string   `json:"object_type"`
	Position Position `json:"position"`
	Rotation Rotation `json:"rotation"`
	Scale    float32  `json:"scale"`
}

type DynamicObjectSpawnFrame struct {
	Type     string   `json:"type"`
	ObjectID string   `json:"object_id"`
	Kind     string   `json:"object_type"`
	Position Position `json:"position"`
	Rotation Rotation `json:"rotation"`
	Scale    float32  `json:"scale"`
}

type DynamicObjectUpdateFrame struct {
	Type     string   `json:"type"`
	ObjectID string   `json:"object_id"`
	Position Position `json:"position"`
	Rotation Rotation `json:"rotation"`
	Velocity Velocity `json:"velocity"`
}

type DynamicObjectRemoveFrame struct {
	Type     string `json:"type"`
	ObjectID string `json:"object_id"`
}

type DynamicObjectsListFrame struct {
	Type    string              `json:"type"`
	Objects []DynamicObjectInfo `json:"objects"`
}

type ObjectOwnershipGrantedFrame struct {
	Type       string `json:"type"`
	ObjectID   string `json:"object_id"`
	PlayerID   string `json:"player_id"`
	DurationMs int64  `json:"duration_ms"`
}

type ObjectOwnershipRevokedFrame struct {
	Type     string `json:"type"`
	ObjectID string `json:"object_id"`
}

type ObjectGrabbedFrame struct {
	Type     string `json:"type"`
	ObjectID string `json:"object_id"`
	PlayerID string `json:"player_id"`
}

type ObjectMovedFrame struct {
	Type     string   `json:"type"`
	ObjectID string   `json:"object_id"`
	Position Position `json:"position"`
}

type ObjectThrownFrame struct {
	Type     string   `json:"type"`
	ObjectID string   `json:"object_id"`
	PlayerID string   `json:"player_id"`
	Velocity Velocity `json:"velocity"`
}

type ObjectReleasedFrame struct {
	Type     string `json:"type"`
	ObjectID string `json:"object_id"`
	PlayerID string `json:"player_id"`
}

type GrabFailedFrame struct {
	Type     string `json:"type"`
	ObjectID string `json:"object_id"`
	Reason   string `json:"reason"`
}

type PlatformUpdateFrame struct {
	Type       string   `json:"type"`
	PlatformID string   `json:"platform_id"`
	Position   Position `json:"position"`
}

type VehicleSpawnedFrame struct {
	Type      string   `json:"type"`
	VehicleID string   `json:"vehicle_id"`
	Kind      string   `json:"vehicle_type"`
	Position  Position `json:"position"`
	Rotation  Rotation `json:"rotation"`
	Health    float32  `json:"health"`
}

type VehicleUpdateFrame struct {
	Type      string   `json:"type"`
	VehicleID string   `json:"vehicle_id"`
	Position  Position `json:"position"`
	Rotation  Rotation `json:"rotation"`
	Velocity  Velocity `json:"velocity"`
}

type VehicleDamagedFrame struct {
	Type      string  `json:"type"`
	VehicleID string  `json:"vehicle_id"`
	Health    float32 `json:"health"`
}

type VehicleDestroyedFrame struct {
	Type      string `json:"type"`
	VehicleID string `json:"vehicle_id"`
}

type PlayerEnteredVehicleFrame struct {
	Type      string `json:"type"`
	PlayerID  string `json:"player_id"`
	VehicleID string `json:"vehicle_id"`
}

type PlayerExitedVehicleFrame struct {
	Type      string   `json:"type"`
	PlayerID  string   `json:"player_id"`
	VehicleID string   `json:"vehicle_id"`
	Position  Position `json:"position"`
}

type WeaponSpawnFrame struct {
	Type       string   `json:"type"`
	WeaponID   string   `json:"weapon_id"`
	WeaponType string   `json:"weapon_type"`
	Position   Position `json:"position"`
}

type WeaponPickupFrame struct {
	Type       string `json:"type"`
	WeaponID   string `json:"weapon_id"`
	WeaponType string `json:"weapon_type"`
	PlayerID   string `json:"player_id"`
}

type WeaponFireFrame struct {
	Type       string   `json:"type"`
	PlayerID   string   `json:"player_id"`
	WeaponType string   `json:"weapon_type"`
	Origin     Position `json:"origin"`
	Direction  Vec3     `json:"direction"`
}

type ProjectileSpawnedFrame struct {
	Type         string   `json:"type"`
	ProjectileID string   `json:"projectile_id"`
	Kind         string   `json:"weapon_type"`
	OwnerID      string   `json:"owner_id"`
	Position     Position `json:"position"`
	Velocity     Velocity `json:"velocity"`
}

type ProjectileUpdateFrame struct {
	Type         string   `json:"type"`
	ProjectileID string   `json:"projectile_id"`
	Position     Position `json:"position"`
	Velocity     Velocity `json:"velocity"`
}

type ProjectileImpactFrame struct {
	Type         string   `json:"type"`
	ProjectileID string   `json:"projectile_id"`
	Position     Position `json:"position"`
	Damage       float32  `json:"damage"`
}

type ItemSpawnedFrame struct {
	Type     string   `json:"type"`
	ItemID   string   `json:"item_id"`
	ItemType string   `json:"item_type"`
	Position Position `json:"position"`
}

type ItemPickedUpFrame struct {
	Type     string `json:"type"`
	ItemID   string `json:"item_id"`
	PlayerID string `json:"player_id"`
}

type PlayerDamagedFrame struct {
	Type       string  `json:"type"`
	PlayerID   string  `json:"player_id"`
	AttackerID string  `json:"attacker_id,omitempty"`
	Damage     float32 `json:"damage"`
	Health     float32 `json:"health"`
}

type PlayerKilledFrame struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
	KillerID string `json:"killer_id,omitempty"`
}

type PlayerRespawnedFrame struct {
	Type     string   `json:"type"`
	PlayerID string   `json:"player_id"`
	Position Position `json:"position"`
	Health   float32  `json:"health"`
}

type PlayerHealthUpdateFrame struct {
	Type     string  `json:"type"`
	PlayerID string  `json:"player_id"`
	Health   float32 `json:"health"`
	Armor    float32 `json:"armor"`
}

type ExplosionCreatedFrame struct {
	Type     string   `json:"type"`
	Position Position `json:"position"`
	Radius   float32  `json:"radius"`
}

type PlayerActionFrame struct {
	Type     string              `json:"type"`
	PlayerID string              `json:"player_id"`
	Action   string              `json:"action"`
	Data     jsoniter.RawMessage `json:"data,omitempty"`
}

// Frame type discriminants for outbound messages.
const (
	FrameWelcome                = "welcome"
	FrameOriginUpdate           = "origin_update"
	FrameLevelData              = "level_data"
	FramePlayersList            = "players_list"
	FramePlayerJoined           = "player_joined"
	FramePlayerLeft             = "player_left"
	FramePlayerState            = "player_state"
	FrameDynamicObjectSpawn     = "dynamic_object_spawn"
	FrameDynamicObjectUpdate    = "dynamic_object_update"
	FrameDynamicObjectRemove    = "dynamic_object_remove"
	FrameDynamicObjectsList     = "dynamic_objects_list"
	FrameObjectOwnershipGranted = "object_ownership_granted"
	FrameObjectOwnershipRevoked = "object_ownership_revoked"
	FrameObjectGrabbed          = "object_grabbed"
	FrameObjectMoved            = "object_moved"
	FrameObjectThrown           = "object_thrown"
	FrameObjectReleased         = "object_released"
	FrameGrabFailed             = "grab_failed"
	FramePlatformUpdate         = "platform_update"
	FrameVehicleSpawned         = "vehicle_spawned"
	FrameVehicleUpdate          = "vehicle_update"
	FrameVehicleDamaged         = "vehicle_damaged"
	FrameVehicleDestroyed       = "vehicle_destroyed"
	FramePlayerEnteredVehicle   = "player_entered_vehicle"
	FramePlayerExitedVehicle    = "player_exited_vehicle"
	FrameWeaponSpawn            = "weapon_spawn"
	FrameWeaponPickup           = "weapon_pickup"
	FrameWeaponFire             = "weapon_fire"
	FrameProjectileSpawned      = "projectile_spawned"
	FrameProjectileUpdate       = "projectile_update"
	FrameProjectileImpact       = "projectile_impact"
	FrameItemSpawned            = "item_spawned"
	FrameItemPickedUp           = "item_picked_up"
	FrameItemRespawned          = "item_respawned"
	FramePlayerDamaged          = "player_damaged"
	FramePlayerKilled           = "player_killed"
	FramePlayerRespawned        = "player_respawned"
	FramePlayerHealthUpdate     = "player_health_update"
	FrameExplosionCreated       = "explosion_created"
	FramePlayerAction           = "player_action"
)
