package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// InputProcessor decodes inbound frames and dispatches them to handlers.
// Each handler acquires the minimum store access it needs and either mutates
// entity state directly or stages physics work for the next tick.
type InputProcessor struct {
	gs  *GameState
	log zerolog.Logger
}

func NewInputProcessor(gs *GameState, log zerolog.Logger) *InputProcessor {
	return &InputProcessor{gs: gs, log: log}
}

// ProcessMessage routes one inbound text frame. Malformed frames are logged
// and dropped; the session continues.
func (ip *InputProcessor) ProcessMessage(player *Player, data []byte) {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		ip.log.Warn().Err(err).Str("player", player.ID.String()).Msg("malformed frame")
		return
	}

	switch env.Type {
	case MsgPlayerUpdate:
		var msg PlayerUpdateMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			ip.log.Warn().Err(err).Msg("malformed player_update")
			return
		}
		ip.handlePlayerUpdate(player, &msg)
	case MsgDynamicObjectUpdate:
		// Server-authoritative; client object updates are ignored.
	case MsgPushObject:
		var msg PushObjectMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		ip.handlePushObject(player, &msg)
	case MsgGrabObject:
		var msg GrabObjectMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		ip.handleGrabObject(player, &msg)
	case MsgMoveGrabbedObject:
		var msg MoveGrabbedObjectMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		ip.handleMoveGrabbed(player, &msg)
	case MsgReleaseObject:
		var msg ReleaseObjectMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		ip.handleReleaseObject(player, &msg)
	case MsgThrowObject:
		var msg ThrowObjectMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		ip.handleThrowObject(player, &msg)
	case MsgFireWeapon:
		var msg FireWeaponMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		ip.handleFireWeapon(player, &msg)
	case MsgPickupItem:
		var msg PickupItemMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		ip.handlePickupItem(player, &msg)
	case MsgRequestRespawn:
		ip.handleRequestRespawn(player)
	case MsgEnterVehicle:
		var msg EnterVehicleMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		ip.handleEnterVehicle(player, &msg)
	case MsgExitVehicle:
		var msg ExitVehicleMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		ip.handleExitVehicle(player, &msg)
	case MsgPlayerAction:
		var msg PlayerActionMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		ip.handlePlayerAction(player, &msg)
	default:
		ip.log.Debug().Str("type", env.Type).Msg("unknown message type")
	}
}

func (ip *InputProcessor) handlePlayerUpdate(player *Player, msg *PlayerUpdateMsg) {
	gs := ip.gs
	recentered := player.UpdateState(msg)
	if recentered {
		origin := player.Origin()
		gs.sessions.SendTo(player.ID, OriginUpdateFrame{
			Type:   FrameOriginUpdate,
			Origin: Position{float32(origin.X()), float32(origin.Y()), float32(origin.Z())},
		})
	}

	// Fan the state out to everyone else, translated per receiver. The
	// swimming flag is the server-verified one, not the client's claim.
	world := player.WorldPosition()
	inVehicle := player.VehicleID() != ""
	swimming := player.Swimming()
	gs.sessions.BroadcastBuilt(player.ID, func(s *Session) any {
		pos := msg.Position
		if !inVehicle {
			pos = posFromVec(toLocal(world, gs.receiverOrigin(s.PlayerID)))
		}
		return PlayerStateFrame{
			Type:       FramePlayerState,
			PlayerID:   player.ID.String(),
			Position:   pos,
			Rotation:   msg.Rotation,
			Velocity:   msg.Velocity,
			IsGrounded: msg.IsGrounded,
			IsSwimming: swimming,
		}
	})
}

// handlePushObject implements the push protocol: a push needs a live lease;
// a participant without one is granted a 5 s lease unless another lease is
// live, in which case the push is refused silently.
func (ip *InputProcessor) handlePushObject(player *Player, msg *PushObjectMsg) {
	gs := ip.gs
	now := time.Now()

	obj, ok := gs.objects.Get(msg.ObjectID)
	if !ok {
		return
	}
	obj.mu.Lock()
	grabbed := obj.Grab != nil
	body := obj.Body
	obj.mu.Unlock()
	if grabbed {
		return
	}

	if !gs.objects.CheckOwnership(msg.ObjectID, player.ID, now) {
		if !gs.objects.RequestOwnership(msg.ObjectID, player.ID, now) {
			return
		}
		gs.sessions.SendTo(player.ID, ObjectOwnershipGrantedFrame{
			Type:       FrameObjectOwnershipGranted,
			ObjectID:   msg.ObjectID,
			PlayerID:   player.ID.String(),
			DurationMs: pushLeaseDuration.Milliseconds(),
		})
	}

	gs.physics.QueuePush(body, msg.Force.Vec(), msg.Point.Vec())
}

func (ip *InputProcessor) handleGrabObject(player *Player, msg *GrabObjectMsg) {
	gs := ip.gs
	if !gs.objects.Has(msg.ObjectID) {
		gs.sessions.SendTo(player.ID, GrabFailedFrame{
			Type:     FrameGrabFailed,
			ObjectID: msg.ObjectID,
			Reason:   "unknown object",
		})
		return
	}
	ok, reason := gs.objects.TryGrab(msg.ObjectID, player.ID, msg.GrabPoint.Vec(), time.Now())
	if !ok {
		gs.sessions.SendTo(player.ID, GrabFailedFrame{
			Type:     FrameGrabFailed,
			ObjectID: msg.ObjectID,
			Reason:   reason,
		})
		return
	}
	gs.sessions.BroadcastToAll(ObjectGrabbedFrame{
		Type:     FrameObjectGrabbed,
		ObjectID: msg.ObjectID,
		PlayerID: player.ID.String(),
	})
}

func (ip *InputProcessor) handleMoveGrabbed(player *Player, msg *MoveGrabbedObjectMsg) {
	gs := ip.gs
	// The target arrives in the sender's local frame.
	world := worldPosition(player.Origin(), msg.TargetPosition.Vec())
	if !gs.objects.MoveGrabbed(msg.ObjectID, player.ID, vec32(world), time.Now()) {
		return
	}
	gs.sessions.BroadcastBuilt(uuid.Nil, func(s *Session) any {
		return ObjectMovedFrame{
			Type:     FrameObjectMoved,
			ObjectID: msg.ObjectID,
			Position: posFromVec(toLocal(world, gs.receiverOrigin(s.PlayerID))),
		}
	})
}

func (ip *InputProcessor) handleReleaseObject(player *Player, msg *ReleaseObjectMsg) {
	gs := ip.gs
	if !gs.objects.Release(msg.ObjectID, player.ID) {
		return
	}
	gs.sessions.BroadcastToAll(ObjectReleasedFrame{
		Type:     FrameObjectReleased,
		ObjectID: msg.ObjectID,
		PlayerID: player.ID.String(),
	})
}

func (ip *InputProcessor) handleThrowObject(player *Player, msg *ThrowObjectMsg) {
	gs := ip.gs
	if !gs.objects.Throw(msg.ObjectID, player.ID, msg.ThrowForce.Vec()) {
		return
	}
	gs.sessions.BroadcastToAll(ObjectThrownFrame{
		Type:     FrameObjectThrown,
		ObjectID: msg.ObjectID,
		PlayerID: player.ID.String(),
		Velocity: Velocity{msg.ThrowForce.X, msg.ThrowForce.Y, msg.ThrowForce.Z},
	})
}

// handleFireWeapon arbitrates weapon fire server-side. Hitscan kinds resolve
// reported hits immediately against the stats table; ballistic kinds spawn a
// tracked projectile.
func (ip *InputProcessor) handleFireWeapon(player *Player, msg *FireWeaponMsg) {
	gs := ip.gs
	if player.Dead() {
		return
	}
	now := time.Now()
	spec := weaponSpecFor(msg.WeaponType)

	origin := worldPosition(player.Origin(), msg.Origin.Vec())

	gs.sessions.BroadcastBuilt(player.ID, func(s *Session) any {
		return WeaponFireFrame{
			Type:       FrameWeaponFire,
			PlayerID:   player.ID.String(),
			WeaponType: msg.WeaponType,
			Origin:     posFromVec(toLocal(origin, gs.receiverOrigin(s.PlayerID))),
			Direction:  msg.Direction,
		}
	})

	if spec.ballistic {
		var target uuid.UUID
		if msg.HitPlayerID != "" {
			if id, err := uuid.Parse(msg.HitPlayerID); err == nil {
				target = id
			}
		}
		gs.tickMu.Lock()
		proj := gs.projectiles.Spawn(gs.physics, player.ID, msg.WeaponType, vec32(origin), msg.Direction.Vec(), target)
		gs.tickMu.Unlock()
		gs.sessions.BroadcastBuilt(uuid.Nil, func(s *Session) any {
			return ProjectileSpawnedFrame{
				Type:         FrameProjectileSpawned,
				ProjectileID: proj.ID,
				Kind:         proj.Kind,
				OwnerID:      player.ID.String(),
				Position:     posFromVec(toLocal(vec64(proj.Position), gs.receiverOrigin(s.PlayerID))),
				Velocity:     velFromVec(proj.Velocity),
			}
		})
		// A reported hit resolves now; the impact frame echoes the damage
		// when the projectile is removed.
		if ip.resolveReportedHit(player, msg, spec, now) {
			proj.HitDamage = spec.damage
		}
		return
	}

	ip.resolveReportedHit(player, msg, spec, now)
}

// resolveReportedHit applies server-side damage for a client-reported hit:
// direct player and vehicle hits use the stats table, and explosive kinds
// detonate at the reported hit point. Returns true iff any hit was reported.
func (ip *InputProcessor) resolveReportedHit(player *Player, msg *FireWeaponMsg, spec weaponSpec, now time.Time) bool {
	gs := ip.gs
	hit := false
	if msg.HitPlayerID != "" {
		if id, err := uuid.Parse(msg.HitPlayerID); err == nil {
			if target, ok := gs.players.Load(id); ok && !target.Dead() {
				gs.DamagePlayer(target, spec.damage, player.ID)
				hit = true
			}
		}
	}
	if msg.HitObjectID != "" {
		if _, ok := gs.vehicles.Get(msg.HitObjectID); ok {
			gs.DamageVehicle(msg.HitObjectID, spec.damage, now)
			hit = true
		}
	}
	if spec.explosionRadius > 0 && msg.HitPoint != nil {
		point := worldPosition(player.Origin(), msg.HitPoint.Vec())
		gs.ExplodeAt(point, spec.explosionRadius, spec.damage, player.ID, now)
		hit = true
	}
	return hit
}

func (ip *InputProcessor) handlePickupItem(player *Player, msg *PickupItemMsg) {
	gs := ip.gs
	if player.Dead() {
		return
	}
	weaponType, ok := gs.spawns.Pickup(msg.ItemID, time.Now())
	if !ok {
		return
	}
	gs.sessions.BroadcastToAll(WeaponPickupFrame{
		Type:       FrameWeaponPickup,
		WeaponID:   msg.ItemID,
		WeaponType: weaponType,
		PlayerID:   player.ID.String(),
	})
	gs.sessions.BroadcastToAll(ItemPickedUpFrame{
		Type:     FrameItemPickedUp,
		ItemID:   msg.ItemID,
		PlayerID: player.ID.String(),
	})
}

func (ip *InputProcessor) handleRequestRespawn(player *Player) {
	gs := ip.gs
	if !player.CanRespawn(time.Now()) {
		return
	}
	spawn := gs.spawns.RandomPlayerSpawn()
	player.Respawn(spawn)
	world := vec64(spawn)
	gs.sessions.BroadcastBuilt(uuid.Nil, func(s *Session) any {
		return PlayerRespawnedFrame{
			Type:     FramePlayerRespawned,
			PlayerID: player.ID.String(),
			Position: posFromVec(toLocal(world, gs.receiverOrigin(s.PlayerID))),
			Health:   player.MaxHealth,
		}
	})
}

func (ip *InputProcessor) handleEnterVehicle(player *Player, msg *EnterVehicleMsg) {
	gs := ip.gs
	if player.Dead() || player.VehicleID() != "" {
		return
	}
	_, ok := gs.vehicles.Enter(msg.VehicleID, player.ID)
	if !ok {
		return
	}
	player.SetVehicle(msg.VehicleID)
	gs.sessions.BroadcastToAll(PlayerEnteredVehicleFrame{
		Type:      FramePlayerEnteredVehicle,
		PlayerID:  player.ID.String(),
		VehicleID: msg.VehicleID,
	})
}

func (ip *InputProcessor) handleExitVehicle(player *Player, msg *ExitVehicleMsg) {
	gs := ip.gs
	vehicleID := player.VehicleID()
	if vehicleID == "" {
		return
	}
	vehicle, ok := gs.vehicles.Exit(vehicleID, player.ID)
	if !ok {
		return
	}
	player.ClearVehicle()

	exitWorld := vec64(vehicle.ExitPosition())
	if msg.ExitPosition != nil {
		exitWorld = worldPosition(player.Origin(), msg.ExitPosition.Vec())
	}
	player.PlaceAt(exitWorld)

	gs.sessions.BroadcastBuilt(uuid.Nil, func(s *Session) any {
		return PlayerExitedVehicleFrame{
			Type:      FramePlayerExitedVehicle,
			PlayerID:  player.ID.String(),
			VehicleID: vehicleID,
			Position:  posFromVec(toLocal(exitWorld, gs.receiverOrigin(s.PlayerID))),
		}
	})
}

func (ip *InputProcessor) handlePlayerAction(player *Player, msg *PlayerActionMsg) {
	// Generic passthrough, fanned out to everyone else.
	ip.gs.sessions.BroadcastExcept(player.ID, PlayerActionFrame{
		Type:     FramePlayerAction,
		PlayerID: player.ID.String(),
		Action:   msg.Action,
		Data:     msg.Data,
	})
}
