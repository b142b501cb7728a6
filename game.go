package main

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"
)

const (
	tickInterval = 16 * time.Millisecond
	// Bodies this far from the gravity center have left the simulation.
	simulationBounds = 5000.0
)

// GameState is the shared entity store plus the tick loop that drives it.
//
// Locking discipline: tickMu is the coarse guard for the physics phase; the
// engine is only ever touched while it is held. Session handlers mutate
// individual entities through their own mutexes and stage physics work as
// pending records consumed at the start of the next tick.
type GameState struct {
	log zerolog.Logger

	sessions    *SessionRegistry
	players     *xsync.Map[uuid.UUID, *Player]
	objects     *DynamicObjectManager
	vehicles    *VehicleManager
	projectiles *ProjectileManager
	spawns      *SpawnManager
	physics     *PhysicsBridge
	level       *Level

	tickMu    sync.Mutex
	tick      uint64
	startTime time.Time
}

func NewGameState(log zerolog.Logger, level *Level) *GameState {
	gs := &GameState{
		log:         log,
		sessions:    NewSessionRegistry(),
		players:     xsync.NewMap[uuid.UUID, *Player](),
		objects:     NewDynamicObjectManager(),
		vehicles:    NewVehicleManager(),
		projectiles: NewProjectileManager(),
		spawns:      NewSpawnManager(),
		physics:     NewPhysicsBridge(),
		level:       level,
		startTime:   time.Now(),
	}

	level.BuildPhysics(gs.physics)
	gs.spawns.InitializeFromLevel(level)
	gs.seedVehicles()

	log.Info().
		Int("level_objects", len(level.Objects)).
		Int("bodies", len(gs.physics.Engine().bodies)).
		Msg("game state initialized")
	return gs
}

// seedVehicles creates the boot-time vehicle fleet from the level's vehicle
// spawn points.
func (gs *GameState) seedVehicles() {
	for _, sp := range gs.spawns.VehicleSpawnPoints() {
		id := sp.ID + "_" + uuid.NewString()
		body, collider := gs.physics.CreateVehicleBody(sp.Kind, vec32(sp.Position), sp.Rotation)
		gs.vehicles.Spawn(id, sp.Kind, sp.Position, sp.Rotation, body, collider)
	}
}

// ---- Participant lifecycle ----

// AddPlayer creates the participant, its kinematic capsule, and registers it.
func (gs *GameState) AddPlayer(id uuid.UUID) *Player {
	spawn := gs.level.JoinSpawnPosition()
	player := NewPlayer(id, spawn)

	gs.tickMu.Lock()
	player.Body, player.Collider = gs.physics.CreatePlayerBody(spawn)
	gs.tickMu.Unlock()

	gs.players.Store(id, player)
	return player
}

// RemovePlayer tears a participant down: physics body removed, every grab
// and lease force-released. Returns the ids of objects that were released.
func (gs *GameState) RemovePlayer(id uuid.UUID) []string {
	released := gs.objects.ForceReleaseAll(id)

	player, ok := gs.players.LoadAndDelete(id)
	if !ok {
		return released
	}
	gs.tickMu.Lock()
	gs.physics.RemoveBody(player.Body)
	gs.tickMu.Unlock()
	return released
}

func (gs *GameState) Player(id uuid.UUID) (*Player, bool) { return gs.players.Load(id) }

// receiverOrigin resolves a session's anchor for outbound translation.
func (gs *GameState) receiverOrigin(id uuid.UUID) mgl64.Vec3 {
	if p, ok := gs.players.Load(id); ok {
		return p.Origin()
	}
	return mgl64.Vec3{}
}

// SpawnJoinRock drops the greeting rock above a fresh participant's spawn
// with a randomized scale and spin, and announces it to everyone.
func (gs *GameState) SpawnJoinRock(spawn mgl32.Vec3) *DynamicObject {
	pos := mgl64.Vec3{
		float64(spawn.X()) + (-10 + rand.Float64()*20),
		float64(spawn.Y()) + 20,
		float64(spawn.Z()) + (-10 + rand.Float64()*20),
	}
	rot := mgl32.AnglesToQuat(
		rand.Float32()*2*math32.Pi,
		rand.Float32()*2*math32.Pi,
		rand.Float32()*2*math32.Pi,
		mgl32.XYZ,
	)
	scale := 0.8 + rand.Float32()*0.4

	gs.tickMu.Lock()
	body, collider := gs.physics.CreateRockBody(vec32(pos), rot, scale)
	gs.tickMu.Unlock()

	obj := gs.objects.SpawnRock(pos, body, collider, scale)
	gs.broadcastObjectSpawn(obj)
	return obj
}

func (gs *GameState) broadcastObjectSpawn(obj *DynamicObject) {
	gs.sessions.BroadcastBuilt(uuid.Nil, func(s *Session) any {
		info := obj.Info(gs.receiverOrigin(s.PlayerID))
		return DynamicObjectSpawnFrame{
			Type:     FrameDynamicObjectSpawn,
			ObjectID: info.ID,
			Kind:     info.Kind,
			Position: info.Position,
			Rotation: info.Rotation,
			Scale:    info.Scale,
		}
	})
}

// ---- Damage ----

// DamagePlayer routes damage through the armor/health invariants and emits
// the resulting frames.
func (gs *GameState) DamagePlayer(target *Player, damage float32, attacker uuid.UUID) {
	health, killed := target.TakeDamage(damage)
	attackerID := ""
	if attacker != uuid.Nil {
		attackerID = attacker.String()
	}
	gs.sessions.BroadcastToAll(PlayerDamagedFrame{
		Type:       FramePlayerDamaged,
		PlayerID:   target.ID.String(),
		AttackerID: attackerID,
		Damage:     damage,
		Health:     health,
	})
	if killed {
		gs.sessions.BroadcastToAll(PlayerKilledFrame{
			Type:     FramePlayerKilled,
			PlayerID: target.ID.String(),
			KillerID: attackerID,
		})
		return
	}
	gs.sessions.SendTo(target.ID, PlayerHealthUpdateFrame{
		Type:     FramePlayerHealthUpdate,
		PlayerID: target.ID.String(),
		Health:   health,
		Armor:    target.ArmorValue(),
	})
}

// DamageVehicle applies vehicle damage and handles the destroyed sub-state:
// pilot ejected, respawn clock armed, frames emitted.
func (gs *GameState) DamageVehicle(id string, damage float32, now time.Time) {
	health, destroyed, pilot, ok := gs.vehicles.Damage(id, damage, now)
	if !ok {
		return
	}
	if !destroyed {
		gs.sessions.BroadcastToAll(VehicleDamagedFrame{
			Type:      FrameVehicleDamaged,
			VehicleID: id,
			Health:    health,
		})
		return
	}
	if pilot != uuid.Nil {
		if p, found := gs.players.Load(pilot); found {
			p.ClearVehicle()
		}
	}
	gs.sessions.BroadcastToAll(VehicleDestroyedFrame{
		Type:      FrameVehicleDestroyed,
		VehicleID: id,
	})
}

// ExplodeAt applies radial damage with linear falloff and announces the
// explosion.
func (gs *GameState) ExplodeAt(center mgl64.Vec3, radius, damage float32, attacker uuid.UUID, now time.Time) {
	if radius <= 0 {
		return
	}
	gs.players.Range(func(_ uuid.UUID, p *Player) bool {
		dist := float32(p.WorldPosition().Sub(center).Len())
		if dist < radius {
			gs.DamagePlayer(p, damage*(1-dist/radius), attacker)
		}
		return true
	})
	gs.vehicles.Range(func(v *Vehicle) bool {
		dist := float32(v.WorldPosition().Sub(center).Len())
		if dist < radius {
			gs.DamageVehicle(v.ID, damage*(1-dist/radius), now)
		}
		return true
	})
	gs.sessions.BroadcastBuilt(uuid.Nil, func(s *Session) any {
		return ExplosionCreatedFrame{
			Type:     FrameExplosionCreated,
			Position: posFromVec(toLocal(center, gs.receiverOrigin(s.PlayerID))),
			Radius:   radius,
		}
	})
}

// ---- Tick loop ----

// RunTickLoop drives the fixed 16 ms simulation until the context ends.
func (gs *GameState) RunTickLoop(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gs.Tick(time.Now())
		}
	}
}

// Tick runs one simulation step: drain staged input, sweep leases and TTLs,
// retarget platforms, step physics, read back transforms, advance
// projectiles, run the spawn and respawn sweeps, then broadcast at the
// 30 Hz / 20 Hz sub-cadences.
func (gs *GameState) Tick(now time.Time) {
	gs.tickMu.Lock()

	// 1. Staged mutations from session tasks.
	gs.physics.DrainPushes()
	gs.applyPendingObjectOps()
	gs.applyPlayerBodyTargets()

	// 2. Lease expiry and object TTL eviction.
	revoked := gs.objects.ExpireSweep(now)
	evicted := gs.objects.EvictExpired(now)
	for _, obj := range evicted {
		gs.physics.RemoveBody(obj.Body)
	}

	// 3. Kinematic platforms.
	elapsed := now.Sub(gs.startTime).Seconds()
	gs.physics.UpdateMovingPlatforms(elapsed)

	// 4. Physics.
	gs.physics.PreStep()
	gs.physics.Step()

	// 5. Read back transforms.
	fallers := gs.readBackTransforms()
	gs.verifySwimming()

	// 6. Projectiles.
	expired := gs.projectiles.Advance(gs.physics, now, float32(tickInterval.Seconds()), gs.homingTargetPosition)
	for _, p := range expired {
		gs.physics.RemoveBody(p.Body)
	}

	// 7. Spawn sweeps.
	weaponRespawns := gs.spawns.Sweep(now)
	vehicleRespawns := gs.vehicles.SweepRespawns(now)
	for _, v := range vehicleRespawns {
		gs.physics.RemoveBody(v.Body)
		v.Body, v.Collider = gs.physics.CreateVehicleBody(v.Kind, vec32(v.SpawnPosition), v.SpawnRotation)
	}

	gs.tickMu.Unlock()

	gs.tick++

	// Broadcasts happen outside the guard; they only read snapshots.
	for _, id := range revoked {
		gs.sessions.BroadcastToAll(ObjectOwnershipRevokedFrame{Type: FrameObjectOwnershipRevoked, ObjectID: id})
	}
	for _, obj := range append(evicted, fallers...) {
		gs.sessions.BroadcastToAll(DynamicObjectRemoveFrame{Type: FrameDynamicObjectRemove, ObjectID: obj.ID})
	}
	for _, p := range expired {
		// Zero damage unless the firing client reported a hit.
		gs.broadcastProjectileImpact(p, p.HitDamage)
	}
	for _, wr := range weaponRespawns {
		gs.broadcastWeaponSpawn(wr)
	}
	for _, v := range vehicleRespawns {
		gs.broadcastVehicleSpawned(v)
	}

	if gs.tick%2 == 0 {
		gs.broadcastDynamicState()
	}
	if gs.tick%3 == 0 {
		gs.broadcastPlatforms()
	}

	if gs.tick%60 == 0 {
		gs.log.Debug().
			Int("players", gs.players.Size()).
			Int("objects", gs.objects.Size()).
			Int("projectiles", gs.projectiles.Size()).
			Msg("tick")
	}
}

// applyPendingObjectOps applies queued body-type transitions, kinematic
// targets and release velocities recorded on dynamic objects.
func (gs *GameState) applyPendingObjectOps() {
	engine := gs.physics.Engine()
	gs.objects.Range(func(obj *DynamicObject) bool {
		p := obj.drainPending()
		if obj.Body == NoHandle {
			return true
		}
		if p.bodyType != nil {
			engine.SetBodyType(obj.Body, *p.bodyType)
		}
		if p.kinematic != nil {
			engine.SetNextKinematicTranslation(obj.Body, *p.kinematic)
		}
		if p.linvel != nil {
			engine.SetLinvel(obj.Body, *p.linvel)
		}
		if p.angvel != nil {
			engine.SetAngvel(obj.Body, *p.angvel)
		}
		return true
	})
}

func (gs *GameState) applyPlayerBodyTargets() {
	engine := gs.physics.Engine()
	gs.players.Range(func(_ uuid.UUID, p *Player) bool {
		if target, ok := p.takeBodyTarget(); ok && p.Body != NoHandle {
			engine.SetNextKinematicTranslation(p.Body, target)
		}
		return true
	})
}

// readBackTransforms copies physics results into the store. Bodies that fell
// out of simulation bounds are removed and returned.
func (gs *GameState) readBackTransforms() []*DynamicObject {
	var fallers []*DynamicObject
	center := vec64(gs.physics.gravityCenter)

	gs.objects.Range(func(obj *DynamicObject) bool {
		pos, rot, vel, ok := gs.physics.BodyState(obj.Body)
		if !ok {
			// Handle missing: skip this object's physics work this tick.
			return true
		}
		gs.objects.UpdateFromPhysics(obj.ID, pos, rot, vel)
		if vec64(pos).Sub(center).Len() > simulationBounds {
			if _, removed := gs.objects.Remove(obj.ID); removed {
				gs.physics.RemoveBody(obj.Body)
				fallers = append(fallers, obj)
			}
		}
		return true
	})

	gs.vehicles.Range(func(v *Vehicle) bool {
		if v.Destroyed() {
			return true
		}
		pos, rot, vel, ok := gs.physics.BodyState(v.Body)
		if !ok {
			return true
		}
		gs.vehicles.UpdateFromPhysics(v.ID, pos, rot, vel)
		return true
	})
	return fallers
}

// verifySwimming runs the server-side point-in-water test for every player.
func (gs *GameState) verifySwimming() {
	gs.players.Range(func(_ uuid.UUID, p *Player) bool {
		p.SetSwimming(gs.physics.IsPositionInWater(vec32(p.WorldPosition())))
		return true
	})
}

func (gs *GameState) homingTargetPosition(id uuid.UUID) (mgl32.Vec3, bool) {
	p, ok := gs.players.Load(id)
	if !ok {
		return mgl32.Vec3{}, false
	}
	return vec32(p.WorldPosition()), true
}

// ---- Broadcast fan-out ----

func (gs *GameState) broadcastDynamicState() {
	type objectSnap struct {
		id    string
		world mgl64.Vec3
		rot   Rotation
		vel   Velocity
	}
	var objectSnaps []objectSnap
	gs.objects.Range(func(obj *DynamicObject) bool {
		obj.mu.Lock()
		objectSnaps = append(objectSnaps, objectSnap{
			id:    obj.ID,
			world: worldPosition(obj.WorldOrigin, obj.LocalPosition),
			rot:   rotFromQuat(obj.Rotation),
			vel:   velFromVec(obj.Velocity),
		})
		obj.mu.Unlock()
		return true
	})

	var vehicleSnaps []objectSnap
	gs.vehicles.Range(func(v *Vehicle) bool {
		if v.Destroyed() {
			return true
		}
		v.mu.Lock()
		vehicleSnaps = append(vehicleSnaps, objectSnap{
			id:    v.ID,
			world: worldPosition(v.WorldOrigin, v.LocalPosition),
			rot:   rotFromQuat(v.Rotation),
			vel:   velFromVec(v.Velocity),
		})
		v.mu.Unlock()
		return true
	})

	var projectileSnaps []objectSnap
	gs.projectiles.Range(func(p *Projectile) bool {
		projectileSnaps = append(projectileSnaps, objectSnap{
			id:    p.ID,
			world: vec64(p.Position),
			vel:   velFromVec(p.Velocity),
		})
		return true
	})

	gs.sessions.Range(func(s *Session) bool {
		origin := gs.receiverOrigin(s.PlayerID)
		for _, snap := range objectSnaps {
			s.Send(DynamicObjectUpdateFrame{
				Type:     FrameDynamicObjectUpdate,
				ObjectID: snap.id,
				Position: posFromVec(toLocal(snap.world, origin)),
				Rotation: snap.rot,
				Velocity: snap.vel,
			})
		}
		for _, snap := range vehicleSnaps {
			s.Send(VehicleUpdateFrame{
				Type:      FrameVehicleUpdate,
				VehicleID: snap.id,
				Position:  posFromVec(toLocal(snap.world, origin)),
				Rotation:  snap.rot,
				Velocity:  snap.vel,
			})
		}
		for _, snap := range projectileSnaps {
			s.Send(ProjectileUpdateFrame{
				Type:         FrameProjectileUpdate,
				ProjectileID: snap.id,
				Position:     posFromVec(toLocal(snap.world, origin)),
				Velocity:     snap.vel,
			})
		}
		return true
	})
}

func (gs *GameState) broadcastPlatforms() {
	states := gs.physics.PlatformStates()
	if len(states) == 0 {
		return
	}
	gs.sessions.Range(func(s *Session) bool {
		origin := gs.receiverOrigin(s.PlayerID)
		for _, st := range states {
			s.Send(PlatformUpdateFrame{
				Type:       FramePlatformUpdate,
				PlatformID: st.ID,
				Position:   posFromVec(toLocal(vec64(st.Position), origin)),
			})
		}
		return true
	})
}

func (gs *GameState) broadcastWeaponSpawn(wr WeaponRespawn) {
	gs.sessions.BroadcastBuilt(uuid.Nil, func(s *Session) any {
		return WeaponSpawnFrame{
			Type:       FrameWeaponSpawn,
			WeaponID:   wr.WeaponID,
			WeaponType: wr.WeaponType,
			Position:   posFromVec(toLocal(wr.Position, gs.receiverOrigin(s.PlayerID))),
		}
	})
}

func (gs *GameState) broadcastVehicleSpawned(v *Vehicle) {
	world := v.WorldPosition()
	v.mu.Lock()
	rot := rotFromQuat(v.Rotation)
	health := v.Health
	kind := v.Kind
	v.mu.Unlock()
	gs.sessions.BroadcastBuilt(uuid.Nil, func(s *Session) any {
		return VehicleSpawnedFrame{
			Type:      FrameVehicleSpawned,
			VehicleID: v.ID,
			Kind:      kind,
			Position:  posFromVec(toLocal(world, gs.receiverOrigin(s.PlayerID))),
			Rotation:  rot,
			Health:    health,
		}
	})
}

func (gs *GameState) broadcastProjectileImpact(p *Projectile, damage float32) {
	world := vec64(p.Position)
	gs.sessions.BroadcastBuilt(uuid.Nil, func(s *Session) any {
		return ProjectileImpactFrame{
			Type:         FrameProjectileImpact,
			ProjectileID: p.ID,
			Position:     posFromVec(toLocal(world, gs.receiverOrigin(s.PlayerID))),
			Damage:       damage,
		}
	})
}
