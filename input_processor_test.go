package main

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// attachTestSession registers a session without a live websocket; frames pile
// up in the outbound queue where tests can inspect them.
func attachTestSession(gs *GameState, id uuid.UUID) *Session {
	s := NewSession(id, nil, zerolog.Nop())
	gs.sessions.Add(s)
	return s
}

// queuedFrames decodes every frame currently sitting in a session's queue.
func queuedFrames(t *testing.T, s *Session) []map[string]any {
	t.Helper()
	s.queue.mu.Lock()
	defer s.queue.mu.Unlock()
	out := make([]map[string]any, 0, len(s.queue.frames))
	for _, raw := range s.queue.frames {
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		out = append(out, decoded)
	}
	return out
}

func frameTypes(frames []map[string]any) []string {
	types := make([]string, len(frames))
	for i, f := range frames {
		types[i], _ = f["type"].(string)
	}
	return types
}

func TestMalformedFrameIsDropped(t *testing.T) {
	gs := newTestGame(t)
	ip := NewInputProcessor(gs, zerolog.Nop())
	player := gs.AddPlayer(newTestUUID(t))

	assert.NotPanics(t, func() {
		ip.ProcessMessage(player, []byte("{not json"))
		ip.ProcessMessage(player, []byte(`{"type":"no_such_kind"}`))
		ip.ProcessMessage(player, []byte(`{"type":"push_object","force":"bad"}`))
	})
}

func TestPlayerUpdateBroadcastsTranslatedState(t *testing.T) {
	gs := newTestGame(t)
	ip := NewInputProcessor(gs, zerolog.Nop())

	a := gs.AddPlayer(newTestUUID(t))
	attachTestSession(gs, a.ID)
	b := gs.AddPlayer(newTestUUID(t))
	sb := attachTestSession(gs, b.ID)

	raw, err := json.Marshal(map[string]any{
		"type":     MsgPlayerUpdate,
		"position": Position{100, 0, 0},
		"rotation": identRotation(),
		"velocity": Velocity{},
	})
	require.NoError(t, err)
	ip.ProcessMessage(a, raw)

	frames := queuedFrames(t, sb)
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	assert.Equal(t, FramePlayerState, last["type"])
	pos := last["position"].(map[string]any)
	assert.InDelta(t, 100.0, pos["x"].(float64), 1e-3)
}

func TestRecenterEmitsOriginUpdateOnlyToMover(t *testing.T) {
	gs := newTestGame(t)
	ip := NewInputProcessor(gs, zerolog.Nop())

	a := gs.AddPlayer(newTestUUID(t))
	sa := attachTestSession(gs, a.ID)
	b := gs.AddPlayer(newTestUUID(t))
	sb := attachTestSession(gs, b.ID)

	raw, err := json.Marshal(map[string]any{
		"type":     MsgPlayerUpdate,
		"position": Position{1100, 0, 0},
		"rotation": identRotation(),
		"velocity": Velocity{},
	})
	require.NoError(t, err)
	ip.ProcessMessage(a, raw)

	assert.Contains(t, frameTypes(queuedFrames(t, sa)), FrameOriginUpdate)
	assert.NotContains(t, frameTypes(queuedFrames(t, sb)), FrameOriginUpdate)

	// B still observes A's true world position.
	frames := queuedFrames(t, sb)
	last := frames[len(frames)-1]
	require.Equal(t, FramePlayerState, last["type"])
	pos := last["position"].(map[string]any)
	assert.InDelta(t, 1100.0, pos["x"].(float64), 1e-3)
}

func TestPushGrantsLeaseAndQueues(t *testing.T) {
	gs := newTestGame(t)
	ip := NewInputProcessor(gs, zerolog.Nop())

	a := gs.AddPlayer(newTestUUID(t))
	sa := attachTestSession(gs, a.ID)
	b := gs.AddPlayer(newTestUUID(t))
	sb := attachTestSession(gs, b.ID)
	rock := gs.SpawnJoinRock(gs.level.JoinSpawnPosition())

	push := func(p *Player) []byte {
		raw, err := json.Marshal(map[string]any{
			"type":      MsgPushObject,
			"object_id": rock.ID,
			"force":     Vec3{1, 0, 0},
			"point":     Vec3{},
		})
		require.NoError(t, err)
		return raw
	}

	ip.ProcessMessage(a, push(a))
	assert.Contains(t, frameTypes(queuedFrames(t, sa)), FrameObjectOwnershipGranted)

	// B's contending push is refused silently.
	before := len(queuedFrames(t, sb))
	ip.ProcessMessage(b, push(b))
	assert.Len(t, queuedFrames(t, sb), before)

	// The winner's impulse lands on the next tick.
	gs.Tick(time.Now())
	body := gs.physics.Engine().Body(rock.Body)
	require.NotNil(t, body)
	assert.Greater(t, body.linvel.X(), float32(0))
}

func TestGrabFailedFrames(t *testing.T) {
	gs := newTestGame(t)
	ip := NewInputProcessor(gs, zerolog.Nop())

	a := gs.AddPlayer(newTestUUID(t))
	sa := attachTestSession(gs, a.ID)
	b := gs.AddPlayer(newTestUUID(t))
	sb := attachTestSession(gs, b.ID)
	rock := gs.SpawnJoinRock(gs.level.JoinSpawnPosition())

	grab := func() []byte {
		raw, err := json.Marshal(map[string]any{
			"type":       MsgGrabObject,
			"object_id":  rock.ID,
			"grab_point": Vec3{},
		})
		require.NoError(t, err)
		return raw
	}

	ip.ProcessMessage(a, grab())
	assert.Contains(t, frameTypes(queuedFrames(t, sa)), FrameObjectGrabbed)

	ip.ProcessMessage(b, grab())
	frames := queuedFrames(t, sb)
	var failed *map[string]any
	for i := range frames {
		if frames[i]["type"] == FrameGrabFailed {
			failed = &frames[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "already grabbed", (*failed)["reason"])

	// Unknown object gets a targeted grab_failed too.
	raw, err := json.Marshal(map[string]any{"type": MsgGrabObject, "object_id": "nope"})
	require.NoError(t, err)
	ip.ProcessMessage(b, raw)
	frames = queuedFrames(t, sb)
	assert.Equal(t, FrameGrabFailed, frames[len(frames)-1]["type"])
}

func TestFireWeaponHitscanDamage(t *testing.T) {
	gs := newTestGame(t)
	ip := NewInputProcessor(gs, zerolog.Nop())

	shooter := gs.AddPlayer(newTestUUID(t))
	attachTestSession(gs, shooter.ID)
	victim := gs.AddPlayer(newTestUUID(t))
	attachTestSession(gs, victim.ID)

	raw, err := json.Marshal(map[string]any{
		"type":          MsgFireWeapon,
		"weapon_type":   "rifle",
		"origin":        Position{0, 80, 0},
		"direction":     Vec3{0, 0, 1},
		"hit_player_id": victim.ID.String(),
	})
	require.NoError(t, err)
	ip.ProcessMessage(shooter, raw)

	victim.mu.Lock()
	health := victim.Health
	victim.mu.Unlock()
	assert.Equal(t, float32(65), health)
}

func TestDeadActorsAreIgnored(t *testing.T) {
	gs := newTestGame(t)
	ip := NewInputProcessor(gs, zerolog.Nop())

	dead := gs.AddPlayer(newTestUUID(t))
	attachTestSession(gs, dead.ID)
	victim := gs.AddPlayer(newTestUUID(t))
	dead.TakeDamage(1000)

	raw, err := json.Marshal(map[string]any{
		"type":          MsgFireWeapon,
		"weapon_type":   "rifle",
		"origin":        Position{},
		"direction":     Vec3{0, 0, 1},
		"hit_player_id": victim.ID.String(),
	})
	require.NoError(t, err)
	ip.ProcessMessage(dead, raw)

	victim.mu.Lock()
	assert.Equal(t, float32(100), victim.Health)
	victim.mu.Unlock()
}

func TestEnterExitVehicleFlow(t *testing.T) {
	gs := newTestGame(t)
	ip := NewInputProcessor(gs, zerolog.Nop())

	pilot := gs.AddPlayer(newTestUUID(t))
	attachTestSession(gs, pilot.ID)

	var car *Vehicle
	gs.vehicles.Range(func(v *Vehicle) bool {
		if v.Kind == "car" {
			car = v
			return false
		}
		return true
	})
	require.NotNil(t, car)

	raw, err := json.Marshal(map[string]any{"type": MsgEnterVehicle, "vehicle_id": car.ID})
	require.NoError(t, err)
	ip.ProcessMessage(pilot, raw)
	assert.Equal(t, car.ID, pilot.VehicleID())

	raw, err = json.Marshal(map[string]any{"type": MsgExitVehicle})
	require.NoError(t, err)
	ip.ProcessMessage(pilot, raw)
	assert.Equal(t, "", pilot.VehicleID())

	// The player was teleported near the vehicle.
	dist := pilot.WorldPosition().Sub(car.WorldPosition()).Len()
	assert.Less(t, dist, 10.0)
}

func TestBallisticFireWithReportedHit(t *testing.T) {
	gs := newTestGame(t)
	ip := NewInputProcessor(gs, zerolog.Nop())

	shooter := gs.AddPlayer(newTestUUID(t))
	attachTestSession(gs, shooter.ID)
	victim := gs.AddPlayer(newTestUUID(t))
	sv := attachTestSession(gs, victim.ID)

	raw, err := json.Marshal(map[string]any{
		"type":          MsgFireWeapon,
		"weapon_type":   "rocket_launcher",
		"origin":        Position{0, 80, 0},
		"direction":     Vec3{0, 0, 1},
		"hit_player_id": victim.ID.String(),
		"hit_point":     Position{0, 80, 5},
	})
	require.NoError(t, err)
	ip.ProcessMessage(shooter, raw)

	// The direct rocket hit kills the victim, and the reported hit point
	// detonates.
	assert.True(t, victim.Dead())
	types := frameTypes(queuedFrames(t, sv))
	assert.Contains(t, types, FramePlayerKilled)
	assert.Contains(t, types, FrameExplosionCreated)

	// The tracked projectile carries the reported damage into its impact
	// frame once it is removed.
	require.Equal(t, 1, gs.projectiles.Size())
	var proj *Projectile
	gs.projectiles.Range(func(p *Projectile) bool { proj = p; return false })
	require.NotNil(t, proj)
	assert.Equal(t, float32(100), proj.HitDamage)

	proj.SpawnedAt = time.Now().Add(-11 * time.Second) // past rocket lifetime
	gs.Tick(time.Now())

	frames := queuedFrames(t, sv)
	var impact map[string]any
	for _, f := range frames {
		if f["type"] == FrameProjectileImpact {
			impact = f
		}
	}
	require.NotNil(t, impact)
	assert.InDelta(t, 100.0, impact["damage"].(float64), 1e-3)
}

func TestBallisticFireSpawnsProjectile(t *testing.T) {
	gs := newTestGame(t)
	ip := NewInputProcessor(gs, zerolog.Nop())

	shooter := gs.AddPlayer(newTestUUID(t))
	s := attachTestSession(gs, shooter.ID)

	raw, err := json.Marshal(map[string]any{
		"type":        MsgFireWeapon,
		"weapon_type": "grenade_launcher",
		"origin":      Position{0, 80, 0},
		"direction":   Vec3{0, 0, 1},
	})
	require.NoError(t, err)
	ip.ProcessMessage(shooter, raw)

	assert.Equal(t, 1, gs.projectiles.Size())
	assert.Contains(t, frameTypes(queuedFrames(t, s)), FrameProjectileSpawned)
}
