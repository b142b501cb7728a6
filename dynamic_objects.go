package main

import (
	"math/rand"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
)

const (
	pushLeaseDuration = 5 * time.Second
	grabLeaseDuration = 30 * time.Second
	objectLifetime    = 180 * time.Second
)

// Lease is a timed exclusive authorisation to mutate a dynamic object.
type Lease struct {
	Holder    uuid.UUID
	ExpiresAt time.Time
}

func (l *Lease) Live(now time.Time) bool {
	return l != nil && now.Before(l.ExpiresAt)
}

// GrabState marks an object held kinematically by a participant.
type GrabState struct {
	Holder uuid.UUID
	Offset mgl32.Vec3
	Since  time.Time
}

// DynamicObject is a server-owned movable body. Mutable fields are guarded
// by mu. Physics work is never done here directly: handlers record pending
// transitions that the tick loop applies under the tick guard.
type DynamicObject struct {
	ID   string
	Kind string

	mu            sync.Mutex
	WorldOrigin   mgl64.Vec3
	LocalPosition mgl32.Vec3
	Rotation      mgl32.Quat
	Velocity      mgl32.Vec3
	Scale         float32

	Body     BodyHandle
	Collider ColliderHandle

	Lease     *Lease
	Grab      *GrabState
	SpawnedAt time.Time

	pendingBodyType  *BodyType
	pendingKinematic *mgl32.Vec3
	pendingLinvel    *mgl32.Vec3
	pendingAngvel    *mgl32.Vec3
}

// objectPending is the physics work drained by the tick loop.
type objectPending struct {
	bodyType  *BodyType
	kinematic *mgl32.Vec3
	linvel    *mgl32.Vec3
	angvel    *mgl32.Vec3
}

func (o *DynamicObject) drainPending() objectPending {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := objectPending{
		bodyType:  o.pendingBodyType,
		kinematic: o.pendingKinematic,
		linvel:    o.pendingLinvel,
		angvel:    o.pendingAngvel,
	}
	o.pendingBodyType = nil
	o.pendingKinematic = nil
	o.pendingLinvel = nil
	o.pendingAngvel = nil
	return p
}

// WorldPosition composes anchor and local in double precision.
func (o *DynamicObject) WorldPosition() mgl64.Vec3 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return worldPosition(o.WorldOrigin, o.LocalPosition)
}

// Info snapshots the object translated into the receiver's anchor.
func (o *DynamicObject) Info(receiverOrigin mgl64.Vec3) DynamicObjectInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	world := worldPosition(o.WorldOrigin, o.LocalPosition)
	return DynamicObjectInfo{
		ID:       o.ID,
		Kind:     o.Kind,
		Position: posFromVec(toLocal(world, receiverOrigin)),
		Rotation: rotFromQuat(o.Rotation),
		Scale:    o.Scale,
	}
}

func (o *DynamicObject) expired(now time.Time) bool {
	return now.Sub(o.SpawnedAt) > objectLifetime
}

// angularNoise is the small random spin applied when an object leaves a grab.
func angularNoise() mgl32.Vec3 {
	return mgl32.Vec3{
		(rand.Float32() - 0.5) * 2,
		(rand.Float32() - 0.5) * 2,
		(rand.Float32() - 0.5) * 2,
	}
}

// DynamicObjectManager owns the dynamic object collection and the ownership
// arbitration on it: leases for soft authority, grabs for hard authority.
type DynamicObjectManager struct {
	objects *xsync.Map[string, *DynamicObject]
}

func NewDynamicObjectManager() *DynamicObjectManager {
	return &DynamicObjectManager{objects: xsync.NewMap[string, *DynamicObject]()}
}

func (m *DynamicObjectManager) Get(id string) (*DynamicObject, bool) { return m.objects.Load(id) }
func (m *DynamicObjectManager) Has(id string) bool                   { _, ok := m.objects.Load(id); return ok }
func (m *DynamicObjectManager) Size() int                            { return m.objects.Size() }

func (m *DynamicObjectManager) Range(f func(*DynamicObject) bool) {
	m.objects.Range(func(_ string, o *DynamicObject) bool { return f(o) })
}

// SpawnRock registers a rock whose physics body was already created.
func (m *DynamicObjectManager) SpawnRock(worldPos mgl64.Vec3, body BodyHandle, collider ColliderHandle, scale float32) *DynamicObject {
	obj := &DynamicObject{
		ID:          "rock_" + uuid.NewString(),
		Kind:        "rock",
		WorldOrigin: worldPos,
		Rotation:    mgl32.QuatIdent(),
		Scale:       scale,
		Body:        body,
		Collider:    collider,
		SpawnedAt:   time.Now(),
	}
	m.objects.Store(obj.ID, obj)
	return obj
}

// Remove deletes an object and returns its handles for physics cleanup.
func (m *DynamicObjectManager) Remove(id string) (BodyHandle, bool) {
	obj, ok := m.objects.LoadAndDelete(id)
	if !ok {
		return NoHandle, false
	}
	return obj.Body, true
}

// UpdateFromPhysics overwrites the object transform with the physics result.
// The bridge convention stores the full translation in the anchor.
func (m *DynamicObjectManager) UpdateFromPhysics(id string, pos mgl32.Vec3, rot mgl32.Quat, vel mgl32.Vec3) {
	obj, ok := m.objects.Load(id)
	if !ok {
		return
	}
	obj.mu.Lock()
	obj.WorldOrigin = vec64(pos)
	obj.LocalPosition = mgl32.Vec3{}
	obj.Rotation = rot
	obj.Velocity = vel
	obj.mu.Unlock()
}

// ---- Leases ----

// CheckOwnership is true iff the participant holds a live lease.
func (m *DynamicObjectManager) CheckOwnership(id string, player uuid.UUID, now time.Time) bool {
	obj, ok := m.objects.Load(id)
	if !ok {
		return false
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	return obj.Lease.Live(now) && obj.Lease.Holder == player
}

// RequestOwnership grants a push lease unless another participant holds a
// live one.
func (m *DynamicObjectManager) RequestOwnership(id string, player uuid.UUID, now time.Time) bool {
	obj, ok := m.objects.Load(id)
	if !ok {
		return false
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	if obj.Lease.Live(now) && obj.Lease.Holder != player {
		return false
	}
	obj.Lease = &Lease{Holder: player, ExpiresAt: now.Add(pushLeaseDuration)}
	return true
}

// ExpireSweep lazily clears past-due leases. A grabbed object whose lease
// expired is force-released so it never stays kinematic without a holder.
// Returns the ids whose ownership was revoked.
func (m *DynamicObjectManager) ExpireSweep(now time.Time) []string {
	var revoked []string
	m.objects.Range(func(id string, obj *DynamicObject) bool {
		obj.mu.Lock()
		if obj.Lease != nil && !obj.Lease.Live(now) {
			if obj.Grab != nil && obj.Grab.Holder == obj.Lease.Holder {
				obj.releaseLocked()
			}
			obj.Lease = nil
			revoked = append(revoked, id)
		}
		obj.mu.Unlock()
		return true
	})
	return revoked
}

// ---- Grabs ----

// TryGrab takes hard authority over a free object: the grab is recorded, a
// kinematic transition is queued for the tick loop, and a grab lease is
// granted.
func (m *DynamicObjectManager) TryGrab(id string, player uuid.UUID, offset mgl32.Vec3, now time.Time) (bool, string) {
	obj, ok := m.objects.Load(id)
	if !ok {
		return false, "unknown object"
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	if obj.Grab != nil {
		return false, "already grabbed"
	}
	obj.Grab = &GrabState{Holder: player, Offset: offset, Since: now}
	obj.Lease = &Lease{Holder: player, ExpiresAt: now.Add(grabLeaseDuration)}
	t := BodyKinematic
	obj.pendingBodyType = &t
	obj.pendingLinvel = nil
	obj.pendingAngvel = nil
	return true, ""
}

// MoveGrabbed queues the next kinematic target for a held object. The target
// is in the engine's 32-bit world frame; the recorded grab offset is
// subtracted so the grab point tracks the requested position.
func (m *DynamicObjectManager) MoveGrabbed(id string, player uuid.UUID, target mgl32.Vec3, now time.Time) bool {
	obj, ok := m.objects.Load(id)
	if !ok {
		return false
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	if obj.Grab == nil || obj.Grab.Holder != player {
		return false
	}
	if !obj.Lease.Live(now) || obj.Lease.Holder != player {
		return false
	}
	t := target.Sub(obj.Grab.Offset)
	obj.pendingKinematic = &t
	// Track the held object in the store too, so broadcasts and recenters
	// see it move between read-backs.
	obj.WorldOrigin = vec64(t)
	obj.LocalPosition = mgl32.Vec3{}
	return true
}

// releaseLocked reverts a grabbed object to a dynamic body with a small
// random spin. Caller holds obj.mu.
func (o *DynamicObject) releaseLocked() {
	o.Grab = nil
	t := BodyDynamic
	o.pendingBodyType = &t
	noise := angularNoise()
	o.pendingAngvel = &noise
}

// Release gives up a grab. Only the grabber may release.
func (m *DynamicObjectManager) Release(id string, player uuid.UUID) bool {
	obj, ok := m.objects.Load(id)
	if !ok {
		return false
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	if obj.Grab == nil || obj.Grab.Holder != player {
		return false
	}
	obj.releaseLocked()
	return true
}

// Throw is release plus an immediate linear velocity.
func (m *DynamicObjectManager) Throw(id string, player uuid.UUID, force mgl32.Vec3) bool {
	obj, ok := m.objects.Load(id)
	if !ok {
		return false
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	if obj.Grab == nil || obj.Grab.Holder != player {
		return false
	}
	obj.releaseLocked()
	v := force
	obj.pendingLinvel = &v
	return true
}

// ForceReleaseAll drops every grab and lease held by a disconnecting
// participant. Returns the ids of objects that were released.
func (m *DynamicObjectManager) ForceReleaseAll(player uuid.UUID) []string {
	var released []string
	m.objects.Range(func(id string, obj *DynamicObject) bool {
		obj.mu.Lock()
		if obj.Grab != nil && obj.Grab.Holder == player {
			obj.releaseLocked()
			released = append(released, id)
		}
		if obj.Lease != nil && obj.Lease.Holder == player {
			obj.Lease = nil
		}
		obj.mu.Unlock()
		return true
	})
	return released
}

// EvictExpired removes objects past their lifetime and returns them for
// physics cleanup and remove broadcasts. Grabbed objects are never evicted.
func (m *DynamicObjectManager) EvictExpired(now time.Time) []*DynamicObject {
	var evicted []*DynamicObject
	m.objects.Range(func(id string, obj *DynamicObject) bool {
		obj.mu.Lock()
		dead := obj.expired(now) && obj.Grab == nil
		obj.mu.Unlock()
		if dead {
			if o, ok := m.objects.LoadAndDelete(id); ok {
				evicted = append(evicted, o)
			}
		}
		return true
	})
	return evicted
}
