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

func spawnTestRock(m *DynamicObjectManager) *DynamicObject {
	return m.SpawnRock(mgl64.Vec3{0, 100, 0}, BodyHandle(1), ColliderHandle(1), 1)
}

func TestLeaseExclusivity(t *testing.T) {
	m := NewDynamicObjectManager()
	obj := spawnTestRock(m)
	a, b := uuid.New(), uuid.New()
	now := time.Now()

	require.True(t, m.RequestOwnership(obj.ID, a, now))
	assert.True(t, m.CheckOwnership(obj.ID, a, now))

	// B cannot take the lease while A's is live.
	assert.False(t, m.RequestOwnership(obj.ID, b, now))
	assert.False(t, m.CheckOwnership(obj.ID, b, now))

	// A's lease expires; B may now acquire.
	later := now.Add(pushLeaseDuration + time.Millisecond)
	assert.False(t, m.CheckOwnership(obj.ID, a, later))
	assert.True(t, m.RequestOwnership(obj.ID, b, later))
}

func TestExpireSweepRevokesLeases(t *testing.T) {
	m := NewDynamicObjectManager()
	obj := spawnTestRock(m)
	a := uuid.New()
	now := time.Now()

	require.True(t, m.RequestOwnership(obj.ID, a, now))
	assert.Empty(t, m.ExpireSweep(now))

	revoked := m.ExpireSweep(now.Add(pushLeaseDuration + time.Millisecond))
	require.Equal(t, []string{obj.ID}, revoked)

	obj.mu.Lock()
	assert.Nil(t, obj.Lease)
	obj.mu.Unlock()
}

func TestGrabLeaseCoherence(t *testing.T) {
	m := NewDynamicObjectManager()
	obj := spawnTestRock(m)
	a, b := uuid.New(), uuid.New()
	now := time.Now()

	ok, _ := m.TryGrab(obj.ID, a, mgl32.Vec3{}, now)
	require.True(t, ok)

	obj.mu.Lock()
	require.NotNil(t, obj.Grab)
	require.NotNil(t, obj.Lease)
	assert.Equal(t, obj.Grab.Holder, obj.Lease.Holder)
	assert.True(t, obj.Lease.Live(now))
	require.NotNil(t, obj.pendingBodyType)
	assert.Equal(t, BodyKinematic, *obj.pendingBodyType)
	obj.mu.Unlock()

	// A second grab fails with the reason the client displays.
	ok, reason := m.TryGrab(obj.ID, b, mgl32.Vec3{}, now)
	assert.False(t, ok)
	assert.Equal(t, "already grabbed", reason)
}

func TestGrabMoveThrowCycle(t *testing.T) {
	m := NewDynamicObjectManager()
	obj := spawnTestRock(m)
	a := uuid.New()
	now := time.Now()

	ok, _ := m.TryGrab(obj.ID, a, mgl32.Vec3{0, 0, 0}, now)
	require.True(t, ok)
	obj.drainPending()

	for _, target := range []mgl32.Vec3{{5, 32, 0}, {6, 33, 0}, {7, 34, 0}} {
		require.True(t, m.MoveGrabbed(obj.ID, a, target, now))
		obj.mu.Lock()
		require.NotNil(t, obj.pendingKinematic)
		assert.Equal(t, target, *obj.pendingKinematic)
		obj.mu.Unlock()
	}

	require.True(t, m.Throw(obj.ID, a, mgl32.Vec3{10, 5, 0}))
	obj.mu.Lock()
	assert.Nil(t, obj.Grab)
	require.NotNil(t, obj.pendingBodyType)
	assert.Equal(t, BodyDynamic, *obj.pendingBodyType)
	require.NotNil(t, obj.pendingLinvel)
	assert.Equal(t, mgl32.Vec3{10, 5, 0}, *obj.pendingLinvel)
	require.NotNil(t, obj.pendingAngvel)
	obj.mu.Unlock()
}

func TestMoveGrabbedValidatesHolder(t *testing.T) {
	m := NewDynamicObjectManager()
	obj := spawnTestRock(m)
	a, b := uuid.New(), uuid.New()
	now := time.Now()

	ok, _ := m.TryGrab(obj.ID, a, mgl32.Vec3{}, now)
	require.True(t, ok)

	assert.False(t, m.MoveGrabbed(obj.ID, b, mgl32.Vec3{1, 2, 3}, now))
	assert.False(t, m.Release(obj.ID, b))
	assert.False(t, m.Throw(obj.ID, b, mgl32.Vec3{1, 0, 0}))
}

func TestForceReleaseAllOnDisconnect(t *testing.T) {
	m := NewDynamicObjectManager()
	grabbed := spawnTestRock(m)
	leased := spawnTestRock(m)
	a := uuid.New()
	now := time.Now()

	ok, _ := m.TryGrab(grabbed.ID, a, mgl32.Vec3{}, now)
	require.True(t, ok)
	require.True(t, m.RequestOwnership(leased.ID, a, now))

	released := m.ForceReleaseAll(a)
	assert.Equal(t, []string{grabbed.ID}, released)

	grabbed.mu.Lock()
	assert.Nil(t, grabbed.Grab)
	require.NotNil(t, grabbed.pendingBodyType)
	assert.Equal(t, BodyDynamic, *grabbed.pendingBodyType)
	grabbed.mu.Unlock()

	leased.mu.Lock()
	assert.Nil(t, leased.Lease)
	leased.mu.Unlock()
}

func TestEvictExpiredSkipsGrabbed(t *testing.T) {
	m := NewDynamicObjectManager()
	old := spawnTestRock(m)
	held := spawnTestRock(m)
	a := uuid.New()
	now := time.Now()

	old.SpawnedAt = now.Add(-objectLifetime - time.Second)
	held.SpawnedAt = now.Add(-objectLifetime - time.Second)
	ok, _ := m.TryGrab(held.ID, a, mgl32.Vec3{}, now)
	require.True(t, ok)

	evicted := m.EvictExpired(now)
	require.Len(t, evicted, 1)
	assert.Equal(t, old.ID, evicted[0].ID)
	assert.True(t, m.Has(held.ID))
	assert.False(t, m.Has(old.ID))
}

func TestPushContention(t *testing.T) {
	m := NewDynamicObjectManager()
	obj := spawnTestRock(m)
	a, b := uuid.New(), uuid.New()
	now := time.Now()

	// Whichever handler ran first wins the lease; the loser's push is
	// dropped.
	winnerAuthorised := m.CheckOwnership(obj.ID, a, now) || m.RequestOwnership(obj.ID, a, now)
	loserAuthorised := m.CheckOwnership(obj.ID, b, now) || m.RequestOwnership(obj.ID, b, now)

	assert.True(t, winnerAuthorised)
	assert.False(t, loserAuthorised)
}
