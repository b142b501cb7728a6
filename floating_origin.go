package main

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// The world frame is 64-bit; everything the physics engine sees is 32-bit.
// Every entity carries a 64-bit anchor (world origin) plus a 32-bit local
// position, and world position = anchor + local. When a local position drifts
// past recenterDistance the anchor absorbs it and the local resets to zero.
const recenterDistance = 1000.0

func vec64(v mgl32.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{float64(v.X()), float64(v.Y()), float64(v.Z())}
}

func vec32(v mgl64.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{float32(v.X()), float32(v.Y()), float32(v.Z())}
}

// worldPosition composes an anchor and a local offset in double precision.
func worldPosition(origin mgl64.Vec3, local mgl32.Vec3) mgl64.Vec3 {
	return origin.Add(vec64(local))
}

// toLocal translates a 64-bit world position into the receiver's local frame.
// The subtraction happens in double precision; only the small remainder is
// narrowed to 32-bit.
func toLocal(world mgl64.Vec3, receiverOrigin mgl64.Vec3) mgl32.Vec3 {
	return vec32(world.Sub(receiverOrigin))
}

// recenterIfNeeded absorbs the local offset into the anchor once it exceeds
// the recenter distance. Returns true iff the anchor moved; the caller is
// responsible for queueing an OriginUpdate to the affected participant.
// The anchor and local are updated together so no half-translated state is
// ever observable.
func recenterIfNeeded(origin *mgl64.Vec3, local *mgl32.Vec3) bool {
	if float64(local.Len()) <= recenterDistance {
		return false
	}
	*origin = origin.Add(vec64(*local))
	*local = mgl32.Vec3{}
	return true
}
