// Package picking provides ray casting and primitive picking.
package picking

import (
	gomath "math"

	"github.com/Faultbox/midgard-shadows/internal/engine/scene"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// Ray represents a ray in 3D space with origin and direction.
type Ray struct {
	Origin    math.Vec3
	Direction math.Vec3 // normalized
}

// ScreenToRay converts screen coordinates to a world-space ray.
// screenX, screenY are pixel coordinates with the origin at the top left.
// invViewProj is the inverse of the view-projection matrix.
func ScreenToRay(screenX, screenY, viewportW, viewportH float32, invViewProj math.Mat4) Ray {
	ndcX := 2.0*screenX/viewportW - 1.0
	ndcY := 1.0 - 2.0*screenY/viewportH // flip Y

	unproject := func(z float32) math.Vec3 {
		p := invViewProj.MulVec4(math.Vec4{ndcX, ndcY, z, 1.0})
		if p[3] != 0 {
			p[0] /= p[3]
			p[1] /= p[3]
			p[2] /= p[3]
		}
		return math.Vec3{X: p[0], Y: p[1], Z: p[2]}
	}
	near, far := unproject(-1), unproject(1)
	return Ray{Origin: near, Direction: far.Sub(near).Normalize()}
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float32) math.Vec3 {
	return r.Origin.Add(r.Direction.Scale(t))
}

// IntersectPlaneY intersects a ray with a horizontal plane at the given Y level.
func (r Ray) IntersectPlaneY(planeY float32) (x, z float32, ok bool) {
	if gomath.Abs(float64(r.Direction.Y)) < 0.001 {
		return 0, 0, false // parallel
	}
	t := (planeY - r.Origin.Y) / r.Direction.Y
	if t < 0 {
		return 0, 0, false // behind the origin
	}
	p := r.At(t)
	return p.X, p.Z, true
}

// IntersectBounds tests ray intersection with the box of b. It returns the
// entry distance, or the exit distance when the ray starts inside.
func (r Ray) IntersectBounds(b math.BoxSphereBounds) (t float32, hit bool) {
	tmin := float32(-gomath.MaxFloat32)
	tmax := float32(gomath.MaxFloat32)

	lo, hi := b.Min().Array(), b.Max().Array()
	origin, dir := r.Origin.Array(), r.Direction.Array()
	for axis := 0; axis < 3; axis++ {
		if dir[axis] == 0 {
			if origin[axis] < lo[axis] || origin[axis] > hi[axis] {
				return 0, false
			}
			continue
		}
		t1 := (lo[axis] - origin[axis]) / dir[axis]
		t2 := (hi[axis] - origin[axis]) / dir[axis]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = max(tmin, t1)
		tmax = min(tmax, t2)
	}

	if tmax < tmin || tmax < 0 {
		return 0, false
	}
	if tmin < 0 {
		return tmax, true
	}
	return tmin, true
}

// Pick returns the nearest of the candidate primitives the ray hits.
func Pick(sc *scene.Scene, r Ray, candidates []scene.Handle) (scene.Handle, bool) {
	var (
		best    scene.Handle
		bestT   = float32(gomath.MaxFloat32)
		matched bool
	)
	for _, h := range candidates {
		p, ok := sc.Get(h)
		if !ok {
			continue
		}
		if t, hit := r.IntersectBounds(p.Bounds); hit && t < bestT {
			best, bestT, matched = h, t, true
		}
	}
	return best, matched
}
