package math

// Plane is an oriented plane. Points with Dot(p) >= 0 lie on the inner side.
type Plane struct {
	Normal Vec3
	D      float32
}

// Dot returns the signed distance from p to the plane.
func (pl Plane) Dot(p Vec3) float32 {
	return pl.Normal.Dot(p) + pl.D
}

func planeFromRow(r Vec4) Plane {
	n := Vec3{r[0], r[1], r[2]}
	l := n.Length()
	if l == 0 {
		return Plane{}
	}
	inv := 1 / l
	return Plane{Normal: n.Scale(inv), D: r[3] * inv}
}

// Frustum is a convex volume bounded by inward-facing planes.
type Frustum struct {
	Planes []Plane
}

// Plane indices produced by NewFrustum.
const (
	PlaneLeft = iota
	PlaneRight
	PlaneBottom
	PlaneTop
	PlaneFar
	PlaneNear
)

// NewFrustum extracts the clip planes of a view-projection matrix.
// When withNear is false the near plane is omitted, which is what shadow
// caster culling wants: casters behind the near plane still cast into it.
func NewFrustum(viewProj Mat4, withNear bool) Frustum {
	r0, r1, r2, r3 := viewProj.Row(0), viewProj.Row(1), viewProj.Row(2), viewProj.Row(3)
	add := func(a, b Vec4) Vec4 { return Vec4{a[0] + b[0], a[1] + b[1], a[2] + b[2], a[3] + b[3]} }
	sub := func(a, b Vec4) Vec4 { return Vec4{a[0] - b[0], a[1] - b[1], a[2] - b[2], a[3] - b[3]} }

	planes := make([]Plane, 0, 6)
	planes = append(planes,
		planeFromRow(add(r3, r0)),
		planeFromRow(sub(r3, r0)),
		planeFromRow(add(r3, r1)),
		planeFromRow(sub(r3, r1)),
		planeFromRow(sub(r3, r2)),
	)
	if withNear {
		planes = append(planes, planeFromRow(add(r3, r2)))
	}
	return Frustum{Planes: planes}
}

// PlaneCount returns the number of planes bounding the frustum.
func (f Frustum) PlaneCount() int { return len(f.Planes) }

// IntersectSphere reports whether a sphere is at least partially inside.
func (f Frustum) IntersectSphere(center Vec3, radius float32) bool {
	for _, p := range f.Planes {
		if p.Dot(center) < -radius {
			return false
		}
	}
	return true
}

// IntersectBox reports whether an axis aligned box is at least partially
// inside. Each plane is pushed out by the box's projected extent.
func (f Frustum) IntersectBox(origin, extent Vec3) bool {
	for _, p := range f.Planes {
		if p.Dot(origin) < -BoxPushOut(p.Normal, extent) {
			return false
		}
	}
	return true
}

// BoxPushOut returns the projected half-size of a box along a normal.
func BoxPushOut(normal, extent Vec3) float32 {
	return abs32(normal.X*extent.X) + abs32(normal.Y*extent.Y) + abs32(normal.Z*extent.Z)
}
