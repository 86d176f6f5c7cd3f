package math

// BoxSphereBounds describes a volume by both an axis aligned box and a
// bounding sphere sharing the same origin.
type BoxSphereBounds struct {
	Origin       Vec3
	BoxExtent    Vec3
	SphereRadius float32
}

// NewBounds builds bounds around a box and fits the sphere to its corners.
func NewBounds(origin, extent Vec3) BoxSphereBounds {
	return BoxSphereBounds{Origin: origin, BoxExtent: extent, SphereRadius: extent.Length()}
}

// BoundsFromMinMax builds bounds enclosing the box [lo, hi].
func BoundsFromMinMax(lo, hi Vec3) BoxSphereBounds {
	return NewBounds(lo.Add(hi).Scale(0.5), hi.Sub(lo).Scale(0.5))
}

// Min returns the minimum box corner.
func (b BoxSphereBounds) Min() Vec3 { return b.Origin.Sub(b.BoxExtent) }

// Max returns the maximum box corner.
func (b BoxSphereBounds) Max() Vec3 { return b.Origin.Add(b.BoxExtent) }

// Corners returns the eight box corners.
func (b BoxSphereBounds) Corners() [8]Vec3 {
	var out [8]Vec3
	for i := 0; i < 8; i++ {
		e := b.BoxExtent
		if i&1 == 0 {
			e.X = -e.X
		}
		if i&2 == 0 {
			e.Y = -e.Y
		}
		if i&4 == 0 {
			e.Z = -e.Z
		}
		out[i] = b.Origin.Add(e)
	}
	return out
}

// Intersects reports whether the boxes overlap (touching counts).
func (b BoxSphereBounds) Intersects(o BoxSphereBounds) bool {
	d := b.Origin.Sub(o.Origin).Abs()
	return d.X <= b.BoxExtent.X+o.BoxExtent.X &&
		d.Y <= b.BoxExtent.Y+o.BoxExtent.Y &&
		d.Z <= b.BoxExtent.Z+o.BoxExtent.Z
}

// SpheresIntersect reports whether the bounding spheres overlap.
func (b BoxSphereBounds) SpheresIntersect(o BoxSphereBounds) bool {
	r := b.SphereRadius + o.SphereRadius
	return b.Origin.DistanceSquared(o.Origin) <= r*r
}

// Union returns bounds enclosing both boxes.
func (b BoxSphereBounds) Union(o BoxSphereBounds) BoxSphereBounds {
	return BoundsFromMinMax(b.Min().Min(o.Min()), b.Max().Max(o.Max()))
}

// TransformBounds returns the axis aligned bounds of b's corners under m.
func TransformBounds(m Mat4, b BoxSphereBounds) BoxSphereBounds {
	c := b.Corners()
	lo := m.TransformVec3(c[0])
	hi := lo
	for _, p := range c[1:] {
		q := m.TransformVec3(p)
		lo = lo.Min(q)
		hi = hi.Max(q)
	}
	return BoundsFromMinMax(lo, hi)
}
