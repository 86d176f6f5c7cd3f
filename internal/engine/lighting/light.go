// Package lighting defines the shadow casting lights of a scene.
package lighting

import (
	gomath "math"

	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// Type is the light shape.
type Type uint8

// Light types.
const (
	Directional Type = iota
	Point
	Spot
)

func (t Type) String() string {
	switch t {
	case Directional:
		return "directional"
	case Point:
		return "point"
	case Spot:
		return "spot"
	}
	return "unknown"
}

// ID identifies a light within a scene. Zero is never assigned.
type ID uint32

// Light is a light source as seen by the shadow pipeline.
type Light struct {
	ID        ID
	Type      Type
	Position  math.Vec3
	Direction math.Vec3 // direction the light travels, unit length
	Radius    float32   // attenuation radius for point and spot lights

	OuterConeAngle float32 // radians, spot only

	CastShadows             bool
	CastTranslucentShadows  bool
	CastReflectiveShadowMap bool
	HasStaticShadowing      bool

	DepthBiasScale  float32
	UserShadowBias  float32
	ResolutionScale float32
	Importance      float32 // 0..1, scales requested shadow resolution
}

func defaults(t Type) Light {
	return Light{
		Type:            t,
		Direction:       math.Vec3{X: 0, Y: -1, Z: 0},
		CastShadows:     true,
		DepthBiasScale:  1,
		UserShadowBias:  1,
		ResolutionScale: 1,
		Importance:      1,
	}
}

// NewPointLight returns a shadow casting point light.
func NewPointLight(pos math.Vec3, radius float32) Light {
	l := defaults(Point)
	l.Position = pos
	l.Radius = radius
	return l
}

// NewSpotLight returns a shadow casting spot light. coneAngle is the outer
// half angle in radians.
func NewSpotLight(pos, dir math.Vec3, radius, coneAngle float32) Light {
	l := defaults(Spot)
	l.Position = pos
	l.Direction = dir.Normalize()
	l.Radius = radius
	l.OuterConeAngle = coneAngle
	return l
}

// ToLight returns the unit direction from a lit point towards the light.
func (l *Light) ToLight() math.Vec3 {
	return l.Direction.Scale(-1)
}

// ShadowBounds returns the sphere a local light can shadow. ok is false for
// directional lights, which are unbounded.
func (l *Light) ShadowBounds() (center math.Vec3, radius float32, ok bool) {
	if l.Type == Directional {
		return math.Vec3{}, 0, false
	}
	return l.Position, l.Radius, true
}

// AffectsBounds reports whether the light can reach any part of b.
func (l *Light) AffectsBounds(b math.BoxSphereBounds) bool {
	switch l.Type {
	case Directional:
		return true
	case Point:
		r := l.Radius + b.SphereRadius
		return l.Position.DistanceSquared(b.Origin) <= r*r
	}

	r := l.Radius + b.SphereRadius
	if l.Position.DistanceSquared(b.Origin) > r*r {
		return false
	}
	// Sphere against cone: pull the apex back so the cone contains every
	// point within radius of its original surface.
	sin := float32(gomath.Sin(float64(l.OuterConeAngle)))
	cos := float32(gomath.Cos(float64(l.OuterConeAngle)))
	if sin <= 1e-4 {
		return false
	}
	apex := l.Position.Sub(l.Direction.Scale(b.SphereRadius / sin))
	d := b.Origin.Sub(apex)
	e := l.Direction.Dot(d)
	if e <= 0 || e*e < d.LengthSquared()*cos*cos {
		return false
	}
	// Behind the real apex only the sphere around it is lit.
	d = b.Origin.Sub(l.Position)
	e = -l.Direction.Dot(d)
	if e > 0 && e*e >= d.LengthSquared()*sin*sin {
		return d.LengthSquared() <= b.SphereRadius*b.SphereRadius
	}
	return true
}
