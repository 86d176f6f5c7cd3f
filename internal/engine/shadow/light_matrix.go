package shadow

import (
	gomath "math"

	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// upVector returns an up vector that is not parallel to dir.
func upVector(dir math.Vec3) math.Vec3 {
	if abs32(dir.Y) > 0.99 {
		return math.Vec3{X: 0, Y: 0, Z: 1}
	}
	return math.Vec3{X: 0, Y: 1, Z: 0}
}

// lightFit is a fitted shadow transform and the depth range it covers.
type lightFit struct {
	view, proj math.Mat4
	near, far  float32
}

func (f lightFit) viewProj() math.Mat4 { return f.proj.Mul(f.view) }

// fitDirectional computes an orthographic shadow around a bounding sphere.
// dir is the direction the light travels. pullBack is how far in front of
// the sphere, towards the light, casters still have to be captured.
func fitDirectional(dir, center math.Vec3, radius, pullBack float32) lightFit {
	// Position the light just in front of the nearest caster.
	lightDistance := radius + pullBack + 1
	lightPos := center.Sub(dir.Scale(lightDistance))

	view := math.LookAt(lightPos, center, upVector(dir))
	near := float32(0.5)
	far := lightDistance + radius
	proj := math.Ortho(-radius, radius, -radius, radius, near, far)
	return lightFit{view: view, proj: proj, near: near, far: far}
}

// fitPerspective computes a perspective shadow from a local light position
// enclosing a sphere. farDistance is where receivers stop. ok is false when
// the light sits inside the sphere.
func fitPerspective(lightPos, center math.Vec3, radius, farDistance float32) (lightFit, bool) {
	toCenter := center.Sub(lightPos)
	dist := toCenter.Length()
	if dist <= radius+1 {
		return lightFit{}, false
	}
	halfFov := float32(gomath.Asin(float64(radius / dist)))
	near := dist - radius
	far := max(farDistance, dist+radius)

	view := math.LookAt(lightPos, center, upVector(toCenter.Scale(1/dist)))
	proj := math.Perspective(2*halfFov, 1, near, far)
	return lightFit{view: view, proj: proj, near: near, far: far}, true
}

// inColumn reports whether a caster sphere can shadow anything inside the
// receiver sphere when light travels along dir.
func inColumn(dir, center math.Vec3, radius float32, caster math.BoxSphereBounds) bool {
	d := caster.Origin.Sub(center)
	along := d.Dot(dir)
	if along-caster.SphereRadius > radius {
		// Entirely behind the receivers.
		return false
	}
	perp := d.Sub(dir.Scale(along))
	r := radius + caster.SphereRadius
	return perp.LengthSquared() <= r*r
}

// pullBackFor returns how far beyond the front of the receiver sphere a
// caster reaches towards the light.
func pullBackFor(dir, center math.Vec3, radius float32, caster math.BoxSphereBounds) float32 {
	front := caster.Origin.Sub(center).Dot(dir) - caster.SphereRadius
	return max(0, -front-radius)
}

// boundingSphere returns a sphere enclosing the points.
func boundingSphere(points []math.Vec3) (math.Vec3, float32) {
	var c math.Vec3
	for _, p := range points {
		c = c.Add(p)
	}
	c = c.Scale(1 / float32(len(points)))
	var r2 float32
	for _, p := range points {
		r2 = max(r2, p.DistanceSquared(c))
	}
	return c, sqrt32(r2)
}

// cubeFaces are the look and up directions of the six cube faces in
// +X -X +Y -Y +Z -Z order.
var cubeFaces = [6][2]math.Vec3{
	{{X: 1}, {Y: -1}},
	{{X: -1}, {Y: -1}},
	{{Y: 1}, {Z: 1}},
	{{Y: -1}, {Z: -1}},
	{{Z: 1}, {Y: -1}},
	{{Z: -1}, {Y: -1}},
}

// cubeMatrices returns the view-projection of every cube face.
func cubeMatrices(pos math.Vec3, near, far float32) [6]math.Mat4 {
	proj := math.CubeFaceProjection(near, far)
	var faces [6]math.Mat4
	for i, f := range cubeFaces {
		faces[i] = proj.Mul(math.LookAt(pos, pos.Add(f[0]), f[1]))
	}
	return faces
}

// CubeFace returns the face of a cube shadow a direction from the light
// falls on.
func CubeFace(dir math.Vec3) int {
	a := dir.Abs()
	switch {
	case a.X >= a.Y && a.X >= a.Z:
		if dir.X >= 0 {
			return 0
		}
		return 1
	case a.Y >= a.Z:
		if dir.Y >= 0 {
			return 2
		}
		return 3
	}
	if dir.Z >= 0 {
		return 4
	}
	return 5
}

// sqrt32 returns the square root of a float32.
func sqrt32(x float32) float32 {
	return float32(gomath.Sqrt(float64(x)))
}

// abs32 returns the absolute value of a float32.
func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
