// Package camera provides cameras that produce view parameters.
package camera

import (
	gomath "math"

	"github.com/Faultbox/midgard-shadows/internal/engine/view"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// Lens is the projection half of a camera.
type Lens struct {
	FOV       float32 // vertical, radians
	Near, Far float32
}

// DefaultLens is a 60 degree lens with a 1..10000 depth range.
var DefaultLens = Lens{FOV: gomath.Pi / 3, Near: 1, Far: 10000}

// OrbitCamera orbits around a center point.
type OrbitCamera struct {
	Center math.Vec3

	// Spherical coordinates
	Distance  float32
	RotationX float32 // pitch, radians
	RotationY float32 // yaw, radians

	// Constraints
	MinDistance float32
	MaxDistance float32
	MinPitch    float32
	MaxPitch    float32

	// Sensitivity
	DragSensitivity float32
	ZoomSensitivity float32

	Lens Lens
}

// NewOrbitCamera creates a new orbit camera with default settings.
func NewOrbitCamera() *OrbitCamera {
	return &OrbitCamera{
		Distance:        200.0,
		RotationX:       0.5,
		MinDistance:     5.0,
		MaxDistance:     5000.0,
		MinPitch:        0.1,
		MaxPitch:        1.5,
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
		Lens:            DefaultLens,
	}
}

// Position returns the camera position in world space.
func (c *OrbitCamera) Position() math.Vec3 {
	x := c.Distance * float32(gomath.Cos(float64(c.RotationX))*gomath.Sin(float64(c.RotationY)))
	y := c.Distance * float32(gomath.Sin(float64(c.RotationX)))
	z := c.Distance * float32(gomath.Cos(float64(c.RotationX))*gomath.Cos(float64(c.RotationY)))
	return c.Center.Add(math.Vec3{X: x, Y: y, Z: z})
}

// ViewMatrix returns the view matrix for this camera.
func (c *OrbitCamera) ViewMatrix() math.Mat4 {
	return math.LookAt(c.Position(), c.Center, math.Vec3{Y: 1})
}

// ProjMatrix returns the perspective projection for a viewport aspect.
func (c *OrbitCamera) ProjMatrix(width, height int) math.Mat4 {
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	return math.Perspective(c.Lens.FOV, aspect, c.Lens.Near, c.Lens.Far)
}

// Params returns the view parameters of the camera for a viewport. Scene
// depth is left to the caller.
func (c *OrbitCamera) Params(name string, width, height int) view.Params {
	return view.Params{
		Name:         name,
		ViewMatrix:   c.ViewMatrix(),
		ProjMatrix:   c.ProjMatrix(width, height),
		Origin:       c.Position(),
		Width:        width,
		Height:       height,
		HasNearPlane: true,
	}
}

// HandleDrag updates rotation based on mouse drag delta.
func (c *OrbitCamera) HandleDrag(deltaX, deltaY float32) {
	c.RotationY -= deltaX * c.DragSensitivity
	c.RotationX = min(max(c.RotationX+deltaY*c.DragSensitivity, c.MinPitch), c.MaxPitch)
}

// HandleZoom updates distance based on scroll wheel delta.
func (c *OrbitCamera) HandleZoom(delta float32) {
	c.Distance -= delta * c.Distance * c.ZoomSensitivity
	c.Distance = min(max(c.Distance, c.MinDistance), c.MaxDistance)
}

// Orbit advances the yaw by angle radians.
func (c *OrbitCamera) Orbit(angle float32) {
	c.RotationY = float32(gomath.Mod(float64(c.RotationY+angle), 2*gomath.Pi))
}

// FitToBounds centers the camera on b and backs off far enough to see it.
func (c *OrbitCamera) FitToBounds(b math.BoxSphereBounds) {
	c.Center = b.Origin
	half := float64(c.Lens.FOV) / 2
	c.Distance = b.SphereRadius / float32(gomath.Sin(half))
	c.Distance = min(max(c.Distance, c.MinDistance), c.MaxDistance)
	c.RotationX = 0.6 // look down at ~35 degrees
	c.RotationY = 0
}
