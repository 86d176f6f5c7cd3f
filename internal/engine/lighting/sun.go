package lighting

import (
	gomath "math"

	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// SunDirection converts longitude/latitude angles in degrees to the unit
// direction pointing towards the sun. Longitude rotates around Y (0-360),
// latitude is elevation from the horizon (0-90).
func SunDirection(longitude, latitude float32) math.Vec3 {
	lonRad := float64(longitude) * gomath.Pi / 180.0
	latRad := float64(latitude) * gomath.Pi / 180.0

	return math.Vec3{
		X: float32(gomath.Cos(latRad) * gomath.Sin(lonRad)),
		Y: float32(gomath.Sin(latRad)),
		Z: float32(gomath.Cos(latRad) * gomath.Cos(lonRad)),
	}
}

// NewSun returns a shadow casting directional light shining away from the
// sun position given by longitude and latitude.
func NewSun(longitude, latitude float32) Light {
	l := defaults(Directional)
	l.Direction = SunDirection(longitude, latitude).Scale(-1)
	return l
}
