package shadow

import (
	gomath "math"

	"github.com/Faultbox/midgard-shadows/internal/config"
	"github.com/Faultbox/midgard-shadows/internal/engine/view"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// DepthRange returns the near and far clip distances of a perspective or
// orthographic projection.
func DepthRange(proj math.Mat4) (near, far float32) {
	if proj[11] != 0 {
		return proj[14] / (proj[10] - 1), proj[14] / (proj[10] + 1)
	}
	return (proj[14] + 1) / proj[10], (proj[14] - 1) / proj[10]
}

// CascadeSplits returns the n+1 split distances of n cascades between near
// and far. distribution blends logarithmic (1) and uniform (0) splits.
func CascadeSplits(near, far float32, n int, distribution float32) []float32 {
	splits := make([]float32, n+1)
	near = max(near, 1e-3)
	for i := 0; i <= n; i++ {
		t := float32(i) / float32(n)
		log := near * float32(gomath.Pow(float64(far/near), float64(t)))
		uni := near + (far-near)*t
		splits[i] = distribution*log + (1-distribution)*uni
	}
	splits[0], splits[n] = near, far
	return splits
}

// cascade is one split of a view before casters are gathered.
type cascade struct {
	payload CascadePayload
	center  math.Vec3
	radius  float32
}

// viewCascades splits the view's depth range and bounds every split.
// Each split starts early by the fade band of the previous one so the
// blend region is covered by both.
func viewCascades(v *view.View, cfg config.ShadowConfig) []cascade {
	if cfg.NumCascades <= 0 {
		return nil
	}
	near, far := DepthRange(v.ProjMatrix)
	if cfg.CascadeDistance > 0 {
		far = min(far, cfg.CascadeDistance)
	}
	if far <= near {
		return nil
	}
	splits := CascadeSplits(near, far, cfg.NumCascades, cfg.CascadeDistribution)

	out := make([]cascade, 0, cfg.NumCascades)
	var prevFade float32
	for i := 0; i < cfg.NumCascades; i++ {
		p := CascadePayload{
			Index:     i,
			Count:     cfg.NumCascades,
			SplitNear: splits[i],
			SplitFar:  splits[i+1],
		}
		if i < cfg.NumCascades-1 {
			p.FadePlaneLength = (p.SplitFar - p.SplitNear) * cfg.CascadeTransitionFraction
			p.FadePlaneOffset = p.SplitFar - p.FadePlaneLength
		}
		p.SliceNear = max(near, p.SplitNear-prevFade)
		center, radius := boundingSphere(sliceCorners(v, p.SliceNear, p.SplitFar))
		out = append(out, cascade{payload: p, center: center, radius: radius})
		prevFade = p.FadePlaneLength
	}
	return out
}

// sliceCorners returns the world space corners of the view frustum between
// two view distances.
func sliceCorners(v *view.View, near, far float32) []math.Vec3 {
	corners := make([]math.Vec3, 0, 8)
	for _, d := range [2]float32{near, far} {
		c := v.ProjMatrix.Transform4(math.Vec3{Z: -d})
		z := c[2] / c[3]
		for _, xy := range [4][2]float32{{-1, -1}, {1, -1}, {-1, 1}, {1, 1}} {
			w := v.InvViewProj.MulVec4(math.Vec4{xy[0], xy[1], z, 1})
			inv := 1 / w[3]
			corners = append(corners, math.Vec3{X: w[0] * inv, Y: w[1] * inv, Z: w[2] * inv})
		}
	}
	return corners
}

// ViewDistance returns the distance of a world point in front of the view,
// the quantity cascade splits are expressed in.
func ViewDistance(v *view.View, p math.Vec3) float32 {
	return -v.ViewMatrix.TransformVec3(p).Z
}
