package shadow

import (
	"math/bits"

	"github.com/Faultbox/midgard-shadows/internal/config"
	"github.com/Faultbox/midgard-shadows/internal/engine/lighting"
	"github.com/Faultbox/midgard-shadows/internal/engine/view"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// ScreenRadius returns the projected radius in pixels of a sphere in a view.
func ScreenRadius(v *view.View, center math.Vec3, radius float32) float32 {
	scale := v.ProjMatrix[5] * float32(v.Height) / 2
	if v.ProjMatrix[11] == 0 {
		return radius * scale
	}
	dist := max(center.Distance(v.Origin), 1)
	return radius * scale / dist
}

// requestedTexels is the unclamped shadow size a sphere asks for in one
// view. It grows with screen coverage, light importance and resolution
// scale, and shrinks with distance past the fade distance.
func requestedTexels(v *view.View, l *lighting.Light, center math.Vec3, radius float32, cfg config.ShadowConfig) float32 {
	texels := 2 * ScreenRadius(v, center, radius) * cfg.TexelsPerPixel
	texels *= max(l.ResolutionScale, 0)
	texels *= 0.25 + 0.75*math.Clamp01(l.Importance)

	if cfg.FadeDistance > 0 {
		if dist := center.Distance(v.CullOrigin()); dist > cfg.FadeDistance {
			texels *= cfg.FadeDistance / dist
		}
	}
	return texels
}

// fadeAlpha maps a view's unclamped request to the opacity the shadow is
// projected with.
func fadeAlpha(texels float32, cfg config.ShadowConfig) float32 {
	lo, hi := float32(cfg.MinResolution), float32(cfg.FadeResolution)
	if hi <= lo {
		if texels >= lo {
			return 1
		}
		return 0
	}
	t := math.Clamp01((texels - lo) / (hi - lo))
	return t * t
}

// Resolve runs the resolution heuristic for a shadow around a sphere.
// It returns the power of two size in [MinResolution, maxResolution], or 0
// when no view would see a single texel, and the per-view fade alphas.
func Resolve(views []*view.View, l *lighting.Light, center math.Vec3, radius float32, maxResolution int, cfg config.ShadowConfig) (int, []float32) {
	alphas := make([]float32, len(views))
	var best float32
	for i, v := range views {
		t := requestedTexels(v, l, center, radius, cfg)
		alphas[i] = fadeAlpha(t, cfg)
		best = max(best, t)
	}
	if best < 1 {
		return 0, alphas
	}
	return clampResolution(int(best), cfg.MinResolution, maxResolution), alphas
}

// clampResolution clamps n into [lo, hi] and rounds it down to a power of
// two.
func clampResolution(n, lo, hi int) int {
	n = max(lo, min(n, hi))
	if n <= 0 {
		return 0
	}
	return 1 << (bits.Len(uint(n)) - 1)
}
