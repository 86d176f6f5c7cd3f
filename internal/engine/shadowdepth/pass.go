// Package shadowdepth renders the depth of scheduled shadows.
package shadowdepth

import (
	"github.com/Faultbox/midgard-shadows/internal/config"
	"github.com/Faultbox/midgard-shadows/internal/engine/atlas"
	"github.com/Faultbox/midgard-shadows/internal/engine/lighting"
	"github.com/Faultbox/midgard-shadows/internal/engine/shadow"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// Mode is the vertex transform a depth pass uses.
type Mode uint8

// Transform modes.
const (
	Orthographic Mode = iota
	Perspective
	OnePassCube
)

func (m Mode) String() string {
	switch m {
	case Orthographic:
		return "orthographic"
	case Perspective:
		return "perspective"
	case OnePassCube:
		return "cube"
	}
	return "unknown"
}

// preshadowTransition keeps preshadows starting as close to the caster as
// possible; there is no self shadowing to hide.
const preshadowTransition = 0.00001

// Pass holds the render state of one descriptor's depth pass.
type Pass struct {
	Descriptor *shadow.Descriptor
	Mode       Mode

	ViewProj math.Mat4
	Faces    [6]math.Mat4 // OnePassCube only
	Cube     atlas.CubeSlot

	// Rect is the whole allocation, cleared before drawing. Viewport is the
	// area inside the border that the projection maps onto.
	Rect     atlas.Rect
	Viewport atlas.Rect

	DepthBias      float32
	SlopeScaleBias float32

	// StencilReceivers restricts depth writes to the receivers' footprint.
	StencilReceivers bool
}

// NewPass derives the render state for d and stores its bias and
// transition size on the descriptor for the projection.
func NewPass(d *shadow.Descriptor, cfg config.ShadowConfig) Pass {
	p := Pass{
		Descriptor: d,
		ViewProj:   d.ShadowViewProj,
		Rect:       d.Rect,
		Viewport:   d.Viewport(),
	}
	switch pl := d.Payload.(type) {
	case shadow.CubePayload:
		p.Mode = OnePassCube
		p.Faces = pl.Faces
		p.Cube = d.Cube
		p.Rect = atlas.Rect{W: d.Cube.Resolution, H: d.Cube.Resolution}
		p.Viewport = p.Rect
	case shadow.PerObjectPayload:
		p.Mode = modeFor(pl.Perspective)
	case shadow.TranslucentPayload:
		p.Mode = modeFor(pl.Perspective)
	case shadow.PreshadowPayload:
		p.Mode = modeFor(pl.Perspective)
		p.StencilReceivers = true
	default:
		p.Mode = Orthographic
	}

	d.DepthBias, d.SlopeScaleBias, d.TransitionSize = ComputeBias(d, cfg)
	p.DepthBias, p.SlopeScaleBias = d.DepthBias, d.SlopeScaleBias
	return p
}

func modeFor(perspective bool) Mode {
	if perspective {
		return Perspective
	}
	return Orthographic
}

// ComputeBias returns the constant depth bias, slope scale bias and
// projection transition size for a descriptor. Cascades scale their bias by
// the world size of a texel; local lights use a fixed bias scaled by
// resolution.
func ComputeBias(d *shadow.Descriptor, cfg config.ShadowConfig) (bias, slope, transition float32) {
	res := float32(max(d.Resolution, 1))
	zRange := max(d.MaxZ-d.MinZ, 1e-3)
	worldTexel := d.BoundsRadius / res
	l := d.Light
	defaultTransition := 1 / cfg.TransitionScale

	switch d.Kind() {
	case shadow.WholeScenePoint:
		bias = cfg.PointDepthBias * 512 / res * l.DepthBiasScale
		transition = defaultTransition
	case shadow.WholeSceneDirectional:
		bias = cfg.CSMDepthBias / zRange * worldTexel * l.UserShadowBias
		transition = bias
	case shadow.Preshadow:
		return 0, 0, preshadowTransition
	default:
		if l.Type == lighting.Directional {
			bias = cfg.CSMDepthBias / zRange * worldTexel * 0.5
		} else {
			bias = cfg.SpotDepthBias * 512 / (zRange * res) * l.DepthBiasScale
		}
		transition = defaultTransition
	}
	return max(bias, 0), 1, max(transition, preshadowTransition)
}
