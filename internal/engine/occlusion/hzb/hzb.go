// Package hzb builds and tests a hierarchical max-depth pyramid.
//
// Depth follows the [0,1] convention with 0 at the near plane. Each mip
// texel stores the farthest depth of the texels below it, so a box whose
// nearest point is farther than every texel it covers is hidden.
package hzb

import (
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// Level is one mip of the pyramid.
type Level struct {
	Width, Height int
	Depth         []float32
}

func (l *Level) at(x, y int) float32 {
	return l.Depth[y*l.Width+x]
}

// Pyramid is a max-depth mip chain together with the view-projection that
// produced its base level.
type Pyramid struct {
	Levels   []Level
	ViewProj math.Mat4
}

// Build creates a pyramid from a width*height depth image.
func Build(width, height int, depth []float32, viewProj math.Mat4) *Pyramid {
	if width <= 0 || height <= 0 || len(depth) < width*height {
		return nil
	}
	base := Level{Width: width, Height: height, Depth: make([]float32, width*height)}
	copy(base.Depth, depth)
	p := &Pyramid{Levels: []Level{base}, ViewProj: viewProj}

	for {
		prev := &p.Levels[len(p.Levels)-1]
		if prev.Width == 1 && prev.Height == 1 {
			break
		}
		w, h := max((prev.Width+1)/2, 1), max((prev.Height+1)/2, 1)
		next := Level{Width: w, Height: h, Depth: make([]float32, w*h)}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				x0, y0 := min(2*x, prev.Width-1), min(2*y, prev.Height-1)
				x1, y1 := min(2*x+1, prev.Width-1), min(2*y+1, prev.Height-1)
				d := max(prev.at(x0, y0), prev.at(x1, y0), prev.at(x0, y1), prev.at(x1, y1))
				next.Depth[y*w+x] = d
			}
		}
		p.Levels = append(p.Levels, next)
	}
	return p
}

// TestBounds reports whether b may be visible. It projects the box with the
// pyramid's view-projection, picks the finest mip where the footprint covers
// at most maxTexels texels per axis and compares the box's nearest depth to
// the farthest depth in that footprint. Boxes crossing the eye plane are
// always visible.
func (p *Pyramid) TestBounds(b math.BoxSphereBounds, maxTexels int) bool {
	if p == nil || len(p.Levels) == 0 {
		return true
	}
	if maxTexels < 1 {
		maxTexels = 1
	}

	minU, minV, minZ := float32(1), float32(1), float32(1)
	maxU, maxV := float32(0), float32(0)
	for _, c := range b.Corners() {
		ndc, _, ok := p.ViewProj.Project(c)
		if !ok {
			return true
		}
		u, v, z := ndc.X*0.5+0.5, ndc.Y*0.5+0.5, ndc.Z*0.5+0.5
		minU, maxU = min(minU, u), max(maxU, u)
		minV, maxV = min(minV, v), max(maxV, v)
		minZ = min(minZ, z)
	}
	if minZ <= 0 {
		return true
	}
	minU, minV = math.Clamp01(minU), math.Clamp01(minV)
	maxU, maxV = math.Clamp01(maxU), math.Clamp01(maxV)
	if minU >= maxU || minV >= maxV {
		// Off screen; the frustum test owns this case.
		return true
	}

	for li := range p.Levels {
		l := &p.Levels[li]
		x0, x1 := texel(minU, l.Width), texel(maxU, l.Width)
		y0, y1 := texel(minV, l.Height), texel(maxV, l.Height)
		if x1-x0+1 > maxTexels || y1-y0+1 > maxTexels {
			continue
		}
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				if minZ <= l.at(x, y) {
					return true
				}
			}
		}
		return false
	}
	return true
}

func texel(u float32, size int) int {
	return min(int(u*float32(size)), size-1)
}
