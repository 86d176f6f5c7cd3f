package shadowdepth

import (
	"github.com/Faultbox/midgard-shadows/internal/engine/atlas"
	"github.com/Faultbox/midgard-shadows/internal/engine/scene"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// DrawItem is one subject primitive submitted to a depth pass.
type DrawItem struct {
	Handle   scene.Handle
	Bounds   math.BoxSphereBounds
	LOD      int8
	Material scene.Material
	// Masked materials need their opacity mask evaluated during the depth
	// pass; everything else is depth only.
	Masked bool
}

// DepthTarget receives depth passes. Implementations write only inside
// the pass rectangle.
type DepthTarget interface {
	BeginPass(p Pass)
	MaskReceivers(bounds []math.BoxSphereBounds)
	DrawDepth(item DrawItem)
	EndPass()
}

type cubeTarget struct {
	resolution int
	faces      [6][]float32
}

// SoftwareAtlas is a CPU depth atlas. Depth is stored in [0,1] with 1 as
// the cleared far value. Cube slots are stored beside the 2D atlas.
type SoftwareAtlas struct {
	width, height int
	depth         []float32
	stencil       []bool
	cubes         map[int]*cubeTarget

	pass          Pass
	active        bool
	stencilActive bool

	drawn, masked int
}

// NewSoftwareAtlas creates a cleared atlas.
func NewSoftwareAtlas(width, height int) *SoftwareAtlas {
	a := &SoftwareAtlas{
		width:  width,
		height: height,
		depth:  make([]float32, width*height),
		cubes:  make(map[int]*cubeTarget),
	}
	a.Clear()
	return a
}

// Size returns the atlas dimensions.
func (a *SoftwareAtlas) Size() (width, height int) { return a.width, a.height }

// Clear resets every texel to the far value.
func (a *SoftwareAtlas) Clear() {
	for i := range a.depth {
		a.depth[i] = 1
	}
}

// Drawn returns the number of items drawn since creation, and how many of
// them went through the masked path.
func (a *SoftwareAtlas) Drawn() (total, masked int) { return a.drawn, a.masked }

// BeginPass implements DepthTarget. It clears the pass rectangle.
func (a *SoftwareAtlas) BeginPass(p Pass) {
	a.pass = p
	a.active = true
	a.stencilActive = false
	if p.Mode == OnePassCube {
		c := a.cube(p.Cube)
		for f := range c.faces {
			for i := range c.faces[f] {
				c.faces[f][i] = 1
			}
		}
		return
	}
	r := a.clip(p.Rect)
	for y := r.Y; y < r.Y+r.H; y++ {
		row := a.depth[y*a.width+r.X : y*a.width+r.X+r.W]
		for i := range row {
			row[i] = 1
		}
	}
}

func (a *SoftwareAtlas) cube(slot atlas.CubeSlot) *cubeTarget {
	c, ok := a.cubes[slot.Index]
	if !ok || c.resolution != slot.Resolution {
		c = &cubeTarget{resolution: slot.Resolution}
		for f := range c.faces {
			c.faces[f] = make([]float32, slot.Resolution*slot.Resolution)
		}
		a.cubes[slot.Index] = c
	}
	return c
}

func (a *SoftwareAtlas) clip(r atlas.Rect) atlas.Rect {
	x0, y0 := max(r.X, 0), max(r.Y, 0)
	x1, y1 := min(r.X+r.W, a.width), min(r.Y+r.H, a.height)
	if x1 <= x0 || y1 <= y0 {
		return atlas.Rect{}
	}
	return atlas.Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

func (a *SoftwareAtlas) rasterizer(viewProj math.Mat4, viewport, scissor atlas.Rect) *rasterizer {
	return &rasterizer{
		viewProj: viewProj,
		viewport: viewport,
		scissor:  scissor,
		bias:     a.pass.DepthBias,
		slope:    a.pass.SlopeScaleBias,
	}
}

// MaskReceivers implements DepthTarget: subsequent draws only land where a
// receiver covers the shadow.
func (a *SoftwareAtlas) MaskReceivers(bounds []math.BoxSphereBounds) {
	if !a.active || a.pass.Mode == OnePassCube {
		return
	}
	if len(a.stencil) != len(a.depth) {
		a.stencil = make([]bool, len(a.depth))
	}
	for i := range a.stencil {
		a.stencil[i] = false
	}
	scissor := a.clip(a.pass.Viewport)
	r := a.rasterizer(a.pass.ViewProj, a.pass.Viewport, scissor)
	r.bias, r.slope = 0, 0
	for _, b := range bounds {
		r.drawBox(b, func(x, y int, _ float32) {
			a.stencil[y*a.width+x] = true
		})
	}
	a.stencilActive = true
}

// DrawDepth implements DepthTarget.
func (a *SoftwareAtlas) DrawDepth(item DrawItem) {
	if !a.active {
		return
	}
	a.drawn++
	if item.Masked {
		a.masked++
	}

	if a.pass.Mode == OnePassCube {
		c := a.cube(a.pass.Cube)
		res := c.resolution
		vp := atlas.Rect{W: res, H: res}
		for f := range c.faces {
			face := c.faces[f]
			r := a.rasterizer(a.pass.Faces[f], vp, vp)
			r.drawBox(item.Bounds, func(x, y int, z float32) {
				if i := y*res + x; z < face[i] {
					face[i] = z
				}
			})
		}
		return
	}

	scissor := a.clip(a.pass.Viewport)
	r := a.rasterizer(a.pass.ViewProj, a.pass.Viewport, scissor)
	r.drawBox(item.Bounds, func(x, y int, z float32) {
		i := y*a.width + x
		if a.stencilActive && !a.stencil[i] {
			return
		}
		if z < a.depth[i] {
			a.depth[i] = z
		}
	})
}

// EndPass implements DepthTarget.
func (a *SoftwareAtlas) EndPass() {
	a.active = false
	a.stencilActive = false
}

// At returns the depth texel at x, y, or 1 outside the atlas.
func (a *SoftwareAtlas) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= a.width || y >= a.height {
		return 1
	}
	return a.depth[y*a.width+x]
}

// Sample returns the nearest texel at normalized atlas coordinates.
func (a *SoftwareAtlas) Sample(u, v float32) float32 {
	if u < 0 || v < 0 {
		return 1
	}
	return a.At(int(u*float32(a.width)), int(v*float32(a.height)))
}

// SampleCube returns the nearest texel of a cube face at normalized face
// coordinates, or 1 when the slot was never rendered.
func (a *SoftwareAtlas) SampleCube(slot, face int, u, v float32) float32 {
	c, ok := a.cubes[slot]
	if !ok || face < 0 || face >= 6 || u < 0 || v < 0 {
		return 1
	}
	x, y := int(u*float32(c.resolution)), int(v*float32(c.resolution))
	if x >= c.resolution || y >= c.resolution {
		return 1
	}
	return c.faces[face][y*c.resolution+x]
}

// Depth returns the raw atlas texels, row major.
func (a *SoftwareAtlas) Depth() []float32 { return a.depth }
