package shadowdepth

import (
	"github.com/Faultbox/midgard-shadows/internal/engine/atlas"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// clipW is the smallest w kept when clipping against the eye plane.
const clipW = 1e-4

// boxTriangles indexes the 12 triangles of a box's corners as produced by
// BoxSphereBounds.Corners: bit 0 of a corner index is X, bit 1 Y, bit 2 Z.
var boxTriangles = [12][3]int{
	{0, 2, 6}, {0, 6, 4},
	{1, 5, 7}, {1, 7, 3},
	{0, 4, 5}, {0, 5, 1},
	{2, 3, 7}, {2, 7, 6},
	{0, 1, 3}, {0, 3, 2},
	{4, 6, 7}, {4, 7, 5},
}

// screenVertex is a vertex in target pixel space with [0,1] depth.
type screenVertex struct {
	x, y, z float32
}

// rasterizer draws boxes into a pixel rectangle of a depth target.
type rasterizer struct {
	viewProj math.Mat4
	viewport atlas.Rect // NDC [-1,1] maps onto this rectangle
	scissor  atlas.Rect // writes outside are discarded
	bias     float32
	slope    float32
}

// drawBox rasterises the triangles of b, calling write with the biased
// depth of every covered pixel center.
func (r *rasterizer) drawBox(b math.BoxSphereBounds, write func(x, y int, z float32)) {
	corners := b.Corners()
	var clip [8]math.Vec4
	for i, c := range corners {
		clip[i] = r.viewProj.Transform4(c)
	}
	var poly [4]math.Vec4
	for _, tri := range boxTriangles {
		n := clipTriangle(clip[tri[0]], clip[tri[1]], clip[tri[2]], &poly)
		if n < 3 {
			continue
		}
		v0 := r.toScreen(poly[0])
		for i := 1; i+1 < n; i++ {
			r.fillTriangle(v0, r.toScreen(poly[i]), r.toScreen(poly[i+1]), write)
		}
	}
}

// clipTriangle clips a clip-space triangle against w > clipW and returns
// the vertex count of the resulting polygon.
func clipTriangle(a, b, c math.Vec4, out *[4]math.Vec4) int {
	in := [3]math.Vec4{a, b, c}
	n := 0
	for i := 0; i < 3; i++ {
		p, q := in[i], in[(i+1)%3]
		pIn, qIn := p[3] > clipW, q[3] > clipW
		if pIn {
			out[n] = p
			n++
		}
		if pIn != qIn {
			t := (p[3] - clipW) / (p[3] - q[3])
			var m math.Vec4
			for k := range m {
				m[k] = p[k] + (q[k]-p[k])*t
			}
			out[n] = m
			n++
		}
	}
	return n
}

func (r *rasterizer) toScreen(c math.Vec4) screenVertex {
	inv := 1 / c[3]
	vp := r.viewport
	return screenVertex{
		x: float32(vp.X) + (c[0]*inv*0.5+0.5)*float32(vp.W),
		y: float32(vp.Y) + (c[1]*inv*0.5+0.5)*float32(vp.H),
		z: c[2]*inv*0.5 + 0.5,
	}
}

func edge(a, b screenVertex, x, y float32) float32 {
	return (b.x-a.x)*(y-a.y) - (b.y-a.y)*(x-a.x)
}

// fillTriangle covers pixel centers inside the triangle, either winding.
func (r *rasterizer) fillTriangle(a, b, c screenVertex, write func(x, y int, z float32)) {
	area := edge(a, b, c.x, c.y)
	if area == 0 {
		return
	}
	s := r.scissor
	minX := max(s.X, int(min(a.x, b.x, c.x)))
	maxX := min(s.X+s.W-1, int(max(a.x, b.x, c.x)))
	minY := max(s.Y, int(min(a.y, b.y, c.y)))
	maxY := min(s.Y+s.H-1, int(max(a.y, b.y, c.y)))
	if minX > maxX || minY > maxY {
		return
	}

	// Constant depth gradient across the triangle, in depth per pixel.
	dzdx := ((b.z-a.z)*(c.y-a.y) - (c.z-a.z)*(b.y-a.y)) / area
	dzdy := ((c.z-a.z)*(b.x-a.x) - (b.z-a.z)*(c.x-a.x)) / area
	offset := r.bias + r.slope*max(abs32(dzdx), abs32(dzdy))

	inv := 1 / area
	for y := minY; y <= maxY; y++ {
		py := float32(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float32(x) + 0.5
			w0 := edge(b, c, px, py) * inv
			w1 := edge(c, a, px, py) * inv
			w2 := edge(a, b, px, py) * inv
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			z := w0*a.z + w1*b.z + w2*c.z + offset
			// Casters in front of the near plane are clamped onto it.
			write(x, y, max(z, 0))
		}
	}
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
