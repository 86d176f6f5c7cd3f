package debug

import (
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// BBoxWireframeVertexCount is the number of vertices for a bbox wireframe (12 edges × 2).
const BBoxWireframeVertexCount = 24

// bboxEdges indexes the corners of math.BoxSphereBounds.Corners, where bit
// 0 of the index selects max X, bit 1 max Y and bit 2 max Z.
var bboxEdges = [12][2]int{
	// Bottom face
	{0, 1}, {1, 5}, {5, 4}, {4, 0},
	// Top face
	{2, 3}, {3, 7}, {7, 6}, {6, 2},
	// Vertical edges
	{0, 2}, {1, 3}, {5, 7}, {4, 6},
}

// BBoxWireframe returns the 24 endpoints of b's edges in world space.
func BBoxWireframe(b math.BoxSphereBounds) [BBoxWireframeVertexCount]math.Vec3 {
	corners := b.Corners()
	var out [BBoxWireframeVertexCount]math.Vec3
	for i, e := range bboxEdges {
		out[2*i] = corners[e[0]]
		out[2*i+1] = corners[e[1]]
	}
	return out
}

// Line is a screen space segment in pixels, origin top left.
type Line struct {
	X0, Y0, X1, Y1 float32
}

// ScreenLines projects b's wireframe into a width by height viewport.
// Edges with an endpoint behind the eye are skipped.
func ScreenLines(viewProj math.Mat4, b math.BoxSphereBounds, width, height int) []Line {
	w, h := float32(width), float32(height)
	toScreen := func(p math.Vec3) (float32, float32, bool) {
		ndc, _, ok := viewProj.Project(p)
		if !ok {
			return 0, 0, false
		}
		return (ndc.X*0.5 + 0.5) * w, (0.5 - ndc.Y*0.5) * h, true
	}

	verts := BBoxWireframe(b)
	lines := make([]Line, 0, len(bboxEdges))
	for i := 0; i < len(verts); i += 2 {
		x0, y0, ok0 := toScreen(verts[i])
		x1, y1, ok1 := toScreen(verts[i+1])
		if !ok0 || !ok1 {
			continue
		}
		lines = append(lines, Line{x0, y0, x1, y1})
	}
	return lines
}
