package hzb

import (
	gomath "math"
	"testing"

	"github.com/Faultbox/midgard-shadows/pkg/math"
)

func viewProj() math.Mat4 {
	proj := math.Perspective(float32(gomath.Pi/2), 1, 1, 1000)
	view := math.LookAt(math.Vec3{}, math.Vec3{Z: -1}, math.Vec3{Y: 1})
	return proj.Mul(view)
}

func fill(w, h int, d float32) []float32 {
	out := make([]float32, w*h)
	for i := range out {
		out[i] = d
	}
	return out
}

func ndcDepth(vp math.Mat4, p math.Vec3) float32 {
	ndc, _, _ := vp.Project(p)
	return ndc.Z*0.5 + 0.5
}

func TestBuildMaxChain(t *testing.T) {
	depth := []float32{
		0.1, 0.2, 0.3,
		0.4, 0.9, 0.5,
	}
	p := Build(3, 2, depth, math.Identity())
	if len(p.Levels) != 3 {
		t.Fatalf("levels = %d, want 3 (3x2, 2x1, 1x1)", len(p.Levels))
	}
	top := p.Levels[len(p.Levels)-1]
	if top.Width != 1 || top.Height != 1 || top.Depth[0] != 0.9 {
		t.Errorf("top level = %+v, want single 0.9 texel", top)
	}
	if l1 := p.Levels[1]; l1.Depth[0] != 0.9 || l1.Depth[1] != 0.5 {
		t.Errorf("level 1 = %v", l1.Depth)
	}
}

func TestBoxBehindWallIsOccluded(t *testing.T) {
	vp := viewProj()
	wall := ndcDepth(vp, math.Vec3{Z: -10})
	p := Build(64, 64, fill(64, 64, wall), vp)

	behind := math.NewBounds(math.Vec3{Z: -50}, math.Vec3{X: 1, Y: 1, Z: 1})
	if p.TestBounds(behind, 4) {
		t.Error("box behind a full-screen wall should be occluded")
	}
	front := math.NewBounds(math.Vec3{Z: -5}, math.Vec3{X: 1, Y: 1, Z: 1})
	if !p.TestBounds(front, 4) {
		t.Error("box in front of the wall should be visible")
	}
}

func TestHoleInWallKeepsVisible(t *testing.T) {
	vp := viewProj()
	wall := ndcDepth(vp, math.Vec3{Z: -10})
	depth := fill(64, 64, wall)
	// Open the centre of the screen to the far plane.
	for y := 28; y < 36; y++ {
		for x := 28; x < 36; x++ {
			depth[y*64+x] = 1
		}
	}
	p := Build(64, 64, depth, vp)
	box := math.NewBounds(math.Vec3{Z: -50}, math.Vec3{X: 1, Y: 1, Z: 1})
	if !p.TestBounds(box, 4) {
		t.Error("box seen through the hole should be visible")
	}
}

func TestCrossingEyePlaneIsVisible(t *testing.T) {
	vp := viewProj()
	p := Build(8, 8, fill(8, 8, 0.01), vp)
	if !p.TestBounds(math.NewBounds(math.Vec3{}, math.Vec3{X: 2, Y: 2, Z: 2}), 4) {
		t.Error("box around the eye must be visible")
	}
	var nilPyramid *Pyramid
	if !nilPyramid.TestBounds(math.NewBounds(math.Vec3{Z: -5}, math.Vec3{X: 1, Y: 1, Z: 1}), 4) {
		t.Error("missing pyramid must report visible")
	}
}
