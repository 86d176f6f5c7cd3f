package math

import (
	"math"
	"testing"
)

func approxVec(a, b Vec3, eps float32) bool {
	return abs(a.X-b.X) <= eps && abs(a.Y-b.Y) <= eps && abs(a.Z-b.Z) <= eps
}

func TestMulIdentity(t *testing.T) {
	m := LookAt(Vec3{1, 2, 3}, Vec3{}, Vec3{0, 1, 0})
	if got := m.Mul(Identity()); got != m {
		t.Errorf("M * I = %v, want %v", got, m)
	}
	if got := Identity().Mul(m); got != m {
		t.Errorf("I * M = %v, want %v", got, m)
	}
}

func TestMulOrder(t *testing.T) {
	// Projection applied after view: the eye maps to the NDC origin on the
	// near plane.
	view := LookAt(Vec3{0, 0, 5}, Vec3{}, Vec3{0, 1, 0})
	proj := Ortho(-1, 1, -1, 1, 1, 10)
	ndc, _, ok := proj.Mul(view).Project(Vec3{0, 0, 4})
	if !ok {
		t.Fatal("orthographic projection should always project")
	}
	if !approxVec(ndc, Vec3{0, 0, -1}, 1e-5) {
		t.Errorf("near plane center = %v, want (0,0,-1)", ndc)
	}
}

func TestTransformPoint(t *testing.T) {
	tests := []struct {
		name string
		m    Mat4
		in   Vec3
		want Vec3
	}{
		{"identity", Identity(), Vec3{1, 2, 3}, Vec3{1, 2, 3}},
		{"look down -z from origin", LookAt(Vec3{}, Vec3{0, 0, -1}, Vec3{0, 1, 0}), Vec3{1, 2, 3}, Vec3{1, 2, 3}},
		{"look from +z", LookAt(Vec3{0, 0, 5}, Vec3{}, Vec3{0, 1, 0}), Vec3{0, 0, 0}, Vec3{0, 0, -5}},
		{"look from +x", LookAt(Vec3{5, 0, 0}, Vec3{}, Vec3{0, 1, 0}), Vec3{0, 0, 1}, Vec3{-1, 0, -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.TransformVec3(tt.in); !approxVec(got, tt.want, 1e-5) {
				t.Errorf("TransformVec3(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPerspective(t *testing.T) {
	m := Perspective(float32(math.Pi/4), 1, 0.1, 100)

	if m[15] != 0 || m[11] != -1 {
		t.Errorf("perspective w row = (%f, %f), want (-1, 0)", m[11], m[15])
	}
	for _, tt := range []struct {
		z, want float32
	}{{-0.1, -1}, {-100, 1}} {
		ndc, _, ok := m.Project(Vec3{0, 0, tt.z})
		if !ok || abs(ndc.Z-tt.want) > 1e-4 {
			t.Errorf("depth at z=%v is %v, want %v", tt.z, ndc.Z, tt.want)
		}
	}
}

func TestCubeFaceProjectionIsSquare90(t *testing.T) {
	m := CubeFaceProjection(1, 50)
	// A point on the 45 degree edge lands on the NDC border.
	ndc, _, ok := m.Project(Vec3{10, 10, -10})
	if !ok || abs(ndc.X-1) > 1e-5 || abs(ndc.Y-1) > 1e-5 {
		t.Errorf("edge point projected to %v, want x=y=1", ndc)
	}
}

func TestProjectCenterAndBehind(t *testing.T) {
	vp := Perspective(float32(math.Pi/2), 1, 1, 100).Mul(LookAt(Vec3{0, 0, 0}, Vec3{0, 0, -1}, Vec3{0, 1, 0}))

	ndc, _, ok := vp.Project(Vec3{0, 0, -10})
	if !ok {
		t.Fatal("point in front of the eye should project")
	}
	if abs(ndc.X) > 1e-5 || abs(ndc.Y) > 1e-5 {
		t.Errorf("center point projected to %v, want x=y=0", ndc)
	}
	if ndc.Z <= -1 || ndc.Z >= 1 {
		t.Errorf("depth %f outside (-1,1)", ndc.Z)
	}

	if _, _, ok := vp.Project(Vec3{0, 0, 10}); ok {
		t.Error("point behind the eye should not project")
	}
}

func TestInverseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		m    Mat4
	}{
		{"view", LookAt(Vec3{3, -2, 7}, Vec3{1, 1, 1}, Vec3{0, 1, 0})},
		{"perspective view", Perspective(1, 1.5, 0.5, 300).Mul(LookAt(Vec3{0, 40, 30}, Vec3{}, Vec3{0, 1, 0}))},
		{"ortho", Ortho(-4, 6, -3, 5, 2, 90)},
	}
	id := Identity()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.m.Mul(tt.m.Inverse())
			for i := range r {
				if abs(r[i]-id[i]) > 1e-3 {
					t.Fatalf("M * M^-1 element %d = %f, want %f", i, r[i], id[i])
				}
			}
		})
	}
}

func TestInverseSingular(t *testing.T) {
	if got := (Mat4{}).Inverse(); got != Identity() {
		t.Errorf("singular inverse = %v, want identity", got)
	}
}

func TestRowMatchesColumnMajorLayout(t *testing.T) {
	m := LookAt(Vec3{5, 6, 7}, Vec3{5, 6, 0}, Vec3{0, 1, 0})
	// Looking down -z: rotation is identity, translation is -eye.
	if got := m.Row(0); got != (Vec4{1, 0, 0, -5}) {
		t.Errorf("Row(0) = %v", got)
	}
	if got := m.Row(2); got != (Vec4{0, 0, 1, -7}) {
		t.Errorf("Row(2) = %v", got)
	}
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
