// Package view holds one camera's per-frame visibility results and the
// memory it carries between frames.
package view

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/Faultbox/midgard-shadows/internal/engine/fade"
	"github.com/Faultbox/midgard-shadows/internal/engine/scene"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// Params describe a camera for one frame.
type Params struct {
	Name       string
	ViewMatrix math.Mat4
	ProjMatrix math.Mat4
	Origin     math.Vec3

	// CullingOrigin overrides Origin for distance culling when set.
	CullingOrigin    math.Vec3
	HasCullingOrigin bool

	LODDistanceFactor float32
	Width, Height     int

	HasNearPlane           bool
	DisableFade            bool
	IgnoreExistingQueries  bool
	DisableQuerySubmission bool
	ShowSelection          bool

	// PrecomputedVisibility is the baked visibility cell for the view
	// position, one bit per primitive VisibilityID.
	PrecomputedVisibility []byte

	// SceneDepth is the view's depth buffer for this frame. Occlusion
	// queries and shadow projection read it.
	SceneDepth *DepthBuffer
}

// View is one camera's visibility state for the current frame.
type View struct {
	Params
	Index int
	State State

	ViewProj    math.Mat4
	InvViewProj math.Mat4
	Frustum     math.Frustum
	NearPlane   math.Plane

	Visible              *bitset.BitSet
	PotentiallyFading    *bitset.BitSet
	Fading               *bitset.BitSet
	DefinitelyUnoccluded *bitset.BitSet

	Relevance []scene.Relevance
	LOD       []int8
	Fade      []fade.Params

	VisibleDynamic []scene.Handle
	VisibleStatic  []scene.Handle
	VisibleEditor  []scene.Handle
	Translucent    []scene.Handle
}

// New creates a view over the given state.
func New(index int, p Params, state State) *View {
	if p.LODDistanceFactor == 0 {
		p.LODDistanceFactor = 1
	}
	v := &View{Index: index, State: state}
	v.SetParams(p)
	return v
}

// SetParams updates the camera and recomputes the derived matrices.
func (v *View) SetParams(p Params) {
	if p.LODDistanceFactor == 0 {
		p.LODDistanceFactor = 1
	}
	v.Params = p
	v.ViewProj = p.ProjMatrix.Mul(p.ViewMatrix)
	v.InvViewProj = v.ViewProj.Inverse()
	v.Frustum = math.NewFrustum(v.ViewProj, p.HasNearPlane)
	near := math.NewFrustum(v.ViewProj, true)
	v.NearPlane = near.Planes[math.PlaneNear]
}

// CullOrigin returns the point distance culling measures from.
func (v *View) CullOrigin() math.Vec3 {
	if v.HasCullingOrigin {
		return v.CullingOrigin
	}
	return v.Origin
}

// Context returns the relevance context handed to primitive proxies.
func (v *View) Context() scene.ViewContext {
	return scene.ViewContext{ViewIndex: v.Index, Name: v.Name, Origin: v.Origin, Frame: v.State.Frame()}
}

// Reset sizes and clears the per-frame results for a scene of n slots.
// Storage is reused when the slot count is unchanged.
func (v *View) Reset(n int) {
	v.Visible = resetBits(v.Visible, n)
	v.PotentiallyFading = resetBits(v.PotentiallyFading, n)
	v.Fading = resetBits(v.Fading, n)
	v.DefinitelyUnoccluded = resetBits(v.DefinitelyUnoccluded, n)

	if cap(v.Relevance) < n {
		v.Relevance = make([]scene.Relevance, n)
		v.LOD = make([]int8, n)
		v.Fade = make([]fade.Params, n)
	}
	v.Relevance = v.Relevance[:n]
	v.LOD = v.LOD[:n]
	v.Fade = v.Fade[:n]
	for i := range v.LOD {
		v.Relevance[i] = 0
		v.LOD[i] = -1
		v.Fade[i] = fade.Visible
	}

	v.VisibleDynamic = v.VisibleDynamic[:0]
	v.VisibleStatic = v.VisibleStatic[:0]
	v.VisibleEditor = v.VisibleEditor[:0]
	v.Translucent = v.Translucent[:0]
}

func resetBits(b *bitset.BitSet, n int) *bitset.BitSet {
	if b == nil || b.Len() != uint(n) {
		return bitset.New(uint(n))
	}
	b.ClearAll()
	return b
}

// IsVisible reports whether slot survived every visibility stage so far.
func (v *View) IsVisible(slot int) bool {
	return v.Visible.Test(uint(slot))
}

// FadeFactor returns the distance fade opacity of slot at the view's time.
func (v *View) FadeFactor(slot int) float32 {
	if !v.Fading.Test(uint(slot)) {
		return 1
	}
	return math.Clamp01(v.Fade[slot].At(v.State.Now()))
}

// VisibleCount returns the number of visible slots.
func (v *View) VisibleCount() int {
	return int(v.Visible.Count())
}

// IntersectsNearPlane reports whether b touches or crosses the near plane.
func (v *View) IntersectsNearPlane(b math.BoxSphereBounds) bool {
	return v.NearPlane.Dot(b.Origin) < math.BoxPushOut(v.NearPlane.Normal, b.BoxExtent)
}

// ScreenToWorld reconstructs a world position from a pixel and its depth.
func (v *View) ScreenToWorld(x, y float32, depth float32) math.Vec3 {
	ndcX := (x+0.5)/float32(v.Width)*2 - 1
	ndcY := (y+0.5)/float32(v.Height)*2 - 1
	c := v.InvViewProj.MulVec4(math.Vec4{ndcX, ndcY, depth*2 - 1, 1})
	inv := 1 / c[3]
	return math.Vec3{X: c[0] * inv, Y: c[1] * inv, Z: c[2] * inv}
}
