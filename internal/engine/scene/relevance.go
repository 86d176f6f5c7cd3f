package scene

import "github.com/Faultbox/midgard-shadows/pkg/math"

// Relevance is the set of draw buckets a primitive contributes to in a view.
type Relevance uint16

// Relevance flags.
const (
	RelevanceDraw Relevance = 1 << iota
	RelevanceDynamic
	RelevanceStatic
	RelevanceShadow
	RelevanceIndirectLighting
	RelevanceTranslucent
	RelevanceOpaque
	RelevanceEditor
	RelevanceRenderInMainPass
)

// Has reports whether every flag in f is set.
func (r Relevance) Has(f Relevance) bool { return r&f == f }

// DrawRelevant reports whether the primitive lands in any draw bucket.
func (r Relevance) DrawRelevant() bool {
	return r.Has(RelevanceDraw) && r&(RelevanceDynamic|RelevanceStatic|RelevanceEditor) != 0
}

// ViewContext is the view information handed to relevance providers.
type ViewContext struct {
	ViewIndex int
	Name      string
	Origin    math.Vec3
	Frame     uint32
}

// Proxy computes per-view relevance. It is supplied by the asset system.
type Proxy interface {
	ViewRelevance(ctx ViewContext) Relevance
}

// StaticProxy returns the same relevance for every view.
type StaticProxy struct {
	Flags Relevance
}

// ViewRelevance implements Proxy.
func (p StaticProxy) ViewRelevance(ViewContext) Relevance { return p.Flags }

// BlendMode is a material's blend mode.
type BlendMode uint8

// Blend modes.
const (
	BlendOpaque BlendMode = iota
	BlendMasked
	BlendTranslucent
	BlendAdditive
	BlendModulate
)

// Translucent reports whether the mode blends with what is behind it.
func (b BlendMode) Translucent() bool { return b >= BlendTranslucent }

// Material is the part of a material the shadow pipeline needs.
type Material struct {
	Blend    BlendMode
	Masked   bool
	TwoSided bool
}

// MaterialRelevance is the callback the shadow renderer uses to decide how
// to draw a caster's depth.
type MaterialRelevance interface {
	ShadowMaterial(lod int) Material
}

// FixedMaterial uses one material for every LOD.
type FixedMaterial Material

// ShadowMaterial implements MaterialRelevance.
func (m FixedMaterial) ShadowMaterial(int) Material { return Material(m) }
