package scene

import "github.com/Faultbox/midgard-shadows/pkg/math"

// OcclusionFlags control how a primitive takes part in occlusion culling.
type OcclusionFlags uint8

// Occlusion flags.
const (
	CanBeOccluded OcclusionFlags = 1 << iota
	AllowApproximateOcclusion
	HasPrecomputedVisibility
)

// Has reports whether every flag in f is set.
func (o OcclusionFlags) Has(f OcclusionFlags) bool { return o&f == f }

// StaticMeshLOD is one entry of a primitive's LOD distance table. The
// distances are in world units before view scaling.
type StaticMeshLOD struct {
	MinDistance float32
	MaxDistance float32
	LODIndex    int8
}

// VisibilityID addresses a primitive's bit in precomputed visibility data.
type VisibilityID struct {
	ByteIndex int32 // -1 when the primitive has no precomputed bit
	BitMask   uint8
}

// NoVisibilityID is the VisibilityID of primitives without baked data.
var NoVisibilityID = VisibilityID{ByteIndex: -1}

// Primitive is a renderable object instance.
type Primitive struct {
	Name   string
	Bounds math.BoxSphereBounds

	MinDrawDistance float32
	MaxDrawDistance float32 // 0 means unlimited

	LODs []StaticMeshLOD

	CastShadow             bool
	Movable                bool
	ReceivesDynamicShadows bool
	Selected               bool

	Occlusion    OcclusionFlags
	VisibilityID VisibilityID

	Proxy    Proxy
	Material MaterialRelevance

	// Bookkeeping written by the renderer.
	LastRenderTime           float32
	LastVisibilityChangeTime float32

	// Version is bumped by Scene.Update and feeds shadow cache fingerprints.
	Version uint32
}

// ViewRelevance returns the primitive's relevance for a view, falling back
// to an opaque static mesh when no proxy is attached.
func (p *Primitive) ViewRelevance(ctx ViewContext) Relevance {
	if p.Proxy != nil {
		return p.Proxy.ViewRelevance(ctx)
	}
	r := RelevanceDraw | RelevanceStatic | RelevanceOpaque | RelevanceRenderInMainPass
	if p.CastShadow {
		r |= RelevanceShadow
	}
	if p.Movable {
		r = r&^RelevanceStatic | RelevanceDynamic
	}
	return r
}

// ShadowMaterial returns the material used to render the primitive's depth
// at the given LOD.
func (p *Primitive) ShadowMaterial(lod int) Material {
	if p.Material != nil {
		return p.Material.ShadowMaterial(lod)
	}
	return Material{Blend: BlendOpaque}
}

// MaxLOD returns the highest LOD index in the table, or -1 without LODs.
func (p *Primitive) MaxLOD() int8 {
	maxLOD := int8(-1)
	for _, l := range p.LODs {
		if l.LODIndex > maxLOD {
			maxLOD = l.LODIndex
		}
	}
	return maxLOD
}
