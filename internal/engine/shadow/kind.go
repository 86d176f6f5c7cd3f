// Package shadow builds, prioritises and allocates the projected shadows
// rendered each frame.
package shadow

import (
	"github.com/Faultbox/midgard-shadows/internal/engine/lighting"
	"github.com/Faultbox/midgard-shadows/internal/engine/scene"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// Kind is the shape of a projected shadow.
type Kind uint8

// Shadow kinds.
const (
	WholeSceneDirectional Kind = iota
	WholeScenePoint
	PerObject
	Preshadow
	ReflectiveShadowMap
	Translucent
)

func (k Kind) String() string {
	switch k {
	case WholeSceneDirectional:
		return "cascade"
	case WholeScenePoint:
		return "cube"
	case PerObject:
		return "per-object"
	case Preshadow:
		return "preshadow"
	case ReflectiveShadowMap:
		return "rsm"
	case Translucent:
		return "translucent"
	}
	return "unknown"
}

// Payload carries the kind specific fields of a descriptor. Only this
// package implements it; switch on the concrete type.
type Payload interface {
	Kind() Kind
	payload()
}

// CascadePayload is one split of a directional light's view cascades.
type CascadePayload struct {
	View      int // index of the view the cascade covers
	Index     int // 0 is nearest
	Count     int
	SplitNear float32
	SplitFar  float32

	// SliceNear is where the cascade's coverage starts, ahead of SplitNear
	// by the previous cascade's fade band.
	SliceNear float32

	// Receivers between FadePlaneOffset and FadePlaneOffset+FadePlaneLength
	// blend towards the next cascade. FadePlaneLength is 0 for the last one.
	FadePlaneOffset float32
	FadePlaneLength float32
}

// CubePayload is a point light rendered to all six faces in one pass.
type CubePayload struct {
	Faces     [6]math.Mat4 // view-projection per face, +X -X +Y -Y +Z -Z
	Near, Far float32
}

// PerObjectPayload is a shadow fitted to one movable caster.
type PerObjectPayload struct {
	Subject     scene.Handle
	Perspective bool
}

// PreshadowKey identifies a cached preshadow.
type PreshadowKey struct {
	Receiver scene.Handle
	Light    lighting.ID
}

// PreshadowPayload is the static casters' shadow on one movable receiver.
type PreshadowPayload struct {
	Key         PreshadowKey
	Fingerprint uint64
	Perspective bool
}

// ReflectivePayload is a reflective shadow map following one view.
type ReflectivePayload struct {
	View int
}

// TranslucentPayload is a translucent self-shadow of one caster.
type TranslucentPayload struct {
	Subject     scene.Handle
	Perspective bool
}

func (CascadePayload) Kind() Kind     { return WholeSceneDirectional }
func (CubePayload) Kind() Kind        { return WholeScenePoint }
func (PerObjectPayload) Kind() Kind   { return PerObject }
func (PreshadowPayload) Kind() Kind   { return Preshadow }
func (ReflectivePayload) Kind() Kind  { return ReflectiveShadowMap }
func (TranslucentPayload) Kind() Kind { return Translucent }

func (CascadePayload) payload()     {}
func (CubePayload) payload()        {}
func (PerObjectPayload) payload()   {}
func (PreshadowPayload) payload()   {}
func (ReflectivePayload) payload()  {}
func (TranslucentPayload) payload() {}
