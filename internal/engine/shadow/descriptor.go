package shadow

import (
	"errors"
	"fmt"

	"github.com/Faultbox/midgard-shadows/internal/engine/atlas"
	"github.com/Faultbox/midgard-shadows/internal/engine/lighting"
	"github.com/Faultbox/midgard-shadows/internal/engine/scene"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// ErrInvalidTransition is returned when a descriptor is moved to a status
// its lifecycle does not allow.
var ErrInvalidTransition = errors.New("shadow: invalid status transition")

// Status is a descriptor's position in the per-frame lifecycle.
type Status uint8

// Descriptor statuses.
const (
	Unallocated Status = iota
	Allocated
	DepthRendered
	Cached
	Discarded
)

func (s Status) String() string {
	switch s {
	case Unallocated:
		return "unallocated"
	case Allocated:
		return "allocated"
	case DepthRendered:
		return "depth-rendered"
	case Cached:
		return "cached"
	case Discarded:
		return "discarded"
	}
	return "unknown"
}

var transitions = map[Status][]Status{
	Unallocated:   {Allocated, Discarded},
	Allocated:     {DepthRendered, Cached, Discarded},
	DepthRendered: {Cached, Discarded},
}

// FadeAlphaThreshold is the fade alpha at or below which a shadow is not
// projected into a view.
const FadeAlphaThreshold = 1.0 / 256

// Descriptor is one projected shadow for the current frame.
type Descriptor struct {
	ID      uint32
	Light   *lighting.Light
	Payload Payload

	// Subjects cast into the shadow. Receivers are only set for preshadows,
	// whose depth is masked to them.
	Subjects       []scene.Handle
	Receivers      []scene.Handle
	ReceiverBounds []math.BoxSphereBounds

	ShadowView     math.Mat4
	ShadowProj     math.Mat4
	ShadowViewProj math.Mat4

	// Subject depth range along the light axis.
	MinZ, MaxZ float32

	BoundsCenter math.Vec3
	BoundsRadius float32

	// Requested is the heuristic's resolution before allocation, Resolution
	// the size actually rendered.
	Requested  int
	Resolution int
	Border     int

	// Rect includes the border. Cube is set instead for cube shadows.
	Rect       atlas.Rect
	Cube       atlas.CubeSlot
	Generation int

	FadeAlphas []float32

	DepthBias      float32
	SlopeScaleBias float32
	TransitionSize float32

	status      Status
	invalidated bool
	cacheHit    bool
	inCache     bool
}

// Kind returns the payload kind.
func (d *Descriptor) Kind() Kind { return d.Payload.Kind() }

// Status returns the lifecycle status.
func (d *Descriptor) Status() Status { return d.status }

// Transition moves the descriptor to status to.
func (d *Descriptor) Transition(to Status) error {
	for _, s := range transitions[d.status] {
		if s == to {
			d.status = to
			return nil
		}
	}
	return fmt.Errorf("%w: descriptor %d %s -> %s", ErrInvalidTransition, d.ID, d.status, to)
}

// Invalidate discards the descriptor mid-frame. Its allocation is left
// unconsumed and released with the rest of the frame's layout.
func (d *Descriptor) Invalidate() {
	d.invalidated = true
	if d.status != Cached && d.status != Discarded {
		d.status = Discarded
	}
}

// CacheHit reports whether a preshadow's cached depth is still valid, in
// which case its depth pass is skipped.
func (d *Descriptor) CacheHit() bool { return d.cacheHit }

// InPreshadowCache reports whether a preshadow was placed in the persistent
// preshadow atlas. Uncached preshadows live in a shared atlas generation and
// are rendered every frame.
func (d *Descriptor) InPreshadowCache() bool { return d.inCache }

// Invalidated reports whether Invalidate was called.
func (d *Descriptor) Invalidated() bool { return d.invalidated }

// Viewport returns the rendered area of Rect without its border.
func (d *Descriptor) Viewport() atlas.Rect { return d.Rect.Inset(d.Border) }

// Area is the allocation footprint used for ordering.
func (d *Descriptor) Area() int {
	s := d.Requested + 2*d.Border
	return s * s
}

// WholeScene reports whether the shadow covers every caster in its volume.
func (d *Descriptor) WholeScene() bool {
	k := d.Kind()
	return k == WholeSceneDirectional || k == WholeScenePoint
}

// FadeAlpha returns the fade alpha for a view, 0 for unknown views.
func (d *Descriptor) FadeAlpha(view int) float32 {
	if view < 0 || view >= len(d.FadeAlphas) {
		return 0
	}
	return d.FadeAlphas[view]
}

// MaxFadeAlpha returns the largest fade alpha over all views.
func (d *Descriptor) MaxFadeAlpha() float32 {
	var m float32
	for _, a := range d.FadeAlphas {
		m = max(m, a)
	}
	return m
}

// Projectable reports whether the shadow should be composited into view.
// Reflective and translucent shadows are consumed elsewhere.
func (d *Descriptor) Projectable(view int) bool {
	if d.invalidated || d.Kind() == ReflectiveShadowMap || d.Kind() == Translucent {
		return false
	}
	if d.status != DepthRendered && d.status != Cached {
		return false
	}
	return d.FadeAlpha(view) > FadeAlphaThreshold
}
