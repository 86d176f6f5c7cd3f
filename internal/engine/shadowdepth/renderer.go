package shadowdepth

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-shadows/internal/config"
	"github.com/Faultbox/midgard-shadows/internal/engine/lighting"
	"github.com/Faultbox/midgard-shadows/internal/engine/relevance"
	"github.com/Faultbox/midgard-shadows/internal/engine/scene"
	"github.com/Faultbox/midgard-shadows/internal/engine/shadow"
	"github.com/Faultbox/midgard-shadows/internal/logger"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// PreshadowMarker records preshadows whose depth became valid. It reports
// false for preshadows it does not cache.
type PreshadowMarker interface {
	MarkRendered(d *shadow.Descriptor) bool
}

// Stats counts the work of Render calls.
type Stats struct {
	Rendered           int
	Cached             int
	Invalidated        int
	Drawn              int
	Masked             int
	SkippedTranslucent int
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Rendered += o.Rendered
	s.Cached += o.Cached
	s.Invalidated += o.Invalidated
	s.Drawn += o.Drawn
	s.Masked += o.Masked
	s.SkippedTranslucent += o.SkippedTranslucent
}

// Renderer runs the depth pass of allocated descriptors.
type Renderer struct {
	cfg        config.ShadowConfig
	preshadows PreshadowMarker
	log        *zap.Logger
}

// NewRenderer creates a depth renderer. preshadows may be nil.
func NewRenderer(cfg config.ShadowConfig, preshadows PreshadowMarker) *Renderer {
	return &Renderer{cfg: cfg, preshadows: preshadows, log: logger.Named("shadowdepth")}
}

// Render draws the depth of d's subjects into target and advances d to
// DepthRendered, or to Cached for preshadows held by the preshadow cache.
// Preshadows whose cached depth is still valid skip drawing entirely.
// Invalidated descriptors are left alone.
func (r *Renderer) Render(ctx context.Context, target DepthTarget, sc *scene.Scene, d *shadow.Descriptor) (Stats, error) {
	var st Stats
	if err := ctx.Err(); err != nil {
		return st, fmt.Errorf("render shadow %d: %w", d.ID, err)
	}
	if d.Invalidated() {
		st.Invalidated++
		return st, nil
	}
	if d.Status() != shadow.Allocated {
		return st, fmt.Errorf("render shadow %d in status %s: %w", d.ID, d.Status(), shadow.ErrInvalidTransition)
	}

	if d.Kind() == shadow.Preshadow && d.CacheHit() {
		d.DepthBias, d.SlopeScaleBias, d.TransitionSize = ComputeBias(d, r.cfg)
		if err := d.Transition(shadow.Cached); err != nil {
			return st, err
		}
		st.Cached++
		return st, nil
	}

	pass := NewPass(d, r.cfg)
	target.BeginPass(pass)
	if pass.StencilReceivers {
		target.MaskReceivers(d.ReceiverBounds)
	}

	eye := lodOrigin(d)
	keepTranslucent := d.Kind() == shadow.ReflectiveShadowMap || d.Kind() == shadow.Translucent
	for _, h := range d.Subjects {
		p, ok := sc.Get(h)
		if !ok {
			// Removed after the descriptor was built.
			continue
		}
		lod := relevance.SelectLOD(p.LODs, eye.DistanceSquared(p.Bounds.Origin), 1, -1)
		mat := p.ShadowMaterial(int(max(lod, 0)))
		if mat.Blend.Translucent() && !keepTranslucent {
			st.SkippedTranslucent++
			continue
		}
		item := DrawItem{
			Handle:   h,
			Bounds:   p.Bounds,
			LOD:      lod,
			Material: mat,
			Masked:   mat.Masked || mat.Blend == scene.BlendMasked,
		}
		target.DrawDepth(item)
		st.Drawn++
		if item.Masked {
			st.Masked++
		}
	}
	target.EndPass()

	if err := d.Transition(shadow.DepthRendered); err != nil {
		return st, err
	}
	st.Rendered++
	if d.Kind() == shadow.Preshadow && r.preshadows != nil && r.preshadows.MarkRendered(d) {
		if err := d.Transition(shadow.Cached); err != nil {
			return st, err
		}
	}

	r.log.Debug("rendered shadow depth",
		zap.Uint32("id", d.ID),
		zap.Stringer("kind", d.Kind()),
		zap.Stringer("mode", pass.Mode),
		zap.Int("drawn", st.Drawn),
		zap.Float32("bias", d.DepthBias))
	return st, nil
}

// lodOrigin is the point shadow LODs are measured from: the light for local
// lights, the shadow's bounds center for directional ones.
func lodOrigin(d *shadow.Descriptor) math.Vec3 {
	if d.Light.Type == lighting.Directional {
		return d.BoundsCenter
	}
	return d.Light.Position
}
