package shadow

import (
	"cmp"
	"slices"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-shadows/internal/config"
	"github.com/Faultbox/midgard-shadows/internal/engine/atlas"
	"github.com/Faultbox/midgard-shadows/internal/engine/lighting"
	"github.com/Faultbox/midgard-shadows/internal/logger"
)

// Pass is one atlas generation: every descriptor in it fits the atlas at
// the same time and is rendered before any of them is projected.
type Pass struct {
	Generation  int
	Descriptors []*Descriptor
}

// Plan is the frame's allocated shadow work.
type Plan struct {
	Passes           []Pass
	Cube             []*Descriptor
	Translucent      []*Descriptor
	CachedPreshadows []*Descriptor
	Dropped          []*Descriptor
}

// Lights returns the IDs of every light with scheduled work, ascending.
func (p *Plan) Lights() []lighting.ID {
	var ids []lighting.ID
	p.each(func(d *Descriptor) {
		if !slices.Contains(ids, d.Light.ID) {
			ids = append(ids, d.Light.ID)
		}
	})
	slices.Sort(ids)
	return ids
}

// each visits every scheduled descriptor in render order.
func (p *Plan) each(fn func(*Descriptor)) {
	for _, pass := range p.Passes {
		for _, d := range pass.Descriptors {
			fn(d)
		}
	}
	for _, d := range p.CachedPreshadows {
		fn(d)
	}
	for _, d := range p.Cube {
		fn(d)
	}
	for _, d := range p.Translucent {
		fn(d)
	}
}

// Invalidate discards every scheduled descriptor of a light that became
// irrelevant before submission.
func (p *Plan) Invalidate(id lighting.ID) int {
	n := 0
	p.each(func(d *Descriptor) {
		if d.Light.ID == id && !d.Invalidated() {
			d.Invalidate()
			n++
		}
	})
	return n
}

// AnyShadowVisible reports whether any live shadow of the light will be
// projected into at least one view.
func (p *Plan) AnyShadowVisible(id lighting.ID) bool {
	found := false
	p.each(func(d *Descriptor) {
		if found || d.Light.ID != id || d.Invalidated() || d.Kind() == ReflectiveShadowMap {
			return
		}
		found = d.MaxFadeAlpha() > FadeAlphaThreshold
	})
	return found
}

// Count returns the number of scheduled descriptors.
func (p *Plan) Count() int {
	n := 0
	p.each(func(*Descriptor) { n++ })
	return n
}

// Scheduler allocates atlas space for the frame's descriptors.
type Scheduler struct {
	cfg         config.ShadowConfig
	passes      []*atlas.Layout
	translucent *atlas.Layout
	cubes       *atlas.CubePool
	preshadows  *PreshadowCache
}

// NewScheduler creates a scheduler sized by cfg. The preshadow cache lives
// as long as the scheduler.
func NewScheduler(cfg config.ShadowConfig) *Scheduler {
	s := &Scheduler{
		cfg:         cfg,
		translucent: atlas.NewLayout(cfg.TranslucentSize, cfg.TranslucentSize),
		cubes:       atlas.NewCubePool(cfg.CubeSlots, cfg.CubeResolution),
		preshadows:  NewPreshadowCache(cfg.PreshadowCacheSize, cfg.PreshadowAtlasSize),
	}
	for i := 0; i < max(cfg.AtlasPasses, 1); i++ {
		s.passes = append(s.passes, atlas.NewLayout(cfg.AtlasSize, cfg.AtlasSize))
	}
	return s
}

// Preshadows returns the preshadow cache.
func (s *Scheduler) Preshadows() *PreshadowCache { return s.preshadows }

// Layout returns the atlas layout of a generation.
func (s *Scheduler) Layout(generation int) *atlas.Layout { return s.passes[generation] }

// TranslucentLayout returns the translucent shadow layout.
func (s *Scheduler) TranslucentLayout() *atlas.Layout { return s.translucent }

// Less orders descriptors for allocation and rendering: cascades first,
// each light's cascades from far to near, then everything else by
// descending footprint, ties broken by light and ID.
func Less(a, b *Descriptor) int {
	ca, aCSM := a.Payload.(CascadePayload)
	cb, bCSM := b.Payload.(CascadePayload)
	switch {
	case aCSM && !bCSM:
		return -1
	case !aCSM && bCSM:
		return 1
	case aCSM && bCSM:
		return cmp.Or(
			cmp.Compare(a.Light.ID, b.Light.ID),
			cmp.Compare(ca.View, cb.View),
			cmp.Compare(cb.Index, ca.Index),
			cmp.Compare(a.ID, b.ID),
		)
	}
	return cmp.Or(
		cmp.Compare(b.Area(), a.Area()),
		cmp.Compare(a.Light.ID, b.Light.ID),
		cmp.Compare(a.ID, b.ID),
	)
}

// Schedule sorts the descriptors and allocates them. Per-frame layouts are
// reset first; the preshadow atlas persists. A descriptor that fits nowhere
// is dropped, never an error.
func (s *Scheduler) Schedule(descs []*Descriptor) *Plan {
	for _, l := range s.passes {
		l.Reset()
	}
	s.translucent.Reset()
	s.cubes.Reset()
	s.preshadows.BeginFrame()

	sorted := slices.Clone(descs)
	slices.SortStableFunc(sorted, Less)

	plan := &Plan{}
	passes := make([][]*Descriptor, len(s.passes))
	for _, d := range sorted {
		if d.Invalidated() || d.Status() != Unallocated {
			continue
		}
		if s.allocate(d, passes) {
			_ = d.Transition(Allocated)
			switch d.Kind() {
			case WholeScenePoint:
				plan.Cube = append(plan.Cube, d)
			case Translucent:
				plan.Translucent = append(plan.Translucent, d)
			case Preshadow:
				if d.InPreshadowCache() {
					plan.CachedPreshadows = append(plan.CachedPreshadows, d)
				}
			}
			continue
		}
		_ = d.Transition(Discarded)
		plan.Dropped = append(plan.Dropped, d)
	}
	for g, ds := range passes {
		if len(ds) > 0 {
			plan.Passes = append(plan.Passes, Pass{Generation: g, Descriptors: ds})
		}
	}

	log := logger.Named("shadow")
	for _, d := range plan.Dropped {
		log.Warn("shadow dropped",
			zap.Uint32("id", d.ID),
			zap.Stringer("kind", d.Kind()),
			zap.Uint32("light", uint32(d.Light.ID)),
			zap.Int("resolution", d.Requested))
	}
	log.Debug("scheduled shadows",
		zap.Int("passes", len(plan.Passes)),
		zap.Int("cube", len(plan.Cube)),
		zap.Int("translucent", len(plan.Translucent)),
		zap.Int("preshadows", len(plan.CachedPreshadows)),
		zap.Int("dropped", len(plan.Dropped)))
	return plan
}

// allocate places d, appending it to its atlas generation when it goes
// into the shared atlas.
func (s *Scheduler) allocate(d *Descriptor, passes [][]*Descriptor) bool {
	if d.Requested <= 0 {
		return false
	}
	size := d.Requested + 2*d.Border
	switch d.Kind() {
	case WholeScenePoint:
		slot, ok := s.cubes.Acquire(d.Requested)
		if ok {
			d.Cube = slot
			d.Resolution = slot.Resolution
		}
		return ok
	case Translucent:
		r, ok := s.translucent.Add(size, size)
		d.Rect = r
		return ok
	case Preshadow:
		d.Resolution = d.Requested
		if _, ok := s.preshadows.Acquire(d); ok {
			return true
		}
		// Not cacheable this frame: render it with the per-object shadows.
	}
	for g, l := range s.passes {
		if r, ok := l.Add(size, size); ok {
			d.Rect = r
			d.Generation = g
			passes[g] = append(passes[g], d)
			return true
		}
	}
	return false
}
