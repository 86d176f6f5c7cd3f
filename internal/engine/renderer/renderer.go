// Package renderer runs the per-frame visibility and shadow pipeline over a
// scene and its views.
package renderer

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-shadows/internal/config"
	"github.com/Faultbox/midgard-shadows/internal/engine/atlas"
	"github.com/Faultbox/midgard-shadows/internal/engine/culling"
	"github.com/Faultbox/midgard-shadows/internal/engine/lighting"
	"github.com/Faultbox/midgard-shadows/internal/engine/occlusion"
	"github.com/Faultbox/midgard-shadows/internal/engine/projection"
	"github.com/Faultbox/midgard-shadows/internal/engine/relevance"
	"github.com/Faultbox/midgard-shadows/internal/engine/scene"
	"github.com/Faultbox/midgard-shadows/internal/engine/shadow"
	"github.com/Faultbox/midgard-shadows/internal/engine/shadowdepth"
	"github.com/Faultbox/midgard-shadows/internal/engine/view"
	"github.com/Faultbox/midgard-shadows/internal/logger"
)

// FrameInput is everything one frame renders.
type FrameInput struct {
	Scene *scene.Scene
	Views []*view.View
	Frame uint32
	Time  float32 // seconds

	// Invalidate lists lights that became irrelevant after scheduling.
	// Their shadows are dropped before any depth is rendered.
	Invalidate []lighting.ID
}

// VisiblePrimitive is one entry of a view's visible list.
type VisiblePrimitive struct {
	Handle scene.Handle
	LOD    int8
}

// ViewResult is what a frame produced for one view.
type ViewResult struct {
	Name    string
	Visible []VisiblePrimitive

	// Attenuation holds one buffer per light with projected shadows. Views
	// without scene depth get none.
	Attenuation map[lighting.ID]*projection.AttenuationBuffer

	Culling   culling.Stats
	Fading    int
	Occlusion occlusion.Stats
	Relevance relevance.Stats
	Evicted   int
}

// FrameResult is the output of RenderFrame.
type FrameResult struct {
	Frame uint32
	Views []ViewResult
	Plan  *shadow.Plan

	Built      int
	Depth      shadowdepth.Stats
	Projection projection.Stats
}

// AnyShadowVisible reports whether any shadow of the light was composited
// this frame, so lighting can pick a shadow-free path otherwise.
func (r *FrameResult) AnyShadowVisible(id lighting.ID) bool {
	return r.Plan != nil && r.Plan.AnyShadowVisible(id)
}

// Atlas is a depth target the compositor can sample afterwards.
type Atlas interface {
	shadowdepth.DepthTarget
	projection.DepthSource
	Depth() []float32
}

// viewData is what the renderer keeps per view state across frames.
type viewData struct {
	culler *occlusion.Culler
	depth  *view.DepthBuffer
	raster *shadowdepth.SoftwareAtlas
	seen   uint32
}

// Renderer owns the pipeline's cross-frame resources: the shadow atlases,
// the preshadow cache and each view's occlusion culler.
type Renderer struct {
	cfg *config.Config

	builder    *shadow.Builder
	scheduler  *shadow.Scheduler
	depth      *shadowdepth.Renderer
	compositor *projection.Compositor

	atlas       Atlas
	preshadows  *shadowdepth.SoftwareAtlas
	translucent *shadowdepth.SoftwareAtlas

	views    map[view.State]*viewData
	backend  func() occlusion.QueryBackend
	prevTime float32
	started  bool

	log *zap.Logger
}

// New creates a renderer. Atlas dimensions are taken from cfg once; the
// rest of cfg is re-read at the start of every frame.
func New(cfg *config.Config) *Renderer {
	s := cfg.Shadows
	sched := shadow.NewScheduler(s)
	r := &Renderer{
		cfg:         cfg,
		builder:     shadow.NewBuilder(),
		scheduler:   sched,
		depth:       shadowdepth.NewRenderer(s, sched.Preshadows()),
		compositor:  projection.NewCompositor(cfg.Visibility.Workers),
		atlas:       shadowdepth.NewSoftwareAtlas(s.AtlasSize, s.AtlasSize),
		preshadows:  shadowdepth.NewSoftwareAtlas(s.PreshadowAtlasSize, s.PreshadowAtlasSize),
		translucent: shadowdepth.NewSoftwareAtlas(s.TranslucentSize, s.TranslucentSize),
		views:       make(map[view.State]*viewData),
		backend:     func() occlusion.QueryBackend { return occlusion.NewSoftwareQueries() },
		log:         logger.Named("renderer"),
	}
	return r
}

// SetQueryBackend replaces the factory of per-view occlusion query
// backends. Views already seen keep their backend.
func (r *Renderer) SetQueryBackend(fn func() occlusion.QueryBackend) {
	r.backend = fn
}

// SetAtlas replaces the main shadow depth atlas, e.g. with a GPU atlas. It
// must be at least cfg.Shadows.AtlasSize on each side.
func (r *Renderer) SetAtlas(a Atlas) {
	r.atlas = a
}

// Atlas returns the main shadow depth atlas. It holds the last atlas
// generation rendered.
func (r *Renderer) Atlas() Atlas { return r.atlas }

// PreshadowAtlas returns the persistent preshadow depth atlas.
func (r *Renderer) PreshadowAtlas() *shadowdepth.SoftwareAtlas { return r.preshadows }

// Preshadows returns the preshadow cache.
func (r *Renderer) Preshadows() *shadow.PreshadowCache { return r.scheduler.Preshadows() }

// Close releases the cross-frame state of every view.
func (r *Renderer) Close() {
	r.log.Info("closing renderer", zap.Int("views", len(r.views)))
	for state, vd := range r.views {
		r.releaseView(state, vd)
	}
	r.scheduler.Preshadows().Purge()
}

// releaseView forgets a view's cross-frame state. Its culler and query
// backend go with it.
func (r *Renderer) releaseView(state view.State, vd *viewData) {
	r.log.Debug("view released", zap.Uint32("last_frame", vd.seen))
	delete(r.views, state)
}

func (r *Renderer) viewData(v *view.View, frame uint32) *viewData {
	vd, ok := r.views[v.State]
	if !ok {
		vd = &viewData{culler: occlusion.NewCuller(r.backend())}
		r.views[v.State] = vd
	}
	vd.seen = frame
	return vd
}

// RenderFrame runs visibility for every view, then builds, schedules,
// renders and projects the frame's shadows. Cancellation is checked between
// stages; a cancelled frame leaves view states mid-frame and returns the
// context error.
func (r *Renderer) RenderFrame(ctx context.Context, in FrameInput) (*FrameResult, error) {
	cfg := r.cfg.Frame()
	sc := in.Scene
	res := &FrameResult{Frame: in.Frame, Views: make([]ViewResult, len(in.Views))}

	for i, v := range in.Views {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("frame %d: %w", in.Frame, err)
		}
		v.Index = i
		vr, err := r.visibility(ctx, sc, v, in, cfg)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", in.Frame, err)
		}
		res.Views[i] = vr
	}
	r.touchPrimitives(sc, in.Views, in.Time)

	if cfg.Shadows.Enabled {
		if err := r.shadows(ctx, sc, in, cfg, res); err != nil {
			return nil, fmt.Errorf("frame %d: %w", in.Frame, err)
		}
	}

	for i, v := range in.Views {
		vd := r.views[v.State]
		res.Views[i].Evicted = vd.culler.EndFrame(v, cfg.Occlusion)
		occlusion.StoreHZB(v)
		v.State.EndFrame()
	}
	for state, vd := range r.views {
		if vd.seen != in.Frame {
			r.releaseView(state, vd)
		}
	}
	r.prevTime, r.started = in.Time, true

	logger.ForFrame("renderer", in.Frame).Debug("frame rendered",
		zap.Int("views", len(in.Views)),
		zap.Int("shadows_built", res.Built),
		zap.Int("shadows_rendered", res.Depth.Rendered),
		zap.Int("shadows_cached", res.Depth.Cached),
		zap.Int("pixels_shadowed", res.Projection.Shadowed))
	return res, nil
}

// visibility runs the per-view stages: frustum and distance culling, fade,
// occlusion, relevance and LOD.
func (r *Renderer) visibility(ctx context.Context, sc *scene.Scene, v *view.View, in FrameInput, cfg config.Frame) (ViewResult, error) {
	vr := ViewResult{Name: v.Name}
	vd := r.viewData(v, in.Frame)
	v.State.BeginFrame(in.Frame, in.Time)
	v.Reset(sc.SlotCount())

	// Without a supplied depth buffer queries test against the depth this
	// renderer produced last frame.
	ownDepth := v.SceneDepth == nil || v.SceneDepth == vd.depth
	if ownDepth {
		v.SceneDepth = vd.depth
	}

	var err error
	if vr.Culling, err = culling.Cull(ctx, sc, v, cfg.Visibility); err != nil {
		return vr, err
	}
	vr.Fading = culling.UpdateFading(sc, v, cfg.Visibility)
	vr.Occlusion = vd.culler.Cull(sc, v, cfg.Occlusion)
	if vr.Relevance, err = relevance.Compute(ctx, sc, v, cfg.Visibility); err != nil {
		return vr, err
	}
	if ownDepth {
		r.depthPrepass(sc, v, vd)
	}

	for i, ok := v.Visible.NextSet(0); ok; i, ok = v.Visible.NextSet(i + 1) {
		vr.Visible = append(vr.Visible, VisiblePrimitive{Handle: sc.Handle(int(i)), LOD: v.LOD[i]})
	}
	return vr, nil
}

// depthPrepass rasterises the bounds of visible opaque primitives into the
// view's scene depth.
func (r *Renderer) depthPrepass(sc *scene.Scene, v *view.View, vd *viewData) {
	if v.Width <= 0 || v.Height <= 0 {
		return
	}
	if vd.depth == nil || vd.depth.Width != v.Width || vd.depth.Height != v.Height {
		vd.depth = view.NewDepthBuffer(v.Width, v.Height)
		vd.raster = shadowdepth.NewSoftwareAtlas(v.Width, v.Height)
	}
	full := atlas.Rect{W: v.Width, H: v.Height}
	vd.raster.BeginPass(shadowdepth.Pass{
		Mode:     shadowdepth.Perspective,
		ViewProj: v.ViewProj,
		Rect:     full,
		Viewport: full,
	})
	for i, ok := v.Visible.NextSet(0); ok; i, ok = v.Visible.NextSet(i + 1) {
		if !v.Relevance[i].Has(scene.RelevanceOpaque) {
			continue
		}
		if p, live := sc.At(int(i)); live {
			vd.raster.DrawDepth(shadowdepth.DrawItem{Handle: sc.Handle(int(i)), Bounds: p.Bounds})
		}
	}
	vd.raster.EndPass()
	copy(vd.depth.Depth, vd.raster.Depth())
	v.SceneDepth = vd.depth
}

// touchPrimitives records render times of primitives visible in any view.
func (r *Renderer) touchPrimitives(sc *scene.Scene, views []*view.View, now float32) {
	for _, v := range views {
		for i, ok := v.Visible.NextSet(0); ok; i, ok = v.Visible.NextSet(i + 1) {
			p, live := sc.At(int(i))
			if !live || p.LastRenderTime == now {
				continue
			}
			if !r.started || p.LastRenderTime < r.prevTime {
				p.LastVisibilityChangeTime = now
			}
			p.LastRenderTime = now
		}
	}
}

// shadows builds and schedules the frame's shadows, renders their depth and
// projects them into every view. All depth passes of an atlas generation
// precede its projections.
func (r *Renderer) shadows(ctx context.Context, sc *scene.Scene, in FrameInput, cfg config.Frame, res *FrameResult) error {
	descs := r.builder.Build(sc, in.Views, cfg.Shadows)
	res.Built = len(descs)
	plan := r.scheduler.Schedule(descs)
	res.Plan = plan
	for _, id := range in.Invalidate {
		if n := plan.Invalidate(id); n > 0 {
			r.log.Debug("shadows invalidated", zap.Uint32("light", uint32(id)), zap.Int("count", n))
		}
	}

	buffers := make([]map[lighting.ID]*projection.AttenuationBuffer, len(in.Views))
	for i, v := range in.Views {
		if v.SceneDepth == nil {
			continue
		}
		buffers[i] = make(map[lighting.ID]*projection.AttenuationBuffer)
		for _, id := range plan.Lights() {
			buffers[i][id] = projection.NewAttenuationBuffer(v.SceneDepth.Width, v.SceneDepth.Height)
		}
		res.Views[i].Attenuation = buffers[i]
	}

	stage := func(target shadowdepth.DepthTarget, src projection.DepthSource, descs []*shadow.Descriptor) error {
		for _, d := range descs {
			st, err := r.depth.Render(ctx, target, sc, d)
			if err != nil {
				return err
			}
			res.Depth.Add(st)
		}
		if src == nil {
			return nil
		}
		return r.project(ctx, in.Views, buffers, src, descs, res)
	}

	for _, pass := range plan.Passes {
		if err := stage(r.atlas, r.atlas, pass.Descriptors); err != nil {
			return err
		}
	}
	if err := stage(r.preshadows, r.preshadows, plan.CachedPreshadows); err != nil {
		return err
	}
	if err := stage(r.atlas, r.atlas, plan.Cube); err != nil {
		return err
	}
	// Translucent shadow volumes are consumed by translucency lighting,
	// never projected.
	return stage(r.translucent, nil, plan.Translucent)
}

// project composites descs light by light, keeping each light's render
// order so cascades land far to near.
func (r *Renderer) project(ctx context.Context, views []*view.View, buffers []map[lighting.ID]*projection.AttenuationBuffer, src projection.DepthSource, descs []*shadow.Descriptor, res *FrameResult) error {
	var lights []lighting.ID
	for _, d := range descs {
		if !slices.Contains(lights, d.Light.ID) {
			lights = append(lights, d.Light.ID)
		}
	}
	slices.Sort(lights)

	for _, id := range lights {
		for _, d := range descs {
			if d.Light.ID != id {
				continue
			}
			for i, v := range views {
				buf := buffers[i][id]
				if buf == nil {
					continue
				}
				st, err := r.compositor.Project(ctx, v, i, d, src, buf)
				if err != nil {
					return err
				}
				res.Projection.Considered += st.Considered
				res.Projection.Shadowed += st.Shadowed
			}
		}
	}
	return nil
}
