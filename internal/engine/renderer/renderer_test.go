package renderer

import (
	"context"
	"errors"
	"testing"

	"github.com/Faultbox/midgard-shadows/internal/config"
	"github.com/Faultbox/midgard-shadows/internal/engine/lighting"
	"github.com/Faultbox/midgard-shadows/internal/engine/scene"
	"github.com/Faultbox/midgard-shadows/internal/engine/shadowdepth"
	"github.com/Faultbox/midgard-shadows/internal/engine/view"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

const viewSize = 64

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Occlusion.Method = config.OcclusionNone
	s := &cfg.Shadows
	s.MaxResolution = 256
	s.MinResolution = 16
	s.AtlasSize = 512
	s.PreshadowAtlasSize = 256
	s.TranslucentSize = 256
	s.CubeResolution = 64
	s.CascadeResolution = 256
	s.FadeResolution = 16
	// Cube depth is nonlinear; keep the bias well under the crate's depth
	// step at the ground.
	s.PointDepthBias = 0.0001
	s.TransitionScale = 1000
	return cfg
}

// yard is a ground plane that receives but does not cast, with a crate
// hovering over the origin.
type yard struct {
	sc     *scene.Scene
	ground scene.Handle
	crate  scene.Handle
}

func newYard() yard {
	sc := scene.New()
	y := yard{sc: sc}
	y.ground = sc.Add(scene.Primitive{
		Name:   "ground",
		Bounds: math.NewBounds(math.Vec3{Y: -0.5}, math.Vec3{X: 50, Y: 0.5, Z: 50}),
	})
	y.crate = sc.Add(scene.Primitive{
		Name:                   "crate",
		Bounds:                 math.NewBounds(math.Vec3{Y: 5}, math.Vec3{X: 2, Y: 2, Z: 2}),
		CastShadow:             true,
		Movable:                true,
		ReceivesDynamicShadows: true,
	})
	return y
}

func newView(name string, state view.State) *view.View {
	origin := math.Vec3{Y: 40, Z: 30}
	return view.New(0, view.Params{
		Name:         name,
		ViewMatrix:   math.LookAt(origin, math.Vec3{}, math.Vec3{Y: 1}),
		ProjMatrix:   math.Perspective(1, 1, 1, 200),
		Origin:       origin,
		Width:        viewSize,
		Height:       viewSize,
		HasNearPlane: true,
	}, state)
}

func contains(vis []VisiblePrimitive, h scene.Handle) bool {
	for _, p := range vis {
		if p.Handle == h {
			return true
		}
	}
	return false
}

func TestRenderFrameProjectsPointShadow(t *testing.T) {
	y := newYard()
	id := y.sc.AddLight(lighting.NewPointLight(math.Vec3{Y: 10}, 20))
	r := New(testConfig())
	defer r.Close()

	v := newView("main", view.NewPersistentState(1))
	res, err := r.RenderFrame(context.Background(), FrameInput{
		Scene: y.sc,
		Views: []*view.View{v},
		Frame: 1,
		Time:  1,
	})
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}

	vr := res.Views[0]
	if !contains(vr.Visible, y.ground) || !contains(vr.Visible, y.crate) {
		t.Fatalf("visible = %+v, want ground and crate", vr.Visible)
	}
	if res.Plan == nil || len(res.Plan.Cube) != 1 {
		t.Fatalf("expected one cube shadow in the plan")
	}
	if res.Depth.Rendered != 1 {
		t.Errorf("rendered = %d, want 1", res.Depth.Rendered)
	}
	if !res.AnyShadowVisible(id) {
		t.Error("point light should have a visible shadow")
	}

	buf := vr.Attenuation[id]
	if buf == nil {
		t.Fatal("no attenuation buffer for the point light")
	}
	if buf.Width != viewSize || buf.Height != viewSize {
		t.Errorf("buffer size = %dx%d", buf.Width, buf.Height)
	}
	if res.Projection.Shadowed == 0 {
		t.Fatal("no pixel shadowed")
	}
	var darkest float32 = 1
	for py := 0; py < buf.Height; py++ {
		for px := 0; px < buf.Width; px++ {
			darkest = min(darkest, buf.Factor(px, py))
		}
	}
	if darkest > 0.01 {
		t.Errorf("darkest factor = %v, want a full shadow under the crate", darkest)
	}
}

// countingAtlas counts the passes that reach a replacement atlas.
type countingAtlas struct {
	*shadowdepth.SoftwareAtlas
	passes int
}

func (a *countingAtlas) BeginPass(p shadowdepth.Pass) {
	a.passes++
	a.SoftwareAtlas.BeginPass(p)
}

func TestRenderFrameUsesReplacementAtlas(t *testing.T) {
	y := newYard()
	y.sc.AddLight(lighting.NewPointLight(math.Vec3{Y: 10}, 20))
	cfg := testConfig()
	r := New(cfg)
	a := &countingAtlas{SoftwareAtlas: shadowdepth.NewSoftwareAtlas(cfg.Shadows.AtlasSize, cfg.Shadows.AtlasSize)}
	r.SetAtlas(a)

	res, err := r.RenderFrame(context.Background(), FrameInput{
		Scene: y.sc,
		Views: []*view.View{newView("main", view.NewPersistentState(1))},
		Frame: 1,
		Time:  1,
	})
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if a.passes != 1 {
		t.Errorf("replacement atlas saw %d passes, want 1", a.passes)
	}
	if res.Projection.Shadowed == 0 {
		t.Error("projection did not sample the replacement atlas")
	}
}

func TestRenderFrameInvalidatedLight(t *testing.T) {
	y := newYard()
	id := y.sc.AddLight(lighting.NewPointLight(math.Vec3{Y: 10}, 20))
	r := New(testConfig())

	res, err := r.RenderFrame(context.Background(), FrameInput{
		Scene:      y.sc,
		Views:      []*view.View{newView("main", view.NewPersistentState(1))},
		Frame:      1,
		Time:       1,
		Invalidate: []lighting.ID{id},
	})
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if res.AnyShadowVisible(id) {
		t.Error("invalidated light should have no visible shadow")
	}
	if res.Depth.Invalidated != 1 || res.Depth.Rendered != 0 {
		t.Errorf("depth stats = %+v", res.Depth)
	}
	if res.Projection.Considered != 0 {
		t.Errorf("projected %d pixels of an invalidated shadow", res.Projection.Considered)
	}
}

func TestRenderFrameShadowsDisabled(t *testing.T) {
	y := newYard()
	y.sc.AddLight(lighting.NewPointLight(math.Vec3{Y: 10}, 20))
	cfg := testConfig()
	cfg.Shadows.Enabled = false
	r := New(cfg)

	res, err := r.RenderFrame(context.Background(), FrameInput{
		Scene: y.sc,
		Views: []*view.View{newView("main", view.NewPersistentState(1))},
		Frame: 1,
		Time:  1,
	})
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if res.Plan != nil || res.Views[0].Attenuation != nil {
		t.Error("disabled shadows should produce no plan and no buffers")
	}
	if len(res.Views[0].Visible) != 2 {
		t.Errorf("visible = %d, want 2", len(res.Views[0].Visible))
	}
}

func TestRenderFrameCancelled(t *testing.T) {
	y := newYard()
	r := New(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.RenderFrame(ctx, FrameInput{
		Scene: y.sc,
		Views: []*view.View{newView("main", view.NewPersistentState(1))},
		Frame: 1,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRenderFrameReusesPreshadows(t *testing.T) {
	sc := scene.New()
	sc.Add(scene.Primitive{
		Name:                   "crate",
		Bounds:                 math.NewBounds(math.Vec3{Y: 5}, math.Vec3{X: 2, Y: 2, Z: 2}),
		CastShadow:             true,
		Movable:                true,
		ReceivesDynamicShadows: true,
	})
	sc.Add(scene.Primitive{
		Name:       "awning",
		Bounds:     math.NewBounds(math.Vec3{Y: 20}, math.Vec3{X: 5, Y: 1, Z: 5}),
		CastShadow: true,
	})
	spot := lighting.NewSpotLight(math.Vec3{Y: 40}, math.Vec3{Y: -1}, 200, 0.8)
	spot.HasStaticShadowing = true
	sc.AddLight(spot)

	r := New(testConfig())
	state := view.NewPersistentState(1)
	frame := func(n uint32) *FrameResult {
		t.Helper()
		res, err := r.RenderFrame(context.Background(), FrameInput{
			Scene: sc,
			Views: []*view.View{newView("main", state)},
			Frame: n,
			Time:  float32(n),
		})
		if err != nil {
			t.Fatalf("frame %d: %v", n, err)
		}
		return res
	}

	first := frame(1)
	if len(first.Plan.CachedPreshadows) != 1 {
		t.Fatalf("preshadows = %d, want 1", len(first.Plan.CachedPreshadows))
	}
	if first.Depth.Cached != 0 {
		t.Errorf("first frame cache hits = %d, want 0", first.Depth.Cached)
	}
	if r.Preshadows().Len() != 1 {
		t.Errorf("cache holds %d preshadows, want 1", r.Preshadows().Len())
	}

	second := frame(2)
	if second.Depth.Cached != 1 {
		t.Errorf("second frame cache hits = %d, want 1", second.Depth.Cached)
	}
	if second.Depth.Rendered != first.Depth.Rendered-1 {
		t.Errorf("second frame rendered %d, first %d; the preshadow should not be redrawn",
			second.Depth.Rendered, first.Depth.Rendered)
	}
}

func TestRenderFrameTracksRenderTimes(t *testing.T) {
	y := newYard()
	r := New(testConfig())
	state := view.NewPersistentState(1)
	render := func(frame uint32, now float32, views ...*view.View) {
		t.Helper()
		if _, err := r.RenderFrame(context.Background(), FrameInput{
			Scene: y.sc,
			Views: views,
			Frame: frame,
			Time:  now,
		}); err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}
	}
	times := func() (float32, float32) {
		p, _ := y.sc.Get(y.crate)
		return p.LastRenderTime, p.LastVisibilityChangeTime
	}

	tests := []struct {
		name       string
		frame      uint32
		now        float32
		viewed     bool
		wantRender float32
		wantChange float32
	}{
		{"first sighting", 1, 1, true, 1, 1},
		{"still visible", 2, 2, true, 2, 1},
		{"hidden", 3, 3, false, 2, 1},
		{"visible again", 4, 4, true, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.viewed {
				render(tt.frame, tt.now, newView("main", state))
			} else {
				render(tt.frame, tt.now)
			}
			gotRender, gotChange := times()
			if gotRender != tt.wantRender || gotChange != tt.wantChange {
				t.Errorf("render/change = %v/%v, want %v/%v", gotRender, gotChange, tt.wantRender, tt.wantChange)
			}
		})
	}
}

func TestRenderFrameReleasesUnseenViews(t *testing.T) {
	y := newYard()
	r := New(testConfig())
	main, inset := view.NewPersistentState(1), view.NewPersistentState(2)

	for frame, states := range [][]view.State{{main, inset}, {main}} {
		var views []*view.View
		for _, s := range states {
			views = append(views, newView("view", s))
		}
		if _, err := r.RenderFrame(context.Background(), FrameInput{
			Scene: y.sc,
			Views: views,
			Frame: uint32(frame + 1),
			Time:  float32(frame + 1),
		}); err != nil {
			t.Fatalf("frame %d: %v", frame+1, err)
		}
	}
	if len(r.views) != 1 {
		t.Fatalf("renderer keeps %d views, want 1", len(r.views))
	}
	if _, ok := r.views[main]; !ok {
		t.Error("the view rendered last frame was released")
	}
}
