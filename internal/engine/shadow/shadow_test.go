package shadow

import (
	"errors"
	gomath "math"
	"math/rand"
	"testing"

	"github.com/Faultbox/midgard-shadows/internal/config"
	"github.com/Faultbox/midgard-shadows/internal/engine/lighting"
	"github.com/Faultbox/midgard-shadows/internal/engine/scene"
	"github.com/Faultbox/midgard-shadows/internal/engine/view"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

func testView(sc *scene.Scene, origin, target math.Vec3) *view.View {
	v := view.New(0, view.Params{
		Name:         "main",
		ViewMatrix:   math.LookAt(origin, target, math.Vec3{Y: 1}),
		ProjMatrix:   math.Perspective(float32(gomath.Pi/3), 1, 1, 10000),
		Origin:       origin,
		Width:        512,
		Height:       512,
		HasNearPlane: true,
	}, view.NewPersistentState(1))
	v.Reset(sc.SlotCount())
	return v
}

// markVisible flags every primitive visible with its default relevance.
func markVisible(sc *scene.Scene, v *view.View) {
	sc.Each(func(h scene.Handle, p *scene.Primitive) {
		v.Visible.Set(uint(h.Slot))
		v.Relevance[h.Slot] = p.ViewRelevance(v.Context())
	})
}

func testDescriptor(id uint32, light *lighting.Light, resolution int) *Descriptor {
	return &Descriptor{
		ID:         id,
		Light:      light,
		Payload:    PerObjectPayload{},
		Subjects:   []scene.Handle{{Slot: id, Gen: 1}},
		Requested:  resolution,
		Resolution: resolution,
		Border:     4,
		FadeAlphas: []float32{1},
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name  string
		path  []Status
		valid bool
	}{
		{"render", []Status{Allocated, DepthRendered}, true},
		{"render and cache", []Status{Allocated, DepthRendered, Cached}, true},
		{"cache hit", []Status{Allocated, Cached}, true},
		{"drop unallocated", []Status{Discarded}, true},
		{"render unallocated", []Status{DepthRendered}, false},
		{"revive discarded", []Status{Discarded, Allocated}, false},
		{"rerender cached", []Status{Allocated, Cached, DepthRendered}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Descriptor{Payload: PerObjectPayload{}}
			var err error
			for _, s := range tt.path {
				if err = d.Transition(s); err != nil {
					break
				}
			}
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestCascadeSplits(t *testing.T) {
	splits := CascadeSplits(1, 1000, 4, 0.8)
	if len(splits) != 5 || splits[0] != 1 || splits[4] != 1000 {
		t.Fatalf("splits = %v", splits)
	}
	for i := 1; i < len(splits); i++ {
		if splits[i] <= splits[i-1] {
			t.Errorf("splits not increasing: %v", splits)
		}
	}
	uniform := CascadeSplits(0, 100, 4, 0)
	if d := uniform[2] - 50; d > 0.1 || d < -0.1 {
		t.Errorf("uniform middle split = %v, want about 50", uniform[2])
	}
}

func TestDepthRange(t *testing.T) {
	near, far := DepthRange(math.Perspective(1, 1, 2, 500))
	if abs32(near-2) > 1e-3 || abs32(far-500) > 0.5 {
		t.Errorf("perspective range = %v %v", near, far)
	}
	near, far = DepthRange(math.Ortho(-1, 1, -1, 1, 0.5, 80))
	if abs32(near-0.5) > 1e-4 || abs32(far-80) > 1e-3 {
		t.Errorf("ortho range = %v %v", near, far)
	}
}

func TestCubeFace(t *testing.T) {
	tests := []struct {
		dir  math.Vec3
		want int
	}{
		{math.Vec3{X: 1, Y: 0.5}, 0},
		{math.Vec3{X: -2}, 1},
		{math.Vec3{Y: 3, Z: 1}, 2},
		{math.Vec3{Y: -1}, 3},
		{math.Vec3{Z: 1}, 4},
		{math.Vec3{X: 0.2, Z: -1}, 5},
	}
	for _, tt := range tests {
		if got := CubeFace(tt.dir); got != tt.want {
			t.Errorf("CubeFace(%v) = %d, want %d", tt.dir, got, tt.want)
		}
	}
}

func TestResolveShrinksWithDistanceAndImportance(t *testing.T) {
	sc := scene.New()
	v := testView(sc, math.Vec3{}, math.Vec3{Z: -1})
	cfg := config.Default().Shadows
	views := []*view.View{v}
	l := lighting.NewPointLight(math.Vec3{}, 100)

	prev := cfg.MaxResolution + 1
	for _, dist := range []float32{50, 500, 5000, 50000} {
		res, _ := Resolve(views, &l, math.Vec3{Z: -dist}, 20, cfg.MaxResolution, cfg)
		if res > prev {
			t.Errorf("resolution grew with distance: %d at %v after %d", res, dist, prev)
		}
		if res != 0 && res&(res-1) != 0 {
			t.Errorf("resolution %d is not a power of two", res)
		}
		prev = res
	}

	full, _ := Resolve(views, &l, math.Vec3{Z: -200}, 20, cfg.MaxResolution, cfg)
	l.Importance = 0.1
	low, _ := Resolve(views, &l, math.Vec3{Z: -200}, 20, cfg.MaxResolution, cfg)
	if low > full {
		t.Errorf("less important light got more texels: %d > %d", low, full)
	}

	res, alphas := Resolve(views, &l, math.Vec3{Z: -1e7}, 0.01, cfg.MaxResolution, cfg)
	if res != 0 || alphas[0] != 0 {
		t.Errorf("subtexel shadow = %d alpha %v, want 0 0", res, alphas[0])
	}
}

func TestScheduleCascadesFarToNear(t *testing.T) {
	sc := scene.New()
	sc.Add(scene.Primitive{
		Name:       "ground",
		Bounds:     math.NewBounds(math.Vec3{Y: -1, Z: -3000}, math.Vec3{X: 5000, Y: 1, Z: 5000}),
		CastShadow: true,
	})
	sc.AddLight(lighting.NewSun(30, 45))

	v := testView(sc, math.Vec3{Y: 10}, math.Vec3{Z: -100})
	markVisible(sc, v)
	cfg := config.Default().Shadows

	descs := NewBuilder().Build(sc, []*view.View{v}, cfg)
	plan := NewScheduler(cfg).Schedule(descs)

	if len(plan.Passes) == 0 {
		t.Fatal("no atlas pass scheduled")
	}
	var order []int
	for _, d := range plan.Passes[0].Descriptors {
		if c, ok := d.Payload.(CascadePayload); ok {
			order = append(order, c.Index)
		}
	}
	want := []int{3, 2, 1, 0}
	if len(order) != len(want) {
		t.Fatalf("cascade order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("cascade order = %v, want %v", order, want)
		}
	}
	last := plan.Passes[0].Descriptors[3].Payload.(CascadePayload)
	if last.FadePlaneLength <= 0 {
		t.Error("inner cascade should have a fade plane")
	}
	first := plan.Passes[0].Descriptors[0].Payload.(CascadePayload)
	if first.FadePlaneLength != 0 {
		t.Error("outermost cascade should not fade into a next cascade")
	}
	if !plan.AnyShadowVisible(1) {
		t.Error("sun should have a visible shadow")
	}
}

func TestScheduleDropsSmallerWhenAtlasFull(t *testing.T) {
	cfg := config.Default().Shadows
	cfg.AtlasSize = 2048 + 2*cfg.Border
	cfg.AtlasPasses = 1
	l := &lighting.Light{ID: 1}

	small := testDescriptor(1, l, 1024)
	large := testDescriptor(2, l, 2048)
	plan := NewScheduler(cfg).Schedule([]*Descriptor{small, large})

	if len(plan.Dropped) != 1 || plan.Dropped[0] != small {
		t.Fatalf("expected the smaller shadow dropped, got %v", plan.Dropped)
	}
	if small.Status() != Discarded || large.Status() != Allocated {
		t.Errorf("statuses = %s %s", small.Status(), large.Status())
	}

	// A second atlas generation takes the leftover instead.
	cfg.AtlasPasses = 2
	small = testDescriptor(1, l, 1024)
	large = testDescriptor(2, l, 2048)
	plan = NewScheduler(cfg).Schedule([]*Descriptor{small, large})
	if len(plan.Dropped) != 0 || len(plan.Passes) != 2 || small.Generation != 1 {
		t.Errorf("expected a second pass, got %d passes gen %d dropped %d",
			len(plan.Passes), small.Generation, len(plan.Dropped))
	}
}

func TestScheduleRejectsZeroArea(t *testing.T) {
	cfg := config.Default().Shadows
	d := testDescriptor(1, &lighting.Light{ID: 1}, 0)
	plan := NewScheduler(cfg).Schedule([]*Descriptor{d})
	if len(plan.Dropped) != 1 || d.Status() != Discarded {
		t.Errorf("zero area shadow should be dropped, status %s", d.Status())
	}
}

func TestScheduleNoOverlapAndDeterministic(t *testing.T) {
	cfg := config.Default().Shadows
	cfg.AtlasSize = 1024
	cfg.MaxResolution = 512

	makeSet := func() []*Descriptor {
		rng := rand.New(rand.NewSource(7))
		lights := []*lighting.Light{{ID: 1}, {ID: 2}, {ID: 3}}
		var ds []*Descriptor
		for i := 1; i <= 40; i++ {
			res := 16 << rng.Intn(5)
			ds = append(ds, testDescriptor(uint32(i), lights[rng.Intn(3)], res))
		}
		return ds
	}

	first := makeSet()
	NewScheduler(cfg).Schedule(first)
	second := makeSet()
	NewScheduler(cfg).Schedule(second)

	for i := range first {
		if first[i].Rect != second[i].Rect || first[i].Generation != second[i].Generation {
			t.Fatalf("descriptor %d placed differently: %v vs %v", i, first[i].Rect, second[i].Rect)
		}
		if first[i].Status() != Allocated {
			continue
		}
		for j := i + 1; j < len(first); j++ {
			if first[j].Status() != Allocated || first[j].Generation != first[i].Generation {
				continue
			}
			if first[i].Rect.Overlaps(first[j].Rect) {
				t.Errorf("descriptors %d and %d overlap: %v %v", i, j, first[i].Rect, first[j].Rect)
			}
		}
	}
}

func TestPlanInvalidate(t *testing.T) {
	cfg := config.Default().Shadows
	a := &lighting.Light{ID: 1}
	b := &lighting.Light{ID: 2}
	plan := NewScheduler(cfg).Schedule([]*Descriptor{
		testDescriptor(1, a, 256),
		testDescriptor(2, b, 256),
	})
	if n := plan.Invalidate(1); n != 1 {
		t.Errorf("Invalidate = %d, want 1", n)
	}
	if plan.AnyShadowVisible(1) {
		t.Error("invalidated light still reports a visible shadow")
	}
	if !plan.AnyShadowVisible(2) {
		t.Error("other light lost its shadow")
	}
}

func TestAnyShadowVisibleRespectsFadeAlpha(t *testing.T) {
	cfg := config.Default().Shadows
	d := testDescriptor(1, &lighting.Light{ID: 1}, 256)
	d.FadeAlphas = []float32{1.0 / 512}
	plan := NewScheduler(cfg).Schedule([]*Descriptor{d})
	if plan.AnyShadowVisible(1) {
		t.Error("faded out shadow should not count as visible")
	}
}

func preshadowDescriptor(recv scene.Handle, fingerprint uint64) *Descriptor {
	d := testDescriptor(1, &lighting.Light{ID: 9}, 256)
	d.Payload = PreshadowPayload{Key: PreshadowKey{Receiver: recv, Light: 9}, Fingerprint: fingerprint}
	return d
}

func TestPreshadowCacheHit(t *testing.T) {
	c := NewPreshadowCache(4, 1024)
	recv := scene.Handle{Slot: 3, Gen: 1}

	d := preshadowDescriptor(recv, 42)
	if hit, ok := c.Acquire(d); hit || !ok {
		t.Fatalf("first Acquire = %v %v, want miss", hit, ok)
	}
	rect := d.Rect
	if !c.MarkRendered(d) {
		t.Fatal("MarkRendered should accept a cached preshadow")
	}

	c.BeginFrame()
	d = preshadowDescriptor(recv, 42)
	if hit, ok := c.Acquire(d); !hit || !ok {
		t.Fatalf("unchanged Acquire = %v %v, want hit", hit, ok)
	}
	if d.Rect != rect {
		t.Errorf("cache hit moved the rectangle: %v -> %v", rect, d.Rect)
	}

	c.BeginFrame()
	d = preshadowDescriptor(recv, 43)
	if hit, ok := c.Acquire(d); hit || !ok || d.Rect != rect {
		t.Errorf("changed fingerprint Acquire = %v %v %v, want miss in place", hit, ok, d.Rect)
	}
}

func TestPreshadowCacheEvictionFreesAtlas(t *testing.T) {
	c := NewPreshadowCache(1, 1024)
	a := preshadowDescriptor(scene.Handle{Slot: 1, Gen: 1}, 1)
	b := preshadowDescriptor(scene.Handle{Slot: 2, Gen: 1}, 1)
	c.Acquire(a)
	if _, ok := c.Acquire(b); ok {
		t.Error("entry acquired this frame must not be evicted")
	}
	c.BeginFrame()
	if _, ok := c.Acquire(b); !ok {
		t.Fatal("entry from an earlier frame should be evicted")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	if n := c.Layout().Count(); n != 1 {
		t.Errorf("evicted entry still holds atlas space: %d rects", n)
	}

	c.Purge()
	if c.Len() != 0 || c.Layout().Count() != 0 {
		t.Error("Purge should empty cache and atlas")
	}
}

func TestPreshadowCacheDisabled(t *testing.T) {
	c := NewPreshadowCache(0, 1024)
	if c.Enabled() {
		t.Fatal("size 0 cache should be disabled")
	}
	if _, ok := c.Acquire(preshadowDescriptor(scene.Handle{Slot: 1, Gen: 1}, 1)); ok {
		t.Error("disabled cache should not place preshadows")
	}

	cfg := config.Default().Shadows
	cfg.PreshadowCacheSize = 0
	s := NewScheduler(cfg)
	for frame := 0; frame < 2; frame++ {
		d := preshadowDescriptor(scene.Handle{Slot: 1, Gen: 1}, 1)
		plan := s.Schedule([]*Descriptor{d})
		if len(plan.Dropped) != 0 || len(plan.Passes) != 1 || len(plan.CachedPreshadows) != 0 {
			t.Fatalf("frame %d: uncached preshadow should go to the shared atlas: %+v", frame, plan)
		}
		if d.Status() != Allocated || d.CacheHit() || d.InPreshadowCache() {
			t.Errorf("frame %d: status %s hit %v cached %v", frame, d.Status(), d.CacheHit(), d.InPreshadowCache())
		}
	}
}

func TestScheduleMorePreshadowsThanCache(t *testing.T) {
	cfg := config.Default().Shadows
	cfg.PreshadowCacheSize = 2
	cfg.PreshadowAtlasSize = 1024
	s := NewScheduler(cfg)

	frame := func(first uint32) []*Descriptor {
		var ds []*Descriptor
		for i := first; i < first+4; i++ {
			d := preshadowDescriptor(scene.Handle{Slot: i, Gen: 1}, 1)
			d.ID = i
			ds = append(ds, d)
		}
		s.Schedule(ds)
		return ds
	}

	for f, first := range []uint32{1, 1, 3, 10} {
		ds := frame(first)
		cached := 0
		for i, a := range ds {
			if a.Status() != Allocated {
				t.Fatalf("frame %d: preshadow %d not allocated: %s", f, a.ID, a.Status())
			}
			if a.InPreshadowCache() {
				cached++
			}
			for _, b := range ds[i+1:] {
				sameAtlas := a.InPreshadowCache() == b.InPreshadowCache() &&
					(a.InPreshadowCache() || a.Generation == b.Generation)
				if sameAtlas && a.Rect.Overlaps(b.Rect) {
					t.Errorf("frame %d: preshadows %d and %d overlap: %v %v", f, a.ID, b.ID, a.Rect, b.Rect)
				}
			}
		}
		if cached != 2 {
			t.Errorf("frame %d: %d preshadows cached, want 2", f, cached)
		}
		if n := s.Preshadows().Layout().Count(); n != 2 {
			t.Errorf("frame %d: preshadow atlas holds %d rects, want 2", f, n)
		}
	}
}

func TestPreshadowCacheSameKeyTwiceInFrame(t *testing.T) {
	c := NewPreshadowCache(4, 1024)
	recv := scene.Handle{Slot: 5, Gen: 1}
	if _, ok := c.Acquire(preshadowDescriptor(recv, 1)); !ok {
		t.Fatal("first Acquire failed")
	}
	if _, ok := c.Acquire(preshadowDescriptor(recv, 1)); ok {
		t.Error("a key already placed this frame must not share its rectangle")
	}
}

func TestBuildKinds(t *testing.T) {
	sc := scene.New()
	mover := sc.Add(scene.Primitive{
		Name:                   "crate",
		Bounds:                 math.NewBounds(math.Vec3{Z: -50}, math.Vec3{X: 2, Y: 2, Z: 2}),
		CastShadow:             true,
		Movable:                true,
		ReceivesDynamicShadows: true,
	})
	wall := sc.Add(scene.Primitive{
		Name:       "wall",
		Bounds:     math.NewBounds(math.Vec3{Y: 20, Z: -50}, math.Vec3{X: 5, Y: 1, Z: 5}),
		CastShadow: true,
	})

	point := lighting.NewPointLight(math.Vec3{X: 10, Z: -50}, 200)
	spot := lighting.NewSpotLight(math.Vec3{Y: 40, Z: -50}, math.Vec3{Y: -1}, 200, 0.8)
	spot.HasStaticShadowing = true
	sc.AddLight(point)
	spotID := sc.AddLight(spot)

	v := testView(sc, math.Vec3{}, math.Vec3{Z: -1})
	markVisible(sc, v)
	cfg := config.Default().Shadows

	descs := NewBuilder().Build(sc, []*view.View{v}, cfg)
	kinds := map[Kind]int{}
	for _, d := range descs {
		kinds[d.Kind()]++
		if d.ID == 0 {
			t.Error("descriptor without ID")
		}
	}
	if kinds[WholeScenePoint] != 1 {
		t.Errorf("expected one cube shadow, got %d", kinds[WholeScenePoint])
	}
	if kinds[PerObject] != 1 {
		t.Errorf("expected one per-object shadow, got %d", kinds[PerObject])
	}
	if kinds[Preshadow] != 1 {
		t.Fatalf("expected one preshadow, got %d", kinds[Preshadow])
	}
	for _, d := range descs {
		if d.Kind() != Preshadow {
			continue
		}
		p := d.Payload.(PreshadowPayload)
		if p.Key.Light != spotID || p.Key.Receiver != mover {
			t.Errorf("preshadow key = %+v", p.Key)
		}
		if len(d.Subjects) != 1 || d.Subjects[0] != wall {
			t.Errorf("preshadow subjects = %v, want the static wall", d.Subjects)
		}
		if len(d.Receivers) != 1 || d.Receivers[0] != mover {
			t.Errorf("preshadow receivers = %v", d.Receivers)
		}
	}
}

func TestBuildDropsShadowsWithoutSubjects(t *testing.T) {
	sc := scene.New()
	sc.AddLight(lighting.NewPointLight(math.Vec3{Z: -50}, 100))
	v := testView(sc, math.Vec3{}, math.Vec3{Z: -1})

	b := NewBuilder()
	if descs := b.Build(sc, []*view.View{v}, config.Default().Shadows); len(descs) != 0 {
		t.Errorf("expected no descriptors, got %d", len(descs))
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", b.Dropped())
	}
}
