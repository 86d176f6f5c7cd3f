package culling

import (
	"context"
	gomath "math"
	"math/rand"
	"testing"

	"github.com/Faultbox/midgard-shadows/internal/config"
	"github.com/Faultbox/midgard-shadows/internal/engine/scene"
	"github.com/Faultbox/midgard-shadows/internal/engine/view"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

func cameraParams() view.Params {
	return view.Params{
		Name:         "test",
		ViewMatrix:   math.LookAt(math.Vec3{}, math.Vec3{Z: -1}, math.Vec3{Y: 1}),
		ProjMatrix:   math.Perspective(float32(gomath.Pi/2), 1, 1, 100000),
		Width:        64,
		Height:       64,
		HasNearPlane: true,
	}
}

func box(z float32) math.BoxSphereBounds {
	return math.NewBounds(math.Vec3{Z: z}, math.Vec3{X: 1, Y: 1, Z: 1})
}

func newView(sc *scene.Scene, state view.State) *view.View {
	v := view.New(0, cameraParams(), state)
	v.Reset(sc.SlotCount())
	return v
}

func TestSphereOutsideFrustumNeverVisible(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sc := scene.New()
	for i := 0; i < 2000; i++ {
		c := math.Vec3{
			X: rng.Float32()*400 - 200,
			Y: rng.Float32()*400 - 200,
			Z: rng.Float32()*400 - 200,
		}
		sc.Add(scene.Primitive{Bounds: math.NewBounds(c, math.Vec3{X: 2, Y: 2, Z: 2})})
	}

	cfg := config.Default().Visibility
	cfg.WordsPerTask = 1
	v := newView(sc, &view.TransientState{})
	if _, err := Cull(context.Background(), sc, v, cfg); err != nil {
		t.Fatalf("Cull: %v", err)
	}

	visible := 0
	sc.Each(func(h scene.Handle, p *scene.Primitive) {
		in := v.Frustum.IntersectSphere(p.Bounds.Origin, p.Bounds.SphereRadius)
		if !in && v.IsVisible(int(h.Slot)) {
			t.Fatalf("slot %d visible but outside the frustum", h.Slot)
		}
		if v.IsVisible(int(h.Slot)) {
			visible++
		}
	})
	if visible == 0 {
		t.Error("expected some primitives in view")
	}
}

func TestParallelMatchesSerial(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	sc := scene.New()
	for i := 0; i < 1000; i++ {
		c := math.Vec3{X: rng.Float32()*200 - 100, Z: -rng.Float32() * 3000}
		sc.Add(scene.Primitive{
			Bounds:          math.NewBounds(c, math.Vec3{X: 1, Y: 1, Z: 1}),
			MaxDrawDistance: 1500,
		})
	}
	cfg := config.Default().Visibility
	cfg.FadeRadius = 100

	cfg.Workers = 1
	cfg.WordsPerTask = 1 << 20
	serial := newView(sc, &view.TransientState{})
	s1, err := Cull(context.Background(), sc, serial, cfg)
	if err != nil {
		t.Fatal(err)
	}

	cfg.Workers = 8
	cfg.WordsPerTask = 1
	par := newView(sc, &view.TransientState{})
	s2, err := Cull(context.Background(), sc, par, cfg)
	if err != nil {
		t.Fatal(err)
	}

	if !serial.Visible.Equal(par.Visible) || !serial.PotentiallyFading.Equal(par.PotentiallyFading) {
		t.Error("parallel culling produced different bitmaps")
	}
	if s1 != s2 {
		t.Errorf("stats differ: %+v vs %+v", s1, s2)
	}
}

func TestDrawDistance(t *testing.T) {
	tests := []struct {
		name        string
		z           float32
		min, max    float32
		fade        bool
		wantVisible bool
		wantFading  bool
	}{
		{"unlimited", -5000, 0, 0, true, true, false},
		{"inside", -100, 0, 1000, true, true, false},
		{"inside fade band", -950, 0, 1000, true, true, true},
		{"past cutoff in band", -1050, 0, 1000, true, false, true},
		{"past band", -1200, 0, 1000, true, false, false},
		{"closer than min", -50, 100, 0, true, false, false},
		{"band without fading", -950, 0, 1000, false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := scene.New()
			h := sc.Add(scene.Primitive{Bounds: box(tt.z), MinDrawDistance: tt.min, MaxDrawDistance: tt.max})
			cfg := config.Default().Visibility
			cfg.FadeRadius = 100
			cfg.FadeEnabled = tt.fade
			v := newView(sc, &view.TransientState{})
			if _, err := Cull(context.Background(), sc, v, cfg); err != nil {
				t.Fatal(err)
			}
			if got := v.IsVisible(int(h.Slot)); got != tt.wantVisible {
				t.Errorf("visible = %v, want %v", got, tt.wantVisible)
			}
			if got := v.PotentiallyFading.Test(uint(h.Slot)); got != tt.wantFading {
				t.Errorf("potentially fading = %v, want %v", got, tt.wantFading)
			}
		})
	}
}

// A primitive exactly at its max draw distance is hidden without fading and
// fades out towards zero when fading is on.
func TestExactlyAtMaxDrawDistance(t *testing.T) {
	const maxDist = 1000
	cfg := config.Default().Visibility
	cfg.FadeRadius = 100

	t.Run("fade disabled", func(t *testing.T) {
		sc := scene.New()
		h := sc.Add(scene.Primitive{Bounds: box(-maxDist), MaxDrawDistance: maxDist})
		c := cfg
		c.FadeEnabled = false
		state := view.NewPersistentState(1)
		state.BeginFrame(1, 0)
		v := newView(sc, state)
		if _, err := Cull(context.Background(), sc, v, c); err != nil {
			t.Fatal(err)
		}
		UpdateFading(sc, v, c)
		if v.IsVisible(int(h.Slot)) {
			t.Error("primitive at max draw distance must not be visible with fading disabled")
		}
	})

	t.Run("fade enabled", func(t *testing.T) {
		sc := scene.New()
		h := sc.Add(scene.Primitive{Bounds: box(-500), MaxDrawDistance: maxDist})
		state := view.NewPersistentState(1)
		v := view.New(0, cameraParams(), state)

		frame := uint32(1)
		now := float32(0)
		run := func() {
			state.BeginFrame(frame, now)
			v.Reset(sc.SlotCount())
			if _, err := Cull(context.Background(), sc, v, cfg); err != nil {
				t.Fatal(err)
			}
			UpdateFading(sc, v, cfg)
			frame++
			now += 1.0 / 60
		}

		// Settle visible inside the band first.
		if err := sc.Update(h, func(p *scene.Primitive) { p.Bounds = box(-950) }); err != nil {
			t.Fatal(err)
		}
		run()
		run()
		if !v.IsVisible(int(h.Slot)) {
			t.Fatal("primitive inside the fade band should be visible")
		}

		if err := sc.Update(h, func(p *scene.Primitive) { p.Bounds = box(-maxDist) }); err != nil {
			t.Fatal(err)
		}
		run()
		if !v.IsVisible(int(h.Slot)) {
			t.Fatal("primitive fading out must stay visible")
		}
		prev := v.FadeFactor(int(h.Slot))
		if prev > 1 || prev < 0 {
			t.Fatalf("fade factor %v, want in [0,1]", prev)
		}
		for i := 0; i < 30; i++ {
			run()
			f := v.FadeFactor(int(h.Slot))
			if !v.IsVisible(int(h.Slot)) {
				f = 0
			}
			if f > prev || f < 0 || f > 1 {
				t.Fatalf("fade factor %v after %v: not approaching 0", f, prev)
			}
			prev = f
		}
		if prev != 0 || v.IsVisible(int(h.Slot)) {
			t.Errorf("after the fade time the primitive should be hidden, factor %v", prev)
		}
	})
}

func TestCancelledContext(t *testing.T) {
	sc := scene.New()
	for i := 0; i < 500; i++ {
		sc.Add(scene.Primitive{Bounds: box(-10)})
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := config.Default().Visibility
	cfg.WordsPerTask = 1
	if _, err := Cull(ctx, sc, newView(sc, &view.TransientState{}), cfg); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestUnsizedViewIsAnError(t *testing.T) {
	sc := scene.New()
	sc.Add(scene.Primitive{Bounds: box(-10)})
	v := view.New(0, cameraParams(), &view.TransientState{})
	if _, err := Cull(context.Background(), sc, v, config.Default().Visibility); err == nil {
		t.Error("expected error for a view that was not reset")
	}
}
