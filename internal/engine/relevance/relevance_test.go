package relevance

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

var lods = []scene.StaticMeshLOD{
	{MinDistance: 0, MaxDistance: 100, LODIndex: 0},
	{MinDistance: 100, MaxDistance: 300, LODIndex: 1},
	{MinDistance: 300, MaxDistance: 1000, LODIndex: 2},
}

func TestSelectLOD(t *testing.T) {
	tests := []struct {
		name    string
		lods    []scene.StaticMeshLOD
		dist    float32
		scale   float32
		forced  int
		wantLOD int8
	}{
		{"near", lods, 50, 1, -1, 0},
		{"boundary belongs to next", lods, 100, 1, -1, 1},
		{"far", lods, 500, 1, -1, 2},
		{"scaled into lod 1", lods, 50, 3, -1, 1},
		{"beyond table clamps to last", lods, 5000, 1, -1, 2},
		{"forced", lods, 50, 1, 2, 2},
		{"forced clamps", lods, 50, 1, 9, 2},
		{"forced below sparse table", []scene.StaticMeshLOD{{MinDistance: 0, MaxDistance: 100, LODIndex: 2}, {MinDistance: 100, MaxDistance: 1000, LODIndex: 3}}, 50, 1, 0, 2},
		{"forced between sparse indices", []scene.StaticMeshLOD{{MinDistance: 0, MaxDistance: 100, LODIndex: 0}, {MinDistance: 100, MaxDistance: 1000, LODIndex: 4}}, 50, 1, 3, 4},
		{"forced tie prefers detail", []scene.StaticMeshLOD{{MinDistance: 0, MaxDistance: 100, LODIndex: 1}, {MinDistance: 100, MaxDistance: 1000, LODIndex: 3}}, 500, 1, 2, 1},
		{"forced exact in sparse table", []scene.StaticMeshLOD{{MinDistance: 0, MaxDistance: 100, LODIndex: 2}, {MinDistance: 100, MaxDistance: 1000, LODIndex: 5}}, 50, 1, 5, 5},
		{"no lods", nil, 50, 1, -1, IndexNone},
		{"gap clamps to nearest", []scene.StaticMeshLOD{{MinDistance: 0, MaxDistance: 100, LODIndex: 0}, {MinDistance: 400, MaxDistance: 1000, LODIndex: 1}}, 150, 1, -1, 0},
		{"below first range", []scene.StaticMeshLOD{{MinDistance: 50, MaxDistance: 100, LODIndex: 0}, {MinDistance: 100, MaxDistance: 1000, LODIndex: 1}}, 10, 1, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectLOD(tt.lods, tt.dist*tt.dist, tt.scale*tt.scale, tt.forced)
			if got != tt.wantLOD {
				t.Errorf("SelectLOD = %d, want %d", got, tt.wantLOD)
			}
		})
	}
}

func testView(n int) *view.View {
	p := view.Params{
		Name:       "rel",
		ViewMatrix: math.LookAt(math.Vec3{}, math.Vec3{Z: -1}, math.Vec3{Y: 1}),
		ProjMatrix: math.Perspective(float32(gomath.Pi/2), 1, 1, 10000),
		Width:      64,
		Height:     64,
	}
	state := &view.TransientState{}
	state.BeginFrame(1, 0)
	v := view.New(0, p, state)
	v.Reset(n)
	return v
}

func TestComputeClearsIrrelevant(t *testing.T) {
	sc := scene.New()
	drawn := sc.Add(scene.Primitive{Bounds: math.NewBounds(math.Vec3{Z: -50}, math.Vec3{X: 1, Y: 1, Z: 1}), LODs: lods})
	shadowOnly := sc.Add(scene.Primitive{
		Bounds: math.NewBounds(math.Vec3{Z: -50}, math.Vec3{X: 1, Y: 1, Z: 1}),
		Proxy:  scene.StaticProxy{Flags: scene.RelevanceShadow},
	})
	glass := sc.Add(scene.Primitive{
		Bounds: math.NewBounds(math.Vec3{Z: -500}, math.Vec3{X: 1, Y: 1, Z: 1}),
		LODs:   lods,
		Proxy:  scene.StaticProxy{Flags: scene.RelevanceDraw | scene.RelevanceDynamic | scene.RelevanceTranslucent},
	})

	v := testView(sc.SlotCount())
	v.Visible.Set(uint(drawn.Slot))
	v.Visible.Set(uint(shadowOnly.Slot))
	v.Visible.Set(uint(glass.Slot))

	st, err := Compute(context.Background(), sc, v, config.Default().Visibility)
	if err != nil {
		t.Fatal(err)
	}
	if v.IsVisible(int(shadowOnly.Slot)) {
		t.Error("primitive relevant to no draw bucket should be cleared")
	}
	if st.NotRelevant != 1 || st.Visible != 2 {
		t.Errorf("stats = %+v", st)
	}
	if v.LOD[drawn.Slot] != 0 || v.LOD[glass.Slot] != 2 {
		t.Errorf("LODs = %d %d, want 0 2", v.LOD[drawn.Slot], v.LOD[glass.Slot])
	}
	if len(v.VisibleStatic) != 1 || v.VisibleStatic[0] != drawn {
		t.Errorf("VisibleStatic = %v", v.VisibleStatic)
	}
	if len(v.Translucent) != 1 || v.Translucent[0] != glass {
		t.Errorf("Translucent = %v", v.Translucent)
	}
}

func TestComputeIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	sc := scene.New()
	for i := 0; i < 700; i++ {
		p := scene.Primitive{
			Bounds: math.NewBounds(math.Vec3{X: rng.Float32() * 100, Z: -rng.Float32() * 2000}, math.Vec3{X: 1, Y: 1, Z: 1}),
			LODs:   lods,
		}
		if i%5 == 0 {
			p.Proxy = scene.StaticProxy{Flags: scene.RelevanceShadow}
		}
		sc.Add(p)
	}
	v := testView(sc.SlotCount())
	for i := 0; i < sc.SlotCount(); i += 2 {
		v.Visible.Set(uint(i))
	}
	cfg := config.Default().Visibility
	cfg.WordsPerTask = 1

	if _, err := Compute(context.Background(), sc, v, cfg); err != nil {
		t.Fatal(err)
	}
	bits := v.Visible.Clone()
	lodsOnce := append([]int8(nil), v.LOD...)
	static := append([]scene.Handle(nil), v.VisibleStatic...)

	if _, err := Compute(context.Background(), sc, v, cfg); err != nil {
		t.Fatal(err)
	}
	if !bits.Equal(v.Visible) {
		t.Error("visibility changed on re-evaluation")
	}
	for i := range lodsOnce {
		if lodsOnce[i] != v.LOD[i] {
			t.Fatalf("LOD of slot %d changed: %d -> %d", i, lodsOnce[i], v.LOD[i])
		}
	}
	if len(static) != len(v.VisibleStatic) {
		t.Errorf("visible list length changed: %d -> %d", len(static), len(v.VisibleStatic))
	}
}

func TestLODIndependentPerView(t *testing.T) {
	sc := scene.New()
	h := sc.Add(scene.Primitive{Bounds: math.NewBounds(math.Vec3{Z: -50}, math.Vec3{X: 1, Y: 1, Z: 1}), LODs: lods})

	near := testView(sc.SlotCount())
	far := testView(sc.SlotCount())
	far.LODDistanceFactor = 10
	near.Visible.Set(uint(h.Slot))
	far.Visible.Set(uint(h.Slot))

	cfg := config.Default().Visibility
	if _, err := Compute(context.Background(), sc, near, cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := Compute(context.Background(), sc, far, cfg); err != nil {
		t.Fatal(err)
	}
	if near.LOD[h.Slot] != 0 || far.LOD[h.Slot] != 2 {
		t.Errorf("LODs = %d / %d, want 0 / 2", near.LOD[h.Slot], far.LOD[h.Slot])
	}
}

func TestComputeParallelMatchesSerial(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	sc := scene.New()
	for i := 0; i < 1024; i++ {
		p := scene.Primitive{
			Bounds: math.NewBounds(math.Vec3{X: rng.Float32() * 100, Z: -rng.Float32() * 2000}, math.Vec3{X: 1, Y: 1, Z: 1}),
			LODs:   lods,
		}
		if i%3 == 0 {
			p.Proxy = scene.StaticProxy{Flags: scene.RelevanceShadow}
		}
		sc.Add(p)
	}
	// Visible bits only in odd words, so every even task has nothing of its
	// own and sits next to a task that clears bits.
	mark := func(v *view.View) {
		for i := 0; i < sc.SlotCount(); i++ {
			if (i/64)%2 == 1 {
				v.Visible.Set(uint(i))
			}
		}
	}
	cfg := config.Default().Visibility

	cfg.Workers = 1
	cfg.WordsPerTask = 1 << 20
	serial := testView(sc.SlotCount())
	mark(serial)
	s1, err := Compute(context.Background(), sc, serial, cfg)
	if err != nil {
		t.Fatal(err)
	}

	cfg.Workers = 8
	cfg.WordsPerTask = 1
	par := testView(sc.SlotCount())
	mark(par)
	s2, err := Compute(context.Background(), sc, par, cfg)
	if err != nil {
		t.Fatal(err)
	}

	if !serial.Visible.Equal(par.Visible) {
		t.Error("parallel relevance produced a different visibility bitmap")
	}
	for i := range serial.LOD {
		if serial.LOD[i] != par.LOD[i] {
			t.Fatalf("LOD of slot %d differs: %d vs %d", i, serial.LOD[i], par.LOD[i])
		}
	}
	if s1 != s2 {
		t.Errorf("stats differ: %+v vs %+v", s1, s2)
	}
	if s1.NotRelevant == 0 || s1.Visible == 0 {
		t.Errorf("expected both dropped and kept primitives: %+v", s1)
	}
}
