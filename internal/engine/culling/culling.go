// Package culling implements the per-view frustum and draw distance test
// and the distance fade bookkeeping that follows it.
package culling

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/midgard-shadows/internal/config"
	"github.com/Faultbox/midgard-shadows/internal/engine/scene"
	"github.com/Faultbox/midgard-shadows/internal/engine/view"
	"github.com/Faultbox/midgard-shadows/internal/logger"
)

// Stats counts what one culling pass did.
type Stats struct {
	Considered     int
	Visible        int
	DistanceCulled int
	FrustumCulled  int
	Fading         int
}

func (s *Stats) add(o Stats) {
	s.Considered += o.Considered
	s.Visible += o.Visible
	s.DistanceCulled += o.DistanceCulled
	s.FrustumCulled += o.FrustumCulled
	s.Fading += o.Fading
}

// Cull tests every primitive against the view's frustum and draw distances
// and fills the Visible and PotentiallyFading bitmaps. The view must have
// been Reset to the scene's slot count.
//
// Work is split into ranges of whole 64-bit bitmap words so concurrent tasks
// never write the same word.
func Cull(ctx context.Context, sc *scene.Scene, v *view.View, cfg config.VisibilityConfig) (Stats, error) {
	n := sc.SlotCount()
	if v.Visible == nil || int(v.Visible.Len()) != n {
		return Stats{}, fmt.Errorf("culling view %q: bitmaps sized %d, scene has %d slots", v.Name, lenOf(v), n)
	}

	words := (n + 63) / 64
	per := max(cfg.WordsPerTask, 1)
	tasks := (words + per - 1) / per
	stats := make([]Stats, tasks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(cfg))
	for t := 0; t < tasks; t++ {
		lo := t * per * 64
		hi := min(lo+per*64, n)
		st := &stats[t]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cullRange(sc, v, cfg, lo, hi, st)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, fmt.Errorf("culling view %q: %w", v.Name, err)
	}

	var total Stats
	for _, s := range stats {
		total.add(s)
	}
	logger.Named("culling").Debug("frustum pass",
		zap.String("view", v.Name),
		zap.Int("considered", total.Considered),
		zap.Int("visible", total.Visible),
		zap.Int("distance_culled", total.DistanceCulled),
		zap.Int("frustum_culled", total.FrustumCulled),
		zap.Int("fading", total.Fading),
	)
	return total, nil
}

func lenOf(v *view.View) int {
	if v.Visible == nil {
		return 0
	}
	return int(v.Visible.Len())
}

func workers(cfg config.VisibilityConfig) int {
	if cfg.Workers > 0 {
		return cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func fadeRadius(v *view.View, cfg config.VisibilityConfig) float32 {
	if !cfg.FadeEnabled || v.DisableFade {
		return 0
	}
	return cfg.FadeRadius
}

func cullRange(sc *scene.Scene, v *view.View, cfg config.VisibilityConfig, lo, hi int, st *Stats) {
	origin := v.CullOrigin()
	radius := fadeRadius(v, cfg)

	for i := lo; i < hi; i++ {
		p, ok := sc.At(i)
		if !ok {
			continue
		}
		st.Considered++

		distSq := p.Bounds.Origin.DistanceSquared(origin)
		maxDist := p.MaxDrawDistance * cfg.DrawDistanceScale
		minDist := p.MinDrawDistance
		if cfg.ShowDistanceCulled {
			maxDist, minDist = 0, 0
		}

		if maxDist > 0 && distSq > (maxDist+radius)*(maxDist+radius) {
			st.DistanceCulled++
			continue
		}
		if distSq < minDist*minDist {
			st.DistanceCulled++
			continue
		}
		b := p.Bounds
		if !v.Frustum.IntersectSphere(b.Origin, b.SphereRadius) || !v.Frustum.IntersectBox(b.Origin, b.BoxExtent) {
			st.FrustumCulled++
			continue
		}

		if maxDist > 0 && distSq >= maxDist*maxDist {
			// Past the cutoff: hidden unless a fade out is still running.
			st.DistanceCulled++
			if radius > 0 {
				v.PotentiallyFading.Set(uint(i))
				st.Fading++
			}
			continue
		}

		v.Visible.Set(uint(i))
		st.Visible++
		if radius > 0 && maxDist > 0 {
			inner := max(maxDist-radius, 0)
			if distSq > inner*inner {
				v.PotentiallyFading.Set(uint(i))
				st.Fading++
			}
		}
	}
}

// UpdateFading runs the fade state machine for every potentially fading
// primitive. Primitives still fading out stay visible and every running
// fade records its scale/bias in the view. Runs serially after Cull.
func UpdateFading(sc *scene.Scene, v *view.View, cfg config.VisibilityConfig) int {
	if !cfg.FadeEnabled || v.DisableFade {
		return 0
	}
	now := v.State.Now()
	fading := 0
	for i, ok := v.PotentiallyFading.NextSet(0); ok; i, ok = v.PotentiallyFading.NextSet(i + 1) {
		h := sc.Handle(int(i))
		if !h.Valid() {
			continue
		}
		st := v.State.UpdateFade(h, v.Visible.Test(i), cfg.FadeTime)
		if st == nil {
			continue
		}
		if st.Fading && now < st.EndTime {
			v.Visible.Set(i)
			v.Fading.Set(i)
			v.Fade[i] = st.Params
			fading++
			continue
		}
		if st.Rendered(now) {
			v.Visible.Set(i)
		} else {
			v.Visible.Clear(i)
		}
	}
	return fading
}
