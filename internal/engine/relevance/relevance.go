// Package relevance computes per-view relevance and LOD for the primitives
// that survived culling.
package relevance

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

// Stats counts what one relevance pass did.
type Stats struct {
	Visible     int
	NotRelevant int
	Dynamic     int
	Static      int
	Translucent int
}

// Compute queries the relevance of every visible primitive, clears the
// visibility of primitives relevant to no draw bucket, selects LODs and
// gathers the visible lists. Running it twice over unchanged input gives
// identical results.
func Compute(ctx context.Context, sc *scene.Scene, v *view.View, cfg config.VisibilityConfig) (Stats, error) {
	n := sc.SlotCount()
	words := (n + 63) / 64
	per := max(cfg.WordsPerTask, 1)
	tasks := (words + per - 1) / per
	dropped := make([]int, tasks)
	vctx := v.Context()
	scaleSq := v.LODDistanceFactor * v.LODDistanceFactor

	g, gctx := errgroup.WithContext(ctx)
	limit := cfg.Workers
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(limit)
	for t := 0; t < tasks; t++ {
		lo := uint(t * per * 64)
		hi := uint(min((t+1)*per*64, n))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Stay inside this task's words; neighbours clear bits in theirs.
			for i := lo; i < hi; i++ {
				if !v.Visible.Test(i) {
					continue
				}
				p, live := sc.At(int(i))
				if !live {
					v.Visible.Clear(i)
					continue
				}
				rel := p.ViewRelevance(vctx)
				v.Relevance[i] = rel
				if !rel.DrawRelevant() {
					v.Visible.Clear(i)
					dropped[t]++
					continue
				}
				distSq := p.Bounds.Origin.DistanceSquared(v.Origin)
				v.LOD[i] = SelectLOD(p.LODs, distSq, scaleSq, cfg.ForcedLOD)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, fmt.Errorf("relevance view %q: %w", v.Name, err)
	}

	var st Stats
	for _, d := range dropped {
		st.NotRelevant += d
	}
	gather(sc, v, &st)

	logger.Named("relevance").Debug("relevance pass",
		zap.String("view", v.Name),
		zap.Int("visible", st.Visible),
		zap.Int("not_relevant", st.NotRelevant),
		zap.Int("dynamic", st.Dynamic),
		zap.Int("static", st.Static),
	)
	return st, nil
}

// gather rebuilds the visible lists in slot order.
func gather(sc *scene.Scene, v *view.View, st *Stats) {
	v.VisibleDynamic = v.VisibleDynamic[:0]
	v.VisibleStatic = v.VisibleStatic[:0]
	v.VisibleEditor = v.VisibleEditor[:0]
	v.Translucent = v.Translucent[:0]

	for i, ok := v.Visible.NextSet(0); ok; i, ok = v.Visible.NextSet(i + 1) {
		h := sc.Handle(int(i))
		rel := v.Relevance[i]
		st.Visible++
		if rel.Has(scene.RelevanceDynamic) {
			v.VisibleDynamic = append(v.VisibleDynamic, h)
			st.Dynamic++
		}
		if rel.Has(scene.RelevanceStatic) {
			v.VisibleStatic = append(v.VisibleStatic, h)
			st.Static++
		}
		if rel.Has(scene.RelevanceEditor) {
			v.VisibleEditor = append(v.VisibleEditor, h)
		}
		if rel.Has(scene.RelevanceTranslucent) {
			v.Translucent = append(v.Translucent, h)
			st.Translucent++
		}
	}
}
