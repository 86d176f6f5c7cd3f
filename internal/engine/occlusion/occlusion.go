// Package occlusion removes primitives hidden behind other geometry.
//
// Two dynamic methods are supported. Query occlusion issues bounding box
// queries and reads them one frame later, so a primitive's result always
// describes the previous frame. HZB occlusion tests bounds against a max
// depth pyramid of the previous frame's depth. Baked visibility, when a view
// has it, is applied before either.
//
// Unresolved or missing information always resolves to visible.
package occlusion

import (
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-shadows/internal/config"
	"github.com/Faultbox/midgard-shadows/internal/engine/occlusion/hzb"
	"github.com/Faultbox/midgard-shadows/internal/engine/scene"
	"github.com/Faultbox/midgard-shadows/internal/engine/view"
	"github.com/Faultbox/midgard-shadows/internal/logger"
)

// Stats counts what one occlusion pass did.
type Stats struct {
	Considered           int
	PrecomputedCulled    int
	Occluded             int
	DefinitelyUnoccluded int
	GroupedQueries       int
	IndividualQueries    int
	Batches              int
}

// Culler runs occlusion culling for one stateful view. It owns the view's
// query backend and batcher.
type Culler struct {
	backend  QueryBackend
	batcher  *Batcher
	consumed []view.QueryID
}

// NewCuller creates a culler issuing queries through backend.
func NewCuller(backend QueryBackend) *Culler {
	return &Culler{backend: backend, batcher: NewBatcher(8)}
}

// Backend returns the culler's query backend.
func (c *Culler) Backend() QueryBackend { return c.backend }

// ApplyPrecomputed clears the visibility of occludable primitives whose
// baked visibility bit is off.
func ApplyPrecomputed(sc *scene.Scene, v *view.View) int {
	pv := v.PrecomputedVisibility
	if len(pv) == 0 {
		return 0
	}
	const need = scene.CanBeOccluded | scene.HasPrecomputedVisibility
	culled := 0
	for i, ok := v.Visible.NextSet(0); ok; i, ok = v.Visible.NextSet(i + 1) {
		p, live := sc.At(int(i))
		if !live || !p.Occlusion.Has(need) {
			continue
		}
		id := p.VisibilityID
		if id.ByteIndex < 0 || int(id.ByteIndex) >= len(pv) {
			continue
		}
		if pv[id.ByteIndex]&id.BitMask == 0 {
			v.Visible.Clear(i)
			culled++
		}
	}
	return culled
}

// Cull runs precomputed and dynamic occlusion for v and schedules this
// frame's queries.
func (c *Culler) Cull(sc *scene.Scene, v *view.View, cfg config.OcclusionConfig) Stats {
	var st Stats
	st.PrecomputedCulled = ApplyPrecomputed(sc, v)

	state := v.State
	if cfg.Method == config.OcclusionNone || !state.TracksHistory() {
		return st
	}

	frame, now := state.Frame(), state.Now()
	useQueries := cfg.Method == config.OcclusionQuery
	if useQueries {
		c.backend.Advance(frame, v.SceneDepth)
		c.batcher.SetGroupSize(cfg.GroupSize)
	}
	prevHZB := state.PrevHZB()
	pixels := float32(max(v.Width*v.Height, 1))

	for i, ok := v.Visible.NextSet(0); ok; i, ok = v.Visible.NextSet(i + 1) {
		p, live := sc.At(int(i))
		if !live {
			continue
		}
		if v.ShowSelection && p.Selected {
			continue
		}
		if !p.Occlusion.Has(scene.CanBeOccluded) {
			v.DefinitelyUnoccluded.Set(i)
			st.DefinitelyUnoccluded++
			continue
		}
		st.Considered++

		hist, created := state.OcclusionHistory(sc.Handle(int(i)))
		hist.LastConsideredTime = now
		hist.LastFrame = frame

		occluded, definite := false, false
		nearPlane := v.HasNearPlane && v.IntersectsNearPlane(p.Bounds)

		switch {
		case nearPlane:
			definite = true
			c.releasePast(hist, frame)
		case created:
		case useQueries:
			occluded, definite = c.readQuery(v, hist, frame, now, pixels, cfg)
		case cfg.Method == config.OcclusionHZB:
			occluded = !prevHZB.TestBounds(p.Bounds, cfg.HZBMaxTexels)
			definite = !occluded && prevHZB != nil
		}

		if useQueries && !nearPlane && !v.DisableQuerySubmission {
			approximate := cfg.AllowApproximate && p.Occlusion.Has(scene.AllowApproximateOcclusion)
			switch {
			case occluded && approximate:
				c.issue(hist, frame, c.batcher.AddGrouped(p.Bounds), true)
				st.GroupedQueries++
			case definite:
				frac := max(hist.LastPixelsPercentage/cfg.MaxPixelsFraction, 1)
				if frac*state.Random() >= cfg.MaxPixelsFraction {
					c.issue(hist, frame, c.batcher.AddIndividual(p.Bounds), false)
					st.IndividualQueries++
				}
			default:
				c.issue(hist, frame, c.batcher.AddIndividual(p.Bounds), false)
				st.IndividualQueries++
			}
		}

		if occluded {
			v.Visible.Clear(i)
			st.Occluded++
			continue
		}
		hist.LastVisibleTime = now
		if definite {
			v.DefinitelyUnoccluded.Set(i)
			st.DefinitelyUnoccluded++
		}
	}

	if useQueries {
		st.Batches = c.batcher.Flush(c.backend, v.ViewProj)
	}
	// Grouped results are shared, so consumed queries are released only
	// once every primitive had its read.
	for _, id := range c.consumed {
		c.backend.Release(id)
	}
	c.consumed = c.consumed[:0]

	logger.Named("occlusion").Debug("occlusion pass",
		zap.String("view", v.Name),
		zap.String("method", string(cfg.Method)),
		zap.Int("considered", st.Considered),
		zap.Int("occluded", st.Occluded),
		zap.Int("precomputed_culled", st.PrecomputedCulled),
		zap.Int("batches", st.Batches),
	)
	return st
}

// readQuery consumes the previous frame's query. Unresolved queries are
// visible; without a query the primitive stays visible while it was seen
// within ProbablyVisibleTime.
func (c *Culler) readQuery(v *view.View, hist *view.OcclusionHistory, frame uint32, now, pixels float32, cfg config.OcclusionConfig) (occluded, definite bool) {
	past, grouped := hist.PastQuery(frame)
	if past == 0 || v.IgnoreExistingQueries {
		c.releasePast(hist, frame)
		return hist.LastVisibleTime+cfg.ProbablyVisibleTime < now, false
	}
	samples, ready := c.backend.Result(past)
	if !ready {
		return false, false
	}
	c.releasePast(hist, frame)
	hist.LastPixelsPercentage = float32(samples) / pixels
	if samples == 0 {
		return true, false
	}
	return false, !grouped
}

// releasePast marks the previous frame's query consumed.
func (c *Culler) releasePast(hist *view.OcclusionHistory, frame uint32) {
	if id, _ := hist.PastQuery(frame); id != 0 {
		c.consumed = append(c.consumed, id)
		hist.ClearPastQuery(frame)
	}
}

// issue records this frame's query, retiring whatever query still occupied
// the slot from two frames ago.
func (c *Culler) issue(hist *view.OcclusionHistory, frame uint32, id view.QueryID, grouped bool) {
	if old := hist.Queries()[frame%2]; old != 0 {
		c.consumed = append(c.consumed, old)
	}
	hist.SetCurrentQuery(frame, id, grouped)
}

// EndFrame evicts histories not considered for cfg.HistoryEvictFrames and
// releases their queries.
func (c *Culler) EndFrame(v *view.View, cfg config.OcclusionConfig) int {
	return v.State.EvictHistory(cfg.HistoryEvictFrames, func(h *view.OcclusionHistory) {
		for _, id := range h.Queries() {
			if id != 0 {
				c.backend.Release(id)
			}
		}
	})
}

// StoreHZB builds the max depth pyramid of this frame's scene depth for the
// next frame's HZB tests.
func StoreHZB(v *view.View) {
	d := v.SceneDepth
	if d == nil || !v.State.TracksHistory() {
		return
	}
	v.State.SetHZB(hzb.Build(d.Width, d.Height, d.Depth, v.ViewProj))
}
