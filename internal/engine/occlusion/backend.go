package occlusion

import (
	"github.com/Faultbox/midgard-shadows/internal/engine/view"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// QueryBackend issues bounding box occlusion queries. Results of queries
// submitted in one frame only become readable after Advance moves to a
// later frame; nothing ever waits for a result.
type QueryBackend interface {
	// Advance starts frame and sets the depth buffer new queries test against.
	Advance(frame uint32, depth *view.DepthBuffer)
	Submit(id view.QueryID, boxes []math.BoxSphereBounds, viewProj math.Mat4)
	Result(id view.QueryID) (samples uint64, ready bool)
	Release(id view.QueryID)
}

type pendingQuery struct {
	frame   uint32
	samples uint64
}

// SoftwareQueries rasterises query boxes against a CPU depth buffer. It is
// the reference backend used without a GPU.
type SoftwareQueries struct {
	frame   uint32
	depth   *view.DepthBuffer
	pending map[view.QueryID]pendingQuery
}

// NewSoftwareQueries creates an empty backend.
func NewSoftwareQueries() *SoftwareQueries {
	return &SoftwareQueries{pending: make(map[view.QueryID]pendingQuery)}
}

func (q *SoftwareQueries) Advance(frame uint32, depth *view.DepthBuffer) {
	q.frame = frame
	q.depth = depth
}

func (q *SoftwareQueries) Submit(id view.QueryID, boxes []math.BoxSphereBounds, viewProj math.Mat4) {
	var samples uint64
	for _, b := range boxes {
		samples += q.rasterize(b, viewProj)
	}
	q.pending[id] = pendingQuery{frame: q.frame, samples: samples}
}

func (q *SoftwareQueries) Result(id view.QueryID) (uint64, bool) {
	p, ok := q.pending[id]
	if !ok || p.frame >= q.frame {
		return 0, false
	}
	return p.samples, true
}

func (q *SoftwareQueries) Release(id view.QueryID) {
	delete(q.pending, id)
}

// Outstanding returns the number of unreleased queries.
func (q *SoftwareQueries) Outstanding() int { return len(q.pending) }

// rasterize counts pixels of the box's screen rectangle where its nearest
// depth passes the depth test.
func (q *SoftwareQueries) rasterize(b math.BoxSphereBounds, viewProj math.Mat4) uint64 {
	d := q.depth
	if d == nil || d.Width == 0 || d.Height == 0 {
		return 1
	}
	minX, minY, minZ := float32(1), float32(1), float32(1)
	maxX, maxY := float32(-1), float32(-1)
	for _, c := range b.Corners() {
		ndc, _, ok := viewProj.Project(c)
		if !ok {
			// Crosses the eye plane: cover the screen at the near plane.
			return uint64(d.Width * d.Height)
		}
		minX, maxX = min(minX, ndc.X), max(maxX, ndc.X)
		minY, maxY = min(minY, ndc.Y), max(maxY, ndc.Y)
		minZ = min(minZ, ndc.Z*0.5+0.5)
	}
	x0 := max(int((minX*0.5+0.5)*float32(d.Width)), 0)
	x1 := min(int((maxX*0.5+0.5)*float32(d.Width)), d.Width-1)
	y0 := max(int((minY*0.5+0.5)*float32(d.Height)), 0)
	y1 := min(int((maxY*0.5+0.5)*float32(d.Height)), d.Height-1)

	var n uint64
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if minZ <= d.At(x, y) {
				n++
			}
		}
	}
	return n
}
