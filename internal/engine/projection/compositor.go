package projection

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/midgard-shadows/internal/engine/lighting"
	"github.com/Faultbox/midgard-shadows/internal/engine/shadow"
	"github.com/Faultbox/midgard-shadows/internal/engine/view"
	"github.com/Faultbox/midgard-shadows/internal/logger"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

var (
	// ErrNoDepthBuffer is returned when a view has no scene depth to
	// reconstruct receivers from.
	ErrNoDepthBuffer = errors.New("projection: view has no scene depth")
	// ErrSizeMismatch is returned when the attenuation buffer does not
	// match the view's depth buffer.
	ErrSizeMismatch = errors.New("projection: buffer size does not match view depth")
)

// rowsPerTask is the height of the pixel band one task composites.
const rowsPerTask = 32

// DepthSource is a rendered shadow depth atlas.
type DepthSource interface {
	Size() (width, height int)
	Sample(u, v float32) float32
	SampleCube(slot, face int, u, v float32) float32
}

// Stats counts the pixels one projection touched.
type Stats struct {
	Considered int
	Shadowed   int
}

// ScreenToShadow maps view NDC (x, y, z, 1) to homogeneous atlas
// coordinates (u, v, depth) of the descriptor's viewport.
func ScreenToShadow(v *view.View, d *shadow.Descriptor, atlasW, atlasH int) math.Mat4 {
	vp := d.Viewport()
	w, h := float32(atlasW), float32(atlasH)
	tex := math.Mat4{
		0.5 * float32(vp.W) / w, 0, 0, 0,
		0, 0.5 * float32(vp.H) / h, 0, 0,
		0, 0, 0.5, 0,
		(float32(vp.X) + 0.5*float32(vp.W)) / w, (float32(vp.Y) + 0.5*float32(vp.H)) / h, 0.5, 1,
	}
	return tex.Mul(d.ShadowViewProj).Mul(v.InvViewProj)
}

// ShadowFactor turns a depth comparison into an occlusion factor. The
// transition widens the penumbra of the comparison.
func ShadowFactor(shadowDepth, receiverDepth, transition float32) float32 {
	return math.Clamp01((shadowDepth-receiverDepth)/transition + 1)
}

// Compositor projects rendered shadows onto views.
type Compositor struct {
	workers int
	log     *zap.Logger
}

// NewCompositor creates a compositor. workers 0 uses GOMAXPROCS.
func NewCompositor(workers int) *Compositor {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Compositor{workers: workers, log: logger.Named("projection")}
}

// projector is the per-descriptor state shared by all pixel bands.
type projector struct {
	v          *view.View
	d          *shadow.Descriptor
	src        DepthSource
	buf        *AttenuationBuffer
	channel    Channel
	fade       float32
	transition float32

	screenToShadow math.Mat4
	atlasW, atlasH float32
	viewport       [4]float32 // x0, y0, x1, y1 in atlas pixels

	cascade    shadow.CascadePayload
	isCascade  bool
	cube       *shadow.CubePayload
	preshadow  bool
	alphaBlend bool
}

// Project composites d into buf for the view. Descriptors that are not
// projectable in this view leave buf untouched and are not an error.
func (c *Compositor) Project(ctx context.Context, v *view.View, viewIndex int, d *shadow.Descriptor, src DepthSource, buf *AttenuationBuffer) (Stats, error) {
	depth := v.SceneDepth
	if depth == nil {
		return Stats{}, fmt.Errorf("project shadow %d into view %q: %w", d.ID, v.Name, ErrNoDepthBuffer)
	}
	if buf.Width != depth.Width || buf.Height != depth.Height {
		return Stats{}, fmt.Errorf("project shadow %d into view %q: %w", d.ID, v.Name, ErrSizeMismatch)
	}
	if !d.Projectable(viewIndex) {
		return Stats{}, nil
	}

	p := &projector{
		v:          v,
		d:          d,
		src:        src,
		buf:        buf,
		channel:    ChannelB,
		fade:       d.FadeAlpha(viewIndex),
		transition: max(d.TransitionSize, 1e-6),
		preshadow:  d.Kind() == shadow.Preshadow,
	}
	switch pl := d.Payload.(type) {
	case shadow.CascadePayload:
		if pl.View != viewIndex {
			return Stats{}, nil
		}
		p.cascade, p.isCascade = pl, true
		p.alphaBlend = pl.FadePlaneLength > 0
	case shadow.CubePayload:
		p.cube = &pl
	}
	if d.WholeScene() && d.Light.Type == lighting.Directional {
		p.channel = ChannelR
	}
	if p.cube == nil {
		w, h := src.Size()
		vp := d.Viewport()
		p.screenToShadow = ScreenToShadow(v, d, w, h)
		p.atlasW, p.atlasH = float32(w), float32(h)
		p.viewport = [4]float32{float32(vp.X), float32(vp.Y), float32(vp.X + vp.W), float32(vp.Y + vp.H)}
	}

	tasks := (depth.Height + rowsPerTask - 1) / rowsPerTask
	stats := make([]Stats, tasks)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for t := 0; t < tasks; t++ {
		lo := t * rowsPerTask
		hi := min(lo+rowsPerTask, depth.Height)
		st := &stats[t]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p.rows(lo, hi, st)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, fmt.Errorf("project shadow %d into view %q: %w", d.ID, v.Name, err)
	}

	var total Stats
	for _, s := range stats {
		total.Considered += s.Considered
		total.Shadowed += s.Shadowed
	}
	c.log.Debug("projected shadow",
		zap.Uint32("id", d.ID),
		zap.Stringer("kind", d.Kind()),
		zap.String("view", v.Name),
		zap.Int("considered", total.Considered),
		zap.Int("shadowed", total.Shadowed))
	return total, nil
}

func (p *projector) rows(lo, hi int, st *Stats) {
	depth := p.v.SceneDepth
	for y := lo; y < hi; y++ {
		for x := 0; x < depth.Width; x++ {
			z := depth.Depth[y*depth.Width+x]
			if z >= 1 {
				// Sky receives nothing.
				continue
			}
			p.pixel(x, y, z, st)
		}
	}
}

func (p *projector) pixel(x, y int, z float32, st *Stats) {
	world := p.v.ScreenToWorld(float32(x), float32(y), z)

	alpha := float32(1)
	if p.isCascade {
		dist := shadow.ViewDistance(p.v, world)
		if dist < p.cascade.SliceNear || dist > p.cascade.SplitFar {
			return
		}
		if p.alphaBlend {
			alpha = 1 - math.Clamp01((dist-p.cascade.FadePlaneOffset)/p.cascade.FadePlaneLength)
			if alpha <= 0 {
				return
			}
		}
	}
	if p.preshadow && !insideAny(p.d.ReceiverBounds, world) {
		return
	}

	factor, ok := p.sample(x, y, z, world)
	if !ok {
		return
	}
	st.Considered++
	// Fading shadows lerp towards unshadowed.
	factor = 1 + (factor-1)*p.fade
	if factor < 1 {
		st.Shadowed++
	}

	i := 4 * (y*p.buf.Width + x)
	if p.alphaBlend {
		p.buf.alphaBlend(i, p.channel, factor, alpha)
	} else {
		p.buf.minBlend(i, p.channel, factor)
	}
}

// sample returns the occlusion factor of a receiver, or false when the
// receiver lies outside the shadow.
func (p *projector) sample(x, y int, z float32, world math.Vec3) (float32, bool) {
	if p.cube != nil {
		face := shadow.CubeFace(world.Sub(p.d.Light.Position))
		ndc, _, ok := p.cube.Faces[face].Project(world)
		if !ok {
			return 0, false
		}
		rz := ndc.Z*0.5 + 0.5
		if rz < 0 || rz >= 1 {
			return 0, false
		}
		sd := p.src.SampleCube(p.d.Cube.Index, face, ndc.X*0.5+0.5, ndc.Y*0.5+0.5)
		return ShadowFactor(sd, rz, p.transition), true
	}

	depth := p.v.SceneDepth
	ndcX := (float32(x)+0.5)/float32(depth.Width)*2 - 1
	ndcY := (float32(y)+0.5)/float32(depth.Height)*2 - 1
	h := p.screenToShadow.MulVec4(math.Vec4{ndcX, ndcY, z*2 - 1, 1})
	if h[3] <= 0 {
		return 0, false
	}
	inv := 1 / h[3]
	u, v, rz := h[0]*inv, h[1]*inv, h[2]*inv
	px, py := u*p.atlasW, v*p.atlasH
	if px < p.viewport[0] || py < p.viewport[1] || px >= p.viewport[2] || py >= p.viewport[3] {
		return 0, false
	}
	if rz < 0 || rz >= 1 {
		return 0, false
	}
	return ShadowFactor(p.src.Sample(u, v), rz, p.transition), true
}

func insideAny(bounds []math.BoxSphereBounds, p math.Vec3) bool {
	for _, b := range bounds {
		lo, hi := b.Min(), b.Max()
		if p.X >= lo.X && p.X <= hi.X && p.Y >= lo.Y && p.Y <= hi.Y && p.Z >= lo.Z && p.Z <= hi.Z {
			return true
		}
	}
	return false
}
