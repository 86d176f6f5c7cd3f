package shadow

import (
	"encoding/binary"
	"hash/fnv"
	gomath "math"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-shadows/internal/config"
	"github.com/Faultbox/midgard-shadows/internal/engine/lighting"
	"github.com/Faultbox/midgard-shadows/internal/engine/scene"
	"github.com/Faultbox/midgard-shadows/internal/engine/view"
	"github.com/Faultbox/midgard-shadows/internal/logger"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// caster is a shadow casting primitive gathered for one frame.
type caster struct {
	handle      scene.Handle
	prim        *scene.Primitive
	visible     bool // in at least one view
	translucent bool // translucent in at least one view
}

// Builder turns the frame's lights and visibility results into shadow
// descriptors.
type Builder struct {
	scene   *scene.Scene
	casters []caster
	nextID  uint32
	dropped int
}

// NewBuilder creates a descriptor builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Dropped returns how many candidate shadows the last Build rejected for
// having no subjects or a zero-area request.
func (b *Builder) Dropped() int { return b.dropped }

// Build creates one descriptor per applicable light, kind and view. IDs
// start at 1 every frame so identical input yields identical output.
func (b *Builder) Build(sc *scene.Scene, views []*view.View, cfg config.ShadowConfig) []*Descriptor {
	b.scene = sc
	b.nextID = 0
	b.dropped = 0
	if !cfg.Enabled {
		return nil
	}
	b.gather(sc, views)

	var out []*Descriptor
	for _, l := range sc.Lights() {
		if !l.CastShadows || !lightRelevant(l, views) {
			continue
		}
		switch l.Type {
		case lighting.Directional:
			out = b.cascades(out, l, views, cfg)
			if l.CastReflectiveShadowMap && cfg.Reflective {
				out = b.reflective(out, l, views, cfg)
			}
		case lighting.Point:
			if !l.HasStaticShadowing {
				out = b.cube(out, l, views, cfg)
			}
		}
		if cfg.PerObject && (l.Type == lighting.Spot || l.HasStaticShadowing) {
			out = b.perObject(out, l, views, cfg)
		}
		if cfg.Preshadows && l.HasStaticShadowing {
			out = b.preshadows(out, l, views, cfg)
		}
		if cfg.Translucent && l.CastTranslucentShadows {
			out = b.translucent(out, l, views, cfg)
		}
	}

	logger.Named("shadow").Debug("built shadows",
		zap.Int("descriptors", len(out)),
		zap.Int("rejected", b.dropped))
	return out
}

func (b *Builder) gather(sc *scene.Scene, views []*view.View) {
	b.casters = b.casters[:0]
	sc.Each(func(h scene.Handle, p *scene.Primitive) {
		if !p.CastShadow {
			return
		}
		c := caster{handle: h, prim: p}
		for _, v := range views {
			if v.Visible == nil || !v.IsVisible(int(h.Slot)) {
				continue
			}
			c.visible = true
			if v.Relevance[h.Slot].Has(scene.RelevanceTranslucent) {
				c.translucent = true
			}
		}
		b.casters = append(b.casters, c)
	})
}

func lightRelevant(l *lighting.Light, views []*view.View) bool {
	center, radius, bounded := l.ShadowBounds()
	if !bounded {
		return true
	}
	for _, v := range views {
		if v.Frustum.IntersectSphere(center, radius) {
			return true
		}
	}
	return false
}

// accept assigns an ID and keeps d unless it has nothing to render.
func (b *Builder) accept(out []*Descriptor, d *Descriptor, cfg config.ShadowConfig) []*Descriptor {
	if len(d.Subjects) == 0 || d.Requested <= 0 {
		b.dropped++
		return out
	}
	b.nextID++
	d.ID = b.nextID
	d.Resolution = d.Requested
	d.Border = cfg.Border
	return append(out, d)
}

func (b *Builder) cascades(out []*Descriptor, l *lighting.Light, views []*view.View, cfg config.ShadowConfig) []*Descriptor {
	dir := l.Direction
	for i, v := range views {
		for _, c := range viewCascades(v, cfg) {
			c.payload.View = i
			d := &Descriptor{
				Light:        l,
				Payload:      c.payload,
				BoundsCenter: c.center,
				BoundsRadius: c.radius,
				Requested:    clampResolution(cfg.CascadeResolution, cfg.MinResolution, cfg.MaxResolution),
				FadeAlphas:   make([]float32, len(views)),
			}
			d.FadeAlphas[i] = 1

			var pullBack float32
			for _, cs := range b.casters {
				// Baked lighting already holds static casters.
				if l.HasStaticShadowing && !cs.prim.Movable {
					continue
				}
				if inColumn(dir, c.center, c.radius, cs.prim.Bounds) {
					d.Subjects = append(d.Subjects, cs.handle)
					pullBack = max(pullBack, pullBackFor(dir, c.center, c.radius, cs.prim.Bounds))
				}
			}
			d.setFit(fitDirectional(dir, c.center, c.radius, pullBack))
			out = b.accept(out, d, cfg)
		}
	}
	return out
}

func (b *Builder) reflective(out []*Descriptor, l *lighting.Light, views []*view.View, cfg config.ShadowConfig) []*Descriptor {
	radius := cfg.CascadeDistance / 4
	if radius <= 0 {
		return out
	}
	dir := l.Direction
	for i, v := range views {
		if !v.State.TracksHistory() {
			continue
		}
		d := &Descriptor{
			Light:        l,
			Payload:      ReflectivePayload{View: i},
			BoundsCenter: v.Origin,
			BoundsRadius: radius,
			Requested:    clampResolution(cfg.RSMResolution, cfg.MinResolution, cfg.MaxResolution),
			FadeAlphas:   make([]float32, len(views)),
		}
		d.FadeAlphas[i] = 1
		var pullBack float32
		for _, cs := range b.casters {
			if inColumn(dir, v.Origin, radius, cs.prim.Bounds) {
				d.Subjects = append(d.Subjects, cs.handle)
				pullBack = max(pullBack, pullBackFor(dir, v.Origin, radius, cs.prim.Bounds))
			}
		}
		d.setFit(fitDirectional(dir, v.Origin, radius, pullBack))
		out = b.accept(out, d, cfg)
	}
	return out
}

func (b *Builder) cube(out []*Descriptor, l *lighting.Light, views []*view.View, cfg config.ShadowConfig) []*Descriptor {
	near := min(float32(1), l.Radius*0.01)
	d := &Descriptor{
		Light:        l,
		Payload:      CubePayload{Faces: cubeMatrices(l.Position, near, l.Radius), Near: near, Far: l.Radius},
		BoundsCenter: l.Position,
		BoundsRadius: l.Radius,
		MinZ:         near,
		MaxZ:         l.Radius,
	}
	d.Requested, d.FadeAlphas = Resolve(views, l, l.Position, l.Radius, min(cfg.CubeResolution, cfg.MaxResolution), cfg)
	lightBounds := math.BoxSphereBounds{Origin: l.Position, SphereRadius: l.Radius}
	for _, cs := range b.casters {
		if cs.prim.Bounds.SpheresIntersect(lightBounds) {
			d.Subjects = append(d.Subjects, cs.handle)
		}
	}
	return b.accept(out, d, cfg)
}

// fitObject fits a shadow around one object's bounds for any light type.
func fitObject(l *lighting.Light, bounds math.BoxSphereBounds, pullBack float32) (lightFit, bool, bool) {
	if l.Type == lighting.Directional {
		return fitDirectional(l.Direction, bounds.Origin, bounds.SphereRadius, pullBack), false, true
	}
	fit, ok := fitPerspective(l.Position, bounds.Origin, bounds.SphereRadius, l.Radius)
	return fit, true, ok
}

func (b *Builder) perObject(out []*Descriptor, l *lighting.Light, views []*view.View, cfg config.ShadowConfig) []*Descriptor {
	for _, cs := range b.casters {
		if !cs.visible || !cs.prim.Movable || cs.translucent || !l.AffectsBounds(cs.prim.Bounds) {
			continue
		}
		fit, perspective, ok := fitObject(l, cs.prim.Bounds, 0)
		if !ok {
			continue
		}
		d := b.objectDescriptor(l, cs, views, cfg.MaxResolution, cfg)
		d.Payload = PerObjectPayload{Subject: cs.handle, Perspective: perspective}
		d.setFit(fit)
		out = b.accept(out, d, cfg)
	}
	return out
}

func (b *Builder) translucent(out []*Descriptor, l *lighting.Light, views []*view.View, cfg config.ShadowConfig) []*Descriptor {
	maxRes := min(cfg.MaxResolution, cfg.TranslucentSize/4)
	for _, cs := range b.casters {
		if !cs.visible || !cs.translucent || !l.AffectsBounds(cs.prim.Bounds) {
			continue
		}
		fit, perspective, ok := fitObject(l, cs.prim.Bounds, 0)
		if !ok {
			continue
		}
		d := b.objectDescriptor(l, cs, views, maxRes, cfg)
		d.Payload = TranslucentPayload{Subject: cs.handle, Perspective: perspective}
		d.setFit(fit)
		out = b.accept(out, d, cfg)
	}
	return out
}

func (b *Builder) objectDescriptor(l *lighting.Light, cs caster, views []*view.View, maxRes int, cfg config.ShadowConfig) *Descriptor {
	bounds := cs.prim.Bounds
	d := &Descriptor{
		Light:        l,
		Subjects:     []scene.Handle{cs.handle},
		BoundsCenter: bounds.Origin,
		BoundsRadius: bounds.SphereRadius,
	}
	d.Requested, d.FadeAlphas = Resolve(views, l, bounds.Origin, bounds.SphereRadius, maxRes, cfg)
	return d
}

// preshadows shadow each visible movable receiver with the static casters
// between it and a light whose static shadowing is baked.
func (b *Builder) preshadows(out []*Descriptor, l *lighting.Light, views []*view.View, cfg config.ShadowConfig) []*Descriptor {
	maxRes := min(cfg.MaxResolution, cfg.PreshadowAtlasSize/2)
	for _, recv := range b.casters {
		p := recv.prim
		if !recv.visible || !p.Movable || !p.ReceivesDynamicShadows || !l.AffectsBounds(p.Bounds) {
			continue
		}
		subjects, pullBack := b.preshadowSubjects(l, recv)
		if len(subjects) == 0 {
			b.dropped++
			continue
		}
		fit, perspective, ok := fitObject(l, p.Bounds, pullBack)
		if !ok {
			continue
		}
		d := b.objectDescriptor(l, recv, views, maxRes, cfg)
		d.Subjects = subjects
		d.Receivers = []scene.Handle{recv.handle}
		d.ReceiverBounds = []math.BoxSphereBounds{p.Bounds}
		d.setFit(fit)
		key := PreshadowKey{Receiver: recv.handle, Light: l.ID}
		d.Payload = PreshadowPayload{Key: key, Perspective: perspective, Fingerprint: b.fingerprint(d)}
		out = b.accept(out, d, cfg)
	}
	return out
}

func (b *Builder) preshadowSubjects(l *lighting.Light, recv caster) ([]scene.Handle, float32) {
	rb := recv.prim.Bounds
	var subjects []scene.Handle
	var pullBack float32
	if l.Type == lighting.Directional {
		for _, cs := range b.casters {
			if cs.prim.Movable || cs.handle == recv.handle {
				continue
			}
			if inColumn(l.Direction, rb.Origin, rb.SphereRadius, cs.prim.Bounds) {
				subjects = append(subjects, cs.handle)
				pullBack = max(pullBack, pullBackFor(l.Direction, rb.Origin, rb.SphereRadius, cs.prim.Bounds))
			}
		}
		return subjects, pullBack
	}

	fit, ok := fitPerspective(l.Position, rb.Origin, rb.SphereRadius, rb.Origin.Distance(l.Position)+rb.SphereRadius)
	if !ok {
		return nil, 0
	}
	volume := math.NewFrustum(fit.viewProj(), false)
	for _, cs := range b.casters {
		if cs.prim.Movable || cs.handle == recv.handle || !l.AffectsBounds(cs.prim.Bounds) {
			continue
		}
		cb := cs.prim.Bounds
		if volume.IntersectSphere(cb.Origin, cb.SphereRadius) {
			subjects = append(subjects, cs.handle)
		}
	}
	return subjects, 0
}

func (d *Descriptor) setFit(f lightFit) {
	d.ShadowView = f.view
	d.ShadowProj = f.proj
	d.ShadowViewProj = f.viewProj()
	d.MinZ, d.MaxZ = f.near, f.far
}

// fingerprint hashes everything the preshadow depth depends on.
func (b *Builder) fingerprint(d *Descriptor) uint64 {
	h := fnv.New64a()
	var buf [4]byte
	putU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[:], v)
		h.Write(buf[:])
	}
	putU32(uint32(d.Requested))
	for _, f := range d.ShadowViewProj {
		putU32(gomath.Float32bits(f))
	}
	for _, s := range d.Subjects {
		putU32(s.Slot)
		putU32(s.Gen)
		if p, ok := b.scene.Get(s); ok {
			putU32(p.Version)
		}
	}
	return h.Sum64()
}
