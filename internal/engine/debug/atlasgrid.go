package debug

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/Faultbox/midgard-shadows/internal/engine/atlas"
	"github.com/Faultbox/midgard-shadows/internal/engine/shadow"
)

// kindColors outlines each shadow kind in the atlas overlay.
var kindColors = map[shadow.Kind]color.RGBA{
	shadow.WholeSceneDirectional: {255, 200, 0, 255},
	shadow.WholeScenePoint:       {0, 200, 255, 255},
	shadow.PerObject:             {0, 255, 80, 255},
	shadow.Preshadow:             {255, 0, 200, 255},
	shadow.ReflectiveShadowMap:   {255, 80, 0, 255},
	shadow.Translucent:           {160, 160, 255, 255},
}

// Region is one outlined allocation.
type Region struct {
	Rect     atlas.Rect
	Viewport atlas.Rect
	Kind     shadow.Kind
}

// AtlasRegions returns the allocations of descs rendered in generation gen.
func AtlasRegions(descs []*shadow.Descriptor, gen int) []Region {
	var out []Region
	for _, d := range descs {
		if d.Generation != gen || d.Rect.Area() == 0 {
			continue
		}
		out = append(out, Region{Rect: d.Rect, Viewport: d.Viewport(), Kind: d.Kind()})
	}
	return out
}

// AtlasOverlay draws depth as gray with each region's allocation outlined
// in its kind's color and the border shaded. depth has its origin at the
// bottom left like the atlas.
func AtlasOverlay(depth *image.Gray16, regions []Region) *image.RGBA {
	b := depth.Bounds()
	img := image.NewRGBA(b)
	draw.Draw(img, b, depth, b.Min, draw.Src)

	h := b.Dy()
	// Atlas rows grow upwards; image rows grow downwards.
	flip := func(r atlas.Rect) image.Rectangle {
		return image.Rect(r.X, h-r.Y-r.H, r.X+r.W, h-r.Y)
	}
	border := color.RGBA{40, 40, 40, 255}
	for _, reg := range regions {
		outer, inner := flip(reg.Rect), flip(reg.Viewport)
		for y := outer.Min.Y; y < outer.Max.Y; y++ {
			for x := outer.Min.X; x < outer.Max.X; x++ {
				if !image.Pt(x, y).In(inner) {
					img.SetRGBA(x, y, border)
				}
			}
		}
		outline(img, inner, kindColors[reg.Kind])
	}
	return img
}

func outline(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		img.SetRGBA(x, r.Min.Y, c)
		img.SetRGBA(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.SetRGBA(r.Min.X, y, c)
		img.SetRGBA(r.Max.X-1, y, c)
	}
}
