// Package projection composites rendered shadow depth into per-view
// attenuation buffers.
package projection

// Channel indexes an attenuation buffer texel.
type Channel int

// Whole-scene directional shadows own R and G; every other kind shares B
// and A. The second channel of each pair is the term applied to subsurface
// receivers.
const (
	ChannelR Channel = iota
	ChannelG
	ChannelB
	ChannelA
)

// AttenuationBuffer holds four occlusion factors per pixel. 1 is unshadowed.
type AttenuationBuffer struct {
	Width, Height int
	Pix           []float32 // RGBA, row major
}

// NewAttenuationBuffer returns a cleared buffer.
func NewAttenuationBuffer(width, height int) *AttenuationBuffer {
	b := &AttenuationBuffer{Width: width, Height: height, Pix: make([]float32, 4*width*height)}
	b.Clear()
	return b
}

// Clear resets every channel to unshadowed.
func (b *AttenuationBuffer) Clear() {
	for i := range b.Pix {
		b.Pix[i] = 1
	}
}

// At returns the four channels at pixel (x, y).
func (b *AttenuationBuffer) At(x, y int) [4]float32 {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return [4]float32{1, 1, 1, 1}
	}
	i := 4 * (y*b.Width + x)
	return [4]float32{b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3]}
}

// Factor returns the combined surface occlusion at (x, y).
func (b *AttenuationBuffer) Factor(x, y int) float32 {
	c := b.At(x, y)
	return min(c[ChannelR], c[ChannelB])
}

func (b *AttenuationBuffer) minBlend(i int, ch Channel, v float32) {
	j := i + int(ch)
	b.Pix[j] = min(b.Pix[j], v)
	b.Pix[j+1] = min(b.Pix[j+1], v)
}

// alphaBlend is src*alpha + dst*(1-alpha), the blend cascades use over the
// farther cascade already in the buffer.
func (b *AttenuationBuffer) alphaBlend(i int, ch Channel, v, alpha float32) {
	j := i + int(ch)
	b.Pix[j] = v*alpha + b.Pix[j]*(1-alpha)
	b.Pix[j+1] = v*alpha + b.Pix[j+1]*(1-alpha)
}
