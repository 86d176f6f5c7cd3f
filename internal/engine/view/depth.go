package view

// DepthBuffer is a view's scene depth in [0,1], 0 at the near plane.
type DepthBuffer struct {
	Width, Height int
	Depth         []float32
}

// NewDepthBuffer returns a buffer cleared to the far plane.
func NewDepthBuffer(width, height int) *DepthBuffer {
	d := &DepthBuffer{Width: width, Height: height, Depth: make([]float32, width*height)}
	d.Clear(1)
	return d
}

// Clear sets every texel to v.
func (d *DepthBuffer) Clear(v float32) {
	for i := range d.Depth {
		d.Depth[i] = v
	}
}

// At returns the depth at pixel (x, y), or 1 outside the buffer.
func (d *DepthBuffer) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= d.Width || y >= d.Height {
		return 1
	}
	return d.Depth[y*d.Width+x]
}

// Set writes the depth at pixel (x, y).
func (d *DepthBuffer) Set(x, y int, v float32) {
	if x < 0 || y < 0 || x >= d.Width || y >= d.Height {
		return
	}
	d.Depth[y*d.Width+x] = v
}
