package atlas

// CubeSlot is one cube depth target of the pool.
type CubeSlot struct {
	Index      int
	Resolution int
}

// CubePool hands out a fixed number of cube depth targets per frame.
type CubePool struct {
	slots         int
	maxResolution int
	next          int
}

// NewCubePool creates a pool of n cube targets of at most maxResolution
// texels per face.
func NewCubePool(n, maxResolution int) *CubePool {
	return &CubePool{slots: n, maxResolution: maxResolution}
}

// Acquire takes the next free slot, clamping the face resolution.
func (p *CubePool) Acquire(resolution int) (CubeSlot, bool) {
	if p.next >= p.slots || resolution <= 0 {
		return CubeSlot{}, false
	}
	s := CubeSlot{Index: p.next, Resolution: min(resolution, p.maxResolution)}
	p.next++
	return s, true
}

// Reset returns every slot to the pool.
func (p *CubePool) Reset() { p.next = 0 }

// Len returns the pool size.
func (p *CubePool) Len() int { return p.slots }

// MaxResolution returns the largest face resolution a slot can hold.
func (p *CubePool) MaxResolution() int { return p.maxResolution }
