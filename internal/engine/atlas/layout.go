// Package atlas packs shadow maps into a shared depth texture.
package atlas

// Rect is an integer texel rectangle.
type Rect struct {
	X, Y, W, H int
}

// Area returns the texel count.
func (r Rect) Area() int { return r.W * r.H }

// Empty reports whether the rectangle covers no texels.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Overlaps reports whether two rectangles share any texel.
func (r Rect) Overlaps(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Inset shrinks the rectangle by n texels on each side.
func (r Rect) Inset(n int) Rect {
	return Rect{X: r.X + n, Y: r.Y + n, W: r.W - 2*n, H: r.H - 2*n}
}

// node is a guillotine tree node. Leaves are either used or free; inner
// nodes always have two children.
type node struct {
	rect     Rect
	children [2]*node
	parent   *node
	used     bool
}

func (n *node) leaf() bool { return n.children[0] == nil }

func (n *node) insert(w, h int) *node {
	if !n.leaf() {
		if r := n.children[0].insert(w, h); r != nil {
			return r
		}
		return n.children[1].insert(w, h)
	}
	if n.used || w > n.rect.W || h > n.rect.H {
		return nil
	}
	if w == n.rect.W && h == n.rect.H {
		n.used = true
		return n
	}

	// Split along the axis with more leftover space so the remainder stays
	// as square as possible.
	r := n.rect
	if r.W-w > r.H-h {
		n.children[0] = &node{rect: Rect{X: r.X, Y: r.Y, W: w, H: r.H}, parent: n}
		n.children[1] = &node{rect: Rect{X: r.X + w, Y: r.Y, W: r.W - w, H: r.H}, parent: n}
	} else {
		n.children[0] = &node{rect: Rect{X: r.X, Y: r.Y, W: r.W, H: h}, parent: n}
		n.children[1] = &node{rect: Rect{X: r.X, Y: r.Y + h, W: r.W, H: r.H - h}, parent: n}
	}
	return n.children[0].insert(w, h)
}

func (n *node) find(r Rect) *node {
	if n.leaf() {
		if n.used && n.rect == r {
			return n
		}
		return nil
	}
	for _, c := range n.children {
		cr := c.rect
		if r.X >= cr.X && r.Y >= cr.Y && r.X+r.W <= cr.X+cr.W && r.Y+r.H <= cr.Y+cr.H {
			if f := c.find(r); f != nil {
				return f
			}
		}
	}
	return nil
}

func (n *node) freeLeaf() bool { return n.leaf() && !n.used }

// Layout is a deterministic binary tree rectangle packer. The same
// sequence of Add and Remove calls always produces the same placements.
type Layout struct {
	width, height int
	root          *node
	used          int
	count         int
}

// NewLayout creates an empty layout of the given size.
func NewLayout(width, height int) *Layout {
	l := &Layout{width: width, height: height}
	l.Reset()
	return l
}

// Size returns the layout dimensions.
func (l *Layout) Size() (width, height int) { return l.width, l.height }

// Reset frees every rectangle.
func (l *Layout) Reset() {
	l.root = &node{rect: Rect{W: l.width, H: l.height}}
	l.used = 0
	l.count = 0
}

// Add places a w*h rectangle. It returns false when w or h is not positive
// or no free space fits.
func (l *Layout) Add(w, h int) (Rect, bool) {
	if w <= 0 || h <= 0 {
		return Rect{}, false
	}
	n := l.root.insert(w, h)
	if n == nil {
		return Rect{}, false
	}
	l.used += w * h
	l.count++
	return n.rect, true
}

// Remove frees a rectangle previously returned by Add and merges empty
// siblings back into their parent.
func (l *Layout) Remove(r Rect) bool {
	n := l.root.find(r)
	if n == nil {
		return false
	}
	n.used = false
	l.used -= r.Area()
	l.count--
	for p := n.parent; p != nil; p = p.parent {
		if !p.children[0].freeLeaf() || !p.children[1].freeLeaf() {
			break
		}
		p.children = [2]*node{}
	}
	return true
}

// Used returns the allocated texel count.
func (l *Layout) Used() int { return l.used }

// Count returns the number of allocated rectangles.
func (l *Layout) Count() int { return l.count }

// Utilization returns the allocated fraction of the layout.
func (l *Layout) Utilization() float64 {
	total := l.width * l.height
	if total == 0 {
		return 0
	}
	return float64(l.used) / float64(total)
}
