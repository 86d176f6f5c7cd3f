package shadow

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Faultbox/midgard-shadows/internal/engine/atlas"
)

type preshadowEntry struct {
	rect        atlas.Rect
	resolution  int
	fingerprint uint64
	depthValid  bool
	frame       uint64
}

// PreshadowCache keeps preshadow rectangles and their rendered depth across
// frames in a dedicated atlas. Entries are evicted least recently used and
// eviction frees the rectangle. Entries handed out in the current frame are
// pinned and never evicted before the next BeginFrame.
type PreshadowCache struct {
	entries *lru.Cache[PreshadowKey, *preshadowEntry]
	layout  *atlas.Layout
	size    int
	frame   uint64
}

// NewPreshadowCache creates a cache of at most size entries in an atlas of
// atlasSize texels square. A size of 0 disables caching.
func NewPreshadowCache(size, atlasSize int) *PreshadowCache {
	c := &PreshadowCache{layout: atlas.NewLayout(atlasSize, atlasSize), size: size, frame: 1}
	if size <= 0 {
		return c
	}
	entries, err := lru.NewWithEvict(size, func(_ PreshadowKey, e *preshadowEntry) {
		c.layout.Remove(e.rect)
	})
	if err != nil {
		// Only a non-positive size fails.
		return c
	}
	c.entries = entries
	return c
}

// Enabled reports whether the cache keeps anything.
func (c *PreshadowCache) Enabled() bool { return c.entries != nil }

// Len returns the number of cached preshadows.
func (c *PreshadowCache) Len() int {
	if c.entries == nil {
		return 0
	}
	return c.entries.Len()
}

// Layout returns the preshadow atlas layout.
func (c *PreshadowCache) Layout() *atlas.Layout { return c.layout }

// BeginFrame unpins the entries acquired in the previous frame.
func (c *PreshadowCache) BeginFrame() { c.frame++ }

// Acquire places a preshadow descriptor in the cache atlas. hit is true
// when the cached depth is still valid for the descriptor's fingerprint and
// rendering can be skipped. ok is false when the cache is disabled, when no space can be
// freed without evicting an entry pinned this frame, or when the key was
// already placed this frame.
func (c *PreshadowCache) Acquire(d *Descriptor) (hit, ok bool) {
	p, isPre := d.Payload.(PreshadowPayload)
	if !isPre || c.entries == nil {
		return false, false
	}
	size := d.Resolution + 2*d.Border

	if e, found := c.entries.Get(p.Key); found {
		if e.frame == c.frame {
			return false, false
		}
		if e.resolution == d.Resolution {
			e.frame = c.frame
			d.Rect = e.rect
			d.inCache = true
			if e.depthValid && e.fingerprint == p.Fingerprint {
				d.cacheHit = true
				return true, true
			}
			e.fingerprint = p.Fingerprint
			e.depthValid = false
			return false, true
		}
		c.entries.Remove(p.Key)
	}

	rect, placed := c.layout.Add(size, size)
	for !placed && c.evictUnpinned() {
		rect, placed = c.layout.Add(size, size)
	}
	if !placed {
		return false, false
	}
	// A full cache would evict its oldest entry on Add, pinned or not.
	if c.entries.Len() >= c.size && !c.evictUnpinned() {
		c.layout.Remove(rect)
		return false, false
	}
	d.Rect = rect
	d.inCache = true
	c.entries.Add(p.Key, &preshadowEntry{rect: rect, resolution: d.Resolution, fingerprint: p.Fingerprint, frame: c.frame})
	return false, true
}

// evictUnpinned removes the least recently used entry not acquired this
// frame. It reports false when every entry is pinned.
func (c *PreshadowCache) evictUnpinned() bool {
	for _, k := range c.entries.Keys() {
		if e, ok := c.entries.Peek(k); ok && e.frame != c.frame {
			c.entries.Remove(k)
			return true
		}
	}
	return false
}

// MarkRendered records that the descriptor's depth now holds valid data.
// It reports false for preshadows the cache does not hold.
func (c *PreshadowCache) MarkRendered(d *Descriptor) bool {
	p, isPre := d.Payload.(PreshadowPayload)
	if !isPre || c.entries == nil || !d.InPreshadowCache() {
		return false
	}
	e, found := c.entries.Peek(p.Key)
	if !found || e.fingerprint != p.Fingerprint || e.rect != d.Rect {
		return false
	}
	e.depthValid = true
	return true
}

// Forget drops a cached preshadow, for example when its receiver is removed.
func (c *PreshadowCache) Forget(key PreshadowKey) {
	if c.entries != nil {
		c.entries.Remove(key)
	}
}

// Purge empties the cache and its atlas.
func (c *PreshadowCache) Purge() {
	if c.entries != nil {
		c.entries.Purge()
	}
	c.layout.Reset()
}
