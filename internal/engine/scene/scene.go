// Package scene owns the primitives and lights the visibility pipeline
// operates on.
//
// Primitives live in a slot arena. A Handle pairs a slot with the generation
// it was allocated in; removing a primitive bumps the slot generation so
// handles (and any history keyed by them) held across the removal never
// alias the slot's next occupant.
package scene

import (
	"errors"

	"github.com/Faultbox/midgard-shadows/internal/engine/lighting"
)

// ErrInvalidHandle is returned when a handle does not name a live primitive.
var ErrInvalidHandle = errors.New("scene: invalid primitive handle")

// Handle is a stable primitive identity.
type Handle struct {
	Slot uint32
	Gen  uint32
}

// Valid reports whether h was ever issued. Generations start at 1.
func (h Handle) Valid() bool { return h.Gen != 0 }

type entry struct {
	prim Primitive
	gen  uint32
	live bool
}

// Scene is a collection of primitives and lights. It is not safe for
// concurrent mutation; the pipeline only reads it during a frame.
type Scene struct {
	entries []entry
	free    []uint32
	live    int

	lights    []*lighting.Light
	nextLight lighting.ID
}

// New creates an empty scene.
func New() *Scene {
	return &Scene{}
}

// Add registers a primitive and returns its handle. Free slots are reused
// with a bumped generation.
func (s *Scene) Add(p Primitive) Handle {
	var slot uint32
	if n := len(s.free); n > 0 {
		slot = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		slot = uint32(len(s.entries))
		s.entries = append(s.entries, entry{})
	}
	e := &s.entries[slot]
	e.gen++
	e.live = true
	e.prim = p
	s.live++
	return Handle{Slot: slot, Gen: e.gen}
}

// Remove unregisters the primitive named by h.
func (s *Scene) Remove(h Handle) bool {
	e, ok := s.lookup(h)
	if !ok {
		return false
	}
	e.live = false
	e.prim = Primitive{}
	s.free = append(s.free, h.Slot)
	s.live--
	return true
}

func (s *Scene) lookup(h Handle) (*entry, bool) {
	if !h.Valid() || int(h.Slot) >= len(s.entries) {
		return nil, false
	}
	e := &s.entries[h.Slot]
	if !e.live || e.gen != h.Gen {
		return nil, false
	}
	return e, true
}

// Get returns the primitive named by h.
func (s *Scene) Get(h Handle) (*Primitive, bool) {
	e, ok := s.lookup(h)
	if !ok {
		return nil, false
	}
	return &e.prim, true
}

// At returns the live primitive occupying slot.
func (s *Scene) At(slot int) (*Primitive, bool) {
	if slot < 0 || slot >= len(s.entries) || !s.entries[slot].live {
		return nil, false
	}
	return &s.entries[slot].prim, true
}

// Update mutates a primitive in place and bumps its content version.
func (s *Scene) Update(h Handle, fn func(*Primitive)) error {
	e, ok := s.lookup(h)
	if !ok {
		return ErrInvalidHandle
	}
	fn(&e.prim)
	e.prim.Version++
	return nil
}

// Len returns the number of live primitives.
func (s *Scene) Len() int { return s.live }

// SlotCount returns the arena size, which per-view bitmaps are sized to.
func (s *Scene) SlotCount() int { return len(s.entries) }

// Handle returns the handle of the live primitive in slot, or the zero
// handle when the slot is free.
func (s *Scene) Handle(slot int) Handle {
	if slot < 0 || slot >= len(s.entries) || !s.entries[slot].live {
		return Handle{}
	}
	return Handle{Slot: uint32(slot), Gen: s.entries[slot].gen}
}

// Each calls fn for every live primitive in slot order.
func (s *Scene) Each(fn func(Handle, *Primitive)) {
	for i := range s.entries {
		e := &s.entries[i]
		if e.live {
			fn(Handle{Slot: uint32(i), Gen: e.gen}, &e.prim)
		}
	}
}

// AddLight registers a light, assigns its ID and returns it.
func (s *Scene) AddLight(l lighting.Light) lighting.ID {
	s.nextLight++
	l.ID = s.nextLight
	s.lights = append(s.lights, &l)
	return l.ID
}

// RemoveLight unregisters a light.
func (s *Scene) RemoveLight(id lighting.ID) bool {
	for i, l := range s.lights {
		if l.ID == id {
			s.lights = append(s.lights[:i], s.lights[i+1:]...)
			return true
		}
	}
	return false
}

// Light returns the light with the given ID.
func (s *Scene) Light(id lighting.ID) (*lighting.Light, bool) {
	for _, l := range s.lights {
		if l.ID == id {
			return l, true
		}
	}
	return nil, false
}

// Lights returns the registered lights in registration order.
func (s *Scene) Lights() []*lighting.Light {
	return s.lights
}
