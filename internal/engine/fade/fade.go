// Package fade implements the distance fade state machine.
//
// A fade is a line factor = Scale*t + Bias over real time. Fading in runs the
// factor from 0 to 1 over the fade duration, fading out from 1 to 0. When a
// fade reverses before finishing, the new line is mirrored around the
// reversal instant so the factor is continuous.
package fade

import (
	"github.com/Faultbox/midgard-shadows/internal/engine/scene"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// Params is the scale/bias pair handed to the rendering pass.
type Params struct {
	Scale float32
	Bias  float32
}

// At evaluates the unclamped line at time t.
func (p Params) At(t float32) float32 {
	return p.Scale*t + p.Bias
}

// Steady lines.
var (
	Visible = Params{Scale: 0, Bias: 1}
	Hidden  = Params{Scale: 0, Bias: 0}
)

// Phase is the state machine position.
type Phase uint8

// Phases.
const (
	SteadyHidden Phase = iota
	SteadyVisible
	FadingIn
	FadingOut
)

func (p Phase) String() string {
	switch p {
	case SteadyHidden:
		return "steady-hidden"
	case SteadyVisible:
		return "steady-visible"
	case FadingIn:
		return "fading-in"
	case FadingOut:
		return "fading-out"
	}
	return "unknown"
}

// State is one primitive's fade history in a view.
type State struct {
	Valid   bool
	Visible bool // target visibility
	Fading  bool
	Params  Params
	EndTime float32
	Frame   uint32 // last frame the state was touched
}

// Phase returns the current state machine position.
func (s *State) Phase() Phase {
	switch {
	case s.Fading && s.Visible:
		return FadingIn
	case s.Fading:
		return FadingOut
	case s.Visible:
		return SteadyVisible
	}
	return SteadyHidden
}

// Update feeds this frame's target visibility into the state machine.
func (s *State) Update(visible bool, now, duration float32, frame uint32) {
	s.Frame = frame
	if !s.Valid {
		s.Valid = true
		s.Visible = visible
		s.Fading = false
		s.Params = steady(visible)
		s.EndTime = now
		return
	}

	s.Settle(now)
	if visible == s.Visible {
		return
	}
	s.Visible = visible

	if s.Fading {
		// Mirror the line around now: a'*now + b' == a*now + b.
		s.Params.Bias = 2*now*s.Params.Scale + s.Params.Bias
		s.Params.Scale = -s.Params.Scale
		target := float32(0)
		if visible {
			target = 1
		}
		s.EndTime = (target - s.Params.Bias) / s.Params.Scale
		return
	}

	if duration <= 0 {
		s.Params = steady(visible)
		s.EndTime = now
		return
	}
	inv := 1 / duration
	if visible {
		s.Params = Params{Scale: inv, Bias: -now * inv}
	} else {
		s.Params = Params{Scale: -inv, Bias: 1 + now*inv}
	}
	s.Fading = true
	s.EndTime = now + duration
}

// Settle turns an elapsed fade into the matching steady state.
func (s *State) Settle(now float32) {
	if s.Fading && now >= s.EndTime {
		s.Fading = false
		s.Params = steady(s.Visible)
	}
}

// Factor returns the opacity at time now, clamped to [0,1].
func (s *State) Factor(now float32) float32 {
	if !s.Fading {
		if s.Visible {
			return 1
		}
		return 0
	}
	return math.Clamp01(s.Params.At(now))
}

// Rendered reports whether the primitive must still be drawn at now. A
// primitive fading out is drawn until its factor reaches 0.
func (s *State) Rendered(now float32) bool {
	if s.Fading && now < s.EndTime {
		return true
	}
	return s.Visible
}

func steady(visible bool) Params {
	if visible {
		return Visible
	}
	return Hidden
}

// Table holds fade states keyed by primitive handle.
type Table struct {
	states map[scene.Handle]*State
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{states: make(map[scene.Handle]*State)}
}

// Touch returns the state for h, creating an invalid one on first use.
func (t *Table) Touch(h scene.Handle) *State {
	s, ok := t.states[h]
	if !ok {
		s = &State{}
		t.states[h] = s
	}
	return s
}

// Get returns the state for h if present.
func (t *Table) Get(h scene.Handle) (*State, bool) {
	s, ok := t.states[h]
	return s, ok
}

// Purge drops states not touched within maxAge frames of frame. With
// maxAge 1 only states touched in the previous frame survive.
func (t *Table) Purge(frame, maxAge uint32) int {
	n := 0
	for h, s := range t.states {
		if frame-s.Frame > maxAge {
			delete(t.states, h)
			n++
		}
	}
	return n
}

// Len returns the number of tracked states.
func (t *Table) Len() int { return len(t.states) }
