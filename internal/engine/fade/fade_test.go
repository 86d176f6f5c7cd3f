package fade

import (
	"testing"

	"github.com/Faultbox/midgard-shadows/internal/engine/scene"
)

const (
	duration = 0.25
	step     = float32(1.0 / 60.0)
)

func TestFirstEncounterDoesNotFade(t *testing.T) {
	var s State
	s.Update(true, 10, duration, 1)
	if s.Phase() != SteadyVisible || s.Factor(10) != 1 {
		t.Errorf("first visible encounter: phase %v factor %v", s.Phase(), s.Factor(10))
	}

	var h State
	h.Update(false, 10, duration, 1)
	if h.Phase() != SteadyHidden || h.Rendered(10) {
		t.Errorf("first hidden encounter: phase %v rendered %v", h.Phase(), h.Rendered(10))
	}
}

func TestFadeOutMonotonicAndClamped(t *testing.T) {
	var s State
	s.Update(true, 0, duration, 1)
	s.Update(false, 1, duration, 2)
	if s.Phase() != FadingOut {
		t.Fatalf("phase = %v, want fading-out", s.Phase())
	}

	prev := float32(2)
	frame := uint32(3)
	for now := float32(1); now < 1.5; now += step {
		s.Update(false, now, duration, frame)
		frame++
		f := s.Factor(now)
		if f < 0 || f > 1 {
			t.Fatalf("factor %v out of [0,1] at %v", f, now)
		}
		if f > prev {
			t.Fatalf("fade-out factor increased: %v -> %v at %v", prev, f, now)
		}
		if f > 0 && !s.Rendered(now) {
			t.Fatalf("primitive with factor %v must still be rendered", f)
		}
		prev = f
	}
	if s.Phase() != SteadyHidden || s.Rendered(1.5) {
		t.Errorf("after fade: phase %v rendered %v", s.Phase(), s.Rendered(1.5))
	}
}

func TestFadeInReachesOne(t *testing.T) {
	var s State
	s.Update(false, 0, duration, 1)
	s.Update(true, 2, duration, 2)
	if got := s.Factor(2); got != 0 {
		t.Errorf("factor at start of fade-in = %v, want 0", got)
	}
	if got := s.Factor(2 + duration/2); got < 0.49 || got > 0.51 {
		t.Errorf("factor mid fade-in = %v, want 0.5", got)
	}
	if got := s.Factor(3); got != 1 {
		t.Errorf("factor after fade-in = %v, want 1", got)
	}
}

func TestReversalIsContinuous(t *testing.T) {
	var s State
	s.Update(true, 0, duration, 1)
	s.Update(false, 1, duration, 2)

	reverseAt := float32(1.1)
	before := s.Factor(reverseAt)
	s.Update(true, reverseAt, duration, 3)
	after := s.Factor(reverseAt)

	if d := after - before; d > 1e-5 || d < -1e-5 {
		t.Fatalf("reversal jumped from %v to %v", before, after)
	}
	if s.Phase() != FadingIn {
		t.Fatalf("phase after reversal = %v, want fading-in", s.Phase())
	}
	// Rising at the same rate, the fade completes after the time already spent fading out.
	wantEnd := reverseAt + (reverseAt - 1)
	if d := s.EndTime - wantEnd; d > 1e-4 || d < -1e-4 {
		t.Errorf("end time = %v, want %v", s.EndTime, wantEnd)
	}

	maxStep := step / duration
	prev := after
	for now := reverseAt + step; now < reverseAt+0.5; now += step {
		f := s.Factor(now)
		if f-prev > maxStep+1e-5 {
			t.Fatalf("factor stepped %v in one frame, max %v", f-prev, maxStep)
		}
		prev = f
	}
	if prev != 1 {
		t.Errorf("reversed fade ended at %v, want 1", prev)
	}
}

func TestZeroDurationSnaps(t *testing.T) {
	var s State
	s.Update(true, 0, 0, 1)
	s.Update(false, 1, 0, 2)
	if s.Fading || s.Rendered(1) {
		t.Error("zero duration should switch without fading")
	}
}

func TestTablePurge(t *testing.T) {
	tbl := NewTable()
	a := scene.Handle{Slot: 0, Gen: 1}
	b := scene.Handle{Slot: 1, Gen: 1}
	tbl.Touch(a).Update(true, 0, duration, 5)
	tbl.Touch(b).Update(true, 0, duration, 3)

	if n := tbl.Purge(6, 1); n != 1 {
		t.Errorf("Purge removed %d, want 1", n)
	}
	if _, ok := tbl.Get(a); !ok {
		t.Error("state touched last frame was purged")
	}
	if _, ok := tbl.Get(b); ok {
		t.Error("stale state survived")
	}
	if tbl.Len() != 1 {
		t.Errorf("Len = %d, want 1", tbl.Len())
	}
}
