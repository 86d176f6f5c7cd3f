package view

import (
	"math/rand"

	"github.com/Faultbox/midgard-shadows/internal/engine/fade"
	"github.com/Faultbox/midgard-shadows/internal/engine/occlusion/hzb"
	"github.com/Faultbox/midgard-shadows/internal/engine/scene"
)

// State is the per-view memory the pipeline consults across frames.
// PersistentState keeps fade and occlusion history; TransientState is used
// for one-shot captures and remembers nothing.
type State interface {
	BeginFrame(frame uint32, now float32)
	Frame() uint32
	Now() float32

	// UpdateFade feeds a target visibility into the primitive's fade state.
	// It returns nil when the state does not track fades.
	UpdateFade(h scene.Handle, visible bool, duration float32) *fade.State

	// OcclusionHistory returns the primitive's history, creating it on first
	// use. It returns nil when the state does not track history.
	OcclusionHistory(h scene.Handle) (hist *OcclusionHistory, created bool)
	TracksHistory() bool

	// PrevHZB returns the pyramid built from the previous frame's depth.
	PrevHZB() *hzb.Pyramid
	SetHZB(p *hzb.Pyramid)

	// Random returns a uniform number in [0,1) from the view's stream.
	Random() float32

	// EvictHistory removes histories not considered within maxAge frames and
	// hands each evicted entry to release before dropping it.
	EvictHistory(maxAge uint32, release func(*OcclusionHistory)) int
	EndFrame()
}

// PersistentState is the stateful view memory of a player camera.
type PersistentState struct {
	frame     uint32
	prevFrame uint32
	now       float32
	started   bool

	fades   *fade.Table
	history map[scene.Handle]*OcclusionHistory
	hzb     *hzb.Pyramid
	rng     *rand.Rand
}

// NewPersistentState creates empty view memory with a seeded random stream.
func NewPersistentState(seed int64) *PersistentState {
	return &PersistentState{
		fades:   fade.NewTable(),
		history: make(map[scene.Handle]*OcclusionHistory),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// BeginFrame advances the frame and purges fade states not touched in the
// previous frame.
func (s *PersistentState) BeginFrame(frame uint32, now float32) {
	if s.started {
		s.prevFrame = s.frame
	} else {
		s.prevFrame = frame - 1
		s.started = true
	}
	s.frame = frame
	s.now = now
	s.fades.Purge(frame, frame-s.prevFrame)
}

func (s *PersistentState) Frame() uint32 { return s.frame }
func (s *PersistentState) Now() float32 { return s.now }

func (s *PersistentState) UpdateFade(h scene.Handle, visible bool, duration float32) *fade.State {
	st := s.fades.Touch(h)
	st.Update(visible, s.now, duration, s.frame)
	return st
}

// Fade returns the primitive's fade state if tracked.
func (s *PersistentState) Fade(h scene.Handle) (*fade.State, bool) {
	return s.fades.Get(h)
}

// FadeCount returns the number of tracked fade states.
func (s *PersistentState) FadeCount() int { return s.fades.Len() }

func (s *PersistentState) OcclusionHistory(h scene.Handle) (*OcclusionHistory, bool) {
	hist, ok := s.history[h]
	if ok {
		return hist, false
	}
	hist = &OcclusionHistory{LastVisibleTime: s.now, LastFrame: s.frame}
	s.history[h] = hist
	return hist, true
}

// HistoryCount returns the number of tracked occlusion histories.
func (s *PersistentState) HistoryCount() int { return len(s.history) }

func (s *PersistentState) TracksHistory() bool { return true }

func (s *PersistentState) PrevHZB() *hzb.Pyramid { return s.hzb }
func (s *PersistentState) SetHZB(p *hzb.Pyramid) { s.hzb = p }

// Random returns the next value of the view's seeded requery sequence.
func (s *PersistentState) Random() float32 { return s.rng.Float32() }

// EvictHistory drops histories not touched for more than maxAge frames,
// handing each to release first.
func (s *PersistentState) EvictHistory(maxAge uint32, release func(*OcclusionHistory)) int {
	n := 0
	for h, hist := range s.history {
		if s.frame-hist.LastFrame > maxAge {
			if release != nil {
				release(hist)
			}
			delete(s.history, h)
			n++
		}
	}
	return n
}

func (s *PersistentState) EndFrame() {}

// TransientState is the memory of a one-shot view: no fades, no history.
type TransientState struct {
	frame uint32
	now   float32
}

func (s *TransientState) BeginFrame(frame uint32, now float32) {
	s.frame = frame
	s.now = now
}

func (s *TransientState) Frame() uint32 { return s.frame }
func (s *TransientState) Now() float32 { return s.now }

// UpdateFade returns nil: one-shot views never fade.
func (s *TransientState) UpdateFade(scene.Handle, bool, float32) *fade.State { return nil }

// OcclusionHistory never has a history to return.
func (s *TransientState) OcclusionHistory(scene.Handle) (*OcclusionHistory, bool) {
	return nil, false
}

func (s *TransientState) TracksHistory() bool { return false }
func (s *TransientState) PrevHZB() *hzb.Pyramid { return nil }
func (s *TransientState) SetHZB(*hzb.Pyramid) {}

// Random returns 0, which never triggers a random requery.
func (s *TransientState) Random() float32 { return 0 }

func (s *TransientState) EndFrame() {}

// EvictHistory has nothing to evict.
func (s *TransientState) EvictHistory(uint32, func(*OcclusionHistory)) int { return 0 }
