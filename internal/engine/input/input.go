//go:build sdl

// Package input turns SDL2 events into viewer events.
package input

import (
	"github.com/veandco/go-sdl2/sdl"
)

// EventType identifies a viewer event.
type EventType int

const (
	EventNone EventType = iota
	EventQuit
	EventWindowResize
	EventKeyDown
	EventDrag
	EventZoom
	EventClick
)

// Event represents a processed input event.
type Event struct {
	Type   EventType
	Key    sdl.Keycode
	Width  int
	Height int
	// Pointer position for clicks, in window pixels.
	MouseX int
	MouseY int
	// Pointer motion for drags and wheel steps for zooms.
	DX, DY float32
	Button uint8
}

// Input tracks drag state across events.
type Input struct {
	events   []Event
	dragging bool
	// DragButton is the button that orbits while held.
	DragButton uint8
}

// New creates a new input handler dragging with the left button.
func New() *Input {
	return &Input{
		events:     make([]Event, 0, 16),
		DragButton: sdl.BUTTON_LEFT,
	}
}

// Update polls SDL events and converts them to viewer events.
// Returns true if the viewer should quit.
func (i *Input) Update() bool {
	i.events = i.events[:0]
	quit := false
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		if e, ok := i.translate(event); ok {
			i.events = append(i.events, e)
			quit = quit || e.Type == EventQuit
		}
	}
	return quit
}

func (i *Input) translate(event sdl.Event) (Event, bool) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		return Event{Type: EventQuit}, true

	case *sdl.WindowEvent:
		if e.Event == sdl.WINDOWEVENT_RESIZED {
			return Event{Type: EventWindowResize, Width: int(e.Data1), Height: int(e.Data2)}, true
		}

	case *sdl.KeyboardEvent:
		if e.Type != sdl.KEYDOWN || e.Repeat != 0 {
			return Event{}, false
		}
		if e.Keysym.Sym == sdl.K_ESCAPE {
			return Event{Type: EventQuit}, true
		}
		return Event{Type: EventKeyDown, Key: e.Keysym.Sym}, true

	case *sdl.MouseMotionEvent:
		if i.dragging {
			return Event{Type: EventDrag, DX: float32(e.XRel), DY: float32(e.YRel)}, true
		}

	case *sdl.MouseWheelEvent:
		return Event{Type: EventZoom, DY: float32(e.Y)}, true

	case *sdl.MouseButtonEvent:
		if e.Button == i.DragButton {
			i.dragging = e.Type == sdl.MOUSEBUTTONDOWN
			return Event{}, false
		}
		if e.Type == sdl.MOUSEBUTTONDOWN {
			return Event{Type: EventClick, MouseX: int(e.X), MouseY: int(e.Y), Button: e.Button}, true
		}
	}
	return Event{}, false
}

// Events returns the events from the last Update.
func (i *Input) Events() []Event {
	return i.events
}

// IsKeyPressed checks if a specific key was pressed this frame.
func (i *Input) IsKeyPressed(key sdl.Keycode) bool {
	for _, e := range i.events {
		if e.Type == EventKeyDown && e.Key == key {
			return true
		}
	}
	return false
}
