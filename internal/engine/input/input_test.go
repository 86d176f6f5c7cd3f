//go:build sdl

package input

import (
	"testing"

	"github.com/veandco/go-sdl2/sdl"
)

func TestTranslate(t *testing.T) {
	in := New()
	steps := []struct {
		name  string
		event sdl.Event
		ok    bool
		want  EventType
	}{
		{"motion without drag", &sdl.MouseMotionEvent{XRel: 3}, false, EventNone},
		{"drag press", &sdl.MouseButtonEvent{Type: sdl.MOUSEBUTTONDOWN, Button: sdl.BUTTON_LEFT}, false, EventNone},
		{"drag motion", &sdl.MouseMotionEvent{XRel: 3, YRel: -2}, true, EventDrag},
		{"drag release", &sdl.MouseButtonEvent{Type: sdl.MOUSEBUTTONUP, Button: sdl.BUTTON_LEFT}, false, EventNone},
		{"motion after release", &sdl.MouseMotionEvent{XRel: 1}, false, EventNone},
		{"right click", &sdl.MouseButtonEvent{Type: sdl.MOUSEBUTTONDOWN, Button: sdl.BUTTON_RIGHT, X: 10, Y: 20}, true, EventClick},
		{"wheel", &sdl.MouseWheelEvent{Y: -1}, true, EventZoom},
		{"escape", &sdl.KeyboardEvent{Type: sdl.KEYDOWN, Keysym: sdl.Keysym{Sym: sdl.K_ESCAPE}}, true, EventQuit},
		{"key repeat", &sdl.KeyboardEvent{Type: sdl.KEYDOWN, Repeat: 1, Keysym: sdl.Keysym{Sym: sdl.K_b}}, false, EventNone},
		{"key up", &sdl.KeyboardEvent{Type: sdl.KEYUP, Keysym: sdl.Keysym{Sym: sdl.K_b}}, false, EventNone},
		{"key", &sdl.KeyboardEvent{Type: sdl.KEYDOWN, Keysym: sdl.Keysym{Sym: sdl.K_b}}, true, EventKeyDown},
	}
	for _, s := range steps {
		got, ok := in.translate(s.event)
		if ok != s.ok || got.Type != s.want {
			t.Errorf("%s: got (%v, %v), want (%v, %v)", s.name, got.Type, ok, s.want, s.ok)
		}
		if s.want == EventClick && (got.MouseX != 10 || got.MouseY != 20) {
			t.Errorf("%s: position (%d,%d)", s.name, got.MouseX, got.MouseY)
		}
		if s.want == EventDrag && (got.DX != 3 || got.DY != -2) {
			t.Errorf("%s: delta (%v,%v)", s.name, got.DX, got.DY)
		}
	}
}
