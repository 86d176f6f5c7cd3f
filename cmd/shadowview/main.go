//go:build sdl && gl

// Package main is an interactive viewer that streams the shadow
// attenuation of a scene file to an SDL2 window.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-shadows/internal/config"
	"github.com/Faultbox/midgard-shadows/internal/engine/camera"
	"github.com/Faultbox/midgard-shadows/internal/engine/debug"
	"github.com/Faultbox/midgard-shadows/internal/engine/framebuffer"
	"github.com/Faultbox/midgard-shadows/internal/engine/input"
	"github.com/Faultbox/midgard-shadows/internal/engine/picking"
	"github.com/Faultbox/midgard-shadows/internal/engine/projection"
	"github.com/Faultbox/midgard-shadows/internal/engine/renderer"
	"github.com/Faultbox/midgard-shadows/internal/engine/scene"
	"github.com/Faultbox/midgard-shadows/internal/engine/shadowdepth"
	"github.com/Faultbox/midgard-shadows/internal/engine/view"
	"github.com/Faultbox/midgard-shadows/internal/engine/window"
	"github.com/Faultbox/midgard-shadows/internal/logger"
	"github.com/Faultbox/midgard-shadows/internal/scenefile"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

const (
	defaultWidth  = 1280
	defaultHeight = 720
	windowTitle   = "Midgard Shadows"
)

var (
	flagScene = flag.String("scene", "scenes/yard.yaml", "Path to scene file")
	flagScale = flag.Int("scale", 2, "Window pixels per attenuation pixel")
	flagGPU   = flag.Bool("gpu", false, "Render shadow depth on the GPU")
	flagShots = flag.String("shots", "screenshots", "Directory for F12 dumps")
)

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Options()); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== Midgard Shadows viewer ===")

	if err := run(cfg); err != nil {
		logger.Error("viewer failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("viewer closed normally")
}

// viewer holds the interactive state.
type viewer struct {
	cfg    *config.Config
	sc     *scene.Scene
	cam    *camera.OrbitCamera
	state  *view.PersistentState
	r      *renderer.Renderer
	dumper *debug.Dumper

	combined *projection.AttenuationBuffer
	lines    []debug.Line
	visible  []scene.Handle
	invVP    math.Mat4

	// Attenuation pixels per window coordinate, for mapping mouse clicks.
	mouseScale float32
	visibleN   int
	shadowsN   int

	orbiting      bool
	showBoxes     bool
	showSelection bool
	dumpNext      bool
	frame         uint32
}

func run(cfg *config.Config) error {
	file, err := scenefile.Load(*flagScene)
	if err != nil {
		return err
	}

	win, err := window.New(window.Config{
		Title:  windowTitle,
		Width:  defaultWidth,
		Height: defaultHeight,
		VSync:  true,
	})
	if err != nil {
		return err
	}
	defer win.Close()

	if err := gl.Init(); err != nil {
		return fmt.Errorf("OpenGL init: %w", err)
	}
	logger.Info("OpenGL initialized", zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))))

	v := &viewer{
		cfg:      cfg,
		sc:       file.Build(),
		cam:      file.OrbitCamera(),
		state:    view.NewPersistentState(cfg.Occlusion.RandomSeed),
		r:        renderer.New(cfg),
		dumper:   debug.NewDumper(*flagShots, "shadowview"),
		orbiting: true,
	}
	defer v.r.Close()

	if *flagGPU {
		drawer, err := shadowdepth.NewBoxDrawer()
		if err != nil {
			return err
		}
		defer drawer.Destroy()
		size := int32(cfg.Shadows.AtlasSize)
		gpuAtlas, err := shadowdepth.NewGLAtlas(size, size, drawer)
		if err != nil {
			return err
		}
		defer gpuAtlas.Destroy()
		v.r.SetAtlas(gpuAtlas)
		logger.Info("rendering shadow depth on the GPU", zap.Int32("atlas", size))
	}

	p, err := newPresenter()
	if err != nil {
		return err
	}
	defer p.destroy()

	capture, err := framebuffer.New(defaultWidth, defaultHeight)
	if err != nil {
		return err
	}
	defer capture.Destroy()

	in := input.New()
	ctx := context.Background()
	start := time.Now()
	last := start
	lastStatus, statusFrames := start, uint32(0)
	for !in.Update() {
		v.mouseScale = win.PixelScale() / float32(*flagScale)
		for _, e := range in.Events() {
			v.handle(e)
		}

		now := time.Now()
		if v.orbiting {
			v.cam.Orbit(float32(now.Sub(last).Seconds()) * 0.3)
		}
		last = now

		winW, winH := win.DrawableSize()
		w, h := max(winW / *flagScale, 1), max(winH / *flagScale, 1)
		if err := v.renderFrame(ctx, w, h, float32(now.Sub(start).Seconds())); err != nil {
			return err
		}
		p.upload(w, h, v.combined.Pix)
		p.draw(winW, winH, v.lines, w, h)

		if v.dumpNext {
			v.dumpNext = false
			v.dump(p, capture, winW, winH)
		}
		win.SwapBuffers()

		statusFrames++
		if elapsed := now.Sub(lastStatus); elapsed >= time.Second {
			fps := float64(statusFrames) / elapsed.Seconds()
			win.SetStatus(fmt.Sprintf("%.0f fps | %d visible | %d shadows", fps, v.visibleN, v.shadowsN))
			lastStatus, statusFrames = now, 0
		}
	}
	return nil
}

// handle applies one input event to the viewer.
func (v *viewer) handle(e input.Event) {
	switch e.Type {
	case input.EventDrag:
		v.cam.HandleDrag(e.DX, e.DY)
	case input.EventZoom:
		v.cam.HandleZoom(e.DY)
	case input.EventClick:
		if e.Button == sdl.BUTTON_RIGHT {
			v.pick(float32(e.MouseX)*v.mouseScale, float32(e.MouseY)*v.mouseScale)
		}
	case input.EventKeyDown:
		switch e.Key {
		case sdl.K_SPACE:
			v.orbiting = !v.orbiting
		case sdl.K_b:
			v.showBoxes = !v.showBoxes
		case sdl.K_s:
			v.showSelection = !v.showSelection
		case sdl.K_F12:
			v.dumpNext = true
		}
	}
}

// dump writes the combined attenuation and a capture of the presented
// window, debug lines included.
func (v *viewer) dump(p *presenter, capture *framebuffer.Framebuffer, winW, winH int) {
	name := fmt.Sprintf("frame%d", v.frame)
	if path, err := v.dumper.WriteAttenuation(name, v.combined); err != nil {
		logger.Warn("attenuation dump failed", zap.Error(err))
	} else {
		logger.Info("attenuation dumped", zap.String("path", path))
	}

	capture.Resize(int32(winW), int32(winH))
	restore := capture.Bind()
	p.draw(winW, winH, v.lines, v.combined.Width, v.combined.Height)
	img := capture.Image()
	restore()
	if path, err := v.dumper.WritePNG(name+"_window", img); err != nil {
		logger.Warn("window capture failed", zap.Error(err))
	} else {
		logger.Info("window captured", zap.String("path", path))
	}
}

// pick toggles selection of the nearest visible primitive under the cursor.
// x, y are in attenuation buffer pixels.
func (v *viewer) pick(x, y float32) {
	if v.combined == nil {
		return
	}
	ray := picking.ScreenToRay(x, y, float32(v.combined.Width), float32(v.combined.Height), v.invVP)
	h, ok := picking.Pick(v.sc, ray, v.visible)
	if !ok {
		return
	}
	err := v.sc.Update(h, func(p *scene.Primitive) {
		p.Selected = !p.Selected
		logger.Info("selection toggled", zap.String("primitive", p.Name), zap.Bool("selected", p.Selected))
	})
	if err != nil {
		logger.Warn("selection failed", zap.Error(err))
	}
}

func (v *viewer) renderFrame(ctx context.Context, w, h int, now float32) error {
	v.frame++
	params := v.cam.Params("viewer", w, h)
	params.ShowSelection = v.showSelection
	vw := view.New(0, params, v.state)
	res, err := v.r.RenderFrame(ctx, renderer.FrameInput{
		Scene: v.sc,
		Views: []*view.View{vw},
		Frame: v.frame,
		Time:  now,
	})
	if err != nil {
		return err
	}

	if v.combined == nil || v.combined.Width != w || v.combined.Height != h {
		v.combined = projection.NewAttenuationBuffer(w, h)
	}
	v.combined.Clear()
	for _, buf := range res.Views[0].Attenuation {
		for i, a := range buf.Pix {
			v.combined.Pix[i] *= a
		}
	}

	v.visibleN = len(res.Views[0].Visible)
	v.shadowsN = res.Depth.Rendered + res.Depth.Cached
	v.invVP = vw.InvViewProj
	v.visible = v.visible[:0]
	v.lines = v.lines[:0]
	for _, vp := range res.Views[0].Visible {
		v.visible = append(v.visible, vp.Handle)
		if !v.showBoxes {
			continue
		}
		if prim, ok := v.sc.Get(vp.Handle); ok {
			v.lines = append(v.lines, debug.ScreenLines(vw.ViewProj, prim.Bounds, w, h)...)
		}
	}
	return nil
}
