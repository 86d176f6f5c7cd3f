// Package main runs the visibility and shadow pipeline over a scene file
// for a number of frames and reports per-frame statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	gomath "math"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-shadows/internal/config"
	"github.com/Faultbox/midgard-shadows/internal/engine/camera"
	"github.com/Faultbox/midgard-shadows/internal/engine/debug"
	"github.com/Faultbox/midgard-shadows/internal/engine/renderer"
	"github.com/Faultbox/midgard-shadows/internal/engine/view"
	"github.com/Faultbox/midgard-shadows/internal/logger"
	"github.com/Faultbox/midgard-shadows/internal/scenefile"
)

var (
	flagScene  = flag.String("scene", "scenes/yard.yaml", "Path to scene file")
	flagFrames = flag.Int("frames", 120, "Frames to render")
	flagWidth  = flag.Int("width", 320, "View width")
	flagHeight = flag.Int("height", 180, "View height")
	flagViews  = flag.Int("views", 1, "Views, spread evenly around the orbit")
	flagOrbit  = flag.Float64("orbit", 1, "Camera orbit per frame in degrees")
	flagFPS    = flag.Float64("fps", 60, "Simulated frame rate")
	flagDump   = flag.String("dump", "", "Directory for attenuation and depth dumps of the last frame")
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

	logger.Info("=== Midgard Shadows visbench ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("visbench failed", zap.Error(err))
		os.Exit(1)
	}
}

// bench is one view's camera and cross-frame state.
type bench struct {
	name  string
	cam   *camera.OrbitCamera
	state *view.PersistentState
}

func run(ctx context.Context, cfg *config.Config) error {
	file, err := scenefile.Load(*flagScene)
	if err != nil {
		return err
	}
	sc := file.Build()
	logger.Info("scene loaded",
		zap.String("path", *flagScene),
		zap.Int("primitives", sc.Len()),
		zap.Int("lights", len(sc.Lights())))

	benches := make([]bench, max(*flagViews, 1))
	for i := range benches {
		cam := file.OrbitCamera()
		cam.Orbit(float32(2 * gomath.Pi * float64(i) / float64(len(benches))))
		benches[i] = bench{
			name:  fmt.Sprintf("view%d", i),
			cam:   cam,
			state: view.NewPersistentState(cfg.Occlusion.RandomSeed + int64(i)),
		}
	}

	r := renderer.New(cfg)
	defer r.Close()

	var (
		last    *renderer.FrameResult
		views   []*view.View
		elapsed time.Duration
		shadows int
	)
	orbit := float32(*flagOrbit * gomath.Pi / 180)
	for frame := 1; frame <= *flagFrames; frame++ {
		views = views[:0]
		for _, b := range benches {
			views = append(views, view.New(0, b.cam.Params(b.name, *flagWidth, *flagHeight), b.state))
		}

		start := time.Now()
		res, err := r.RenderFrame(ctx, renderer.FrameInput{
			Scene: sc,
			Views: views,
			Frame: uint32(frame),
			Time:  float32(float64(frame) / *flagFPS),
		})
		if err != nil {
			return err
		}
		elapsed += time.Since(start)
		shadows += res.Depth.Rendered + res.Depth.Cached
		last = res

		for _, vr := range res.Views {
			logger.Debug("view",
				zap.Int("frame", frame),
				zap.String("view", vr.Name),
				zap.Int("visible", len(vr.Visible)),
				zap.Int("frustum_culled", vr.Culling.FrustumCulled),
				zap.Int("distance_culled", vr.Culling.DistanceCulled),
				zap.Int("occluded", vr.Occlusion.Occluded),
				zap.Int("fading", vr.Fading),
				zap.Int("evicted", vr.Evicted))
		}
		for _, b := range benches {
			b.cam.Orbit(orbit)
		}
	}

	frames := max(*flagFrames, 1)
	logger.Info("benchmark done",
		zap.Int("frames", *flagFrames),
		zap.Duration("total", elapsed),
		zap.Duration("per_frame", elapsed/time.Duration(frames)),
		zap.Float64("shadows_per_frame", float64(shadows)/float64(frames)))

	if *flagDump != "" && last != nil {
		return dump(r, last, views)
	}
	return nil
}

func dump(r *renderer.Renderer, res *renderer.FrameResult, views []*view.View) error {
	d := debug.NewDumper(*flagDump, fmt.Sprintf("frame%d", res.Frame))

	for i, vr := range res.Views {
		for id, buf := range vr.Attenuation {
			path, err := d.WriteAttenuation(fmt.Sprintf("%s_light%d", vr.Name, id), buf)
			if err != nil {
				return err
			}
			logger.Info("wrote attenuation", zap.String("path", path), zap.Bool("visible", res.AnyShadowVisible(id)))
		}
		if depth := views[i].SceneDepth; depth != nil {
			path, err := d.WriteDepth(vr.Name+"_depth", depth.Width, depth.Height, depth.Depth)
			if err != nil {
				return err
			}
			logger.Info("wrote scene depth", zap.String("path", path))
		}
	}

	a := r.Atlas()
	w, h := a.Size()
	path, err := d.WriteDepth("atlas", w, h, a.Depth())
	if err != nil {
		return err
	}
	logger.Info("wrote shadow atlas", zap.String("path", path))

	if res.Plan != nil && len(res.Plan.Passes) > 0 {
		pass := res.Plan.Passes[len(res.Plan.Passes)-1]
		overlay := debug.AtlasOverlay(debug.DepthImage(w, h, a.Depth()), debug.AtlasRegions(pass.Descriptors, pass.Generation))
		path, err := d.WritePNG("atlas_overlay", overlay)
		if err != nil {
			return err
		}
		logger.Info("wrote atlas overlay", zap.String("path", path), zap.Int("generation", pass.Generation))
	}
	return nil
}
