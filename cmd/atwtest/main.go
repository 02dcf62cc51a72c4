// Command atwtest runs the asynchronous time warp test and prints frame
// statistics.
//
// Without a window it renders headless into an offscreen swapchain that
// simulates the display refresh:
//
//	atwtest -mode async-warp -backend compute -duration 10s -load 200
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/gogpu/atw"
	"github.com/gogpu/atw/scene"
	"github.com/gogpu/atw/warp"
	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/noop"
	_ "github.com/gogpu/wgpu/hal/vulkan"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func main() {
	var (
		mode        = flag.String("mode", atw.RenderModeAsyncWarp.String(), "render mode: async-warp, warp-only or scene-only")
		backend     = flag.String("backend", "", fmt.Sprintf("warp backend %v (default: preferred)", warp.Available()))
		gpuName     = flag.String("gpu", "vulkan", "GPU backend: vulkan or noop")
		width       = flag.Int("width", 1920, "display width in pixels")
		height      = flag.Int("height", 1080, "display height in pixels")
		refresh     = flag.Float64("refresh", 60, "display refresh rate in Hz")
		vsync       = flag.Bool("vsync", true, "synchronize presentation to the display refresh")
		duration    = flag.Duration("duration", 5*time.Second, "run time, 0 runs until interrupted")
		frames      = flag.Uint64("frames", 0, "stop after this many warp frames, 0 for no limit")
		tilesWide   = flag.Int("tiles-wide", 0, "distortion tiles per eye horizontally (default: 32 pixel tiles)")
		tilesHigh   = flag.Int("tiles-high", 0, "distortion tiles per eye vertically (default: 32 pixel tiles)")
		eyeSize     = flag.Uint("eye-size", 1024, "eye image edge length in pixels")
		chromatic   = flag.Bool("chromatic", false, "correct chromatic aberration")
		noRotation  = flag.Bool("no-rotation", false, "disable head rotation")
		incremental = flag.Bool("incremental", true, "interpolate the warp across the display scan-out")
		spin        = flag.Float64("spin", 0.5, "simulated head yaw rate in radians per second")
		load        = flag.Int("load", 0, "extra per-pixel scene work")
		ipd         = flag.Float64("ipd", 0.064, "interpupillary distance in meters")
		verbose     = flag.Bool("v", false, "log per-frame diagnostics")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	atw.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	renderMode, err := atw.ParseRenderMode(*mode)
	if err != nil {
		log.Fatal(err)
	}
	gpuBackend := gputypes.BackendVulkan
	switch *gpuName {
	case "vulkan":
	case "noop":
		gpuBackend = gputypes.BackendEmpty
	default:
		log.Fatalf("unknown GPU backend %q", *gpuName)
	}

	settings := scene.DefaultSettings()
	settings.Load = *load
	settings.IPD = float32(*ipd)

	app, err := atw.New(
		atw.WithRenderMode(renderMode),
		atw.WithBackend(*backend),
		atw.WithGPUBackend(gpuBackend),
		atw.WithDisplay(*width, *height, *refresh),
		atw.WithVSync(*vsync),
		atw.WithTiles(*tilesWide, *tilesHigh),
		atw.WithEyeResolution(uint32(*eyeSize), uint32(*eyeSize)),
		atw.WithChromaticAberration(*chromatic),
		atw.WithHeadRotationDisabled(*noRotation),
		atw.WithIncrementalRefresh(*incremental),
		atw.WithViewProvider(atw.SpinningHead{RadiansPerSecond: float32(*spin)}),
		atw.WithSceneSettings(settings),
		atw.WithFrameLimit(*frames),
	)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	start := time.Now()
	if err := app.Run(ctx); err != nil {
		log.Printf("atwtest: %v", err)
		os.Exit(1)
	}
	report(app, time.Since(start))
}

// report prints the run statistics.
func report(app *atw.App, elapsed time.Duration) {
	st := app.Stats()
	p := message.NewPrinter(language.English)
	seconds := elapsed.Seconds()

	p.Printf("adapter:          %s (%s)\n", st.Adapter.Name, st.Adapter.Type)
	p.Printf("mode:             %s, %s backend\n", app.Mode(), st.Backend)
	p.Printf("elapsed:          %.2f s\n", seconds)
	p.Printf("warp frames:      %d (%.1f Hz)\n", st.WarpFrames, float64(st.WarpFrames)/seconds)
	p.Printf("scene frames:     %d (%.1f Hz)\n", st.SceneFrames, float64(st.SceneFrames)/seconds)
	p.Printf("adopted:          %d (%.1f%% of warp frames)\n", st.Adopted, 100*st.SceneFramesPerWarpFrame())
	p.Printf("re-warped:        %d stale, %d pending, %d busy\n", st.Stale, st.Pending, st.Busy)
	p.Printf("skipped:          %d\n", st.Skipped)
	p.Printf("missed refreshes: %d\n", st.MissedRefreshes)
	p.Printf("cpu per frame:    warp %v, scene %v\n", st.WarpCPUTime, st.SceneCPUTime)
}
