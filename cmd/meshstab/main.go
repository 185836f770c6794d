package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"meshstab/internal/app"
	"meshstab/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

type options struct {
	configPath string
	input      string
	output     string
	stream     bool
	overrides  map[string]string
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet(app.AppName, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: %s [flags] -i input.mp4 -o output\n\n", app.AppName)
		fs.PrintDefaults()
	}

	var o options
	fs.StringVar(&o.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&o.input, "i", "", "input video")
	fs.StringVar(&o.output, "o", "", "output directory (png) or file (video)")
	fs.BoolVar(&o.stream, "stream", false, "single causal pass with online smoothing")

	fs.String("mode", "", "smoothing mode: online or offline")
	fs.String("format", "", "output format: png or video")
	fs.String("backend", "", "homography backend: gonum or opencv")
	fs.String("overlay-dir", "", "write motion vector overlays here")
	fs.String("plot-dir", "", "write vertex trajectory plots here")
	fs.String("log-level", "", "debug, info, warning or error")
	fs.String("log-file", "", "also write JSON logs to this rotating file")
	fs.Int("patch-size", 0, "mesh cell size in pixels")
	fs.Int("border", -1, "pixels cropped from each side after warping")
	fs.Int("workers", -1, "parallel workers per stage, 0 for all CPUs")
	fs.Float64("lambda", -1, "temporal smoothness weight")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.input == "" || o.output == "" {
		fs.Usage()
		return o, errors.New("both -i and -o are required")
	}

	o.overrides = map[string]string{}
	fs.Visit(func(f *flag.Flag) {
		o.overrides[f.Name] = f.Value.String()
	})
	return o, nil
}

// applyOverrides lets explicitly set flags win over file and environment.
func applyOverrides(cfg *config.Config, set map[string]string) error {
	for name, value := range set {
		var err error
		switch name {
		case "mode":
			cfg.Smoothing.Mode = value
		case "format":
			cfg.Output.Format = value
		case "backend":
			cfg.Homography.Backend = value
		case "overlay-dir":
			cfg.Output.OverlayDir = value
		case "plot-dir":
			cfg.Output.PlotDir = value
		case "log-level":
			cfg.Log.Level = value
		case "log-file":
			cfg.Log.File = value
		case "patch-size":
			_, err = fmt.Sscan(value, &cfg.PatchSize)
		case "border":
			_, err = fmt.Sscan(value, &cfg.Border)
		case "workers":
			_, err = fmt.Sscan(value, &cfg.Workers)
		case "lambda":
			_, err = fmt.Sscan(value, &cfg.Smoothing.Lambda)
		}
		if err != nil {
			return fmt.Errorf("flag -%s: %w", name, err)
		}
	}
	return nil
}

func run(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, err := config.Load(opts.configPath)
	if err == nil {
		err = applyOverrides(&cfg, opts.overrides)
	}
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	configureRuntime()

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer a.Close()

	stats, err := a.Stabilize(a.Context(), opts.input, opts.output, opts.stream)
	if err != nil {
		a.Logger().Error("Main", err, map[string]interface{}{
			"frames_written": stats.Frames,
		})
		return 1
	}

	a.Logger().Info("Main", "stabilization finished", map[string]interface{}{
		"run_id": stats.RunID,
		"frames": stats.Frames,
		"output": opts.output,
	})
	return 0
}

func configureRuntime() {
	runtime.GOMAXPROCS(runtime.NumCPU())
	// Frames and remap tables are large and short-lived.
	debug.SetGCPercent(50)
}
