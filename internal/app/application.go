package app

import (
	"context"
	"fmt"
	"runtime"

	"meshstab/internal/config"
	"meshstab/internal/homography"
	"meshstab/internal/logger"
	"meshstab/internal/mesh"
	"meshstab/internal/opencv/geometry"
	"meshstab/internal/opencv/memory"
	"meshstab/internal/opencv/overlay"
	"meshstab/internal/opencv/remap"
	"meshstab/internal/opencv/tracking"
	"meshstab/internal/pipeline"
	"meshstab/internal/plot"
	"meshstab/internal/shutdown"
)

const (
	AppName    = "meshstab"
	AppID      = "io.meshstab.preview"
	AppVersion = "1.0.0"
)

// Application owns the components of one stabilization process and tears
// them down in reverse order on Close or on an interrupt.
type Application struct {
	cfg        config.Config
	logger     *logger.ZerologAdapter
	shutdown   *shutdown.Manager
	pool       *memory.Manager
	stabilizer *pipeline.Stabilizer
	stopSignal func()
}

func New(cfg config.Config) (_ *Application, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Options{Level: level, JSON: cfg.Log.JSON, File: cfg.Log.File})
	a := &Application{
		cfg:      cfg,
		logger:   log,
		shutdown: shutdown.NewManager(log),
		pool:     memory.NewManager(log),
	}
	a.shutdown.Register("mat pool", a.pool)
	defer func() {
		if err != nil {
			log.Close()
		}
	}()

	trackerCfg := TrackingConfig(cfg)
	if err := trackerCfg.Validate(); err != nil {
		return nil, fmt.Errorf("tracking: %w", err)
	}

	estimator := mesh.NewEstimator(cfg.Estimator(), Fitter(cfg))
	renderer := remap.NewRenderer(remap.Config{
		PatchSize: cfg.PatchSize,
		Border:    cfg.Border,
		Workers:   cfg.Workers,
	}, a.pool, log)

	a.stabilizer, err = pipeline.New(pipeline.Options{
		Mode:      cfg.Mode(),
		Smoothing: cfg.SmoothingParams(),
		Workers:   cfg.Workers,
	}, tracking.NewLucasKanade(trackerCfg, log), estimator, renderer, log)
	if err != nil {
		return nil, err
	}

	if dir := cfg.Output.OverlayDir; dir != "" {
		w, err := overlay.NewWriter(dir, cfg.PatchSize)
		if err != nil {
			return nil, err
		}
		a.stabilizer.AddFrameObserver(pipeline.OverlayObserver{Writer: w})
	}
	if dir := cfg.Output.PlotDir; dir != "" {
		p, err := plot.NewTrajectoryPlotter(dir, cfg.Output.PlotStride)
		if err != nil {
			return nil, err
		}
		a.stabilizer.AddTrajectoryObserver(pipeline.PlotObserver{Plotter: p})
	}

	a.stopSignal = a.shutdown.Listen()

	log.Info("Application", "initialized", map[string]interface{}{
		"version":    AppVersion,
		"patch_size": cfg.PatchSize,
		"radius":     cfg.PropagationRadius,
		"mode":       cfg.Smoothing.Mode,
		"backend":    cfg.Homography.Backend,
		"workers":    workers(cfg.Workers),
	})
	return a, nil
}

// Fitter picks the global homography backend named by the configuration.
func Fitter(cfg config.Config) homography.Fitter {
	if cfg.Homography.Backend == config.BackendOpenCV {
		return geometry.NewFitter(cfg.RANSAC())
	}
	return homography.NewRANSAC(cfg.RANSAC())
}

func TrackingConfig(cfg config.Config) tracking.Config {
	t := cfg.Tracking
	return tracking.Config{
		MaxCorners:   t.MaxCorners,
		QualityLevel: t.QualityLevel,
		MinDistance:  t.MinDistance,
		WinSize:      t.WinSize,
		MaxLevel:     t.MaxLevel,
		MaxCount:     t.MaxCount,
		Epsilon:      t.Epsilon,
	}
}

func (a *Application) Config() config.Config {
	return a.cfg
}

func (a *Application) Logger() logger.Logger {
	return a.logger
}

func (a *Application) Stabilizer() *pipeline.Stabilizer {
	return a.stabilizer
}

// Context is cancelled on SIGINT/SIGTERM or Close.
func (a *Application) Context() context.Context {
	return a.shutdown.Context()
}

func (a *Application) Register(name string, c shutdown.Shutdownable) {
	a.shutdown.Register(name, c)
}

// Close shuts every registered component down and flushes the log file.
func (a *Application) Close() error {
	if a.stopSignal != nil {
		a.stopSignal()
	}
	a.shutdown.Shutdown()

	stats := a.pool.GetStats()
	a.logger.Debug("Application", "mat pool released", map[string]interface{}{
		"hits":   stats.PoolHits,
		"misses": stats.PoolMisses,
	})
	return a.logger.Close()
}

func workers(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}
