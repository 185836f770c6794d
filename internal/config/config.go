package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"meshstab/internal/homography"
	"meshstab/internal/logger"
	"meshstab/internal/mesh"
	"meshstab/internal/smoothing"
)

// EnvPrefix namespaces every environment override, e.g. MESHSTAB_PATCH_SIZE.
const EnvPrefix = "MESHSTAB"

const (
	BackendGonum  = "gonum"
	BackendOpenCV = "opencv"

	FormatPNG   = "png"
	FormatVideo = "video"
)

type Config struct {
	PatchSize         int     `yaml:"patch_size" envconfig:"patch_size"`
	PropagationRadius float64 `yaml:"propagation_radius" envconfig:"propagation_radius"`
	Border            int     `yaml:"border" envconfig:"border"`
	// Workers bounds per-stage parallelism; zero means GOMAXPROCS.
	Workers int `yaml:"workers" envconfig:"workers"`

	Smoothing  SmoothingConfig  `yaml:"smoothing" envconfig:"smoothing"`
	Homography HomographyConfig `yaml:"homography" envconfig:"homography"`
	Tracking   TrackingConfig   `yaml:"tracking" envconfig:"tracking"`
	Output     OutputConfig     `yaml:"output" envconfig:"output"`
	Log        LogConfig        `yaml:"log" envconfig:"log"`
}

type SmoothingConfig struct {
	Mode string `yaml:"mode" envconfig:"mode"`
	// WindowSize zero selects the mode's default.
	WindowSize int     `yaml:"window_size" envconfig:"window_size"`
	Lambda     float64 `yaml:"lambda_t" envconfig:"lambda_t"`
	Beta       float64 `yaml:"beta" envconfig:"beta"`
	BufferSize int     `yaml:"buffer_size" envconfig:"buffer_size"`
	Iterations int     `yaml:"iterations" envconfig:"iterations"`
}

type HomographyConfig struct {
	Backend         string  `yaml:"backend" envconfig:"backend"`
	ReprojThreshold float64 `yaml:"reproj_threshold" envconfig:"reproj_threshold"`
	MaxIterations   int     `yaml:"max_iterations" envconfig:"max_iterations"`
	Confidence      float64 `yaml:"confidence" envconfig:"confidence"`
	Seed            uint64  `yaml:"seed" envconfig:"seed"`
}

type TrackingConfig struct {
	MaxCorners   int     `yaml:"max_corners" envconfig:"max_corners"`
	QualityLevel float64 `yaml:"quality_level" envconfig:"quality_level"`
	MinDistance  float64 `yaml:"min_distance" envconfig:"min_distance"`
	WinSize      int     `yaml:"win_size" envconfig:"win_size"`
	MaxLevel     int     `yaml:"max_level" envconfig:"max_level"`
	MaxCount     int     `yaml:"max_count" envconfig:"max_count"`
	Epsilon      float64 `yaml:"epsilon" envconfig:"epsilon"`
}

type OutputConfig struct {
	Format string `yaml:"format" envconfig:"format"`
	Codec  string `yaml:"codec" envconfig:"codec"`
	// FPS zero reuses the source frame rate.
	FPS        float64 `yaml:"fps" envconfig:"fps"`
	OverlayDir string  `yaml:"overlay_dir" envconfig:"overlay_dir"`
	PlotDir    string  `yaml:"plot_dir" envconfig:"plot_dir"`
	PlotStride int     `yaml:"plot_stride" envconfig:"plot_stride"`
}

type LogConfig struct {
	Level string `yaml:"level" envconfig:"level"`
	File  string `yaml:"file" envconfig:"file"`
	JSON  bool   `yaml:"json" envconfig:"json"`
}

func Default() Config {
	est := mesh.DefaultEstimatorConfig()
	sp := smoothing.DefaultParams(smoothing.ModeOnline)
	rc := homography.DefaultRANSACConfig()

	return Config{
		PatchSize:         est.PatchSize,
		PropagationRadius: est.Radius,
		Border:            20,
		Smoothing: SmoothingConfig{
			Mode:       string(smoothing.ModeOnline),
			Lambda:     sp.Lambda,
			Beta:       sp.Beta,
			BufferSize: sp.BufferSize,
			Iterations: sp.Iterations,
		},
		Homography: HomographyConfig{
			Backend:         BackendGonum,
			ReprojThreshold: rc.Threshold,
			MaxIterations:   rc.MaxIterations,
			Confidence:      rc.Confidence,
			Seed:            rc.Seed,
		},
		Tracking: TrackingConfig{
			MaxCorners:   400,
			QualityLevel: 0.01,
			MinDistance:  7,
			WinSize:      15,
			MaxLevel:     2,
			MaxCount:     20,
			Epsilon:      0.03,
		},
		Output: OutputConfig{
			Format:     FormatPNG,
			Codec:      "MJPG",
			PlotStride: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load layers defaults, the optional YAML file at path and MESHSTAB_*
// environment variables, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.PatchSize < 2 {
		add("patch_size must be at least 2, got %d", c.PatchSize)
	}
	if c.PropagationRadius <= 0 {
		add("propagation_radius must be positive, got %v", c.PropagationRadius)
	}
	if c.Border < 0 {
		add("border must be non-negative, got %d", c.Border)
	}
	if c.Workers < 0 {
		add("workers must be non-negative, got %d", c.Workers)
	}

	if _, err := smoothing.ParseMode(c.Smoothing.Mode); err != nil {
		errs = append(errs, err)
	} else if err := c.SmoothingParams().Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.Homography.Backend {
	case BackendGonum, BackendOpenCV:
	default:
		add("unknown homography backend %q", c.Homography.Backend)
	}
	if err := c.RANSAC().Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.Output.Format {
	case FormatPNG:
	case FormatVideo:
		if len(c.Output.Codec) != 4 {
			add("output codec must be a four character code, got %q", c.Output.Codec)
		}
	default:
		add("unknown output format %q", c.Output.Format)
	}
	if c.Output.FPS < 0 {
		add("output fps must be non-negative, got %v", c.Output.FPS)
	}
	if c.Output.PlotStride < 1 {
		add("plot_stride must be at least 1, got %d", c.Output.PlotStride)
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) Mode() smoothing.Mode {
	return smoothing.Mode(c.Smoothing.Mode)
}

// SmoothingParams resolves a zero window size to the mode's default.
func (c Config) SmoothingParams() smoothing.Params {
	p := smoothing.Params{
		WindowSize: c.Smoothing.WindowSize,
		Lambda:     c.Smoothing.Lambda,
		Beta:       c.Smoothing.Beta,
		BufferSize: c.Smoothing.BufferSize,
		Iterations: c.Smoothing.Iterations,
	}
	if p.WindowSize == 0 {
		p.WindowSize = smoothing.DefaultParams(c.Mode()).WindowSize
	}
	return p
}

func (c Config) RANSAC() homography.RANSACConfig {
	return homography.RANSACConfig{
		Threshold:     c.Homography.ReprojThreshold,
		MaxIterations: c.Homography.MaxIterations,
		Confidence:    c.Homography.Confidence,
		Seed:          c.Homography.Seed,
	}
}

func (c Config) Estimator() mesh.EstimatorConfig {
	return mesh.EstimatorConfig{
		PatchSize: c.PatchSize,
		Radius:    c.PropagationRadius,
		Workers:   c.Workers,
	}
}
