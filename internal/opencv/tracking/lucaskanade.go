package tracking

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"meshstab/internal/logger"
	"meshstab/internal/mesh"
	"meshstab/internal/opencv/conversion"
	"meshstab/internal/opencv/safe"
)

type Config struct {
	MaxCorners   int
	QualityLevel float64
	MinDistance  float64
	WinSize      int
	MaxLevel     int
	MaxCount     int
	Epsilon      float64
}

func DefaultConfig() Config {
	return Config{
		MaxCorners:   400,
		QualityLevel: 0.01,
		MinDistance:  7,
		WinSize:      15,
		MaxLevel:     2,
		MaxCount:     20,
		Epsilon:      0.03,
	}
}

func (c Config) Validate() error {
	if c.MaxCorners < 1 {
		return fmt.Errorf("max corners must be at least 1, got %d", c.MaxCorners)
	}
	if c.QualityLevel <= 0 || c.QualityLevel >= 1 {
		return fmt.Errorf("quality level must be in (0, 1), got %v", c.QualityLevel)
	}
	if c.MinDistance < 0 {
		return fmt.Errorf("min distance must be non-negative, got %v", c.MinDistance)
	}
	if c.WinSize < 3 {
		return fmt.Errorf("window size must be at least 3, got %d", c.WinSize)
	}
	if c.MaxLevel < 0 {
		return fmt.Errorf("max pyramid level must be non-negative, got %d", c.MaxLevel)
	}
	if c.MaxCount < 1 || c.Epsilon <= 0 {
		return fmt.Errorf("termination needs count >= 1 and epsilon > 0, got %d and %v", c.MaxCount, c.Epsilon)
	}
	return nil
}

// LucasKanade finds Shi-Tomasi corners in the previous frame and follows
// them into the current frame with pyramidal Lucas-Kanade optical flow.
type LucasKanade struct {
	cfg    Config
	logger logger.Logger
}

func NewLucasKanade(cfg Config, log logger.Logger) *LucasKanade {
	return &LucasKanade{cfg: cfg, logger: logger.OrNoOp(log)}
}

// Correspondences returns the successfully tracked pairs. A frame pair with
// no trackable corners yields an empty set and no error.
func (lk *LucasKanade) Correspondences(prev, curr *safe.Mat) (mesh.Correspondences, error) {
	if err := safe.ValidateFrame(prev, "Correspondences"); err != nil {
		return mesh.Correspondences{}, err
	}
	if err := safe.ValidateFrame(curr, "Correspondences"); err != nil {
		return mesh.Correspondences{}, err
	}
	if err := safe.ValidateSameSize(prev, curr, "Correspondences"); err != nil {
		return mesh.Correspondences{}, err
	}

	prevGray, err := conversion.ToGray(prev)
	if err != nil {
		return mesh.Correspondences{}, err
	}
	defer prevGray.Close()
	currGray, err := conversion.ToGray(curr)
	if err != nil {
		return mesh.Correspondences{}, err
	}
	defer currGray.Close()

	corners := gocv.NewMat()
	defer corners.Close()
	gocv.GoodFeaturesToTrack(prevGray.GetMat(), &corners, lk.cfg.MaxCorners, lk.cfg.QualityLevel, lk.cfg.MinDistance)
	if corners.Empty() || corners.Rows() == 0 {
		lk.logger.Debug("LucasKanade", "no corners found", nil)
		return mesh.Correspondences{}, nil
	}

	next := gocv.NewMat()
	defer next.Close()
	status := gocv.NewMat()
	defer status.Close()
	errMat := gocv.NewMat()
	defer errMat.Close()

	criteria := gocv.NewTermCriteria(gocv.Count+gocv.EPS, lk.cfg.MaxCount, lk.cfg.Epsilon)
	gocv.CalcOpticalFlowPyrLKWithParams(prevGray.GetMat(), currGray.GetMat(), corners, next, &status, &errMat,
		image.Pt(lk.cfg.WinSize, lk.cfg.WinSize), lk.cfg.MaxLevel, criteria, 0, 1e-4)

	var out mesh.Correspondences
	n := min(corners.Rows(), status.Rows(), next.Rows())
	for i := 0; i < n; i++ {
		if status.GetUCharAt(i, 0) != 1 {
			continue
		}
		p := corners.GetVecfAt(i, 0)
		q := next.GetVecfAt(i, 0)
		if len(p) < 2 || len(q) < 2 {
			continue
		}
		out.Source = append(out.Source, mesh.Point{X: float64(p[0]), Y: float64(p[1])})
		out.Destination = append(out.Destination, mesh.Point{X: float64(q[0]), Y: float64(q[1])})
	}

	lk.logger.Debug("LucasKanade", "tracked corners", map[string]interface{}{
		"corners": corners.Rows(),
		"tracked": out.Len(),
	})
	return out, nil
}
