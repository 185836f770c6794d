package homography

import (
	"fmt"
	"math"
	"math/rand/v2"
)

type RANSACConfig struct {
	// Threshold is the maximum reprojection error, in pixels, of an inlier.
	Threshold     float64
	MaxIterations int
	Confidence    float64
	// Seed makes hypothesis sampling reproducible across runs.
	Seed uint64
}

func DefaultRANSACConfig() RANSACConfig {
	return RANSACConfig{
		Threshold:     3.0,
		MaxIterations: 2000,
		Confidence:    0.995,
		Seed:          1,
	}
}

func (c RANSACConfig) Validate() error {
	if c.Threshold <= 0 {
		return fmt.Errorf("ransac threshold must be positive, got %v", c.Threshold)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("ransac max iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		return fmt.Errorf("ransac confidence must be in (0, 1), got %v", c.Confidence)
	}
	return nil
}

// RANSAC fits a homography robust to outlying correspondences. Every call
// reseeds its generator, so equal inputs always yield equal outputs.
type RANSAC struct {
	cfg RANSACConfig
}

func NewRANSAC(cfg RANSACConfig) *RANSAC {
	return &RANSAC{cfg: cfg}
}

func (r *RANSAC) Fit(src, dst []Point) (Matrix, error) {
	h, _, err := r.FitWithInliers(src, dst)
	return h, err
}

// FitWithInliers returns the refined model along with its inlier mask.
func (r *RANSAC) FitWithInliers(src, dst []Point) (Matrix, []bool, error) {
	if len(src) != len(dst) {
		return Matrix{}, nil, fmt.Errorf("%d source points, %d destination points: %w",
			len(src), len(dst), ErrDegenerateCorrespondence)
	}
	n := len(src)
	if n < MinPoints {
		return Matrix{}, nil, fmt.Errorf("%d points, need %d: %w", n, MinPoints, ErrDegenerateCorrespondence)
	}

	if n == MinPoints {
		h, err := FitDLT(src, dst)
		if err != nil {
			return Matrix{}, nil, err
		}
		return h, r.inliers(h, src, dst), nil
	}

	rng := rand.New(rand.NewPCG(r.cfg.Seed, r.cfg.Seed^0x9e3779b97f4a7c15))

	var (
		best      Matrix
		bestMask  []bool
		bestCount int
		sampleSrc = make([]Point, MinPoints)
		sampleDst = make([]Point, MinPoints)
		idx       = make([]int, MinPoints)
	)

	limit := r.cfg.MaxIterations
	for iter := 0; iter < limit; iter++ {
		sample(rng, n, idx)
		for i, k := range idx {
			sampleSrc[i] = src[k]
			sampleDst[i] = dst[k]
		}

		h, err := FitDLT(sampleSrc, sampleDst)
		if err != nil {
			continue
		}

		mask := r.inliers(h, src, dst)
		count := countTrue(mask)
		if count > bestCount {
			best, bestMask, bestCount = h, mask, count
			limit = min(limit, r.requiredIterations(float64(count)/float64(n)))
		}
	}

	if bestCount < MinPoints {
		return Matrix{}, nil, fmt.Errorf("%d inliers after %d hypotheses: %w",
			bestCount, limit, ErrDegenerateCorrespondence)
	}

	inSrc := make([]Point, 0, bestCount)
	inDst := make([]Point, 0, bestCount)
	for i, ok := range bestMask {
		if ok {
			inSrc = append(inSrc, src[i])
			inDst = append(inDst, dst[i])
		}
	}

	refined, err := FitDLT(inSrc, inDst)
	if err != nil {
		return best, bestMask, nil
	}
	refinedMask := r.inliers(refined, src, dst)
	if countTrue(refinedMask) < bestCount {
		return best, bestMask, nil
	}
	return refined, refinedMask, nil
}

func (r *RANSAC) inliers(h Matrix, src, dst []Point) []bool {
	mask := make([]bool, len(src))
	for i := range src {
		p, err := h.Project(src[i])
		if err != nil {
			continue
		}
		mask[i] = distance(p, dst[i]) < r.cfg.Threshold
	}
	return mask
}

// requiredIterations is the number of draws needed to see one all-inlier
// sample with the configured confidence, given the inlier ratio.
func (r *RANSAC) requiredIterations(ratio float64) int {
	if ratio >= 1 {
		return 1
	}
	p := math.Pow(ratio, MinPoints)
	if p <= 0 {
		return r.cfg.MaxIterations
	}
	k := math.Log(1-r.cfg.Confidence) / math.Log(1-p)
	if math.IsNaN(k) || k > float64(r.cfg.MaxIterations) {
		return r.cfg.MaxIterations
	}
	return max(1, int(math.Ceil(k)))
}

// sample fills idx with distinct indices in [0, n).
func sample(rng *rand.Rand, n int, idx []int) {
	for i := range idx {
	draw:
		for {
			k := rng.IntN(n)
			for _, prev := range idx[:i] {
				if prev == k {
					continue draw
				}
			}
			idx[i] = k
			break
		}
	}
}

func countTrue(mask []bool) int {
	c := 0
	for _, ok := range mask {
		if ok {
			c++
		}
	}
	return c
}
