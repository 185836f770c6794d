package conversion

import (
	"fmt"

	"gocv.io/x/gocv"

	"meshstab/internal/opencv/safe"
)

// ToGray returns a single-channel copy of an 8-bit gray, BGR or BGRA frame.
func ToGray(src *safe.Mat) (*safe.Mat, error) {
	return convert(src, "ToGray", 1, map[int]gocv.ColorConversionCode{
		3: gocv.ColorBGRToGray,
		4: gocv.ColorBGRAToGray,
	})
}

// ToBGR returns a three-channel copy of an 8-bit gray, BGR or BGRA frame.
func ToBGR(src *safe.Mat) (*safe.Mat, error) {
	return convert(src, "ToBGR", 3, map[int]gocv.ColorConversionCode{
		1: gocv.ColorGrayToBGR,
		4: gocv.ColorBGRAToBGR,
	})
}

func convert(src *safe.Mat, operation string, target int, codes map[int]gocv.ColorConversionCode) (*safe.Mat, error) {
	if err := safe.ValidateFrame(src, operation); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	channels := src.Channels()
	if channels == target {
		return src.Clone()
	}
	code, ok := codes[channels]
	if !ok {
		return nil, fmt.Errorf("unsupported channel count %d for %s", channels, operation)
	}

	dst := gocv.NewMat()
	gocv.CvtColor(src.GetMat(), &dst, code)
	return safe.Adopt(dst, operation)
}
