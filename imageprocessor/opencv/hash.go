package opencv

import (
	"fmt"
	"image"
	"sort"

	"gocv.io/x/gocv"

	"imagecleanse/imageprocessor"
)

// PerceptualHash computes a 64-bit DCT hash of a grayscale Mat.
func PerceptualHash(gray gocv.Mat) (string, error) {
	if gray.Empty() {
		return "", fmt.Errorf("cannot compute hash for empty image")
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(gray, &resized, image.Point{X: 32, Y: 32}, 0, 0, gocv.InterpolationArea)

	floatImg := gocv.NewMat()
	defer floatImg.Close()
	resized.ConvertTo(&floatImg, gocv.MatTypeCV32F)

	dct := gocv.NewMat()
	defer dct.Close()
	gocv.DCT(floatImg, &dct, 0)
	if dct.Empty() {
		return "", fmt.Errorf("dct produced no output")
	}

	// 8x8 low-frequency block
	lowFreq := dct.Region(image.Rect(0, 0, 8, 8))
	defer lowFreq.Close()

	values := make([]float32, 0, 64)
	for y := 0; y < lowFreq.Rows(); y++ {
		for x := 0; x < lowFreq.Cols(); x++ {
			values = append(values, lowFreq.GetFloatAt(y, x))
		}
	}
	median := calculateMedian(values)

	var hash uint64
	for _, v := range values {
		hash <<= 1
		if v > median {
			hash |= 1
		}
	}
	return imageprocessor.FormatHash(hash), nil
}

// LaplacianVariance is the variance of the Laplacian of a grayscale Mat.
func LaplacianVariance(gray gocv.Mat) float64 {
	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(lap, &mean, &stddev)

	sd := stddev.GetDoubleAt(0, 0)
	return sd * sd
}

func calculateMedian(values []float32) float32 {
	sorted := append([]float32(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case n%2 == 0:
		return (sorted[n/2-1] + sorted[n/2]) / 2
	default:
		return sorted[n/2]
	}
}
