package imageprocessor

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"

	"imagecleanse/types"
)

// NativeExtractor computes features in pure Go. Face presence is not
// analyzed and is always reported as unknown.
type NativeExtractor struct {
	registry *DecoderRegistry
}

// NewNativeExtractor returns an extractor using the stock decoders.
func NewNativeExtractor() *NativeExtractor {
	return &NativeExtractor{registry: NewDecoderRegistry()}
}

func (e *NativeExtractor) Extensions() []string {
	return e.registry.Extensions()
}

func (e *NativeExtractor) Extract(ctx context.Context, path string) (types.Features, error) {
	if err := ctx.Err(); err != nil {
		return types.Features{}, err
	}

	checksum, size, err := FileChecksum(path)
	if err != nil {
		return types.Features{}, err
	}

	img, err := e.decode(path)
	if err != nil {
		return types.Features{}, err
	}

	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return types.Features{}, fmt.Errorf("perceptual hash %s: %w", path, err)
	}

	bounds := img.Bounds()
	return types.Features{
		PerceptualHash: FormatHash(hash.GetHash()),
		BlurScore:      LaplacianVariance(img),
		HasFace:        types.FaceUnknown,
		Width:          bounds.Dx(),
		Height:         bounds.Dy(),
		FileSize:       size,
		Checksum:       checksum,
		Orientation:    ReadOrientation(path),
	}, nil
}

func (e *NativeExtractor) decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := e.registry.Decode(path, f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decode %s: empty image", path)
	}
	return img, nil
}

// LaplacianVariance is the variance of the 3x3 Laplacian response over the
// grayscale image. Borders reflect without repeating the edge pixel.
func LaplacianVariance(img image.Image) float64 {
	gray := imaging.Grayscale(img)
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	if w == 0 || h == 0 {
		return 0
	}

	px := func(x, y int) float64 {
		x = reflect101(x, w)
		y = reflect101(y, h)
		return float64(gray.Pix[y*gray.Stride+x*4])
	}

	var sum, sumSq float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := px(x-1, y) + px(x+1, y) + px(x, y-1) + px(x, y+1) - 4*px(x, y)
			sum += v
			sumSq += v * v
		}
	}
	n := float64(w * h)
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		return 0
	}
	return variance
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}
