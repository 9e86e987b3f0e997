// Package opencv implements the feature extractor on top of OpenCV, adding
// Haar-cascade face detection to the hash and blur measurements.
package opencv

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"imagecleanse/imageprocessor"
	"imagecleanse/types"
)

// Extractor analyzes images through gocv.
type Extractor struct {
	mu      sync.Mutex
	cascade *gocv.CascadeClassifier
}

// New returns an extractor. An empty cascadePath disables face detection
// and faces are reported as unknown.
func New(cascadePath string) (*Extractor, error) {
	e := &Extractor{}
	if cascadePath == "" {
		return e, nil
	}
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cascadePath) {
		classifier.Close()
		return nil, fmt.Errorf("load face cascade %s", cascadePath)
	}
	e.cascade = &classifier
	return e, nil
}

// Close releases the cascade classifier.
func (e *Extractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cascade != nil {
		err := e.cascade.Close()
		e.cascade = nil
		return err
	}
	return nil
}

func (e *Extractor) Extensions() []string {
	return []string{".jpeg", ".jpg", ".png", ".tif", ".tiff", ".webp"}
}

func (e *Extractor) Extract(ctx context.Context, path string) (types.Features, error) {
	if err := ctx.Err(); err != nil {
		return types.Features{}, err
	}

	checksum, size, err := imageprocessor.FileChecksum(path)
	if err != nil {
		return types.Features{}, err
	}

	img := gocv.IMRead(path, gocv.IMReadColor|gocv.IMReadIgnoreOrientation)
	if img.Empty() {
		return types.Features{}, fmt.Errorf("failed to load image: %s", path)
	}
	defer img.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	hash, err := PerceptualHash(gray)
	if err != nil {
		return types.Features{}, fmt.Errorf("%s: %w", path, err)
	}

	return types.Features{
		PerceptualHash: hash,
		BlurScore:      LaplacianVariance(gray),
		HasFace:        e.detectFace(gray),
		Width:          img.Cols(),
		Height:         img.Rows(),
		FileSize:       size,
		Checksum:       checksum,
		Orientation:    imageprocessor.ReadOrientation(path),
	}, nil
}

func (e *Extractor) detectFace(gray gocv.Mat) types.FaceState {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cascade == nil {
		return types.FaceUnknown
	}
	rects := e.cascade.DetectMultiScale(gray)
	return types.FaceStateOf(len(rects) > 0)
}
