// Package imageprocessor computes per-image features: perceptual hash, blur
// score, face presence, dimensions, file size, byte checksum and EXIF
// orientation.
package imageprocessor

import (
	"context"

	"imagecleanse/types"
)

// Extractor analyzes a single image file.
type Extractor interface {
	// Extract returns the features of the file at path. A failure concerns
	// that file only.
	Extract(ctx context.Context, path string) (types.Features, error)

	// Extensions lists the lower-case file extensions the extractor decodes.
	Extensions() []string
}
