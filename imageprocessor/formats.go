package imageprocessor

import (
	"path/filepath"
	"slices"
	"strings"
)

// FormatType represents a known image format type
type FormatType string

const (
	FormatUnknown FormatType = "unknown"
	FormatJPEG    FormatType = "jpeg"
	FormatPNG     FormatType = "png"
	FormatWEBP    FormatType = "webp"
	FormatTIFF    FormatType = "tiff"
)

var formatExtensions = map[string]FormatType{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".webp": FormatWEBP,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
}

// BaseExtensions are the formats every catalog accepts.
var BaseExtensions = []string{".jpg", ".jpeg", ".png"}

// GetFileFormat returns the format type based on file extension
func GetFileFormat(path string) FormatType {
	format, ok := formatExtensions[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return FormatUnknown
	}
	return format
}

// IsAppleDouble reports whether name is a macOS "._" resource-fork sidecar.
func IsAppleDouble(name string) bool {
	return strings.HasPrefix(name, "._")
}

// AcceptedExtensions intersects the configured extensions with those the
// extractor can decode.
func AcceptedExtensions(configured []string, ex Extractor) []string {
	supported := ex.Extensions()
	out := make([]string, 0, len(configured))
	for _, ext := range configured {
		ext = strings.ToLower(ext)
		if slices.Contains(supported, ext) && !slices.Contains(out, ext) {
			out = append(out, ext)
		}
	}
	return out
}
