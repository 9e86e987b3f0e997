package imageprocessor

import (
	"fmt"
	"image"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// DecodeFunc decodes an image stream.
type DecodeFunc func(r io.Reader) (image.Image, error)

// DecoderRegistry maps file extensions to decoders.
type DecoderRegistry struct {
	decoders map[string]DecodeFunc
	mutex    sync.RWMutex
}

// NewDecoderRegistry returns a registry preloaded with the stock decoders.
func NewDecoderRegistry() *DecoderRegistry {
	r := &DecoderRegistry{decoders: make(map[string]DecodeFunc)}

	standard := func(rd io.Reader) (image.Image, error) {
		return imaging.Decode(rd)
	}
	r.Register(".jpg", standard)
	r.Register(".jpeg", standard)
	r.Register(".png", standard)

	r.Register(".webp", webp.Decode)
	r.Register(".tif", tiff.Decode)
	r.Register(".tiff", tiff.Decode)
	return r
}

// Register installs a decoder for ext, replacing any previous one.
func (r *DecoderRegistry) Register(ext string, fn DecodeFunc) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.decoders[strings.ToLower(ext)] = fn
}

// Decode picks the decoder by the extension of path.
func (r *DecoderRegistry) Decode(path string, rd io.Reader) (image.Image, error) {
	r.mutex.RLock()
	fn, ok := r.decoders[strings.ToLower(filepath.Ext(path))]
	r.mutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no decoder registered for %s", filepath.Ext(path))
	}
	return fn(rd)
}

// Extensions lists registered extensions in sorted order.
func (r *DecoderRegistry) Extensions() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]string, 0, len(r.decoders))
	for ext := range r.decoders {
		out = append(out, ext)
	}
	slices.Sort(out)
	return out
}
