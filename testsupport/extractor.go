package testsupport

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"imagecleanse/types"
)

// ErrExtract is returned by FakeExtractor for configured failures.
var ErrExtract = errors.New("fake extraction failure")

// FakeExtractor returns canned features keyed by file base name. Files with
// no entry get a hash derived from their name and a sharp blur score.
type FakeExtractor struct {
	mu       sync.Mutex
	features map[string]types.Features
	failures map[string]bool
	panics   map[string]bool
	// Block, when set, makes Extract wait for ctx cancellation.
	Block bool
	calls atomic.Int64
}

func NewFakeExtractor() *FakeExtractor {
	return &FakeExtractor{
		features: make(map[string]types.Features),
		failures: make(map[string]bool),
		panics:   make(map[string]bool),
	}
}

// Set fixes the features returned for a base name.
func (f *FakeExtractor) Set(name string, features types.Features) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.features[name] = features
}

// Fail makes extraction of base name fail.
func (f *FakeExtractor) Fail(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[name] = true
}

// Panic makes extraction of base name panic, like a decoder choking on a
// corrupt file.
func (f *FakeExtractor) Panic(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panics[name] = true
}

// Calls returns how many times Extract ran.
func (f *FakeExtractor) Calls() int {
	return int(f.calls.Load())
}

func (f *FakeExtractor) Extensions() []string {
	return []string{".jpeg", ".jpg", ".png"}
}

func (f *FakeExtractor) Extract(ctx context.Context, path string) (types.Features, error) {
	f.calls.Add(1)
	if f.Block {
		<-ctx.Done()
		return types.Features{}, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return types.Features{}, err
	}

	name := filepath.Base(path)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics[name] {
		panic("corrupt image: " + name)
	}
	if f.failures[name] {
		return types.Features{}, fmt.Errorf("%s: %w", name, ErrExtract)
	}
	if feat, ok := f.features[name]; ok {
		return feat, nil
	}
	return Features(fmt.Sprintf("%016x", hashName(name)), 250), nil
}

// Features builds a plausible feature set.
func Features(hash string, blur float64) types.Features {
	return types.Features{
		PerceptualHash: hash,
		BlurScore:      blur,
		HasFace:        types.FaceUnknown,
		Width:          640,
		Height:         480,
		FileSize:       1024,
		Checksum:       "sum-" + hash,
		Orientation:    1,
	}
}

func hashName(name string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(name); i++ {
		h ^= uint64(name[i])
		h *= 1099511628211
	}
	return h
}
