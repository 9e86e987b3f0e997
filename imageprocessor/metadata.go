package imageprocessor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math/bits"
	"os"
	"strconv"

	"github.com/corona10/goimagehash"
	"github.com/rwcarlsen/goexif/exif"
)

// FileChecksum returns the hex SHA-256 of the file contents and its size.
func FileChecksum(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ReadOrientation returns the EXIF orientation tag, or 1 when the file
// carries none.
func ReadOrientation(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 1
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// FormatHash renders a 64-bit hash as 16 lower-case hex digits.
func FormatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

// HashDistance is the Hamming distance between two hex-encoded 64-bit
// perceptual hashes.
func HashDistance(a, b string) (int, error) {
	x, err := strconv.ParseUint(a, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hash %q: %w", a, err)
	}
	y, err := strconv.ParseUint(b, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hash %q: %w", b, err)
	}
	return goimagehash.NewImageHash(x, goimagehash.PHash).Distance(goimagehash.NewImageHash(y, goimagehash.PHash))
}

// StringDistance falls back to counting differing bits byte-wise when the
// hashes are not 64-bit hex values.
func StringDistance(a, b string) int {
	if d, err := HashDistance(a, b); err == nil {
		return d
	}
	n := 0
	for i := 0; i < max(len(a), len(b)); i++ {
		var ca, cb byte
		if i < len(a) {
			ca = a[i]
		}
		if i < len(b) {
			cb = b[i]
		}
		n += bits.OnesCount8(ca ^ cb)
	}
	return n
}
