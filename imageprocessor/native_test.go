package imageprocessor_test

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"imagecleanse/imageprocessor"
	"imagecleanse/types"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func uniform(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func checkerboard(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func gradient(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x * 255) / w)})
		}
	}
	return img
}

func TestNativeExtractorFeatures(t *testing.T) {
	dir := t.TempDir()
	sharp := filepath.Join(dir, "sharp.png")
	flat := filepath.Join(dir, "flat.png")
	writePNG(t, sharp, checkerboard(64, 48))
	writePNG(t, flat, uniform(40, 30, 128))

	ex := imageprocessor.NewNativeExtractor()
	ctx := context.Background()

	sf, err := ex.Extract(ctx, sharp)
	if err != nil {
		t.Fatalf("extract sharp: %v", err)
	}
	ff, err := ex.Extract(ctx, flat)
	if err != nil {
		t.Fatalf("extract flat: %v", err)
	}

	if sf.Width != 64 || sf.Height != 48 {
		t.Fatalf("unexpected dimensions %dx%d", sf.Width, sf.Height)
	}
	if ff.BlurScore != 0 {
		t.Fatalf("uniform image should have zero blur score, got %f", ff.BlurScore)
	}
	if sf.BlurScore <= types.DefaultBlurThreshold {
		t.Fatalf("checkerboard should be sharp, got %f", sf.BlurScore)
	}
	if len(sf.PerceptualHash) != 16 || len(sf.Checksum) != 64 {
		t.Fatalf("unexpected hash encodings %q / %q", sf.PerceptualHash, sf.Checksum)
	}
	if sf.HasFace != types.FaceUnknown {
		t.Fatalf("native extractor must not claim face analysis, got %v", sf.HasFace)
	}
	if sf.Orientation != 1 {
		t.Fatalf("png without EXIF should default to orientation 1, got %d", sf.Orientation)
	}
	info, _ := os.Stat(sharp)
	if sf.FileSize != info.Size() {
		t.Fatalf("file size %d, want %d", sf.FileSize, info.Size())
	}
}

func TestNativeExtractorIdenticalContentSameHash(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "copy of a.png")
	c := filepath.Join(dir, "c.png")
	writePNG(t, a, gradient(64, 64))
	writePNG(t, b, gradient(64, 64))
	writePNG(t, c, checkerboard(64, 64))

	ex := imageprocessor.NewNativeExtractor()
	fa, err := ex.Extract(context.Background(), a)
	if err != nil {
		t.Fatalf("extract a: %v", err)
	}
	fb, err := ex.Extract(context.Background(), b)
	if err != nil {
		t.Fatalf("extract b: %v", err)
	}
	fc, err := ex.Extract(context.Background(), c)
	if err != nil {
		t.Fatalf("extract c: %v", err)
	}
	if fa.PerceptualHash != fb.PerceptualHash || fa.Checksum != fb.Checksum {
		t.Fatalf("identical pixels should hash identically: %+v vs %+v", fa, fb)
	}
	if fa.PerceptualHash == fc.PerceptualHash {
		t.Fatalf("different images should not share hash %s", fa.PerceptualHash)
	}
}

func TestNativeExtractorErrors(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "broken.jpg")
	if err := os.WriteFile(corrupt, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ex := imageprocessor.NewNativeExtractor()
	if _, err := ex.Extract(context.Background(), corrupt); err == nil {
		t.Fatal("expected decode error for corrupt file")
	}
	if _, err := ex.Extract(context.Background(), filepath.Join(dir, "missing.png")); err == nil {
		t.Fatal("expected error for missing file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ex.Extract(ctx, corrupt); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHashDistance(t *testing.T) {
	d, err := imageprocessor.HashDistance("ffffffffffffffff", "0000000000000000")
	if err != nil || d != 64 {
		t.Fatalf("expected 64, got %d (%v)", d, err)
	}
	d, err = imageprocessor.HashDistance("00000000000000f0", "0000000000000030")
	if err != nil || d != 2 {
		t.Fatalf("expected 2, got %d (%v)", d, err)
	}
	if _, err := imageprocessor.HashDistance("zz", "00"); err == nil {
		t.Fatal("expected parse error")
	}
	if got := imageprocessor.StringDistance("h1", "h1"); got != 0 {
		t.Fatalf("identical strings should have distance 0, got %d", got)
	}
}

func TestAcceptedExtensions(t *testing.T) {
	ex := imageprocessor.NewNativeExtractor()
	got := imageprocessor.AcceptedExtensions([]string{".JPG", ".png", ".heic", ".png"}, ex)
	if !slices.Equal(got, []string{".jpg", ".png"}) {
		t.Fatalf("unexpected accepted extensions %v", got)
	}
	if imageprocessor.GetFileFormat("x/Y.TIFF") != imageprocessor.FormatTIFF {
		t.Fatal("expected tiff format")
	}
	if !imageprocessor.IsAppleDouble("._IMG_0001.jpg") || imageprocessor.IsAppleDouble("IMG_0001.jpg") {
		t.Fatal("AppleDouble detection mismatch")
	}
}
