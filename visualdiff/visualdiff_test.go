package visualdiff

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

var (
	white = color.NRGBA{255, 255, 255, 255}
	black = color.NRGBA{0, 0, 0, 255}
	red   = color.NRGBA{255, 0, 0, 255}
)

// block paints a black 3x3 square at (4,4) on a white 10x10 canvas.
func block() *image.NRGBA {
	img := solid(10, 10, white)
	for y := 4; y < 7; y++ {
		for x := 4; x < 7; x++ {
			img.SetNRGBA(x, y, black)
		}
	}
	return img
}

func TestCompare_Identical(t *testing.T) {
	img := block()
	res, diff, err := Compare(img, block(), DefaultOptions())
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if res.Mismatched != 0 || res.AntiAliased != 0 {
		t.Fatalf("got %+v, want no difference", res)
	}
	for i := 0; i < len(diff.Pix); i += 4 {
		r, g, b := diff.Pix[i], diff.Pix[i+1], diff.Pix[i+2]
		if r != g || g != b {
			t.Fatalf("pixel %d is coloured (%d,%d,%d), want greyscale", i/4, r, g, b)
		}
	}
}

func TestCompare_Block(t *testing.T) {
	res, diff, err := Compare(block(), solid(10, 10, white), DefaultOptions())
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if res.Mismatched != 9 {
		t.Errorf("mismatched: got %d, want 9", res.Mismatched)
	}
	if res.Width != 10 || res.Height != 10 || res.Threshold != 0.1 {
		t.Errorf("result: got %+v", res)
	}
	if got := diff.NRGBAAt(5, 5); got != red {
		t.Errorf("diff centre: got %v, want red", got)
	}
	if got := diff.NRGBAAt(0, 0); got.R != got.G {
		t.Errorf("diff corner: got %v, want grey", got)
	}
	if got := res.Ratio(); got != 0.09 {
		t.Errorf("ratio: got %v", got)
	}
}

func TestCompare_Deterministic(t *testing.T) {
	a, b := block(), solid(10, 10, color.NRGBA{200, 180, 160, 255})
	r1, d1, err := Compare(a, b, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	r2, d2, err := Compare(a, b, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if r1 != r2 {
		t.Errorf("results differ: %+v vs %+v", r1, r2)
	}
	if !bytes.Equal(d1.Pix, d2.Pix) {
		t.Error("diff images differ")
	}
}

func TestCompare_ThresholdMonotonic(t *testing.T) {
	ref := solid(8, 8, color.NRGBA{100, 100, 100, 255})
	latest := solid(8, 8, color.NRGBA{100, 100, 100, 255})
	for i := 0; i < 8; i++ {
		v := uint8(100 + 20*i)
		latest.SetNRGBA(i, i, color.NRGBA{v, v, v, 255})
	}

	prev := -1
	for _, th := range []float64{0, 0.05, 0.1, 0.2, 0.4, 0.8, 1} {
		opts := DefaultOptions()
		opts.Threshold = th
		opts.IncludeAA = true
		res, _, err := Compare(latest, ref, opts)
		if err != nil {
			t.Fatalf("threshold %v: %v", th, err)
		}
		if prev >= 0 && res.Mismatched > prev {
			t.Errorf("threshold %v: %d mismatches, more than %d at a lower threshold", th, res.Mismatched, prev)
		}
		prev = res.Mismatched
	}
	if prev != 0 {
		t.Errorf("threshold 1: got %d mismatches, want 0", prev)
	}
}

func TestCompare_ThresholdRange(t *testing.T) {
	for _, th := range []float64{-0.1, 1.5, math.NaN()} {
		if _, _, err := Compare(block(), block(), Options{Threshold: th}); err == nil {
			t.Errorf("threshold %v must be rejected", th)
		}
	}
	if _, _, err := Compare(block(), block(), Options{Threshold: 0.1, Alpha: math.NaN()}); err == nil {
		t.Error("alpha NaN must be rejected")
	}
}

func TestCompare_DimensionMismatch(t *testing.T) {
	_, _, err := Compare(solid(360, 10, white), solid(601, 10, white), DefaultOptions())
	var dm *ImageDimensionMismatchError
	if !errors.As(err, &dm) {
		t.Fatalf("got %v, want *ImageDimensionMismatchError", err)
	}
	if dm.Width != 360 || dm.RefWidth != 601 {
		t.Errorf("got %+v", dm)
	}
}

// edge builds a black|white vertical edge; soft adds a grey
// anti-aliasing column at x=5.
func edge(soft bool) *image.NRGBA {
	img := solid(10, 10, white)
	for y := 0; y < 10; y++ {
		for x := 0; x < 5; x++ {
			img.SetNRGBA(x, y, black)
		}
		if soft {
			img.SetNRGBA(5, y, color.NRGBA{128, 128, 128, 255})
		}
	}
	return img
}

func TestCompare_AntiAliasing(t *testing.T) {
	res, diff, err := Compare(edge(true), edge(false), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if res.Mismatched != 0 || res.AntiAliased != 10 {
		t.Errorf("got %+v, want 0 mismatched, 10 anti-aliased", res)
	}
	if got := diff.NRGBAAt(5, 5); got != (color.NRGBA{255, 255, 0, 255}) {
		t.Errorf("aa pixel: got %v, want yellow", got)
	}

	opts := DefaultOptions()
	opts.IncludeAA = true
	res, _, err = Compare(edge(true), edge(false), opts)
	if err != nil {
		t.Fatal(err)
	}
	if res.Mismatched != 10 {
		t.Errorf("include aa: got %d mismatched, want 10", res.Mismatched)
	}
}

func TestCompare_OffsetBounds(t *testing.T) {
	sub := block().SubImage(image.Rect(2, 2, 8, 8))
	res, _, err := Compare(sub, solid(6, 6, white), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if res.Mismatched != 9 {
		t.Errorf("got %d, want 9", res.Mismatched)
	}
}

func writeImage(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCompareFiles(t *testing.T) {
	dir := t.TempDir()
	latest := filepath.Join(dir, "latest.png")
	ref := filepath.Join(dir, "ref.png")
	out := filepath.Join(dir, "diff", "host", "01-welcome.png")
	writeImage(t, latest, block())
	writeImage(t, ref, solid(10, 10, white))

	res, err := CompareFiles(latest, ref, out, DefaultOptions())
	if err != nil {
		t.Fatalf("compare files: %v", err)
	}
	if res.Mismatched != 9 {
		t.Errorf("mismatched: got %d", res.Mismatched)
	}
	img, err := Decode(out)
	if err != nil {
		t.Fatalf("decode diff: %v", err)
	}
	if img.Bounds().Dx() != 10 {
		t.Errorf("diff width: got %d", img.Bounds().Dx())
	}

	_, err = CompareFiles(latest, filepath.Join(dir, "missing.png"), out, DefaultOptions())
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing reference: got %v, want fs.ErrNotExist", err)
	}
}
