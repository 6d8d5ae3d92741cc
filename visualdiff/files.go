package visualdiff

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/webp"
)

// Decode reads a PNG, JPEG or WebP image from path.
func Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("visualdiff: open: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("visualdiff: decode %s: %w", path, err)
	}
	return img, nil
}

// CompareFiles compares the capture at latestPath with the baseline at
// refPath and writes the diff PNG to diffPath, creating parent
// directories. A missing baseline surfaces as an error wrapping
// fs.ErrNotExist.
func CompareFiles(latestPath, refPath, diffPath string, opts Options) (Result, error) {
	latest, err := Decode(latestPath)
	if err != nil {
		return Result{}, err
	}
	ref, err := Decode(refPath)
	if err != nil {
		return Result{}, err
	}

	res, diff, err := Compare(latest, ref, opts)
	if err != nil {
		return Result{}, err
	}
	if err := writePNG(diffPath, diff); err != nil {
		return res, err
	}
	return res, nil
}

func writePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("visualdiff: mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("visualdiff: create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("visualdiff: encode %s: %w", path, err)
	}
	return f.Close()
}
