// Package visualdiff counts perceptually different pixels between a fresh
// capture and its baseline and renders a diff image. It decides nothing:
// callers turn the count into a verdict.
package visualdiff

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// Options tune a comparison. The zero value is the strictest comparison;
// start from DefaultOptions.
type Options struct {
	// Threshold is the per-pixel perceptual distance in [0,1] above which a
	// pixel pair counts as mismatched.
	Threshold float64

	// IncludeAA counts anti-aliased pixels as mismatches.
	IncludeAA bool

	// Alpha is the opacity of the greyscale background in the diff image.
	Alpha float64
}

// DefaultOptions returns threshold 0.1, anti-aliasing excluded, alpha 0.1.
func DefaultOptions() Options {
	return Options{Threshold: 0.1, Alpha: 0.1}
}

// Result is the outcome of Compare.
type Result struct {
	Mismatched  int     `json:"mismatched"`
	AntiAliased int     `json:"anti_aliased"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Threshold   float64 `json:"threshold"`
}

// Ratio is the mismatched share of all pixels.
func (r Result) Ratio() float64 {
	n := r.Width * r.Height
	if n == 0 {
		return 0
	}
	return float64(r.Mismatched) / float64(n)
}

// ImageDimensionMismatchError is returned when the baseline size differs
// from the capture size.
type ImageDimensionMismatchError struct {
	Width, Height       int // capture
	RefWidth, RefHeight int
}

func (e *ImageDimensionMismatchError) Error() string {
	return fmt.Sprintf("visualdiff: dimension mismatch: capture %dx%d, reference %dx%d",
		e.Width, e.Height, e.RefWidth, e.RefHeight)
}

var (
	diffColor = color.NRGBA{R: 255, A: 255}
	aaColor   = color.NRGBA{R: 255, G: 255, A: 255}
)

// maxYIQDelta is the largest possible YIQ distance between two colours.
const maxYIQDelta = 35215.0

// Compare scores every pixel of latest against ref. The size of latest
// defines the comparison area. The returned diff image paints mismatches
// red, anti-aliasing yellow and everything else as faded greyscale of
// latest.
func Compare(latest, ref image.Image, opts Options) (Result, *image.NRGBA, error) {
	// Negated so NaN is rejected too.
	if !(opts.Threshold >= 0 && opts.Threshold <= 1) {
		return Result{}, nil, fmt.Errorf("visualdiff: threshold %v outside [0,1]", opts.Threshold)
	}
	if !(opts.Alpha >= 0 && opts.Alpha <= 1) {
		return Result{}, nil, fmt.Errorf("visualdiff: alpha %v outside [0,1]", opts.Alpha)
	}
	lb, rb := latest.Bounds(), ref.Bounds()
	if lb.Dx() != rb.Dx() || lb.Dy() != rb.Dy() {
		return Result{}, nil, &ImageDimensionMismatchError{
			Width: lb.Dx(), Height: lb.Dy(), RefWidth: rb.Dx(), RefHeight: rb.Dy(),
		}
	}

	a, b := toNRGBA(latest), toNRGBA(ref)
	w, h := lb.Dx(), lb.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	res := Result{Width: w, Height: h, Threshold: opts.Threshold}

	if equalPix(a.Pix, b.Pix) {
		for i := 0; i < len(a.Pix); i += 4 {
			grayPixel(a.Pix, i, opts.Alpha, out.Pix)
		}
		return res, out, nil
	}

	maxDelta := maxYIQDelta * opts.Threshold * opts.Threshold
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pos := (y*w + x) * 4
			delta := colorDelta(a.Pix, b.Pix, pos, pos, false)
			if math.Abs(delta) <= maxDelta {
				grayPixel(a.Pix, pos, opts.Alpha, out.Pix)
				continue
			}
			if !opts.IncludeAA && (antialiased(a.Pix, x, y, w, h, b.Pix) || antialiased(b.Pix, x, y, w, h, a.Pix)) {
				setPixel(out.Pix, pos, aaColor)
				res.AntiAliased++
				continue
			}
			setPixel(out.Pix, pos, diffColor)
			res.Mismatched++
		}
	}
	return res, out, nil
}

// toNRGBA returns img as a zero-origin, tightly packed NRGBA image.
func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) && n.Stride == 4*b.Dx() {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func equalPix(a, b []uint8) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// colorDelta is the signed squared YIQ distance between pixel k of img1
// and pixel m of img2, blending translucent pixels over white. With yOnly
// only the brightness difference is returned.
func colorDelta(img1, img2 []uint8, k, m int, yOnly bool) float64 {
	r1, g1, b1, a1 := float64(img1[k]), float64(img1[k+1]), float64(img1[k+2]), float64(img1[k+3])
	r2, g2, b2, a2 := float64(img2[m]), float64(img2[m+1]), float64(img2[m+2]), float64(img2[m+3])

	if a1 == a2 && r1 == r2 && g1 == g2 && b1 == b2 {
		return 0
	}
	if a1 < 255 {
		a1 /= 255
		r1, g1, b1 = blend(r1, a1), blend(g1, a1), blend(b1, a1)
	}
	if a2 < 255 {
		a2 /= 255
		r2, g2, b2 = blend(r2, a2), blend(g2, a2), blend(b2, a2)
	}

	y1, y2 := rgb2y(r1, g1, b1), rgb2y(r2, g2, b2)
	y := y1 - y2
	if yOnly {
		return y
	}
	i := rgb2i(r1, g1, b1) - rgb2i(r2, g2, b2)
	q := rgb2q(r1, g1, b1) - rgb2q(r2, g2, b2)

	delta := 0.5053*y*y + 0.299*i*i + 0.1957*q*q
	if y1 > y2 {
		return -delta
	}
	return delta
}

func rgb2y(r, g, b float64) float64 { return r*0.29889531 + g*0.58662247 + b*0.11448223 }
func rgb2i(r, g, b float64) float64 { return r*0.59597799 - g*0.27417610 - b*0.32180189 }
func rgb2q(r, g, b float64) float64 { return r*0.21147017 - g*0.52261711 + b*0.31114694 }

// blend composites c with opacity a over white.
func blend(c, a float64) float64 { return 255 + (c-255)*a }

// antialiased reports whether pixel (x1,y1) of img looks like an
// anti-aliasing edge: it has few identical neighbours, and its darkest or
// brightest neighbour sits in a flat region of both images.
func antialiased(img []uint8, x1, y1, w, h int, img2 []uint8) bool {
	x0, y0 := max(x1-1, 0), max(y1-1, 0)
	x2, y2 := min(x1+1, w-1), min(y1+1, h-1)
	pos := (y1*w + x1) * 4

	zeroes := 0
	if x1 == x0 || x1 == x2 || y1 == y0 || y1 == y2 {
		zeroes = 1
	}
	var lo, hi float64
	var minX, minY, maxX, maxY int
	for x := x0; x <= x2; x++ {
		for y := y0; y <= y2; y++ {
			if x == x1 && y == y1 {
				continue
			}
			delta := colorDelta(img, img, pos, (y*w+x)*4, true)
			switch {
			case delta == 0:
				zeroes++
				if zeroes > 2 {
					return false
				}
			case delta < lo:
				lo, minX, minY = delta, x, y
			case delta > hi:
				hi, maxX, maxY = delta, x, y
			}
		}
	}
	if lo == 0 || hi == 0 {
		return false
	}
	return (hasManySiblings(img, minX, minY, w, h) && hasManySiblings(img2, minX, minY, w, h)) ||
		(hasManySiblings(img, maxX, maxY, w, h) && hasManySiblings(img2, maxX, maxY, w, h))
}

// hasManySiblings reports whether at least three neighbours of (x1,y1)
// share its exact colour.
func hasManySiblings(img []uint8, x1, y1, w, h int) bool {
	x0, y0 := max(x1-1, 0), max(y1-1, 0)
	x2, y2 := min(x1+1, w-1), min(y1+1, h-1)
	pos := (y1*w + x1) * 4

	zeroes := 0
	if x1 == x0 || x1 == x2 || y1 == y0 || y1 == y2 {
		zeroes = 1
	}
	for x := x0; x <= x2; x++ {
		for y := y0; y <= y2; y++ {
			if x == x1 && y == y1 {
				continue
			}
			p := (y*w + x) * 4
			if img[pos] == img[p] && img[pos+1] == img[p+1] && img[pos+2] == img[p+2] && img[pos+3] == img[p+3] {
				zeroes++
			}
			if zeroes > 2 {
				return true
			}
		}
	}
	return false
}

func setPixel(out []uint8, pos int, c color.NRGBA) {
	out[pos], out[pos+1], out[pos+2], out[pos+3] = c.R, c.G, c.B, 255
}

func grayPixel(img []uint8, pos int, alpha float64, out []uint8) {
	y := rgb2y(float64(img[pos]), float64(img[pos+1]), float64(img[pos+2]))
	v := uint8(math.Round(blend(y, alpha*float64(img[pos+3])/255)))
	setPixel(out, pos, color.NRGBA{R: v, G: v, B: v})
}
