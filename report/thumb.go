package report

import (
	"bytes"
	"image"
	"image/png"
	"net/http"
	"strconv"

	"golang.org/x/image/draw"

	"github.com/hazyhaar/wat/visualdiff"
)

const (
	defaultThumbWidth = 240
	maxThumbWidth     = 1024
)

// Thumbnail scales img down to width, keeping the aspect ratio. Images
// already narrower than width are returned unchanged.
func Thumbnail(img image.Image, width int) image.Image {
	b := img.Bounds()
	if width <= 0 || b.Dx() <= width {
		return img
	}
	height := max(1, b.Dy()*width/b.Dx())
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	path, err := s.imagePath(r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	img, err := visualdiff.Decode(path)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	width := min(queryInt(r, "w", defaultThumbWidth), maxThumbWidth)
	var buf bytes.Buffer
	if err := png.Encode(&buf, Thumbnail(img, width)); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}
