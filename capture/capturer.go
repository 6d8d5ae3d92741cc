package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"time"

	_ "golang.org/x/image/webp"
)

// Shooter snapshots a session viewport. browser.Session implements it.
type Shooter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// DefaultSettle lets CSS transitions finish before the snapshot.
const DefaultSettle = 500 * time.Millisecond

// Capturer writes checkpoint screenshots into the latest namespace.
type Capturer struct {
	Store  Store
	Settle time.Duration // <0 disables, 0 = DefaultSettle
	Logger *slog.Logger
}

// Capture waits the settle delay, snapshots s and stores it as
// latest/<actor>/<tag>.png. JPEG and WebP snapshots are re-encoded as PNG.
func (c *Capturer) Capture(ctx context.Context, s Shooter, actor, tag string) (Artifact, error) {
	settle := c.Settle
	if settle == 0 {
		settle = DefaultSettle
	}
	if settle > 0 {
		t := time.NewTimer(settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return Artifact{}, ctx.Err()
		case <-t.C:
		}
	}

	data, err := s.Screenshot(ctx)
	if err != nil {
		return Artifact{}, fmt.Errorf("capture: %s/%s: %w", actor, tag, err)
	}
	data, err = toPNG(data)
	if err != nil {
		return Artifact{}, fmt.Errorf("capture: %s/%s: %w", actor, tag, err)
	}
	a, err := c.Store.Write(Latest, actor, tag, data)
	if err != nil {
		return Artifact{}, err
	}

	log := c.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Debug("capture: stored", "actor", actor, "tag", tag, "path", a.Path, "bytes", len(data))
	return a, nil
}

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// toPNG returns data unchanged when it already is a PNG and re-encodes any
// other registered image format.
func toPNG(data []byte) ([]byte, error) {
	if bytes.HasPrefix(data, pngSignature) {
		return data, nil
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode %s screenshot as png: %w", format, err)
	}
	return buf.Bytes(), nil
}
