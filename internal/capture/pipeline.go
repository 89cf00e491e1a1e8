// File: internal/capture/pipeline.go
package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/internal/config"
	"github.com/xkilldash9x/marionette-cli/internal/screen"
)

// Pipeline turns display pixels into the base64 PNG payload sent to the model.
// Captures are normalized to the scaling base resolution so the model always
// reasons over a stable canvas: oversized captures are shrunk, undersized ones
// are pasted onto a black canvas of the base size.
type Pipeline struct {
	capturer Capturer
	geom     screen.Geometry
	baseW    int
	baseH    int
	settle   time.Duration
	level    png.CompressionLevel
	logger   *zap.Logger
}

func NewPipeline(cfg config.Interface, capturer Capturer, geom screen.Geometry, logger *zap.Logger) *Pipeline {
	shot := cfg.Screenshot()
	scaling := cfg.Scaling()
	return &Pipeline{
		capturer: capturer,
		geom:     geom,
		baseW:    scaling.BaseWidth,
		baseH:    scaling.BaseHeight,
		settle:   shot.SettleDelay,
		level:    compressionLevel(shot.Compression),
		logger:   logger.Named("screenshot"),
	}
}

// Capture waits out the settle delay, grabs the display and returns the
// normalized image as base64-encoded PNG bytes.
func (p *Pipeline) Capture(ctx context.Context) (string, error) {
	if err := p.waitSettle(ctx); err != nil {
		return "", err
	}

	rect := image.Rect(
		p.geom.OffsetX,
		p.geom.OffsetY,
		p.geom.OffsetX+p.geom.Width,
		p.geom.OffsetY+p.geom.Height,
	)
	img, err := p.capturer.Capture(rect)
	if err != nil {
		return "", fmt.Errorf("screenshot capture: %w", err)
	}

	img = p.normalize(img)

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: p.level}
	if err := enc.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encoding screenshot: %w", err)
	}

	p.logger.Debug("Captured screenshot.",
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()),
		zap.Int("png_bytes", buf.Len()))

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (p *Pipeline) waitSettle(ctx context.Context) error {
	if p.settle <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.settle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// normalize forces the capture onto the base canvas. Larger captures are
// resized to exactly base dimensions; smaller ones keep their pixels and gain
// black padding on the right and bottom edges.
func (p *Pipeline) normalize(img image.Image) image.Image {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()

	switch {
	case w > p.baseW || h > p.baseH:
		return imaging.Resize(img, p.baseW, p.baseH, imaging.Lanczos)
	case w < p.baseW || h < p.baseH:
		canvas := imaging.New(p.baseW, p.baseH, color.Black)
		return imaging.Paste(canvas, img, image.Pt(0, 0))
	default:
		return img
	}
}

func compressionLevel(name string) png.CompressionLevel {
	switch name {
	case "speed":
		return png.BestSpeed
	case "best":
		return png.BestCompression
	case "none":
		return png.NoCompression
	default:
		return png.DefaultCompression
	}
}
