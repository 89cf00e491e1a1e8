// File: cmd/run_test.go
package cmd

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/internal/capture"
	"github.com/xkilldash9x/marionette-cli/internal/config"
	"github.com/xkilldash9x/marionette-cli/internal/screen"
)

// blankCapturer returns an empty image covering the requested rectangle.
type blankCapturer struct{}

func (blankCapturer) Capture(rect image.Rectangle) (image.Image, error) {
	return image.NewRGBA(rect), nil
}

// TestMapperSharesPipelineCanvas wires the screenshot pipeline and the
// coordinate mapper from one default config, the way session initialization
// does, and checks that a pixel in the image the model sees maps back to the
// matching spot on the physical display.
func TestMapperSharesPipelineCanvas(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("screenshot.settle_delay", "0s")
	cfg, err := config.NewConfigFromViper(v)
	require.NoError(t, err)

	geometry := screen.Geometry{Width: 1920, Height: 1080}
	mapper := newCoordinateMapper(cfg, geometry)
	pipeline := capture.NewPipeline(cfg, blankCapturer{}, geometry, zap.NewNop())

	payload, err := pipeline.Capture(context.Background())
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)

	lw, lh := mapper.Logical()
	require.Equal(t, lw, img.Bounds().Dx(), "mapper width must match the image the model sees")
	require.Equal(t, lh, img.Bounds().Dy(), "mapper height must match the image the model sees")

	// The center of the model's image is the center of the physical display.
	sx, sy := mapper.ToScreen(lw/2, lh/2)
	assert.Equal(t, geometry.Width/2, sx)
	assert.Equal(t, geometry.Height/2, sy)

	// And the display center maps back onto the image center.
	lx, ly := mapper.ToLogical(geometry.Width/2, geometry.Height/2)
	assert.Equal(t, lw/2, lx)
	assert.Equal(t, lh/2, ly)
}
