// File: internal/capture/capture.go
package capture

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// Capturer grabs the raw pixels for a display rectangle. The production
// implementation talks to the OS; tests substitute a canned image.
type Capturer interface {
	Capture(rect image.Rectangle) (image.Image, error)
}

// DisplayCapturer reads pixels straight from the active displays.
type DisplayCapturer struct{}

func (DisplayCapturer) Capture(rect image.Rectangle) (image.Image, error) {
	img, err := screenshot.CaptureRect(rect)
	if err != nil {
		return nil, fmt.Errorf("capturing display rect %v: %w", rect, err)
	}
	return img, nil
}
