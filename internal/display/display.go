// Package display provides the e-paper panel abstraction. It defines the
// Driver interface and helper types used by both the real SPI driver and
// the mock driver.
package display

import (
	"context"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Driver is the hardware abstraction for the e-paper panel.
//
// Render pushes a full frame and triggers a refresh. An ACeP refresh takes
// many seconds, so callers must invoke Render outside any state lock.
// Render failures are best-effort: callers log them and carry on.
type Driver interface {
	// Init initializes the panel. Must be called before Render.
	Init(ctx context.Context) error

	// Render displays img with the given color saturation in [0, 1].
	Render(ctx context.Context, img image.Image, saturation float64) error

	// Bounds returns the panel resolution.
	Bounds() image.Rectangle
}

// Splash renders the idle screen shown when no images are stored yet:
// a white frame with upload instructions.
func Splash(bounds image.Rectangle, addr string) *image.RGBA {
	img := image.NewRGBA(bounds)
	draw.Draw(img, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)

	lines := []string{
		"picinplace",
		"",
		"No images yet.",
		"Upload at " + addr,
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
	}
	const lineHeight = 18
	y := bounds.Dy()/2 - len(lines)*lineHeight/2
	for _, line := range lines {
		w := d.MeasureString(line).Ceil()
		d.Dot = fixed.P(bounds.Dx()/2-w/2, y)
		d.DrawString(line)
		y += lineHeight
	}
	return img
}
