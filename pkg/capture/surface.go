package capture

import (
	"context"
	"errors"
	"image"
)

// ErrNoPixelBuffer is returned when the surface exposes no readable pixels,
// e.g. a cross-origin or tainted canvas.
var ErrNoPixelBuffer = errors.New("pixel buffer not readable")

// PixelBuffer exposes the rendered pixels of the surface.
type PixelBuffer interface {
	ReadPixels(ctx context.Context) (image.Image, error)
}

// StaticBuffer is a PixelBuffer over an already decoded frame.
type StaticBuffer struct {
	Image image.Image
}

// ReadPixels returns the frame.
func (b StaticBuffer) ReadPixels(context.Context) (image.Image, error) {
	if b.Image == nil {
		return nil, ErrNoPixelBuffer
	}
	return b.Image, nil
}

// DOMRegion locates the markup that a rasterizer can render instead of
// the pixel buffer. URL takes precedence over HTML.
type DOMRegion struct {
	URL  string `json:"url,omitempty"`
	HTML string `json:"html,omitempty"`
}

// Empty reports whether there is nothing to rasterize.
func (d DOMRegion) Empty() bool {
	return d.URL == "" && d.HTML == ""
}

// Surface is the rendering surface a selection was made on.
type Surface struct {
	Width      int
	Height     int
	Pixels     PixelBuffer
	DOM        DOMRegion
	ModelLabel string
}
