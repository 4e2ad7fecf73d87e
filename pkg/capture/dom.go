package capture

import (
	"context"
	"errors"
	"image"

	"shotreview/pkg/domain"
)

var (
	// ErrNoRasterizer means the DOM step has no rendering backend configured.
	ErrNoRasterizer = errors.New("no dom rasterizer configured")
	// ErrNoDOMRegion means the surface carries neither a URL nor markup.
	ErrNoDOMRegion = errors.New("surface has no dom region")
)

// RasterRequest asks a Rasterizer to render a page or fragment at the
// viewport size and return the Clip area.
type RasterRequest struct {
	URL            string
	HTML           string
	ViewportWidth  int
	ViewportHeight int
	Clip           Rect
}

// Rasterizer renders markup to pixels.
type Rasterizer interface {
	Rasterize(ctx context.Context, req RasterRequest) (image.Image, error)
}

// DOMRaster renders the surface's DOM region through a Rasterizer.
type DOMRaster struct {
	Rasterizer Rasterizer
}

// Method implements Strategy.
func (DOMRaster) Method() domain.CaptureMethod { return domain.CaptureDOM }

// Capture implements Strategy.
func (d DOMRaster) Capture(ctx context.Context, s Surface, r Rect) (image.Image, error) {
	if d.Rasterizer == nil {
		return nil, ErrNoRasterizer
	}
	if s.DOM.Empty() {
		return nil, ErrNoDOMRegion
	}
	req := RasterRequest{
		URL:            s.DOM.URL,
		ViewportWidth:  s.Width,
		ViewportHeight: s.Height,
		Clip:           r,
	}
	if req.URL == "" {
		html, err := SanitizeHTML(s.DOM.HTML)
		if err != nil {
			return nil, err
		}
		req.HTML = html
	}
	img, err := d.Rasterizer.Rasterize(ctx, req)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, errors.New("rasterizer returned no image")
	}
	return fit(img, r.Width, r.Height), nil
}
