package capture

import (
	"context"
	"image"
	"math"

	"golang.org/x/image/draw"

	"shotreview/pkg/domain"
)

// DirectRead copies the selection out of the surface's pixel buffer.
type DirectRead struct{}

// Method implements Strategy.
func (DirectRead) Method() domain.CaptureMethod { return domain.CaptureDirect }

// Capture implements Strategy. A buffer whose size differs from the surface
// (device pixel ratio) is sampled in buffer space and scaled to r.
func (DirectRead) Capture(ctx context.Context, s Surface, r Rect) (image.Image, error) {
	if s.Pixels == nil {
		return nil, ErrNoPixelBuffer
	}
	src, err := s.Pixels.ReadPixels(ctx)
	if err != nil {
		return nil, err
	}
	if src == nil || src.Bounds().Empty() {
		return nil, ErrNoPixelBuffer
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sb := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	if sb.Dx() == s.Width && sb.Dy() == s.Height {
		draw.Draw(dst, dst.Bounds(), src, sb.Min.Add(image.Pt(r.X, r.Y)), draw.Src)
		return dst, nil
	}
	sx := float64(sb.Dx()) / float64(s.Width)
	sy := float64(sb.Dy()) / float64(s.Height)
	area := image.Rect(
		int(math.Floor(float64(r.X)*sx)),
		int(math.Floor(float64(r.Y)*sy)),
		int(math.Ceil(float64(r.X+r.Width)*sx)),
		int(math.Ceil(float64(r.Y+r.Height)*sy)),
	).Add(sb.Min).Intersect(sb)
	if area.Empty() {
		return nil, ErrNoPixelBuffer
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, area, draw.Src, nil)
	return dst, nil
}

// fit returns img unchanged when it already measures w×h, otherwise a
// resampled copy.
func fit(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
