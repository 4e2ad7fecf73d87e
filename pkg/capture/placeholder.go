package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"shotreview/pkg/domain"
)

const (
	placeholderTitle  = "MODEL VIEWER CONTENT PROTECTED"
	placeholderLine1  = "Browser security prevents direct model capture"
	placeholderLine2  = "This represents the selected area of your 3D model"
	placeholderHeader = "Screenshot Area Selected"
	defaultModelLabel = "3D Model"
)

var (
	gradientInner = color.RGBA{0xf8, 0xf9, 0xfa, 0xff}
	gradientMid   = color.RGBA{0xe9, 0xec, 0xef, 0xff}
	gradientOuter = color.RGBA{0xde, 0xe2, 0xe6, 0xff}
	panelFill     = color.NRGBA{0xff, 0xff, 0xff, 0xf2}
	titleColor    = color.RGBA{0xdc, 0x35, 0x45, 0xff}
	mutedColor    = color.RGBA{0x66, 0x66, 0x66, 0xff}
	infoColor     = color.RGBA{0x33, 0x33, 0x33, 0xff}
	borderColor   = color.RGBA{0x00, 0x7b, 0xff, 0xff}
)

// Placeholder draws a synthetic image describing the selection. It never fails.
type Placeholder struct {
	Now func() time.Time
}

// Method implements Strategy.
func (Placeholder) Method() domain.CaptureMethod { return domain.CapturePlaceholder }

// Capture implements Strategy.
func (p Placeholder) Capture(_ context.Context, s Surface, r Rect) (image.Image, error) {
	return p.Render(s.ModelLabel, r.Width, r.Height), nil
}

// Render draws the placeholder at exactly w×h.
func (p Placeholder) Render(modelLabel string, w, h int) *image.RGBA {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	if modelLabel == "" {
		modelLabel = defaultModelLabel
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	radialGradient(img)

	if w > 20 && h > 20 {
		fillPanel(img, image.Rect(10, 10, w-10, min(80, h-10)))
		drawCentered(img, placeholderTitle, w/2, 35, titleColor)
		drawCentered(img, placeholderLine1, w/2, 50, mutedColor)
		drawCentered(img, placeholderLine2, w/2, 65, mutedColor)
	}
	if w > 20 && h > 90 {
		fillPanel(img, image.Rect(10, h-80, w-10, h-10))
		drawText(img, placeholderHeader, 20, h-60, infoColor)
		drawText(img, "Model: "+modelLabel, 20, h-45, mutedColor)
		drawText(img, fmt.Sprintf("Selected Area: %d×%dpx", w, h), 20, h-30, mutedColor)
		drawText(img, "Time: "+now().Format("15:04:05"), 20, h-15, mutedColor)
	}
	dashedBorder(img, image.Rect(5, 5, w-5, h-5), 3, 8, 4, borderColor)
	return img
}

func radialGradient(img *image.RGBA) {
	b := img.Bounds()
	cx, cy := float64(b.Dx())/2, float64(b.Dy())/2
	radius := math.Max(cx, cy)
	if radius == 0 {
		return
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			t := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy) / radius
			img.SetRGBA(x, y, gradientAt(t))
		}
	}
}

func gradientAt(t float64) color.RGBA {
	switch {
	case t <= 0:
		return gradientInner
	case t < 0.7:
		return lerp(gradientInner, gradientMid, t/0.7)
	case t < 1:
		return lerp(gradientMid, gradientOuter, (t-0.7)/0.3)
	default:
		return gradientOuter
	}
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 0xff}
}

func fillPanel(img *image.RGBA, r image.Rectangle) {
	if r.Empty() {
		return
	}
	draw.Draw(img, r, image.NewUniform(panelFill), image.Point{}, draw.Over)
}

func drawText(img *image.RGBA, s string, x, y int, c color.Color) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func drawCentered(img *image.RGBA, s string, cx, y int, c color.Color) {
	width := font.MeasureString(basicfont.Face7x13, s).Ceil()
	drawText(img, s, cx-width/2, y, c)
}

// dashedBorder strokes r with a dash pattern that runs continuously around
// the perimeter, clockwise from the top-left corner.
func dashedBorder(img *image.RGBA, r image.Rectangle, thickness, on, off int, c color.RGBA) {
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return
	}
	period := on + off
	half := thickness / 2
	b := img.Bounds()
	plot := func(x, y int) {
		for dy := -half; dy < thickness-half; dy++ {
			for dx := -half; dx < thickness-half; dx++ {
				if p := image.Pt(x+dx, y+dy); p.In(b) {
					img.SetRGBA(p.X, p.Y, c)
				}
			}
		}
	}
	pos := 0
	walk := func(x0, y0, dx, dy, n int) {
		for i := 0; i < n; i++ {
			if pos%period < on {
				plot(x0+dx*i, y0+dy*i)
			}
			pos++
		}
	}
	w, h := r.Dx(), r.Dy()
	walk(r.Min.X, r.Min.Y, 1, 0, w)
	walk(r.Max.X, r.Min.Y, 0, 1, h)
	walk(r.Max.X, r.Max.Y, -1, 0, w)
	walk(r.Min.X, r.Max.Y, 0, -1, h)
}
