// Package capture turns a drag selection over the model viewer into an
// image, falling back through progressively less faithful strategies.
package capture

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// MinSelectionSize is the smallest accepted width and height in device pixels.
const MinSelectionSize = 10

// ErrSelectionTooSmall rejects a selection before any strategy runs.
var ErrSelectionTooSmall = errors.New("selection too small")

// Selection holds the two drag corners in surface coordinates, in any order.
type Selection struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Rect is a normalized selection: origin top-left, non-negative size.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Bounds returns r as an image.Rectangle.
func (r Rect) Bounds() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// Normalize orders the corners and clamps the rectangle to
// [0,surfaceWidth] × [0,surfaceHeight].
func Normalize(sel Selection, surfaceWidth, surfaceHeight int) Rect {
	x0, x1 := ordered(round(sel.X1), round(sel.X2))
	y0, y1 := ordered(round(sel.Y1), round(sel.Y2))
	x0, x1 = clamp(x0, 0, surfaceWidth), clamp(x1, 0, surfaceWidth)
	y0, y1 = clamp(y0, 0, surfaceHeight), clamp(y1, 0, surfaceHeight)
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// ValidateSelection rejects a drag whose raw extent is below
// MinSelectionSize on either axis, before any rounding.
func ValidateSelection(sel Selection) error {
	w, h := math.Abs(sel.X2-sel.X1), math.Abs(sel.Y2-sel.Y1)
	if !(w >= MinSelectionSize) || !(h >= MinSelectionSize) {
		return fmt.Errorf("%w: %gx%g, minimum is %dx%d", ErrSelectionTooSmall, w, h, MinSelectionSize, MinSelectionSize)
	}
	return nil
}

// Validate rejects rectangles narrower or shorter than MinSelectionSize.
func Validate(r Rect) error {
	if r.Width < MinSelectionSize || r.Height < MinSelectionSize {
		return fmt.Errorf("%w: %dx%d, minimum is %dx%d", ErrSelectionTooSmall, r.Width, r.Height, MinSelectionSize, MinSelectionSize)
	}
	return nil
}

func round(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Round(v))
}

func ordered(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
