package capture

import (
	"errors"
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		sel  Selection
		want Rect
	}{
		{"forward drag", Selection{X1: 10, Y1: 20, X2: 110, Y2: 70}, Rect{X: 10, Y: 20, Width: 100, Height: 50}},
		{"backward drag", Selection{X1: 110, Y1: 70, X2: 10, Y2: 20}, Rect{X: 10, Y: 20, Width: 100, Height: 50}},
		{"clamped right and bottom", Selection{X1: 700, Y1: 500, X2: 900, Y2: 700}, Rect{X: 700, Y: 500, Width: 100, Height: 100}},
		{"clamped negative origin", Selection{X1: -50, Y1: -5, X2: 40, Y2: 30}, Rect{X: 0, Y: 0, Width: 40, Height: 30}},
		{"fully outside", Selection{X1: 900, Y1: 10, X2: 950, Y2: 60}, Rect{X: 800, Y: 10, Width: 0, Height: 50}},
		{"fractional", Selection{X1: 10.4, Y1: 10.6, X2: 30.5, Y2: 40}, Rect{X: 10, Y: 11, Width: 21, Height: 29}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.sel, 800, 600)
			if got != tc.want {
				t.Fatalf("Normalize(%+v) = %+v, want %+v", tc.sel, got, tc.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(Rect{Width: 10, Height: 10}); err != nil {
		t.Fatalf("10x10 should pass: %v", err)
	}
	for _, r := range []Rect{{Width: 9, Height: 50}, {Width: 50, Height: 9}, {}} {
		if err := Validate(r); !errors.Is(err, ErrSelectionTooSmall) {
			t.Fatalf("Validate(%+v) = %v, want ErrSelectionTooSmall", r, err)
		}
	}
}

func TestValidateSelection(t *testing.T) {
	ok := []Selection{
		{X1: 0, Y1: 0, X2: 10, Y2: 10},
		{X1: 20.25, Y1: 40, X2: 10.25, Y2: 0},
	}
	for _, sel := range ok {
		if err := ValidateSelection(sel); err != nil {
			t.Fatalf("ValidateSelection(%+v) = %v, want nil", sel, err)
		}
	}
	bad := []Selection{
		{X1: 0, Y1: 0, X2: 9.5, Y2: 50},
		{X1: 0, Y1: 0, X2: 50, Y2: 9.99},
		{X1: 30, Y1: 30, X2: 20.5, Y2: 80},
		{X1: math.NaN(), Y1: 0, X2: 50, Y2: 50},
	}
	for _, sel := range bad {
		if err := ValidateSelection(sel); !errors.Is(err, ErrSelectionTooSmall) {
			t.Fatalf("ValidateSelection(%+v) = %v, want ErrSelectionTooSmall", sel, err)
		}
	}
}

func TestValidateAfterClamp(t *testing.T) {
	r := Normalize(Selection{X1: 795, Y1: 100, X2: 850, Y2: 200}, 800, 600)
	if r.Width != 5 {
		t.Fatalf("expected clamped width 5, got %d", r.Width)
	}
	if err := Validate(r); !errors.Is(err, ErrSelectionTooSmall) {
		t.Fatalf("expected clamped sliver to be rejected, got %v", err)
	}
}
