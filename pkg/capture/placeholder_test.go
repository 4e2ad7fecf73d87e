package capture

import (
	"bytes"
	"image/jpeg"
	"strings"
	"testing"
	"time"
)

func TestPlaceholderDimensionsAndBorder(t *testing.T) {
	p := Placeholder{Now: func() time.Time { return time.Unix(0, 0) }}
	for _, size := range [][2]int{{10, 10}, {200, 100}, {640, 480}} {
		img := p.Render("Model A", size[0], size[1])
		if b := img.Bounds(); b.Dx() != size[0] || b.Dy() != size[1] {
			t.Fatalf("expected %dx%d, got %dx%d", size[0], size[1], b.Dx(), b.Dy())
		}
	}
	img := p.Render("Model A", 200, 100)
	if got := img.RGBAAt(5, 5); got != borderColor {
		t.Fatalf("expected border color at the inset corner, got %+v", got)
	}
	if got := img.RGBAAt(5+9, 5); got == borderColor {
		t.Fatalf("expected a dash gap at offset 9 on the top edge")
	}
}

func TestGradientStops(t *testing.T) {
	if gradientAt(0) != gradientInner || gradientAt(0.7) != gradientMid || gradientAt(1.2) != gradientOuter {
		t.Fatalf("unexpected gradient stops")
	}
}

func TestEncodeAndDataURI(t *testing.T) {
	img := Placeholder{}.Render("", 64, 32)
	data, err := Encode(img, 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if data.ContentType != "image/jpeg" || data.Width != 64 || data.Height != 32 {
		t.Fatalf("unexpected image data %+v", data)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(data.Bytes))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 64 || b.Dy() != 32 {
		t.Fatalf("decoded size %dx%d", b.Dx(), b.Dy())
	}
	uri := DataURI(data)
	if !strings.HasPrefix(uri, "data:image/jpeg;base64,") {
		t.Fatalf("unexpected data uri prefix: %.40s", uri)
	}
}
