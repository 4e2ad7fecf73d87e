package rodraster

import (
	"context"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"

	"shotreview/pkg/capture"
)

func TestClipAndViewport(t *testing.T) {
	req := capture.RasterRequest{ViewportWidth: 800, ViewportHeight: 600, Clip: capture.Rect{X: 10, Y: 20, Width: 30, Height: 40}}
	c := clip(req.Clip)
	if c.X != 10 || c.Y != 20 || c.Width != 30 || c.Height != 40 || c.Scale != 1 {
		t.Fatalf("unexpected clip %+v", c)
	}
	v := viewport(req)
	if v.Width != 800 || v.Height != 600 || v.DeviceScaleFactor != 1 {
		t.Fatalf("unexpected viewport %+v", v)
	}
}

func TestRasterizeHTML(t *testing.T) {
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no chrome binary available")
	}
	r, err := New(Config{Bin: bin})
	if err != nil {
		t.Skipf("chrome not usable: %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	img, err := r.Rasterize(ctx, capture.RasterRequest{
		HTML:           `<html><body style="margin:0;background:#007bff"></body></html>`,
		ViewportWidth:  200,
		ViewportHeight: 100,
		Clip:           capture.Rect{X: 10, Y: 10, Width: 50, Height: 40},
	})
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 50 || b.Dy() != 40 {
		t.Fatalf("expected 50x40, got %dx%d", b.Dx(), b.Dy())
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := r.Rasterize(ctx, capture.RasterRequest{}); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
