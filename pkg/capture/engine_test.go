package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"shotreview/pkg/domain"
)

type fixedStrategy struct {
	method domain.CaptureMethod
	img    image.Image
	err    error
	calls  int
}

func (f *fixedStrategy) Method() domain.CaptureMethod { return f.method }

func (f *fixedStrategy) Capture(context.Context, Surface, Rect) (image.Image, error) {
	f.calls++
	return f.img, f.err
}

type blockingStrategy struct{}

func (blockingStrategy) Method() domain.CaptureMethod { return domain.CaptureDOM }

func (blockingStrategy) Capture(ctx context.Context, _ Surface, _ Rect) (image.Image, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type panicStrategy struct{}

func (panicStrategy) Method() domain.CaptureMethod { return domain.CaptureDirect }

func (panicStrategy) Capture(context.Context, Surface, Rect) (image.Image, error) {
	panic("boom")
}

type recordingObserver struct {
	mu      sync.Mutex
	success []string
	failed  []string
}

func (o *recordingObserver) CaptureSucceeded(m string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.success = append(o.success, m)
}

func (o *recordingObserver) CaptureAttemptFailed(m string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, m)
}

type fakeRasterizer struct {
	img image.Image
	req RasterRequest
}

func (f *fakeRasterizer) Rasterize(_ context.Context, req RasterRequest) (image.Image, error) {
	f.req = req
	return f.img, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestCaptureRejectsSmallSelection(t *testing.T) {
	first := &fixedStrategy{method: domain.CaptureDirect, img: solid(5, 5, color.Black)}
	e := NewEngine(Options{Strategies: []Strategy{first}, Logger: quietLogger()})
	_, err := e.Capture(context.Background(), Surface{Width: 800, Height: 600}, Selection{X1: 10, Y1: 10, X2: 15, Y2: 100})
	if !errors.Is(err, ErrSelectionTooSmall) {
		t.Fatalf("expected ErrSelectionTooSmall, got %v", err)
	}
	if first.calls != 0 {
		t.Fatalf("no strategy should run for a rejected selection")
	}
}

func TestCaptureRejectsFractionalSelectionBelowMinimum(t *testing.T) {
	first := &fixedStrategy{method: domain.CaptureDirect, img: solid(10, 50, color.Black)}
	e := NewEngine(Options{Strategies: []Strategy{first}, Logger: quietLogger()})
	_, err := e.Capture(context.Background(), Surface{Width: 100, Height: 100}, Selection{X1: 0, Y1: 0, X2: 9.5, Y2: 50})
	if !errors.Is(err, ErrSelectionTooSmall) {
		t.Fatalf("expected ErrSelectionTooSmall for a 9.5px drag, got %v", err)
	}
	if first.calls != 0 {
		t.Fatalf("no strategy should run for a rejected selection")
	}
}

func TestCaptureDirectExactSize(t *testing.T) {
	frame := solid(800, 600, color.RGBA{0, 0, 0, 255})
	frame.Set(110, 120, color.RGBA{255, 0, 0, 255})
	obs := &recordingObserver{}
	e := NewEngine(Options{Logger: quietLogger(), Observer: obs})
	surface := Surface{Width: 800, Height: 600, Pixels: StaticBuffer{Image: frame}}

	res, err := e.Capture(context.Background(), surface, Selection{X1: 300, Y1: 220, X2: 100, Y2: 120})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if res.Method != domain.CaptureDirect {
		t.Fatalf("expected direct method, got %s", res.Method)
	}
	b := res.Image.Bounds()
	if b.Dx() != 200 || b.Dy() != 100 {
		t.Fatalf("expected 200x100, got %dx%d", b.Dx(), b.Dy())
	}
	r, _, _, _ := res.Image.At(b.Min.X+10, b.Min.Y).RGBA()
	if r>>8 != 255 {
		t.Fatalf("expected copied red pixel at origin offset, got r=%d", r>>8)
	}
	if len(obs.success) != 1 || obs.success[0] != "direct" {
		t.Fatalf("unexpected observer calls: %+v", obs.success)
	}
}

func TestCaptureDirectResamplesHighDPIBuffer(t *testing.T) {
	frame := solid(1600, 1200, color.RGBA{0, 128, 0, 255})
	e := NewEngine(Options{Logger: quietLogger()})
	surface := Surface{Width: 800, Height: 600, Pixels: StaticBuffer{Image: frame}}

	res, err := e.Capture(context.Background(), surface, Selection{X1: 0, Y1: 0, X2: 200, Y2: 150})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if b := res.Image.Bounds(); b.Dx() != 200 || b.Dy() != 150 {
		t.Fatalf("expected 200x150 after resampling, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestCaptureFallsBackToDOM(t *testing.T) {
	raster := &fakeRasterizer{img: solid(50, 50, color.White)}
	obs := &recordingObserver{}
	e := NewEngine(Options{Rasterizer: raster, Logger: quietLogger(), Observer: obs})
	surface := Surface{
		Width:  800,
		Height: 600,
		DOM:    DOMRegion{HTML: `<div onclick="x()">viewer<script>alert(1)</script></div>`},
	}

	res, err := e.Capture(context.Background(), surface, Selection{X1: 10, Y1: 10, X2: 110, Y2: 60})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if res.Method != domain.CaptureDOM {
		t.Fatalf("expected dom method, got %s", res.Method)
	}
	if len(res.Attempts) != 1 || !errors.Is(res.Attempts[0].Err, ErrNoPixelBuffer) {
		t.Fatalf("expected one failed direct attempt, got %+v", res.Attempts)
	}
	if b := res.Image.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Fatalf("expected rasterized output resized to 100x50, got %dx%d", b.Dx(), b.Dy())
	}
	if raster.req.Clip != (Rect{X: 10, Y: 10, Width: 100, Height: 50}) {
		t.Fatalf("unexpected clip %+v", raster.req.Clip)
	}
	if raster.req.ViewportWidth != 800 || raster.req.ViewportHeight != 600 {
		t.Fatalf("unexpected viewport %dx%d", raster.req.ViewportWidth, raster.req.ViewportHeight)
	}
	if len(obs.failed) != 1 || obs.failed[0] != "direct" {
		t.Fatalf("unexpected failure observations: %+v", obs.failed)
	}
}

func TestCaptureFallsBackToPlaceholder(t *testing.T) {
	e := NewEngine(Options{Logger: quietLogger(), Now: func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }})
	surface := Surface{Width: 800, Height: 600, ModelLabel: "Bracket v2"}

	res, err := e.Capture(context.Background(), surface, Selection{X1: 0, Y1: 0, X2: 320, Y2: 240})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if res.Method != domain.CapturePlaceholder {
		t.Fatalf("expected placeholder, got %s", res.Method)
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("expected direct and dom attempts, got %+v", res.Attempts)
	}
	if !errors.Is(res.Attempts[1].Err, ErrNoRasterizer) {
		t.Fatalf("expected ErrNoRasterizer for dom step, got %v", res.Attempts[1].Err)
	}
	if b := res.Image.Bounds(); b.Dx() != 320 || b.Dy() != 240 {
		t.Fatalf("expected 320x240 placeholder, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestCaptureStrategyTimeoutAndPanic(t *testing.T) {
	e := NewEngine(Options{
		Strategies:      []Strategy{panicStrategy{}, blockingStrategy{}},
		StrategyTimeout: 20 * time.Millisecond,
		Logger:          quietLogger(),
	})
	res, err := e.Capture(context.Background(), Surface{Width: 100, Height: 100}, Selection{X2: 40, Y2: 40})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("expected two failed attempts, got %+v", res.Attempts)
	}
	if !errors.Is(res.Attempts[1].Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", res.Attempts[1].Err)
	}
	if res.Method != domain.CapturePlaceholder {
		t.Fatalf("engine should finish with the placeholder, got %s", res.Method)
	}
}

func TestCaptureResizesMismatchedStrategyOutput(t *testing.T) {
	odd := &fixedStrategy{method: domain.CaptureDirect, img: solid(13, 7, color.White)}
	e := NewEngine(Options{Strategies: []Strategy{odd}, Logger: quietLogger()})
	res, err := e.Capture(context.Background(), Surface{Width: 100, Height: 100}, Selection{X2: 60, Y2: 30})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if b := res.Image.Bounds(); b.Dx() != 60 || b.Dy() != 30 {
		t.Fatalf("expected 60x30, got %dx%d", b.Dx(), b.Dy())
	}
}
