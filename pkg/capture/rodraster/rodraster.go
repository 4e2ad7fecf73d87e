// Package rodraster renders DOM regions with headless Chrome through go-rod.
package rodraster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"shotreview/pkg/capture"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("rodraster: closed")

// Config selects the browser. Empty ControlURL launches a local headless Chrome.
type Config struct {
	ControlURL string
	Bin        string
	Logger     *slog.Logger
}

// Rasterizer implements capture.Rasterizer. Each request uses its own tab.
type Rasterizer struct {
	mu       sync.RWMutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	logger   *slog.Logger
	closed   bool
}

// New connects to (or launches) Chrome.
func New(cfg Config) (*Rasterizer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Rasterizer{logger: logger}
	wsURL := cfg.ControlURL
	if wsURL == "" {
		l := launcher.New().Headless(true)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("rodraster: launch: %w", err)
		}
		wsURL = u
		r.launcher = l
		logger.Info("rodraster: launched local chrome", "url", wsURL)
	} else {
		logger.Info("rodraster: connecting to remote chrome", "url", wsURL)
	}
	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if r.launcher != nil {
			r.launcher.Kill()
		}
		return nil, fmt.Errorf("rodraster: connect: %w", err)
	}
	r.browser = b
	return r, nil
}

// Rasterize renders req and returns the clip area at device scale 1.
func (r *Rasterizer) Rasterize(ctx context.Context, req capture.RasterRequest) (image.Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed || r.browser == nil {
		return nil, ErrClosed
	}
	page, err := r.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("rodraster: open tab: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			r.logger.Debug("rodraster: close tab", "err", err)
		}
	}()

	if err := page.SetViewport(viewport(req)); err != nil {
		return nil, fmt.Errorf("rodraster: set viewport: %w", err)
	}
	if req.URL != "" {
		if err := page.Navigate(req.URL); err != nil {
			return nil, fmt.Errorf("rodraster: navigate: %w", err)
		}
	} else if err := page.SetDocumentContent(req.HTML); err != nil {
		return nil, fmt.Errorf("rodraster: set content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		r.logger.Warn("rodraster: wait load", "err", err)
	}

	raw, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
		Clip:   clip(req.Clip),
	})
	if err != nil {
		return nil, fmt.Errorf("rodraster: screenshot: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("rodraster: decode screenshot: %w", err)
	}
	return img, nil
}

// Close disconnects and stops a launched browser.
func (r *Rasterizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	var err error
	if r.browser != nil {
		err = r.browser.Close()
	}
	if r.launcher != nil {
		r.launcher.Kill()
	}
	return err
}

func viewport(req capture.RasterRequest) *proto.EmulationSetDeviceMetricsOverride {
	return &proto.EmulationSetDeviceMetricsOverride{
		Width:             req.ViewportWidth,
		Height:            req.ViewportHeight,
		DeviceScaleFactor: 1,
	}
}

func clip(r capture.Rect) *proto.PageViewport {
	return &proto.PageViewport{
		X:      float64(r.X),
		Y:      float64(r.Y),
		Width:  float64(r.Width),
		Height: float64(r.Height),
		Scale:  1,
	}
}
