package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"shotreview/pkg/domain"
)

const defaultStrategyTimeout = 5 * time.Second

// Strategy produces the image for a validated rectangle or reports why it cannot.
type Strategy interface {
	Method() domain.CaptureMethod
	Capture(ctx context.Context, s Surface, r Rect) (image.Image, error)
}

// Observer receives one call per strategy outcome.
type Observer interface {
	CaptureSucceeded(method string)
	CaptureAttemptFailed(method string)
}

// Attempt records a strategy that did not produce an image.
type Attempt struct {
	Method domain.CaptureMethod `json:"method"`
	Err    error                `json:"-"`
}

// Result is the outcome of a capture: always an image of Rect's size.
type Result struct {
	Image    image.Image
	Method   domain.CaptureMethod
	Rect     Rect
	Attempts []Attempt
}

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	Rasterizer      Rasterizer
	Strategies      []Strategy
	StrategyTimeout time.Duration
	Logger          *slog.Logger
	Observer        Observer
	Now             func() time.Time
}

// Engine runs the ordered strategy list: direct read, DOM rasterization,
// placeholder.
type Engine struct {
	strategies  []Strategy
	placeholder Placeholder
	timeout     time.Duration
	logger      *slog.Logger
	observer    Observer
}

// NewEngine builds an engine. Without explicit Strategies the default chain is used.
func NewEngine(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	placeholder := Placeholder{Now: now}
	strategies := opts.Strategies
	if len(strategies) == 0 {
		strategies = []Strategy{
			DirectRead{},
			DOMRaster{Rasterizer: opts.Rasterizer},
			placeholder,
		}
	}
	timeout := opts.StrategyTimeout
	if timeout <= 0 {
		timeout = defaultStrategyTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		strategies:  strategies,
		placeholder: placeholder,
		timeout:     timeout,
		logger:      logger,
		observer:    opts.Observer,
	}
}

// Capture normalizes and validates sel, then returns the first successful
// strategy's image. The only error is ErrSelectionTooSmall.
func (e *Engine) Capture(ctx context.Context, surface Surface, sel Selection) (Result, error) {
	rect := Normalize(sel, surface.Width, surface.Height)
	if err := ValidateSelection(sel); err != nil {
		return Result{Rect: rect}, err
	}
	if err := Validate(rect); err != nil {
		return Result{Rect: rect}, err
	}
	res := Result{Rect: rect}
	for _, st := range e.strategies {
		img, err := e.run(ctx, st, surface, rect)
		if err != nil {
			res.Attempts = append(res.Attempts, Attempt{Method: st.Method(), Err: err})
			e.logger.Warn("capture strategy failed", "method", st.Method(), "rect", rect.String(), "err", err)
			if e.observer != nil {
				e.observer.CaptureAttemptFailed(string(st.Method()))
			}
			continue
		}
		res.Image = fit(img, rect.Width, rect.Height)
		res.Method = st.Method()
		e.succeeded(res)
		return res, nil
	}
	res.Image = e.placeholder.Render(surface.ModelLabel, rect.Width, rect.Height)
	res.Method = domain.CapturePlaceholder
	e.succeeded(res)
	return res, nil
}

func (e *Engine) succeeded(res Result) {
	e.logger.Info("screenshot captured", "method", res.Method, "rect", res.Rect.String(), "failed_attempts", len(res.Attempts))
	if e.observer != nil {
		e.observer.CaptureSucceeded(string(res.Method))
	}
}

var errStrategyPanic = errors.New("capture strategy panicked")

func (e *Engine) run(ctx context.Context, st Strategy, surface Surface, rect Rect) (img image.Image, err error) {
	defer func() {
		if p := recover(); p != nil {
			img, err = nil, fmt.Errorf("%w: %v", errStrategyPanic, p)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	img, err = st.Capture(ctx, surface, rect)
	if err == nil && img == nil {
		err = errors.New("strategy returned no image")
	}
	if err == nil && img.Bounds().Empty() {
		err = errors.New("strategy returned an empty image")
	}
	return img, err
}
