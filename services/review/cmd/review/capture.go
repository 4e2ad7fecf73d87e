package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shotreview/internal/util"
	"shotreview/pkg/capture"
	"shotreview/pkg/capture/rodraster"
)

type captureFlags struct {
	image      string
	html       string
	url        string
	width      int
	height     int
	rect       string
	model      string
	out        string
	browser    bool
	browserURL string
	timeout    time.Duration
}

func newCaptureCmd() *cobra.Command {
	f := captureFlags{}
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a selection from an image, HTML file or URL into a JPEG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			util.InitLogger("warn", "text")
			return runCapture(cmd.Context(), f, cmd.OutOrStdout())
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.image, "image", "", "rendered frame (png or jpeg) used as the pixel buffer")
	fl.StringVar(&f.html, "html", "", "HTML file rasterized when no frame is readable")
	fl.StringVar(&f.url, "url", "", "page URL rasterized when no frame is readable")
	fl.IntVar(&f.width, "width", 0, "surface width (defaults to the frame width)")
	fl.IntVar(&f.height, "height", 0, "surface height (defaults to the frame height)")
	fl.StringVar(&f.rect, "rect", "", "selection corners x1,y1,x2,y2")
	fl.StringVar(&f.model, "model", "", "model label drawn on placeholders")
	fl.StringVar(&f.out, "out", "screenshot.jpg", "output JPEG path")
	fl.BoolVar(&f.browser, "browser", false, "rasterize with headless Chrome")
	fl.StringVar(&f.browserURL, "browser-url", "", "DevTools URL of a running Chrome (implies --browser)")
	fl.DurationVar(&f.timeout, "timeout", 0, "per-strategy timeout")
	_ = cmd.MarkFlagRequired("rect")
	return cmd
}

type captureSummary struct {
	Output   string            `json:"output"`
	Method   string            `json:"method"`
	Rect     capture.Rect      `json:"rect"`
	Attempts map[string]string `json:"attempts,omitempty"`
	Bytes    int               `json:"bytes"`
}

func runCapture(ctx context.Context, f captureFlags, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sel, err := parseSelection(f.rect)
	if err != nil {
		return err
	}
	surface := capture.Surface{Width: f.width, Height: f.height, ModelLabel: f.model}
	if f.image != "" {
		img, err := readImage(f.image)
		if err != nil {
			return err
		}
		surface.Pixels = capture.StaticBuffer{Image: img}
		if surface.Width == 0 {
			surface.Width = img.Bounds().Dx()
		}
		if surface.Height == 0 {
			surface.Height = img.Bounds().Dy()
		}
	}
	if f.html != "" {
		data, err := os.ReadFile(f.html)
		if err != nil {
			return fmt.Errorf("read html: %w", err)
		}
		surface.DOM.HTML = string(data)
	}
	surface.DOM.URL = f.url
	if surface.Width <= 0 || surface.Height <= 0 {
		return errors.New("surface size unknown: pass --image or --width and --height")
	}

	opts := capture.Options{StrategyTimeout: f.timeout}
	if f.browser || f.browserURL != "" {
		r, err := rodraster.New(rodraster.Config{ControlURL: f.browserURL})
		if err != nil {
			return err
		}
		defer r.Close()
		opts.Rasterizer = r
	}
	res, err := capture.NewEngine(opts).Capture(ctx, surface, sel)
	if err != nil {
		return err
	}
	data, err := capture.EncodeResult(res)
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.out, data.Bytes, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	summary := captureSummary{Output: f.out, Method: string(res.Method), Rect: res.Rect, Bytes: len(data.Bytes)}
	if len(res.Attempts) > 0 {
		summary.Attempts = make(map[string]string, len(res.Attempts))
		for _, a := range res.Attempts {
			msg := ""
			if a.Err != nil {
				msg = a.Err.Error()
			}
			summary.Attempts[string(a.Method)] = msg
		}
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func parseSelection(raw string) (capture.Selection, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return capture.Selection{}, fmt.Errorf("--rect wants x1,y1,x2,y2, got %q", raw)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return capture.Selection{}, fmt.Errorf("--rect: %w", err)
		}
		vals[i] = v
	}
	return capture.Selection{X1: vals[0], Y1: vals[1], X2: vals[2], Y2: vals[3]}, nil
}

func readImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
