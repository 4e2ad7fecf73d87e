package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseSelection(t *testing.T) {
	sel, err := parseSelection("30, 40,10,20")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sel.X1 != 30 || sel.Y1 != 40 || sel.X2 != 10 || sel.Y2 != 20 {
		t.Fatalf("unexpected selection: %+v", sel)
	}
	for _, raw := range []string{"", "1,2,3", "a,b,c,d"} {
		if _, err := parseSelection(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestRunCaptureFromImage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "frame.png")
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 20, B: 20, A: 255})
		}
	}
	file, err := os.Create(src)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := png.Encode(file, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	file.Close()

	out := filepath.Join(dir, "shot.jpg")
	var stdout bytes.Buffer
	err = runCapture(context.Background(), captureFlags{image: src, rect: "10,10,110,60", out: out}, &stdout)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	var summary captureSummary
	if err := json.Unmarshal(stdout.Bytes(), &summary); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Method != "direct" {
		t.Fatalf("expected direct capture, got %q", summary.Method)
	}
	if summary.Rect.Width != 100 || summary.Rect.Height != 50 {
		t.Fatalf("unexpected rect: %+v", summary.Rect)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(data) < 3 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Fatalf("output is not a jpeg")
	}
}

func TestRunCaptureNeedsSize(t *testing.T) {
	err := runCapture(context.Background(), captureFlags{rect: "0,0,50,50", out: filepath.Join(t.TempDir(), "x.jpg")}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "surface size unknown") {
		t.Fatalf("expected size error, got %v", err)
	}
}
