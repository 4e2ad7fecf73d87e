package app

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"shotreview/internal/usertoken"
	"shotreview/pkg/capture"
	"shotreview/pkg/domain"
	"shotreview/pkg/gallery"
	"shotreview/pkg/storage"
)

var admin = domain.User{Name: "Admin", Role: domain.RoleAdmin, CanDelete: true}

func testConfig() Config {
	return Config{
		PublicBaseURL: "http://review.test",
		Auth: usertoken.Config{Users: []usertoken.StaticUser{
			{Token: "admin-token", Name: "Admin", Role: "admin"},
		}},
		RemoteTimeout: time.Second,
	}
}

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func TestCaptureStoresScreenshot(t *testing.T) {
	a := newTestApp(t, testConfig())
	ctx := context.Background()

	out, err := a.Capture(ctx, admin, CaptureRequest{
		JobID: "job-1",
		Surface: capture.Surface{
			Width:      200,
			Height:     100,
			Pixels:     capture.StaticBuffer{Image: solid(200, 100, color.RGBA{R: 200, A: 255})},
			ModelLabel: "Model A",
		},
		Selection: capture.Selection{X1: 150, Y1: 80, X2: 50, Y2: 20},
	})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	shot := out.Screenshot
	if shot.CaptureMethod != domain.CaptureDirect || shot.Width != 100 || shot.Height != 60 {
		t.Fatalf("unexpected screenshot: %+v", shot)
	}
	if !shot.IsCloudStored || !strings.HasPrefix(shot.ImageRef, "http://review.test/blobs/screenshots/job-1/") {
		t.Fatalf("unexpected image ref %q", shot.ImageRef)
	}
	if shot.ModelVersion != "Model A" {
		t.Fatalf("expected model label fallback, got %q", shot.ModelVersion)
	}
	if _, _, ok := a.MemoryBlobs().Get(shot.StorageKey); !ok {
		t.Fatalf("expected image in memory store under %q", shot.StorageKey)
	}

	g, err := a.Gallery(ctx, "job-1")
	if err != nil {
		t.Fatalf("gallery: %v", err)
	}
	if v := g.Page(domain.RoleAdmin, gallery.Cursor{}); v.Total != 1 || len(v.Items) != 1 {
		t.Fatalf("unexpected gallery view: %+v", v)
	}
	again, err := a.Gallery(ctx, "job-1")
	if err != nil || again != g {
		t.Fatalf("expected gallery to be reused")
	}
}

func TestCaptureRejectsSmallSelection(t *testing.T) {
	a := newTestApp(t, testConfig())
	ctx := context.Background()
	_, err := a.Capture(ctx, admin, CaptureRequest{
		JobID:     "job-1",
		Surface:   capture.Surface{Width: 100, Height: 100},
		Selection: capture.Selection{X1: 0, Y1: 0, X2: 9, Y2: 50},
	})
	if !errors.Is(err, capture.ErrSelectionTooSmall) {
		t.Fatalf("expected selection too small, got %v", err)
	}
	s, _ := a.Session(ctx, "job-1")
	if s.Len() != 0 {
		t.Fatalf("expected no screenshot, got %d", s.Len())
	}
}

func TestCaptureFallsBackToPlaceholder(t *testing.T) {
	a := newTestApp(t, testConfig())
	out, err := a.Capture(context.Background(), admin, CaptureRequest{
		JobID:        "job-2",
		Surface:      capture.Surface{Width: 300, Height: 300},
		Selection:    capture.Selection{X1: 10, Y1: 10, X2: 110, Y2: 60},
		ModelVersion: "v2",
	})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if out.Screenshot.CaptureMethod != domain.CapturePlaceholder || len(out.Attempts) != 2 {
		t.Fatalf("unexpected outcome: method=%s attempts=%d", out.Screenshot.CaptureMethod, len(out.Attempts))
	}
	if out.Screenshot.ModelVersion != "v2" {
		t.Fatalf("unexpected model version %q", out.Screenshot.ModelVersion)
	}
}

func TestUploadListDelete(t *testing.T) {
	a := newTestApp(t, testConfig())
	ctx := context.Background()

	url, err := a.Upload(ctx, "screenshots/job 1/../shot one.png", []byte("png"), "")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "http://review.test/blobs/screenshots/shot_one.png" {
		t.Fatalf("unexpected url %q", url)
	}
	if _, ct, ok := a.MemoryBlobs().Get("screenshots/shot_one.png"); !ok || ct != "image/png" {
		t.Fatalf("expected png stored, ok=%v ct=%q", ok, ct)
	}
	if _, err := a.Upload(ctx, "  ", []byte("x"), ""); !errors.Is(err, ErrFilenameRequired) {
		t.Fatalf("expected filename required, got %v", err)
	}
	if _, err := a.Upload(ctx, "other/x.bin", []byte("x"), "application/octet-stream"); err != nil {
		t.Fatalf("upload other: %v", err)
	}

	page, err := a.ListImages(ctx, "", "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Objects) != 1 || page.Objects[0].URL != url {
		t.Fatalf("default prefix should only list screenshots: %+v", page.Objects)
	}

	if err := a.DeleteImage(ctx, url); err != nil {
		t.Fatalf("delete: %v", err)
	}
	page, _ = a.ListImages(ctx, DefaultListPrefix, "", 0)
	if len(page.Objects) != 0 {
		t.Fatalf("expected empty listing, got %d", len(page.Objects))
	}
}

func TestCacheBackends(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite", func(t *testing.T) {
		cfg := testConfig()
		cfg.CacheBackend = "sqlite"
		cfg.CachePath = filepath.Join(t.TempDir(), "cache.db")
		a := newTestApp(t, cfg)
		if _, err := a.Workspace().Catalog().Create(ctx, admin, "Blocker", "#ff0000", false); err != nil {
			t.Fatalf("create tag: %v", err)
		}
		_ = a.Close()

		reopened := newTestApp(t, cfg)
		found := false
		for _, tag := range reopened.Workspace().Catalog().All() {
			if tag.Name == "Blocker" {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected tag to survive restart through sqlite cache")
		}
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig()
		cfg.CacheBackend = "redis"
		cfg.RedisAddr = mr.Addr()
		cfg.EventStream = "review:events"
		a := newTestApp(t, cfg)
		if _, err := a.Workspace().Catalog().Create(ctx, admin, "Blocker", "#ff0000", false); err != nil {
			t.Fatalf("create tag: %v", err)
		}
		if !mr.Exists("shotreview:cache:screenshot-tags") {
			t.Fatalf("expected catalog in redis, keys=%v", mr.Keys())
		}
		if _, err := a.Capture(ctx, admin, CaptureRequest{
			JobID:     "job-r",
			Surface:   capture.Surface{Width: 50, Height: 50},
			Selection: capture.Selection{X2: 20, Y2: 20},
		}); err != nil {
			t.Fatalf("capture: %v", err)
		}
		if !mr.Exists("review:events") {
			t.Fatalf("expected event stream to be written")
		}
	})

	t.Run("redis unreachable", func(t *testing.T) {
		cfg := testConfig()
		cfg.CacheBackend = "redis"
		cfg.RedisAddr = "127.0.0.1:1"
		if _, err := New(ctx, cfg); err == nil {
			t.Fatalf("expected unreachable redis to fail")
		}
	})
}

func TestNewRejectsBadAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = usertoken.Config{Users: []usertoken.StaticUser{{Token: "a", Name: "A", Role: "owner"}}}
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatalf("expected bad role to fail")
	}
}

func TestInjectedImageStore(t *testing.T) {
	cfg := testConfig()
	images := storage.NewMemoryStore("https://cdn.test")
	cfg.Images = images
	a := newTestApp(t, cfg)
	if a.MemoryBlobs() != nil {
		t.Fatalf("injected store should not be served by the app")
	}
	url, err := a.Upload(context.Background(), "screenshots/a.jpg", []byte("x"), "image/jpeg")
	if err != nil || url != "https://cdn.test/screenshots/a.jpg" {
		t.Fatalf("unexpected upload url=%q err=%v", url, err)
	}
}

func TestUploadKey(t *testing.T) {
	cases := map[string]string{
		"a.png":                      "a.png",
		"/screenshots/job-1/x.jpg":   "screenshots/job-1/x.jpg",
		"..\\..\\etc\\passwd":        "etc/passwd",
		"screenshots/é/shot.jpg":     "screenshots/shot.jpg",
		"screenshots/job 1/shot.jpg": "screenshots/job_1/shot.jpg",
	}
	for in, want := range cases {
		got, err := uploadKey(in)
		if err != nil || got != want {
			t.Fatalf("uploadKey(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := uploadKey("/../"); !errors.Is(err, ErrFilenameRequired) {
		t.Fatalf("expected filename required, got %v", err)
	}
}
