package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"shotreview/internal/usertoken"
	"shotreview/pkg/annotation"
	"shotreview/pkg/cache"
	"shotreview/pkg/capture"
	"shotreview/pkg/capture/rodraster"
	"shotreview/pkg/events"
	"shotreview/pkg/gallery"
	"shotreview/pkg/metrics"
	"shotreview/pkg/storage"
	"shotreview/pkg/store"
)

// DefaultListPrefix is the listing prefix of the blob proxy.
const DefaultListPrefix = "screenshots/"

// ErrFilenameRequired is returned by Upload without a filename.
var ErrFilenameRequired = errors.New("filename required")

// Config holds runtime configuration for the core application. Images,
// Cache and Records override the backends named by the other fields.
type Config struct {
	PublicBaseURL string
	Minio         *storage.MinioConfig

	CacheBackend  string
	CachePath     string
	RedisAddr     string
	RedisPassword string

	DatabaseURL string

	AMQPURL      string
	AMQPExchange string
	EventStream  string

	BrowserEnabled    bool
	BrowserControlURL string
	BrowserBin        string

	Auth usertoken.Config

	RemoteTimeout    time.Duration
	CaptureTimeout   time.Duration
	ClearConcurrency int

	Logger     *slog.Logger
	Images     storage.ImageStore
	Cache      cache.Cache
	Records    store.RecordStore
	Rasterizer capture.Rasterizer
	Now        func() time.Time
}

// App wires storage, annotation and capture together.
type App struct {
	logger    *slog.Logger
	images    storage.ImageStore
	blobs     *storage.MemoryStore
	workspace *annotation.Workspace
	engine    *capture.Engine
	users     *usertoken.Resolver
	metrics   *metrics.Recorder
	hub       *events.Hub

	mu        sync.Mutex
	galleries map[string]*gallery.Renderer
	closers   []io.Closer
}

// New constructs the application and connects every configured backend.
func New(ctx context.Context, cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		logger:    logger,
		metrics:   metrics.New(),
		hub:       events.NewHub(),
		galleries: make(map[string]*gallery.Renderer),
	}
	if err := a.build(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg Config) error {
	users, err := usertoken.NewResolver(cfg.Auth)
	if err != nil {
		return fmt.Errorf("init user tokens: %w", err)
	}
	a.users = users

	images, err := a.openImages(ctx, cfg)
	if err != nil {
		return err
	}
	a.images = images

	kv, err := a.openCache(ctx, cfg)
	if err != nil {
		return err
	}
	records, err := a.openRecords(cfg)
	if err != nil {
		return err
	}
	publisher, err := a.openEvents(cfg)
	if err != nil {
		return err
	}

	rasterizer := cfg.Rasterizer
	if rasterizer == nil && cfg.BrowserEnabled {
		r, err := rodraster.New(rodraster.Config{
			ControlURL: cfg.BrowserControlURL,
			Bin:        cfg.BrowserBin,
			Logger:     a.logger,
		})
		if err != nil {
			return fmt.Errorf("init browser: %w", err)
		}
		a.closers = append(a.closers, r)
		rasterizer = r
	}
	a.engine = capture.NewEngine(capture.Options{
		Rasterizer:      rasterizer,
		StrategyTimeout: cfg.CaptureTimeout,
		Logger:          a.logger,
		Observer:        a.metrics,
		Now:             cfg.Now,
	})

	var clock *annotation.Clock
	if cfg.Now != nil {
		clock = annotation.NewClock(cfg.Now)
	}
	ws, err := annotation.NewWorkspace(ctx, annotation.Deps{
		Images:           images,
		Cache:            kv,
		Records:          records,
		Events:           publisher,
		Metrics:          a.metrics,
		Logger:           a.logger,
		Clock:            clock,
		RemoteTimeout:    cfg.RemoteTimeout,
		ClearConcurrency: cfg.ClearConcurrency,
	})
	if err != nil {
		return fmt.Errorf("init workspace: %w", err)
	}
	a.workspace = ws
	return nil
}

func (a *App) openImages(ctx context.Context, cfg Config) (storage.ImageStore, error) {
	if cfg.Images != nil {
		return cfg.Images, nil
	}
	if cfg.Minio != nil && cfg.Minio.Endpoint != "" {
		m, err := storage.NewMinioStore(ctx, *cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("init minio store: %w", err)
		}
		return m, nil
	}
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base != "" {
		base += BlobPathPrefix
	}
	a.blobs = storage.NewMemoryStore(strings.TrimRight(base, "/"))
	a.logger.Warn("no minio endpoint configured, images are kept in memory")
	return a.blobs, nil
}

func (a *App) openCache(ctx context.Context, cfg Config) (cache.Cache, error) {
	if cfg.Cache != nil {
		return cfg.Cache, nil
	}
	switch cfg.CacheBackend {
	case "redis":
		c := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, "")
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := c.Ping(pingCtx); err != nil {
			c.Close()
			return nil, fmt.Errorf("init redis cache: %w", err)
		}
		a.closers = append(a.closers, c)
		return c, nil
	case "sqlite":
		c, err := cache.OpenSQLite(ctx, cfg.CachePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite cache: %w", err)
		}
		a.closers = append(a.closers, c)
		return c, nil
	default:
		return cache.NewMemoryCache(), nil
	}
}

func (a *App) openRecords(cfg Config) (store.RecordStore, error) {
	if cfg.Records != nil {
		return cfg.Records, nil
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	s, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("init postgres store: %w", err)
	}
	a.closers = append(a.closers, s)
	return s, nil
}

func (a *App) openEvents(cfg Config) (events.Publisher, error) {
	publishers := events.Multi{a.hub}
	if strings.TrimSpace(cfg.AMQPURL) != "" {
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, fmt.Errorf("init amqp publisher: %w", err)
		}
		a.closers = append(a.closers, p)
		publishers = append(publishers, p)
	}
	if strings.TrimSpace(cfg.EventStream) != "" && strings.TrimSpace(cfg.RedisAddr) != "" {
		p, err := events.NewRedisStreamPublisher(events.RedisStreamConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.EventStream,
		})
		if err != nil {
			return nil, fmt.Errorf("init event stream: %w", err)
		}
		a.closers = append(a.closers, p)
		publishers = append(publishers, p)
	}
	return publishers, nil
}

// Close releases every backend connection.
func (a *App) Close() error {
	a.mu.Lock()
	for _, g := range a.galleries {
		g.Close()
	}
	a.galleries = map[string]*gallery.Renderer{}
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Users returns the token resolver.
func (a *App) Users() *usertoken.Resolver { return a.users }

// Metrics returns the prometheus recorder.
func (a *App) Metrics() *metrics.Recorder { return a.metrics }

// Workspace returns the annotation workspace.
func (a *App) Workspace() *annotation.Workspace { return a.workspace }

// Engine returns the capture engine.
func (a *App) Engine() *capture.Engine { return a.engine }

// MemoryBlobs returns the in-memory image store, or nil when images go to MinIO.
func (a *App) MemoryBlobs() *storage.MemoryStore { return a.blobs }

// Session returns the annotation store of jobID.
func (a *App) Session(ctx context.Context, jobID string) (*annotation.Store, error) {
	return a.workspace.Session(ctx, jobID)
}

// Gallery returns the gallery projection of jobID, subscribed to its changes.
func (a *App) Gallery(ctx context.Context, jobID string) (*gallery.Renderer, error) {
	s, err := a.workspace.Session(ctx, jobID)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if g, ok := a.galleries[jobID]; ok {
		return g, nil
	}
	g := gallery.New(s, a.workspace.Catalog())
	g.Attach(a.hub, jobID)
	a.galleries[jobID] = g
	return g, nil
}

// Upload stores an image through the blob proxy and returns its URL.
func (a *App) Upload(ctx context.Context, filename string, data []byte, contentType string) (string, error) {
	key, err := uploadKey(filename)
	if err != nil {
		return "", err
	}
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(key))); byExt != "" {
			contentType = byExt
		}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	url, err := a.images.Put(ctx, key, data, contentType)
	if err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}
	return url, nil
}

// ListImages lists stored images under prefix.
func (a *App) ListImages(ctx context.Context, prefix, cursor string, limit int) (storage.Page, error) {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultListPrefix
	}
	return a.images.List(ctx, prefix, cursor, limit)
}

// DeleteImage removes a stored image by URL or key.
func (a *App) DeleteImage(ctx context.Context, ref string) error {
	return a.images.Delete(ctx, ref)
}

// uploadKey cleans a client supplied filename into an object key. Path
// segments are kept so callers can upload under screenshots/<job>/.
func uploadKey(filename string) (string, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return "", ErrFilenameRequired
	}
	cleaned := path.Clean("/" + strings.ReplaceAll(filename, "\\", "/"))
	parts := strings.Split(strings.TrimPrefix(cleaned, "/"), "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if name := sanitizeFilename(part); name != "" {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return "", ErrFilenameRequired
	}
	return strings.Join(out, "/"), nil
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_.")
}
