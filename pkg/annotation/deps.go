package annotation

import (
	"context"
	"log/slog"
	"time"

	"shotreview/pkg/cache"
	"shotreview/pkg/events"
	"shotreview/pkg/storage"
	"shotreview/pkg/store"
)

const (
	defaultRemoteTimeout    = 5 * time.Second
	defaultClearConcurrency = 4

	tagsCacheKey          = "screenshot-tags"
	sessionCacheKeyPrefix = "screenshots_metadata_"
)

// Metrics receives best-effort persistence outcomes.
type Metrics interface {
	StorageDegraded()
	RemoteDelete(ok bool)
	PersistFailed(target string)
}

type noopMetrics struct{}

func (noopMetrics) StorageDegraded()     {}
func (noopMetrics) RemoteDelete(bool)    {}
func (noopMetrics) PersistFailed(string) {}

// Deps are the collaborators shared by the catalog and every session.
// Any backend may be nil; the store then keeps the data in memory only.
type Deps struct {
	Images           storage.ImageStore
	Cache            cache.Cache
	Records          store.RecordStore
	Events           events.Publisher
	Metrics          Metrics
	Logger           *slog.Logger
	Clock            *Clock
	RemoteTimeout    time.Duration
	ClearConcurrency int
}

func (d Deps) withDefaults() Deps {
	if d.Metrics == nil {
		d.Metrics = noopMetrics{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = NewClock(nil)
	}
	if d.Events == nil {
		d.Events = events.Discard{}
	}
	if d.RemoteTimeout <= 0 {
		d.RemoteTimeout = defaultRemoteTimeout
	}
	if d.ClearConcurrency <= 0 {
		d.ClearConcurrency = defaultClearConcurrency
	}
	return d
}

// remote runs fn detached from the caller's cancellation with the remote
// timeout. Failures are logged and counted under target.
func (d Deps) remote(ctx context.Context, target string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.RemoteTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		d.Logger.Warn("best-effort persistence failed", "target", target, "err", err)
		d.Metrics.PersistFailed(target)
		return err
	}
	return nil
}

func (d Deps) publish(ctx context.Context, e events.Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	_ = d.remote(ctx, "events", func(ctx context.Context) error {
		return d.Events.Publish(ctx, e)
	})
}

func sessionCacheKey(jobID string) string {
	return sessionCacheKeyPrefix + jobID
}
