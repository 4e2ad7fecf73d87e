package annotation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"shotreview/pkg/cache"
	"shotreview/pkg/domain"
	"shotreview/pkg/events"
	"shotreview/pkg/storage"
	"shotreview/pkg/store"
)

var (
	admin  = domain.User{Name: "Admin", Role: domain.RoleAdmin, CanDelete: true}
	client = domain.User{Name: "Client", Role: domain.RoleClient}
	other  = domain.User{Name: "Other Client", Role: domain.RoleClient}
)

var errUnavailable = errors.New("image store unavailable")

// flakyImages fails Put while down and Delete for keys containing a marker.
type flakyImages struct {
	*storage.MemoryStore
	mu         sync.Mutex
	down       bool
	failDelete string
	deleted    []string
}

func newFlakyImages() *flakyImages {
	return &flakyImages{MemoryStore: storage.NewMemoryStore("https://cdn.test")}
}

func (f *flakyImages) Put(ctx context.Context, key string, data []byte, ct string) (string, error) {
	f.mu.Lock()
	down := f.down
	f.mu.Unlock()
	if down {
		return "", errUnavailable
	}
	return f.MemoryStore.Put(ctx, key, data, ct)
}

func (f *flakyImages) Delete(ctx context.Context, ref string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, ref)
	fail := f.failDelete != "" && strings.Contains(ref, f.failDelete)
	f.mu.Unlock()
	if fail {
		return errUnavailable
	}
	return f.MemoryStore.Delete(ctx, ref)
}

type countingMetrics struct {
	mu             sync.Mutex
	degraded       int
	remoteOK       int
	remoteFailed   int
	persistFailure map[string]int
}

func (m *countingMetrics) StorageDegraded() {
	m.mu.Lock()
	m.degraded++
	m.mu.Unlock()
}

func (m *countingMetrics) RemoteDelete(ok bool) {
	m.mu.Lock()
	if ok {
		m.remoteOK++
	} else {
		m.remoteFailed++
	}
	m.mu.Unlock()
}

func (m *countingMetrics) PersistFailed(target string) {
	m.mu.Lock()
	if m.persistFailure == nil {
		m.persistFailure = map[string]int{}
	}
	m.persistFailure[target]++
	m.mu.Unlock()
}

// fakeTime is a settable wall clock in unix milliseconds.
type fakeTime struct {
	mu sync.Mutex
	ms int64
}

func (f *fakeTime) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return time.UnixMilli(f.ms)
}

func (f *fakeTime) set(ms int64) {
	f.mu.Lock()
	f.ms = ms
	f.mu.Unlock()
}

type fixture struct {
	ws      *Workspace
	images  *flakyImages
	cache   *cache.MemoryCache
	records *store.MemoryStore
	hub     *events.Hub
	metrics *countingMetrics
	clock   *fakeTime
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		images:  newFlakyImages(),
		cache:   cache.NewMemoryCache(),
		records: store.NewMemoryStore(),
		hub:     events.NewHub(),
		metrics: &countingMetrics{},
		clock:   &fakeTime{ms: 1_700_000_000_000},
	}
	f.ws = f.open(t)
	return f
}

func (f *fixture) deps() Deps {
	return Deps{
		Images:        f.images,
		Cache:         f.cache,
		Records:       f.records,
		Events:        f.hub,
		Metrics:       f.metrics,
		Logger:        quietLogger(),
		Clock:         NewClock(f.clock.now),
		RemoteTimeout: time.Second,
	}
}

func (f *fixture) open(t *testing.T) *Workspace {
	t.Helper()
	ws, err := NewWorkspace(context.Background(), f.deps())
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}
	return ws
}

func (f *fixture) session(t *testing.T, job string) *Store {
	t.Helper()
	s, err := f.ws.Session(context.Background(), job)
	if err != nil {
		t.Fatalf("session %s: %v", job, err)
	}
	return s
}

func jpegStub() domain.ImageData {
	return domain.ImageData{Bytes: []byte{0xff, 0xd8, 0xff, 0xd9}, ContentType: "image/jpeg", Width: 40, Height: 30}
}

func mustCreate(t *testing.T, s *Store, actor domain.User) domain.Screenshot {
	t.Helper()
	res, err := s.Create(context.Background(), actor, jpegStub(), domain.CaptureMeta{ModelVersion: "v1", Method: domain.CaptureDirect})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return res.Screenshot
}

func ids(shots []domain.Screenshot) []int64 {
	out := make([]int64, len(shots))
	for i, s := range shots {
		out[i] = s.ID
	}
	return out
}
