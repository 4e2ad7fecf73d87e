package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process ImageStore for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]memoryObject
	now     func() time.Time
}

type memoryObject struct {
	data        []byte
	contentType string
	uploadedAt  time.Time
}

// NewMemoryStore creates a store whose URLs start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://images"
	}
	return &MemoryStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

// Put stores a copy of data.
func (m *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.mu.Lock()
	m.objects[key] = memoryObject{data: buf, contentType: contentType, uploadedAt: m.now().UTC()}
	m.mu.Unlock()
	return m.baseURL + "/" + key, nil
}

// Get returns a stored object.
func (m *MemoryStore) Get(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, "", false
	}
	return obj.data, obj.contentType, true
}

// Delete removes an object. Missing objects are not an error.
func (m *MemoryStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := keyFromRef(m.baseURL, ref)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// List implements ImageStore.
func (m *MemoryStore) List(ctx context.Context, prefix, cursor string, limit int) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	limit = normalizeLimit(limit)
	m.mu.RLock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) && k > cursor {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	page := Page{Objects: make([]Object, 0, min(limit, len(keys)))}
	for _, k := range keys {
		if len(page.Objects) == limit {
			page.HasMore = true
			break
		}
		obj := m.objects[k]
		page.Objects = append(page.Objects, Object{
			URL:         m.baseURL + "/" + k,
			Pathname:    k,
			Size:        int64(len(obj.data)),
			ContentType: obj.contentType,
			UploadedAt:  obj.uploadedAt,
		})
	}
	m.mu.RUnlock()
	if page.HasMore {
		page.Cursor = page.Objects[len(page.Objects)-1].Pathname
	}
	return page, nil
}

// Len reports the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
