// Package storage persists encoded screenshots and lists them back.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrEmptyKey   = errors.New("empty object key")
	ErrInvalidRef = errors.New("reference does not belong to this store")
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// ImageStore is the image persistence service.
type ImageStore interface {
	// Put stores data under key and returns its public URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Delete removes the object addressed by a URL returned from Put, or by its key.
	Delete(ctx context.Context, ref string) error
	// List returns objects under prefix in key order, starting after cursor.
	List(ctx context.Context, prefix, cursor string, limit int) (Page, error)
}

// Object describes a stored image.
type Object struct {
	URL         string    `json:"url"`
	Pathname    string    `json:"pathname"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Page is one List result.
type Page struct {
	Objects []Object
	Cursor  string
	HasMore bool
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func cleanKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrEmptyKey
	}
	return key, nil
}

// keyFromRef turns a public URL under base into an object key. Refs without
// a scheme are taken as keys.
func keyFromRef(base, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrEmptyKey
	}
	if !strings.Contains(ref, "://") {
		return cleanKey(ref)
	}
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(ref, prefix) {
		return "", ErrInvalidRef
	}
	rest := strings.TrimPrefix(ref, prefix)
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	return cleanKey(rest)
}
