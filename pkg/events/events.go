// Package events carries store change signals to the gallery and to
// external consumers.
package events

import (
	"context"
	"errors"
	"time"
)

// Kind tells a consumer how much of its projection to redo.
type Kind string

const (
	// KindReorder follows create, resolve and delete: membership or order changed.
	KindReorder Kind = "reorder"
	// KindPatch follows comment and tag changes on a single screenshot.
	KindPatch Kind = "patch"
)

// Ops recorded on events.
const (
	OpCreated        = "created"
	OpResolved       = "resolved"
	OpDeleted        = "deleted"
	OpCleared        = "cleared"
	OpCommentAdded   = "comment_added"
	OpCommentDeleted = "comment_deleted"
	OpTagToggled     = "tag_toggled"
	OpTagRemoved     = "tag_removed"
)

// Event is one change on a job's annotation store.
type Event struct {
	JobID        string    `json:"jobId"`
	Kind         Kind      `json:"kind"`
	Op           string    `json:"op"`
	ScreenshotID int64     `json:"screenshotId,omitempty"`
	At           time.Time `json:"at"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi fans an event out to several publishers and joins their errors.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(context.Context, Event) error { return nil }
