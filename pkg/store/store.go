// Package store is the remote record store for screenshots and tags.
package store

import (
	"context"

	"shotreview/pkg/domain"
)

// RecordStore persists screenshot records and the tag catalog.
type RecordStore interface {
	SaveScreenshot(ctx context.Context, s domain.Screenshot) error
	DeleteScreenshot(ctx context.Context, jobID string, id int64) error
	DeleteJob(ctx context.Context, jobID string) error
	ListScreenshots(ctx context.Context, jobID string) ([]domain.Screenshot, error)

	SaveTag(ctx context.Context, t domain.Tag) error
	DeleteTag(ctx context.Context, id int64) error
	ListTags(ctx context.Context) ([]domain.Tag, error)
}
