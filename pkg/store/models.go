package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"gorm.io/datatypes"

	"shotreview/pkg/domain"
)

// GORM models used for persistence.
type ScreenshotModel struct {
	JobID         string         `gorm:"primaryKey;size:128"`
	ID            int64          `gorm:"primaryKey;autoIncrement:false"`
	ImageRef      string         `gorm:"type:text;not null"`
	StorageKey    string         `gorm:"size:512"`
	CreatedAt     time.Time      `gorm:"not null;index"`
	CreatedBy     string         `gorm:"not null"`
	CreatedByRole string         `gorm:"not null"`
	ModelVersion  string
	Comments      datatypes.JSON `gorm:"type:jsonb"`
	TagIDs        datatypes.JSON `gorm:"type:jsonb"`
	IsResolved    bool           `gorm:"not null;default:false"`
	IsCloudStored bool           `gorm:"not null;default:false"`
	CaptureMethod string
	Width         int
	Height        int
	UpdatedAt     time.Time
}

type TagModel struct {
	ID            int64     `gorm:"primaryKey;autoIncrement:false"`
	Name          string    `gorm:"not null;size:64"`
	Color         string    `gorm:"not null;size:7"`
	ClientVisible bool      `gorm:"not null;default:false"`
	CreatedAt     time.Time `gorm:"not null"`
}

func screenshotToModel(s domain.Screenshot) (ScreenshotModel, error) {
	comments := s.Comments
	if comments == nil {
		comments = []domain.Comment{}
	}
	commentsJSON, err := json.Marshal(comments)
	if err != nil {
		return ScreenshotModel{}, fmt.Errorf("encode comments: %w", err)
	}
	tags := append([]int64(nil), s.TagIDs...)
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	if tags == nil {
		tags = []int64{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return ScreenshotModel{}, fmt.Errorf("encode tag ids: %w", err)
	}
	return ScreenshotModel{
		JobID:         s.JobID,
		ID:            s.ID,
		ImageRef:      s.ImageRef,
		StorageKey:    s.StorageKey,
		CreatedAt:     s.CreatedAt.UTC(),
		CreatedBy:     s.CreatedBy,
		CreatedByRole: string(s.CreatedByRole),
		ModelVersion:  s.ModelVersion,
		Comments:      datatypes.JSON(commentsJSON),
		TagIDs:        datatypes.JSON(tagsJSON),
		IsResolved:    s.IsResolved,
		IsCloudStored: s.IsCloudStored,
		CaptureMethod: string(s.CaptureMethod),
		Width:         s.Width,
		Height:        s.Height,
		UpdatedAt:     time.Now().UTC(),
	}, nil
}

func screenshotFromModel(m ScreenshotModel) (domain.Screenshot, error) {
	s := domain.Screenshot{
		ID:            m.ID,
		JobID:         m.JobID,
		ImageRef:      m.ImageRef,
		StorageKey:    m.StorageKey,
		CreatedAt:     m.CreatedAt,
		CreatedBy:     m.CreatedBy,
		CreatedByRole: domain.Role(m.CreatedByRole),
		ModelVersion:  m.ModelVersion,
		Comments:      []domain.Comment{},
		TagIDs:        []int64{},
		IsResolved:    m.IsResolved,
		IsCloudStored: m.IsCloudStored,
		CaptureMethod: domain.CaptureMethod(m.CaptureMethod),
		Width:         m.Width,
		Height:        m.Height,
	}
	if len(m.Comments) > 0 {
		if err := json.Unmarshal(m.Comments, &s.Comments); err != nil {
			return domain.Screenshot{}, fmt.Errorf("decode comments of %d: %w", m.ID, err)
		}
	}
	if len(m.TagIDs) > 0 {
		if err := json.Unmarshal(m.TagIDs, &s.TagIDs); err != nil {
			return domain.Screenshot{}, fmt.Errorf("decode tag ids of %d: %w", m.ID, err)
		}
	}
	return s, nil
}

func tagToModel(t domain.Tag) TagModel {
	return TagModel{
		ID:            t.ID,
		Name:          t.Name,
		Color:         t.Color,
		ClientVisible: t.ClientVisible,
		CreatedAt:     t.CreatedAt.UTC(),
	}
}

func tagFromModel(m TagModel) domain.Tag {
	return domain.Tag{
		ID:            m.ID,
		Name:          m.Name,
		Color:         m.Color,
		ClientVisible: m.ClientVisible,
		CreatedAt:     m.CreatedAt,
	}
}
