package domain

import "time"

// Role is the closed set of reviewer roles handed over by the auth collaborator.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

// User is the acting reviewer of the current session.
type User struct {
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	CanDelete bool   `json:"canDelete"`
}

// CaptureMethod names the strategy that produced a screenshot image.
type CaptureMethod string

const (
	CaptureDirect      CaptureMethod = "direct"
	CaptureDOM         CaptureMethod = "dom"
	CapturePlaceholder CaptureMethod = "placeholder"
)

// Screenshot is one captured region of the model viewer.
type Screenshot struct {
	ID            int64         `json:"id"`
	JobID         string        `json:"jobId"`
	ImageRef      string        `json:"url"`
	StorageKey    string        `json:"storageKey,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	CreatedBy     string        `json:"createdBy"`
	CreatedByRole Role          `json:"createdByRole"`
	ModelVersion  string        `json:"modelVersion"`
	Comments      []Comment     `json:"comments"`
	TagIDs        []int64       `json:"tagIds"`
	IsResolved    bool          `json:"isResolved"`
	IsCloudStored bool          `json:"isCloudStored"`
	CaptureMethod CaptureMethod `json:"captureMethod,omitempty"`
	Width         int           `json:"width"`
	Height        int           `json:"height"`
}

// HasTag reports whether the screenshot holds tagID.
func (s Screenshot) HasTag(tagID int64) bool {
	for _, id := range s.TagIDs {
		if id == tagID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with s.
func (s Screenshot) Clone() Screenshot {
	out := s
	out.Comments = append([]Comment(nil), s.Comments...)
	out.TagIDs = append([]int64(nil), s.TagIDs...)
	if out.Comments == nil {
		out.Comments = []Comment{}
	}
	if out.TagIDs == nil {
		out.TagIDs = []int64{}
	}
	return out
}

// Comment is immutable once written; it can only be deleted.
type Comment struct {
	ID         int64     `json:"id"`
	Text       string    `json:"text"`
	Author     string    `json:"author"`
	AuthorRole Role      `json:"authorRole"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Tag is an entry of the process-wide tag catalog.
type Tag struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Color         string    `json:"color"`
	ClientVisible bool      `json:"clientCanUse"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ImageData is an encoded capture ready for persistence.
type ImageData struct {
	Bytes       []byte
	ContentType string
	Width       int
	Height      int
}

// CaptureMeta is the metadata recorded together with a new screenshot.
type CaptureMeta struct {
	ModelVersion string
	Method       CaptureMethod
}
