// Package annotation owns screenshot records of a review session: their
// comments, tags and resolution state, and the persistence of all three.
package annotation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"shotreview/pkg/capture"
	"shotreview/pkg/domain"
	"shotreview/pkg/events"
	"shotreview/pkg/permission"
)

// DegradedWarning is returned once per session when the image store is unavailable.
const DegradedWarning = "Cloud storage is unavailable. The screenshot is kept in local storage only."

// CreateResult is the outcome of Create.
type CreateResult struct {
	Screenshot domain.Screenshot
	// Warning is set on the first degraded create of the session.
	Warning string
}

// ClearReport summarizes ClearAll.
type ClearReport struct {
	Removed       int `json:"removed"`
	RemoteDeleted int `json:"remoteDeleted"`
	RemoteFailed  int `json:"remoteFailed"`
}

// Store holds the screenshots of one job, ordered unresolved first and
// newest first within each group.
type Store struct {
	mu      sync.Mutex
	jobID   string
	shots   []domain.Screenshot
	warned  bool
	catalog *Catalog
	deps    Deps
	version uint64

	pmu     sync.Mutex
	persist persister
}

func newStore(jobID string, catalog *Catalog, deps Deps, shots []domain.Screenshot) *Store {
	s := &Store{jobID: jobID, catalog: catalog, deps: deps, shots: shots}
	sortScreenshots(s.shots)
	return s
}

// JobID returns the session key.
func (s *Store) JobID() string { return s.jobID }

// Create records a new screenshot. The image goes to the image store; when
// that fails it is kept inline as a data URI.
func (s *Store) Create(ctx context.Context, actor domain.User, img domain.ImageData, meta domain.CaptureMeta) (CreateResult, error) {
	if _, ok := permission.ParseRole(string(actor.Role)); !ok {
		return CreateResult{}, ErrForbidden
	}
	if len(img.Bytes) == 0 {
		return CreateResult{}, ErrEmptyImage
	}
	id, at := s.deps.Clock.Next()
	shot := domain.Screenshot{
		ID:            id,
		JobID:         s.jobID,
		CreatedAt:     at,
		CreatedBy:     actor.Name,
		CreatedByRole: actor.Role,
		ModelVersion:  meta.ModelVersion,
		Comments:      []domain.Comment{},
		TagIDs:        []int64{},
		CaptureMethod: meta.Method,
		Width:         img.Width,
		Height:        img.Height,
	}

	key := ObjectKey(s.jobID, id)
	if url, err := s.upload(ctx, key, img); err == nil {
		shot.ImageRef = url
		shot.StorageKey = key
		shot.IsCloudStored = true
	} else {
		s.deps.Logger.Warn("image store unavailable, keeping screenshot inline", "job_id", s.jobID, "screenshot_id", id, "err", err)
		s.deps.Metrics.StorageDegraded()
		shot.ImageRef = capture.DataURI(img)
	}

	s.mu.Lock()
	res := CreateResult{Screenshot: shot.Clone()}
	if !shot.IsCloudStored && !s.warned {
		s.warned = true
		res.Warning = DegradedWarning
	}
	s.shots = append(s.shots, shot)
	sortScreenshots(s.shots)
	op := s.commitLocked(shot)
	s.mu.Unlock()
	s.flush(ctx, op)

	s.deps.Logger.Info("screenshot created", "job_id", s.jobID, "screenshot_id", id, "by", actor.Name, "cloud", shot.IsCloudStored, "method", meta.Method)
	s.emit(ctx, events.KindReorder, events.OpCreated, id)
	return res, nil
}

func (s *Store) upload(ctx context.Context, key string, img domain.ImageData) (string, error) {
	if s.deps.Images == nil {
		return "", fmt.Errorf("no image store configured")
	}
	var url string
	err := s.deps.remote(ctx, "images", func(ctx context.Context) error {
		var err error
		url, err = s.deps.Images.Put(ctx, key, img.Bytes, img.ContentType)
		return err
	})
	return url, err
}

// AddComment appends a comment authored by actor.
func (s *Store) AddComment(ctx context.Context, actor domain.User, id int64, text string) (domain.Comment, error) {
	if _, ok := permission.ParseRole(string(actor.Role)); !ok {
		return domain.Comment{}, ErrForbidden
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Comment{}, ErrEmptyComment
	}
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return domain.Comment{}, ErrScreenshotNotFound
	}
	commentID, at := s.deps.Clock.Next()
	c := domain.Comment{ID: commentID, Text: text, Author: actor.Name, AuthorRole: actor.Role, CreatedAt: at}
	s.shots[idx].Comments = append(s.shots[idx].Comments, c)
	op := s.commitLocked(s.shots[idx])
	s.mu.Unlock()
	s.flush(ctx, op)

	s.emit(ctx, events.KindPatch, events.OpCommentAdded, id)
	return c, nil
}

// DeleteComment removes a comment. Deleting a missing comment is a no-op.
func (s *Store) DeleteComment(ctx context.Context, actor domain.User, id, commentID int64) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrScreenshotNotFound
	}
	comments := s.shots[idx].Comments
	pos := -1
	for i, c := range comments {
		if c.ID == commentID {
			pos = i
			break
		}
	}
	if pos < 0 {
		s.mu.Unlock()
		return nil
	}
	if !permission.CanDeleteComment(actor, comments[pos]) {
		s.mu.Unlock()
		return ErrForbidden
	}
	s.shots[idx].Comments = append(comments[:pos:pos], comments[pos+1:]...)
	op := s.commitLocked(s.shots[idx])
	s.mu.Unlock()
	s.flush(ctx, op)

	s.emit(ctx, events.KindPatch, events.OpCommentDeleted, id)
	return nil
}

// ToggleTag adds the tag when absent and removes it when present. It
// returns whether the tag is applied afterwards.
func (s *Store) ToggleTag(ctx context.Context, actor domain.User, id, tagID int64) (bool, error) {
	tag, ok := s.catalog.Get(tagID)
	if !ok {
		return false, ErrTagNotFound
	}
	if !permission.CanApplyTag(actor.Role, tag) {
		return false, ErrForbidden
	}
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false, ErrScreenshotNotFound
	}
	// Catalog.Delete drops the tag before its cascade takes s.mu.
	if !s.catalog.has(tagID) {
		s.mu.Unlock()
		return false, ErrTagNotFound
	}
	shot := &s.shots[idx]
	applied := !shot.HasTag(tagID)
	if applied {
		shot.TagIDs = insertSorted(shot.TagIDs, tagID)
	} else {
		shot.TagIDs = removeID(shot.TagIDs, tagID)
	}
	op := s.commitLocked(*shot)
	s.mu.Unlock()
	s.flush(ctx, op)

	s.emit(ctx, events.KindPatch, events.OpTagToggled, id)
	return applied, nil
}

// SetResolved marks a screenshot resolved or open again.
func (s *Store) SetResolved(ctx context.Context, actor domain.User, id int64, resolved bool) error {
	if !permission.Allows(actor.Role, permission.Resolve) {
		return ErrForbidden
	}
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrScreenshotNotFound
	}
	if s.shots[idx].IsResolved == resolved {
		s.mu.Unlock()
		return nil
	}
	s.shots[idx].IsResolved = resolved
	shot := s.shots[idx]
	sortScreenshots(s.shots)
	op := s.commitLocked(shot)
	s.mu.Unlock()
	s.flush(ctx, op)

	s.emit(ctx, events.KindReorder, events.OpResolved, id)
	return nil
}

// Delete removes a screenshot. The remote image is deleted best-effort;
// local removal always happens.
func (s *Store) Delete(ctx context.Context, actor domain.User, id int64) error {
	if !permission.Allows(actor.Role, permission.DeleteScreenshot) {
		return ErrForbidden
	}
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrScreenshotNotFound
	}
	shot := s.shots[idx]
	s.shots = append(s.shots[:idx], s.shots[idx+1:]...)
	op := s.commitLocked()
	op.deletes = []int64{id}
	s.mu.Unlock()
	s.flush(ctx, op)

	if shot.IsCloudStored {
		s.deleteRemote(ctx, shot)
	}
	s.deps.Logger.Info("screenshot deleted", "job_id", s.jobID, "screenshot_id", id, "by", actor.Name)
	s.emit(ctx, events.KindReorder, events.OpDeleted, id)
	return nil
}

// ClearAll removes every screenshot of the session. Remote deletions run
// concurrently; their failures are counted, never returned.
func (s *Store) ClearAll(ctx context.Context, actor domain.User) (ClearReport, error) {
	if !permission.Allows(actor.Role, permission.ClearScreenshots) {
		return ClearReport{}, ErrForbidden
	}
	s.mu.Lock()
	removed := s.shots
	s.shots = nil
	s.version++
	op := persistOp{version: s.version, dropCache: true, dropJob: true}
	for _, shot := range removed {
		op.deletes = append(op.deletes, shot.ID)
	}
	s.mu.Unlock()
	s.flush(ctx, op)

	report := ClearReport{Removed: len(removed)}
	var deleted, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.deps.ClearConcurrency)
	for _, shot := range removed {
		if !shot.IsCloudStored {
			continue
		}
		shot := shot // per-iteration copy; go directive is below 1.22
		g.Go(func() error {
			if s.deleteRemote(ctx, shot) {
				deleted.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	report.RemoteDeleted = int(deleted.Load())
	report.RemoteFailed = int(failed.Load())

	s.deps.Logger.Info("session cleared", "job_id", s.jobID, "by", actor.Name,
		"removed", report.Removed, "remote_deleted", report.RemoteDeleted, "remote_failed", report.RemoteFailed)
	s.emit(ctx, events.KindReorder, events.OpCleared, 0)
	return report, nil
}

func (s *Store) deleteRemote(ctx context.Context, shot domain.Screenshot) bool {
	if s.deps.Images == nil {
		s.deps.Metrics.RemoteDelete(false)
		return false
	}
	ref := shot.ImageRef
	if shot.StorageKey != "" {
		ref = shot.StorageKey
	}
	err := s.deps.remote(ctx, "images", func(ctx context.Context) error {
		return s.deps.Images.Delete(ctx, ref)
	})
	s.deps.Metrics.RemoteDelete(err == nil)
	return err == nil
}

// List returns copies of the screenshots in display order.
func (s *Store) List() []domain.Screenshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Screenshot, len(s.shots))
	for i, shot := range s.shots {
		out[i] = shot.Clone()
	}
	return out
}

// Get returns a copy of one screenshot.
func (s *Store) Get(id int64) (domain.Screenshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return s.shots[idx].Clone(), true
	}
	return domain.Screenshot{}, false
}

// Len returns the number of screenshots.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shots)
}

// removeTag drops tagID from every screenshot after a catalog deletion.
func (s *Store) removeTag(ctx context.Context, tagID int64) {
	var touched []int64
	var changed []domain.Screenshot
	s.mu.Lock()
	for i := range s.shots {
		if !s.shots[i].HasTag(tagID) {
			continue
		}
		s.shots[i].TagIDs = removeID(s.shots[i].TagIDs, tagID)
		touched = append(touched, s.shots[i].ID)
		changed = append(changed, s.shots[i])
	}
	if len(touched) == 0 {
		s.mu.Unlock()
		return
	}
	op := s.commitLocked(changed...)
	s.mu.Unlock()
	s.flush(ctx, op)
	for _, id := range touched {
		s.emit(ctx, events.KindPatch, events.OpTagRemoved, id)
	}
}

func (s *Store) indexLocked(id int64) int {
	for i := range s.shots {
		if s.shots[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) emit(ctx context.Context, kind events.Kind, op string, id int64) {
	s.deps.publish(ctx, events.Event{JobID: s.jobID, Kind: kind, Op: op, ScreenshotID: id})
}

// ObjectKey is the image store key of a screenshot.
func ObjectKey(jobID string, id int64) string {
	return fmt.Sprintf("screenshots/%s/screenshot-%d.jpg", jobID, id)
}

// sortScreenshots orders unresolved before resolved, then newest first.
// Ties keep their previous relative order.
func sortScreenshots(shots []domain.Screenshot) {
	sort.SliceStable(shots, func(i, j int) bool {
		a, b := shots[i], shots[j]
		if a.IsResolved != b.IsResolved {
			return !a.IsResolved
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func insertSorted(ids []int64, id int64) []int64 {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
