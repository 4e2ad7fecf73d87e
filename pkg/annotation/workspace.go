package annotation

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"

	"shotreview/pkg/cache"
	"shotreview/pkg/domain"
)

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Workspace owns the tag catalog and the per-job sessions.
type Workspace struct {
	mu       sync.Mutex
	deps     Deps
	catalog  *Catalog
	sessions map[string]*Store
}

// NewWorkspace builds a workspace and loads the tag catalog.
func NewWorkspace(ctx context.Context, deps Deps) (*Workspace, error) {
	deps = deps.withDefaults()
	w := &Workspace{
		deps:     deps,
		catalog:  NewCatalog(deps),
		sessions: make(map[string]*Store),
	}
	w.catalog.onDelete = w.cascadeTag
	if err := w.catalog.Load(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// Catalog returns the shared tag catalog.
func (w *Workspace) Catalog() *Catalog { return w.catalog }

// Clock returns the id clock shared by every session.
func (w *Workspace) Clock() *Clock { return w.deps.Clock }

// NewJobID returns a fresh default job id.
func (w *Workspace) NewJobID() string { return w.deps.Clock.JobID() }

// Session returns the store of jobID, loading it on first use from the
// local cache or, failing that, the record store.
func (w *Workspace) Session(ctx context.Context, jobID string) (*Store, error) {
	jobID = strings.TrimSpace(jobID)
	if !jobIDPattern.MatchString(jobID) {
		return nil, ErrInvalidJobID
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.sessions[jobID]; ok {
		return s, nil
	}
	shots, source := w.loadSession(ctx, jobID)
	pruned := w.prune(shots)
	for _, shot := range shots {
		w.deps.Clock.Observe(shot.ID)
		for _, c := range shot.Comments {
			w.deps.Clock.Observe(c.ID)
		}
	}
	s := newStore(jobID, w.catalog, w.deps, shots)
	if pruned > 0 {
		s.mu.Lock()
		op := s.commitLocked()
		s.mu.Unlock()
		s.flush(ctx, op)
	}
	w.sessions[jobID] = s
	w.deps.Logger.Info("session loaded", "job_id", jobID, "source", source, "screenshots", len(shots), "pruned_tags", pruned)
	return s, nil
}

// Jobs lists the loaded session ids.
func (w *Workspace) Jobs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.sessions))
	for id := range w.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// DeleteTag removes a tag from the catalog and every screenshot.
func (w *Workspace) DeleteTag(ctx context.Context, actor domain.User, tagID int64) error {
	return w.catalog.Delete(ctx, actor, tagID)
}

func (w *Workspace) cascadeTag(ctx context.Context, tagID int64) {
	w.mu.Lock()
	sessions := make([]*Store, 0, len(w.sessions))
	for _, s := range w.sessions {
		sessions = append(sessions, s)
	}
	w.mu.Unlock()
	for _, s := range sessions {
		s.removeTag(ctx, tagID)
	}
}

func (w *Workspace) loadSession(ctx context.Context, jobID string) ([]domain.Screenshot, string) {
	if w.deps.Cache != nil {
		var shots []domain.Screenshot
		var ok bool
		err := w.deps.remote(ctx, "cache", func(ctx context.Context) error {
			var err error
			ok, err = cache.GetJSON(ctx, w.deps.Cache, sessionCacheKey(jobID), &shots)
			return err
		})
		if err == nil && ok {
			return normalizeLoaded(shots, jobID), "cache"
		}
	}
	if w.deps.Records != nil {
		var shots []domain.Screenshot
		err := w.deps.remote(ctx, "records", func(ctx context.Context) error {
			var err error
			shots, err = w.deps.Records.ListScreenshots(ctx, jobID)
			return err
		})
		if err == nil {
			return normalizeLoaded(shots, jobID), "records"
		}
	}
	return []domain.Screenshot{}, "empty"
}

// prune drops tag ids that are no longer in the catalog and returns how
// many references were removed.
func (w *Workspace) prune(shots []domain.Screenshot) int {
	removed := 0
	for i := range shots {
		kept := shots[i].TagIDs[:0]
		for _, id := range shots[i].TagIDs {
			if w.catalog.has(id) {
				kept = append(kept, id)
			} else {
				removed++
			}
		}
		shots[i].TagIDs = kept
	}
	return removed
}

func normalizeLoaded(shots []domain.Screenshot, jobID string) []domain.Screenshot {
	out := make([]domain.Screenshot, 0, len(shots))
	for _, shot := range shots {
		shot = shot.Clone()
		shot.JobID = jobID
		sort.Slice(shot.TagIDs, func(i, j int) bool { return shot.TagIDs[i] < shot.TagIDs[j] })
		out = append(out, shot)
	}
	return out
}

func setSessionCache(ctx context.Context, deps Deps, jobID string, shots []domain.Screenshot) error {
	return cache.SetJSON(ctx, deps.Cache, sessionCacheKey(jobID), shots)
}
