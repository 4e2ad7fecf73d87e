package annotation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"shotreview/pkg/cache"
	"shotreview/pkg/domain"
)

func at(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func TestCatalogSeedsDefaults(t *testing.T) {
	f := newFixture(t)
	all := f.ws.Catalog().All()
	if len(all) != 5 {
		t.Fatalf("expected 5 default tags, got %d", len(all))
	}
	if all[0].Name != "Client approval" || all[0].Color != "#28a745" || !all[0].ClientVisible {
		t.Fatalf("unexpected first default %+v", all[0])
	}
	visible := f.ws.Catalog().List(client)
	if len(visible) != 2 {
		t.Fatalf("client should see 2 tags, got %+v", visible)
	}
	var cached []domain.Tag
	if ok, err := cache.GetJSON(context.Background(), f.cache, "screenshot-tags", &cached); err != nil || !ok || len(cached) != 5 {
		t.Fatalf("catalog not cached: ok=%v err=%v n=%d", ok, err, len(cached))
	}
}

func TestCatalogValidation(t *testing.T) {
	f := newFixture(t)
	cat := f.ws.Catalog()
	ctx := context.Background()

	cases := []struct {
		name  string
		color string
		want  error
	}{
		{"   ", "#000000", ErrEmptyTagName},
		{strings.Repeat("x", 21), "#000000", ErrTagNameTooLong},
		{"needs review", "#000000", ErrDuplicateTag},
		{"Fine", "red", ErrInvalidColor},
	}
	for _, tc := range cases {
		if _, err := cat.Create(ctx, admin, tc.name, tc.color, false); !errors.Is(err, tc.want) {
			t.Fatalf("Create(%q,%q) = %v, want %v", tc.name, tc.color, err, tc.want)
		}
		if !errors.Is(tc.want, ErrInvalid) {
			t.Fatalf("%v should be a validation error", tc.want)
		}
	}
	if _, err := cat.Create(ctx, client, "Mine", "#000000", true); !errors.Is(err, ErrForbidden) {
		t.Fatalf("client must not create tags, got %v", err)
	}
	tag, err := cat.Create(ctx, admin, strings.Repeat("y", 20), "#ABCDEF", false)
	if err != nil {
		t.Fatalf("create 20 char tag: %v", err)
	}
	if tag.Color != "#abcdef" {
		t.Fatalf("color not normalized: %s", tag.Color)
	}
	if len(f.ws.Catalog().All()) != 6 {
		t.Fatalf("rejected creates must not mutate the catalog")
	}

	updated, err := cat.SetClientVisible(ctx, admin, tag.ID, true)
	if err != nil || !updated.ClientVisible {
		t.Fatalf("set visible: %+v %v", updated, err)
	}
	if _, err := cat.SetClientVisible(ctx, client, tag.ID, false); !errors.Is(err, ErrForbidden) {
		t.Fatalf("client must not edit visibility, got %v", err)
	}
}

func TestDeleteTagCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.ws.Catalog()
	tag, err := cat.Create(ctx, admin, "Temp", "#101010", true)
	if err != nil {
		t.Fatalf("create tag: %v", err)
	}
	s1 := f.session(t, "job-one")
	s2 := f.session(t, "job-two")
	a := mustCreate(t, s1, admin)
	b := mustCreate(t, s2, admin)
	never := mustCreate(t, s2, admin)
	for _, pair := range []struct {
		s  *Store
		id int64
	}{{s1, a.ID}, {s2, b.ID}} {
		if _, err := pair.s.ToggleTag(ctx, admin, pair.id, tag.ID); err != nil {
			t.Fatalf("toggle: %v", err)
		}
	}

	if err := f.ws.DeleteTag(ctx, client, tag.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("client must not delete tags, got %v", err)
	}
	if err := f.ws.DeleteTag(ctx, admin, tag.ID); err != nil {
		t.Fatalf("delete tag: %v", err)
	}
	for _, s := range []*Store{s1, s2} {
		for _, shot := range s.List() {
			if shot.HasTag(tag.ID) {
				t.Fatalf("tag survived on %d", shot.ID)
			}
		}
	}
	if _, ok := cat.Get(tag.ID); ok {
		t.Fatalf("tag still in catalog")
	}
	if err := f.ws.DeleteTag(ctx, admin, tag.ID); !errors.Is(err, ErrTagNotFound) {
		t.Fatalf("expected ErrTagNotFound, got %v", err)
	}

	replacement, err := cat.Create(ctx, admin, "Temp", "#101010", true)
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	applied, err := s2.ToggleTag(ctx, admin, never.ID, replacement.ID)
	if err != nil || !applied {
		t.Fatalf("toggle after cascade should add: applied=%v err=%v", applied, err)
	}
}

func TestSessionReloadFromCacheAndRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t, "job-reload")
	shot := mustCreate(t, s, admin)
	if _, err := s.AddComment(ctx, client, shot.ID, "persist me"); err != nil {
		t.Fatalf("comment: %v", err)
	}

	reopened := f.open(t)
	s2, err := reopened.Session(ctx, "job-reload")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, ok := s2.Get(shot.ID)
	if !ok || len(got.Comments) != 1 || got.Comments[0].Text != "persist me" {
		t.Fatalf("session not restored from cache: %+v", got)
	}

	if err := f.cache.Remove(ctx, "screenshots_metadata_job-reload"); err != nil {
		t.Fatalf("remove cache: %v", err)
	}
	fromRecords := f.open(t)
	s3, err := fromRecords.Session(ctx, "job-reload")
	if err != nil {
		t.Fatalf("reload from records: %v", err)
	}
	if got, ok := s3.Get(shot.ID); !ok || len(got.Comments) != 1 {
		t.Fatalf("session not restored from record store: %+v", got)
	}

	next := mustCreate(t, s3, admin)
	if next.ID <= shot.ID {
		t.Fatalf("clock must move past loaded ids: %d <= %d", next.ID, shot.ID)
	}
}

func TestSessionPrunesUnknownTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale := []domain.Screenshot{{ID: 10, JobID: "job-stale", CreatedAt: at(10), TagIDs: []int64{999}}}
	if err := cache.SetJSON(ctx, f.cache, "screenshots_metadata_job-stale", stale); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	s := f.session(t, "job-stale")
	got, ok := s.Get(10)
	if !ok || len(got.TagIDs) != 0 {
		t.Fatalf("expected unknown tag pruned, got %+v", got)
	}
}

func TestSessionRejectsBadJobID(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"", "../etc", "job/one", strings.Repeat("a", 200)} {
		if _, err := f.ws.Session(context.Background(), id); !errors.Is(err, ErrInvalidJobID) {
			t.Fatalf("Session(%q) = %v, want ErrInvalidJobID", id, err)
		}
	}
	if id := f.ws.NewJobID(); !strings.HasPrefix(id, "job-") {
		t.Fatalf("unexpected default job id %q", id)
	}
}

func TestClockStrictlyIncreasing(t *testing.T) {
	c := NewClock(func() time.Time { return time.UnixMilli(50) })
	a, _ := c.Next()
	b, _ := c.Next()
	c.Observe(500)
	d, when := c.Next()
	if a != 50 || b != 51 || d != 501 || when.UnixMilli() != 501 {
		t.Fatalf("unexpected ids %d %d %d", a, b, d)
	}
}

func TestToggleRacingTagDeleteLeavesNoReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t, "job-race")
	const togglers = 16
	shots := make([]domain.Screenshot, togglers)
	for i := range shots {
		shots[i] = mustCreate(t, s, admin)
	}
	cat := f.ws.Catalog()
	for round := 0; round < 100; round++ {
		tag, err := cat.Create(ctx, admin, fmt.Sprintf("Race %d", round), "#101010", true)
		if err != nil {
			t.Fatalf("create tag: %v", err)
		}
		var wg sync.WaitGroup
		start := make(chan struct{})
		for _, shot := range shots {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				<-start
				_, err := s.ToggleTag(ctx, admin, id, tag.ID)
				if err != nil && !errors.Is(err, ErrTagNotFound) {
					t.Errorf("toggle: %v", err)
				}
			}(shot.ID)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if err := f.ws.DeleteTag(ctx, admin, tag.ID); err != nil {
				t.Errorf("delete tag: %v", err)
			}
		}()
		close(start)
		wg.Wait()
		for _, shot := range s.List() {
			if shot.HasTag(tag.ID) {
				t.Fatalf("round %d: deleted tag %d still on screenshot %d", round, tag.ID, shot.ID)
			}
		}
	}
}

func TestCatalogForViewerHidesAdminOnlyTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.ws.Catalog()
	shared, err := cat.Create(ctx, admin, "Shared", "#28a745", true)
	if err != nil {
		t.Fatalf("create shared: %v", err)
	}
	internal, err := cat.Create(ctx, admin, "Internal", "#dc3545", false)
	if err != nil {
		t.Fatalf("create internal: %v", err)
	}
	shot := domain.Screenshot{ID: 1, TagIDs: []int64{shared.ID, internal.ID, 424242}}
	if got := cat.ForViewer(domain.RoleAdmin, shot).TagIDs; len(got) != 2 {
		t.Fatalf("admin should keep both known tags, got %v", got)
	}
	got := cat.ForViewer(domain.RoleClient, shot).TagIDs
	if len(got) != 1 || got[0] != shared.ID {
		t.Fatalf("client should keep only the shared tag, got %v", got)
	}
	if len(shot.TagIDs) != 3 {
		t.Fatalf("input screenshot must not be modified")
	}
}
