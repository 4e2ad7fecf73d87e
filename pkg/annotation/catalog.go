package annotation

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"shotreview/pkg/cache"
	"shotreview/pkg/domain"
	"shotreview/pkg/permission"
)

// MaxTagNameLength bounds tag names after trimming.
const MaxTagNameLength = 20

// DefaultTagColor is used when a tag is created without a color.
const DefaultTagColor = "#007bff"

var colorPattern = regexp.MustCompile(`^#[0-9a-f]{6}$`)

type defaultTag struct {
	name          string
	color         string
	clientVisible bool
}

var defaultTags = []defaultTag{
	{"Client approval", "#28a745", true},
	{"Needs Review", "#ffc107", true},
	{"Admin Approved", "#007bff", false},
	{"Rejected", "#dc3545", false},
	{"Feedback Required", "#17a2b8", false},
}

// Catalog is the process-wide tag catalog.
type Catalog struct {
	mu       sync.RWMutex
	tags     []domain.Tag
	deps     Deps
	onDelete func(ctx context.Context, tagID int64)
}

// NewCatalog creates an empty catalog. Call Load to fill it.
func NewCatalog(deps Deps) *Catalog {
	return &Catalog{deps: deps.withDefaults()}
}

// Load reads the catalog from the local cache, then the record store, and
// seeds the default tags when neither has one.
func (c *Catalog) Load(ctx context.Context) error {
	tags, source := c.loadTags(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(tags) == 0 {
		source = "defaults"
		tags = make([]domain.Tag, 0, len(defaultTags))
		for _, d := range defaultTags {
			id, at := c.deps.Clock.Next()
			tags = append(tags, domain.Tag{ID: id, Name: d.name, Color: d.color, ClientVisible: d.clientVisible, CreatedAt: at})
		}
		for _, t := range tags {
			c.saveRecord(ctx, t)
		}
	}
	for _, t := range tags {
		c.deps.Clock.Observe(t.ID)
	}
	c.tags = tags
	c.writeCache(ctx)
	c.deps.Logger.Info("tag catalog loaded", "source", source, "tags", len(tags))
	return nil
}

func (c *Catalog) loadTags(ctx context.Context) ([]domain.Tag, string) {
	if c.deps.Cache != nil {
		var tags []domain.Tag
		var ok bool
		err := c.deps.remote(ctx, "cache", func(ctx context.Context) error {
			var err error
			ok, err = cache.GetJSON(ctx, c.deps.Cache, tagsCacheKey, &tags)
			return err
		})
		if err == nil && ok && len(tags) > 0 {
			return tags, "cache"
		}
	}
	if c.deps.Records != nil {
		var tags []domain.Tag
		err := c.deps.remote(ctx, "records", func(ctx context.Context) error {
			var err error
			tags, err = c.deps.Records.ListTags(ctx)
			return err
		})
		if err == nil && len(tags) > 0 {
			return tags, "records"
		}
	}
	return nil, ""
}

// Create adds a tag. Names are unique ignoring case.
func (c *Catalog) Create(ctx context.Context, actor domain.User, name, color string, clientVisible bool) (domain.Tag, error) {
	if !permission.Allows(actor.Role, permission.ManageTags) {
		return domain.Tag{}, ErrForbidden
	}
	name, err := validateTagName(name)
	if err != nil {
		return domain.Tag{}, err
	}
	color, err = normalizeColor(color)
	if err != nil {
		return domain.Tag{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tags {
		if strings.EqualFold(t.Name, name) {
			return domain.Tag{}, ErrDuplicateTag
		}
	}
	id, at := c.deps.Clock.Next()
	tag := domain.Tag{ID: id, Name: name, Color: color, ClientVisible: clientVisible, CreatedAt: at}
	c.tags = append(c.tags, tag)
	c.writeCache(ctx)
	c.saveRecord(ctx, tag)
	c.deps.Logger.Info("tag created", "tag_id", id, "name", name, "by", actor.Name)
	return tag, nil
}

// Delete removes a tag from the catalog and from every screenshot.
func (c *Catalog) Delete(ctx context.Context, actor domain.User, id int64) error {
	if !permission.Allows(actor.Role, permission.ManageTags) {
		return ErrForbidden
	}
	c.mu.Lock()
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return ErrTagNotFound
	}
	c.tags = append(c.tags[:idx], c.tags[idx+1:]...)
	c.writeCache(ctx)
	if c.deps.Records != nil {
		_ = c.deps.remote(ctx, "records", func(ctx context.Context) error {
			return c.deps.Records.DeleteTag(ctx, id)
		})
	}
	onDelete := c.onDelete
	c.mu.Unlock()

	c.deps.Logger.Info("tag deleted", "tag_id", id, "by", actor.Name)
	if onDelete != nil {
		onDelete(ctx, id)
	}
	return nil
}

// SetClientVisible changes whether clients may see and apply the tag.
func (c *Catalog) SetClientVisible(ctx context.Context, actor domain.User, id int64, visible bool) (domain.Tag, error) {
	if !permission.Allows(actor.Role, permission.ManageTags) {
		return domain.Tag{}, ErrForbidden
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexLocked(id)
	if idx < 0 {
		return domain.Tag{}, ErrTagNotFound
	}
	if c.tags[idx].ClientVisible == visible {
		return c.tags[idx], nil
	}
	c.tags[idx].ClientVisible = visible
	c.writeCache(ctx)
	c.saveRecord(ctx, c.tags[idx])
	return c.tags[idx], nil
}

// List returns the tags actor may see, in creation order.
func (c *Catalog) List(actor domain.User) []domain.Tag {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Tag, 0, len(c.tags))
	for _, t := range c.tags {
		if permission.CanSeeTag(actor.Role, t) {
			out = append(out, t)
		}
	}
	return out
}

// ForViewer returns shot with the tag ids role may not see removed.
func (c *Catalog) ForViewer(role domain.Role, shot domain.Screenshot) domain.Screenshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kept := make([]int64, 0, len(shot.TagIDs))
	for _, id := range shot.TagIDs {
		if idx := c.indexLocked(id); idx >= 0 && permission.CanSeeTag(role, c.tags[idx]) {
			kept = append(kept, id)
		}
	}
	shot.TagIDs = kept
	return shot
}

// All returns every tag regardless of role.
func (c *Catalog) All() []domain.Tag {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Tag(nil), c.tags...)
}

// Get looks a tag up by id.
func (c *Catalog) Get(id int64) (domain.Tag, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx := c.indexLocked(id); idx >= 0 {
		return c.tags[idx], true
	}
	return domain.Tag{}, false
}

func (c *Catalog) has(id int64) bool {
	_, ok := c.Get(id)
	return ok
}

func (c *Catalog) indexLocked(id int64) int {
	for i, t := range c.tags {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (c *Catalog) writeCache(ctx context.Context) {
	if c.deps.Cache == nil {
		return
	}
	snapshot := append([]domain.Tag(nil), c.tags...)
	_ = c.deps.remote(ctx, "cache", func(ctx context.Context) error {
		return cache.SetJSON(ctx, c.deps.Cache, tagsCacheKey, snapshot)
	})
}

func (c *Catalog) saveRecord(ctx context.Context, t domain.Tag) {
	if c.deps.Records == nil {
		return
	}
	_ = c.deps.remote(ctx, "records", func(ctx context.Context) error {
		return c.deps.Records.SaveTag(ctx, t)
	})
}

func validateTagName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyTagName
	}
	if utf8.RuneCountInString(name) > MaxTagNameLength {
		return "", ErrTagNameTooLong
	}
	return name, nil
}

func normalizeColor(color string) (string, error) {
	color = strings.ToLower(strings.TrimSpace(color))
	if color == "" {
		return DefaultTagColor, nil
	}
	if !colorPattern.MatchString(color) {
		return "", ErrInvalidColor
	}
	return color, nil
}
