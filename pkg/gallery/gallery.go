// Package gallery projects an annotation store into the paged gallery view.
package gallery

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"shotreview/pkg/domain"
	"shotreview/pkg/events"
	"shotreview/pkg/permission"
)

const (
	Rows     = 2
	Columns  = 4
	PageSize = Rows * Columns
)

// Source is the ordered screenshot list the gallery renders.
type Source interface {
	List() []domain.Screenshot
	Get(id int64) (domain.Screenshot, bool)
}

// TagLookup resolves tag ids to catalog entries.
type TagLookup interface {
	Get(id int64) (domain.Tag, bool)
}

// Subscriber registers event handlers for a job.
type Subscriber interface {
	Subscribe(jobID string, fn events.Handler) func()
}

// Chip is a tag as displayed on a gallery item.
type Chip struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	TextColor string `json:"textColor"`

	tag domain.Tag
}

// Item is one rendered gallery entry.
type Item struct {
	ID            int64     `json:"id"`
	ImageRef      string    `json:"url"`
	CreatedAt     time.Time `json:"createdAt"`
	CreatedBy     string    `json:"createdBy"`
	CreatedByRole string    `json:"createdByRole"`
	ModelVersion  string    `json:"modelVersion"`
	CommentCount  int       `json:"commentCount"`
	Tags          []Chip    `json:"tags"`
	IsResolved    bool      `json:"isResolved"`
	IsCloudStored bool      `json:"isCloudStored"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
}

// Cursor is one viewer's paging position. Generation is the render it was
// issued for; a cursor from an older render starts over on the first page.
type Cursor struct {
	Visible    int `json:"visible"`
	Generation int `json:"generation"`
}

// View is the visible part of the gallery.
type View struct {
	Items        []Item `json:"items"`
	Total        int    `json:"total"`
	Hidden       int    `json:"hidden"`
	ShowMoreText string `json:"showMoreText,omitempty"`
	Cursor       Cursor `json:"cursor"`
}

// Stats counts how the projection has been refreshed.
type Stats struct {
	Renders int `json:"renders"`
	Patches int `json:"patches"`
}

// Renderer holds the materialized item list of a job.
type Renderer struct {
	mu      sync.Mutex
	source  Source
	tags    TagLookup
	items   []Item
	stats   Stats
	unsub   func()
}

// New renders source once.
func New(source Source, tags TagLookup) *Renderer {
	r := &Renderer{source: source, tags: tags}
	r.Render()
	return r
}

// Attach subscribes r to the events of jobID.
func (r *Renderer) Attach(sub Subscriber, jobID string) {
	unsub := sub.Subscribe(jobID, r.Handle)
	r.mu.Lock()
	r.unsub = unsub
	r.mu.Unlock()
}

// Close detaches r from its subscriber.
func (r *Renderer) Close() {
	r.mu.Lock()
	unsub := r.unsub
	r.unsub = nil
	r.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Handle applies a store event: reorder re-renders, patch updates one item.
func (r *Renderer) Handle(e events.Event) {
	switch e.Kind {
	case events.KindPatch:
		r.Patch(e.ScreenshotID)
	default:
		r.Render()
	}
}

// Render re-materializes every item. Cursors issued before it collapse back
// to the first page.
func (r *Renderer) Render() {
	shots := r.source.List()
	items := make([]Item, len(shots))
	for i, s := range shots {
		items[i] = r.item(s)
	}
	r.mu.Lock()
	r.items = items
	r.stats.Renders++
	r.mu.Unlock()
}

// Patch replaces one item in place. An unknown id falls back to Render.
func (r *Renderer) Patch(id int64) {
	shot, ok := r.source.Get(id)
	if !ok {
		r.Render()
		return
	}
	item := r.item(shot)
	r.mu.Lock()
	for i := range r.items {
		if r.items[i].ID == id {
			r.items[i] = item
			r.stats.Patches++
			r.mu.Unlock()
			return
		}
	}
	r.mu.Unlock()
	r.Render()
}

// Page returns the items visible at c, with tag chips role may see.
func (r *Renderer) Page(role domain.Role, c Cursor) View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked(role, r.visibleLocked(c))
}

// ShowMore reveals the page after c.
func (r *Renderer) ShowMore(role domain.Role, c Cursor) View {
	r.mu.Lock()
	defer r.mu.Unlock()
	visible := r.visibleLocked(c)
	if visible < len(r.items) {
		visible += PageSize
	}
	return r.viewLocked(role, visible)
}

// Stats returns render and patch counts.
func (r *Renderer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Renderer) visibleLocked(c Cursor) int {
	if c.Generation != r.stats.Renders || c.Visible < PageSize {
		return PageSize
	}
	pages := (c.Visible + PageSize - 1) / PageSize
	last := max(1, (len(r.items)+PageSize-1)/PageSize)
	return min(pages, last) * PageSize
}

func (r *Renderer) viewLocked(role domain.Role, visible int) View {
	n := min(visible, len(r.items))
	v := View{
		Items:  make([]Item, n),
		Total:  len(r.items),
		Hidden: len(r.items) - n,
		Cursor: Cursor{Visible: visible, Generation: r.stats.Renders},
	}
	for i, item := range r.items[:n] {
		item.Tags = visibleChips(role, item.Tags)
		v.Items[i] = item
	}
	if v.Hidden > 0 {
		v.ShowMoreText = fmt.Sprintf("Show %d more screenshots", v.Hidden)
	}
	return v
}

func (r *Renderer) item(s domain.Screenshot) Item {
	chips := make([]Chip, 0, len(s.TagIDs))
	for _, id := range s.TagIDs {
		tag, ok := r.tags.Get(id)
		if !ok {
			continue
		}
		chips = append(chips, Chip{ID: tag.ID, Name: tag.Name, Color: tag.Color, TextColor: TextColor(tag.Color), tag: tag})
	}
	return Item{
		ID:            s.ID,
		ImageRef:      s.ImageRef,
		CreatedAt:     s.CreatedAt,
		CreatedBy:     s.CreatedBy,
		CreatedByRole: string(s.CreatedByRole),
		ModelVersion:  s.ModelVersion,
		CommentCount:  len(s.Comments),
		Tags:          chips,
		IsResolved:    s.IsResolved,
		IsCloudStored: s.IsCloudStored,
		Width:         s.Width,
		Height:        s.Height,
	}
}

func visibleChips(role domain.Role, chips []Chip) []Chip {
	out := make([]Chip, 0, len(chips))
	for _, c := range chips {
		if permission.CanSeeTag(role, c.tag) {
			out = append(out, c)
		}
	}
	return out
}

// TextColor picks black or white text for a #rrggbb background.
func TextColor(hex string) string {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return "#000000"
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return "#000000"
	}
	r := float64((v>>16)&0xff) / 255
	g := float64((v>>8)&0xff) / 255
	b := float64(v&0xff) / 255
	if 0.299*r+0.587*g+0.114*b > 0.5 {
		return "#000000"
	}
	return "#ffffff"
}
