package server

import (
	"net/http"
	"strconv"
	"strings"

	"shotreview/pkg/domain"
	"shotreview/pkg/gallery"
)

type createTagRequest struct {
	Name         string `json:"name"`
	Color        string `json:"color"`
	ClientCanUse bool   `json:"clientCanUse"`
}

type updateTagRequest struct {
	ClientCanUse *bool `json:"clientCanUse"`
}

type tagResponse struct {
	domain.Tag
	TextColor string `json:"textColor"`
}

func toTagResponse(t domain.Tag) tagResponse {
	return tagResponse{Tag: t, TextColor: gallery.TextColor(t.Color)}
}

// /api/tags
func (s *Server) handleTags(w http.ResponseWriter, r *http.Request, user domain.User) {
	catalog := s.app.Workspace().Catalog()
	switch r.Method {
	case http.MethodGet:
		tags := catalog.List(user)
		items := make([]tagResponse, 0, len(tags))
		for _, t := range tags {
			items = append(items, toTagResponse(t))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	case http.MethodPost:
		var req createTagRequest
		if !decodeJSON(w, r, &req, maxJSONBytes) {
			return
		}
		tag, err := catalog.Create(r.Context(), user, req.Name, req.Color, req.ClientCanUse)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toTagResponse(tag))
	default:
		methodNotAllowed(w)
	}
}

// /api/tags/{id}
func (s *Server) handleTagByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/tags/"), "/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		notFound(w, "tag not found")
		return
	}
	ws := s.app.Workspace()
	switch r.Method {
	case http.MethodDelete:
		if err := ws.DeleteTag(r.Context(), user, id); err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	case http.MethodPatch:
		var req updateTagRequest
		if !decodeJSON(w, r, &req, maxJSONBytes) {
			return
		}
		if req.ClientCanUse == nil {
			writeError(w, http.StatusBadRequest, "clientCanUse is required")
			return
		}
		tag, err := ws.Catalog().SetClientVisible(r.Context(), user, id, *req.ClientCanUse)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toTagResponse(tag))
	default:
		methodNotAllowed(w)
	}
}
