package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"
	"strings"

	"shotreview/pkg/capture"
	"shotreview/pkg/domain"
	"shotreview/pkg/gallery"
	"shotreview/services/review/internal/app"
)

var (
	errBadImage      = errors.New("surface image must be a base64 png or jpeg")
	errImageTooLarge = errors.New("surface image too large")
)

type captureRequest struct {
	Surface struct {
		Width      int               `json:"width"`
		Height     int               `json:"height"`
		ModelLabel string            `json:"modelLabel"`
		Image      string            `json:"image"`
		DOM        capture.DOMRegion `json:"dom"`
	} `json:"surface"`
	Selection    capture.Selection `json:"selection"`
	ModelVersion string            `json:"modelVersion"`
}

type attemptResponse struct {
	Method domain.CaptureMethod `json:"method"`
	Error  string               `json:"error"`
}

type commentRequest struct {
	Text string `json:"text"`
}

type resolvedRequest struct {
	Resolved bool `json:"resolved"`
}

// /api/jobs: GET lists loaded jobs, POST allocates a new job id.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request, _ domain.User) {
	ws := s.app.Workspace()
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"jobs": ws.Jobs()})
	case http.MethodPost:
		writeJSON(w, http.StatusCreated, map[string]string{"jobId": ws.NewJobID()})
	default:
		methodNotAllowed(w)
	}
}

// /api/jobs/{job}/screenshots[/{id}[/comments[/{cid}]|/tags/{tagId}|/resolved]]
// /api/jobs/{job}/captures
// /api/jobs/{job}/gallery[/more]
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" {
		notFound(w, "not found")
		return
	}
	jobID := parts[0]
	switch parts[1] {
	case "captures":
		if len(parts) != 2 {
			notFound(w, "not found")
			return
		}
		s.handleCapture(w, r, user, jobID)
	case "gallery":
		s.handleGallery(w, r, user, jobID, parts[2:])
	case "screenshots":
		s.handleScreenshots(w, r, user, jobID, parts[2:])
	default:
		notFound(w, "not found")
	}
}

func (s *Server) handleScreenshots(w http.ResponseWriter, r *http.Request, user domain.User, jobID string, parts []string) {
	session, err := s.app.Session(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	catalog := s.app.Workspace().Catalog()
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			shots := session.List()
			for i := range shots {
				shots[i] = catalog.ForViewer(user.Role, shots[i])
			}
			writeJSON(w, http.StatusOK, map[string]any{"jobId": jobID, "screenshots": shots, "count": len(shots)})
		case http.MethodDelete:
			report, err := session.ClearAll(r.Context(), user)
			if err != nil {
				writeDomainError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "report": report})
		default:
			methodNotAllowed(w)
		}
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		notFound(w, "screenshot not found")
		return
	}
	ctx := r.Context()
	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			shot, ok := session.Get(id)
			if !ok {
				notFound(w, "screenshot not found")
				return
			}
			writeJSON(w, http.StatusOK, catalog.ForViewer(user.Role, shot))
		case http.MethodDelete:
			if err := session.Delete(ctx, user, id); err != nil {
				writeDomainError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		default:
			methodNotAllowed(w)
		}

	case parts[1] == "comments" && len(parts) == 2:
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var req commentRequest
		if !decodeJSON(w, r, &req, maxJSONBytes) {
			return
		}
		comment, err := session.AddComment(ctx, user, id, req.Text)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, comment)

	case parts[1] == "comments" && len(parts) == 3:
		if r.Method != http.MethodDelete {
			methodNotAllowed(w)
			return
		}
		commentID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			notFound(w, "not found")
			return
		}
		if err := session.DeleteComment(ctx, user, id, commentID); err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})

	case parts[1] == "tags" && len(parts) == 3:
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		tagID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			notFound(w, "tag not found")
			return
		}
		applied, err := session.ToggleTag(ctx, user, id, tagID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "applied": applied})

	case parts[1] == "resolved" && len(parts) == 2:
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		var req resolvedRequest
		if !decodeJSON(w, r, &req, maxJSONBytes) {
			return
		}
		if err := session.SetResolved(ctx, user, id, req.Resolved); err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "resolved": req.Resolved})

	default:
		notFound(w, "not found")
	}
}

// POST /api/jobs/{job}/captures
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request, user domain.User, jobID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.captureLimiter, "capture") {
		return
	}
	var req captureRequest
	if !decodeJSON(w, r, &req, s.maxUploadBytes*4/3+maxJSONBytes) {
		return
	}
	if req.Surface.Width <= 0 || req.Surface.Height <= 0 {
		writeError(w, http.StatusBadRequest, "surface width and height are required")
		return
	}
	if req.Surface.Width > s.maxSurface || req.Surface.Height > s.maxSurface {
		writeErrorDetails(w, http.StatusBadRequest, "surface too large",
			fmt.Sprintf("surface is %dx%d, maximum is %dx%d", req.Surface.Width, req.Surface.Height, s.maxSurface, s.maxSurface))
		return
	}
	if u := strings.TrimSpace(req.Surface.DOM.URL); u != "" {
		if err := s.domGuard.Check(r.Context(), u); err != nil {
			writeErrorDetails(w, http.StatusBadRequest, "dom url not allowed", err.Error())
			return
		}
	}
	surface := capture.Surface{
		Width:      req.Surface.Width,
		Height:     req.Surface.Height,
		DOM:        req.Surface.DOM,
		ModelLabel: req.Surface.ModelLabel,
	}
	if req.Surface.Image != "" {
		img, err := decodeSurfaceImage(req.Surface.Image, s.maxSurface)
		if err != nil {
			if errors.Is(err, errImageTooLarge) {
				writeErrorDetails(w, http.StatusBadRequest, "surface too large", err.Error())
				return
			}
			writeErrorDetails(w, http.StatusBadRequest, "invalid request", err.Error())
			return
		}
		surface.Pixels = capture.StaticBuffer{Image: img}
	}

	out, err := s.app.Capture(r.Context(), user, app.CaptureRequest{
		JobID:        jobID,
		Surface:      surface,
		Selection:    req.Selection,
		ModelVersion: req.ModelVersion,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	attempts := make([]attemptResponse, 0, len(out.Attempts))
	for _, a := range out.Attempts {
		attempts = append(attempts, attemptResponse{Method: a.Method, Error: a.Err.Error()})
	}
	resp := map[string]any{
		"success":    true,
		"screenshot": out.Screenshot,
		"method":     out.Screenshot.CaptureMethod,
		"rect":       out.Rect,
		"attempts":   attempts,
	}
	if out.Warning != "" {
		resp["warning"] = out.Warning
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GET /api/jobs/{job}/gallery, POST /api/jobs/{job}/gallery/more
// Both take the viewer's cursor as ?visible=&generation=.
func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request, user domain.User, jobID string, parts []string) {
	g, err := s.app.Gallery(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	cursor, err := galleryCursor(r)
	if err != nil {
		writeErrorDetails(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	switch {
	case len(parts) == 0:
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		writeGallery(w, g, g.Page(user.Role, cursor))
	case len(parts) == 1 && parts[0] == "more":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		writeGallery(w, g, g.ShowMore(user.Role, cursor))
	default:
		notFound(w, "not found")
	}
}

func galleryCursor(r *http.Request) (gallery.Cursor, error) {
	var c gallery.Cursor
	q := r.URL.Query()
	for name, dst := range map[string]*int{"visible": &c.Visible, "generation": &c.Generation} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return gallery.Cursor{}, fmt.Errorf("%s must be a non-negative integer", name)
		}
		*dst = v
	}
	return c, nil
}

func writeGallery(w http.ResponseWriter, g *gallery.Renderer, v gallery.View) {
	if v.Items == nil {
		v.Items = []gallery.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"view":    v,
		"stats":   g.Stats(),
		"columns": gallery.Columns,
	})
}

func decodeSurfaceImage(raw string, maxSide int) (image.Image, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "data:") {
		comma := strings.IndexByte(raw, ',')
		if comma < 0 || !strings.HasSuffix(raw[:comma], ";base64") {
			return nil, errBadImage
		}
		raw = raw[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, errBadImage
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxSide || cfg.Height > maxSide {
		return nil, fmt.Errorf("%w: %dx%d, maximum is %dx%d", errImageTooLarge, cfg.Width, cfg.Height, maxSide, maxSide)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadImage, err)
	}
	return img, nil
}
