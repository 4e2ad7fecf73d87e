package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shotreview/internal/ratelimit"
	"shotreview/internal/usertoken"
	"shotreview/internal/util"
	"shotreview/pkg/annotation"
	"shotreview/pkg/capture"
	"shotreview/pkg/domain"
	"shotreview/pkg/storage"
	"shotreview/services/review/internal/app"
)

const (
	defaultMaxUploadBytes = 10 * 1024 * 1024
	defaultMaxSurfaceSize = 8192
	maxJSONBytes          = 1 << 20
	rateWindow            = time.Minute
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                       *app.App
	MaxUploadBytes            int64
	TrustedProxyCIDRs         []string
	RedisAddr                 string
	RedisPassword             string
	CaptureRateLimitPerMinute int
	UploadRateLimitPerMinute  int
	// MaxSurfaceSize bounds surface and frame width and height in pixels.
	MaxSurfaceSize int
	// DOMAllowHosts limits DOM region URLs to these hosts and subdomains.
	DOMAllowHosts []string
	// DOMAllowPrivate lets DOM region URLs target private addresses.
	DOMAllowPrivate bool
}

// Server exposes the blob proxy and the annotation API.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	maxUploadBytes int64
	maxSurface     int
	domGuard       *util.URLGuard
	trusted        *util.TrustedProxies
	captureLimiter ratelimit.Limiter
	uploadLimiter  ratelimit.Limiter
	closers        []io.Closer
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	maxSurface := cfg.MaxSurfaceSize
	if maxSurface <= 0 {
		maxSurface = defaultMaxSurfaceSize
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
		maxSurface:     maxSurface,
		domGuard:       &util.URLGuard{AllowHosts: cfg.DOMAllowHosts, AllowPrivate: cfg.DOMAllowPrivate},
		trusted:        trusted,
	}
	newLimiter := func(name string, limit int) (ratelimit.Limiter, error) {
		if limit <= 0 {
			return nil, nil
		}
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return ratelimit.NewMemoryLimiter(limit, rateWindow)
		}
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(ratelimit.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Prefix:   "shotreview:ratelimit:" + name,
			Limit:    limit,
			Window:   rateWindow,
		})
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		s.closers = append(s.closers, limiter)
		return limiter, nil
	}
	if s.captureLimiter, err = newLimiter("capture", cfg.CaptureRateLimitPerMinute); err != nil {
		return nil, err
	}
	if s.uploadLimiter, err = newLimiter("upload", cfg.UploadRateLimitPerMinute); err != nil {
		return nil, err
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("review", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

// Close releases the rate limiter connections.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", s.app.Metrics().Handler())
	if s.app.MemoryBlobs() != nil {
		s.mux.HandleFunc(app.BlobPathPrefix+"/", s.handleBlob)
	}

	// blob proxy
	s.mux.Handle("/api/upload-screenshot", s.withUser(s.handleUpload))
	s.mux.Handle("/api/list-screenshots", s.withUser(s.handleList))
	s.mux.Handle("/api/delete-screenshot", s.withUser(s.handleDelete))

	s.mux.Handle("/api/me", s.withUser(s.handleMe))
	s.mux.Handle("/api/tags", s.withUser(s.handleTags))
	s.mux.Handle("/api/tags/", s.withUser(s.handleTagByID))
	s.mux.Handle("/api/jobs", s.withUser(s.handleJobs))
	s.mux.Handle("/api/jobs/", s.withUser(s.handleJob))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := usertoken.TokenFromRequest(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := s.app.Users().Resolve(token)
		if err != nil {
			util.LoggerFromContext(r.Context()).Info("user token rejected", "err", err)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, route string) bool {
	if limiter == nil {
		return true
	}
	d := limiter.Allow(r.Context(), ratelimit.Key(route, util.ClientIP(r, s.trusted)))
	if d.Allowed {
		return true
	}
	s.app.Metrics().RateLimited(route)
	retry := int(d.RetryAfter.Round(time.Second) / time.Second)
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, "too many requests")
	return false
}

// writeDomainError maps store, catalog and capture errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, capture.ErrSelectionTooSmall):
		writeErrorDetails(w, http.StatusBadRequest, "selection too small", err.Error())
	case errors.Is(err, annotation.ErrInvalid):
		writeErrorDetails(w, http.StatusBadRequest, "invalid request", err.Error())
	case errors.Is(err, annotation.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, annotation.ErrScreenshotNotFound):
		writeError(w, http.StatusNotFound, "screenshot not found")
	case errors.Is(err, annotation.ErrTagNotFound):
		writeError(w, http.StatusNotFound, "tag not found")
	case errors.Is(err, annotation.ErrNotFound):
		notFound(w, "not found")
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "err", err)
		writeErrorDetails(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request too large")
			return false
		}
		writeErrorDetails(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeErrorDetails(w, status, msg, "")
}

func writeErrorDetails(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Details:   details,
		Code:      errorCodeForReview(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}

func errorCodeForReview(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "forbidden":
		return "REVIEW_FORBIDDEN"
	case message == "screenshot not found":
		return "SCREENSHOT_NOT_FOUND"
	case message == "tag not found":
		return "TAG_NOT_FOUND"
	case message == "selection too small":
		return "CAPTURE_SELECTION_TOO_SMALL"
	case message == "surface too large":
		return "CAPTURE_SURFACE_TOO_LARGE"
	case message == "dom url not allowed":
		return "CAPTURE_DOM_URL_REJECTED"
	case message == "filename is required":
		return "UPLOAD_FILENAME_REQUIRED"
	case message == "url is required":
		return "DELETE_URL_REQUIRED"
	case message == "upload failed":
		return "UPLOAD_FAILED"
	case message == "failed to list screenshots":
		return "LIST_FAILED"
	case message == "delete failed":
		return "DELETE_FAILED"
	case message == "request too large":
		return "REQUEST_TOO_LARGE"
	case message == "too many requests":
		return "RATE_LIMITED"
	case message == "invalid json body":
		return "REVIEW_INVALID_REQUEST"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "REVIEW_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "REVIEW_FORBIDDEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "REQUEST_TOO_LARGE"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}

func isStorageInputError(err error) bool {
	return errors.Is(err, storage.ErrEmptyKey) || errors.Is(err, storage.ErrInvalidRef) || errors.Is(err, app.ErrFilenameRequired)
}
