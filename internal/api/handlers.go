package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JustinTDCT/SkipVault/internal/httputil"
	"github.com/JustinTDCT/SkipVault/internal/models"
)

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Sessions int    `json:"sessions"`
	Uptime   string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: s.deps.Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if s.deps.Bridge != nil {
		resp.Sessions = s.deps.Bridge.SessionCount()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// ──────────────────── Segments ────────────────────

func platformParam(w http.ResponseWriter, r *http.Request) (models.Platform, string, bool) {
	p, ok := models.ParsePlatform(chi.URLParam(r, "platform"))
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_PLATFORM", "unsupported platform")
		return "", "", false
	}
	id := chi.URLParam(r, "videoID")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "MISSING_PARAM", "video id required")
		return "", "", false
	}
	return p, id, true
}

// handleGetSegments returns what the engine would load for a video. An
// optional categories=a,b narrows the request; the default is every
// community category.
func (s *Server) handleGetSegments(w http.ResponseWriter, r *http.Request) {
	platform, id, ok := platformParam(w, r)
	if !ok {
		return
	}
	cats := models.RemoteCategories()
	if raw := r.URL.Query().Get("categories"); raw != "" {
		cats = models.ParseCategories(raw)
		if len(cats) == 0 {
			httputil.WriteError(w, http.StatusBadRequest, "INVALID_CATEGORIES", "no known categories in request")
			return
		}
	}
	segs := s.deps.Segments.FetchSegments(r.Context(), platform, id, cats)
	if segs == nil {
		segs = []models.Segment{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"platform": platform,
		"video_id": id,
		"segments": segs,
	})
}

func (s *Server) handleInvalidateSegments(w http.ResponseWriter, r *http.Request) {
	platform, id, ok := platformParam(w, r)
	if !ok {
		return
	}
	s.deps.Segments.Invalidate(r.Context(), platform, id)
	s.log.Info("segment cache invalidated", "platform", platform, "video_id", id)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"invalidated": id})
}

// ──────────────────── Branding ────────────────────

func (s *Server) handleGetBranding(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "videoID")
	b := s.deps.Branding.FetchBranding(r.Context(), id)
	if b == nil {
		httputil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "no branding for video")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}
