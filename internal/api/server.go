package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JustinTDCT/SkipVault/internal/httputil"
	"github.com/JustinTDCT/SkipVault/internal/logger"
	"github.com/JustinTDCT/SkipVault/internal/models"
	"github.com/JustinTDCT/SkipVault/internal/segments"
)

// SegmentLookup is the segment client as the debug routes use it.
type SegmentLookup interface {
	FetchSegments(ctx context.Context, platform models.Platform, contentID string, categories []models.Category) []models.Segment
	Invalidate(ctx context.Context, platform models.Platform, contentID string)
}

type BrandingLookup interface {
	FetchBranding(ctx context.Context, contentID string) *segments.Branding
}

// Bridge serves page connections on /ws.
type Bridge interface {
	http.Handler
	SessionCount() int
}

type Deps struct {
	Segments SegmentLookup
	Branding BrandingLookup
	Bridge   Bridge
	// Settings is mounted at /api/v1/settings when set.
	Settings chi.Router
	Version  string
}

type Server struct {
	deps    Deps
	router  chi.Router
	started time.Time
	log     *slog.Logger
}

func NewServer(deps Deps, log *slog.Logger) *Server {
	s := &Server{
		deps:    deps,
		router:  chi.NewRouter(),
		started: time.Now(),
		log:     logger.Component(log, "api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(securityHeadersMiddleware, corsMiddleware, s.recoverMiddleware)

	r.Get("/api/v1/health", s.handleHealth)
	if s.deps.Bridge != nil {
		r.Handle("/ws", s.deps.Bridge)
	}
	if s.deps.Segments != nil {
		r.Get("/api/v1/segments/{platform}/{videoID}", s.handleGetSegments)
		r.Delete("/api/v1/segments/{platform}/{videoID}", s.handleInvalidateSegments)
	}
	if s.deps.Branding != nil {
		r.Get("/api/v1/branding/{videoID}", s.handleGetBranding)
	}
	if s.deps.Settings != nil {
		r.Mount("/api/v1/settings", s.deps.Settings)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ──────────────────── Middleware ────────────────────

// securityHeadersMiddleware adds standard security headers to all responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware echoes the caller's origin. The page shim and the options
// page both run on foreign origins.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.log.Error("handler panic", "path", r.URL.Path, "panic", v)
				httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
