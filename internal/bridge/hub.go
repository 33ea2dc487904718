package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"nhooyr.io/websocket"

	"github.com/JustinTDCT/SkipVault/internal/engine"
	"github.com/JustinTDCT/SkipVault/internal/lifecycle"
	"github.com/JustinTDCT/SkipVault/internal/logger"
	"github.com/JustinTDCT/SkipVault/internal/models"
	"github.com/JustinTDCT/SkipVault/internal/nativead"
	"github.com/JustinTDCT/SkipVault/internal/segments"
)

// Contributor accepts the viewer's own submissions and votes.
type Contributor interface {
	SubmitSegment(ctx context.Context, platform models.Platform, contentID string, start, end float64, category models.Category) bool
	VoteOnSegment(ctx context.Context, platform models.Platform, contentID, segmentID string, vote segments.VoteType) bool
}

type Config struct {
	Engine     engine.Config
	Watcher    nativead.Config
	Controller lifecycle.Config
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int
}

// ──────────────────── WebSocket Hub ────────────────────

type Hub struct {
	source      segments.Source
	contributor Contributor
	options     engine.OptionsSource
	cfg         Config
	log         *slog.Logger

	mu       sync.RWMutex
	sessions map[*Session]bool
}

func NewHub(source segments.Source, contributor Contributor, options engine.OptionsSource, cfg Config, log *slog.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	nativeOn := func() bool { return options.Options().DetectNativeAds }
	if cfg.Watcher.Enabled == nil {
		cfg.Watcher.Enabled = nativeOn
	}
	if cfg.Controller.NativeEnabled == nil {
		cfg.Controller.NativeEnabled = nativeOn
	}
	return &Hub{
		source:      source,
		contributor: contributor,
		options:     options,
		cfg:         cfg,
		log:         logger.Component(log, "bridge"),
		sessions:    make(map[*Session]bool),
	}
}

func (h *Hub) addSession(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = true
}

func (h *Hub) removeSession(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s)
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close drops every connection; each session tears itself down as its read
// loop ends.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions {
		s.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// ──────────────────── WebSocket Handler ────────────────────

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The shim runs on the video site's origin.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Warn("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := newSession(h, conn)
	h.addSession(s)
	s.log.Info("page connected", "remote", r.RemoteAddr)

	go s.writeLoop(ctx)
	s.readLoop(ctx)

	cancel()
	s.close()
	h.removeSession(s)
	s.log.Info("page disconnected")
}
