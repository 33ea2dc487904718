package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/JustinTDCT/SkipVault/internal/adapter"
	"github.com/JustinTDCT/SkipVault/internal/engine"
	"github.com/JustinTDCT/SkipVault/internal/lifecycle"
	"github.com/JustinTDCT/SkipVault/internal/nativead"
)

var (
	ErrClosed   = errors.New("session closed")
	ErrSlowPage = errors.New("page not draining messages")
)

const feedbackDuration = 2 * time.Second

// Session serves one connected page: it owns the mirror and, once the page
// reports a supported location, the adapter, engine, watcher and controller.
type Session struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	page *Page
	log  *slog.Logger

	sendMu sync.Mutex
	send   chan []byte
	closed bool

	// Set once by the read loop.
	player     adapter.Adapter
	engine     *engine.Engine
	controller *lifecycle.Controller

	wg sync.WaitGroup
}

func newSession(h *Hub, conn *websocket.Conn) *Session {
	s := &Session{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
	}
	s.log = h.log.With("session", s.id)
	s.page = NewPage(s.enqueue)
	return s
}

// enqueue queues cmd for the writer without blocking; a full queue drops it.
func (s *Session) enqueue(cmd adapter.Command) error {
	msg, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.send <- msg:
		return nil
	default:
		return ErrSlowPage
	}
}

func (s *Session) writeLoop(ctx context.Context) {
	defer s.conn.Close(websocket.StatusNormalClosure, "")
	for msg := range s.send {
		if err := s.conn.Write(ctx, websocket.MessageText, msg); err != nil {
			return
		}
	}
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Debug("dropping malformed message", "error", err)
			continue
		}
		s.dispatch(ctx, env)
	}
}

// close stops everything the session started. Commands sent during
// teardown are discarded.
func (s *Session) close() {
	if s.controller != nil {
		s.controller.Stop()
	}
	s.wg.Wait()

	s.sendMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
	s.sendMu.Unlock()
}

func (s *Session) dispatch(ctx context.Context, env Envelope) {
	switch env.Event {
	case EventState:
		var st StateData
		if !s.decode(env, &st) {
			return
		}
		s.page.Apply(st)
		if s.player == nil {
			s.attach(ctx)
		}

	case EventNavigate:
		var nav NavigateData
		if !s.decode(env, &nav) {
			return
		}
		if nav.Location != "" {
			s.page.SetLocation(nav.Location)
		}
		if s.player == nil {
			s.attach(ctx)
			return
		}
		s.controller.Navigated(navigationSource(nav.Source))

	case EventPromptAnswer:
		var ans PromptAnswerData
		if !s.decode(env, &ans) {
			return
		}
		if r, ok := s.player.(adapter.PromptResponder); ok {
			r.AnswerPrompt(ans.ID, ans.Accept)
		}

	case EventSubmit:
		var sub SubmitData
		if !s.decode(env, &sub) {
			return
		}
		player, id := s.player, s.contentID()
		s.background(ctx, func(ctx context.Context) { s.submit(ctx, player, id, sub) })

	case EventVote:
		var v VoteData
		if !s.decode(env, &v) {
			return
		}
		player, id := s.player, s.contentID()
		s.background(ctx, func(ctx context.Context) { s.vote(ctx, player, id, v) })

	default:
		s.log.Debug("unknown event", "event", env.Event)
	}
}

func (s *Session) decode(env Envelope, dst any) bool {
	if err := json.Unmarshal(env.Data, dst); err != nil {
		s.log.Debug("bad payload", "event", env.Event, "error", err)
		return false
	}
	return true
}

func navigationSource(src string) string {
	switch src {
	case lifecycle.SourcePush, lifecycle.SourceReplace, lifecycle.SourcePop:
		return src
	}
	return lifecycle.SourcePoll
}

// attach picks the adapter for the page's location. Pages on unsupported
// sites stay connected and are retried on their next report.
func (s *Session) attach(ctx context.Context) {
	player, err := adapter.New(s.page)
	if err != nil {
		s.log.Debug("no adapter for page", "location", s.page.Location(), "error", err)
		return
	}
	s.player = player

	if err := s.page.Send(adapter.Command{Type: adapter.CmdConfigure, Data: ConfigureData{
		Platform:  player.Platform(),
		Selectors: player.Selectors(),
	}}); err != nil {
		s.log.Warn("configure failed", "error", err)
	}

	h := s.hub
	s.engine = engine.New(player, h.source, h.options, h.cfg.Engine, s.log)
	watcher := nativead.New(player, s.engine, h.cfg.Watcher, s.log)
	s.controller = lifecycle.New(player, s.engine, watcher, h.cfg.Controller, s.log)
	s.controller.Start(ctx)
}

func (s *Session) background(ctx context.Context, fn func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}

// contentID is the item the controller is serving, "" before attach or off
// content pages.
func (s *Session) contentID() string {
	if s.controller == nil {
		return ""
	}
	return s.controller.Current()
}

func (s *Session) submit(ctx context.Context, player adapter.Adapter, id string, sub SubmitData) {
	if player == nil {
		return
	}
	if id == "" || s.hub.contributor == nil {
		feedback(player, adapter.NotifyError, "Open a video to submit a segment")
		return
	}
	if !s.hub.contributor.SubmitSegment(ctx, player.Platform(), id, sub.Start, sub.End, sub.Category) {
		feedback(player, adapter.NotifyError, "Submission failed")
		return
	}
	s.log.Info("segment submitted", "content_id", id, "category", sub.Category)
	feedback(player, adapter.NotifySuccess, "Segment submitted")
}

func (s *Session) vote(ctx context.Context, player adapter.Adapter, id string, v VoteData) {
	if player == nil {
		return
	}
	vote, err := parseVote(v.Vote)
	if err != nil {
		s.log.Debug("bad vote", "error", err)
		feedback(player, adapter.NotifyError, "Vote failed")
		return
	}
	if id == "" || s.hub.contributor == nil ||
		!s.hub.contributor.VoteOnSegment(ctx, player.Platform(), id, v.SegmentID, vote) {
		feedback(player, adapter.NotifyError, "Vote failed")
		return
	}
	feedback(player, adapter.NotifySuccess, "Vote recorded")
}

// feedback reports the outcome of a viewer action, regardless of the
// notification setting.
func feedback(player adapter.Adapter, kind adapter.NotifyKind, msg string) {
	player.ShowNotification(msg, adapter.NotifyOptions{Kind: kind, Duration: feedbackDuration})
}
