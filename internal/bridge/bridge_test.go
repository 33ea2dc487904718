package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/JustinTDCT/SkipVault/internal/adapter"
	"github.com/JustinTDCT/SkipVault/internal/engine"
	"github.com/JustinTDCT/SkipVault/internal/lifecycle"
	"github.com/JustinTDCT/SkipVault/internal/logger"
	"github.com/JustinTDCT/SkipVault/internal/models"
	"github.com/JustinTDCT/SkipVault/internal/segments"
	"github.com/JustinTDCT/SkipVault/internal/settings"
)

const watchURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

// ──────────────────── Fakes ────────────────────

type fakeSource struct {
	mu    sync.Mutex
	segs  []models.Segment
	calls []string
}

func (f *fakeSource) FetchSegments(_ context.Context, _ models.Platform, id string, _ []models.Category) []models.Segment {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	return f.segs
}

func (f *fakeSource) fetched() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeContributor struct {
	mu     sync.Mutex
	ok     bool
	submit []string
	votes  []segments.VoteType
}

func (f *fakeContributor) SubmitSegment(_ context.Context, _ models.Platform, id string, _, _ float64, _ models.Category) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submit = append(f.submit, id)
	return f.ok
}

func (f *fakeContributor) VoteOnSegment(_ context.Context, _ models.Platform, _, _ string, vote segments.VoteType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.votes = append(f.votes, vote)
	return f.ok
}

type staticOptions struct{ o settings.Options }

func (s staticOptions) Options() settings.Options { return s.o }

// ──────────────────── Helpers ────────────────────

type fixture struct {
	hub     *Hub
	srv     *httptest.Server
	source  *fakeSource
	contrib *fakeContributor
}

func newFixture(t *testing.T, opts settings.Options, segs ...models.Segment) *fixture {
	t.Helper()
	f := &fixture{source: &fakeSource{segs: segs}, contrib: &fakeContributor{}}
	f.hub = NewHub(f.source, f.contrib, staticOptions{opts}, Config{
		Engine:     engine.Config{TickInterval: 10 * time.Millisecond},
		Controller: lifecycle.Config{PollInterval: 50 * time.Millisecond, PlayerWait: time.Second},
	}, logger.Discard())
	f.srv = httptest.NewServer(f.hub)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	msg, err := json.Marshal(Envelope{Event: event, Data: raw})
	require.NoError(t, err)
	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, msg))
}

// next reads until an event of kind arrives for which match (if any) holds.
func next(t *testing.T, conn *websocket.Conn, kind string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err, "waiting for %s", kind)
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Event == kind && (match == nil || match(env.Data)) {
			return env.Data
		}
	}
}

func playing(at float64) StateData {
	return StateData{
		Location: watchURL,
		Video:    &adapter.MediaState{CurrentTime: at, Duration: 100, Volume: 1},
	}
}

func notifyKind(kind adapter.NotifyKind) func(json.RawMessage) bool {
	return func(raw json.RawMessage) bool {
		var n adapter.NotifyData
		return json.Unmarshal(raw, &n) == nil && n.Kind == string(kind)
	}
}

// ──────────────────── Session ────────────────────

func TestSession_ConfiguresAndSkips(t *testing.T) {
	f := newFixture(t, settings.DefaultOptions(),
		models.Segment{ID: "s1", Start: 4, End: 10, Category: models.CategorySponsor})
	conn := f.dial(t)

	send(t, conn, EventState, playing(5))

	var cfg ConfigureData
	require.NoError(t, json.Unmarshal(next(t, conn, adapter.CmdConfigure, nil), &cfg))
	assert.Equal(t, models.PlatformYouTube, cfg.Platform)
	assert.Equal(t, "video.html5-main-video", cfg.Selectors.Video)

	var seek adapter.SeekData
	require.NoError(t, json.Unmarshal(next(t, conn, adapter.CmdSeek, nil), &seek))
	assert.Equal(t, 10.0, seek.Time)
}

func TestSession_UnsupportedPageWaits(t *testing.T) {
	f := newFixture(t, settings.DefaultOptions())
	conn := f.dial(t)

	send(t, conn, EventState, StateData{Location: "https://example.com/"})
	send(t, conn, EventState, playing(0))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, adapter.CmdConfigure, env.Event, "nothing is sent for the unsupported page")
}

func TestSession_PromptAnswered(t *testing.T) {
	opts := settings.DefaultOptions()
	opts.AutoSkip = false
	f := newFixture(t, opts, models.Segment{ID: "s1", Start: 4, End: 10, Category: models.CategorySponsor})
	conn := f.dial(t)

	send(t, conn, EventState, playing(5))

	var p adapter.PromptData
	require.NoError(t, json.Unmarshal(next(t, conn, adapter.CmdPrompt, nil), &p))
	assert.Equal(t, "sponsor", p.Category)

	send(t, conn, EventPromptAnswer, PromptAnswerData{ID: p.ID, Accept: true})
	var seek adapter.SeekData
	require.NoError(t, json.Unmarshal(next(t, conn, adapter.CmdSeek, nil), &seek))
	assert.Equal(t, 10.0, seek.Time)
}

func TestSession_SubmitFailureNotifies(t *testing.T) {
	f := newFixture(t, settings.DefaultOptions())
	conn := f.dial(t)
	send(t, conn, EventState, playing(0))
	next(t, conn, adapter.CmdConfigure, nil)
	require.Eventually(t, func() bool { return f.source.fetched() == 1 }, 2*time.Second, 5*time.Millisecond)

	send(t, conn, EventSubmit, SubmitData{Start: 1, End: 2, Category: models.CategorySponsor})

	var n adapter.NotifyData
	require.NoError(t, json.Unmarshal(next(t, conn, adapter.CmdNotify, notifyKind(adapter.NotifyError)), &n))
	assert.Equal(t, "Submission failed", n.Message)
	f.contrib.mu.Lock()
	assert.Equal(t, []string{"dQw4w9WgXcQ"}, f.contrib.submit)
	f.contrib.mu.Unlock()
}

func TestSession_VoteRecorded(t *testing.T) {
	f := newFixture(t, settings.DefaultOptions())
	f.contrib.ok = true
	conn := f.dial(t)
	send(t, conn, EventState, playing(0))
	next(t, conn, adapter.CmdConfigure, nil)
	require.Eventually(t, func() bool { return f.source.fetched() == 1 }, 2*time.Second, 5*time.Millisecond)

	send(t, conn, EventVote, VoteData{SegmentID: "abc", Vote: "up"})

	var n adapter.NotifyData
	require.NoError(t, json.Unmarshal(next(t, conn, adapter.CmdNotify, notifyKind(adapter.NotifySuccess)), &n))
	assert.Equal(t, "Vote recorded", n.Message)
	f.contrib.mu.Lock()
	assert.Equal(t, []segments.VoteType{segments.VoteUp}, f.contrib.votes)
	f.contrib.mu.Unlock()
}

func TestSession_NavigateRefetches(t *testing.T) {
	f := newFixture(t, settings.DefaultOptions())
	conn := f.dial(t)
	send(t, conn, EventState, playing(0))
	require.Eventually(t, func() bool { return f.source.fetched() == 1 }, 2*time.Second, 5*time.Millisecond)

	send(t, conn, EventNavigate, NavigateData{Source: "push", Location: "https://www.youtube.com/watch?v=aaaaaaaaaaa"})
	require.Eventually(t, func() bool { return f.source.fetched() == 2 }, 2*time.Second, 5*time.Millisecond)
	f.source.mu.Lock()
	assert.Equal(t, "aaaaaaaaaaa", f.source.calls[1])
	f.source.mu.Unlock()
}

func TestHub_SessionCount(t *testing.T) {
	f := newFixture(t, settings.DefaultOptions())
	conn := f.dial(t)
	require.Eventually(t, func() bool { return f.hub.SessionCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "bye")
	assert.Eventually(t, func() bool { return f.hub.SessionCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

// ──────────────────── Page ────────────────────

func TestPage_ApplyNotifiesChangedSelectors(t *testing.T) {
	p := NewPage(func(adapter.Command) error { return nil })
	var ads, other int
	cancel := p.OnChange(".ads", func() { ads++ })
	p.OnChange(".other", func() { other++ })

	p.Apply(StateData{Location: watchURL, Rects: map[string][]adapter.Rect{".ads": {{Left: 1, Width: 2}}}})
	p.Apply(StateData{Rects: map[string][]adapter.Rect{".ads": {{Left: 1, Width: 2}}}})
	assert.Equal(t, 1, ads, "unchanged rects stay quiet")
	assert.Equal(t, 0, other)
	assert.Equal(t, watchURL, p.Location(), "empty location keeps the old one")
	assert.True(t, p.Exists(".ads"))

	cancel()
	p.Apply(StateData{})
	assert.Equal(t, 1, ads)
	assert.False(t, p.Exists(".ads"))
	_, ok := p.Video("")
	assert.False(t, ok)
}

func TestPage_SendMirrorsPlaybackChanges(t *testing.T) {
	fail := false
	p := NewPage(func(adapter.Command) error {
		if fail {
			return ErrSlowPage
		}
		return nil
	})
	p.Apply(playing(5))

	require.NoError(t, p.Send(adapter.Command{Type: adapter.CmdSeek, Data: adapter.SeekData{Time: 30}}))
	require.NoError(t, p.Send(adapter.Command{Type: adapter.CmdVolume, Data: adapter.VolumeData{Volume: 0}}))
	m, _ := p.Video("")
	assert.Equal(t, 30.0, m.CurrentTime)
	assert.Equal(t, 0.0, m.Volume)

	fail = true
	err := p.Send(adapter.Command{Type: adapter.CmdSeek, Data: adapter.SeekData{Time: 90}})
	assert.True(t, errors.Is(err, ErrSlowPage))
	m, _ = p.Video("")
	assert.Equal(t, 30.0, m.CurrentTime)
}

func TestParseVote(t *testing.T) {
	for in, want := range map[string]segments.VoteType{
		"up":   segments.VoteUp,
		"down": segments.VoteDown,
		"undo": segments.VoteUndo,
	} {
		got, err := parseVote(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := parseVote("sideways")
	assert.Error(t, err)
}
