package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/SkipVault/internal/adapter"
	"github.com/JustinTDCT/SkipVault/internal/adapter/fakehost"
	"github.com/JustinTDCT/SkipVault/internal/logger"
)

type fakeEngine struct {
	mu        sync.Mutex
	gen       uint64
	activated []string
	resets    int
	teardowns int
}

func (f *fakeEngine) Activate(_ context.Context, id string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.activated = append(f.activated, id)
	return f.gen
}

func (f *fakeEngine) Reset() {
	f.mu.Lock()
	f.gen++
	f.resets++
	f.mu.Unlock()
}

func (f *fakeEngine) Teardown() {
	f.mu.Lock()
	f.gen++
	f.teardowns++
	f.mu.Unlock()
}

func (f *fakeEngine) snapshot() (activated []string, resets, teardowns int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.activated...), f.resets, f.teardowns
}

type fakeWatcher struct {
	mu     sync.Mutex
	starts []uint64
	stops  int
}

func (w *fakeWatcher) Start(gen uint64) {
	w.mu.Lock()
	w.starts = append(w.starts, gen)
	w.mu.Unlock()
}

func (w *fakeWatcher) Stop() {
	w.mu.Lock()
	w.stops++
	w.mu.Unlock()
}

func (w *fakeWatcher) stopCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stops
}

func (w *fakeWatcher) started() []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]uint64(nil), w.starts...)
}

const (
	videoA = "https://www.youtube.com/watch?v=aaaaaaaaaaa"
	videoB = "https://www.youtube.com/watch?v=bbbbbbbbbbb"
)

func newController(t *testing.T, location string, cfg Config) (*Controller, *fakehost.Host, *fakeEngine, *fakeWatcher) {
	t.Helper()
	host := fakehost.New(location)
	host.SetVideo(adapter.MediaState{Duration: 100})
	eng := &fakeEngine{}
	w := &fakeWatcher{}
	if cfg.PlayerWait == 0 {
		cfg.PlayerWait = time.Second
	}
	c := New(adapter.NewYouTube(host), eng, w, cfg, logger.Discard())
	return c, host, eng, w
}

func TestCheck_ActivatesContent(t *testing.T) {
	c, _, eng, w := newController(t, videoA, Config{})

	c.Check(context.Background(), SourcePush)

	activated, resets, _ := eng.snapshot()
	assert.Equal(t, []string{"aaaaaaaaaaa"}, activated)
	assert.Equal(t, 1, resets)
	assert.Equal(t, []uint64{2}, w.started())
	assert.Equal(t, "aaaaaaaaaaa", c.Current())
}

func TestCheck_SameContentIgnored(t *testing.T) {
	c, host, eng, _ := newController(t, videoA, Config{})
	ctx := context.Background()
	c.Check(ctx, SourcePoll)

	host.SetLocation(videoA + "&t=30s#comments")
	c.Check(ctx, SourceReplace)

	activated, resets, _ := eng.snapshot()
	assert.Len(t, activated, 1)
	assert.Equal(t, 1, resets)
}

func TestCheck_ContentChangeRebuilds(t *testing.T) {
	c, host, eng, w := newController(t, videoA, Config{})
	ctx := context.Background()
	c.Check(ctx, SourcePoll)

	host.SetLocation(videoB)
	c.Check(ctx, SourcePop)

	activated, resets, teardowns := eng.snapshot()
	assert.Equal(t, []string{"aaaaaaaaaaa", "bbbbbbbbbbb"}, activated)
	assert.Equal(t, 2, resets)
	assert.Zero(t, teardowns)
	assert.Len(t, w.started(), 2)
	assert.Equal(t, 2, w.stopCount())
}

func TestCheck_NonContentPageTearsDown(t *testing.T) {
	c, host, eng, w := newController(t, videoA, Config{})
	ctx := context.Background()
	c.Check(ctx, SourcePoll)

	host.SetLocation("https://www.youtube.com/feed/subscriptions")
	c.Check(ctx, SourcePush)

	_, _, teardowns := eng.snapshot()
	assert.Equal(t, 1, teardowns)
	assert.Equal(t, 2, w.stopCount())
	assert.Len(t, host.Of(adapter.CmdClearMarkers), 1, "adapter released")
	assert.Equal(t, "", c.Current())
}

func TestCheck_MissingPlayerAborts(t *testing.T) {
	c, host, eng, w := newController(t, videoA, Config{PlayerWait: 50 * time.Millisecond})
	host.RemoveVideo()

	c.Check(context.Background(), SourcePoll)

	activated, resets, _ := eng.snapshot()
	assert.Empty(t, activated)
	assert.Equal(t, 1, resets)
	assert.Empty(t, w.started())
}

func TestCheck_NativeDisabled(t *testing.T) {
	c, _, eng, w := newController(t, videoA, Config{NativeEnabled: func() bool { return false }})
	c.Check(context.Background(), SourcePoll)

	activated, _, _ := eng.snapshot()
	assert.Len(t, activated, 1)
	assert.Empty(t, w.started())
}

func TestController_NavigationSignal(t *testing.T) {
	c, host, eng, _ := newController(t, videoA, Config{PollInterval: time.Hour})
	c.Start(context.Background())
	defer c.Stop()

	require.Eventually(t, func() bool { a, _, _ := eng.snapshot(); return len(a) == 1 }, time.Second, 5*time.Millisecond)

	host.SetLocation(videoB)
	c.Navigated(SourcePush)
	assert.Eventually(t, func() bool { a, _, _ := eng.snapshot(); return len(a) == 2 }, time.Second, 5*time.Millisecond)
}

func TestController_PollingDetectsChange(t *testing.T) {
	c, host, eng, _ := newController(t, videoA, Config{PollInterval: 10 * time.Millisecond})
	c.Start(context.Background())
	defer c.Stop()

	host.SetLocation(videoB)
	assert.Eventually(t, func() bool {
		a, _, _ := eng.snapshot()
		return len(a) > 0 && a[len(a)-1] == "bbbbbbbbbbb"
	}, time.Second, 5*time.Millisecond)
}

func TestController_StopTearsDown(t *testing.T) {
	c, host, eng, _ := newController(t, videoA, Config{PollInterval: time.Hour})
	c.Start(context.Background())
	require.Eventually(t, func() bool { a, _, _ := eng.snapshot(); return len(a) == 1 }, time.Second, 5*time.Millisecond)

	c.Stop()
	c.Stop()

	_, _, teardowns := eng.snapshot()
	assert.Equal(t, 1, teardowns)
	assert.Len(t, host.Of(adapter.CmdClearMarkers), 1)
}
