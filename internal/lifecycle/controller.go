// Package lifecycle follows navigation on the host page and rebuilds the
// decision engine whenever the viewer moves to different content.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/JustinTDCT/SkipVault/internal/adapter"
	"github.com/JustinTDCT/SkipVault/internal/logger"
)

// Navigation sources reported by the page.
const (
	SourcePoll    = "poll"
	SourcePush    = "push"
	SourceReplace = "replace"
	SourcePop     = "pop"
	sourceInitial = "initial"
)

// Engine is the part of the decision engine the controller drives.
type Engine interface {
	Activate(ctx context.Context, contentID string) uint64
	Reset()
	Teardown()
}

// NativeWatcher is restarted for each content item.
type NativeWatcher interface {
	Start(gen uint64)
	Stop()
}

type Config struct {
	PollInterval time.Duration
	// PlayerWait bounds the search for the video element on each change.
	PlayerWait time.Duration
	// NativeEnabled gates the watcher; nil means on.
	NativeEnabled func() bool
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.PlayerWait <= 0 {
		c.PlayerWait = 10 * time.Second
	}
	return c
}

type Controller struct {
	player  adapter.Adapter
	engine  Engine
	watcher NativeWatcher
	cfg     Config
	log     *slog.Logger

	nav chan string

	mu      sync.Mutex
	current string

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// New builds a controller. watcher may be nil.
func New(player adapter.Adapter, engine Engine, watcher NativeWatcher, cfg Config, log *slog.Logger) *Controller {
	return &Controller{
		player:  player,
		engine:  engine,
		watcher: watcher,
		cfg:     cfg.withDefaults(),
		log:     logger.Component(log, "lifecycle"),
		nav:     make(chan string, 1),
	}
}

// Start evaluates the current location and then follows navigation until
// Stop or ctx ends.
func (c *Controller) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Navigated reports a programmatic navigation or a back/forward event.
func (c *Controller) Navigated(source string) {
	select {
	case c.nav <- source:
	default:
		// A check is already queued and will see the latest location.
	}
}

// Current returns the content id being served, "" when none.
func (c *Controller) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Stop ends navigation tracking and releases everything.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
			<-c.done
		}
		c.teardown()
		c.log.Debug("controller stopped")
	})
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)
	c.Check(ctx, sourceInitial)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx, SourcePoll)
		case src := <-c.nav:
			c.Check(ctx, src)
		}
	}
}

// Check compares the page's content id with the one being served and
// rebuilds on a genuine change. Query or fragment changes that keep the id
// are ignored.
func (c *Controller) Check(ctx context.Context, source string) {
	id := c.player.VideoID()

	c.mu.Lock()
	prev := c.current
	if id == prev {
		c.mu.Unlock()
		return
	}
	c.current = id
	c.mu.Unlock()

	if id == "" {
		c.log.Info("left content page", "previous", prev, "source", source)
		c.teardown()
		return
	}

	c.log.Info("content changed", "previous", prev, "content_id", id, "source", source)
	if c.watcher != nil {
		c.watcher.Stop()
	}
	c.engine.Reset()

	wctx, cancel := context.WithTimeout(ctx, c.cfg.PlayerWait)
	err := c.player.WaitForVideo(wctx)
	cancel()
	if err != nil {
		c.log.Warn("player not found, giving up on content", "content_id", id, "error", err)
		return
	}

	gen := c.engine.Activate(ctx, id)
	if c.watcher != nil && (c.cfg.NativeEnabled == nil || c.cfg.NativeEnabled()) {
		c.watcher.Start(gen)
	}
}

func (c *Controller) teardown() {
	if c.watcher != nil {
		c.watcher.Stop()
	}
	c.engine.Teardown()
	c.player.Release()
}
