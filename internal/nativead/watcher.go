// Package nativead turns the host player's own ad indicators into volatile
// native_ad segments.
package nativead

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/JustinTDCT/SkipVault/internal/adapter"
	"github.com/JustinTDCT/SkipVault/internal/logger"
	"github.com/JustinTDCT/SkipVault/internal/models"
)

// Target receives replacement native sets. It reports false when gen is no
// longer current.
type Target interface {
	ReplaceNative(gen uint64, segs []models.Segment) bool
}

type Config struct {
	// Interval is both the polling period and the minimum gap between passes.
	Interval time.Duration
	Debounce time.Duration
	// Enabled is consulted before each pass; nil means always on.
	Enabled func() bool
	Now     func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.Debounce <= 0 {
		c.Debounce = 500 * time.Millisecond
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Watcher polls and observes one player for native ad markers.
type Watcher struct {
	detector adapter.NativeAdDetector
	observer adapter.AdChangeObserver
	target   Target
	cfg      Config
	log      *slog.Logger

	mu       sync.Mutex
	running  bool
	gen      uint64
	last     []adapter.AdMarker
	lastRun  time.Time
	debounce *time.Timer
	unwatch  func()
	stop     chan struct{}
	done     chan struct{}
}

// New returns a watcher for player. Players without native ad indicators get
// a watcher whose Start does nothing.
func New(player adapter.Adapter, target Target, cfg Config, log *slog.Logger) *Watcher {
	w := &Watcher{
		target: target,
		cfg:    cfg.withDefaults(),
		log:    logger.Component(log, "nativead"),
	}
	w.detector, _ = player.(adapter.NativeAdDetector)
	w.observer, _ = player.(adapter.AdChangeObserver)
	return w
}

func (w *Watcher) Supported() bool {
	return w.detector != nil
}

// Start begins watching on behalf of generation gen, replacing any previous
// run. The first pass happens immediately.
func (w *Watcher) Start(gen uint64) {
	if !w.Supported() {
		return
	}
	w.Stop()

	w.mu.Lock()
	w.running = true
	w.gen = gen
	w.last = nil
	w.lastRun = time.Time{}
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	stop, done := w.stop, w.done
	w.mu.Unlock()

	if w.observer != nil {
		unwatch := w.observer.ObserveAdChanges(w.changed)
		w.mu.Lock()
		w.unwatch = unwatch
		w.mu.Unlock()
	}
	go w.run(gen, stop, done)
}

// Stop ends the current run. Pending debounced passes are dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.gen = 0
	stop, done := w.stop, w.done
	unwatch := w.unwatch
	w.unwatch = nil
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
	w.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	close(stop)
	<-done
}

func (w *Watcher) run(gen uint64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	w.pass(gen)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.pass(gen)
		}
	}
}

// changed coalesces bursts of change notifications into one pass.
func (w *Watcher) changed() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	gen := w.gen
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.cfg.Debounce, func() { w.pass(gen) })
}

// pass runs one detection unless the last one was too recent.
func (w *Watcher) pass(gen uint64) {
	if w.cfg.Enabled != nil && !w.cfg.Enabled() {
		return
	}
	now := w.cfg.Now()

	w.mu.Lock()
	if !w.running || gen != w.gen {
		w.mu.Unlock()
		return
	}
	if !w.lastRun.IsZero() && now.Sub(w.lastRun) < w.cfg.Interval {
		w.mu.Unlock()
		return
	}
	w.lastRun = now
	w.mu.Unlock()

	markers := w.detector.DetectNativeAdMarkers()

	w.mu.Lock()
	if !w.running || gen != w.gen {
		w.mu.Unlock()
		return
	}
	if slices.Equal(markers, w.last) {
		w.mu.Unlock()
		return
	}
	w.last = slices.Clone(markers)
	w.mu.Unlock()

	if w.target.ReplaceNative(gen, ToSegments(markers)) {
		w.log.Debug("native ads updated", "count", len(markers), "generation", gen)
	}
}

// ToSegments builds volatile native_ad segments with ids native-<i>.
func ToSegments(markers []adapter.AdMarker) []models.Segment {
	segs := make([]models.Segment, 0, len(markers))
	for i, m := range markers {
		segs = append(segs, models.Segment{
			ID:         models.NativeID(i),
			Start:      m.Start,
			End:        m.End,
			Category:   models.CategoryNativeAd,
			ActionType: models.ActionSkip,
			Volatile:   true,
		})
	}
	return segs
}
