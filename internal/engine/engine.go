// Package engine holds a content item's segments and decides, tick by tick,
// whether to skip, mute or prompt as playback enters them.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JustinTDCT/SkipVault/internal/adapter"
	"github.com/JustinTDCT/SkipVault/internal/logger"
	"github.com/JustinTDCT/SkipVault/internal/models"
	"github.com/JustinTDCT/SkipVault/internal/segments"
	"github.com/JustinTDCT/SkipVault/internal/settings"
)

// OptionsSource supplies the current options. It is read on every tick and
// must not block.
type OptionsSource interface {
	Options() settings.Options
}

type Config struct {
	TickInterval   time.Duration
	MinActionGap   time.Duration
	PromptTimeout  time.Duration
	NotifyDuration time.Duration
	MutePoll       time.Duration
	// Categories requested from the segment source.
	Categories  []models.Category
	MarkerStyle adapter.MarkerStyle
	Now         func() time.Time
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 200 * time.Millisecond
	}
	if c.MinActionGap <= 0 {
		c.MinActionGap = time.Second
	}
	if c.PromptTimeout <= 0 {
		c.PromptTimeout = 5 * time.Second
	}
	if c.NotifyDuration <= 0 {
		c.NotifyDuration = 2 * time.Second
	}
	if c.MutePoll <= 0 {
		c.MutePoll = 100 * time.Millisecond
	}
	if len(c.Categories) == 0 {
		c.Categories = models.RemoteCategories()
	}
	if c.MarkerStyle.Colors == nil {
		c.MarkerStyle = adapter.DefaultMarkerStyle
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type openPrompt struct {
	seg   models.Segment
	timer *time.Timer
}

type muteState struct {
	seg        models.Segment
	prevVolume float64
	stop       chan struct{}
}

// Engine runs the decision loop for one player. Every Activate or Reset
// starts a new generation; work tagged with an older generation is dropped.
type Engine struct {
	player  adapter.Adapter
	source  segments.Source
	options OptionsSource
	cfg     Config
	log     *slog.Logger

	mu           sync.Mutex
	gen          uint64
	contentID    string
	store        *Store
	state        *DecisionState
	lastAction   time.Time
	prompts      map[string]*openPrompt
	mute         *muteState
	markersDirty bool
	markersShown bool
	cancelFetch  context.CancelFunc

	loopStop chan struct{}
	loopDone chan struct{}
}

func New(player adapter.Adapter, source segments.Source, options OptionsSource, cfg Config, log *slog.Logger) *Engine {
	return &Engine{
		player:  player,
		source:  source,
		options: options,
		cfg:     cfg.withDefaults(),
		log:     logger.Component(log, "engine"),
		store:   NewStore(),
		state:   NewDecisionState(),
		prompts: make(map[string]*openPrompt),
	}
}

// ──────────────────── Lifecycle ────────────────────

// Activate resets all state and starts loading segments for contentID in the
// background. The loop starts once the fetch resolves, even when it resolves
// empty. The returned generation tags work belonging to this item.
func (e *Engine) Activate(ctx context.Context, contentID string) uint64 {
	e.reset()

	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.contentID = contentID
	fctx, cancel := context.WithCancel(ctx)
	e.cancelFetch = cancel
	e.mu.Unlock()

	e.log.Info("activating", "content_id", contentID, "generation", gen)
	go func() {
		defer cancel()
		segs := e.source.FetchSegments(fctx, e.player.Platform(), contentID, e.cfg.Categories)
		e.load(gen, segs)
	}()
	return gen
}

// Reset stops the loop and clears everything belonging to the current item.
func (e *Engine) Reset() {
	e.reset()
}

// Teardown is Reset for good: no content is active afterwards.
func (e *Engine) Teardown() {
	e.reset()
	e.mu.Lock()
	e.contentID = ""
	e.mu.Unlock()
	e.log.Debug("torn down")
}

func (e *Engine) reset() {
	e.stopLoop()

	e.mu.Lock()
	e.gen++
	if e.cancelFetch != nil {
		e.cancelFetch()
		e.cancelFetch = nil
	}
	prompts := e.prompts
	e.prompts = make(map[string]*openPrompt)
	mute := e.mute
	e.mute = nil
	clearMarkers := e.markersShown
	e.markersShown = false
	e.markersDirty = false
	e.store.Clear()
	e.state = NewDecisionState()
	e.mu.Unlock()

	for id, p := range prompts {
		p.timer.Stop()
		e.player.DismissPrompt(id)
	}
	if mute != nil {
		close(mute.stop)
		if err := e.player.SetVolume(mute.prevVolume); err != nil {
			e.log.Warn("volume restore failed", "error", err)
		}
	}
	if clearMarkers {
		e.player.ClearProgressMarkers()
	}
}

// load installs fetched segments if gen is still current.
func (e *Engine) load(gen uint64, segs []models.Segment) bool {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		e.log.Debug("dropping stale fetch result", "generation", gen)
		return false
	}
	e.store.SetCommunity(segs)
	e.markersDirty = true
	contentID := e.contentID
	e.mu.Unlock()

	e.log.Info("segments loaded", "content_id", contentID, "count", len(segs))
	e.renderMarkers()
	e.startLoop(gen)
	return true
}

// ReplaceNative swaps in a freshly detected native-ad set. Old native ids are
// forgotten so re-detected ranges are acted on again.
func (e *Engine) ReplaceNative(gen uint64, segs []models.Segment) bool {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return false
	}
	old := e.store.ReplaceNative(segs)
	e.state.Forget(old)
	e.markersDirty = true
	e.mu.Unlock()

	e.renderMarkers()
	return true
}

func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen
}

func (e *Engine) ContentID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contentID
}

// Segments returns the current segments in decision order.
func (e *Engine) Segments() []models.Segment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.All()
}

func (e *Engine) State() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.snapshot()
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loopStop != nil
}

// ──────────────────── Loop ────────────────────

func (e *Engine) startLoop(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen || e.loopStop != nil {
		return
	}
	e.loopStop = make(chan struct{})
	e.loopDone = make(chan struct{})
	go e.run(e.loopStop, e.loopDone)
}

// Stop halts the loop without clearing state.
func (e *Engine) Stop() {
	e.stopLoop()
}

func (e *Engine) stopLoop() {
	e.mu.Lock()
	stop, done := e.loopStop, e.loopDone
	e.loopStop, e.loopDone = nil, nil
	e.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

func (e *Engine) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.safeTick()
		}
	}
}

func (e *Engine) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("tick panicked", "panic", r)
		}
	}()
	e.Tick()
}

// ──────────────────── Decisions ────────────────────

type actionKind int

const (
	actSkip actionKind = iota
	actMute
	actPrompt
	actNotice
)

type action struct {
	kind     actionKind
	seg      models.Segment
	gen      uint64
	promptID string
}

// Tick evaluates the current position once. At most one action is taken.
func (e *Engine) Tick() {
	e.renderMarkers()
	if !e.player.IsPlaying() {
		return
	}
	t := e.player.CurrentTime()
	opts := e.options.Options()
	now := e.cfg.Now()

	e.mu.Lock()
	act := e.decide(t, now, opts)
	e.mu.Unlock()

	if act != nil {
		e.execute(*act, opts)
	}
}

// decide walks segments in decision order and records the outcome for the
// first one that needs something done. Callers hold e.mu.
func (e *Engine) decide(t float64, now time.Time, opts settings.Options) *action {
	segs := e.store.All()

	for id := range e.state.pending {
		inside := false
		for _, s := range segs {
			if s.ID == id && s.Contains(t) {
				inside = true
				break
			}
		}
		if !inside {
			delete(e.state.pending, id)
		}
	}

	for _, seg := range segs {
		if !seg.Contains(t) || e.state.Resolved(seg.ID) || e.state.prompted[seg.ID] {
			continue
		}

		if !opts.AutoActs(seg.Category) {
			e.state.prompted[seg.ID] = true
			return &action{kind: actPrompt, seg: seg, gen: e.gen, promptID: uuid.NewString()}
		}

		if d := opts.Delay(); d > 0 {
			due, ok := e.state.pending[seg.ID]
			if !ok {
				e.state.pending[seg.ID] = now.Add(d)
				return &action{kind: actNotice, seg: seg, gen: e.gen}
			}
			if now.Before(due) {
				return nil
			}
		}

		if !e.lastAction.IsZero() && now.Sub(e.lastAction) < e.cfg.MinActionGap {
			return nil
		}
		delete(e.state.pending, seg.ID)
		e.state.skipped[seg.ID] = true
		e.lastAction = now
		return &action{kind: actionFor(seg, opts), seg: seg, gen: e.gen}
	}
	return nil
}

func actionFor(seg models.Segment, opts settings.Options) actionKind {
	if opts.MuteInsteadOfSkip || seg.Action() == models.ActionMute {
		return actMute
	}
	return actSkip
}

func (e *Engine) current(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return gen == e.gen
}

func (e *Engine) execute(a action, opts settings.Options) {
	if !e.current(a.gen) {
		return
	}
	switch a.kind {
	case actSkip:
		e.skip(a.seg, opts)
	case actMute:
		e.muteSegment(a.gen, a.seg, opts)
	case actPrompt:
		e.prompt(a.gen, a.promptID, a.seg)
	case actNotice:
		if opts.ShowNotifications {
			e.player.ShowNotification(
				fmt.Sprintf("Skipping %s in %s", a.seg.Category.Label(), opts.Delay()),
				adapter.NotifyOptions{Kind: adapter.NotifyInfo, Duration: opts.Delay()},
			)
		}
	}
}

func (e *Engine) skip(seg models.Segment, opts settings.Options) {
	if e.player.CurrentTime() >= seg.End {
		return
	}
	if err := e.player.SeekTo(seg.End); err != nil {
		e.log.Warn("skip failed", "segment", seg.String(), "error", err)
		return
	}
	e.log.Info("skipped", "segment", seg.String())
	e.notify(opts, "Skipped "+seg.Category.Label())
}

func (e *Engine) muteSegment(gen uint64, seg models.Segment, opts settings.Options) {
	prev := e.player.Volume()

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	if e.mute != nil {
		// Already muted by an overlapping segment: widen the range and keep
		// the volume we will restore to.
		if seg.Start < e.mute.seg.Start {
			e.mute.seg.Start = seg.Start
		}
		if seg.End > e.mute.seg.End {
			e.mute.seg.End = seg.End
		}
		e.mu.Unlock()
		return
	}
	m := &muteState{seg: seg, prevVolume: prev, stop: make(chan struct{})}
	e.mute = m
	e.mu.Unlock()

	if err := e.player.SetVolume(0); err != nil {
		e.log.Warn("mute failed", "segment", seg.String(), "error", err)
	}
	go e.watchMute(gen, m)
	e.log.Info("muted", "segment", seg.String())
	e.notify(opts, "Muted "+seg.Category.Label())
}

// watchMute restores the volume once playback leaves the muted range.
func (e *Engine) watchMute(gen uint64, m *muteState) {
	ticker := time.NewTicker(e.cfg.MutePoll)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			t := e.player.CurrentTime()
			e.mu.Lock()
			if gen != e.gen || e.mute != m {
				e.mu.Unlock()
				return
			}
			if m.seg.Contains(t) {
				e.mu.Unlock()
				continue
			}
			e.mute = nil
			e.mu.Unlock()

			if err := e.player.SetVolume(m.prevVolume); err != nil {
				e.log.Warn("volume restore failed", "error", err)
			}
			return
		}
	}
}

func (e *Engine) prompt(gen uint64, id string, seg models.Segment) {
	timer := time.AfterFunc(e.cfg.PromptTimeout, func() { e.expirePrompt(gen, id) })

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		timer.Stop()
		return
	}
	e.prompts[id] = &openPrompt{seg: seg, timer: timer}
	e.mu.Unlock()

	e.player.ShowPrompt(adapter.Prompt{
		ID:       id,
		Segment:  seg,
		Message:  fmt.Sprintf("Skip %s?", seg.Category.Label()),
		Timeout:  e.cfg.PromptTimeout,
		OnAnswer: func(accept bool) { e.answer(gen, id, accept) },
	})
}

// answer applies the viewer's choice. Late or repeated answers are ignored.
func (e *Engine) answer(gen uint64, id string, accept bool) {
	e.mu.Lock()
	p, ok := e.prompts[id]
	if gen != e.gen || !ok {
		e.mu.Unlock()
		return
	}
	delete(e.prompts, id)
	p.timer.Stop()

	if !accept {
		e.state.ignored[p.seg.ID] = true
		e.mu.Unlock()
		e.log.Debug("segment ignored", "segment", p.seg.String())
		return
	}
	e.state.skipped[p.seg.ID] = true
	e.lastAction = e.cfg.Now()
	e.mu.Unlock()

	opts := e.options.Options()
	e.execute(action{kind: actionFor(p.seg, opts), seg: p.seg, gen: gen}, opts)
}

func (e *Engine) expirePrompt(gen uint64, id string) {
	e.mu.Lock()
	_, ok := e.prompts[id]
	if gen != e.gen || !ok {
		e.mu.Unlock()
		return
	}
	delete(e.prompts, id)
	e.mu.Unlock()

	e.player.DismissPrompt(id)
}

func (e *Engine) notify(opts settings.Options, msg string) {
	if !opts.ShowNotifications {
		return
	}
	e.player.ShowNotification(msg, adapter.NotifyOptions{Kind: adapter.NotifySuccess, Duration: e.cfg.NotifyDuration})
}

// ──────────────────── Markers ────────────────────

// renderMarkers draws pending marker changes once the duration is known.
func (e *Engine) renderMarkers() {
	e.mu.Lock()
	if !e.markersDirty {
		e.mu.Unlock()
		return
	}
	gen := e.gen
	segs := e.store.All()
	e.mu.Unlock()

	if !e.options.Options().ShowProgressMarkers {
		e.mu.Lock()
		if gen == e.gen {
			e.markersDirty = false
		}
		e.mu.Unlock()
		return
	}
	if e.player.Duration() <= 0 {
		return
	}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.markersDirty = false
	e.markersShown = true
	e.mu.Unlock()
	e.player.AddProgressMarkers(segs, e.cfg.MarkerStyle)
}
