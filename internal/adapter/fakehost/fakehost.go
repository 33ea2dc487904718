// Package fakehost provides an in-memory adapter.Host for tests.
package fakehost

import (
	"sync"

	"github.com/JustinTDCT/SkipVault/internal/adapter"
)

// Host mirrors a page in memory. Seek and volume commands are applied to the
// video snapshot the way a real page would apply them.
type Host struct {
	mu        sync.Mutex
	location  string
	media     adapter.MediaState
	hasVideo  bool
	present   map[string]bool
	rects     map[string][]adapter.Rect
	commands  []adapter.Command
	listeners map[string]map[int]func()
	nextID    int
	sendErr   error
}

func New(location string) *Host {
	return &Host{
		location:  location,
		present:   make(map[string]bool),
		rects:     make(map[string][]adapter.Rect),
		listeners: make(map[string]map[int]func()),
	}
}

func (h *Host) Location() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.location
}

func (h *Host) SetLocation(loc string) {
	h.mu.Lock()
	h.location = loc
	h.mu.Unlock()
}

// SetVideo installs a video element with the given state.
func (h *Host) SetVideo(m adapter.MediaState) {
	h.mu.Lock()
	h.media = m
	h.hasVideo = true
	h.mu.Unlock()
}

func (h *Host) RemoveVideo() {
	h.mu.Lock()
	h.hasVideo = false
	h.mu.Unlock()
}

func (h *Host) SetTime(t float64) {
	h.mu.Lock()
	h.media.CurrentTime = t
	h.mu.Unlock()
}

func (h *Host) SetPaused(p bool) {
	h.mu.Lock()
	h.media.Paused = p
	h.mu.Unlock()
}

func (h *Host) Media() adapter.MediaState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.media
}

func (h *Host) Video(string) (adapter.MediaState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.media, h.hasVideo
}

func (h *Host) SetPresent(selector string, ok bool) {
	h.mu.Lock()
	h.present[selector] = ok
	h.mu.Unlock()
}

func (h *Host) Exists(selector string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.present[selector]
}

// SetRects replaces the boxes for selector and fires its change listeners.
func (h *Host) SetRects(selector string, rects []adapter.Rect) {
	h.mu.Lock()
	h.rects[selector] = rects
	fns := make([]func(), 0, len(h.listeners[selector]))
	for _, fn := range h.listeners[selector] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (h *Host) Rects(selector string) []adapter.Rect {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]adapter.Rect(nil), h.rects[selector]...)
}

func (h *Host) OnChange(selector string, fn func()) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listeners[selector] == nil {
		h.listeners[selector] = make(map[int]func())
	}
	id := h.nextID
	h.nextID++
	h.listeners[selector][id] = fn
	return func() {
		h.mu.Lock()
		delete(h.listeners[selector], id)
		h.mu.Unlock()
	}
}

func (h *Host) Listeners(selector string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[selector])
}

func (h *Host) FailSends(err error) {
	h.mu.Lock()
	h.sendErr = err
	h.mu.Unlock()
}

func (h *Host) Send(cmd adapter.Command) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sendErr != nil {
		return h.sendErr
	}
	h.commands = append(h.commands, cmd)
	switch d := cmd.Data.(type) {
	case adapter.SeekData:
		h.media.CurrentTime = d.Time
	case adapter.VolumeData:
		h.media.Volume = d.Volume
	}
	return nil
}

// Commands returns a copy of every command sent so far.
func (h *Host) Commands() []adapter.Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]adapter.Command(nil), h.commands...)
}

// Of filters sent commands by type.
func (h *Host) Of(kind string) []adapter.Command {
	var out []adapter.Command
	for _, c := range h.Commands() {
		if c.Type == kind {
			out = append(out, c)
		}
	}
	return out
}

func (h *Host) Reset() {
	h.mu.Lock()
	h.commands = nil
	h.mu.Unlock()
}
