package bridge

import (
	"slices"
	"sync"

	"github.com/JustinTDCT/SkipVault/internal/adapter"
)

// Page is the server-side mirror of one browser tab. It implements
// adapter.Host and adapter.ChangeNotifier.
type Page struct {
	send func(adapter.Command) error

	mu        sync.RWMutex
	location  string
	media     adapter.MediaState
	hasVideo  bool
	present   map[string]bool
	rects     map[string][]adapter.Rect
	listeners map[string]map[int]func()
	nextID    int
}

func NewPage(send func(adapter.Command) error) *Page {
	return &Page{
		send:      send,
		present:   make(map[string]bool),
		rects:     make(map[string][]adapter.Rect),
		listeners: make(map[string]map[int]func()),
	}
}

func (p *Page) Location() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.location
}

func (p *Page) SetLocation(loc string) {
	p.mu.Lock()
	p.location = loc
	p.mu.Unlock()
}

// Video returns the mirrored video. The shim mirrors only the configured
// video element, so the selector is not consulted.
func (p *Page) Video(string) (adapter.MediaState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.media, p.hasVideo
}

func (p *Page) Exists(selector string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.present[selector] || len(p.rects[selector]) > 0
}

func (p *Page) Rects(selector string) []adapter.Rect {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.rects[selector])
}

// Send forwards cmd to the page. Seeks and volume changes are reflected in
// the mirror right away so the next tick does not act on stale state.
func (p *Page) Send(cmd adapter.Command) error {
	if err := p.send(cmd); err != nil {
		return err
	}
	p.mu.Lock()
	switch d := cmd.Data.(type) {
	case adapter.SeekData:
		p.media.CurrentTime = d.Time
	case adapter.VolumeData:
		p.media.Volume = d.Volume
	}
	p.mu.Unlock()
	return nil
}

func (p *Page) OnChange(selector string, fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	if p.listeners[selector] == nil {
		p.listeners[selector] = make(map[int]func())
	}
	p.listeners[selector][id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners[selector], id)
		if len(p.listeners[selector]) == 0 {
			delete(p.listeners, selector)
		}
	}
}

// Apply replaces the mirror with st and notifies listeners of selectors
// whose boxes changed.
func (p *Page) Apply(st StateData) {
	p.mu.Lock()
	if st.Location != "" {
		p.location = st.Location
	}
	if st.Video != nil {
		p.media, p.hasVideo = *st.Video, true
	} else {
		p.media, p.hasVideo = adapter.MediaState{}, false
	}

	p.present = make(map[string]bool, len(st.Present))
	for k, v := range st.Present {
		p.present[k] = v
	}

	var fire []func()
	next := make(map[string][]adapter.Rect, len(st.Rects))
	for sel, rs := range st.Rects {
		next[sel] = slices.Clone(rs)
	}
	for sel, fns := range p.listeners {
		if slices.Equal(p.rects[sel], next[sel]) {
			continue
		}
		for _, fn := range fns {
			fire = append(fire, fn)
		}
	}
	p.rects = next
	p.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
}
