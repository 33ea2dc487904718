package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JustinTDCT/SkipVault/internal/models"
)

const defaultWaitInterval = 500 * time.Millisecond

// player holds the behavior shared by every platform; the variants supply
// selectors and the content id rule.
type player struct {
	host      Host
	platform  models.Platform
	selectors Selectors
	idOf      func(location string) string

	waitInterval time.Duration

	mu      sync.Mutex
	prompts map[string]func(bool)
}

func newPlayer(host Host, platform models.Platform, sel Selectors, idOf func(string) string) *player {
	return &player{
		host:         host,
		platform:     platform,
		selectors:    sel,
		idOf:         idOf,
		waitInterval: defaultWaitInterval,
		prompts:      make(map[string]func(bool)),
	}
}

func (p *player) Platform() models.Platform { return p.platform }

func (p *player) Selectors() Selectors { return p.selectors }

func (p *player) VideoID() string {
	return p.idOf(p.host.Location())
}

func (p *player) IsVideoPage() bool {
	return p.VideoID() != ""
}

func (p *player) WaitForVideo(ctx context.Context) error {
	if _, ok := p.host.Video(p.selectors.Video); ok {
		return nil
	}
	ticker := time.NewTicker(p.waitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrNoPlayer, ctx.Err())
		case <-ticker.C:
			if _, ok := p.host.Video(p.selectors.Video); ok {
				return nil
			}
		}
	}
}

func (p *player) media() (MediaState, bool) {
	return p.host.Video(p.selectors.Video)
}

func (p *player) CurrentTime() float64 {
	m, _ := p.media()
	return m.CurrentTime
}

func (p *player) Duration() float64 {
	m, _ := p.media()
	return m.Duration
}

func (p *player) IsPlaying() bool {
	m, ok := p.media()
	return ok && !m.Paused
}

func (p *player) Volume() float64 {
	m, _ := p.media()
	return m.Volume
}

func (p *player) SeekTo(t float64) error {
	if _, ok := p.media(); !ok {
		return ErrNoPlayer
	}
	return p.host.Send(Command{Type: CmdSeek, Data: SeekData{Selector: p.selectors.Video, Time: t}})
}

func (p *player) SetVolume(v float64) error {
	if _, ok := p.media(); !ok {
		return ErrNoPlayer
	}
	return p.host.Send(Command{Type: CmdVolume, Data: VolumeData{Selector: p.selectors.Video, Volume: clamp(v, 0, 1)}})
}

func (p *player) PlayerContainer() (string, bool) {
	return p.selectors.Container, p.host.Exists(p.selectors.Container)
}

func (p *player) ShowNotification(msg string, opts NotifyOptions) {
	if opts.Kind == "" {
		opts.Kind = NotifyInfo
	}
	p.host.Send(Command{Type: CmdNotify, Data: NotifyData{
		Container:  p.selectors.Container,
		Message:    msg,
		Kind:       string(opts.Kind),
		DurationMs: opts.Duration.Milliseconds(),
	}})
}

func (p *player) ShowPrompt(pr Prompt) {
	if pr.OnAnswer != nil {
		p.mu.Lock()
		p.prompts[pr.ID] = pr.OnAnswer
		p.mu.Unlock()
	}
	p.host.Send(Command{Type: CmdPrompt, Data: PromptData{
		Container: p.selectors.Container,
		ID:        pr.ID,
		Message:   pr.Message,
		Category:  string(pr.Segment.Category),
		Start:     pr.Segment.Start,
		End:       pr.Segment.End,
		TimeoutMs: pr.Timeout.Milliseconds(),
	}})
}

func (p *player) DismissPrompt(id string) {
	p.mu.Lock()
	delete(p.prompts, id)
	p.mu.Unlock()
	p.host.Send(Command{Type: CmdDismiss, Data: DismissData{ID: id}})
}

// AnswerPrompt runs the prompt's callback once. Unknown or dismissed ids
// are ignored.
func (p *player) AnswerPrompt(id string, accept bool) {
	p.mu.Lock()
	fn, ok := p.prompts[id]
	delete(p.prompts, id)
	p.mu.Unlock()
	if ok {
		fn(accept)
	}
}

func (p *player) AddProgressMarkers(segs []models.Segment, style MarkerStyle) {
	marks := Layout(segs, p.Duration(), style)
	if marks == nil {
		marks = []Mark{}
	}
	p.host.Send(Command{Type: CmdMarkers, Data: MarkersData{Progress: p.selectors.Progress, Markers: marks}})
}

func (p *player) ClearProgressMarkers() {
	p.host.Send(Command{Type: CmdClearMarkers, Data: MarkersData{Progress: p.selectors.Progress}})
}

func (p *player) Release() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.prompts))
	for id := range p.prompts {
		ids = append(ids, id)
	}
	p.prompts = make(map[string]func(bool))
	p.mu.Unlock()

	for _, id := range ids {
		p.host.Send(Command{Type: CmdDismiss, Data: DismissData{ID: id}})
	}
	p.ClearProgressMarkers()
}
