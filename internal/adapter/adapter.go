// Package adapter isolates host-player quirks behind one capability set so
// the decision engine never knows which platform it runs on.
package adapter

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/JustinTDCT/SkipVault/internal/models"
)

var (
	ErrNoPlayer    = errors.New("video player not found")
	ErrUnsupported = errors.New("unsupported platform")
)

// Adapter is the capability set the engine consumes.
type Adapter interface {
	Platform() models.Platform
	Selectors() Selectors

	VideoID() string
	IsVideoPage() bool
	// WaitForVideo probes for the video element until found or ctx ends.
	WaitForVideo(ctx context.Context) error

	CurrentTime() float64
	Duration() float64
	IsPlaying() bool
	SeekTo(t float64) error
	Volume() float64
	SetVolume(v float64) error
	PlayerContainer() (string, bool)

	ShowNotification(msg string, opts NotifyOptions)
	ShowPrompt(p Prompt)
	DismissPrompt(id string)
	AddProgressMarkers(segs []models.Segment, style MarkerStyle)
	ClearProgressMarkers()

	// Release drops markers, prompts and pending callbacks.
	Release()
}

// NativeAdDetector is implemented by adapters whose player draws its own ad
// ranges. Results are best-effort and may be stale or empty.
type NativeAdDetector interface {
	DetectNativeAdMarkers() []AdMarker
}

// AdChangeObserver reports when the player's ad indicators may have changed.
type AdChangeObserver interface {
	ObserveAdChanges(cb func()) (cancel func())
}

// PromptResponder routes a page-side answer back to the prompt's callback.
type PromptResponder interface {
	AnswerPrompt(id string, accept bool)
}

// AdMarker is a native ad range in seconds.
type AdMarker struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type NotifyKind string

const (
	NotifyInfo    NotifyKind = "info"
	NotifySuccess NotifyKind = "success"
	NotifyError   NotifyKind = "error"
)

type NotifyOptions struct {
	Kind     NotifyKind
	Duration time.Duration
}

// Prompt asks the viewer whether to skip a segment. OnAnswer fires at most
// once, never after DismissPrompt.
type Prompt struct {
	ID       string
	Segment  models.Segment
	Message  string
	Timeout  time.Duration
	OnAnswer func(accept bool)
}

// Selectors tell the page shim which elements to mirror.
type Selectors struct {
	Video     string `json:"video"`
	Container string `json:"container"`
	Progress  string `json:"progress"`
	AdMarkers string `json:"ad_markers,omitempty"`
}

// ──────────────────── Platform selection ────────────────────

// Detect sniffs the platform from a page location.
func Detect(location string) (models.Platform, bool) {
	u, err := url.Parse(location)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com") ||
		host == "youtube-nocookie.com" || strings.HasSuffix(host, ".youtube-nocookie.com"):
		return models.PlatformYouTube, true
	case host == "bilibili.com" || strings.HasSuffix(host, ".bilibili.com"):
		return models.PlatformBilibili, true
	}
	return "", false
}

// New picks the adapter for the host's current location. The choice is made
// once; navigation within a platform reuses the same adapter.
func New(host Host) (Adapter, error) {
	p, ok := Detect(host.Location())
	if !ok {
		return nil, ErrUnsupported
	}
	switch p {
	case models.PlatformYouTube:
		return NewYouTube(host), nil
	case models.PlatformBilibili:
		return NewBilibili(host), nil
	}
	return nil, ErrUnsupported
}
