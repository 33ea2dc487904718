package adapter

import (
	"net/url"
	"regexp"

	"github.com/JustinTDCT/SkipVault/internal/models"
)

var (
	bvPathPattern = regexp.MustCompile(`/video/(BV[0-9A-Za-z]{10})(?:/|$)`)
	bvIDPattern   = regexp.MustCompile(`^BV[0-9A-Za-z]{10}$`)
)

var bilibiliSelectors = Selectors{
	Video:     ".bpx-player-video-wrap video",
	Container: ".bpx-player-container",
	Progress:  ".bpx-player-progress-schedule",
	AdMarkers: ".bpx-player-progress-point-ad",
}

// Bilibili drives the bpx player on bilibili.com.
type Bilibili struct {
	*player
}

func NewBilibili(host Host) *Bilibili {
	return &Bilibili{player: newPlayer(host, models.PlatformBilibili, bilibiliSelectors, BilibiliVideoID)}
}

// BilibiliVideoID returns the BV id from a /video/ path or the bvid query.
func BilibiliVideoID(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	if m := bvPathPattern.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	if id := u.Query().Get("bvid"); bvIDPattern.MatchString(id) {
		return id
	}
	return ""
}

// DetectNativeAdMarkers reads the commercial highlight points the player
// places on its progress bar.
func (b *Bilibili) DetectNativeAdMarkers() []AdMarker {
	return rectsToMarkers(b.host.Rects(b.selectors.AdMarkers), b.Duration())
}

func (b *Bilibili) ObserveAdChanges(cb func()) func() {
	return observe(b.host, b.selectors.AdMarkers, cb)
}
