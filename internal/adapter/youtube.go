package adapter

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/JustinTDCT/SkipVault/internal/models"
)

var youTubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

var youTubeSelectors = Selectors{
	Video:     "video.html5-main-video",
	Container: "#movie_player",
	Progress:  ".ytp-progress-bar",
	AdMarkers: ".ytp-ad-progress-list .ytp-ad-progress",
}

// YouTube drives the youtube.com HTML5 player.
type YouTube struct {
	*player
}

func NewYouTube(host Host) *YouTube {
	return &YouTube{player: newPlayer(host, models.PlatformYouTube, youTubeSelectors, YouTubeVideoID)}
}

// YouTubeVideoID extracts the 11-character id from watch, shorts, live,
// embed and youtu.be locations. Anything else yields "".
func YouTubeVideoID(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	path := strings.Trim(u.Path, "/")

	var id string
	switch {
	case host == "youtu.be":
		id, _, _ = strings.Cut(path, "/")
	case path == "watch":
		id = u.Query().Get("v")
	default:
		parts := strings.Split(path, "/")
		if len(parts) >= 2 {
			switch parts[0] {
			case "shorts", "live", "embed":
				id = parts[1]
			}
		}
	}
	if !youTubeIDPattern.MatchString(id) {
		return ""
	}
	return id
}

// DetectNativeAdMarkers reads the yellow ad ticks YouTube draws on its own
// progress bar.
func (y *YouTube) DetectNativeAdMarkers() []AdMarker {
	return rectsToMarkers(y.host.Rects(y.selectors.AdMarkers), y.Duration())
}

func (y *YouTube) ObserveAdChanges(cb func()) func() {
	return observe(y.host, y.selectors.AdMarkers, cb)
}

func observe(host Host, selector string, cb func()) func() {
	if n, ok := host.(ChangeNotifier); ok && selector != "" {
		return n.OnChange(selector, cb)
	}
	return func() {}
}
