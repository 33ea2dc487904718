package adapter

import (
	"math"

	"github.com/JustinTDCT/SkipVault/internal/models"
)

// Mark is one progress-bar overlay box, in percent of the bar.
type Mark struct {
	SegmentID string  `json:"segment_id"`
	Category  string  `json:"category"`
	Left      float64 `json:"left"`
	Width     float64 `json:"width"`
	Color     string  `json:"color"`
	Opacity   float64 `json:"opacity"`
}

type MarkerStyle struct {
	Colors  map[models.Category]string
	Opacity float64
}

var DefaultMarkerStyle = MarkerStyle{
	Colors: map[models.Category]string{
		models.CategorySponsor:         "#00d400",
		models.CategorySelfPromo:       "#ffff00",
		models.CategoryInteraction:     "#cc00ff",
		models.CategoryIntro:           "#00ffff",
		models.CategoryOutro:           "#0202ed",
		models.CategoryPreview:         "#008fd6",
		models.CategoryFiller:          "#7300ff",
		models.CategoryMusicOffTopic:   "#ff9900",
		models.CategoryExclusiveAccess: "#008a5c",
		models.CategoryMute:            "#ff4444",
		models.CategoryNativeAd:        "#ffcc00",
	},
	Opacity: 0.7,
}

// Layout converts segments into overlay boxes. Boxes come out longest first
// so later (shorter) boxes draw on top. Nothing is laid out until the
// duration is known.
func Layout(segs []models.Segment, duration float64, style MarkerStyle) []Mark {
	if duration <= 0 || len(segs) == 0 {
		return nil
	}
	sorted := make([]models.Segment, len(segs))
	copy(sorted, segs)
	models.SortForMarkers(sorted)

	marks := make([]Mark, 0, len(sorted))
	for _, s := range sorted {
		start := clamp(s.Start, 0, duration)
		end := clamp(s.End, 0, duration)
		if end <= start {
			continue
		}
		marks = append(marks, Mark{
			SegmentID: s.ID,
			Category:  string(s.Category),
			Left:      round3(start / duration * 100),
			Width:     round3((end - start) / duration * 100),
			Color:     style.Colors[s.Category],
			Opacity:   style.Opacity,
		})
	}
	return marks
}

// rectsToMarkers maps progress-bar boxes back into time ranges.
func rectsToMarkers(rects []Rect, duration float64) []AdMarker {
	if duration <= 0 {
		return nil
	}
	var out []AdMarker
	for _, r := range rects {
		left := clamp(r.Left, 0, 100)
		right := clamp(r.Left+r.Width, 0, 100)
		if right <= left {
			continue
		}
		out = append(out, AdMarker{
			Start: round3(left / 100 * duration),
			End:   round3(right / 100 * duration),
		})
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
