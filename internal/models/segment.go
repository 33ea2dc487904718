package models

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ──────────────────── Categories ────────────────────

type Category string

const (
	CategorySponsor         Category = "sponsor"
	CategorySelfPromo       Category = "selfpromo"
	CategoryInteraction     Category = "interaction"
	CategoryIntro           Category = "intro"
	CategoryOutro           Category = "outro"
	CategoryPreview         Category = "preview"
	CategoryFiller          Category = "filler"
	CategoryMusicOffTopic   Category = "music_offtopic"
	CategoryExclusiveAccess Category = "exclusive_access"
	CategoryMute            Category = "mute"
	CategoryNativeAd        Category = "native_ad"
)

// Categories lists every category in priority order (highest first).
var Categories = []Category{
	CategorySponsor,
	CategorySelfPromo,
	CategoryInteraction,
	CategoryIntro,
	CategoryOutro,
	CategoryPreview,
	CategoryFiller,
	CategoryMusicOffTopic,
	CategoryExclusiveAccess,
	CategoryMute,
	CategoryNativeAd,
}

var categoryPriority = func() map[Category]int {
	m := make(map[Category]int, len(Categories))
	for i, c := range Categories {
		m[c] = i
	}
	return m
}()

// Priority returns the category's rank; lower is more important.
// Unknown categories sort last.
func (c Category) Priority() int {
	if p, ok := categoryPriority[c]; ok {
		return p
	}
	return len(Categories)
}

func (c Category) Valid() bool {
	_, ok := categoryPriority[c]
	return ok
}

// Remote reports whether the community service knows this category.
func (c Category) Remote() bool {
	return c.Valid() && c != CategoryNativeAd
}

// RemoteCategories lists every category the community service serves, in
// priority order.
func RemoteCategories() []Category {
	out := make([]Category, 0, len(Categories))
	for _, c := range Categories {
		if c.Remote() {
			out = append(out, c)
		}
	}
	return out
}

var categoryLabels = map[Category]string{
	CategorySponsor:         "sponsor",
	CategorySelfPromo:       "self-promotion",
	CategoryInteraction:     "interaction reminder",
	CategoryIntro:           "intro",
	CategoryOutro:           "outro",
	CategoryPreview:         "preview",
	CategoryFiller:          "filler",
	CategoryMusicOffTopic:   "non-music section",
	CategoryExclusiveAccess: "exclusive access",
	CategoryMute:            "muted section",
	CategoryNativeAd:        "ad",
}

// Label is the human-readable name used in notifications.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// ParseCategories splits a comma separated list, dropping unknown names.
func ParseCategories(s string) []Category {
	var out []Category
	for _, part := range strings.Split(s, ",") {
		c := Category(strings.TrimSpace(part))
		if c.Valid() {
			out = append(out, c)
		}
	}
	return NormalizeCategories(out)
}

// NormalizeCategories returns a sorted, de-duplicated copy.
func NormalizeCategories(cats []Category) []Category {
	seen := make(map[Category]bool, len(cats))
	out := make([]Category, 0, len(cats))
	for _, c := range cats {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Priority() < out[j].Priority()
	})
	return out
}

// ──────────────────── Segments ────────────────────

type ActionType string

const (
	ActionSkip ActionType = "skip"
	ActionMute ActionType = "mute"
)

// Segment is a time range attributed to one category of skippable content.
type Segment struct {
	ID         string     `json:"id"`
	Start      float64    `json:"start"`
	End        float64    `json:"end"`
	Category   Category   `json:"category"`
	ActionType ActionType `json:"action_type"`
	Volatile   bool       `json:"volatile,omitempty"`
	Votes      int        `json:"votes,omitempty"`
	Locked     bool       `json:"locked,omitempty"`
}

func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Contains reports whether t lies in [Start, End).
func (s Segment) Contains(t float64) bool {
	return t >= s.Start && t < s.End
}

func (s Segment) Valid() bool {
	return s.Start >= 0 && s.Start < s.End && s.Category.Valid()
}

// Action returns the effective action, defaulting to skip.
func (s Segment) Action() ActionType {
	if s.ActionType == ActionMute {
		return ActionMute
	}
	return ActionSkip
}

func (s Segment) String() string {
	return fmt.Sprintf("%s[%s %.1f-%.1f]", s.ID, s.Category, s.Start, s.End)
}

// NativeID builds the synthesized id for the i-th detected native ad.
func NativeID(i int) string {
	return fmt.Sprintf("native-%d", i)
}

// SortForDecision orders segments by start time, then category priority, then id.
func SortForDecision(segs []Segment) {
	sort.SliceStable(segs, func(i, j int) bool {
		a, b := segs[i], segs[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.Category.Priority() != b.Category.Priority() {
			return a.Category.Priority() < b.Category.Priority()
		}
		return a.ID < b.ID
	})
}

// SortForMarkers orders segments longest first so shorter ones are drawn on
// top. Equal durations put the higher-priority category last.
func SortForMarkers(segs []Segment) {
	sort.SliceStable(segs, func(i, j int) bool {
		a, b := segs[i], segs[j]
		if a.Duration() != b.Duration() {
			return a.Duration() > b.Duration()
		}
		if a.Category.Priority() != b.Category.Priority() {
			return a.Category.Priority() > b.Category.Priority()
		}
		return a.ID < b.ID
	})
}

// ──────────────────── Platforms ────────────────────

type Platform string

const (
	PlatformYouTube  Platform = "youtube"
	PlatformBilibili Platform = "bilibili"
)

var Platforms = []Platform{PlatformYouTube, PlatformBilibili}

// ParsePlatform accepts a platform name in any case.
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Platforms, p) {
		return p, true
	}
	return "", false
}
