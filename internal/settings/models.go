package settings

import (
	"strings"
	"time"

	"github.com/JustinTDCT/SkipVault/internal/models"
)

const (
	KeyAutoSkip            = "auto_skip"
	KeySkipCategories      = "skip_categories"
	KeyShowNotifications   = "show_notifications"
	KeyShowProgressMarkers = "show_progress_markers"
	KeyDetectNativeAds     = "detect_native_ads"
	KeySkipDelay           = "skip_delay"
	KeyMuteInsteadOfSkip   = "mute_instead_of_skip"
	KeyUserID              = "user_id"
)

// MaxSkipDelay is the longest skip_delay accepted, in seconds.
const MaxSkipDelay = 60

// Keys lists every recognized key; anything else is rejected on update.
var Keys = []string{
	KeyAutoSkip,
	KeySkipCategories,
	KeyShowNotifications,
	KeyShowProgressMarkers,
	KeyDetectNativeAds,
	KeySkipDelay,
	KeyMuteInsteadOfSkip,
	KeyUserID,
}

func Known(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Options are the decoded engine options.
type Options struct {
	AutoSkip            bool              `json:"auto_skip"`
	SkipCategories      []models.Category `json:"skip_categories"`
	ShowNotifications   bool              `json:"show_notifications"`
	ShowProgressMarkers bool              `json:"show_progress_markers"`
	DetectNativeAds     bool              `json:"detect_native_ads"`
	// SkipDelay is in seconds.
	SkipDelay         float64 `json:"skip_delay"`
	MuteInsteadOfSkip bool    `json:"mute_instead_of_skip"`
}

func DefaultOptions() Options {
	return Options{
		AutoSkip: true,
		SkipCategories: []models.Category{
			models.CategorySponsor,
			models.CategorySelfPromo,
			models.CategoryExclusiveAccess,
			models.CategoryNativeAd,
		},
		ShowNotifications:   true,
		ShowProgressMarkers: true,
		DetectNativeAds:     true,
	}
}

// AutoActs reports whether segments of c are acted on without asking.
// With auto-skip off every category is prompt-only.
func (o Options) AutoActs(c models.Category) bool {
	if !o.AutoSkip {
		return false
	}
	for _, s := range o.SkipCategories {
		if s == c {
			return true
		}
	}
	return false
}

func (o Options) Delay() time.Duration {
	if !(o.SkipDelay > 0) {
		return 0
	}
	if o.SkipDelay > MaxSkipDelay {
		return MaxSkipDelay * time.Second
	}
	return time.Duration(o.SkipDelay * float64(time.Second))
}

// Values encodes o into store form.
func (o Options) Values() map[string]string {
	cats := make([]string, len(o.SkipCategories))
	for i, c := range o.SkipCategories {
		cats[i] = string(c)
	}
	return map[string]string{
		KeyAutoSkip:            formatBool(o.AutoSkip),
		KeySkipCategories:      strings.Join(cats, ","),
		KeyShowNotifications:   formatBool(o.ShowNotifications),
		KeyShowProgressMarkers: formatBool(o.ShowProgressMarkers),
		KeyDetectNativeAds:     formatBool(o.DetectNativeAds),
		KeySkipDelay:           formatFloat(o.SkipDelay),
		KeyMuteInsteadOfSkip:   formatBool(o.MuteInsteadOfSkip),
	}
}
