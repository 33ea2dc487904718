package settings

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/JustinTDCT/SkipVault/internal/models"
)

// Decode builds Options from raw store values. Missing or unparseable values
// keep their defaults.
func Decode(values map[string]string) Options {
	o := DefaultOptions()
	decodeBool(values, KeyAutoSkip, &o.AutoSkip)
	decodeBool(values, KeyShowNotifications, &o.ShowNotifications)
	decodeBool(values, KeyShowProgressMarkers, &o.ShowProgressMarkers)
	decodeBool(values, KeyDetectNativeAds, &o.DetectNativeAds)
	decodeBool(values, KeyMuteInsteadOfSkip, &o.MuteInsteadOfSkip)

	if v, ok := values[KeySkipDelay]; ok {
		if f, err := parseSkipDelay(v); err == nil {
			o.SkipDelay = f
		}
	}
	if v, ok := values[KeySkipCategories]; ok {
		if cats, err := parseCategoryList(v); err == nil {
			o.SkipCategories = cats
		}
	}
	return o
}

// Validate checks a single key/value pair before it is stored.
func Validate(key, value string) error {
	switch key {
	case KeyAutoSkip, KeyShowNotifications, KeyShowProgressMarkers, KeyDetectNativeAds, KeyMuteInsteadOfSkip:
		if _, err := cast.ToBoolE(strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("%s: not a boolean: %q", key, value)
		}
	case KeySkipDelay:
		if _, err := parseSkipDelay(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	case KeySkipCategories:
		if _, err := parseCategoryList(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	case KeyUserID:
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s: empty", key)
		}
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

// parseSkipDelay accepts a finite number of seconds in [0, MaxSkipDelay].
func parseSkipDelay(v string) (float64, error) {
	f, err := cast.ToFloat64E(strings.TrimSpace(v))
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, fmt.Errorf("not a non-negative number: %q", v)
	}
	if f > MaxSkipDelay {
		return 0, fmt.Errorf("%q exceeds %d seconds", v, MaxSkipDelay)
	}
	return f, nil
}

func decodeBool(values map[string]string, key string, dst *bool) {
	v, ok := values[key]
	if !ok {
		return
	}
	if b, err := cast.ToBoolE(strings.TrimSpace(v)); err == nil {
		*dst = b
	}
}

// parseCategoryList accepts "a,b" or a JSON array. An empty value is an empty
// set. Unknown names are an error so typos are caught on update.
func parseCategoryList(v string) ([]models.Category, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return []models.Category{}, nil
	}
	var names []string
	if strings.HasPrefix(v, "[") {
		var raw []any
		if err := json.Unmarshal([]byte(v), &raw); err != nil {
			return nil, fmt.Errorf("invalid category list: %w", err)
		}
		names = cast.ToStringSlice(raw)
	} else {
		names = strings.Split(v, ",")
	}
	cats := make([]models.Category, 0, len(names))
	for _, n := range names {
		c := models.Category(strings.TrimSpace(n))
		if !c.Valid() {
			return nil, fmt.Errorf("unknown category %q", n)
		}
		cats = append(cats, c)
	}
	return models.NormalizeCategories(cats), nil
}

func formatBool(b bool) string { return cast.ToString(b) }

func formatFloat(f float64) string { return cast.ToString(f) }
