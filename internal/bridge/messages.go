// Package bridge carries the adapter's Host contract over a WebSocket to a
// small page-side shim. One connection is one Session.
package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/JustinTDCT/SkipVault/internal/adapter"
	"github.com/JustinTDCT/SkipVault/internal/models"
	"github.com/JustinTDCT/SkipVault/internal/segments"
)

// Page → server events.
const (
	EventState        = "state"
	EventNavigate     = "navigate"
	EventPromptAnswer = "prompt_answer"
	EventSubmit       = "submit"
	EventVote         = "vote"
)

// Envelope is the wire frame in both directions; adapter.Command marshals to
// the same shape.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// StateData is a complete mirror of the page. A nil Video means the page has
// no video element; an empty Location keeps the previous one.
type StateData struct {
	Location string                    `json:"location"`
	Video    *adapter.MediaState       `json:"video"`
	Present  map[string]bool           `json:"present"`
	Rects    map[string][]adapter.Rect `json:"rects"`
}

type NavigateData struct {
	Source   string `json:"source"`
	Location string `json:"location"`
}

type PromptAnswerData struct {
	ID     string `json:"id"`
	Accept bool   `json:"accept"`
}

type SubmitData struct {
	Start    float64         `json:"start"`
	End      float64         `json:"end"`
	Category models.Category `json:"category"`
}

type VoteData struct {
	SegmentID string `json:"segment_id"`
	Vote      string `json:"vote"`
}

// ConfigureData tells the shim which elements to mirror.
type ConfigureData struct {
	Platform  models.Platform   `json:"platform"`
	Selectors adapter.Selectors `json:"selectors"`
}

func parseVote(s string) (segments.VoteType, error) {
	switch s {
	case "up":
		return segments.VoteUp, nil
	case "down":
		return segments.VoteDown, nil
	case "undo":
		return segments.VoteUndo, nil
	}
	return 0, fmt.Errorf("unknown vote %q", s)
}
