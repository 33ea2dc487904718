package adapter

// Host is the page-side collaborator an adapter drives. It mirrors the
// elements named in Selectors and carries out commands.
type Host interface {
	Location() string
	Video(selector string) (MediaState, bool)
	Exists(selector string) bool
	// Rects returns the boxes matching selector as percentages of their
	// progress bar.
	Rects(selector string) []Rect
	Send(cmd Command) error
}

// ChangeNotifier is implemented by hosts that can signal element changes.
type ChangeNotifier interface {
	OnChange(selector string, fn func()) (cancel func())
}

type MediaState struct {
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
	Paused      bool    `json:"paused"`
	Volume      float64 `json:"volume"`
}

type Rect struct {
	Left  float64 `json:"left"`
	Width float64 `json:"width"`
}

// Command kinds sent to the page.
const (
	CmdConfigure    = "configure"
	CmdSeek         = "seek"
	CmdVolume       = "volume"
	CmdNotify       = "notify"
	CmdPrompt       = "prompt"
	CmdDismiss      = "dismiss"
	CmdMarkers      = "markers"
	CmdClearMarkers = "clear_markers"
)

type Command struct {
	Type string `json:"event"`
	Data any    `json:"data"`
}

type SeekData struct {
	Selector string  `json:"selector"`
	Time     float64 `json:"time"`
}

type VolumeData struct {
	Selector string  `json:"selector"`
	Volume   float64 `json:"volume"`
}

type NotifyData struct {
	Container  string `json:"container"`
	Message    string `json:"message"`
	Kind       string `json:"kind"`
	DurationMs int64  `json:"duration_ms"`
}

type PromptData struct {
	Container string  `json:"container"`
	ID        string  `json:"id"`
	Message   string  `json:"message"`
	Category  string  `json:"category"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	TimeoutMs int64   `json:"timeout_ms"`
}

type DismissData struct {
	ID string `json:"id"`
}

type MarkersData struct {
	Progress string `json:"progress"`
	Markers  []Mark `json:"markers"`
}
