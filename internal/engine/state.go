package engine

import (
	"sort"
	"time"
)

// DecisionState records what has been done for one content item. A fresh
// record is built for every item and dropped on navigation.
type DecisionState struct {
	skipped  map[string]bool
	ignored  map[string]bool
	prompted map[string]bool
	// pending maps a segment id to the time its delayed auto-action is due.
	pending map[string]time.Time
}

func NewDecisionState() *DecisionState {
	return &DecisionState{
		skipped:  make(map[string]bool),
		ignored:  make(map[string]bool),
		prompted: make(map[string]bool),
		pending:  make(map[string]time.Time),
	}
}

// Resolved reports whether id was acted on or declined.
func (d *DecisionState) Resolved(id string) bool {
	return d.skipped[id] || d.ignored[id]
}

func (d *DecisionState) Skipped(id string) bool  { return d.skipped[id] }
func (d *DecisionState) Ignored(id string) bool  { return d.ignored[id] }
func (d *DecisionState) Prompted(id string) bool { return d.prompted[id] }

// Forget drops ids from every set.
func (d *DecisionState) Forget(ids []string) {
	for _, id := range ids {
		delete(d.skipped, id)
		delete(d.ignored, id)
		delete(d.prompted, id)
		delete(d.pending, id)
	}
}

// Snapshot is a read-only copy for diagnostics and tests.
type Snapshot struct {
	Skipped  []string `json:"skipped"`
	Ignored  []string `json:"ignored"`
	Prompted []string `json:"prompted"`
	Pending  []string `json:"pending"`
}

func (d *DecisionState) snapshot() Snapshot {
	return Snapshot{
		Skipped:  keys(d.skipped),
		Ignored:  keys(d.ignored),
		Prompted: keys(d.prompted),
		Pending:  keys(d.pending),
	}
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
