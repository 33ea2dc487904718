package engine

import "github.com/JustinTDCT/SkipVault/internal/models"

// Store holds one content item's segments: community segments from the
// remote service and volatile native-ad segments from the watcher. It is
// owned by the Engine and guarded by the Engine's lock.
type Store struct {
	community []models.Segment
	native    []models.Segment
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) SetCommunity(segs []models.Segment) {
	s.community = make([]models.Segment, 0, len(segs))
	for _, seg := range segs {
		if seg.Valid() && !seg.Volatile {
			s.community = append(s.community, seg)
		}
	}
}

// ReplaceNative swaps the whole native set and returns the ids it removed.
func (s *Store) ReplaceNative(segs []models.Segment) []string {
	old := make([]string, len(s.native))
	for i, seg := range s.native {
		old[i] = seg.ID
	}
	s.native = make([]models.Segment, 0, len(segs))
	for _, seg := range segs {
		seg.Volatile = true
		seg.Category = models.CategoryNativeAd
		if seg.Valid() {
			s.native = append(s.native, seg)
		}
	}
	return old
}

// All returns every segment in decision order.
func (s *Store) All() []models.Segment {
	out := make([]models.Segment, 0, len(s.community)+len(s.native))
	out = append(out, s.community...)
	out = append(out, s.native...)
	models.SortForDecision(out)
	return out
}

func (s *Store) Community() []models.Segment {
	return append([]models.Segment(nil), s.community...)
}

func (s *Store) Native() []models.Segment {
	return append([]models.Segment(nil), s.native...)
}

func (s *Store) Len() int {
	return len(s.community) + len(s.native)
}

func (s *Store) Clear() {
	s.community = nil
	s.native = nil
}
