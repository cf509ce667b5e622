package annotation

import (
	"sort"

	"doctrans/fault"
)

// BoxSet is an ordered collection of Boxes scoped to one image or page.
// Insertion order is the display z-order; ordering is made deterministic by
// breaking ties on ID so repeated renders of the same set are byte-identical.
type BoxSet struct {
	// Scope names the image or page the set belongs to (e.g. "page1_img2.png").
	Scope string `json:"scope,omitempty"`
	Boxes []Box  `json:"boxes"`
}

// NewBoxSet creates an empty set for the given scope.
func NewBoxSet(scope string) BoxSet { return BoxSet{Scope: scope} }

// Add appends a box, rejecting duplicate IDs within the set.
func (s *BoxSet) Add(b Box) error {
	for _, existing := range s.Boxes {
		if existing.ID == b.ID {
			return fault.Validation("box id %q already present in set %q", b.ID, s.Scope)
		}
	}
	s.Boxes = append(s.Boxes, b)
	return nil
}

// Get returns the box with the given id.
func (s BoxSet) Get(id string) (Box, bool) {
	for _, b := range s.Boxes {
		if b.ID == id {
			return b, true
		}
	}
	return Box{}, false
}

// Update replaces the box with the same ID, preserving its position in the
// z-order.
func (s *BoxSet) Update(b Box) error {
	for i, existing := range s.Boxes {
		if existing.ID == b.ID {
			s.Boxes[i] = b
			return nil
		}
	}
	return fault.NotFound("box " + b.ID)
}

// Replace swaps the entire contents. Callers always resend the complete set;
// there is no per-box patching.
func (s *BoxSet) Replace(boxes []Box) error {
	seen := make(map[string]struct{}, len(boxes))
	for _, b := range boxes {
		if b.W <= 0 || b.H <= 0 {
			return fault.Validation("box %s: dimensions must be positive", b.ID)
		}
		if _, dup := seen[b.ID]; dup {
			return fault.Validation("duplicate box id %q", b.ID)
		}
		seen[b.ID] = struct{}{}
	}
	s.Boxes = append(s.Boxes[:0:0], boxes...)
	return nil
}

// Len returns the number of boxes.
func (s BoxSet) Len() int { return len(s.Boxes) }

// Ordered returns a copy of the boxes in deterministic z-order (insertion
// order). Callers that merge sets from different sources call SortByID first
// so ties resolve the same way on every run.
func (s BoxSet) Ordered() []Box {
	return append([]Box(nil), s.Boxes...)
}

// SortByID orders the boxes by ID ascending. Used when sets from different
// sources are merged and insertion order is no longer meaningful.
func (s *BoxSet) SortByID() {
	sort.SliceStable(s.Boxes, func(i, j int) bool { return s.Boxes[i].ID < s.Boxes[j].ID })
}

// ModifiedCount reports how many boxes differ from their creation snapshot.
func (s BoxSet) ModifiedCount() int {
	n := 0
	for _, b := range s.Boxes {
		if b.Modified() {
			n++
		}
	}
	return n
}
