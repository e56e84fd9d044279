package label

// Set is an insertion-ordered, deduplicated collection of labels.
type Set struct {
	order []Label
	index map[Label]struct{}
}

func NewSet(labels ...Label) *Set {
	s := &Set{index: make(map[Label]struct{}, len(labels))}
	for _, l := range labels {
		s.Add(l)
	}
	return s
}

// Add appends l unless already present and reports whether it was added.
func (s *Set) Add(l Label) bool {
	if _, ok := s.index[l]; ok {
		return false
	}
	s.index[l] = struct{}{}
	s.order = append(s.order, l)
	return true
}

func (s *Set) Contains(l Label) bool {
	_, ok := s.index[l]
	return ok
}

// ContainsAll reports whether every label in ls is present. An empty ls is
// trivially contained.
func (s *Set) ContainsAll(ls []Label) bool {
	for _, l := range ls {
		if !s.Contains(l) {
			return false
		}
	}
	return true
}

func (s *Set) ContainsAny(ls []Label) bool {
	for _, l := range ls {
		if s.Contains(l) {
			return true
		}
	}
	return false
}

func (s *Set) Len() int { return len(s.order) }

// Labels returns a copy in insertion order.
func (s *Set) Labels() []Label {
	out := make([]Label, len(s.order))
	copy(out, s.order)
	return out
}
