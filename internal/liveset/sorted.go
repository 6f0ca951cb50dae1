package liveset

import "slices"

// sorted is the classic scan's liveset: a sorted array searched by bisection.
type sorted struct {
	addrs []uintptr
}

func newSorted(hint int) *sorted {
	return &sorted{addrs: make([]uintptr, 0, hint)}
}

func (s *sorted) Add(addr uintptr) {
	s.addrs = append(s.addrs, addr)
}

func (s *sorted) Seal() {
	slices.Sort(s.addrs)
}

func (s *sorted) Has(addr uintptr) bool {
	_, ok := slices.BinarySearch(s.addrs, addr)
	return ok
}

func (s *sorted) Len() int {
	return len(s.addrs)
}

func (s *sorted) Reset() {
	s.addrs = s.addrs[:0]
}
