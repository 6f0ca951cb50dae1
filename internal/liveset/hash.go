package liveset

import (
	"github.com/cornelk/hashmap"
	"github.com/emirpasic/gods/sets/hashset"
)

type godsSet struct {
	s *hashset.Set
}

func newHashSet() *godsSet {
	return &godsSet{s: hashset.New()}
}

func (s *godsSet) Add(addr uintptr) {
	s.s.Add(addr)
}

func (s *godsSet) Seal() {}

func (s *godsSet) Has(addr uintptr) bool {
	return s.s.Contains(addr)
}

func (s *godsSet) Len() int {
	return s.s.Size()
}

func (s *godsSet) Reset() {
	s.s.Clear()
}

type hashMap struct {
	m    *hashmap.Map[uintptr, struct{}]
	hint int
}

func newHashMap(hint int) *hashMap {
	return &hashMap{m: newSizedMap(hint), hint: hint}
}

func newSizedMap(hint int) *hashmap.Map[uintptr, struct{}] {
	if hint <= 0 {
		return hashmap.New[uintptr, struct{}]()
	}
	return hashmap.NewSized[uintptr, struct{}](uintptr(hint))
}

func (s *hashMap) Add(addr uintptr) {
	s.m.Insert(addr, struct{}{})
}

func (s *hashMap) Seal() {}

func (s *hashMap) Has(addr uintptr) bool {
	_, ok := s.m.Get(addr)
	return ok
}

func (s *hashMap) Len() int {
	return s.m.Len()
}

func (s *hashMap) Reset() {
	if s.m.Len() > 0 {
		s.m = newSizedMap(s.hint)
	}
}
