package liveset

import "github.com/google/btree"

const btreeDegree = 16

type bTree struct {
	t *btree.BTreeG[uintptr]
}

func newBTree() *bTree {
	return &bTree{t: btree.NewG(btreeDegree, func(a, b uintptr) bool { return a < b })}
}

func (s *bTree) Add(addr uintptr) {
	s.t.ReplaceOrInsert(addr)
}

func (s *bTree) Seal() {}

func (s *bTree) Has(addr uintptr) bool {
	return s.t.Has(addr)
}

func (s *bTree) Len() int {
	return s.t.Len()
}

func (s *bTree) Reset() {
	s.t.Clear(true)
}
